package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"storygate/internal/jobs"
)

// JobHandler serves the asynchronous image endpoints.
type JobHandler struct {
	Manager *jobs.Manager
}

func NewJobHandler(m *jobs.Manager) *JobHandler {
	return &JobHandler{Manager: m}
}

type jobResponse struct {
	JobID     string          `json:"job_id"`
	Status    jobs.Status     `json:"status"`
	Result    json.RawMessage `json:"result"`
	Error     string          `json:"error,omitempty"`
	Provider  string          `json:"provider,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func newJobResponse(j jobs.Job) jobResponse {
	result := j.Result
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return jobResponse{
		JobID:     j.ID,
		Status:    j.Status,
		Result:    result,
		Error:     j.Error,
		Provider:  j.Provider,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// Enqueue handles POST /v1/ai/generate-image-async.
func (h *JobHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	req, err := decodeGenerate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	job, err := h.Manager.Enqueue(r.Context(), req.Payload, caller(r), req.Provider)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// Status handles GET /v1/ai/generate-image-job/{jobID}.
func (h *JobHandler) Status(w http.ResponseWriter, r *http.Request) {
	job, err := h.Manager.Status(r.Context(), chi.URLParam(r, "jobID"), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(job))
}

// List handles GET /v1/ai/jobs.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.Manager.List(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]jobResponse, 0, len(list))
	for _, j := range list {
		out = append(out, newJobResponse(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}
