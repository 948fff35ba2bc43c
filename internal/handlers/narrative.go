package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"storygate/internal/llm"
	"storygate/internal/narrative"
	"storygate/pkg/logging/logging"
)

// NarrativeHandler serves narrative generation.
type NarrativeHandler struct {
	Router *llm.Router
}

func NewNarrativeHandler(router *llm.Router) *NarrativeHandler {
	return &NarrativeHandler{Router: router}
}

// GeneratePrompt handles POST /v1/ai/generate-prompt.
func (h *NarrativeHandler) GeneratePrompt(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, err := decodeGenerate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Router.Generate(r.Context(), req.Payload, req.Provider)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logging.L(r.Context()).Info("narrative_generated",
		zap.String("llm_provider", res.Provider),
		zap.Bool("used_real_llm", res.UsedRealLLM),
		zap.Duration("total_latency", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, narrative.NewResponse(res.Narrative, res.UsedRealLLM, res.Provider))
}
