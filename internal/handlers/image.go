package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"storygate/internal/imagegen"
	"storygate/pkg/logging/logging"
)

// ImageHandler serves synchronous image generation.
type ImageHandler struct {
	Service *imagegen.Service
}

func NewImageHandler(svc *imagegen.Service) *ImageHandler {
	return &ImageHandler{Service: svc}
}

type imageResponse struct {
	Predictions []imagegen.Prediction `json:"predictions"`
	Cached      bool                  `json:"cached"`
	Key         string                `json:"key,omitempty"`
	Provider    string                `json:"provider,omitempty"`
	FileURLs    []string              `json:"file_urls,omitempty"`
}

// GenerateImage handles POST /v1/ai/generate-image.
func (h *ImageHandler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, err := decodeGenerate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.Service.Generate(r.Context(), req.Payload, req.Provider)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logging.L(r.Context()).Info("cache_decision",
		zap.String("key", out.Key),
		zap.String("image_provider", out.Provider),
		zap.Bool("cache_hit", out.Cached),
		zap.Int("images", len(out.Images)),
		zap.Duration("total_latency", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, imageResponse{
		Predictions: imagegen.EncodeImages(out.Images),
		Cached:      out.Cached,
		Key:         out.Key,
		Provider:    out.Provider,
		FileURLs:    out.URLs,
	})
}

// GenerateMainImage handles POST /v1/ai/generate-main-image.
func (h *ImageHandler) GenerateMainImage(w http.ResponseWriter, r *http.Request) {
	req, err := decodeGenerate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	images, err := h.Service.MainImage(r.Context(), req.Payload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, imageResponse{Predictions: imagegen.EncodeImages(images)})
}
