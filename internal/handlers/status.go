package handlers

import (
	"net/http"

	"storygate/internal/imagegen"
	"storygate/internal/llm"
)

// StatusHandler reports the active provider configuration. No secrets.
type StatusHandler struct {
	LLM   *llm.Router
	Image *imagegen.Router
}

func NewStatusHandler(l *llm.Router, i *imagegen.Router) *StatusHandler {
	return &StatusHandler{LLM: l, Image: i}
}

type statusResponse struct {
	ImageProvider      string   `json:"image_provider"`
	ImageProviders     []string `json:"image_providers"`
	ImageFallback      bool     `json:"use_image_fallback"`
	LLMProvider        string   `json:"llm_provider"`
	LLMProviders       []string `json:"llm_providers"`
	LLMFallbackPolicy  string   `json:"llm_fallback_policy"`
	UseMockFallback    bool     `json:"use_mock_fallback"`
	HasRealLLMProvider bool     `json:"has_real_llm_provider"`
}

// Status handles GET /v1/ai/status.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	llmProviders := h.LLM.Providers()
	writeJSON(w, http.StatusOK, statusResponse{
		ImageProvider:      h.Image.DefaultProvider(),
		ImageProviders:     h.Image.Providers(),
		ImageFallback:      h.Image.FallbackEnabled(),
		LLMProvider:        h.LLM.DefaultProvider(),
		LLMProviders:       llmProviders,
		LLMFallbackPolicy:  string(h.LLM.Policy()),
		UseMockFallback:    h.LLM.DefaultProvider() == llm.MockProvider || h.LLM.Policy() == llm.FallbackSynthesize,
		HasRealLLMProvider: len(llmProviders) > 1,
	})
}
