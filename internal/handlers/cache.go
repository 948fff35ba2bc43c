package handlers

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"storygate/internal/apperr"
	"storygate/internal/cache"
	"storygate/internal/envelope"
	"storygate/pkg/logging/logging"
)

// CacheHandler serves the image cache admin endpoints.
type CacheHandler struct {
	Cache           cache.ImageCache
	DefaultProvider string
}

func NewCacheHandler(c cache.ImageCache, defaultProvider string) *CacheHandler {
	return &CacheHandler{Cache: c, DefaultProvider: defaultProvider}
}

type invalidateRequest struct {
	Key      string         `json:"key"`
	Prompt   string         `json:"prompt"`
	Provider string         `json:"provider"`
	Params   map[string]any `json:"params"`
	All      bool           `json:"all"`
}

type invalidateResponse struct {
	Success bool     `json:"success"`
	Removed []string `json:"removed"`
	Key     string   `json:"key,omitempty"`
}

// Invalidate handles POST /v1/ai/cache/invalidate. Exactly one of key,
// prompt (fingerprint) or all selects what to remove.
func (h *CacheHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()

	var (
		key     string
		removed []string
		err     error
	)
	switch {
	case req.All:
		removed, err = h.Cache.InvalidateAll(ctx)
	case req.Key != "":
		key = strings.TrimSpace(req.Key)
		removed, err = h.Cache.Invalidate(ctx, key)
	case req.Prompt != "":
		provider := req.Provider
		if provider == "" {
			provider = h.DefaultProvider
		}
		// Params are normalized as on the generation path.
		params := map[string]any{}
		if req.Params != nil {
			params = envelope.Params(map[string]any{"parameters": req.Params})
		}
		key, removed, err = cache.InvalidateFingerprint(ctx, h.Cache, strings.TrimSpace(req.Prompt), provider, params)
	default:
		err = apperr.Validation("provide key, prompt or all")
	}
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.Wrap(apperr.KindInternal, "cache invalidation failed", err)
		}
		writeError(w, r, err)
		return
	}

	logging.L(ctx).Info("cache_invalidated",
		zap.String("key", key),
		zap.Bool("all", req.All),
		zap.Int("removed", len(removed)),
	)
	if removed == nil {
		removed = []string{}
	}
	writeJSON(w, http.StatusOK, invalidateResponse{Success: true, Removed: removed, Key: key})
}

type listEntry struct {
	Key       string    `json:"key"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
	Files     []string  `json:"files"`
	FileURLs  []string  `json:"file_urls"`
}

// List handles GET /v1/ai/cache/list. Metadata only, never image bytes.
func (h *CacheHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Cache.List(r.Context())
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindInternal, "cache listing failed", err))
		return
	}
	out := make([]listEntry, 0, len(entries))
	for _, e := range entries {
		urls := make([]string, 0, len(e.Files))
		for _, f := range e.Files {
			urls = append(urls, h.Cache.URL(f))
		}
		out = append(out, listEntry{
			Key:       e.Key,
			Prompt:    e.Prompt,
			CreatedAt: e.CreatedAt,
			Files:     e.Files,
			FileURLs:  urls,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
