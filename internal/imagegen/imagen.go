package imagegen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"storygate/internal/upstream"
)

// Imagen calls Google's predict endpoint. Bodies already in predict shape are
// forwarded so caller parameters survive.
type Imagen struct {
	client  *upstream.Client
	baseURL string
	model   string
	apiKey  string
}

func NewImagen(client *upstream.Client, baseURL, model, apiKey string) *Imagen {
	return &Imagen{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
	}
}

func (g *Imagen) Name() string { return ProviderGoogle }

func (g *Imagen) Generate(ctx context.Context, req Request) ([][]byte, error) {
	body := req.Envelope
	if obj, ok := body.(map[string]any); !ok || obj["instances"] == nil {
		params := map[string]any{"sampleCount": max(req.SampleCount, 1)}
		if req.AspectRatio != "" {
			params["aspectRatio"] = req.AspectRatio
		}
		body = map[string]any{
			"instances":  []any{map[string]any{"prompt": req.Prompt}},
			"parameters": params,
		}
	}

	h := http.Header{}
	h.Set("x-goog-api-key", g.apiKey)

	endpoint := g.baseURL + "/models/" + url.PathEscape(g.model) + ":predict"
	var raw json.RawMessage
	if err := g.client.PostJSON(ctx, endpoint, h, body, &raw); err != nil {
		return nil, err
	}
	return decodeImages(raw, "predictions")
}
