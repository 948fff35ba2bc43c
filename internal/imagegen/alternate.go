package imagegen

import (
	"context"
	"encoding/json"

	"storygate/internal/upstream"
)

// Alternate forwards the original body to a compatible image endpoint.
type Alternate struct {
	client *upstream.Client
	url    string
}

func NewAlternate(client *upstream.Client, url string) *Alternate {
	return &Alternate{client: client, url: url}
}

func (a *Alternate) Name() string { return ProviderAlternate }

func (a *Alternate) Generate(ctx context.Context, req Request) ([][]byte, error) {
	body := req.Envelope
	if body == nil {
		body = map[string]any{"instances": []any{map[string]any{"prompt": req.Prompt}}}
	}
	var raw json.RawMessage
	if err := a.client.PostJSON(ctx, a.url, nil, body, &raw); err != nil {
		return nil, err
	}
	return decodeImages(raw)
}
