package imagegen

import (
	"context"
	"encoding/json"
	"strings"

	"storygate/internal/upstream"
)

// Local calls a self-hosted AUTOMATIC1111 txt2img endpoint.
type Local struct {
	client  *upstream.Client
	baseURL string
	steps   int
}

func NewLocal(client *upstream.Client, baseURL string, steps int) *Local {
	return &Local{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		steps:   steps,
	}
}

func (l *Local) Name() string { return ProviderLocal }

type txt2imgRequest struct {
	Prompt    string `json:"prompt"`
	Steps     int    `json:"steps"`
	BatchSize int    `json:"batch_size,omitempty"`
}

func (l *Local) Generate(ctx context.Context, req Request) ([][]byte, error) {
	body := txt2imgRequest{Prompt: req.Prompt, Steps: l.steps}
	if req.SampleCount > 1 {
		body.BatchSize = req.SampleCount
	}

	var raw json.RawMessage
	if err := l.client.PostJSON(ctx, l.baseURL+"/sdapi/v1/txt2img", nil, body, &raw); err != nil {
		return nil, err
	}
	return decodeImages(raw, "images")
}
