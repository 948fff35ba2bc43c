package llm

import (
	"context"
	"net/http"
	"strings"

	"storygate/internal/upstream"
)

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 2048
)

// Anthropic calls the messages API.
type Anthropic struct {
	client  *upstream.Client
	baseURL string
	model   string
	apiKey  string
}

func NewAnthropic(client *upstream.Client, baseURL, model, apiKey string) *Anthropic {
	return &Anthropic{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Generate(ctx context.Context, req Request) (string, error) {
	system := req.System
	if system == "" {
		system = DefaultSystemInstruction
	}
	body := anthropicRequest{
		Model:     a.model,
		System:    system,
		MaxTokens: anthropicMaxTokens,
		Messages:  []chatMessage{{Role: "user", Content: req.User}},
	}

	h := http.Header{}
	h.Set("x-api-key", a.apiKey)
	h.Set("anthropic-version", anthropicVersion)

	var resp anthropicResponse
	if err := a.client.PostJSON(ctx, a.baseURL+"/messages", h, body, &resp); err != nil {
		return "", err
	}
	for _, c := range resp.Content {
		if c.Type == "" || c.Type == "text" {
			return c.Text, nil
		}
	}
	return "", nil
}
