package llm

import (
	"context"
	"net/http"
	"strings"

	"storygate/internal/upstream"
)

// OpenAI talks to any chat-completions compatible upstream (OpenAI, Groq).
type OpenAI struct {
	name    string
	client  *upstream.Client
	baseURL string
	model   string
	apiKey  string
}

// NewOpenAI returns a chat-completions backend registered under name.
func NewOpenAI(name string, client *upstream.Client, baseURL, model, apiKey string) *OpenAI {
	return &OpenAI{
		name:    name,
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
	}
}

func (o *OpenAI) Name() string { return o.name }

func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	system := req.System
	if system == "" {
		system = DefaultSystemInstruction
	}
	body := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: req.User},
		},
		Temperature: 0.8,
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+o.apiKey)

	var resp chatResponse
	if err := o.client.PostJSON(ctx, o.baseURL+"/chat/completions", h, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
