package llm

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"storygate/internal/upstream"
)

// Gemini calls the generateContent endpoint. Bodies already in
// generateContent shape are forwarded untouched so generationConfig survives.
type Gemini struct {
	client  *upstream.Client
	baseURL string
	model   string
	apiKey  string
}

func NewGemini(client *upstream.Client, baseURL, model, apiKey string) *Gemini {
	return &Gemini{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
	}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	body := req.Envelope
	if !isGenerateContent(body) {
		system := req.System
		if system == "" {
			system = DefaultSystemInstruction
		}
		body = geminiRequest{
			Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.User}}}},
			SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
		}
	}

	h := http.Header{}
	h.Set("x-goog-api-key", g.apiKey)

	endpoint := g.baseURL + "/models/" + url.PathEscape(g.model) + ":generateContent"
	var resp geminiResponse
	if err := g.client.PostJSON(ctx, endpoint, h, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

func isGenerateContent(body any) bool {
	obj, ok := body.(map[string]any)
	if !ok {
		return false
	}
	contents, ok := obj["contents"].([]any)
	return ok && len(contents) > 0
}
