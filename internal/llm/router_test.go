package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storygate/internal/apperr"
	"storygate/internal/narrative"
	"storygate/internal/upstream"
)

type fakeBackend struct {
	name    string
	raw     string
	err     error
	calls   int
	lastReq Request
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Generate(ctx context.Context, req Request) (string, error) {
	f.calls++
	f.lastReq = req
	return f.raw, f.err
}

func chatEnvelope(text string) map[string]any {
	return map[string]any{
		"contents": []any{
			map[string]any{"role": "user", "parts": []any{map[string]any{"text": text}}},
		},
		"systemInstruction": map[string]any{"parts": []any{map[string]any{"text": "Return JSON"}}},
	}
}

func TestRouterMockIsDeterministic(t *testing.T) {
	r := NewRouter(RouterConfig{DefaultProvider: MockProvider, Paragraphs: 3}, zaptest.NewLogger(t))
	env := chatEnvelope("A lighthouse keeper")

	a, err := r.Generate(context.Background(), env, "")
	require.NoError(t, err)
	b, err := r.Generate(context.Background(), env, "")
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.False(t, a.UsedRealLLM)
	require.Equal(t, MockProvider, a.Provider)
	require.Equal(t, narrative.Synthetic("A lighthouse keeper", 3), a.Narrative)
}

func TestRouterRealBackend(t *testing.T) {
	fb := &fakeBackend{name: "groq", raw: "```json\n{\"narrative\":\"N\",\"image_prompt\":\"I\",\"summary_point\":\"S\"}\n```"}
	r := NewRouter(RouterConfig{DefaultProvider: "groq"}, zaptest.NewLogger(t), fb)

	res, err := r.Generate(context.Background(), chatEnvelope("hello"), "")
	require.NoError(t, err)
	require.True(t, res.UsedRealLLM)
	require.Equal(t, narrative.Narrative{Narrative: "N", ImagePrompt: "I", SummaryPoint: "S"}, res.Narrative)
	require.Equal(t, "hello", fb.lastReq.User)
	require.Equal(t, "Return JSON", fb.lastReq.System)
}

func TestRouterEmptyCandidateSynthesizes(t *testing.T) {
	fb := &fakeBackend{name: "gemini", raw: ""}
	r := NewRouter(RouterConfig{DefaultProvider: "gemini"}, zaptest.NewLogger(t), fb)

	res, err := r.Generate(context.Background(), chatEnvelope("a dragon"), "")
	require.NoError(t, err)
	require.True(t, res.UsedRealLLM)
	require.Equal(t, narrative.Synthesize("a dragon", narrative.DefaultParagraphs), res.Narrative.Narrative)
}

func TestRouterSurfacePolicy(t *testing.T) {
	fb := &fakeBackend{name: "openai", err: errors.New("connection refused")}
	r := NewRouter(RouterConfig{DefaultProvider: "openai", Policy: FallbackSurface}, zaptest.NewLogger(t), fb)

	_, err := r.Generate(context.Background(), chatEnvelope("x"), "")
	require.Error(t, err)
	require.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
}

func TestRouterSynthesizePolicy(t *testing.T) {
	fb := &fakeBackend{name: "openai", err: errors.New("connection refused")}
	r := NewRouter(RouterConfig{DefaultProvider: "openai", Policy: FallbackSynthesize, Paragraphs: 2}, zaptest.NewLogger(t), fb)

	res, err := r.Generate(context.Background(), chatEnvelope("a storm"), "")
	require.NoError(t, err)
	require.False(t, res.UsedRealLLM)
	require.Equal(t, narrative.Synthetic("a storm", 2), res.Narrative)
}

func TestRouterUnknownProvider(t *testing.T) {
	r := NewRouter(RouterConfig{}, zaptest.NewLogger(t))

	_, err := r.Generate(context.Background(), chatEnvelope("x"), "anthropic")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	require.Equal(t, []string{MockProvider}, r.Providers())
}

func TestRouterCallerCancellationIsNotMasked(t *testing.T) {
	fb := &fakeBackend{name: "openai", err: context.Canceled}
	r := NewRouter(RouterConfig{DefaultProvider: "openai", Policy: FallbackSynthesize}, zaptest.NewLogger(t), fb)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Generate(ctx, chatEnvelope("x"), "")
	require.ErrorIs(t, err, context.Canceled)
}

func newUpstream(t *testing.T, name string) *upstream.Client {
	t.Helper()
	c, err := upstream.New(upstream.Config{Name: name, MaxRetries: 0, Timeout: 5 * time.Second}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

func TestGeminiForwardsEnvelope(t *testing.T) {
	var gotKey, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"story"}]}}]}`))
	}))
	defer srv.Close()

	g := NewGemini(newUpstream(t, "gemini"), srv.URL+"/", "gemini-2.0-flash", "k")
	env := chatEnvelope("hi")
	env["generationConfig"] = map[string]any{"temperature": 0.2}

	text, err := g.Generate(context.Background(), Request{User: "hi", Envelope: env})
	require.NoError(t, err)
	require.Equal(t, "story", text)
	require.Equal(t, "k", gotKey)
	require.Equal(t, "/models/gemini-2.0-flash:generateContent", gotPath)
	require.Contains(t, gotBody, "generationConfig")
}

func TestGeminiBuildsRequestForOtherShapes(t *testing.T) {
	var gotBody geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	g := NewGemini(newUpstream(t, "gemini"), srv.URL, "m", "k")
	text, err := g.Generate(context.Background(), Request{User: "a fox", Envelope: map[string]any{"prompt": "a fox"}})
	require.NoError(t, err)
	require.Equal(t, "", text)
	require.Equal(t, "a fox", gotBody.Contents[0].Parts[0].Text)
	require.Equal(t, DefaultSystemInstruction, gotBody.SystemInstruction.Parts[0].Text)
}

func TestOpenAICompatible(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"narrative\":\"n\"}"}}]}`))
	}))
	defer srv.Close()

	o := NewOpenAI("groq", newUpstream(t, "groq"), srv.URL+"/openai/v1", "llama", "secret")
	text, err := o.Generate(context.Background(), Request{System: "sys", User: "usr"})
	require.NoError(t, err)
	require.Equal(t, `{"narrative":"n"}`, text)
	require.Equal(t, "/openai/v1/chat/completions", gotPath)
	require.Equal(t, "Bearer secret", gotAuth)
	require.Equal(t, "llama", gotBody.Model)
	require.Equal(t, []chatMessage{{Role: "system", Content: "sys"}, {Role: "user", Content: "usr"}}, gotBody.Messages)
	require.Equal(t, "groq", o.Name())
}

func TestAnthropicMessages(t *testing.T) {
	var gotKey, gotVersion, gotPath string
	var gotBody anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"tale"}]}`))
	}))
	defer srv.Close()

	a := NewAnthropic(newUpstream(t, "anthropic"), srv.URL+"/v1", "claude", "ak")
	text, err := a.Generate(context.Background(), Request{User: "u"})
	require.NoError(t, err)
	require.Equal(t, "tale", text)
	require.Equal(t, "/v1/messages", gotPath)
	require.Equal(t, "ak", gotKey)
	require.Equal(t, anthropicVersion, gotVersion)
	require.Equal(t, DefaultSystemInstruction, gotBody.System)
	require.Equal(t, anthropicMaxTokens, gotBody.MaxTokens)
}

func TestBackendErrorSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"auth"}}`))
	}))
	defer srv.Close()

	o := NewOpenAI("openai", newUpstream(t, "openai"), srv.URL, "m", "k")
	_, err := o.Generate(context.Background(), Request{User: "u"})
	serr, ok := upstream.AsStatusError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, serr.StatusCode)
	require.Equal(t, "bad key", serr.Message)
}
