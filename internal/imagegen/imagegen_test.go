package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storygate/internal/apperr"
	"storygate/internal/cache"
	"storygate/internal/upstream"
)

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\nfake-png")
	jpegBytes = []byte("\xff\xd8\xff\xe0fake-jpeg")
	staticImg = []byte("static")
)

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func newClient(t *testing.T, name string) *upstream.Client {
	t.Helper()
	c, err := upstream.New(upstream.Config{Name: name, Timeout: 5 * time.Second, BaseBackoff: time.Millisecond}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

// picsum serves pngBytes for every seed and counts requests.
func picsum(t *testing.T) (*httptest.Server, *atomic.Int32, *string) {
	t.Helper()
	var calls atomic.Int32
	var lastPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		lastPath = r.URL.Path
		_, _ = w.Write(pngBytes)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, &lastPath
}

type fakeProvider struct {
	name   string
	images [][]byte
	err    error
	calls  atomic.Int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(context.Context, Request) ([][]byte, error) {
	f.calls.Add(1)
	return f.images, f.err
}

func instances(prompt string) map[string]any {
	return map[string]any{"instances": []any{map[string]any{"prompt": prompt}}}
}

func TestSeed(t *testing.T) {
	require.Len(t, Seed("a red fox"), 8)
	require.Equal(t, Seed("a red fox"), Seed("a red fox"))
	require.NotEqual(t, Seed("a red fox"), Seed("a blue fox"))
}

func TestPlaceholderFetchesSeededURL(t *testing.T) {
	srv, _, lastPath := picsum(t)
	p := NewPlaceholder(newClient(t, "free"), srv.URL+"/", 800, 450)

	images, err := p.Generate(context.Background(), Request{Prompt: "a red fox"})
	require.NoError(t, err)
	require.Equal(t, [][]byte{pngBytes}, images)
	require.Equal(t, "/seed/"+Seed("a red fox")+"/800/450", *lastPath)
}

func TestDecodeImagesShapes(t *testing.T) {
	cases := map[string]string{
		"predictions":  `{"predictions":[{"bytesBase64Encoded":"` + b64(pngBytes) + `"}]}`,
		"artifacts":    `{"artifacts":[{"base64":"` + b64(pngBytes) + `","finishReason":"SUCCESS"}]}`,
		"images obj":   `{"images":[{"b64":"` + b64(pngBytes) + `"}]}`,
		"images str":   `{"images":["` + b64(pngBytes) + `"]}`,
		"data b64json": `{"data":[{"b64_json":"` + b64(pngBytes) + `"}]}`,
		"data uri":     `{"images":["data:image/png;base64,` + b64(pngBytes) + `"]}`,
	}
	for name, body := range cases {
		images, err := decodeImages([]byte(body))
		require.NoError(t, err, name)
		require.Equal(t, [][]byte{pngBytes}, images, name)
	}

	_, err := decodeImages([]byte(`{"predictions":[]}`))
	require.ErrorIs(t, err, ErrNoImages)
	_, err = decodeImages([]byte(`not json`))
	require.Error(t, err)
}

func TestStabilityRequestShape(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody stabilityRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = w.Write([]byte(`{"artifacts":[{"base64":"` + b64(pngBytes) + `"},{"base64":"` + b64(jpegBytes) + `"}]}`))
	}))
	defer srv.Close()

	s := NewStability(newClient(t, "stability"), StabilityOptions{
		BaseURL: srv.URL, Engine: "sdxl", APIKey: "sk", CFGScale: 7, Width: 1024, Height: 1024,
	})
	images, err := s.Generate(context.Background(), Request{Prompt: "castle", SampleCount: 2})
	require.NoError(t, err)
	require.Equal(t, [][]byte{pngBytes, jpegBytes}, images)
	require.Equal(t, "/v1/generation/sdxl/text-to-image", gotPath)
	require.Equal(t, "Bearer sk", gotAuth)
	require.Equal(t, "castle", gotBody.TextPrompts[0].Text)
	require.Equal(t, 2, gotBody.Samples)
	require.Equal(t, 1024, gotBody.Width)
}

func TestLocalTxt2Img(t *testing.T) {
	var gotPath string
	var gotBody txt2imgRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = w.Write([]byte(`{"images":["` + b64(pngBytes) + `"],"info":"{}"}`))
	}))
	defer srv.Close()

	l := NewLocal(newClient(t, "local"), srv.URL, 20)
	images, err := l.Generate(context.Background(), Request{Prompt: "forest"})
	require.NoError(t, err)
	require.Equal(t, [][]byte{pngBytes}, images)
	require.Equal(t, "/sdapi/v1/txt2img", gotPath)
	require.Equal(t, txt2imgRequest{Prompt: "forest", Steps: 20}, gotBody)
}

func TestImagenForwardsPredictBody(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = w.Write([]byte(`{"predictions":[{"bytesBase64Encoded":"` + b64(pngBytes) + `"}]}`))
	}))
	defer srv.Close()

	g := NewImagen(newClient(t, "google"), srv.URL, "imagen-3.0-generate-002", "gk")
	env := instances("a lake")
	env["parameters"] = map[string]any{"sampleCount": 1, "personGeneration": "dont_allow"}

	images, err := g.Generate(context.Background(), Request{Prompt: "a lake", Envelope: env})
	require.NoError(t, err)
	require.Len(t, images, 1)
	require.Equal(t, "/models/imagen-3.0-generate-002:predict", gotPath)
	require.Equal(t, "gk", gotKey)
	require.Equal(t, "dont_allow", gotBody["parameters"].(map[string]any)["personGeneration"])
}

func TestAlternatePostsEnvelope(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = w.Write([]byte(`{"predictions":["` + b64(pngBytes) + `"]}`))
	}))
	defer srv.Close()

	a := NewAlternate(newClient(t, "alternate"), srv.URL+"/generate")
	images, err := a.Generate(context.Background(), Request{Prompt: "x", Envelope: map[string]any{"prompt": "x"}})
	require.NoError(t, err)
	require.Equal(t, [][]byte{pngBytes}, images)
	require.Equal(t, "x", gotBody["prompt"])
}

func billedServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"message":"Imagen API is only accessible to billed users at this time.","status":"FAILED_PRECONDITION"}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRouterEntitlementWithoutFallback(t *testing.T) {
	srv := billedServer(t, http.StatusBadRequest)
	g := NewImagen(newClient(t, "google"), srv.URL, "m", "k")
	r := NewRouter(RouterConfig{DefaultProvider: ProviderGoogle}, zaptest.NewLogger(t), g)

	_, err := r.Route(context.Background(), Request{Prompt: "p"}, "")
	require.Equal(t, apperr.KindEntitlement, apperr.KindOf(err))
	require.Equal(t, http.StatusPaymentRequired, apperr.HTTPStatus(apperr.KindOf(err)))
}

func TestRouterEntitlementWithFallback(t *testing.T) {
	srv := billedServer(t, http.StatusPaymentRequired)
	pic, calls, _ := picsum(t)
	g := NewImagen(newClient(t, "google"), srv.URL, "m", "k")
	free := NewPlaceholder(newClient(t, "free"), pic.URL, 800, 450)
	r := NewRouter(RouterConfig{DefaultProvider: ProviderGoogle, Fallback: true, FallbackImage: staticImg}, zaptest.NewLogger(t), g, free)

	gen, err := r.Route(context.Background(), Request{Prompt: "p"}, "")
	require.NoError(t, err)
	require.Equal(t, ProviderFree, gen.Provider)
	require.False(t, gen.Static)
	require.Equal(t, [][]byte{pngBytes}, gen.Images)
	require.Equal(t, int32(1), calls.Load())
}

func TestRouterStaticFallback(t *testing.T) {
	failing := &fakeProvider{name: ProviderStability, err: errors.New("connection refused")}
	broken := &fakeProvider{name: ProviderFree, err: errors.New("no route")}
	r := NewRouter(RouterConfig{Fallback: true, FallbackImage: staticImg}, zaptest.NewLogger(t), failing, broken)

	gen, err := r.Route(context.Background(), Request{Prompt: "p"}, ProviderStability)
	require.NoError(t, err)
	require.True(t, gen.Static)
	require.Equal(t, [][]byte{staticImg}, gen.Images)
}

func TestRouterUpstreamErrorWithoutFallback(t *testing.T) {
	failing := &fakeProvider{name: ProviderStability, err: errors.New("boom")}
	free := &fakeProvider{name: ProviderFree, images: [][]byte{pngBytes}}
	r := NewRouter(RouterConfig{}, zaptest.NewLogger(t), failing, free)

	_, err := r.Route(context.Background(), Request{Prompt: "p"}, ProviderStability)
	require.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	require.Equal(t, int32(0), free.calls.Load())
}

func TestRouterUnconfiguredProvider(t *testing.T) {
	r := NewRouter(RouterConfig{Fallback: true, FallbackImage: staticImg}, zaptest.NewLogger(t))

	_, err := r.Route(context.Background(), Request{Prompt: "p"}, ProviderStability)
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestRouterChainDedupes(t *testing.T) {
	free := &fakeProvider{name: ProviderFree, err: errors.New("down")}
	r := NewRouter(RouterConfig{}, zaptest.NewLogger(t), free)

	_, err := r.Chain(context.Background(), Request{Prompt: "p"}, ProviderFree, ProviderFree)
	require.Error(t, err)
	require.Equal(t, int32(1), free.calls.Load())
}

func newService(t *testing.T, cfg RouterConfig, providers ...Provider) (*Service, cache.ImageCache) {
	t.Helper()
	d, err := cache.NewDisk(filepath.Join(t.TempDir(), "uploads"), "/static/uploads")
	require.NoError(t, err)
	c := cache.NewLoggingCache(d)
	main := &fakeProvider{name: ProviderFree, images: [][]byte{jpegBytes}}
	r := NewRouter(cfg, zaptest.NewLogger(t), providers...)
	return NewService(ServiceConfig{TTL: time.Hour, JobProvider: ProviderStability}, c, r, main, zaptest.NewLogger(t)), c
}

func TestServiceCachesAndServesHits(t *testing.T) {
	free := &fakeProvider{name: ProviderFree, images: [][]byte{pngBytes}}
	svc, _ := newService(t, RouterConfig{}, free)
	ctx := context.Background()

	first, err := svc.Generate(ctx, instances("a red fox"), "")
	require.NoError(t, err)
	require.False(t, first.Cached)
	require.Equal(t, cache.Key("a red fox", ProviderFree, map[string]any{}), first.Key)
	require.Equal(t, []string{"/static/uploads/img_" + first.Key + "_0.png"}, first.URLs)

	second, err := svc.Generate(ctx, instances("a red fox"), "")
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, first.Images, second.Images)
	require.Equal(t, int32(1), free.calls.Load())
}

func TestServiceDoesNotCacheStaticFallback(t *testing.T) {
	failing := &fakeProvider{name: ProviderFree, err: errors.New("down")}
	svc, c := newService(t, RouterConfig{Fallback: true, FallbackImage: staticImg}, failing)

	out, err := svc.Generate(context.Background(), instances("p"), "")
	require.NoError(t, err)
	require.Equal(t, [][]byte{staticImg}, out.Images)
	require.Empty(t, out.Files)

	entries, err := c.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestServiceDoesNotCachePlaceholderUnderFailedProvider(t *testing.T) {
	stability := &fakeProvider{name: ProviderStability, err: errors.New("connection refused")}
	free := &fakeProvider{name: ProviderFree, images: [][]byte{pngBytes}}
	svc, c := newService(t, RouterConfig{DefaultProvider: ProviderStability, Fallback: true}, stability, free)
	ctx := context.Background()

	first, err := svc.Generate(ctx, instances("a lantern"), ProviderStability)
	require.NoError(t, err)
	require.Equal(t, ProviderFree, first.Provider)
	require.False(t, first.Cached)
	require.Empty(t, first.Files)

	entries, err := c.List(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)

	stability.err = nil
	stability.images = [][]byte{jpegBytes}

	second, err := svc.Generate(ctx, instances("a lantern"), ProviderStability)
	require.NoError(t, err)
	require.False(t, second.Cached)
	require.Equal(t, ProviderStability, second.Provider)
	require.Equal(t, [][]byte{jpegBytes}, second.Images)
	require.Equal(t, int32(2), stability.calls.Load())

	third, err := svc.Generate(ctx, instances("a lantern"), ProviderStability)
	require.NoError(t, err)
	require.True(t, third.Cached)
	require.Equal(t, [][]byte{jpegBytes}, third.Images)
	require.Equal(t, int32(2), stability.calls.Load())
}

func TestServiceMissingPrompt(t *testing.T) {
	svc, _ := newService(t, RouterConfig{})
	_, err := svc.Generate(context.Background(), nil, "")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestServiceJobWarmsSyncCache(t *testing.T) {
	stability := &fakeProvider{name: ProviderStability, err: errors.New("down")}
	free := &fakeProvider{name: ProviderFree, images: [][]byte{pngBytes}}
	svc, _ := newService(t, RouterConfig{}, stability, free)
	ctx := context.Background()

	job, err := svc.GenerateForJob(ctx, instances("harbor"), "")
	require.NoError(t, err)
	require.Equal(t, ProviderFree, job.Provider)
	require.Equal(t, int32(1), stability.calls.Load())

	sync, err := svc.Generate(ctx, instances("harbor"), "")
	require.NoError(t, err)
	require.True(t, sync.Cached)
	require.Equal(t, job.Key, sync.Key)
	require.Equal(t, int32(1), free.calls.Load())
}

func TestServiceMainImage(t *testing.T) {
	svc, c := newService(t, RouterConfig{})

	images, err := svc.MainImage(context.Background(), instances("a hall"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{jpegBytes}, images)

	entries, err := c.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, entries)
}
