package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "test"
	}
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = time.Millisecond
	}
	c, err := New(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected validation error, got nil")
	}
}

func TestPostJSONSuccess(t *testing.T) {
	t.Parallel()

	var gotAuth, gotContentType string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer":"ok"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, Config{})

	var out struct {
		Answer string `json:"answer"`
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer k")
	if err := c.PostJSON(context.Background(), srv.URL, h, map[string]any{"q": "ping"}, &out); err != nil {
		t.Fatalf("PostJSON: %v", err)
	}

	if gotAuth != "Bearer k" {
		t.Fatalf("unexpected Authorization header: %s", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Fatalf("unexpected Content-Type: %s", gotContentType)
	}
	if gotBody["q"] != "ping" {
		t.Fatalf("unexpected request body: %#v", gotBody)
	}
	if out.Answer != "ok" {
		t.Fatalf("unexpected response: %#v", out)
	}
}

func TestDoRetriesOn503ThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("done"))
	}))
	defer srv.Close()

	c := newTestClient(t, Config{MaxRetries: 2})

	body, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != "done" {
		t.Fatalf("unexpected body: %q", body)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, Config{MaxRetries: 1})

	_, err := c.Get(context.Background(), srv.URL)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	serr, ok := AsStatusError(err)
	if !ok || serr.StatusCode != http.StatusBadGateway || serr.Message != "overloaded" {
		t.Fatalf("expected wrapped status error, got %#v", serr)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"This API is only accessible to billed users."}`))
	}))
	defer srv.Close()

	c := newTestClient(t, Config{MaxRetries: 3})

	err := c.PostJSON(context.Background(), srv.URL, nil, map[string]any{}, nil)
	serr, ok := AsStatusError(err)
	if !ok {
		t.Fatalf("expected status error, got %v", err)
	}
	if serr.StatusCode != http.StatusBadRequest || serr.Message != "This API is only accessible to billed users." {
		t.Fatalf("unexpected status error: %#v", serr)
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", calls.Load())
	}
}

func TestDoAttemptTimeoutIsRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		_, _ = w.Write([]byte("late but fine"))
	}))
	defer srv.Close()

	c := newTestClient(t, Config{MaxRetries: 1, AttemptTimeout: 50 * time.Millisecond, Timeout: 5 * time.Second})

	body, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != "late but fine" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestDoOverallTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(t, Config{MaxRetries: 3, Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := c.Get(context.Background(), srv.URL)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout did not bound the call: %s", time.Since(start))
	}
}

func TestDoCallerCancellation(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, Config{MaxRetries: 3})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Get(ctx, "http://127.0.0.1:1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	if d := parseRetryAfter(h); d != 0 {
		t.Fatalf("expected 0 for missing header, got %s", d)
	}
	h.Set("Retry-After", "3")
	if d := parseRetryAfter(h); d != 3*time.Second {
		t.Fatalf("expected 3s, got %s", d)
	}
	h.Set("Retry-After", "99999")
	if d := parseRetryAfter(h); d != 5*time.Minute {
		t.Fatalf("expected cap of 5m, got %s", d)
	}
	h.Set("Retry-After", "garbage")
	if d := parseRetryAfter(h); d != 0 {
		t.Fatalf("expected 0 for invalid header, got %s", d)
	}
}

func TestComputeBackoffBounds(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	for attempt := 0; attempt < 15; attempt++ {
		limit := base << min(attempt, 10)
		if limit > 60*time.Second {
			limit = 60 * time.Second
		}
		for i := 0; i < 20; i++ {
			if d := computeBackoff(base, attempt); d < 0 || d > limit {
				t.Fatalf("attempt %d: backoff %s outside [0, %s]", attempt, d, limit)
			}
		}
	}
}

func TestShouldRetryStatus(t *testing.T) {
	t.Parallel()

	retry := []int{0, 408, 429, 500, 502, 503, 504}
	for _, s := range retry {
		if !shouldRetryStatus(s) {
			t.Fatalf("expected %d to be retryable", s)
		}
	}
	for _, s := range []int{200, 201, 301, 400, 401, 402, 403, 404} {
		if shouldRetryStatus(s) {
			t.Fatalf("expected %d not to be retryable", s)
		}
	}
}

func TestStatusErrorMessageShapes(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		`{"error":{"message":"bad key","type":"auth"}}`:               "bad key",
		`{"error":{"message":"quota","status":"RESOURCE_EXHAUSTED"}}`: "quota",
		`{"error":"plain"}`:                                           "plain",
		`{"message":"top"}`:                                           "top",
		`{"detail":"fastapi style"}`:                                  "fastapi style",
		`not json`:                                                    "not json",
	}
	for body, want := range cases {
		serr := newStatusError("p", &Response{StatusCode: 400, Body: []byte(body)})
		if serr.Message != want {
			t.Fatalf("body %s: expected %q, got %q", body, want, serr.Message)
		}
	}
}
