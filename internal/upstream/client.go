package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"storygate/internal/metrics"
)

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do performs method url with header and body, retrying transient failures.
// The whole call, retries included, is bounded by Config.Timeout.
// Non-retryable statuses (including 4xx) are returned as a Response, not an error.
func (c *Client) Do(parent context.Context, method, url string, header http.Header, body []byte) (*Response, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(parent, c.cfg.Timeout)
	defer cancel()

	// doOnce builds a fresh *http.Request for each attempt
	doOnce := func(ctx context.Context) (*Response, error) {
		if c.cfg.AttemptTimeout > 0 {
			var cancelAttempt context.CancelFunc
			ctx, cancelAttempt = context.WithTimeout(ctx, c.cfg.AttemptTimeout)
			defer cancelAttempt()
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("%s: build HTTP request: %w", c.cfg.Name, err)
		}
		if header != nil {
			req.Header = header.Clone()
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("%s: read response: %w", c.cfg.Name, err)
		}
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: b}, nil
	}

	resp, err := c.doWithRetry(ctx, doOnce)
	switch {
	case err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300:
		metrics.UpstreamRequestsTotal.WithLabelValues(c.cfg.Name, "ok").Inc()
	case errors.Is(err, ErrRetriesExhausted):
		metrics.UpstreamRequestsTotal.WithLabelValues(c.cfg.Name, "exhausted").Inc()
	default:
		metrics.UpstreamRequestsTotal.WithLabelValues(c.cfg.Name, "error").Inc()
	}

	if err != nil {
		if parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%s: request timed out after %s: %w", c.cfg.Name, c.cfg.Timeout, err)
		}
		c.logger.Error("upstream request failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, err
	}

	c.logger.Debug("upstream request completed",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

// PostJSON posts in as JSON and decodes a 2xx response into out (when non-nil).
// Non-2xx responses are returned as *StatusError.
func (c *Client) PostJSON(ctx context.Context, url string, header http.Header, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", c.cfg.Name, err)
	}

	h := http.Header{}
	if header != nil {
		h = header.Clone()
	}
	h.Set("Content-Type", "application/json")
	if h.Get("Accept") == "" {
		h.Set("Accept", "application/json")
	}

	resp, err := c.Do(ctx, http.MethodPost, url, h, body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serr := newStatusError(c.cfg.Name, resp)
		c.logger.Warn("upstream provider error",
			zap.Int("status", resp.StatusCode),
			zap.String("error_message", serr.Message),
		)
		return serr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%s: decode upstream response: %w", c.cfg.Name, err)
	}
	return nil
}

// Get fetches url and returns the body of a 2xx response.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Do(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(c.cfg.Name, resp)
	}
	return resp.Body, nil
}
