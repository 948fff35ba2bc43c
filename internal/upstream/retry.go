package upstream

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// doWithRetry wraps an HTTP call with retry logic.
// It will attempt the request up to MaxRetries+1 times (initial + retries).
// - Retries only on transient network errors, per-attempt timeouts, 408, 429 and 5xx statuses.
// - Respects Retry-After headers from rate limiting responses.
// - Uses exponential backoff with full jitter to prevent thundering herd.
// - Respects the provided ctx (deadline / cancellation).
func (c *Client) doWithRetry(
	ctx context.Context,
	do func(ctx context.Context) (*Response, error),
) (*Response, error) {
	var lastErr error
	maxAttempts := c.cfg.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		// Check context before attempting
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		start := time.Now()
		resp, err := do(ctx)
		duration := time.Since(start)

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}

		c.logger.Debug("upstream request",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Int("status", status),
			zap.Duration("duration", duration),
			zap.Error(err),
		)

		var retryAfter time.Duration

		switch {
		case err != nil:
			// Overall deadline or caller cancellation: never retry
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !errors.Is(err, context.DeadlineExceeded) && !isTransientNetError(err) {
				c.logger.Debug("non-retryable network error", zap.Error(err))
				return nil, err
			}
			// Attempt timeout or transient network error - will retry
			lastErr = err

		case !shouldRetryStatus(status):
			// Success or non-retryable HTTP status (e.g., 4xx)
			return resp, nil

		default:
			// Retryable HTTP status (408, 429, 5xx)
			lastErr = newStatusError(c.cfg.Name, resp)
			retryAfter = parseRetryAfter(resp.Header)
		}

		// No more attempts left
		if attempt == maxAttempts-1 {
			break
		}

		wait := retryAfter
		if wait > 0 {
			c.logger.Info("honoring Retry-After header",
				zap.Duration("wait", wait),
				zap.Int("status", status),
			)
		} else {
			wait = computeBackoff(c.cfg.BaseBackoff, attempt)
			c.logger.Debug("backing off before retry",
				zap.Duration("backoff", wait),
				zap.Int("next_attempt", attempt+2),
			)
		}

		// Wait for backoff period, respecting context cancellation
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	// All retries exhausted
	c.logger.Warn("upstream request exhausted all retries",
		zap.Int("attempts", maxAttempts),
		zap.Error(lastErr),
	)

	if lastErr == nil {
		lastErr = errors.New("unknown upstream error")
	}
	return nil, fmt.Errorf("%s: %w after %d attempts: %w", c.cfg.Name, ErrRetriesExhausted, maxAttempts, lastErr)
}

// isTransientNetError determines whether a network error is worth retrying.
// Returns true for temporary network issues that might resolve on retry.
func isTransientNetError(err error) bool {
	if err == nil {
		return false
	}

	// Timeout errors are always retryable
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// DNS errors with timeout/temporary flag
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}

	// Connection errors (service might be restarting)
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" || opErr.Op == "read" || opErr.Op == "write" {
			return true
		}
	}

	// Check error string for common transient patterns
	// This is not ideal but sometimes necessary for wrapped errors
	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"unexpected eof",
		"temporary failure",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// shouldRetryStatus returns true if the HTTP status code indicates
// the request should be retried.
func shouldRetryStatus(status int) bool {
	switch {
	case status == 0:
		// No response received (network error)
		return true
	case status == http.StatusTooManyRequests: // 429
		return true
	case status == http.StatusRequestTimeout: // 408
		return true
	case status >= 500 && status <= 599:
		return true
	default:
		// 2xx success, 3xx redirects, 4xx client errors - don't retry
		return false
	}
}

// parseRetryAfter extracts the retry delay from a Retry-After header.
// Returns 0 if header is missing or invalid.
//
// Retry-After can be:
// - Number of seconds: "120"
// - HTTP date: "Wed, 21 Oct 2015 07:28:00 GMT"
func parseRetryAfter(h http.Header) time.Duration {
	retryAfter := h.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	const maxRetryAfter = 5 * time.Minute

	if seconds, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil {
		if seconds <= 0 {
			return 0
		}
		return min(time.Duration(seconds)*time.Second, maxRetryAfter)
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(t); d > 0 {
			return min(d, maxRetryAfter)
		}
	}

	return 0
}

// computeBackoff calculates exponential backoff with full jitter.
//
// Returns a random value between 0 and base*2^attempt, capped at 60s.
//
// Example progression (base=100ms):
// Attempt 0: 0-100ms    (avg 50ms)
// Attempt 1: 0-200ms    (avg 100ms)
// Attempt 2: 0-400ms    (avg 200ms)
// ...capped at maxAllowed
func computeBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	// 2^10 = 1024x multiplier is more than enough
	const maxExponent = 10
	if attempt > maxExponent {
		attempt = maxExponent
	}

	maxBackoff := time.Duration(float64(base) * math.Pow(2, float64(attempt)))

	const maxAllowed = 60 * time.Second
	if maxBackoff > maxAllowed {
		maxBackoff = maxAllowed
	}

	return time.Duration(rand.Float64() * float64(maxBackoff))
}
