// Package identity resolves the opaque caller id used for job ownership.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Anonymous is the caller id used when anonymous access is allowed.
const Anonymous = "anon"

// ErrNoCaller is returned when a request carries no usable identity.
var ErrNoCaller = errors.New("identity: no caller id")

type ctxKey struct{}

// WithCaller stores the caller id in ctx.
func WithCaller(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// CallerFrom returns the caller id stored by WithCaller.
func CallerFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Resolver extracts the caller id from a request.
// With a token verifier configured only a verified bearer token names the
// caller and the header is ignored; otherwise the header does.
type Resolver struct {
	Header         string
	Tokens         *TokenService
	AllowAnonymous bool
}

func (r Resolver) Resolve(req *http.Request) (string, error) {
	if r.Tokens != nil {
		if raw, ok := bearer(req.Header.Get("Authorization")); ok {
			claims, err := r.Tokens.Parse(raw)
			if err != nil {
				return "", err
			}
			if id := claims.CallerID(); id != "" {
				return id, nil
			}
			return "", ErrNoCaller
		}
	} else if r.Header != "" {
		if id := strings.TrimSpace(req.Header.Get(r.Header)); id != "" {
			return id, nil
		}
	}

	if r.AllowAnonymous {
		return Anonymous, nil
	}
	return "", ErrNoCaller
}

func bearer(h string) (string, bool) {
	if len(h) < len("Bearer ") || !strings.EqualFold(h[:len("Bearer ")], "bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(h[len("Bearer "):])
	return raw, raw != ""
}
