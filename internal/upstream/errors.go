package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrRetriesExhausted marks a call whose transient failures outlasted the retry budget.
var ErrRetriesExhausted = errors.New("max retries exceeded")

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       []byte
	Message    string
	Type       string
}

func (e *StatusError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: upstream %d: %s (%s)", e.Provider, e.StatusCode, e.Message, e.Type)
	}
	return fmt.Sprintf("%s: upstream %d: %s", e.Provider, e.StatusCode, e.Message)
}

// AsStatusError returns the *StatusError in err's chain, if any.
func AsStatusError(err error) (*StatusError, bool) {
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr, true
	}
	return nil, false
}

// providerErrorResponse covers the error bodies of the providers we talk to:
// {"error":{"message","type"}}, {"error":"..."}, {"message":"..."} and {"detail":"..."}.
type providerErrorResponse struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
	Detail  any             `json:"detail"`
}

type providerErrorObject struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Status  string `json:"status"`
}

func newStatusError(provider string, resp *Response) *StatusError {
	e := &StatusError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
	}

	var perr providerErrorResponse
	if err := json.Unmarshal(resp.Body, &perr); err == nil {
		var obj providerErrorObject
		var s string
		switch {
		case len(perr.Error) > 0 && json.Unmarshal(perr.Error, &obj) == nil && obj.Message != "":
			e.Message = obj.Message
			e.Type = obj.Type
			if e.Type == "" {
				e.Type = obj.Status
			}
		case len(perr.Error) > 0 && json.Unmarshal(perr.Error, &s) == nil && s != "":
			e.Message = s
		case perr.Message != "":
			e.Message = perr.Message
		case perr.Detail != nil:
			e.Message = fmt.Sprint(perr.Detail)
		}
	}
	if e.Message == "" {
		e.Message = truncate(strings.TrimSpace(string(resp.Body)), 200)
	}
	return e
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
