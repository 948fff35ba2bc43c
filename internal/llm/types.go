package llm

import (
	"context"
	"errors"
	"strings"
)

// DefaultSystemInstruction is sent when the request carries none.
const DefaultSystemInstruction = "You are a creative narrative generator. Return a single valid JSON object with keys: narrative, image_prompt, summary_point."

// Request is the provider-neutral narrative request.
type Request struct {
	System   string
	User     string
	Envelope any // original body, forwarded verbatim by backends that accept it
}

// Validate checks that there is something to send.
func (r Request) Validate() error {
	if strings.TrimSpace(r.User) == "" && r.Envelope == nil {
		return errors.New("user content is required")
	}
	return nil
}

// Backend is one upstream text model.
type Backend interface {
	Name() string
	// Generate returns the raw text of the first candidate, possibly empty.
	Generate(ctx context.Context, req Request) (string, error)
}
