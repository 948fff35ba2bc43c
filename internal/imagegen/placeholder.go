package imagegen

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"storygate/internal/upstream"
)

// Placeholder fetches a deterministic stock image seeded from the prompt.
// It needs no credentials and is the last resort of every fallback chain.
type Placeholder struct {
	client  *upstream.Client
	baseURL string
	width   int
	height  int
}

func NewPlaceholder(client *upstream.Client, baseURL string, width, height int) *Placeholder {
	return &Placeholder{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		width:   width,
		height:  height,
	}
}

func (p *Placeholder) Name() string { return ProviderFree }

// Seed is the first 8 hex characters of sha1(prompt).
func Seed(prompt string) string {
	sum := sha1.Sum([]byte(prompt))
	return hex.EncodeToString(sum[:])[:8]
}

// URL returns the image address for prompt.
func (p *Placeholder) URL(prompt string) string {
	return fmt.Sprintf("%s/seed/%s/%d/%d", p.baseURL, Seed(prompt), p.width, p.height)
}

func (p *Placeholder) Generate(ctx context.Context, req Request) ([][]byte, error) {
	img, err := p.client.Get(ctx, p.URL(req.Prompt))
	if err != nil {
		return nil, err
	}
	if len(img) == 0 {
		return nil, ErrNoImages
	}
	return [][]byte{img}, nil
}
