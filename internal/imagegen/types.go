package imagegen

import (
	"context"
	"errors"
)

// Provider ids.
const (
	ProviderFree      = "free"
	ProviderAlternate = "alternate"
	ProviderStability = "stability"
	ProviderLocal     = "local"
	ProviderGoogle    = "google"

	// providerStatic marks the configured fallback image; it is never cached.
	providerStatic = "static"
)

// ErrNoImages is returned when a provider answered without any image.
var ErrNoImages = errors.New("imagegen: provider returned no images")

// Request is the provider-neutral image request.
type Request struct {
	Prompt      string
	Envelope    any // original body, forwarded by providers that accept it
	SampleCount int
	AspectRatio string
}

// Provider is one upstream image backend.
type Provider interface {
	Name() string
	// Generate returns image bytes in provider order.
	Generate(ctx context.Context, req Request) ([][]byte, error)
}
