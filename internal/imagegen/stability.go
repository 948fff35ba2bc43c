package imagegen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"storygate/internal/upstream"
)

// Stability calls the Stability text-to-image REST API.
type Stability struct {
	client   *upstream.Client
	baseURL  string
	engine   string
	apiKey   string
	cfgScale float64
	width    int
	height   int
}

type StabilityOptions struct {
	BaseURL  string
	Engine   string
	APIKey   string
	CFGScale float64
	Width    int
	Height   int
}

func NewStability(client *upstream.Client, opts StabilityOptions) *Stability {
	return &Stability{
		client:   client,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		engine:   opts.Engine,
		apiKey:   opts.APIKey,
		cfgScale: opts.CFGScale,
		width:    opts.Width,
		height:   opts.Height,
	}
}

func (s *Stability) Name() string { return ProviderStability }

type stabilityPrompt struct {
	Text string `json:"text"`
}

type stabilityRequest struct {
	TextPrompts []stabilityPrompt `json:"text_prompts"`
	CFGScale    float64           `json:"cfg_scale"`
	Height      int               `json:"height"`
	Width       int               `json:"width"`
	Samples     int               `json:"samples"`
}

func (s *Stability) Generate(ctx context.Context, req Request) ([][]byte, error) {
	body := stabilityRequest{
		TextPrompts: []stabilityPrompt{{Text: req.Prompt}},
		CFGScale:    s.cfgScale,
		Height:      s.height,
		Width:       s.width,
		Samples:     max(req.SampleCount, 1),
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+s.apiKey)

	endpoint := s.baseURL + "/v1/generation/" + url.PathEscape(s.engine) + "/text-to-image"
	var raw json.RawMessage
	if err := s.client.PostJSON(ctx, endpoint, h, body, &raw); err != nil {
		return nil, err
	}
	return decodeImages(raw, "artifacts", "images", "data")
}
