package envelope

import (
	"math"
	"strconv"
	"strings"
)

// MaxSampleCount caps how many images one request may ask for.
const MaxSampleCount = 4

// Params returns the generation parameters that take part in cache fingerprints.
// Bodies without a parameters object yield an empty map.
func Params(raw any) map[string]any {
	obj, ok := raw.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	p, ok := obj["parameters"].(map[string]any)
	if !ok {
		return map[string]any{}
	}

	count := p["sampleCount"]
	if count == nil {
		count = p["samples"]
	}
	if count == nil {
		count = 1
	}
	return map[string]any{
		"sampleCount": count,
		"aspectRatio": p["aspectRatio"],
	}
}

// SampleCount reads sampleCount from params, clamped to [1, MaxSampleCount].
func SampleCount(params map[string]any) int {
	n := 1
	switch v := params["sampleCount"].(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			n = int(v)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			n = i
		}
	}
	return min(max(n, 1), MaxSampleCount)
}

// AspectRatio reads aspectRatio from params.
func AspectRatio(params map[string]any) string {
	s, _ := params["aspectRatio"].(string)
	return s
}

// SystemInstruction reads the system prompt of a chat-shaped body.
func SystemInstruction(raw any) string {
	obj, ok := raw.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"systemInstruction", "system_instruction"} {
		si, ok := obj[key].(map[string]any)
		if !ok {
			continue
		}
		if parts, ok := si["parts"].([]any); ok && len(parts) > 0 {
			if p, ok := fromObject(parts[0]); ok {
				return strings.TrimSpace(p)
			}
		}
	}
	if s, ok := obj["system"].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
