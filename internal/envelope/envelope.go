// Package envelope reads prompts and parameters out of loosely shaped
// generation request bodies.
package envelope

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Shape names the variant a raw request body was classified as.
type Shape string

const (
	ShapeInstances    Shape = "instances"
	ShapeInputs       Shape = "inputs"
	ShapePrompt       Shape = "prompt"
	ShapeContents     Shape = "contents"
	ShapeString       Shape = "string"
	ShapeUnrecognized Shape = "unrecognized"
)

// maxFallbackLen bounds the stringified prompt of unrecognized bodies.
const maxFallbackLen = 200

// Envelope is a classified request body.
type Envelope struct {
	Shape  Shape
	Prompt string
	Params map[string]any
	Raw    any
}

// Parse classifies raw into exactly one Shape and extracts its prompt.
// It never fails: unrecognized bodies yield a truncated stringification.
func Parse(raw any) Envelope {
	env := Envelope{Raw: raw, Params: Params(raw)}

	shape, prompt := classify(raw)
	env.Shape = shape
	if shape == ShapeUnrecognized {
		prompt = Truncate(Stringify(raw), maxFallbackLen)
	}
	env.Prompt = strings.TrimSpace(prompt)
	return env
}

// Extract returns the prompt of raw.
func Extract(raw any) string {
	return Parse(raw).Prompt
}

func classify(raw any) (Shape, string) {
	switch v := raw.(type) {
	case string:
		return ShapeString, v
	case map[string]any:
		if p, ok := fromList(v["instances"]); ok {
			return ShapeInstances, p
		}
		if p, ok := fromInputs(v["inputs"]); ok {
			return ShapeInputs, p
		}
		if p, ok := v["prompt"].(string); ok && strings.TrimSpace(p) != "" {
			return ShapePrompt, p
		}
		for _, field := range []string{"contents", "messages"} {
			if p, ok := fromChat(v[field]); ok {
				return ShapeContents, p
			}
		}
	}
	return ShapeUnrecognized, ""
}

// fromList reads prompt|text of the first element of a list of objects.
func fromList(v any) (string, bool) {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return "", false
	}
	return fromObject(items[0])
}

func fromObject(v any) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	for _, key := range []string{"prompt", "text"} {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

// fromInputs accepts a list, an object or a bare string.
func fromInputs(v any) (string, bool) {
	switch in := v.(type) {
	case string:
		return in, strings.TrimSpace(in) != ""
	case map[string]any:
		return fromObject(in)
	case []any:
		if len(in) == 0 {
			return "", false
		}
		if s, ok := in[0].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
		return fromObject(in[0])
	}
	return "", false
}

// fromChat reads contents[0].parts[0].text, falling back to contents[0].text
// and contents[0].content when it is a plain string.
func fromChat(v any) (string, bool) {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return "", false
	}
	first, ok := items[0].(map[string]any)
	if !ok {
		return "", false
	}
	if parts, ok := first["parts"].([]any); ok && len(parts) > 0 {
		if p, ok := fromObject(parts[0]); ok {
			return p, true
		}
	}
	if s, ok := first["text"].(string); ok && strings.TrimSpace(s) != "" {
		return s, true
	}
	if s, ok := first["content"].(string); ok && strings.TrimSpace(s) != "" {
		return s, true
	}
	return "", false
}

// Stringify renders raw for use as a last-resort prompt.
func Stringify(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any:
		if len(v) == 0 {
			return ""
		}
	case []any:
		if len(v) == 0 {
			return ""
		}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Sprint(raw)
	}
	return string(b)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
