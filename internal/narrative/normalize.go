package narrative

import (
	"encoding/json"
	"fmt"
	"strings"

	"storygate/internal/envelope"
)

const (
	imagePromptSuffix = " -- photorealistic cinematic"
	maxImagePrompt    = 180
	maxSyntheticField = 160
)

// Narrative is the canonical record returned to clients.
type Narrative struct {
	Narrative    string `json:"narrative"`
	ImagePrompt  string `json:"image_prompt"`
	SummaryPoint string `json:"summary_point"`
}

// Normalize coerces arbitrary model output into a Narrative. It never fails.
//
// In order it tries: a fenced code block, the outermost {...} span, the whole
// text as JSON, and finally the text itself as the narrative. An empty
// candidate is replaced by a synthesized narrative for the prompt in env.
func Normalize(raw string, env any) Narrative {
	text := stripFence(strings.TrimSpace(raw))
	if text == "" {
		return Synthetic(envelope.Extract(env), DefaultParagraphs)
	}

	obj, ok := embeddedObject(text)
	if !ok {
		obj, ok = wholeObject(text)
	}

	var n Narrative
	if ok {
		n.Narrative = field(obj, "narrative", "text")
		n.ImagePrompt = field(obj, "image_prompt")
		n.SummaryPoint = field(obj, "summary_point", "summary")
	} else {
		n.Narrative = text
	}

	if strings.TrimSpace(n.ImagePrompt) == "" {
		n.ImagePrompt = imagePromptFrom(n.Narrative, env)
	}
	return n
}

// DefaultParagraphs is the body length of synthesized narratives.
const DefaultParagraphs = 4

// Synthetic returns the deterministic narrative used when no model output is available.
func Synthetic(prompt string, paragraphs int) Narrative {
	text := Synthesize(prompt, paragraphs)
	first, _, _ := strings.Cut(text, "\n")
	return Narrative{
		Narrative:    text,
		ImagePrompt:  envelope.Truncate(strings.TrimSpace(prompt), maxSyntheticField) + imagePromptSuffix,
		SummaryPoint: envelope.Truncate(first, maxSyntheticField),
	}
}

// stripFence removes a leading ``` line and a trailing ``` marker.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if _, rest, ok := strings.Cut(s, "\n"); ok {
		s = rest
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func embeddedObject(s string) (map[string]any, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	return wholeObject(s[start : end+1])
}

func wholeObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// field returns the first present key of obj rendered as a string.
func field(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || v == nil {
			continue
		}
		switch s := v.(type) {
		case string:
			return s
		case float64, bool:
			return fmt.Sprint(s)
		default:
			b, err := json.Marshal(s)
			if err != nil {
				return fmt.Sprint(s)
			}
			return string(b)
		}
	}
	return ""
}

// imagePromptFrom uses the first sentence of the narrative, or the envelope
// itself when the narrative is empty.
func imagePromptFrom(narrative string, env any) string {
	short := strings.TrimSpace(narrative)
	if short != "" {
		short, _, _ = strings.Cut(short, "\n")
		short, _, _ = strings.Cut(short, ". ")
	} else {
		short = envelope.Stringify(env)
	}
	return envelope.Truncate(strings.TrimSpace(short), maxImagePrompt) + imagePromptSuffix
}
