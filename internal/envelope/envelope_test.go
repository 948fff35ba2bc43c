package envelope

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestParseShapes(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		shape Shape
		want  string
	}{
		{"instances prompt", `{"instances":[{"prompt":"a red fox"}]}`, ShapeInstances, "a red fox"},
		{"instances text", `{"instances":[{"text":"  a blue fox "}]}`, ShapeInstances, "a blue fox"},
		{"inputs list of strings", `{"inputs":["castle at dawn"]}`, ShapeInputs, "castle at dawn"},
		{"inputs list of objects", `{"inputs":[{"text":"castle at noon"}]}`, ShapeInputs, "castle at noon"},
		{"inputs object", `{"inputs":{"prompt":"castle at dusk"}}`, ShapeInputs, "castle at dusk"},
		{"inputs string", `{"inputs":"castle at night"}`, ShapeInputs, "castle at night"},
		{"top level prompt", `{"prompt":"lighthouse"}`, ShapePrompt, "lighthouse"},
		{"gemini contents", `{"contents":[{"role":"user","parts":[{"text":"tell me a story"}]}]}`, ShapeContents, "tell me a story"},
		{"messages text", `{"messages":[{"text":"story please"}]}`, ShapeContents, "story please"},
		{"messages content", `{"messages":[{"role":"user","content":"openai style"}]}`, ShapeContents, "openai style"},
		{"bare string", `"just words"`, ShapeString, "just words"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := Parse(decode(t, tc.body))
			require.Equal(t, tc.shape, env.Shape)
			require.Equal(t, tc.want, env.Prompt)
		})
	}
}

func TestParsePriority(t *testing.T) {
	body := decode(t, `{
		"prompt": "top",
		"inputs": ["from inputs"],
		"instances": [{"prompt": "from instances"}],
		"contents": [{"parts": [{"text": "from contents"}]}]
	}`)
	require.Equal(t, "from instances", Extract(body))

	delete(body.(map[string]any), "instances")
	require.Equal(t, "from inputs", Extract(body))

	delete(body.(map[string]any), "inputs")
	require.Equal(t, "top", Extract(body))

	delete(body.(map[string]any), "prompt")
	require.Equal(t, "from contents", Extract(body))
}

func TestParseUnrecognizedNeverFails(t *testing.T) {
	bodies := []any{
		nil,
		map[string]any{},
		[]any{},
		42.0,
		map[string]any{"instances": "not a list"},
		map[string]any{"instances": []any{}},
		map[string]any{"instances": []any{"bare"}},
		map[string]any{"contents": []any{map[string]any{"parts": "nope"}}},
		map[string]any{"weird": strings.Repeat("x", 500)},
	}

	for _, b := range bodies {
		env := Parse(b)
		require.Equal(t, ShapeUnrecognized, env.Shape)
		require.LessOrEqual(t, len([]rune(env.Prompt)), maxFallbackLen)
	}

	require.Equal(t, "", Extract(nil))
	require.Equal(t, "", Extract(map[string]any{}))
	require.Equal(t, `{"weird":1}`, Extract(map[string]any{"weird": 1}))
}

func TestParams(t *testing.T) {
	require.Empty(t, Params(decode(t, `{"instances":[{"prompt":"x"}]}`)))

	p := Params(decode(t, `{"parameters":{"samples":2,"other":"ignored"}}`))
	require.Equal(t, map[string]any{"sampleCount": 2.0, "aspectRatio": nil}, p)
	require.Equal(t, 2, SampleCount(p))
	require.Equal(t, "", AspectRatio(p))

	p = Params(decode(t, `{"parameters":{"aspectRatio":"16:9"}}`))
	require.Equal(t, 1, SampleCount(p))
	require.Equal(t, "16:9", AspectRatio(p))

	require.Equal(t, MaxSampleCount, SampleCount(map[string]any{"sampleCount": 99.0}))
	require.Equal(t, 1, SampleCount(map[string]any{"sampleCount": -3}))
	require.Equal(t, 3, SampleCount(map[string]any{"sampleCount": "3"}))
}

func TestSystemInstruction(t *testing.T) {
	body := decode(t, `{"systemInstruction":{"parts":[{"text":" be brief "}]},"contents":[]}`)
	require.Equal(t, "be brief", SystemInstruction(body))
	require.Equal(t, "plain", SystemInstruction(decode(t, `{"system":"plain"}`)))
	require.Equal(t, "", SystemInstruction("text"))
}

func TestTruncateRunes(t *testing.T) {
	require.Equal(t, "héé", Truncate("héééé", 3))
	require.Equal(t, "ab", Truncate("ab", 10))
	require.Equal(t, "", Truncate("ab", 0))
}
