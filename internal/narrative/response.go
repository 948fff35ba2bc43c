package narrative

import "encoding/json"

// Part, Content and Candidate mirror the candidate layout clients already parse.
type Part struct {
	Text string `json:"text"`
}

type Content struct {
	Parts []Part `json:"parts"`
}

type Candidate struct {
	Content Content `json:"content"`
}

// Response is the body of a narrative generation response.
type Response struct {
	Candidates          []Candidate `json:"candidates"`
	NormalizedCandidate Narrative   `json:"normalized_candidate"`
	UsedRealLLM         bool        `json:"used_real_llm"`
	Provider            string      `json:"provider,omitempty"`
}

// NewResponse wraps n so that candidates[0].content.parts[0].text holds n as JSON.
func NewResponse(n Narrative, usedRealLLM bool, provider string) Response {
	text, err := json.Marshal(n)
	if err != nil {
		// Narrative holds only strings; Marshal cannot fail.
		text = []byte("{}")
	}
	return Response{
		Candidates: []Candidate{
			{Content: Content{Parts: []Part{{Text: string(text)}}}},
		},
		NormalizedCandidate: n,
		UsedRealLLM:         usedRealLLM,
		Provider:            provider,
	}
}
