package providers

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// suggestionSchema is the JSON shape every generation provider is asked to return.
const suggestionSchema = `{"suggestions":[{"title":"string","description":"string","similarity":"string","mediaType":"movie|tv","rt_url":"string","rt_score":0}]}`

// suggestionInstructions is appended to the system prompt of providers without native structured output.
const suggestionInstructions = "Respond only with JSON matching this shape: " + suggestionSchema

type suggestionList struct {
	Suggestions []json.RawMessage `json:"suggestions"`
}

// wireCandidate is the decoded form of one suggestion before it becomes a [Candidate].
type wireCandidate struct {
	Title       string `json:"title"`
	MediaType   string `json:"mediaType"`
	Description string `json:"description"`
	Similarity  string `json:"similarity"`
	RTURL       string `json:"rt_url"`
	RTScore     score  `json:"rt_score"`
}

// score accepts a number, a numeric string, or a percentage such as "88%". Anything else decodes to no score.
type score struct {
	value *int
}

func (s *score) UnmarshalJSON(data []byte) error {
	s.value = nil
	if string(data) == "null" {
		return nil
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "%")), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}

	n := int(math.Round(f))
	s.value = &n
	return nil
}

// ParseCandidates decodes generated text into candidates.
//
// Accepts {"suggestions": [...]} or a bare array, optionally wrapped in a markdown code fence. Items that fail
// to decode are skipped and counted in malformed; only an undecodable envelope is an error.
func ParseCandidates(text string) (candidates []Candidate, malformed int, err error) {
	text = stripFence(text)
	if text == "" {
		return nil, 0, fmt.Errorf("empty response")
	}

	var items []json.RawMessage
	if strings.HasPrefix(text, "[") {
		if err := json.Unmarshal([]byte(text), &items); err != nil {
			return nil, 0, fmt.Errorf("failed to decode suggestions: %w", err)
		}
	} else {
		var list suggestionList
		if err := json.Unmarshal([]byte(text), &list); err != nil {
			return nil, 0, fmt.Errorf("failed to decode suggestions: %w", err)
		}
		if list.Suggestions == nil {
			return nil, 0, fmt.Errorf("response has no suggestions field")
		}
		items = list.Suggestions
	}

	candidates = make([]Candidate, 0, len(items))
	for _, item := range items {
		var w wireCandidate
		if err := json.Unmarshal(item, &w); err != nil {
			malformed++
			continue
		}
		candidates = append(candidates, Candidate{
			Title:       w.Title,
			MediaType:   w.MediaType,
			Description: w.Description,
			Similarity:  w.Similarity,
			RTURL:       w.RTURL,
			RTScore:     w.RTScore.value,
		})
	}
	return candidates, malformed, nil
}

func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func systemPrompt(base string) string {
	if base == "" {
		return suggestionInstructions
	}
	return base + "\n\n" + suggestionInstructions
}
