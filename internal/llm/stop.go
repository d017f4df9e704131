package llm

import "strings"

// StopPolicy lists the literal markers that end generation.
//
// Suffix markers are protocol end tokens and only count when the output ends
// with them. Contains markers guard against a model inventing a new turn and
// count anywhere in the output.
type StopPolicy struct {
	Suffix   []string `json:"suffix" mapstructure:"suffix"`
	Contains []string `json:"contains" mapstructure:"contains"`
}

// DefaultStopPolicy returns the markers used by the catalog's chat templates.
func DefaultStopPolicy() StopPolicy {
	return StopPolicy{
		Suffix:   []string{"<|end|>", "<|im_end|>", "</s>", "<end_of_turn>"},
		Contains: []string{"<|user|>", "<|system|>", "User:", "Question:", "<|end_of_document|>"},
	}
}

// Match returns the byte offset where the earliest matching marker begins.
func (p StopPolicy) Match(text string) (int, bool) {
	for _, m := range p.Suffix {
		if m != "" && strings.HasSuffix(text, m) {
			return len(text) - len(m), true
		}
	}
	best := -1
	for _, m := range p.Contains {
		if m == "" {
			continue
		}
		if i := strings.Index(text, m); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best, best >= 0
}

// partialTail returns the length of the longest suffix of text that is a
// proper prefix of some marker. Those bytes may still turn into a stop.
func (p StopPolicy) partialTail(text string) int {
	n := 0
	check := func(markers []string) {
		for _, m := range markers {
			for k := min(len(m)-1, len(text)); k > n; k-- {
				if strings.HasSuffix(text, m[:k]) {
					n = k
					break
				}
			}
		}
	}
	check(p.Suffix)
	check(p.Contains)
	return n
}
