// internal/accuracy/accuracy.go
// Package accuracy scores generated answers against gold answers.
package accuracy

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/mwiater/edgebench/internal/catalog"
)

var (
	thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)
	// leftover chat markup such as <|im_start|>, <start_of_turn> or </s>
	markupToken = regexp.MustCompile(`<\|?/?[A-Za-z_]+\|?>`)
	articles    = map[string]bool{"a": true, "an": true, "the": true}
)

// MetricNames returns the labels of Metric1 and Metric2 for a category.
func MetricNames(category catalog.Category) (string, string) {
	switch category {
	case catalog.CategoryStructuredQuery:
		return "sql_exact_match", "sql_token_f1"
	case catalog.CategorySummarization:
		return "rouge1_f", "rougeL_f"
	default:
		return "exact_match", "token_f1"
	}
}

// Score compares predicted with gold for the given category. It never panics;
// an empty prediction scores zero on both metrics.
func Score(category catalog.Category, predicted, gold string) Scores {
	predicted = normalizeResponse(predicted)
	if predicted == "" || strings.TrimSpace(gold) == "" {
		return Scores{}
	}

	switch category {
	case catalog.CategoryStructuredQuery:
		p, g := canonicalSQL(predicted), canonicalSQL(gold)
		return Scores{
			Metric1: boolScore(p != "" && p == g),
			Metric2: f1(sqlTokens(p), sqlTokens(g)),
		}
	case catalog.CategorySummarization:
		p, g := words(predicted), words(gold)
		return Scores{
			Metric1: f1(p, g),
			Metric2: rougeL(p, g),
		}
	default:
		p, g := answerTokens(predicted), answerTokens(gold)
		return Scores{
			Metric1: boolScore(len(p) > 0 && strings.Join(p, " ") == strings.Join(g, " ")),
			Metric2: f1(p, g),
		}
	}
}

// normalizeResponse strips reasoning blocks and chat markup a model may leak.
func normalizeResponse(response string) string {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return trimmed
	}
	// Keep text around <think> blocks; some models answer before reasoning.
	trimmed = thinkBlock.ReplaceAllString(trimmed, "")
	if i := strings.Index(trimmed, "<think>"); i >= 0 {
		trimmed = trimmed[:i]
	}
	trimmed = markupToken.ReplaceAllString(trimmed, " ")
	return strings.Join(strings.Fields(trimmed), " ")
}

// words lowercases text and splits it on anything that is not a letter or digit.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// answerTokens is words without articles, the usual normalization for short answers.
func answerTokens(text string) []string {
	all := words(text)
	out := all[:0]
	for _, w := range all {
		if !articles[w] {
			out = append(out, w)
		}
	}
	return out
}

// f1 is the harmonic mean of token precision and recall, counting multiplicity.
func f1(pred, gold []string) float64 {
	if len(pred) == 0 || len(gold) == 0 {
		return 0
	}
	counts := make(map[string]int, len(gold))
	for _, g := range gold {
		counts[g]++
	}
	overlap := 0
	for _, p := range pred {
		if counts[p] > 0 {
			counts[p]--
			overlap++
		}
	}
	if overlap == 0 {
		return 0
	}
	precision := float64(overlap) / float64(len(pred))
	recall := float64(overlap) / float64(len(gold))
	return 2 * precision * recall / (precision + recall)
}

// rougeL is the F-measure over the longest common subsequence of tokens.
func rougeL(pred, gold []string) float64 {
	if len(pred) == 0 || len(gold) == 0 {
		return 0
	}
	lcs := lcsLength(pred, gold)
	if lcs == 0 {
		return 0
	}
	precision := float64(lcs) / float64(len(pred))
	recall := float64(lcs) / float64(len(gold))
	return 2 * precision * recall / (precision + recall)
}

func lcsLength(a, b []string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func boolScore(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}
