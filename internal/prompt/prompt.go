// internal/prompt/prompt.go
// Package prompt builds the final prompt text fed to a model for one dataset example.
package prompt

import (
	"strings"

	"github.com/mwiater/edgebench/internal/catalog"
)

const (
	contextQASystem = "You are a helpful assistant. Answer only with the final answer, using only the provided context. Do not explain or justify your answer."
	sqlSystem       = "You're a helpful assistant proficient in crafting SQL queries. The following command was used to create the table:"
	summarySystem   = "Summarize the following article: "

	contextSection  = "Context:\n{context}"
	questionSection = "Question:\n{question}"
)

// skeletons are keyed by family. Each contains the context and question sections
// verbatim so summarization can remove them.
var skeletons = map[catalog.Family]string{
	catalog.FamilyPlainInstruct: "{system}\nInstruct: " + contextSection + "\n\n" + questionSection + "\nOutput:",
	catalog.FamilyTurnMarkupA:   "<start_of_turn>user\n{system}\n\n" + contextSection + "\n\n" + questionSection + "<end_of_turn>\n<start_of_turn>model",
	catalog.FamilyTurnMarkupB:   "<|im_start|>system\n{system}<|im_end|>\n<|im_start|>user\n" + contextSection + "\n\n" + questionSection + "<|im_end|>\n<|im_start|>assistant",
	catalog.FamilyTurnMarkupC:   "<|system|>\n{system}</s>\n<|user|>\n" + contextSection + "\n\n" + questionSection + "</s>\n<|assistant|>",
}

// SystemText returns the instruction framing for a dataset category, or "" when the
// category has no text-only framing.
func SystemText(category catalog.Category) string {
	switch category {
	case catalog.CategoryContextQA, catalog.CategorySingleTurnQA:
		return contextQASystem
	case catalog.CategoryStructuredQuery:
		return sqlSystem
	case catalog.CategorySummarization:
		return summarySystem
	default:
		return ""
	}
}

// Resolve substitutes the example into the model family's skeleton. It returns ""
// when the family or dataset category has no template; callers skip such examples.
func Resolve(model catalog.ModelDescriptor, dataset catalog.DatasetDescriptor, question, context string) string {
	skeleton, ok := skeletons[model.Family]
	if !ok {
		return ""
	}
	system := SystemText(dataset.Category)
	if system == "" {
		return ""
	}

	if dataset.Category == catalog.CategorySummarization {
		// The article travels in the system slot; drop the labelled sections.
		skeleton = strings.Replace(skeleton, contextSection+"\n\n", "", 1)
		skeleton = strings.Replace(skeleton, questionSection, "", 1)
		system += question
		question, context = "", ""
	}

	r := strings.NewReplacer("{system}", system, "{context}", context, "{question}", question)
	return r.Replace(skeleton)
}
