// internal/catalog/catalog.go
// Package catalog holds the closed set of benchmarkable models and datasets.
package catalog

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Family identifies the chat-markup skeleton a model expects.
type Family string

const (
	// FamilyPlainInstruct is the "Instruct:/Output:" layout used by phi-2.
	FamilyPlainInstruct Family = "plain-instruct"
	// FamilyTurnMarkupA is the Gemma <start_of_turn>/<end_of_turn> layout.
	FamilyTurnMarkupA Family = "turn-markup-A"
	// FamilyTurnMarkupB is the ChatML <|im_start|>/<|im_end|> layout.
	FamilyTurnMarkupB Family = "turn-markup-B"
	// FamilyTurnMarkupC is the Zephyr <|system|>/<|user|>/<|assistant|> layout.
	FamilyTurnMarkupC Family = "turn-markup-C"
)

// ParseSpecial reports whether prompts for this family carry control tokens
// that the tokenizer must map to their special ids instead of plain text.
func (f Family) ParseSpecial() bool {
	return f == FamilyTurnMarkupA || f == FamilyTurnMarkupB
}

// Category groups datasets by the kind of answer they expect.
type Category string

const (
	CategorySingleTurnQA    Category = "single-turn-qa"
	CategoryContextQA       Category = "context-qa"
	CategoryStructuredQuery Category = "structured-query"
	CategorySummarization   Category = "summarization"
	CategoryVisualQA        Category = "visual-qa"
)

// ModelExtension is appended to a model ID to find its weights file.
const ModelExtension = ".gguf"

// ModelDescriptor describes one quantized model build.
type ModelDescriptor struct {
	ID           string `json:"id"`
	Family       Family `json:"family"`
	Quantization string `json:"quantization"`
	// Queued models take part in the automatic work queue.
	Queued bool `json:"queued"`
}

// WeightsPath returns the expected weights file for the model under dir.
func (m ModelDescriptor) WeightsPath(dir string) string {
	return filepath.Join(dir, m.ID+ModelExtension)
}

// DatasetDescriptor describes one evaluation dataset.
type DatasetDescriptor struct {
	ID       string   `json:"id"`
	Category Category `json:"category"`
	Queued   bool     `json:"queued"`
}

// Multimodal reports whether the dataset needs image input.
func (d DatasetDescriptor) Multimodal() bool {
	return d.Category == CategoryVisualQA
}

// Models is ordered: the work queue scans it front to back.
var Models = []ModelDescriptor{
	{ID: "gemma-3-4b-it-q3_k_m", Family: FamilyTurnMarkupA, Quantization: "Q3_K_M", Queued: true},
	{ID: "gemma-3-4b-it-q3_k_s", Family: FamilyTurnMarkupA, Quantization: "Q3_K_S", Queued: true},
	{ID: "gemma-3-4b-it-q4_k_m", Family: FamilyTurnMarkupA, Quantization: "Q4_K_M", Queued: true},
	{ID: "gemma-3-4b-it-q4_k_s", Family: FamilyTurnMarkupA, Quantization: "Q4_K_S", Queued: true},
	{ID: "gemma-3-4b-it-q5_k_s", Family: FamilyTurnMarkupA, Quantization: "Q5_K_S", Queued: true},
	{ID: "gemma-3-4b-it-q5_k_m", Family: FamilyTurnMarkupA, Quantization: "Q5_K_M", Queued: true},
	{ID: "qwen3-4b-instruct-2507-q3_k_m", Family: FamilyTurnMarkupB, Quantization: "Q3_K_M", Queued: true},
	{ID: "qwen3-4b-instruct-2507-q3_k_s", Family: FamilyTurnMarkupB, Quantization: "Q3_K_S", Queued: true},
	{ID: "qwen3-4b-instruct-2507-q4_k_m", Family: FamilyTurnMarkupB, Quantization: "Q4_K_M", Queued: true},
	{ID: "qwen3-4b-instruct-2507-q4_k_s", Family: FamilyTurnMarkupB, Quantization: "Q4_K_S", Queued: true},
	{ID: "qwen3-4b-instruct-2507-q5_k_s", Family: FamilyTurnMarkupB, Quantization: "Q5_K_S", Queued: true},
	{ID: "qwen3-4b-instruct-2507-q5_k_m", Family: FamilyTurnMarkupB, Quantization: "Q5_K_M", Queued: true},
	{ID: "phi-2_Q4_K_M", Family: FamilyPlainInstruct, Quantization: "Q4_K_M", Queued: true},
	{ID: "gemma-2b-it_Q4_K_M", Family: FamilyTurnMarkupA, Quantization: "Q4_K_M", Queued: true},
	{ID: "tinyllama-1.1b-chat_Q4_K_M", Family: FamilyTurnMarkupC, Quantization: "Q4_K_M"},
	{ID: "stablelm-zephyr-3b_Q4_K_M", Family: FamilyTurnMarkupC, Quantization: "Q4_K_M"},
}

// Datasets is ordered the same way the queue visits them.
var Datasets = []DatasetDescriptor{
	{ID: "hotpot_qa", Category: CategoryContextQA, Queued: true},
	{ID: "sql_create_context", Category: CategoryStructuredQuery, Queued: true},
	{ID: "edinburgh_xsum", Category: CategorySummarization, Queued: true},
	{ID: "databricks_dolly", Category: CategorySingleTurnQA, Queued: true},
	{ID: "vqav2", Category: CategoryVisualQA},
	{ID: "scienceqa", Category: CategoryVisualQA},
}

// LookupModel finds a model by ID. Matching ignores case.
func LookupModel(id string) (ModelDescriptor, error) {
	for _, m := range Models {
		if strings.EqualFold(m.ID, strings.TrimSpace(id)) {
			return m, nil
		}
	}
	return ModelDescriptor{}, fmt.Errorf("unknown model %q", id)
}

// LookupDataset finds a dataset by ID.
func LookupDataset(id string) (DatasetDescriptor, error) {
	for _, d := range Datasets {
		if strings.EqualFold(d.ID, strings.TrimSpace(id)) {
			return d, nil
		}
	}
	return DatasetDescriptor{}, fmt.Errorf("unknown dataset %q", id)
}

// QueuedModels returns the models that take part in the work queue, in order.
func QueuedModels() []ModelDescriptor {
	var out []ModelDescriptor
	for _, m := range Models {
		if m.Queued {
			out = append(out, m)
		}
	}
	return out
}

// QueuedDatasets returns the datasets that take part in the work queue, in order.
func QueuedDatasets() []DatasetDescriptor {
	var out []DatasetDescriptor
	for _, d := range Datasets {
		if d.Queued {
			out = append(out, d)
		}
	}
	return out
}
