// internal/llm/runtime.go
// Package llm drives a local language model through a prefill then generate protocol.
//
// A Runtime is the native boundary: one loaded model plus one decoding context.
// Session layers context-window policy, UTF-8 assembly and stop-marker detection
// on top of it and is the only type the benchmark talks to.
package llm

import "errors"

// Token is a vocabulary id.
type Token int32

// ErrBatchFull is returned by Batch.Add when the batch is at capacity.
var ErrBatchFull = errors.New("batch is full")

// Batch is a reusable decode submission. Tokens, Pos and Logits are parallel.
type Batch struct {
	Tokens []Token
	Pos    []int
	// Logits marks the entries whose output distribution must be kept for sampling.
	Logits   []bool
	capacity int
}

// NewBatch allocates a batch that holds at most capacity tokens.
func NewBatch(capacity int) *Batch {
	if capacity <= 0 {
		capacity = 1
	}
	return &Batch{
		Tokens:   make([]Token, 0, capacity),
		Pos:      make([]int, 0, capacity),
		Logits:   make([]bool, 0, capacity),
		capacity: capacity,
	}
}

// Add appends one token at the given position.
func (b *Batch) Add(tok Token, pos int, logits bool) error {
	if len(b.Tokens) >= b.capacity {
		return ErrBatchFull
	}
	b.Tokens = append(b.Tokens, tok)
	b.Pos = append(b.Pos, pos)
	b.Logits = append(b.Logits, logits)
	return nil
}

// Clear empties the batch without releasing its storage.
func (b *Batch) Clear() {
	b.Tokens = b.Tokens[:0]
	b.Pos = b.Pos[:0]
	b.Logits = b.Logits[:0]
}

// Len returns the number of queued tokens.
func (b *Batch) Len() int { return len(b.Tokens) }

// Cap returns the batch capacity.
func (b *Batch) Cap() int { return b.capacity }

// SamplerParams configures the sampling pipeline. Stages always run in the order
// repetition penalty, temperature, categorical draw.
type SamplerParams struct {
	RepeatLastN      int     `json:"repeatLastN" mapstructure:"repeatLastN"`
	RepeatPenalty    float32 `json:"repeatPenalty" mapstructure:"repeatPenalty"`
	FrequencyPenalty float32 `json:"frequencyPenalty" mapstructure:"frequencyPenalty"`
	PresencePenalty  float32 `json:"presencePenalty" mapstructure:"presencePenalty"`
	Temperature      float32 `json:"temperature" mapstructure:"temperature"`
	// Seed 0 picks a random seed.
	Seed uint32 `json:"seed" mapstructure:"seed"`
}

// Params are handed to a Loader when a model is opened.
type Params struct {
	ContextSize int
	BatchSize   int
	Threads     int
	Sampler     SamplerParams
}

// Timings is a snapshot of the runtime's cumulative performance counters.
// Times are milliseconds; t_start_ms and t_end_ms are absolute.
type Timings struct {
	StartMs      float64 `json:"t_start_ms"`
	EndMs        float64 `json:"t_end_ms"`
	LoadMs       float64 `json:"t_load_ms"`
	PromptEvalMs float64 `json:"t_p_eval_ms"`
	EvalMs       float64 `json:"t_eval_ms"`
	PromptEvalN  int     `json:"n_p_eval"`
	EvalN        int     `json:"n_eval"`
	ReusedN      int     `json:"n_reused"`
	SampleMs     float64 `json:"t_sample_ms"`
	SampleN      int     `json:"n_sample"`
}

// Runtime is one loaded model with one decoding context.
type Runtime interface {
	// ContextSize is the context ceiling the runtime actually allocated.
	ContextSize() int
	Tokenize(text string, addBOS, parseSpecial bool) ([]Token, error)
	Decode(batch *Batch) error
	// Sample draws the next token from the most recent logits and records it
	// in the sampler history.
	Sample() Token
	IsEndOfGeneration(tok Token) bool
	// TokenPiece returns the raw bytes for a token. The bytes may be a partial
	// UTF-8 sequence.
	TokenPiece(tok Token) []byte
	// ClearMemory drops the key/value memory of every sequence.
	ClearMemory()
	Timings() Timings
	Close() error
}

// Loader opens runtimes from weights files.
type Loader interface {
	Load(modelPath string, params Params) (Runtime, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(modelPath string, params Params) (Runtime, error)

// Load calls f.
func (f LoaderFunc) Load(modelPath string, params Params) (Runtime, error) {
	return f(modelPath, params)
}
