// Package toy provides a deterministic byte-level language model that runs
// without native libraries. It exercises the full session protocol and is used
// for dry runs and tests; its output is not meant to be meaningful text.
package toy

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"time"

	"github.com/mwiater/edgebench/internal/llm"
)

const (
	// BOS and EOS follow the 256 byte tokens.
	BOS       llm.Token = 256
	EOS       llm.Token = 257
	vocabSize           = 258
)

// alphabet is the set of bytes the model will ever emit.
const alphabet = "abcdefghijklmnopqrstuvwxyz .,"

// Loader opens toy runtimes. The weights file must exist; its base name seeds
// the model so different files give different outputs.
type Loader struct {
	// EOSAfter biases generation towards EOS after this many tokens. Zero uses 24.
	EOSAfter int
}

// Load implements llm.Loader.
func (l Loader) Load(modelPath string, params llm.Params) (llm.Runtime, error) {
	start := time.Now()
	info, err := os.Stat(modelPath)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", modelPath)
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(filepath.Base(modelPath)))

	sp := params.Sampler
	if sp.Seed == 0 {
		sp.Seed = uint32(h.Sum64())
	}
	eosAfter := l.EOSAfter
	if eosAfter <= 0 {
		eosAfter = 24
	}
	ctx := params.ContextSize
	if ctx <= 0 {
		ctx = 2048
	}
	r := &Runtime{
		seed:     h.Sum64(),
		ctx:      ctx,
		sampler:  llm.NewSampler(sp),
		eosAfter: eosAfter,
		startMs:  nowMs(),
	}
	r.loadMs = float64(time.Since(start).Microseconds()) / 1e3
	return r, nil
}

// Runtime is a loaded toy model. It is not safe for concurrent use.
type Runtime struct {
	seed     uint64
	ctx      int
	sampler  *llm.Sampler
	eosAfter int

	memory    []llm.Token
	logits    []float32
	generated int
	// sampled is set by the first Sample after a clear; later decodes are eval.
	sampled bool
	closed  bool

	startMs  float64
	loadMs   float64
	pEvalMs  float64
	evalMs   float64
	pEvalN   int
	evalN    int
	sampleMs float64
	sampleN  int
}

// ContextSize implements llm.Runtime.
func (r *Runtime) ContextSize() int { return r.ctx }

// Tokenize maps every byte to its own token.
func (r *Runtime) Tokenize(text string, addBOS, _ bool) ([]llm.Token, error) {
	out := make([]llm.Token, 0, len(text)+1)
	if addBOS {
		out = append(out, BOS)
	}
	for i := 0; i < len(text); i++ {
		out = append(out, llm.Token(text[i]))
	}
	return out, nil
}

// Decode appends the batch to memory and keeps logits for flagged entries.
func (r *Runtime) Decode(b *llm.Batch) error {
	if r.closed {
		return errors.New("runtime closed")
	}
	start := time.Now()
	for i, tok := range b.Tokens {
		if b.Pos[i] != len(r.memory) {
			return fmt.Errorf("position %d does not follow memory length %d", b.Pos[i], len(r.memory))
		}
		if len(r.memory) >= r.ctx {
			return fmt.Errorf("context full at %d tokens", r.ctx)
		}
		r.memory = append(r.memory, tok)
		if b.Logits[i] {
			r.logits = r.forward(tok)
		}
	}
	elapsed := float64(time.Since(start).Microseconds()) / 1e3
	if !r.sampled {
		r.pEvalMs += elapsed
		r.pEvalN += b.Len()
	} else {
		r.evalMs += elapsed
		r.evalN += b.Len()
	}
	return nil
}

// forward derives logits from the previous token and the seed. EOS grows more
// likely with every generated token.
func (r *Runtime) forward(prev llm.Token) []float32 {
	logits := make([]float32, vocabSize)
	for i := range logits {
		logits[i] = -1e9
	}
	for i := 0; i < len(alphabet); i++ {
		c := alphabet[i]
		logits[c] = weight(r.seed, prev, llm.Token(c))
	}
	logits[EOS] = -4 + 8*float32(r.generated)/float32(r.eosAfter)
	return logits
}

// weight maps (seed, prev, next) to a pseudo-random value in [-2, 2).
func weight(seed uint64, prev, next llm.Token) float32 {
	x := seed ^ uint64(prev)*0x9E3779B97F4A7C15 ^ uint64(next)*0xBF58476D1CE4E5B9
	x ^= x >> 31
	x *= 0x94D049BB133111EB
	x ^= x >> 29
	return float32(x%4096)/1024 - 2
}

// Sample implements llm.Runtime.
func (r *Runtime) Sample() llm.Token {
	start := time.Now()
	if r.logits == nil {
		return EOS
	}
	tok := r.sampler.Sample(r.logits)
	r.sampled = true
	r.generated++
	r.sampleN++
	r.sampleMs += float64(time.Since(start).Microseconds()) / 1e3
	return tok
}

// IsEndOfGeneration implements llm.Runtime.
func (r *Runtime) IsEndOfGeneration(tok llm.Token) bool { return tok == EOS }

// TokenPiece implements llm.Runtime.
func (r *Runtime) TokenPiece(tok llm.Token) []byte {
	if tok < 0 || tok > 255 {
		return nil
	}
	return []byte{byte(tok)}
}

// ClearMemory implements llm.Runtime.
func (r *Runtime) ClearMemory() {
	r.memory = r.memory[:0]
	r.logits = nil
	r.generated = 0
	r.sampled = false
	r.sampler.Reset()
}

// Timings implements llm.Runtime.
func (r *Runtime) Timings() llm.Timings {
	return llm.Timings{
		StartMs:      r.startMs,
		EndMs:        nowMs(),
		LoadMs:       r.loadMs,
		PromptEvalMs: r.pEvalMs,
		EvalMs:       r.evalMs,
		PromptEvalN:  r.pEvalN,
		EvalN:        r.evalN,
		SampleMs:     r.sampleMs,
		SampleN:      r.sampleN,
	}
}

// Close implements llm.Runtime.
func (r *Runtime) Close() error {
	r.closed = true
	r.memory = nil
	r.logits = nil
	return nil
}

func nowMs() float64 {
	return float64(time.Now().UnixMicro()) / 1e3
}
