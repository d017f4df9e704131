//go:build llama

package llamacpp

// cgo link directives for the in-process llama.cpp runtime.
// - rpath $ORIGIN lets the loader find libllama.so and libggml*.so next to the binary.
// - -L${SRCDIR}/../../../bin finds libllama.so at link time.

/*
#cgo CFLAGS: -I${SRCDIR}/../../../third_party/llama.cpp/include -I${SRCDIR}/../../../third_party/llama.cpp/ggml/include
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../../bin -lllama
#include <stdlib.h>
#include <stdbool.h>
#include "llama.h"

static void eb_batch_set(struct llama_batch *b, int i, llama_token id, llama_pos pos, bool logits) {
	b->token[i] = id;
	b->pos[i] = pos;
	b->n_seq_id[i] = 1;
	b->seq_id[i][0] = 0;
	b->logits[i] = logits;
}

static struct llama_sampler *eb_sampler_chain(int32_t last_n, float repeat, float freq, float present, float temp, uint32_t seed) {
	struct llama_sampler_chain_params sp = llama_sampler_chain_default_params();
	struct llama_sampler *chain = llama_sampler_chain_init(sp);
	llama_sampler_chain_add(chain, llama_sampler_init_penalties(last_n, repeat, freq, present));
	llama_sampler_chain_add(chain, llama_sampler_init_temp(temp));
	llama_sampler_chain_add(chain, llama_sampler_init_dist(seed));
	return chain;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/mwiater/edgebench/internal/llm"
)

// Built reports whether this binary links llama.cpp.
const Built = true

var backendOnce sync.Once

// Loader opens GGUF weights through llama.cpp.
type Loader struct{}

// NewLoader returns the llama.cpp loader.
func NewLoader() (Loader, error) {
	backendOnce.Do(func() { C.llama_backend_init() })
	return Loader{}, nil
}

// Runtime owns one llama_model, one llama_context, one batch and one sampler chain.
type Runtime struct {
	model   *C.struct_llama_model
	ctx     *C.struct_llama_context
	vocab   *C.struct_llama_vocab
	sampler *C.struct_llama_sampler
	batch   C.struct_llama_batch
	nBatch  int
	nCtx    int
}

// Load implements llm.Loader.
func (Loader) Load(modelPath string, params llm.Params) (llm.Runtime, error) {
	cpath := C.CString(modelPath)
	defer C.free(unsafe.Pointer(cpath))

	mparams := C.llama_model_default_params()
	model := C.llama_model_load_from_file(cpath, mparams)
	if model == nil {
		return nil, errors.New("llama_model_load_from_file returned null")
	}

	cparams := C.llama_context_default_params()
	cparams.n_ctx = C.uint32_t(params.ContextSize)
	cparams.n_batch = C.uint32_t(params.BatchSize)
	cparams.n_threads = C.int32_t(params.Threads)
	cparams.n_threads_batch = C.int32_t(params.Threads)
	ctx := C.llama_init_from_model(model, cparams)
	if ctx == nil {
		C.llama_model_free(model)
		return nil, errors.New("llama_init_from_model returned null")
	}

	seed := C.uint32_t(params.Sampler.Seed)
	if params.Sampler.Seed == 0 {
		seed = C.LLAMA_DEFAULT_SEED
	}
	sp := params.Sampler
	chain := C.eb_sampler_chain(C.int32_t(sp.RepeatLastN), C.float(sp.RepeatPenalty),
		C.float(sp.FrequencyPenalty), C.float(sp.PresencePenalty), C.float(sp.Temperature), seed)

	return &Runtime{
		model:   model,
		ctx:     ctx,
		vocab:   C.llama_model_get_vocab(model),
		sampler: chain,
		batch:   C.llama_batch_init(C.int32_t(params.BatchSize), 0, 1),
		nBatch:  params.BatchSize,
		nCtx:    int(C.llama_n_ctx(ctx)),
	}, nil
}

// ContextSize implements llm.Runtime.
func (r *Runtime) ContextSize() int { return r.nCtx }

// Tokenize implements llm.Runtime.
func (r *Runtime) Tokenize(text string, addBOS, parseSpecial bool) ([]llm.Token, error) {
	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	capacity := len(text) + 2
	buf := make([]C.llama_token, capacity)
	n := C.llama_tokenize(r.vocab, ctext, C.int32_t(len(text)), &buf[0], C.int32_t(capacity), C.bool(addBOS), C.bool(parseSpecial))
	if n < 0 {
		// A negative result is the required buffer size.
		capacity = int(-n)
		buf = make([]C.llama_token, capacity)
		n = C.llama_tokenize(r.vocab, ctext, C.int32_t(len(text)), &buf[0], C.int32_t(capacity), C.bool(addBOS), C.bool(parseSpecial))
		if n < 0 {
			return nil, errors.New("llama_tokenize failed")
		}
	}
	out := make([]llm.Token, int(n))
	for i := range out {
		out[i] = llm.Token(buf[i])
	}
	return out, nil
}

// Decode implements llm.Runtime.
func (r *Runtime) Decode(b *llm.Batch) error {
	if b.Len() > r.nBatch {
		return llm.ErrBatchFull
	}
	for i := range b.Tokens {
		C.eb_batch_set(&r.batch, C.int(i), C.llama_token(b.Tokens[i]), C.llama_pos(b.Pos[i]), C.bool(b.Logits[i]))
	}
	r.batch.n_tokens = C.int32_t(b.Len())
	if rc := C.llama_decode(r.ctx, r.batch); rc != 0 {
		return fmt.Errorf("llama_decode returned %d", int(rc))
	}
	return nil
}

// Sample implements llm.Runtime. llama_sampler_sample also accepts the token.
func (r *Runtime) Sample() llm.Token {
	return llm.Token(C.llama_sampler_sample(r.sampler, r.ctx, -1))
}

// IsEndOfGeneration implements llm.Runtime.
func (r *Runtime) IsEndOfGeneration(tok llm.Token) bool {
	return bool(C.llama_vocab_is_eog(r.vocab, C.llama_token(tok)))
}

// TokenPiece implements llm.Runtime.
func (r *Runtime) TokenPiece(tok llm.Token) []byte {
	buf := make([]byte, 16)
	n := C.llama_token_to_piece(r.vocab, C.llama_token(tok), (*C.char)(unsafe.Pointer(&buf[0])), C.int32_t(len(buf)), 0, false)
	if n < 0 {
		buf = make([]byte, int(-n))
		n = C.llama_token_to_piece(r.vocab, C.llama_token(tok), (*C.char)(unsafe.Pointer(&buf[0])), C.int32_t(len(buf)), 0, false)
	}
	if n <= 0 {
		return nil
	}
	return buf[:int(n)]
}

// ClearMemory implements llm.Runtime. The sampler chain is reset too, so the
// penalty window and the dist RNG start over with the next prompt.
func (r *Runtime) ClearMemory() {
	C.llama_memory_clear(C.llama_get_memory(r.ctx), true)
	C.llama_sampler_reset(r.sampler)
}

// Timings implements llm.Runtime.
func (r *Runtime) Timings() llm.Timings {
	pc := C.llama_perf_context(r.ctx)
	ps := C.llama_perf_sampler(r.sampler)
	return llm.Timings{
		StartMs:      float64(pc.t_start_ms),
		EndMs:        float64(C.llama_time_us()) / 1e3,
		LoadMs:       float64(pc.t_load_ms),
		PromptEvalMs: float64(pc.t_p_eval_ms),
		EvalMs:       float64(pc.t_eval_ms),
		PromptEvalN:  int(pc.n_p_eval),
		EvalN:        int(pc.n_eval),
		ReusedN:      int(pc.n_reused),
		SampleMs:     float64(ps.t_sample_ms),
		SampleN:      int(ps.n_sample),
	}
}

// Close implements llm.Runtime.
func (r *Runtime) Close() error {
	if r.ctx == nil {
		return nil
	}
	C.llama_batch_free(r.batch)
	C.llama_sampler_free(r.sampler)
	C.llama_free(r.ctx)
	C.llama_model_free(r.model)
	r.ctx, r.model, r.sampler, r.vocab = nil, nil, nil, nil
	return nil
}
