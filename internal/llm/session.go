package llm

import (
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"
	"unicode"
)

// Markup describes how a prompt's chat markup must be tokenized.
type Markup interface {
	ParseSpecial() bool
}

// Session owns one Runtime for the length of a benchmark run.
//
// A Session has a single owner. Every method takes the session lock, so even a
// misbehaving second caller is serialized, but callers must not share one.
// Between prompts the owner calls Reset; Prefill refuses to run on a session
// that still holds state from an earlier prompt.
type Session struct {
	mu    sync.Mutex
	rt    Runtime
	cfg   Config
	batch *Batch

	nCtx    int
	nPrompt int
	nLen    int
	nCur    int
	nDecode int

	used bool
	done bool

	asm      utf8Assembler
	text     string
	released int

	loadTime  time.Duration
	closeOnce sync.Once
	closed    bool
	closeErr  error
}

// Open loads modelPath through loader and wraps the runtime in a Session.
func Open(loader Loader, modelPath string, cfg Config) (*Session, error) {
	cfg = cfg.WithDefaults()
	start := time.Now()
	rt, err := loader.Load(modelPath, cfg.params())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModelLoadFailed, modelPath, err)
	}
	nCtx := rt.ContextSize()
	if nCtx <= 0 {
		nCtx = cfg.ContextSize
	}
	return &Session{
		rt:       rt,
		cfg:      cfg,
		batch:    NewBatch(cfg.BatchSize),
		nCtx:     nCtx,
		loadTime: time.Since(start),
	}, nil
}

// Prefill tokenizes prompt and submits it to the runtime in batches.
func (s *Session) Prefill(prompt string, markup Markup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.used {
		return ErrSessionNotReset
	}
	s.used = true

	parseSpecial := markup != nil && markup.ParseSpecial()
	tokens, err := s.rt.Tokenize(prompt, true, parseSpecial)
	if err != nil {
		return fmt.Errorf("%w: tokenize: %w", ErrDecodeFailed, err)
	}
	if len(tokens) == 0 {
		return fmt.Errorf("%w: prompt produced no tokens", ErrDecodeFailed)
	}
	tokens, err = truncateFront(tokens, s.nCtx, s.cfg.PredictTokens+s.cfg.SafetyMargin)
	if err != nil {
		return err
	}

	n := len(tokens)
	for start := 0; start < n; start += s.batch.Cap() {
		end := min(start+s.batch.Cap(), n)
		if err := fillBatch(s.batch, tokens, start, end); err != nil {
			return err
		}
		if err := s.rt.Decode(s.batch); err != nil {
			return fmt.Errorf("%w: prompt batch at %d: %w", ErrDecodeFailed, start, err)
		}
	}

	s.nPrompt = n
	s.nCur = n
	s.nLen = min(n+s.cfg.PredictTokens, s.nCtx)
	return nil
}

// fillBatch loads tokens[start:end] at their own positions. Only the last
// prompt token asks for logits.
func fillBatch(b *Batch, tokens []Token, start, end int) error {
	b.Clear()
	for i := start; i < end; i++ {
		if err := b.Add(tokens[i], i, i == len(tokens)-1); err != nil {
			return fmt.Errorf("%w: prompt token at %d: %w", ErrDecodeFailed, i, err)
		}
	}
	return nil
}

// truncateFront drops the oldest tokens so that reserve slots stay free. The
// tail of the prompt carries the instruction and is never cut.
func truncateFront(tokens []Token, nCtx, reserve int) ([]Token, error) {
	n := len(tokens)
	if n < nCtx {
		return tokens, nil
	}
	drop := n - nCtx + reserve
	if drop <= 0 {
		return tokens, nil
	}
	if drop >= n {
		return nil, fmt.Errorf("%w: %d prompt tokens, context %d, reserve %d", ErrContextOverflow, n, nCtx, reserve)
	}
	return tokens[drop:], nil
}

// Next samples one token and returns the text that became safe to show.
// After done is true every further call returns ("", true, nil).
func (s *Session) Next() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", true, ErrSessionClosed
	}
	if !s.used || s.done {
		return "", true, nil
	}

	tok := s.rt.Sample()
	if s.rt.IsEndOfGeneration(tok) || s.nCur >= s.nLen {
		return s.finish(), true, nil
	}

	if s.absorb(s.asm.Push(s.rt.TokenPiece(tok))) {
		s.done = true
		return s.release(true), true, nil
	}

	s.batch.Clear()
	if err := s.batch.Add(tok, s.nCur, true); err != nil {
		return s.finish(), true, fmt.Errorf("%w: token at %d: %w", ErrDecodeFailed, s.nCur, err)
	}
	s.nDecode++
	s.nCur++
	if err := s.rt.Decode(s.batch); err != nil {
		return s.finish(), true, fmt.Errorf("%w: token at %d: %w", ErrDecodeFailed, s.nCur-1, err)
	}
	return s.release(false), false, nil
}

// finish flushes buffered bytes and marks the session done.
func (s *Session) finish() string {
	s.absorb(s.asm.Flush())
	s.done = true
	return s.release(true)
}

// absorb appends decoded text and reports whether a stop marker ended the output.
// On a stop the marker, everything after it and trailing whitespace are removed.
func (s *Session) absorb(text string) bool {
	if text == "" {
		return false
	}
	s.text += text
	idx, ok := s.cfg.Stop.Match(s.text)
	if !ok {
		return false
	}
	s.text = strings.TrimRightFunc(s.text[:idx], unicode.IsSpace)
	return true
}

// release hands out text not yet returned. Unless final, it holds back trailing
// whitespace and any tail that could still grow into a stop marker.
func (s *Session) release(final bool) string {
	end := len(s.text)
	if !final {
		end -= s.cfg.Stop.partialTail(s.text)
		end = len(strings.TrimRightFunc(s.text[:end], unicode.IsSpace))
	}
	if end <= s.released {
		return ""
	}
	frag := s.text[s.released:end]
	s.released = end
	return frag
}

// Fragments returns the remaining output as a lazy sequence. The sequence ends
// when generation is done and cannot be restarted without Reset and Prefill.
func (s *Session) Fragments() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			text, done, err := s.Next()
			if err != nil {
				yield(text, err)
				return
			}
			if text != "" && !yield(text, nil) {
				return
			}
			if done {
				return
			}
		}
	}
}

// Drain consumes the remaining fragments and returns the complete output.
func (s *Session) Drain() (string, error) {
	for _, err := range s.Fragments() {
		if err != nil {
			return s.Output(), err
		}
	}
	return s.Output(), nil
}

// Output returns the text generated since the last Prefill, stop markers removed.
func (s *Session) Output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Reset clears KV memory and all per-prompt state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.rt.ClearMemory()
	s.nPrompt, s.nLen, s.nCur, s.nDecode = 0, 0, 0, 0
	s.used, s.done = false, false
	s.asm.Reset()
	s.text, s.released = "", 0
	s.batch.Clear()
}

// Close releases the runtime. Only the first call does any work.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		s.closeErr = s.rt.Close()
	})
	return s.closeErr
}

// Timings returns the runtime's cumulative counters.
func (s *Session) Timings() Timings {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Timings{}
	}
	return s.rt.Timings()
}

// LoadTime is the wall time Open spent in the loader.
func (s *Session) LoadTime() time.Duration { return s.loadTime }

// ContextSize returns the context ceiling in tokens.
func (s *Session) ContextSize() int { return s.nCtx }

// Stats reports the cursor state of the current prompt.
func (s *Session) Stats() (promptTokens, decoded, cursor, target int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nPrompt, s.nDecode, s.nCur, s.nLen
}
