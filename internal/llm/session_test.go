package llm

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

const eogToken Token = -1

type plainMarkup struct{ special bool }

func (m plainMarkup) ParseSpecial() bool { return m.special }

// scriptRuntime replays a fixed prompt tokenization and a fixed sample script.
type scriptRuntime struct {
	ctx     int
	prompt  []Token
	script  []Token
	pieces  map[Token][]byte
	sampled int

	batches   [][]Token
	positions [][]int
	logits    [][]bool
	failAt    int // 1-based decode call to fail, 0 for never
	decodes   int
	cleared   int
	closed    int
	special   bool
}

func (r *scriptRuntime) ContextSize() int { return r.ctx }

func (r *scriptRuntime) Tokenize(text string, addBOS, parseSpecial bool) ([]Token, error) {
	r.special = parseSpecial
	return append([]Token(nil), r.prompt...), nil
}

func (r *scriptRuntime) Decode(b *Batch) error {
	r.decodes++
	if r.failAt > 0 && r.decodes == r.failAt {
		return errors.New("boom")
	}
	r.batches = append(r.batches, append([]Token(nil), b.Tokens...))
	r.positions = append(r.positions, append([]int(nil), b.Pos...))
	r.logits = append(r.logits, append([]bool(nil), b.Logits...))
	return nil
}

func (r *scriptRuntime) Sample() Token {
	if r.sampled >= len(r.script) {
		return eogToken
	}
	tok := r.script[r.sampled]
	r.sampled++
	return tok
}

func (r *scriptRuntime) IsEndOfGeneration(tok Token) bool { return tok == eogToken }

func (r *scriptRuntime) TokenPiece(tok Token) []byte { return r.pieces[tok] }

func (r *scriptRuntime) ClearMemory() { r.cleared++ }

func (r *scriptRuntime) Timings() Timings { return Timings{EvalN: r.sampled} }

func (r *scriptRuntime) Close() error {
	r.closed++
	return nil
}

func sequence(n int) []Token {
	out := make([]Token, n)
	for i := range out {
		out[i] = Token(i)
	}
	return out
}

// piecesRuntime builds a runtime whose script emits the given byte pieces in order.
func piecesRuntime(pieces ...string) *scriptRuntime {
	rt := &scriptRuntime{ctx: 4096, prompt: sequence(4), pieces: map[Token][]byte{}}
	for i, p := range pieces {
		tok := Token(1000 + i)
		rt.pieces[tok] = []byte(p)
		rt.script = append(rt.script, tok)
	}
	return rt
}

func openScript(t *testing.T, rt *scriptRuntime, cfg Config) *Session {
	t.Helper()
	s, err := Open(LoaderFunc(func(string, Params) (Runtime, error) { return rt, nil }), "model.gguf", cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func collect(t *testing.T, s *Session) []string {
	t.Helper()
	var frags []string
	for frag, err := range s.Fragments() {
		if err != nil {
			t.Fatalf("fragment error: %v", err)
		}
		frags = append(frags, frag)
	}
	return frags
}

func TestPrefillBatchesAndMarksOnlyLastLogit(t *testing.T) {
	rt := &scriptRuntime{ctx: 4096, prompt: sequence(1200)}
	s := openScript(t, rt, Config{BatchSize: 512})

	if err := s.Prefill("ignored", plainMarkup{special: true}); err != nil {
		t.Fatalf("Prefill: %v", err)
	}
	if !rt.special {
		t.Fatalf("expected parseSpecial to follow the markup")
	}
	sizes := []int{512, 512, 176}
	if len(rt.batches) != len(sizes) {
		t.Fatalf("batches = %d, want %d", len(rt.batches), len(sizes))
	}
	pos := 0
	for i, b := range rt.batches {
		if len(b) != sizes[i] {
			t.Fatalf("batch %d size = %d, want %d", i, len(b), sizes[i])
		}
		for j := range b {
			if rt.positions[i][j] != pos {
				t.Fatalf("batch %d entry %d pos = %d, want %d", i, j, rt.positions[i][j], pos)
			}
			wantLogits := pos == 1199
			if rt.logits[i][j] != wantLogits {
				t.Fatalf("logits flag at pos %d = %v, want %v", pos, rt.logits[i][j], wantLogits)
			}
			pos++
		}
	}
	prompt, decoded, cursor, target := s.Stats()
	if prompt != 1200 || decoded != 0 || cursor != 1200 || target != 1200+defaultPredictTokens {
		t.Fatalf("stats = %d %d %d %d", prompt, decoded, cursor, target)
	}
}

func TestPrefillTruncatesFromFront(t *testing.T) {
	original := sequence(130)
	rt := &scriptRuntime{ctx: 100, prompt: original}
	s := openScript(t, rt, Config{BatchSize: 512, PredictTokens: 20, SafetyMargin: 10})

	if err := s.Prefill("ignored", nil); err != nil {
		t.Fatalf("Prefill: %v", err)
	}
	submitted := rt.batches[0]
	if len(submitted) != 70 {
		t.Fatalf("submitted %d tokens, want 70", len(submitted))
	}
	tail := original[len(original)-len(submitted):]
	for i := range submitted {
		if submitted[i] != tail[i] {
			t.Fatalf("token %d = %d, want %d", i, submitted[i], tail[i])
		}
	}
	if _, _, _, target := s.Stats(); target != 90 {
		t.Fatalf("target length = %d, want 90", target)
	}
}

func TestPrefillContextOverflow(t *testing.T) {
	rt := &scriptRuntime{ctx: 20, prompt: sequence(25)}
	s := openScript(t, rt, Config{PredictTokens: 20, SafetyMargin: 10})

	err := s.Prefill("ignored", nil)
	if !IsContextOverflow(err) {
		t.Fatalf("expected context overflow, got %v", err)
	}
	if len(rt.batches) != 0 {
		t.Fatalf("nothing should be decoded on overflow")
	}
}

func TestPrefillDecodeFailure(t *testing.T) {
	rt := &scriptRuntime{ctx: 4096, prompt: sequence(600), failAt: 2}
	s := openScript(t, rt, Config{BatchSize: 256})

	if err := s.Prefill("ignored", nil); !IsDecodeFailed(err) {
		t.Fatalf("expected decode failure, got %v", err)
	}
	if rt.decodes != 2 {
		t.Fatalf("decode calls = %d, want 2 (no retry)", rt.decodes)
	}
}

func TestFillBatchReportsOverflow(t *testing.T) {
	tokens := []Token{1, 2, 3}
	b := NewBatch(2)
	err := fillBatch(b, tokens, 0, 3)
	if !IsDecodeFailed(err) || !errors.Is(err, ErrBatchFull) {
		t.Fatalf("expected ErrDecodeFailed wrapping ErrBatchFull, got %v", err)
	}

	if err := fillBatch(b, tokens, 2, 3); err != nil {
		t.Fatalf("fillBatch: %v", err)
	}
	if b.Len() != 1 || b.Pos[0] != 2 || !b.Logits[0] {
		t.Fatalf("last prompt token must keep its position and logits: %+v", b)
	}
}

func TestTruncateFront(t *testing.T) {
	cases := []struct {
		name    string
		n, ctx  int
		reserve int
		keep    int
		wantErr bool
	}{
		{name: "fits", n: 50, ctx: 100, reserve: 30, keep: 50},
		{name: "exactly full", n: 100, ctx: 100, reserve: 30, keep: 70},
		{name: "over", n: 150, ctx: 100, reserve: 30, keep: 70},
		{name: "no room", n: 100, ctx: 100, reserve: 100, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := truncateFront(sequence(tc.n), tc.ctx, tc.reserve)
			if tc.wantErr {
				if !IsContextOverflow(err) {
					t.Fatalf("expected overflow, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tc.keep {
				t.Fatalf("kept %d, want %d", len(got), tc.keep)
			}
			if got[len(got)-1] != Token(tc.n-1) {
				t.Fatalf("last token changed: %d", got[len(got)-1])
			}
		})
	}
}

func TestNextAssemblesSplitUTF8(t *testing.T) {
	rt := piecesRuntime("\xc3", "\xa9a", "\xe2", "\x82", "\xac")
	s := openScript(t, rt, Config{})
	if err := s.Prefill("ignored", nil); err != nil {
		t.Fatalf("Prefill: %v", err)
	}

	frags := collect(t, s)
	for _, f := range frags {
		if !utf8.ValidString(f) {
			t.Fatalf("ill-formed fragment %q", f)
		}
	}
	if got := strings.Join(frags, ""); got != "éa€" {
		t.Fatalf("joined fragments = %q, want %q", got, "éa€")
	}
	if s.Output() != "éa€" {
		t.Fatalf("Output = %q", s.Output())
	}
}

func TestNextFlushesIncompleteBytesAtEnd(t *testing.T) {
	rt := piecesRuntime("ok", "\xe2\x82")
	s := openScript(t, rt, Config{})
	if err := s.Prefill("ignored", nil); err != nil {
		t.Fatalf("Prefill: %v", err)
	}
	got := strings.Join(collect(t, s), "")
	if !utf8.ValidString(got) || !strings.HasPrefix(got, "ok") {
		t.Fatalf("unexpected flushed output %q", got)
	}
}

func TestNextStripsSuffixMarker(t *testing.T) {
	rt := piecesRuntime("Paris", " ", "<end_of", "_turn>", "ignored")
	s := openScript(t, rt, Config{})
	if err := s.Prefill("ignored", nil); err != nil {
		t.Fatalf("Prefill: %v", err)
	}

	var frags []string
	var done bool
	for !done {
		var text string
		var err error
		text, done, err = s.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		frags = append(frags, text)
	}
	joined := strings.Join(frags, "")
	if joined != "Paris" || s.Output() != "Paris" {
		t.Fatalf("joined = %q, output = %q", joined, s.Output())
	}
	if rt.sampled != 4 {
		t.Fatalf("sampled %d tokens, want generation to stop at the marker", rt.sampled)
	}
}

func TestNextStripsContainsMarker(t *testing.T) {
	rt := piecesRuntime("Answer: 42", "\nUse", "r: and more")
	s := openScript(t, rt, Config{})
	if err := s.Prefill("ignored", nil); err != nil {
		t.Fatalf("Prefill: %v", err)
	}
	joined := strings.Join(collect(t, s), "")
	if joined != "Answer: 42" || s.Output() != "Answer: 42" {
		t.Fatalf("joined = %q, output = %q", joined, s.Output())
	}
}

func TestNextReleasesHeldTextThatIsNotAMarker(t *testing.T) {
	rt := piecesRuntime("a<", "b ")
	s := openScript(t, rt, Config{})
	if err := s.Prefill("ignored", nil); err != nil {
		t.Fatalf("Prefill: %v", err)
	}
	frags := collect(t, s)
	if frags[0] != "a" {
		t.Fatalf("first fragment = %q, want the '<' held back", frags[0])
	}
	if got := strings.Join(frags, ""); got != "a<b " || got != s.Output() {
		t.Fatalf("joined = %q, output = %q", got, s.Output())
	}
}

func TestNextStopsAtTargetLength(t *testing.T) {
	rt := piecesRuntime("a", "a", "a", "a", "a", "a")
	s := openScript(t, rt, Config{PredictTokens: 3})
	if err := s.Prefill("ignored", nil); err != nil {
		t.Fatalf("Prefill: %v", err)
	}
	out, err := s.Drain()
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if out != "aaa" {
		t.Fatalf("output = %q, want %q", out, "aaa")
	}
	if _, decoded, _, _ := s.Stats(); decoded != 3 {
		t.Fatalf("decoded = %d, want 3", decoded)
	}
}

func TestNextDecodeFailureEndsGeneration(t *testing.T) {
	rt := piecesRuntime("x", "y", "z")
	rt.failAt = 3 // prefill, first token, then fail
	s := openScript(t, rt, Config{})
	if err := s.Prefill("ignored", nil); err != nil {
		t.Fatalf("Prefill: %v", err)
	}
	out, err := s.Drain()
	if !IsDecodeFailed(err) {
		t.Fatalf("expected decode failure, got %v", err)
	}
	if out != "xy" {
		t.Fatalf("partial output = %q, want %q", out, "xy")
	}
	if text, done, err := s.Next(); text != "" || !done || err != nil {
		t.Fatalf("Next after failure = %q %v %v", text, done, err)
	}
}

func TestPrefillRequiresReset(t *testing.T) {
	rt := piecesRuntime("a")
	s := openScript(t, rt, Config{})
	if err := s.Prefill("first", nil); err != nil {
		t.Fatalf("Prefill: %v", err)
	}
	if _, err := s.Drain(); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if err := s.Prefill("second", nil); !errors.Is(err, ErrSessionNotReset) {
		t.Fatalf("expected ErrSessionNotReset, got %v", err)
	}

	s.Reset()
	if rt.cleared != 1 {
		t.Fatalf("ClearMemory calls = %d, want 1", rt.cleared)
	}
	if s.Output() != "" {
		t.Fatalf("Reset kept output %q", s.Output())
	}
	if err := s.Prefill("second", nil); err != nil {
		t.Fatalf("Prefill after Reset: %v", err)
	}
	if _, _, cursor, _ := s.Stats(); cursor != len(rt.prompt) {
		t.Fatalf("cursor after reset prefill = %d", cursor)
	}
}

func TestFragmentsIsNotRestartable(t *testing.T) {
	rt := piecesRuntime("a", "b")
	s := openScript(t, rt, Config{})
	if err := s.Prefill("ignored", nil); err != nil {
		t.Fatalf("Prefill: %v", err)
	}
	_ = collect(t, s)
	if again := collect(t, s); len(again) != 0 {
		t.Fatalf("second iteration yielded %v", again)
	}
}

func TestCloseRunsOnce(t *testing.T) {
	rt := piecesRuntime()
	s := openScript(t, rt, Config{})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = s.Close()
	if rt.closed != 1 {
		t.Fatalf("runtime closed %d times, want 1", rt.closed)
	}
	if err := s.Prefill("x", nil); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if (s.Timings() != Timings{}) {
		t.Fatalf("timings after close should be empty")
	}
}

func TestOpenWrapsLoadError(t *testing.T) {
	cause := errors.New("bad magic")
	_, err := Open(LoaderFunc(func(string, Params) (Runtime, error) { return nil, cause }), "m.gguf", Config{})
	if !IsModelLoadFailed(err) || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped load failure, got %v", err)
	}
}
