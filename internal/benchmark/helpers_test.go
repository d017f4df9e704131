package benchmark

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"

	"github.com/mwiater/edgebench/internal/catalog"
	"github.com/mwiater/edgebench/internal/llm"
	"github.com/mwiater/edgebench/internal/progress"
)

const stubEOG llm.Token = -1

// stubRuntime emits a fixed token script after every prefill and then EOG.
type stubRuntime struct {
	script   []string
	failAt   int // 1-based eval decode that fails; 0 never fails
	pos      int
	sampled  bool
	evalSeen int
	t        llm.Timings
	closed   bool
}

func (r *stubRuntime) ContextSize() int { return 2048 }

func (r *stubRuntime) Tokenize(text string, addBOS, _ bool) ([]llm.Token, error) {
	toks := make([]llm.Token, 0, len(text)+1)
	if addBOS {
		toks = append(toks, 1)
	}
	for i := range len(text) {
		toks = append(toks, llm.Token(text[i]))
	}
	return toks, nil
}

func (r *stubRuntime) Decode(b *llm.Batch) error {
	if !r.sampled {
		r.t.PromptEvalN += b.Len()
		r.t.PromptEvalMs += float64(b.Len())
		return nil
	}
	r.evalSeen++
	if r.failAt > 0 && r.evalSeen == r.failAt {
		return errors.New("stub decode failure")
	}
	r.t.EvalN++
	r.t.EvalMs += 2
	return nil
}

func (r *stubRuntime) Sample() llm.Token {
	r.sampled = true
	r.t.SampleN++
	r.t.SampleMs += 0.5
	if r.pos < len(r.script) {
		r.pos++
		return llm.Token(1000 + r.pos - 1)
	}
	return stubEOG
}

func (r *stubRuntime) IsEndOfGeneration(tok llm.Token) bool { return tok == stubEOG }

func (r *stubRuntime) TokenPiece(tok llm.Token) []byte {
	i := int(tok) - 1000
	if i < 0 || i >= len(r.script) {
		return nil
	}
	return []byte(r.script[i])
}

func (r *stubRuntime) ClearMemory() {
	r.pos = 0
	r.sampled = false
}

func (r *stubRuntime) Timings() llm.Timings {
	t := r.t
	t.LoadMs = 5
	t.EndMs = t.LoadMs + t.PromptEvalMs + t.EvalMs + t.SampleMs
	return t
}

func (r *stubRuntime) Close() error {
	r.closed = true
	return nil
}

func stubLoader(rt *stubRuntime) llm.Loader {
	return llm.LoaderFunc(func(string, llm.Params) (llm.Runtime, error) { return rt, nil })
}

type fixture struct {
	modelsDir   string
	datasetsDir string
	store       *Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	f := fixture{
		modelsDir:   filepath.Join(root, "models"),
		datasetsDir: filepath.Join(root, "datasets"),
		store:       NewStore(StorePath(filepath.Join(root, "data"))),
	}
	for _, dir := range []string{f.modelsDir, f.datasetsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	return f
}

func (f fixture) addModel(t *testing.T, id string) {
	t.Helper()
	m, err := catalog.LookupModel(id)
	if err != nil {
		t.Fatalf("lookup model: %v", err)
	}
	if err := os.WriteFile(m.WeightsPath(f.modelsDir), []byte("gguf"), 0o644); err != nil {
		t.Fatalf("write weights: %v", err)
	}
}

func (f fixture) addDataset(t *testing.T, id string, examples []Example) {
	t.Helper()
	d, err := catalog.LookupDataset(id)
	if err != nil {
		t.Fatalf("lookup dataset: %v", err)
	}
	data, err := json.Marshal(examples)
	if err != nil {
		t.Fatalf("marshal dataset: %v", err)
	}
	if err := os.WriteFile(DatasetPath(f.datasetsDir, d), data, 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
}

func (f fixture) orchestrator(loader llm.Loader) *Orchestrator {
	return New(Options{
		ModelsDir:       f.modelsDir,
		DatasetsDir:     f.datasetsDir,
		Store:           f.store,
		Loader:          loader,
		Progress:        progress.New(0),
		MonitorInterval: -1,
	})
}

var hotpotExamples = []Example{
	{Question: "What is the capital of France?", Answer: "Paris", Context: "Paris is the capital and largest city of France."},
	{Question: "Which river flows through Paris?", Answer: "Seine", Context: "The Seine flows through the centre of Paris."},
}
