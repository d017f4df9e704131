package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mwiater/edgebench/internal/benchmark"
	"github.com/mwiater/edgebench/internal/metrics"
)

type fakeStore struct {
	runs      []benchmark.RunRecord
	deleted   []string
	loadErr   error
	deleteErr error
}

func (f *fakeStore) Load() ([]benchmark.RunRecord, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return append([]benchmark.RunRecord(nil), f.runs...), nil
}

func (f *fakeStore) Delete(id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i, r := range f.runs {
		if r.ID == id {
			f.runs = append(f.runs[:i], f.runs[i+1:]...)
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return benchmark.ErrRunNotFound
}

func sampleRuns() []benchmark.RunRecord {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []benchmark.RunRecord{
		{
			ID: "old", ModelName: "phi-2_Q4_K_M", TaskType: "hotpot_qa", NumberOfExamples: 10,
			StartedAt: benchmark.NewEpochTime(start), EndedAt: benchmark.NewEpochTime(start.Add(90 * time.Second)),
			BenchmarkMetrics: &metrics.BenchmarkMetrics{Count: 10, AverageMetric1: 0.5, AverageEvalTokenPerSec: 12},
			Results: []benchmark.GenerationResult{
				{GoldAnswer: "Paris", Output: "Paris", Metric1: 1},
				{GoldAnswer: "Seine", Output: "", Error: "decode failed"},
			},
		},
		{
			ID: "new", ModelName: "gemma-2b-it_Q4_K_M", TaskType: "databricks_dolly", NumberOfExamples: 10,
			StartedAt: benchmark.NewEpochTime(start.Add(time.Hour)), Error: "interrupted",
		},
	}
}

// run feeds msg to m and executes the returned command once, feeding its
// message back, which is enough for the browser's one-shot commands.
func run(t *testing.T, m *model, msg tea.Msg) *model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(*model)
	if cmd != nil {
		if out := cmd(); out != nil {
			switch out.(type) {
			case runsLoadedMsg, runsLoadErr, runDeletedMsg, runDeleteErr:
				next, _ = m.Update(out)
				m = next.(*model)
			}
		}
	}
	return m
}

func loaded(t *testing.T, store *fakeStore) *model {
	t.Helper()
	m := initialModel(store)
	m = run(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	return run(t, m, loadRunsCmd(store)())
}

func TestBrowserListsNewestFirst(t *testing.T) {
	m := loaded(t, &fakeStore{runs: sampleRuns()})
	if m.isLoading {
		t.Fatalf("expected loading to finish")
	}
	items := m.runList.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if first := items[0].(runItem); first.run.ID != "new" {
		t.Fatalf("expected newest run first, got %s", first.run.ID)
	}
	if !strings.Contains(items[0].(runItem).Title(), "partial") {
		t.Fatalf("partial run must be marked")
	}
	if out := m.View(); !strings.Contains(out, "Benchmark Runs") {
		t.Fatalf("expected list title in view, got %s", out)
	}
}

func TestBrowserDetailAndBack(t *testing.T) {
	m := loaded(t, &fakeStore{runs: sampleRuns()})
	m.runList.Select(1)

	m = run(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.state != viewDetail || m.selected == nil || m.selected.ID != "old" {
		t.Fatalf("expected detail of run old, got state=%v", m.state)
	}
	out := m.View()
	for _, want := range []string{"Run old", "phi-2_Q4_K_M", "decode failed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in detail view, got %s", want, out)
		}
	}

	m = run(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.state != viewList || m.selected != nil {
		t.Fatalf("expected list view after esc, got %v", m.state)
	}
}

func TestBrowserDeleteReloads(t *testing.T) {
	store := &fakeStore{runs: sampleRuns()}
	m := loaded(t, store)

	m = run(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	if len(store.deleted) != 1 || store.deleted[0] != "new" {
		t.Fatalf("expected selected run deleted, got %v", store.deleted)
	}
	if !strings.Contains(m.notice, "Deleted run new") {
		t.Fatalf("unexpected notice %q", m.notice)
	}
	m = run(t, m, loadRunsCmd(store)())
	if len(m.runList.Items()) != 1 {
		t.Fatalf("expected 1 run after delete, got %d", len(m.runList.Items()))
	}
}

func TestBrowserErrors(t *testing.T) {
	m := loaded(t, &fakeStore{loadErr: errors.New("disk gone")})
	if out := m.View(); !strings.Contains(out, "disk gone") {
		t.Fatalf("expected load error in view, got %s", out)
	}

	store := &fakeStore{runs: sampleRuns(), deleteErr: errors.New("read-only")}
	m = loaded(t, store)
	m = run(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	if !strings.Contains(m.notice, "read-only") {
		t.Fatalf("expected delete failure notice, got %q", m.notice)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[uint64]string{
		512:        "512 B",
		2048:       "2.0 KiB",
		3 << 20:    "3.0 MiB",
		5 << 30:    "5.0 GiB",
		1536 << 20: "1.5 GiB",
	}
	for in, want := range cases {
		if got := formatBytes(in); got != want {
			t.Fatalf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
