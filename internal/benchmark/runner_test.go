package benchmark

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mwiater/edgebench/internal/catalog"
	"github.com/mwiater/edgebench/internal/llm"
)

const gemmaModel = "gemma-3-4b-it-q3_k_m"

func TestRunItemHotpotImmediateEOG(t *testing.T) {
	f := newFixture(t)
	f.addModel(t, gemmaModel)
	f.addDataset(t, "hotpot_qa", hotpotExamples)

	rt := &stubRuntime{}
	o := f.orchestrator(stubLoader(rt))

	rec, err := o.RunItem(context.Background(), Item{Model: gemmaModel, Dataset: "hotpot_qa", Size: 2})
	if err != nil {
		t.Fatalf("RunItem: %v", err)
	}
	if len(rec.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(rec.Results))
	}
	if rec.BenchmarkMetrics == nil || rec.BenchmarkMetrics.Count != 2 {
		t.Fatalf("expected benchmark count 2, got %+v", rec.BenchmarkMetrics)
	}
	if rec.BenchmarkMetrics.AverageEvalTokens != 0 {
		t.Fatalf("immediate EOG emits no tokens, got averageEvalTokens %v", rec.BenchmarkMetrics.AverageEvalTokens)
	}
	for i, res := range rec.Results {
		if res.Output != "" || res.Metric1 != 0 || res.Metric2 != 0 {
			t.Fatalf("result %d: expected empty degenerate output, got %+v", i, res)
		}
		if !strings.Contains(res.Prompt, "<start_of_turn>") {
			t.Fatalf("result %d: expected turn markup in prompt: %q", i, res.Prompt)
		}
		if res.GoldAnswer != hotpotExamples[i].Answer {
			t.Fatalf("result %d: gold answer %q", i, res.GoldAnswer)
		}
	}
	if !rt.closed {
		t.Fatalf("runtime must be closed at the end of the run")
	}

	runs, err := f.store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != rec.ID || runs[0].Partial() {
		t.Fatalf("expected one complete persisted run, got %+v", runs)
	}
}

func TestRunItemScoresAndAveragesTokens(t *testing.T) {
	f := newFixture(t)
	f.addModel(t, gemmaModel)
	f.addDataset(t, "hotpot_qa", hotpotExamples)

	rt := &stubRuntime{script: []string{"P", "a", "r", "i", "s"}}
	o := f.orchestrator(stubLoader(rt))

	rec, err := o.RunItem(context.Background(), Item{Model: gemmaModel, Dataset: "hotpot_qa", Size: 2})
	if err != nil {
		t.Fatalf("RunItem: %v", err)
	}
	bm := rec.BenchmarkMetrics
	if bm.AverageEvalTokens != 5 {
		t.Fatalf("expected 5 eval tokens per example, got %v", bm.AverageEvalTokens)
	}
	if rec.Results[0].Output != "Paris" || rec.Results[0].Metric1 != 1 {
		t.Fatalf("unexpected first result: %+v", rec.Results[0])
	}
	if rec.Results[1].Metric1 != 0 {
		t.Fatalf("second answer is wrong and must not match: %+v", rec.Results[1])
	}
	if bm.AverageMetric1 != 0.5 {
		t.Fatalf("expected averageMetric1 0.5, got %v", bm.AverageMetric1)
	}
	if rec.Results[1].Timings.EvalN != 5 {
		t.Fatalf("per-example timings must be deltas, got %+v", rec.Results[1].Timings)
	}
}

func TestRunItemModelNotFoundPersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.addDataset(t, "hotpot_qa", hotpotExamples)
	o := f.orchestrator(stubLoader(&stubRuntime{}))

	rec, err := o.RunItem(context.Background(), Item{Model: gemmaModel, Dataset: "hotpot_qa", Size: 2})
	if !IsModelNotFound(err) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
	if rec.ID != "" {
		t.Fatalf("expected empty record, got %+v", rec)
	}
	runs, _ := f.store.Load()
	if len(runs) != 0 {
		t.Fatalf("nothing may be persisted, got %d runs", len(runs))
	}
	if o.Running() || o.Status().State != StateIdle {
		t.Fatalf("orchestrator must return to idle, got %+v", o.Status())
	}
}

func TestRunItemLoadFailurePersistsPartial(t *testing.T) {
	f := newFixture(t)
	f.addModel(t, gemmaModel)
	f.addDataset(t, "hotpot_qa", hotpotExamples)

	loader := llm.LoaderFunc(func(string, llm.Params) (llm.Runtime, error) {
		return nil, errors.New("out of memory")
	})
	o := f.orchestrator(loader)

	rec, err := o.RunItem(context.Background(), Item{Model: gemmaModel, Dataset: "hotpot_qa", Size: 2})
	if !llm.IsModelLoadFailed(err) {
		t.Fatalf("expected ErrModelLoadFailed, got %v", err)
	}
	runs, _ := f.store.Load()
	if len(runs) != 1 || !runs[0].Partial() || runs[0].ID != rec.ID {
		t.Fatalf("expected one partial run, got %+v", runs)
	}
	if !strings.Contains(runs[0].Error, "out of memory") {
		t.Fatalf("expected load error in record, got %q", runs[0].Error)
	}
}

func TestRunItemDatasetMissingPersistsPartial(t *testing.T) {
	f := newFixture(t)
	f.addModel(t, gemmaModel)
	rt := &stubRuntime{}
	o := f.orchestrator(stubLoader(rt))

	_, err := o.RunItem(context.Background(), Item{Model: gemmaModel, Dataset: "hotpot_qa", Size: 2})
	if !errors.Is(err, ErrDatasetMissing) {
		t.Fatalf("expected ErrDatasetMissing, got %v", err)
	}
	runs, _ := f.store.Load()
	if len(runs) != 1 || !runs[0].Partial() {
		t.Fatalf("expected one partial run, got %+v", runs)
	}
	if !rt.closed {
		t.Fatalf("session must be closed on dataset error")
	}
}

func TestRunItemDecodeFailureContinues(t *testing.T) {
	f := newFixture(t)
	f.addModel(t, gemmaModel)
	f.addDataset(t, "hotpot_qa", hotpotExamples)

	rt := &stubRuntime{script: []string{"x", "y"}, failAt: 2}
	o := f.orchestrator(stubLoader(rt))

	rec, err := o.RunItem(context.Background(), Item{Model: gemmaModel, Dataset: "hotpot_qa", Size: 2})
	if err != nil {
		t.Fatalf("RunItem: %v", err)
	}
	if len(rec.Results) != 2 {
		t.Fatalf("both examples must be recorded, got %d", len(rec.Results))
	}
	if rec.Results[0].Error == "" || rec.Results[0].Output != "" {
		t.Fatalf("first example must be degenerate, got %+v", rec.Results[0])
	}
	if rec.Results[1].Error != "" || rec.Results[1].Output != "xy" {
		t.Fatalf("second example must succeed, got %+v", rec.Results[1])
	}
	bm := rec.BenchmarkMetrics
	if bm.Count != 1 {
		t.Fatalf("only successful examples are aggregated, got count %d", bm.Count)
	}
	ok := rec.Results[1].Timings
	if bm.AveragePromptTokens != float64(ok.PromptEvalN) {
		t.Fatalf("average prompt tokens %.1f must cover the successful example only (%d)", bm.AveragePromptTokens, ok.PromptEvalN)
	}
	if bm.AverageEvalTokens != float64(ok.EvalN) {
		t.Fatalf("average eval tokens %.1f must cover the successful example only (%d)", bm.AverageEvalTokens, ok.EvalN)
	}
	if bm.AverageEvalTime != ok.EvalMs/1000 || bm.AverageSampleTime != ok.SampleMs/1000 {
		t.Fatalf("eval/sample averages include the failed example: %+v vs %+v", bm, ok)
	}
}

func TestTimingsWithoutRemovesFailedExamples(t *testing.T) {
	total := llm.Timings{StartMs: 0, EndMs: 100, PromptEvalMs: 30, EvalMs: 40, PromptEvalN: 300, EvalN: 20, SampleMs: 4, SampleN: 22}
	failed := addTimings(llm.Timings{}, llm.Timings{StartMs: 10, EndMs: 35, PromptEvalMs: 10, EvalMs: 5, PromptEvalN: 100, EvalN: 2, SampleMs: 1, SampleN: 3})
	got := timingsWithout(total, failed)
	want := llm.Timings{StartMs: 0, EndMs: 75, PromptEvalMs: 20, EvalMs: 35, PromptEvalN: 200, EvalN: 18, SampleMs: 3, SampleN: 19}
	if got != want {
		t.Fatalf("timingsWithout = %+v, want %+v", got, want)
	}
}

func TestRunItemSkipsUnusableExamples(t *testing.T) {
	f := newFixture(t)
	f.addModel(t, gemmaModel)
	f.addDataset(t, "hotpot_qa", []Example{{Question: "no answer"}, hotpotExamples[0]})
	o := f.orchestrator(stubLoader(&stubRuntime{}))

	rec, err := o.RunItem(context.Background(), Item{Model: gemmaModel, Dataset: "hotpot_qa", Size: 10})
	if err != nil {
		t.Fatalf("RunItem: %v", err)
	}
	if len(rec.Results) != 1 || rec.NumberOfExamples != 10 {
		t.Fatalf("expected 1 result for a size-10 item, got %+v", rec)
	}
}

func TestRunItemCancelledPersistsPartial(t *testing.T) {
	f := newFixture(t)
	f.addModel(t, gemmaModel)
	f.addDataset(t, "hotpot_qa", hotpotExamples)
	o := f.orchestrator(stubLoader(&stubRuntime{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.RunItem(ctx, Item{Model: gemmaModel, Dataset: "hotpot_qa", Size: 2})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	runs, _ := f.store.Load()
	if len(runs) != 1 || !runs[0].Partial() || len(runs[0].Results) != 0 {
		t.Fatalf("expected an empty partial run, got %+v", runs)
	}
}

func TestRunItemRejectsConcurrentRun(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(stubLoader(&stubRuntime{}))

	busy := Item{Model: gemmaModel, Dataset: "hotpot_qa", Size: 1}
	if err := o.acquire(&busy); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer o.release()
	if _, err := o.RunItem(context.Background(), busy); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
}

func TestRunNextAndExhaustion(t *testing.T) {
	f := newFixture(t)
	f.addModel(t, gemmaModel)
	f.addDataset(t, "hotpot_qa", hotpotExamples)

	model, _ := catalog.LookupModel(gemmaModel)
	dataset, _ := catalog.LookupDataset("hotpot_qa")
	o := New(Options{
		ModelsDir:       f.modelsDir,
		DatasetsDir:     f.datasetsDir,
		Store:           f.store,
		Loader:          stubLoader(&stubRuntime{}),
		Tiers:           []int{1, 2},
		Models:          []catalog.ModelDescriptor{model},
		Datasets:        []catalog.DatasetDescriptor{dataset},
		MonitorInterval: -1,
	})

	for _, size := range []int{1, 2} {
		rec, err := o.RunNext(context.Background())
		if err != nil {
			t.Fatalf("RunNext: %v", err)
		}
		if rec.NumberOfExamples != size {
			t.Fatalf("expected tier %d, got %d", size, rec.NumberOfExamples)
		}
	}
	if _, err := o.RunNext(context.Background()); !errors.Is(err, ErrQueueExhausted) {
		t.Fatalf("expected ErrQueueExhausted, got %v", err)
	}
}

func TestRunAllSkipsMissingWeights(t *testing.T) {
	f := newFixture(t)
	f.addModel(t, "gemma-3-4b-it-q3_k_s")
	f.addDataset(t, "hotpot_qa", hotpotExamples)

	missing, _ := catalog.LookupModel(gemmaModel)
	present, _ := catalog.LookupModel("gemma-3-4b-it-q3_k_s")
	dataset, _ := catalog.LookupDataset("hotpot_qa")
	o := New(Options{
		ModelsDir:       f.modelsDir,
		DatasetsDir:     f.datasetsDir,
		Store:           f.store,
		Loader:          stubLoader(&stubRuntime{}),
		Tiers:           []int{1},
		Models:          []catalog.ModelDescriptor{missing, present},
		Datasets:        []catalog.DatasetDescriptor{dataset},
		MonitorInterval: -1,
	})

	records, err := o.RunAll(context.Background())
	if !IsModelNotFound(err) {
		t.Fatalf("expected joined ErrModelNotFound, got %v", err)
	}
	if len(records) != 1 || records[0].ModelName != present.ID {
		t.Fatalf("expected one run of %s, got %+v", present.ID, records)
	}
}
