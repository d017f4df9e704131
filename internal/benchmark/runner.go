// Package benchmark drives the persisted work queue: it selects an item, loads
// the model, runs every example through an inference session, scores and
// aggregates the results and appends one RunRecord to the store.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mwiater/edgebench/internal/accuracy"
	"github.com/mwiater/edgebench/internal/catalog"
	"github.com/mwiater/edgebench/internal/llm"
	"github.com/mwiater/edgebench/internal/logging"
	"github.com/mwiater/edgebench/internal/metrics"
	"github.com/mwiater/edgebench/internal/monitor"
	"github.com/mwiater/edgebench/internal/progress"
	"github.com/mwiater/edgebench/internal/prompt"
)

var (
	openSession = llm.Open
	statWeights = os.Stat
	newRunID    = uuid.NewString
	now         = time.Now
)

// State is the orchestrator's position in a run.
type State int

const (
	StateIdle State = iota
	StateSelectingItem
	StateLoadingModel
	StateRunningExamples
	StatePersistingResult
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelectingItem:
		return "selecting-item"
	case StateLoadingModel:
		return "loading-model"
	case StateRunningExamples:
		return "running-examples"
	case StatePersistingResult:
		return "persisting-result"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures an Orchestrator. Store and Loader are required.
type Options struct {
	ModelsDir   string
	DatasetsDir string
	Store       *Store
	Loader      llm.Loader
	Generation  llm.Config
	// Tiers, Models and Datasets define the work queue. Empty values select
	// DefaultTiers and the queued catalog entries.
	Tiers    []int
	Models   []catalog.ModelDescriptor
	Datasets []catalog.DatasetDescriptor
	Progress *progress.Log
	// MonitorInterval is the resource polling period. Negative disables polling.
	MonitorInterval time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Status is a snapshot of what the orchestrator is doing.
type Status struct {
	State   State `json:"state"`
	Item    *Item `json:"item,omitempty"`
	Example int   `json:"example"`
	Total   int   `json:"total"`
}

// Orchestrator runs one item at a time.
type Orchestrator struct {
	opts Options
	log  *progress.Log
	zl   zerolog.Logger

	mu      sync.Mutex
	running bool
	state   State
	item    *Item
	example int
	total   int
}

// New returns an idle orchestrator.
func New(opts Options) *Orchestrator {
	if len(opts.Tiers) == 0 {
		opts.Tiers = DefaultTiers
	}
	if len(opts.Models) == 0 {
		opts.Models = catalog.QueuedModels()
	}
	if len(opts.Datasets) == 0 {
		opts.Datasets = catalog.QueuedDatasets()
	}
	if opts.Progress == nil {
		opts.Progress = progress.New(0)
	}
	o := &Orchestrator{opts: opts, log: opts.Progress, zl: logging.Component("orchestrator")}
	if opts.Store != nil && opts.Store.OnCorrupt == nil {
		opts.Store.OnCorrupt = func(path string, err error) {
			o.log.Errorf("results store %s is unreadable, treating it as empty: %v", path, err)
		}
	}
	return o
}

// Progress returns the log the orchestrator writes to.
func (o *Orchestrator) Progress() *progress.Log { return o.log }

// Store returns the backing store.
func (o *Orchestrator) Store() *Store { return o.opts.Store }

// Status returns the current state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{State: o.state, Example: o.example, Total: o.total}
	if o.item != nil {
		it := *o.item
		st.Item = &it
	}
	return st
}

// Running reports whether a run is active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	o.mu.Unlock()
	if prev != s {
		o.zl.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("state transition")
	}
}

func (o *Orchestrator) setExample(i, total int) {
	o.mu.Lock()
	o.example, o.total = i, total
	o.mu.Unlock()
}

func (o *Orchestrator) acquire(it *Item) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrRunInProgress
	}
	o.running = true
	o.item = it
	o.example, o.total = 0, 0
	return nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.running = false
	o.item = nil
	o.mu.Unlock()
	o.setState(StateIdle)
}

// Next returns the next pending item without running it.
func (o *Orchestrator) Next() (Item, bool, error) {
	runs, err := o.opts.Store.Load()
	if err != nil {
		return Item{}, false, err
	}
	it, ok := NextPending(runs, o.opts.Tiers, o.opts.Models, o.opts.Datasets)
	return it, ok, nil
}

// Pending lists every pending item in queue order.
func (o *Orchestrator) Pending() ([]Item, error) {
	runs, err := o.opts.Store.Load()
	if err != nil {
		return nil, err
	}
	return Pending(runs, o.opts.Tiers, o.opts.Models, o.opts.Datasets), nil
}

// RunNext runs the next pending item. It returns ErrQueueExhausted when there is none.
func (o *Orchestrator) RunNext(ctx context.Context) (RunRecord, error) {
	return o.runNext(ctx, nil)
}

func (o *Orchestrator) runNext(ctx context.Context, skip map[Item]bool) (RunRecord, error) {
	o.setState(StateSelectingItem)
	runs, err := o.opts.Store.Load()
	if err != nil {
		o.setState(StateIdle)
		return RunRecord{}, err
	}
	it, ok := nextPending(runs, skip, o.opts.Tiers, o.opts.Models, o.opts.Datasets)
	if !ok {
		o.setState(StateIdle)
		o.log.Infof("work queue exhausted")
		return RunRecord{}, ErrQueueExhausted
	}
	o.log.Infof("next item: %s", it)
	return o.RunItem(ctx, it)
}

// RunAll runs pending items until the queue is exhausted or ctx is done.
// Items whose weights are missing are skipped for the rest of the loop.
// The returned error joins every per-item failure.
func (o *Orchestrator) RunAll(ctx context.Context) ([]RunRecord, error) {
	skip := make(map[Item]bool)
	var (
		records []RunRecord
		errs    []error
	)
	for {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		rec, err := o.runNext(ctx, skip)
		if errors.Is(err, ErrQueueExhausted) {
			break
		}
		if rec.ID != "" {
			records = append(records, rec)
		}
		if err != nil {
			errs = append(errs, err)
			if errors.Is(err, ErrRunInProgress) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			if rec.ID == "" {
				// Nothing was persisted, so the item would be selected again.
				it := unpersistedItem(err)
				if it == nil {
					break
				}
				skip[*it] = true
			}
		}
	}
	return records, errors.Join(errs...)
}

// itemError carries the item an unpersisted failure belongs to.
type itemError struct {
	item Item
	err  error
}

func (e *itemError) Error() string { return fmt.Sprintf("%s: %v", e.item, e.err) }
func (e *itemError) Unwrap() error { return e.err }

func unpersistedItem(err error) *Item {
	var ie *itemError
	if errors.As(err, &ie) {
		return &ie.item
	}
	return nil
}

// RunItem runs it to completion and persists the record. The record is
// returned with the error that ended the run, if any. When the model weights
// are missing nothing is persisted and the record is empty.
func (o *Orchestrator) RunItem(ctx context.Context, it Item) (RunRecord, error) {
	if err := o.acquire(&it); err != nil {
		return RunRecord{}, err
	}
	defer o.release()

	model, dataset, err := o.resolve(it)
	if err != nil {
		o.log.Errorf("%s: %v", it, err)
		return RunRecord{}, &itemError{item: it, err: err}
	}

	o.setState(StateLoadingModel)
	weights := model.WeightsPath(o.opts.ModelsDir)
	if _, err := statWeights(weights); err != nil {
		err = fmt.Errorf("%w: %s", ErrModelNotFound, weights)
		o.log.Errorf("%s: %v", it, err)
		metrics.ObserveRun(it.Model, it.Dataset, "model_not_found", nil)
		return RunRecord{}, &itemError{item: it, err: err}
	}

	rec := RunRecord{
		ID:               newRunID(),
		ModelName:        it.Model,
		TaskType:         it.Dataset,
		NumberOfExamples: it.Size,
		Results:          []GenerationResult{},
		StartedAt:        NewEpochTime(now()),
	}

	stopMonitor := o.startMonitor(ctx, &rec)
	o.log.Infof("loading model %s", model.ID)
	sess, err := openSession(o.opts.Loader, weights, o.opts.Generation)
	if err != nil {
		o.log.Errorf("%s: %v", it, err)
		stopMonitor()
		return o.persist(rec, err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			o.log.Warnf("closing session for %s: %v", model.ID, cerr)
		}
	}()
	o.log.Infof("model %s loaded in %s", model.ID, sess.LoadTime().Round(time.Millisecond))

	examples, err := LoadDataset(o.opts.DatasetsDir, dataset)
	if err != nil {
		o.log.Errorf("%s: %v", it, err)
		stopMonitor()
		return o.persist(rec, err)
	}

	o.setState(StateRunningExamples)
	agg := metrics.NewAggregator()
	failed, runErr := o.runExamples(ctx, sess, model, dataset, examples, it.Size, agg, &rec)

	o.setState(StatePersistingResult)
	stopMonitor()
	timings := sess.Timings()
	rec.Timings = &timings
	// Averages cover the aggregated examples only, so the work spent on
	// degenerate ones comes off the session totals first.
	bm, ferr := agg.Finalize(sess.LoadTime(), timingsWithout(timings, failed))
	if ferr != nil {
		o.log.Warnf("%s: %v", it, ferr)
		if runErr == nil {
			runErr = ferr
		}
	} else {
		rec.BenchmarkMetrics = &bm
		m1, m2 := accuracy.MetricNames(dataset.Category)
		o.log.Infof("%s: %s=%.3f %s=%.3f eval=%.2f tok/s", it, m1, bm.AverageMetric1, m2, bm.AverageMetric2, bm.AverageEvalTokenPerSec)
	}
	return o.persist(rec, runErr)
}

func (o *Orchestrator) resolve(it Item) (catalog.ModelDescriptor, catalog.DatasetDescriptor, error) {
	if it.Size <= 0 {
		return catalog.ModelDescriptor{}, catalog.DatasetDescriptor{}, fmt.Errorf("%w: size must be positive", ErrInvalidItem)
	}
	model, err := catalog.LookupModel(it.Model)
	if err != nil {
		return catalog.ModelDescriptor{}, catalog.DatasetDescriptor{}, fmt.Errorf("%w: %w", ErrModelNotFound, err)
	}
	dataset, err := catalog.LookupDataset(it.Dataset)
	if err != nil {
		return catalog.ModelDescriptor{}, catalog.DatasetDescriptor{}, fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}
	return model, dataset, nil
}

func (o *Orchestrator) startMonitor(ctx context.Context, rec *RunRecord) func() {
	if o.opts.MonitorInterval < 0 {
		return func() {}
	}
	recorder := monitor.NewRecorder(func(s monitor.Sample) {
		metrics.ObserveResources(s.CPU, s.MemoryBytes)
	})
	mon := monitor.New(o.opts.MonitorInterval, recorder.Record)
	if err := mon.Start(ctx); err != nil {
		o.log.Warnf("resource monitor: %v", err)
		return func() {}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			mon.Stop()
			if u := recorder.Usage(); u.Samples > 0 {
				rec.ResourceUsage = &u
			}
		})
	}
}

func (o *Orchestrator) runExamples(ctx context.Context, sess *llm.Session, model catalog.ModelDescriptor, dataset catalog.DatasetDescriptor, examples []Example, size int, agg *metrics.Aggregator, rec *RunRecord) (llm.Timings, error) {
	n := min(size, len(examples))
	if n < size {
		o.log.Warnf("%s has %d examples, running %d", dataset.ID, len(examples), n)
	}
	var failed llm.Timings
	prev := sess.Timings()
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			o.log.Warnf("run of %s on %s cancelled after %d examples", model.ID, dataset.ID, i)
			return failed, err
		}
		o.setExample(i+1, n)

		ex := examples[i]
		if !ex.Usable() {
			o.log.Warnf("example %d of %s has no question or answer, skipping", i+1, dataset.ID)
			continue
		}
		text := prompt.Resolve(model, dataset, ex.Question, ex.Context)
		if text == "" {
			o.log.Warnf("no prompt for %s on %s, skipping example %d", model.Family, dataset.Category, i+1)
			continue
		}

		res := o.runExample(sess, model, dataset, text, ex, prev)
		prev = sess.Timings()
		rec.Results = append(rec.Results, res)

		outcome := "ok"
		if res.Error != "" {
			outcome = "error"
			failed = addTimings(failed, res.Timings)
			o.log.Errorf("example %d/%d of %s: %s", i+1, n, dataset.ID, res.Error)
		} else {
			agg.Add(metrics.ExampleStat{DurationMs: res.DurationMs, Metric1: res.Metric1, Metric2: res.Metric2})
			o.log.Infof("example %d/%d of %s done in %.0fms", i+1, n, dataset.ID, res.DurationMs)
		}
		metrics.ObserveExample(model.ID, dataset.ID, outcome, res.DurationMs/1e3)
	}
	return failed, nil
}

// runExample generates one answer. Session errors are recorded on the result
// rather than returned so the run moves on to the next example.
func (o *Orchestrator) runExample(sess *llm.Session, model catalog.ModelDescriptor, dataset catalog.DatasetDescriptor, text string, ex Example, prev llm.Timings) GenerationResult {
	defer sess.Reset()

	start := now()
	res := GenerationResult{Prompt: text, GoldAnswer: ex.Answer, StartedAt: NewEpochTime(start)}

	var err error
	if err = sess.Prefill(text, model.Family); err == nil {
		res.Output, err = sess.Drain()
	}
	end := now()
	res.EndedAt = NewEpochTime(end)
	res.DurationMs = float64(end.Sub(start).Microseconds()) / 1e3
	res.Timings = timingsDelta(prev, sess.Timings())

	if err != nil {
		res.Error = err.Error()
		res.Output = ""
		return res
	}
	scores := accuracy.Score(dataset.Category, res.Output, ex.Answer)
	res.Metric1, res.Metric2 = scores.Metric1, scores.Metric2
	return res
}

// persist appends rec to the store, marked partial when runErr is set.
func (o *Orchestrator) persist(rec RunRecord, runErr error) (RunRecord, error) {
	o.setState(StatePersistingResult)
	rec.EndedAt = NewEpochTime(now())
	outcome := "ok"
	if runErr != nil {
		rec.Error = runErr.Error()
		outcome = "partial"
	}
	if err := o.opts.Store.Append(rec); err != nil {
		o.log.Errorf("saving run %s: %v", rec.ID, err)
		return rec, errors.Join(runErr, err)
	}
	metrics.ObserveRun(rec.ModelName, rec.TaskType, outcome, rec.BenchmarkMetrics)
	if runErr != nil {
		o.log.Warnf("run %s saved as partial: %v", rec.ID, runErr)
	} else {
		o.log.Infof("run %s saved (%d results)", rec.ID, len(rec.Results))
	}
	return rec, runErr
}
