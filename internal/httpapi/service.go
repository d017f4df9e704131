package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/mwiater/edgebench/internal/benchmark"
	"github.com/mwiater/edgebench/internal/catalog"
	"github.com/mwiater/edgebench/internal/progress"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Status() benchmark.Status
	Runs() ([]benchmark.RunRecord, error)
	Run(id string) (benchmark.RunRecord, error)
	DeleteRun(id string) error
	NextItem() (benchmark.Item, bool, error)
	Pending() ([]benchmark.Item, error)
	// StartItem and StartNext launch a run in the background and return
	// benchmark.ErrRunInProgress if one is already active.
	StartItem(it benchmark.Item) error
	StartNext() (benchmark.Item, error)
	Log(since int) []progress.Entry
}

// OrchestratorService adapts a benchmark.Orchestrator to Service.
type OrchestratorService struct {
	orch *benchmark.Orchestrator
	ctx  context.Context

	mu   sync.Mutex
	busy bool
	wg   sync.WaitGroup
}

// NewService returns a Service whose background runs stop when ctx is done.
func NewService(ctx context.Context, o *benchmark.Orchestrator) *OrchestratorService {
	return &OrchestratorService{orch: o, ctx: ctx}
}

func (s *OrchestratorService) Status() benchmark.Status { return s.orch.Status() }

func (s *OrchestratorService) Runs() ([]benchmark.RunRecord, error) { return s.orch.Store().Load() }

func (s *OrchestratorService) Run(id string) (benchmark.RunRecord, error) {
	return s.orch.Store().Get(id)
}

func (s *OrchestratorService) DeleteRun(id string) error {
	if err := s.orch.Store().Delete(id); err != nil {
		return err
	}
	s.orch.Progress().Infof("run %s deleted", id)
	return nil
}

func (s *OrchestratorService) NextItem() (benchmark.Item, bool, error) { return s.orch.Next() }

func (s *OrchestratorService) Pending() ([]benchmark.Item, error) { return s.orch.Pending() }

func (s *OrchestratorService) Log(since int) []progress.Entry { return s.orch.Progress().Since(since) }

func (s *OrchestratorService) claim() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy || s.orch.Running() {
		return benchmark.ErrRunInProgress
	}
	s.busy = true
	s.wg.Add(1)
	return nil
}

func (s *OrchestratorService) done() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
	s.wg.Done()
}

func (s *OrchestratorService) StartItem(it benchmark.Item) error {
	if err := checkItem(it); err != nil {
		return err
	}
	if err := s.claim(); err != nil {
		return err
	}
	go func() {
		defer s.done()
		_, _ = s.orch.RunItem(s.ctx, it)
	}()
	return nil
}

func (s *OrchestratorService) StartNext() (benchmark.Item, error) {
	if err := s.claim(); err != nil {
		return benchmark.Item{}, err
	}
	it, ok, err := s.orch.Next()
	if err == nil && !ok {
		err = benchmark.ErrQueueExhausted
	}
	if err != nil {
		s.done()
		return benchmark.Item{}, err
	}
	go func() {
		defer s.done()
		_, _ = s.orch.RunItem(s.ctx, it)
	}()
	return it, nil
}

// checkItem rejects items the orchestrator would refuse, so the caller gets
// the error instead of the background run.
func checkItem(it benchmark.Item) error {
	if it.Size <= 0 {
		return fmt.Errorf("%w: size must be positive", benchmark.ErrInvalidItem)
	}
	if _, err := catalog.LookupModel(it.Model); err != nil {
		return fmt.Errorf("%w: %w", benchmark.ErrModelNotFound, err)
	}
	if _, err := catalog.LookupDataset(it.Dataset); err != nil {
		return fmt.Errorf("%w: %w", benchmark.ErrInvalidItem, err)
	}
	return nil
}

// Wait blocks until the background run, if any, has finished.
func (s *OrchestratorService) Wait() { s.wg.Wait() }

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, benchmark.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, benchmark.ErrRunNotFound), errors.Is(err, benchmark.ErrQueueExhausted),
		errors.Is(err, benchmark.ErrModelNotFound):
		return http.StatusNotFound
	case errors.Is(err, benchmark.ErrInvalidItem):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
