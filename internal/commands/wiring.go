package edgebench

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mwiater/edgebench/internal/appconfig"
	"github.com/mwiater/edgebench/internal/benchmark"
	"github.com/mwiater/edgebench/internal/llm"
	"github.com/mwiater/edgebench/internal/llm/llamacpp"
	"github.com/mwiater/edgebench/internal/llm/toy"
	"github.com/mwiater/edgebench/internal/progress"
)

var errNoConfig = errors.New("configuration is not loaded")

// newLoader is swapped in tests.
var newLoader = func(cfg *appconfig.Config) (llm.Loader, error) {
	switch cfg.BackendName() {
	case appconfig.BackendToy:
		return toy.Loader{}, nil
	case appconfig.BackendLlama:
		l, err := llamacpp.NewLoader()
		if err != nil {
			return nil, fmt.Errorf("%w; rebuild with -tags llama or set backend to %q", err, appconfig.BackendToy)
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// openStore returns the results store named by the configuration.
func openStore() (*benchmark.Store, error) {
	cfg := GetConfig()
	if cfg == nil {
		return nil, errNoConfig
	}
	return benchmark.NewStore(cfg.StorePath()), nil
}

// newOrchestrator builds an orchestrator from the loaded configuration.
func newOrchestrator(log *progress.Log) (*benchmark.Orchestrator, error) {
	cfg := GetConfig()
	if cfg == nil {
		return nil, errNoConfig
	}
	loader, err := newLoader(cfg)
	if err != nil {
		return nil, err
	}
	store, err := openStore()
	if err != nil {
		return nil, err
	}
	return benchmark.New(benchmark.Options{
		ModelsDir:       cfg.ModelsPath(),
		DatasetsDir:     cfg.DatasetsPath(),
		Store:           store,
		Loader:          loader,
		Generation:      cfg.GenerationConfig(),
		Tiers:           cfg.QueueTiers(),
		Progress:        log,
		MonitorInterval: cfg.MonitorInterval(),
	}), nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
