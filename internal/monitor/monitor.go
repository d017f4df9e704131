// Package monitor polls process CPU and memory use on a fixed interval and
// hands each sample to a sink. It shares no state with the inference path.
package monitor

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval is the polling period used when none is configured.
const DefaultInterval = 500 * time.Millisecond

// ErrAlreadyRunning is returned by Start on a running monitor.
var ErrAlreadyRunning = errors.New("monitor already running")

// Sample is one reading of process resource use.
type Sample struct {
	Time time.Time `json:"time"`
	// CPU is the share of total machine capacity used since the previous sample.
	CPU         float64 `json:"cpu"`
	MemoryBytes uint64  `json:"memoryBytes"`
}

// Sink receives samples on the monitor goroutine. It must not block.
type Sink func(Sample)

// readProcess returns cumulative CPU seconds and resident memory for this process.
// It is replaced per platform and in tests.
var readProcess = platformReadProcess

// Monitor is an explicitly owned poller with a Start/Stop lifecycle.
type Monitor struct {
	interval time.Duration
	sink     Sink

	mu      sync.Mutex
	running bool
	stopped atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New returns a monitor that calls sink every interval.
func New(interval time.Duration, sink Sink) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if sink == nil {
		sink = func(Sample) {}
	}
	return &Monitor{interval: interval, sink: sink}
}

// Start begins polling in a new goroutine until Stop or ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	m.running = true
	m.stopped.Store(false)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(ctx, m.done)
	return nil
}

// Stop raises the cancellation flag and waits for the poller to exit. After
// Stop returns the sink is not called again.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.stopped.Store(true)
	m.cancel()
	<-m.done
	m.running = false
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	prevCPU, _, err := readProcess()
	if err != nil {
		prevCPU = 0
	}
	prevWall := time.Now()
	cores := float64(runtime.NumCPU())

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if m.stopped.Load() {
				return
			}
			cpu, mem, err := readProcess()
			if err != nil {
				continue
			}
			var frac float64
			if wall := now.Sub(prevWall).Seconds(); wall > 0 && cpu >= prevCPU {
				frac = (cpu - prevCPU) / (wall * cores)
			}
			prevCPU, prevWall = cpu, now
			m.sink(Sample{Time: now, CPU: frac, MemoryBytes: mem})
		}
	}
}
