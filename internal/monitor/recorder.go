package monitor

import "sync"

// Usage summarizes the samples of one run.
type Usage struct {
	Samples         int     `json:"samples"`
	MeanCPU         float64 `json:"meanCpu"`
	PeakCPU         float64 `json:"peakCpu"`
	MeanMemoryBytes uint64  `json:"meanMemoryBytes"`
	PeakMemoryBytes uint64  `json:"peakMemoryBytes"`
}

// Recorder is a Sink that keeps running totals. It is safe to read while the
// monitor is writing.
type Recorder struct {
	mu     sync.Mutex
	usage  Usage
	cpuSum float64
	memSum float64
	last   Sample
	next   Sink
}

// NewRecorder returns a recorder that also forwards every sample to next, if set.
func NewRecorder(next Sink) *Recorder {
	return &Recorder{next: next}
}

// Record implements Sink.
func (r *Recorder) Record(s Sample) {
	r.mu.Lock()
	r.usage.Samples++
	r.cpuSum += s.CPU
	r.memSum += float64(s.MemoryBytes)
	r.usage.PeakCPU = max(r.usage.PeakCPU, s.CPU)
	r.usage.PeakMemoryBytes = max(r.usage.PeakMemoryBytes, s.MemoryBytes)
	r.last = s
	r.mu.Unlock()

	if r.next != nil {
		r.next(s)
	}
}

// Usage returns the summary so far.
func (r *Recorder) Usage() Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.usage
	if u.Samples > 0 {
		u.MeanCPU = r.cpuSum / float64(u.Samples)
		u.MeanMemoryBytes = uint64(r.memSum / float64(u.Samples))
	}
	return u
}

// Last returns the most recent sample.
func (r *Recorder) Last() Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
