package llm

import "runtime"

const (
	defaultContextSize   = 2048
	defaultBatchSize     = 512
	defaultPredictTokens = 128
	defaultSafetyMargin  = 10
)

// Config is the generation policy applied by a Session.
type Config struct {
	ContextSize   int           `json:"contextSize" mapstructure:"contextSize"`
	BatchSize     int           `json:"batchSize" mapstructure:"batchSize"`
	PredictTokens int           `json:"predictTokens" mapstructure:"predictTokens"`
	SafetyMargin  int           `json:"safetyMargin" mapstructure:"safetyMargin"`
	Threads       int           `json:"threads" mapstructure:"threads"`
	Sampler       SamplerParams `json:"sampler" mapstructure:"sampler"`
	Stop          StopPolicy    `json:"stop" mapstructure:"stop"`
}

// DefaultConfig returns the conservative policy used on memory-constrained hosts.
func DefaultConfig() Config {
	return Config{
		ContextSize:   defaultContextSize,
		BatchSize:     defaultBatchSize,
		PredictTokens: defaultPredictTokens,
		SafetyMargin:  defaultSafetyMargin,
		Threads:       defaultThreads(),
		Sampler: SamplerParams{
			RepeatLastN:   64,
			RepeatPenalty: 1.1,
			Temperature:   0.4,
		},
		Stop: DefaultStopPolicy(),
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ContextSize <= 0 {
		c.ContextSize = d.ContextSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.PredictTokens <= 0 {
		c.PredictTokens = d.PredictTokens
	}
	if c.SafetyMargin < 0 {
		c.SafetyMargin = 0
	}
	if c.Threads <= 0 {
		c.Threads = d.Threads
	}
	if c.Sampler == (SamplerParams{}) {
		c.Sampler = d.Sampler
	}
	if len(c.Stop.Suffix) == 0 && len(c.Stop.Contains) == 0 {
		c.Stop = d.Stop
	}
	return c
}

func (c Config) params() Params {
	return Params{
		ContextSize: c.ContextSize,
		BatchSize:   c.BatchSize,
		Threads:     c.Threads,
		Sampler:     c.Sampler,
	}
}

// defaultThreads leaves two cores for the rest of the device, keeping at least one.
func defaultThreads() int {
	return max(1, min(8, runtime.NumCPU()-2))
}
