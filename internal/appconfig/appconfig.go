// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mwiater/edgebench/internal/benchmark"
	"github.com/mwiater/edgebench/internal/llm"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// EnvPrefix is the prefix of environment variables that override config keys.
	EnvPrefix = "EDGEBENCH"

	defaultModelsDir       = "models"
	defaultDatasetsDir     = "datasets"
	defaultDataDir         = "data"
	defaultLogFile         = "edgebench.log"
	defaultMonitorInterval = 500 * time.Millisecond
	defaultListenAddr      = "127.0.0.1:8089"

	// BackendLlama runs models through the native llama.cpp binding.
	BackendLlama = "llama"
	// BackendToy runs the built-in deterministic model.
	BackendToy = "toy"
)

// Config represents the top-level application configuration.
type Config struct {
	ModelsDir   string `json:"modelsDir" mapstructure:"modelsDir"`
	DatasetsDir string `json:"datasetsDir" mapstructure:"datasetsDir"`
	DataDir     string `json:"dataDir" mapstructure:"dataDir"`
	LogFile     string `json:"logFile,omitempty" mapstructure:"logFile"`
	LogLevel    string `json:"logLevel,omitempty" mapstructure:"logLevel"`
	Debug       bool   `json:"debug" mapstructure:"debug"`
	Backend     string `json:"backend" mapstructure:"backend"`
	Tiers       []int  `json:"tiers" mapstructure:"tiers"`
	// MonitorIntervalMs is the resource polling period; negative disables polling.
	MonitorIntervalMs int        `json:"monitorIntervalMs" mapstructure:"monitorIntervalMs"`
	Generation        llm.Config `json:"generation" mapstructure:"generation"`
	HTTP              HTTPConfig `json:"http" mapstructure:"http"`
	ConfigPath        string     `json:"-" mapstructure:"-"`
}

// HTTPConfig configures the control API.
type HTTPConfig struct {
	Addr           string   `json:"addr" mapstructure:"addr"`
	AllowedOrigins []string `json:"allowedOrigins" mapstructure:"allowedOrigins"`
}

// RegisterDefaults installs the default value of every key in v, so that
// environment variables can override keys the config file omits.
func RegisterDefaults(v *viper.Viper) {
	gen := llm.DefaultConfig()
	v.SetDefault("modelsDir", defaultModelsDir)
	v.SetDefault("datasetsDir", defaultDatasetsDir)
	v.SetDefault("dataDir", defaultDataDir)
	v.SetDefault("logFile", defaultLogFile)
	v.SetDefault("logLevel", "info")
	v.SetDefault("debug", false)
	v.SetDefault("backend", BackendLlama)
	v.SetDefault("tiers", benchmark.DefaultTiers)
	v.SetDefault("monitorIntervalMs", int(defaultMonitorInterval/time.Millisecond))
	v.SetDefault("generation.contextSize", gen.ContextSize)
	v.SetDefault("generation.batchSize", gen.BatchSize)
	v.SetDefault("generation.predictTokens", gen.PredictTokens)
	v.SetDefault("generation.safetyMargin", gen.SafetyMargin)
	v.SetDefault("generation.threads", gen.Threads)
	v.SetDefault("generation.sampler.repeatLastN", gen.Sampler.RepeatLastN)
	v.SetDefault("generation.sampler.repeatPenalty", gen.Sampler.RepeatPenalty)
	v.SetDefault("generation.sampler.temperature", gen.Sampler.Temperature)
	v.SetDefault("http.addr", defaultListenAddr)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	var errs []error
	switch c.BackendName() {
	case BackendLlama, BackendToy:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (want %q or %q)", c.Backend, BackendLlama, BackendToy))
	}
	for _, size := range c.Tiers {
		if size <= 0 {
			errs = append(errs, fmt.Errorf("tier sizes must be positive, got %d", size))
		}
	}
	if g := c.Generation; g.ContextSize > 0 && g.PredictTokens >= g.ContextSize {
		errs = append(errs, fmt.Errorf("generation.predictTokens (%d) must be below generation.contextSize (%d)", g.PredictTokens, g.ContextSize))
	}
	return errors.Join(errs...)
}

// ModelsPath returns the weights directory, applying a default if not set.
func (c Config) ModelsPath() string { return orDefault(c.ModelsDir, defaultModelsDir) }

// DatasetsPath returns the dataset directory, applying a default if not set.
func (c Config) DatasetsPath() string { return orDefault(c.DatasetsDir, defaultDatasetsDir) }

// StorePath returns the results file inside the data directory.
func (c Config) StorePath() string {
	return benchmark.StorePath(orDefault(c.DataDir, defaultDataDir))
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return filepath.Join(orDefault(c.DataDir, defaultDataDir), defaultLogFile)
}

// LogLevelName returns the configured level; debug mode forces "debug".
func (c Config) LogLevelName() string {
	if c.Debug {
		return "debug"
	}
	return orDefault(c.LogLevel, "info")
}

// BackendName returns the normalized inference backend.
func (c Config) BackendName() string {
	return strings.ToLower(orDefault(c.Backend, BackendLlama))
}

// QueueTiers returns the work-queue tiers, falling back to the defaults.
func (c Config) QueueTiers() []int {
	if len(c.Tiers) == 0 {
		return benchmark.DefaultTiers
	}
	return c.Tiers
}

// MonitorInterval returns the resource polling period. A negative value disables polling.
func (c Config) MonitorInterval() time.Duration {
	switch {
	case c.MonitorIntervalMs < 0:
		return -1
	case c.MonitorIntervalMs == 0:
		return defaultMonitorInterval
	default:
		return time.Duration(c.MonitorIntervalMs) * time.Millisecond
	}
}

// GenerationConfig returns the session policy with zero fields defaulted.
func (c Config) GenerationConfig() llm.Config {
	return c.Generation.WithDefaults()
}

// ListenAddr returns the control API address, applying a default if not set.
func (c Config) ListenAddr() string { return orDefault(c.HTTP.Addr, defaultListenAddr) }

// CORSOrigins returns the origins allowed by the control API.
func (c Config) CORSOrigins() []string {
	if len(c.HTTP.AllowedOrigins) == 0 {
		return []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	return c.HTTP.AllowedOrigins
}

func orDefault(v, def string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return def
}
