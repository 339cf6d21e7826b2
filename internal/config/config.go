// Package config loads and validates the sentry daemon TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like "60s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the daemon-wide configuration loaded from sentry.toml.
type Config struct {
	General    General    `toml:"general"`
	WSI        WSI        `toml:"wsi"`
	Policy     Policy     `toml:"policy"`
	Ingest     Ingest     `toml:"ingest"`
	Search     Search     `toml:"search"`
	Embedding  Embedding  `toml:"embedding"`
	Store      Store      `toml:"store"`
	Temporal   Temporal   `toml:"temporal"`
	API        API        `toml:"api"`
	Checkpoint Checkpoint `toml:"checkpoint"`
}

// General holds daemon-wide operational settings.
type General struct {
	LogLevel         string   `toml:"log_level"`
	LockFile         string   `toml:"lock_file"`
	StopTimeBudget   Duration `toml:"stop_time_budget"`
	QueueHighWater   int      `toml:"queue_high_watermark"`
	ProcessorCadence Duration `toml:"processor_cadence"`
}

// WSI governs the Working Set Index bounds.
type WSI struct {
	Max      int `toml:"max"`
	TTLTurns int `toml:"ttl_turns"`
}

// Policy governs default rule parameters, keyed by rule id.
type Policy struct {
	Rules map[string]RuleConfig `toml:"rules"`
}

// RuleConfig is a single policy rule's enabled flag and free-form parameters.
type RuleConfig struct {
	Enabled bool           `toml:"enabled"`
	Params  map[string]any `toml:"params"`
}

// Ingest governs the ingest queue and queue processor.
type Ingest struct {
	MaxAttempts   int      `toml:"max_attempts"`
	NonfatalRegex string   `toml:"nonfatal_regex"`
	BackoffBase   Duration `toml:"backoff_base"`
	BackoffMax    Duration `toml:"backoff_max"`
}

// Search governs hybrid search ranking weights.
type Search struct {
	Weights      SearchWeights `toml:"weights"`
	OutcomeBonus OutcomeBonus  `toml:"outcome_bonus"`
}

// SearchWeights are the combined-score coefficients from the ranking formula.
type SearchWeights struct {
	Vector   float64 `toml:"vector"`
	BM25     float64 `toml:"bm25"`
	Time     float64 `toml:"time"`
	Feedback float64 `toml:"feedback"`
}

// OutcomeBonus is added to the ranked score based on meta.outcome_status.
type OutcomeBonus struct {
	Success float64 `toml:"success"`
	Failure float64 `toml:"failure"`
}

// Embedding governs the embedding client.
type Embedding struct {
	Model         string   `toml:"model"`
	Dim           int      `toml:"dim"`
	Endpoint      string   `toml:"endpoint"`
	SingleTimeout Duration `toml:"single_timeout"`
	BatchTimeout  Duration `toml:"batch_timeout"`
	DailyTokenCap int      `toml:"daily_token_cap"`
}

// Store governs the memory/solutions persistence backend.
type Store struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// Temporal governs the ingest pipeline's workflow orchestration.
type Temporal struct {
	HostPort    string   `toml:"host_port"`
	TaskQueue   string   `toml:"task_queue"`
	CronSpec    string   `toml:"cron_spec"`
	DrainBudget Duration `toml:"drain_budget"`
}

// API governs the HTTP RPC surface.
type API struct {
	Addr      string `toml:"addr"`
	AuthToken string `toml:"auth_token"`
}

// Checkpoint governs the Checkpoint Manager.
type Checkpoint struct {
	Retention     int `toml:"retention"`
	PeriodicEvery int `toml:"periodic_every"`
}

// Clone returns a copy safe for a reader to hold onto while the manager
// swaps the live config underneath it.
func (cfg *Config) Clone() *Config {
	if cfg == nil {
		return nil
	}
	out := *cfg
	out.Policy.Rules = make(map[string]RuleConfig, len(cfg.Policy.Rules))
	for k, v := range cfg.Policy.Rules {
		params := make(map[string]any, len(v.Params))
		for pk, pv := range v.Params {
			params[pk] = pv
		}
		v.Params = params
		out.Policy.Rules[k] = v
	}
	return &out
}

// Default returns a Config with every field at its applied default,
// for callers that run without a daemon config file present (the hook
// entrypoint runs per-event and fails open rather than erroring out
// when sentry.toml hasn't been set up yet).
func Default() *Config {
	cfg := &Config{Policy: Policy{Rules: map[string]RuleConfig{}}}
	applyDefaults(cfg)
	normalizePaths(cfg)
	return cfg
}

// Load reads and validates a sentry.toml configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&cfg)
	normalizePaths(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LockFile == "" {
		cfg.General.LockFile = "~/.sentry/sentry.lock"
	}
	if cfg.General.StopTimeBudget.Duration == 0 {
		cfg.General.StopTimeBudget.Duration = 2 * time.Second
	}
	if cfg.General.QueueHighWater == 0 {
		cfg.General.QueueHighWater = 500
	}
	if cfg.General.ProcessorCadence.Duration == 0 {
		cfg.General.ProcessorCadence.Duration = 15 * time.Minute
	}

	if cfg.WSI.Max == 0 {
		cfg.WSI.Max = 10
	}
	if cfg.WSI.TTLTurns == 0 {
		cfg.WSI.TTLTurns = 20
	}

	if cfg.Ingest.MaxAttempts == 0 {
		cfg.Ingest.MaxAttempts = 5
	}
	if cfg.Ingest.NonfatalRegex == "" {
		cfg.Ingest.NonfatalRegex = `timed out|ECONN|ETIMEDOUT|connection refused`
	}
	if cfg.Ingest.BackoffBase.Duration == 0 {
		cfg.Ingest.BackoffBase.Duration = 30 * time.Second
	}
	if cfg.Ingest.BackoffMax.Duration == 0 {
		cfg.Ingest.BackoffMax.Duration = 10 * time.Minute
	}

	if cfg.Search.Weights == (SearchWeights{}) {
		cfg.Search.Weights = SearchWeights{Vector: 0.60, BM25: 0.30, Time: 0.10, Feedback: 0.15}
	}
	if cfg.Search.OutcomeBonus == (OutcomeBonus{}) {
		cfg.Search.OutcomeBonus = OutcomeBonus{Success: 0.10, Failure: -0.05}
	}

	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dim == 0 {
		cfg.Embedding.Dim = 1536
	}
	if cfg.Embedding.SingleTimeout.Duration == 0 {
		cfg.Embedding.SingleTimeout.Duration = 5 * time.Second
	}
	if cfg.Embedding.BatchTimeout.Duration == 0 {
		cfg.Embedding.BatchTimeout.Duration = 10 * time.Second
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Store.DSN == "" {
		cfg.Store.DSN = "~/.sentry/memory.db"
	}

	if cfg.Temporal.HostPort == "" {
		cfg.Temporal.HostPort = "127.0.0.1:7233"
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = "sentry-ingest-queue"
	}
	if cfg.Temporal.CronSpec == "" {
		cfg.Temporal.CronSpec = "*/15 * * * *"
	}
	if cfg.Temporal.DrainBudget.Duration == 0 {
		cfg.Temporal.DrainBudget.Duration = time.Second
	}

	if cfg.API.Addr == "" {
		cfg.API.Addr = "127.0.0.1:8791"
	}

	if cfg.Checkpoint.Retention == 0 {
		cfg.Checkpoint.Retention = 20
	}
	if cfg.Checkpoint.PeriodicEvery == 0 {
		cfg.Checkpoint.PeriodicEvery = 50
	}
}

func normalizePaths(cfg *Config) {
	cfg.General.LockFile = ExpandHome(strings.TrimSpace(cfg.General.LockFile))
	cfg.Store.DSN = ExpandHome(strings.TrimSpace(cfg.Store.DSN))
}

func validate(cfg *Config) error {
	if cfg.WSI.Max <= 0 {
		return fmt.Errorf("wsi.max must be positive")
	}
	if cfg.Embedding.Dim <= 0 {
		return fmt.Errorf("embedding.dim must be positive")
	}
	if cfg.Ingest.MaxAttempts <= 0 {
		return fmt.Errorf("ingest.max_attempts must be positive")
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
