package msgflow

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coregx/msgflow/core"
)

// fileConfig mirrors core.Config in YAML-friendly shape: durations as
// strings ("500ms", "5s") rather than raw nanosecond integers.
type fileConfig struct {
	Dedup struct {
		Window          string `yaml:"window"`
		MaxCacheSize    int    `yaml:"maxCacheSize"`
		DigestAlgorithm string `yaml:"digestAlgorithm"`
		ScopeContent    bool   `yaml:"scopeContentOnly"`
	} `yaml:"dedup"`
	RateLimit struct {
		TokensPerSecond       int    `yaml:"tokensPerSecond"`
		Capacity              int    `yaml:"capacity"`
		RecoveryCheckInterval string `yaml:"recoveryCheckInterval"`
	} `yaml:"rateLimit"`
	Ordering struct {
		Enabled            bool   `yaml:"enabled"`
		MaxWait            int64  `yaml:"maxWaitMs"`
		MaxPendingMessages int    `yaml:"maxPendingMessages"`
		LatePolicy         string `yaml:"latePolicy"`
	} `yaml:"ordering"`
	Timeout struct {
		DedupChecking string `yaml:"dedupChecking"`
		RateLimiting  string `yaml:"rateLimiting"`
		Preprocessing string `yaml:"preprocessing"`
		Sending       string `yaml:"sending"`
		Sent          string `yaml:"sent"`
		OrderingWait  string `yaml:"orderingWait"`
		Default       string `yaml:"default"`
	} `yaml:"timeout"`
	Retry struct {
		BaseDelay         string  `yaml:"baseDelay"`
		BackoffMultiplier float64 `yaml:"backoffMultiplier"`
		MaxDelay          string  `yaml:"maxDelay"`
		MaxRetries        int     `yaml:"maxRetries"`
	} `yaml:"retry"`
}

// LoadConfigFile reads a YAML file into a core.Config, starting from
// core.DefaultConfig and overriding only the fields present in the file.
// Durations are parsed with time.ParseDuration ("500ms", "5s", "1m").
func LoadConfigFile(path string) (core.Config, error) {
	cfg := core.DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, NewErrorWithCause(ErrCodeConfiguration, "failed to read config file", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return cfg, NewErrorWithCause(ErrCodeConfiguration, "failed to parse config file", err)
	}

	if err := applyFileConfig(&cfg, fc); err != nil {
		return cfg, NewErrorWithCause(ErrCodeConfiguration, "invalid config file value", err)
	}
	return cfg, nil
}

func applyFileConfig(cfg *core.Config, fc fileConfig) error {
	if fc.Dedup.Window != "" {
		d, err := time.ParseDuration(fc.Dedup.Window)
		if err != nil {
			return err
		}
		cfg.Dedup.Window = d
	}
	if fc.Dedup.MaxCacheSize > 0 {
		cfg.Dedup.MaxCacheSize = fc.Dedup.MaxCacheSize
	}
	if fc.Dedup.DigestAlgorithm != "" {
		cfg.Dedup.DigestAlgorithm = fc.Dedup.DigestAlgorithm
	}
	if fc.Dedup.ScopeContent {
		cfg.Dedup.Scope = core.ScopeContentOnly
	}

	if fc.RateLimit.TokensPerSecond > 0 {
		cfg.RateLimit.TokensPerSecond = fc.RateLimit.TokensPerSecond
	}
	if fc.RateLimit.Capacity > 0 {
		cfg.RateLimit.Capacity = fc.RateLimit.Capacity
	}
	if fc.RateLimit.RecoveryCheckInterval != "" {
		d, err := time.ParseDuration(fc.RateLimit.RecoveryCheckInterval)
		if err != nil {
			return err
		}
		cfg.RateLimit.RecoveryCheckInterval = d
	}

	cfg.Ordering.Enabled = fc.Ordering.Enabled
	if fc.Ordering.MaxWait > 0 {
		cfg.Ordering.MaxWait = fc.Ordering.MaxWait
	}
	if fc.Ordering.MaxPendingMessages > 0 {
		cfg.Ordering.MaxPendingMessages = fc.Ordering.MaxPendingMessages
	}
	if fc.Ordering.LatePolicy == "park" {
		cfg.Ordering.LatePolicy = core.LateAsPark
	}

	timeouts := map[*time.Duration]string{
		&cfg.Timeout.DedupChecking: fc.Timeout.DedupChecking,
		&cfg.Timeout.RateLimiting:  fc.Timeout.RateLimiting,
		&cfg.Timeout.Preprocessing: fc.Timeout.Preprocessing,
		&cfg.Timeout.Sending:       fc.Timeout.Sending,
		&cfg.Timeout.Sent:          fc.Timeout.Sent,
		&cfg.Timeout.OrderingWait:  fc.Timeout.OrderingWait,
		&cfg.Timeout.Default:      fc.Timeout.Default,
	}
	for field, raw := range timeouts {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*field = d
	}

	if fc.Retry.BaseDelay != "" {
		d, err := time.ParseDuration(fc.Retry.BaseDelay)
		if err != nil {
			return err
		}
		cfg.Retry.BaseDelay = d
	}
	if fc.Retry.BackoffMultiplier > 0 {
		cfg.Retry.BackoffMultiplier = fc.Retry.BackoffMultiplier
	}
	if fc.Retry.MaxDelay != "" {
		d, err := time.ParseDuration(fc.Retry.MaxDelay)
		if err != nil {
			return err
		}
		cfg.Retry.MaxDelay = d
	}
	if fc.Retry.MaxRetries > 0 {
		cfg.Retry.MaxRetries = fc.Retry.MaxRetries
	}

	return nil
}

// WithConfigFile loads a core.Config from a YAML file via LoadConfigFile
// and applies it, equivalent to WithConfig(loaded) but surfacing file and
// parse errors through the Option chain.
func WithConfigFile(path string) Option {
	return func(p *Processor) error {
		cfg, err := LoadConfigFile(path)
		if err != nil {
			return err
		}
		p.coreCfg = cfg
		return nil
	}
}
