package mdap

import "fmt"

// #region config

// Config holds the voting protocol parameters.
type Config struct {
	KMargin       int `json:"k_margin" yaml:"k_margin" toml:"k_margin"`
	MaxCandidates int `json:"max_candidates" yaml:"max_candidates" toml:"max_candidates"`
	BatchSize     int `json:"batch_escalation_size,omitempty" yaml:"batch_escalation_size,omitempty" toml:"batch_escalation_size"` // 0 = k_margin
}

// DefaultConfig mirrors the reference demo settings.
func DefaultConfig() Config {
	return Config{KMargin: 2, MaxCandidates: 10, BatchSize: 2}
}

// NewConfig builds and validates a config.
func NewConfig(kMargin, maxCandidates, batchSize int) (Config, error) {
	c := Config{KMargin: kMargin, MaxCandidates: maxCandidates, BatchSize: batchSize}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects non-positive values and caps below the smallest sample
// count at which a margin of KMargin is possible.
func (c Config) Validate() error {
	if c.KMargin < 1 {
		return fmt.Errorf("%w: k_margin must be >= 1, got %d", ErrInvalidConfig, c.KMargin)
	}
	if c.MaxCandidates < 1 {
		return fmt.Errorf("%w: max_candidates must be >= 1, got %d", ErrInvalidConfig, c.MaxCandidates)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: batch_escalation_size must be >= 0, got %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.MaxCandidates < c.MinReachable() {
		return fmt.Errorf("%w: max_candidates %d < k_margin %d (margin unreachable)",
			ErrInvalidConfig, c.MaxCandidates, c.KMargin)
	}
	return nil
}

// MinReachable is the smallest sample count for which a confident decision
// is possible: k unanimous votes give margin k.
func (c Config) MinReachable() int {
	return c.KMargin
}

// Increment is the per-batch sample count, capped at MaxCandidates.
func (c Config) Increment() int {
	n := c.BatchSize
	if n == 0 {
		n = c.KMargin
	}
	if n > c.MaxCandidates {
		n = c.MaxCandidates
	}
	return n
}

// String renders the config for logs and tables.
func (c Config) String() string {
	return fmt.Sprintf("k=%d cap=%d batch=%d", c.KMargin, c.MaxCandidates, c.Increment())
}

// #endregion
