package mend

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds the retry and revert budget applied to tasks.
type Policy struct {
	// MaxRetryAttempts is the number of re-runs after the first attempt.
	MaxRetryAttempts uint `yaml:"max_retry_attempts"`
	// RetryDelay is the wait before each re-run.
	RetryDelay time.Duration `yaml:"retry_delay"`
	// MaxRevertAttempts is the total number of revert calls allowed.
	MaxRevertAttempts uint `yaml:"max_revert_attempts"`
	// RevertRetryDelay is the wait between revert attempts. Nil means RetryDelay.
	RevertRetryDelay *time.Duration `yaml:"revert_retry_delay,omitempty"`
}

// DefaultPolicy returns 5 retries one second apart and 5 revert attempts.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetryAttempts:  5,
		RetryDelay:        time.Second,
		MaxRevertAttempts: 5,
	}
}

// RevertDelay returns the effective wait between revert attempts.
func (p Policy) RevertDelay() time.Duration {
	if p.RevertRetryDelay != nil {
		return *p.RevertRetryDelay
	}
	return p.RetryDelay
}

// LoadPolicy reads a policy from a YAML file. Environment variables in the file
// are expanded and fields that are absent keep their DefaultPolicy value.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}

	p := DefaultPolicy()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &p); err != nil {
		return Policy{}, fmt.Errorf("failed to parse policy file: %w", err)
	}
	return p, nil
}
