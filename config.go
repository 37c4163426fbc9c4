package mend

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Config is the write-once handle shared by tasks and groups: logging, clock,
// observer and the default policy. It is read-only after NewConfig returns.
type Config struct {
	logger   Logger
	verbose  bool
	clock    clockwork.Clock
	observer Observer
	policy   Policy
}

// ConfigOption configures a Config.
type ConfigOption func(*Config)

// WithLogger sets the logger. A nil logger discards everything.
func WithLogger(l Logger) ConfigOption {
	return func(c *Config) {
		if l == nil {
			l = noopLogger{}
		}
		c.logger = l
	}
}

// WithVerbose toggles logging. It is on by default.
func WithVerbose(v bool) ConfigOption {
	return func(c *Config) {
		c.verbose = v
	}
}

// WithClock sets the clock used for retry and revert delays.
func WithClock(clock clockwork.Clock) ConfigOption {
	return func(c *Config) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithObserver registers an observer for lifecycle events.
func WithObserver(o Observer) ConfigOption {
	return func(c *Config) {
		c.observer = o
	}
}

// WithPolicy sets the default policy for tasks created with this config.
func WithPolicy(p Policy) ConfigOption {
	return func(c *Config) {
		c.policy = p
	}
}

// NewConfig builds a configuration handle. Pass it to tasks with UseConfig.
func NewConfig(opts ...ConfigOption) *Config {
	c := &Config{
		logger:  noopLogger{},
		verbose: true,
		clock:   clockwork.NewRealClock(),
		policy:  DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultConfig atomic.Pointer[Config]

// Configure installs the process-wide default configuration. It may be called
// once; later calls return ErrProgrammer.
func Configure(opts ...ConfigOption) error {
	if !defaultConfig.CompareAndSwap(nil, NewConfig(opts...)) {
		return programmerError("mend is already configured, it can only be configured once")
	}
	return nil
}

// DefaultConfig returns the process-wide configuration installed by Configure.
func DefaultConfig() (*Config, error) {
	c := defaultConfig.Load()
	if c == nil {
		return nil, programmerError("mend is not configured, call Configure or pass UseConfig")
	}
	return c, nil
}

// Verbose reports whether logging is enabled.
func (c *Config) Verbose() bool { return c.verbose }

// Policy returns the default task policy.
func (c *Config) Policy() Policy { return c.policy }

func (c *Config) debugf(format string, args ...any) { c.logf(c.logger.Debugf, format, args) }
func (c *Config) infof(format string, args ...any)  { c.logf(c.logger.Infof, format, args) }
func (c *Config) warnf(format string, args ...any)  { c.logf(c.logger.Warnf, format, args) }
func (c *Config) errorf(format string, args ...any) { c.logf(c.logger.Errorf, format, args) }

// logf never lets a failing logger change an outcome.
func (c *Config) logf(fn func(string, ...any), format string, args []any) {
	if !c.verbose {
		return
	}
	defer func() { _ = recover() }()
	fn(format, args...)
}

func (c *Config) emit(e Event) {
	if c.observer == nil {
		return
	}
	defer func() { _ = recover() }()
	c.observer.Observe(e)
}

// sleep waits for d on the configured clock. It returns early with ctx.Err()
// or errHalted when halt is closed.
func (c *Config) sleep(ctx context.Context, d time.Duration, halt <-chan struct{}) error {
	if d <= 0 {
		select {
		case <-halt:
			return errHalted
		default:
			return ctx.Err()
		}
	}
	t := c.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-halt:
		return errHalted
	case <-t.Chan():
		return nil
	}
}
