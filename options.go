package mend

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

type options struct {
	config       *Config
	revert       RevertFunc
	noRevert     bool
	notRetryable bool

	// policy replaces the config's default policy when set; policyMods are
	// applied on top of whichever policy wins.
	policy     *Policy
	policyMods []func(*Policy)

	retryBackOff  backoff.BackOff
	revertBackOff backoff.BackOff
}

// Option is a function that configures a Task in New.
type Option func(*options)

// Revert sets the compensating action run when the task cannot succeed.
func Revert(fn RevertFunc) Option {
	return func(o *options) {
		o.revert = fn
	}
}

// NoRevert declares that the task needs no compensation on failure.
// It cannot be combined with Revert or NotRetryable.
func NoRevert() Option {
	return func(o *options) {
		o.noRevert = true
	}
}

// NotRetryable skips the retry loop and goes straight to compensation.
func NotRetryable() Option {
	return func(o *options) {
		o.notRetryable = true
	}
}

// MaxRetryAttempts sets how many times the operation is re-run after the first attempt.
func MaxRetryAttempts(n uint) Option {
	return func(o *options) {
		o.policyMods = append(o.policyMods, func(p *Policy) { p.MaxRetryAttempts = n })
	}
}

// RetryDelay sets the wait before each re-run.
func RetryDelay(d time.Duration) Option {
	return func(o *options) {
		o.policyMods = append(o.policyMods, func(p *Policy) { p.RetryDelay = d })
	}
}

// MaxRevertAttempts sets the total number of revert calls allowed.
func MaxRevertAttempts(n uint) Option {
	return func(o *options) {
		o.policyMods = append(o.policyMods, func(p *Policy) { p.MaxRevertAttempts = n })
	}
}

// RevertRetryDelay sets the wait between revert attempts. It defaults to the retry delay.
func RevertRetryDelay(d time.Duration) Option {
	return func(o *options) {
		o.policyMods = append(o.policyMods, func(p *Policy) { p.RevertRetryDelay = &d })
	}
}

// TaskPolicy replaces the configuration's default policy for this task.
func TaskPolicy(p Policy) Option {
	return func(o *options) {
		o.policy = &p
	}
}

// RetryBackOff computes retry delays from b instead of the constant RetryDelay.
// backoff.Stop ends the retry loop early. b is owned by the task and must not be shared.
func RetryBackOff(b backoff.BackOff) Option {
	return func(o *options) {
		o.retryBackOff = b
	}
}

// RevertBackOff computes the delays between revert attempts from b.
// b is owned by the task and must not be shared.
func RevertBackOff(b backoff.BackOff) Option {
	return func(o *options) {
		o.revertBackOff = b
	}
}

// UseConfig binds the task to c instead of the process-wide default.
func UseConfig(c *Config) Option {
	return func(o *options) {
		o.config = c
	}
}

// resolvePolicy layers the task's overrides on top of base.
func (o *options) resolvePolicy(base Policy) Policy {
	p := base
	if o.policy != nil {
		p = *o.policy
	}
	for _, mod := range o.policyMods {
		mod(&p)
	}
	return p
}
