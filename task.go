package mend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/UniQw/mend-go/internal/ordinal"
	"github.com/UniQw/mend-go/internal/taskctx"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Executor performs the wrapped operation. Returning an error is a failed
// attempt; the returned value is checked by the task's SuccessFunc.
type Executor[T any] func(ctx context.Context) (T, error)

// SuccessFunc decides whether a value produced by the executor counts as success.
// It must be synchronous and side-effect free; it may be called more than once
// for the same value.
type SuccessFunc[T any] func(T) bool

// RevertFunc compensates the task's side effects. Returning false without an
// error states that the revert was tried and did not work; both false and a
// non-nil error lead to another revert attempt.
type RevertFunc func(ctx context.Context) (bool, error)

// RevertErr adapts an error-only compensation: a nil error means reverted.
func RevertErr(fn func(ctx context.Context) error) RevertFunc {
	return func(ctx context.Context) (bool, error) {
		if err := fn(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
}

// Result is a task's terminal value or error.
type Result[T any] struct {
	Value T
	Err   error
}

// Task is a self-healing operation: it retries until its success predicate
// holds and compensates with its revert function when retries run out.
//
// A Task runs lazily on the first Await and exactly once; later calls return
// the same result.
type Task[T any] struct {
	id              string
	exec            Executor[T]
	success         SuccessFunc[T]
	revert          RevertFunc
	revertOnFailure bool
	retryable       bool
	policy          Policy
	retryBackOff    backoff.BackOff
	revertBackOff   backoff.BackOff
	cfg             *Config

	mu             sync.Mutex
	started        bool
	group          *groupContext
	attempts       int
	revertAttempts int

	once  sync.Once
	done  chan struct{}
	value T
	err   error

	reverted  sync.Once
	revertErr error
}

// New creates a task around exec. It validates the configuration and returns
// ErrProgrammer on misuse; exec is not called until Await.
func New[T any](exec Executor[T], success SuccessFunc[T], opts ...Option) (*Task[T], error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.config
	if cfg == nil {
		var err error
		if cfg, err = DefaultConfig(); err != nil {
			return nil, err
		}
	}

	switch {
	case exec == nil:
		return nil, programmerError("task must have an executor")
	case success == nil:
		return nil, programmerError("task must have a success predicate to know if it succeeded")
	case o.revert == nil && !o.noRevert:
		return nil, programmerError("task must either have a revert function or explicitly opt out with NoRevert")
	case o.revert != nil && o.noRevert:
		return nil, programmerError("task can't have both a revert function and NoRevert")
	case o.notRetryable && o.noRevert:
		return nil, programmerError("task must either be retryable or revert on failure, use a plain function call instead")
	}

	p := o.resolvePolicy(cfg.policy)
	if o.revert != nil && p.MaxRevertAttempts == 0 {
		return nil, programmerError("task with a revert function must allow at least one revert attempt")
	}

	t := &Task[T]{
		id:              uuid.NewString(),
		exec:            exec,
		success:         success,
		revert:          o.revert,
		revertOnFailure: !o.noRevert,
		retryable:       !o.notRetryable,
		policy:          p,
		retryBackOff:    o.retryBackOff,
		revertBackOff:   o.revertBackOff,
		cfg:             cfg,
		done:            make(chan struct{}),
	}
	if t.retryBackOff == nil {
		t.retryBackOff = backoff.NewConstantBackOff(p.RetryDelay)
	}
	if t.revertBackOff == nil {
		t.revertBackOff = backoff.NewConstantBackOff(p.RevertDelay())
	}

	cfg.debugf("task created with id: %s retryable=%t revertOnFailure=%t maxRetryAttempts=%d retryDelay=%s maxRevertAttempts=%d revertRetryDelay=%s",
		t.id, t.retryable, t.revertOnFailure, p.MaxRetryAttempts, p.RetryDelay, p.MaxRevertAttempts, p.RevertDelay())
	cfg.emit(Event{Type: EventCreated, TaskID: t.id})
	return t, nil
}

// ID returns the task's correlation id.
func (t *Task[T]) ID() string { return t.id }

// Attempts returns how many retries have run so far.
func (t *Task[T]) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

// RevertAttempts returns how many times the revert function has been called.
func (t *Task[T]) RevertAttempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.revertAttempts
}

// Await runs the task on first call and blocks until it reaches a terminal
// state. Cancelling ctx stops waiting between retries; compensation still runs.
// The error, when not nil, is an *Error.
func (t *Task[T]) Await(ctx context.Context) (T, error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.started = true
		t.mu.Unlock()

		t.value, t.err = t.run(ctx)
		t.report()
		close(t.done)
	})
	<-t.done
	return t.value, t.err
}

// Done is closed once the task reached a terminal state.
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// Future starts the task in its own goroutine and delivers the result on the
// returned channel.
func (t *Task[T]) Future(ctx context.Context) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		v, err := t.Await(ctx)
		ch <- Result[T]{Value: v, Err: err}
	}()
	return ch
}

func (t *Task[T]) run(ctx context.Context) (T, error) {
	var zero T
	v, err := t.invoke(ctx, 0)
	if err != nil {
		t.cfg.warnf("task %s: operation failed: %v", t.id, err)
		return t.rescue(ctx, err)
	}
	ok, perr := t.check(v)
	if perr != nil {
		return zero, t.predicatePanicked(ctx, perr)
	}
	if ok {
		return v, nil
	}
	return t.rescue(ctx, nil)
}

// rescue is the retry-then-revert cascade.
func (t *Task[T]) rescue(ctx context.Context, cause error) (T, error) {
	var zero T
	if t.halted() {
		t.cfg.debugf("task %s is not rescued, its group is rolling back", t.id)
		return zero, t.fail(OutcomeFailed, errHalted)
	}
	t.cfg.debugf("task %s has failed and is beginning fail safe logic...", t.id)

	if !t.retryable {
		t.cfg.debugf("task %s is set as not retryable, skipped retry", t.id)
		return zero, t.compensate(ctx, multierr.Append(cause, errNotRetryable))
	}

	// an operation error during a retry is retried again without waiting
	skipDelay := false
	for {
		if t.halted() {
			t.cfg.debugf("task %s stopped retrying, its group is rolling back", t.id)
			return zero, t.fail(OutcomeFailed, errHalted)
		}
		if err := ctx.Err(); err != nil {
			t.cfg.warnf("task %s stopped retrying: %v", t.id, err)
			return zero, t.compensate(ctx, multierr.Append(cause, err))
		}

		t.mu.Lock()
		exhausted := t.attempts >= int(t.policy.MaxRetryAttempts)
		t.mu.Unlock()
		if exhausted {
			t.cfg.debugf("task %s has reached max retry attempts, failed retries", t.id)
			return zero, t.compensate(ctx, multierr.Append(cause, errRetriesDidNotSucceed))
		}

		if !skipDelay {
			d := t.retryBackOff.NextBackOff()
			if d == backoff.Stop {
				t.cfg.debugf("task %s retry backoff stopped, failed retries", t.id)
				return zero, t.compensate(ctx, multierr.Append(cause, errRetriesDidNotSucceed))
			}
			if err := t.cfg.sleep(ctx, d, t.haltChan()); err != nil {
				if errors.Is(err, errHalted) {
					t.cfg.debugf("task %s stopped retrying, its group is rolling back", t.id)
					return zero, t.fail(OutcomeFailed, errHalted)
				}
				t.cfg.warnf("task %s stopped retrying: %v", t.id, err)
				return zero, t.compensate(ctx, multierr.Append(cause, err))
			}
		}
		skipDelay = false

		t.mu.Lock()
		t.attempts++
		attempt := t.attempts
		t.mu.Unlock()
		t.cfg.debugf("task %s is being retried for the %s time...", t.id, ordinal.Of(attempt))
		t.cfg.emit(Event{Type: EventRetry, TaskID: t.id, GroupID: t.groupID(), Attempt: attempt})

		v, err := t.invoke(ctx, attempt)
		if err != nil {
			t.cfg.warnf("task %s: %s retry failed: %v", t.id, ordinal.Of(attempt), err)
			cause = err
			skipDelay = true
			continue
		}
		ok, perr := t.check(v)
		if perr != nil {
			return zero, t.predicatePanicked(ctx, perr)
		}
		if ok {
			t.cfg.debugf("task %s was retried successfully", t.id)
			return v, nil
		}
	}
}

// compensate runs the revert phase once the task gave up on succeeding.
func (t *Task[T]) compensate(ctx context.Context, cause error) error {
	if errors.Is(cause, errRetriesDidNotSucceed) {
		t.cfg.debugf("task %s failed its retries, reverting...", t.id)
	} else {
		t.cfg.debugf("task %s caught an error while retrying, reverting...", t.id)
	}

	if !t.revertOnFailure {
		t.cfg.debugf("task %s is not reverted because it was created with NoRevert", t.id)
		return t.fail(OutcomeFailed, cause)
	}
	if g := t.groupCtx(); g != nil {
		t.cfg.debugf("task %s needs to be reverted and is part of group %s, leaving the revert to the group", t.id, g.id)
		return t.fail(OutcomeFailed, multierr.Append(cause, errDeferredToGroup))
	}

	if err := t.revertOnce(context.WithoutCancel(ctx), int(t.policy.MaxRevertAttempts)); err != nil {
		return t.fail(OutcomeFatalNotReverted, multierr.Append(cause, err))
	}
	return t.fail(OutcomeFailedAndReverted, cause)
}

// predicatePanicked handles a success predicate that panicked: it is never
// retried and gets a single best-effort revert.
func (t *Task[T]) predicatePanicked(ctx context.Context, cause error) error {
	t.cfg.errorf("task %s caught a panic while calling its success predicate: %v", t.id, cause)
	if t.groupCtx() != nil {
		return t.fail(OutcomeFailed, multierr.Append(cause, errDeferredToGroup))
	}
	if !t.revertOnFailure {
		return t.fail(OutcomeFatalNotReverted, cause)
	}
	if err := t.revertOnce(context.WithoutCancel(ctx), 1); err != nil {
		return t.fail(OutcomeFatalNotReverted, multierr.Append(cause, err))
	}
	return t.fail(OutcomeFailedAndReverted, cause)
}

// revertOnce guarantees the compensation runs at most once per task.
func (t *Task[T]) revertOnce(ctx context.Context, maxAttempts int) error {
	t.reverted.Do(func() {
		t.revertErr = t.revertLoop(ctx, maxAttempts)
	})
	return t.revertErr
}

func (t *Task[T]) revertLoop(ctx context.Context, maxAttempts int) error {
	var errs error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			d := t.revertBackOff.NextBackOff()
			if d == backoff.Stop {
				break
			}
			// ctx is detached from cancellation here
			_ = t.cfg.sleep(ctx, d, nil)
		}

		t.mu.Lock()
		t.revertAttempts++
		attempt := t.revertAttempts
		t.mu.Unlock()
		t.cfg.debugf("task %s is being reverted, %s attempt...", t.id, ordinal.Of(attempt))

		ok, panicked, err := t.callRevert(ctx)
		ev := Event{Type: EventRevert, TaskID: t.id, GroupID: t.groupID(), Attempt: attempt, Err: err}
		switch {
		case panicked:
			t.cfg.errorf("task %s failed to revert, revert panicked: %v", t.id, err)
			t.cfg.emit(ev)
			return multierr.Append(errs, err)
		case err != nil:
			t.cfg.warnf("task %s caught an error while reverting, retrying to revert: %v", t.id, err)
			errs = multierr.Append(errs, fmt.Errorf("revert attempt %d: %w", attempt, err))
		case !ok:
			t.cfg.warnf("task %s failed to revert, retrying to revert...", t.id)
			ev.Rejected = true
			ev.Err = errRevertRejected
			errs = multierr.Append(errs, fmt.Errorf("revert attempt %d: %w", attempt, errRevertRejected))
		default:
			t.cfg.debugf("task %s was reverted successfully", t.id)
			t.cfg.emit(ev)
			return nil
		}
		t.cfg.emit(ev)
	}

	t.cfg.errorf("task %s failed to revert after %d attempts", t.id, t.RevertAttempts())
	if errs == nil {
		errs = errors.New("no revert attempt was made")
	}
	return errs
}

func (t *Task[T]) callRevert(ctx context.Context) (ok, panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, panicked = false, true
			err = fmt.Errorf("revert panicked: %v", r)
		}
	}()
	ok, err = t.revert(taskctx.With(ctx, t.info(t.Attempts())))
	return ok, false, err
}

func (t *Task[T]) invoke(ctx context.Context, attempt int) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()
	return t.exec(taskctx.With(ctx, t.info(attempt)))
}

func (t *Task[T]) check(v T) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("%w: %v", errPredicatePanic, r)
		}
	}()
	return t.success(v), nil
}

func (t *Task[T]) fail(o Outcome, cause error) error {
	return &Error{Outcome: o, TaskID: t.id, Err: cause}
}

func (t *Task[T]) report() {
	o := OutcomeOf(t.err)
	switch o {
	case OutcomeSucceeded:
		t.cfg.debugf("task %s succeeded", t.id)
	case OutcomeFatalNotReverted:
		t.cfg.errorf("task %s failed and could not be reverted: %v", t.id, t.err)
	default:
		t.cfg.infof("task %s finished: %v", t.id, t.err)
	}
	t.cfg.emit(Event{Type: EventOutcome, TaskID: t.id, GroupID: t.groupID(), Outcome: o, Err: t.err})
}

func (t *Task[T]) info(attempt int) taskctx.Info {
	return taskctx.Info{TaskID: t.id, GroupID: t.groupID(), Attempt: attempt}
}

func (t *Task[T]) groupCtx() *groupContext {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.group
}

func (t *Task[T]) groupID() string {
	if g := t.groupCtx(); g != nil {
		return g.id
	}
	return ""
}

func (t *Task[T]) haltChan() <-chan struct{} {
	if g := t.groupCtx(); g != nil {
		return g.halt
	}
	return nil
}

func (t *Task[T]) halted() bool {
	select {
	case <-t.haltChan():
		return true
	default:
		return false
	}
}
