package mend

import (
	"errors"
	"strings"
)

// ErrProgrammer is returned when the library is misused: an invalid task
// configuration, a missing predicate or configuring the process default twice.
var ErrProgrammer = errors.New("mend: programmer error")

// ErrFailed is returned when a task failed and no compensation was attempted,
// because the task was explicitly marked as not revertable.
var ErrFailed = errors.New("mend: failed")

// ErrFailedAndReverted is returned when a task or group failed but every
// compensation completed, leaving the system consistent.
var ErrFailedAndReverted = errors.New("mend: failed and reverted")

// ErrFatalNotReverted is returned when compensation itself failed. The system may
// be inconsistent; callers should escalate instead of retrying.
var ErrFatalNotReverted = errors.New("mend: fatal error, not reverted")

// ErrUnknownOutcome is returned when an invalid outcome name is parsed.
var ErrUnknownOutcome = errors.New("mend: unknown outcome")

// Internal signals. They only ever reach callers as the cause of an *Error.
var (
	errRetriesDidNotSucceed = errors.New("retries did not succeed")
	errRevertRejected       = errors.New("revert returned false")
	errHalted               = errors.New("halted by group rollback")
	errDeferredToGroup      = errors.New("revert deferred to group")
	errPredicatePanic       = errors.New("success predicate panicked")
	errNotRetryable         = errors.New("task is not retryable")
)

// Error is the error type returned by tasks and groups. Outcome tells which
// terminal state was reached; Err carries the underlying cause.
type Error struct {
	Outcome Outcome
	TaskID  string
	GroupID string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.sentinel().Error())
	switch {
	case e.GroupID != "":
		b.WriteString(": group ")
		b.WriteString(e.GroupID)
	case e.TaskID != "":
		b.WriteString(": task ")
		b.WriteString(e.TaskID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel matching the error's outcome.
func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

func (e *Error) sentinel() error {
	switch e.Outcome {
	case OutcomeProgrammerError:
		return ErrProgrammer
	case OutcomeFailed:
		return ErrFailed
	case OutcomeFailedAndReverted:
		return ErrFailedAndReverted
	default:
		return ErrFatalNotReverted
	}
}

// OutcomeOf returns the outcome carried by err. A nil error is OutcomeSucceeded;
// an error that is not a mend error yields the empty outcome.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeSucceeded
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Outcome
	}
	return ""
}

// IsMendError reports whether err is, or wraps, an error produced by this package.
func IsMendError(err error) bool {
	var me *Error
	return errors.As(err, &me)
}

func programmerError(msg string) error {
	return &Error{Outcome: OutcomeProgrammerError, Err: errors.New(msg)}
}
