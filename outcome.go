package mend

// Outcome is the terminal state of a task or group.
// Use the exported constants instead of raw strings to avoid typos.
type Outcome string

const (
	// OutcomeSucceeded means the operation's success predicate held. It never
	// appears on an error and is used for observation only.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeProgrammerError means the library was misused.
	OutcomeProgrammerError Outcome = "programmer_error"
	// OutcomeFailed means the task failed without attempting compensation.
	OutcomeFailed Outcome = "failed"
	// OutcomeFailedAndReverted means the task failed and was compensated.
	OutcomeFailedAndReverted Outcome = "failed_and_reverted"
	// OutcomeFatalNotReverted means compensation failed.
	OutcomeFatalNotReverted Outcome = "fatal_not_reverted"
)

// AllOutcomes lists every valid outcome in a stable order.
var AllOutcomes = []Outcome{
	OutcomeSucceeded,
	OutcomeProgrammerError,
	OutcomeFailed,
	OutcomeFailedAndReverted,
	OutcomeFatalNotReverted,
}

// String returns the raw string value of the outcome.
func (o Outcome) String() string { return string(o) }

// ParseOutcome converts a string into an Outcome, returning an error for unknown values.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case string(OutcomeSucceeded):
		return OutcomeSucceeded, nil
	case string(OutcomeProgrammerError):
		return OutcomeProgrammerError, nil
	case string(OutcomeFailed):
		return OutcomeFailed, nil
	case string(OutcomeFailedAndReverted):
		return OutcomeFailedAndReverted, nil
	case string(OutcomeFatalNotReverted):
		return OutcomeFatalNotReverted, nil
	default:
		return "", ErrUnknownOutcome
	}
}
