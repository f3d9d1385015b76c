package models

// Outcome is the tagged result of processing one worklist step.
// Only the output boundary encodes it into an HTTP-status column.
type Outcome string

const (
	OutcomeUnset     Outcome = ""          // Zero value = unset/unknown
	OutcomeFetched   Outcome = "fetched"   // Fetch completed successfully
	OutcomeFailed    Outcome = "failed"    // Fetch attempted but failed (after retries or non-retryable status)
	OutcomeBlocked   Outcome = "blocked"   // Disallowed by robots.txt, reported as a row
	OutcomeSkipped   Outcome = "skipped"   // Disallowed by robots.txt, skipped silently
	OutcomeCancelled Outcome = "cancelled" // Shutdown observed after the delay wait; no fetch
	OutcomeFinished  Outcome = "finished"  // Worklist exhausted or shutdown already requested
)

// String implements fmt.Stringer for logging
func (o Outcome) String() string {
	if o == "" {
		return "unset"
	}
	return string(o)
}

// IsValid returns true if the outcome is a known value
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeFetched, OutcomeFailed, OutcomeBlocked, OutcomeSkipped, OutcomeCancelled, OutcomeFinished:
		return true
	}
	return false
}

// EmitsRow reports whether a step with this outcome produces an output row.
func (o Outcome) EmitsRow() bool {
	switch o {
	case OutcomeFetched, OutcomeFailed, OutcomeBlocked:
		return true
	}
	return false
}
