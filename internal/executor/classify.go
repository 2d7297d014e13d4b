package executor

import "github.com/sudankdk/runbox/internal/model"

const (
	TimeLimitMessage   = "Time limit exceeded."
	OutputLimitMessage = "Memory limit exceeded."
)

// Classify maps a raw outcome to the single user-facing result. First match
// wins: timeout, overflow, non-zero exit with stderr, then stdout.
func Classify(raw model.RawOutcome) model.Result {
	switch {
	case raw.TimedOut:
		return model.Result{Output: TimeLimitMessage, Outcome: model.OutcomeTimeout}
	case raw.Overflowed:
		return model.Result{Output: OutputLimitMessage, Outcome: model.OutcomeOutputOverflow}
	case raw.ExitCode != 0 && raw.Stderr != "":
		return model.Result{Output: raw.Stderr, Outcome: model.OutcomeRuntimeFailure}
	case raw.ExitCode != 0:
		return model.Result{Output: raw.Stdout, Outcome: model.OutcomeRuntimeFailure}
	default:
		return model.Result{Output: raw.Stdout, Outcome: model.OutcomeSuccess}
	}
}
