package model

import "time"

// Submission is one request's source, language selector and optional input.
type Submission struct {
	Code     string
	Language string
	Stdin    string
}

type EnvState string

const (
	StateCreated   EnvState = "created"
	StateStaged    EnvState = "staged"
	StateRunning   EnvState = "running"
	StateFinished  EnvState = "finished"
	StateDestroyed EnvState = "destroyed"
)

// Environment is the handle of one isolated container bound to exactly one
// submission. It is never reused.
type Environment struct {
	InstanceID  string
	ContainerID string
	Image       string
	Language    string
	State       EnvState
}

// Limits bounds a single run.
type Limits struct {
	Timeout     time.Duration
	OutputBytes int64
}

// RawOutcome is what the runner observed before classification.
type RawOutcome struct {
	Stdout     string
	Stderr     string
	ExitCode   int
	TimedOut   bool
	Overflowed bool
	Duration   time.Duration
}

type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeTimeout        Outcome = "timeout"
	OutcomeOutputOverflow Outcome = "output-overflow"
	OutcomeRuntimeFailure Outcome = "runtime-failure"
)

type Result struct {
	Output  string
	Outcome Outcome
}
