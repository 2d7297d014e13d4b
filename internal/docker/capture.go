package docker

import (
	"bytes"
	"errors"
)

var errOutputOverflow = errors.New("output limit exceeded")

// outputBudget captures stdout and stderr against one shared byte budget.
// stdcopy writes from a single goroutine, so no locking is needed.
type outputBudget struct {
	remaining int64
	stdout    bytes.Buffer
	stderr    bytes.Buffer
}

func newOutputBudget(limit int64) *outputBudget {
	return &outputBudget{remaining: limit}
}

func (b *outputBudget) writers() (stdout, stderr *budgetWriter) {
	return &budgetWriter{b: b, buf: &b.stdout}, &budgetWriter{b: b, buf: &b.stderr}
}

type budgetWriter struct {
	b   *outputBudget
	buf *bytes.Buffer
}

func (w *budgetWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > w.b.remaining {
		w.b.remaining = 0
		return 0, errOutputOverflow
	}
	w.b.remaining -= int64(len(p))
	return w.buf.Write(p)
}
