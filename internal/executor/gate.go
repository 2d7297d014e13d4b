package executor

import (
	"context"
	"errors"
	"time"
)

var ErrBusy = errors.New("execution capacity exhausted")

// Gate bounds how many environments exist at once. A nil Gate admits
// everything.
type Gate struct {
	slots chan struct{}
	wait  time.Duration
}

// NewGate returns a gate with size slots. Callers queue for at most wait
// before being turned away with ErrBusy. size <= 0 disables the bound.
func NewGate(size int, wait time.Duration) *Gate {
	if size <= 0 {
		return nil
	}
	return &Gate{slots: make(chan struct{}, size), wait: wait}
}

func (g *Gate) Acquire(ctx context.Context) error {
	if g == nil {
		return nil
	}
	select {
	case g.slots <- struct{}{}:
		return nil
	default:
	}
	if g.wait <= 0 {
		return ErrBusy
	}

	timer := time.NewTimer(g.wait)
	defer timer.Stop()
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrBusy
	}
}

func (g *Gate) Release() {
	if g == nil {
		return
	}
	select {
	case <-g.slots:
	default:
	}
}

// InUse reports the number of held slots.
func (g *Gate) InUse() int {
	if g == nil {
		return 0
	}
	return len(g.slots)
}
