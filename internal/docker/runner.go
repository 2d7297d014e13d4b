package docker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/sudankdk/runbox/internal/model"
)

const killTimeout = 5 * time.Second

// Run starts the environment's entry process and waits for it under two
// limits: the wall-clock timeout and the combined output ceiling. Hitting
// either kills the container and discards whatever output was captured.
func (c *Client) Run(ctx context.Context, env *model.Environment, limits model.Limits) (model.RawOutcome, error) {
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	// Attach before start so no early output is lost.
	attach, err := c.api.ContainerAttach(runCtx, env.ContainerID, container.AttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return model.RawOutcome{}, fmt.Errorf("attach: %w", err)
	}
	defer attach.Close()

	statusCh, waitErrCh := c.api.ContainerWait(runCtx, env.ContainerID, container.WaitConditionNextExit)

	if err := c.api.ContainerStart(runCtx, env.ContainerID, container.StartOptions{}); err != nil {
		if deadlineHit(ctx, runCtx) {
			return c.abort(ctx, env, model.RawOutcome{TimedOut: true}, start), nil
		}
		return model.RawOutcome{}, fmt.Errorf("start: %w", err)
	}

	budget := newOutputBudget(limits.OutputBytes)
	stdout, stderr := budget.writers()
	copyDone := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(stdout, stderr, attach.Reader)
		copyDone <- err
	}()

	var (
		exitCode        int64
		exited, drained bool
	)
	for !exited || !drained {
		select {
		case <-runCtx.Done():
			if !deadlineHit(ctx, runCtx) {
				c.kill(ctx, env)
				return model.RawOutcome{}, ctx.Err()
			}
			return c.abort(ctx, env, model.RawOutcome{TimedOut: true}, start), nil

		case err := <-copyDone:
			drained, copyDone = true, nil
			if errors.Is(err, errOutputOverflow) {
				return c.abort(ctx, env, model.RawOutcome{Overflowed: true}, start), nil
			}
			if err != nil {
				return model.RawOutcome{}, fmt.Errorf("read output: %w", err)
			}

		case st := <-statusCh:
			exited, statusCh, waitErrCh = true, nil, nil
			if st.Error != nil && st.Error.Message != "" {
				return model.RawOutcome{}, fmt.Errorf("wait: %s", st.Error.Message)
			}
			exitCode = st.StatusCode

		case err := <-waitErrCh:
			if deadlineHit(ctx, runCtx) {
				return c.abort(ctx, env, model.RawOutcome{TimedOut: true}, start), nil
			}
			return model.RawOutcome{}, fmt.Errorf("wait: %w", err)
		}
	}

	return model.RawOutcome{
		Stdout:   budget.stdout.String(),
		Stderr:   budget.stderr.String(),
		ExitCode: int(exitCode),
		Duration: time.Since(start),
	}, nil
}

// abort kills the container and returns the limit outcome without partial
// output.
func (c *Client) abort(ctx context.Context, env *model.Environment, out model.RawOutcome, start time.Time) model.RawOutcome {
	c.kill(ctx, env)
	out.Duration = time.Since(start)
	return out
}

func (c *Client) kill(ctx context.Context, env *model.Environment) {
	killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), killTimeout)
	defer cancel()
	if err := c.api.ContainerKill(killCtx, env.ContainerID, "SIGKILL"); err != nil {
		// the container may have exited on its own; Destroy removes it either way
		c.log.Debug("kill failed", zap.String("instance", env.InstanceID), zap.Error(err))
	}
}

// deadlineHit reports whether runCtx ended because of the run timeout rather
// than the caller going away.
func deadlineHit(parent, runCtx context.Context) bool {
	return parent.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded)
}
