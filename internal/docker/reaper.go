package docker

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"go.uber.org/zap"
)

// Reap removes managed containers older than maxAge. Live submissions never
// outlive their step timeouts, so anything that old was orphaned by a
// crashed process.
func (c *Client) Reap(ctx context.Context, maxAge time.Duration) (int, error) {
	containers, err := c.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelManaged+"=true")),
	})
	if err != nil {
		return 0, fmt.Errorf("list containers: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, ctr := range containers {
		if time.Unix(ctr.Created, 0).After(cutoff) {
			continue
		}
		if err := c.api.ContainerRemove(ctx, ctr.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			c.log.Warn("failed to remove orphan", zap.String("container", shortID(ctr.ID)), zap.Error(err))
			continue
		}
		c.log.Info("removed orphan container",
			zap.String("container", shortID(ctr.ID)),
			zap.String("instance", ctr.Labels[LabelInstance]))
		removed++
	}
	return removed, nil
}

// RunReaper calls Reap every interval until ctx is done.
func (c *Client) RunReaper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("orphan reaper stopped")
			return
		case <-ticker.C:
			if _, err := c.Reap(ctx, maxAge); err != nil {
				c.log.Warn("orphan reap failed", zap.Error(err))
			}
		}
	}
}
