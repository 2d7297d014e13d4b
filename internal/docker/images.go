package docker

import (
	"context"
	"fmt"
	"io"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/image"
	"go.uber.org/zap"
)

// EnsureImage pulls ref unless it is already present locally.
func (c *Client) EnsureImage(ctx context.Context, ref string) error {
	resp, err := c.api.ImageInspect(ctx, ref)
	if err == nil {
		c.log.Debug("image found", zap.String("image", ref), zap.String("id", resp.ID))
		return nil
	}
	if !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("inspect image %s: %w", ref, err)
	}

	c.log.Info("pulling image", zap.String("image", ref))
	out, err := c.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer out.Close()
	// the pull only completes once the progress stream is drained
	if _, err := io.Copy(io.Discard, out); err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	c.log.Info("pulled image", zap.String("image", ref))
	return nil
}

func (c *Client) EnsureImages(ctx context.Context, refs []string) error {
	for _, ref := range refs {
		if err := c.EnsureImage(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}
