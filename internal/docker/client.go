package docker

import (
	"context"
	"fmt"
	"io"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"

	"github.com/sudankdk/runbox/internal/languages"
	"github.com/sudankdk/runbox/internal/model"
	"github.com/sudankdk/runbox/internal/sandbox"
)

const (
	LabelManaged  = "runbox.managed"
	LabelInstance = "runbox.instance"
	LabelLanguage = "runbox.language"

	namePrefix = "runbox-"
)

// dockerAPI is the subset of the Docker SDK client the service uses.
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options container.CopyToContainerOptions) error
	ContainerAttach(ctx context.Context, containerID string, options container.AttachOptions) (types.HijackedResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ImageInspect(ctx context.Context, imageID string, inspectOpts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	Close() error
}

type Options struct {
	// Host overrides DOCKER_HOST when set.
	Host    string
	WorkDir string
	Sandbox sandbox.Config
	Logger  *zap.Logger
}

// Client provisions, runs and destroys one container per submission.
type Client struct {
	api     dockerAPI
	workDir string
	sandbox sandbox.Config
	log     *zap.Logger
}

func New(opts Options) (*Client, error) {
	clientOpts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if opts.Host != "" {
		clientOpts = append(clientOpts, client.WithHost(opts.Host))
	}
	cli, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return newClient(cli, opts), nil
}

func newClient(api dockerAPI, opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		api:     api,
		workDir: opts.WorkDir,
		sandbox: opts.Sandbox,
		log:     log.Named("docker"),
	}
}

func (c *Client) Close() error {
	return c.api.Close()
}

// Create makes a brand-new, not yet started container for lang. Every call
// gets its own random instance id, so concurrently live environments never
// share a name.
func (c *Client) Create(ctx context.Context, lang languages.Language) (*model.Environment, error) {
	id := uuid.NewString()
	resp, err := c.api.ContainerCreate(ctx,
		&container.Config{
			Image:           lang.Image,
			WorkingDir:      c.workDir,
			AttachStdout:    true,
			AttachStderr:    true,
			NetworkDisabled: true,
			Labels: map[string]string{
				LabelManaged:  "true",
				LabelInstance: id,
				LabelLanguage: lang.ID,
			},
		},
		c.sandbox.HostConfig(),
		nil, nil, namePrefix+id,
	)
	if err != nil {
		if ctx.Err() != nil {
			// the daemon may have finished the create after we gave up
			c.removeByName(ctx, namePrefix+id)
		}
		return nil, fmt.Errorf("create container from %s: %w", lang.Image, err)
	}
	for _, w := range resp.Warnings {
		c.log.Warn("container create warning", zap.String("instance", id), zap.String("warning", w))
	}
	return &model.Environment{
		InstanceID:  id,
		ContainerID: resp.ID,
		Image:       lang.Image,
		Language:    lang.ID,
		State:       model.StateCreated,
	}, nil
}

// CopyTo extracts a tar stream into dst inside the container. It works on
// containers that were created but not started.
func (c *Client) CopyTo(ctx context.Context, containerID, dst string, tar io.Reader) error {
	return c.api.CopyToContainer(ctx, containerID, dst, tar, container.CopyToContainerOptions{})
}

// Destroy force-removes the environment's container. A container that is
// already gone counts as destroyed.
func (c *Client) Destroy(ctx context.Context, env *model.Environment) error {
	err := c.api.ContainerRemove(ctx, env.ContainerID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("remove container %s: %w", shortID(env.ContainerID), err)
	}
	return nil
}

// removeByName is a best-effort removal of a container that may or may not
// exist. Whatever it misses is left to the orphan reaper.
func (c *Client) removeByName(ctx context.Context, name string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), killTimeout)
	defer cancel()
	err := c.api.ContainerRemove(rctx, name, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !cerrdefs.IsNotFound(err) {
		c.log.Warn("failed to remove abandoned container", zap.String("name", name), zap.Error(err))
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
