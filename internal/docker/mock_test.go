package docker

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/mock"
)

// MockDockerAPI is a mock implementation of the Docker client for testing
type MockDockerAPI struct {
	mock.Mock
}

func (m *MockDockerAPI) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	args := m.Called(ctx, config, hostConfig, containerName)
	return args.Get(0).(container.CreateResponse), args.Error(1)
}

func (m *MockDockerAPI) CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options container.CopyToContainerOptions) error {
	args := m.Called(ctx, containerID, dstPath, content)
	return args.Error(0)
}

func (m *MockDockerAPI) ContainerAttach(ctx context.Context, containerID string, options container.AttachOptions) (types.HijackedResponse, error) {
	args := m.Called(ctx, containerID, options)
	return args.Get(0).(types.HijackedResponse), args.Error(1)
}

func (m *MockDockerAPI) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

func (m *MockDockerAPI) ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	args := m.Called(ctx, containerID, condition)
	return args.Get(0).(<-chan container.WaitResponse), args.Get(1).(<-chan error)
}

func (m *MockDockerAPI) ContainerKill(ctx context.Context, containerID, signal string) error {
	args := m.Called(ctx, containerID, signal)
	return args.Error(0)
}

func (m *MockDockerAPI) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	args := m.Called(ctx, containerID, options)
	return args.Error(0)
}

func (m *MockDockerAPI) ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error) {
	args := m.Called(ctx, options)
	return args.Get(0).([]container.Summary), args.Error(1)
}

func (m *MockDockerAPI) ImageInspect(ctx context.Context, imageID string, inspectOpts ...client.ImageInspectOption) (image.InspectResponse, error) {
	args := m.Called(ctx, imageID)
	return args.Get(0).(image.InspectResponse), args.Error(1)
}

func (m *MockDockerAPI) ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, refStr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockDockerAPI) Close() error {
	return m.Called().Error(0)
}

// attachStream returns a hijacked response whose reader yields the frames
// written by write, multiplexed the way the daemon does. A nil write keeps
// the stream open until the test ends.
func attachStream(t *testing.T, write func(stdout, stderr io.Writer)) types.HijackedResponse {
	t.Helper()
	daemon, local := net.Pipe()
	t.Cleanup(func() { daemon.Close() })

	if write != nil {
		go func() {
			write(stdcopy.NewStdWriter(daemon, stdcopy.Stdout), stdcopy.NewStdWriter(daemon, stdcopy.Stderr))
			daemon.Close()
		}()
	}
	return types.HijackedResponse{Conn: local, Reader: bufio.NewReader(local)}
}

func waitChans(statuses ...container.WaitResponse) (<-chan container.WaitResponse, <-chan error) {
	statusCh := make(chan container.WaitResponse, len(statuses))
	for _, s := range statuses {
		statusCh <- s
	}
	return statusCh, make(chan error)
}
