package docker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sudankdk/runbox/internal/languages"
	"github.com/sudankdk/runbox/internal/model"
	"github.com/sudankdk/runbox/internal/sandbox"
)

func testClient(api *MockDockerAPI) *Client {
	return newClient(api, Options{
		WorkDir: "/usr/src/app",
		Sandbox: sandbox.NewConfig(64*1024*1024, 0.5, 16, 1024),
	})
}

func TestCreate(t *testing.T) {
	api := new(MockDockerAPI)
	c := testClient(api)
	lang := languages.Language{ID: "python", Image: "myimage:python"}

	api.On("ContainerCreate", mock.Anything,
		mock.MatchedBy(func(cfg *container.Config) bool {
			return cfg.Image == "myimage:python" &&
				cfg.WorkingDir == "/usr/src/app" &&
				cfg.NetworkDisabled &&
				cfg.Labels[LabelManaged] == "true" &&
				cfg.Labels[LabelLanguage] == "python"
		}),
		mock.MatchedBy(func(hc *container.HostConfig) bool {
			return string(hc.NetworkMode) == "none" && !hc.AutoRemove
		}),
		mock.MatchedBy(func(name string) bool { return strings.HasPrefix(name, namePrefix) }),
	).Return(container.CreateResponse{ID: "abc123"}, nil)

	env, err := c.Create(context.Background(), lang)
	require.NoError(t, err)

	assert.Equal(t, "abc123", env.ContainerID)
	assert.Equal(t, "myimage:python", env.Image)
	assert.Equal(t, "python", env.Language)
	assert.Equal(t, model.StateCreated, env.State)
	assert.Len(t, env.InstanceID, 36)

	cfg := api.Calls[0].Arguments.Get(1).(*container.Config)
	assert.Equal(t, env.InstanceID, cfg.Labels[LabelInstance])
	assert.Equal(t, namePrefix+env.InstanceID, api.Calls[0].Arguments.Get(3))
}

func TestCreateInstanceIDsAreUnique(t *testing.T) {
	api := new(MockDockerAPI)
	c := testClient(api)
	api.On("ContainerCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(container.CreateResponse{ID: "x"}, nil)

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		env, err := c.Create(context.Background(), languages.Language{ID: "go", Image: "myimage:go"})
		require.NoError(t, err)
		require.False(t, seen[env.InstanceID], "instance id reused: %s", env.InstanceID)
		seen[env.InstanceID] = true
	}
}

func TestCreateFailure(t *testing.T) {
	api := new(MockDockerAPI)
	c := testClient(api)
	api.On("ContainerCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(container.CreateResponse{}, errors.New("no such image"))

	env, err := c.Create(context.Background(), languages.Language{ID: "go", Image: "myimage:go"})
	assert.Error(t, err)
	assert.Nil(t, env)
	api.AssertNotCalled(t, "ContainerRemove", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateDeadlineRemovesAbandonedContainer(t *testing.T) {
	api := new(MockDockerAPI)
	c := testClient(api)

	var name string
	api.On("ContainerCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			name = args.String(3)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(container.CreateResponse{}, context.DeadlineExceeded)

	var removeCtxErr error
	api.On("ContainerRemove", mock.Anything, mock.Anything, container.RemoveOptions{Force: true, RemoveVolumes: true}).
		Run(func(args mock.Arguments) {
			removeCtxErr = args.Get(0).(context.Context).Err()
		}).
		Return(cerrdefs.ErrNotFound)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	env, err := c.Create(ctx, languages.Language{ID: "go", Image: "myimage:go"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, env)

	require.True(t, strings.HasPrefix(name, namePrefix))
	api.AssertCalled(t, "ContainerRemove", mock.Anything, name, mock.Anything)
	assert.NoError(t, removeCtxErr)
}

func TestDestroy(t *testing.T) {
	env := &model.Environment{ContainerID: "abc123"}

	t.Run("removed", func(t *testing.T) {
		api := new(MockDockerAPI)
		api.On("ContainerRemove", mock.Anything, "abc123", container.RemoveOptions{Force: true, RemoveVolumes: true}).Return(nil)
		assert.NoError(t, testClient(api).Destroy(context.Background(), env))
		api.AssertExpectations(t)
	})

	t.Run("already gone", func(t *testing.T) {
		api := new(MockDockerAPI)
		api.On("ContainerRemove", mock.Anything, "abc123", mock.Anything).Return(cerrdefs.ErrNotFound)
		assert.NoError(t, testClient(api).Destroy(context.Background(), env))
	})

	t.Run("daemon error", func(t *testing.T) {
		api := new(MockDockerAPI)
		api.On("ContainerRemove", mock.Anything, "abc123", mock.Anything).Return(errors.New("daemon down"))
		assert.Error(t, testClient(api).Destroy(context.Background(), env))
	})
}

func TestCopyTo(t *testing.T) {
	api := new(MockDockerAPI)
	body := strings.NewReader("tar")
	api.On("CopyToContainer", mock.Anything, "abc123", "/usr/src/app", body).Return(nil)

	require.NoError(t, testClient(api).CopyTo(context.Background(), "abc123", "/usr/src/app", body))
	api.AssertExpectations(t)
}
