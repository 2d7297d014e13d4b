package docker

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEnsureImagePresent(t *testing.T) {
	api := new(MockDockerAPI)
	api.On("ImageInspect", mock.Anything, "myimage:python").Return(image.InspectResponse{ID: "sha256:1"}, nil)

	require.NoError(t, testClient(api).EnsureImage(context.Background(), "myimage:python"))
	api.AssertNotCalled(t, "ImagePull", mock.Anything, mock.Anything)
}

func TestEnsureImagePullsMissing(t *testing.T) {
	api := new(MockDockerAPI)
	api.On("ImageInspect", mock.Anything, "myimage:go").Return(image.InspectResponse{}, cerrdefs.ErrNotFound)
	api.On("ImagePull", mock.Anything, "myimage:go").
		Return(io.NopCloser(strings.NewReader(`{"status":"Downloaded"}`)), nil)

	require.NoError(t, testClient(api).EnsureImage(context.Background(), "myimage:go"))
	api.AssertExpectations(t)
}

func TestEnsureImagesStopsOnError(t *testing.T) {
	api := new(MockDockerAPI)
	api.On("ImageInspect", mock.Anything, "a").Return(image.InspectResponse{}, cerrdefs.ErrNotFound)
	api.On("ImagePull", mock.Anything, "a").Return(nil, errors.New("denied"))

	err := testClient(api).EnsureImages(context.Background(), []string{"a", "b"})
	assert.ErrorContains(t, err, "denied")
	api.AssertNotCalled(t, "ImageInspect", mock.Anything, "b")
}

func TestEnsureImageInspectError(t *testing.T) {
	api := new(MockDockerAPI)
	api.On("ImageInspect", mock.Anything, "a").Return(image.InspectResponse{}, errors.New("daemon down"))

	assert.Error(t, testClient(api).EnsureImage(context.Background(), "a"))
	api.AssertNotCalled(t, "ImagePull", mock.Anything, mock.Anything)
}

func TestReapRemovesOnlyOldContainers(t *testing.T) {
	api := new(MockDockerAPI)
	now := time.Now()
	api.On("ContainerList", mock.Anything, mock.MatchedBy(func(opts container.ListOptions) bool {
		return opts.All && opts.Filters.ExactMatch("label", LabelManaged+"=true")
	})).Return([]container.Summary{
		{ID: "old0000000000000", Created: now.Add(-time.Hour).Unix(), Labels: map[string]string{LabelInstance: "i-old"}},
		{ID: "new0000000000000", Created: now.Unix()},
	}, nil)
	api.On("ContainerRemove", mock.Anything, "old0000000000000", mock.Anything).Return(nil)

	n, err := testClient(api).Reap(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	api.AssertNotCalled(t, "ContainerRemove", mock.Anything, "new0000000000000", mock.Anything)
}

func TestReapListError(t *testing.T) {
	api := new(MockDockerAPI)
	api.On("ContainerList", mock.Anything, mock.Anything).Return([]container.Summary(nil), errors.New("boom"))

	_, err := testClient(api).Reap(context.Background(), time.Minute)
	assert.Error(t, err)
}
