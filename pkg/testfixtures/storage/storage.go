// Package storage provides docker-backed datastore fixtures for integration
// tests of the activity trackers and the redis cache store.
package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
)

// DatastoreTestContainer represents a runnable container for testing a
// specific datastore engine.
type DatastoreTestContainer interface {
	// GetConnectionURI returns a connection string to the datastore
	// instance running inside the container.
	GetConnectionURI(includeCredentials bool) string

	// GetDatabaseSchemaVersion returns the last migration applied when the
	// container was created.
	GetDatabaseSchemaVersion() int64

	GetUsername() string
	GetPassword() string
}

// RunDatastoreTestContainer constructs and runs a DatastoreTestContainer for
// the provided activity-store engine, running all schema migrations. The
// container is cleaned up when the test finishes.
func RunDatastoreTestContainer(t testing.TB, engine string) DatastoreTestContainer {
	switch engine {
	case "postgres":
		return NewPostgresTestContainer().RunPostgresTestContainer(t)
	case "mysql":
		return NewMySQLTestContainer().RunMySQLTestContainer(t)
	default:
		t.Fatalf("'%s' engine is not supported by RunDatastoreTestContainer", engine)
		return nil
	}
}

func newDockerClient(t testing.TB) *client.Client {
	dockerClient, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = dockerClient.Close()
	})

	return dockerClient
}

// ensureImage pulls the image unless a matching tag is already present.
func ensureImage(t testing.TB, dockerClient *client.Client, imageRef string) {
	allImages, err := dockerClient.ImageList(context.Background(), image.ListOptions{All: true})
	require.NoError(t, err)

	for _, img := range allImages {
		for _, tag := range img.RepoTags {
			if strings.Contains(tag, imageRef) {
				return
			}
		}
	}

	t.Logf("Pulling image %s", imageRef)
	reader, err := dockerClient.ImagePull(context.Background(), imageRef, image.PullOptions{})
	require.NoError(t, err)

	// Consume the pull output to make sure it's done.
	_, err = io.Copy(io.Discard, reader)
	require.NoError(t, err)
}

func stopContainer(t testing.TB, dockerClient *client.Client, id, name string) {
	t.Logf("stopping container %s", name)
	timeoutSec := 5

	err := dockerClient.ContainerStop(context.Background(), id, container.StopOptions{Timeout: &timeoutSec})
	if err != nil && !errdefs.IsNotFound(err) {
		t.Logf("failed to stop container %s: %v", name, err)
	}
}

// hostPort returns the host port mapped to the given container port.
func hostPort(t testing.TB, dockerClient *client.Client, containerID, port string) string {
	containerJSON, err := dockerClient.ContainerInspect(context.Background(), containerID)
	require.NoError(t, err)

	m, ok := containerJSON.NetworkSettings.Ports[nat.Port(port)]
	if !ok || len(m) == 0 {
		require.Fail(t, "failed to get host port mapping from container")
	}

	return m[0].HostPort
}
