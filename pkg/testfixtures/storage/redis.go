package storage

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const redisImage = "redis:7"

type redisTestContainer struct {
	addr string
}

// NewRedisTestContainer returns a runnable Redis container fixture for
// exercising the redis cache store.
func NewRedisTestContainer() *redisTestContainer {
	return &redisTestContainer{}
}

// RunRedisTestContainer runs a Redis container and waits until it answers
// pings. The returned address is suitable for config.CacheConfig.RedisURL.
func (r *redisTestContainer) RunRedisTestContainer(t testing.TB) *redisTestContainer {
	dockerClient := newDockerClient(t)

	ensureImage(t, dockerClient, redisImage)

	containerCfg := container.Config{
		ExposedPorts: nat.PortSet{
			nat.Port("6379/tcp"): {},
		},
		Image: redisImage,
	}

	hostCfg := container.HostConfig{
		AutoRemove:      true,
		PublishAllPorts: true,
	}

	name := "redis-" + ulid.Make().String()

	cont, err := dockerClient.ContainerCreate(context.Background(), &containerCfg, &hostCfg, nil, nil, name)
	require.NoError(t, err, "failed to create redis docker container")

	t.Cleanup(func() {
		stopContainer(t, dockerClient, cont.ID, name)
	})

	err = dockerClient.ContainerStart(context.Background(), cont.ID, container.StartOptions{})
	require.NoError(t, err, "failed to start redis container")

	r.addr = "localhost:" + hostPort(t, dockerClient, cont.ID, "6379/tcp")

	rdb := redis.NewClient(&redis.Options{Addr: r.addr})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.MaxElapsedTime = 30 * time.Second
	err = backoff.Retry(
		func() error {
			return rdb.Ping(context.Background()).Err()
		},
		backoffPolicy,
	)
	require.NoError(t, err, "failed to connect to redis container")

	return r
}

// GetConnectionURI returns the address of the running redis test container.
func (r *redisTestContainer) GetConnectionURI() string {
	return "redis://" + r.addr
}
