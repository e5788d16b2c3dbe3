package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	_ "github.com/go-sql-driver/mysql" // MySQL driver.
	"github.com/oklog/ulid/v2"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"

	"github.com/evansims/fgacache/assets"
)

const mySQLImage = "mysql:8"

type mySQLTestContainer struct {
	addr     string
	version  int64
	username string
	password string
}

// NewMySQLTestContainer returns an implementation of the DatastoreTestContainer
// interface for MySQL.
func NewMySQLTestContainer() *mySQLTestContainer {
	return &mySQLTestContainer{}
}

func (m *mySQLTestContainer) GetDatabaseSchemaVersion() int64 {
	return m.version
}

// RunMySQLTestContainer runs a MySQL container, applies the activity-store
// migrations, and returns a bootstrapped DatastoreTestContainer.
func (m *mySQLTestContainer) RunMySQLTestContainer(t testing.TB) DatastoreTestContainer {
	dockerClient := newDockerClient(t)

	ensureImage(t, dockerClient, mySQLImage)

	containerCfg := container.Config{
		Env: []string{
			"MYSQL_DATABASE=defaultdb",
			"MYSQL_ROOT_PASSWORD=secret",
		},
		ExposedPorts: nat.PortSet{
			nat.Port("3306/tcp"): {},
		},
		Image: mySQLImage,
	}

	hostCfg := container.HostConfig{
		AutoRemove:      true,
		PublishAllPorts: true,
	}

	name := "mysql-" + ulid.Make().String()

	cont, err := dockerClient.ContainerCreate(context.Background(), &containerCfg, &hostCfg, nil, nil, name)
	require.NoError(t, err, "failed to create mysql docker container")

	t.Cleanup(func() {
		stopContainer(t, dockerClient, cont.ID, name)
	})

	err = dockerClient.ContainerStart(context.Background(), cont.ID, container.StartOptions{})
	require.NoError(t, err, "failed to start mysql container")

	mySQLTestContainer := &mySQLTestContainer{
		addr:     "localhost:" + hostPort(t, dockerClient, cont.ID, "3306/tcp"),
		username: "root",
		password: "secret",
	}

	uri := fmt.Sprintf("%s:%s@tcp(%s)/defaultdb?parseTime=true",
		mySQLTestContainer.username, mySQLTestContainer.password, mySQLTestContainer.addr)

	// MySQL takes noticeably longer than postgres to come up.
	err = waitForDatabase("mysql", uri, time.Minute)
	require.NoError(t, err, "failed to connect to mysql container")

	goose.SetLogger(goose.NopLogger())

	db, err := goose.OpenDBWithDriver("mysql", uri)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	goose.SetBaseFS(assets.EmbedMigrations)

	err = goose.Up(db, assets.MySQLMigrationDir)
	require.NoError(t, err)

	version, err := goose.GetDBVersion(db)
	require.NoError(t, err)
	mySQLTestContainer.version = version

	return mySQLTestContainer
}

// GetConnectionURI returns the mysql connection uri for the running mysql test
// container.
func (m *mySQLTestContainer) GetConnectionURI(includeCredentials bool) string {
	creds := ""
	if includeCredentials {
		creds = fmt.Sprintf("%s:%s", m.username, m.password)
	}

	return fmt.Sprintf("%s@tcp(%s)/defaultdb?parseTime=true", creds, m.addr)
}

func (m *mySQLTestContainer) GetUsername() string {
	return m.username
}

func (m *mySQLTestContainer) GetPassword() string {
	return m.password
}
