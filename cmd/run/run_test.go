package run

import (
	"os"
	"path"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/evansims/fgacache/pkg/config"
)

func configAuthn(method string, keys []string) config.AuthnConfig {
	return config.AuthnConfig{Method: method, Keys: keys}
}

func TestMain(m *testing.M) {
	_, filename, _, _ := runtime.Caller(0)
	dir := path.Join(path.Dir(filename), "../..")
	err := os.Chdir(dir)
	if err != nil {
		panic(err)
	}

	os.Exit(m.Run())
}

func TestDefaultConfigMatchesDocumentedSchema(t *testing.T) {
	cfg, err := ReadConfig()
	require.NoError(t, err)

	_, basepath, _, _ := runtime.Caller(0)
	jsonSchema, err := os.ReadFile(path.Join(filepath.Dir(basepath), "..", "..", ".config-schema.json"))
	require.NoError(t, err)

	res := gjson.ParseBytes(jsonSchema)

	val := res.Get("properties.connection.properties.remote.properties.transport.default")
	require.True(t, val.Exists())
	require.Equal(t, val.String(), cfg.Connection.Remote.Transport)

	val = res.Get("properties.connection.properties.remote.properties.api-url.default")
	require.True(t, val.Exists())
	require.Equal(t, val.String(), cfg.Connection.Remote.APIURL)

	val = res.Get("properties.connection.properties.remote.properties.credentials.properties.method.default")
	require.True(t, val.Exists())
	require.Equal(t, val.String(), cfg.Connection.Remote.Credentials.Method)

	val = res.Get("properties.connection.properties.cache.properties.ttl.default")
	require.True(t, val.Exists())
	ttl, err := time.ParseDuration(val.String())
	require.NoError(t, err)
	require.Equal(t, ttl, cfg.Connection.Cache.TTL)

	val = res.Get("properties.connection.properties.cache.properties.store.default")
	require.True(t, val.Exists())
	require.Equal(t, val.String(), cfg.Connection.Cache.Store)

	val = res.Get("properties.connection.properties.cache.properties.max-entries.default")
	require.True(t, val.Exists())
	require.EqualValues(t, val.Int(), cfg.Connection.Cache.MaxEntries)

	val = res.Get("properties.connection.properties.write-behind.properties.enabled.default")
	require.True(t, val.Exists())
	require.Equal(t, val.Bool(), cfg.Connection.WriteBehind.Enabled)

	val = res.Get("properties.connection.properties.write-behind.properties.batch-size.default")
	require.True(t, val.Exists())
	require.EqualValues(t, val.Int(), cfg.Connection.WriteBehind.BatchSize)

	val = res.Get("properties.connection.properties.write-behind.properties.flush-interval.default")
	require.True(t, val.Exists())
	interval, err := time.ParseDuration(val.String())
	require.NoError(t, err)
	require.Equal(t, interval, cfg.Connection.WriteBehind.FlushInterval)

	val = res.Get("properties.connection.properties.write-behind.properties.flush-on-stop.default")
	require.True(t, val.Exists())
	require.Equal(t, val.Bool(), cfg.Connection.WriteBehind.FlushOnStop)

	val = res.Get("properties.connection.properties.activity.properties.tracker.default")
	require.True(t, val.Exists())
	require.Equal(t, val.String(), cfg.Connection.Activity.Tracker)

	val = res.Get("properties.connection.properties.warm.properties.limit.default")
	require.True(t, val.Exists())
	require.EqualValues(t, val.Int(), cfg.Connection.Warm.Limit)

	val = res.Get("properties.connection.properties.warm.properties.concurrency.default")
	require.True(t, val.Exists())
	require.EqualValues(t, val.Int(), cfg.Connection.Warm.Concurrency)

	val = res.Get("properties.connection.properties.events.properties.nats-subject-prefix.default")
	require.True(t, val.Exists())
	require.Equal(t, val.String(), cfg.Connection.Events.NATSSubjectPrefix)

	val = res.Get("properties.http.properties.enabled.default")
	require.True(t, val.Exists())
	require.Equal(t, val.Bool(), cfg.HTTP.Enabled)

	val = res.Get("properties.http.properties.addr.default")
	require.True(t, val.Exists())
	require.Equal(t, val.String(), cfg.HTTP.Addr)

	val = res.Get("properties.http.properties.upstream-timeout.default")
	require.True(t, val.Exists())
	timeout, err := time.ParseDuration(val.String())
	require.NoError(t, err)
	require.Equal(t, timeout, cfg.HTTP.UpstreamTimeout)

	val = res.Get("properties.authn.properties.method.default")
	require.True(t, val.Exists())
	require.Equal(t, val.String(), cfg.Authn.Method)

	val = res.Get("properties.log.properties.format.default")
	require.True(t, val.Exists())
	require.Equal(t, val.String(), cfg.Log.Format)

	val = res.Get("properties.log.properties.level.default")
	require.True(t, val.Exists())
	require.Equal(t, val.String(), cfg.Log.Level)

	val = res.Get("properties.log.properties.timestamp-format.default")
	require.True(t, val.Exists())
	require.Equal(t, val.String(), cfg.Log.TimestampFormat)

	val = res.Get("properties.trace.properties.enabled.default")
	require.True(t, val.Exists())
	require.Equal(t, val.Bool(), cfg.Trace.Enabled)

	val = res.Get("properties.trace.properties.otlp-addr.default")
	require.True(t, val.Exists())
	require.Equal(t, val.String(), cfg.Trace.OTLPAddr)

	val = res.Get("properties.trace.properties.sample-ratio.default")
	require.True(t, val.Exists())
	require.InDelta(t, val.Float(), cfg.Trace.SampleRatio, 1e-9)

	val = res.Get("properties.metrics.properties.enabled.default")
	require.True(t, val.Exists())
	require.Equal(t, val.Bool(), cfg.Metrics.Enabled)

	val = res.Get("properties.metrics.properties.addr.default")
	require.True(t, val.Exists())
	require.Equal(t, val.String(), cfg.Metrics.Addr)

	val = res.Get("properties.profiler.properties.enabled.default")
	require.True(t, val.Exists())
	require.Equal(t, val.Bool(), cfg.Profiler.Enabled)

	val = res.Get("properties.profiler.properties.addr.default")
	require.True(t, val.Exists())
	require.Equal(t, val.String(), cfg.Profiler.Addr)
}

func TestNewAuthenticator(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		a, err := newAuthenticator(configAuthn("none", nil))
		require.NoError(t, err)
		require.NotNil(t, a)
	})

	t.Run("preshared", func(t *testing.T) {
		a, err := newAuthenticator(configAuthn("preshared", []string{"key1"}))
		require.NoError(t, err)
		require.NotNil(t, a)
	})

	t.Run("preshared_without_keys", func(t *testing.T) {
		_, err := newAuthenticator(configAuthn("preshared", nil))
		require.Error(t, err)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := newAuthenticator(configAuthn("kerberos", nil))
		require.ErrorContains(t, err, "unsupported authn method")
	})
}
