// Package config holds the typed configuration for the fgacache library and
// agent, with defaults applied at construction.
package config

import (
	"fmt"
	"sort"
	"time"
)

const (
	// DefaultBatchSize is the pending-operation count that triggers a
	// write-behind flush and the upper bound per batch.
	DefaultBatchSize = 100

	// DefaultFlushInterval is how often the background flush loop runs.
	DefaultFlushInterval = 5 * time.Second

	// DefaultCacheTTL bounds how long a check result may be served from
	// cache.
	DefaultCacheTTL = 300 * time.Second

	// DefaultCacheMaxEntries caps the in-memory store before LRU eviction.
	DefaultCacheMaxEntries = 10000

	// DefaultWarmConcurrency bounds how many checks one warming call runs at
	// once.
	DefaultWarmConcurrency = 10

	// DefaultWarmLimit bounds how many tuples a scheduled activity warm
	// primes.
	DefaultWarmLimit = 1000
)

// RemoteConfig describes how to reach the remote authorization service.
type RemoteConfig struct {
	// Transport selects the wire protocol, "grpc" or "http".
	Transport string `mapstructure:"transport"`

	// APIURL is the address of the remote service, host:port for grpc or a
	// base URL for http.
	APIURL string `mapstructure:"api-url"`

	StoreID string `mapstructure:"store-id"`
	ModelID string `mapstructure:"model-id"`

	TLS TLSClientConfig `mapstructure:"tls"`

	Credentials CredentialsConfig `mapstructure:"credentials"`
}

// TLSClientConfig configures transport security toward the remote service.
type TLSClientConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// CACertPath points to an extra CA bundle to trust, empty for the
	// system pool.
	CACertPath string `mapstructure:"ca-cert"`
}

// CredentialsConfig configures how calls to the remote service authenticate.
type CredentialsConfig struct {
	// Method is one of "none", "api_token" or "client_credentials".
	Method string `mapstructure:"method"`

	// APIToken is the static bearer token for the api_token method.
	APIToken string `mapstructure:"api-token"`

	// ClientID, ClientSecret, TokenIssuer and Audience drive the OAuth2
	// client_credentials flow.
	ClientID     string `mapstructure:"client-id"`
	ClientSecret string `mapstructure:"client-secret"`
	TokenIssuer  string `mapstructure:"token-issuer"`
	Audience     string `mapstructure:"audience"`
}

// CacheConfig configures the read-through cache of one connection.
type CacheConfig struct {
	// TTL bounds how long a cached check result may be served.
	TTL time.Duration `mapstructure:"ttl"`

	// Store selects the entry store, "memory" or "redis".
	Store string `mapstructure:"store"`

	// MaxEntries caps the in-memory store before LRU eviction starts.
	MaxEntries int64 `mapstructure:"max-entries"`

	// RedisURL is the redis connection string when Store is "redis".
	RedisURL string `mapstructure:"redis-url"`
}

// WriteBehindConfig configures the write buffer of one connection.
type WriteBehindConfig struct {
	// Enabled turns write-behind buffering on. When off, grants and revokes
	// write through synchronously.
	Enabled bool `mapstructure:"enabled"`

	// BatchSize is the pending count that triggers a flush and the upper
	// bound per batch.
	BatchSize int `mapstructure:"batch-size"`

	// FlushInterval is how often the background loop attempts a flush.
	FlushInterval time.Duration `mapstructure:"flush-interval"`

	// FlushOnStop controls whether shutdown attempts one final drain.
	FlushOnStop bool `mapstructure:"flush-on-stop"`
}

// ActivityConfig configures check-activity tracking for one connection.
type ActivityConfig struct {
	// Tracker selects the activity store: "none", "memory", "postgres",
	// "mysql" or "sqlite".
	Tracker string `mapstructure:"tracker"`

	// URI is the datastore connection string for the SQL trackers.
	URI string `mapstructure:"uri"`
}

// WarmConfig configures cache warming for one connection.
type WarmConfig struct {
	// Schedule is a cron expression for periodic activity-based warming,
	// empty to disable.
	Schedule string `mapstructure:"schedule"`

	// Limit bounds how many tuples a scheduled warm primes.
	Limit int `mapstructure:"limit"`

	// Concurrency bounds how many checks a warming call runs at once.
	Concurrency int `mapstructure:"concurrency"`
}

// EventsConfig configures where cache lifecycle events are published.
type EventsConfig struct {
	// WebhookURL receives a signed JSON POST per event, empty to disable.
	WebhookURL string `mapstructure:"webhook-url"`

	// WebhookSecret keys the HMAC signature on webhook deliveries.
	WebhookSecret string `mapstructure:"webhook-secret"`

	// NATSURL is the NATS server to publish events to, empty to disable.
	NATSURL string `mapstructure:"nats-url"`

	// NATSSubjectPrefix prefixes the per-event-type subject.
	NATSSubjectPrefix string `mapstructure:"nats-subject-prefix"`
}

// ConnectionConfig is the full configuration of one named connection to a
// remote authorization service.
type ConnectionConfig struct {
	Remote      RemoteConfig      `mapstructure:"remote"`
	Cache       CacheConfig       `mapstructure:"cache"`
	WriteBehind WriteBehindConfig `mapstructure:"write-behind"`
	Activity    ActivityConfig    `mapstructure:"activity"`
	Warm        WarmConfig        `mapstructure:"warm"`
	Events      EventsConfig      `mapstructure:"events"`
}

// AuthnConfig configures authentication on the agent's admin surface.
type AuthnConfig struct {
	// Method is one of "none", "preshared" or "oidc".
	Method string `mapstructure:"method"`

	// Keys are the accepted tokens for the preshared method.
	Keys []string `mapstructure:"keys"`

	// Issuer and Audience validate tokens for the oidc method.
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
}

// HTTPConfig configures the agent's HTTP API listener.
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`

	TLS TLSServerConfig `mapstructure:"tls"`

	// UpstreamTimeout bounds how long a request may wait on the remote
	// service.
	UpstreamTimeout time.Duration `mapstructure:"upstream-timeout"`

	CORSAllowedOrigins []string `mapstructure:"cors-allowed-origins"`
	CORSAllowedHeaders []string `mapstructure:"cors-allowed-headers"`
}

// TLSServerConfig configures transport security on a listener. Certificate
// and key files are watched and reloaded on change.
type TLSServerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertPath string `mapstructure:"cert"`
	KeyPath  string `mapstructure:"key"`
}

// MetricsConfig configures the dedicated prometheus listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// TraceConfig configures the OTLP trace pipeline.
type TraceConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	OTLPAddr    string  `mapstructure:"otlp-addr"`
	SampleRatio float64 `mapstructure:"sample-ratio"`
	ServiceName string  `mapstructure:"service-name"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Format is "text" or "json".
	Format string `mapstructure:"format"`

	// Level is one of "none", "debug", "info", "warn", "error", "panic",
	// "fatal".
	Level string `mapstructure:"level"`

	// TimestampFormat is "Unix" or "ISO8601".
	TimestampFormat string `mapstructure:"timestamp-format"`
}

// ProfilerConfig configures the pprof listener.
type ProfilerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Config is the full configuration of the fgacache agent: the default
// connection configured by flags plus any extra connections from the config
// file.
type Config struct {
	Connection ConnectionConfig `mapstructure:"connection"`

	// ExtraConnections holds additional named connections, file-only.
	ExtraConnections map[string]ConnectionConfig `mapstructure:"connections"`

	HTTP     HTTPConfig     `mapstructure:"http"`
	Authn    AuthnConfig    `mapstructure:"authn"`
	Log      LogConfig      `mapstructure:"log"`
	Trace    TraceConfig    `mapstructure:"trace"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Profiler ProfilerConfig `mapstructure:"profiler"`
}

// DefaultConnectionName names the connection built from flag-level config.
const DefaultConnectionName = "default"

// DefaultConnectionConfig returns a connection config with every default
// applied: in-memory cache, write-behind off, no activity tracking.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		Remote: RemoteConfig{
			Transport: "grpc",
			APIURL:    "localhost:8081",
			Credentials: CredentialsConfig{
				Method: "none",
			},
		},
		Cache: CacheConfig{
			TTL:        DefaultCacheTTL,
			Store:      "memory",
			MaxEntries: DefaultCacheMaxEntries,
		},
		WriteBehind: WriteBehindConfig{
			Enabled:       false,
			BatchSize:     DefaultBatchSize,
			FlushInterval: DefaultFlushInterval,
			FlushOnStop:   true,
		},
		Activity: ActivityConfig{
			Tracker: "memory",
		},
		Warm: WarmConfig{
			Limit:       DefaultWarmLimit,
			Concurrency: DefaultWarmConcurrency,
		},
		Events: EventsConfig{
			NATSSubjectPrefix: "fgacache",
		},
	}
}

// DefaultConfig returns the agent config with every default applied.
func DefaultConfig() *Config {
	return &Config{
		Connection: DefaultConnectionConfig(),
		HTTP: HTTPConfig{
			Enabled:            true,
			Addr:               "0.0.0.0:8080",
			UpstreamTimeout:    3 * time.Second,
			CORSAllowedOrigins: []string{"*"},
			CORSAllowedHeaders: []string{"*"},
		},
		Authn: AuthnConfig{
			Method: "none",
		},
		Log: LogConfig{
			Format:          "text",
			Level:           "info",
			TimestampFormat: "Unix",
		},
		Trace: TraceConfig{
			Enabled:     false,
			OTLPAddr:    "0.0.0.0:4317",
			SampleRatio: 0.2,
			ServiceName: "fgacache",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "0.0.0.0:2112",
		},
		Profiler: ProfilerConfig{
			Enabled: false,
			Addr:    ":3001",
		},
	}
}

// ConnectionNames returns the names of every configured connection, sorted,
// with the default connection first.
func (c *Config) ConnectionNames() []string {
	names := make([]string, 0, len(c.ExtraConnections)+1)
	for name := range c.ExtraConnections {
		names = append(names, name)
	}
	sort.Strings(names)

	return append([]string{DefaultConnectionName}, names...)
}

// ConnectionConfigs returns every configured connection keyed by name.
func (c *Config) ConnectionConfigs() map[string]ConnectionConfig {
	out := make(map[string]ConnectionConfig, len(c.ExtraConnections)+1)
	out[DefaultConnectionName] = c.Connection
	for name, conn := range c.ExtraConnections {
		out[name] = conn
	}
	return out
}

// Verify checks the config for contradictions before anything is
// constructed from it.
func (c *Config) Verify() error {
	for name, conn := range c.ConnectionConfigs() {
		if err := conn.Verify(); err != nil {
			return fmt.Errorf("connection %q: %w", name, err)
		}
	}

	switch c.Authn.Method {
	case "none":
	case "preshared":
		if len(c.Authn.Keys) == 0 {
			return fmt.Errorf("authn method 'preshared' requires at least one key")
		}
	case "oidc":
		if c.Authn.Issuer == "" || c.Authn.Audience == "" {
			return fmt.Errorf("authn method 'oidc' requires an issuer and an audience")
		}
	default:
		return fmt.Errorf("unsupported authn method %q", c.Authn.Method)
	}

	if c.HTTP.TLS.Enabled && (c.HTTP.TLS.CertPath == "" || c.HTTP.TLS.KeyPath == "") {
		return fmt.Errorf("http tls requires both a cert and a key")
	}

	return nil
}

// Verify checks one connection's config.
func (c ConnectionConfig) Verify() error {
	switch c.Remote.Transport {
	case "grpc", "http":
	default:
		return fmt.Errorf("unsupported remote transport %q", c.Remote.Transport)
	}

	if c.Remote.APIURL == "" {
		return fmt.Errorf("remote api-url must be set")
	}
	if c.Remote.StoreID == "" {
		return fmt.Errorf("remote store-id must be set")
	}

	switch c.Remote.Credentials.Method {
	case "", "none":
	case "api_token":
		if c.Remote.Credentials.APIToken == "" {
			return fmt.Errorf("credentials method 'api_token' requires an api token")
		}
	case "client_credentials":
		cred := c.Remote.Credentials
		if cred.ClientID == "" || cred.ClientSecret == "" || cred.TokenIssuer == "" {
			return fmt.Errorf("credentials method 'client_credentials' requires a client id, a client secret and a token issuer")
		}
	default:
		return fmt.Errorf("unsupported credentials method %q", c.Remote.Credentials.Method)
	}

	switch c.Cache.Store {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache store 'redis' requires a redis url")
		}
	default:
		return fmt.Errorf("unsupported cache store %q", c.Cache.Store)
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}

	if c.WriteBehind.Enabled {
		if c.WriteBehind.BatchSize <= 0 {
			return fmt.Errorf("write-behind batch size must be positive")
		}
		if c.WriteBehind.FlushInterval <= 0 {
			return fmt.Errorf("write-behind flush interval must be positive")
		}
	}

	switch c.Activity.Tracker {
	case "none", "memory":
	case "postgres", "mysql", "sqlite":
		if c.Activity.URI == "" {
			return fmt.Errorf("activity tracker %q requires a datastore uri", c.Activity.Tracker)
		}
	default:
		return fmt.Errorf("unsupported activity tracker %q", c.Activity.Tracker)
	}

	if c.Warm.Schedule != "" && c.Activity.Tracker == "none" {
		return fmt.Errorf("scheduled warming requires an activity tracker")
	}

	return nil
}
