package run

import (
	"github.com/spf13/cobra"

	"github.com/evansims/fgacache/cmd/util"
	"github.com/evansims/fgacache/pkg/config"
)

// bindRunFlags binds the cobra cmd flags to the equivalent config value being
// managed by viper. This bridges the config between cobra flags and viper
// flags.
func bindRunFlags(command *cobra.Command) {
	defaultConfig := config.DefaultConfig()
	flags := command.Flags()

	flags.String("transport", defaultConfig.Connection.Remote.Transport, "the wire protocol used to reach the authorization service, 'grpc' or 'http'")
	util.MustBindPFlag("connection.remote.transport", flags.Lookup("transport"))
	util.MustBindEnv("connection.remote.transport", "FGACACHE_TRANSPORT")

	flags.String("api-url", defaultConfig.Connection.Remote.APIURL, "the address of the authorization service, host:port for grpc or a base URL for http")
	util.MustBindPFlag("connection.remote.api-url", flags.Lookup("api-url"))
	util.MustBindEnv("connection.remote.api-url", "FGACACHE_API_URL")

	flags.String("store-id", defaultConfig.Connection.Remote.StoreID, "the id of the store every request addresses")
	util.MustBindPFlag("connection.remote.store-id", flags.Lookup("store-id"))
	util.MustBindEnv("connection.remote.store-id", "FGACACHE_STORE_ID")

	flags.String("model-id", defaultConfig.Connection.Remote.ModelID, "the authorization model id to pin requests to, empty for the store's latest")
	util.MustBindPFlag("connection.remote.model-id", flags.Lookup("model-id"))
	util.MustBindEnv("connection.remote.model-id", "FGACACHE_MODEL_ID")

	flags.Bool("remote-tls-enabled", defaultConfig.Connection.Remote.TLS.Enabled, "enable/disable transport layer security (TLS) toward the authorization service")
	util.MustBindPFlag("connection.remote.tls.enabled", flags.Lookup("remote-tls-enabled"))
	util.MustBindEnv("connection.remote.tls.enabled", "FGACACHE_REMOTE_TLS_ENABLED")

	flags.String("remote-tls-ca-cert", defaultConfig.Connection.Remote.TLS.CACertPath, "the (absolute) file path of an extra CA bundle to trust, empty for the system pool")
	util.MustBindPFlag("connection.remote.tls.ca-cert", flags.Lookup("remote-tls-ca-cert"))
	util.MustBindEnv("connection.remote.tls.ca-cert", "FGACACHE_REMOTE_TLS_CA_CERT")

	flags.String("credentials-method", defaultConfig.Connection.Remote.Credentials.Method, "how calls to the authorization service authenticate: 'none', 'api_token' or 'client_credentials'")
	util.MustBindPFlag("connection.remote.credentials.method", flags.Lookup("credentials-method"))
	util.MustBindEnv("connection.remote.credentials.method", "FGACACHE_CREDENTIALS_METHOD")

	flags.String("credentials-api-token", defaultConfig.Connection.Remote.Credentials.APIToken, "the static bearer token for the api_token method")
	util.MustBindPFlag("connection.remote.credentials.api-token", flags.Lookup("credentials-api-token"))
	util.MustBindEnv("connection.remote.credentials.api-token", "FGACACHE_CREDENTIALS_API_TOKEN")

	flags.String("credentials-client-id", defaultConfig.Connection.Remote.Credentials.ClientID, "the oauth2 client id for the client_credentials method")
	util.MustBindPFlag("connection.remote.credentials.client-id", flags.Lookup("credentials-client-id"))
	util.MustBindEnv("connection.remote.credentials.client-id", "FGACACHE_CREDENTIALS_CLIENT_ID")

	flags.String("credentials-client-secret", defaultConfig.Connection.Remote.Credentials.ClientSecret, "the oauth2 client secret for the client_credentials method")
	util.MustBindPFlag("connection.remote.credentials.client-secret", flags.Lookup("credentials-client-secret"))
	util.MustBindEnv("connection.remote.credentials.client-secret", "FGACACHE_CREDENTIALS_CLIENT_SECRET")

	flags.String("credentials-token-issuer", defaultConfig.Connection.Remote.Credentials.TokenIssuer, "the issuer fetching oauth2 tokens for the client_credentials method")
	util.MustBindPFlag("connection.remote.credentials.token-issuer", flags.Lookup("credentials-token-issuer"))
	util.MustBindEnv("connection.remote.credentials.token-issuer", "FGACACHE_CREDENTIALS_TOKEN_ISSUER")

	flags.String("credentials-audience", defaultConfig.Connection.Remote.Credentials.Audience, "the audience requested on oauth2 tokens")
	util.MustBindPFlag("connection.remote.credentials.audience", flags.Lookup("credentials-audience"))
	util.MustBindEnv("connection.remote.credentials.audience", "FGACACHE_CREDENTIALS_AUDIENCE")

	flags.Duration("cache-ttl", defaultConfig.Connection.Cache.TTL, "how long a cached check result may be served")
	util.MustBindPFlag("connection.cache.ttl", flags.Lookup("cache-ttl"))
	util.MustBindEnv("connection.cache.ttl", "FGACACHE_CACHE_TTL")

	flags.String("cache-store", defaultConfig.Connection.Cache.Store, "where cached check results live, 'memory' or 'redis'")
	util.MustBindPFlag("connection.cache.store", flags.Lookup("cache-store"))
	util.MustBindEnv("connection.cache.store", "FGACACHE_CACHE_STORE")

	flags.Int64("cache-max-entries", defaultConfig.Connection.Cache.MaxEntries, "the maximum number of in-memory entries before LRU eviction starts")
	util.MustBindPFlag("connection.cache.max-entries", flags.Lookup("cache-max-entries"))
	util.MustBindEnv("connection.cache.max-entries", "FGACACHE_CACHE_MAX_ENTRIES")

	flags.String("cache-redis-url", defaultConfig.Connection.Cache.RedisURL, "the redis connection string when the cache store is 'redis'")
	util.MustBindPFlag("connection.cache.redis-url", flags.Lookup("cache-redis-url"))
	util.MustBindEnv("connection.cache.redis-url", "FGACACHE_CACHE_REDIS_URL")

	flags.Bool("write-behind-enabled", defaultConfig.Connection.WriteBehind.Enabled, "buffer grants and revokes in memory and flush them in batches instead of writing through synchronously")
	util.MustBindPFlag("connection.write-behind.enabled", flags.Lookup("write-behind-enabled"))
	util.MustBindEnv("connection.write-behind.enabled", "FGACACHE_WRITE_BEHIND_ENABLED")

	flags.Int("write-behind-batch-size", defaultConfig.Connection.WriteBehind.BatchSize, "the pending-operation count that triggers a flush and the upper bound per batch")
	util.MustBindPFlag("connection.write-behind.batch-size", flags.Lookup("write-behind-batch-size"))
	util.MustBindEnv("connection.write-behind.batch-size", "FGACACHE_WRITE_BEHIND_BATCH_SIZE")

	flags.Duration("write-behind-flush-interval", defaultConfig.Connection.WriteBehind.FlushInterval, "how often the background loop attempts a flush")
	util.MustBindPFlag("connection.write-behind.flush-interval", flags.Lookup("write-behind-flush-interval"))
	util.MustBindEnv("connection.write-behind.flush-interval", "FGACACHE_WRITE_BEHIND_FLUSH_INTERVAL")

	flags.Bool("write-behind-flush-on-stop", defaultConfig.Connection.WriteBehind.FlushOnStop, "attempt one final drain of the write buffer on shutdown")
	util.MustBindPFlag("connection.write-behind.flush-on-stop", flags.Lookup("write-behind-flush-on-stop"))
	util.MustBindEnv("connection.write-behind.flush-on-stop", "FGACACHE_WRITE_BEHIND_FLUSH_ON_STOP")

	flags.String("activity-tracker", defaultConfig.Connection.Activity.Tracker, "where check activity is recorded: 'none', 'memory', 'postgres', 'mysql' or 'sqlite'")
	util.MustBindPFlag("connection.activity.tracker", flags.Lookup("activity-tracker"))
	util.MustBindEnv("connection.activity.tracker", "FGACACHE_ACTIVITY_TRACKER")

	flags.String("activity-uri", defaultConfig.Connection.Activity.URI, "the datastore connection string for the SQL activity trackers")
	util.MustBindPFlag("connection.activity.uri", flags.Lookup("activity-uri"))
	util.MustBindEnv("connection.activity.uri", "FGACACHE_ACTIVITY_URI")

	flags.String("warm-schedule", defaultConfig.Connection.Warm.Schedule, "a cron expression for periodic activity-based warming, empty to disable")
	util.MustBindPFlag("connection.warm.schedule", flags.Lookup("warm-schedule"))
	util.MustBindEnv("connection.warm.schedule", "FGACACHE_WARM_SCHEDULE")

	flags.Int("warm-limit", defaultConfig.Connection.Warm.Limit, "how many tuples a scheduled warm primes")
	util.MustBindPFlag("connection.warm.limit", flags.Lookup("warm-limit"))
	util.MustBindEnv("connection.warm.limit", "FGACACHE_WARM_LIMIT")

	flags.Int("warm-concurrency", defaultConfig.Connection.Warm.Concurrency, "how many checks a warming call runs at once")
	util.MustBindPFlag("connection.warm.concurrency", flags.Lookup("warm-concurrency"))
	util.MustBindEnv("connection.warm.concurrency", "FGACACHE_WARM_CONCURRENCY")

	flags.String("events-webhook-url", defaultConfig.Connection.Events.WebhookURL, "a URL receiving a signed JSON POST per cache lifecycle event, empty to disable")
	util.MustBindPFlag("connection.events.webhook-url", flags.Lookup("events-webhook-url"))
	util.MustBindEnv("connection.events.webhook-url", "FGACACHE_EVENTS_WEBHOOK_URL")

	flags.String("events-webhook-secret", defaultConfig.Connection.Events.WebhookSecret, "the secret keying the HMAC signature on webhook deliveries")
	util.MustBindPFlag("connection.events.webhook-secret", flags.Lookup("events-webhook-secret"))
	util.MustBindEnv("connection.events.webhook-secret", "FGACACHE_EVENTS_WEBHOOK_SECRET")

	flags.String("events-nats-url", defaultConfig.Connection.Events.NATSURL, "the NATS server cache lifecycle events publish to, empty to disable")
	util.MustBindPFlag("connection.events.nats-url", flags.Lookup("events-nats-url"))
	util.MustBindEnv("connection.events.nats-url", "FGACACHE_EVENTS_NATS_URL")

	flags.String("events-nats-subject-prefix", defaultConfig.Connection.Events.NATSSubjectPrefix, "the prefix on per-event-type NATS subjects")
	util.MustBindPFlag("connection.events.nats-subject-prefix", flags.Lookup("events-nats-subject-prefix"))
	util.MustBindEnv("connection.events.nats-subject-prefix", "FGACACHE_EVENTS_NATS_SUBJECT_PREFIX")

	flags.Bool("http-enabled", defaultConfig.HTTP.Enabled, "enable/disable the agent HTTP API")
	util.MustBindPFlag("http.enabled", flags.Lookup("http-enabled"))
	util.MustBindEnv("http.enabled", "FGACACHE_HTTP_ENABLED")

	flags.String("http-addr", defaultConfig.HTTP.Addr, "the host:port address to serve the agent HTTP API on")
	util.MustBindPFlag("http.addr", flags.Lookup("http-addr"))
	util.MustBindEnv("http.addr", "FGACACHE_HTTP_ADDR")

	flags.Bool("http-tls-enabled", defaultConfig.HTTP.TLS.Enabled, "enable/disable transport layer security (TLS) on the agent HTTP API")
	util.MustBindPFlag("http.tls.enabled", flags.Lookup("http-tls-enabled"))
	util.MustBindEnv("http.tls.enabled", "FGACACHE_HTTP_TLS_ENABLED")

	flags.String("http-tls-cert", defaultConfig.HTTP.TLS.CertPath, "the (absolute) file path of the certificate to use for the TLS connection")
	util.MustBindPFlag("http.tls.cert", flags.Lookup("http-tls-cert"))
	util.MustBindEnv("http.tls.cert", "FGACACHE_HTTP_TLS_CERT")

	flags.String("http-tls-key", defaultConfig.HTTP.TLS.KeyPath, "the (absolute) file path of the TLS key that should be used for the TLS connection")
	util.MustBindPFlag("http.tls.key", flags.Lookup("http-tls-key"))
	util.MustBindEnv("http.tls.key", "FGACACHE_HTTP_TLS_KEY")

	command.MarkFlagsRequiredTogether("http-tls-enabled", "http-tls-cert", "http-tls-key")

	flags.Duration("http-upstream-timeout", defaultConfig.HTTP.UpstreamTimeout, "the timeout duration for requests waiting on the authorization service")
	util.MustBindPFlag("http.upstream-timeout", flags.Lookup("http-upstream-timeout"))
	util.MustBindEnv("http.upstream-timeout", "FGACACHE_HTTP_UPSTREAM_TIMEOUT")

	flags.StringSlice("http-cors-allowed-origins", defaultConfig.HTTP.CORSAllowedOrigins, "specifies the CORS allowed origins")
	util.MustBindPFlag("http.cors-allowed-origins", flags.Lookup("http-cors-allowed-origins"))
	util.MustBindEnv("http.cors-allowed-origins", "FGACACHE_HTTP_CORS_ALLOWED_ORIGINS")

	flags.StringSlice("http-cors-allowed-headers", defaultConfig.HTTP.CORSAllowedHeaders, "specifies the CORS allowed headers")
	util.MustBindPFlag("http.cors-allowed-headers", flags.Lookup("http-cors-allowed-headers"))
	util.MustBindEnv("http.cors-allowed-headers", "FGACACHE_HTTP_CORS_ALLOWED_HEADERS")

	flags.String("authn-method", defaultConfig.Authn.Method, "the authentication method on the agent HTTP API: 'none', 'preshared' or 'oidc'")
	util.MustBindPFlag("authn.method", flags.Lookup("authn-method"))
	util.MustBindEnv("authn.method", "FGACACHE_AUTHN_METHOD")

	flags.StringSlice("authn-preshared-keys", defaultConfig.Authn.Keys, "one or more preshared keys to use for authentication")
	util.MustBindPFlag("authn.keys", flags.Lookup("authn-preshared-keys"))
	util.MustBindEnv("authn.keys", "FGACACHE_AUTHN_PRESHARED_KEYS")

	flags.String("authn-oidc-issuer", defaultConfig.Authn.Issuer, "the OIDC issuer (authorization server) signing the tokens accepted on the agent HTTP API")
	util.MustBindPFlag("authn.issuer", flags.Lookup("authn-oidc-issuer"))
	util.MustBindEnv("authn.issuer", "FGACACHE_AUTHN_OIDC_ISSUER")

	flags.String("authn-oidc-audience", defaultConfig.Authn.Audience, "the OIDC audience of the tokens accepted on the agent HTTP API")
	util.MustBindPFlag("authn.audience", flags.Lookup("authn-oidc-audience"))
	util.MustBindEnv("authn.audience", "FGACACHE_AUTHN_OIDC_AUDIENCE")

	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in, 'text' or 'json'")
	util.MustBindPFlag("log.format", flags.Lookup("log-format"))
	util.MustBindEnv("log.format", "FGACACHE_LOG_FORMAT")

	flags.String("log-level", defaultConfig.Log.Level, "the log level to use in the log output (e.g. 'none', 'debug', or 'info')")
	util.MustBindPFlag("log.level", flags.Lookup("log-level"))
	util.MustBindEnv("log.level", "FGACACHE_LOG_LEVEL")

	flags.String("log-timestamp-format", defaultConfig.Log.TimestampFormat, "the timestamp format to use for the log output, 'Unix' or 'ISO8601'")
	util.MustBindPFlag("log.timestamp-format", flags.Lookup("log-timestamp-format"))
	util.MustBindEnv("log.timestamp-format", "FGACACHE_LOG_TIMESTAMP_FORMAT")

	flags.Bool("trace-enabled", defaultConfig.Trace.Enabled, "enable tracing")
	util.MustBindPFlag("trace.enabled", flags.Lookup("trace-enabled"))
	util.MustBindEnv("trace.enabled", "FGACACHE_TRACE_ENABLED")

	flags.String("trace-otlp-endpoint", defaultConfig.Trace.OTLPAddr, "the grpc endpoint of the trace collector")
	util.MustBindPFlag("trace.otlp-addr", flags.Lookup("trace-otlp-endpoint"))
	util.MustBindEnv("trace.otlp-addr", "FGACACHE_TRACE_OTLP_ENDPOINT")

	flags.Float64("trace-sample-ratio", defaultConfig.Trace.SampleRatio, "the fraction of traces to sample")
	util.MustBindPFlag("trace.sample-ratio", flags.Lookup("trace-sample-ratio"))
	util.MustBindEnv("trace.sample-ratio", "FGACACHE_TRACE_SAMPLE_RATIO")

	flags.String("trace-service-name", defaultConfig.Trace.ServiceName, "the service name included in sampled spans")
	util.MustBindPFlag("trace.service-name", flags.Lookup("trace-service-name"))
	util.MustBindEnv("trace.service-name", "FGACACHE_TRACE_SERVICE_NAME")

	flags.Bool("metrics-enabled", defaultConfig.Metrics.Enabled, "enable/disable prometheus metrics on the '/metrics' endpoint")
	util.MustBindPFlag("metrics.enabled", flags.Lookup("metrics-enabled"))
	util.MustBindEnv("metrics.enabled", "FGACACHE_METRICS_ENABLED")

	flags.String("metrics-addr", defaultConfig.Metrics.Addr, "the host:port address to serve the prometheus metrics server on")
	util.MustBindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
	util.MustBindEnv("metrics.addr", "FGACACHE_METRICS_ADDR")

	flags.Bool("profiler-enabled", defaultConfig.Profiler.Enabled, "enable/disable pprof profiling")
	util.MustBindPFlag("profiler.enabled", flags.Lookup("profiler-enabled"))
	util.MustBindEnv("profiler.enabled", "FGACACHE_PROFILER_ENABLED")

	flags.String("profiler-addr", defaultConfig.Profiler.Addr, "the host:port address to serve the pprof profiler on")
	util.MustBindPFlag("profiler.addr", flags.Lookup("profiler-addr"))
	util.MustBindEnv("profiler.addr", "FGACACHE_PROFILER_ADDR")
}
