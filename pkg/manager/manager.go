// Package manager assembles the cache core for one or more named
// connections to remote authorization services, from typed configuration.
package manager

import (
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"

	"github.com/evansims/fgacache/internal/activity"
	"github.com/evansims/fgacache/pkg/cache"
	"github.com/evansims/fgacache/pkg/client"
	"github.com/evansims/fgacache/pkg/config"
	"github.com/evansims/fgacache/pkg/events"
	"github.com/evansims/fgacache/pkg/logger"
)

// ErrUnknownConnection is returned when a request names a connection the
// manager was not configured with.
var ErrUnknownConnection = errors.New("unknown connection")

// Manager owns every configured connection and tears them down together.
type Manager struct {
	connections map[string]*Connection
	logger      logger.Logger
}

// ManagerOpt defines an option that can be used to change the behavior of a
// Manager instance.
type ManagerOpt func(*Manager)

// WithLogger sets the logger shared by every connection.
func WithLogger(l logger.Logger) ManagerOpt {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager builds every connection in cfg. On any failure the
// connections already built are stopped before the error returns.
func NewManager(cfg *config.Config, opts ...ManagerOpt) (*Manager, error) {
	m := &Manager{
		connections: make(map[string]*Connection),
		logger:      logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(m)
	}

	for name, connCfg := range cfg.ConnectionConfigs() {
		conn, err := newConnection(name, connCfg, m.logger.With(zap.String("connection", name)))
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("build connection %q: %w", name, err)
		}
		m.connections[name] = conn
	}

	return m, nil
}

// GetConnection returns the named connection, or the default connection
// when name is empty.
func (m *Manager) GetConnection(name string) (*Connection, error) {
	if name == "" {
		name = config.DefaultConnectionName
	}

	conn, ok := m.connections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownConnection, name)
	}

	return conn, nil
}

// Connections returns every connection name, sorted.
func (m *Manager) Connections() []string {
	names := maps.Keys(m.connections)
	sort.Strings(names)
	return names
}

// Close stops every connection: flush loops halt (draining once when
// flush-on-stop is set), stores, trackers, notifiers and clients close.
func (m *Manager) Close() {
	for name, conn := range m.connections {
		if err := conn.close(); err != nil {
			m.logger.Warn("failed to close connection cleanly",
				zap.Error(err),
				zap.String("connection", name),
			)
		}
	}
}

func newAuthorizationClient(cfg config.RemoteConfig) (client.AuthorizationClient, error) {
	tokens, err := newTokenSource(cfg.Credentials)
	if err != nil {
		return nil, err
	}

	switch cfg.Transport {
	case "grpc":
		var opts []client.GRPCClientOpt
		if cfg.TLS.Enabled {
			opts = append(opts, client.WithTLS(cfg.TLS.CACertPath))
		}
		if tokens != nil {
			opts = append(opts, client.WithPerRPCCredentials(
				client.PerRPCCredentials{Source: tokens, Insecure: !cfg.TLS.Enabled},
			))
		}
		return client.NewGRPCClient(cfg.APIURL, cfg.StoreID, cfg.ModelID, opts...)
	case "http":
		var opts []client.HTTPClientOpt
		if tokens != nil {
			opts = append(opts, client.WithTokenSource(tokens))
		}
		return client.NewHTTPClient(cfg.APIURL, cfg.StoreID, cfg.ModelID, opts...)
	default:
		return nil, fmt.Errorf("unsupported remote transport %q", cfg.Transport)
	}
}

func newTokenSource(cfg config.CredentialsConfig) (client.TokenSource, error) {
	switch cfg.Method {
	case "", "none":
		return nil, nil
	case "api_token":
		return client.NewStaticTokenSource(cfg.APIToken), nil
	case "client_credentials":
		return client.NewClientCredentialsTokenSource(cfg.TokenIssuer, cfg.ClientID, cfg.ClientSecret, cfg.Audience)
	default:
		return nil, fmt.Errorf("unsupported credentials method %q", cfg.Method)
	}
}

func newStore(cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Store {
	case "memory":
		return cache.NewMemoryStore(cache.WithMaxEntries(cfg.MaxEntries)), nil
	case "redis":
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return cache.NewRedisStore(redis.NewClient(redisOpts)), nil
	default:
		return nil, fmt.Errorf("unsupported cache store %q", cfg.Store)
	}
}

func newTracker(cfg config.ActivityConfig) (activity.Tracker, error) {
	switch cfg.Tracker {
	case "none":
		return nil, nil
	case "memory":
		return activity.NewMemoryTracker(), nil
	case "postgres", "mysql", "sqlite":
		return activity.NewSQLTracker(cfg.Tracker, cfg.URI)
	default:
		return nil, fmt.Errorf("unsupported activity tracker %q", cfg.Tracker)
	}
}

func newNotifier(cfg config.EventsConfig) (events.Notifier, error) {
	var notifiers []events.Notifier

	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, events.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookSecret))
	}
	if cfg.NATSURL != "" {
		n, err := events.NewNATSNotifier(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}

	switch len(notifiers) {
	case 0:
		return events.NewNoopNotifier(), nil
	case 1:
		return notifiers[0], nil
	default:
		return events.NewMultiNotifier(notifiers...), nil
	}
}
