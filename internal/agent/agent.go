// Package agent exposes the cache core over a local HTTP API, so
// applications in any language can use the caching sidecar, and operators
// can inspect and drive the write buffer.
package agent

import (
	"net/http"

	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/evansims/fgacache/internal/authn"
	"github.com/evansims/fgacache/pkg/logger"
	"github.com/evansims/fgacache/pkg/manager"
)

// Agent serves the management and data-plane API for a manager's
// connections.
type Agent struct {
	manager       *manager.Manager
	authenticator authn.Authenticator
	logger        logger.Logger

	corsAllowedOrigins []string
	corsAllowedHeaders []string
}

// AgentOpt defines an option that can be used to change the behavior of an
// Agent instance.
type AgentOpt func(*Agent)

// WithAuthenticator guards every endpoint except the health probe.
func WithAuthenticator(a authn.Authenticator) AgentOpt {
	return func(ag *Agent) {
		ag.authenticator = a
	}
}

// WithLogger sets the logger for the agent.
func WithLogger(l logger.Logger) AgentOpt {
	return func(ag *Agent) {
		ag.logger = l
	}
}

// WithCORS sets the allowed origins and headers on the HTTP surface.
func WithCORS(origins, headers []string) AgentOpt {
	return func(ag *Agent) {
		ag.corsAllowedOrigins = origins
		ag.corsAllowedHeaders = headers
	}
}

func NewAgent(m *manager.Manager, opts ...AgentOpt) *Agent {
	ag := &Agent{
		manager:            m,
		authenticator:      authn.NoopAuthenticator{},
		logger:             logger.NewNoopLogger(),
		corsAllowedOrigins: []string{"*"},
		corsAllowedHeaders: []string{"*"},
	}

	for _, opt := range opts {
		opt(ag)
	}

	return ag
}

// Handler returns the agent's full HTTP handler with middleware applied.
func (a *Agent) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /connections", a.handleConnections)
	mux.HandleFunc("GET /status", a.handleStatus)
	mux.HandleFunc("GET /stats", a.handleStats)
	mux.HandleFunc("POST /stats/reset", a.handleStatsReset)
	mux.HandleFunc("POST /flush", a.handleFlush)
	mux.HandleFunc("POST /clear", a.handleClear)
	mux.HandleFunc("POST /invalidate", a.handleInvalidate)
	mux.HandleFunc("POST /warm", a.handleWarm)
	mux.HandleFunc("POST /check", a.handleCheck)
	mux.HandleFunc("POST /grant", a.handleGrant)
	mux.HandleFunc("POST /revoke", a.handleRevoke)

	var handler http.Handler = mux
	handler = a.authnMiddleware(handler)
	handler = cors.New(cors.Options{
		AllowedOrigins: a.corsAllowedOrigins,
		AllowedHeaders: a.corsAllowedHeaders,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}).Handler(handler)
	handler = requestIDMiddleware(handler)
	handler = otelhttp.NewHandler(handler, "fgacache.agent")

	return handler
}

// connection resolves the ?connection= query parameter, defaulting to the
// default connection.
func (a *Agent) connection(r *http.Request) (*manager.Connection, error) {
	return a.manager.GetConnection(r.URL.Query().Get("connection"))
}
