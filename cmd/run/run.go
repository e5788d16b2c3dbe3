// Package run contains the command to run the fgacache agent.
package run

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/controller-runtime/pkg/certwatcher"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/evansims/fgacache/internal/agent"
	"github.com/evansims/fgacache/internal/authn"
	"github.com/evansims/fgacache/internal/authn/oidc"
	"github.com/evansims/fgacache/internal/authn/presharedkey"
	"github.com/evansims/fgacache/internal/build"
	"github.com/evansims/fgacache/internal/scheduler"
	"github.com/evansims/fgacache/pkg/config"
	"github.com/evansims/fgacache/pkg/logger"
	"github.com/evansims/fgacache/pkg/manager"
	"github.com/evansims/fgacache/pkg/telemetry"
)

// shutdownTimeout bounds how long listeners get to drain on shutdown.
const shutdownTimeout = 5 * time.Second

// NewRunCommand returns the command that runs the fgacache agent.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the fgacache agent",
		Long:  "Run the caching sidecar: serve the cache HTTP API and drive the background flush loop against the remote authorization service.",
		Run:   run,
		Args:  cobra.NoArgs,
	}

	bindRunFlags(cmd)

	return cmd
}

// ReadConfig returns the agent configuration based on the values provided
// in the 'fgacache.yaml' file, loaded from '/etc/fgacache',
// '$HOME/.fgacache', or the current working directory. If no configuration
// file is present, the default values are returned.
func ReadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()

	viper.SetTypeByDefaultValue(true)
	err := viper.ReadInConfig()
	if err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load agent config: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent config: %w", err)
	}

	return cfg, nil
}

func run(_ *cobra.Command, _ []string) {
	cfg, err := ReadConfig()
	if err != nil {
		panic(err)
	}

	if err := cfg.Verify(); err != nil {
		panic(err)
	}

	if err := RunAgent(context.Background(), cfg); err != nil {
		panic(err)
	}
}

// RunAgent builds everything from cfg and serves until the context is done
// or a SIGINT/SIGTERM arrives.
func RunAgent(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.MustNewLogger(cfg.Log.Format, cfg.Log.Level, cfg.Log.TimestampFormat)

	if cfg.Trace.Enabled {
		log.Info("🕵 tracing enabled",
			zap.String("endpoint", cfg.Trace.OTLPAddr),
			zap.Float64("sample_ratio", cfg.Trace.SampleRatio),
		)

		tp := telemetry.MustNewTracerProvider(
			telemetry.WithOTLPEndpoint(cfg.Trace.OTLPAddr),
			telemetry.WithServiceName(cfg.Trace.ServiceName),
			telemetry.WithSamplingRatio(cfg.Trace.SampleRatio),
		)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = tp.ForceFlush(shutdownCtx)
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	mgr, err := manager.NewManager(cfg, manager.WithLogger(log))
	if err != nil {
		return fmt.Errorf("build connection manager: %w", err)
	}
	defer mgr.Close()

	authenticator, err := newAuthenticator(cfg.Authn)
	if err != nil {
		return fmt.Errorf("build authenticator: %w", err)
	}
	defer authenticator.Close()

	sched, err := scheduler.NewScheduler(mgr, scheduler.WithLogger(log))
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Enabled {
		handler := agent.NewAgent(mgr,
			agent.WithAuthenticator(authenticator),
			agent.WithLogger(log),
			agent.WithCORS(cfg.HTTP.CORSAllowedOrigins, cfg.HTTP.CORSAllowedHeaders),
		).Handler()

		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           http.TimeoutHandler(handler, cfg.HTTP.UpstreamTimeout, "request timed out"),
			ReadHeaderTimeout: 3 * time.Second,
		}

		if cfg.HTTP.TLS.Enabled {
			ctrllog.SetLogger(logr.Discard())

			watcher, err := certwatcher.New(cfg.HTTP.TLS.CertPath, cfg.HTTP.TLS.KeyPath)
			if err != nil {
				return fmt.Errorf("watch tls certificate: %w", err)
			}
			g.Go(func() error {
				return watcher.Start(gctx)
			})

			srv.TLSConfig = &tls.Config{
				GetCertificate: watcher.GetCertificate,
				MinVersion:     tls.VersionTLS12,
			}
		}

		g.Go(func() error {
			log.Info("🚀 starting the fgacache agent",
				zap.String("addr", cfg.HTTP.Addr),
				zap.Strings("connections", mgr.Connections()),
				zap.String("version", build.Version),
			)

			var err error
			if cfg.HTTP.TLS.Enabled {
				err = srv.ListenAndServeTLS("", "")
			} else {
				err = srv.ListenAndServe()
			}
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("agent HTTP server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return shutdownServer(srv, log, "agent HTTP server")
		})
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 3 * time.Second}

		g.Go(func() error {
			log.Info("📈 starting the prometheus metrics server", zap.String("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return shutdownServer(srv, log, "metrics server")
		})
	}

	if cfg.Profiler.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		srv := &http.Server{Addr: cfg.Profiler.Addr, Handler: mux, ReadHeaderTimeout: 3 * time.Second}

		g.Go(func() error {
			log.Info("🔬 starting the pprof profiler", zap.String("addr", cfg.Profiler.Addr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("profiler server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return shutdownServer(srv, log, "profiler server")
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("agent exiting. Goodbye 👋")

	return nil
}

func shutdownServer(srv *http.Server, log logger.Logger, name string) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("shutting down " + name)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", name, err)
	}

	return nil
}

func newAuthenticator(cfg config.AuthnConfig) (authn.Authenticator, error) {
	switch strings.ToLower(cfg.Method) {
	case "", "none":
		return authn.NoopAuthenticator{}, nil
	case "preshared":
		return presharedkey.NewPresharedKeyAuthenticator(cfg.Keys)
	case "oidc":
		return oidc.NewRemoteOidcAuthenticator(cfg.Issuer, cfg.Audience)
	default:
		return nil, fmt.Errorf("unsupported authn method %q", cfg.Method)
	}
}
