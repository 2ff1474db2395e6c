// Package app wires the authgate server runtime: config, logging, metrics,
// persistence and the HTTP surface behind the authorization gate.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"authgate/cmd/identity"
	authapi "authgate/cmd/internal/auth/api"
	"authgate/cmd/internal/auth/authclient"
	"authgate/cmd/internal/auth/cookies"
	"authgate/cmd/internal/auth/gate"
	"authgate/cmd/internal/auth/passwordless"
	"authgate/cmd/internal/auth/routes"
	"authgate/cmd/internal/auth/session"
	"authgate/cmd/internal/auth/thirdparty"
	"authgate/cmd/security/password"
)

// App owns the HTTP server dependencies and the DB pool lifecycle.
type App struct {
	cfg Config
	log Logger

	pool    *pgxpool.Pool
	tracer  *sdktrace.TracerProvider
	metrics *Metrics
	gate    *gate.Gate
	auth    *authapi.Handler
	handler http.Handler
}

// New constructs a fully wired App. An empty DatabaseURL selects the memory stores.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	tokens, err := session.NewPasetoV4PublicManager(sessCfg)
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("password config: %w", err)
	}
	passwords, err := identity.NewPasswords(pwCfg)
	if err != nil {
		return nil, err
	}
	plCfg, err := passwordless.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("passwordless config: %w", err)
	}

	a := &App{cfg: cfg, log: log, metrics: NewMetrics()}

	var (
		sessStore session.Store
		users     identity.Store
		codes     passwordless.Store
	)
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		sessStore = session.NewMemoryStore()
		users = identity.NewMemoryStore()
		codes = passwordless.NewMemoryStore()
	} else {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		pg, err := identity.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("db.enabled.postgres_store")
		a.pool = pool
		sessStore = session.NewPostgresStore(pool)
		users = pg
		codes = passwordless.NewPostgresStore(pool)
	}

	var oauth *thirdparty.Registry
	if providers := thirdparty.ProvidersFromEnv(); len(providers) > 0 {
		key, generated, err := thirdparty.StateKeyFromEnv()
		if err != nil {
			a.Close()
			return nil, err
		}
		if generated {
			log.Warn("thirdparty.state_key.generated", "hint", "set AUTHGATE_OAUTH_STATE_KEY to keep flows across restarts")
		}
		oauth = thirdparty.NewRegistry(key, providers)
		log.Info("thirdparty.enabled", "providers", oauth.IDs())
	}

	paths := routes.New(cfg.RoutePrefix)
	local, err := authclient.NewLocal(authclient.LocalDeps{
		Sessions:      session.NewService(sessCfg, sessStore, tokens),
		Users:         users,
		Passwords:     passwords,
		Codes:         passwordless.NewManager(plCfg, passwordless.WithStore(codes)),
		OAuth:         oauth,
		Logger:        log,
		WebsiteDomain: cfg.WebsiteDomain,
		Paths:         paths,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	var client authclient.Client = local
	if cfg.Tracing {
		w := cfg.TraceWriter
		if w == nil {
			w = os.Stderr
		}
		tp, err := installTracing(w)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.tracer = tp
		client = authclient.NewTraced(local, authclient.WithTracerProvider(tp))
		log.Info("tracing.enabled", "exporter", "stdout")
	}

	codec := cookies.New(paths, cfg.WebsiteDomain)
	a.gate = gate.New(client, paths, codec, gate.WithLogger(log), gate.WithObserver(a.metrics))
	a.auth = authapi.NewHandler(log, client, codec, paths, authapi.LoadConfigFromEnv(),
		authapi.WithAuditor(authapi.NewAuditor(log, a.pool)),
		authapi.WithObserver(a.metrics),
	)
	a.handler = a.newRouter()
	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Close flushes pending spans and releases the DB pool, if any.
func (a *App) Close() {
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := shutdownTracing(ctx, a.tracer); err != nil {
			a.log.Warn("tracing.shutdown.fail", "err", err)
		}
		cancel()
		a.tracer = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

// Run serves HTTP until ctx is cancelled or the server fails, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.pool != nil, "website", a.cfg.WebsiteDomain)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
