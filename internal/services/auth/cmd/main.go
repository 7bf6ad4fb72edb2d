package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gamma-omg/nativeauth/internal/pkg/middleware"
	"github.com/gamma-omg/nativeauth/internal/pkg/router"
	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/config"
	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/oauth"
	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/provider"
	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/reconcile"
	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/rest"
	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/service"
	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/store"
	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/svcconfig"
)

// readinessCheck reports whether a backing dependency can serve requests.
type readinessCheck func(ctx context.Context) error

func run(ctx context.Context) error {
	slog.Info("starting auth service")

	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var (
		st     store.Store
		db     *sql.DB
		checks []readinessCheck
	)
	switch cfg.Store.Driver {
	case "memory":
		slog.Warn("using in-memory user store, data is lost on restart")
		st = store.NewMemory()
	default:
		db, err = store.NewPostgresDB(ctx, store.PostgresConfig{
			Host:     cfg.DB.Host,
			Port:     cfg.DB.Port,
			User:     cfg.DB.User,
			Password: cfg.DB.Password,
			DB:       cfg.DB.Name,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to db: %w", err)
		}
		defer db.Close()

		st = store.NewPostgresStore(db)
		checks = append(checks, db.PingContext)
	}

	configs := svcconfig.NewCached(serviceConfigs(cfg, db), cfg.Provider.ConfigCacheTTL)
	defer configs.Close()

	var opts []reconcile.Option
	if cfg.Redis.Addr != "" {
		locker := reconcile.NewRedisLocker(reconcile.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.LockTTL,
		})
		defer locker.Close()

		opts = append(opts, reconcile.WithLocker(locker))
		checks = append(checks, locker.Ping)
	}

	auth := oauth.NewAuthenticator(configs, reconcile.New(st, opts...))
	if err := registerProviders(auth, cfg); err != nil {
		return fmt.Errorf("failed to register providers: %w", err)
	}

	srv := service.NewAuth(
		service.WithAuthenticator(auth),
		service.WithStore(st),
	)

	root := router.New()
	root.Use(middleware.Recover(), middleware.Log())
	root.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	root.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if err := check(r.Context()); err != nil {
				slog.Error("readiness check failed", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	api := root.SubRouter("/api/v1")
	if cfg.API.JWTSecret != "" {
		api.Use(middleware.Auth([]byte(cfg.API.JWTSecret)))
	} else {
		slog.Warn("API_JWT_SECRET is not set, API callers are not authenticated")
	}
	api.Handle("/", rest.NewAPI(srv))

	httpSrv := &http.Server{
		Addr:         cfg.HTTP.ListenAddr,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		Handler:      root,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// serviceConfigs looks provider configuration up in the database first and
// falls back to the one given in the environment.
func serviceConfigs(cfg config.Config, db *sql.DB) svcconfig.Chain {
	var chain svcconfig.Chain
	if db != nil {
		chain = append(chain, svcconfig.NewPostgres(db))
	}

	static := svcconfig.Static{}
	if cfg.Google.ClientID != "" || len(cfg.Google.ValidClientIDs) > 0 {
		static["google"] = svcconfig.ProviderConfig{
			Service:        "google",
			ClientID:       cfg.Google.ClientID,
			Secret:         cfg.Google.Secret,
			ValidClientIDs: cfg.Google.ValidClientIDs,
		}
	}

	return append(chain, static)
}

func registerProviders(auth *oauth.Authenticator, cfg config.Config) error {
	client := provider.NewClient(provider.WithTimeout(cfg.Provider.Timeout))

	for _, p := range []oauth.Provider{
		provider.NewGoogle(client),
		provider.NewFacebook(client),
	} {
		if err := auth.Use(p); err != nil {
			return fmt.Errorf("register %s: %w", p.Name(), err)
		}
	}

	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		slog.Error("auth service terminated with error", "error", err)
		os.Exit(1)
	}
}
