package main

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/watchtrack/internal/events"
	"github.com/example/watchtrack/internal/handlers"
	"github.com/example/watchtrack/internal/kv"
	"github.com/example/watchtrack/internal/platform/auth"
	"github.com/example/watchtrack/internal/platform/config"
	"github.com/example/watchtrack/internal/platform/httpserver"
	"github.com/example/watchtrack/internal/platform/logging"
	"github.com/example/watchtrack/internal/platform/natsconn"
	"github.com/example/watchtrack/internal/platform/run"
	"github.com/example/watchtrack/internal/progress"
	"github.com/example/watchtrack/internal/tracker"
	"github.com/example/watchtrack/internal/worker"
)

func main() {
	cfg := config.Load()
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	backend, closeBackend := initKV(cfg, log)
	if closeBackend != nil {
		defer closeBackend()
	}

	store := progress.NewStore(kv.NewBreaker(backend), log)
	store.Load(context.Background())

	manager := tracker.NewManager(store, cfg.Tracking.SampleInterval, log)
	consumer := worker.NewConsumer(manager, log)

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{ReadyFunc: readiness(backend)})

	r.Get("/v1/progress", handlers.ListProgress(store))
	r.Get("/v1/videos/{video_id}/progress", handlers.GetProgress(store))

	mutating := func(r chi.Router) {
		r.Post("/v1/sessions", handlers.StartSession(manager, store))
		r.Get("/v1/sessions/{session_id}", handlers.GetSession(manager))
		r.Post("/v1/sessions/{session_id}/events", handlers.SessionEvent(manager))
		r.Delete("/v1/sessions/{session_id}", handlers.EndSession(manager))
	}
	if cfg.JWTSecret != "" {
		verifier := auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser(verifier))
			mutating(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser(verifier), auth.RequireAdmin)
			r.Post("/v1/admin/flush", handlers.Flush(store))
		})
	} else {
		log.Warn("JWT_SECRET not set, mutating routes are unauthenticated")
		r.Group(mutating)
		r.Post("/v1/admin/flush", handlers.Flush(store))
	}

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		// NATS wiring is optional: without a broker the service still serves
		// HTTP, it just loses the bus ingest and update events.
		nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL})
		if err != nil {
			log.Warn("nats connect", zap.Error(err))
		} else {
			defer nc.Close()
			consumer.Start(ctx, nc)
			if js, err := nc.JetStream(); err == nil {
				store.Subscribe(events.New(js, log).Observer())
			} else {
				log.Warn("jetstream", zap.Error(err))
			}
		}

		serveErr := make(chan error, 1)
		go func() {
			serveErr <- srv.Start(log)
		}()

		select {
		case err := <-serveErr:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Flush open segments and positions before the listener dies.
		manager.Shutdown(shutdownCtx)
		if err := store.Save(shutdownCtx); err != nil {
			log.Warn("final save failed", zap.Error(err))
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
		return <-serveErr
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// readiness pings the backend when it supports it. The in-memory store has
// no Ping, so readiness degrades to the liveness check.
func readiness(backend kv.Store) func() error {
	p, ok := backend.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return p.Ping(ctx)
	}
}

// initKV selects the persistence backend: Redis when configured, then
// Postgres, then in-memory (development only; progress is lost on restart).
func initKV(cfg config.AppConfig, log *zap.Logger) (kv.Store, func()) {
	if cfg.Storage.RedisURL != "" {
		r, err := kv.NewRedis(cfg.Storage.RedisURL)
		if err == nil {
			if err = r.Ping(context.Background()); err == nil {
				log.Info("kv backend: redis")
				return r, nil
			}
		}
		log.Warn("redis unavailable, trying next backend", zap.Error(err))
	}

	if cfg.Storage.DatabaseURL != "" {
		p, err := kv.OpenPostgres(context.Background(), cfg.Storage.DatabaseURL)
		if err == nil {
			log.Info("kv backend: postgres")
			return p, p.Close
		}
		log.Warn("postgres unavailable, trying next backend", zap.Error(err))
	}

	log.Warn("no persistent backend configured, using in-memory kv (development only)")
	return kv.NewMemory(), nil
}
