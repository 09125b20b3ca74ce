// Command devserver is the reference comment backend: the REST API under
// /api, the websocket push channel at /ws and optional NATS fan-out.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/example/comment-sync/internal/platform/auth"
	"github.com/example/comment-sync/internal/platform/db"
	"github.com/example/comment-sync/internal/platform/httpserver"
	"github.com/example/comment-sync/internal/platform/logging"
	"github.com/example/comment-sync/internal/platform/natsconn"
	"github.com/example/comment-sync/internal/platform/run"
	"github.com/example/comment-sync/services/devserver/internal/config"
	"github.com/example/comment-sync/services/devserver/internal/events"
	"github.com/example/comment-sync/services/devserver/internal/handlers"
	"github.com/example/comment-sync/services/devserver/internal/hub"
	"github.com/example/comment-sync/services/devserver/internal/store"
)

func main() {
	cfg, err := config.LoadDev()
	if err != nil {
		fmt.Fprintln(os.Stderr, "devserver:", err)
		run.Exit(2)
	}
	log, err := logging.New(cfg.App.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	comments, users, pool := initStores(cfg, log)
	if pool != nil {
		defer pool.Close()
	}

	h := hub.New(log)
	broadcast := events.Multi{events.NewFrames(h, log)}

	if cfg.NATSURL != "" {
		nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: cfg.App.ServiceName, Logger: log})
		if err != nil {
			// push over NATS is optional; the websocket hub still works
			log.Warn("nats connect failed, websocket push only", zap.Error(err))
		} else {
			defer nc.Close()
			broadcast = append(broadcast, events.NewNATSPublisher(nc, cfg.NATSPrefix, log))
			log.Info("nats fan-out enabled", zap.String("url", cfg.NATSURL))
		}
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         log,
		ReadyFunc: func() error {
			if pool == nil {
				return nil
			}
			return pool.Ping(context.Background())
		},
	})
	handlers.Mount(r, handlers.Deps{
		Comments: comments,
		Users:    users,
		Tokens:   auth.Tokens{Secret: cfg.JWTSecret, TTL: cfg.TokenTTL},
		Events:   broadcast,
		Logger:   log,
		WS:       hub.Handler(h, hub.AllowOrigins(cfg.AllowedOrigins)),
		// 1 req/s with a burst of 10 per client
		AuthLimiter: httpserver.NewRateLimiter(1, 10),
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.App.HTTP.Addr, ServiceName: cfg.App.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		go h.Run(ctx)
		go runner.Graceful(ctx, srv.Shutdown)
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	_ = log.Sync()
	run.Exit(code)
}

// initStores selects the storage backend. Without DATABASE_URL, or when
// Postgres is unreachable outside production, both stores live in memory.
func initStores(cfg config.DevConfig, log *zap.Logger) (store.CommentStore, store.UserStore, *pgxpool.Pool) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory stores (development only)")
		return store.NewInMemoryCommentStore(), store.NewInMemoryUserStore(), nil
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err == nil {
		if err = store.Migrate(ctx, pool); err != nil {
			pool.Close()
		}
	}
	if err != nil {
		if cfg.Production {
			log.Error("postgres is required in production but unavailable", zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("postgres unavailable, falling back to in-memory stores", zap.Error(err))
		return store.NewInMemoryCommentStore(), store.NewInMemoryUserStore(), nil
	}

	log.Info("stores: postgres")
	return store.NewPostgresCommentStore(pool), store.NewPostgresUserStore(pool), pool
}
