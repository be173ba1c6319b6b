// Command blogd serves the blog REST API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rbaliyan/blog"
	"github.com/rbaliyan/blog/rest"
	"github.com/rbaliyan/blog/search"
	searchmem "github.com/rbaliyan/blog/search/memory"
	searchmongo "github.com/rbaliyan/blog/search/mongo"
	searchotel "github.com/rbaliyan/blog/search/otel"
	"github.com/rbaliyan/blog/store/sqldb"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func main() {
	if err := loadEnvFile(getEnv("ENV_FILE", ".env")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg, err := Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("blogd exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	st, db, err := sqldb.Open(cfg.Driver, cfg.DatabaseURL, sqldb.WithLogger(logger))
	if err != nil {
		return err
	}
	defer db.Close()

	backend, closeIndex, err := openIndex(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeIndex()

	idx, err := searchotel.New(backend, searchotel.WithServiceName(cfg.AppName))
	if err != nil {
		return fmt.Errorf("instrument index: %w", err)
	}

	opts := []blog.Option{
		blog.WithStore(st),
		blog.WithIndex(idx),
		blog.WithLogger(logger),
		blog.WithServiceName(cfg.AppName),
		blog.WithSyncIndexing(cfg.SyncIndexing),
		blog.WithOTel(true),
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		opts = append(opts, blog.WithRedisClient(client))
	}

	svc, err := blog.NewService(opts...)
	if err != nil {
		return err
	}
	if err := svc.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := svc.Close(shutdownCtx); err != nil {
			logger.Warn("close service", "error", err)
		}
	}()

	if cfg.DrainInterval > 0 {
		go drainLoop(ctx, svc, cfg.DrainInterval, logger)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           rest.NewServer(svc, rest.WithAppName(cfg.AppName), rest.WithLogger(logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "driver", cfg.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openIndex returns the MongoDB index when a URI is configured and the
// in-process index otherwise.
func openIndex(ctx context.Context, cfg *Config, logger *slog.Logger) (search.Index, func(), error) {
	if cfg.MongoURI == "" {
		logger.Warn("MONGO_URI not set, using in-process search index")
		return searchmem.New(), func() {}, nil
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	closeFn := func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Warn("disconnect mongo", "error", err)
		}
	}
	return searchmongo.New(client,
		searchmongo.WithDatabase(cfg.MongoDatabase),
		searchmongo.WithLogger(logger),
	), closeFn, nil
}

// drainLoop re-applies pending index tasks until ctx is done.
func drainLoop(ctx context.Context, svc blog.Service, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := svc.DrainIndexOutbox(ctx)
			if err != nil {
				logger.Warn("drain index outbox", "error", err)
				continue
			}
			if res.Synced+res.Failed+res.Skipped > 0 {
				logger.Info("drained index outbox", "synced", res.Synced, "failed", res.Failed, "skipped", res.Skipped)
			}
		}
	}
}
