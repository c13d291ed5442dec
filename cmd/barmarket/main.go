package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/evituu/bar-market/internal/cache"
	"github.com/evituu/bar-market/internal/config"
	"github.com/evituu/bar-market/internal/database"
	"github.com/evituu/bar-market/internal/feed"
	"github.com/evituu/bar-market/internal/market"
	"github.com/evituu/bar-market/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(context.Background(), logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}

	connString := fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.Database.User, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName)
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return fmt.Errorf("cannot connect to postgres: %w", err)
	}
	defer pool.Close()

	repo := &database.PostgresRepository{Pool: pool}
	if err := repo.Migrate(ctx); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cannot connect to redis: %w", err)
	}
	history := cache.NewPriceHistory(rdb, time.Duration(cfg.Market.HistoryTTLMinutes)*time.Minute, logger)

	store := market.NewStore()
	if err := loadCatalog(ctx, repo, store, logger); err != nil {
		return err
	}

	hub := feed.NewHub(logger)
	events := market.NewEventController(repo, logger)
	engine := market.NewEngine(store, events, cfg.Market, repo, history, hub, logger)
	reservations := market.NewReservationManager(store,
		time.Duration(cfg.Market.LockTTLSeconds)*time.Second, repo, logger)
	settler := market.NewSettler(store, engine, repo, logger)

	go engine.Run(ctx)

	srv := server.New(store, reservations, settler, engine, events, history, hub, logger)
	httpServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, fmt.Sprintf("%d", cfg.Server.Port)),
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("gracefully shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// loadCatalog seeds the default catalog on first boot, then hydrates the
// store from whatever the database holds, including surviving price state.
func loadCatalog(ctx context.Context, repo database.Repository, store *market.Store, logger *slog.Logger) error {
	items, err := repo.ListItems(ctx)
	if err != nil {
		return fmt.Errorf("cannot list items: %w", err)
	}
	if len(items) == 0 {
		items = market.DefaultCatalog()
		if err := repo.SeedItems(ctx, items); err != nil {
			return fmt.Errorf("cannot seed catalog: %w", err)
		}
		logger.Info("seeded default catalog", "items", len(items))
	}

	for _, item := range items {
		if err := store.AddItem(item); err != nil {
			logger.Error("skipping item with invalid price range", "itemId", item.ID, "error", err)
		}
	}

	states, err := repo.ListPriceStates(ctx)
	if err != nil {
		return fmt.Errorf("cannot list price states: %w", err)
	}
	for _, state := range states {
		store.RestorePriceState(state)
	}

	logger.Info("catalog loaded", "items", len(items), "priceStates", len(states))
	return nil
}
