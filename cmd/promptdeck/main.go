// Package main is the entry point for the PromptDeck catalog server.
// It loads configuration, connects to services, starts the partition
// subscriptions, sets up routing, and runs the HTTP server with graceful
// shutdown support.
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

	"golang.org/x/sync/errgroup"

	"promptdeck/internal/cache"
	"promptdeck/internal/config"
	"promptdeck/internal/database"
	"promptdeck/internal/feed"
	"promptdeck/internal/gateway"
	"promptdeck/internal/handlers"
	"promptdeck/internal/middleware"
	"promptdeck/internal/models"
	"promptdeck/internal/records"
	"promptdeck/internal/remote"
	"promptdeck/internal/router"
	"promptdeck/internal/session"
	"promptdeck/internal/store"
	"promptdeck/internal/subscription"
	"promptdeck/internal/taxonomy"
)

const (
	// leaseOwners caps how many actors' private partitions stay subscribed.
	leaseOwners = 1024
	// leaseIdle is how long an unread private partition stays subscribed.
	leaseIdle = 10 * time.Minute
	// pendingEntries caps the unconfirmed writes shown back to their authors.
	pendingEntries = 4096
	// initialSyncWait bounds how long startup waits for the public snapshot.
	initialSyncWait = 15 * time.Second
)

// backend is the remote store in use: the transport the subscriptions read
// from and the writer the gateway mutates.
type backend interface {
	remote.Transport
	remote.Writer
}

func main() {
	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured logger: JSON in production, text in development.
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"backend", cfg.RemoteBackend,
	)

	if err := run(cfg, logger); err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped gracefully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to Valkey (sessions, ad cache and change fan-out).
	valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword, cfg.ValkeyDB)
	if err != nil {
		return fmt.Errorf("connect valkey: %w", err)
	}
	defer valkeyClient.Close()

	var (
		remoteStore backend
		ads         feed.AdSource
		gwOpts      = []gateway.Option{gateway.WithLogger(logger)}
	)
	switch cfg.RemoteBackend {
	case config.BackendMemory:
		slog.Warn("using the in-memory remote store; the catalog is lost on restart")
		remoteStore = remote.NewMemory()
		ads = feed.NewInventory()
	default:
		db, err := database.Connect(cfg.DSN())
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()

		// Run pending migrations.
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}

		// Seed development data (no-op if data already exists).
		if cfg.IsDev() {
			if err := database.Seed(db); err != nil {
				return fmt.Errorf("seed database: %w", err)
			}
		}

		remoteStore = remote.NewPostgres(store.NewPromptStore(db), store.NewCategoryStore(db), valkeyClient)
		adCache := cache.NewAdCache(valkeyClient, store.NewAdStore(db), cfg.AdCacheTTL)
		// Migrations and seeding may have changed the inventory behind a
		// list cached by the previous process.
		adCache.Invalidate(ctx)
		ads = adCache
		gwOpts = append(gwOpts, gateway.WithAuditor(store.NewAuditLogStore(db)))
	}

	// Local replicas of the catalog, fed only by the subscription manager.
	repo := records.New()
	tax := taxonomy.New()
	manager := subscription.NewManager(remoteStore, repo, tax, subscription.Config{
		BaseDelay:     cfg.SyncBaseDelay,
		MaxDelay:      cfg.SyncMaxDelay,
		MaxRetries:    uint64(cfg.SyncMaxRetries),
		StallCooldown: cfg.SyncStallCooldown,
	}, logger)
	defer manager.Close()

	// The public partitions stay subscribed for the process lifetime.
	for _, res := range []models.Resource{models.ResourceCategories, models.ResourcePrompts} {
		h, err := manager.Subscribe(models.PublicPartition(res))
		if err != nil {
			return fmt.Errorf("subscribe public %s: %w", res, err)
		}
		defer h.Release()

		waitCtx, cancel := context.WithTimeout(ctx, initialSyncWait)
		err = h.WaitLive(waitCtx)
		cancel()
		if err != nil {
			// Keep serving; the manager goes on retrying in the background.
			slog.Warn("public partition not live yet", "path", h.Partition().Path(), "error", err)
		}
	}

	leases := subscription.NewLeases(manager, leaseOwners, leaseIdle)
	defer leases.Close()

	overlay := feed.NewOverlay(pendingEntries, cfg.PendingTTL)
	defer repo.Observe(overlay.Observe)()

	composer, err := feed.New(repo, overlay, feed.Config{
		PageSize:  cfg.FeedPageSize,
		CacheSize: cfg.FeedCacheSize,
	})
	if err != nil {
		return fmt.Errorf("create feed composer: %w", err)
	}

	gw := gateway.New(remoteStore, tax, gwOpts...)

	// In non-development environments, mark cookies as Secure (HTTPS-only).
	secureCookies := !cfg.IsDev()
	sessionStore := session.NewStore(valkeyClient, secureCookies)

	writeLimiter := middleware.NewRateLimiter(cfg.WriteRateLimit, time.Minute)

	catalog := handlers.NewCatalog(gw, repo, tax, composer, overlay, ads, leases)
	r := router.New(sessionStore, catalog, handlers.NewSync(manager), writeLimiter, secureCookies)

	// Create the HTTP server with sensible timeouts. Lease waits bound the
	// slowest read.
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
		<-gctx.Done()
		slog.Info("shutdown signal received")

		// Give active requests up to 30 seconds to complete.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
