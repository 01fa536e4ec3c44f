// Prism - Deterministic pricing for configurable print products.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/printcore/prism/internal/api"
	"github.com/printcore/prism/internal/bus"
	"github.com/printcore/prism/internal/cache"
	"github.com/printcore/prism/internal/domain"
	"github.com/printcore/prism/internal/quote"
	"github.com/printcore/prism/internal/repository"
	"github.com/printcore/prism/internal/rules"
	"github.com/printcore/prism/internal/snapshot"
	"github.com/printcore/prism/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("PRISM_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting prism",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for cluster profile via environment
	if os.Getenv("PRISM_PROFILE") == "cluster" {
		cfg = domain.ClusterConfig()
		slog.Info("running in cluster profile")
	}

	slog.Info("configuration loaded",
		"profile", cfg.Profile,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Rule Engine
	engine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	// Load rules from database (no hardcoded defaults - configure via API)
	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Initialize Snapshot Loader
	loader := snapshot.NewLoader(repo, cacheImpl, cfg.Cache.SnapshotTTL)
	slog.Info("snapshot loader initialized", "ttl", cfg.Cache.SnapshotTTL)

	// Initialize Quote Service
	service := quote.NewService(repo, engine, loader, busImpl, cfg.Pricing)
	slog.Info("quote service initialized",
		"decrease_policy", cfg.Pricing.DecreasePolicy,
		"default_currency", cfg.Pricing.DefaultCurrency,
	)

	// Initialize async Worker
	var asyncWorker *worker.Worker
	if cfg.Profile == domain.ProfileCluster || os.Getenv("PRISM_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, service)
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started")
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, loader, service, Version, cfg.Pricing.RateLimitPerMinute)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("prism is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("prism shutdown complete")
}

// loadRulesFromDatabase loads attribute rules from the database into the engine.
// All rules must be configured via POST /rules API - no hardcoded defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListRules(ctx)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               ◆ PRISM                     ║")
	fmt.Println("  ║    Pricing & Attribute Rule Engine        ║")
	fmt.Println("  ║    One configuration, one price.          ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Profile:  %s\n", cfg.Profile)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /price                             - Price a product configuration")
	fmt.Println("    GET  /quotes/{id}                       - Get a persisted quote")
	fmt.Println("    POST /rules/evaluate                    - Evaluate configurator rules")
	fmt.Println("    GET  /rules                             - List loaded rules")
	fmt.Println("    POST /rules                             - Create a rule")
	fmt.Println("    POST /rules/reload                      - Hot-reload rules from database")
	fmt.Println("    GET  /modifiers                         - List pricing modifiers")
	fmt.Println("    POST /modifiers                         - Create a pricing modifier")
	fmt.Println("    POST /products                          - Upsert a product")
	fmt.Println("    PUT  /products/{id}/attribute-prices    - Upsert attribute price table")
	fmt.Println("    GET  /health                            - Health check")
	fmt.Println()
}
