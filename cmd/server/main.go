package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xtrntr/marketplace/internal/api"
	"github.com/xtrntr/marketplace/internal/auth"
	"github.com/xtrntr/marketplace/internal/config"
	"github.com/xtrntr/marketplace/internal/db"
	"github.com/xtrntr/marketplace/internal/logging"
	"github.com/xtrntr/marketplace/internal/marketplace"
	"github.com/xtrntr/marketplace/internal/metrics"
	"github.com/xtrntr/marketplace/internal/models"
)

// Payouts and their journal record commit in one transaction.
var _ marketplace.Settler = (*db.DB)(nil)

// Main entry point: loads config, rebuilds the ledger and serves the HTTP API
func main() {
	configPath := flag.String("config", "marketplace.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.Setup("marketplace", cfg.Environment, cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		users   auth.UserStore
		wallet  marketplace.Wallet
		journal marketplace.Journal
		history []models.Event
	)
	if cfg.DatabaseURL != "" {
		database, err := db.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer database.Close(context.Background())

		history, err = database.Events(ctx)
		if err != nil {
			return err
		}
		users, wallet, journal = database, database, database
	} else {
		logger.Warn("no database configured, state will not survive a restart")
		users, wallet = auth.NewMemoryUserStore(), marketplace.NewMemoryWallet()
	}

	m := metrics.New("marketplace")
	var engine *marketplace.Engine
	hub := api.NewHub(func() models.PlatformStats { return engine.Stats() }, cfg.AllowedOrigins, logger)

	engine, err := marketplace.NewEngine(marketplace.Config{
		Owner:          models.AccountID(cfg.PlatformOwner),
		CommissionRate: cfg.CommissionRate,
	}, wallet,
		marketplace.WithJournal(journal),
		marketplace.WithEmitter(m),
		marketplace.WithEmitter(hub),
		marketplace.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := engine.Replay(history); err != nil {
		return err
	}
	if err := engine.CheckSolvency(); err != nil {
		return err
	}
	logger.Info("ledger restored",
		slog.Int("events", len(history)),
		slog.Uint64("seq", engine.Seq()),
		slog.Duration("took", time.Since(start)))
	m.TrackLedger("marketplace", engine)

	authService := auth.NewAuthService(users, cfg.JWTSecret, cfg.TokenTTL)
	handler := api.NewHandler(engine, authService, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        m,
		Hub:            hub,
	})

	// Start periodic stats broadcast
	go hub.Run(ctx, cfg.StatsInterval)

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", cfg.ListenAddress))
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

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
