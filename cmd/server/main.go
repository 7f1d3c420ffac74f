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

	"github.com/Fantasim/nftstake/internal/api"
	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/custody"
	"github.com/Fantasim/nftstake/internal/db"
	"github.com/Fantasim/nftstake/internal/gateway"
	"github.com/Fantasim/nftstake/internal/logging"
	"github.com/Fantasim/nftstake/internal/migration"
	"github.com/Fantasim/nftstake/internal/position"
	"github.com/Fantasim/nftstake/internal/reconcile"
	"github.com/Fantasim/nftstake/internal/registry"
	"github.com/Fantasim/nftstake/internal/rewards"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logCloser.Close()

	slog.Info("starting nftstake",
		"version", version,
		"port", cfg.Port,
		"dbPath", cfg.DBPath,
		"logLevel", cfg.LogLevel,
	)

	database, err := db.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if err := database.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("database ready", "path", cfg.DBPath)

	keys, err := custody.NewKeyServiceFromFile(cfg.MnemonicFile)
	if err != nil {
		return fmt.Errorf("failed to load custody key: %w", err)
	}

	setupCtx, setupCancel := context.WithTimeout(context.Background(), config.GatewayCallTimeout)
	gateways, err := gateway.Setup(setupCtx, cfg, keys)
	setupCancel()
	if err != nil {
		return fmt.Errorf("failed to setup chain gateways: %w", err)
	}

	reg := registry.New(database)
	manager := position.NewManager(database, reg, gateways, keys.AdminAddress())
	engine := rewards.NewEngine(database)
	reconciler := reconcile.New(database, gateways)
	migrator := migration.New(database, gateways, reconciler)

	router := api.NewRouter(api.Services{
		DB:         database,
		Gateways:   gateways,
		Registry:   reg,
		Positions:  manager,
		Rewards:    engine,
		Reconciler: reconciler,
		Migrator:   migrator,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("initiating graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
