// The jobs binary runs the recurring background work: the monthly reward
// distribution check and the periodic chain reconciliation.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/custody"
	"github.com/Fantasim/nftstake/internal/db"
	"github.com/Fantasim/nftstake/internal/gateway"
	"github.com/Fantasim/nftstake/internal/logging"
	"github.com/Fantasim/nftstake/internal/reconcile"
	"github.com/Fantasim/nftstake/internal/rewards"
)

func main() {
	if err := run(); err != nil {
		slog.Error("jobs error", "error", err)
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

	slog.Info("jobs runner starting",
		"distributionInterval", config.DistributionInterval,
		"reconcileInterval", config.ReconcileInterval,
		"dbPath", cfg.DBPath,
	)

	database, err := db.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if err := database.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

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

	engine := rewards.NewEngine(database)
	reconciler := reconcile.New(database, gateways)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	distributeTicker := time.NewTicker(config.DistributionInterval)
	defer distributeTicker.Stop()
	reconcileTicker := time.NewTicker(config.ReconcileInterval)
	defer reconcileTicker.Stop()

	// Run both once at startup so a restart never skips a cycle.
	runDistribution(ctx, engine)
	runReconciliation(ctx, reconciler)

	for {
		select {
		case <-done:
			slog.Info("jobs runner stopping")
			return nil
		case <-distributeTicker.C:
			runDistribution(ctx, engine)
		case <-reconcileTicker.C:
			runReconciliation(ctx, reconciler)
		}
	}
}

func runDistribution(ctx context.Context, engine *rewards.Engine) {
	runCtx, cancel := context.WithTimeout(ctx, time.Hour)
	defer cancel()

	summary, err := engine.DistributeMonthly(runCtx)
	if err != nil {
		slog.Error("scheduled reward distribution failed", "error", err)
		return
	}
	slog.Info("scheduled reward distribution done",
		"processed", summary.TotalProcessed,
		"credited", summary.Credited,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
}

func runReconciliation(ctx context.Context, reconciler *reconcile.Reconciler) {
	runCtx, cancel := context.WithTimeout(ctx, time.Hour)
	defer cancel()

	report, err := reconciler.Run(runCtx, nil)
	if err != nil {
		slog.Error("scheduled reconciliation failed", "error", err)
		return
	}
	slog.Info("scheduled reconciliation done",
		"checked", report.Checked,
		"score", report.ConsistencyScore,
	)
}
