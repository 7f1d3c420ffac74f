// The migrate binary converts legacy ledger-only positions to chain custody.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/custody"
	"github.com/Fantasim/nftstake/internal/db"
	"github.com/Fantasim/nftstake/internal/gateway"
	"github.com/Fantasim/nftstake/internal/logging"
	"github.com/Fantasim/nftstake/internal/migration"
	"github.com/Fantasim/nftstake/internal/models"
	"github.com/Fantasim/nftstake/internal/reconcile"
)

func main() {
	if err := run(); err != nil {
		slog.Error("migration error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	dryRun := flag.Bool("dry-run", false, "List candidates without locking or writing")
	batchSize := flag.Int("batch-size", 0, "Positions per batch (default: from config)")
	chainFlag := flag.String("chain", "", "Limit to one chain (ethereum, bsc, solana, bitcoin)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logCloser.Close()

	var chain *models.Chain
	if *chainFlag != "" {
		c := models.Chain(*chainFlag)
		if !c.Valid() {
			return fmt.Errorf("%w: %s", config.ErrInvalidChain, *chainFlag)
		}
		chain = &c
	}

	size := cfg.MigrationBatchSize
	if *batchSize > 0 {
		size = *batchSize
	}

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

	ctx := context.Background()

	setupCtx, setupCancel := context.WithTimeout(ctx, config.GatewayCallTimeout)
	gateways, err := gateway.Setup(setupCtx, cfg, keys)
	setupCancel()
	if err != nil {
		return fmt.Errorf("failed to setup chain gateways: %w", err)
	}

	reconciler := reconcile.New(database, gateways)
	orchestrator := migration.New(database, gateways, reconciler)

	report, err := orchestrator.Run(ctx, migration.Options{
		DryRun:    *dryRun,
		BatchSize: size,
		Chain:     chain,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to print report: %w", err)
	}
	return nil
}
