// Package migration converts legacy ledger-only positions to chain custody
// in controlled batches.
package migration

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/db"
	"github.com/Fantasim/nftstake/internal/gateway"
	"github.com/Fantasim/nftstake/internal/models"
	"github.com/Fantasim/nftstake/internal/position"
	"github.com/Fantasim/nftstake/internal/reconcile"
)

// ChainGateway is the slice of the gateway router the orchestrator needs.
type ChainGateway interface {
	VerifyOwnership(ctx context.Context, chain models.Chain, wallet, nftContract, tokenID string) (bool, error)
	Lock(ctx context.Context, chain models.Chain, wallet, nftContract, tokenID string, durationCode int) (*gateway.LockResult, error)
}

// Orchestrator migrates legacy positions batch by batch.
type Orchestrator struct {
	store      *db.DB
	gateways   ChainGateway
	reconciler *reconcile.Reconciler
	running    atomic.Bool
	sleep      func(ctx context.Context, d time.Duration) error
}

// New builds a migration orchestrator. The reconciler is optional; when set,
// every non-dry run finishes with a consistency check.
func New(store *db.DB, gateways ChainGateway, reconciler *reconcile.Reconciler) *Orchestrator {
	return &Orchestrator{
		store:      store,
		gateways:   gateways,
		reconciler: reconciler,
		sleep:      sleepCtx,
	}
}

// Options configures one migration run.
type Options struct {
	DryRun    bool
	BatchSize int
	Chain     *models.Chain
}

// Outcome is the result for one position.
type Outcome struct {
	PositionID string `json:"positionId"`
	Status     string `json:"status"` // migrated, skipped, failed, pending
	Detail     string `json:"detail,omitempty"`
	TxHash     string `json:"txHash,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
}

// Report summarizes one migration run.
type Report struct {
	StartedAt        time.Time         `json:"startedAt"`
	FinishedAt       time.Time         `json:"finishedAt"`
	DryRun           bool              `json:"dryRun"`
	Total            int               `json:"total"`
	Migrated         int               `json:"migrated"`
	Skipped          int               `json:"skipped"`
	Failed           int               `json:"failed"`
	Outcomes         []Outcome         `json:"outcomes"`
	ConsistencyScore *float64          `json:"consistencyScore,omitempty"`
	Reconciliation   *reconcile.Report `json:"reconciliation,omitempty"`
}

// Run migrates every eligible legacy position. Dry runs list the candidates
// and touch neither the chain nor the ledger.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Report, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, config.ErrMigrationRunning
	}
	defer o.running.Store(false)

	if opts.BatchSize <= 0 || opts.BatchSize > config.MigrationMaxBatchSize {
		return nil, fmt.Errorf("%w: batch size must be 1..%d", config.ErrInvalidConfig, config.MigrationMaxBatchSize)
	}
	if opts.Chain != nil && !opts.Chain.Valid() {
		return nil, fmt.Errorf("%w: %s", config.ErrInvalidChain, *opts.Chain)
	}

	candidates, err := o.store.ListLegacyPositions(opts.Chain)
	if err != nil {
		return nil, err
	}

	report := &Report{StartedAt: time.Now().UTC(), DryRun: opts.DryRun, Total: len(candidates)}
	slog.Info("migration run starting",
		"candidates", len(candidates),
		"batchSize", opts.BatchSize,
		"dryRun", opts.DryRun,
	)

	for start := 0; start < len(candidates); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		for i := start; i < end; i++ {
			if err := ctx.Err(); err != nil {
				report.FinishedAt = time.Now().UTC()
				return report, err
			}
			outcome := o.migrateOne(ctx, &candidates[i], opts.DryRun)
			report.Outcomes = append(report.Outcomes, outcome)
			switch outcome.Status {
			case "migrated", "pending":
				report.Migrated++
			case "skipped":
				report.Skipped++
			default:
				report.Failed++
			}
		}

		if end < len(candidates) {
			if err := o.sleep(ctx, config.MigrationBatchDelay); err != nil {
				report.FinishedAt = time.Now().UTC()
				return report, err
			}
		}
	}

	report.FinishedAt = time.Now().UTC()

	if !opts.DryRun && o.reconciler != nil {
		recReport, err := o.reconciler.Run(ctx, opts.Chain)
		if err != nil {
			slog.Error("post-migration reconciliation failed", "error", err)
		} else {
			report.Reconciliation = recReport
			report.ConsistencyScore = &recReport.ConsistencyScore
		}
	}

	slog.Info("migration run finished",
		"total", report.Total,
		"migrated", report.Migrated,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"dryRun", opts.DryRun,
	)
	return report, nil
}

// migrateOne re-verifies ownership, locks the NFT on chain with retries, and
// records the linkage.
func (o *Orchestrator) migrateOne(ctx context.Context, pos *models.StakingPosition, dryRun bool) Outcome {
	if pos.Status != models.StatusActive {
		return Outcome{PositionID: pos.ID, Status: "skipped", Detail: "position not active"}
	}

	owns, err := o.gateways.VerifyOwnership(ctx, pos.Chain, pos.WalletAddress, pos.NFTContractAddress, pos.NFTTokenID)
	if err != nil {
		return Outcome{PositionID: pos.ID, Status: "failed", Detail: "ownership check: " + err.Error()}
	}
	if !owns {
		slog.Warn("migration: ownership changed since staking, skipping",
			"positionId", pos.ID,
			"wallet", pos.WalletAddress,
			"tokenId", pos.NFTTokenID,
		)
		return Outcome{PositionID: pos.ID, Status: "skipped", Detail: "wallet no longer owns nft"}
	}

	if dryRun {
		return Outcome{PositionID: pos.ID, Status: "pending", Detail: "dry run"}
	}

	code := position.DurationCode(pos.Duration)

	var lock *gateway.LockResult
	var attempts int
	for attempts = 1; attempts <= config.MigrationMaxRetries; attempts++ {
		lock, err = o.gateways.Lock(ctx, pos.Chain, pos.WalletAddress, pos.NFTContractAddress, pos.NFTTokenID, code)
		if err == nil {
			break
		}
		if config.IsUnknownOutcome(err) {
			// The lock may have landed. Leave the position for the next run,
			// which re-checks linkage before retrying.
			slog.Error("migration: lock outcome unknown", "positionId", pos.ID, "error", err)
			return Outcome{PositionID: pos.ID, Status: "failed", Detail: "lock outcome unknown", Attempts: attempts}
		}
		if attempts < config.MigrationMaxRetries {
			slog.Warn("migration: lock failed, retrying",
				"positionId", pos.ID,
				"attempt", attempts,
				"error", err,
			)
			if serr := o.sleep(ctx, config.MigrationRetryDelay); serr != nil {
				return Outcome{PositionID: pos.ID, Status: "failed", Detail: serr.Error(), Attempts: attempts}
			}
		}
	}
	if err != nil {
		return Outcome{PositionID: pos.ID, Status: "failed", Detail: err.Error(), Attempts: config.MigrationMaxRetries}
	}

	var chainTx *models.ChainTransaction
	if lock.TxHash != "" {
		chainTx = &models.ChainTransaction{
			TxHash:      lock.TxHash,
			BlockNumber: lock.BlockNumber,
			GasUsed:     lock.GasUsed,
			Confirmed:   lock.OnChainVerified,
		}
	}
	// Custodial locks return no chain position id; the ledger must record
	// exactly what the lock result says, not a fabricated linkage.
	if err := o.store.SetOnChainLinkage(pos.ID, lock.PositionID, lock.OnChainVerified, lock.LockingHash, chainTx); err != nil {
		return Outcome{PositionID: pos.ID, Status: "failed", Detail: "record linkage: " + err.Error(), Attempts: attempts}
	}

	slog.Info("position migrated to chain custody",
		"positionId", pos.ID,
		"chain", pos.Chain,
		"chainPositionId", lock.PositionID,
		"onChainVerified", lock.OnChainVerified,
		"txHash", lock.TxHash,
	)
	return Outcome{PositionID: pos.ID, Status: "migrated", TxHash: lock.TxHash, Attempts: attempts}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
