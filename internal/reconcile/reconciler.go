// Package reconcile compares the ledger's view of on-chain positions against
// the chains themselves and scores their consistency. It never mutates state.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/db"
	"github.com/Fantasim/nftstake/internal/gateway"
	"github.com/Fantasim/nftstake/internal/models"
)

// PositionReader is the slice of the gateway router the reconciler needs.
type PositionReader interface {
	GetPosition(ctx context.Context, chain models.Chain, positionID int64) (*gateway.ChainPosition, error)
}

// Reconciler runs read-only consistency checks.
type Reconciler struct {
	store    *db.DB
	gateways PositionReader
}

// New builds a reconciler.
func New(store *db.DB, gateways PositionReader) *Reconciler {
	return &Reconciler{store: store, gateways: gateways}
}

// Divergence describes one mismatch between ledger and chain.
type Divergence struct {
	PositionID      string `json:"positionId"`
	ChainPositionID int64  `json:"chainPositionId"`
	Field           string `json:"field"`
	Ledger          string `json:"ledger"`
	Chain           string `json:"chain"`
}

// Report is the outcome of one reconciliation run.
type Report struct {
	RanAt            time.Time    `json:"ranAt"`
	Chain            string       `json:"chain,omitempty"`
	Checked          int          `json:"checked"`
	Consistent       int          `json:"consistent"`
	Divergent        int          `json:"divergent"`
	Unverifiable     int          `json:"unverifiable"`
	ConsistencyScore float64      `json:"consistencyScore"`
	Divergences      []Divergence `json:"divergences,omitempty"`
}

// Run checks every position with on-chain linkage, optionally limited to one
// chain. Gateway or store failures make a position unverifiable, never
// divergent: only a confirmed mismatch counts against the score.
func (r *Reconciler) Run(ctx context.Context, chain *models.Chain) (*Report, error) {
	if chain != nil && !chain.Valid() {
		return nil, fmt.Errorf("%w: %s", config.ErrInvalidChain, *chain)
	}

	positions, err := r.store.ListOnChainPositions(chain)
	if err != nil {
		return nil, err
	}

	report := &Report{RanAt: time.Now().UTC()}
	if chain != nil {
		report.Chain = string(*chain)
	}

	for i := range positions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pos := &positions[i]
		report.Checked++

		chainPos, err := r.gateways.GetPosition(ctx, pos.Chain, *pos.SmartContractPositionID)
		if err != nil {
			report.Unverifiable++
			slog.Warn("reconcile: position unverifiable",
				"positionId", pos.ID,
				"chain", pos.Chain,
				"chainPositionId", *pos.SmartContractPositionID,
				"error", err,
			)
			continue
		}

		divs := comparePosition(pos, chainPos)
		if len(divs) == 0 {
			report.Consistent++
			continue
		}
		report.Divergent++
		report.Divergences = append(report.Divergences, divs...)
	}

	verified := report.Consistent + report.Divergent
	if verified > 0 {
		report.ConsistencyScore = float64(report.Consistent) / float64(verified) * 100
	} else {
		report.ConsistencyScore = 100
	}

	attrs := []any{
		"checked", report.Checked,
		"consistent", report.Consistent,
		"divergent", report.Divergent,
		"unverifiable", report.Unverifiable,
		"score", report.ConsistencyScore,
	}
	if report.ConsistencyScore < config.ReconcileAlertThreshold {
		slog.Error("reconciliation score below alert threshold", attrs...)
	} else {
		slog.Info("reconciliation completed", attrs...)
	}
	return report, nil
}

// comparePosition diffs the fields both sides record.
func comparePosition(pos *models.StakingPosition, chainPos *gateway.ChainPosition) []Divergence {
	var divs []Divergence
	add := func(field, ledger, chain string) {
		divs = append(divs, Divergence{
			PositionID:      pos.ID,
			ChainPositionID: *pos.SmartContractPositionID,
			Field:           field,
			Ledger:          ledger,
			Chain:           chain,
		})
	}

	ledgerActive := pos.Status == models.StatusActive
	if ledgerActive != chainPos.Active {
		add("active", string(pos.Status), fmt.Sprintf("%t", chainPos.Active))
	}
	if !strings.EqualFold(pos.WalletAddress, chainPos.Owner) {
		add("owner", pos.WalletAddress, chainPos.Owner)
	}
	if !strings.EqualFold(pos.NFTContractAddress, chainPos.NFTContract) {
		add("nftContract", pos.NFTContractAddress, chainPos.NFTContract)
	}
	if pos.NFTTokenID != chainPos.TokenID {
		add("tokenId", pos.NFTTokenID, chainPos.TokenID)
	}
	return divs
}
