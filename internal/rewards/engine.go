// Package rewards credits open entry tickets to active staking positions on
// a monthly cycle and answers reward projection queries.
package rewards

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/db"
	"github.com/Fantasim/nftstake/internal/models"
)

// Engine runs reward distribution over the ledger store.
type Engine struct {
	store   *db.DB
	running atomic.Bool
	now     func() time.Time
}

// NewEngine builds a reward engine.
func NewEngine(store *db.DB) *Engine {
	return &Engine{store: store, now: time.Now}
}

// Result records the outcome for one position in a distribution run.
type Result struct {
	PositionID string `json:"positionId"`
	PeriodKey  string `json:"periodKey,omitempty"`
	Tickets    int    `json:"tickets,omitempty"`
	Credited   bool   `json:"credited"`
	Skipped    string `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Summary aggregates one distribution run.
type Summary struct {
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
	TotalProcessed int       `json:"totalProcessed"`
	Credited       int       `json:"credited"`
	Skipped        int       `json:"skipped"`
	Failed         int       `json:"failed"`
	Results        []Result  `json:"results"`
}

// TicketsPerPeriod is the single crediting formula shared by distribution,
// pending-reward queries, and projections.
func TicketsPerPeriod(r models.RewardStructure) int {
	return r.OpenEntryTicketsPerMonth
}

// eligible reports whether a full distribution period has elapsed since the
// position's last credit, or since staking for a first credit.
func eligible(p *models.StakingPosition, now time.Time) bool {
	anchor := p.StakedAt
	if p.LastRewardDistribution != nil {
		anchor = *p.LastRewardDistribution
	}
	return now.Sub(anchor) >= config.DistributionPeriod
}

// DistributeMonthly credits every eligible active position for the current
// period. One position failing never stops the run; re-running the same
// period is a no-op for already-credited positions.
func (e *Engine) DistributeMonthly(ctx context.Context) (*Summary, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, config.ErrDistributionRunning
	}
	defer e.running.Store(false)

	now := e.now().UTC()
	periodKey := now.Format(config.PeriodKeyLayout)
	summary := &Summary{StartedAt: now}

	positions, err := e.store.ListPositionsByStatus(models.StatusActive)
	if err != nil {
		return nil, err
	}

	contracts := make(map[string]*models.StakingContract)

	for i := range positions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pos := &positions[i]
		summary.TotalProcessed++

		if !eligible(pos, now) {
			summary.Skipped++
			summary.Results = append(summary.Results, Result{PositionID: pos.ID, Skipped: "period not elapsed"})
			continue
		}

		contract, ok := contracts[pos.ContractID]
		if !ok {
			contract, err = e.store.GetContract(pos.ContractID)
			if err != nil {
				summary.Failed++
				summary.Results = append(summary.Results, Result{PositionID: pos.ID, Error: err.Error()})
				slog.Error("reward distribution: contract lookup failed",
					"positionId", pos.ID,
					"contractId", pos.ContractID,
					"error", err,
				)
				continue
			}
			contracts[pos.ContractID] = contract
		}

		structure := contract.Rewards.ForDuration(pos.Duration)
		tickets := TicketsPerPeriod(structure)

		credited, err := e.store.CreditReward(pos.ID, periodKey, tickets, structure.BonusMultiplier, pos.LastRewardDistribution, now)
		if err != nil {
			summary.Failed++
			summary.Results = append(summary.Results, Result{PositionID: pos.ID, PeriodKey: periodKey, Error: err.Error()})
			slog.Error("reward distribution: credit failed", "positionId", pos.ID, "period", periodKey, "error", err)
			continue
		}
		if !credited {
			summary.Skipped++
			summary.Results = append(summary.Results, Result{PositionID: pos.ID, PeriodKey: periodKey, Skipped: "already credited"})
			continue
		}

		summary.Credited++
		summary.Results = append(summary.Results, Result{
			PositionID: pos.ID,
			PeriodKey:  periodKey,
			Tickets:    tickets,
			Credited:   true,
		})
	}

	summary.FinishedAt = e.now().UTC()
	slog.Info("reward distribution completed",
		"period", periodKey,
		"processed", summary.TotalProcessed,
		"credited", summary.Credited,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, nil
}

// Pending describes a position's accrued and upcoming rewards.
type Pending struct {
	PositionID     string               `json:"positionId"`
	TotalEarned    int64                `json:"totalRewardsEarned"`
	NextTickets    int                  `json:"nextTickets"`
	NextEligibleAt time.Time            `json:"nextEligibleAt"`
	EligibleNow    bool                 `json:"eligibleNow"`
	History        []models.RewardEntry `json:"history"`
}

// CalculatePending reports what a position has earned and when the next
// credit becomes due.
func (e *Engine) CalculatePending(positionID string) (*Pending, error) {
	pos, err := e.store.GetPosition(positionID)
	if err != nil {
		return nil, err
	}
	contract, err := e.store.GetContract(pos.ContractID)
	if err != nil {
		return nil, err
	}
	history, err := e.store.ListRewardHistory(positionID)
	if err != nil {
		return nil, err
	}

	anchor := pos.StakedAt
	if pos.LastRewardDistribution != nil {
		anchor = *pos.LastRewardDistribution
	}
	now := e.now().UTC()

	return &Pending{
		PositionID:     positionID,
		TotalEarned:    pos.TotalRewardsEarned,
		NextTickets:    TicketsPerPeriod(contract.Rewards.ForDuration(pos.Duration)),
		NextEligibleAt: anchor.Add(config.DistributionPeriod),
		EligibleNow:    pos.Status == models.StatusActive && eligible(pos, now),
		History:        history,
	}, nil
}

// Projection is the expected reward yield for staking nftCount NFTs on one
// contract for one duration tier.
type Projection struct {
	Duration       models.DurationTier `json:"stakingDuration"`
	NFTCount       int                 `json:"nftCount"`
	MonthlyTickets int                 `json:"monthlyTickets"`
	TotalTickets   int                 `json:"totalTickets"`
	Multiplier     float64             `json:"bonusMultiplier"`
	EffectiveValue float64             `json:"effectiveValue"`
}

// Project computes the projected rewards using the same per-period formula
// the distribution run credits with.
func Project(contract *models.StakingContract, duration models.DurationTier, nftCount int) Projection {
	structure := contract.Rewards.ForDuration(duration)
	monthly := TicketsPerPeriod(structure)
	total := monthly * duration.Months() * nftCount

	return Projection{
		Duration:       duration,
		NFTCount:       nftCount,
		MonthlyTickets: monthly,
		TotalTickets:   total,
		Multiplier:     structure.BonusMultiplier,
		EffectiveValue: float64(total) * structure.BonusMultiplier,
	}
}
