package db

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Fantasim/nftstake/internal/models"
)

// CreditReward credits one distribution period's tickets to a position,
// exactly once. Two guards close the concurrent-run race:
//
//   - a compare-and-swap on last_reward_distribution: the update only applies
//     if the stored value still matches the value the caller read (prev);
//   - a unique (position_id, period_key) index on reward_history.
//
// Returns (true, nil) when the credit applied, (false, nil) when another run
// already credited this period.
func (d *DB) CreditReward(positionID, periodKey string, tickets int, multiplier float64, prev *time.Time, now time.Time) (bool, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return false, fmt.Errorf("begin reward credit for %s: %w", positionID, err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE staking_positions SET
			total_rewards_earned = total_rewards_earned + ?,
			last_reward_distribution = ?,
			updated_at = ?
		 WHERE id = ? AND status = 'active' AND last_reward_distribution IS ?`,
		tickets, fmtTime(now), fmtTime(now), positionID, fmtTimePtr(prev),
	)
	if err != nil {
		return false, fmt.Errorf("conditional reward update for %s: %w", positionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost the compare-and-swap: a concurrent run credited first,
		// or the position went terminal since it was read.
		slog.Debug("reward credit skipped, conditional update matched no row",
			"positionId", positionID,
			"periodKey", periodKey,
		)
		return false, nil
	}

	if _, err := tx.Exec(
		`INSERT INTO reward_history (position_id, period_key, open_entry_tickets, bonus_multiplier, distributed_at)
		 VALUES (?, ?, ?, ?, ?)`,
		positionID, periodKey, tickets, multiplier, fmtTime(now),
	); err != nil {
		if isUniqueViolation(err) {
			slog.Debug("reward credit skipped, period already recorded",
				"positionId", positionID,
				"periodKey", periodKey,
			)
			return false, nil
		}
		return false, fmt.Errorf("append reward history for %s: %w", positionID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit reward credit for %s: %w", positionID, err)
	}

	slog.Info("reward credited",
		"positionId", positionID,
		"periodKey", periodKey,
		"tickets", tickets,
		"multiplier", multiplier,
	)
	return true, nil
}

// ListRewardHistory returns the append-only reward log for a position,
// oldest first.
func (d *DB) ListRewardHistory(positionID string) ([]models.RewardEntry, error) {
	rows, err := d.conn.Query(
		`SELECT id, position_id, period_key, open_entry_tickets, bonus_multiplier, distributed_at
		 FROM reward_history WHERE position_id = ? ORDER BY id ASC`,
		positionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reward history for %s: %w", positionID, err)
	}
	defer rows.Close()

	var entries []models.RewardEntry
	for rows.Next() {
		var e models.RewardEntry
		var distributedAt string
		if err := rows.Scan(&e.ID, &e.PositionID, &e.PeriodKey, &e.OpenEntryTickets, &e.BonusMultiplier, &distributedAt); err != nil {
			return nil, fmt.Errorf("scan reward history row: %w", err)
		}
		e.DistributedAt = parseTime(distributedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumRewardTickets returns the total tickets ever credited to a position
// according to the history log. Used by consistency checks against
// total_rewards_earned.
func (d *DB) SumRewardTickets(positionID string) (int64, error) {
	var total int64
	err := d.conn.QueryRow(
		`SELECT COALESCE(SUM(open_entry_tickets), 0) FROM reward_history WHERE position_id = ?`,
		positionID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum reward tickets for %s: %w", positionID, err)
	}
	return total, nil
}
