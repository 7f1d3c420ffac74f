package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/models"
)

const positionColumns = `id, contract_id, user_id, chain, nft_contract_address, nft_token_id,
	wallet_address, duration_months, status, staked_at, unlock_at, actual_unstaked_at,
	smart_contract_position_id, on_chain_verified, locking_hash, unlocking_hash,
	stake_tx_hash, stake_block_number, stake_gas_used, stake_confirmed,
	unstake_tx_hash, unstake_block_number,
	total_rewards_earned, last_reward_distribution,
	emergency_kind, emergency_admin, emergency_reason, emergency_recipient,
	emergency_tx_hash, emergency_at,
	created_at, updated_at`

// InsertPosition persists a new staking position. Returns ErrAlreadyStaked if
// an active position already exists for the same NFT identity (partial unique
// index on status = 'active').
func (d *DB) InsertPosition(p *models.StakingPosition) error {
	slog.Debug("inserting staking position",
		"id", p.ID,
		"chain", p.Chain,
		"nftContract", p.NFTContractAddress,
		"tokenId", p.NFTTokenID,
		"userId", p.UserID,
		"durationMonths", p.Duration.Months(),
	)

	var stakeTxHash interface{}
	var stakeBlock, stakeGas interface{}
	stakeConfirmed := false
	if p.StakingTransaction != nil {
		stakeTxHash = nullIfEmpty(p.StakingTransaction.TxHash)
		if p.StakingTransaction.BlockNumber != nil {
			stakeBlock = *p.StakingTransaction.BlockNumber
		}
		if p.StakingTransaction.GasUsed != nil {
			stakeGas = *p.StakingTransaction.GasUsed
		}
		stakeConfirmed = p.StakingTransaction.Confirmed
	}

	var smartID interface{}
	if p.SmartContractPositionID != nil {
		smartID = *p.SmartContractPositionID
	}

	_, err := d.conn.Exec(
		`INSERT INTO staking_positions (
			id, contract_id, user_id, chain, nft_contract_address, nft_token_id,
			wallet_address, duration_months, status, staked_at, unlock_at,
			smart_contract_position_id, on_chain_verified, locking_hash,
			stake_tx_hash, stake_block_number, stake_gas_used, stake_confirmed,
			total_rewards_earned, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.ContractID,
		p.UserID,
		string(p.Chain),
		p.NFTContractAddress,
		p.NFTTokenID,
		p.WalletAddress,
		p.Duration.Months(),
		string(p.Status),
		fmtTime(p.StakedAt),
		fmtTime(p.UnlockAt),
		smartID,
		p.OnChainVerified,
		nullIfEmpty(p.LockingHash),
		stakeTxHash,
		stakeBlock,
		stakeGas,
		stakeConfirmed,
		p.TotalRewardsEarned,
		fmtTime(p.CreatedAt),
		fmtTime(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s/%s on %s",
				config.ErrAlreadyStaked, p.NFTContractAddress, p.NFTTokenID, p.Chain)
		}
		return fmt.Errorf("insert staking position: %w", err)
	}

	slog.Info("staking position created",
		"id", p.ID,
		"chain", p.Chain,
		"nftContract", p.NFTContractAddress,
		"tokenId", p.NFTTokenID,
		"unlockAt", p.UnlockAt,
	)
	return nil
}

// GetPosition retrieves a position by ID. Returns ErrPositionNotFound if absent.
func (d *DB) GetPosition(id string) (*models.StakingPosition, error) {
	row := d.conn.QueryRow(
		`SELECT `+positionColumns+` FROM staking_positions WHERE id = ?`, id,
	)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", config.ErrPositionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get staking position %s: %w", id, err)
	}
	return p, nil
}

// GetActivePositionByNFT returns the active position for an NFT identity,
// or nil if none exists.
func (d *DB) GetActivePositionByNFT(chain models.Chain, nftContract, tokenID string) (*models.StakingPosition, error) {
	row := d.conn.QueryRow(
		`SELECT `+positionColumns+` FROM staking_positions
		 WHERE chain = ? AND nft_contract_address = ? AND nft_token_id = ? AND status = 'active'`,
		string(chain), nftContract, tokenID,
	)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active position %s/%s/%s: %w", chain, nftContract, tokenID, err)
	}
	return p, nil
}

// ListPositionsByStatus returns all positions with the given status.
func (d *DB) ListPositionsByStatus(status models.PositionStatus) ([]models.StakingPosition, error) {
	rows, err := d.conn.Query(
		`SELECT `+positionColumns+` FROM staking_positions
		 WHERE status = ? ORDER BY staked_at ASC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("list positions by status %s: %w", status, err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// ListUserPositions returns a user's positions, optionally filtered by status.
func (d *DB) ListUserPositions(userID string, status *models.PositionStatus) ([]models.StakingPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM staking_positions WHERE user_id = ?`
	args := []interface{}{userID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY staked_at DESC`

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list positions for user %s: %w", userID, err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// ListOnChainPositions returns positions carrying on-chain linkage, for
// reconciliation, optionally scoped to one chain.
func (d *DB) ListOnChainPositions(chain *models.Chain) ([]models.StakingPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM staking_positions
		WHERE smart_contract_position_id IS NOT NULL`
	var args []interface{}
	if chain != nil {
		query += ` AND chain = ?`
		args = append(args, string(*chain))
	}
	query += ` ORDER BY staked_at ASC`

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list on-chain positions: %w", err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// ListLegacyPositions returns active, database-only positions whose contract
// is active and validated, i.e. the migration candidates. A position with a
// locking hash already went through a gateway lock, in contract or custodial
// mode, and is never a candidate again. Positions referencing a missing
// contract are excluded by the join.
func (d *DB) ListLegacyPositions(chain *models.Chain) ([]models.StakingPosition, error) {
	query := `SELECT ` + prefixColumns("p", positionColumns) + `
		FROM staking_positions p
		JOIN staking_contracts c ON p.contract_id = c.id
		WHERE p.status = 'active'
		  AND p.locking_hash IS NULL
		  AND c.is_active = 1 AND c.is_validated = 1`
	var args []interface{}
	if chain != nil {
		query += ` AND p.chain = ?`
		args = append(args, string(*chain))
	}
	query += ` ORDER BY p.staked_at ASC`

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list legacy positions: %w", err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// MarkUnstaked transitions an active position to unstaked, recording the
// unstaking transaction. The WHERE status = 'active' clause makes the
// transition conditional: a position already terminal is left untouched and
// ErrPositionNotActive is returned.
func (d *DB) MarkUnstaked(id string, at time.Time, unlockingHash string, tx *models.ChainTransaction) error {
	var txHash, blockNumber interface{}
	if tx != nil {
		txHash = nullIfEmpty(tx.TxHash)
		if tx.BlockNumber != nil {
			blockNumber = *tx.BlockNumber
		}
	}

	res, err := d.conn.Exec(
		`UPDATE staking_positions SET
			status = 'unstaked', actual_unstaked_at = ?, unlocking_hash = ?,
			unstake_tx_hash = ?, unstake_block_number = ?, updated_at = ?
		 WHERE id = ? AND status = 'active'`,
		fmtTime(at), nullIfEmpty(unlockingHash), txHash, blockNumber, fmtTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("mark position %s unstaked: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", config.ErrPositionNotActive, id)
	}

	slog.Info("staking position unstaked", "id", id, "unstakedAt", at)
	return nil
}

// MarkEmergency transitions an active position to unstaked via the
// administrative override path, recording the full audit sub-record.
// kind is "unlock" or "withdraw".
func (d *DB) MarkEmergency(id, kind string, action models.EmergencyAction) error {
	res, err := d.conn.Exec(
		`UPDATE staking_positions SET
			status = 'unstaked', actual_unstaked_at = ?,
			emergency_kind = ?, emergency_admin = ?, emergency_reason = ?,
			emergency_recipient = ?, emergency_tx_hash = ?, emergency_at = ?,
			updated_at = ?
		 WHERE id = ? AND status = 'active'`,
		fmtTime(action.ActedAt),
		kind, action.Admin, action.Reason,
		nullIfEmpty(action.Recipient), nullIfEmpty(action.TxHash), fmtTime(action.ActedAt),
		fmtTime(action.ActedAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark position %s emergency %s: %w", id, kind, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", config.ErrPositionNotActive, id)
	}

	slog.Warn("staking position emergency action recorded",
		"id", id,
		"kind", kind,
		"admin", action.Admin,
		"reason", action.Reason,
	)
	return nil
}

// SetOnChainLinkage records the custody linkage returned by a successful
// migration lock. Custodial locks carry no chain position id and are not
// chain-verified; the stored row must say exactly what the lock result said.
// Only active positions may be linked.
func (d *DB) SetOnChainLinkage(id string, smartPositionID *int64, onChainVerified bool, lockingHash string, tx *models.ChainTransaction) error {
	var posID interface{}
	if smartPositionID != nil {
		posID = *smartPositionID
	}

	var txHash, blockNumber, gasUsed interface{}
	confirmed := false
	if tx != nil {
		txHash = nullIfEmpty(tx.TxHash)
		if tx.BlockNumber != nil {
			blockNumber = *tx.BlockNumber
		}
		if tx.GasUsed != nil {
			gasUsed = *tx.GasUsed
		}
		confirmed = tx.Confirmed
	}

	res, err := d.conn.Exec(
		`UPDATE staking_positions SET
			smart_contract_position_id = ?, on_chain_verified = ?, locking_hash = ?,
			stake_tx_hash = ?, stake_block_number = ?, stake_gas_used = ?, stake_confirmed = ?,
			updated_at = ?
		 WHERE id = ? AND status = 'active'`,
		posID, onChainVerified, nullIfEmpty(lockingHash),
		txHash, blockNumber, gasUsed, confirmed,
		fmtTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("set on-chain linkage for position %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", config.ErrPositionNotActive, id)
	}

	slog.Info("position custody linkage recorded",
		"id", id,
		"smartContractPositionId", posID,
		"onChainVerified", onChainVerified,
	)
	return nil
}

func collectPositions(rows *sql.Rows) ([]models.StakingPosition, error) {
	var positions []models.StakingPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan staking position row: %w", err)
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

func scanPosition(s scanner) (*models.StakingPosition, error) {
	var p models.StakingPosition
	var chain, status string
	var durationMonths int
	var stakedAt, unlockAt, createdAt, updatedAt string
	var actualUnstakedAt, lastReward sql.NullString
	var smartID, stakeBlock, stakeGas, unstakeBlock sql.NullInt64
	var lockingHash, unlockingHash, stakeTxHash, unstakeTxHash sql.NullString
	var stakeConfirmed bool
	var emKind, emAdmin, emReason, emRecipient, emTxHash, emAt sql.NullString

	err := s.Scan(
		&p.ID, &p.ContractID, &p.UserID, &chain, &p.NFTContractAddress, &p.NFTTokenID,
		&p.WalletAddress, &durationMonths, &status, &stakedAt, &unlockAt, &actualUnstakedAt,
		&smartID, &p.OnChainVerified, &lockingHash, &unlockingHash,
		&stakeTxHash, &stakeBlock, &stakeGas, &stakeConfirmed,
		&unstakeTxHash, &unstakeBlock,
		&p.TotalRewardsEarned, &lastReward,
		&emKind, &emAdmin, &emReason, &emRecipient, &emTxHash, &emAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Chain = models.Chain(chain)
	p.Duration = models.DurationTier(durationMonths)
	p.Status = models.PositionStatus(status)
	p.StakedAt = parseTime(stakedAt)
	p.UnlockAt = parseTime(unlockAt)
	p.ActualUnstakedAt = parseTimePtr(actualUnstakedAt)
	p.LastRewardDistribution = parseTimePtr(lastReward)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)

	if smartID.Valid {
		id := smartID.Int64
		p.SmartContractPositionID = &id
	}
	p.LockingHash = lockingHash.String
	p.UnlockingHash = unlockingHash.String

	if stakeTxHash.Valid || stakeBlock.Valid {
		tx := &models.ChainTransaction{TxHash: stakeTxHash.String, Confirmed: stakeConfirmed}
		if stakeBlock.Valid {
			bn := stakeBlock.Int64
			tx.BlockNumber = &bn
		}
		if stakeGas.Valid {
			g := stakeGas.Int64
			tx.GasUsed = &g
		}
		p.StakingTransaction = tx
	}
	if unstakeTxHash.Valid || unstakeBlock.Valid {
		tx := &models.ChainTransaction{TxHash: unstakeTxHash.String, Confirmed: true}
		if unstakeBlock.Valid {
			bn := unstakeBlock.Int64
			tx.BlockNumber = &bn
		}
		p.UnstakingTransaction = tx
	}

	if emKind.Valid {
		action := models.EmergencyAction{
			Admin:     emAdmin.String,
			Reason:    emReason.String,
			Recipient: emRecipient.String,
			TxHash:    emTxHash.String,
		}
		if at := parseTimePtr(emAt); at != nil {
			action.ActedAt = *at
		}
		switch emKind.String {
		case "withdraw":
			p.EmergencyWithdraw = &action
		default:
			p.EmergencyUnlock = &action
		}
	}

	return &p, nil
}

// prefixColumns qualifies each column in a comma-separated list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, col := range parts {
		parts[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(parts, ", ")
}
