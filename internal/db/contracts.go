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

const contractColumns = `id, chain, contract_address, name, description, is_active,
	is_validated, validated_by, validated_at, validation_notes,
	six_month_tickets, six_month_multiplier,
	twelve_month_tickets, twelve_month_multiplier,
	thirty_six_month_tickets, thirty_six_month_multiplier,
	total_staked, created_at, updated_at`

// InsertContract inserts a new staking contract. Returns ErrDuplicateContract
// if a contract already exists for the same (chain, contract_address).
func (d *DB) InsertContract(c *models.StakingContract) error {
	slog.Debug("inserting staking contract",
		"id", c.ID,
		"chain", c.Chain,
		"contractAddress", c.ContractAddress,
		"name", c.Name,
	)

	_, err := d.conn.Exec(
		`INSERT INTO staking_contracts (
			id, chain, contract_address, name, description, is_active,
			is_validated, validated_by, validated_at, validation_notes,
			six_month_tickets, six_month_multiplier,
			twelve_month_tickets, twelve_month_multiplier,
			thirty_six_month_tickets, thirty_six_month_multiplier,
			total_staked, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		string(c.Chain),
		c.ContractAddress,
		c.Name,
		c.Description,
		c.IsActive,
		c.Validation.IsValidated,
		nullIfEmpty(c.Validation.ValidatedBy),
		fmtTimePtr(c.Validation.ValidatedAt),
		nullIfEmpty(c.Validation.Notes),
		c.Rewards.SixMonths.OpenEntryTicketsPerMonth,
		c.Rewards.SixMonths.BonusMultiplier,
		c.Rewards.TwelveMonths.OpenEntryTicketsPerMonth,
		c.Rewards.TwelveMonths.BonusMultiplier,
		c.Rewards.ThirtySixMonths.OpenEntryTicketsPerMonth,
		c.Rewards.ThirtySixMonths.BonusMultiplier,
		c.TotalStaked,
		fmtTime(c.CreatedAt),
		fmtTime(c.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s on %s", config.ErrDuplicateContract, c.ContractAddress, c.Chain)
		}
		return fmt.Errorf("insert staking contract: %w", err)
	}

	slog.Info("staking contract registered",
		"id", c.ID,
		"chain", c.Chain,
		"contractAddress", c.ContractAddress,
	)
	return nil
}

// GetContract retrieves a staking contract by ID.
// Returns ErrContractNotFound if no such contract exists.
func (d *DB) GetContract(id string) (*models.StakingContract, error) {
	row := d.conn.QueryRow(
		`SELECT `+contractColumns+` FROM staking_contracts WHERE id = ?`, id,
	)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", config.ErrContractNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get staking contract %s: %w", id, err)
	}
	return c, nil
}

// GetContractByAddress retrieves a staking contract by chain and address.
// Returns ErrContractNotFound if no such contract exists.
func (d *DB) GetContractByAddress(chain models.Chain, address string) (*models.StakingContract, error) {
	row := d.conn.QueryRow(
		`SELECT `+contractColumns+` FROM staking_contracts
		 WHERE chain = ? AND contract_address = ?`,
		string(chain), address,
	)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s on %s", config.ErrContractNotFound, address, chain)
	}
	if err != nil {
		return nil, fmt.Errorf("get staking contract %s/%s: %w", chain, address, err)
	}
	return c, nil
}

// ListContracts returns all staking contracts, optionally filtered by chain.
func (d *DB) ListContracts(chain *models.Chain) ([]models.StakingContract, error) {
	query := `SELECT ` + contractColumns + ` FROM staking_contracts`
	var args []interface{}
	if chain != nil {
		query += ` WHERE chain = ?`
		args = append(args, string(*chain))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list staking contracts: %w", err)
	}
	defer rows.Close()

	var contracts []models.StakingContract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("scan staking contract row: %w", err)
		}
		contracts = append(contracts, *c)
	}
	return contracts, rows.Err()
}

// UpdateContractMutable updates the mutable fields of a contract: name,
// description, is_active, and the reward schedule. Address and chain are
// immutable post-creation.
func (d *DB) UpdateContractMutable(id string, c *models.StakingContract) error {
	res, err := d.conn.Exec(
		`UPDATE staking_contracts SET
			name = ?, description = ?, is_active = ?,
			six_month_tickets = ?, six_month_multiplier = ?,
			twelve_month_tickets = ?, twelve_month_multiplier = ?,
			thirty_six_month_tickets = ?, thirty_six_month_multiplier = ?,
			updated_at = ?
		 WHERE id = ?`,
		c.Name,
		c.Description,
		c.IsActive,
		c.Rewards.SixMonths.OpenEntryTicketsPerMonth,
		c.Rewards.SixMonths.BonusMultiplier,
		c.Rewards.TwelveMonths.OpenEntryTicketsPerMonth,
		c.Rewards.TwelveMonths.BonusMultiplier,
		c.Rewards.ThirtySixMonths.OpenEntryTicketsPerMonth,
		c.Rewards.ThirtySixMonths.BonusMultiplier,
		fmtTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("update staking contract %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", config.ErrContractNotFound, id)
	}

	slog.Info("staking contract updated", "id", id, "name", c.Name, "isActive", c.IsActive)
	return nil
}

// MarkContractValidated flips the manual validation gate, recording who and when.
func (d *DB) MarkContractValidated(id, operator, notes string, at time.Time) error {
	res, err := d.conn.Exec(
		`UPDATE staking_contracts SET
			is_validated = 1, validated_by = ?, validated_at = ?, validation_notes = ?,
			updated_at = ?
		 WHERE id = ?`,
		operator, fmtTime(at), notes, fmtTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("validate staking contract %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", config.ErrContractNotFound, id)
	}

	slog.Info("staking contract validated", "id", id, "validatedBy", operator)
	return nil
}

// AdjustTotalStaked atomically adds delta to the contract's total_staked
// counter. Uses a relative update so concurrent stake/unstake operations
// cannot lose increments.
func (d *DB) AdjustTotalStaked(id string, delta int64) error {
	res, err := d.conn.Exec(
		`UPDATE staking_contracts
		 SET total_staked = total_staked + ?, updated_at = ?
		 WHERE id = ?`,
		delta, fmtTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("adjust total_staked for contract %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", config.ErrContractNotFound, id)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanContract(s scanner) (*models.StakingContract, error) {
	var c models.StakingContract
	var chain string
	var validatedBy, validatedAt, notes sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(
		&c.ID, &chain, &c.ContractAddress, &c.Name, &c.Description, &c.IsActive,
		&c.Validation.IsValidated, &validatedBy, &validatedAt, &notes,
		&c.Rewards.SixMonths.OpenEntryTicketsPerMonth, &c.Rewards.SixMonths.BonusMultiplier,
		&c.Rewards.TwelveMonths.OpenEntryTicketsPerMonth, &c.Rewards.TwelveMonths.BonusMultiplier,
		&c.Rewards.ThirtySixMonths.OpenEntryTicketsPerMonth, &c.Rewards.ThirtySixMonths.BonusMultiplier,
		&c.TotalStaked, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Chain = models.Chain(chain)
	c.Validation.ValidatedBy = validatedBy.String
	c.Validation.ValidatedAt = parseTimePtr(validatedAt)
	c.Validation.Notes = notes.String
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// isUniqueViolation reports whether err is a sqlite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
