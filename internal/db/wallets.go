package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/models"
)

// UpsertWallet registers a wallet address for a user on a chain. Setting
// isPrimary demotes any existing primary wallet for the same user and chain.
func (d *DB) UpsertWallet(w models.Wallet) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin wallet upsert: %w", err)
	}
	defer tx.Rollback()

	if w.IsPrimary {
		if _, err := tx.Exec(
			`UPDATE user_wallets SET is_primary = 0 WHERE user_id = ? AND chain = ?`,
			w.UserID, string(w.Chain),
		); err != nil {
			return fmt.Errorf("demote primary wallet for %s/%s: %w", w.UserID, w.Chain, err)
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO user_wallets (user_id, chain, address, is_primary, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, chain, address) DO UPDATE SET is_primary = excluded.is_primary`,
		w.UserID, string(w.Chain), w.Address, w.IsPrimary, fmtTime(time.Now()),
	); err != nil {
		return fmt.Errorf("upsert wallet %s/%s: %w", w.UserID, w.Address, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit wallet upsert: %w", err)
	}

	slog.Info("wallet registered",
		"userId", w.UserID,
		"chain", w.Chain,
		"address", w.Address,
		"isPrimary", w.IsPrimary,
	)
	return nil
}

// GetPrimaryWallet resolves the wallet a user stakes with on a chain: the
// primary wallet if one is marked, otherwise the oldest registered wallet.
// Returns ErrNoWallet if the user has none on this chain.
func (d *DB) GetPrimaryWallet(userID string, chain models.Chain) (*models.Wallet, error) {
	var w models.Wallet
	var chainStr, createdAt string

	err := d.conn.QueryRow(
		`SELECT user_id, chain, address, is_primary, created_at
		 FROM user_wallets WHERE user_id = ? AND chain = ?
		 ORDER BY is_primary DESC, created_at ASC LIMIT 1`,
		userID, string(chain),
	).Scan(&w.UserID, &chainStr, &w.Address, &w.IsPrimary, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s on %s", config.ErrNoWallet, userID, chain)
	}
	if err != nil {
		return nil, fmt.Errorf("get primary wallet for %s/%s: %w", userID, chain, err)
	}

	w.Chain = models.Chain(chainStr)
	w.CreatedAt = parseTime(createdAt)
	return &w, nil
}

// ListWallets returns every wallet a user has registered.
func (d *DB) ListWallets(userID string) ([]models.Wallet, error) {
	rows, err := d.conn.Query(
		`SELECT user_id, chain, address, is_primary, created_at
		 FROM user_wallets WHERE user_id = ? ORDER BY chain, created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list wallets for %s: %w", userID, err)
	}
	defer rows.Close()

	var wallets []models.Wallet
	for rows.Next() {
		var w models.Wallet
		var chainStr, createdAt string
		if err := rows.Scan(&w.UserID, &chainStr, &w.Address, &w.IsPrimary, &createdAt); err != nil {
			return nil, fmt.Errorf("scan wallet row: %w", err)
		}
		w.Chain = models.Chain(chainStr)
		w.CreatedAt = parseTime(createdAt)
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}
