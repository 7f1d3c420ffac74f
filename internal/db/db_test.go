package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Fantasim/nftstake/internal/models"
)

// setupTestDB creates a temporary database with migrations applied.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.sqlite")

	d, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := d.RunMigrations(); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	t.Cleanup(func() { d.Close() })
	return d
}

// testContract creates a validated, active ethereum contract fixture.
func testContract() *models.StakingContract {
	now := time.Now().UTC().Truncate(time.Second)
	validatedAt := now
	return &models.StakingContract{
		ID:              uuid.NewString(),
		Chain:           models.ChainEthereum,
		ContractAddress: "0x1111111111111111111111111111111111111111",
		Name:            "Test Collection",
		IsActive:        true,
		Validation: models.ContractValidation{
			IsValidated: true,
			ValidatedBy: "ops",
			ValidatedAt: &validatedAt,
		},
		Rewards: models.RewardSchedule{
			SixMonths:       models.RewardStructure{OpenEntryTicketsPerMonth: 5, BonusMultiplier: 1.1},
			TwelveMonths:    models.RewardStructure{OpenEntryTicketsPerMonth: 12, BonusMultiplier: 1.25},
			ThirtySixMonths: models.RewardStructure{OpenEntryTicketsPerMonth: 30, BonusMultiplier: 1.5},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// testPosition creates an active position fixture bound to contract.
func testPosition(contract *models.StakingContract, tokenID string) *models.StakingPosition {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.StakingPosition{
		ID:                 uuid.NewString(),
		ContractID:         contract.ID,
		UserID:             "user-1",
		Chain:              contract.Chain,
		NFTContractAddress: contract.ContractAddress,
		NFTTokenID:         tokenID,
		WalletAddress:      "0x2222222222222222222222222222222222222222",
		Duration:           models.DurationTwelveMonths,
		Status:             models.StatusActive,
		StakedAt:           now,
		UnlockAt:           now.AddDate(0, 12, 0),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// seedPosition inserts contract and one of its positions.
func seedPosition(t *testing.T, d *DB, tokenID string) (*models.StakingContract, *models.StakingPosition) {
	t.Helper()
	contract := testContract()
	if err := d.InsertContract(contract); err != nil {
		t.Fatalf("InsertContract() error = %v", err)
	}
	pos := testPosition(contract, tokenID)
	if err := d.InsertPosition(pos); err != nil {
		t.Fatalf("InsertPosition() error = %v", err)
	}
	return contract, pos
}
