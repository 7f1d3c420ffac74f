package position

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/db"
	"github.com/Fantasim/nftstake/internal/gateway"
	"github.com/Fantasim/nftstake/internal/models"
	"github.com/Fantasim/nftstake/internal/registry"
)

// fakeGateway is an in-memory ChainGateway for manager tests.
type fakeGateway struct {
	owns        bool
	ownsErr     error
	lockErr     error
	unlockErr   error
	lockCalls   int
	unlockCalls int
	adminCalls  int
	positionID  int64
}

func (f *fakeGateway) VerifyOwnership(ctx context.Context, chain models.Chain, wallet, nftContract, tokenID string) (bool, error) {
	return f.owns, f.ownsErr
}

func (f *fakeGateway) Lock(ctx context.Context, chain models.Chain, wallet, nftContract, tokenID string, durationCode int) (*gateway.LockResult, error) {
	f.lockCalls++
	if f.lockErr != nil {
		return nil, f.lockErr
	}
	id := f.positionID
	return &gateway.LockResult{
		Success:         true,
		TxHash:          "0xstake",
		LockingHash:     "0xstake",
		PositionID:      &id,
		OnChainVerified: true,
	}, nil
}

func (f *fakeGateway) Unlock(ctx context.Context, chain models.Chain, wallet, nftContract, tokenID, lockingHash string, positionID *int64) (*gateway.UnlockResult, error) {
	f.unlockCalls++
	if f.unlockErr != nil {
		return nil, f.unlockErr
	}
	return &gateway.UnlockResult{Success: true, TxHash: "0xunstake", UnlockingHash: "0xunstake"}, nil
}

func (f *fakeGateway) AdminUnlock(ctx context.Context, chain models.Chain, positionID int64, reason, adminWallet string) (*gateway.AdminResult, error) {
	f.adminCalls++
	return &gateway.AdminResult{Success: true, TxHash: "0xadmin"}, nil
}

func (f *fakeGateway) AdminEmergencyWithdraw(ctx context.Context, chain models.Chain, positionID int64, recipient, reason, adminWallet string) (*gateway.AdminResult, error) {
	f.adminCalls++
	return &gateway.AdminResult{Success: true, TxHash: "0xadmin"}, nil
}

func (f *fakeGateway) PauseContract(ctx context.Context, chain models.Chain, adminWallet string) (*gateway.AdminResult, error) {
	return &gateway.AdminResult{Success: true}, nil
}

func (f *fakeGateway) UnpauseContract(ctx context.Context, chain models.Chain, adminWallet string) (*gateway.AdminResult, error) {
	return &gateway.AdminResult{Success: true}, nil
}

type fixture struct {
	db       *db.DB
	manager  *Manager
	gateway  *fakeGateway
	contract *models.StakingContract
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	d, err := db.New(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	if err := d.RunMigrations(); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	t.Cleanup(func() { d.Close() })

	reg := registry.New(d)
	contract, err := reg.Create(registry.CreateInput{
		Chain:           models.ChainEthereum,
		ContractAddress: "0x1111111111111111111111111111111111111111",
		Name:            "Test Collection",
	})
	if err != nil {
		t.Fatalf("Create contract error = %v", err)
	}
	if _, err := reg.Validate(contract.ID, "ops", ""); err != nil {
		t.Fatalf("Validate contract error = %v", err)
	}

	if err := d.UpsertWallet(models.Wallet{
		UserID:    "user-1",
		Chain:     models.ChainEthereum,
		Address:   "0x2222222222222222222222222222222222222222",
		IsPrimary: true,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("UpsertWallet() error = %v", err)
	}

	gw := &fakeGateway{owns: true, positionID: 7}
	mgr := NewManager(d, reg, gw, "0xadmin")
	return &fixture{db: d, manager: mgr, gateway: gw, contract: contract}
}

func (f *fixture) stake(t *testing.T) *models.StakingPosition {
	t.Helper()
	pos, err := f.manager.Stake(context.Background(), StakeInput{
		UserID:     "user-1",
		ContractID: f.contract.ID,
		NFTTokenID: "42",
		Duration:   12,
	})
	if err != nil {
		t.Fatalf("Stake() error = %v", err)
	}
	return pos
}

func TestStake_Succeeds(t *testing.T) {
	f := setupFixture(t)
	pos := f.stake(t)

	if pos.Status != models.StatusActive {
		t.Errorf("status = %s, want active", pos.Status)
	}
	if !pos.OnChain() {
		t.Error("position not linked on-chain")
	}
	if pos.SmartContractPositionID == nil || *pos.SmartContractPositionID != 7 {
		t.Errorf("smartContractPositionId = %v, want 7", pos.SmartContractPositionID)
	}
	if !pos.UnlockAt.Equal(pos.StakedAt.AddDate(0, 12, 0)) {
		t.Errorf("unlockAt = %v, want stakedAt + 12 months", pos.UnlockAt)
	}

	contract, err := f.db.GetContract(f.contract.ID)
	if err != nil {
		t.Fatalf("GetContract() error = %v", err)
	}
	if contract.TotalStaked != 1 {
		t.Errorf("totalStaked = %d, want 1", contract.TotalStaked)
	}
}

func TestStake_InvalidDuration(t *testing.T) {
	f := setupFixture(t)

	_, err := f.manager.Stake(context.Background(), StakeInput{
		UserID:     "user-1",
		ContractID: f.contract.ID,
		NFTTokenID: "42",
		Duration:   9,
	})
	if !errors.Is(err, config.ErrInvalidDuration) {
		t.Fatalf("Stake() error = %v, want ErrInvalidDuration", err)
	}
	if f.gateway.lockCalls != 0 {
		t.Errorf("gateway locked despite invalid duration")
	}
}

func TestStake_NotOwner(t *testing.T) {
	f := setupFixture(t)
	f.gateway.owns = false

	_, err := f.manager.Stake(context.Background(), StakeInput{
		UserID:     "user-1",
		ContractID: f.contract.ID,
		NFTTokenID: "42",
		Duration:   12,
	})
	if !errors.Is(err, config.ErrNotOwner) {
		t.Fatalf("Stake() error = %v, want ErrNotOwner", err)
	}
	if f.gateway.lockCalls != 0 {
		t.Errorf("gateway locked despite failed ownership check")
	}
}

func TestStake_AlreadyStaked(t *testing.T) {
	f := setupFixture(t)
	f.stake(t)

	_, err := f.manager.Stake(context.Background(), StakeInput{
		UserID:     "user-1",
		ContractID: f.contract.ID,
		NFTTokenID: "42",
		Duration:   12,
	})
	if !errors.Is(err, config.ErrAlreadyStaked) {
		t.Fatalf("Stake() error = %v, want ErrAlreadyStaked", err)
	}
}

func TestStake_NoWallet(t *testing.T) {
	f := setupFixture(t)

	_, err := f.manager.Stake(context.Background(), StakeInput{
		UserID:     "user-without-wallet",
		ContractID: f.contract.ID,
		NFTTokenID: "42",
		Duration:   12,
	})
	if !errors.Is(err, config.ErrNoWallet) {
		t.Fatalf("Stake() error = %v, want ErrNoWallet", err)
	}
}

func TestStake_LockFailureLeavesNoPosition(t *testing.T) {
	f := setupFixture(t)
	f.gateway.lockErr = errors.New("rpc exploded")

	_, err := f.manager.Stake(context.Background(), StakeInput{
		UserID:     "user-1",
		ContractID: f.contract.ID,
		NFTTokenID: "42",
		Duration:   12,
	})
	if err == nil {
		t.Fatal("Stake() succeeded despite lock failure")
	}

	existing, err := f.db.GetActivePositionByNFT(models.ChainEthereum, f.contract.ContractAddress, "42")
	if err != nil {
		t.Fatalf("GetActivePositionByNFT() error = %v", err)
	}
	if existing != nil {
		t.Errorf("position persisted despite lock failure: %+v", existing)
	}
}

func TestUnstake_TooEarly(t *testing.T) {
	f := setupFixture(t)
	pos := f.stake(t)

	_, err := f.manager.Unstake(context.Background(), pos.ID, "user-1")
	if !errors.Is(err, config.ErrTooEarly) {
		t.Fatalf("Unstake() error = %v, want ErrTooEarly", err)
	}
	if f.gateway.unlockCalls != 0 {
		t.Errorf("gateway unlocked despite term not complete")
	}
}

func TestUnstake_AfterTerm(t *testing.T) {
	f := setupFixture(t)
	pos := f.stake(t)

	// Advance the manager clock past the unlock date.
	f.manager.now = func() time.Time { return pos.UnlockAt.Add(time.Hour) }

	got, err := f.manager.Unstake(context.Background(), pos.ID, "user-1")
	if err != nil {
		t.Fatalf("Unstake() error = %v", err)
	}
	if got.Status != models.StatusUnstaked {
		t.Errorf("status = %s, want unstaked", got.Status)
	}
	if got.UnlockingHash != "0xunstake" {
		t.Errorf("unlockingHash = %q", got.UnlockingHash)
	}

	contract, err := f.db.GetContract(f.contract.ID)
	if err != nil {
		t.Fatalf("GetContract() error = %v", err)
	}
	if contract.TotalStaked != 0 {
		t.Errorf("totalStaked = %d, want 0 after unstake", contract.TotalStaked)
	}

	// Same NFT can be staked again once terminal.
	if _, err := f.manager.Stake(context.Background(), StakeInput{
		UserID:     "user-1",
		ContractID: f.contract.ID,
		NFTTokenID: "42",
		Duration:   6,
	}); err != nil {
		t.Fatalf("restake after unstake error = %v", err)
	}
}

func TestUnstake_LegacyPositionNeedsNoGateway(t *testing.T) {
	f := setupFixture(t)

	// Database-only position: no locking hash, no chain position id.
	now := time.Now().UTC().Truncate(time.Second)
	legacy := &models.StakingPosition{
		ID:                 "legacy-1",
		ContractID:         f.contract.ID,
		UserID:             "user-1",
		Chain:              f.contract.Chain,
		NFTContractAddress: f.contract.ContractAddress,
		NFTTokenID:         "42",
		WalletAddress:      "0x2222222222222222222222222222222222222222",
		Duration:           models.DurationTwelveMonths,
		Status:             models.StatusActive,
		StakedAt:           now.AddDate(-1, -1, 0),
		UnlockAt:           now.AddDate(0, -1, 0),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := f.db.InsertPosition(legacy); err != nil {
		t.Fatalf("InsertPosition() error = %v", err)
	}

	got, err := f.manager.Unstake(context.Background(), legacy.ID, "user-1")
	if err != nil {
		t.Fatalf("Unstake() error = %v", err)
	}
	if got.Status != models.StatusUnstaked {
		t.Errorf("status = %s, want unstaked", got.Status)
	}
	if got.ActualUnstakedAt == nil {
		t.Error("actualUnstakedAt not set")
	}
	if f.gateway.unlockCalls != 0 {
		t.Errorf("unlock calls = %d, want 0 for a database-only position", f.gateway.unlockCalls)
	}
}

func TestUnstake_WrongUser(t *testing.T) {
	f := setupFixture(t)
	pos := f.stake(t)

	_, err := f.manager.Unstake(context.Background(), pos.ID, "someone-else")
	if !errors.Is(err, config.ErrNotOwner) {
		t.Fatalf("Unstake() error = %v, want ErrNotOwner", err)
	}
}

func TestAdminUnlock_ReasonTooShort(t *testing.T) {
	f := setupFixture(t)
	pos := f.stake(t)

	_, err := f.manager.AdminUnlock(context.Background(), pos.ID, "ops", "short")
	if !errors.Is(err, config.ErrReasonTooShort) {
		t.Fatalf("AdminUnlock() error = %v, want ErrReasonTooShort", err)
	}
	if f.gateway.adminCalls != 0 {
		t.Errorf("gateway called despite short reason")
	}
}

func TestAdminUnlock_BeforeTerm(t *testing.T) {
	f := setupFixture(t)
	pos := f.stake(t)

	got, err := f.manager.AdminUnlock(context.Background(), pos.ID, "ops", "support ticket 4812")
	if err != nil {
		t.Fatalf("AdminUnlock() error = %v", err)
	}
	if got.Status != models.StatusUnstaked {
		t.Errorf("status = %s, want unstaked", got.Status)
	}
	if got.EmergencyUnlock == nil || got.EmergencyUnlock.Reason != "support ticket 4812" {
		t.Errorf("emergencyUnlock = %+v", got.EmergencyUnlock)
	}
	if got.EmergencyUnlock.TxHash != "0xadmin" {
		t.Errorf("emergency txHash = %q, want gateway hash", got.EmergencyUnlock.TxHash)
	}
	if f.gateway.adminCalls != 1 {
		t.Errorf("adminCalls = %d, want 1", f.gateway.adminCalls)
	}
}

func TestAdminEmergencyWithdraw(t *testing.T) {
	f := setupFixture(t)
	pos := f.stake(t)

	got, err := f.manager.AdminEmergencyWithdraw(context.Background(), pos.ID, "ops",
		"0x3333333333333333333333333333333333333333", "compromised wallet recovery")
	if err != nil {
		t.Fatalf("AdminEmergencyWithdraw() error = %v", err)
	}
	if got.EmergencyWithdraw == nil {
		t.Fatal("emergencyWithdraw not recorded")
	}
	if got.EmergencyWithdraw.Recipient != "0x3333333333333333333333333333333333333333" {
		t.Errorf("recipient = %q", got.EmergencyWithdraw.Recipient)
	}
}

func TestAdminEmergencyWithdraw_BadRecipient(t *testing.T) {
	f := setupFixture(t)
	pos := f.stake(t)

	_, err := f.manager.AdminEmergencyWithdraw(context.Background(), pos.ID, "ops",
		"not-an-address", "compromised wallet recovery")
	if !errors.Is(err, config.ErrInvalidAddress) {
		t.Fatalf("error = %v, want ErrInvalidAddress", err)
	}
}

func TestDurationCode(t *testing.T) {
	tests := []struct {
		tier models.DurationTier
		want int
	}{
		{models.DurationSixMonths, config.DurationCodeSixMonths},
		{models.DurationTwelveMonths, config.DurationCodeTwelveMonths},
		{models.DurationThirtySixMonths, config.DurationCodeThirtySixMonths},
	}
	for _, tt := range tests {
		if got := DurationCode(tt.tier); got != tt.want {
			t.Errorf("DurationCode(%d) = %d, want %d", tt.tier, got, tt.want)
		}
	}
}
