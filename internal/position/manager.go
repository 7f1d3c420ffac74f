// Package position drives the staking position state machine: stake,
// unstake, and the administrative override paths.
package position

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/db"
	"github.com/Fantasim/nftstake/internal/gateway"
	"github.com/Fantasim/nftstake/internal/models"
	"github.com/Fantasim/nftstake/internal/registry"
	"github.com/Fantasim/nftstake/internal/validate"
)

// ChainGateway is the slice of the gateway router the manager needs.
type ChainGateway interface {
	VerifyOwnership(ctx context.Context, chain models.Chain, wallet, nftContract, tokenID string) (bool, error)
	Lock(ctx context.Context, chain models.Chain, wallet, nftContract, tokenID string, durationCode int) (*gateway.LockResult, error)
	Unlock(ctx context.Context, chain models.Chain, wallet, nftContract, tokenID, lockingHash string, positionID *int64) (*gateway.UnlockResult, error)
	AdminUnlock(ctx context.Context, chain models.Chain, positionID int64, reason, adminWallet string) (*gateway.AdminResult, error)
	AdminEmergencyWithdraw(ctx context.Context, chain models.Chain, positionID int64, recipient, reason, adminWallet string) (*gateway.AdminResult, error)
	PauseContract(ctx context.Context, chain models.Chain, adminWallet string) (*gateway.AdminResult, error)
	UnpauseContract(ctx context.Context, chain models.Chain, adminWallet string) (*gateway.AdminResult, error)
}

// Manager coordinates the ledger store, the registry, and the chain
// gateways for every position transition.
type Manager struct {
	store    *db.DB
	registry *registry.Service
	gateways ChainGateway
	admin    string
	now      func() time.Time
}

// NewManager builds a position manager. adminWallet signs admin chain calls.
func NewManager(store *db.DB, reg *registry.Service, gateways ChainGateway, adminWallet string) *Manager {
	return &Manager{
		store:    store,
		registry: reg,
		gateways: gateways,
		admin:    adminWallet,
		now:      time.Now,
	}
}

// StakeInput carries a stake request.
type StakeInput struct {
	UserID     string `json:"userId"`
	ContractID string `json:"contractId"`
	NFTTokenID string `json:"nftTokenId"`
	Duration   int    `json:"stakingDuration"`
}

// DurationCode maps a duration tier to the on-chain contract encoding.
func DurationCode(d models.DurationTier) int {
	switch d {
	case models.DurationSixMonths:
		return config.DurationCodeSixMonths
	case models.DurationThirtySixMonths:
		return config.DurationCodeThirtySixMonths
	default:
		return config.DurationCodeTwelveMonths
	}
}

// Stake creates a new staking position. The NFT must be owned by the user's
// wallet and not already staked; the lock confirms on chain before the
// position is persisted.
func (m *Manager) Stake(ctx context.Context, in StakeInput) (*models.StakingPosition, error) {
	contract, err := m.registry.Stakeable(in.ContractID)
	if err != nil {
		return nil, err
	}

	duration := models.DurationTier(in.Duration)
	if !duration.Valid() {
		return nil, fmt.Errorf("%w: %d months", config.ErrInvalidDuration, in.Duration)
	}
	if in.NFTTokenID == "" {
		return nil, fmt.Errorf("%w: nft token id is required", config.ErrInvalidConfig)
	}

	// Cheap pre-check. The partial unique index on active positions is the
	// authoritative guard against concurrent stakes of the same NFT.
	existing, err := m.store.GetActivePositionByNFT(contract.Chain, contract.ContractAddress, in.NFTTokenID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: token %s on %s", config.ErrAlreadyStaked, in.NFTTokenID, contract.Chain)
	}

	wallet, err := m.store.GetPrimaryWallet(in.UserID, contract.Chain)
	if err != nil {
		return nil, err
	}

	owns, err := m.gateways.VerifyOwnership(ctx, contract.Chain, wallet.Address, contract.ContractAddress, in.NFTTokenID)
	if err != nil {
		return nil, fmt.Errorf("verify ownership: %w", err)
	}
	if !owns {
		return nil, fmt.Errorf("%w: wallet %s does not own token %s", config.ErrNotOwner, wallet.Address, in.NFTTokenID)
	}

	lock, err := m.gateways.Lock(ctx, contract.Chain, wallet.Address, contract.ContractAddress, in.NFTTokenID, DurationCode(duration))
	if err != nil {
		if config.IsUnknownOutcome(err) {
			slog.Error("lock outcome unknown, position not recorded",
				"contractId", contract.ID,
				"tokenId", in.NFTTokenID,
				"error", err,
			)
		}
		return nil, err
	}

	now := m.now().UTC()
	pos := &models.StakingPosition{
		ID:                      uuid.NewString(),
		ContractID:              contract.ID,
		UserID:                  in.UserID,
		Chain:                   contract.Chain,
		NFTContractAddress:      contract.ContractAddress,
		NFTTokenID:              in.NFTTokenID,
		WalletAddress:           wallet.Address,
		Duration:                duration,
		Status:                  models.StatusActive,
		StakedAt:                now,
		UnlockAt:                now.AddDate(0, duration.Months(), 0),
		SmartContractPositionID: lock.PositionID,
		OnChainVerified:         lock.OnChainVerified,
		LockingHash:             lock.LockingHash,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if lock.TxHash != "" {
		pos.StakingTransaction = &models.ChainTransaction{
			TxHash:      lock.TxHash,
			BlockNumber: lock.BlockNumber,
			GasUsed:     lock.GasUsed,
			Confirmed:   lock.OnChainVerified,
		}
	}

	if err := m.store.InsertPosition(pos); err != nil {
		return nil, err
	}
	if err := m.store.AdjustTotalStaked(contract.ID, 1); err != nil {
		slog.Error("failed to bump total staked", "contractId", contract.ID, "error", err)
	}

	slog.Info("position staked",
		"positionId", pos.ID,
		"userId", in.UserID,
		"chain", pos.Chain,
		"tokenId", pos.NFTTokenID,
		"duration", duration.Months(),
		"unlockAt", pos.UnlockAt,
	)
	return pos, nil
}

// Unstake releases a position after its term has completed.
func (m *Manager) Unstake(ctx context.Context, positionID, userID string) (*models.StakingPosition, error) {
	pos, err := m.store.GetPosition(positionID)
	if err != nil {
		return nil, err
	}
	if pos.UserID != userID {
		return nil, fmt.Errorf("%w: position %s", config.ErrNotOwner, positionID)
	}
	if pos.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: position %s is %s", config.ErrPositionNotActive, positionID, pos.Status)
	}

	now := m.now().UTC()
	if now.Before(pos.UnlockAt) {
		return nil, fmt.Errorf("%w: unlocks at %s", config.ErrTooEarly, pos.UnlockAt.Format(time.RFC3339))
	}

	// Legacy positions have no custody linkage: nothing was ever locked on
	// chain or in the custody wallet, so release is a ledger-only transition.
	var unlockingHash string
	var chainTx *models.ChainTransaction
	if pos.LockingHash != "" || pos.SmartContractPositionID != nil {
		unlock, err := m.gateways.Unlock(ctx, pos.Chain, pos.WalletAddress, pos.NFTContractAddress, pos.NFTTokenID, pos.LockingHash, pos.SmartContractPositionID)
		if err != nil {
			if config.IsUnknownOutcome(err) {
				slog.Error("unlock outcome unknown, position left active for reconciliation",
					"positionId", positionID,
					"error", err,
				)
			}
			return nil, err
		}
		unlockingHash = unlock.UnlockingHash
		if unlock.TxHash != "" {
			chainTx = &models.ChainTransaction{
				TxHash:      unlock.TxHash,
				BlockNumber: unlock.BlockNumber,
				Confirmed:   unlock.Success,
			}
		}
	} else {
		slog.Info("unstaking database-only position, no gateway release needed", "positionId", positionID)
	}

	if err := m.store.MarkUnstaked(positionID, now, unlockingHash, chainTx); err != nil {
		return nil, err
	}
	if err := m.store.AdjustTotalStaked(pos.ContractID, -1); err != nil {
		slog.Error("failed to drop total staked", "contractId", pos.ContractID, "error", err)
	}

	slog.Info("position unstaked", "positionId", positionID, "userId", userID, "chain", pos.Chain)
	return m.store.GetPosition(positionID)
}

// AdminUnlock releases a position before its term. Requires an audit reason.
func (m *Manager) AdminUnlock(ctx context.Context, positionID, admin, reason string) (*models.StakingPosition, error) {
	pos, err := m.activeForAdmin(positionID, reason)
	if err != nil {
		return nil, err
	}

	action := models.EmergencyAction{
		Admin:   admin,
		Reason:  reason,
		ActedAt: m.now().UTC(),
	}

	if pos.OnChain() {
		result, err := m.gateways.AdminUnlock(ctx, pos.Chain, *pos.SmartContractPositionID, reason, m.admin)
		if err != nil {
			return nil, err
		}
		action.TxHash = result.TxHash
	}

	if err := m.store.MarkEmergency(positionID, "unlock", action); err != nil {
		return nil, err
	}

	slog.Warn("admin unlock executed",
		"positionId", positionID,
		"admin", admin,
		"reason", reason,
	)
	return m.store.GetPosition(positionID)
}

// AdminEmergencyWithdraw transfers a custodied NFT to recipient before the
// term completes. Requires an audit reason and a valid recipient address.
func (m *Manager) AdminEmergencyWithdraw(ctx context.Context, positionID, admin, recipient, reason string) (*models.StakingPosition, error) {
	pos, err := m.activeForAdmin(positionID, reason)
	if err != nil {
		return nil, err
	}
	if err := validate.Address(pos.Chain, recipient); err != nil {
		return nil, err
	}
	recipient = validate.Normalize(pos.Chain, recipient)

	action := models.EmergencyAction{
		Admin:     admin,
		Reason:    reason,
		Recipient: recipient,
		ActedAt:   m.now().UTC(),
	}

	if pos.OnChain() {
		result, err := m.gateways.AdminEmergencyWithdraw(ctx, pos.Chain, *pos.SmartContractPositionID, recipient, reason, m.admin)
		if err != nil {
			return nil, err
		}
		action.TxHash = result.TxHash
	}

	if err := m.store.MarkEmergency(positionID, "withdraw", action); err != nil {
		return nil, err
	}

	slog.Warn("emergency withdraw executed",
		"positionId", positionID,
		"admin", admin,
		"recipient", recipient,
		"reason", reason,
	)
	return m.store.GetPosition(positionID)
}

func (m *Manager) activeForAdmin(positionID, reason string) (*models.StakingPosition, error) {
	if len(reason) < config.MinEmergencyReasonLen {
		return nil, fmt.Errorf("%w: at least %d characters", config.ErrReasonTooShort, config.MinEmergencyReasonLen)
	}
	pos, err := m.store.GetPosition(positionID)
	if err != nil {
		return nil, err
	}
	if pos.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: position %s is %s", config.ErrPositionNotActive, positionID, pos.Status)
	}
	return pos, nil
}

// Pause stops new stakes on a chain's staking contract.
func (m *Manager) Pause(ctx context.Context, chain models.Chain, admin string) error {
	if !chain.Valid() {
		return fmt.Errorf("%w: %s", config.ErrInvalidChain, chain)
	}
	if _, err := m.gateways.PauseContract(ctx, chain, m.admin); err != nil {
		return err
	}
	slog.Warn("staking paused", "chain", chain, "admin", admin)
	return nil
}

// Unpause resumes stakes on a chain's staking contract.
func (m *Manager) Unpause(ctx context.Context, chain models.Chain, admin string) error {
	if !chain.Valid() {
		return fmt.Errorf("%w: %s", config.ErrInvalidChain, chain)
	}
	if _, err := m.gateways.UnpauseContract(ctx, chain, m.admin); err != nil {
		return err
	}
	slog.Warn("staking unpaused", "chain", chain, "admin", admin)
	return nil
}

// Get returns one position by id.
func (m *Manager) Get(positionID string) (*models.StakingPosition, error) {
	return m.store.GetPosition(positionID)
}

// ListForUser returns a user's positions, optionally filtered by status.
func (m *Manager) ListForUser(userID string, status *models.PositionStatus) ([]models.StakingPosition, error) {
	return m.store.ListUserPositions(userID, status)
}
