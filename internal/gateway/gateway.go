// Package gateway abstracts the blockchain verification/transaction surface
// the staking core depends on. Each call may fail, time out, or return a
// stale view; callers must treat a timed-out mutating call as unknown
// outcome, not failure.
package gateway

import (
	"context"
	"time"

	"github.com/Fantasim/nftstake/internal/models"
)

// LockResult is the outcome of a lock (stake) call.
type LockResult struct {
	Success         bool
	TxHash          string
	BlockNumber     *int64
	GasUsed         *int64
	PositionID      *int64 // on-chain position id, nil in custodial mode
	LockingHash     string
	OnChainVerified bool
	Error           string
}

// UnlockResult is the outcome of an unlock (unstake) call.
type UnlockResult struct {
	Success       bool
	TxHash        string
	BlockNumber   *int64
	UnlockingHash string
	Error         string
}

// AdminResult is the outcome of an administrative chain operation.
type AdminResult struct {
	Success bool
	TxHash  string
	Error   string
}

// ChainPosition is the chain's view of one staking position.
type ChainPosition struct {
	Owner       string
	NFTContract string
	TokenID     string
	StakedAt    time.Time
	UnlockAt    time.Time
	Active      bool
}

// ChainStatus reports the health of one chain's gateway.
type ChainStatus struct {
	Chain   models.Chain `json:"chain"`
	Healthy bool         `json:"healthy"`
	Detail  string       `json:"detail,omitempty"`
}

// Gateway is the per-chain verification/transaction interface.
type Gateway interface {
	// VerifyOwnership reports whether wallet currently owns the NFT.
	VerifyOwnership(ctx context.Context, wallet, nftContract, tokenID string) (bool, error)

	// Lock begins custody of the NFT for the given duration code.
	Lock(ctx context.Context, wallet, nftContract, tokenID string, durationCode int) (*LockResult, error)

	// Unlock releases custody of the NFT back to the wallet.
	Unlock(ctx context.Context, wallet, nftContract, tokenID, lockingHash string, positionID *int64) (*UnlockResult, error)

	// AdminUnlock releases a position before its term, bypassing the time gate.
	AdminUnlock(ctx context.Context, positionID int64, reason, adminWallet string) (*AdminResult, error)

	// AdminEmergencyWithdraw transfers the NFT directly to recipient.
	AdminEmergencyWithdraw(ctx context.Context, positionID int64, recipient, reason, adminWallet string) (*AdminResult, error)

	// GetPosition returns the chain's view of a position.
	GetPosition(ctx context.Context, positionID int64) (*ChainPosition, error)

	// PauseContract / UnpauseContract toggle the chain's staking contract.
	PauseContract(ctx context.Context, adminWallet string) (*AdminResult, error)
	UnpauseContract(ctx context.Context, adminWallet string) (*AdminResult, error)

	// Status reports the gateway's health.
	Status(ctx context.Context) ChainStatus
}
