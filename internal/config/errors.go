package config

import (
	"errors"
	"time"
)

// Sentinel errors for internal use.
var (
	ErrInvalidConfig = errors.New("invalid configuration")

	// Validation
	ErrInvalidAddress  = errors.New("invalid address for chain")
	ErrInvalidChain    = errors.New("unsupported blockchain")
	ErrInvalidDuration = errors.New("staking duration must be 6, 12 or 36 months")
	ErrReasonTooShort  = errors.New("reason does not meet minimum length for audit")

	// Conflict
	ErrDuplicateContract = errors.New("staking contract already registered for this address and chain")
	ErrAlreadyStaked     = errors.New("an active staking position already exists for this NFT")

	// Registry / lookup
	ErrContractNotFound    = errors.New("staking contract not found")
	ErrContractUnavailable = errors.New("staking contract is not active and validated")
	ErrPositionNotFound    = errors.New("staking position not found")
	ErrPositionNotActive   = errors.New("staking position is not active")
	ErrNoWallet            = errors.New("user has no wallet registered for this chain")

	// Ownership
	ErrNotOwner = errors.New("wallet does not own this NFT")

	// State machine
	ErrTooEarly = errors.New("staking period has not completed yet")

	// Gateway
	ErrLockFailed         = errors.New("gateway lock call failed")
	ErrUnlockFailed       = errors.New("gateway unlock call failed")
	ErrGatewayUnavailable = errors.New("blockchain gateway unavailable")
	ErrGatewayTimeout     = errors.New("blockchain gateway call timed out")

	// Custody
	ErrMnemonicFileNotSet = errors.New("custody mnemonic file path not configured")
	ErrInvalidMnemonic    = errors.New("invalid custody mnemonic")
	ErrKeyDerivation      = errors.New("custody key derivation failed")

	// Jobs
	ErrDistributionRunning = errors.New("reward distribution already running")
	ErrMigrationRunning    = errors.New("migration run already in progress")
)

// TransientError wraps an error that should be retried.
type TransientError struct {
	Err        error
	RetryAfter time.Duration // 0 = use default backoff
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient (retriable).
func NewTransientError(err error) error {
	return &TransientError{Err: err}
}

// IsTransient returns true if the error is transient (retriable).
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// UnknownOutcomeError marks a chain call whose effect is undetermined: the
// request may or may not have landed on-chain. Callers must leave the
// position in its pre-call state and rely on reconciliation or retry.
type UnknownOutcomeError struct {
	Err error
}

func (e *UnknownOutcomeError) Error() string { return e.Err.Error() }
func (e *UnknownOutcomeError) Unwrap() error { return e.Err }

// NewUnknownOutcomeError wraps an error as unknown-outcome.
func NewUnknownOutcomeError(err error) error {
	return &UnknownOutcomeError{Err: err}
}

// IsUnknownOutcome returns true if the chain effect of the failed call is
// undetermined.
func IsUnknownOutcome(err error) bool {
	var ue *UnknownOutcomeError
	return errors.As(err, &ue)
}

// Error codes shared with clients via API responses.
const (
	ErrorInvalidConfig   = "ERROR_INVALID_CONFIG"
	ErrorInvalidAddress  = "ERROR_INVALID_ADDRESS"
	ErrorInvalidChain    = "ERROR_INVALID_CHAIN"
	ErrorInvalidDuration = "ERROR_INVALID_DURATION"
	ErrorReasonTooShort  = "ERROR_REASON_TOO_SHORT"

	ErrorDuplicateContract = "ERROR_DUPLICATE_CONTRACT"
	ErrorAlreadyStaked     = "ERROR_ALREADY_STAKED"

	ErrorContractNotFound    = "ERROR_CONTRACT_NOT_FOUND"
	ErrorContractUnavailable = "ERROR_CONTRACT_UNAVAILABLE"
	ErrorPositionNotFound    = "ERROR_POSITION_NOT_FOUND"
	ErrorPositionNotActive   = "ERROR_POSITION_NOT_ACTIVE"
	ErrorNoWallet            = "ERROR_NO_WALLET"

	ErrorNotOwner = "ERROR_NOT_OWNER"
	ErrorTooEarly = "ERROR_STAKING_PERIOD_NOT_COMPLETED"

	ErrorLockFailed         = "ERROR_LOCK_FAILED"
	ErrorUnlockFailed       = "ERROR_UNLOCK_FAILED"
	ErrorGatewayUnavailable = "ERROR_GATEWAY_UNAVAILABLE"
	ErrorGatewayTimeout     = "ERROR_GATEWAY_TIMEOUT"

	ErrorDistributionRunning = "ERROR_DISTRIBUTION_RUNNING"
	ErrorMigrationRunning    = "ERROR_MIGRATION_RUNNING"

	ErrorInternal = "ERROR_INTERNAL"
)
