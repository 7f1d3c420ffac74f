package models

import "time"

// Chain represents a supported blockchain.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainBSC      Chain = "bsc"
	ChainSolana   Chain = "solana"
	ChainBitcoin  Chain = "bitcoin"
)

// AllChains is the ordered list of supported chains.
var AllChains = []Chain{ChainEthereum, ChainBSC, ChainSolana, ChainBitcoin}

// Valid reports whether c is a supported chain.
func (c Chain) Valid() bool {
	for _, chain := range AllChains {
		if c == chain {
			return true
		}
	}
	return false
}

// SmartContractCapable reports whether the chain supports on-chain staking
// positions. Chains without contract support use custodial lock-hash mode.
func (c Chain) SmartContractCapable() bool {
	return c == ChainEthereum || c == ChainBSC
}

// DurationTier is a staking term in months. Only the three listed tiers exist.
type DurationTier int

const (
	DurationSixMonths       DurationTier = 6
	DurationTwelveMonths    DurationTier = 12
	DurationThirtySixMonths DurationTier = 36
)

// AllDurations is the ordered list of supported staking terms.
var AllDurations = []DurationTier{DurationSixMonths, DurationTwelveMonths, DurationThirtySixMonths}

// Valid reports whether d is a supported duration tier.
func (d DurationTier) Valid() bool {
	return d == DurationSixMonths || d == DurationTwelveMonths || d == DurationThirtySixMonths
}

// Months returns the tier length in months.
func (d DurationTier) Months() int { return int(d) }

// PositionStatus is the lifecycle state of a staking position.
type PositionStatus string

const (
	StatusActive   PositionStatus = "active"
	StatusUnstaked PositionStatus = "unstaked"
	StatusExpired  PositionStatus = "expired"
)

// Terminal reports whether the status permits no further transitions.
func (s PositionStatus) Terminal() bool {
	return s == StatusUnstaked || s == StatusExpired
}

// RewardStructure is the reward schedule for one duration tier.
type RewardStructure struct {
	OpenEntryTicketsPerMonth int     `json:"openEntryTicketsPerMonth"`
	BonusMultiplier          float64 `json:"bonusMultiplier"`
}

// RewardSchedule maps each supported duration tier to its reward structure.
// A closed struct rather than a keyed map so an invalid tier cannot be stored.
type RewardSchedule struct {
	SixMonths       RewardStructure `json:"sixMonths"`
	TwelveMonths    RewardStructure `json:"twelveMonths"`
	ThirtySixMonths RewardStructure `json:"thirtySixMonths"`
}

// ForDuration returns the reward structure for the given tier.
func (s RewardSchedule) ForDuration(d DurationTier) RewardStructure {
	switch d {
	case DurationSixMonths:
		return s.SixMonths
	case DurationThirtySixMonths:
		return s.ThirtySixMonths
	default:
		return s.TwelveMonths
	}
}

// ContractValidation records the manual validation gate on a staking contract.
type ContractValidation struct {
	IsValidated bool       `json:"isValidated"`
	ValidatedBy string     `json:"validatedBy,omitempty"`
	ValidatedAt *time.Time `json:"validatedAt,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// StakingContract is one approved NFT collection on one chain.
type StakingContract struct {
	ID              string             `json:"id"`
	Chain           Chain              `json:"chain"`
	ContractAddress string             `json:"contractAddress"`
	Name            string             `json:"name"`
	Description     string             `json:"description,omitempty"`
	IsActive        bool               `json:"isActive"`
	Validation      ContractValidation `json:"contractValidation"`
	Rewards         RewardSchedule     `json:"rewardStructures"`
	TotalStaked     int64              `json:"totalStaked"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

// Stakeable reports whether new positions may reference this contract.
func (c *StakingContract) Stakeable() bool {
	return c.IsActive && c.Validation.IsValidated
}

// ChainTransaction records the observable outcome of one chain operation.
type ChainTransaction struct {
	TxHash      string `json:"txHash,omitempty"`
	BlockNumber *int64 `json:"blockNumber,omitempty"`
	GasUsed     *int64 `json:"gasUsed,omitempty"`
	Confirmed   bool   `json:"confirmed"`
}

// EmergencyAction records an administrative override on a position.
type EmergencyAction struct {
	Admin     string    `json:"admin"`
	Reason    string    `json:"reason"`
	Recipient string    `json:"recipient,omitempty"`
	TxHash    string    `json:"transactionHash,omitempty"`
	ActedAt   time.Time `json:"unlockedAt"`
}

// StakingPosition is one staked NFT instance.
type StakingPosition struct {
	ID         string `json:"id"`
	ContractID string `json:"contractId"`
	UserID     string `json:"userId"`

	Chain              Chain  `json:"blockchain"`
	NFTContractAddress string `json:"nftContractAddress"`
	NFTTokenID         string `json:"nftTokenId"`
	WalletAddress      string `json:"walletAddress"`

	Duration DurationTier   `json:"stakingDuration"`
	Status   PositionStatus `json:"status"`
	StakedAt time.Time      `json:"stakedAt"`
	UnlockAt time.Time      `json:"unlockAt"`

	ActualUnstakedAt *time.Time `json:"actualUnstakedAt,omitempty"`

	SmartContractPositionID *int64            `json:"smartContractPositionId,omitempty"`
	OnChainVerified         bool              `json:"onChainVerified"`
	LockingHash             string            `json:"lockingHash,omitempty"`
	UnlockingHash           string            `json:"unlockingHash,omitempty"`
	StakingTransaction      *ChainTransaction `json:"stakingTransaction,omitempty"`
	UnstakingTransaction    *ChainTransaction `json:"unstakingTransaction,omitempty"`

	TotalRewardsEarned     int64      `json:"totalRewardsEarned"`
	LastRewardDistribution *time.Time `json:"lastRewardDistribution,omitempty"`

	EmergencyUnlock   *EmergencyAction `json:"emergencyUnlock,omitempty"`
	EmergencyWithdraw *EmergencyAction `json:"emergencyWithdraw,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OnChain reports whether the position carries confirmed on-chain linkage.
func (p *StakingPosition) OnChain() bool {
	return p.SmartContractPositionID != nil && p.OnChainVerified
}

// RewardEntry is one append-only reward history record.
type RewardEntry struct {
	ID               int64     `json:"id"`
	PositionID       string    `json:"positionId"`
	PeriodKey        string    `json:"periodKey"`
	OpenEntryTickets int       `json:"openEntryTickets"`
	BonusMultiplier  float64   `json:"bonusMultiplier"`
	DistributedAt    time.Time `json:"distributedAt"`
}

// Wallet is a user's registered wallet address on one chain.
type Wallet struct {
	UserID    string    `json:"userId"`
	Chain     Chain     `json:"chain"`
	Address   string    `json:"address"`
	IsPrimary bool      `json:"isPrimary"`
	CreatedAt time.Time `json:"createdAt"`
}

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Data interface{} `json:"data,omitempty"`
	Meta *APIMeta    `json:"meta,omitempty"`
}

// APIMeta contains pagination metadata.
type APIMeta struct {
	Page     int   `json:"page,omitempty"`
	PageSize int   `json:"pageSize,omitempty"`
	Total    int64 `json:"total,omitempty"`
}

// APIError is the standard error response.
type APIError struct {
	Error APIErrorDetail `json:"error"`
}

// APIErrorDetail contains error code and message.
type APIErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
