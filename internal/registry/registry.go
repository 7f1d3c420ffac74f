// Package registry manages the catalog of approved NFT staking contracts.
package registry

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/db"
	"github.com/Fantasim/nftstake/internal/models"
	"github.com/Fantasim/nftstake/internal/validate"
)

// Service exposes staking contract registry operations.
type Service struct {
	store *db.DB
	now   func() time.Time
}

// New builds a registry service over the ledger store.
func New(store *db.DB) *Service {
	return &Service{store: store, now: time.Now}
}

// DefaultRewardSchedule returns the platform default schedule applied when a
// contract is registered without explicit reward structures.
func DefaultRewardSchedule() models.RewardSchedule {
	return models.RewardSchedule{
		SixMonths: models.RewardStructure{
			OpenEntryTicketsPerMonth: config.DefaultSixMonthTickets,
			BonusMultiplier:          config.DefaultSixMonthMultiplier,
		},
		TwelveMonths: models.RewardStructure{
			OpenEntryTicketsPerMonth: config.DefaultTwelveMonthTickets,
			BonusMultiplier:          config.DefaultTwelveMonthMultiplier,
		},
		ThirtySixMonths: models.RewardStructure{
			OpenEntryTicketsPerMonth: config.DefaultThirtySixMonthTickets,
			BonusMultiplier:          config.DefaultThirtySixMultiplier,
		},
	}
}

// CreateInput carries the fields accepted when registering a contract.
type CreateInput struct {
	Chain           models.Chain           `json:"chain"`
	ContractAddress string                 `json:"contractAddress"`
	Name            string                 `json:"name"`
	Description     string                 `json:"description"`
	Rewards         *models.RewardSchedule `json:"rewardStructures"`
}

// Create registers a new staking contract. The contract starts active but
// unvalidated, so no position can reference it until an operator validates.
func (s *Service) Create(in CreateInput) (*models.StakingContract, error) {
	if !in.Chain.Valid() {
		return nil, fmt.Errorf("%w: %s", config.ErrInvalidChain, in.Chain)
	}
	if err := validate.Address(in.Chain, in.ContractAddress); err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, fmt.Errorf("%w: contract name is required", config.ErrInvalidConfig)
	}

	rewards := DefaultRewardSchedule()
	if in.Rewards != nil {
		if err := validateSchedule(*in.Rewards); err != nil {
			return nil, err
		}
		rewards = *in.Rewards
	}

	now := s.now().UTC()
	contract := &models.StakingContract{
		ID:              uuid.NewString(),
		Chain:           in.Chain,
		ContractAddress: validate.Normalize(in.Chain, in.ContractAddress),
		Name:            in.Name,
		Description:     in.Description,
		IsActive:        true,
		Rewards:         rewards,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.InsertContract(contract); err != nil {
		return nil, err
	}

	slog.Info("staking contract registered",
		"contractId", contract.ID,
		"chain", contract.Chain,
		"address", contract.ContractAddress,
		"name", contract.Name,
	)
	return contract, nil
}

// Get returns one contract by id.
func (s *Service) Get(id string) (*models.StakingContract, error) {
	return s.store.GetContract(id)
}

// List returns contracts, optionally filtered by chain.
func (s *Service) List(chain *models.Chain) ([]models.StakingContract, error) {
	if chain != nil && !chain.Valid() {
		return nil, fmt.Errorf("%w: %s", config.ErrInvalidChain, *chain)
	}
	return s.store.ListContracts(chain)
}

// UpdateInput carries the mutable contract fields. Chain and address are
// fixed at registration.
type UpdateInput struct {
	Name        *string                `json:"name"`
	Description *string                `json:"description"`
	IsActive    *bool                  `json:"isActive"`
	Rewards     *models.RewardSchedule `json:"rewardStructures"`
}

// Update modifies a contract's mutable fields. Reward changes apply to
// future distributions only; credited history is never rewritten.
func (s *Service) Update(id string, in UpdateInput) (*models.StakingContract, error) {
	contract, err := s.store.GetContract(id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		if *in.Name == "" {
			return nil, fmt.Errorf("%w: contract name is required", config.ErrInvalidConfig)
		}
		contract.Name = *in.Name
	}
	if in.Description != nil {
		contract.Description = *in.Description
	}
	if in.IsActive != nil {
		contract.IsActive = *in.IsActive
	}
	if in.Rewards != nil {
		if err := validateSchedule(*in.Rewards); err != nil {
			return nil, err
		}
		contract.Rewards = *in.Rewards
	}
	contract.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateContractMutable(id, contract); err != nil {
		return nil, err
	}

	slog.Info("staking contract updated", "contractId", id, "active", contract.IsActive)
	return contract, nil
}

// Validate marks a contract as operator-validated, opening it for staking.
func (s *Service) Validate(id, operator, notes string) (*models.StakingContract, error) {
	if operator == "" {
		return nil, fmt.Errorf("%w: validator identity is required", config.ErrInvalidConfig)
	}
	if err := s.store.MarkContractValidated(id, operator, notes, s.now().UTC()); err != nil {
		return nil, err
	}

	slog.Info("staking contract validated", "contractId", id, "validatedBy", operator)
	return s.store.GetContract(id)
}

// Deactivate closes a contract to new positions. Existing positions keep
// running until unstaked.
func (s *Service) Deactivate(id string) (*models.StakingContract, error) {
	active := false
	return s.Update(id, UpdateInput{IsActive: &active})
}

// Stakeable returns the contract if it accepts new positions, or an error
// naming the gate that failed.
func (s *Service) Stakeable(id string) (*models.StakingContract, error) {
	contract, err := s.store.GetContract(id)
	if err != nil {
		return nil, err
	}
	if !contract.Stakeable() {
		return nil, fmt.Errorf("%w: contract %s is inactive or not validated", config.ErrContractUnavailable, id)
	}
	return contract, nil
}

func validateSchedule(s models.RewardSchedule) error {
	for _, r := range []models.RewardStructure{s.SixMonths, s.TwelveMonths, s.ThirtySixMonths} {
		if r.OpenEntryTicketsPerMonth < 0 {
			return fmt.Errorf("%w: open entry tickets must not be negative", config.ErrInvalidConfig)
		}
		if r.BonusMultiplier < 1.0 {
			return fmt.Errorf("%w: bonus multiplier must be at least 1.0", config.ErrInvalidConfig)
		}
	}
	return nil
}
