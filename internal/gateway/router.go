package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/models"
)

// Router fronts the per-chain gateways with rate limiting, call timeouts,
// and error classification. Callers address chains, never concrete gateways.
type Router struct {
	gateways   map[models.Chain]Gateway
	limiters   map[models.Chain]*rate.Limiter
	retryDelay func(time.Duration)
}

// NewRouter builds a router over the given chain gateways.
func NewRouter(gateways map[models.Chain]Gateway) *Router {
	limiters := make(map[models.Chain]*rate.Limiter, len(gateways))
	for chain := range gateways {
		limiters[chain] = rate.NewLimiter(rate.Limit(config.GatewayRateLimitRPS), config.GatewayRateLimitRPS)
	}
	return &Router{gateways: gateways, limiters: limiters, retryDelay: time.Sleep}
}

// SupportedChains lists the chains with a configured gateway, sorted.
func (r *Router) SupportedChains() []models.Chain {
	chains := make([]models.Chain, 0, len(r.gateways))
	for chain := range r.gateways {
		chains = append(chains, chain)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
	return chains
}

// Supports reports whether a gateway is configured for chain.
func (r *Router) Supports(chain models.Chain) bool {
	_, ok := r.gateways[chain]
	return ok
}

func (r *Router) acquire(ctx context.Context, chain models.Chain) (Gateway, error) {
	gw, ok := r.gateways[chain]
	if !ok {
		return nil, fmt.Errorf("%w: no gateway for chain %s", config.ErrGatewayUnavailable, chain)
	}
	if err := r.limiters[chain].Wait(ctx); err != nil {
		return nil, config.NewTransientError(fmt.Errorf("rate limit wait for %s: %w", chain, err))
	}
	return gw, nil
}

// classifyMutating maps a timeout on a state-changing chain call to an
// unknown-outcome error: the transaction may have landed even though the
// response never arrived. Read-only calls stay plain transient failures.
func classifyMutating(err error) error {
	if err == nil {
		return nil
	}
	if config.IsUnknownOutcome(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return config.NewUnknownOutcomeError(err)
	}
	return err
}

// classifyRead maps a timeout on a read-only chain call to the gateway
// timeout sentinel. Nothing mutated, so callers may retry freely.
func classifyRead(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", config.ErrGatewayTimeout, err)
	}
	return err
}

// retryRead runs a read-only gateway call, retrying transient failures and
// timeouts. Mutating calls never go through here: retrying a write that may
// already have landed would double-submit it.
func (r *Router) retryRead(ctx context.Context, call func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < config.GatewayRetryCount; attempt++ {
		if attempt > 0 {
			r.retryDelay(config.GatewayRetryDelay)
		}
		callCtx, cancel := context.WithTimeout(ctx, config.GatewayCallTimeout)
		err = call(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !config.IsTransient(err) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return classifyRead(err)
}

// VerifyOwnership checks NFT ownership through the chain's gateway.
func (r *Router) VerifyOwnership(ctx context.Context, chain models.Chain, wallet, nftContract, tokenID string) (bool, error) {
	gw, err := r.acquire(ctx, chain)
	if err != nil {
		return false, err
	}
	var owns bool
	err = r.retryRead(ctx, func(callCtx context.Context) error {
		var callErr error
		owns, callErr = gw.VerifyOwnership(callCtx, wallet, nftContract, tokenID)
		return callErr
	})
	return owns, err
}

// Lock locks an NFT on chain for the staking duration.
func (r *Router) Lock(ctx context.Context, chain models.Chain, wallet, nftContract, tokenID string, durationCode int) (*LockResult, error) {
	gw, err := r.acquire(ctx, chain)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, config.GatewayCallTimeout)
	defer cancel()
	result, err := gw.Lock(callCtx, wallet, nftContract, tokenID, durationCode)
	return result, classifyMutating(err)
}

// Unlock releases an NFT lock on chain.
func (r *Router) Unlock(ctx context.Context, chain models.Chain, wallet, nftContract, tokenID, lockingHash string, positionID *int64) (*UnlockResult, error) {
	gw, err := r.acquire(ctx, chain)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, config.GatewayCallTimeout)
	defer cancel()
	result, err := gw.Unlock(callCtx, wallet, nftContract, tokenID, lockingHash, positionID)
	return result, classifyMutating(err)
}

// AdminUnlock releases a position before its term through the admin path.
func (r *Router) AdminUnlock(ctx context.Context, chain models.Chain, positionID int64, reason, adminWallet string) (*AdminResult, error) {
	gw, err := r.acquire(ctx, chain)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, config.GatewayCallTimeout)
	defer cancel()
	result, err := gw.AdminUnlock(callCtx, positionID, reason, adminWallet)
	return result, classifyMutating(err)
}

// AdminEmergencyWithdraw transfers a custodied NFT to recipient through the
// admin path.
func (r *Router) AdminEmergencyWithdraw(ctx context.Context, chain models.Chain, positionID int64, recipient, reason, adminWallet string) (*AdminResult, error) {
	gw, err := r.acquire(ctx, chain)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, config.GatewayCallTimeout)
	defer cancel()
	result, err := gw.AdminEmergencyWithdraw(callCtx, positionID, recipient, reason, adminWallet)
	return result, classifyMutating(err)
}

// PauseContract pauses staking on chain.
func (r *Router) PauseContract(ctx context.Context, chain models.Chain, adminWallet string) (*AdminResult, error) {
	gw, err := r.acquire(ctx, chain)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, config.GatewayCallTimeout)
	defer cancel()
	result, err := gw.PauseContract(callCtx, adminWallet)
	return result, classifyMutating(err)
}

// UnpauseContract resumes staking on chain.
func (r *Router) UnpauseContract(ctx context.Context, chain models.Chain, adminWallet string) (*AdminResult, error) {
	gw, err := r.acquire(ctx, chain)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, config.GatewayCallTimeout)
	defer cancel()
	result, err := gw.UnpauseContract(callCtx, adminWallet)
	return result, classifyMutating(err)
}

// GetPosition reads the chain's view of a position.
func (r *Router) GetPosition(ctx context.Context, chain models.Chain, positionID int64) (*ChainPosition, error) {
	gw, err := r.acquire(ctx, chain)
	if err != nil {
		return nil, err
	}
	var chainPos *ChainPosition
	err = r.retryRead(ctx, func(callCtx context.Context) error {
		var callErr error
		chainPos, callErr = gw.GetPosition(callCtx, positionID)
		return callErr
	})
	return chainPos, err
}

// Health returns the status of every configured gateway.
func (r *Router) Health(ctx context.Context) []ChainStatus {
	statuses := make([]ChainStatus, 0, len(r.gateways))
	for _, chain := range r.SupportedChains() {
		callCtx, cancel := context.WithTimeout(ctx, config.GatewayCallTimeout)
		statuses = append(statuses, r.gateways[chain].Status(callCtx))
		cancel()
	}
	return statuses
}
