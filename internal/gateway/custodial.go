package gateway

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/time/rate"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/custody"
	"github.com/Fantasim/nftstake/internal/models"
)

// OwnershipVerifier answers whether wallet currently owns the NFT on a chain
// without smart-contract staking support.
type OwnershipVerifier interface {
	OwnsNFT(ctx context.Context, wallet, nftContract, tokenID string) (bool, error)
}

// IndexerVerifier checks NFT ownership against an external chain indexer API.
type IndexerVerifier struct {
	chain   models.Chain
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewIndexerVerifier builds a verifier against the indexer at baseURL.
func NewIndexerVerifier(chain models.Chain, baseURL string) *IndexerVerifier {
	return &IndexerVerifier{
		chain:   chain,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: config.GatewayCallTimeout},
		limiter: rate.NewLimiter(rate.Limit(config.GatewayRateLimitRPS), 1),
	}
}

type ownerResponse struct {
	Owner string `json:"owner"`
}

// OwnsNFT fetches the current owner of the token from the indexer and
// compares it against wallet.
func (v *IndexerVerifier) OwnsNFT(ctx context.Context, wallet, nftContract, tokenID string) (bool, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return false, err
	}

	url := fmt.Sprintf("%s/v1/%s/tokens/%s/%s/owner", v.baseURL, v.chain, nftContract, tokenID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return false, config.NewTransientError(fmt.Errorf("indexer request for %s: %w", v.chain, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, config.NewTransientError(fmt.Errorf("indexer returned %d for %s: %s", resp.StatusCode, v.chain, body))
	}

	var out ownerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode indexer response for %s: %w", v.chain, err)
	}

	return strings.EqualFold(out.Owner, wallet), nil
}

// CustodialGateway implements custody for chains without staking contracts.
// The platform takes the NFT into a custody wallet off-process; the gateway
// records a signed lock receipt whose hash binds the position to the custody
// event. Admin overrides are ledger-side operations only.
type CustodialGateway struct {
	chain    models.Chain
	keys     *custody.KeyService
	verifier OwnershipVerifier
	now      func() time.Time
}

// NewCustodialGateway builds a custodial gateway for chain backed by verifier.
func NewCustodialGateway(chain models.Chain, keys *custody.KeyService, verifier OwnershipVerifier) *CustodialGateway {
	return &CustodialGateway{
		chain:    chain,
		keys:     keys,
		verifier: verifier,
		now:      time.Now,
	}
}

// VerifyOwnership delegates to the configured ownership verifier.
func (g *CustodialGateway) VerifyOwnership(ctx context.Context, wallet, nftContract, tokenID string) (bool, error) {
	return g.verifier.OwnsNFT(ctx, wallet, nftContract, tokenID)
}

// lockReceipt is the canonical payload hashed into the locking hash. The
// custody key signs the double-SHA256 of this payload.
type lockReceipt struct {
	Chain       models.Chain `json:"chain"`
	Wallet      string       `json:"wallet"`
	NFTContract string       `json:"nftContract"`
	TokenID     string       `json:"tokenId"`
	Duration    int          `json:"durationCode"`
	LockedAt    int64        `json:"lockedAt"`
}

// Lock records custody of the NFT and returns a signed lock receipt hash.
// No transaction is broadcast: custody transfer happens operationally, the
// receipt is the verifiable record.
func (g *CustodialGateway) Lock(ctx context.Context, wallet, nftContract, tokenID string, durationCode int) (*LockResult, error) {
	receipt := lockReceipt{
		Chain:       g.chain,
		Wallet:      wallet,
		NFTContract: nftContract,
		TokenID:     tokenID,
		Duration:    durationCode,
		LockedAt:    g.now().UTC().Unix(),
	}
	payload, err := json.Marshal(receipt)
	if err != nil {
		return nil, fmt.Errorf("marshal lock receipt: %w", err)
	}

	hash := chainhash.DoubleHashB(payload)
	sig := g.keys.SignReceipt(payload)

	slog.Info("custodial lock recorded",
		"chain", g.chain,
		"nftContract", nftContract,
		"tokenId", tokenID,
		"lockingHash", hex.EncodeToString(hash),
	)

	return &LockResult{
		Success:         true,
		LockingHash:     hex.EncodeToString(hash),
		TxHash:          hex.EncodeToString(sig),
		OnChainVerified: false,
	}, nil
}

// Unlock records release of custody. The unlocking hash chains the original
// locking hash with the release timestamp so both events stay linkable.
func (g *CustodialGateway) Unlock(ctx context.Context, wallet, nftContract, tokenID, lockingHash string, positionID *int64) (*UnlockResult, error) {
	if lockingHash == "" {
		return nil, fmt.Errorf("%w: position has no locking hash on %s", config.ErrUnlockFailed, g.chain)
	}

	payload := []byte(fmt.Sprintf("%s:%s:unlock:%d", g.chain, lockingHash, g.now().UTC().Unix()))
	hash := chainhash.DoubleHashB(payload)
	sig := g.keys.SignReceipt(payload)

	slog.Info("custodial unlock recorded",
		"chain", g.chain,
		"nftContract", nftContract,
		"tokenId", tokenID,
		"unlockingHash", hex.EncodeToString(hash),
	)

	return &UnlockResult{
		Success:       true,
		UnlockingHash: hex.EncodeToString(hash),
		TxHash:        hex.EncodeToString(sig),
	}, nil
}

// AdminUnlock succeeds ledger-side; custodial chains have no contract to call.
func (g *CustodialGateway) AdminUnlock(ctx context.Context, positionID int64, reason, adminWallet string) (*AdminResult, error) {
	slog.Info("custodial admin unlock recorded", "chain", g.chain, "positionId", positionID, "admin", adminWallet)
	return &AdminResult{Success: true}, nil
}

// AdminEmergencyWithdraw succeeds ledger-side. The NFT transfer to recipient
// is executed operationally from the custody wallet.
func (g *CustodialGateway) AdminEmergencyWithdraw(ctx context.Context, positionID int64, recipient, reason, adminWallet string) (*AdminResult, error) {
	slog.Info("custodial emergency withdraw recorded",
		"chain", g.chain,
		"positionId", positionID,
		"recipient", recipient,
		"admin", adminWallet,
	)
	return &AdminResult{Success: true}, nil
}

// PauseContract is a no-op for custodial chains; pausing is enforced at the
// registry level.
func (g *CustodialGateway) PauseContract(ctx context.Context, adminWallet string) (*AdminResult, error) {
	return &AdminResult{Success: true}, nil
}

// UnpauseContract is a no-op for custodial chains.
func (g *CustodialGateway) UnpauseContract(ctx context.Context, adminWallet string) (*AdminResult, error) {
	return &AdminResult{Success: true}, nil
}

// GetPosition is unsupported on custodial chains; there is no contract state
// to read back.
func (g *CustodialGateway) GetPosition(ctx context.Context, positionID int64) (*ChainPosition, error) {
	return nil, fmt.Errorf("%w: %s has no on-chain position state", config.ErrGatewayUnavailable, g.chain)
}

// Status reports healthy as long as the custody key is loaded.
func (g *CustodialGateway) Status(ctx context.Context) ChainStatus {
	if g.keys == nil {
		return ChainStatus{Chain: g.chain, Healthy: false, Detail: "custody key not loaded"}
	}
	return ChainStatus{Chain: g.chain, Healthy: true, Detail: "custody key loaded"}
}
