package gateway

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/custody"
	"github.com/Fantasim/nftstake/internal/models"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func testKeys(t *testing.T) *custody.KeyService {
	t.Helper()
	keys, err := custody.NewKeyService(testMnemonic)
	if err != nil {
		t.Fatalf("NewKeyService() error = %v", err)
	}
	return keys
}

type staticVerifier struct {
	owns bool
	err  error
}

func (v staticVerifier) OwnsNFT(ctx context.Context, wallet, nftContract, tokenID string) (bool, error) {
	return v.owns, v.err
}

func TestCustodialLock(t *testing.T) {
	g := NewCustodialGateway(models.ChainSolana, testKeys(t), staticVerifier{owns: true})
	g.now = func() time.Time { return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC) }

	result, err := g.Lock(context.Background(), "So1WaLLet11111111111111111111111", "So1Co11ection111111111111111111", "42", 1)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if !result.Success {
		t.Error("lock result not successful")
	}
	if result.OnChainVerified {
		t.Error("custodial lock reported as on-chain verified")
	}
	if result.PositionID != nil {
		t.Errorf("custodial lock returned chain position id %d", *result.PositionID)
	}
	if len(result.LockingHash) != 64 {
		t.Errorf("locking hash length = %d, want 64 hex chars", len(result.LockingHash))
	}

	// Same inputs and timestamp produce the same receipt hash.
	again, err := g.Lock(context.Background(), "So1WaLLet11111111111111111111111", "So1Co11ection111111111111111111", "42", 1)
	if err != nil {
		t.Fatalf("Lock() second call error = %v", err)
	}
	if again.LockingHash != result.LockingHash {
		t.Error("locking hash not deterministic for identical receipts")
	}
}

func TestCustodialUnlock(t *testing.T) {
	keys := testKeys(t)
	g := NewCustodialGateway(models.ChainBitcoin, keys, staticVerifier{owns: true})

	result, err := g.Unlock(context.Background(), "wallet", "collection", "42", "aabbccdd", nil)
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if !result.Success || result.UnlockingHash == "" {
		t.Errorf("unlock result = %+v", result)
	}

	sig, err := hex.DecodeString(result.TxHash)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if len(sig) == 0 {
		t.Fatal("empty receipt signature")
	}
}

func TestCustodialUnlockRequiresLockingHash(t *testing.T) {
	g := NewCustodialGateway(models.ChainSolana, testKeys(t), staticVerifier{owns: true})

	_, err := g.Unlock(context.Background(), "wallet", "collection", "42", "", nil)
	if !errors.Is(err, config.ErrUnlockFailed) {
		t.Fatalf("error = %v, want ErrUnlockFailed", err)
	}
}

func TestCustodialGetPositionUnsupported(t *testing.T) {
	g := NewCustodialGateway(models.ChainSolana, testKeys(t), staticVerifier{owns: true})

	_, err := g.GetPosition(context.Background(), 1)
	if !errors.Is(err, config.ErrGatewayUnavailable) {
		t.Fatalf("error = %v, want ErrGatewayUnavailable", err)
	}
}

func TestIndexerVerifier(t *testing.T) {
	owner := "So1WaLLet11111111111111111111111"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/solana/tokens/coll/42/owner":
			w.Write([]byte(`{"owner":"` + owner + `"}`))
		case "/v1/solana/tokens/coll/43/owner":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	v := NewIndexerVerifier(models.ChainSolana, srv.URL)

	owns, err := v.OwnsNFT(context.Background(), owner, "coll", "42")
	if err != nil {
		t.Fatalf("OwnsNFT() error = %v", err)
	}
	if !owns {
		t.Error("expected ownership for the indexed owner")
	}

	owns, err = v.OwnsNFT(context.Background(), "someone-else", "coll", "42")
	if err != nil {
		t.Fatalf("OwnsNFT() error = %v", err)
	}
	if owns {
		t.Error("different wallet reported as owner")
	}

	// Unknown tokens are simply not owned.
	owns, err = v.OwnsNFT(context.Background(), owner, "coll", "43")
	if err != nil || owns {
		t.Errorf("unknown token: owns = %t, err = %v, want false/nil", owns, err)
	}

	// Server errors are transient, not ownership answers.
	_, err = v.OwnsNFT(context.Background(), owner, "coll", "44")
	if !config.IsTransient(err) {
		t.Errorf("error = %v, want transient", err)
	}
}

func TestRouterUnknownChain(t *testing.T) {
	r := NewRouter(map[models.Chain]Gateway{})

	_, err := r.VerifyOwnership(context.Background(), models.ChainEthereum, "w", "c", "1")
	if !errors.Is(err, config.ErrGatewayUnavailable) {
		t.Fatalf("error = %v, want ErrGatewayUnavailable", err)
	}
	if r.Supports(models.ChainEthereum) {
		t.Error("empty router claims ethereum support")
	}
}

func TestRouterSupportedChains(t *testing.T) {
	keys := testKeys(t)
	r := NewRouter(map[models.Chain]Gateway{
		models.ChainSolana:  NewCustodialGateway(models.ChainSolana, keys, staticVerifier{owns: true}),
		models.ChainBitcoin: NewCustodialGateway(models.ChainBitcoin, keys, staticVerifier{owns: true}),
	})

	chains := r.SupportedChains()
	if len(chains) != 2 {
		t.Fatalf("supported chains = %v, want 2", chains)
	}
	for _, c := range chains {
		if !r.Supports(c) {
			t.Errorf("Supports(%s) = false", c)
		}
	}

	statuses := r.Health(context.Background())
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("chain %s unhealthy: %s", s.Chain, s.Detail)
		}
	}
}

// flakyGateway fails its first n VerifyOwnership calls, then succeeds.
type flakyGateway struct {
	Gateway
	failures int
	err      error
	calls    int
}

func (g *flakyGateway) VerifyOwnership(ctx context.Context, wallet, nftContract, tokenID string) (bool, error) {
	g.calls++
	if g.calls <= g.failures {
		if g.err != nil {
			return false, g.err
		}
		return false, config.NewTransientError(errors.New("rpc hiccup"))
	}
	return true, nil
}

func TestRouterRetriesTransientReads(t *testing.T) {
	gw := &flakyGateway{failures: 2}
	r := NewRouter(map[models.Chain]Gateway{models.ChainSolana: gw})
	r.retryDelay = func(time.Duration) {}

	owns, err := r.VerifyOwnership(context.Background(), models.ChainSolana, "w", "c", "1")
	if err != nil || !owns {
		t.Fatalf("VerifyOwnership = %t, %v, want true after retries", owns, err)
	}
	if gw.calls != 3 {
		t.Errorf("gateway called %d times, want 3", gw.calls)
	}
}

func TestRouterReadTimeoutExhaustsRetries(t *testing.T) {
	gw := &flakyGateway{failures: config.GatewayRetryCount + 1, err: context.DeadlineExceeded}
	r := NewRouter(map[models.Chain]Gateway{models.ChainSolana: gw})
	r.retryDelay = func(time.Duration) {}

	_, err := r.VerifyOwnership(context.Background(), models.ChainSolana, "w", "c", "1")
	if !errors.Is(err, config.ErrGatewayTimeout) {
		t.Fatalf("error = %v, want ErrGatewayTimeout", err)
	}
	if gw.calls != config.GatewayRetryCount {
		t.Errorf("gateway called %d times, want %d", gw.calls, config.GatewayRetryCount)
	}
}

func TestRouterDoesNotRetryPermanentReads(t *testing.T) {
	gw := &flakyGateway{failures: 5, err: errors.New("token does not exist")}
	r := NewRouter(map[models.Chain]Gateway{models.ChainSolana: gw})
	r.retryDelay = func(time.Duration) {}

	_, err := r.VerifyOwnership(context.Background(), models.ChainSolana, "w", "c", "1")
	if err == nil {
		t.Fatal("expected error")
	}
	if gw.calls != 1 {
		t.Errorf("gateway called %d times, want 1", gw.calls)
	}
}

func TestClassifyMutating(t *testing.T) {
	base := errors.New("boom")
	unknown := config.NewUnknownOutcomeError(base)

	if err := classifyMutating(nil); err != nil {
		t.Errorf("nil error classified as %v", err)
	}
	if err := classifyMutating(unknown); !config.IsUnknownOutcome(err) {
		t.Errorf("unknown-outcome error reclassified as %v", err)
	}
	if err := classifyMutating(context.DeadlineExceeded); !config.IsUnknownOutcome(err) {
		t.Errorf("deadline exceeded classified as %v, want unknown outcome", err)
	}
	if err := classifyMutating(base); config.IsUnknownOutcome(err) {
		t.Error("plain failure classified as unknown outcome")
	}
}
