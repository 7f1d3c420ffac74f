package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/Fantasim/nftstake/internal/db"
	"github.com/Fantasim/nftstake/internal/gateway"
	"github.com/Fantasim/nftstake/internal/migration"
	"github.com/Fantasim/nftstake/internal/models"
	"github.com/Fantasim/nftstake/internal/position"
	"github.com/Fantasim/nftstake/internal/reconcile"
	"github.com/Fantasim/nftstake/internal/registry"
	"github.com/Fantasim/nftstake/internal/rewards"
)

// stubGateway answers every chain call successfully without touching a chain.
type stubGateway struct{}

func (stubGateway) VerifyOwnership(ctx context.Context, wallet, nftContract, tokenID string) (bool, error) {
	return true, nil
}

func (stubGateway) Lock(ctx context.Context, wallet, nftContract, tokenID string, durationCode int) (*gateway.LockResult, error) {
	id := int64(1)
	return &gateway.LockResult{
		Success:         true,
		TxHash:          "0xstub",
		PositionID:      &id,
		LockingHash:     "stub-hash",
		OnChainVerified: true,
	}, nil
}

func (stubGateway) Unlock(ctx context.Context, wallet, nftContract, tokenID, lockingHash string, positionID *int64) (*gateway.UnlockResult, error) {
	return &gateway.UnlockResult{Success: true, TxHash: "0xstub-unlock"}, nil
}

func (stubGateway) AdminUnlock(ctx context.Context, positionID int64, reason, adminWallet string) (*gateway.AdminResult, error) {
	return &gateway.AdminResult{Success: true, TxHash: "0xstub-admin"}, nil
}

func (stubGateway) AdminEmergencyWithdraw(ctx context.Context, positionID int64, recipient, reason, adminWallet string) (*gateway.AdminResult, error) {
	return &gateway.AdminResult{Success: true, TxHash: "0xstub-admin"}, nil
}

func (stubGateway) GetPosition(ctx context.Context, positionID int64) (*gateway.ChainPosition, error) {
	return &gateway.ChainPosition{Active: true}, nil
}

func (stubGateway) PauseContract(ctx context.Context, adminWallet string) (*gateway.AdminResult, error) {
	return &gateway.AdminResult{Success: true}, nil
}

func (stubGateway) UnpauseContract(ctx context.Context, adminWallet string) (*gateway.AdminResult, error) {
	return &gateway.AdminResult{Success: true}, nil
}

func (stubGateway) Status(ctx context.Context) gateway.ChainStatus {
	return gateway.ChainStatus{Chain: models.ChainEthereum, Healthy: true}
}

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	d, err := db.New(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	if err := d.RunMigrations(); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	t.Cleanup(func() { d.Close() })

	gateways := gateway.NewRouter(map[models.Chain]gateway.Gateway{
		models.ChainEthereum: stubGateway{},
	})
	reg := registry.New(d)
	mgr := position.NewManager(d, reg, gateways, "0xadmin0000000000000000000000000000000000")
	engine := rewards.NewEngine(d)
	rec := reconcile.New(d, gateways)

	srv := httptest.NewServer(NewRouter(Services{
		DB:         d,
		Gateways:   gateways,
		Registry:   reg,
		Positions:  mgr,
		Rewards:    engine,
		Reconciler: rec,
		Migrator:   migration.New(d, gateways, rec),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, out.Bytes()
}

func decodeData[T any](t *testing.T, body []byte) T {
	t.Helper()
	var wrapper struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		t.Fatalf("decode response %s: %v", body, err)
	}
	return wrapper.Data
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var apiErr models.APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		t.Fatalf("decode error response %s: %v", body, err)
	}
	return apiErr.Error.Code
}

func TestHealthEndpoint(t *testing.T) {
	srv := setupServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var health map[string]any
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("health status = %v, want ok", health["status"])
	}
}

func TestStakingFlow(t *testing.T) {
	srv := setupServer(t)

	// Register the user's wallet.
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/wallets", map[string]any{
		"chain":     "ethereum",
		"address":   "0x2222222222222222222222222222222222222222",
		"isPrimary": true,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register wallet status = %d, body %s", resp.StatusCode, body)
	}

	// Register and validate a staking contract.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/contracts", map[string]any{
		"chain":           "ethereum",
		"contractAddress": "0x1111111111111111111111111111111111111111",
		"name":            "Test Collection",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create contract status = %d, body %s", resp.StatusCode, body)
	}
	contract := decodeData[models.StakingContract](t, body)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/contracts/"+contract.ID+"/validate", map[string]any{
		"validatedBy": "ops",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("validate contract status = %d, body %s", resp.StatusCode, body)
	}

	// Stake.
	stakeBody := map[string]any{
		"userId":          "user-1",
		"contractId":      contract.ID,
		"nftTokenId":      "42",
		"stakingDuration": 12,
	}
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/positions", stakeBody)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("stake status = %d, body %s", resp.StatusCode, body)
	}
	pos := decodeData[models.StakingPosition](t, body)
	if pos.Status != models.StatusActive {
		t.Errorf("position status = %s, want active", pos.Status)
	}

	// The same NFT cannot be staked twice.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/positions", stakeBody)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate stake status = %d, want 409", resp.StatusCode)
	}
	if code := errorCode(t, body); code != "ERROR_ALREADY_STAKED" {
		t.Errorf("duplicate stake code = %s", code)
	}

	// Unstaking before the term fails.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/positions/"+pos.ID+"/unstake", map[string]any{
		"userId": "user-1",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("early unstake status = %d, want 422", resp.StatusCode)
	}
	if code := errorCode(t, body); code != "ERROR_STAKING_PERIOD_NOT_COMPLETED" {
		t.Errorf("early unstake code = %s", code)
	}

	// The position shows up in the user's listing.
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/users/user-1/positions?status=active", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list positions status = %d", resp.StatusCode)
	}
	positions := decodeData[[]models.StakingPosition](t, body)
	if len(positions) != 1 || positions[0].ID != pos.ID {
		t.Errorf("listed positions = %+v, want the staked one", positions)
	}
}

func TestProjectionEndpoint(t *testing.T) {
	srv := setupServer(t)

	_, body := doJSON(t, http.MethodPost, srv.URL+"/api/contracts", map[string]any{
		"chain":           "ethereum",
		"contractAddress": "0x1111111111111111111111111111111111111111",
		"name":            "Test Collection",
	})
	contract := decodeData[models.StakingContract](t, body)

	resp, body := doJSON(t, http.MethodGet,
		srv.URL+"/api/contracts/"+contract.ID+"/projection?duration=12&nftCount=2", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("projection status = %d, body %s", resp.StatusCode, body)
	}
	proj := decodeData[rewards.Projection](t, body)
	if proj.MonthlyTickets != 12 {
		t.Errorf("monthlyTickets = %d, want 12", proj.MonthlyTickets)
	}
	if proj.TotalTickets != 12*12*2 {
		t.Errorf("totalTickets = %d, want 288", proj.TotalTickets)
	}

	resp, _ = doJSON(t, http.MethodGet,
		srv.URL+"/api/contracts/"+contract.ID+"/projection?duration=9", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid duration status = %d, want 400", resp.StatusCode)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	srv := setupServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/contracts", map[string]any{
		"chain":        "ethereum",
		"contactAddrs": "0x1111111111111111111111111111111111111111",
		"name":         "Typo Collection",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown field status = %d, want 400", resp.StatusCode)
	}
}

func TestInvalidWalletRejected(t *testing.T) {
	srv := setupServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/wallets", map[string]any{
		"chain":   "ethereum",
		"address": "not-an-address",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid address status = %d, want 400", resp.StatusCode)
	}
	if code := errorCode(t, body); code != "ERROR_INVALID_ADDRESS" {
		t.Errorf("invalid address code = %s", code)
	}
}

func TestDistributeEndpoint(t *testing.T) {
	srv := setupServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/admin/rewards/distribute", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("distribute status = %d, body %s", resp.StatusCode, body)
	}
	summary := decodeData[rewards.Summary](t, body)
	if summary.TotalProcessed != 0 {
		t.Errorf("processed = %d, want 0 on an empty ledger", summary.TotalProcessed)
	}
}

func TestMigrateEndpoint(t *testing.T) {
	srv := setupServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/admin/migrate", map[string]any{
		"dryRun": true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("migrate status = %d, body %s", resp.StatusCode, body)
	}
	report := decodeData[migration.Report](t, body)
	if !report.DryRun || report.Total != 0 {
		t.Errorf("report = %+v, want empty dry run", report)
	}
}
