package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/custody"
	"github.com/Fantasim/nftstake/internal/models"
)

// erc721ABI is the minimal NFT interface the gateway needs.
const erc721ABI = `[
	{"type":"function","name":"ownerOf","stateMutability":"view",
	 "inputs":[{"name":"tokenId","type":"uint256"}],
	 "outputs":[{"name":"owner","type":"address"}]}
]`

// stakingABI is the staking contract surface: stake/unstake, admin overrides,
// pause controls, and the positions view.
const stakingABI = `[
	{"type":"function","name":"stake","stateMutability":"nonpayable",
	 "inputs":[{"name":"nftContract","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"durationCode","type":"uint8"}],
	 "outputs":[{"name":"positionId","type":"uint256"}]},
	{"type":"function","name":"unstake","stateMutability":"nonpayable",
	 "inputs":[{"name":"positionId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"adminUnlock","stateMutability":"nonpayable",
	 "inputs":[{"name":"positionId","type":"uint256"},{"name":"reason","type":"string"}],"outputs":[]},
	{"type":"function","name":"adminEmergencyWithdraw","stateMutability":"nonpayable",
	 "inputs":[{"name":"positionId","type":"uint256"},{"name":"recipient","type":"address"},{"name":"reason","type":"string"}],"outputs":[]},
	{"type":"function","name":"pause","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"unpause","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"positions","stateMutability":"view",
	 "inputs":[{"name":"positionId","type":"uint256"}],
	 "outputs":[{"name":"owner","type":"address"},{"name":"nftContract","type":"address"},
	            {"name":"tokenId","type":"uint256"},{"name":"stakedAt","type":"uint64"},
	            {"name":"unlockAt","type":"uint64"},{"name":"active","type":"bool"}]},
	{"type":"event","name":"Staked","anonymous":false,
	 "inputs":[{"name":"positionId","type":"uint256","indexed":true},
	           {"name":"owner","type":"address","indexed":true},
	           {"name":"tokenId","type":"uint256","indexed":false}]}
]`

// EVMGateway talks to an EVM chain's staking contract through go-ethereum.
type EVMGateway struct {
	chain       models.Chain
	client      *ethclient.Client
	chainID     *big.Int
	keys        *custody.KeyService
	staking     *bind.BoundContract
	stakingAddr common.Address
	parsedERC   abi.ABI
	parsedStake abi.ABI
}

// NewEVMGateway dials the RPC endpoint and binds the staking contract.
func NewEVMGateway(ctx context.Context, chain models.Chain, rpcURL, stakingAddr string, keys *custody.KeyService) (*EVMGateway, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s rpc: %w", chain, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("fetch %s chain id: %w", chain, err)
	}

	parsedStake, err := abi.JSON(strings.NewReader(stakingABI))
	if err != nil {
		return nil, fmt.Errorf("parse staking abi: %w", err)
	}
	parsedERC, err := abi.JSON(strings.NewReader(erc721ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc721 abi: %w", err)
	}

	addr := common.HexToAddress(stakingAddr)
	staking := bind.NewBoundContract(addr, parsedStake, client, client, client)

	slog.Info("evm gateway initialized",
		"chain", chain,
		"chainId", chainID.String(),
		"stakingContract", addr.Hex(),
	)

	return &EVMGateway{
		chain:       chain,
		client:      client,
		chainID:     chainID,
		keys:        keys,
		staking:     staking,
		stakingAddr: addr,
		parsedERC:   parsedERC,
		parsedStake: parsedStake,
	}, nil
}

// Close releases the underlying RPC connection.
func (g *EVMGateway) Close() {
	g.client.Close()
}

// VerifyOwnership calls ownerOf on the NFT contract and compares against wallet.
func (g *EVMGateway) VerifyOwnership(ctx context.Context, wallet, nftContract, tokenID string) (bool, error) {
	id, err := parseTokenID(tokenID)
	if err != nil {
		return false, err
	}

	nft := bind.NewBoundContract(common.HexToAddress(nftContract), g.parsedERC, g.client, g.client, g.client)

	var out []interface{}
	if err := nft.Call(&bind.CallOpts{Context: ctx}, &out, "ownerOf", id); err != nil {
		return false, fmt.Errorf("ownerOf %s/%s on %s: %w", nftContract, tokenID, g.chain, err)
	}

	owner, ok := out[0].(common.Address)
	if !ok {
		return false, fmt.Errorf("ownerOf %s/%s on %s: unexpected output type", nftContract, tokenID, g.chain)
	}

	matches := owner == common.HexToAddress(wallet)
	slog.Debug("ownership verified",
		"chain", g.chain,
		"nftContract", nftContract,
		"tokenId", tokenID,
		"owner", owner.Hex(),
		"matches", matches,
	)
	return matches, nil
}

// Lock submits a stake transaction and waits for it to mine. The on-chain
// position id is read from the Staked event in the receipt.
func (g *EVMGateway) Lock(ctx context.Context, wallet, nftContract, tokenID string, durationCode int) (*LockResult, error) {
	id, err := parseTokenID(tokenID)
	if err != nil {
		return nil, err
	}

	opts, err := g.transactOpts(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := g.staking.Transact(opts, "stake", common.HexToAddress(nftContract), id, uint8(durationCode))
	if err != nil {
		return &LockResult{Success: false, Error: err.Error()},
			fmt.Errorf("%w: stake on %s: %v", config.ErrLockFailed, g.chain, err)
	}

	receipt, err := bind.WaitMined(ctx, g.client, tx)
	if err != nil {
		// Broadcast succeeded but mining is unconfirmed: the lock may still
		// land. Reconciliation resolves the true outcome.
		return &LockResult{Success: false, TxHash: tx.Hash().Hex(), Error: err.Error()},
			config.NewUnknownOutcomeError(fmt.Errorf("wait for stake tx %s: %w", tx.Hash().Hex(), err))
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return &LockResult{Success: false, TxHash: tx.Hash().Hex(), Error: "stake transaction reverted"},
			fmt.Errorf("%w: tx %s reverted on %s", config.ErrLockFailed, tx.Hash().Hex(), g.chain)
	}

	result := &LockResult{
		Success:         true,
		TxHash:          tx.Hash().Hex(),
		LockingHash:     tx.Hash().Hex(),
		OnChainVerified: true,
	}
	bn := receipt.BlockNumber.Int64()
	gas := int64(receipt.GasUsed)
	result.BlockNumber = &bn
	result.GasUsed = &gas

	if posID, ok := g.stakedPositionID(receipt); ok {
		result.PositionID = &posID
	}

	slog.Info("nft locked on-chain",
		"chain", g.chain,
		"nftContract", nftContract,
		"tokenId", tokenID,
		"txHash", result.TxHash,
		"positionId", result.PositionID,
	)
	return result, nil
}

// Unlock submits an unstake transaction for the on-chain position.
func (g *EVMGateway) Unlock(ctx context.Context, wallet, nftContract, tokenID, lockingHash string, positionID *int64) (*UnlockResult, error) {
	if positionID == nil {
		return nil, fmt.Errorf("%w: no on-chain position id for %s/%s", config.ErrUnlockFailed, nftContract, tokenID)
	}

	opts, err := g.transactOpts(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := g.staking.Transact(opts, "unstake", big.NewInt(*positionID))
	if err != nil {
		return &UnlockResult{Success: false, Error: err.Error()},
			fmt.Errorf("%w: unstake position %d on %s: %v", config.ErrUnlockFailed, *positionID, g.chain, err)
	}

	receipt, err := bind.WaitMined(ctx, g.client, tx)
	if err != nil {
		return &UnlockResult{Success: false, TxHash: tx.Hash().Hex(), Error: err.Error()},
			config.NewUnknownOutcomeError(fmt.Errorf("wait for unstake tx %s: %w", tx.Hash().Hex(), err))
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return &UnlockResult{Success: false, TxHash: tx.Hash().Hex(), Error: "unstake transaction reverted"},
			fmt.Errorf("%w: tx %s reverted on %s", config.ErrUnlockFailed, tx.Hash().Hex(), g.chain)
	}

	bn := receipt.BlockNumber.Int64()
	result := &UnlockResult{
		Success:       true,
		TxHash:        tx.Hash().Hex(),
		UnlockingHash: tx.Hash().Hex(),
		BlockNumber:   &bn,
	}

	slog.Info("nft unlocked on-chain",
		"chain", g.chain,
		"positionId", *positionID,
		"txHash", result.TxHash,
	)
	return result, nil
}

// AdminUnlock releases a position before its term via the contract's admin path.
func (g *EVMGateway) AdminUnlock(ctx context.Context, positionID int64, reason, adminWallet string) (*AdminResult, error) {
	return g.adminTransact(ctx, "adminUnlock", big.NewInt(positionID), reason)
}

// AdminEmergencyWithdraw transfers the NFT to recipient via the contract's admin path.
func (g *EVMGateway) AdminEmergencyWithdraw(ctx context.Context, positionID int64, recipient, reason, adminWallet string) (*AdminResult, error) {
	return g.adminTransact(ctx, "adminEmergencyWithdraw", big.NewInt(positionID), common.HexToAddress(recipient), reason)
}

// PauseContract pauses the chain's staking contract.
func (g *EVMGateway) PauseContract(ctx context.Context, adminWallet string) (*AdminResult, error) {
	return g.adminTransact(ctx, "pause")
}

// UnpauseContract resumes the chain's staking contract.
func (g *EVMGateway) UnpauseContract(ctx context.Context, adminWallet string) (*AdminResult, error) {
	return g.adminTransact(ctx, "unpause")
}

// GetPosition reads the chain's view of a position from the contract.
func (g *EVMGateway) GetPosition(ctx context.Context, positionID int64) (*ChainPosition, error) {
	var out []interface{}
	if err := g.staking.Call(&bind.CallOpts{Context: ctx}, &out, "positions", big.NewInt(positionID)); err != nil {
		return nil, fmt.Errorf("positions(%d) on %s: %w", positionID, g.chain, err)
	}
	if len(out) != 6 {
		return nil, fmt.Errorf("positions(%d) on %s: unexpected output arity %d", positionID, g.chain, len(out))
	}

	owner := out[0].(common.Address)
	nftContract := out[1].(common.Address)
	tokenID := out[2].(*big.Int)
	stakedAt := out[3].(uint64)
	unlockAt := out[4].(uint64)
	active := out[5].(bool)

	return &ChainPosition{
		Owner:       strings.ToLower(owner.Hex()),
		NFTContract: strings.ToLower(nftContract.Hex()),
		TokenID:     tokenID.String(),
		StakedAt:    time.Unix(int64(stakedAt), 0).UTC(),
		UnlockAt:    time.Unix(int64(unlockAt), 0).UTC(),
		Active:      active,
	}, nil
}

// Status reports gateway health by fetching the latest block number.
func (g *EVMGateway) Status(ctx context.Context) ChainStatus {
	block, err := g.client.BlockNumber(ctx)
	if err != nil {
		return ChainStatus{Chain: g.chain, Healthy: false, Detail: err.Error()}
	}
	return ChainStatus{Chain: g.chain, Healthy: true, Detail: fmt.Sprintf("block %d", block)}
}

func (g *EVMGateway) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(g.keys.ECDSA(), g.chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor for %s: %w", g.chain, err)
	}
	opts.Context = ctx
	return opts, nil
}

func (g *EVMGateway) adminTransact(ctx context.Context, method string, args ...interface{}) (*AdminResult, error) {
	opts, err := g.transactOpts(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := g.staking.Transact(opts, method, args...)
	if err != nil {
		return &AdminResult{Success: false, Error: err.Error()},
			fmt.Errorf("%s on %s: %w", method, g.chain, err)
	}

	receipt, err := bind.WaitMined(ctx, g.client, tx)
	if err != nil {
		return &AdminResult{Success: false, TxHash: tx.Hash().Hex(), Error: err.Error()},
			config.NewUnknownOutcomeError(fmt.Errorf("wait for %s tx %s: %w", method, tx.Hash().Hex(), err))
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return &AdminResult{Success: false, TxHash: tx.Hash().Hex(), Error: method + " transaction reverted"},
			fmt.Errorf("%s tx %s reverted on %s", method, tx.Hash().Hex(), g.chain)
	}

	slog.Info("admin chain operation confirmed",
		"chain", g.chain,
		"method", method,
		"txHash", tx.Hash().Hex(),
	)
	return &AdminResult{Success: true, TxHash: tx.Hash().Hex()}, nil
}

// stakedPositionID extracts the position id from the Staked event in a receipt.
func (g *EVMGateway) stakedPositionID(receipt *types.Receipt) (int64, bool) {
	event, ok := g.parsedStake.Events["Staked"]
	if !ok {
		return 0, false
	}
	for _, lg := range receipt.Logs {
		if lg.Address != g.stakingAddr || len(lg.Topics) < 2 {
			continue
		}
		if lg.Topics[0] == event.ID {
			return new(big.Int).SetBytes(lg.Topics[1].Bytes()).Int64(), true
		}
	}
	return 0, false
}

func parseTokenID(tokenID string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return nil, fmt.Errorf("%w: token id %q is not a decimal integer", config.ErrInvalidAddress, tokenID)
	}
	return id, nil
}
