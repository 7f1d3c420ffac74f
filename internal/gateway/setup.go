package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/custody"
	"github.com/Fantasim/nftstake/internal/models"
)

// Setup builds the gateway router from configuration. Chains without the
// required endpoints are left unconfigured and simply unsupported at runtime.
func Setup(ctx context.Context, cfg *config.Config, keys *custody.KeyService) (*Router, error) {
	gateways := make(map[models.Chain]Gateway)

	if cfg.EthereumRPCURL != "" {
		if cfg.EthereumStakingContract == "" {
			return nil, fmt.Errorf("%w: ethereum rpc configured without staking contract address", config.ErrInvalidConfig)
		}
		gw, err := NewEVMGateway(ctx, models.ChainEthereum, cfg.EthereumRPCURL, cfg.EthereumStakingContract, keys)
		if err != nil {
			return nil, err
		}
		gateways[models.ChainEthereum] = gw
	}

	if cfg.BSCRPCURL != "" {
		if cfg.BSCStakingContract == "" {
			return nil, fmt.Errorf("%w: bsc rpc configured without staking contract address", config.ErrInvalidConfig)
		}
		gw, err := NewEVMGateway(ctx, models.ChainBSC, cfg.BSCRPCURL, cfg.BSCStakingContract, keys)
		if err != nil {
			return nil, err
		}
		gateways[models.ChainBSC] = gw
	}

	if cfg.SolanaIndexerURL != "" {
		verifier := NewIndexerVerifier(models.ChainSolana, cfg.SolanaIndexerURL)
		gateways[models.ChainSolana] = NewCustodialGateway(models.ChainSolana, keys, verifier)
	}

	if cfg.BitcoinIndexerURL != "" {
		verifier := NewIndexerVerifier(models.ChainBitcoin, cfg.BitcoinIndexerURL)
		gateways[models.ChainBitcoin] = NewCustodialGateway(models.ChainBitcoin, keys, verifier)
	}

	router := NewRouter(gateways)
	slog.Info("chain gateways configured", "chains", router.SupportedChains())
	return router, nil
}
