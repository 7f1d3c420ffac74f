package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/mr-tron/base58"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/models"
)

// evmAddressRegex matches a valid EVM hex address (0x + 40 hex chars).
var evmAddressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Address validates that addr is a well-formed address for the given chain.
func Address(chain models.Chain, addr string) error {
	switch chain {
	case models.ChainEthereum, models.ChainBSC:
		return validateEVM(chain, addr)
	case models.ChainSolana:
		return validateSolana(addr)
	case models.ChainBitcoin:
		return validateBitcoin(addr)
	default:
		return fmt.Errorf("%w: %q", config.ErrInvalidChain, chain)
	}
}

// Normalize returns the canonical storage form of an address for a chain.
// EVM addresses are lowercased; other chains are case-sensitive.
func Normalize(chain models.Chain, addr string) string {
	switch chain {
	case models.ChainEthereum, models.ChainBSC:
		return strings.ToLower(addr)
	default:
		return addr
	}
}

// validateEVM checks that addr matches the 0x + 40 hex chars format.
func validateEVM(chain models.Chain, addr string) error {
	if !evmAddressRegex.MatchString(addr) {
		return fmt.Errorf("%w: %s address %q must match 0x + 40 hex characters",
			config.ErrInvalidAddress, chain, addr)
	}
	return nil
}

// validateSolana decodes a base58 address and verifies it is exactly 32 bytes
// (ed25519 public key).
func validateSolana(addr string) error {
	decoded, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("%w: solana address %q: base58 decode failed: %v",
			config.ErrInvalidAddress, addr, err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("%w: solana address %q decoded to %d bytes, expected 32",
			config.ErrInvalidAddress, addr, len(decoded))
	}
	return nil
}

// validateBitcoin uses btcutil.DecodeAddress to fully validate a bitcoin
// address including checksum verification for bech32 addresses.
func validateBitcoin(addr string) error {
	params := &chaincfg.MainNetParams

	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return fmt.Errorf("%w: bitcoin address %q: %v", config.ErrInvalidAddress, addr, err)
	}

	if !decoded.IsForNet(params) {
		return fmt.Errorf("%w: bitcoin address %q is not a mainnet address",
			config.ErrInvalidAddress, addr)
	}

	return nil
}
