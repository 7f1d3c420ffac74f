package validate

import (
	"errors"
	"testing"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/models"
)

func TestAddress_EVM(t *testing.T) {
	tests := []struct {
		name    string
		chain   models.Chain
		addr    string
		wantErr bool
	}{
		{"valid ethereum", models.ChainEthereum, "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B", false},
		{"valid bsc", models.ChainBSC, "0x0000000000000000000000000000000000000001", false},
		{"missing prefix", models.ChainEthereum, "Ab5801a7D398351b8bE11C439e05C5B3259aeC9B", true},
		{"too short", models.ChainEthereum, "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9", true},
		{"too long", models.ChainEthereum, "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B1", true},
		{"non-hex chars", models.ChainBSC, "0xZZ5801a7D398351b8bE11C439e05C5B3259aeC9B", true},
		{"empty", models.ChainEthereum, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Address(tt.chain, tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("Address(%s, %q) error = %v, wantErr = %t", tt.chain, tt.addr, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, config.ErrInvalidAddress) {
				t.Errorf("error %v does not wrap ErrInvalidAddress", err)
			}
		})
	}
}

func TestAddress_Solana(t *testing.T) {
	// System program address, a canonical 32-byte base58 value.
	if err := Address(models.ChainSolana, "11111111111111111111111111111111"); err != nil {
		t.Errorf("valid solana address rejected: %v", err)
	}

	if err := Address(models.ChainSolana, "not-base58-0OIl"); err == nil {
		t.Error("invalid base58 accepted")
	}
	// Valid base58 but wrong decoded length.
	if err := Address(models.ChainSolana, "abc"); err == nil {
		t.Error("short solana address accepted")
	}
}

func TestAddress_Bitcoin(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"p2pkh", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", false},
		{"p2sh", "3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy", false},
		{"bech32", "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", false},
		{"bad checksum", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNb", true},
		{"garbage", "definitely-not-an-address", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Address(models.ChainBitcoin, tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("Address(bitcoin, %q) error = %v, wantErr = %t", tt.addr, err, tt.wantErr)
			}
		})
	}
}

func TestAddress_UnknownChain(t *testing.T) {
	err := Address(models.Chain("dogecoin"), "whatever")
	if !errors.Is(err, config.ErrInvalidChain) {
		t.Fatalf("error = %v, want ErrInvalidChain", err)
	}
}

func TestNormalize(t *testing.T) {
	mixed := "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
	if got := Normalize(models.ChainEthereum, mixed); got != "0xab5801a7d398351b8be11c439e05c5b3259aec9b" {
		t.Errorf("Normalize(ethereum) = %q", got)
	}

	sol := "4Nd1mYQZkzoZDpRzNc3q5U9XBEm2jRxWzMd1mYQZkzoZ"
	if got := Normalize(models.ChainSolana, sol); got != sol {
		t.Errorf("Normalize(solana) changed a case-sensitive address: %q", got)
	}
}
