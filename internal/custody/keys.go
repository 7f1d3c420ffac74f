package custody

import (
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"

	"github.com/Fantasim/nftstake/internal/config"
)

// KeyService holds the custody signing key and the derived admin wallet
// address. The key signs custodial lock receipts and authorizes admin
// gateway operations.
type KeyService struct {
	priv         *btcec.PrivateKey
	adminAddress string
}

// NewKeyServiceFromFile loads the custody mnemonic from a file and derives
// the service key.
func NewKeyServiceFromFile(path string) (*KeyService, error) {
	if path == "" {
		return nil, config.ErrMnemonicFileNotSet
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mnemonic file %q: %w", path, err)
	}

	return NewKeyService(strings.TrimSpace(string(raw)))
}

// NewKeyService derives the custody key from a BIP-39 mnemonic at
// m/44'/60'/0'/0/0.
func NewKeyService(mnemonic string) (*KeyService, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, config.ErrInvalidMnemonic
	}

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidMnemonic, err)
	}

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("%w: master key: %v", config.ErrKeyDerivation, err)
	}

	// m/44'/60'/0'/0/0
	path := []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + 60,
		hdkeychain.HardenedKeyStart + 0,
		0,
		0,
	}
	key := master
	for _, index := range path {
		key, err = key.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("%w: derive index %d: %v", config.ErrKeyDerivation, index, err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %v", config.ErrKeyDerivation, err)
	}

	addr := crypto.PubkeyToAddress(priv.ToECDSA().PublicKey).Hex()

	slog.Info("custody key service initialized", "adminAddress", addr)

	return &KeyService{priv: priv, adminAddress: addr}, nil
}

// AdminAddress returns the EVM-format admin wallet address derived from the
// custody key. Recorded as the acting wallet on admin gateway operations.
func (k *KeyService) AdminAddress() string {
	return k.adminAddress
}

// ECDSA returns the custody key in stdlib ECDSA form for EVM transaction
// signing.
func (k *KeyService) ECDSA() *ecdsa.PrivateKey {
	return k.priv.ToECDSA()
}

// SignReceipt signs the double-SHA256 digest of payload with the custody key
// and returns a compact signature. Used to make custodial lock receipts
// verifiable offline.
func (k *KeyService) SignReceipt(payload []byte) []byte {
	digest := chainhash.DoubleHashB(payload)
	return btcecdsa.SignCompact(k.priv, digest, true)
}

// VerifyReceipt checks that sig is a valid custody signature over payload.
func (k *KeyService) VerifyReceipt(payload, sig []byte) bool {
	digest := chainhash.DoubleHashB(payload)
	pub, _, err := btcecdsa.RecoverCompact(sig, digest)
	if err != nil {
		return false
	}
	return pub.IsEqual(k.priv.PubKey())
}
