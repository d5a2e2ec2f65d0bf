// Package wallet loads the signing key used to authorize trade requests.
package wallet

import (
	"errors"
	"fmt"
	"os"
	"strings"

	solana "github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"

	"github.com/Linkan333/solana-rust-arb/internal/config"
)

// DefaultEnv is read when the config names no variable.
const DefaultEnv = "SOLANA_PRIVATE_KEY_BASE58"

// ErrNotConfigured means neither the config nor the environment holds a key.
var ErrNotConfigured = errors.New("wallet: no private key configured")

// LoadPrivateKeyFromEnv reads a base58 key from name, loading .env first.
func LoadPrivateKeyFromEnv(name string) (solana.PrivateKey, error) {
	if name == "" {
		name = DefaultEnv
	}
	_ = godotenv.Load() // best-effort
	b58 := strings.TrimSpace(os.Getenv(name))
	if b58 == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNotConfigured, name)
	}
	key, err := solana.PrivateKeyFromBase58(b58)
	if err != nil {
		return nil, fmt.Errorf("wallet: parse %s: %w", name, err)
	}
	return key, nil
}

// Load prefers an inline key and falls back to the configured env variable.
func Load(cfg config.Wallet) (solana.PrivateKey, error) {
	if inline := strings.TrimSpace(cfg.PrivateKeyBase58); inline != "" {
		key, err := solana.PrivateKeyFromBase58(inline)
		if err != nil {
			return nil, fmt.Errorf("wallet: parse inline key: %w", err)
		}
		return key, nil
	}
	return LoadPrivateKeyFromEnv(cfg.PrivateKeyEnv)
}
