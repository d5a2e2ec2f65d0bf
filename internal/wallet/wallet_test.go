package wallet

import (
	"errors"
	"testing"

	solana "github.com/gagliardetto/solana-go"

	"github.com/Linkan333/solana-rust-arb/internal/config"
)

func TestLoadPrivateKeyFromEnv(t *testing.T) {
	w := solana.NewWallet()
	t.Setenv("FLASHTRADE_TEST_KEY", w.PrivateKey.String())

	key, err := LoadPrivateKeyFromEnv("FLASHTRADE_TEST_KEY")
	if err != nil {
		t.Fatalf("expected key, got error: %v", err)
	}
	if !key.PublicKey().Equals(w.PublicKey()) {
		t.Fatalf("expected public key %s, got %s", w.PublicKey(), key.PublicKey())
	}
}

func TestLoadPrivateKeyFromEnvMissing(t *testing.T) {
	t.Setenv("FLASHTRADE_TEST_KEY", "")
	_, err := LoadPrivateKeyFromEnv("FLASHTRADE_TEST_KEY")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestLoadPrefersInlineKey(t *testing.T) {
	inline := solana.NewWallet()
	env := solana.NewWallet()
	t.Setenv("FLASHTRADE_TEST_KEY", env.PrivateKey.String())

	key, err := Load(config.Wallet{PrivateKeyBase58: inline.PrivateKey.String(), PrivateKeyEnv: "FLASHTRADE_TEST_KEY"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !key.PublicKey().Equals(inline.PublicKey()) {
		t.Fatalf("inline key should win")
	}

	key, err = Load(config.Wallet{PrivateKeyEnv: "FLASHTRADE_TEST_KEY"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !key.PublicKey().Equals(env.PublicKey()) {
		t.Fatalf("expected env key")
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	if _, err := Load(config.Wallet{PrivateKeyBase58: "not-a-key"}); err == nil {
		t.Fatalf("expected parse error")
	}
}
