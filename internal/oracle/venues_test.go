package oracle

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Linkan333/solana-rust-arb/internal/config"
)

func TestVenuesFromConfig(t *testing.T) {
	cfg := config.Oracle{
		JupiterBase: "http://127.0.0.1:1",
		Static:      &config.StaticQuote{Bid: "150.10", Ask: "150.20"},
		DexScreener: config.DexScreener{Enabled: true, Pairs: map[string]string{"SOL/USDC": "solana/abc"}},
		Binance:     config.Binance{Enabled: true},
	}
	venues, binance, err := Venues(cfg, solUSDC, zerolog.Nop())
	if err != nil {
		t.Fatalf("Venues: %v", err)
	}
	if len(venues) != 4 {
		t.Fatalf("expected 4 venues, got %d", len(venues))
	}
	if binance == nil {
		t.Fatalf("expected a binance book when enabled")
	}

	q, err := venues[0].Quote(context.Background(), solUSDC)
	if err != nil {
		t.Fatalf("static quote: %v", err)
	}
	if q.Bid.String() != "150.1" || q.Ask.String() != "150.2" {
		t.Fatalf("unexpected static quote %s/%s", q.Bid, q.Ask)
	}
}

func TestVenuesRequiresOne(t *testing.T) {
	if _, _, err := Venues(config.Oracle{}, solUSDC, zerolog.Nop()); err == nil {
		t.Fatalf("expected error with no venues")
	}
}

func TestVenuesRejectsBadStaticPrice(t *testing.T) {
	cfg := config.Oracle{Static: &config.StaticQuote{Bid: "abc", Ask: "1"}}
	if _, _, err := Venues(cfg, solUSDC, zerolog.Nop()); err == nil {
		t.Fatalf("expected parse error")
	}
}
