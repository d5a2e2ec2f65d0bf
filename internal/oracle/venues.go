package oracle

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Linkan333/solana-rust-arb/internal/config"
)

// Venues builds every venue enabled in cfg for pair. A non-nil BinanceBook
// only answers once the caller runs it.
func Venues(cfg config.Oracle, pair Pair, log zerolog.Logger) ([]PriceOracle, *BinanceBook, error) {
	var (
		venues  []PriceOracle
		binance *BinanceBook
	)
	if cfg.Static != nil {
		bid, err := decimal.NewFromString(cfg.Static.Bid)
		if err != nil {
			return nil, nil, fmt.Errorf("oracle.static.bid: %w", err)
		}
		ask, err := decimal.NewFromString(cfg.Static.Ask)
		if err != nil {
			return nil, nil, fmt.Errorf("oracle.static.ask: %w", err)
		}
		static := NewStatic("static")
		static.Set(pair, bid, ask)
		venues = append(venues, static)
	}
	if cfg.JupiterBase != "" {
		var decimals DecimalsSource
		if cfg.RpcURL != "" {
			decimals = NewRPCDecimals(cfg.RpcURL, cfg.Commitment)
		}
		venues = append(venues, NewJupiter(cfg.JupiterBase, cfg.ProbeAmount, cfg.SlippageBps, decimals))
	}
	if cfg.DexScreener.Enabled {
		venues = append(venues, NewDexScreener(cfg.DexScreener.BaseURL, cfg.DexScreener.DefaultChain, cfg.DexScreener.Pairs))
	}
	if cfg.Binance.Enabled {
		binance = NewBinanceBook(cfg.Binance.StreamURL, []Pair{pair}, log)
		venues = append(venues, binance)
	}
	if len(venues) == 0 {
		return nil, nil, errors.New("oracle: no price venue configured")
	}
	return venues, binance, nil
}
