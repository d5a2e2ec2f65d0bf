package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultDexScreenerBaseURL = "https://api.dexscreener.com"

// DexScreener prices a pair from the Dexscreener pairs API. It only knows the
// last traded price, so bid and ask are equal.
type DexScreener struct {
	Base  string
	Chain string
	Http  *http.Client

	// Pairs maps Pair.String() to an on-chain pair address, optionally "chain/address".
	Pairs map[string]string
}

type dexscreenerPairsResponse struct {
	Pairs []dexscreenerPair `json:"pairs"`
	Pair  *dexscreenerPair  `json:"pair"`
}

type dexscreenerPair struct {
	ChainID     string           `json:"chainId"`
	PairAddress string           `json:"pairAddress"`
	BaseToken   dexscreenerToken `json:"baseToken"`
	QuoteToken  dexscreenerToken `json:"quoteToken"`
	PriceUsd    string           `json:"priceUsd"`
	PriceNative string           `json:"priceNative"`
}

type dexscreenerToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

func (r *dexscreenerPairsResponse) firstPair() (*dexscreenerPair, bool) {
	if len(r.Pairs) > 0 {
		return &r.Pairs[0], true
	}
	if r.Pair != nil {
		return r.Pair, true
	}
	return nil, false
}

// NewDexScreener builds the venue. chain is used for pair addresses without one.
func NewDexScreener(base, chain string, pairs map[string]string) *DexScreener {
	if base == "" {
		base = defaultDexScreenerBaseURL
	}
	if chain == "" {
		chain = "solana"
	}
	return &DexScreener{
		Base:  strings.TrimSuffix(base, "/"),
		Chain: strings.ToLower(chain),
		Http:  &http.Client{Timeout: 10 * time.Second},
		Pairs: pairs,
	}
}

func (d *DexScreener) Quote(ctx context.Context, pair Pair) (Quote, error) {
	const venue = "dexscreener"
	chain, address, err := d.target(pair)
	if err != nil {
		return Quote{}, venueError(venue, pair, err)
	}
	url := fmt.Sprintf("%s/latest/dex/pairs/%s/%s", d.Base, chain, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Quote{}, venueError(venue, pair, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", "solana-rust-arb/1.0")
	resp, err := d.Http.Do(req)
	if err != nil {
		return Quote{}, venueError(venue, pair, fmt.Errorf("http do: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Quote{}, venueError(venue, pair, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var payload dexscreenerPairsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Quote{}, venueError(venue, pair, fmt.Errorf("decode response: %w", err))
	}
	p, ok := payload.firstPair()
	if !ok {
		return Quote{}, venueError(venue, pair, fmt.Errorf("%w: no pair data returned", ErrNoQuote))
	}
	price, err := parseDexScreenerPrice(p)
	if err != nil {
		return Quote{}, venueError(venue, pair, err)
	}
	return venueQuote(venue, pair, price, price, time.Now().UTC())
}

func (d *DexScreener) target(pair Pair) (string, string, error) {
	raw, ok := d.Pairs[pair.String()]
	if !ok || strings.TrimSpace(raw) == "" {
		return "", "", fmt.Errorf("%w: no dexscreener pair configured for %s", ErrNoQuote, pair)
	}
	chain, address := d.Chain, strings.TrimSpace(raw)
	if parts := strings.SplitN(address, "/", 2); len(parts) == 2 {
		if parts[0] != "" {
			chain = strings.ToLower(strings.TrimSpace(parts[0]))
		}
		address = strings.TrimSpace(parts[1])
	}
	if chain == "" || address == "" {
		return "", "", fmt.Errorf("dexscreener pair %q missing chain or address", raw)
	}
	return chain, address, nil
}

// parseDexScreenerPrice prefers priceNative, the price in the pair's quote token.
func parseDexScreenerPrice(pair *dexscreenerPair) (decimal.Decimal, error) {
	for _, raw := range []string{pair.PriceNative, pair.PriceUsd} {
		if raw == "" {
			continue
		}
		if px, err := decimal.NewFromString(raw); err == nil && px.IsPositive() {
			return px, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: pair missing price", ErrNoQuote)
}
