package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultJupiterBaseURL = "https://quote-api.jup.ag"

// Jupiter prices a pair from Jupiter swap routes: the bid is what selling Probe
// base returns, the ask is what buying Probe base costs.
type Jupiter struct {
	Base        string
	Http        *http.Client
	Probe       uint64
	SlippageBps int
	Decimals    DecimalsSource
}

// jupiterQuote is the subset of the v6 quote response the venue reads.
type jupiterQuote struct {
	InputMint      string `json:"inputMint"`
	OutputMint     string `json:"outputMint"`
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	OtherAmount    string `json:"otherAmountThreshold"`
	SwapMode       string `json:"swapMode"`
	SlippageBps    int    `json:"slippageBps"`
	PriceImpactPct string `json:"priceImpactPct"`
}

// NewJupiter builds a Jupiter venue. probe is in the base mint's smallest units.
func NewJupiter(base string, probe uint64, slippageBps int, decimals DecimalsSource) *Jupiter {
	if base == "" {
		base = defaultJupiterBaseURL
	}
	if probe == 0 {
		probe = 1_000_000
	}
	return &Jupiter{
		Base:        strings.TrimSuffix(base, "/"),
		Http:        &http.Client{Timeout: 8 * time.Second},
		Probe:       probe,
		SlippageBps: slippageBps,
		Decimals:    decimals,
	}
}

func (j *Jupiter) Quote(ctx context.Context, pair Pair) (Quote, error) {
	const venue = "jupiter"
	if pair.BaseMint.IsZero() || pair.QuoteMint.IsZero() {
		return Quote{}, venueError(venue, pair, fmt.Errorf("pair %s has no mints", pair))
	}
	sell, err := j.getQuote(ctx, pair.BaseMint.String(), pair.QuoteMint.String(), j.Probe, "ExactIn")
	if err != nil {
		return Quote{}, venueError(venue, pair, err)
	}
	buy, err := j.getQuote(ctx, pair.QuoteMint.String(), pair.BaseMint.String(), j.Probe, "ExactOut")
	if err != nil {
		return Quote{}, venueError(venue, pair, err)
	}
	received, err := decimal.NewFromString(sell.OutAmount)
	if err != nil {
		return Quote{}, venueError(venue, pair, fmt.Errorf("parse outAmount: %w", err))
	}
	paid, err := decimal.NewFromString(buy.InAmount)
	if err != nil {
		return Quote{}, venueError(venue, pair, fmt.Errorf("parse inAmount: %w", err))
	}

	probe := decimal.NewFromBigInt(new(big.Int).SetUint64(j.Probe), 0)
	bid := received.Div(probe)
	ask := paid.Div(probe)
	if j.Decimals != nil {
		scale, err := j.scale(ctx, pair)
		if err != nil {
			return Quote{}, venueError(venue, pair, err)
		}
		bid, ask = bid.Mul(scale), ask.Mul(scale)
	}
	return venueQuote(venue, pair, bid, ask, time.Now().UTC())
}

// scale converts a raw-unit price into a price between whole tokens.
func (j *Jupiter) scale(ctx context.Context, pair Pair) (decimal.Decimal, error) {
	baseDec, err := j.Decimals.Decimals(ctx, pair.BaseMint)
	if err != nil {
		return decimal.Zero, fmt.Errorf("base decimals: %w", err)
	}
	quoteDec, err := j.Decimals.Decimals(ctx, pair.QuoteMint)
	if err != nil {
		return decimal.Zero, fmt.Errorf("quote decimals: %w", err)
	}
	return decimal.New(1, int32(baseDec)-int32(quoteDec)), nil
}

// amount is in smallest units (lamports for SOL; token decimals apply).
func (j *Jupiter) getQuote(ctx context.Context, inputMint, outputMint string, amount uint64, mode string) (*jupiterQuote, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("slippageBps", strconv.Itoa(j.SlippageBps))
	q.Set("swapMode", mode)
	q.Set("onlyDirectRoutes", "false")
	u := j.Base + "/v6/quote?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := j.Http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jupiter quote status %d", resp.StatusCode)
	}
	var out jupiterQuote
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
