// Package oracle reads point-in-time best bid and ask prices from trading venues.
// Quotes may be stale; callers decide how fresh is fresh enough.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/Linkan333/solana-rust-arb/internal/metrics"
	"github.com/Linkan333/solana-rust-arb/internal/program"
)

// ErrNoQuote means a venue has no price for the pair.
var ErrNoQuote = errors.New("no quote available")

// Pair identifies a market by ticker symbols and, for on-chain venues, mints.
type Pair struct {
	Base      string           `yaml:"base"`
	Quote     string           `yaml:"quote"`
	BaseMint  solana.PublicKey `yaml:"base_mint"`
	QuoteMint solana.PublicKey `yaml:"quote_mint"`
}

func (p Pair) String() string { return p.Base + "/" + p.Quote }

// Quote is the best bid and ask of one venue, in quote per base.
type Quote struct {
	Venue string
	Pair  Pair
	Bid   decimal.Decimal
	Ask   decimal.Decimal
	AsOf  time.Time
}

// Mid is the midpoint of bid and ask.
func (q Quote) Mid() decimal.Decimal {
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

// PriceOracle is implemented by every venue.
type PriceOracle interface {
	Quote(ctx context.Context, pair Pair) (Quote, error)
}

// venueError classifies a venue failure as external to the program.
func venueError(venue string, pair Pair, err error) error {
	metrics.OracleQuotesTotal.WithLabelValues(venue, "error").Inc()
	return &program.Error{Kind: program.ErrExternalVenue, Op: "quote " + venue, Msg: pair.String(), Err: err}
}

func venueQuote(venue string, pair Pair, bid, ask decimal.Decimal, asOf time.Time) (Quote, error) {
	if !bid.IsPositive() || !ask.IsPositive() {
		return Quote{}, venueError(venue, pair, fmt.Errorf("%w: non-positive price bid=%s ask=%s", ErrNoQuote, bid, ask))
	}
	metrics.OracleQuotesTotal.WithLabelValues(venue, "ok").Inc()
	return Quote{Venue: venue, Pair: pair, Bid: bid, Ask: ask, AsOf: asOf}, nil
}
