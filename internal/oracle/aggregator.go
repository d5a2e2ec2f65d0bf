package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/Linkan333/solana-rust-arb/internal/program"
)

// Aggregator asks every venue concurrently and combines the best bid with the
// best ask. It fails only when no venue answers.
type Aggregator struct {
	venues  []PriceOracle
	timeout time.Duration
}

// NewAggregator combines venues. timeout bounds each round; zero means none.
func NewAggregator(timeout time.Duration, venues ...PriceOracle) *Aggregator {
	return &Aggregator{venues: venues, timeout: timeout}
}

func (a *Aggregator) Quote(ctx context.Context, pair Pair) (Quote, error) {
	if len(a.venues) == 0 {
		return Quote{}, &program.Error{Kind: program.ErrExternalVenue, Op: "quote aggregate", Msg: "no venues configured"}
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	quotes := make([]Quote, len(a.venues))
	errs := make([]error, len(a.venues))
	var g errgroup.Group
	for i, venue := range a.venues {
		i, venue := i, venue
		g.Go(func() error {
			quotes[i], errs[i] = venue.Quote(ctx, pair)
			return nil
		})
	}
	_ = g.Wait()

	var (
		best               Quote
		bidVenue, askVenue string
		found              bool
	)
	for i, q := range quotes {
		if errs[i] != nil {
			continue
		}
		if !found {
			best, bidVenue, askVenue, found = q, q.Venue, q.Venue, true
			continue
		}
		if q.Bid.GreaterThan(best.Bid) {
			best.Bid, bidVenue = q.Bid, q.Venue
		}
		if q.Ask.LessThan(best.Ask) {
			best.Ask, askVenue = q.Ask, q.Venue
		}
		if q.AsOf.Before(best.AsOf) {
			best.AsOf = q.AsOf
		}
	}
	if !found {
		err := multierr.Combine(errs...)
		return Quote{}, &program.Error{Kind: program.ErrExternalVenue, Op: "quote aggregate", Msg: pair.String(), Err: errors.Join(ErrNoQuote, err)}
	}
	best.Pair = pair
	best.Venue = venueLabel(bidVenue, askVenue)
	return best, nil
}

func venueLabel(bid, ask string) string {
	if bid == ask {
		return bid
	}
	return fmt.Sprintf("%s|%s", strings.TrimSpace(bid), strings.TrimSpace(ask))
}
