package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Static serves fixed prices. It backs offline runs and tests.
type Static struct {
	Name string

	mu     sync.RWMutex
	prices map[string][2]decimal.Decimal
}

// NewStatic returns an empty static venue.
func NewStatic(name string) *Static {
	if name == "" {
		name = "static"
	}
	return &Static{Name: name, prices: make(map[string][2]decimal.Decimal)}
}

// Set replaces the bid and ask for pair.
func (s *Static) Set(pair Pair, bid, ask decimal.Decimal) {
	s.mu.Lock()
	s.prices[pair.String()] = [2]decimal.Decimal{bid, ask}
	s.mu.Unlock()
}

func (s *Static) Quote(ctx context.Context, pair Pair) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, venueError(s.Name, pair, err)
	}
	s.mu.RLock()
	px, ok := s.prices[pair.String()]
	s.mu.RUnlock()
	if !ok {
		return Quote{}, venueError(s.Name, pair, fmt.Errorf("%w for %s", ErrNoQuote, pair))
	}
	return venueQuote(s.Name, pair, px[0], px[1], time.Now().UTC())
}
