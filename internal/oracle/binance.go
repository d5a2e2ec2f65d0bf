package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const defaultBinanceStreamURL = "wss://stream.binance.com:9443/stream"

// BinanceBook caches best bid and ask from Binance book-ticker streams. Run keeps
// the stream connected; Quote answers from the cache.
type BinanceBook struct {
	url     string
	symbols []string
	log     zerolog.Logger

	mu    sync.RWMutex
	books map[string]Quote
}

type binanceEnvelope struct {
	Stream string            `json:"stream"`
	Data   binanceBookTicker `json:"data"`
}

type binanceBookTicker struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

// NewBinanceBook tracks the given pairs. url may be empty for the public endpoint.
func NewBinanceBook(url string, pairs []Pair, log zerolog.Logger) *BinanceBook {
	if url == "" {
		url = defaultBinanceStreamURL
	}
	symbols := make([]string, 0, len(pairs))
	for _, p := range pairs {
		symbols = append(symbols, binanceSymbol(p))
	}
	return &BinanceBook{
		url:     url,
		symbols: symbols,
		log:     log.With().Str("venue", "binance").Logger(),
		books:   make(map[string]Quote),
	}
}

func binanceSymbol(p Pair) string {
	return strings.ToUpper(p.Base + p.Quote)
}

func (b *BinanceBook) Quote(ctx context.Context, pair Pair) (Quote, error) {
	const venue = "binance"
	if err := ctx.Err(); err != nil {
		return Quote{}, venueError(venue, pair, err)
	}
	b.mu.RLock()
	q, ok := b.books[binanceSymbol(pair)]
	b.mu.RUnlock()
	if !ok {
		return Quote{}, venueError(venue, pair, fmt.Errorf("%w: no book ticker seen for %s", ErrNoQuote, binanceSymbol(pair)))
	}
	return venueQuote(venue, pair, q.Bid, q.Ask, q.AsOf)
}

// Run streams book tickers until ctx is canceled, reconnecting with backoff.
func (b *BinanceBook) Run(ctx context.Context) error {
	if len(b.symbols) == 0 {
		return fmt.Errorf("binance book requires at least one pair")
	}
	streams := make([]string, len(b.symbols))
	for i, sym := range b.symbols {
		streams[i] = strings.ToLower(sym) + "@bookTicker"
	}
	url := fmt.Sprintf("%s?streams=%s", b.url, strings.Join(streams, "/"))
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := b.consume(ctx, url); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.log.Warn().Err(err).Msg("binance book disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

func (b *BinanceBook) consume(ctx context.Context, url string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	b.log.Info().Strs("symbols", b.symbols).Msg("connected book ticker stream")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			case <-stop:
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		var env binanceEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			b.log.Warn().Err(err).Msg("failed to decode binance message")
			continue
		}
		if err := b.apply(env); err != nil {
			b.log.Warn().Err(err).Str("stream", env.Stream).Msg("invalid book ticker")
		}
	}
}

func (b *BinanceBook) apply(env binanceEnvelope) error {
	symbol := strings.ToUpper(env.Data.Symbol)
	if symbol == "" {
		symbol = parseBinanceSymbol(env.Stream)
	}
	bid, err := decimal.NewFromString(env.Data.BidPrice)
	if err != nil {
		return fmt.Errorf("bid: %w", err)
	}
	ask, err := decimal.NewFromString(env.Data.AskPrice)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	b.mu.Lock()
	b.books[symbol] = Quote{Venue: "binance", Bid: bid, Ask: ask, AsOf: time.Now().UTC()}
	b.mu.Unlock()
	return nil
}

func parseBinanceSymbol(stream string) string {
	parts := strings.Split(stream, "@")
	if len(parts) == 0 || parts[0] == "" {
		return strings.ToUpper(stream)
	}
	return strings.ToUpper(parts[0])
}
