// Package events fans committed ledger events out to observers: in-process
// subscribers, a JSONL file, websocket clients and a Redis stream.
package events

import (
	"encoding/json"
	"sync"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/Linkan333/solana-rust-arb/internal/ledger"
	"github.com/Linkan333/solana-rust-arb/internal/metrics"
)

// Envelope is the wire form of a committed event.
type Envelope struct {
	Slot      uint64           `json:"slot"`
	Signature solana.Signature `json:"signature"`
	Sequence  uint64           `json:"sequence"`
	Name      string           `json:"name"`
	Payload   json.RawMessage  `json:"payload"`
}

// Encode renders rec as a JSON envelope.
func Encode(rec ledger.Record) ([]byte, error) {
	return json.Marshal(rec)
}

// Hub is a ledger.Sink that copies every committed record to its subscribers.
// Delivery never blocks: a subscriber whose buffer is full misses the record.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	log    zerolog.Logger
}

// Subscription receives records on C until Close.
type Subscription struct {
	C <-chan ledger.Record

	ch    chan ledger.Record
	hub   *Hub
	names map[string]bool
	once  sync.Once
}

// NewHub creates a hub whose subscriptions buffer up to buffer records.
func NewHub(buffer int, log zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		log:    log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a subscriber for the named events, or all events when
// names is empty. The caller must Close the subscription.
func (h *Hub) Subscribe(names ...string) *Subscription {
	ch := make(chan ledger.Record, h.buffer)
	sub := &Subscription{C: ch, ch: ch, hub: h}
	if len(names) > 0 {
		sub.names = make(map[string]bool, len(names))
		for _, n := range names {
			sub.names[n] = true
		}
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Close unregisters the subscription and closes C. It is safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		close(s.ch)
		s.hub.mu.Unlock()
	})
}

func (s *Subscription) wants(name string) bool {
	return s.names == nil || s.names[name]
}

// Deliver implements ledger.Sink.
func (h *Hub) Deliver(receipt ledger.Receipt) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, rec := range receipt.Events {
		for sub := range h.subs {
			if !sub.wants(rec.Name) {
				continue
			}
			select {
			case sub.ch <- rec:
			default:
				metrics.EventsDroppedTotal.WithLabelValues("hub").Inc()
				h.log.Warn().Str("event", rec.Name).Uint64("sequence", rec.Sequence).Msg("dropping event for slow subscriber")
			}
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every open subscription.
func (h *Hub) Close() {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()
	for _, sub := range subs {
		sub.Close()
	}
}
