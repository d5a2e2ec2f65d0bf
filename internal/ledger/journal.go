package ledger

import (
	"sync"

	solana "github.com/gagliardetto/solana-go"
)

// Record is one event emitted by a committed transaction.
type Record struct {
	Slot      uint64           `json:"slot"`
	Signature solana.Signature `json:"signature"`
	Sequence  uint64           `json:"sequence"`
	Name      string           `json:"name"`
	Payload   any              `json:"payload"`
}

// Receipt describes a committed transaction.
type Receipt struct {
	Signature solana.Signature `json:"signature"`
	Slot      uint64           `json:"slot"`
	Events    []Record         `json:"events"`
	Logs      []string         `json:"logs"`
}

// Sink observes committed transactions. Deliver is called in commit order
// while the ledger is locked, so implementations must not block.
type Sink interface {
	Deliver(Receipt)
}

// Journal keeps the most recent committed receipts in memory for quick
// inspection. Older receipts are overwritten once the journal is full; the
// durable history lives in the receipt store.
type Journal struct {
	mu    sync.Mutex
	ring  []Receipt
	start int
	size  int
}

// NewJournal creates a journal holding at most capacity receipts.
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = 1
	}
	return &Journal{ring: make([]Receipt, capacity)}
}

// Deliver records a receipt, evicting the oldest when the journal is full.
func (j *Journal) Deliver(r Receipt) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.size < len(j.ring) {
		j.ring[(j.start+j.size)%len(j.ring)] = r
		j.size++
		return
	}
	j.ring[j.start] = r
	j.start = (j.start + 1) % len(j.ring)
}

// Snapshot returns a copy of the retained receipts, oldest first.
func (j *Journal) Snapshot() []Receipt {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.ordered()
}

// Events flattens the retained receipts into their event records, in commit order.
func (j *Journal) Events() []Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []Record
	for _, r := range j.ordered() {
		out = append(out, r.Events...)
	}
	return out
}

// Reset clears all retained receipts.
func (j *Journal) Reset() {
	j.mu.Lock()
	clear(j.ring)
	j.start, j.size = 0, 0
	j.mu.Unlock()
}

func (j *Journal) ordered() []Receipt {
	out := make([]Receipt, j.size)
	for i := range out {
		out[i] = j.ring[(j.start+i)%len(j.ring)]
	}
	return out
}
