package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/Linkan333/solana-rust-arb/internal/config"
	"github.com/Linkan333/solana-rust-arb/internal/ledger"
)

func newMemoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLite(config.Store{InMemory: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testReceipt(t *testing.T, slot, firstSeq uint64) ledger.Receipt {
	t.Helper()
	key := solana.NewWallet().PrivateKey
	sig, err := key.Sign([]byte("receipt"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return ledger.Receipt{
		Signature: sig,
		Slot:      slot,
		Logs:      []string{"Starting transaction", "Transaction completed."},
		Events: []ledger.Record{
			{Slot: slot, Signature: sig, Sequence: firstSeq, Name: "TradeActionEvent", Payload: map[string]any{"action": "buy"}},
			{Slot: slot, Signature: sig, Sequence: firstSeq + 1, Name: "FlashloanEvent", Payload: map[string]any{"fee": 3}},
		},
	}
}

func TestSaveReceiptAndReadBack(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	first := testReceipt(t, 1, 1)
	second := testReceipt(t, 2, 3)
	for _, r := range []ledger.Receipt{first, second} {
		if err := s.SaveReceipt(ctx, r); err != nil {
			t.Fatalf("SaveReceipt: %v", err)
		}
	}

	got, err := s.EventsAfter(ctx, 1, 10)
	if err != nil {
		t.Fatalf("EventsAfter: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events after sequence 1, got %d", len(got))
	}
	for i, env := range got {
		if env.Sequence != uint64(i+2) {
			t.Fatalf("events out of order: %+v", got)
		}
	}
	if got[0].Name != "FlashloanEvent" || got[0].Signature != first.Signature {
		t.Fatalf("unexpected first event %+v", got[0])
	}
	var payload map[string]any
	if err := json.Unmarshal(got[1].Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["action"] != "buy" {
		t.Fatalf("unexpected payload %v", payload)
	}

	limited, err := s.EventsAfter(ctx, 0, 2)
	if err != nil {
		t.Fatalf("EventsAfter: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limit ignored: %d events", len(limited))
	}

	logs, err := s.ReceiptLogs(ctx, second.Signature)
	if err != nil {
		t.Fatalf("ReceiptLogs: %v", err)
	}
	if len(logs) != 2 || logs[1] != "Transaction completed." {
		t.Fatalf("unexpected logs %v", logs)
	}

	last, err := s.LastSequence(ctx)
	if err != nil {
		t.Fatalf("LastSequence: %v", err)
	}
	if last != 4 {
		t.Fatalf("expected last sequence 4, got %d", last)
	}
}

func TestSaveReceiptIsAtomic(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	if err := s.SaveReceipt(ctx, testReceipt(t, 1, 1)); err != nil {
		t.Fatalf("SaveReceipt: %v", err)
	}
	// sequence 2 already exists, so the whole receipt must roll back
	clash := testReceipt(t, 2, 2)
	if err := s.SaveReceipt(ctx, clash); err == nil {
		t.Fatalf("expected duplicate sequence to fail")
	}
	if _, err := s.ReceiptLogs(ctx, clash.Signature); err == nil {
		t.Fatalf("receipt of failed save should not be stored")
	}
	last, err := s.LastSequence(ctx)
	if err != nil {
		t.Fatalf("LastSequence: %v", err)
	}
	if last != 2 {
		t.Fatalf("expected last sequence 2, got %d", last)
	}
}

func TestLastSequenceEmpty(t *testing.T) {
	s := newMemoryStore(t)
	last, err := s.LastSequence(context.Background())
	if err != nil {
		t.Fatalf("LastSequence: %v", err)
	}
	if last != 0 {
		t.Fatalf("expected 0 on empty store, got %d", last)
	}
}

func TestDeliverRunDrainsOnShutdown(t *testing.T) {
	s := newMemoryStore(t)
	s.Deliver(testReceipt(t, 1, 1))
	s.Deliver(testReceipt(t, 2, 3))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop")
	}
	last, err := s.LastSequence(context.Background())
	if err != nil {
		t.Fatalf("LastSequence: %v", err)
	}
	if last != 4 {
		t.Fatalf("queued receipts were not written, last sequence %d", last)
	}
}

func TestNewSQLiteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "receipts.db")
	s, err := NewSQLite(config.Store{Path: path}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer s.Close()
	if err := s.SaveReceipt(context.Background(), testReceipt(t, 1, 1)); err != nil {
		t.Fatalf("SaveReceipt: %v", err)
	}
}

func TestCursorSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := config.Store{Path: filepath.Join(t.TempDir(), "receipts.db")}

	s, err := NewSQLite(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	if slot, seq, err := s.Cursor(ctx); err != nil || slot != 0 || seq != 0 {
		t.Fatalf("expected empty cursor, got %d/%d (%v)", slot, seq, err)
	}
	if err := s.SaveReceipt(ctx, testReceipt(t, 1, 1)); err != nil {
		t.Fatalf("SaveReceipt: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewSQLite(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	slot, seq, err := reopened.Cursor(ctx)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	if slot != 1 || seq != 2 {
		t.Fatalf("expected cursor 1/2, got %d/%d", slot, seq)
	}
	if err := reopened.SaveReceipt(ctx, testReceipt(t, slot+1, seq+1)); err != nil {
		t.Fatalf("SaveReceipt after reopen: %v", err)
	}
	stored, err := reopened.EventsAfter(ctx, 0, 10)
	if err != nil {
		t.Fatalf("EventsAfter: %v", err)
	}
	if len(stored) != 4 {
		t.Fatalf("expected events from both runs, got %d", len(stored))
	}
}
