// Package store keeps a durable journal of committed transactions in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	solana "github.com/gagliardetto/solana-go"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/Linkan333/solana-rust-arb/internal/config"
	"github.com/Linkan333/solana-rust-arb/internal/events"
	"github.com/Linkan333/solana-rust-arb/internal/ledger"
	"github.com/Linkan333/solana-rust-arb/internal/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS receipts (
	slot       INTEGER PRIMARY KEY,
	signature  TEXT NOT NULL,
	logs       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS events (
	sequence  INTEGER PRIMARY KEY,
	signature TEXT NOT NULL,
	slot      INTEGER NOT NULL REFERENCES receipts(slot),
	name      TEXT NOT NULL,
	payload   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_receipts_signature ON receipts(signature);
`

// Store wraps the SQLite connection.
type Store struct {
	db      *sql.DB
	pending chan ledger.Receipt
	log     zerolog.Logger
}

// NewSQLite opens the database described by cfg and applies the schema.
func NewSQLite(cfg config.Store, log zerolog.Logger) (*Store, error) {
	dsn := cfg.Path
	if cfg.InMemory {
		dsn = ":memory:"
		// every connection to :memory: is a separate database, so keep exactly one alive
		cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime = 1, 1, 0
	} else {
		if err := ensureDir(filepath.Dir(cfg.Path)); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", dsn))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if !cfg.InMemory {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("set sqlite WAL mode: %w", err)
		}
	}
	if _, err := conn.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set sqlite synchronous: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{
		db:      conn,
		pending: make(chan ledger.Receipt, 256),
		log:     log.With().Str("component", "store").Logger(),
	}, nil
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Deliver implements ledger.Sink by queueing the receipt for Run.
func (s *Store) Deliver(r ledger.Receipt) {
	select {
	case s.pending <- r:
	default:
		metrics.EventsDroppedTotal.WithLabelValues("store").Inc()
		s.log.Warn().Str("signature", r.Signature.String()).Msg("receipt queue full, dropping")
	}
}

// Run writes queued receipts until ctx ends, then drains what is left.
func (s *Store) Run(ctx context.Context) error {
	writeCtx := context.WithoutCancel(ctx)
	for {
		select {
		case r := <-s.pending:
			s.write(writeCtx, r)
		case <-ctx.Done():
			for {
				select {
				case r := <-s.pending:
					s.write(writeCtx, r)
				default:
					return ctx.Err()
				}
			}
		}
	}
}

func (s *Store) write(ctx context.Context, r ledger.Receipt) {
	if err := s.SaveReceipt(ctx, r); err != nil {
		s.log.Error().Err(err).Uint64("slot", r.Slot).Str("signature", r.Signature.String()).Msg("save receipt")
	}
}

// SaveReceipt stores a receipt and its events in one SQL transaction.
func (s *Store) SaveReceipt(ctx context.Context, r ledger.Receipt) error {
	logs, err := json.Marshal(r.Logs)
	if err != nil {
		return fmt.Errorf("encode logs: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO receipts (slot, signature, logs) VALUES (?, ?, ?)`,
		r.Slot, r.Signature.String(), string(logs),
	); err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	for _, rec := range r.Events {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", rec.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (sequence, signature, slot, name, payload) VALUES (?, ?, ?, ?, ?)`,
			rec.Sequence, r.Signature.String(), rec.Slot, rec.Name, string(payload),
		); err != nil {
			return fmt.Errorf("insert event %d: %w", rec.Sequence, err)
		}
	}
	return tx.Commit()
}

// EventsAfter returns up to limit stored events with sequence greater than after.
func (s *Store) EventsAfter(ctx context.Context, after uint64, limit int) ([]events.Envelope, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence, signature, slot, name, payload FROM events WHERE sequence > ? ORDER BY sequence LIMIT ?`,
		after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []events.Envelope
	for rows.Next() {
		var (
			env     events.Envelope
			sig     string
			payload string
		)
		if err := rows.Scan(&env.Sequence, &sig, &env.Slot, &env.Name, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if env.Signature, err = solana.SignatureFromBase58(sig); err != nil {
			return nil, fmt.Errorf("parse signature: %w", err)
		}
		env.Payload = json.RawMessage(payload)
		out = append(out, env)
	}
	return out, rows.Err()
}

// ReceiptLogs returns the transaction log of the latest receipt stored for signature.
func (s *Store) ReceiptLogs(ctx context.Context, signature solana.Signature) ([]string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT logs FROM receipts WHERE signature = ? ORDER BY slot DESC LIMIT 1`, signature.String()).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("query receipt: %w", err)
	}
	var logs []string
	if err := json.Unmarshal([]byte(raw), &logs); err != nil {
		return nil, fmt.Errorf("decode logs: %w", err)
	}
	return logs, nil
}

// LastSequence is the highest stored event sequence, zero when empty.
func (s *Store) LastSequence(ctx context.Context) (uint64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last sequence: %w", err)
	}
	return uint64(seq.Int64), nil
}

// Cursor returns the highest stored slot and event sequence, zero when empty.
// A ledger resumed from it numbers new receipts after the stored ones.
func (s *Store) Cursor(ctx context.Context) (slot, sequence uint64, err error) {
	var lastSlot sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(slot) FROM receipts`).Scan(&lastSlot); err != nil {
		return 0, 0, fmt.Errorf("query last slot: %w", err)
	}
	sequence, err = s.LastSequence(ctx)
	if err != nil {
		return 0, 0, err
	}
	return uint64(lastSlot.Int64), sequence, nil
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", path, err)
	}
	return nil
}
