package events

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/Linkan333/solana-rust-arb/internal/ledger"
)

// JSONLRecorder appends committed events as JSON lines for later analysis.
type JSONLRecorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLRecorder creates/opens the target file and returns a recorder.
func NewJSONLRecorder(path string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLRecorder{
		file: file,
		enc:  json.NewEncoder(file),
	}, nil
}

// Record writes a single event to the underlying JSONL file.
func (r *JSONLRecorder) Record(rec ledger.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return os.ErrClosed
	}
	return r.enc.Encode(rec)
}

// Run records everything sub receives until ctx ends or sub is closed. Records
// already buffered when ctx ends are still written.
func (r *JSONLRecorder) Run(ctx context.Context, sub *Subscription) error {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case rec, ok := <-sub.C:
					if !ok {
						return ctx.Err()
					}
					if err := r.Record(rec); err != nil {
						return err
					}
				default:
					return ctx.Err()
				}
			}
		case rec, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := r.Record(rec); err != nil {
				return err
			}
		}
	}
}

// Close flushes and closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
