package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Linkan333/solana-rust-arb/internal/ledger"
)

// streamMaxLen bounds the Redis stream through XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// RedisConfig holds connection parameters for the Redis stream sink.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

// RedisSink appends committed events to a Redis stream.
type RedisSink struct {
	rdb    *redis.Client
	stream string
	log    zerolog.Logger
}

// NewRedisSink connects and pings Redis.
func NewRedisSink(ctx context.Context, cfg RedisConfig, log zerolog.Logger) (*RedisSink, error) {
	if cfg.Stream == "" {
		cfg.Stream = "trade-events"
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisSink{rdb: rdb, stream: cfg.Stream, log: log.With().Str("component", "events-redis").Logger()}, nil
}

// Append adds rec to the stream.
func (s *RedisSink) Append(ctx context.Context, rec ledger.Record) error {
	payload, err := Encode(rec)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", rec.Name, err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"name":     rec.Name,
			"sequence": strconv.FormatUint(rec.Sequence, 10),
			"payload":  payload,
		},
	}
	if err := s.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", s.stream, err)
	}
	return nil
}

// Read returns up to count envelopes after lastID ("0" for the beginning).
func (s *RedisSink) Read(ctx context.Context, lastID string, count int) ([]Envelope, string, error) {
	results, err := s.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{s.stream, lastID},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, lastID, nil
		}
		return nil, lastID, fmt.Errorf("redis: stream read %s: %w", s.stream, err)
	}
	var out []Envelope
	for _, stream := range results {
		for _, msg := range stream.Messages {
			lastID = msg.ID
			raw, _ := msg.Values["payload"].(string)
			var env Envelope
			if err := json.Unmarshal([]byte(raw), &env); err != nil {
				return out, lastID, fmt.Errorf("redis: decode %s: %w", msg.ID, err)
			}
			out = append(out, env)
		}
	}
	return out, lastID, nil
}

// Run appends everything sub receives until ctx ends or sub is closed, then
// flushes what is still buffered within drainTimeout.
func (s *RedisSink) Run(ctx context.Context, sub *Subscription) error {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			s.drain(ctx, sub)
			return ctx.Err()
		case rec, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := s.Append(ctx, rec); err != nil {
				s.log.Warn().Err(err).Str("event", rec.Name).Msg("stream append failed")
			}
		}
	}
}

const drainTimeout = 2 * time.Second

func (s *RedisSink) drain(ctx context.Context, sub *Subscription) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	for {
		select {
		case rec, ok := <-sub.C:
			if !ok {
				return
			}
			if err := s.Append(drainCtx, rec); err != nil {
				s.log.Warn().Err(err).Str("event", rec.Name).Msg("stream append failed during shutdown")
				return
			}
		default:
			return
		}
	}
}

// Close releases the Redis connection.
func (s *RedisSink) Close() error { return s.rdb.Close() }
