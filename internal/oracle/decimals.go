package oracle

import (
	"context"
	"fmt"
	"sync"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// DecimalsSource reports how many decimals a mint uses.
type DecimalsSource interface {
	Decimals(ctx context.Context, mint solana.PublicKey) (uint8, error)
}

// FixedDecimals is a DecimalsSource backed by a map.
type FixedDecimals map[solana.PublicKey]uint8

func (f FixedDecimals) Decimals(_ context.Context, mint solana.PublicKey) (uint8, error) {
	d, ok := f[mint]
	if !ok {
		return 0, fmt.Errorf("unknown mint %s", mint)
	}
	return d, nil
}

// RPCDecimals reads mint decimals from a Solana RPC node and caches them.
type RPCDecimals struct {
	RPC    *rpc.Client
	Commit rpc.CommitmentType

	mu    sync.Mutex
	cache map[solana.PublicKey]uint8
}

// NewRPCDecimals connects to rpcURL. commit is processed, confirmed or finalized.
func NewRPCDecimals(rpcURL, commit string) *RPCDecimals {
	c := rpc.CommitmentConfirmed
	switch commit {
	case "processed":
		c = rpc.CommitmentProcessed
	case "finalized":
		c = rpc.CommitmentFinalized
	}
	return &RPCDecimals{RPC: rpc.New(rpcURL), Commit: c, cache: make(map[solana.PublicKey]uint8)}
}

func (r *RPCDecimals) Decimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	r.mu.Lock()
	if d, ok := r.cache[mint]; ok {
		r.mu.Unlock()
		return d, nil
	}
	r.mu.Unlock()

	out, err := r.RPC.GetTokenSupply(ctx, mint, r.Commit)
	if err != nil {
		return 0, fmt.Errorf("get token supply %s: %w", mint, err)
	}
	if out == nil || out.Value == nil {
		return 0, fmt.Errorf("get token supply %s: empty response", mint)
	}
	r.mu.Lock()
	r.cache[mint] = out.Value.Decimals
	r.mu.Unlock()
	return out.Value.Decimals, nil
}
