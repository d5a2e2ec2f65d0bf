// Package ledger is an in-process transactional ledger: accounts with owners and
// per-mint balances, signature-checked transactions, staged writes committed
// atomically, and an append-only record of committed transactions.
package ledger

import (
	"errors"

	solana "github.com/gagliardetto/solana-go"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountExists      = errors.New("account already exists")
	ErrAccountNotInTx     = errors.New("account not included in transaction")
	ErrAccountNotWritable = errors.New("account not writable in transaction")
	ErrUnauthorized       = errors.New("missing required authority")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrInvalidSeeds       = errors.New("seeds do not derive signer address")
	ErrOverflow           = errors.New("balance overflow")
)

// Account is a read-only view of one ledger account.
type Account struct {
	Address  solana.PublicKey
	Owner    solana.PublicKey
	Balances map[solana.PublicKey]uint64
}

// Balance returns the account's balance for mint.
func (a Account) Balance(mint solana.PublicKey) uint64 {
	return a.Balances[mint]
}

type accountState struct {
	owner    solana.PublicKey
	balances map[solana.PublicKey]uint64
}

func newAccountState(owner solana.PublicKey) *accountState {
	return &accountState{owner: owner, balances: make(map[solana.PublicKey]uint64)}
}

func (s *accountState) clone() *accountState {
	out := newAccountState(s.owner)
	for mint, amount := range s.balances {
		out.balances[mint] = amount
	}
	return out
}

func (s *accountState) view(addr solana.PublicKey) Account {
	snap := s.clone()
	return Account{Address: addr, Owner: snap.owner, Balances: snap.balances}
}
