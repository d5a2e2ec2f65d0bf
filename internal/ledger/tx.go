package ledger

import (
	"fmt"

	solana "github.com/gagliardetto/solana-go"
)

// Tx is a transaction in progress. It only reaches accounts named in its message,
// and nothing it does is visible outside until the ledger commits it.
type Tx struct {
	ledger    *Ledger
	slot      uint64
	signature solana.Signature
	accounts  map[solana.PublicKey]bool // address -> writable
	signers   map[solana.PublicKey]bool
	writes    map[solana.PublicKey]*accountState
	events    []Record
	logs      []string
	checks    []func() error
}

func newTx(l *Ledger, msg Message, signers map[solana.PublicKey]bool, signature solana.Signature) *Tx {
	accounts := make(map[solana.PublicKey]bool, len(msg.Accounts))
	for _, meta := range msg.Accounts {
		accounts[meta.PublicKey] = accounts[meta.PublicKey] || meta.IsWritable
	}
	return &Tx{
		ledger:    l,
		slot:      l.slot + 1,
		signature: signature,
		accounts:  accounts,
		signers:   signers,
		writes:    make(map[solana.PublicKey]*accountState),
	}
}

// Slot is the slot the transaction commits at.
func (t *Tx) Slot() uint64 { return t.slot }

// Signature identifies the transaction.
func (t *Tx) Signature() solana.Signature { return t.signature }

// IsSigner reports whether addr signed the transaction or was signed for via seeds.
func (t *Tx) IsSigner(addr solana.PublicKey) bool { return t.signers[addr] }

// Includes reports whether addr is part of the transaction's account set.
func (t *Tx) Includes(addr solana.PublicKey) bool {
	_, ok := t.accounts[addr]
	return ok
}

// Exists reports whether addr is an included account that exists on the ledger.
func (t *Tx) Exists(addr solana.PublicKey) bool {
	if !t.Includes(addr) {
		return false
	}
	_, ok := t.state(addr)
	return ok
}

// Owner returns the owner program of addr.
func (t *Tx) Owner(addr solana.PublicKey) (solana.PublicKey, error) {
	state, err := t.read(addr)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return state.owner, nil
}

// Balance returns the staged balance of addr for mint.
func (t *Tx) Balance(addr, mint solana.PublicKey) (uint64, error) {
	state, err := t.read(addr)
	if err != nil {
		return 0, err
	}
	return state.balances[mint], nil
}

// Transfer moves amount of mint between two included, writable accounts. The
// debited account must have signed the transaction or be owned by authority,
// the program performing the transfer.
func (t *Tx) Transfer(authority, from, to, mint solana.PublicKey, amount uint64) error {
	for _, addr := range []solana.PublicKey{from, to} {
		writable, ok := t.accounts[addr]
		if !ok {
			return fmt.Errorf("transfer %s: %w", addr, ErrAccountNotInTx)
		}
		if !writable {
			return fmt.Errorf("transfer %s: %w", addr, ErrAccountNotWritable)
		}
		if _, ok := t.state(addr); !ok {
			return fmt.Errorf("transfer %s: %w", addr, ErrAccountNotFound)
		}
	}

	src, _ := t.state(from)
	if !t.signers[from] && !src.owner.Equals(authority) {
		return fmt.Errorf("debit %s: %w", from, ErrUnauthorized)
	}
	if src.balances[mint] < amount {
		return fmt.Errorf("debit %s: have %d, need %d: %w", from, src.balances[mint], amount, ErrInsufficientFunds)
	}
	if amount == 0 || from.Equals(to) {
		return nil
	}
	dst, _ := t.state(to)
	if dst.balances[mint]+amount < dst.balances[mint] {
		return fmt.Errorf("credit %s: %w", to, ErrOverflow)
	}
	t.mutable(from).balances[mint] -= amount
	t.mutable(to).balances[mint] += amount
	return nil
}

// SignWithSeeds adds the program-derived address of seeds under programID to the
// transaction's signers and returns it.
func (t *Tx) SignWithSeeds(programID solana.PublicKey, seeds ...[]byte) (solana.PublicKey, error) {
	addr, err := solana.CreateProgramAddress(seeds, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidSeeds, err)
	}
	if !t.Includes(addr) {
		return solana.PublicKey{}, fmt.Errorf("signer %s: %w", addr, ErrAccountNotInTx)
	}
	t.signers[addr] = true
	return addr, nil
}

// Logf appends a line to the transaction log.
func (t *Tx) Logf(format string, args ...any) {
	t.logs = append(t.logs, fmt.Sprintf(format, args...))
}

// Logs returns a copy of the transaction log so far.
func (t *Tx) Logs() []string {
	return append([]string(nil), t.logs...)
}

// Emit stages an event. build receives the event's sequence number, which is
// final if the transaction commits.
func (t *Tx) Emit(name string, build func(seq uint64) any) uint64 {
	seq := t.ledger.sequence + uint64(len(t.events)) + 1
	t.events = append(t.events, Record{
		Slot:      t.slot,
		Signature: t.signature,
		Sequence:  seq,
		Name:      name,
		Payload:   build(seq),
	})
	return seq
}

// Events returns the events staged so far.
func (t *Tx) Events() []Record {
	return append([]Record(nil), t.events...)
}

// RequireBeforeCommit registers a check that must pass for the transaction to commit.
func (t *Tx) RequireBeforeCommit(check func() error) {
	t.checks = append(t.checks, check)
}

func (t *Tx) read(addr solana.PublicKey) (*accountState, error) {
	if !t.Includes(addr) {
		return nil, fmt.Errorf("read %s: %w", addr, ErrAccountNotInTx)
	}
	state, ok := t.state(addr)
	if !ok {
		return nil, fmt.Errorf("read %s: %w", addr, ErrAccountNotFound)
	}
	return state, nil
}

func (t *Tx) state(addr solana.PublicKey) (*accountState, bool) {
	if state, ok := t.writes[addr]; ok {
		return state, true
	}
	state, ok := t.ledger.accounts[addr]
	return state, ok
}

func (t *Tx) mutable(addr solana.PublicKey) *accountState {
	if state, ok := t.writes[addr]; ok {
		return state
	}
	state := t.ledger.accounts[addr].clone()
	t.writes[addr] = state
	return state
}
