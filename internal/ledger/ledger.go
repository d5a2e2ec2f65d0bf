package ledger

import (
	"fmt"
	"sync"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
)

// Message is everything the runtime needs to open a transaction: the signed
// payload, the accounts the transaction may touch and the signatures over the payload.
type Message struct {
	Payload    []byte
	Accounts   []*solana.AccountMeta
	Signatures map[solana.PublicKey]solana.Signature
}

// TxError is returned when a transaction is rejected. Logs holds the log lines
// produced up to the failure, the equivalent of a simulation log.
type TxError struct {
	Err  error
	Logs []string
}

func (e *TxError) Error() string { return fmt.Sprintf("transaction rejected: %v", e.Err) }

func (e *TxError) Unwrap() error { return e.Err }

// Ledger holds account state and processes transactions one at a time.
type Ledger struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey]*accountState
	slot     uint64
	sequence uint64
	journal  *Journal
	sinks    []Sink
	log      zerolog.Logger
}

// JournalSize is how many recent receipts a ledger keeps in memory.
const JournalSize = 1024

// New constructs an empty ledger at slot 0.
func New(log zerolog.Logger) *Ledger {
	return &Ledger{
		accounts: make(map[solana.PublicKey]*accountState),
		journal:  NewJournal(JournalSize),
		log:      log.With().Str("component", "ledger").Logger(),
	}
}

// Resume continues numbering after a previous run that ended at slot and
// event sequence. It only moves counters forward.
func (l *Ledger) Resume(slot, sequence uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.slot = max(l.slot, slot)
	l.sequence = max(l.sequence, sequence)
	l.log.Info().Uint64("slot", l.slot).Uint64("sequence", l.sequence).Msg("ledger resumed")
}

// AddSink registers an observer for committed transactions.
func (l *Ledger) AddSink(s Sink) {
	l.mu.Lock()
	l.sinks = append(l.sinks, s)
	l.mu.Unlock()
}

// Journal exposes the in-memory record of committed transactions.
func (l *Ledger) Journal() *Journal { return l.journal }

// CreateAccount allocates an empty account owned by owner.
func (l *Ledger) CreateAccount(addr, owner solana.PublicKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[addr]; ok {
		return fmt.Errorf("create %s: %w", addr, ErrAccountExists)
	}
	l.accounts[addr] = newAccountState(owner)
	return nil
}

// Airdrop mints amount of mint into addr, creating a system-owned account if needed.
func (l *Ledger) Airdrop(addr, mint solana.PublicKey, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.accounts[addr]
	if !ok {
		state = newAccountState(solana.SystemProgramID)
		l.accounts[addr] = state
	}
	next := state.balances[mint] + amount
	if next < amount {
		return fmt.Errorf("airdrop %s: %w", addr, ErrOverflow)
	}
	state.balances[mint] = next
	l.log.Debug().Str("account", addr.String()).Str("mint", mint.String()).Uint64("amount", amount).Msg("airdrop")
	return nil
}

// Account returns a copy of the committed state of addr.
func (l *Ledger) Account(addr solana.PublicKey) (Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.accounts[addr]
	if !ok {
		return Account{}, false
	}
	return state.view(addr), true
}

// Balance returns the committed balance of addr for mint, zero for unknown accounts.
func (l *Ledger) Balance(addr, mint solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if state, ok := l.accounts[addr]; ok {
		return state.balances[mint]
	}
	return 0
}

// Slot returns the slot of the last committed transaction.
func (l *Ledger) Slot() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.slot
}

// Process runs fn inside a new transaction. Writes and events staged by fn become
// visible only if fn and every commit check succeed; otherwise all of them are
// discarded and a *TxError carrying the transaction logs is returned.
func (l *Ledger) Process(msg Message, fn func(*Tx) error) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	signers, signature, err := verifySignatures(msg)
	if err != nil {
		return Receipt{}, &TxError{Err: err}
	}

	tx := newTx(l, msg, signers, signature)
	if err := fn(tx); err != nil {
		tx.Logf("Transaction failed: %v", err)
		return Receipt{}, l.reject(tx, err)
	}
	for _, check := range tx.checks {
		if err := check(); err != nil {
			tx.Logf("Commit check failed: %v", err)
			return Receipt{}, l.reject(tx, err)
		}
	}
	return l.commit(tx), nil
}

func (l *Ledger) reject(tx *Tx, err error) error {
	l.log.Debug().Err(err).Uint64("slot", tx.slot).Int("discarded_writes", len(tx.writes)).Msg("transaction discarded")
	return &TxError{Err: err, Logs: tx.Logs()}
}

func (l *Ledger) commit(tx *Tx) Receipt {
	for addr, state := range tx.writes {
		l.accounts[addr] = state
	}
	l.slot = tx.slot
	l.sequence += uint64(len(tx.events))

	receipt := Receipt{
		Signature: tx.signature,
		Slot:      tx.slot,
		Events:    append([]Record(nil), tx.events...),
		Logs:      tx.Logs(),
	}
	l.journal.Deliver(receipt)
	for _, sink := range l.sinks {
		sink.Deliver(receipt)
	}
	l.log.Debug().Str("signature", receipt.Signature.String()).Uint64("slot", receipt.Slot).Int("events", len(receipt.Events)).Msg("transaction committed")
	return receipt
}

func verifySignatures(msg Message) (map[solana.PublicKey]bool, solana.Signature, error) {
	included := make(map[solana.PublicKey]bool, len(msg.Accounts))
	for _, meta := range msg.Accounts {
		included[meta.PublicKey] = true
	}

	signers := make(map[solana.PublicKey]bool, len(msg.Signatures))
	for key, sig := range msg.Signatures {
		if !included[key] {
			return nil, solana.Signature{}, fmt.Errorf("signer %s: %w", key, ErrAccountNotInTx)
		}
		if !sig.Verify(key, msg.Payload) {
			return nil, solana.Signature{}, fmt.Errorf("signer %s: %w", key, ErrInvalidSignature)
		}
		signers[key] = true
	}

	// The transaction is identified by the first signature in account order.
	var first solana.Signature
	for _, meta := range msg.Accounts {
		if sig, ok := msg.Signatures[meta.PublicKey]; ok {
			first = sig
			break
		}
	}
	return signers, first, nil
}
