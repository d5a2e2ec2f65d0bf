// Package flashloan defines the lending boundary used by the trading program and a
// reserve that lends from liquidity held on the ledger.
package flashloan

import (
	"errors"
	"math/big"

	solana "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/Linkan333/solana-rust-arb/internal/ledger"
)

var (
	// ErrRefused means the lending program declined the borrow or repayment.
	ErrRefused = errors.New("flash loan refused")
	// ErrNotRepaid fails the enclosing transaction at commit time.
	ErrNotRepaid = errors.New("flash loan not repaid")
)

// BorrowParams names every account the lending program needs for a flash loan.
type BorrowParams struct {
	Borrower               solana.PublicKey
	Flashloan              solana.PublicKey
	FlashloanProgram       solana.PublicKey
	SourceLiquidity        solana.PublicKey
	DestinationLiquidity   solana.PublicKey
	Reserve                solana.PublicKey
	LendingMarket          solana.PublicKey
	LendingMarketAuthority solana.PublicKey
	Amount                 uint64
}

// LoanState lives for one transaction and must end repaid.
type LoanState struct {
	Reserve   solana.PublicKey
	Borrower  solana.PublicKey
	Mint      solana.PublicKey
	Principal uint64
	FeeOwed   uint64
	Repaid    bool
}

// Owed is principal plus fee.
func (s *LoanState) Owed() uint64 { return s.Principal + s.FeeOwed }

// RepayReceipt confirms a repayment.
type RepayReceipt struct {
	Reserve   solana.PublicKey
	Borrower  solana.PublicKey
	Principal uint64
	Fee       uint64
	Amount    uint64
	Slot      uint64
}

// Service is the flash-loan contract the trading program consumes. Both calls
// either take full effect inside tx or return an error.
type Service interface {
	Borrow(tx *ledger.Tx, p BorrowParams) (*LoanState, error)
	Repay(tx *ledger.Tx, loan *LoanState, amount uint64) (RepayReceipt, error)
}

// FeeSchedule prices a loan.
type FeeSchedule interface {
	Fee(principal uint64) uint64
}

// BpsFee charges FeeBps basis points of the principal, rounded up.
type BpsFee uint64

// Fee implements FeeSchedule.
func (b BpsFee) Fee(principal uint64) uint64 {
	if b == 0 || principal == 0 {
		return 0
	}
	fee := decimal.NewFromBigInt(new(big.Int).SetUint64(principal), 0).
		Mul(decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(b)), 0)).
		Div(decimal.NewFromInt(10_000)).
		Ceil()
	return fee.BigInt().Uint64()
}
