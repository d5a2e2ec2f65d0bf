package flashloan

import (
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/Linkan333/solana-rust-arb/internal/ledger"
)

// ReserveConfig describes one lending reserve.
type ReserveConfig struct {
	ProgramID       solana.PublicKey
	Address         solana.PublicKey
	LendingMarket   solana.PublicKey
	LiquiditySupply solana.PublicKey
	Mint            solana.PublicKey
	FeeBps          uint64
}

// Reserve lends the liquidity held in its supply account for the duration of one
// transaction. The supply and reserve accounts are owned by the lending program.
type Reserve struct {
	cfg       ReserveConfig
	authority solana.PublicKey
	fees      BpsFee
	log       zerolog.Logger
}

var _ Service = (*Reserve)(nil)
var _ FeeSchedule = (*Reserve)(nil)

// NewReserve validates cfg and derives the lending market authority.
func NewReserve(cfg ReserveConfig, log zerolog.Logger) (*Reserve, error) {
	for name, key := range map[string]solana.PublicKey{
		"program id":       cfg.ProgramID,
		"reserve":          cfg.Address,
		"lending market":   cfg.LendingMarket,
		"liquidity supply": cfg.LiquiditySupply,
		"mint":             cfg.Mint,
	} {
		if key.IsZero() {
			return nil, fmt.Errorf("reserve config: %s is required", name)
		}
	}
	authority, _, err := solana.FindProgramAddress([][]byte{cfg.LendingMarket[:]}, cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("derive lending market authority: %w", err)
	}
	return &Reserve{
		cfg:       cfg,
		authority: authority,
		fees:      BpsFee(cfg.FeeBps),
		log:       log.With().Str("component", "reserve").Str("reserve", cfg.Address.String()).Logger(),
	}, nil
}

// Config returns the reserve configuration.
func (r *Reserve) Config() ReserveConfig { return r.cfg }

// MarketAuthority is the lending market's program-derived authority.
func (r *Reserve) MarketAuthority() solana.PublicKey { return r.authority }

// Fee implements FeeSchedule.
func (r *Reserve) Fee(principal uint64) uint64 { return r.fees.Fee(principal) }

// Open creates the reserve accounts on l and deposits liquidity into the supply.
func (r *Reserve) Open(l *ledger.Ledger, liquidity uint64) error {
	for _, addr := range []solana.PublicKey{r.cfg.Address, r.cfg.LiquiditySupply} {
		if err := l.CreateAccount(addr, r.cfg.ProgramID); err != nil && !errors.Is(err, ledger.ErrAccountExists) {
			return err
		}
	}
	if err := l.Airdrop(r.cfg.LiquiditySupply, r.cfg.Mint, liquidity); err != nil {
		return fmt.Errorf("deposit liquidity: %w", err)
	}
	r.log.Info().Uint64("liquidity", liquidity).Msg("reserve opened")
	return nil
}

// Borrow moves p.Amount from the supply to the destination and registers a commit
// check that rejects the transaction unless the loan is repaid.
func (r *Reserve) Borrow(tx *ledger.Tx, p BorrowParams) (*LoanState, error) {
	ix, err := NewFlashLoanInstruction(p.FlashloanProgram, p.Borrower, p.Flashloan, p.Amount)
	if err != nil {
		return nil, err
	}
	decoded, err := DecodeFlashLoanInstruction(ix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefused, err)
	}
	tx.Logf("Program %s invoke [2]", decoded.Program)

	switch {
	case !decoded.Program.Equals(r.cfg.ProgramID):
		return nil, fmt.Errorf("%w: unknown lending program %s", ErrRefused, decoded.Program)
	case !p.Reserve.Equals(r.cfg.Address):
		return nil, fmt.Errorf("%w: reserve %s is not served here", ErrRefused, p.Reserve)
	case !p.LendingMarket.Equals(r.cfg.LendingMarket):
		return nil, fmt.Errorf("%w: lending market mismatch", ErrRefused)
	case !p.LendingMarketAuthority.Equals(r.authority):
		return nil, fmt.Errorf("%w: lending market authority mismatch", ErrRefused)
	case !p.SourceLiquidity.Equals(r.cfg.LiquiditySupply):
		return nil, fmt.Errorf("%w: source liquidity mismatch", ErrRefused)
	case decoded.Amount == 0:
		return nil, fmt.Errorf("%w: zero amount", ErrRefused)
	case !tx.Exists(p.Reserve):
		return nil, fmt.Errorf("%w: reserve account missing", ErrRefused)
	}

	available, err := tx.Balance(p.SourceLiquidity, r.cfg.Mint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefused, err)
	}
	if available < decoded.Amount {
		return nil, fmt.Errorf("%w: reserve liquidity %d below %d", ErrRefused, available, decoded.Amount)
	}
	if err := tx.Transfer(r.cfg.ProgramID, p.SourceLiquidity, p.DestinationLiquidity, r.cfg.Mint, decoded.Amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefused, err)
	}

	loan := &LoanState{
		Reserve:   r.cfg.Address,
		Borrower:  decoded.Borrower,
		Mint:      r.cfg.Mint,
		Principal: decoded.Amount,
		FeeOwed:   r.Fee(decoded.Amount),
	}
	tx.RequireBeforeCommit(func() error {
		if !loan.Repaid {
			return fmt.Errorf("%w: reserve %s owed %d", ErrNotRepaid, loan.Reserve, loan.Owed())
		}
		return nil
	})
	tx.Logf("Program %s success", decoded.Program)
	r.log.Debug().Uint64("principal", loan.Principal).Uint64("fee", loan.FeeOwed).Str("borrower", loan.Borrower.String()).Msg("flash loan issued")
	return loan, nil
}

// Repay returns amount from the borrower to the supply. amount must cover principal and fee.
func (r *Reserve) Repay(tx *ledger.Tx, loan *LoanState, amount uint64) (RepayReceipt, error) {
	switch {
	case loan == nil:
		return RepayReceipt{}, fmt.Errorf("%w: no loan", ErrRefused)
	case loan.Repaid:
		return RepayReceipt{}, fmt.Errorf("%w: loan already repaid", ErrRefused)
	case !loan.Reserve.Equals(r.cfg.Address):
		return RepayReceipt{}, fmt.Errorf("%w: loan belongs to reserve %s", ErrRefused, loan.Reserve)
	case amount < loan.Owed():
		return RepayReceipt{}, fmt.Errorf("%w: repayment %d below owed %d", ErrRefused, amount, loan.Owed())
	}
	if err := tx.Transfer(r.cfg.ProgramID, loan.Borrower, r.cfg.LiquiditySupply, r.cfg.Mint, amount); err != nil {
		return RepayReceipt{}, fmt.Errorf("repay flash loan: %w", err)
	}
	loan.Repaid = true
	tx.Logf("Flash loan repaid: %d (fee %d)", amount, loan.FeeOwed)
	return RepayReceipt{
		Reserve:   loan.Reserve,
		Borrower:  loan.Borrower,
		Principal: loan.Principal,
		Fee:       loan.FeeOwed,
		Amount:    amount,
		Slot:      tx.Slot(),
	}, nil
}
