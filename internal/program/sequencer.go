package program

import (
	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/Linkan333/solana-rust-arb/internal/flashloan"
	"github.com/Linkan333/solana-rust-arb/internal/ledger"
	"github.com/Linkan333/solana-rust-arb/internal/risk"
)

// Result describes a request that ran to completion inside its transaction.
type Result struct {
	Fills     []Fill
	Trades    []TradeActionEvent
	Loan      *FlashloanEvent
	Repayment *flashloan.RepayReceipt
}

// Sequencer runs a trade request: validate, borrow, execute actions in order,
// repay, emit. It never compensates; a returned error discards the transaction.
type Sequencer struct {
	programID      solana.PublicKey
	lendingProgram solana.PublicKey
	authority      solana.PublicKey
	authorityBump  uint8
	executor       *Executor
	lender         flashloan.Service
	fees           flashloan.FeeSchedule
	limits         risk.Limits
	log            zerolog.Logger
}

// Execute runs req inside tx.
func (s *Sequencer) Execute(tx *ledger.Tx, req TradeRequest) (Result, error) {
	if err := s.validate(tx, req); err != nil {
		return Result{}, err
	}
	tx.Logf("Starting transaction for buy/sell actions...")

	var (
		res  Result
		loan *flashloan.LoanState
	)
	if req.LoanAmount > 0 {
		var err error
		if loan, err = s.borrow(tx, req); err != nil {
			return Result{}, err
		}
	}

	for i, action := range req.Actions {
		var (
			fill Fill
			err  error
		)
		switch action.Kind {
		case Buy:
			fill, err = s.executor.ExecuteBuy(tx, req.Buyer, req.Seller, action)
		case Sell:
			fill, err = s.executor.ExecuteSell(tx, req.Buyer, req.Seller, action)
		}
		if err != nil {
			s.log.Debug().Err(err).Int("index", i).Str("action", action.Kind.String()).Msg("action failed")
			return Result{}, err
		}
		res.Fills = append(res.Fills, fill)
		res.Trades = append(res.Trades, emitTrade(tx, req, fill))
	}

	if loan != nil {
		receipt, err := s.repay(tx, loan)
		if err != nil {
			return Result{}, err
		}
		res.Repayment = &receipt
		ev := emitFlashloan(tx, FlashloanEvent{
			Borrower:  loan.Borrower,
			Reserve:   loan.Reserve,
			Principal: loan.Principal,
			Fee:       receipt.Amount - loan.Principal,
			Repaid:    loan.Repaid,
		})
		res.Loan = &ev
	}

	tx.Logf("Transaction completed.")
	return res, nil
}

func (s *Sequencer) validate(tx *ledger.Tx, req TradeRequest) error {
	const op = "validate"
	if len(req.Actions) == 0 {
		return newError(ErrValidation, op, "request has no actions")
	}
	for i, a := range req.Actions {
		if !a.Kind.Valid() {
			return newError(ErrValidation, op, "action %d has unknown kind %d", i, uint8(a.Kind))
		}
		if a.Price.IsNegative() {
			return newError(ErrValidation, op, "action %d has negative price", i)
		}
	}
	if req.Buyer.IsZero() || req.Seller.IsZero() {
		return newError(ErrValidation, op, "buyer and seller are required")
	}
	if req.LoanAmount > 0 {
		if req.Borrower.IsZero() {
			return newError(ErrValidation, op, "loan requires a borrower")
		}
		if missing := req.Flashloan.Missing(); len(missing) > 0 {
			return newError(ErrValidation, op, "loan requires flashloan context, missing %v", missing)
		}
		if !req.Flashloan.FlashloanProgram.Equals(s.lendingProgram) {
			return newError(ErrValidation, op, "flashloan program %s is not the lending program %s", req.Flashloan.FlashloanProgram, s.lendingProgram)
		}
		if !req.Flashloan.Flashloan.Equals(s.authority) {
			return newError(ErrValidation, op, "flashloan account %s is not the program authority %s", req.Flashloan.Flashloan, s.authority)
		}
	}
	if err := s.limits.Check(req.LoanAmount, len(req.Actions)); err != nil {
		return &Error{Kind: ErrValidation, Op: op, Err: err}
	}
	if !tx.IsSigner(req.Buyer) {
		return newError(ErrUnauthorized, op, "buyer %s did not sign", req.Buyer)
	}
	return nil
}

func (s *Sequencer) borrow(tx *ledger.Tx, req TradeRequest) (*flashloan.LoanState, error) {
	const op = "borrow"
	if s.lender == nil {
		return nil, newError(ErrFlashloan, op, "no lending service configured")
	}
	if _, err := tx.SignWithSeeds(s.programID, []byte(FlashloanSeed), []byte{s.authorityBump}); err != nil {
		return nil, classify(op, err)
	}
	fc := req.Flashloan
	tx.Logf("Flashloan Program ID: %s", fc.FlashloanProgram)
	tx.Logf("Borrower: %s", req.Borrower)
	tx.Logf("Flashloan: %s", fc.Flashloan)
	tx.Logf("Amount: %d", req.LoanAmount)
	loan, err := s.lender.Borrow(tx, flashloan.BorrowParams{
		Borrower:               req.Borrower,
		Flashloan:              fc.Flashloan,
		FlashloanProgram:       fc.FlashloanProgram,
		SourceLiquidity:        fc.SourceLiquidity,
		DestinationLiquidity:   fc.DestinationLiquidity,
		Reserve:                fc.Reserve,
		LendingMarket:          fc.LendingMarket,
		LendingMarketAuthority: fc.LendingMarketAuthority,
		Amount:                 req.LoanAmount,
	})
	if err != nil {
		return nil, &Error{Kind: ErrFlashloan, Op: op, Err: err}
	}
	tx.Logf("Borrowed %d from reserve %s", loan.Principal, loan.Reserve)
	return loan, nil
}

func (s *Sequencer) repay(tx *ledger.Tx, loan *flashloan.LoanState) (flashloan.RepayReceipt, error) {
	const op = "repay"
	fee := s.fees.Fee(loan.Principal)
	owed := loan.Principal + fee
	if owed < loan.Principal {
		return flashloan.RepayReceipt{}, newError(ErrValidation, op, "repayment overflows")
	}
	balance, err := tx.Balance(loan.Borrower, loan.Mint)
	if err != nil {
		return flashloan.RepayReceipt{}, classify(op, err)
	}
	if balance < owed {
		return flashloan.RepayReceipt{}, newError(ErrInsufficientFunds, op, "borrower %s holds %d, owes %d", loan.Borrower, balance, owed)
	}
	receipt, err := s.lender.Repay(tx, loan, owed)
	if err != nil {
		return flashloan.RepayReceipt{}, classify(op, err)
	}
	return receipt, nil
}
