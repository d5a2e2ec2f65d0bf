// Package program executes trade requests atomically on the ledger: an ordered
// list of buy and sell actions, optionally funded by a flash loan that must be
// repaid with fee before the transaction commits.
package program

import (
	"context"
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Linkan333/solana-rust-arb/internal/flashloan"
	"github.com/Linkan333/solana-rust-arb/internal/ledger"
	"github.com/Linkan333/solana-rust-arb/internal/metrics"
	"github.com/Linkan333/solana-rust-arb/internal/risk"
)

var (
	// ProgramID is the trading program's address.
	ProgramID = solana.MustPublicKeyFromBase58("497cyv12aNpr31KHVJYbRJot1QhpEiVohb2h4zkb4NZh")
	// LendingProgramID is the lending program flash loans are routed to.
	LendingProgramID = solana.MustPublicKeyFromBase58("ALend7Ketfx5bxh6ghsCDXAoDrhvEmsXT3cynB6aPLgx")
)

// FlashloanSeed derives the program's flashloan authority.
const FlashloanSeed = "flashloan-seed"

// FlashloanAuthority returns the program-derived flashloan account of programID.
func FlashloanAuthority(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte(FlashloanSeed)}, programID)
}

// Options configures a Program. Zero ProgramID and LendingProgramID select the
// package defaults; Fees defaults to Lender when it prices loans itself.
type Options struct {
	ProgramID        solana.PublicKey
	LendingProgramID solana.PublicKey
	Market           Market
	Lender           flashloan.Service
	Fees             flashloan.FeeSchedule
	Limits           risk.Limits
	Log              zerolog.Logger
}

// Program submits trade requests to a ledger.
type Program struct {
	id        solana.PublicKey
	ledger    *ledger.Ledger
	sequencer *Sequencer
	log       zerolog.Logger
}

// New wires a Program onto l.
func New(l *ledger.Ledger, opts Options) (*Program, error) {
	if l == nil {
		return nil, errors.New("program: ledger is required")
	}
	if opts.ProgramID.IsZero() {
		opts.ProgramID = ProgramID
	}
	if opts.LendingProgramID.IsZero() {
		opts.LendingProgramID = LendingProgramID
	}
	if opts.Market.Base.IsZero() || opts.Market.Quote.IsZero() {
		return nil, errors.New("program: market base and quote mints are required")
	}
	if opts.Market.Base.Equals(opts.Market.Quote) {
		return nil, errors.New("program: market base and quote mints must differ")
	}
	if opts.Fees == nil {
		if fs, ok := opts.Lender.(flashloan.FeeSchedule); ok {
			opts.Fees = fs
		} else {
			opts.Fees = flashloan.BpsFee(0)
		}
	}
	authority, bump, err := FlashloanAuthority(opts.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("program: derive flashloan authority: %w", err)
	}
	log := opts.Log.With().Str("component", "program").Logger()
	return &Program{
		id:     opts.ProgramID,
		ledger: l,
		log:    log,
		sequencer: &Sequencer{
			programID:      opts.ProgramID,
			lendingProgram: opts.LendingProgramID,
			authority:      authority,
			authorityBump:  bump,
			executor:       NewExecutor(opts.ProgramID, opts.Market, log),
			lender:         opts.Lender,
			fees:           opts.Fees,
			limits:         opts.Limits,
			log:            log,
		},
	}, nil
}

// ID is the program's address.
func (p *Program) ID() solana.PublicKey { return p.id }

// FlashloanAuthority is the account a loan's flashloan field must name.
func (p *Program) FlashloanAuthority() solana.PublicKey { return p.sequencer.authority }

// Execute runs req in one ledger transaction. On failure nothing is committed
// and the error is a *ledger.TxError wrapping a classified *Error.
func (p *Program) Execute(ctx context.Context, req TradeRequest) (ledger.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Receipt{}, err
	}
	log := p.log.With().Str("request_id", uuid.NewString()).Logger()
	payload, err := req.Message()
	if err != nil {
		return ledger.Receipt{}, &Error{Kind: ErrValidation, Op: "encode", Err: err}
	}
	msg := ledger.Message{
		Payload:    payload,
		Accounts:   req.AccountMetas(p.id),
		Signatures: req.Signatures,
	}

	var res Result
	receipt, err := p.ledger.Process(msg, func(tx *ledger.Tx) error {
		var err error
		res, err = p.sequencer.Execute(tx, req)
		return err
	})
	if err != nil {
		var txErr *ledger.TxError
		if errors.As(err, &txErr) {
			txErr.Err = classify("submit", txErr.Err)
		}
		metrics.TradeRequestsTotal.WithLabelValues(outcome(err)).Inc()
		log.Warn().Err(err).Int("actions", len(req.Actions)).Uint64("loan", req.LoanAmount).Msg("trade request rejected")
		return ledger.Receipt{}, err
	}

	metrics.TradeRequestsTotal.WithLabelValues(outcome(nil)).Inc()
	for _, fill := range res.Fills {
		metrics.TradeActionsTotal.WithLabelValues(fill.Kind.String()).Inc()
	}
	if res.Loan != nil {
		metrics.FlashloansTotal.Inc()
		metrics.FlashloanVolumeTotal.Add(float64(res.Loan.Principal))
	}
	log.Info().Str("signature", receipt.Signature.String()).Uint64("slot", receipt.Slot).Int("events", len(receipt.Events)).Msg("Transaction completed.")
	return receipt, nil
}
