package program

import (
	"fmt"
	"math/big"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Linkan333/solana-rust-arb/internal/ledger"
)

// Market is the pair the program trades: Base is bought with Quote.
type Market struct {
	Base  solana.PublicKey
	Quote solana.PublicKey
}

// Fill is the balance effect of one executed action.
type Fill struct {
	Kind         ActionKind
	Trader       solana.PublicKey
	Counterparty solana.PublicKey
	QuoteAmount  uint64
	BaseAmount   uint64
}

// Executor applies single buy and sell actions against a counterparty account.
type Executor struct {
	programID solana.PublicKey
	market    Market
	log       zerolog.Logger
}

// NewExecutor builds an executor acting with programID's authority on market.
func NewExecutor(programID solana.PublicKey, market Market, log zerolog.Logger) *Executor {
	return &Executor{programID: programID, market: market, log: log}
}

// ExecuteBuy has trader pay quote to counterparty in exchange for base.
func (e *Executor) ExecuteBuy(tx *ledger.Tx, trader, counterparty solana.PublicKey, action Action) (Fill, error) {
	const op = "buy"
	tx.Logf("Executing buy transaction...")
	if err := e.checkCounterparty(tx, op, counterparty); err != nil {
		return Fill{}, err
	}
	quote, err := e.resolve(tx, op, trader, e.market.Quote, action.Amount)
	if err != nil {
		return Fill{}, err
	}
	base, err := quoteToBase(quote, action.Price)
	if err != nil {
		return Fill{}, classify(op, err)
	}
	if base == 0 {
		return Fill{}, newError(ErrInsufficientFunds, op, "%d quote buys no base at price %s", quote, action.Price)
	}
	if err := tx.Transfer(e.programID, trader, counterparty, e.market.Quote, quote); err != nil {
		return Fill{}, classify(op, err)
	}
	if err := tx.Transfer(e.programID, counterparty, trader, e.market.Base, base); err != nil {
		return Fill{}, classify(op, err)
	}
	e.log.Debug().Str("trader", trader.String()).Uint64("quote", quote).Uint64("base", base).Msg("buy filled")
	return Fill{Kind: Buy, Trader: trader, Counterparty: counterparty, QuoteAmount: quote, BaseAmount: base}, nil
}

// ExecuteSell has trader deliver base to counterparty in exchange for quote.
func (e *Executor) ExecuteSell(tx *ledger.Tx, trader, counterparty solana.PublicKey, action Action) (Fill, error) {
	const op = "sell"
	tx.Logf("Executing sell transaction...")
	if err := e.checkCounterparty(tx, op, counterparty); err != nil {
		return Fill{}, err
	}
	base, err := e.resolve(tx, op, trader, e.market.Base, action.Amount)
	if err != nil {
		return Fill{}, err
	}
	quote, err := baseToQuote(base, action.Price)
	if err != nil {
		return Fill{}, classify(op, err)
	}
	if quote == 0 {
		return Fill{}, newError(ErrInsufficientFunds, op, "%d base sells for no quote at price %s", base, action.Price)
	}
	if err := tx.Transfer(e.programID, trader, counterparty, e.market.Base, base); err != nil {
		return Fill{}, classify(op, err)
	}
	if err := tx.Transfer(e.programID, counterparty, trader, e.market.Quote, quote); err != nil {
		return Fill{}, classify(op, err)
	}
	e.log.Debug().Str("trader", trader.String()).Uint64("base", base).Uint64("quote", quote).Msg("sell filled")
	return Fill{Kind: Sell, Trader: trader, Counterparty: counterparty, QuoteAmount: quote, BaseAmount: base}, nil
}

func (e *Executor) checkCounterparty(tx *ledger.Tx, op string, counterparty solana.PublicKey) error {
	if !tx.Includes(counterparty) {
		return newError(ErrUnauthorized, op, "counterparty %s not in account set", counterparty)
	}
	if !tx.Exists(counterparty) {
		return newError(ErrExternalVenue, op, "counterparty account %s does not exist", counterparty)
	}
	return nil
}

// resolve returns the amount to trade, reading the trader's balance when amount is zero.
func (e *Executor) resolve(tx *ledger.Tx, op string, trader, mint solana.PublicKey, amount uint64) (uint64, error) {
	if amount > 0 {
		return amount, nil
	}
	balance, err := tx.Balance(trader, mint)
	if err != nil {
		return 0, classify(op, err)
	}
	if balance == 0 {
		return 0, newError(ErrInsufficientFunds, op, "trader %s has no spendable balance", trader)
	}
	return balance, nil
}

func quoteToBase(quote uint64, price decimal.Decimal) (uint64, error) {
	if !price.IsPositive() {
		return quote, nil
	}
	q, _ := units(quote).QuoRem(price, 0)
	return toUnits(q)
}

func baseToQuote(base uint64, price decimal.Decimal) (uint64, error) {
	if !price.IsPositive() {
		return base, nil
	}
	return toUnits(units(base).Mul(price))
}

func units(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// toUnits floors d to whole units.
func toUnits(d decimal.Decimal) (uint64, error) {
	n := d.Floor().BigInt()
	if n.Sign() <= 0 {
		return 0, nil
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("%s units: %w", d.Floor(), ledger.ErrOverflow)
	}
	return n.Uint64(), nil
}
