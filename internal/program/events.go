package program

import (
	solana "github.com/gagliardetto/solana-go"

	"github.com/Linkan333/solana-rust-arb/internal/ledger"
)

// Event names as they appear in committed records.
const (
	TradeActionEventName = "TradeActionEvent"
	FlashloanEventName   = "FlashloanEvent"
)

// TradeActionEvent records one executed action.
type TradeActionEvent struct {
	Action      ActionKind       `json:"action"`
	Buyer       solana.PublicKey `json:"buyer"`
	Seller      solana.PublicKey `json:"seller"`
	QuoteAmount uint64           `json:"quote_amount"`
	BaseAmount  uint64           `json:"base_amount"`
	Sequence    uint64           `json:"sequence"`
}

// FlashloanEvent records a loan that was borrowed and repaid in the transaction.
type FlashloanEvent struct {
	Borrower  solana.PublicKey `json:"borrower"`
	Reserve   solana.PublicKey `json:"reserve"`
	Principal uint64           `json:"principal"`
	Fee       uint64           `json:"fee"`
	Repaid    bool             `json:"repaid"`
	Sequence  uint64           `json:"sequence"`
}

func emitTrade(tx *ledger.Tx, req TradeRequest, fill Fill) TradeActionEvent {
	var ev TradeActionEvent
	tx.Emit(TradeActionEventName, func(seq uint64) any {
		ev = TradeActionEvent{
			Action:      fill.Kind,
			Buyer:       req.Buyer,
			Seller:      req.Seller,
			QuoteAmount: fill.QuoteAmount,
			BaseAmount:  fill.BaseAmount,
			Sequence:    seq,
		}
		return ev
	})
	return ev
}

func emitFlashloan(tx *ledger.Tx, ev FlashloanEvent) FlashloanEvent {
	tx.Emit(FlashloanEventName, func(seq uint64) any {
		ev.Sequence = seq
		return ev
	})
	return ev
}

// TradeEvents extracts the trade action events from committed records, in order.
func TradeEvents(records []ledger.Record) []TradeActionEvent {
	var out []TradeActionEvent
	for _, r := range records {
		if ev, ok := r.Payload.(TradeActionEvent); ok {
			out = append(out, ev)
		}
	}
	return out
}

// FlashloanEvents extracts the flash-loan events from committed records, in order.
func FlashloanEvents(records []ledger.Record) []FlashloanEvent {
	var out []FlashloanEvent
	for _, r := range records {
		if ev, ok := r.Payload.(FlashloanEvent); ok {
			out = append(out, ev)
		}
	}
	return out
}
