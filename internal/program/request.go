package program

import (
	"bytes"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// ActionKind tags a trading action.
type ActionKind uint8

const (
	Buy ActionKind = iota
	Sell
)

func (k ActionKind) String() string {
	switch k {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return fmt.Sprintf("action(%d)", uint8(k))
	}
}

// Valid reports whether k is a known kind.
func (k ActionKind) Valid() bool { return k == Buy || k == Sell }

func (k ActionKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown action kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *ActionKind) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "buy":
		*k = Buy
	case "sell":
		*k = Sell
	default:
		return fmt.Errorf("unknown action %q", string(text))
	}
	return nil
}

// Action is one step of a trade request. Amount zero means the trader's whole
// spendable balance: quote for a buy, base for a sell. Price is quote per base;
// zero trades 1:1.
type Action struct {
	Kind   ActionKind      `json:"kind" yaml:"kind"`
	Amount uint64          `json:"amount,omitempty" yaml:"amount,omitempty"`
	Price  decimal.Decimal `json:"price,omitempty" yaml:"price,omitempty"`
}

// FlashloanContext names the lending accounts a loan needs. All fields are required.
type FlashloanContext struct {
	Flashloan              solana.PublicKey `json:"flashloan" yaml:"flashloan"`
	FlashloanProgram       solana.PublicKey `json:"flashloan_program" yaml:"flashloan_program"`
	SourceLiquidity        solana.PublicKey `json:"source_liquidity" yaml:"source_liquidity"`
	DestinationLiquidity   solana.PublicKey `json:"destination_liquidity" yaml:"destination_liquidity"`
	Reserve                solana.PublicKey `json:"reserve" yaml:"reserve"`
	LendingMarket          solana.PublicKey `json:"lending_market" yaml:"lending_market"`
	LendingMarketAuthority solana.PublicKey `json:"lending_market_authority" yaml:"lending_market_authority"`
}

// Missing lists the unset fields of c.
func (c *FlashloanContext) Missing() []string {
	if c == nil {
		return []string{"flashloan context"}
	}
	var out []string
	for _, f := range []struct {
		name string
		key  solana.PublicKey
	}{
		{"flashloan", c.Flashloan},
		{"flashloan_program", c.FlashloanProgram},
		{"source_liquidity", c.SourceLiquidity},
		{"destination_liquidity", c.DestinationLiquidity},
		{"reserve", c.Reserve},
		{"lending_market", c.LendingMarket},
		{"lending_market_authority", c.LendingMarketAuthority},
	} {
		if f.key.IsZero() {
			out = append(out, f.name)
		}
	}
	return out
}

// TradeRequest asks the program to run Actions in order inside one transaction,
// optionally funded by a flash loan of LoanAmount to Borrower.
type TradeRequest struct {
	Actions       []Action
	LoanAmount    uint64
	Buyer         solana.PublicKey
	Seller        solana.PublicKey
	Borrower      solana.PublicKey
	Flashloan     *FlashloanContext
	TokenProgram  solana.PublicKey
	SystemProgram solana.PublicKey
	Signatures    map[solana.PublicKey]solana.Signature
}

type wireAction struct {
	Kind   uint8
	Amount uint64
	Price  string
}

type wireRequest struct {
	Domain        string
	Actions       []wireAction
	LoanAmount    uint64
	Buyer         solana.PublicKey
	Seller        solana.PublicKey
	Borrower      solana.PublicKey
	HasFlashloan  bool
	Flashloan     FlashloanContext
	TokenProgram  solana.PublicKey
	SystemProgram solana.PublicKey
}

const messageDomain = "solana-rust-arb/trade-request/v1"

// Message is the borsh encoding of the request without its signatures. It is
// what participants sign.
func (r *TradeRequest) Message() ([]byte, error) {
	w := wireRequest{
		Domain:        messageDomain,
		LoanAmount:    r.LoanAmount,
		Buyer:         r.Buyer,
		Seller:        r.Seller,
		Borrower:      r.Borrower,
		TokenProgram:  r.TokenProgram,
		SystemProgram: r.SystemProgram,
	}
	for _, a := range r.Actions {
		w.Actions = append(w.Actions, wireAction{Kind: uint8(a.Kind), Amount: a.Amount, Price: a.Price.String()})
	}
	if r.Flashloan != nil {
		w.HasFlashloan = true
		w.Flashloan = *r.Flashloan
	}
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(w); err != nil {
		return nil, fmt.Errorf("encode trade request: %w", err)
	}
	return buf.Bytes(), nil
}

// Sign adds a signature over Message for every key.
func (r *TradeRequest) Sign(keys ...solana.PrivateKey) error {
	msg, err := r.Message()
	if err != nil {
		return err
	}
	if r.Signatures == nil {
		r.Signatures = make(map[solana.PublicKey]solana.Signature, len(keys))
	}
	for _, key := range keys {
		sig, err := key.Sign(msg)
		if err != nil {
			return fmt.Errorf("sign trade request: %w", err)
		}
		r.Signatures[key.PublicKey()] = sig
	}
	return nil
}

// AccountMetas is the account set the transaction may touch.
func (r *TradeRequest) AccountMetas(programID solana.PublicKey) []*solana.AccountMeta {
	var metas []*solana.AccountMeta
	add := func(key solana.PublicKey, writable bool) {
		if key.IsZero() {
			return
		}
		_, signed := r.Signatures[key]
		metas = append(metas, solana.NewAccountMeta(key, writable, signed))
	}
	add(r.Buyer, true)
	add(r.Seller, true)
	if r.LoanAmount > 0 {
		add(r.Borrower, true)
		if fc := r.Flashloan; fc != nil {
			add(fc.Flashloan, true)
			add(fc.FlashloanProgram, false)
			add(fc.SourceLiquidity, true)
			add(fc.DestinationLiquidity, true)
			add(fc.Reserve, true)
			add(fc.LendingMarket, false)
			add(fc.LendingMarketAuthority, false)
		}
	}
	add(r.TokenProgram, false)
	add(r.SystemProgram, false)
	add(programID, false)
	return metas
}
