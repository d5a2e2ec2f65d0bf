package flashloan

import (
	"errors"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/Linkan333/solana-rust-arb/internal/ledger"
)

var (
	testLendingProgram = solana.MustPublicKeyFromBase58("ALend7Ketfx5bxh6ghsCDXAoDrhvEmsXT3cynB6aPLgx")
	testMint           = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

type fixture struct {
	ledger   *ledger.Ledger
	reserve  *Reserve
	borrower solana.PrivateKey
	flash    solana.PublicKey
	params   BorrowParams
	msg      ledger.Message
}

func newFixture(t *testing.T, liquidity uint64, feeBps uint64) *fixture {
	t.Helper()
	l := ledger.New(zerolog.Nop())
	cfg := ReserveConfig{
		ProgramID:       testLendingProgram,
		Address:         solana.NewWallet().PublicKey(),
		LendingMarket:   solana.NewWallet().PublicKey(),
		LiquiditySupply: solana.NewWallet().PublicKey(),
		Mint:            testMint,
		FeeBps:          feeBps,
	}
	reserve, err := NewReserve(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewReserve: %v", err)
	}
	if err := reserve.Open(l, liquidity); err != nil {
		t.Fatalf("Open: %v", err)
	}

	borrower := solana.NewWallet().PrivateKey
	flash := solana.NewWallet().PublicKey()
	if err := l.Airdrop(borrower.PublicKey(), testMint, 0); err != nil {
		t.Fatalf("airdrop: %v", err)
	}
	if err := l.Airdrop(flash, testMint, 0); err != nil {
		t.Fatalf("airdrop: %v", err)
	}

	params := BorrowParams{
		Borrower:               borrower.PublicKey(),
		Flashloan:              flash,
		FlashloanProgram:       testLendingProgram,
		SourceLiquidity:        cfg.LiquiditySupply,
		DestinationLiquidity:   borrower.PublicKey(),
		Reserve:                cfg.Address,
		LendingMarket:          cfg.LendingMarket,
		LendingMarketAuthority: reserve.MarketAuthority(),
	}
	payload := []byte("flash")
	sig, err := borrower.Sign(payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	msg := ledger.Message{
		Payload: payload,
		Accounts: []*solana.AccountMeta{
			solana.Meta(borrower.PublicKey()).WRITE().SIGNER(),
			solana.Meta(flash).WRITE(),
			solana.Meta(cfg.LiquiditySupply).WRITE(),
			solana.Meta(cfg.Address).WRITE(),
			solana.Meta(cfg.LendingMarket),
			solana.Meta(reserve.MarketAuthority()),
			solana.Meta(testLendingProgram),
		},
		Signatures: map[solana.PublicKey]solana.Signature{borrower.PublicKey(): sig},
	}
	return &fixture{ledger: l, reserve: reserve, borrower: borrower, flash: flash, params: params, msg: msg}
}

func TestBorrowRepayRoundTrip(t *testing.T) {
	f := newFixture(t, 10_000, 30)
	if err := f.ledger.Airdrop(f.borrower.PublicKey(), testMint, 50); err != nil {
		t.Fatalf("airdrop: %v", err)
	}

	var receipt RepayReceipt
	_, err := f.ledger.Process(f.msg, func(tx *ledger.Tx) error {
		p := f.params
		p.Amount = 1000
		loan, err := f.reserve.Borrow(tx, p)
		if err != nil {
			return err
		}
		if loan.FeeOwed != 3 {
			t.Errorf("expected fee 3, got %d", loan.FeeOwed)
		}
		receipt, err = f.reserve.Repay(tx, loan, loan.Owed())
		return err
	})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if receipt.Amount != 1003 || receipt.Fee != 3 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if got := f.ledger.Balance(f.reserve.Config().LiquiditySupply, testMint); got != 10_003 {
		t.Fatalf("expected supply to earn fee, got %d", got)
	}
	if got := f.ledger.Balance(f.borrower.PublicKey(), testMint); got != 47 {
		t.Fatalf("expected borrower to pay fee, got %d", got)
	}
}

func TestUnrepaidLoanRejectsCommit(t *testing.T) {
	f := newFixture(t, 10_000, 30)
	_, err := f.ledger.Process(f.msg, func(tx *ledger.Tx) error {
		p := f.params
		p.Amount = 500
		_, err := f.reserve.Borrow(tx, p)
		return err
	})
	if !errors.Is(err, ErrNotRepaid) {
		t.Fatalf("expected ErrNotRepaid, got %v", err)
	}
	if got := f.ledger.Balance(f.borrower.PublicKey(), testMint); got != 0 {
		t.Fatalf("borrowed funds leaked: %d", got)
	}
	if got := f.ledger.Balance(f.reserve.Config().LiquiditySupply, testMint); got != 10_000 {
		t.Fatalf("supply changed: %d", got)
	}
}

func TestBorrowRefusals(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *BorrowParams)
	}{
		{"wrong program", func(p *BorrowParams) { p.FlashloanProgram = p.Borrower }},
		{"wrong reserve", func(p *BorrowParams) { p.Reserve = solana.NewWallet().PublicKey() }},
		{"wrong authority", func(p *BorrowParams) { p.LendingMarketAuthority = p.LendingMarket }},
		{"wrong source", func(p *BorrowParams) { p.SourceLiquidity = p.Flashloan }},
		{"zero amount", func(p *BorrowParams) { p.Amount = 0 }},
		{"over liquidity", func(p *BorrowParams) { p.Amount = 20_000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10_000, 30)
			_, err := f.ledger.Process(f.msg, func(tx *ledger.Tx) error {
				p := f.params
				p.Amount = 100
				tt.mutate(&p)
				_, err := f.reserve.Borrow(tx, p)
				return err
			})
			if !errors.Is(err, ErrRefused) {
				t.Fatalf("expected ErrRefused, got %v", err)
			}
		})
	}
}

func TestRepayShortOfOwed(t *testing.T) {
	f := newFixture(t, 10_000, 100)
	_, err := f.ledger.Process(f.msg, func(tx *ledger.Tx) error {
		p := f.params
		p.Amount = 1000
		loan, err := f.reserve.Borrow(tx, p)
		if err != nil {
			return err
		}
		_, err = f.reserve.Repay(tx, loan, loan.Principal)
		return err
	})
	if !errors.Is(err, ErrRefused) {
		t.Fatalf("expected ErrRefused for short repayment, got %v", err)
	}
}

func TestRepayInsufficientBorrowerFunds(t *testing.T) {
	f := newFixture(t, 10_000, 100)
	_, err := f.ledger.Process(f.msg, func(tx *ledger.Tx) error {
		p := f.params
		p.Amount = 1000
		loan, err := f.reserve.Borrow(tx, p)
		if err != nil {
			return err
		}
		_, err = f.reserve.Repay(tx, loan, loan.Owed())
		return err
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ledger insufficient funds, got %v", err)
	}
}

func TestBpsFeeRoundsUp(t *testing.T) {
	tests := []struct {
		bps       BpsFee
		principal uint64
		want      uint64
	}{
		{0, 1000, 0},
		{30, 1000, 3},
		{30, 1001, 4},
		{5, 1, 1},
		{30, 0, 0},
	}
	for _, tt := range tests {
		if got := tt.bps.Fee(tt.principal); got != tt.want {
			t.Errorf("BpsFee(%d).Fee(%d) = %d, want %d", tt.bps, tt.principal, got, tt.want)
		}
	}
}
