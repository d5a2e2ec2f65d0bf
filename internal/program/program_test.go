package program

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Linkan333/solana-rust-arb/internal/flashloan"
	"github.com/Linkan333/solana-rust-arb/internal/ledger"
	"github.com/Linkan333/solana-rust-arb/internal/risk"
)

var usdc = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

const (
	venueLiquidity   = 1_000_000
	reserveLiquidity = 1_000_000
)

type harness struct {
	t       *testing.T
	ledger  *ledger.Ledger
	program *Program
	reserve *flashloan.Reserve
	market  Market
	buyer   solana.PrivateKey
	seller  solana.PublicKey
}

func newHarness(t *testing.T, buyerFunds uint64, configure ...func(*Options)) *harness {
	t.Helper()
	l := ledger.New(zerolog.Nop())
	market := Market{Base: solana.NewWallet().PublicKey(), Quote: usdc}

	reserve, err := flashloan.NewReserve(flashloan.ReserveConfig{
		ProgramID:       LendingProgramID,
		Address:         solana.NewWallet().PublicKey(),
		LendingMarket:   solana.NewWallet().PublicKey(),
		LiquiditySupply: solana.NewWallet().PublicKey(),
		Mint:            market.Quote,
		FeeBps:          30,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewReserve: %v", err)
	}
	if err := reserve.Open(l, reserveLiquidity); err != nil {
		t.Fatalf("open reserve: %v", err)
	}

	opts := Options{Market: market, Lender: reserve, Log: zerolog.Nop()}
	for _, fn := range configure {
		fn(&opts)
	}
	prog, err := New(l, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	seller := solana.NewWallet().PublicKey()
	if err := l.CreateAccount(seller, ProgramID); err != nil {
		t.Fatalf("create venue: %v", err)
	}
	for _, mint := range []solana.PublicKey{market.Base, market.Quote} {
		if err := l.Airdrop(seller, mint, venueLiquidity); err != nil {
			t.Fatalf("fund venue: %v", err)
		}
	}

	buyer := solana.NewWallet().PrivateKey
	if err := l.Airdrop(buyer.PublicKey(), market.Quote, buyerFunds); err != nil {
		t.Fatalf("airdrop buyer: %v", err)
	}
	return &harness{t: t, ledger: l, program: prog, reserve: reserve, market: market, buyer: buyer, seller: seller}
}

func (h *harness) flashloanContext() *FlashloanContext {
	cfg := h.reserve.Config()
	return &FlashloanContext{
		Flashloan:              h.program.FlashloanAuthority(),
		FlashloanProgram:       LendingProgramID,
		SourceLiquidity:        cfg.LiquiditySupply,
		DestinationLiquidity:   h.buyer.PublicKey(),
		Reserve:                cfg.Address,
		LendingMarket:          cfg.LendingMarket,
		LendingMarketAuthority: h.reserve.MarketAuthority(),
	}
}

func (h *harness) request(actions []Action, loan uint64) TradeRequest {
	req := TradeRequest{
		Actions:       actions,
		LoanAmount:    loan,
		Buyer:         h.buyer.PublicKey(),
		Seller:        h.seller,
		TokenProgram:  solana.TokenProgramID,
		SystemProgram: solana.SystemProgramID,
	}
	if loan > 0 {
		req.Borrower = h.buyer.PublicKey()
		req.Flashloan = h.flashloanContext()
	}
	return req
}

func (h *harness) sign(req *TradeRequest) {
	h.t.Helper()
	if err := req.Sign(h.buyer); err != nil {
		h.t.Fatalf("sign: %v", err)
	}
}

func (h *harness) balance(addr, mint solana.PublicKey) uint64 { return h.ledger.Balance(addr, mint) }

type snapshot map[string]uint64

func (h *harness) snapshot() snapshot {
	supply := h.reserve.Config().LiquiditySupply
	return snapshot{
		"buyer quote":  h.balance(h.buyer.PublicKey(), h.market.Quote),
		"buyer base":   h.balance(h.buyer.PublicKey(), h.market.Base),
		"venue quote":  h.balance(h.seller, h.market.Quote),
		"venue base":   h.balance(h.seller, h.market.Base),
		"reserve":      h.balance(supply, h.market.Quote),
		"ledger slot":  h.ledger.Slot(),
		"journal size": uint64(len(h.ledger.Journal().Events())),
	}
}

func (h *harness) assertUnchanged(before snapshot) {
	h.t.Helper()
	after := h.snapshot()
	for k, v := range before {
		if after[k] != v {
			h.t.Fatalf("%s changed from %d to %d", k, v, after[k])
		}
	}
}

func buyThenSell() []Action { return []Action{{Kind: Buy}, {Kind: Sell}} }

func TestFlashloanBuySellCommits(t *testing.T) {
	h := newHarness(t, 100)
	req := h.request(buyThenSell(), 1000)
	h.sign(&req)

	receipt, err := h.program.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	trades := TradeEvents(receipt.Events)
	if len(trades) != 2 || trades[0].Action != Buy || trades[1].Action != Sell {
		t.Fatalf("expected [buy sell] trade events, got %+v", trades)
	}
	loans := FlashloanEvents(receipt.Events)
	if len(loans) != 1 {
		t.Fatalf("expected one flashloan event, got %d", len(loans))
	}
	if loans[0].Principal != 1000 || !loans[0].Repaid || loans[0].Fee != 3 {
		t.Fatalf("unexpected flashloan event %+v", loans[0])
	}
	if receipt.Events[len(receipt.Events)-1].Name != FlashloanEventName {
		t.Fatalf("expected flashloan event after trades")
	}
	for i := 1; i < len(receipt.Events); i++ {
		if receipt.Events[i].Sequence != receipt.Events[i-1].Sequence+1 {
			t.Fatalf("event sequences not contiguous: %+v", receipt.Events)
		}
	}

	if got := h.balance(h.buyer.PublicKey(), h.market.Quote); got != 97 {
		t.Fatalf("expected buyer to end with 97 quote after fee, got %d", got)
	}
	if got := h.balance(h.reserve.Config().LiquiditySupply, h.market.Quote); got != reserveLiquidity+3 {
		t.Fatalf("expected reserve to collect fee, got %d", got)
	}
	if !strings.Contains(strings.Join(receipt.Logs, "\n"), "Transaction completed.") {
		t.Fatalf("expected completion log, got %v", receipt.Logs)
	}
	for _, line := range []string{
		"Flashloan Program ID: " + LendingProgramID.String(),
		"Borrower: " + h.buyer.PublicKey().String(),
		"Flashloan: " + h.program.FlashloanAuthority().String(),
		"Amount: 1000",
	} {
		if !slices.Contains(receipt.Logs, line) {
			t.Fatalf("expected log line %q, got %v", line, receipt.Logs)
		}
	}
}

func TestBuyerWithoutFundsCannotRepay(t *testing.T) {
	h := newHarness(t, 0)
	req := h.request(buyThenSell(), 1000)
	h.sign(&req)
	before := h.snapshot()

	_, err := h.program.Execute(context.Background(), req)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	var txErr *ledger.TxError
	if !errors.As(err, &txErr) || len(txErr.Logs) == 0 {
		t.Fatalf("expected simulation logs with the failure, got %v", err)
	}
	h.assertUnchanged(before)
}

func TestMissingReserveRejectedBeforeBorrow(t *testing.T) {
	h := newHarness(t, 100)
	req := h.request(buyThenSell(), 1000)
	req.Flashloan.Reserve = solana.PublicKey{}
	h.sign(&req)
	before := h.snapshot()

	_, err := h.program.Execute(context.Background(), req)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var txErr *ledger.TxError
	if errors.As(err, &txErr) {
		for _, line := range txErr.Logs {
			if strings.Contains(line, "invoke") {
				t.Fatalf("lending program was invoked: %v", txErr.Logs)
			}
		}
	}
	h.assertUnchanged(before)
}

func TestLoanWithoutContextRejected(t *testing.T) {
	h := newHarness(t, 100)
	req := h.request(buyThenSell(), 1000)
	req.Flashloan = nil
	h.sign(&req)

	if _, err := h.program.Execute(context.Background(), req); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSwappedFlashloanProgramRejected(t *testing.T) {
	h := newHarness(t, 100)
	req := h.request(buyThenSell(), 1000)
	req.Flashloan.FlashloanProgram = h.seller
	h.sign(&req)

	if _, err := h.program.Execute(context.Background(), req); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEmptyActionsRejected(t *testing.T) {
	h := newHarness(t, 100)
	req := h.request(nil, 0)
	h.sign(&req)

	if _, err := h.program.Execute(context.Background(), req); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUnsignedBuyerUnauthorized(t *testing.T) {
	h := newHarness(t, 100)
	req := h.request([]Action{{Kind: Buy, Amount: 10}}, 0)
	before := h.snapshot()

	if _, err := h.program.Execute(context.Background(), req); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	h.assertUnchanged(before)
}

func TestTamperedRequestUnauthorized(t *testing.T) {
	h := newHarness(t, 100)
	req := h.request([]Action{{Kind: Buy, Amount: 10}}, 0)
	h.sign(&req)
	req.Actions[0].Amount = 90

	if _, err := h.program.Execute(context.Background(), req); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for tampered request, got %v", err)
	}
}

func TestMissingVenueIsExternalError(t *testing.T) {
	h := newHarness(t, 100)
	req := h.request([]Action{{Kind: Buy, Amount: 10}}, 0)
	req.Seller = solana.NewWallet().PublicKey()
	h.sign(&req)

	if _, err := h.program.Execute(context.Background(), req); !errors.Is(err, ErrExternalVenue) {
		t.Fatalf("expected external venue error, got %v", err)
	}
}

func TestSellComputedAgainstPostBuyBalance(t *testing.T) {
	h := newHarness(t, 100)
	req := h.request([]Action{
		{Kind: Buy, Amount: 100, Price: decimal.NewFromInt(2)},
		{Kind: Sell, Price: decimal.NewFromInt(3)},
	}, 0)
	h.sign(&req)

	receipt, err := h.program.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	trades := TradeEvents(receipt.Events)
	if len(trades) != 2 {
		t.Fatalf("expected 2 trade events, got %d", len(trades))
	}
	if trades[0].BaseAmount != 50 {
		t.Fatalf("expected buy of 50 base, got %d", trades[0].BaseAmount)
	}
	if trades[1].BaseAmount != 50 || trades[1].QuoteAmount != 150 {
		t.Fatalf("expected sell of the 50 bought base for 150, got %+v", trades[1])
	}
	if len(FlashloanEvents(receipt.Events)) != 0 {
		t.Fatalf("unexpected flashloan event without a loan")
	}
	if got := h.balance(h.buyer.PublicKey(), h.market.Quote); got != 150 {
		t.Fatalf("expected 150 quote, got %d", got)
	}
}

func TestLaterActionFailureDiscardsEarlierOnes(t *testing.T) {
	h := newHarness(t, 100)
	req := h.request([]Action{
		{Kind: Buy, Amount: 50},
		{Kind: Sell, Amount: 10_000},
	}, 0)
	h.sign(&req)
	before := h.snapshot()

	if _, err := h.program.Execute(context.Background(), req); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	h.assertUnchanged(before)
}

func TestUnderpricedRepaymentFailsLoan(t *testing.T) {
	h := newHarness(t, 100, func(o *Options) { o.Fees = flashloan.BpsFee(0) })
	req := h.request(buyThenSell(), 1000)
	h.sign(&req)
	before := h.snapshot()

	if _, err := h.program.Execute(context.Background(), req); !errors.Is(err, ErrFlashloan) {
		t.Fatalf("expected flashloan error, got %v", err)
	}
	h.assertUnchanged(before)
}

func TestLoanLimit(t *testing.T) {
	h := newHarness(t, 100, func(o *Options) { o.Limits = risk.Limits{MaxLoanAmount: 500} })
	req := h.request(buyThenSell(), 1000)
	h.sign(&req)

	if _, err := h.program.Execute(context.Background(), req); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for oversized loan, got %v", err)
	}
}

func TestConcurrentRequestsAreIsolated(t *testing.T) {
	h := newHarness(t, 0)
	buyers := make([]solana.PrivateKey, 8)
	for i := range buyers {
		buyers[i] = solana.NewWallet().PrivateKey
		if err := h.ledger.Airdrop(buyers[i].PublicKey(), h.market.Quote, 100); err != nil {
			t.Fatalf("airdrop: %v", err)
		}
	}

	var g errgroup.Group
	for _, key := range buyers {
		key := key
		g.Go(func() error {
			req := TradeRequest{
				Actions: []Action{{Kind: Buy, Amount: 40}},
				Buyer:   key.PublicKey(),
				Seller:  h.seller,
			}
			if err := req.Sign(key); err != nil {
				return err
			}
			_, err := h.program.Execute(context.Background(), req)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent execute: %v", err)
	}

	if got := h.balance(h.seller, h.market.Quote); got != venueLiquidity+8*40 {
		t.Fatalf("unexpected venue quote balance %d", got)
	}
	if got := h.ledger.Slot(); got != 8 {
		t.Fatalf("expected 8 committed slots, got %d", got)
	}
	events := h.ledger.Journal().Events()
	for i := 1; i < len(events); i++ {
		if events[i].Sequence <= events[i-1].Sequence {
			t.Fatalf("journal sequences not increasing")
		}
	}
}

func TestExecuteHonoursCancelledContext(t *testing.T) {
	h := newHarness(t, 100)
	req := h.request([]Action{{Kind: Buy}}, 0)
	h.sign(&req)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.program.Execute(ctx, req); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestOverflowingConversionIsValidationError(t *testing.T) {
	h := newHarness(t, 0)
	if err := h.ledger.Airdrop(h.buyer.PublicKey(), h.market.Base, 50); err != nil {
		t.Fatalf("airdrop base: %v", err)
	}
	req := h.request([]Action{{Kind: Sell, Amount: 50, Price: decimal.RequireFromString("1e30")}}, 0)
	h.sign(&req)
	before := h.snapshot()

	_, err := h.program.Execute(context.Background(), req)
	if !errors.Is(err, ErrValidation) || !errors.Is(err, ledger.ErrOverflow) {
		t.Fatalf("expected overflow validation error, got %v", err)
	}
	h.assertUnchanged(before)
}

func TestToUnits(t *testing.T) {
	if got, err := toUnits(decimal.RequireFromString("12.9")); err != nil || got != 12 {
		t.Fatalf("expected 12, got %d (%v)", got, err)
	}
	if got, err := toUnits(decimal.NewFromInt(-4)); err != nil || got != 0 {
		t.Fatalf("expected 0 for negative, got %d (%v)", got, err)
	}
	if _, err := toUnits(units(^uint64(0)).Add(decimal.NewFromInt(1))); !errors.Is(err, ledger.ErrOverflow) {
		t.Fatalf("expected overflow past the uint64 range, got %v", err)
	}
}
