// Package engine assembles the ledger, lending reserve, trading program, price
// oracle and event sinks described by a config.Config.
package engine

import (
	"context"
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/Linkan333/solana-rust-arb/internal/config"
	"github.com/Linkan333/solana-rust-arb/internal/events"
	"github.com/Linkan333/solana-rust-arb/internal/flashloan"
	"github.com/Linkan333/solana-rust-arb/internal/ledger"
	"github.com/Linkan333/solana-rust-arb/internal/oracle"
	"github.com/Linkan333/solana-rust-arb/internal/program"
	"github.com/Linkan333/solana-rust-arb/internal/risk"
	"github.com/Linkan333/solana-rust-arb/internal/store"
)

// Engine owns every long-lived component of a flashtrade process.
type Engine struct {
	Ledger   *ledger.Ledger
	Reserve  *flashloan.Reserve
	Program  *program.Program
	Hub      *events.Hub
	Store    *store.Store
	Recorder *events.JSONLRecorder
	Redis    *events.RedisSink
	Oracle   oracle.PriceOracle
	Pair     oracle.Pair

	binance     *oracle.BinanceBook
	recorderSub *events.Subscription
	redisSub    *events.Subscription
	log         zerolog.Logger
}

// New builds an engine from cfg. cfg should already be validated.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine: nil config")
	}
	e := &Engine{log: log.With().Str("component", "engine").Logger()}
	ok := false
	defer func() {
		if !ok {
			_ = e.Close()
		}
	}()

	market, err := marketFromConfig(cfg.Market)
	if err != nil {
		return nil, err
	}
	e.Pair = oracle.Pair{Base: cfg.Market.Base, Quote: cfg.Market.Quote, BaseMint: market.Base, QuoteMint: market.Quote}

	e.Ledger = ledger.New(log)
	if e.Store, err = store.NewSQLite(cfg.Store, log); err != nil {
		return nil, err
	}
	slot, sequence, err := e.Store.Cursor(ctx)
	if err != nil {
		return nil, err
	}
	e.Ledger.Resume(slot, sequence)

	if e.Reserve, err = openReserve(e.Ledger, cfg, market, log); err != nil {
		return nil, err
	}

	programID, err := keyOr(cfg.Program.ID, program.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("program.id: %w", err)
	}
	e.Program, err = program.New(e.Ledger, program.Options{
		ProgramID:        programID,
		LendingProgramID: e.Reserve.Config().ProgramID,
		Market:           market,
		Lender:           e.Reserve,
		Limits:           risk.Limits{MaxLoanAmount: cfg.Risk.MaxLoanAmount, MaxActions: cfg.Risk.MaxActions},
		Log:              log,
	})
	if err != nil {
		return nil, err
	}

	e.Hub = events.NewHub(cfg.Events.Buffer, log)
	e.Ledger.AddSink(e.Hub)
	e.Ledger.AddSink(e.Store)

	if cfg.Events.JSONLPath != "" {
		if e.Recorder, err = events.NewJSONLRecorder(cfg.Events.JSONLPath); err != nil {
			return nil, fmt.Errorf("open event recorder: %w", err)
		}
		e.recorderSub = e.Hub.Subscribe()
	}
	if cfg.Events.Redis.Addr != "" {
		e.Redis, err = events.NewRedisSink(ctx, events.RedisConfig{
			Addr:     cfg.Events.Redis.Addr,
			Password: cfg.Events.Redis.Password,
			DB:       cfg.Events.Redis.DB,
			Stream:   cfg.Events.Redis.Stream,
		}, log)
		if err != nil {
			return nil, err
		}
		e.redisSub = e.Hub.Subscribe()
	}

	venues, binance, err := oracle.Venues(cfg.Oracle, e.Pair, log)
	if err != nil {
		return nil, err
	}
	e.Oracle, e.binance = oracle.NewAggregator(cfg.Oracle.Timeout, venues...), binance

	ok = true
	e.log.Info().
		Str("program", e.Program.ID().String()).
		Str("reserve", e.Reserve.Config().Address.String()).
		Str("pair", e.Pair.String()).
		Msg("engine ready")
	return e, nil
}

// Run drives the background sinks and streaming venues until ctx ends. The
// sinks were subscribed in New, so transactions committed before Run starts
// still reach them. Run is meant to be called once.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCancel(e.Store.Run(ctx)) })
	if e.recorderSub != nil {
		g.Go(func() error { return ignoreCancel(e.Recorder.Run(ctx, e.recorderSub)) })
	}
	if e.redisSub != nil {
		g.Go(func() error { return ignoreCancel(e.Redis.Run(ctx, e.redisSub)) })
	}
	if e.binance != nil {
		g.Go(func() error { return ignoreCancel(e.binance.Run(ctx)) })
	}
	return g.Wait()
}

// OpenVenue creates a counterparty account owned by the trading program and
// funds it with both sides of the market.
func (e *Engine) OpenVenue(addr solana.PublicKey, baseLiquidity, quoteLiquidity uint64) error {
	if err := e.Ledger.CreateAccount(addr, e.Program.ID()); err != nil && !errors.Is(err, ledger.ErrAccountExists) {
		return fmt.Errorf("create venue: %w", err)
	}
	if err := e.Ledger.Airdrop(addr, e.Pair.BaseMint, baseLiquidity); err != nil {
		return fmt.Errorf("fund venue base: %w", err)
	}
	if err := e.Ledger.Airdrop(addr, e.Pair.QuoteMint, quoteLiquidity); err != nil {
		return fmt.Errorf("fund venue quote: %w", err)
	}
	return nil
}

// FlashloanContext returns the lending accounts for a loan paid out to dest.
func (e *Engine) FlashloanContext(dest solana.PublicKey) *program.FlashloanContext {
	cfg := e.Reserve.Config()
	return &program.FlashloanContext{
		Flashloan:              e.Program.FlashloanAuthority(),
		FlashloanProgram:       cfg.ProgramID,
		SourceLiquidity:        cfg.LiquiditySupply,
		DestinationLiquidity:   dest,
		Reserve:                cfg.Address,
		LendingMarket:          cfg.LendingMarket,
		LendingMarketAuthority: e.Reserve.MarketAuthority(),
	}
}

// RoundTrip prices a buy of quoteAmount at the current ask followed by a sell
// of everything bought at the current bid.
func (e *Engine) RoundTrip(ctx context.Context, quoteAmount uint64) ([]program.Action, oracle.Quote, error) {
	q, err := e.Oracle.Quote(ctx, e.Pair)
	if err != nil {
		return nil, oracle.Quote{}, err
	}
	return []program.Action{
		{Kind: program.Buy, Amount: quoteAmount, Price: q.Ask},
		{Kind: program.Sell, Price: q.Bid},
	}, q, nil
}

// Request builds a trade request for trader against venue. A positive loan is
// borrowed by and paid out to trader.
func (e *Engine) Request(trader, venue solana.PublicKey, actions []program.Action, loan uint64) program.TradeRequest {
	req := program.TradeRequest{
		Actions:       actions,
		LoanAmount:    loan,
		Buyer:         trader,
		Seller:        venue,
		TokenProgram:  solana.TokenProgramID,
		SystemProgram: solana.SystemProgramID,
	}
	if loan > 0 {
		req.Borrower = trader
		req.Flashloan = e.FlashloanContext(trader)
	}
	return req
}

// Close releases every sink. It is safe on a partially built engine.
func (e *Engine) Close() error {
	var err error
	if e.Hub != nil {
		e.Hub.Close()
	}
	if e.Recorder != nil {
		err = multierr.Append(err, e.Recorder.Close())
	}
	if e.Redis != nil {
		err = multierr.Append(err, e.Redis.Close())
	}
	if e.Store != nil {
		err = multierr.Append(err, e.Store.Close())
	}
	return err
}

func marketFromConfig(cfg config.Market) (program.Market, error) {
	base, err := keyOr(cfg.BaseMint, solana.NewWallet().PublicKey())
	if err != nil {
		return program.Market{}, fmt.Errorf("market.base_mint: %w", err)
	}
	quote, err := keyOr(cfg.QuoteMint, solana.NewWallet().PublicKey())
	if err != nil {
		return program.Market{}, fmt.Errorf("market.quote_mint: %w", err)
	}
	return program.Market{Base: base, Quote: quote}, nil
}

func openReserve(l *ledger.Ledger, cfg *config.Config, market program.Market, log zerolog.Logger) (*flashloan.Reserve, error) {
	lendingProgram, err := keyOr(cfg.Program.LendingProgramID, program.LendingProgramID)
	if err != nil {
		return nil, fmt.Errorf("program.lending_program_id: %w", err)
	}
	rc := flashloan.ReserveConfig{ProgramID: lendingProgram, Mint: market.Quote, FeeBps: cfg.Flashloan.FeeBps}
	for _, f := range []struct {
		name  string
		value string
		dst   *solana.PublicKey
	}{
		{"flashloan.reserve", cfg.Flashloan.Reserve, &rc.Address},
		{"flashloan.lending_market", cfg.Flashloan.LendingMarket, &rc.LendingMarket},
		{"flashloan.liquidity_supply", cfg.Flashloan.LiquiditySupply, &rc.LiquiditySupply},
	} {
		if *f.dst, err = keyOr(f.value, solana.NewWallet().PublicKey()); err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	reserve, err := flashloan.NewReserve(rc, log)
	if err != nil {
		return nil, err
	}
	if err := reserve.Open(l, cfg.Flashloan.Liquidity); err != nil {
		return nil, err
	}
	return reserve, nil
}

// keyOr parses value, or returns def when value is empty.
func keyOr(value string, def solana.PublicKey) (solana.PublicKey, error) {
	if value == "" {
		return def, nil
	}
	return solana.PublicKeyFromBase58(value)
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
