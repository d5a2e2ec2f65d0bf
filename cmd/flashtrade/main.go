package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Linkan333/solana-rust-arb/internal/config"
	"github.com/Linkan333/solana-rust-arb/internal/engine"
	"github.com/Linkan333/solana-rust-arb/internal/events"
	"github.com/Linkan333/solana-rust-arb/internal/metrics"
	"github.com/Linkan333/solana-rust-arb/internal/program"
	"github.com/Linkan333/solana-rust-arb/internal/util"
	"github.com/Linkan333/solana-rust-arb/internal/wallet"
)

func main() {
	var (
		configPath string
		amount     uint64
		loan       uint64
		fund       uint64
		venueFunds uint64
		once       bool
	)
	flag.StringVar(&configPath, "config", "configs/flashtrade.yaml", "path to the YAML config")
	flag.Uint64Var(&amount, "amount", 1_000_000, "quote amount spent by the buy leg")
	flag.Uint64Var(&loan, "loan", 1_000_000, "flash loan principal, 0 for none")
	flag.Uint64Var(&fund, "fund", 10_000_000, "quote airdropped to the trader before trading")
	flag.Uint64Var(&venueFunds, "venue", 1_000_000_000, "base and quote liquidity of the simulated venue")
	flag.BoolVar(&once, "once", false, "exit after the demo trade instead of serving events")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := util.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eng, err := engine.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build engine")
	}
	defer func() {
		if err := eng.Close(); err != nil {
			log.Warn().Err(err).Msg("close engine")
		}
	}()

	srv := metrics.Serve(cfg.App.MetricsAddr, map[string]http.Handler{
		"/events": events.NewStream(eng.Hub, log),
	})
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics and event stream up")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error {
		defer func() {
			if once {
				cancel()
			}
		}()
		return runDemo(gctx, eng, cfg.Wallet, amount, loan, fund, venueFunds, log)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("flashtrade stopped")
		os.Exit(1)
	}
	log.Info().Msg("shutting down")
}

// runDemo funds a trader and a venue on the simulated ledger and submits one
// flash-loan funded buy/sell round trip priced by the oracle.
func runDemo(ctx context.Context, eng *engine.Engine, wcfg config.Wallet, amount, loan, fund, venueFunds uint64, log zerolog.Logger) error {
	log = log.With().Str("component", "demo").Logger()

	trader, err := wallet.Load(wcfg)
	if errors.Is(err, wallet.ErrNotConfigured) {
		trader = solana.NewWallet().PrivateKey
		log.Warn().Str("trader", trader.PublicKey().String()).Msg("no wallet configured, using an ephemeral key")
	} else if err != nil {
		return err
	}

	venue := solana.NewWallet().PublicKey()
	if err := eng.OpenVenue(venue, venueFunds, venueFunds); err != nil {
		return err
	}
	if err := eng.Ledger.Airdrop(trader.PublicKey(), eng.Pair.QuoteMint, fund); err != nil {
		return fmt.Errorf("fund trader: %w", err)
	}

	actions, quote, err := eng.RoundTrip(ctx, amount)
	if err != nil {
		return err
	}
	log.Info().Str("venue", quote.Venue).Str("bid", quote.Bid.String()).Str("ask", quote.Ask.String()).Msg("priced round trip")

	req := eng.Request(trader.PublicKey(), venue, actions, loan)
	if err := req.Sign(trader); err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	receipt, err := eng.Program.Execute(ctx, req)
	if err != nil {
		// a rejected trade is an outcome, not a process failure
		log.Warn().Err(err).Str("kind", kindName(err)).Msg("trade rejected")
		return nil
	}
	for _, ev := range program.TradeEvents(receipt.Events) {
		log.Info().Str("action", ev.Action.String()).Uint64("quote", ev.QuoteAmount).Uint64("base", ev.BaseAmount).Uint64("seq", ev.Sequence).Msg("trade action")
	}
	for _, ev := range program.FlashloanEvents(receipt.Events) {
		log.Info().Uint64("principal", ev.Principal).Uint64("fee", ev.Fee).Msg("flash loan repaid")
	}
	log.Info().
		Str("signature", receipt.Signature.String()).
		Uint64("quote_balance", eng.Ledger.Balance(trader.PublicKey(), eng.Pair.QuoteMint)).
		Msg("trade committed")
	return nil
}

func kindName(err error) string {
	if k := program.Kind(err); k != nil {
		return k.Error()
	}
	return "unknown"
}
