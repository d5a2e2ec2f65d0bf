package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	solana "github.com/gagliardetto/solana-go"

	"github.com/Linkan333/solana-rust-arb/internal/config"
	"github.com/Linkan333/solana-rust-arb/internal/oracle"
	"github.com/Linkan333/solana-rust-arb/internal/util"
)

func main() {
	var (
		configPath string
		warmup     time.Duration
	)
	flag.StringVar(&configPath, "config", "configs/flashtrade.yaml", "path to the YAML config")
	flag.DurationVar(&warmup, "warmup", 3*time.Second, "time given to streaming venues before quoting")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := util.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	pair := oracle.Pair{Base: cfg.Market.Base, Quote: cfg.Market.Quote}
	if cfg.Market.BaseMint != "" {
		pair.BaseMint = solana.MustPublicKeyFromBase58(cfg.Market.BaseMint)
	}
	if cfg.Market.QuoteMint != "" {
		pair.QuoteMint = solana.MustPublicKeyFromBase58(cfg.Market.QuoteMint)
	}

	venues, binance, err := oracle.Venues(cfg.Oracle, pair, log)
	if err != nil {
		log.Fatal().Err(err).Msg("venues")
	}

	ctx, cancel := context.WithTimeout(context.Background(), warmup+15*time.Second)
	defer cancel()
	if binance != nil {
		go func() { _ = binance.Run(ctx) }()
		time.Sleep(warmup)
	}

	for i, venue := range venues {
		q, err := venue.Quote(ctx, pair)
		if err != nil {
			fmt.Printf("venue #%-17d error: %v\n", i, err)
			continue
		}
		fmt.Printf("%-24s bid=%s ask=%s mid=%s\n", q.Venue, q.Bid, q.Ask, q.Mid())
	}

	best, err := oracle.NewAggregator(cfg.Oracle.Timeout, venues...).Quote(ctx, pair)
	if err != nil {
		log.Fatal().Err(err).Msg("aggregate quote")
	}
	fmt.Printf("%-24s bid=%s ask=%s (%s)\n", "best", best.Bid, best.Ask, best.Venue)
}
