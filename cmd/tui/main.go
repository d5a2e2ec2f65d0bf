package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Linkan333/solana-rust-arb/internal/config"
)

func main() {
	configPath := flag.String("config", "configs/flashtrade.yaml", "path to the YAML config")
	flag.Parse()
	path := filepath.Clean(*configPath)

	reader := bufio.NewReader(os.Stdin)
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== Flashtrade Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit flash loan and risk knobs")
		fmt.Println("3) Edit price venues")
		fmt.Println("4) Save config")
		fmt.Println("5) Run one demo trade")
		fmt.Println("6) Show venue quotes")
		fmt.Println("7) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		switch strings.TrimSpace(input) {
		case "1":
			printSummary(cfg)
		case "2":
			editRisk(reader, cfg)
		case "3":
			editVenues(reader, cfg)
		case "4":
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(os.Stderr, "not saved, config is invalid: %v\n", err)
			} else if err := config.Save(path, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "5":
			launch(reader, "./cmd/flashtrade", "-config", path, "-once")
		case "6":
			launch(reader, "./cmd/quote", "-config", path)
		case "7":
			reloaded, err := config.Load(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Program: %s (lending %s)\n", orDefault(cfg.Program.ID), orDefault(cfg.Program.LendingProgramID))
	fmt.Printf("Market: %s/%s\n", cfg.Market.Base, cfg.Market.Quote)
	fmt.Printf("Flash loan fee: %d bps | reserve liquidity: %d\n", cfg.Flashloan.FeeBps, cfg.Flashloan.Liquidity)
	fmt.Printf("Max loan: %s | max actions: %s\n", limit(cfg.Risk.MaxLoanAmount), limit(uint64(cfg.Risk.MaxActions)))
	venues := []string{}
	if cfg.Oracle.Static != nil {
		venues = append(venues, fmt.Sprintf("static %s/%s", cfg.Oracle.Static.Bid, cfg.Oracle.Static.Ask))
	}
	if cfg.Oracle.JupiterBase != "" {
		venues = append(venues, "jupiter")
	}
	if cfg.Oracle.DexScreener.Enabled {
		venues = append(venues, "dexscreener")
	}
	if cfg.Oracle.Binance.Enabled {
		venues = append(venues, "binance")
	}
	fmt.Println("Venues:", strings.Join(venues, ", "))
	fmt.Printf("Events: jsonl=%q redis=%q | store: %s\n", cfg.Events.JSONLPath, cfg.Events.Redis.Addr, cfg.Store.Path)
}

func editRisk(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Flash Loan / Risk ---")
	cfg.Flashloan.FeeBps = promptUint(reader, "Flash loan fee (bps)", cfg.Flashloan.FeeBps)
	cfg.Flashloan.Liquidity = promptUint(reader, "Reserve liquidity", cfg.Flashloan.Liquidity)
	cfg.Risk.MaxLoanAmount = promptUint(reader, "Max loan amount (0 = unlimited)", cfg.Risk.MaxLoanAmount)
	cfg.Risk.MaxActions = int(promptUint(reader, "Max actions per request (0 = unlimited)", uint64(cfg.Risk.MaxActions)))
}

func editVenues(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Price Venues ---")
	if promptBool(reader, "Use static quote", cfg.Oracle.Static != nil) {
		if cfg.Oracle.Static == nil {
			cfg.Oracle.Static = &config.StaticQuote{}
		}
		cfg.Oracle.Static.Bid = promptPrice(reader, "Static bid", cfg.Oracle.Static.Bid)
		cfg.Oracle.Static.Ask = promptPrice(reader, "Static ask", cfg.Oracle.Static.Ask)
	} else {
		cfg.Oracle.Static = nil
	}
	cfg.Oracle.DexScreener.Enabled = promptBool(reader, "Enable Dexscreener", cfg.Oracle.DexScreener.Enabled)
	cfg.Oracle.Binance.Enabled = promptBool(reader, "Enable Binance book ticker", cfg.Oracle.Binance.Enabled)
	cfg.Oracle.SlippageBps = int(promptUint(reader, "Jupiter slippage (bps)", uint64(cfg.Oracle.SlippageBps)))
}

func launch(reader *bufio.Reader, pkg string, args ...string) {
	fmt.Printf("Launching %s (ENTER to stop)...\n", pkg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", append([]string{"run", pkg}, args...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start %s: %v\n", pkg, err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptUint(reader *bufio.Reader, label string, current uint64) uint64 {
	fmt.Printf("%s [%d]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseUint(line, 10, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %d\n", current)
		return current
	}
	return val
}

func promptPrice(reader *bufio.Reader, label, current string) string {
	fmt.Printf("%s [%s]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	if d, err := decimal.NewFromString(line); err != nil || !d.IsPositive() {
		fmt.Printf("invalid price, keeping %s\n", current)
		return current
	}
	return line
}

func promptBool(reader *bufio.Reader, label string, current bool) bool {
	def := "n"
	if current {
		def = "y"
	}
	fmt.Printf("%s [%s]: ", label, def)
	line, _ := reader.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return current
	}
}

func orDefault(s string) string {
	if s == "" {
		return "default"
	}
	return s
}

func limit(v uint64) string {
	if v == 0 {
		return "unlimited"
	}
	return strconv.FormatUint(v, 10)
}
