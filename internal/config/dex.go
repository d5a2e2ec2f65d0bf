// Package config also contains price-venue and wallet configuration surfaces.
package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Oracle defines network endpoints and defaults for price venues.
type Oracle struct {
	RpcURL      string        `yaml:"rpc_url"`
	Commitment  string        `yaml:"commitment"`   // processed|confirmed|finalized
	JupiterBase string        `yaml:"jupiter_base"` // https://quote-api.jup.ag
	ProbeAmount uint64        `yaml:"probe_amount"`
	SlippageBps int           `yaml:"slippage_bps"`
	Timeout     time.Duration `yaml:"timeout"`
	DexScreener DexScreener   `yaml:"dexscreener"`
	Binance     Binance       `yaml:"binance"`
	Static      *StaticQuote  `yaml:"static"`
}

// DexScreener configures the Dexscreener pairs venue.
type DexScreener struct {
	Enabled      bool              `yaml:"enabled"`
	BaseURL      string            `yaml:"base_url"`
	DefaultChain string            `yaml:"default_chain"`
	Pairs        map[string]string `yaml:"pairs"` // "SOL/USDC": "solana/<pair address>"
}

// Binance configures the book-ticker websocket venue.
type Binance struct {
	Enabled   bool   `yaml:"enabled"`
	StreamURL string `yaml:"stream_url"`
}

// StaticQuote pins a fixed bid and ask, used offline.
type StaticQuote struct {
	Bid string `yaml:"bid"`
	Ask string `yaml:"ask"`
}

// Wallet stores encrypted or env-backed signing material metadata.
type Wallet struct {
	PrivateKeyBase58 string `yaml:"private_key_base58"`
	PrivateKeyEnv    string `yaml:"private_key_env"`
}

func (o Oracle) validate() error {
	var err error
	switch o.Commitment {
	case "", "processed", "confirmed", "finalized":
	default:
		err = multierr.Append(err, fmt.Errorf("oracle.commitment %q is not processed|confirmed|finalized", o.Commitment))
	}
	if o.SlippageBps < 0 || o.SlippageBps > 10_000 {
		err = multierr.Append(err, errors.New("oracle.slippage_bps must be within [0,10000]"))
	}
	if o.Timeout < 0 {
		err = multierr.Append(err, errors.New("oracle.timeout must not be negative"))
	}
	if o.DexScreener.Enabled && len(o.DexScreener.Pairs) == 0 {
		err = multierr.Append(err, errors.New("oracle.dexscreener.pairs required when enabled"))
	}
	if o.Static != nil && (o.Static.Bid == "" || o.Static.Ask == "") {
		err = multierr.Append(err, errors.New("oracle.static needs bid and ask"))
	}
	return err
}
