package exchange

import (
	"fmt"
	"strings"

	"llm-crypto-trader/internal/exchange/binance"
	"llm-crypto-trader/internal/exchange/exchangeobs"
	"llm-crypto-trader/internal/exchange/paper"
	"llm-crypto-trader/internal/interfaces"
)

// Options selects the venue. With DryRun set, market data still comes from
// the venue but orders fill against a paper balance.
type Options struct {
	Name              string
	APIKey            string
	SecretKey         string
	RequestsPerSecond float64

	DryRun       bool
	Quote        string
	PaperBalance float64
	FeeRate      float64
}

func New(opts Options) (interfaces.Exchange, error) {
	name := strings.ToLower(strings.TrimSpace(opts.Name))
	cfg := binance.Config{
		APIKey:            opts.APIKey,
		SecretKey:         opts.SecretKey,
		RequestsPerSecond: opts.RequestsPerSecond,
	}
	switch name {
	case "binance", "":
		name = "binance"
		cfg.BaseURL = binance.DefaultBaseURL
	case "binance-testnet":
		cfg.BaseURL = binance.TestnetBaseURL
	default:
		return nil, fmt.Errorf("unsupported exchange %q", opts.Name)
	}

	var ex interfaces.Exchange = binance.NewClient(cfg)
	if opts.DryRun {
		ex = paper.New(ex, opts.Quote, opts.PaperBalance, opts.FeeRate)
		name += "-paper"
	}
	return exchangeobs.Wrap(ex, name), nil
}
