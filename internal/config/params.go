package config

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/example/economy-ledger/internal/economy"
)

// Environment variables holding the economic parameters.
const (
	EnvTaxRate       = "ECONOMY_TAX_RATE"
	EnvInflationRate = "ECONOMY_INFLATION_RATE"
	EnvPayoutRate    = "ECONOMY_PAYOUT_RATE"
)

// EnvParams reads the economic parameters from the environment on every
// call, so an operator can retune them without a restart.
type EnvParams struct {
	// Lookup defaults to os.LookupEnv.
	Lookup func(key string) (string, bool)
}

var _ economy.ParamsProvider = EnvParams{}

func (p EnvParams) Get(context.Context) (economy.Params, error) {
	lookup := p.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var params economy.Params
	var err error
	if params.TaxRate, err = rateFromEnv(lookup, EnvTaxRate, decimal.Zero); err != nil {
		return economy.Params{}, err
	}
	if params.InflationRate, err = rateFromEnv(lookup, EnvInflationRate, decimal.Zero); err != nil {
		return economy.Params{}, err
	}
	if params.PayoutRate, err = rateFromEnv(lookup, EnvPayoutRate, decimal.NewFromInt(1)); err != nil {
		return economy.Params{}, err
	}
	return params, params.Validate()
}

func rateFromEnv(lookup func(string) (string, bool), key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

// AtomicParams holds parameters that can be swapped at runtime by an
// administrative caller. Readers always see a complete set.
type AtomicParams struct {
	current atomic.Pointer[economy.Params]
}

// NewAtomicParams returns a provider initialised with p.
func NewAtomicParams(p economy.Params) (*AtomicParams, error) {
	a := &AtomicParams{}
	if err := a.Set(p); err != nil {
		return nil, err
	}
	return a, nil
}

// Set validates and publishes p.
func (a *AtomicParams) Set(p economy.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	a.current.Store(&p)
	return nil
}

func (a *AtomicParams) Get(context.Context) (economy.Params, error) {
	p := a.current.Load()
	if p == nil {
		return economy.Params{}, fmt.Errorf("economic parameters not set")
	}
	return *p, nil
}

// StaticParams always returns the same parameters.
type StaticParams economy.Params

func (p StaticParams) Get(context.Context) (economy.Params, error) {
	return economy.Params(p), nil
}
