package economy

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Params are the hot-tunable economic parameters.
type Params struct {
	TaxRate       decimal.Decimal `json:"tax_rate"`
	InflationRate decimal.Decimal `json:"inflation_rate"`
	PayoutRate    decimal.Decimal `json:"payout_rate"`
}

// Validate checks that the tax rate is a fraction in [0, 1] and no rate is negative.
func (p Params) Validate() error {
	if p.TaxRate.IsNegative() || p.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("tax rate %s outside [0, 1]", p.TaxRate)
	}
	if p.InflationRate.IsNegative() {
		return fmt.Errorf("inflation rate %s is negative", p.InflationRate)
	}
	if p.PayoutRate.IsNegative() {
		return fmt.Errorf("payout rate %s is negative", p.PayoutRate)
	}
	return nil
}

// ParamsProvider supplies the current economic parameters. The engine calls
// Get on every operation that needs them and never caches the result.
type ParamsProvider interface {
	Get(ctx context.Context) (Params, error)
}

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// floorMul returns floor(amount * rate) in minor units. Products that do
// not fit in int64 are rejected with ErrInvalidParameters.
func floorMul(amount int64, rate decimal.Decimal) (int64, error) {
	product := decimal.NewFromInt(amount).Mul(rate).Floor()
	if product.GreaterThan(maxMinor) || product.LessThan(minMinor) {
		return 0, fmt.Errorf("%w: %d * %s overflows minor units", ErrInvalidParameters, amount, rate)
	}
	return product.IntPart(), nil
}

// addMinor returns balance + delta, rejecting results outside int64.
func addMinor(balance, delta int64) (int64, error) {
	sum := balance + delta
	if (delta > 0 && sum < balance) || (delta < 0 && sum > balance) {
		return 0, fmt.Errorf("%w: %d + %d overflows minor units", ErrInvalidParameters, balance, delta)
	}
	return sum, nil
}
