package economy

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// SetExchangeRate records the rate converting base into target. The reverse
// direction is unaffected.
func (e *Engine) SetExchangeRate(ctx context.Context, base, target string, rate decimal.Decimal) error {
	base, err := e.currency(base)
	if err != nil {
		return err
	}
	target, err = e.currency(target)
	if err != nil {
		return err
	}
	if base == target {
		return fmt.Errorf("%w: exchange rate needs two distinct currencies", ErrInvalidParameters)
	}
	if !rate.IsPositive() {
		return fmt.Errorf("%w: exchange rate must be positive, got %s", ErrInvalidParameters, rate)
	}

	err = e.store.PutExchangeRate(ctx, &ExchangeRate{
		Base:      base,
		Target:    target,
		Rate:      rate,
		UpdatedAt: e.now(),
	})
	if err != nil {
		return fmt.Errorf("set exchange rate %s->%s: %w", base, target, err)
	}
	return nil
}

// ListExchangeRates returns every configured rate.
func (e *Engine) ListExchangeRates(ctx context.Context) ([]ExchangeRate, error) {
	return e.store.ListExchangeRates(ctx)
}

// ConvertCurrency converts amount using the direct from->to rate, rounding
// down. Multi-hop conversions must be chained by the caller.
func (e *Engine) ConvertCurrency(ctx context.Context, amount int64, from, to string) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: cannot convert negative amount %d", ErrInvalidParameters, amount)
	}
	rate, err := e.rate(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return floorMul(amount, rate)
}

// CreditPurchase converts an already-verified real-money charge into units
// of a premium currency and credits them to the owner.
func (e *Engine) CreditPurchase(ctx context.Context, ownerID, realMoneyAmount int64, premiumCurrency string) (int64, error) {
	if realMoneyAmount <= 0 {
		return 0, fmt.Errorf("%w: purchase amount must be positive, got %d", ErrInvalidParameters, realMoneyAmount)
	}
	premium, err := e.currency(premiumCurrency)
	if err != nil {
		return 0, err
	}
	if premium == e.realMoneyCurrency {
		return 0, fmt.Errorf("%w: premium currency must differ from %s", ErrInvalidParameters, e.realMoneyCurrency)
	}

	rate, err := e.rate(ctx, e.realMoneyCurrency, premium)
	if err != nil {
		return 0, err
	}
	units, err := floorMul(realMoneyAmount, rate)
	if err != nil {
		return 0, err
	}
	if units <= 0 {
		return 0, fmt.Errorf("%w: %d %s buys no %s", ErrInvalidParameters, realMoneyAmount, e.realMoneyCurrency, premium)
	}

	if err := e.credit(ctx, KindPurchase, ownerID, units, premium); err != nil {
		return 0, fmt.Errorf("credit purchase: %w", err)
	}
	e.logger.Info("premium currency credited",
		"owner_id", ownerID,
		"charged", realMoneyAmount,
		"currency", premium,
		"units", units,
	)
	return units, nil
}

func (e *Engine) rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from, err := e.currency(from)
	if err != nil {
		return decimal.Zero, err
	}
	to, err = e.currency(to)
	if err != nil {
		return decimal.Zero, err
	}
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	r, err := e.store.GetExchangeRate(ctx, from, to)
	if errors.Is(err, ErrNotFound) {
		return decimal.Zero, fmt.Errorf("%w: %s->%s", ErrExchangeRateNotFound, from, to)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("lookup exchange rate %s->%s: %w", from, to, err)
	}
	return r.Rate, nil
}
