package economy_test

import (
	"context"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/economy-ledger/internal/economy"
)

func TestConvertCurrency(t *testing.T) {
	engine, _ := setupEngine(t, taxed("0"))
	ctx := context.Background()

	require.NoError(t, engine.SetExchangeRate(ctx, "USD", "EUR", decimal.RequireFromString("0.5")))

	got, err := engine.ConvertCurrency(ctx, 200, "USD", "EUR")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got)

	got, err = engine.ConvertCurrency(ctx, 201, "usd", "eur")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got)

	_, err = engine.ConvertCurrency(ctx, 100, "EUR", "USD")
	assert.ErrorIs(t, err, economy.ErrExchangeRateNotFound)

	require.NoError(t, engine.SetExchangeRate(ctx, "EUR", "USD", decimal.RequireFromString("1.9")))
	got, err = engine.ConvertCurrency(ctx, 100, "EUR", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(190), got)
}

func TestConvertSameCurrency(t *testing.T) {
	engine, _ := setupEngine(t, taxed("0"))

	got, err := engine.ConvertCurrency(context.Background(), 250, "USD", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(250), got)
}

func TestConvertDoesNotChainRates(t *testing.T) {
	engine, _ := setupEngine(t, taxed("0"))
	ctx := context.Background()

	require.NoError(t, engine.SetExchangeRate(ctx, "USD", "EUR", decimal.RequireFromString("0.9")))
	require.NoError(t, engine.SetExchangeRate(ctx, "EUR", "GBP", decimal.RequireFromString("0.8")))

	_, err := engine.ConvertCurrency(ctx, 100, "USD", "GBP")
	assert.ErrorIs(t, err, economy.ErrExchangeRateNotFound)
}

func TestSetExchangeRateValidation(t *testing.T) {
	engine, _ := setupEngine(t, taxed("0"))
	ctx := context.Background()

	err := engine.SetExchangeRate(ctx, "USD", "EUR", decimal.Zero)
	assert.ErrorIs(t, err, economy.ErrInvalidParameters)

	err = engine.SetExchangeRate(ctx, "USD", "usd", decimal.NewFromInt(2))
	assert.ErrorIs(t, err, economy.ErrInvalidParameters)

	require.NoError(t, engine.SetExchangeRate(ctx, "USD", "EUR", decimal.RequireFromString("0.5")))
	require.NoError(t, engine.SetExchangeRate(ctx, "USD", "EUR", decimal.RequireFromString("0.6")))

	rates, err := engine.ListExchangeRates(ctx)
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.True(t, rates[0].Rate.Equal(decimal.RequireFromString("0.6")))
}

func TestCreditPurchase(t *testing.T) {
	engine, _ := setupEngine(t, taxed("0.10"), economy.WithRealMoneyCurrency("usd"))
	ctx := context.Background()

	require.NoError(t, engine.SetExchangeRate(ctx, "USD", "GEM", decimal.NewFromInt(10)))

	units, err := engine.CreditPurchase(ctx, 1, 250, "GEM")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), units)

	balance, err := engine.GetBalance(ctx, 1, "GEM")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), balance)

	usd, err := engine.GetBalance(ctx, 1, "USD")
	require.NoError(t, err)
	assert.Zero(t, usd)

	txs, err := engine.ListTransactions(ctx, 1, economy.TransactionFilter{Currency: "GEM"})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, economy.KindPurchase, txs[0].Kind)
	assert.Equal(t, int64(2500), txs[0].Amount)
}

func TestCreditPurchaseErrors(t *testing.T) {
	engine, _ := setupEngine(t, taxed("0"))
	ctx := context.Background()

	_, err := engine.CreditPurchase(ctx, 1, 100, "COIN")
	assert.ErrorIs(t, err, economy.ErrExchangeRateNotFound)

	_, err = engine.CreditPurchase(ctx, 1, 100, "USD")
	assert.ErrorIs(t, err, economy.ErrInvalidParameters)

	_, err = engine.CreditPurchase(ctx, 1, 0, "COIN")
	assert.ErrorIs(t, err, economy.ErrInvalidParameters)

	require.NoError(t, engine.SetExchangeRate(ctx, "USD", "COIN", decimal.RequireFromString("0.001")))
	_, err = engine.CreditPurchase(ctx, 1, 100, "COIN")
	assert.ErrorIs(t, err, economy.ErrInvalidParameters)
}

func TestConversionOverflowRejected(t *testing.T) {
	engine, _ := setupEngine(t, taxed("0"))
	ctx := context.Background()

	require.NoError(t, engine.SetExchangeRate(ctx, "USD", "GEM", decimal.NewFromInt(100)))
	_, err := engine.ConvertCurrency(ctx, math.MaxInt64/10, "USD", "GEM")
	assert.ErrorIs(t, err, economy.ErrInvalidParameters)

	require.NoError(t, engine.SetExchangeRate(ctx, "USD", "GEM", decimal.RequireFromString("184467440737095518")))
	_, err = engine.CreditPurchase(ctx, 1, 1, "GEM")
	assert.ErrorIs(t, err, economy.ErrInvalidParameters)

	balance, err := engine.GetBalance(ctx, 1, "GEM")
	require.NoError(t, err)
	assert.Zero(t, balance)
}
