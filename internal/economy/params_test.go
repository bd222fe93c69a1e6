package economy

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFloorMul(t *testing.T) {
	tests := []struct {
		amount int64
		rate   string
		want   int64
	}{
		{1000, "0.10", 100},
		{15, "0.10", 1},
		{9, "0.10", 0},
		{200, "0.5", 100},
		{333, "0.333", 110},
		{1, "1", 1},
	}
	for _, tt := range tests {
		got, err := floorMul(tt.amount, decimal.RequireFromString(tt.rate))
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got, "%d * %s", tt.amount, tt.rate)
	}
}

func TestFloorMulOverflow(t *testing.T) {
	_, err := floorMul(math.MaxInt64/10, decimal.NewFromInt(100))
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = floorMul(1, decimal.RequireFromString("184467440737095518"))
	assert.ErrorIs(t, err, ErrInvalidParameters)

	got, err := floorMul(math.MaxInt64, decimal.NewFromInt(1))
	assert.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got)
}

func TestAddMinor(t *testing.T) {
	sum, err := addMinor(math.MaxInt64-10, 10)
	assert.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), sum)

	_, err = addMinor(math.MaxInt64, 10)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = addMinor(math.MinInt64, -1)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, Params{TaxRate: decimal.RequireFromString("0.1")}.Validate())
	assert.NoError(t, Params{TaxRate: decimal.NewFromInt(1)}.Validate())
	assert.Error(t, Params{TaxRate: decimal.RequireFromString("1.01")}.Validate())
	assert.Error(t, Params{TaxRate: decimal.RequireFromString("-0.1")}.Validate())
	assert.Error(t, Params{PayoutRate: decimal.RequireFromString("-1")}.Validate())
	assert.Error(t, Params{InflationRate: decimal.RequireFromString("-1")}.Validate())
}

func TestAccountKeyOrdering(t *testing.T) {
	a := AccountKey{OwnerID: 1, Currency: "USD"}
	b := AccountKey{OwnerID: 2, Currency: "EUR"}
	c := AccountKey{OwnerID: 1, Currency: "GEM"}

	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.True(t, c.Less(a))
	assert.False(t, a.Less(a))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrConflict))
	assert.False(t, IsRetryable(ErrInsufficientFunds))
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := Retry(ctx, 3, func() error {
		calls++
		if calls < 2 {
			return fmt.Errorf("%w: database is locked", ErrConflict)
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = Retry(ctx, 3, func() error {
		calls++
		return ErrInsufficientFunds
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, 1, calls)

	calls = 0
	err = Retry(ctx, 3, func() error {
		calls++
		return ErrConflict
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorContains(t, err, "gave up after 3 attempts")
	assert.Equal(t, 3, calls)
}
