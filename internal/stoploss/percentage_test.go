package stoploss

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentageStopPrice(t *testing.T) {
	strategy, err := NewPercentage(0.05)
	require.NoError(t, err)

	stop, err := strategy.StopPrice(context.Background(), 100.0, "TQQQ")
	require.NoError(t, err)
	assert.Equal(t, 95.0, stop)
}

func TestPercentageStopPriceMatchesFormula(t *testing.T) {
	entries := []float64{100, 57.37, 250.5, 13.99, 0.87}
	pcts := []float64{0.001, 0.02, 0.05, 0.123, 0.5}

	for _, entry := range entries {
		for _, pct := range pcts {
			t.Run(fmt.Sprintf("%v@%v", pct, entry), func(t *testing.T) {
				strategy, err := NewPercentage(pct)
				require.NoError(t, err)

				stop, err := strategy.StopPrice(context.Background(), entry, "X")
				require.NoError(t, err)
				assert.InDelta(t, roundPrice(entry*(1-pct)), stop, 0.0100001)
				assert.LessOrEqual(t, stop, entry)
			})
		}
	}
}

func TestPercentageStopMayEqualEntryAfterRounding(t *testing.T) {
	strategy, err := NewPercentage(0.001)
	require.NoError(t, err)

	stop, err := strategy.StopPrice(context.Background(), 0.87, "X")
	require.NoError(t, err)
	assert.Equal(t, 0.87, stop)
}

func TestPercentageMinStopDistance(t *testing.T) {
	strategy, err := NewPercentage(0.01, WithMinStopDistance(1.0))
	require.NoError(t, err)

	stop, err := strategy.StopPrice(context.Background(), 50.0, "X")
	require.NoError(t, err)
	assert.Equal(t, 49.0, stop)
}

func TestPercentageMaxStopDistance(t *testing.T) {
	strategy, err := NewPercentage(0.10, WithMaxStopDistance(5.0))
	require.NoError(t, err)

	stop, err := strategy.StopPrice(context.Background(), 100.0, "X")
	require.NoError(t, err)
	assert.Equal(t, 95.0, stop)
}

func TestPercentageBoundsNotAppliedInsideRange(t *testing.T) {
	strategy, err := NewPercentage(0.05, WithMinStopDistance(1.0), WithMaxStopDistance(10.0))
	require.NoError(t, err)

	stop, err := strategy.StopPrice(context.Background(), 100.0, "X")
	require.NoError(t, err)
	assert.Equal(t, 95.0, stop)
}

func TestPercentageEqualBoundsPinDistance(t *testing.T) {
	strategy, err := NewPercentage(0.05, WithMinStopDistance(2.0), WithMaxStopDistance(2.0))
	require.NoError(t, err)

	stop, err := strategy.StopPrice(context.Background(), 100.0, "X")
	require.NoError(t, err)
	assert.Equal(t, 98.0, stop)
}

func TestPercentageTakeProfit(t *testing.T) {
	strategy, err := NewPercentage(0.05, WithTakeProfitPct(0.15))
	require.NoError(t, err)

	target, ok, err := strategy.TakeProfitPrice(context.Background(), 100.0, "TQQQ")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 115.0, target)

	target, ok, err = strategy.TakeProfitPrice(context.Background(), 42.42, "TQQQ")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, roundPrice(42.42*1.15), target)
}

func TestPercentageTakeProfitAbsent(t *testing.T) {
	strategy, err := NewPercentage(0.05)
	require.NoError(t, err)

	target, ok, err := strategy.TakeProfitPrice(context.Background(), 100.0, "TQQQ")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, target)
}

func TestPercentageEndToEnd(t *testing.T) {
	strategy, err := NewPercentage(0.05, WithTakeProfitPct(0.15))
	require.NoError(t, err)
	ctx := context.Background()

	stop, err := strategy.StopPrice(ctx, 100.0, "TQQQ")
	require.NoError(t, err)
	target, ok, err := strategy.TakeProfitPrice(ctx, 100.0, "TQQQ")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, 95.0, stop)
	assert.Equal(t, 115.0, target)
	assert.Equal(t, "Percentage-Based (5.0%) [R:R 3.0:1]", strategy.Name())
}

func TestPercentageName(t *testing.T) {
	strategy, err := NewPercentage(0.025)
	require.NoError(t, err)
	assert.Equal(t, "Percentage-Based (2.5%)", strategy.Name())

	strategy, err = NewPercentage(0.02, WithTakeProfitPct(0.05))
	require.NoError(t, err)
	assert.Equal(t, "Percentage-Based (2.0%) [R:R 2.5:1]", strategy.Name())
}

func TestPercentageRejectsInvalidEntry(t *testing.T) {
	strategy, err := NewPercentage(0.05, WithTakeProfitPct(0.15))
	require.NoError(t, err)

	for _, entry := range []float64{0, -10} {
		_, err := strategy.StopPrice(context.Background(), entry, "TQQQ")
		assert.ErrorIs(t, err, ErrInvalidEntryPrice)

		_, ok, err := strategy.TakeProfitPrice(context.Background(), entry, "TQQQ")
		assert.ErrorIs(t, err, ErrInvalidEntryPrice)
		assert.False(t, ok)
	}
}

func TestPercentageValidationBoundaries(t *testing.T) {
	tests := []struct {
		pct   float64
		valid bool
	}{
		{0.0009, false},
		{0.001, true},
		{0.5, true},
		{0.51, false},
	}
	for _, tt := range tests {
		_, err := NewPercentage(tt.pct)
		if tt.valid {
			assert.NoError(t, err, "stop_loss_pct=%v", tt.pct)
		} else {
			assert.ErrorIs(t, err, ErrInvalidConfig, "stop_loss_pct=%v", tt.pct)
		}
	}
}

func TestPercentageValidationOptions(t *testing.T) {
	tests := []struct {
		name string
		opts []PercentageOption
	}{
		{"zero take profit", []PercentageOption{WithTakeProfitPct(0)}},
		{"negative take profit", []PercentageOption{WithTakeProfitPct(-0.1)}},
		{"negative min", []PercentageOption{WithMinStopDistance(-1)}},
		{"negative max", []PercentageOption{WithMaxStopDistance(-1)}},
		{"min above max", []PercentageOption{WithMinStopDistance(5), WithMaxStopDistance(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy, err := NewPercentage(0.05, tt.opts...)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Nil(t, strategy)
		})
	}
}

func TestRoundPriceHalfToEven(t *testing.T) {
	assert.Equal(t, 94.12, roundPrice(94.125))
	assert.Equal(t, 94.14, roundPrice(94.135))
	assert.Equal(t, 1.0, roundPrice(1.005))
	assert.Equal(t, 95.0, roundPrice(94.999))
	assert.Equal(t, -3.5, roundPrice(-3.499))
}
