package decision

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseKelly() KellyParams {
	return KellyParams{
		Bankroll:      decimal.NewFromInt(1000),
		Price:         d(0.40),
		Confidence:    d(0.80),
		KellyFraction: d(0.25),
		MaxKelly:      d(0.5),
		MinSize:       decimal.NewFromInt(1),
		MaxSize:       decimal.NewFromInt(100),
	}
}

func TestKellySizesPositiveEdge(t *testing.T) {
	res := Size(baseKelly())

	// q = 0.5 + 0.3*0.3 = 0.59, edge = 0.59/0.40 - 1 = 0.475.
	require.Equal(t, "kelly", res.Reason)
	assert.True(t, res.Edge.GreaterThan(d(0.02)))
	assert.Greater(t, res.Contracts, 0)
	assert.True(t, res.DollarSize.LessThanOrEqual(decimal.NewFromInt(100)))
}

func TestKellyInsufficientEdgeSizesZero(t *testing.T) {
	p := baseKelly()
	// Neutral confidence: q = 0.5, price 0.50 gives zero edge.
	p.Confidence = d(0.50)
	p.Price = d(0.50)

	res := Size(p)
	assert.Equal(t, 0, res.Contracts)
	assert.Equal(t, "insufficient edge", res.Reason)
	assert.True(t, res.Edge.LessThanOrEqual(d(0.02)))
}

func TestKellyEdgeJustUnderFloorSizesZero(t *testing.T) {
	p := baseKelly()
	// q = 0.5 + (0.52-0.5)*0.3 = 0.506; a price just above q/1.02 leaves
	// the edge under the floor.
	p.Confidence = d(0.52)
	q := 0.5 + 0.02*0.3
	p.Price = decimal.NewFromFloat(q/1.02 + 0.001)

	res := Size(p)
	assert.Equal(t, 0, res.Contracts)
}

func TestKellyFractionCapped(t *testing.T) {
	p := baseKelly()
	p.Confidence = decimal.NewFromInt(1)
	p.Price = d(0.10) // enormous edge
	p.MaxKelly = d(0.05)

	res := Size(p)
	require.Equal(t, "kelly", res.Reason)
	assert.True(t, res.Fraction.LessThanOrEqual(d(0.05)))
}

func TestKellyInvalidPrice(t *testing.T) {
	p := baseKelly()
	p.Price = decimal.Zero
	assert.Equal(t, 0, Size(p).Contracts)

	p.Price = decimal.NewFromInt(1)
	assert.Equal(t, 0, Size(p).Contracts)
}

func TestKellyHistoryBlending(t *testing.T) {
	p := baseKelly()
	res := Size(p)

	// A losing history should pull the win probability down.
	p.NumTrades = 100
	p.WinRate = d(0.30)
	blended := Size(p)

	assert.True(t, blended.WinProb.LessThan(res.WinProb),
		"blended %s should be below raw %s", blended.WinProb, res.WinProb)

	// Below the minimum sample the history is ignored.
	p.NumTrades = 5
	ignored := Size(p)
	assert.True(t, ignored.WinProb.Equal(res.WinProb))
}

func TestKellyDollarClamps(t *testing.T) {
	p := baseKelly()
	p.Bankroll = decimal.NewFromInt(100000)
	res := Size(p)
	assert.True(t, res.DollarSize.LessThanOrEqual(p.MaxSize))

	p.Bankroll = decimal.NewFromInt(1)
	res = Size(p)
	assert.True(t, res.DollarSize.GreaterThanOrEqual(p.MinSize))
	assert.GreaterOrEqual(t, res.Contracts, 1)
}
