package decision

import (
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// KELLY SIZER
// ═══════════════════════════════════════════════════════════════════════════════
//
// Fractional Kelly on the edge implied by the confidence-derived win
// probability, blended with the historical win rate once enough trades
// exist. Pure function, no I/O.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	minEdge          = 0.02
	historyMinTrades = 20
	historyFullAt    = 100
)

// KellyParams configure one sizing evaluation.
type KellyParams struct {
	Bankroll      decimal.Decimal
	Price         decimal.Decimal // current yes price in (0,1)
	Confidence    decimal.Decimal // [0,1] confidence score
	KellyFraction decimal.Decimal // conservatism multiplier, e.g. 0.25
	MaxKelly      decimal.Decimal // hard cap on the adjusted fraction
	MinSize       decimal.Decimal // dollar clamp
	MaxSize       decimal.Decimal

	WinRate   decimal.Decimal // historical, [0,1]
	NumTrades int
}

// KellyResult is the sizing decision.
type KellyResult struct {
	Contracts  int
	DollarSize decimal.Decimal
	Edge       decimal.Decimal
	WinProb    decimal.Decimal
	Fraction   decimal.Decimal
	Reason     string
}

var (
	half     = decimal.NewFromFloat(0.5)
	one      = decimal.NewFromInt(1)
	probLow  = decimal.NewFromFloat(0.01)
	probHigh = decimal.NewFromFloat(0.99)
)

// Size computes the recommended contract count for an entry.
func Size(p KellyParams) KellyResult {
	if p.Price.LessThanOrEqual(decimal.Zero) || p.Price.GreaterThanOrEqual(one) {
		return KellyResult{Reason: "invalid price"}
	}

	// Win probability from confidence: q = 0.5 + (confidence - 0.5) * 0.3.
	// The damping keeps the estimate near the market's own prior.
	q := half.Add(p.Confidence.Sub(half).Mul(decimal.NewFromFloat(0.3)))

	// Blend with historical win rate once the sample is meaningful.
	if p.NumTrades >= historyMinTrades {
		w := decimal.NewFromInt(int64(p.NumTrades)).Div(decimal.NewFromInt(historyFullAt))
		if w.GreaterThan(one) {
			w = one
		}
		q = q.Mul(one.Sub(w)).Add(p.WinRate.Mul(w))
	}
	if q.LessThan(probLow) {
		q = probLow
	}
	if q.GreaterThan(probHigh) {
		q = probHigh
	}

	// Edge: q/p - 1. Below the floor there is nothing worth betting.
	edge := q.Div(p.Price).Sub(one)
	if edge.LessThanOrEqual(decimal.NewFromFloat(minEdge)) {
		return KellyResult{Edge: edge, WinProb: q, Reason: "insufficient edge"}
	}

	// Full Kelly: f* = (q·b - (1-q)) / b with b = 1/p - 1.
	b := one.Div(p.Price).Sub(one)
	if b.LessThanOrEqual(decimal.Zero) {
		return KellyResult{Edge: edge, WinProb: q, Reason: "no payout"}
	}
	fullKelly := q.Mul(b).Sub(one.Sub(q)).Div(b)
	if fullKelly.LessThan(decimal.Zero) {
		fullKelly = decimal.Zero
	}

	// Fractional Kelly, capped.
	f := fullKelly.Mul(p.KellyFraction)
	if f.GreaterThan(p.MaxKelly) {
		f = p.MaxKelly
	}

	size := p.Bankroll.Mul(f)
	if size.LessThan(p.MinSize) {
		size = p.MinSize
	}
	if size.GreaterThan(p.MaxSize) {
		size = p.MaxSize
	}

	contracts := int(size.Div(p.Price).IntPart())
	if contracts < 1 {
		contracts = 1 // the edge passed; never round to nothing
	}

	return KellyResult{
		Contracts:  contracts,
		DollarSize: size,
		Edge:       edge,
		WinProb:    q,
		Fraction:   f,
		Reason:     "kelly",
	}
}
