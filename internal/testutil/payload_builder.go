package testutil

import (
	"time"

	"github.com/alphamesh/alphamesh/bus"
)

// MarketDataBuilder provides a fluent helper for constructing market-data
// payloads in tests. Chain only the parts you need; sensible defaults are
// applied.
//
// Example:
//
//	md := NewMarketDataBuilder().Symbol("SPX").FlatReturns(0.01, 40).Build()
type MarketDataBuilder struct {
	payload bus.MarketDataPayload
}

// NewMarketDataBuilder creates a builder with default symbol "TEST".
func NewMarketDataBuilder() *MarketDataBuilder {
	return &MarketDataBuilder{payload: bus.MarketDataPayload{
		Symbol: "TEST",
		Volume: 1e6,
		Spread: 0.01,
		AsOf:   time.Now().UTC(),
	}}
}

// Symbol sets the instrument symbol (chainable).
func (b *MarketDataBuilder) Symbol(s string) *MarketDataBuilder {
	b.payload.Symbol = s
	return b
}

// Returns sets the return series (chainable).
func (b *MarketDataBuilder) Returns(rs ...float64) *MarketDataBuilder {
	b.payload.Returns = rs
	return b
}

// RepeatedReturns repeats the given block n times (chainable).
func (b *MarketDataBuilder) RepeatedReturns(block []float64, n int) *MarketDataBuilder {
	rs := make([]float64, 0, len(block)*n)
	for i := 0; i < n; i++ {
		rs = append(rs, block...)
	}
	b.payload.Returns = rs
	return b
}

// FlatReturns fills the series with n copies of r (chainable).
func (b *MarketDataBuilder) FlatReturns(r float64, n int) *MarketDataBuilder {
	rs := make([]float64, n)
	for i := range rs {
		rs[i] = r
	}
	b.payload.Returns = rs
	return b
}

// Prices sets the price series (chainable).
func (b *MarketDataBuilder) Prices(ps ...float64) *MarketDataBuilder {
	b.payload.Prices = ps
	return b
}

// Volume sets the traded volume (chainable).
func (b *MarketDataBuilder) Volume(v float64) *MarketDataBuilder {
	b.payload.Volume = v
	return b
}

// Spread sets the quoted spread (chainable).
func (b *MarketDataBuilder) Spread(s float64) *MarketDataBuilder {
	b.payload.Spread = s
	return b
}

// CreditSpread sets the credit spread in percentage points (chainable).
func (b *MarketDataBuilder) CreditSpread(cs float64) *MarketDataBuilder {
	b.payload.CreditSpread = cs
	return b
}

// Build returns the assembled payload.
func (b *MarketDataBuilder) Build() bus.MarketDataPayload { return b.payload }

// StrategyBuilder constructs strategy payloads that pass every risk check by
// default, so tests flip exactly the dimension under test.
type StrategyBuilder struct {
	payload bus.StrategyPayload
}

// NewStrategyBuilder creates a builder with conservative defaults.
func NewStrategyBuilder(id string) *StrategyBuilder {
	return &StrategyBuilder{payload: bus.StrategyPayload{
		StrategyID:       id,
		Name:             "strategy " + id,
		PositionSize:     0.03,
		Leverage:         1.5,
		MaxDrawdown:      0.10,
		Concentration:    0.20,
		ADVParticipation: 0.03,
		Legs:             1,
		Parameters:       3,
	}}
}

// PositionSize sets the position size fraction (chainable).
func (b *StrategyBuilder) PositionSize(v float64) *StrategyBuilder {
	b.payload.PositionSize = v
	return b
}

// Leverage sets the leverage estimate (chainable).
func (b *StrategyBuilder) Leverage(v float64) *StrategyBuilder {
	b.payload.Leverage = v
	return b
}

// MaxDrawdown sets the drawdown limit; 0 means no control (chainable).
func (b *StrategyBuilder) MaxDrawdown(v float64) *StrategyBuilder {
	b.payload.MaxDrawdown = v
	return b
}

// Concentration sets the largest single exposure fraction (chainable).
func (b *StrategyBuilder) Concentration(v float64) *StrategyBuilder {
	b.payload.Concentration = v
	return b
}

// ADVParticipation sets the daily-volume participation (chainable).
func (b *StrategyBuilder) ADVParticipation(v float64) *StrategyBuilder {
	b.payload.ADVParticipation = v
	return b
}

// Returns sets the strategy return series (chainable).
func (b *StrategyBuilder) Returns(rs ...float64) *StrategyBuilder {
	b.payload.Returns = rs
	return b
}

// TargetRegime sets the regime the strategy is designed for (chainable).
func (b *StrategyBuilder) TargetRegime(r string) *StrategyBuilder {
	b.payload.TargetRegime = r
	return b
}

// Complexity sets the leg and parameter counts (chainable).
func (b *StrategyBuilder) Complexity(legs, params int) *StrategyBuilder {
	b.payload.Legs = legs
	b.payload.Parameters = params
	return b
}

// Build returns the assembled payload.
func (b *StrategyBuilder) Build() bus.StrategyPayload { return b.payload }
