package analyst

import (
	"math"

	"github.com/alphamesh/alphamesh/bus"
)

// tradingDaysPerYear annualizes per-sample volatility estimates.
const tradingDaysPerYear = 252

// momentumLookback is the number of price samples spanned by the momentum
// ratio.
const momentumLookback = 20

// featureVector is the derived market snapshot fed to the regime likelihood
// kernels.
type featureVector struct {
	Volatility   float64 // annualized return volatility
	Liquidity    float64 // volume / spread ratio
	CreditSpread float64 // passthrough from the payload
	Dispersion   float64 // cross-sectional return dispersion
	Momentum     float64 // price ratio over the lookback window
}

// extractFeatures derives the feature vector from a raw market-data payload
// using closed-form estimators. Missing inputs yield zero-valued features
// rather than errors; the Gaussian kernels tolerate them.
func extractFeatures(md bus.MarketDataPayload) featureVector {
	return featureVector{
		Volatility:   annualizedVolatility(md.Returns),
		Liquidity:    liquidityRatio(md.Volume, md.Spread),
		CreditSpread: md.CreditSpread,
		Dispersion:   dispersion(md.Returns),
		Momentum:     momentum(md.Prices),
	}
}

// annualizedVolatility is the sample standard deviation of returns scaled by
// sqrt(252).
func annualizedVolatility(returns []float64) float64 {
	v := sampleVariance(returns)
	return math.Sqrt(v) * math.Sqrt(tradingDaysPerYear)
}

func sampleVariance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return ss / float64(len(xs)-1)
}

// liquidityRatio proxies depth by volume per unit of quoted spread.
func liquidityRatio(volume, spread float64) float64 {
	if spread <= 0 {
		return 0
	}
	return volume / spread
}

// dispersion is the cross-sectional standard deviation of the return set.
func dispersion(returns []float64) float64 {
	return math.Sqrt(sampleVariance(returns))
}

// momentum is the ratio of the latest price to the price momentumLookback
// samples earlier, minus one. Too-short series yield 0.
func momentum(prices []float64) float64 {
	n := len(prices)
	if n < momentumLookback+1 {
		return 0
	}
	base := prices[n-1-momentumLookback]
	if base == 0 {
		return 0
	}
	return prices[n-1]/base - 1
}
