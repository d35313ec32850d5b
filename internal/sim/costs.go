package sim

import "github.com/shopspring/decimal"

var tenThousand = decimal.NewFromInt(10000)

// SlippageBps converts a fractional slippage to basis points.
func SlippageBps(slippage decimal.Decimal) float64 {
	return slippage.Mul(tenThousand).InexactFloat64()
}

// FeeBps converts a fee rate to basis points.
func FeeBps(rate decimal.Decimal) float64 {
	return rate.Mul(tenThousand).InexactFloat64()
}

// TotalCostBps is the all-in execution cost versus the best quote.
func TotalCostBps(slippageBps, feeBps float64) float64 {
	return slippageBps + feeBps
}
