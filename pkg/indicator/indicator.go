// Package indicator provides pure technical indicator calculations over a
// price series. All functions are stateless and side-effect free.
package indicator

const (
	DefaultRSIPeriod = 14
	DefaultSMAPeriod = 20
	DefaultEMAPeriod = 20
)

// RSI computes the Relative Strength Index over the price series using a
// simple moving average of gains and losses rather than Wilder smoothing.
// Returns the neutral value 50 when fewer than period+1 prices are given.
func RSI(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return 50.0
	}

	gains := make([]float64, 0, len(prices)-1)
	losses := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		diff := prices[i] - prices[i-1]
		if diff > 0 {
			gains = append(gains, diff)
			losses = append(losses, 0)
		} else {
			losses = append(losses, -diff)
			gains = append(gains, 0)
		}
	}

	avgGain := mean(gains[len(gains)-period:])
	avgLoss := mean(losses[len(losses)-period:])

	if avgLoss == 0 {
		if avgGain > 0 {
			return 100.0
		}
		return 50.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// SMA computes the simple moving average of the last period prices, falling
// back to the mean of all available prices when fewer are present.
func SMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0.0
	}
	if len(prices) < period {
		return mean(prices)
	}
	return mean(prices[len(prices)-period:])
}

// EMA computes an exponential moving average seeded with the first price and
// blended across the entire series with k = 2/(period+1). Below period
// prices it falls back to the simple mean, matching SMA.
func EMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0.0
	}
	if len(prices) < period {
		return mean(prices)
	}

	k := 2.0 / float64(period+1)
	ema := prices[0]
	for _, price := range prices[1:] {
		ema = price*k + ema*(1-k)
	}
	return ema
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
