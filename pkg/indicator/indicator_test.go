package indicator

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRSIShortSeriesIsNeutral(t *testing.T) {
	cases := [][]float64{
		nil,
		{100},
		{100, 101, 102},
		{100, 101, 102, 103, 104, 105, 106, 107, 108, 109, 110, 111, 112, 113}, // len == period
	}
	for _, prices := range cases {
		if got := RSI(prices, 14); got != 50.0 {
			t.Errorf("RSI(%d prices) = %v, want 50.0", len(prices), got)
		}
	}
}

func TestRSIStrictlyIncreasing(t *testing.T) {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	if got := RSI(prices, 14); got != 100.0 {
		t.Errorf("RSI(increasing) = %v, want 100.0", got)
	}
}

func TestRSIStrictlyDecreasing(t *testing.T) {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 100 - float64(i)
	}
	if got := RSI(prices, 14); got != 0.0 {
		t.Errorf("RSI(decreasing) = %v, want 0.0", got)
	}
}

func TestRSIFlatSeries(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 100
	}
	// Zero gains and zero losses resolve to neutral.
	if got := RSI(prices, 14); got != 50.0 {
		t.Errorf("RSI(flat) = %v, want 50.0", got)
	}
}

func TestRSIMixedSeries(t *testing.T) {
	// Alternating +2/-1 deltas over the trailing 14 window:
	// 7 gains of 2, 7 losses of 1 -> avgGain=1, avgLoss=0.5, RS=2, RSI=100-100/3.
	prices := []float64{100}
	for i := 0; i < 10; i++ {
		prices = append(prices, prices[len(prices)-1]+2)
		prices = append(prices, prices[len(prices)-1]-1)
	}
	want := 100 - 100/3.0
	if got := RSI(prices, 14); !almostEqual(got, want) {
		t.Errorf("RSI(mixed) = %v, want %v", got, want)
	}
}

func TestSMA(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		period int
		want   float64
	}{
		{"empty", nil, 20, 0.0},
		{"single element", []float64{42.5}, 20, 42.5},
		{"fewer than period", []float64{1, 2, 3}, 20, 2.0},
		{"exactly period", []float64{1, 2, 3, 4}, 4, 2.5},
		{"trailing window", []float64{100, 1, 2, 3, 4}, 4, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SMA(tt.prices, tt.period); !almostEqual(got, tt.want) {
				t.Errorf("SMA = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEMASingleElement(t *testing.T) {
	if got := EMA([]float64{42.5}, 20); got != 42.5 {
		t.Errorf("EMA(single) = %v, want 42.5", got)
	}
}

func TestEMAFallsBackToMeanBelowPeriod(t *testing.T) {
	prices := []float64{1, 2, 3}
	if got, want := EMA(prices, 20), 2.0; !almostEqual(got, want) {
		t.Errorf("EMA(short) = %v, want %v", got, want)
	}
}

func TestEMABlendsEntireSeries(t *testing.T) {
	prices := []float64{10, 20, 30}
	// Seeded with prices[0], k = 2/(period+1) with period=3 -> k = 0.5.
	// ema = 10; ema = 20*0.5 + 10*0.5 = 15; ema = 30*0.5 + 15*0.5 = 22.5.
	if got, want := EMA(prices, 3), 22.5; !almostEqual(got, want) {
		t.Errorf("EMA = %v, want %v", got, want)
	}
}

func TestEMAConstantSeries(t *testing.T) {
	prices := make([]float64, 50)
	for i := range prices {
		prices[i] = 7.0
	}
	if got := EMA(prices, 20); !almostEqual(got, 7.0) {
		t.Errorf("EMA(constant) = %v, want 7.0", got)
	}
}
