package reporting

import (
	"time"

	"github.com/fydblock/gridbot/internal/strategy"
)

// Summary condenses one trading session (backtest or live) into the numbers
// a user compares runs by.
type Summary struct {
	Pair string
	Mode string

	StartTime time.Time
	EndTime   time.Time

	InitialValue float64
	FinalValue   float64
	ROIPercent   float64

	MaxDrawdownPercent float64

	FirstPrice           float64
	LastPrice            float64
	BuyAndHoldROIPercent float64

	TotalFees float64
	Trades    int
}

// BuildSummary derives a Summary from the per-tick account snapshots.
func BuildSummary(metrics []strategy.AccountSnapshot, totalFees float64, trades int, pair, mode string) *Summary {
	summary := &Summary{
		Pair:      pair,
		Mode:      mode,
		TotalFees: totalFees,
		Trades:    trades,
	}
	if len(metrics) == 0 {
		return summary
	}

	first := metrics[0]
	last := metrics[len(metrics)-1]

	summary.StartTime = first.Timestamp
	summary.EndTime = last.Timestamp
	summary.InitialValue = first.AccountValue
	summary.FinalValue = last.AccountValue
	summary.FirstPrice = first.Price
	summary.LastPrice = last.Price

	if first.AccountValue != 0 {
		summary.ROIPercent = (last.AccountValue - first.AccountValue) / first.AccountValue * 100
	}
	if first.Price != 0 {
		summary.BuyAndHoldROIPercent = (last.Price - first.Price) / first.Price * 100
	}
	summary.MaxDrawdownPercent = maxDrawdown(metrics) * 100

	return summary
}

// maxDrawdown returns the largest peak-to-trough loss as a fraction of the
// peak account value.
func maxDrawdown(metrics []strategy.AccountSnapshot) float64 {
	peak := 0.0
	worst := 0.0
	for _, snapshot := range metrics {
		if snapshot.AccountValue > peak {
			peak = snapshot.AccountValue
		}
		if peak > 0 {
			drawdown := (peak - snapshot.AccountValue) / peak
			if drawdown > worst {
				worst = drawdown
			}
		}
	}
	return worst
}
