package reporting

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// PrintSummary renders the session summary as a console table.
func PrintSummary(summary *Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("GRID SESSION RESULTS")
	t.SetStyle(table.StyleRounded)

	duration := "-"
	if !summary.StartTime.IsZero() {
		duration = summary.EndTime.Sub(summary.StartTime).String()
	}

	t.AppendRows([]table.Row{
		{"📊 Pair", summary.Pair},
		{"🔧 Mode", summary.Mode},
		{"⏰ Duration", duration},
		{"💰 Initial Value", fmt.Sprintf("$%.2f", summary.InitialValue)},
		{"💰 Final Value", fmt.Sprintf("$%.2f", summary.FinalValue)},
		{"📈 ROI", fmt.Sprintf("%.2f%%", summary.ROIPercent)},
		{"📈 Buy & Hold ROI", fmt.Sprintf("%.2f%%", summary.BuyAndHoldROIPercent)},
		{"📉 Max Drawdown", fmt.Sprintf("%.2f%%", summary.MaxDrawdownPercent)},
		{"🔄 Trades", fmt.Sprintf("%d", summary.Trades)},
		{"💸 Total Fees", fmt.Sprintf("$%.4f", summary.TotalFees)},
		{"🏷️ Price Range", fmt.Sprintf("%.4f → %.4f", summary.FirstPrice, summary.LastPrice)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 24, WidthMax: 40, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}
