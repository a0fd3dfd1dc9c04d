package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/fydblock/gridbot/internal/strategy"
)

// WriteSessionXLSX writes the session summary and the equity curve to an
// Excel workbook.
func WriteSessionXLSX(path string, summary *Summary, metrics []strategy.AccountSnapshot) error {
	// Ensure directory exists before creating file
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const summarySheet = "Summary"
	const equitySheet = "Equity Curve"

	fx.SetSheetName(fx.GetSheetName(0), summarySheet)
	if _, err := fx.NewSheet(equitySheet); err != nil {
		return fmt.Errorf("failed to create equity sheet: %w", err)
	}

	if err := writeSummarySheet(fx, summarySheet, summary); err != nil {
		return err
	}
	if err := writeEquitySheet(fx, equitySheet, metrics); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func writeSummarySheet(fx *excelize.File, sheet string, summary *Summary) error {
	headerStyle, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return err
	}

	rows := [][2]interface{}{
		{"Pair", summary.Pair},
		{"Mode", summary.Mode},
		{"Start", summary.StartTime},
		{"End", summary.EndTime},
		{"Initial Value", summary.InitialValue},
		{"Final Value", summary.FinalValue},
		{"ROI %", summary.ROIPercent},
		{"Buy & Hold ROI %", summary.BuyAndHoldROIPercent},
		{"Max Drawdown %", summary.MaxDrawdownPercent},
		{"Trades", summary.Trades},
		{"Total Fees", summary.TotalFees},
		{"First Price", summary.FirstPrice},
		{"Last Price", summary.LastPrice},
	}

	for i, row := range rows {
		labelCell := fmt.Sprintf("A%d", i+1)
		valueCell := fmt.Sprintf("B%d", i+1)
		if err := fx.SetCellValue(sheet, labelCell, row[0]); err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, valueCell, row[1]); err != nil {
			return err
		}
		if err := fx.SetCellStyle(sheet, labelCell, labelCell, headerStyle); err != nil {
			return err
		}
	}

	return fx.SetColWidth(sheet, "A", "B", 22)
}

func writeEquitySheet(fx *excelize.File, sheet string, metrics []strategy.AccountSnapshot) error {
	headers := []string{"Timestamp", "Account Value", "Price"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
	}

	for i, snapshot := range metrics {
		row := i + 2
		if err := fx.SetCellValue(sheet, fmt.Sprintf("A%d", row), snapshot.Timestamp); err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, fmt.Sprintf("B%d", row), snapshot.AccountValue); err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, fmt.Sprintf("C%d", row), snapshot.Price); err != nil {
			return err
		}
	}

	return fx.SetColWidth(sheet, "A", "C", 20)
}
