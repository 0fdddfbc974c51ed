package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/akhenda/polypaper/pkg/types"
)

const (
	summarySheet = "Summary"
	tradesSheet  = "Trades"
	equitySheet  = "Equity Curve"
)

// WriteXLSX writes a three-sheet workbook: summary metrics (with Monte
// Carlo stats when present), closed trades, and the bar-by-bar equity curve.
func WriteXLSX(bt *types.Backtest, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	fx.SetSheetName(fx.GetSheetName(0), summarySheet)
	if _, err := fx.NewSheet(tradesSheet); err != nil {
		return err
	}
	if _, err := fx.NewSheet(equitySheet); err != nil {
		return err
	}

	headerStyle, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return err
	}

	if err := writeSummarySheet(fx, bt, headerStyle); err != nil {
		return err
	}
	if err := writeTradesSheet(fx, bt.Trades, headerStyle); err != nil {
		return err
	}
	if err := writeEquitySheet(fx, bt.EquityCurve, headerStyle); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func writeSummarySheet(fx *excelize.File, bt *types.Backtest, headerStyle int) error {
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Backtest ID", bt.ID},
		{"Strategy", bt.StrategyID},
		{"Status", string(bt.Status)},
		{"Start Date", bt.StartDate.Format("2006-01-02")},
		{"End Date", bt.EndDate.Format("2006-01-02")},
		{"Initial Capital", bt.InitialCapital},
		{"Final Capital", bt.FinalCapital},
		{"Total Return %", bt.TotalReturn},
		{"Max Drawdown %", bt.MaxDrawdown},
		{"Sharpe Ratio", bt.SharpeRatio},
		{"Win Rate %", bt.WinRate},
		{"Trade Count", bt.TradeCount},
	}

	if mc := bt.MonteCarlo; mc != nil {
		rows = append(rows,
			[]interface{}{"MC Simulations", mc.NumSimulations},
			[]interface{}{"MC Equity P5", mc.EquityP5},
			[]interface{}{"MC Equity P50", mc.EquityP50},
			[]interface{}{"MC Equity P95", mc.EquityP95},
			[]interface{}{"MC Drawdown P95 %", mc.DrawdownP95},
			[]interface{}{"MC Prob. Profit", mc.ProbProfit},
			[]interface{}{"MC Prob. Ruin", mc.ProbRuin},
		)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}

	if err := fx.SetCellStyle(summarySheet, "A1", "B1", headerStyle); err != nil {
		return err
	}
	return fx.SetColWidth(summarySheet, "A", "B", 22)
}

func writeTradesSheet(fx *excelize.File, trades []types.Trade, headerStyle int) error {
	header := []interface{}{"#", "Market", "Entry Time", "Exit Time", "Entry Price", "Exit Price", "Quantity", "PnL", "PnL %"}
	if err := fx.SetSheetRow(tradesSheet, "A1", &header); err != nil {
		return err
	}

	for i, trade := range trades {
		row := []interface{}{
			i + 1,
			trade.Symbol,
			trade.EntryTime.Format("2006-01-02 15:04"),
			trade.ExitTime.Format("2006-01-02 15:04"),
			trade.EntryPrice,
			trade.ExitPrice,
			trade.Quantity,
			trade.PnL,
			trade.PnLPercent,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(tradesSheet, cell, &row); err != nil {
			return err
		}
	}

	if err := fx.SetCellStyle(tradesSheet, "A1", "I1", headerStyle); err != nil {
		return err
	}
	return fx.SetColWidth(tradesSheet, "B", "D", 18)
}

func writeEquitySheet(fx *excelize.File, curve []types.EquityPoint, headerStyle int) error {
	header := []interface{}{"Time", "Equity"}
	if err := fx.SetSheetRow(equitySheet, "A1", &header); err != nil {
		return err
	}

	for i, point := range curve {
		row := []interface{}{point.Time.Format("2006-01-02 15:04"), point.Equity}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(equitySheet, cell, &row); err != nil {
			return err
		}
	}

	if err := fx.SetCellStyle(equitySheet, "A1", "B1", headerStyle); err != nil {
		return err
	}
	return fx.SetColWidth(equitySheet, "A", "A", 18)
}
