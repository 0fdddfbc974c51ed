// Package reporting renders completed backtests to the console, to JSON
// files, and to Excel workbooks.
package reporting

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/akhenda/polypaper/pkg/types"
)

// ConsoleReporter prints backtest results as rounded tables.
type ConsoleReporter struct {
	out io.Writer
}

// NewConsoleReporter writes to stdout.
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{out: os.Stdout}
}

// NewConsoleReporterTo writes to the given writer.
func NewConsoleReporterTo(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: out}
}

// PrintSummary renders the headline metrics of one backtest.
func (r *ConsoleReporter) PrintSummary(bt *types.Backtest) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("BACKTEST RESULTS")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"Strategy", bt.StrategyID},
		{"Markets", strings.Join(bt.MarketIDs, ", ")},
		{"Period", fmt.Sprintf("%s → %s", bt.StartDate.Format("2006-01-02"), bt.EndDate.Format("2006-01-02"))},
		{"Status", string(bt.Status)},
	})

	if bt.Status == types.BacktestFailed {
		t.AppendSeparator()
		t.AppendRow(table.Row{"Error", bt.ErrorMessage})
		t.Render()
		fmt.Fprintln(r.out)
		return
	}

	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Initial Capital", fmt.Sprintf("$%.2f", bt.InitialCapital)},
		{"Final Capital", fmt.Sprintf("$%.2f", bt.FinalCapital)},
		{"Total Return", fmt.Sprintf("%.2f%%", bt.TotalReturn)},
		{"Max Drawdown", fmt.Sprintf("%.2f%%", bt.MaxDrawdown)},
		{"Sharpe Ratio", fmt.Sprintf("%.2f", bt.SharpeRatio)},
		{"Win Rate", fmt.Sprintf("%.1f%%", bt.WinRate)},
		{"Trades", fmt.Sprintf("%d", bt.TradeCount)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 16, Align: text.AlignLeft},
		{Number: 2, WidthMin: 24, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Fprintln(r.out)
}

// PrintMonteCarlo renders the Monte Carlo robustness summary.
func (r *ConsoleReporter) PrintMonteCarlo(mc *types.MonteCarloResult) {
	if mc == nil {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle(fmt.Sprintf("MONTE CARLO (%d trials, block %d)", mc.NumSimulations, mc.BlockSize))
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"Final Equity P5", fmt.Sprintf("$%.2f", mc.EquityP5)},
		{"Final Equity P50", fmt.Sprintf("$%.2f", mc.EquityP50)},
		{"Final Equity P95", fmt.Sprintf("$%.2f", mc.EquityP95)},
		{"Final Equity Mean", fmt.Sprintf("$%.2f ± %.2f", mc.EquityMean, mc.EquityStd)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Drawdown P5", fmt.Sprintf("%.2f%%", mc.DrawdownP5)},
		{"Drawdown P50", fmt.Sprintf("%.2f%%", mc.DrawdownP50)},
		{"Drawdown P95", fmt.Sprintf("%.2f%%", mc.DrawdownP95)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Prob. of Profit", fmt.Sprintf("%.1f%%", mc.ProbProfit*100)},
		{"Prob. of Ruin", fmt.Sprintf("%.1f%%", mc.ProbRuin*100)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 22, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Fprintln(r.out)
}

// PrintTrades renders the round-trip trade log, newest last.
func (r *ConsoleReporter) PrintTrades(trades []types.Trade) {
	if len(trades) == 0 {
		fmt.Fprintln(r.out, "No trades closed during this run.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("CLOSED TRADES")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Market", "Entry", "Exit", "Entry $", "Exit $", "Qty", "PnL", "PnL %"})

	for i, trade := range trades {
		t.AppendRow(table.Row{
			i + 1,
			trade.Symbol,
			trade.EntryTime.Format(time.DateOnly),
			trade.ExitTime.Format(time.DateOnly),
			fmt.Sprintf("%.2f", trade.EntryPrice),
			fmt.Sprintf("%.2f", trade.ExitPrice),
			fmt.Sprintf("%.4f", trade.Quantity),
			fmt.Sprintf("%+.2f", trade.PnL),
			fmt.Sprintf("%+.2f%%", trade.PnLPercent),
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 8, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
	})

	t.Render()
	fmt.Fprintln(r.out)
}
