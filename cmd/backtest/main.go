package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/akhenda/polypaper/internal/backtest"
	"github.com/akhenda/polypaper/internal/logger"
	"github.com/akhenda/polypaper/internal/storage"
	"github.com/akhenda/polypaper/pkg/config"
	"github.com/akhenda/polypaper/pkg/data"
	"github.com/akhenda/polypaper/pkg/reporting"
	"github.com/akhenda/polypaper/pkg/types"
)

func main() {
	var (
		configFile = flag.String("config", "", "Backtest configuration file (JSON)")
		envFile    = flag.String("env", ".env", "Environment file path")
		jsonOut    = flag.String("json", "", "Write the full backtest record to this JSON file")
		xlsxOut    = flag.String("xlsx", "", "Write an Excel report to this file")
		showTrades = flag.Bool("trades", false, "Print the closed-trade table")
		monteCarlo = flag.Bool("mc", true, "Run Monte Carlo robustness analysis")
		save       = flag.Bool("save", false, "Persist the result to the database (requires DATABASE_URL)")
	)
	flag.Parse()

	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "usage: backtest -config <file.json> [-json out.json] [-xlsx out.xlsx] [-trades] [-save]")
		os.Exit(2)
	}

	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "load env: %v\n", err)
		os.Exit(1)
	}
	app, err := config.LoadApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(app.LogLevel)

	cfg, err := config.LoadBacktest(*configFile)
	if err != nil {
		log.Fatalf("load backtest config: %v", err)
	}
	start, _ := cfg.ParseStartDate()
	end, _ := cfg.ParseEndDate()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store *storage.Store
	if app.DatabaseURL != "" {
		if store, err = storage.Open(app.DatabaseURL, log); err != nil {
			log.Fatalf("open database: %v", err)
		}
	}
	if *save && store == nil {
		log.Fatal("-save requires DATABASE_URL to be set")
	}

	candles, err := loadCandles(ctx, cfg, start, end, store, log)
	if err != nil {
		log.Fatalf("load candles: %v", err)
	}

	feeRate := cfg.FeeRate
	if feeRate == 0 {
		feeRate = app.FeeRate
	}
	slippageRate := cfg.SlippageRate
	if slippageRate == 0 {
		slippageRate = app.SlippageRate
	}

	engine := backtest.NewEngine(backtest.Config{
		StrategyID:     cfg.StrategyID,
		Parameters:     cfg.Parameters,
		MarketIDs:      cfg.MarketIDs,
		Interval:       cfg.Interval,
		StartDate:      start,
		EndDate:        end,
		InitialCapital: cfg.InitialCapital,
		FeeRate:        feeRate,
		SlippageRate:   slippageRate,
		PositionCapUSD: cfg.PositionCapUSD,
	}, log)

	bt, runErr := engine.Run(ctx, candles)
	if runErr != nil {
		log.Errorf("backtest failed: %v", runErr)
	}

	if *monteCarlo && bt.Status == types.BacktestCompleted && len(bt.Trades) > 0 {
		mc, err := backtest.RunMonteCarlo(ctx, bt, backtest.MonteCarloConfig{
			NumSimulations: cfg.NumSimulations,
			BlockSize:      cfg.BlockSize,
		})
		if err != nil {
			log.Errorf("monte carlo failed: %v", err)
		} else {
			bt.MonteCarlo = mc
		}
	}

	console := reporting.NewConsoleReporter()
	console.PrintSummary(bt)
	console.PrintMonteCarlo(bt.MonteCarlo)
	if *showTrades {
		console.PrintTrades(bt.Trades)
	}

	if *jsonOut != "" {
		if err := reporting.WriteJSON(bt, *jsonOut); err != nil {
			log.Errorf("write json report: %v", err)
		}
	}
	if *xlsxOut != "" {
		if err := reporting.WriteXLSX(bt, *xlsxOut); err != nil {
			log.Errorf("write excel report: %v", err)
		}
	}

	if *save {
		if err := store.SaveBacktest(ctx, bt); err != nil {
			log.Errorf("save backtest: %v", err)
		} else {
			log.WithField("backtest_id", bt.ID).Info("backtest saved")
		}
	}

	if runErr != nil {
		os.Exit(1)
	}
}

// loadCandles resolves each market's candles from, in order of preference:
// the config's data_files entry, the database, or the Bybit kline API.
func loadCandles(ctx context.Context, cfg *config.Backtest, start, end time.Time, store *storage.Store, log *logrus.Logger) (map[string][]types.Candle, error) {
	csvLoader := data.NewCSVLoader(log)
	var bybit *data.BybitProvider

	candles := make(map[string][]types.Candle, len(cfg.MarketIDs))
	for _, marketID := range cfg.MarketIDs {
		var (
			series []types.Candle
			err    error
		)
		switch {
		case cfg.DataFiles[marketID] != "":
			series, err = csvLoader.Load(cfg.DataFiles[marketID], marketID, cfg.Interval)
		case store != nil:
			series, err = store.Candles(ctx, storage.CandleQuery{
				MarketID: marketID,
				Interval: cfg.Interval,
				Start:    start,
				End:      end,
			})
		default:
			if bybit == nil {
				bybit = data.NewBybitProvider(log)
			}
			series, err = bybit.Candles(ctx, marketID, bybitSymbol(marketID), cfg.Interval, start, end)
		}
		if err != nil {
			return nil, fmt.Errorf("market %s: %w", marketID, err)
		}

		series = data.FilterByDateRange(series, start, end)
		if err := data.ValidateChronology(series); err != nil {
			return nil, fmt.Errorf("market %s: %w", marketID, err)
		}
		if len(series) == 0 {
			return nil, fmt.Errorf("market %s: no candles in range", marketID)
		}
		candles[marketID] = series
	}
	return candles, nil
}

// bybitSymbol maps market ids like "btc-usd" to Bybit spot symbols like
// "BTCUSDT".
func bybitSymbol(marketID string) string {
	symbol := strings.ToUpper(strings.ReplaceAll(marketID, "-", ""))
	if strings.HasSuffix(symbol, "USD") {
		symbol += "T"
	}
	return symbol
}
