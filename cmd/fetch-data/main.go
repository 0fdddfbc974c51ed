// Command fetch-data downloads historical klines from Bybit and writes
// them as CSV files compatible with the backtest loader, optionally also
// inserting them into the candle database.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/akhenda/polypaper/internal/logger"
	"github.com/akhenda/polypaper/internal/storage"
	"github.com/akhenda/polypaper/pkg/config"
	"github.com/akhenda/polypaper/pkg/data"
	"github.com/akhenda/polypaper/pkg/types"
)

func main() {
	var (
		markets   = flag.String("markets", "btc-usd", "Comma-separated market ids")
		interval  = flag.String("interval", "1h", "Candle interval")
		startDate = flag.String("start", "", "Start date (YYYY-MM-DD)")
		endDate   = flag.String("end", "", "End date (YYYY-MM-DD, defaults to today)")
		outdir    = flag.String("outdir", "data", "Directory to write CSV files")
		toDB      = flag.Bool("db", false, "Also insert candles into the database (requires DATABASE_URL)")
		envFile   = flag.String("env", ".env", "Environment file path")
	)
	flag.Parse()

	if *startDate == "" {
		fmt.Fprintln(os.Stderr, "usage: fetch-data -markets btc-usd,eth-usd -interval 1h -start 2025-01-01 [-end 2025-06-01] [-db]")
		os.Exit(2)
	}

	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse -start: %v\n", err)
		os.Exit(2)
	}
	end := time.Now().UTC()
	if *endDate != "" {
		if end, err = time.Parse("2006-01-02", *endDate); err != nil {
			fmt.Fprintf(os.Stderr, "parse -end: %v\n", err)
			os.Exit(2)
		}
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

	var store *storage.Store
	if *toDB {
		if app.DatabaseURL == "" {
			log.Fatal("-db requires DATABASE_URL to be set")
		}
		if store, err = storage.Open(app.DatabaseURL, log); err != nil {
			log.Fatalf("open database: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider := data.NewBybitProvider(log)
	for _, marketID := range strings.Split(*markets, ",") {
		marketID = strings.TrimSpace(marketID)

		candles, err := provider.Candles(ctx, marketID, bybitSymbol(marketID), *interval, start, end)
		if err != nil {
			log.Fatalf("fetch %s: %v", marketID, err)
		}
		if err := data.ValidateChronology(candles); err != nil {
			log.Fatalf("market %s: %v", marketID, err)
		}

		path := filepath.Join(*outdir, marketID, *interval, "candles.csv")
		if err := writeCandleCSV(path, candles); err != nil {
			log.Fatalf("write %s: %v", path, err)
		}
		log.Infof("wrote %d candles to %s", len(candles), path)

		if store != nil {
			if err := store.InsertCandles(ctx, candles); err != nil {
				log.Fatalf("insert candles for %s: %v", marketID, err)
			}
			log.Infof("inserted %d candles for %s", len(candles), marketID)
		}
	}
}

func writeCandleCSV(path string, candles []types.Candle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, candle := range candles {
		record := []string{
			candle.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			formatFloat(candle.Open),
			formatFloat(candle.High),
			formatFloat(candle.Low),
			formatFloat(candle.Close),
			formatFloat(candle.Volume),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
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
