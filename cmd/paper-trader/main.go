package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/akhenda/polypaper/internal/ledger"
	"github.com/akhenda/polypaper/internal/logger"
	"github.com/akhenda/polypaper/internal/monitoring"
	"github.com/akhenda/polypaper/internal/risk"
	"github.com/akhenda/polypaper/internal/sim"
	"github.com/akhenda/polypaper/internal/storage"
	"github.com/akhenda/polypaper/internal/strategy"
	"github.com/akhenda/polypaper/pkg/config"
	"github.com/akhenda/polypaper/pkg/data"
	"github.com/akhenda/polypaper/pkg/types"
)

func main() {
	var (
		strategyID = flag.String("strategy", "", "Strategy id (see -list)")
		paramsJSON = flag.String("params", "", "Strategy parameters as inline JSON")
		markets    = flag.String("markets", "", "Comma-separated market ids (e.g. btc-usd,eth-usd)")
		interval   = flag.String("interval", "1h", "Candle interval")
		capital    = flag.Float64("capital", 10000, "Initial account balance (USD)")
		accountID  = flag.String("account", "paper-1", "Paper account id")
		envFile    = flag.String("env", ".env", "Environment file path")
		list       = flag.Bool("list", false, "List available strategies and exit")
	)
	flag.Parse()

	if *list {
		for _, id := range strategy.List() {
			fmt.Println(id)
		}
		return
	}
	if *strategyID == "" || *markets == "" {
		fmt.Fprintln(os.Stderr, "usage: paper-trader -strategy <id> -markets <m1,m2> [-interval 1h] [-capital 10000]")
		os.Exit(2)
	}
	if types.IntervalDuration(*interval) <= 0 {
		fmt.Fprintf(os.Stderr, "unknown interval %q\n", *interval)
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

	marketIDs := strings.Split(*markets, ",")
	for i := range marketIDs {
		marketIDs[i] = strings.TrimSpace(marketIDs[i])
	}

	// One strategy instance per market: instances carry per-series state.
	strategies := make(map[string]strategy.Strategy, len(marketIDs))
	for _, marketID := range marketIDs {
		s, err := strategy.New(*strategyID, json.RawMessage(*paramsJSON))
		if err != nil {
			log.Fatalf("create strategy: %v", err)
		}
		strategies[marketID] = s
	}

	var store *storage.Store
	if app.DatabaseURL != "" {
		if store, err = storage.Open(app.DatabaseURL, log); err != nil {
			log.Fatalf("open database: %v", err)
		}
	}

	led := ledger.New()
	account := led.CreateAccount(*accountID, *capital)
	breaker := risk.NewManager(risk.Config{}, log)
	if store != nil {
		restoreRiskState(store, breaker, *accountID, *strategyID, log)
	}

	health := monitoring.NewHealthChecker(2 * types.IntervalDuration(*interval))
	go serveMonitoring(app.MetricsPort, health, log)

	trader := &paperTrader{
		strategyID: *strategyID,
		interval:   *interval,
		marketIDs:  marketIDs,
		strategies: strategies,
		provider:   data.NewBybitProvider(log),
		account:    account,
		breaker:    breaker,
		store:      store,
		health:     health,
		simCfg:     sim.Config{FeeRate: app.FeeRate, SlippageRate: app.SlippageRate},
		logger:     log.WithField("component", "paper_trader"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"strategy": *strategyID,
		"markets":  marketIDs,
		"interval": *interval,
		"account":  *accountID,
	}).Info("paper trader starting")

	if err := trader.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("paper trader stopped: %v", err)
	}
	trader.shutdown(context.Background())
	log.Info("paper trader stopped")
}

func serveMonitoring(port int, health *monitoring.HealthChecker, log logrus.FieldLogger) {
	mux := http.NewServeMux()
	mux.Handle("/health", health)
	mux.Handle("/metrics", monitoring.NewMetricsHandler())

	log.Infof("monitoring server listening on :%d", port)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
		log.Errorf("monitoring server error: %v", err)
	}
}

func restoreRiskState(store *storage.Store, breaker *risk.Manager, accountID, strategyID string, log logrus.FieldLogger) {
	state, err := store.StrategyState(context.Background(), accountID, strategyID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warnf("restore strategy state: %v", err)
		}
		return
	}
	breaker.Restore(state)
	log.WithFields(logrus.Fields{
		"consecutive_losses": state.ConsecutiveLosses,
		"total_trades":       state.TotalTrades,
	}).Info("restored risk state")
}
