package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"tinkoff-invest-report/internal/logger"
	"tinkoff-invest-report/internal/parser"
	"tinkoff-invest-report/internal/processor"
	"tinkoff-invest-report/internal/report"
	"tinkoff-invest-report/internal/store"
	"tinkoff-invest-report/internal/tinkoff"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: tinkoffreport {TOKEN}")
		os.Exit(1)
	}
	token := os.Args[1]

	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	defer logger.Shutdown(ctx)

	cfgPath := os.Getenv("TINKOFF_REPORT_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := store.LoadConfig(cfgPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", cfgPath)
		os.Exit(1)
	}

	client := tinkoff.NewClient(tinkoff.Params{
		BaseURL:      cfg.API.BaseURL,
		Token:        token,
		Timeout:      time.Duration(cfg.API.TimeoutSeconds) * time.Second,
		RateLimitRPS: cfg.API.RateLimitRPS,
	})

	proc := processor.NewTradesProcessor()
	jsonParser := parser.New(proc)

	// Instruments first: the operations callback resolves names
	// through the figi index.
	body, err := client.MarketStocks(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Market stocks request failed", err)
		os.Exit(1)
	}
	if err := jsonParser.Parse(ctx, body, tinkoff.KindMarketStocks); err != nil {
		logger.ErrorWithErr(ctx, "Market stocks decode failed", err)
	}

	request := tinkoff.OperationsRequest{
		From: cfg.Operations.From,
		To:   cfg.Operations.To,
		Figi: cfg.Operations.Figi,
	}
	body, err = client.Operations(ctx, request)
	if err != nil {
		logger.ErrorWithErr(ctx, "Operations request failed", err)
		os.Exit(1)
	}
	if err := jsonParser.Parse(ctx, body, tinkoff.KindOperations); err != nil {
		logger.ErrorWithErr(ctx, "Operations decode failed", err)
	}

	if cfg.FetchPortfolio {
		body, err = client.Portfolio(ctx)
		if err != nil {
			logger.ErrorWithErr(ctx, "Portfolio request failed", err)
			os.Exit(1)
		}
		if err := jsonParser.Parse(ctx, body, tinkoff.KindPortfolio); err != nil {
			logger.ErrorWithErr(ctx, "Portfolio decode failed", err)
		}
	}

	writer := report.NewWriter(report.Config{
		Dir:            cfg.Output.Dir,
		TradesFile:     cfg.Output.TradesFile,
		ProfitLossBase: cfg.Output.ProfitLossBase,
	})
	if err := writer.WriteTrades(ctx, proc.Trades()); err != nil {
		logger.ErrorWithErr(ctx, "Failed to write trades report", err)
	}
	if err := writer.WriteProfitLoss(ctx, proc.ProfitLoss(ctx), request.From, request.To); err != nil {
		logger.ErrorWithErr(ctx, "Failed to write profit/loss report", err)
	}
}
