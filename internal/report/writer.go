package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tinkoff-invest-report/internal/logger"
	"tinkoff-invest-report/internal/processor"
)

const delimiter = ";"

var tradesColumns = []string{
	"Instrument Name",
	"Side",
	"Price",
	"Amount",
	"Commission Currency",
	"Commission Value",
}

var profitLossColumns = []string{
	"Instrument Name",
	"Result(without commission)",
	"Commission(only trades commission)",
	"Profit & Loss",
	"Currency",
}

// Config carries the output locations; nothing in the writer is
// hardcoded to a filesystem path.
type Config struct {
	Dir            string
	TradesFile     string
	ProfitLossBase string
}

// Writer renders aggregated trades and profit/loss rollups as
// semicolon-delimited text files.
type Writer struct {
	cfg Config
}

// NewWriter creates a report writer for the given output config.
func NewWriter(cfg Config) *Writer {
	if cfg.TradesFile == "" {
		cfg.TradesFile = "trades.output"
	}
	if cfg.ProfitLossBase == "" {
		cfg.ProfitLossBase = "profit-loss"
	}
	return &Writer{cfg: cfg}
}

// showEmpty renders an empty string as a literal "" token so that an
// absent value is distinguishable from a skipped column when the file
// is opened in spreadsheet tools.
func showEmpty(value string) string {
	if value == "" {
		return `""`
	}
	return value
}

// TradesPath returns the path of the trades report.
func (w *Writer) TradesPath() string {
	return filepath.Join(w.cfg.Dir, w.cfg.TradesFile)
}

// ProfitLossPath returns the path of the profit/loss report for the
// given date range.
func (w *Writer) ProfitLossPath(fromTime, toTime string) string {
	return filepath.Join(w.cfg.Dir, w.cfg.ProfitLossBase+fromTime+"-"+toTime+".output")
}

// WriteTrades writes one row per trade. With no trades, no file is
// written at all.
func (w *Writer) WriteTrades(ctx context.Context, trades []processor.TradeToSave) error {
	logger.Info(ctx, "Save trades")
	if len(trades) == 0 {
		logger.Warn(ctx, "SaveTrades: no trades")
		return nil
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(tradesColumns, delimiter))
	for _, trade := range trades {
		sb.WriteString("\n")
		sb.WriteString(strings.Join([]string{
			showEmpty(trade.InstrumentName),
			showEmpty(trade.Side),
			trade.Price.String(),
			trade.Amount.String(),
			showEmpty(trade.Commission.Currency),
			trade.Commission.Value.String(),
		}, delimiter))
	}

	return w.writeFile(ctx, w.TradesPath(), sb.String())
}

// WriteProfitLoss writes one rollup row per instrument. With no
// aggregated operations, no file is written at all.
func (w *Writer) WriteProfitLoss(ctx context.Context, rollups []processor.ProfitLossInfo, fromTime, toTime string) error {
	logger.Info(ctx, "Save profit loss")
	if len(rollups) == 0 {
		logger.Warn(ctx, "SaveProfitLoss: no operations")
		return nil
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(profitLossColumns, delimiter))
	for _, info := range rollups {
		sb.WriteString("\n")
		sb.WriteString(strings.Join([]string{
			showEmpty(info.InstrumentName),
			info.FinancialResult.String(),
			info.Commission.String(),
			info.ProfitLoss.String(),
			showEmpty(info.Currency),
		}, delimiter))
	}

	return w.writeFile(ctx, w.ProfitLossPath(fromTime, toTime), sb.String())
}

func (w *Writer) writeFile(ctx context.Context, path, content string) error {
	if w.cfg.Dir != "" {
		if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	logger.Info(ctx, "Report written", "path", path)
	return nil
}
