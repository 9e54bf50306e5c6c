package processor

import (
	"context"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"tinkoff-invest-report/internal/logger"
	"tinkoff-invest-report/internal/parser"
	"tinkoff-invest-report/internal/tinkoff"
)

var _ parser.Handler = (*TradesProcessor)(nil)

// TradeToSave is one row of the trades report, one per execution.
type TradeToSave struct {
	InstrumentName string
	Side           string
	Price          decimal.Decimal
	Amount         decimal.Decimal
	Commission     tinkoff.Commission
}

// ProfitLossInfo is one row of the profit/loss report, one per figi.
type ProfitLossInfo struct {
	InstrumentName  string
	FinancialResult decimal.Decimal
	Commission      decimal.Decimal
	ProfitLoss      decimal.Decimal
	Currency        string
}

var allowedOperationTypes = map[string]struct{}{
	"Buy":     {},
	"Sell":    {},
	"BuyCard": {},
}

// operationSet keeps operations for one figi ordered by the numeric
// value of their id. Equal ids collapse to a single entry.
type operationSet struct {
	keys []int64
	ops  []tinkoff.Operation
}

func (s *operationSet) insert(key int64, op tinkoff.Operation) {
	i := sort.Search(len(s.keys), func(i int) bool { return s.keys[i] >= key })
	if i < len(s.keys) && s.keys[i] == key {
		return
	}

	s.keys = append(s.keys, 0)
	copy(s.keys[i+1:], s.keys[i:])
	s.keys[i] = key

	s.ops = append(s.ops, tinkoff.Operation{})
	copy(s.ops[i+1:], s.ops[i:])
	s.ops[i] = op
}

// TradesProcessor joins the instrument universe with account
// operations, filters them down to executed stock trades and buckets
// eligible operations per figi for profit/loss rollups. Instruments
// are expected to arrive before operations; rows aggregated before
// their instrument is known keep an empty instrument name.
type TradesProcessor struct {
	figiToInstrument map[string]tinkoff.Instrument
	trades           []TradeToSave
	operationsByFigi map[string]*operationSet
}

// NewTradesProcessor creates an empty processor.
func NewTradesProcessor() *TradesProcessor {
	return &TradesProcessor{
		figiToInstrument: make(map[string]tinkoff.Instrument),
		operationsByFigi: make(map[string]*operationSet),
	}
}

// OnInstrumentsDecoded upserts decoded instruments into the figi
// index. Last write wins on duplicate figi.
func (p *TradesProcessor) OnInstrumentsDecoded(ctx context.Context, instruments []tinkoff.Instrument) {
	for _, instrument := range instruments {
		p.figiToInstrument[instrument.Figi] = instrument
	}
	logger.Info(ctx, "Instruments indexed", "count", len(instruments), "known", len(p.figiToInstrument))
}

// eligible applies the inclusion filter for trade-row emission and
// profit/loss bucketing.
func eligible(op tinkoff.Operation) bool {
	if _, ok := allowedOperationTypes[op.OperationType]; !ok {
		return false
	}
	return op.Status != "Declined" &&
		len(op.Trades) > 0 &&
		op.InstrumentType == "Stock" &&
		op.ID != "-1"
}

// OnOperationsDecoded filters decoded operations and emits one trade
// row per execution of each eligible operation.
func (p *TradesProcessor) OnOperationsDecoded(ctx context.Context, operations []tinkoff.Operation) {
	emitted := 0
	for _, op := range operations {
		if !eligible(op) {
			continue
		}

		instrument, known := p.figiToInstrument[op.Figi]
		if !known {
			logger.Warn(ctx, "Unknown figi, instrument name left empty", "figi", op.Figi, "operation", op.ID)
		}

		side := "Buy"
		if op.OperationType == "Sell" {
			side = "Sell"
		}

		for _, execution := range op.Trades {
			p.trades = append(p.trades, TradeToSave{
				InstrumentName: instrument.Name,
				Side:           side,
				Price:          execution.Price,
				Amount:         execution.Quantity,
				// The operation commission is not prorated per
				// execution; every row of the operation carries it whole.
				Commission: op.Commission,
			})
			emitted++
		}

		p.bucketOperation(ctx, op)
	}
	logger.Info(ctx, "Operations aggregated", "received", len(operations), "rows", emitted)
}

// bucketOperation inserts an eligible operation into its per-figi
// ordered set. Operations whose id is not numeric cannot be ordered
// and are kept out of the financial rollup.
func (p *TradesProcessor) bucketOperation(ctx context.Context, op tinkoff.Operation) {
	key, err := strconv.ParseInt(op.ID, 10, 64)
	if err != nil {
		logger.Warn(ctx, "Non-numeric operation id, excluded from profit/loss", "id", op.ID, "figi", op.Figi)
		return
	}

	set := p.operationsByFigi[op.Figi]
	if set == nil {
		set = &operationSet{}
		p.operationsByFigi[op.Figi] = set
	}
	set.insert(key, op)
}

// Trades returns the accumulated report rows in emission order.
func (p *TradesProcessor) Trades() []TradeToSave {
	return p.trades
}

// ProfitLoss computes one rollup row per figi bucket, in lexicographic
// figi order. A bucket whose instrument is unknown is skipped, not
// fatal to the rest of the report.
func (p *TradesProcessor) ProfitLoss(ctx context.Context) []ProfitLossInfo {
	figis := make([]string, 0, len(p.operationsByFigi))
	for figi := range p.operationsByFigi {
		figis = append(figis, figi)
	}
	sort.Strings(figis)

	rollups := make([]ProfitLossInfo, 0, len(figis))
	for _, figi := range figis {
		instrument, known := p.figiToInstrument[figi]
		if !known {
			logger.Error(ctx, "Unknown figi, profit/loss bucket skipped", "figi", figi)
			continue
		}

		info := ProfitLossInfo{
			InstrumentName: instrument.Name,
			Currency:       instrument.Currency,
		}

		for _, op := range p.operationsByFigi[figi].ops {
			if len(op.Trades) == 0 {
				logger.Warn(ctx, "Trade operation without executions", "id", op.ID, "figi", figi)
				continue
			}
			info.FinancialResult = info.FinancialResult.Sub(op.Payment)
			info.Commission = info.Commission.Add(op.Commission.Value.Abs())
		}
		info.ProfitLoss = info.FinancialResult.Sub(info.Commission)

		rollups = append(rollups, info)
	}

	return rollups
}
