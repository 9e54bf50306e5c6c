package tinkoff

import "github.com/shopspring/decimal"

// ResponseKind identifies which OpenAPI endpoint produced a response body.
type ResponseKind int

const (
	KindUndefined ResponseKind = iota
	KindError
	KindOperations
	KindPortfolio
	KindMarketStocks
)

func (k ResponseKind) String() string {
	switch k {
	case KindError:
		return "Error"
	case KindOperations:
		return "Operations"
	case KindPortfolio:
		return "Portfolio"
	case KindMarketStocks:
		return "MarketStocks"
	default:
		return "Undefined"
	}
}

// Instrument is one tradable instrument from /openapi/market/stocks.
// Immutable once decoded.
type Instrument struct {
	Figi              string
	Ticker            string
	Isin              string
	MinPriceIncrement decimal.Decimal
	Lot               decimal.Decimal
	Currency          string
	Name              string
	Type              string
}

// Trade is a single execution (fill) belonging to an Operation.
type Trade struct {
	TradeID  string
	Date     string
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Commission is the broker fee attached to an operation, sign preserved
// as received.
type Commission struct {
	Currency string
	Value    decimal.Decimal
}

// Operation is one brokerage account event. It may carry zero or more
// executions; Figi is a loose reference into the instrument universe.
type Operation struct {
	ID             string
	Status         string
	Trades         []Trade
	Commission     Commission
	Currency       string
	Payment        decimal.Decimal
	Price          decimal.Decimal
	Quantity       decimal.Decimal
	Figi           string
	InstrumentType string
	Date           string
	OperationType  string
}

// Portfolio holds the figi of each open position. The decode path
// exists for response validation only; the result is not aggregated.
type Portfolio struct {
	Positions []string
}

// OperationsRequest is the query for /openapi/operations. Empty fields
// are omitted from the query string entirely.
type OperationsRequest struct {
	From string
	To   string
	Figi string
}
