package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"tinkoff-invest-report/internal/logger"
	"tinkoff-invest-report/internal/tinkoff"
)

// ErrNoPayload is returned when a response lacks the payload envelope.
var ErrNoPayload = errors.New("response has no payload")

// Handler receives decoded responses. A nil handler drops results.
type Handler interface {
	OnInstrumentsDecoded(ctx context.Context, instruments []tinkoff.Instrument)
	OnOperationsDecoded(ctx context.Context, operations []tinkoff.Operation)
}

// Parser routes raw response bodies to the decoder matching the
// declared response kind.
type Parser struct {
	handler Handler
}

// New creates a parser. handler may be nil.
func New(handler Handler) *Parser {
	return &Parser{handler: handler}
}

// Parse validates the body as JSON and dispatches by kind. Decode
// failures are logged and returned; they never panic and never emit
// partial results to the handler.
func (p *Parser) Parse(ctx context.Context, raw []byte, kind tinkoff.ResponseKind) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			logger.Error(ctx, "Json parsing error", "reason", syntaxErr.Error(), "offset", syntaxErr.Offset)
			return fmt.Errorf("json parsing error at offset %d: %w", syntaxErr.Offset, err)
		}
		logger.ErrorWithErr(ctx, "Json parsing error", err)
		return fmt.Errorf("json parsing error: %w", err)
	}

	payload, err := p.payload(ctx, doc)
	if err != nil {
		return err
	}

	switch kind {
	case tinkoff.KindMarketStocks:
		instruments, err := p.decodeInstruments(ctx, payload)
		if err != nil {
			return err
		}
		if p.handler != nil {
			p.handler.OnInstrumentsDecoded(ctx, instruments)
		}
	case tinkoff.KindOperations:
		operations, err := p.decodeOperations(ctx, payload)
		if err != nil {
			return err
		}
		if p.handler != nil {
			p.handler.OnOperationsDecoded(ctx, operations)
		}
	case tinkoff.KindPortfolio:
		// Decoded for validation only; nothing consumes positions yet.
		portfolio, err := p.decodePortfolio(ctx, payload)
		if err != nil {
			return err
		}
		logger.Info(ctx, "Portfolio decoded", "positions", len(portfolio.Positions))
	default:
		return fmt.Errorf("unsupported response kind %s", kind)
	}

	return nil
}

func (p *Parser) payload(ctx context.Context, doc map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	raw, ok := doc["payload"]
	if !ok {
		logger.Error(ctx, "No payload")
		return nil, ErrNoPayload
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.ErrorWithErr(ctx, "Malformed payload", err)
		return nil, fmt.Errorf("malformed payload: %w", err)
	}

	return payload, nil
}

func (p *Parser) decodeInstruments(ctx context.Context, payload map[string]json.RawMessage) ([]tinkoff.Instrument, error) {
	elems, err := arrayField(ctx, payload, "instruments")
	if err != nil {
		return nil, err
	}

	instruments := make([]tinkoff.Instrument, 0, len(elems))
	for i, elem := range elems {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(elem, &obj); err != nil {
			return nil, fmt.Errorf("instruments[%d] is not an object: %w", i, err)
		}

		var inst tinkoff.Instrument
		getString(ctx, obj, "figi", &inst.Figi)
		getString(ctx, obj, "ticker", &inst.Ticker)
		getString(ctx, obj, "isin", &inst.Isin)
		getDecimal(ctx, obj, "minPriceIncrement", &inst.MinPriceIncrement)
		getDecimal(ctx, obj, "lot", &inst.Lot)
		getString(ctx, obj, "currency", &inst.Currency)
		getString(ctx, obj, "name", &inst.Name)
		getString(ctx, obj, "type", &inst.Type)

		instruments = append(instruments, inst)
	}

	return instruments, nil
}

func (p *Parser) decodeOperations(ctx context.Context, payload map[string]json.RawMessage) ([]tinkoff.Operation, error) {
	elems, err := arrayField(ctx, payload, "operations")
	if err != nil {
		return nil, err
	}

	operations := make([]tinkoff.Operation, 0, len(elems))
	for i, elem := range elems {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(elem, &obj); err != nil {
			return nil, fmt.Errorf("operations[%d] is not an object: %w", i, err)
		}

		var op tinkoff.Operation
		getString(ctx, obj, "id", &op.ID)
		getString(ctx, obj, "status", &op.Status)
		getString(ctx, obj, "operationType", &op.OperationType)
		getString(ctx, obj, "figi", &op.Figi)
		getString(ctx, obj, "instrumentType", &op.InstrumentType)
		getDecimal(ctx, obj, "price", &op.Price)
		getDecimal(ctx, obj, "quantity", &op.Quantity)
		getString(ctx, obj, "currency", &op.Currency)
		getString(ctx, obj, "date", &op.Date)
		getDecimal(ctx, obj, "payment", &op.Payment)

		if checkExist(ctx, obj, "commission") {
			var commission map[string]json.RawMessage
			if err := json.Unmarshal(obj["commission"], &commission); err != nil {
				return nil, fmt.Errorf("operations[%d]: malformed commission: %w", i, err)
			}
			getString(ctx, commission, "currency", &op.Commission.Currency)
			getDecimal(ctx, commission, "value", &op.Commission.Value)
		}

		if !checkExist(ctx, obj, "trades") {
			operations = append(operations, op)
			continue
		}

		trades, err := p.decodeTrades(obj["trades"])
		if err != nil {
			return nil, fmt.Errorf("operations[%d]: %w", i, err)
		}
		op.Trades = trades

		operations = append(operations, op)
	}

	return operations, nil
}

// decodeTrades decodes the executions of one operation. Unlike the
// operation-level fields, every trade field is required; one missing
// field fails the whole operations decode.
func (p *Parser) decodeTrades(raw json.RawMessage) ([]tinkoff.Trade, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("trades is not an array: %w", err)
	}

	trades := make([]tinkoff.Trade, 0, len(elems))
	for i, elem := range elems {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(elem, &obj); err != nil {
			return nil, fmt.Errorf("trades[%d] is not an object: %w", i, err)
		}

		var trade tinkoff.Trade
		if err := requireString(obj, "tradeId", &trade.TradeID); err != nil {
			return nil, fmt.Errorf("trades[%d]: %w", i, err)
		}
		if err := requireString(obj, "date", &trade.Date); err != nil {
			return nil, fmt.Errorf("trades[%d]: %w", i, err)
		}
		if err := requireDecimal(obj, "price", &trade.Price); err != nil {
			return nil, fmt.Errorf("trades[%d]: %w", i, err)
		}
		if err := requireDecimal(obj, "quantity", &trade.Quantity); err != nil {
			return nil, fmt.Errorf("trades[%d]: %w", i, err)
		}

		trades = append(trades, trade)
	}

	return trades, nil
}

func (p *Parser) decodePortfolio(ctx context.Context, payload map[string]json.RawMessage) (tinkoff.Portfolio, error) {
	var portfolio tinkoff.Portfolio

	elems, err := arrayField(ctx, payload, "positions")
	if err != nil {
		return portfolio, err
	}

	for i, elem := range elems {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(elem, &obj); err != nil {
			return tinkoff.Portfolio{}, fmt.Errorf("positions[%d] is not an object: %w", i, err)
		}

		var figi string
		if err := requireString(obj, "figi", &figi); err != nil {
			return tinkoff.Portfolio{}, fmt.Errorf("positions[%d]: %w", i, err)
		}
		portfolio.Positions = append(portfolio.Positions, figi)
	}

	return portfolio, nil
}

// arrayField extracts a hard-required array from the payload. A
// missing key aborts the whole decode call.
func arrayField(ctx context.Context, payload map[string]json.RawMessage, key string) ([]json.RawMessage, error) {
	raw, ok := payload[key]
	if !ok {
		logger.Error(ctx, "Missing payload field", "key", key)
		return nil, fmt.Errorf("payload has no %s", key)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("%s is not an array: %w", key, err)
	}

	return elems, nil
}

// checkExist reports whether key is present, logging a diagnostic when
// it is not.
func checkExist(ctx context.Context, obj map[string]json.RawMessage, key string) bool {
	if _, ok := obj[key]; ok {
		return true
	}
	logger.Warn(ctx, "Missing field", "key", key)
	return false
}

func getString(ctx context.Context, obj map[string]json.RawMessage, key string, dst *string) {
	if !checkExist(ctx, obj, key) {
		return
	}
	if err := json.Unmarshal(obj[key], dst); err != nil {
		logger.Warn(ctx, "Unreadable field", "key", key, "error", err)
	}
}

func getDecimal(ctx context.Context, obj map[string]json.RawMessage, key string, dst *decimal.Decimal) {
	if !checkExist(ctx, obj, key) {
		return
	}
	if err := json.Unmarshal(obj[key], dst); err != nil {
		logger.Warn(ctx, "Unreadable field", "key", key, "error", err)
	}
}

func requireString(obj map[string]json.RawMessage, key string, dst *string) error {
	raw, ok := obj[key]
	if !ok {
		return fmt.Errorf("missing required field %q", key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %q: %w", key, err)
	}
	return nil
}

func requireDecimal(obj map[string]json.RawMessage, key string, dst *decimal.Decimal) error {
	raw, ok := obj[key]
	if !ok {
		return fmt.Errorf("missing required field %q", key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %q: %w", key, err)
	}
	return nil
}
