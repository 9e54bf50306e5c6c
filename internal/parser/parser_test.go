package parser

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"tinkoff-invest-report/internal/tinkoff"
)

type recordingHandler struct {
	instruments [][]tinkoff.Instrument
	operations  [][]tinkoff.Operation
}

func (h *recordingHandler) OnInstrumentsDecoded(ctx context.Context, instruments []tinkoff.Instrument) {
	h.instruments = append(h.instruments, instruments)
}

func (h *recordingHandler) OnOperationsDecoded(ctx context.Context, operations []tinkoff.Operation) {
	h.operations = append(h.operations, operations)
}

func TestParseInstrumentsPreservesOrderAndCount(t *testing.T) {
	body := `{"payload":{"instruments":[
		{"figi":"F1","ticker":"AAA","isin":"US1","minPriceIncrement":0.01,"lot":1,"currency":"USD","name":"Acme","type":"Stock"},
		{"figi":"F2","ticker":"BBB","name":"Beta"},
		{"figi":"F1","ticker":"AAA2","name":"Acme again"}
	]}}`

	h := &recordingHandler{}
	p := New(h)

	if err := p.Parse(context.Background(), []byte(body), tinkoff.KindMarketStocks); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(h.instruments) != 1 {
		t.Fatalf("Expected one instruments callback, got %d", len(h.instruments))
	}
	got := h.instruments[0]
	if len(got) != 3 {
		t.Fatalf("Expected 3 instruments, got %d", len(got))
	}
	if got[0].Figi != "F1" || got[1].Figi != "F2" || got[2].Figi != "F1" {
		t.Errorf("Array order not preserved: %q %q %q", got[0].Figi, got[1].Figi, got[2].Figi)
	}
	if got[0].Name != "Acme" {
		t.Errorf("Expected name Acme, got %q", got[0].Name)
	}
	if !got[0].MinPriceIncrement.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("Expected minPriceIncrement 0.01, got %s", got[0].MinPriceIncrement)
	}
}

func TestParseInstrumentMissingFieldsDefaulted(t *testing.T) {
	body := `{"payload":{"instruments":[{"figi":"F1","name":"Acme"}]}}`

	h := &recordingHandler{}
	p := New(h)

	if err := p.Parse(context.Background(), []byte(body), tinkoff.KindMarketStocks); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	got := h.instruments[0][0]
	if got.Ticker != "" || got.Isin != "" || got.Currency != "" || got.Type != "" {
		t.Errorf("Expected missing scalar fields to default to empty, got %+v", got)
	}
	if !got.Lot.IsZero() || !got.MinPriceIncrement.IsZero() {
		t.Errorf("Expected missing decimal fields to default to zero, got lot=%s inc=%s", got.Lot, got.MinPriceIncrement)
	}
}

func TestParseMissingPayloadIsHardStop(t *testing.T) {
	h := &recordingHandler{}
	p := New(h)

	err := p.Parse(context.Background(), []byte(`{"status":"Ok"}`), tinkoff.KindMarketStocks)
	if err == nil {
		t.Fatal("Expected error for missing payload")
	}
	if len(h.instruments) != 0 {
		t.Error("Handler must not be invoked on hard stop")
	}
}

func TestParseMissingInstrumentsKeyIsHardStop(t *testing.T) {
	h := &recordingHandler{}
	p := New(h)

	err := p.Parse(context.Background(), []byte(`{"payload":{}}`), tinkoff.KindMarketStocks)
	if err == nil {
		t.Fatal("Expected error for missing instruments key")
	}
	if len(h.instruments) != 0 {
		t.Error("Handler must not be invoked on hard stop")
	}
}

func TestParseInvalidJSONReportsOffset(t *testing.T) {
	h := &recordingHandler{}
	p := New(h)

	err := p.Parse(context.Background(), []byte(`{"payload": [}`), tinkoff.KindOperations)
	if err == nil {
		t.Fatal("Expected syntax error")
	}
	if !strings.Contains(err.Error(), "offset") {
		t.Errorf("Expected error to carry the byte offset, got %q", err.Error())
	}
	if len(h.operations) != 0 {
		t.Error("Handler must not be invoked on syntax error")
	}
}

func TestParseOperationMissingScalarTolerated(t *testing.T) {
	body := `{"payload":{"operations":[
		{"id":"5","operationType":"Buy","figi":"F1","instrumentType":"Stock","payment":-10}
	]}}`

	h := &recordingHandler{}
	p := New(h)

	if err := p.Parse(context.Background(), []byte(body), tinkoff.KindOperations); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	got := h.operations[0][0]
	if got.Status != "" {
		t.Errorf("Expected missing status to default to empty, got %q", got.Status)
	}
	if got.ID != "5" || got.OperationType != "Buy" {
		t.Errorf("Present fields must decode, got %+v", got)
	}
	if !got.Payment.Equal(decimal.NewFromInt(-10)) {
		t.Errorf("Expected payment -10, got %s", got.Payment)
	}
	if len(got.Trades) != 0 {
		t.Errorf("Expected empty trades, got %d", len(got.Trades))
	}
}

func TestParseOperationCommissionSubfieldsOptional(t *testing.T) {
	body := `{"payload":{"operations":[{"id":"1","commission":{"value":1.5}}]}}`

	h := &recordingHandler{}
	p := New(h)

	if err := p.Parse(context.Background(), []byte(body), tinkoff.KindOperations); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	got := h.operations[0][0]
	if got.Commission.Currency != "" {
		t.Errorf("Expected missing commission currency to default, got %q", got.Commission.Currency)
	}
	if !got.Commission.Value.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("Expected commission value 1.5, got %s", got.Commission.Value)
	}
}

func TestParseTradeMissingFieldFailsWholeDecode(t *testing.T) {
	body := `{"payload":{"operations":[
		{"id":"1","operationType":"Buy","trades":[{"tradeId":"t1","date":"2020-01-01","price":10,"quantity":1}]},
		{"id":"2","operationType":"Sell","trades":[{"date":"2020-01-02","price":11,"quantity":2}]}
	]}}`

	h := &recordingHandler{}
	p := New(h)

	err := p.Parse(context.Background(), []byte(body), tinkoff.KindOperations)
	if err == nil {
		t.Fatal("Expected decode failure for trade missing tradeId")
	}
	if !strings.Contains(err.Error(), "tradeId") {
		t.Errorf("Expected error to name the missing field, got %q", err.Error())
	}
	if len(h.operations) != 0 {
		t.Error("Handler must not receive a partial operations batch")
	}
}

func TestParseTradesDecoded(t *testing.T) {
	body := `{"payload":{"operations":[
		{"id":"1","operationType":"Buy","trades":[
			{"tradeId":"t1","date":"2020-01-01T10:00:00+03:00","price":10.5,"quantity":2},
			{"tradeId":"t2","date":"2020-01-01T11:00:00+03:00","price":10.6,"quantity":3}
		]}
	]}}`

	h := &recordingHandler{}
	p := New(h)

	if err := p.Parse(context.Background(), []byte(body), tinkoff.KindOperations); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	trades := h.operations[0][0].Trades
	if len(trades) != 2 {
		t.Fatalf("Expected 2 trades, got %d", len(trades))
	}
	if trades[0].TradeID != "t1" || trades[1].TradeID != "t2" {
		t.Errorf("Trade order not preserved: %q %q", trades[0].TradeID, trades[1].TradeID)
	}
	if !trades[0].Price.Equal(decimal.RequireFromString("10.5")) {
		t.Errorf("Expected price 10.5, got %s", trades[0].Price)
	}
}

func TestParseNilHandlerDropsResult(t *testing.T) {
	p := New(nil)

	body := `{"payload":{"instruments":[{"figi":"F1","name":"Acme"}]}}`
	if err := p.Parse(context.Background(), []byte(body), tinkoff.KindMarketStocks); err != nil {
		t.Fatalf("Parse with nil handler must not fail: %v", err)
	}
}

func TestParsePortfolio(t *testing.T) {
	h := &recordingHandler{}
	p := New(h)

	body := `{"payload":{"positions":[{"figi":"F1"},{"figi":"F2"}]}}`
	if err := p.Parse(context.Background(), []byte(body), tinkoff.KindPortfolio); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// The portfolio decode is validation-only; nothing reaches the handler.
	if len(h.instruments) != 0 || len(h.operations) != 0 {
		t.Error("Portfolio decode must not invoke the handler")
	}
}

func TestParsePortfolioPositionWithoutFigiFails(t *testing.T) {
	p := New(nil)

	body := `{"payload":{"positions":[{"ticker":"AAA"}]}}`
	if err := p.Parse(context.Background(), []byte(body), tinkoff.KindPortfolio); err == nil {
		t.Fatal("Expected error for position missing figi")
	}
}

func TestParseUnsupportedKind(t *testing.T) {
	p := New(nil)

	if err := p.Parse(context.Background(), []byte(`{"payload":{}}`), tinkoff.KindUndefined); err == nil {
		t.Fatal("Expected error for undefined response kind")
	}
}
