package tinkoff

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"tinkoff-invest-report/internal/api"
	"tinkoff-invest-report/internal/logger"
)

const (
	marketStocksTarget = "/openapi/market/stocks"
	operationsTarget   = "/openapi/operations"
	portfolioTarget    = "/openapi/portfolio"
)

// Params configures the REST client.
type Params struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	RateLimitRPS float64
}

// Client talks to the Tinkoff OpenAPI REST endpoint. Every request
// carries the bearer token and blocks until the full body is buffered.
type Client struct {
	api     *api.Client
	limiter *rate.Limiter
}

// NewClient creates a REST client for the given endpoint and token.
func NewClient(p Params) *Client {
	if p.Timeout == 0 {
		p.Timeout = 30 * time.Second
	}
	if p.RateLimitRPS == 0 {
		p.RateLimitRPS = 2
	}

	return &Client{
		api: api.NewClient(
			api.WithBaseURL(p.BaseURL),
			api.WithTimeout(p.Timeout),
			api.WithHeader("Authorization", "Bearer "+p.Token),
		),
		limiter: rate.NewLimiter(rate.Limit(p.RateLimitRPS), 1),
	}
}

// MarketStocks fetches the tradable stock universe.
func (c *Client) MarketStocks(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "tinkoff.market_stocks", marketStocksTarget)
}

// Operations fetches account operations for the requested range.
func (c *Client) Operations(ctx context.Context, req OperationsRequest) ([]byte, error) {
	q := url.Values{}
	if req.From != "" {
		q.Set("from", req.From)
	}
	if req.To != "" {
		q.Set("to", req.To)
	}
	if req.Figi != "" {
		q.Set("figi", req.Figi)
	}

	target := operationsTarget
	if enc := q.Encode(); enc != "" {
		target += "?" + enc
	}

	return c.get(ctx, "tinkoff.operations", target)
}

// Portfolio fetches the current open positions.
func (c *Client) Portfolio(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "tinkoff.portfolio", portfolioTarget)
}

func (c *Client) get(ctx context.Context, operation, target string) ([]byte, error) {
	timer := logger.StartOperation(ctx, operation)
	ctx = timer.GetContext()

	if err := c.limiter.Wait(ctx); err != nil {
		err = fmt.Errorf("rate limiter wait: %w", err)
		timer.EndWithError(err)
		return nil, err
	}

	resp, err := c.api.GET(ctx, target)
	if err != nil {
		timer.EndWithError(err)
		return nil, err
	}

	timer.End()
	return resp.Body, nil
}
