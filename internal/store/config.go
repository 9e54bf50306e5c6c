package store

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	API struct {
		BaseURL        string  `yaml:"base_url"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	} `yaml:"api"`
	Operations struct {
		From string `yaml:"from"`
		To   string `yaml:"to"`
		Figi string `yaml:"figi"`
	} `yaml:"operations"`
	Output struct {
		Dir            string `yaml:"dir"`
		TradesFile     string `yaml:"trades_file"`
		ProfitLossBase string `yaml:"profit_loss_base"`
	} `yaml:"output"`
	FetchPortfolio bool `yaml:"fetch_portfolio"`
}

func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url cannot be empty")
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be positive, got %d", c.API.TimeoutSeconds)
	}
	from, err := time.Parse(time.RFC3339, c.Operations.From)
	if err != nil {
		return fmt.Errorf("invalid operations.from '%s': %w", c.Operations.From, err)
	}
	to, err := time.Parse(time.RFC3339, c.Operations.To)
	if err != nil {
		return fmt.Errorf("invalid operations.to '%s': %w", c.Operations.To, err)
	}
	if !from.Before(to) {
		return fmt.Errorf("operations.from '%s' must precede operations.to '%s'", c.Operations.From, c.Operations.To)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	var c Config

	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		// No config file: a plain token-only invocation still works.
	} else if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.API.BaseURL == "" {
		c.API.BaseURL = "https://api-invest.tinkoff.ru"
	}
	if c.API.TimeoutSeconds == 0 {
		c.API.TimeoutSeconds = 30
	}
	if c.API.RateLimitRPS == 0 {
		c.API.RateLimitRPS = 2
	}
	if c.Operations.From == "" {
		c.Operations.From = "2019-01-01T00:00:01+03:00"
	}
	if c.Operations.To == "" {
		c.Operations.To = "2020-04-24T00:00:01+03:00"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "reports"
	}
	if c.Output.TradesFile == "" {
		c.Output.TradesFile = "trades.output"
	}
	if c.Output.ProfitLossBase == "" {
		c.Output.ProfitLossBase = "profit-loss"
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}
