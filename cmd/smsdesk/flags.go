package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env"
)

type Config struct {
	Address         string        `env:"RUN_ADDRESS" envDefault:"localhost:8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"INFO"`
	ProviderAddress string        `env:"PROVIDER_ADDRESS" envDefault:"https://hero-sms.com/stubs/handler_api.php"`
	MarketAddress   string        `env:"MARKET_ADDRESS" envDefault:"https://shopvia.dev/api"`
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
	OrderTTL        time.Duration `env:"ORDER_TTL" envDefault:"15m"`
	MarketOrderTTL  time.Duration `env:"MARKET_ORDER_TTL" envDefault:"24h"`
	DatabasePath    string        `env:"DATABASE_PATH" envDefault:"smsdesk.db"`
	JWTSecret       string        `env:"JWT_SECRET" envDefault:"dontexposethis"`
	JWTTTL          time.Duration `env:"JWT_TTL" envDefault:"24h"`
}

func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("ENV JWT_SECRET must be set")
	}

	address := flag.String("a", cfg.Address, "{Host:port} for server")
	loglevel := flag.String("l", cfg.LogLevel, "Log level for server")
	providerAddress := flag.String("p", cfg.ProviderAddress, "SMS provider API address")
	marketAddress := flag.String("m", cfg.MarketAddress, "Marketplace API address")
	pollInterval := flag.Duration("i", cfg.PollInterval, "Status poll interval for active order")
	orderTTL := flag.Duration("o", cfg.OrderTTL, "TTL of active order before auto-cancel")
	marketOrderTTL := flag.Duration("k", cfg.MarketOrderTTL, "Retention for marketplace orders")
	databasePath := flag.String("d", cfg.DatabasePath, "Path to SQLite database file")
	jwtTTL := flag.Duration("t", cfg.JWTTTL, "TTL for JWT token(e.g. 24h; 30m )")

	flag.Parse()

	cfg.Address = *address
	cfg.LogLevel = *loglevel
	cfg.ProviderAddress = *providerAddress
	cfg.MarketAddress = *marketAddress
	cfg.PollInterval = *pollInterval
	cfg.OrderTTL = *orderTTL
	cfg.MarketOrderTTL = *marketOrderTTL
	cfg.DatabasePath = *databasePath
	cfg.JWTTTL = *jwtTTL

	return cfg, nil
}
