package main

import (
	"fmt"

	"carebridge/pkg/types"

	"github.com/kelseyhightower/envconfig"
)

func loadConfig() (*types.Config, error) {
	c := new(types.Config)
	if err := envconfig.Process("", c); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}

	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("set DATABASE_URL")
	}

	if c.StripeSecretKey == "" {
		return nil, fmt.Errorf("set STRIPE_SECRET_KEY")
	}

	if c.StripeWebhookSecret == "" {
		return nil, fmt.Errorf("set STRIPE_WEBHOOK_SECRET")
	}

	if c.JWTIssuerURL == "" {
		return nil, fmt.Errorf("set JWT_ISSUER_URL")
	}

	if c.PlatformFeePercent < 0 || c.PlatformFeePercent > 100 {
		return nil, fmt.Errorf("PLATFORM_FEE_PERCENT must be between 0 and 100")
	}

	if c.ServerPort == 0 {
		c.ServerPort = 8080
	}

	if c.ReadTimeoutSec == 0 {
		c.ReadTimeoutSec = 10
	}

	if c.WriteTimeoutSec == 0 {
		c.WriteTimeoutSec = 15
	}

	return c, nil
}
