package types

type Config struct {
	Environment     string `envconfig:"ENVIRONMENT" default:"development"`
	ServerPort      uint   `envconfig:"SERVER_PORT" default:"8080"`
	DatabaseURL     string `envconfig:"DATABASE_URL"`
	ReadTimeoutSec  uint   `envconfig:"READ_TIMEOUT_SEC" default:"10"`
	WriteTimeoutSec uint   `envconfig:"WRITE_TIMEOUT_SEC" default:"15"`

	// Stripe
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`

	// Platform fee policy. Integer percent of the charged amount kept by the
	// platform; the remainder is the nurse's net.
	PlatformFeePercent int64  `envconfig:"PLATFORM_FEE_PERCENT" default:"10"`
	PaymentCurrency    string `envconfig:"PAYMENT_CURRENCY" default:"egp"`

	// Token verification. The issuer must serve a JWKS document at
	// <issuer>/.well-known/jwks.json.
	JWTIssuerURL string `envconfig:"JWT_ISSUER_URL"`
}
