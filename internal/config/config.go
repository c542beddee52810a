package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the full environment-driven configuration of the service.
type Config struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`

	DatabaseURL   string `env:"DATABASE_URL,required"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"db/migrations"`

	PaymentAPIURL string `env:"PAYMENT_API_URL,required"`
	PaymentAPIKey string `env:"PAYMENT_API_KEY,required"`
	WebhookURL    string `env:"PAYMENT_WEBHOOK_URL,required"`

	IdentityAPIURL string `env:"IDENTITY_API_URL"`
	IdentityAPIKey string `env:"IDENTITY_API_KEY"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     string `env:"SMTP_PORT"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM"`

	KafkaBootstrapServers string `env:"KAFKA_BOOTSTRAP_SERVERS"`
	KafkaPaymentsTopic    string `env:"KAFKA_PAYMENTS_TOPIC" envDefault:"successful_payments"`

	// Hosts a post-payment redirect URL may point at.
	RedirectAllowList []string `env:"REDIRECT_ALLOW_LIST" envSeparator:"," envDefault:"localhost"`

	// Membership contribution rates in euro.
	MembershipStandardRate  string `env:"MEMBERSHIP_STANDARD_RATE" envDefault:"30.00"`
	MembershipCommitteeRate string `env:"MEMBERSHIP_COMMITTEE_RATE" envDefault:"15.00"`

	// Upper bounds for product types whose amount comes from the client.
	MaxEventAmount    string `env:"MAX_EVENT_AMOUNT" envDefault:"150.00"`
	MaxPubCrawlAmount string `env:"MAX_PUB_CRAWL_AMOUNT" envDefault:"50.00"`
	MaxTripAmount     string `env:"MAX_TRIP_AMOUNT" envDefault:"1000.00"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}
