package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"payment-service/internal/config"
	"payment-service/internal/domain"
	"payment-service/internal/effects"
	"payment-service/internal/events"
	"payment-service/internal/gateway"
	"payment-service/internal/handler"
	"payment-service/internal/identity"
	"payment-service/internal/pricing"
	"payment-service/internal/repository"
	"payment-service/internal/sender"
	"payment-service/internal/service"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
	log.Info("Starting payment service...")

	if err := godotenv.Load(); err != nil {
		log.Warn("Could not load .env file.")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	// Use a separate migrations table to avoid conflicts with the platform migrations
	migrationDBURL := cfg.DatabaseURL
	if strings.Contains(migrationDBURL, "?") {
		migrationDBURL += "&x-migrations-table=payment_schema_migrations"
	} else {
		migrationDBURL += "?x-migrations-table=payment_schema_migrations"
	}

	m, err := migrate.New("file://"+cfg.MigrationsDir, migrationDBURL)
	if err != nil {
		log.WithError(err).Fatal("Could not create migration instance")
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.WithError(err).Fatal("Could not apply migration")
	}
	log.Info("Database migration successfully applied")

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()

	transactionRepo := repository.NewPostgresTransactionRepository(db)
	couponRepo := repository.NewPostgresCouponRepository(db)
	registrationRepo := repository.NewPostgresRegistrationRepository(db)
	settingsRepo := repository.NewPostgresSettingsRepository(db)
	emailLogRepo := repository.NewPostgresEmailLogRepository(db)

	gatewayClient := gateway.NewClient(cfg.PaymentAPIURL, cfg.PaymentAPIKey)
	identityClient := identity.NewClient(cfg.IdentityAPIURL, cfg.IdentityAPIKey)

	var emailSender sender.EmailSender = sender.NoopSender{}
	if cfg.SMTPHost != "" {
		emailSender = sender.NewSMTPEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.KafkaBootstrapServers != "" {
		kafkaPublisher, err := events.NewKafkaPublisher(cfg.KafkaBootstrapServers, cfg.KafkaPaymentsTopic)
		if err != nil {
			log.WithError(err).Fatal("Failed to create Kafka publisher")
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	} else {
		log.Warn("KAFKA_BOOTSTRAP_SERVERS not set, payment events disabled")
	}

	dispatcher := effects.NewDispatcher(
		registrationRepo, identityClient, transactionRepo, emailSender, emailLogRepo, publisher,
	)

	serverEnv := domain.EnvDevelopment
	if cfg.IsProduction() {
		serverEnv = domain.EnvProduction
	}

	payments := service.NewPaymentService(
		transactionRepo, couponRepo, registrationRepo, settingsRepo,
		gatewayClient, dispatcher,
		serverEnv,
		pricing.Rates{
			Standard:  mustDecimal(cfg.MembershipStandardRate),
			Committee: mustDecimal(cfg.MembershipCommitteeRate),
		},
		service.Limits{
			Event:    mustDecimal(cfg.MaxEventAmount),
			PubCrawl: mustDecimal(cfg.MaxPubCrawlAmount),
			Trip:     mustDecimal(cfg.MaxTripAmount),
		},
		cfg.RedirectAllowList,
		cfg.WebhookURL,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      handler.New(payments).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.HTTPPort).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigchan
	log.Infof("Caught signal %v: terminating", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		log.WithError(err).Fatalf("Invalid decimal in configuration: %q", s)
	}
	return d
}
