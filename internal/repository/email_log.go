package repository

import (
	"context"
	"database/sql"
	"fmt"

	log "github.com/sirupsen/logrus"

	"payment-service/internal/domain"
)

type PostgresEmailLogRepository struct {
	db *sql.DB
}

func NewPostgresEmailLogRepository(db *sql.DB) *PostgresEmailLogRepository {
	return &PostgresEmailLogRepository{db: db}
}

func (r *PostgresEmailLogRepository) SaveLog(ctx context.Context, l domain.EmailLog) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	log.WithFields(log.Fields{
		"transaction_id":  l.TransactionID,
		"recipient_email": l.RecipientEmail,
		"status":          l.Status,
	}).Info("Saving email log to database")

	const query = `
        INSERT INTO email_logs (transaction_id, recipient_email, subject, status, error_message)
        VALUES ($1, $2, $3, $4, $5);
    `

	if _, err := r.db.ExecContext(ctx, query, l.TransactionID, l.RecipientEmail, l.Subject, string(l.Status), nullStringOrNil(l.ErrorMessage)); err != nil {
		return fmt.Errorf("failed to insert email log: %w", err)
	}
	return nil
}

func nullStringOrNil(ns sql.NullString) interface{} {
	if ns.Valid {
		return ns.String
	}
	return nil
}
