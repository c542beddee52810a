package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"payment-service/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const queryTimeout = 5 * time.Second

type PostgresTransactionRepository struct {
	db *sql.DB
}

func NewPostgresTransactionRepository(db *sql.DB) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

const transactionColumns = `
	id, external_payment_id, amount, description, product_type,
	payment_status, approval_status, environment,
	registration_id, registration_type, coupon_code, user_id,
	contact_email, contact_first_name, contact_last_name,
	created_at, updated_at`

// Create persists the full ledger row before any provider call is attempted,
// so an audit record exists even when payment creation fails afterwards.
func (r *PostgresTransactionRepository) Create(ctx context.Context, tx domain.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	log.WithFields(log.Fields{
		"transaction_id": tx.ID,
		"product_type":   tx.ProductType,
		"amount":         tx.Amount.StringFixed(2),
	}).Info("Creating ledger transaction")

	const query = `
        INSERT INTO transactions (
            id, external_payment_id, amount, description, product_type,
            payment_status, approval_status, environment,
            registration_id, registration_type, coupon_code, user_id,
            contact_email, contact_first_name, contact_last_name
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15);
    `

	_, err := r.db.ExecContext(ctx, query,
		tx.ID, tx.ExternalPaymentID, tx.Amount.StringFixed(2), tx.Description, string(tx.ProductType),
		string(tx.PaymentStatus), string(tx.ApprovalStatus), string(tx.Environment),
		tx.RegistrationID, tx.RegistrationType, tx.CouponCode, tx.UserID,
		tx.ContactEmail, tx.ContactFirstName, tx.ContactLastName,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// Transition moves a transaction from open to a terminal status. It is a
// compare-and-set: only a row still in open is updated, and the return value
// reports whether this call won the transition. A duplicate webhook delivery
// therefore observes won=false and must not dispatch side effects again.
func (r *PostgresTransactionRepository) Transition(ctx context.Context, id string, status domain.PaymentStatus) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("refusing transition to non-terminal status %q", status)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
        UPDATE transactions
        SET payment_status = $1, updated_at = now()
        WHERE id = $2 AND payment_status = 'open';
    `

	res, err := r.db.ExecContext(ctx, query, string(status), id)
	if err != nil {
		return false, fmt.Errorf("failed to transition transaction %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresTransactionRepository) SetApproval(ctx context.Context, id string, status domain.ApprovalStatus) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `UPDATE transactions SET approval_status = $1, updated_at = now() WHERE id = $2;`
	res, err := r.db.ExecContext(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to set approval status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetExternalID records the provider payment id once the provider payment
// has been created.
func (r *PostgresTransactionRepository) SetExternalID(ctx context.Context, id, externalID string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `UPDATE transactions SET external_payment_id = $1, updated_at = now() WHERE id = $2;`
	if _, err := r.db.ExecContext(ctx, query, externalID, id); err != nil {
		return fmt.Errorf("failed to set external payment id: %w", err)
	}
	return nil
}

// SetUser backfills the user id after a guest account has been provisioned.
func (r *PostgresTransactionRepository) SetUser(ctx context.Context, id, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `UPDATE transactions SET user_id = $1, updated_at = now() WHERE id = $2;`
	if _, err := r.db.ExecContext(ctx, query, userID, id); err != nil {
		return fmt.Errorf("failed to set user id: %w", err)
	}
	return nil
}

func (r *PostgresTransactionRepository) GetByID(ctx context.Context, id string) (domain.Transaction, error) {
	const query = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1;`
	return r.getOne(ctx, query, id)
}

func (r *PostgresTransactionRepository) GetByExternalID(ctx context.Context, externalID string) (domain.Transaction, error) {
	const query = `SELECT ` + transactionColumns + ` FROM transactions WHERE external_payment_id = $1;`
	return r.getOne(ctx, query, externalID)
}

// GuestMembershipExists reports whether a guest with this email already has
// an open or settled new-membership transaction. It backs the duplicate
// signup rejection on the create path.
func (r *PostgresTransactionRepository) GuestMembershipExists(ctx context.Context, email string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
        SELECT EXISTS (
            SELECT 1 FROM transactions
            WHERE contact_email = $1
              AND product_type = 'membership_new'
              AND payment_status IN ('open', 'paid')
        );
    `

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check guest membership: %w", err)
	}
	return exists, nil
}

func (r *PostgresTransactionRepository) getOne(ctx context.Context, query string, arg any) (domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		tx     domain.Transaction
		amount string
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&tx.ID, &tx.ExternalPaymentID, &amount, &tx.Description, &tx.ProductType,
		&tx.PaymentStatus, &tx.ApprovalStatus, &tx.Environment,
		&tx.RegistrationID, &tx.RegistrationType, &tx.CouponCode, &tx.UserID,
		&tx.ContactEmail, &tx.ContactFirstName, &tx.ContactLastName,
		&tx.CreatedAt, &tx.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, ErrNotFound
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("failed to query transaction: %w", err)
	}
	if tx.Amount, err = parseAmount(amount); err != nil {
		return domain.Transaction{}, err
	}
	return tx, nil
}
