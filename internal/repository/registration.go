package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"payment-service/internal/domain"
)

type PostgresRegistrationRepository struct {
	db *sql.DB
}

func NewPostgresRegistrationRepository(db *sql.DB) *PostgresRegistrationRepository {
	return &PostgresRegistrationRepository{db: db}
}

// GetTripSignup loads the pricing-relevant subset of a trip signup. The
// activity catalogue and the participant's selection are stored as JSON
// alongside the row.
func (r *PostgresRegistrationRepository) GetTripSignup(ctx context.Context, id string) (domain.TripSignup, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
        SELECT id, role, base_price, deposit_amount, crew_discount,
               activities, selected_activities,
               deposit_paid, deposit_paid_at, full_payment_paid, full_payment_paid_at
        FROM registrations WHERE id = $1 AND type = 'trip_signup';
    `

	var (
		s              domain.TripSignup
		basePrice      string
		depositAmount  string
		crewDiscount   string
		activitiesJSON []byte
		selectedJSON   []byte
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.Role, &basePrice, &depositAmount, &crewDiscount,
		&activitiesJSON, &selectedJSON,
		&s.DepositPaid, &s.DepositPaidAt, &s.FullPaymentPaid, &s.FullPaymentPaidAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TripSignup{}, ErrNotFound
	}
	if err != nil {
		return domain.TripSignup{}, fmt.Errorf("failed to query trip signup: %w", err)
	}

	if s.BasePrice, err = parseAmount(basePrice); err != nil {
		return domain.TripSignup{}, err
	}
	if s.DepositAmount, err = parseAmount(depositAmount); err != nil {
		return domain.TripSignup{}, err
	}
	if s.CrewDiscount, err = parseAmount(crewDiscount); err != nil {
		return domain.TripSignup{}, err
	}
	if len(activitiesJSON) > 0 {
		if err := json.Unmarshal(activitiesJSON, &s.Activities); err != nil {
			return domain.TripSignup{}, fmt.Errorf("failed to decode activities: %w", err)
		}
	}
	if len(selectedJSON) > 0 {
		if err := json.Unmarshal(selectedJSON, &s.SelectedActivities); err != nil {
			return domain.TripSignup{}, fmt.Errorf("failed to decode selected activities: %w", err)
		}
	}
	return s, nil
}

// MarkPaid flips the paid flag on a registration. Trip signups have two
// payment milestones; deposit selects which flag pair is written.
func (r *PostgresRegistrationRepository) MarkPaid(ctx context.Context, id string, regType domain.RegistrationType, deposit bool) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var query string
	switch {
	case regType == domain.RegistrationTrip && deposit:
		query = `UPDATE registrations SET deposit_paid = true, deposit_paid_at = now() WHERE id = $1;`
	case regType == domain.RegistrationTrip:
		query = `UPDATE registrations SET full_payment_paid = true, full_payment_paid_at = now() WHERE id = $1;`
	default:
		query = `UPDATE registrations SET paid = true, paid_at = now() WHERE id = $1;`
	}

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark registration %s paid: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
