package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"payment-service/internal/domain"
)

type PostgresCouponRepository struct {
	db *sql.DB
}

func NewPostgresCouponRepository(db *sql.DB) *PostgresCouponRepository {
	return &PostgresCouponRepository{db: db}
}

func (r *PostgresCouponRepository) GetByCode(ctx context.Context, code string) (domain.Coupon, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
        SELECT code, discount_type, discount_value, is_active,
               valid_from, valid_until, usage_limit, usage_count
        FROM coupons WHERE code = $1;
    `

	var (
		c     domain.Coupon
		value string
	)
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&c.Code, &c.DiscountType, &value, &c.IsActive,
		&c.ValidFrom, &c.ValidUntil, &c.UsageLimit, &c.UsageCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Coupon{}, ErrNotFound
	}
	if err != nil {
		return domain.Coupon{}, fmt.Errorf("failed to query coupon: %w", err)
	}
	if c.DiscountValue, err = parseAmount(value); err != nil {
		return domain.Coupon{}, err
	}
	return c, nil
}

// Redeem increments the usage counter with the limit check folded into the
// UPDATE, so two concurrent redemptions can never both take the last slot.
// It returns false when the limit was already reached.
func (r *PostgresCouponRepository) Redeem(ctx context.Context, code string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
        UPDATE coupons
        SET usage_count = usage_count + 1
        WHERE code = $1 AND (usage_limit IS NULL OR usage_count < usage_limit);
    `

	res, err := r.db.ExecContext(ctx, query, code)
	if err != nil {
		return false, fmt.Errorf("failed to redeem coupon %s: %w", code, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse numeric column %q: %w", s, err)
	}
	return d, nil
}
