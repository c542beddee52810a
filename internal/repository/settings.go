package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresSettingsRepository struct {
	db *sql.DB
}

func NewPostgresSettingsRepository(db *sql.DB) *PostgresSettingsRepository {
	return &PostgresSettingsRepository{db: db}
}

// ManualApproval reads the manual-approval toggle. It is fetched on every
// payment request rather than cached, so an admin flipping the flag takes
// effect immediately. A missing row means the flag is off.
func (r *PostgresSettingsRepository) ManualApproval(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `SELECT value FROM settings WHERE key = 'manual_approval';`

	var value string
	err := r.db.QueryRowContext(ctx, query).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read manual_approval setting: %w", err)
	}
	return value == "true", nil
}
