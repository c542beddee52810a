// Package coupon validates coupon codes against their activation flag,
// validity window and usage cap.
package coupon

import (
	"errors"
	"time"

	"payment-service/internal/domain"
)

// Business-rule rejections. Transport errors from the coupon store are
// wrapped separately by the caller and are never one of these.
var (
	ErrNotFound     = errors.New("coupon not found")
	ErrInactive     = errors.New("coupon is not active")
	ErrNotYetValid  = errors.New("coupon is not yet valid")
	ErrExpired      = errors.New("coupon has expired")
	ErrLimitReached = errors.New("coupon usage limit reached")
)

// IsRejection reports whether err is a business-rule rejection rather than a
// transport failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInactive) ||
		errors.Is(err, ErrNotYetValid) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrLimitReached)
}

// Validate checks a coupon's usability at the given time. Checks run in
// order and short-circuit on the first failure.
func Validate(c domain.Coupon, now time.Time) error {
	if !c.IsActive {
		return ErrInactive
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return ErrNotYetValid
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return ErrExpired
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return ErrLimitReached
	}
	return nil
}
