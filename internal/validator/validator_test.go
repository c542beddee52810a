package validator

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateEmail(t *testing.T) {
	if err := ValidateEmail("member@student.org"); err != nil {
		t.Errorf("expected valid email, got %v", err)
	}
	if err := ValidateEmail("  "); !errors.Is(err, ErrEmptyEmail) {
		t.Errorf("expected ErrEmptyEmail, got %v", err)
	}
	if err := ValidateEmail("not-an-email"); !errors.Is(err, ErrInvalidEmailFormat) {
		t.Errorf("expected ErrInvalidEmailFormat, got %v", err)
	}
}

func TestValidateAmount(t *testing.T) {
	max := decimal.RequireFromString("150.00")

	if err := ValidateAmount(decimal.RequireFromString("25.00"), max); err != nil {
		t.Errorf("expected valid amount, got %v", err)
	}
	if err := ValidateAmount(decimal.Zero, max); !errors.Is(err, ErrMissingAmount) {
		t.Errorf("expected ErrMissingAmount for zero, got %v", err)
	}
	if err := ValidateAmount(decimal.RequireFromString("-5"), max); !errors.Is(err, ErrMissingAmount) {
		t.Errorf("expected ErrMissingAmount for negative, got %v", err)
	}
	if err := ValidateAmount(decimal.RequireFromString("151.00"), max); !errors.Is(err, ErrAmountTooLarge) {
		t.Errorf("expected ErrAmountTooLarge, got %v", err)
	}
	// A zero max means no bound.
	if err := ValidateAmount(decimal.RequireFromString("9999"), decimal.Zero); err != nil {
		t.Errorf("expected unbounded amount to pass, got %v", err)
	}
}

func TestValidateRedirectURL(t *testing.T) {
	allowed := []string{"members.example.org", "example.org"}

	if err := ValidateRedirectURL("https://members.example.org/pay/done", allowed); err != nil {
		t.Errorf("expected allowed redirect, got %v", err)
	}
	if err := ValidateRedirectURL("https://EXAMPLE.org/done", allowed); err != nil {
		t.Errorf("expected host match to be case-insensitive, got %v", err)
	}
	if err := ValidateRedirectURL("https://evil.example.com/phish", allowed); !errors.Is(err, ErrRedirectNotAllowed) {
		t.Errorf("expected ErrRedirectNotAllowed, got %v", err)
	}
	if err := ValidateRedirectURL("", allowed); !errors.Is(err, ErrEmptyRedirectURL) {
		t.Errorf("expected ErrEmptyRedirectURL, got %v", err)
	}
	if err := ValidateRedirectURL("://bad", allowed); !errors.Is(err, ErrInvalidRedirectURL) {
		t.Errorf("expected ErrInvalidRedirectURL, got %v", err)
	}
}
