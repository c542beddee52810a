package validator

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyEmail         = errors.New("email is empty")
	ErrInvalidEmailFormat = errors.New("invalid email format")
	ErrEmptyDescription   = errors.New("description is empty")
	ErrMissingAmount      = errors.New("amount is missing or not positive")
	ErrAmountTooLarge     = errors.New("amount exceeds the allowed maximum")
	ErrEmptyRedirectURL   = errors.New("redirect URL is empty")
	ErrInvalidRedirectURL = errors.New("redirect URL is invalid")
	ErrRedirectNotAllowed = errors.New("redirect URL host is not allowed")
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return ErrEmptyEmail
	}
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmailFormat
	}
	return nil
}

func ValidateDescription(description string) error {
	if strings.TrimSpace(description) == "" {
		return ErrEmptyDescription
	}
	return nil
}

func ValidateAmount(amount decimal.Decimal, max decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrMissingAmount
	}
	if max.IsPositive() && amount.GreaterThan(max) {
		return ErrAmountTooLarge
	}
	return nil
}

// ValidateRedirectURL parses the URL and checks its host against the
// configured allow-list. This runs before any ledger row or provider payment
// is created, so an open-redirect attempt never leaves a trace downstream.
func ValidateRedirectURL(raw string, allowedHosts []string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrEmptyRedirectURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ErrInvalidRedirectURL
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range allowedHosts {
		if host == strings.ToLower(strings.TrimSpace(allowed)) {
			return nil
		}
	}
	return ErrRedirectNotAllowed
}
