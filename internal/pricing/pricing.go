// Package pricing computes the authoritative charge for a payment request.
// Client-submitted totals are never trusted for products the server can
// derive itself.
package pricing

import (
	"github.com/shopspring/decimal"

	"payment-service/internal/domain"
)

// Rates holds the server-side membership contribution rates.
type Rates struct {
	Standard  decimal.Decimal
	Committee decimal.Decimal
}

// MembershipRate returns the contribution a user owes. Members of at least
// one committee pay the discounted rate; the amount the client submitted is
// ignored entirely.
func (r Rates) MembershipRate(committeeCount int) decimal.Decimal {
	if committeeCount > 0 {
		return r.Committee
	}
	return r.Standard
}

// TripRestAmount recomputes the final payment for a trip signup from the
// registration and trip records: base price plus every selected activity and
// each selected option that matches the activity's option list, minus the
// crew discount for crew members, minus the deposit that was already
// collected. The result never goes below zero.
func TripRestAmount(signup domain.TripSignup) decimal.Decimal {
	amount := signup.BasePrice

	byName := make(map[string]domain.Activity, len(signup.Activities))
	for _, a := range signup.Activities {
		byName[a.Name] = a
	}

	for _, sel := range signup.SelectedActivities {
		activity, ok := byName[sel.Name]
		if !ok {
			continue
		}
		amount = amount.Add(activity.Price)
		for _, optName := range sel.Options {
			for _, opt := range activity.Options {
				if opt.Name == optName {
					amount = amount.Add(opt.Price)
					break
				}
			}
		}
	}

	if signup.Role == "crew" {
		amount = amount.Sub(signup.CrewDiscount)
	}
	amount = amount.Sub(signup.DepositAmount)

	return floorZero(amount)
}

// ApplyDiscount applies a coupon to an amount, flooring at zero.
func ApplyDiscount(amount decimal.Decimal, coupon domain.Coupon) decimal.Decimal {
	switch coupon.DiscountType {
	case domain.DiscountPercentage:
		amount = amount.Sub(amount.Mul(coupon.DiscountValue).Div(decimal.NewFromInt(100)))
	case domain.DiscountFixed:
		amount = amount.Sub(coupon.DiscountValue)
	}
	return floorZero(amount)
}

// Round2 rounds to two decimal places for transmission to the payment
// provider.
func Round2(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

func floorZero(amount decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}
