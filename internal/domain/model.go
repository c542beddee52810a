package domain

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type ProductType string

const (
	ProductMembershipNew     ProductType = "membership_new"
	ProductMembershipRenewal ProductType = "membership_renewal"
	ProductEvent             ProductType = "event"
	ProductPubCrawl          ProductType = "pub_crawl"
	ProductTrip              ProductType = "trip"
	// ProductAttentionRequired marks a transaction whose product could not be
	// classified from the request; it must be investigated by an admin.
	ProductAttentionRequired ProductType = "attention_required"
)

func (p ProductType) IsMembership() bool {
	return p == ProductMembershipNew || p == ProductMembershipRenewal
}

type PaymentStatus string

const (
	StatusOpen     PaymentStatus = "open"
	StatusPaid     PaymentStatus = "paid"
	StatusCanceled PaymentStatus = "canceled"
	StatusFailed   PaymentStatus = "failed"
	StatusExpired  PaymentStatus = "expired"
)

// Terminal reports whether no further payment-status transition is allowed.
func (s PaymentStatus) Terminal() bool {
	return s != StatusOpen
}

type ApprovalStatus string

const (
	ApprovalPending      ApprovalStatus = "pending"
	ApprovalApproved     ApprovalStatus = "approved"
	ApprovalRejected     ApprovalStatus = "rejected"
	ApprovalAutoApproved ApprovalStatus = "auto_approved"
)

type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

type RegistrationType string

const (
	RegistrationEvent    RegistrationType = "event_signup"
	RegistrationPubCrawl RegistrationType = "pub_crawl_signup"
	RegistrationTrip     RegistrationType = "trip_signup"
)

// Transaction is the durable ledger record for one attempted payment. Rows
// are never deleted; the table is the audit trail for every euro the
// association has tried to collect.
type Transaction struct {
	ID                string
	ExternalPaymentID sql.NullString
	Amount            decimal.Decimal
	Description       string
	ProductType       ProductType
	PaymentStatus     PaymentStatus
	ApprovalStatus    ApprovalStatus
	Environment       Environment
	RegistrationID    sql.NullString
	RegistrationType  sql.NullString
	CouponCode        sql.NullString
	UserID            sql.NullString
	ContactEmail      sql.NullString
	ContactFirstName  sql.NullString
	ContactLastName   sql.NullString
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type Coupon struct {
	Code          string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	IsActive      bool
	ValidFrom     *time.Time
	ValidUntil    *time.Time
	UsageLimit    *int
	UsageCount    int
}

// Activity is a bookable trip activity with optional paid add-ons.
type Activity struct {
	Name    string
	Price   decimal.Decimal
	Options []ActivityOption
}

type ActivityOption struct {
	Name  string
	Price decimal.Decimal
}

// SelectedActivity is an activity chosen on a trip signup together with the
// option names the participant picked.
type SelectedActivity struct {
	Name    string
	Options []string
}

// TripSignup is the pricing-relevant subset of a trip registration. A trip
// has two sequential payment milestones, tracked by independent flag pairs.
type TripSignup struct {
	ID                 string
	Role               string
	BasePrice          decimal.Decimal
	DepositAmount      decimal.Decimal
	CrewDiscount       decimal.Decimal
	Activities         []Activity
	SelectedActivities []SelectedActivity
	DepositPaid        bool
	DepositPaidAt      *time.Time
	FullPaymentPaid    bool
	FullPaymentPaidAt  *time.Time
}

type EmailStatus string

const (
	EmailSent   EmailStatus = "sent"
	EmailFailed EmailStatus = "failed"
)

// EmailLog records one confirmation-email attempt for auditing.
type EmailLog struct {
	TransactionID  string
	RecipientEmail string
	Subject        string
	Status         EmailStatus
	ErrorMessage   sql.NullString
}

// Contact identifies a guest payer who has no user account yet.
type Contact struct {
	Email     string
	FirstName string
	LastName  string
}
