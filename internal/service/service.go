package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"payment-service/internal/approval"
	"payment-service/internal/coupon"
	"payment-service/internal/domain"
	"payment-service/internal/effects"
	"payment-service/internal/gateway"
	"payment-service/internal/pricing"
	"payment-service/internal/repository"
	"payment-service/internal/validator"
)

var (
	ErrDuplicateGuestEmail = errors.New("a membership for this email address already exists")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrUnknownPayment      = errors.New("no transaction for this payment id")
)

// TransactionRepository is the ledger storage the service depends on.
type TransactionRepository interface {
	Create(ctx context.Context, tx domain.Transaction) error
	Transition(ctx context.Context, id string, status domain.PaymentStatus) (bool, error)
	SetApproval(ctx context.Context, id string, status domain.ApprovalStatus) error
	SetExternalID(ctx context.Context, id, externalID string) error
	GetByID(ctx context.Context, id string) (domain.Transaction, error)
	GetByExternalID(ctx context.Context, externalID string) (domain.Transaction, error)
	GuestMembershipExists(ctx context.Context, email string) (bool, error)
}

type CouponRepository interface {
	GetByCode(ctx context.Context, code string) (domain.Coupon, error)
	Redeem(ctx context.Context, code string) (bool, error)
}

type RegistrationReader interface {
	GetTripSignup(ctx context.Context, id string) (domain.TripSignup, error)
}

type SettingsRepository interface {
	ManualApproval(ctx context.Context) (bool, error)
}

type PaymentGateway interface {
	CreatePayment(ctx context.Context, req gateway.CreatePaymentRequest) (gateway.Payment, error)
	GetPayment(ctx context.Context, id string) (gateway.Payment, error)
}

type EffectDispatcher interface {
	Dispatch(ctx context.Context, tx domain.Transaction, deposit bool) []effects.Outcome
}

// PaymentRequest is a payment as submitted by the platform layer. UserID,
// Contact and CommitteeCount are derived by that layer from the session, not
// typed in by the end user; Amount is only trusted for product types the
// server cannot price itself.
type PaymentRequest struct {
	Amount           decimal.Decimal
	Description      string
	RedirectURL      string
	CouponCode       string
	Environment      string
	RegistrationID   string
	RegistrationType string
	UserID           string
	CommitteeCount   int
	Contact          *domain.Contact
}

// PaymentResult is returned to the caller after a payment was created.
type PaymentResult struct {
	TransactionID     string
	ExternalPaymentID string
	CheckoutURL       string
	Amount            decimal.Decimal
	Paid              bool
}

// Limits are the per-product maximums for client-submitted amounts.
type Limits struct {
	Event    decimal.Decimal
	PubCrawl decimal.Decimal
	Trip     decimal.Decimal
}

// Smallest returns the lowest configured cap. Unclassifiable requests get no
// product-specific bound of their own, so they are held to the tightest one.
func (l Limits) Smallest() decimal.Decimal {
	smallest := decimal.Zero
	for _, limit := range []decimal.Decimal{l.Event, l.PubCrawl, l.Trip} {
		if !limit.IsPositive() {
			continue
		}
		if smallest.IsZero() || limit.LessThan(smallest) {
			smallest = limit
		}
	}
	return smallest
}

type PaymentService struct {
	transactions  TransactionRepository
	coupons       CouponRepository
	registrations RegistrationReader
	settings      SettingsRepository
	gateway       PaymentGateway
	effects       EffectDispatcher

	serverEnv  domain.Environment
	rates      pricing.Rates
	limits     Limits
	allowList  []string
	webhookURL string
	now        func() time.Time
}

func NewPaymentService(
	transactions TransactionRepository,
	coupons CouponRepository,
	registrations RegistrationReader,
	settings SettingsRepository,
	gw PaymentGateway,
	dispatcher EffectDispatcher,
	serverEnv domain.Environment,
	rates pricing.Rates,
	limits Limits,
	allowList []string,
	webhookURL string,
) *PaymentService {
	return &PaymentService{
		transactions:  transactions,
		coupons:       coupons,
		registrations: registrations,
		settings:      settings,
		gateway:       gw,
		effects:       dispatcher,
		serverEnv:     serverEnv,
		rates:         rates,
		limits:        limits,
		allowList:     allowList,
		webhookURL:    webhookURL,
		now:           time.Now,
	}
}

// CreatePayment validates and prices a payment request, writes the ledger
// row and either settles it on the spot (zero amount) or creates a provider
// payment and hands back the checkout URL.
func (s *PaymentService) CreatePayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	if err := validator.ValidateDescription(req.Description); err != nil {
		return PaymentResult{}, err
	}
	if err := validator.ValidateRedirectURL(req.RedirectURL, s.allowList); err != nil {
		return PaymentResult{}, err
	}

	product := classify(req)

	if req.UserID == "" {
		if req.Contact == nil {
			return PaymentResult{}, validator.ErrEmptyEmail
		}
		if err := validator.ValidateEmail(req.Contact.Email); err != nil {
			return PaymentResult{}, err
		}
		if product == domain.ProductMembershipNew {
			exists, err := s.transactions.GuestMembershipExists(ctx, req.Contact.Email)
			if err != nil {
				return PaymentResult{}, fmt.Errorf("failed to check for existing membership: %w", err)
			}
			if exists {
				return PaymentResult{}, ErrDuplicateGuestEmail
			}
		}
	}

	manualApproval, err := s.settings.ManualApproval(ctx)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("failed to read approval settings: %w", err)
	}
	approvalStatus, environment := approval.Decide(s.serverEnv, requestedEnv(req.Environment), manualApproval)

	var appliedCoupon *domain.Coupon
	if req.CouponCode != "" {
		c, err := s.lookupCoupon(ctx, req.CouponCode)
		if err != nil {
			return PaymentResult{}, err
		}
		if err := coupon.Validate(c, s.now()); err != nil {
			return PaymentResult{}, err
		}
		appliedCoupon = &c
	}

	amount, err := s.price(ctx, req, product)
	if err != nil {
		return PaymentResult{}, err
	}
	if appliedCoupon != nil {
		amount = pricing.ApplyDiscount(amount, *appliedCoupon)
	}
	amount = pricing.Round2(amount)

	tx := s.buildTransaction(req, product, amount, approvalStatus, environment)
	if err := s.transactions.Create(ctx, tx); err != nil {
		return PaymentResult{}, err
	}

	logCtx := log.WithFields(log.Fields{
		"transaction_id": tx.ID,
		"product_type":   product,
		"amount":         amount.StringFixed(2),
	})

	if amount.IsZero() {
		return s.settleFree(ctx, tx, req, logCtx)
	}

	payment, err := s.gateway.CreatePayment(ctx, gateway.CreatePaymentRequest{
		Amount:      amount.StringFixed(2),
		Description: req.Description,
		RedirectURL: req.RedirectURL,
		WebhookURL:  s.webhookURL,
	})
	if err != nil {
		// The open ledger row stays behind as the audit record of the
		// failed attempt.
		logCtx.WithError(err).Error("Provider payment creation failed")
		return PaymentResult{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if err := s.transactions.SetExternalID(ctx, tx.ID, payment.ID); err != nil {
		return PaymentResult{}, err
	}

	logCtx.WithField("payment_id", payment.ID).Info("Provider payment created")
	return PaymentResult{
		TransactionID:     tx.ID,
		ExternalPaymentID: payment.ID,
		CheckoutURL:       payment.CheckoutURL,
		Amount:            amount,
	}, nil
}

// settleFree is the zero-amount fast path: no provider payment exists and no
// webhook will ever arrive, so the transaction settles synchronously.
func (s *PaymentService) settleFree(ctx context.Context, tx domain.Transaction, req PaymentRequest, logCtx *log.Entry) (PaymentResult, error) {
	syntheticID := "internal_" + uuid.NewString()
	if err := s.transactions.SetExternalID(ctx, tx.ID, syntheticID); err != nil {
		return PaymentResult{}, err
	}
	won, err := s.transactions.Transition(ctx, tx.ID, domain.StatusPaid)
	if err != nil {
		return PaymentResult{}, err
	}
	if won {
		tx.ExternalPaymentID = sql.NullString{String: syntheticID, Valid: true}
		tx.PaymentStatus = domain.StatusPaid
		s.redeemCoupon(ctx, tx)
		s.effects.Dispatch(ctx, tx, isDepositPayment(tx.Description))
	}

	logCtx.Info("Zero-amount transaction settled without provider")
	return PaymentResult{
		TransactionID:     tx.ID,
		ExternalPaymentID: syntheticID,
		CheckoutURL:       paidRedirect(req.RedirectURL),
		Amount:            decimal.Zero.Round(2),
		Paid:              true,
	}, nil
}

// HandleWebhook reconciles a provider notification. The body only carries a
// payment id; the current status is re-fetched from the provider. Any error
// propagates so the caller answers 5xx and the provider redelivers.
func (s *PaymentService) HandleWebhook(ctx context.Context, externalID string) error {
	tx, err := s.transactions.GetByExternalID(ctx, externalID)
	if err != nil {
		if isNotFound(err) {
			// The webhook can outrun the create path persisting the
			// external id; redelivery resolves that.
			return fmt.Errorf("%w: %s", ErrUnknownPayment, externalID)
		}
		return err
	}

	logCtx := log.WithFields(log.Fields{
		"transaction_id": tx.ID,
		"payment_id":     externalID,
	})

	if tx.PaymentStatus == domain.StatusPaid {
		logCtx.Info("Webhook for already settled transaction, nothing to do")
		return nil
	}

	payment, err := s.gateway.GetPayment(ctx, externalID)
	if err != nil {
		return fmt.Errorf("failed to verify payment with provider: %w", err)
	}

	switch status := payment.InternalStatus(); status {
	case domain.StatusPaid:
		won, err := s.transactions.Transition(ctx, tx.ID, domain.StatusPaid)
		if err != nil {
			return err
		}
		if !won {
			// A concurrent delivery settled it first.
			logCtx.Info("Lost the transition race, treating as duplicate")
			return nil
		}
		tx.PaymentStatus = domain.StatusPaid
		s.redeemCoupon(ctx, tx)
		outcomes := s.effects.Dispatch(ctx, tx, isDepositPayment(tx.Description))
		for _, o := range outcomes {
			if o.Err != nil {
				logCtx.WithError(o.Err).WithField("effect", o.Effect).
					Warn("Post-payment effect failed")
			}
		}
		logCtx.Info("Transaction settled")
		return nil

	case domain.StatusCanceled, domain.StatusFailed, domain.StatusExpired:
		if _, err := s.transactions.Transition(ctx, tx.ID, status); err != nil {
			return err
		}
		logCtx.WithField("status", status).Info("Transaction closed without payment")
		return nil

	default:
		// Still open at the provider; a later webhook will settle it.
		logCtx.Info("Payment still open at provider, nothing to do")
		return nil
	}
}

// CheckCoupon validates a coupon for display purposes. It never touches the
// usage counter; only a completed payment does.
func (s *PaymentService) CheckCoupon(ctx context.Context, code string) (domain.Coupon, error) {
	c, err := s.lookupCoupon(ctx, code)
	if err != nil {
		return domain.Coupon{}, err
	}
	if err := coupon.Validate(c, s.now()); err != nil {
		return domain.Coupon{}, err
	}
	return c, nil
}

// GetTransaction returns a single ledger row, e.g. for an admin inspecting
// an attention_required transaction.
func (s *PaymentService) GetTransaction(ctx context.Context, transactionID string) (domain.Transaction, error) {
	return s.transactions.GetByID(ctx, transactionID)
}

// Approve marks a pending transaction as approved by an admin.
func (s *PaymentService) Approve(ctx context.Context, transactionID string) error {
	return s.transactions.SetApproval(ctx, transactionID, domain.ApprovalApproved)
}

// Reject marks a pending transaction as rejected by an admin.
func (s *PaymentService) Reject(ctx context.Context, transactionID string) error {
	return s.transactions.SetApproval(ctx, transactionID, domain.ApprovalRejected)
}

func (s *PaymentService) lookupCoupon(ctx context.Context, code string) (domain.Coupon, error) {
	c, err := s.coupons.GetByCode(ctx, code)
	if err != nil {
		if isNotFound(err) {
			return domain.Coupon{}, coupon.ErrNotFound
		}
		return domain.Coupon{}, fmt.Errorf("failed to load coupon: %w", err)
	}
	return c, nil
}

// redeemCoupon increments the usage counter after a settled payment. A full
// counter here means the last slot went to a concurrent redemption after
// this transaction was created; that is logged, never fatal.
func (s *PaymentService) redeemCoupon(ctx context.Context, tx domain.Transaction) {
	if !tx.CouponCode.Valid {
		return
	}
	ok, err := s.coupons.Redeem(ctx, tx.CouponCode.String)
	if err != nil {
		log.WithError(err).WithField("coupon", tx.CouponCode.String).
			Error("Failed to increment coupon usage")
		return
	}
	if !ok {
		log.WithFields(log.Fields{
			"coupon":         tx.CouponCode.String,
			"transaction_id": tx.ID,
		}).Warn("Coupon usage limit was reached after this transaction was created")
	}
}

// price computes the authoritative amount per product type. Membership and
// trip rest payments are derived entirely server-side; the remaining types
// accept the submitted amount within a configured bound.
func (s *PaymentService) price(ctx context.Context, req PaymentRequest, product domain.ProductType) (decimal.Decimal, error) {
	switch product {
	case domain.ProductMembershipNew, domain.ProductMembershipRenewal:
		return s.rates.MembershipRate(req.CommitteeCount), nil

	case domain.ProductTrip:
		if isRestPayment(req.Description) {
			signup, err := s.registrations.GetTripSignup(ctx, req.RegistrationID)
			if err != nil {
				return decimal.Zero, fmt.Errorf("failed to load trip signup: %w", err)
			}
			return pricing.TripRestAmount(signup), nil
		}
		return req.Amount, validator.ValidateAmount(req.Amount, s.limits.Trip)

	case domain.ProductEvent:
		return req.Amount, validator.ValidateAmount(req.Amount, s.limits.Event)

	case domain.ProductPubCrawl:
		return req.Amount, validator.ValidateAmount(req.Amount, s.limits.PubCrawl)

	default:
		return req.Amount, validator.ValidateAmount(req.Amount, s.limits.Smallest())
	}
}

func (s *PaymentService) buildTransaction(req PaymentRequest, product domain.ProductType, amount decimal.Decimal, approvalStatus domain.ApprovalStatus, environment domain.Environment) domain.Transaction {
	tx := domain.Transaction{
		ID:             uuid.NewString(),
		Amount:         amount,
		Description:    req.Description,
		ProductType:    product,
		PaymentStatus:  domain.StatusOpen,
		ApprovalStatus: approvalStatus,
		Environment:    environment,
	}
	if req.RegistrationID != "" {
		tx.RegistrationID = sql.NullString{String: req.RegistrationID, Valid: true}
		tx.RegistrationType = sql.NullString{String: req.RegistrationType, Valid: true}
	}
	if req.CouponCode != "" {
		tx.CouponCode = sql.NullString{String: req.CouponCode, Valid: true}
	}
	if req.UserID != "" {
		tx.UserID = sql.NullString{String: req.UserID, Valid: true}
	}
	if req.Contact != nil {
		tx.ContactEmail = sql.NullString{String: req.Contact.Email, Valid: req.Contact.Email != ""}
		tx.ContactFirstName = sql.NullString{String: req.Contact.FirstName, Valid: req.Contact.FirstName != ""}
		tx.ContactLastName = sql.NullString{String: req.Contact.LastName, Valid: req.Contact.LastName != ""}
	}
	return tx
}

// classify derives the product type from the request shape. Requests that
// match nothing are tagged attention_required so an admin investigates them
// instead of the money silently landing in a misfiled bucket.
func classify(req PaymentRequest) domain.ProductType {
	switch domain.RegistrationType(req.RegistrationType) {
	case domain.RegistrationEvent:
		return domain.ProductEvent
	case domain.RegistrationPubCrawl:
		return domain.ProductPubCrawl
	case domain.RegistrationTrip:
		return domain.ProductTrip
	}

	desc := strings.ToLower(req.Description)
	if strings.Contains(desc, "membership") || strings.Contains(desc, "contribution") {
		if req.UserID == "" {
			return domain.ProductMembershipNew
		}
		return domain.ProductMembershipRenewal
	}
	return domain.ProductAttentionRequired
}

func isRestPayment(description string) bool {
	desc := strings.ToLower(description)
	return strings.Contains(desc, "rest payment") || strings.Contains(desc, "final payment")
}

func isDepositPayment(description string) bool {
	return strings.Contains(strings.ToLower(description), "deposit")
}

func requestedEnv(env string) domain.Environment {
	if env == string(domain.EnvProduction) {
		return domain.EnvProduction
	}
	return domain.EnvDevelopment
}

func paidRedirect(redirectURL string) string {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return redirectURL
	}
	q := u.Query()
	q.Set("status", "paid")
	u.RawQuery = q.Encode()
	return u.String()
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
