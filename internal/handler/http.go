// Package handler exposes the payment core over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"payment-service/internal/coupon"
	"payment-service/internal/domain"
	"payment-service/internal/repository"
	"payment-service/internal/service"
	"payment-service/internal/validator"
)

// PaymentService is the part of the core the HTTP layer needs.
type PaymentService interface {
	CreatePayment(ctx context.Context, req service.PaymentRequest) (service.PaymentResult, error)
	HandleWebhook(ctx context.Context, externalID string) error
	CheckCoupon(ctx context.Context, code string) (domain.Coupon, error)
	GetTransaction(ctx context.Context, transactionID string) (domain.Transaction, error)
	Approve(ctx context.Context, transactionID string) error
	Reject(ctx context.Context, transactionID string) error
}

type Handler struct {
	payments PaymentService
}

func New(payments PaymentService) *Handler {
	return &Handler{payments: payments}
}

// Router wires all routes of the service.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/payments", h.createPayment).Methods(http.MethodPost)
	r.HandleFunc("/webhooks/payment", h.webhook).Methods(http.MethodPost)
	r.HandleFunc("/coupons/{code}", h.checkCoupon).Methods(http.MethodGet)
	r.HandleFunc("/transactions/{id}", h.getTransaction).Methods(http.MethodGet)
	r.HandleFunc("/transactions/{id}/approve", h.approve).Methods(http.MethodPost)
	r.HandleFunc("/transactions/{id}/reject", h.reject).Methods(http.MethodPost)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	return r
}

type createPaymentRequest struct {
	Amount           string `json:"amount"`
	Description      string `json:"description"`
	RedirectURL      string `json:"redirect_url"`
	CouponCode       string `json:"coupon_code"`
	Environment      string `json:"environment"`
	RegistrationID   string `json:"registration_id"`
	RegistrationType string `json:"registration_type"`
	UserID           string `json:"user_id"`
	CommitteeCount   int    `json:"committee_count"`
	Email            string `json:"email"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
}

type createPaymentResponse struct {
	TransactionID     string `json:"transaction_id"`
	ExternalPaymentID string `json:"external_payment_id"`
	CheckoutURL       string `json:"checkout_url"`
	Amount            string `json:"amount"`
	Paid              bool   `json:"paid"`
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var body createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	amount := decimal.Zero
	if body.Amount != "" {
		var err error
		if amount, err = decimal.NewFromString(body.Amount); err != nil {
			writeError(w, http.StatusBadRequest, "invalid amount")
			return
		}
	}

	req := service.PaymentRequest{
		Amount:           amount,
		Description:      body.Description,
		RedirectURL:      body.RedirectURL,
		CouponCode:       body.CouponCode,
		Environment:      body.Environment,
		RegistrationID:   body.RegistrationID,
		RegistrationType: body.RegistrationType,
		UserID:           body.UserID,
		CommitteeCount:   body.CommitteeCount,
	}
	if body.Email != "" || body.FirstName != "" || body.LastName != "" {
		req.Contact = &domain.Contact{
			Email:     body.Email,
			FirstName: body.FirstName,
			LastName:  body.LastName,
		}
	}

	result, err := h.payments.CreatePayment(r.Context(), req)
	if err != nil {
		h.writeCreateError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createPaymentResponse{
		TransactionID:     result.TransactionID,
		ExternalPaymentID: result.ExternalPaymentID,
		CheckoutURL:       result.CheckoutURL,
		Amount:            result.Amount.StringFixed(2),
		Paid:              result.Paid,
	})
}

// webhook accepts the provider notification. Only the payment id is read
// from the body; everything else about the payment is re-fetched from the
// provider by the service. Any processing error answers 5xx so the provider
// delivers the notification again.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	externalID := h.paymentID(r)
	if externalID == "" {
		writeError(w, http.StatusBadRequest, "missing payment id")
		return
	}

	if err := h.payments.HandleWebhook(r.Context(), externalID); err != nil {
		log.WithError(err).WithField("payment_id", externalID).
			Error("Webhook reconciliation failed")
		writeError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// paymentID pulls the payment id from a form-encoded or JSON body.
func (h *Handler) paymentID(r *http.Request) string {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var body struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return ""
		}
		return body.ID
	}
	if err := r.ParseForm(); err != nil {
		return ""
	}
	return r.PostFormValue("id")
}

type couponResponse struct {
	Valid         bool   `json:"valid"`
	Reason        string `json:"reason,omitempty"`
	DiscountType  string `json:"discount_type,omitempty"`
	DiscountValue string `json:"discount_value,omitempty"`
}

// checkCoupon reports validity and discount terms for optimistic display in
// the UI. It never mutates the usage counter.
func (h *Handler) checkCoupon(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	c, err := h.payments.CheckCoupon(r.Context(), code)
	if err != nil {
		if coupon.IsRejection(err) {
			writeJSON(w, http.StatusOK, couponResponse{Valid: false, Reason: err.Error()})
			return
		}
		log.WithError(err).WithField("coupon", code).Error("Coupon lookup failed")
		writeError(w, http.StatusInternalServerError, "coupon lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, couponResponse{
		Valid:         true,
		DiscountType:  string(c.DiscountType),
		DiscountValue: c.DiscountValue.String(),
	})
}

type transactionResponse struct {
	ID                string `json:"id"`
	ExternalPaymentID string `json:"external_payment_id,omitempty"`
	Amount            string `json:"amount"`
	Description       string `json:"description"`
	ProductType       string `json:"product_type"`
	PaymentStatus     string `json:"payment_status"`
	ApprovalStatus    string `json:"approval_status"`
	Environment       string `json:"environment"`
	RegistrationID    string `json:"registration_id,omitempty"`
	RegistrationType  string `json:"registration_type,omitempty"`
	CouponCode        string `json:"coupon_code,omitempty"`
	UserID            string `json:"user_id,omitempty"`
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	tx, err := h.payments.GetTransaction(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		log.WithError(err).WithField("transaction_id", id).Error("Transaction lookup failed")
		writeError(w, http.StatusInternalServerError, "transaction lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, transactionResponse{
		ID:                tx.ID,
		ExternalPaymentID: tx.ExternalPaymentID.String,
		Amount:            tx.Amount.StringFixed(2),
		Description:       tx.Description,
		ProductType:       string(tx.ProductType),
		PaymentStatus:     string(tx.PaymentStatus),
		ApprovalStatus:    string(tx.ApprovalStatus),
		Environment:       string(tx.Environment),
		RegistrationID:    tx.RegistrationID.String,
		RegistrationType:  tx.RegistrationType.String,
		CouponCode:        tx.CouponCode.String,
		UserID:            tx.UserID.String,
	})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.setApproval(w, r, h.payments.Approve)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.setApproval(w, r, h.payments.Reject)
}

func (h *Handler) setApproval(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) error) {
	id := mux.Vars(r)["id"]
	if err := fn(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		log.WithError(err).WithField("transaction_id", id).Error("Approval update failed")
		writeError(w, http.StatusInternalServerError, "approval update failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeCreateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, validator.ErrEmptyDescription),
		errors.Is(err, validator.ErrMissingAmount),
		errors.Is(err, validator.ErrAmountTooLarge),
		errors.Is(err, validator.ErrEmptyEmail),
		errors.Is(err, validator.ErrInvalidEmailFormat),
		errors.Is(err, validator.ErrEmptyRedirectURL),
		errors.Is(err, validator.ErrInvalidRedirectURL),
		errors.Is(err, validator.ErrRedirectNotAllowed):
		writeError(w, http.StatusBadRequest, err.Error())

	case coupon.IsRejection(err), errors.Is(err, service.ErrDuplicateGuestEmail):
		writeError(w, http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, service.ErrProviderUnavailable):
		writeError(w, http.StatusBadGateway, "payment provider unavailable")

	default:
		log.WithError(err).Error("Payment creation failed")
		writeError(w, http.StatusInternalServerError, "payment creation failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Error("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
