package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"payment-service/internal/coupon"
	"payment-service/internal/domain"
	"payment-service/internal/repository"
	"payment-service/internal/service"
	"payment-service/internal/validator"
)

type fakeService struct {
	createResult service.PaymentResult
	createErr    error
	webhookErr   error
	webhookIDs   []string
	couponResult domain.Coupon
	couponErr    error
	txResult     domain.Transaction
	txErr        error
	approveErr   error
}

func (f *fakeService) CreatePayment(ctx context.Context, req service.PaymentRequest) (service.PaymentResult, error) {
	return f.createResult, f.createErr
}

func (f *fakeService) HandleWebhook(ctx context.Context, externalID string) error {
	f.webhookIDs = append(f.webhookIDs, externalID)
	return f.webhookErr
}

func (f *fakeService) CheckCoupon(ctx context.Context, code string) (domain.Coupon, error) {
	return f.couponResult, f.couponErr
}

func (f *fakeService) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	return f.txResult, f.txErr
}

func (f *fakeService) Approve(ctx context.Context, id string) error { return f.approveErr }
func (f *fakeService) Reject(ctx context.Context, id string) error  { return f.approveErr }

func doRequest(t *testing.T, svc *fakeService, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	New(svc).Router().ServeHTTP(rec, req)
	return rec
}

func TestCreatePaymentReturnsCheckoutURL(t *testing.T) {
	svc := &fakeService{
		createResult: service.PaymentResult{
			TransactionID:     "tx-1",
			ExternalPaymentID: "tr_abc",
			CheckoutURL:       "https://provider.example.com/checkout/tr_abc",
			Amount:            decimal.RequireFromString("25.00"),
		},
	}

	rec := doRequest(t, svc, http.MethodPost, "/payments", "application/json",
		`{"amount":"25.00","description":"Gala night ticket","redirect_url":"https://members.example.org/done","user_id":"user-1"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp createPaymentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.CheckoutURL == "" || resp.Amount != "25.00" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestCreatePaymentRejectsInvalidJSON(t *testing.T) {
	rec := doRequest(t, &fakeService{}, http.MethodPost, "/payments", "application/json", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCreatePaymentRejectsInvalidAmount(t *testing.T) {
	rec := doRequest(t, &fakeService{}, http.MethodPost, "/payments", "application/json",
		`{"amount":"twelve","description":"x","redirect_url":"https://members.example.org/done"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCreatePaymentErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{validator.ErrRedirectNotAllowed, http.StatusBadRequest},
		{validator.ErrMissingAmount, http.StatusBadRequest},
		{coupon.ErrLimitReached, http.StatusUnprocessableEntity},
		{service.ErrDuplicateGuestEmail, http.StatusUnprocessableEntity},
		{service.ErrProviderUnavailable, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		svc := &fakeService{createErr: tc.err}
		rec := doRequest(t, svc, http.MethodPost, "/payments", "application/json",
			`{"amount":"10.00","description":"x","redirect_url":"https://members.example.org/done"}`)
		if rec.Code != tc.want {
			t.Errorf("error %v: expected %d, got %d", tc.err, tc.want, rec.Code)
		}
	}
}

func TestWebhookAcceptsFormBody(t *testing.T) {
	svc := &fakeService{}
	rec := doRequest(t, svc, http.MethodPost, "/webhooks/payment",
		"application/x-www-form-urlencoded", "id=tr_abc")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(svc.webhookIDs) != 1 || svc.webhookIDs[0] != "tr_abc" {
		t.Errorf("expected webhook delegated with tr_abc, got %v", svc.webhookIDs)
	}
}

func TestWebhookAcceptsJSONBody(t *testing.T) {
	svc := &fakeService{}
	rec := doRequest(t, svc, http.MethodPost, "/webhooks/payment",
		"application/json", `{"id":"tr_json"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(svc.webhookIDs) != 1 || svc.webhookIDs[0] != "tr_json" {
		t.Errorf("expected webhook delegated with tr_json, got %v", svc.webhookIDs)
	}
}

func TestWebhookMissingIDIs400(t *testing.T) {
	rec := doRequest(t, &fakeService{}, http.MethodPost, "/webhooks/payment",
		"application/x-www-form-urlencoded", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestWebhookErrorIs500ForRedelivery(t *testing.T) {
	svc := &fakeService{webhookErr: errors.New("provider unreachable")}
	rec := doRequest(t, svc, http.MethodPost, "/webhooks/payment",
		"application/x-www-form-urlencoded", "id=tr_abc")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestCheckCouponValid(t *testing.T) {
	svc := &fakeService{
		couponResult: domain.Coupon{
			Code:          "TENOFF",
			DiscountType:  domain.DiscountFixed,
			DiscountValue: decimal.RequireFromString("10"),
		},
	}
	rec := doRequest(t, svc, http.MethodGet, "/coupons/TENOFF", "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp couponResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if !resp.Valid || resp.DiscountType != "fixed" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestCheckCouponRejection(t *testing.T) {
	svc := &fakeService{couponErr: coupon.ErrExpired}
	rec := doRequest(t, svc, http.MethodGet, "/coupons/OLD", "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with a rejection body, got %d", rec.Code)
	}
	var resp couponResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.Valid || resp.Reason == "" {
		t.Errorf("expected invalid with a reason, got %+v", resp)
	}
}

func TestApprove(t *testing.T) {
	rec := doRequest(t, &fakeService{}, http.MethodPost, "/transactions/tx-1/approve", "", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestApproveUnknownTransaction(t *testing.T) {
	svc := &fakeService{approveErr: repository.ErrNotFound}
	rec := doRequest(t, svc, http.MethodPost, "/transactions/nope/reject", "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestGetTransaction(t *testing.T) {
	svc := &fakeService{
		txResult: domain.Transaction{
			ID:            "tx-1",
			Amount:        decimal.RequireFromString("25.00"),
			Description:   "Gala night ticket",
			ProductType:   domain.ProductEvent,
			PaymentStatus: domain.StatusOpen,
		},
	}
	rec := doRequest(t, svc, http.MethodGet, "/transactions/tx-1", "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp transactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.ID != "tx-1" || resp.Amount != "25.00" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	svc := &fakeService{txErr: repository.ErrNotFound}
	rec := doRequest(t, svc, http.MethodGet, "/transactions/nope", "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	rec := doRequest(t, &fakeService{}, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
