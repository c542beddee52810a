package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"payment-service/internal/domain"
)

func TestCreatePayment(t *testing.T) {
	var gotAuth string
	var gotBody CreatePaymentRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/payments" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Payment{
			ID:          "tr_abc",
			Status:      "open",
			CheckoutURL: "https://provider.example.com/checkout/tr_abc",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test_key")
	payment, err := c.CreatePayment(context.Background(), CreatePaymentRequest{
		Amount:      "25.00",
		Description: "Gala night ticket",
		RedirectURL: "https://members.example.org/done",
		WebhookURL:  "https://api.example.org/webhooks/payment",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment.ID != "tr_abc" {
		t.Errorf("expected payment id tr_abc, got %s", payment.ID)
	}
	if gotAuth != "Bearer test_key" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotBody.Amount != "25.00" {
		t.Errorf("expected amount forwarded, got %q", gotBody.Amount)
	}
}

func TestCreatePaymentServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test_key")
	if _, err := c.CreatePayment(context.Background(), CreatePaymentRequest{}); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestGetPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments/tr_abc" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Payment{ID: "tr_abc", Status: "paid"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test_key")
	payment, err := c.GetPayment(context.Background(), "tr_abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !payment.IsPaid() {
		t.Error("expected IsPaid for a paid payment")
	}
}

func TestInternalStatusMapping(t *testing.T) {
	cases := map[string]domain.PaymentStatus{
		"paid":       domain.StatusPaid,
		"canceled":   domain.StatusCanceled,
		"failed":     domain.StatusFailed,
		"expired":    domain.StatusExpired,
		"open":       domain.StatusOpen,
		"pending":    domain.StatusOpen,
		"authorized": domain.StatusOpen,
	}
	for provider, want := range cases {
		if got := (Payment{Status: provider}).InternalStatus(); got != want {
			t.Errorf("status %q: expected %s, got %s", provider, want, got)
		}
	}
}
