// Package gateway wraps the external payment provider's REST API. The core
// depends only on create-payment, get-payment and the IsPaid predicate.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"payment-service/internal/domain"
)

// Payment is the provider's view of a payment.
type Payment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	CheckoutURL string `json:"checkout_url"`
}

// IsPaid reports whether the provider considers the payment settled.
func (p Payment) IsPaid() bool {
	return p.Status == "paid"
}

// InternalStatus maps the provider status vocabulary onto the ledger's. An
// unknown status maps to open so the reconciler treats it as still pending.
func (p Payment) InternalStatus() domain.PaymentStatus {
	switch p.Status {
	case "paid":
		return domain.StatusPaid
	case "canceled":
		return domain.StatusCanceled
	case "failed":
		return domain.StatusFailed
	case "expired":
		return domain.StatusExpired
	default:
		return domain.StatusOpen
	}
}

// CreatePaymentRequest is the payload for a new provider payment.
type CreatePaymentRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
	RedirectURL string `json:"redirect_url"`
	WebhookURL  string `json:"webhook_url"`
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (Payment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Payment{}, fmt.Errorf("failed to marshal payment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return Payment{}, fmt.Errorf("failed to build payment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Payment{}, fmt.Errorf("payment provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return Payment{}, fmt.Errorf("payment provider returned %d: %s", resp.StatusCode, string(data))
	}

	var payment Payment
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		return Payment{}, fmt.Errorf("failed to decode payment response: %w", err)
	}

	log.WithFields(log.Fields{
		"payment_id": payment.ID,
		"status":     payment.Status,
	}).Info("Created provider payment")

	return payment, nil
}

// GetPayment fetches the current status of a payment from the provider. The
// webhook reconciler calls this instead of trusting the notification body.
func (c *Client) GetPayment(ctx context.Context, id string) (Payment, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments/"+id, nil)
	if err != nil {
		return Payment{}, fmt.Errorf("failed to build payment lookup: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Payment{}, fmt.Errorf("payment provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return Payment{}, fmt.Errorf("payment provider returned %d: %s", resp.StatusCode, string(data))
	}

	var payment Payment
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		return Payment{}, fmt.Errorf("failed to decode payment response: %w", err)
	}
	return payment, nil
}
