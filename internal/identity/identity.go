// Package identity talks to the external identity system that holds member
// accounts. Provisioning after a contribution payment goes through here.
package identity

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

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		// Account creation in the identity system is slow; allow for it.
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateAccount provisions a brand-new member account for a guest payer and
// returns the new user id.
func (c *Client) CreateAccount(ctx context.Context, contact domain.Contact) (string, error) {
	payload := map[string]string{
		"email":      contact.Email,
		"first_name": contact.FirstName,
		"last_name":  contact.LastName,
	}
	var result struct {
		UserID string `json:"user_id"`
	}
	if err := c.post(ctx, "/accounts", payload, &result); err != nil {
		return "", fmt.Errorf("failed to create account: %w", err)
	}

	log.WithFields(log.Fields{
		"user_id": result.UserID,
		"email":   contact.Email,
	}).Info("Provisioned identity account")

	return result.UserID, nil
}

// ExtendMembership pushes the membership expiry forward for an existing user.
func (c *Client) ExtendMembership(ctx context.Context, userID string) error {
	if err := c.post(ctx, "/accounts/"+userID+"/extend", nil, nil); err != nil {
		return fmt.Errorf("failed to extend membership: %w", err)
	}
	return nil
}

// Resync triggers a directory resync so group memberships and mail aliases
// pick up the new state.
func (c *Client) Resync(ctx context.Context, userID string) error {
	if err := c.post(ctx, "/accounts/"+userID+"/resync", nil, nil); err != nil {
		return fmt.Errorf("failed to resync account: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("identity service returned %d: %s", resp.StatusCode, string(data))
	}
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
