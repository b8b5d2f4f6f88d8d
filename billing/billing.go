// Package billing dispatches usage charges to the billing collaborator
// and gates the pipeline on the tenant's credit balance. Charges are
// best-effort: delivery failure is logged and never alters a response
// already computed or in flight.
package billing

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Charge is one usage charge request.
type Charge struct {
	TenantID string `json:"tenant_id"`
	LedgerID string `json:"ledger_id"` // sub-ledger, e.g. "search"
	Units    int    `json:"units"`
	JobID    string `json:"job_id"`
	At       int64  `json:"at"` // unix timestamp
}

// CreditChecker decides whether a tenant has credits for n units.
// Checked before the pipeline runs at all.
type CreditChecker interface {
	HasCredits(ctx context.Context, tenantID string, units int) (bool, error)
}

// AllowAll is a CreditChecker that never rejects. Used when no billing
// endpoint is configured (self-hosted deployments).
type AllowAll struct{}

func (AllowAll) HasCredits(context.Context, string, int) (bool, error) { return true, nil }

// Charger delivers charges to the billing endpoint. Request bodies are
// signed with HMAC-SHA256 when a secret is configured.
// Header: X-Prospect-Signature: sha256=<hex>
type Charger struct {
	endpoint string
	secret   string
	client   *http.Client
}

// NewCharger creates a Charger. An empty endpoint disables delivery;
// Dispatch becomes a no-op so callers never need to branch.
func NewCharger(endpoint, secret string) *Charger {
	return &Charger{
		endpoint: endpoint,
		secret:   secret,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Deliver sends one charge synchronously.
func (c *Charger) Deliver(ctx context.Context, charge Charge) error {
	if c.endpoint == "" {
		return nil
	}

	body, err := json.Marshal(charge)
	if err != nil {
		return fmt.Errorf("billing: marshal charge: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("billing: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Prospect-Billing/1.0")

	if c.secret != "" {
		mac := hmac.New(sha256.New, []byte(c.secret))
		mac.Write(body)
		req.Header.Set("X-Prospect-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("billing: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("billing: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Dispatch sends a charge asynchronously with up to 3 retries.
// Retry intervals: 1s, 5s, 30s. Failures only feed logging; the
// caller's control flow never waits on delivery.
func (c *Charger) Dispatch(charge Charge) {
	if c.endpoint == "" {
		return
	}
	go func() {
		delays := []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}
		for attempt, delay := range delays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := c.Deliver(ctx, charge)
			cancel()
			if err == nil {
				slog.Info("billing charge delivered",
					"tenant", charge.TenantID,
					"ledger", charge.LedgerID,
					"units", charge.Units,
					"job_id", charge.JobID,
					"attempt", attempt+1,
				)
				return
			}
			slog.Warn("billing charge delivery failed",
				"tenant", charge.TenantID,
				"units", charge.Units,
				"job_id", charge.JobID,
				"attempt", attempt+1,
				"error", err,
			)
		}
		slog.Error("billing charge dropped after all retries",
			"tenant", charge.TenantID,
			"units", charge.Units,
			"job_id", charge.JobID,
		)
	}()
}

// HTTPCreditChecker asks the billing service whether a tenant can spend
// n units.
type HTTPCreditChecker struct {
	endpoint string
	client   *http.Client
}

// NewHTTPCreditChecker creates a checker against the billing service.
func NewHTTPCreditChecker(endpoint string) *HTTPCreditChecker {
	return &HTTPCreditChecker{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

type creditCheckRequest struct {
	TenantID string `json:"tenant_id"`
	Units    int    `json:"units"`
}

type creditCheckResponse struct {
	Allowed bool `json:"allowed"`
}

// HasCredits performs the credit check. Transport failures fail open:
// a billing outage must not take the search API down with it.
func (h *HTTPCreditChecker) HasCredits(ctx context.Context, tenantID string, units int) (bool, error) {
	body, err := json.Marshal(creditCheckRequest{TenantID: tenantID, Units: units})
	if err != nil {
		return true, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return true, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		slog.Warn("credit check unreachable, failing open", "tenant", tenantID, "error", err)
		return true, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPaymentRequired {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		slog.Warn("credit check returned unexpected status, failing open",
			"tenant", tenantID, "status", resp.StatusCode)
		return true, nil
	}

	var parsed creditCheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return true, nil
	}
	return parsed.Allowed, nil
}
