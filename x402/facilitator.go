package x402

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Default timeouts. Verification gates the client-visible response and is
// kept short; settlement runs after the stream closed and may take longer.
const (
	DefaultVerifyTimeout = 5 * time.Second
	DefaultSettleTimeout = 60 * time.Second
)

// FacilitatorClient verifies and settles payment envelopes against an
// external facilitator service.
type FacilitatorClient interface {
	Verify(ctx context.Context, payload *PaymentPayload, requirement PaymentRequirements) (VerifyResponse, error)
	Settle(ctx context.Context, payload *PaymentPayload, requirement PaymentRequirements) (SettleResponse, error)
}

// FacilitatorConfig configures an HTTP facilitator client.
type FacilitatorConfig struct {
	// URL is the facilitator base URL; /verify and /settle are appended.
	URL string
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
	// VerifyTimeout bounds /verify calls (default DefaultVerifyTimeout).
	VerifyTimeout time.Duration
	// SettleTimeout bounds /settle calls (default DefaultSettleTimeout).
	SettleTimeout time.Duration
}

// HTTPFacilitator is the HTTP implementation of FacilitatorClient.
type HTTPFacilitator struct {
	url           string
	client        *http.Client
	verifyTimeout time.Duration
	settleTimeout time.Duration
}

// NewHTTPFacilitator creates a facilitator client for the given config.
func NewHTTPFacilitator(config FacilitatorConfig) *HTTPFacilitator {
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	verifyTimeout := config.VerifyTimeout
	if verifyTimeout <= 0 {
		verifyTimeout = DefaultVerifyTimeout
	}
	settleTimeout := config.SettleTimeout
	if settleTimeout <= 0 {
		settleTimeout = DefaultSettleTimeout
	}
	return &HTTPFacilitator{
		url:           config.URL,
		client:        client,
		verifyTimeout: verifyTimeout,
		settleTimeout: settleTimeout,
	}
}

// URL returns the facilitator base URL.
func (c *HTTPFacilitator) URL() string { return c.url }

// Verify sends the envelope and requirement to POST {url}/verify.
func (c *HTTPFacilitator) Verify(ctx context.Context, payload *PaymentPayload, requirement PaymentRequirements) (VerifyResponse, error) {
	var out VerifyResponse
	body, err := c.post(ctx, "/verify", c.verifyTimeout, payload, requirement)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("failed to decode verify response: %w", err)
	}
	return out, nil
}

// Settle sends the previously verified envelope to POST {url}/settle.
func (c *HTTPFacilitator) Settle(ctx context.Context, payload *PaymentPayload, requirement PaymentRequirements) (SettleResponse, error) {
	var out SettleResponse
	body, err := c.post(ctx, "/settle", c.settleTimeout, payload, requirement)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("failed to decode settle response: %w", err)
	}
	return out, nil
}

func (c *HTTPFacilitator) post(ctx context.Context, path string, timeout time.Duration, payload *PaymentPayload, requirement PaymentRequirements) ([]byte, error) {
	reqBody, err := json.Marshal(facilitatorRequest{
		X402Version:         X402Version,
		PaymentPayload:      payload,
		PaymentRequirements: requirement,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal facilitator request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create facilitator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("facilitator %s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read facilitator response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		reason := facilitatorErrorReason(body)
		return nil, fmt.Errorf("facilitator %s returned %d: %s", path, resp.StatusCode, reason)
	}
	return body, nil
}

// facilitatorErrorReason pulls a human reason out of an error body, falling
// back to the raw text.
func facilitatorErrorReason(body []byte) string {
	var parsed struct {
		Error         string `json:"error"`
		Reason        string `json:"reason"`
		InvalidReason string `json:"invalidReason"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, s := range []string{parsed.Error, parsed.Reason, parsed.InvalidReason} {
			if s != "" {
				return s
			}
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
