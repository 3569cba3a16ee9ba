// Package x402 implements the server side of the x402 payment protocol:
// the HTTP 402 pre-flight, envelope decoding, facilitator verification and
// post-execution settlement across the enabled payment rails.
package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// X402Version is the protocol version advertised in 402 bodies and
// facilitator requests.
const X402Version = 1

// Envelope schemes selecting a rail.
const (
	SchemeExact       = "exact"
	SchemeExactCanton = "exact-canton"
)

// PaymentRequirements is one entry of a 402 body's accepts list.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	MaxAmountRequired string                 `json:"maxAmountRequired"`
	Resource          string                 `json:"resource,omitempty"`
	Description       string                 `json:"description,omitempty"`
	MimeType          string                 `json:"mimeType,omitempty"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds,omitempty"`
	Asset             string                 `json:"asset"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// PaymentRequired is the HTTP 402 response body.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error,omitempty"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// PaymentPayload is the decoded X-PAYMENT envelope. Payload contents are
// rail-specific and opaque to the gate; only the facilitator interprets
// them.
type PaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     string                 `json:"network"`
	Payload     map[string]interface{} `json:"payload"`
}

// DecodePaymentHeader parses an X-PAYMENT header value. The header carries
// base64-encoded JSON; bare JSON is accepted as a fallback for clients that
// skip the encoding step.
func DecodePaymentHeader(header string) (*PaymentPayload, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("empty payment header")
	}

	raw := []byte(header)
	if decoded, err := base64.StdEncoding.DecodeString(header); err == nil {
		raw = decoded
	}

	var payload PaymentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("malformed payment envelope: %w", err)
	}
	if payload.Scheme == "" {
		return nil, fmt.Errorf("payment envelope missing scheme")
	}
	return &payload, nil
}

// VerifyResponse is a facilitator /verify result. Both the
// {verdict, reason} and the {isValid, invalidReason} field spellings are
// accepted.
type VerifyResponse struct {
	Verdict       string `json:"verdict,omitempty"`
	IsValid       *bool  `json:"isValid,omitempty"`
	Reason        string `json:"reason,omitempty"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// Verified reports whether the facilitator accepted the payment.
func (v VerifyResponse) Verified() bool {
	if v.Verdict != "" {
		return v.Verdict == "verified"
	}
	return v.IsValid != nil && *v.IsValid
}

// FailureReason returns the facilitator's rejection reason, if any.
func (v VerifyResponse) FailureReason() string {
	if v.Reason != "" {
		return v.Reason
	}
	return v.InvalidReason
}

// SettleResponse is a facilitator /settle result. Both the
// {result, tx_ref, reason} and the {success, transaction, errorReason}
// field spellings are accepted.
type SettleResponse struct {
	Result      string `json:"result,omitempty"`
	Success     *bool  `json:"success,omitempty"`
	TxRef       string `json:"tx_ref,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Reason      string `json:"reason,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// Settled reports whether the payment was captured on the rail.
func (s SettleResponse) Settled() bool {
	if s.Result != "" {
		return s.Result == "settled"
	}
	return s.Success != nil && *s.Success
}

// Ref returns the settlement transaction reference, if any.
func (s SettleResponse) Ref() string {
	if s.TxRef != "" {
		return s.TxRef
	}
	return s.Transaction
}

// FailureReason returns the facilitator's failure reason, if any.
func (s SettleResponse) FailureReason() string {
	if s.Reason != "" {
		return s.Reason
	}
	return s.ErrorReason
}

// facilitatorRequest is the wire body POSTed to /verify and /settle.
type facilitatorRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentPayload      *PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}
