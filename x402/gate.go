package x402

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Charge is the outcome of a successful pre-flight: a verified payment the
// gate will settle once the tool execution succeeds.
type Charge struct {
	// PaymentID correlates verify, settle and telemetry for one call.
	PaymentID string
	// Rail is the payment network the client selected via envelope scheme.
	Rail Rail
	// Payload is the decoded, verified envelope.
	Payload *PaymentPayload
	// Requirement is the demand the envelope was verified against.
	Requirement PaymentRequirements
	// RequiredUSD is the price charged for this call.
	RequiredUSD float64
}

// RequiredError signals that the caller must answer HTTP 402 with Body.
// It is produced for missing envelopes and for facilitator rejections.
type RequiredError struct {
	Reason string
	Body   PaymentRequired
}

func (e *RequiredError) Error() string {
	return fmt.Sprintf("payment required: %s", e.Reason)
}

// Gate enforces the 402 paywall for priced tool calls. It decides the
// price, demands payment across the enabled rails, verifies a presented
// envelope against the matching facilitator and settles after success.
type Gate struct {
	rails       *Rails
	internalKey string
	logger      *slog.Logger
}

// NewGate builds a payment gate over the enabled rails. internalKey, when
// non-empty, enables the internal bypass header.
func NewGate(rails *Rails, internalKey string, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{rails: rails, internalKey: internalKey, logger: logger}
}

// Enabled reports whether any rail can actually charge.
func (g *Gate) Enabled() bool {
	return g.rails != nil && !g.rails.Empty()
}

// Rails returns the enabled rails in advertisement order.
func (g *Gate) Rails() *Rails { return g.rails }

// BypassAllowed reports whether the presented internal API key matches the
// configured one. Comparison is constant time; an empty configured key
// disables the bypass entirely.
func (g *Gate) BypassAllowed(presented string) bool {
	if g.internalKey == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(g.internalKey), []byte(presented)) == 1
}

// Demand builds the 402 body listing one requirement per enabled rail, in
// registration order.
func (g *Gate) Demand(toolName, resource string, usd float64, reason string) PaymentRequired {
	body := PaymentRequired{X402Version: X402Version, Error: reason}
	for _, rail := range g.rails.List() {
		body.Accepts = append(body.Accepts, rail.Requirement(toolName, resource, usd))
	}
	return body
}

// Preflight runs the payment check for one priced call. paymentHeader is
// the raw X-PAYMENT value ("" when absent). It returns:
//   - (charge, nil) when an envelope verified; the caller must Settle the
//     charge after successful execution;
//   - (nil, *RequiredError) when the caller must respond 402;
//   - (nil, *PaymentError) when the envelope is malformed or names an
//     unknown scheme (HTTP 400);
//   - (nil, err) for infrastructure failures reaching the facilitator.
func (g *Gate) Preflight(ctx context.Context, toolName, resource string, usd float64, paymentHeader string) (*Charge, error) {
	if !g.Enabled() {
		return nil, NewPaymentError(ErrCodeConfiguration,
			fmt.Sprintf("tool %q is priced but no payment rail is enabled", toolName), nil)
	}

	if paymentHeader == "" {
		return nil, &RequiredError{
			Reason: "payment required",
			Body:   g.Demand(toolName, resource, usd, fmt.Sprintf("Payment of $%.2f required for tool %s", usd, toolName)),
		}
	}

	payload, err := DecodePaymentHeader(paymentHeader)
	if err != nil {
		return nil, NewPaymentError(ErrCodeInvalidPayment, err.Error(), nil)
	}

	rail, ok := g.rails.ByScheme(payload.Scheme)
	if !ok {
		return nil, NewPaymentError(ErrCodeUnsupportedScheme,
			fmt.Sprintf("unsupported payment scheme %q", payload.Scheme),
			map[string]interface{}{"scheme": payload.Scheme})
	}

	requirement := rail.Requirement(toolName, resource, usd)
	verdict, err := rail.Facilitator().Verify(ctx, payload, requirement)
	if err != nil {
		g.logger.WarnContext(ctx, "payment verification failed",
			"tool", toolName, "scheme", payload.Scheme, "error", err)
		return nil, &RequiredError{
			Reason: "verification failed",
			Body:   g.Demand(toolName, resource, usd, fmt.Sprintf("payment verification failed: %v", err)),
		}
	}
	if !verdict.Verified() {
		reason := verdict.FailureReason()
		if reason == "" {
			reason = "payment rejected"
		}
		g.logger.InfoContext(ctx, "payment rejected by facilitator",
			"tool", toolName, "scheme", payload.Scheme, "reason", reason)
		return nil, &RequiredError{
			Reason: reason,
			Body:   g.Demand(toolName, resource, usd, reason),
		}
	}

	return &Charge{
		PaymentID:   uuid.NewString(),
		Rail:        rail,
		Payload:     payload,
		Requirement: requirement,
		RequiredUSD: usd,
	}, nil
}

// Settle captures a verified charge after the tool succeeded. It is called
// exactly once per charge, after the client's stream closed; failures are
// logged and returned for telemetry but never reach the client.
func (g *Gate) Settle(ctx context.Context, charge *Charge) (SettleResponse, error) {
	resp, err := charge.Rail.Facilitator().Settle(ctx, charge.Payload, charge.Requirement)
	if err != nil {
		g.logger.ErrorContext(ctx, "settlement request failed",
			"paymentId", charge.PaymentID, "scheme", charge.Rail.Scheme(), "error", err)
		return resp, err
	}
	if !resp.Settled() {
		g.logger.ErrorContext(ctx, "settlement rejected by facilitator",
			"paymentId", charge.PaymentID, "scheme", charge.Rail.Scheme(), "reason", resp.FailureReason())
		return resp, NewPaymentError(ErrCodeSettlementFailed, resp.FailureReason(), nil)
	}
	g.logger.InfoContext(ctx, "payment settled",
		"paymentId", charge.PaymentID, "scheme", charge.Rail.Scheme(), "tx", resp.Ref())
	return resp, nil
}
