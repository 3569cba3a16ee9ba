package x402

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
)

// Mock facilitator for testing
type mockFacilitator struct {
	verify func(ctx context.Context, payload *PaymentPayload, req PaymentRequirements) (VerifyResponse, error)
	settle func(ctx context.Context, payload *PaymentPayload, req PaymentRequirements) (SettleResponse, error)

	verifyCalls int
	settleCalls int
}

func (m *mockFacilitator) Verify(ctx context.Context, payload *PaymentPayload, req PaymentRequirements) (VerifyResponse, error) {
	m.verifyCalls++
	if m.verify != nil {
		return m.verify(ctx, payload, req)
	}
	return VerifyResponse{Verdict: "verified"}, nil
}

func (m *mockFacilitator) Settle(ctx context.Context, payload *PaymentPayload, req PaymentRequirements) (SettleResponse, error) {
	m.settleCalls++
	if m.settle != nil {
		return m.settle(ctx, payload, req)
	}
	return SettleResponse{Result: "settled", TxRef: "0xabc"}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testWallet = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"

func testRails(t *testing.T, evmFac, cantonFac FacilitatorClient) *Rails {
	t.Helper()
	var list []Rail
	if evmFac != nil {
		evm, err := NewEVMRail("base-sepolia", testWallet, evmFac)
		if err != nil {
			t.Fatalf("evm rail: %v", err)
		}
		list = append(list, evm)
	}
	if cantonFac != nil {
		canton, err := NewCantonRail("canton-testnet", "Party::deadbeef", cantonFac)
		if err != nil {
			t.Fatalf("canton rail: %v", err)
		}
		list = append(list, canton)
	}
	rails, err := NewRails(list...)
	if err != nil {
		t.Fatalf("rails: %v", err)
	}
	return rails
}

func encodeEnvelope(t *testing.T, scheme string) string {
	t.Helper()
	raw, err := json.Marshal(PaymentPayload{
		X402Version: X402Version,
		Scheme:      scheme,
		Network:     "base-sepolia",
		Payload:     map[string]interface{}{"signature": "0xsig"},
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestPreflightMissingPaymentDemands402(t *testing.T) {
	fac := &mockFacilitator{}
	gate := NewGate(testRails(t, fac, nil), "", testLogger())

	charge, err := gate.Preflight(context.Background(), "validate", "http://localhost:7284/mcp", 0.10, "")
	if charge != nil {
		t.Fatal("Expected no charge without payment")
	}
	var required *RequiredError
	if !errors.As(err, &required) {
		t.Fatalf("Expected RequiredError, got %v", err)
	}
	if len(required.Body.Accepts) != 1 {
		t.Fatalf("Expected 1 accepts entry, got %d", len(required.Body.Accepts))
	}
	entry := required.Body.Accepts[0]
	if entry.Scheme != SchemeExact {
		t.Fatalf("Expected scheme exact, got %q", entry.Scheme)
	}
	if entry.MaxAmountRequired != "100000" {
		t.Fatalf("Expected 100000 atomic for $0.10, got %q", entry.MaxAmountRequired)
	}
	if fac.verifyCalls != 0 {
		t.Fatal("Expected no facilitator call without an envelope")
	}
}

func TestPreflightDualRailAcceptsOrder(t *testing.T) {
	gate := NewGate(testRails(t, &mockFacilitator{}, &mockFacilitator{}), "", testLogger())

	_, err := gate.Preflight(context.Background(), "validate", "", 0.10, "")
	var required *RequiredError
	if !errors.As(err, &required) {
		t.Fatalf("Expected RequiredError, got %v", err)
	}
	if len(required.Body.Accepts) != 2 {
		t.Fatalf("Expected 2 accepts entries, got %d", len(required.Body.Accepts))
	}
	if required.Body.Accepts[0].Scheme != SchemeExact {
		t.Fatalf("Expected EVM first, got %q", required.Body.Accepts[0].Scheme)
	}
	if required.Body.Accepts[1].Scheme != SchemeExactCanton {
		t.Fatalf("Expected Canton second, got %q", required.Body.Accepts[1].Scheme)
	}
	if required.Body.Accepts[1].MaxAmountRequired != "0.10" {
		t.Fatalf("Expected Canton amount 0.10, got %q", required.Body.Accepts[1].MaxAmountRequired)
	}
	if required.Body.X402Version != X402Version {
		t.Fatalf("Expected x402Version %d, got %d", X402Version, required.Body.X402Version)
	}
}

func TestPreflightVerifiedEnvelope(t *testing.T) {
	fac := &mockFacilitator{}
	gate := NewGate(testRails(t, fac, nil), "", testLogger())

	charge, err := gate.Preflight(context.Background(), "validate", "", 0.10, encodeEnvelope(t, SchemeExact))
	if err != nil {
		t.Fatalf("Expected verified charge, got %v", err)
	}
	if charge.Rail.Scheme() != SchemeExact {
		t.Fatalf("Expected exact rail, got %q", charge.Rail.Scheme())
	}
	if charge.RequiredUSD != 0.10 {
		t.Fatalf("Expected required 0.10, got %v", charge.RequiredUSD)
	}
	if charge.PaymentID == "" {
		t.Fatal("Expected a payment id")
	}
	if fac.verifyCalls != 1 {
		t.Fatalf("Expected 1 verify call, got %d", fac.verifyCalls)
	}
	if fac.settleCalls != 0 {
		t.Fatal("Expected no settle during preflight")
	}
}

func TestPreflightRejectedVerdict(t *testing.T) {
	fac := &mockFacilitator{
		verify: func(context.Context, *PaymentPayload, PaymentRequirements) (VerifyResponse, error) {
			return VerifyResponse{Verdict: "rejected", Reason: "insufficient"}, nil
		},
	}
	gate := NewGate(testRails(t, fac, nil), "", testLogger())

	_, err := gate.Preflight(context.Background(), "validate", "", 0.10, encodeEnvelope(t, SchemeExact))
	var required *RequiredError
	if !errors.As(err, &required) {
		t.Fatalf("Expected RequiredError, got %v", err)
	}
	if required.Reason != "insufficient" {
		t.Fatalf("Expected facilitator reason, got %q", required.Reason)
	}
	if required.Body.Error != "insufficient" {
		t.Fatalf("Expected reason in 402 body, got %q", required.Body.Error)
	}
}

func TestPreflightFacilitatorErrorDemands402(t *testing.T) {
	fac := &mockFacilitator{
		verify: func(context.Context, *PaymentPayload, PaymentRequirements) (VerifyResponse, error) {
			return VerifyResponse{}, errors.New("facilitator /verify returned 503")
		},
	}
	gate := NewGate(testRails(t, fac, nil), "", testLogger())

	_, err := gate.Preflight(context.Background(), "validate", "", 0.10, encodeEnvelope(t, SchemeExact))
	var required *RequiredError
	if !errors.As(err, &required) {
		t.Fatalf("Expected RequiredError, got %v", err)
	}
}

func TestPreflightUnknownScheme(t *testing.T) {
	gate := NewGate(testRails(t, &mockFacilitator{}, nil), "", testLogger())

	_, err := gate.Preflight(context.Background(), "validate", "", 0.10, encodeEnvelope(t, "exact-solana"))
	var perr *PaymentError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected PaymentError, got %v", err)
	}
	if perr.Code != ErrCodeUnsupportedScheme {
		t.Fatalf("Expected unsupported_scheme, got %q", perr.Code)
	}
}

func TestPreflightMalformedEnvelope(t *testing.T) {
	gate := NewGate(testRails(t, &mockFacilitator{}, nil), "", testLogger())

	_, err := gate.Preflight(context.Background(), "validate", "", 0.10, "not-base64-json{{")
	var perr *PaymentError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected PaymentError, got %v", err)
	}
	if perr.Code != ErrCodeInvalidPayment {
		t.Fatalf("Expected invalid_payment, got %q", perr.Code)
	}
}

func TestPreflightCantonSchemeRoutesToCantonRail(t *testing.T) {
	evmFac := &mockFacilitator{}
	cantonFac := &mockFacilitator{}
	gate := NewGate(testRails(t, evmFac, cantonFac), "", testLogger())

	charge, err := gate.Preflight(context.Background(), "validate", "", 0.25, encodeEnvelope(t, SchemeExactCanton))
	if err != nil {
		t.Fatalf("Expected verified charge, got %v", err)
	}
	if charge.Rail.Scheme() != SchemeExactCanton {
		t.Fatalf("Expected canton rail, got %q", charge.Rail.Scheme())
	}
	if evmFac.verifyCalls != 0 {
		t.Fatal("Expected EVM facilitator untouched")
	}
	if cantonFac.verifyCalls != 1 {
		t.Fatalf("Expected 1 canton verify call, got %d", cantonFac.verifyCalls)
	}
	if charge.Requirement.MaxAmountRequired != "0.25" {
		t.Fatalf("Expected canton amount 0.25, got %q", charge.Requirement.MaxAmountRequired)
	}
}

func TestSettleReportsFacilitatorFailure(t *testing.T) {
	fac := &mockFacilitator{
		settle: func(context.Context, *PaymentPayload, PaymentRequirements) (SettleResponse, error) {
			return SettleResponse{Result: "failed", Reason: "ledger timeout"}, nil
		},
	}
	gate := NewGate(testRails(t, fac, nil), "", testLogger())
	charge, err := gate.Preflight(context.Background(), "validate", "", 0.10, encodeEnvelope(t, SchemeExact))
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}

	_, err = gate.Settle(context.Background(), charge)
	var perr *PaymentError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected PaymentError, got %v", err)
	}
	if perr.Code != ErrCodeSettlementFailed {
		t.Fatalf("Expected settlement_failed, got %q", perr.Code)
	}
	if fac.settleCalls != 1 {
		t.Fatalf("Expected exactly 1 settle call, got %d", fac.settleCalls)
	}
}

func TestBypassAllowed(t *testing.T) {
	gate := NewGate(testRails(t, &mockFacilitator{}, nil), "secret-key", testLogger())

	if !gate.BypassAllowed("secret-key") {
		t.Fatal("Expected matching key to bypass")
	}
	if gate.BypassAllowed("wrong") {
		t.Fatal("Expected mismatched key to be rejected")
	}
	if gate.BypassAllowed("") {
		t.Fatal("Expected empty presented key to be rejected")
	}

	disabled := NewGate(testRails(t, &mockFacilitator{}, nil), "", testLogger())
	if disabled.BypassAllowed("secret-key") {
		t.Fatal("Expected bypass disabled when no key configured")
	}
}

func TestDecodePaymentHeaderAcceptsBareJSON(t *testing.T) {
	raw := `{"x402Version":1,"scheme":"exact","network":"base","payload":{}}`
	payload, err := DecodePaymentHeader(raw)
	if err != nil {
		t.Fatalf("Expected bare JSON to decode, got %v", err)
	}
	if payload.Scheme != SchemeExact {
		t.Fatalf("Expected scheme exact, got %q", payload.Scheme)
	}
}

func TestEVMAtomicAmountRounding(t *testing.T) {
	rail, err := NewEVMRail("base-sepolia", testWallet, &mockFacilitator{})
	if err != nil {
		t.Fatalf("rail: %v", err)
	}
	cases := []struct {
		usd  float64
		want string
	}{
		{0.10, "100000"},
		{0.01, "10000"},
		{1, "1000000"},
		{0.0000005, "1"},
		{0, "0"},
	}
	for _, tc := range cases {
		if got := rail.AtomicAmount(tc.usd); got != tc.want {
			t.Errorf("AtomicAmount(%v) = %q, want %q", tc.usd, got, tc.want)
		}
	}
}
