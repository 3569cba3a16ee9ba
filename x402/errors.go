package x402

import "fmt"

// PaymentError carries a machine-readable payment failure.
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Payment error codes.
const (
	ErrCodePaymentRequired    = "payment_required"
	ErrCodeInvalidPayment     = "invalid_payment"
	ErrCodeUnsupportedScheme  = "unsupported_scheme"
	ErrCodeVerificationFailed = "verification_failed"
	ErrCodeSettlementFailed   = "settlement_failed"
	ErrCodeConfiguration      = "configuration_error"
)

// NewPaymentError creates a payment error with optional details.
func NewPaymentError(code, message string, details map[string]interface{}) *PaymentError {
	return &PaymentError{Code: code, Message: message, Details: details}
}
