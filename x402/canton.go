package x402

import (
	"fmt"
	"strings"
)

// CantonRail charges Canton Coin through the exact-canton scheme. Amounts
// convert 1:1 from USD and travel as decimal strings, matching how the
// Canton ledger records them.
type CantonRail struct {
	network     string
	payTo       string
	facilitator FacilitatorClient
}

// NewCantonRail builds the Canton rail. payTo is the receiving party
// identifier on the ledger.
func NewCantonRail(network, payTo string, facilitator FacilitatorClient) (*CantonRail, error) {
	network = strings.TrimSpace(network)
	if network == "" {
		return nil, NewPaymentError(ErrCodeConfiguration,
			"Canton rail requires a network identifier", nil)
	}
	payTo = strings.TrimSpace(payTo)
	if payTo == "" {
		return nil, NewPaymentError(ErrCodeConfiguration,
			"Canton rail requires a pay-to party", nil)
	}
	if facilitator == nil {
		return nil, NewPaymentError(ErrCodeConfiguration,
			"Canton rail requires a facilitator client", nil)
	}
	return &CantonRail{
		network:     network,
		payTo:       payTo,
		facilitator: facilitator,
	}, nil
}

func (r *CantonRail) Scheme() string { return SchemeExactCanton }

func (r *CantonRail) Network() string { return r.network }

func (r *CantonRail) Currency() string { return "CC" }

// AtomicAmount renders the USD price as a Canton Coin decimal string. The
// conversion is 1:1 with two fraction digits, so $0.10 becomes "0.10".
func (r *CantonRail) AtomicAmount(usd float64) string {
	if usd < 0 {
		usd = 0
	}
	return fmt.Sprintf("%.2f", usd)
}

// Requirement builds the exact-canton accepts entry for one priced call.
func (r *CantonRail) Requirement(toolName, resource string, usd float64) PaymentRequirements {
	return PaymentRequirements{
		Scheme:            SchemeExactCanton,
		Network:           r.network,
		MaxAmountRequired: r.AtomicAmount(usd),
		Resource:          resource,
		Description:       fmt.Sprintf("MCP Tool: %s", toolName),
		MimeType:          "application/json",
		PayTo:             r.payTo,
		MaxTimeoutSeconds: 60,
		Asset:             "CC",
	}
}

func (r *CantonRail) Facilitator() FacilitatorClient { return r.facilitator }
