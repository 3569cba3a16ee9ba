package x402

import "fmt"

// Rail is one payment network the gate can charge on. Implementations own
// the USD conversion rule, the accepts entry shape and the facilitator
// client for their network; the gate selects a rail by envelope scheme.
type Rail interface {
	// Scheme is the envelope scheme that routes to this rail.
	Scheme() string
	// Network is the rail's network identifier as advertised to clients.
	Network() string
	// Currency is the symbol reported in telemetry (USDC, CC).
	Currency() string
	// AtomicAmount renders a USD price in the rail's on-wire amount units.
	AtomicAmount(usd float64) string
	// Requirement builds the accepts entry demanding usd for the named
	// tool at the given resource URL.
	Requirement(toolName, resource string, usd float64) PaymentRequirements
	// Facilitator is the verify/settle client for this rail.
	Facilitator() FacilitatorClient
}

// Rails holds the enabled rails in advertisement order.
type Rails struct {
	order    []Rail
	byScheme map[string]Rail
}

// NewRails builds the rail set. Order is preserved in 402 accepts lists, so
// callers register EVM before Canton.
func NewRails(rails ...Rail) (*Rails, error) {
	r := &Rails{byScheme: make(map[string]Rail)}
	for _, rail := range rails {
		if rail == nil {
			continue
		}
		scheme := rail.Scheme()
		if _, dup := r.byScheme[scheme]; dup {
			return nil, fmt.Errorf("duplicate payment scheme %q", scheme)
		}
		r.byScheme[scheme] = rail
		r.order = append(r.order, rail)
	}
	return r, nil
}

// ByScheme resolves the rail an envelope selected.
func (r *Rails) ByScheme(scheme string) (Rail, bool) {
	rail, ok := r.byScheme[scheme]
	return rail, ok
}

// List returns the rails in advertisement order.
func (r *Rails) List() []Rail {
	return r.order
}

// Empty reports whether no rail is enabled.
func (r *Rails) Empty() bool {
	return len(r.order) == 0
}
