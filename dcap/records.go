// Package dcap emits the server's UDP telemetry: a perf_update record per
// tool invocation and periodic semantic_discover advertisements of the
// tool catalogue. Emission is fire-and-forget; nothing is ever read back.
package dcap

import (
	"fmt"
	"time"
)

// Protocol version tags. perf_update carries the integer form,
// semantic_discover the documented string form.
const (
	PerfVersion      = 2
	DiscoveryVersion = "2.4"
)

// Record type tags.
const (
	TypePerfUpdate       = "perf_update"
	TypeSemanticDiscover = "semantic_discover"
)

// Datagram size bounds. Records over PreferredMaxBytes get their argument
// context blanked; records still over HardMaxBytes are dropped.
const (
	PreferredMaxBytes = 1472
	HardMaxBytes      = 64 * 1024
)

// truncateStringLen is the longest argument string carried verbatim.
const truncateStringLen = 20

// PerfRecord summarizes one finished tool invocation.
type PerfRecord struct {
	Tool    string
	ExecMS  int64
	Success bool
	// Args are the call arguments; they are anonymized before emission.
	Args map[string]interface{}
	// CostPaid and Currency are set only when a payment settled.
	CostPaid float64
	Currency string
	HasCost  bool
}

func (r PerfRecord) wire(serverID string, now time.Time) map[string]interface{} {
	out := map[string]interface{}{
		"v":       PerfVersion,
		"ts":      now.Unix(),
		"t":       TypePerfUpdate,
		"sid":     serverID,
		"tool":    r.Tool,
		"exec_ms": r.ExecMS,
		"success": r.Success,
		"ctx":     map[string]interface{}{"args": AnonymizeArgs(r.Args)},
	}
	if r.HasCost {
		out["cost_paid"] = r.CostPaid
		out["currency"] = r.Currency
	}
	return out
}

// RailAdvert is one enabled payment rail as embedded in discovery records.
type RailAdvert struct {
	Scheme  string `json:"scheme"`
	Network string `json:"network"`
	Asset   string `json:"asset"`
	PayTo   string `json:"pay_to"`
}

// Connector describes how a discovered tool is reached. ProtocolVersion
// and Methods are injected by the caller so dcap does not depend on the
// mcp package.
type Connector struct {
	// Endpoint is the full /mcp URL clients should POST to.
	Endpoint string
	// Rails lists the enabled payment rails; empty means auth type none.
	Rails           []RailAdvert
	ProtocolVersion string
	Methods         []string
}

func (c Connector) wire() map[string]interface{} {
	auth := map[string]interface{}{"type": "none"}
	if len(c.Rails) > 0 {
		details := make([]interface{}, 0, len(c.Rails))
		for _, rail := range c.Rails {
			details = append(details, map[string]interface{}{
				"scheme":  rail.Scheme,
				"network": rail.Network,
				"asset":   rail.Asset,
				"pay_to":  rail.PayTo,
			})
		}
		auth = map[string]interface{}{"type": "x402", "details": details}
	}
	return map[string]interface{}{
		"transport": map[string]interface{}{"type": "sse", "endpoint": c.Endpoint},
		"auth":      auth,
		"mcp": map[string]interface{}{
			"protocol_version": c.ProtocolVersion,
			"methods":          c.Methods,
		},
	}
}

// ToolAdvert is the catalogue entry advertised for one tool.
type ToolAdvert struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	// Pricing is the advert map as served by tools/list ({mode:...}).
	Pricing map[string]interface{}
}

func (t ToolAdvert) wire(serverID string, connector map[string]interface{}, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"v":    DiscoveryVersion,
		"ts":   now.Unix(),
		"t":    TypeSemanticDiscover,
		"sid":  serverID,
		"name": t.Name,
		"tool": map[string]interface{}{
			"name":         t.Name,
			"description":  t.Description,
			"input_schema": t.InputSchema,
		},
		"pricing":   t.Pricing,
		"connector": connector,
	}
}

// AnonymizeArgs reduces call arguments to a privacy- and size-safe form:
// long strings are cut to 20 characters plus an ellipsis, arrays and
// objects collapse to their sizes, scalars pass through.
func AnonymizeArgs(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = anonymizeValue(v)
	}
	return out
}

func anonymizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		if len(val) > truncateStringLen {
			return val[:truncateStringLen] + "..."
		}
		return val
	case []interface{}:
		return fmt.Sprintf("[%d items]", len(val))
	case map[string]interface{}:
		return fmt.Sprintf("{%d fields}", len(val))
	default:
		return v
	}
}
