package tools

import (
	"regexp"
	"sort"
	"strings"

	"github.com/canton-mcp/canton-mcp-go/core"
)

// debugAuthMin/Max bound the dynamic price; longer traces cost more to
// analyze.
const (
	debugAuthMinUSD = 0.05
	debugAuthMaxUSD = 0.25
)

// partyPattern pulls party identifiers like 'Alice' or Party::deadbeef out
// of ledger error traces.
var partyPattern = regexp.MustCompile(`'([A-Za-z][\w:-]*)'|\bParty::[0-9a-f]+\b`)

// DebugAuthTool analyzes DAML authorization failure traces: it identifies
// missing signatories and stakeholder mismatches and proposes fixes.
// Priced dynamically by trace size.
type DebugAuthTool struct{}

func (DebugAuthTool) Name() string { return "debug_authorization_failure" }

func (DebugAuthTool) Description() string {
	return "Debug DAML authorization errors with detailed analysis and suggested fixes"
}

func (DebugAuthTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"error_message": map[string]interface{}{
				"type":        "string",
				"description": "The authorization error message or ledger trace",
			},
			"daml_code": map[string]interface{}{
				"type":        "string",
				"description": "The DAML code that caused the error",
			},
			"context": map[string]interface{}{
				"type":        "string",
				"description": "Additional context about the failing workflow",
			},
		},
		"required": []interface{}{"error_message"},
	}
}

func (DebugAuthTool) OutputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"diagnosis":       map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"missing_parties": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"remediation":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
		"required": []interface{}{"diagnosis", "missing_parties", "remediation"},
	}
}

// Pricing scales with trace length: one cent per 200 characters of error
// message, clamped into [min, max].
func (DebugAuthTool) Pricing() core.Pricing {
	return core.DynamicPricing(debugAuthMinUSD, debugAuthMaxUSD, func(args map[string]interface{}) float64 {
		trace, _ := args["error_message"].(string)
		return 0.01 * float64(len(trace)) / 200
	})
}

func (DebugAuthTool) Execute(ctx *core.Context) error {
	trace := ctx.String("error_message")
	code := ctx.String("daml_code")
	lower := strings.ToLower(trace)

	if err := ctx.Progress(1, 2, "Analyzing authorization trace"); err != nil {
		return err
	}

	var diagnosis, remediation []string

	if strings.Contains(lower, "missing authorization") || strings.Contains(lower, "requires authorizers") {
		diagnosis = append(diagnosis, "Authorization missing - likely a signatory or observer issue")
		remediation = append(remediation, "Check that all required signatories are present in the submitting act")
		remediation = append(remediation, "Verify observer permissions for data access")
	}
	if strings.Contains(lower, "signatory") {
		diagnosis = append(diagnosis, "Signatory-related authorization failure")
		remediation = append(remediation, "Ensure all signatories have signed the transaction")
		remediation = append(remediation, "Check signatory definitions in the template")
	}
	if strings.Contains(lower, "observer") {
		diagnosis = append(diagnosis, "Observer-related authorization failure")
		remediation = append(remediation, "Verify observer disclosure is configured on the template")
	}
	if strings.Contains(lower, "stakeholder") {
		diagnosis = append(diagnosis, "Stakeholder mismatch - a party acts on a contract it cannot see")
		remediation = append(remediation, "Disclose the contract to the acting party via observer or explicit disclosure")
	}
	if len(diagnosis) == 0 {
		diagnosis = append(diagnosis, "No known authorization failure signature matched; inspect the full ledger trace")
		remediation = append(remediation, "Compare the acting parties against the template's signatory and controller clauses")
	}
	if code != "" && !signatoryPattern.MatchString(code) {
		diagnosis = append(diagnosis, "Provided DAML code declares no signatory")
	}

	if ctx.IsCancelled() {
		return core.ErrCancelled
	}
	if err := ctx.Progress(2, 2, "Extracting involved parties"); err != nil {
		return err
	}

	missing := extractParties(trace)
	return ctx.Structured(map[string]interface{}{
		"diagnosis":       stringList(diagnosis),
		"missing_parties": stringList(missing),
		"remediation":     stringList(remediation),
	}, "")
}

// extractParties returns the distinct party identifiers referenced by the
// trace, sorted for deterministic output.
func extractParties(trace string) []string {
	seen := make(map[string]struct{})
	for _, match := range partyPattern.FindAllStringSubmatch(trace, -1) {
		name := match[1]
		if name == "" {
			name = match[0]
		}
		seen[name] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
