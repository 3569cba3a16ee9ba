package tools

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/canton-mcp/canton-mcp-go/core"
)

var (
	templatePattern  = regexp.MustCompile(`(?m)^\s*template\s+[A-Z]\w*`)
	signatoryPattern = regexp.MustCompile(`(?m)^\s*signatory\b`)
	observerPattern  = regexp.MustCompile(`(?m)^\s*observer\b`)
	controllerWord   = regexp.MustCompile(`\bcontroller\b`)
)

// ValidateTool checks DAML code against canonical authorization patterns
// and declared security requirements. Fixed price $0.10.
type ValidateTool struct{}

func (ValidateTool) Name() string { return "validate_daml_business_logic" }

func (ValidateTool) Description() string {
	return "Validate DAML code against canonical authorization patterns and business requirements"
}

func (ValidateTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"business_intent": map[string]interface{}{
				"type":        "string",
				"description": "What the developer wants to achieve",
			},
			"daml_code": map[string]interface{}{
				"type":        "string",
				"description": "DAML code to validate",
			},
			"security_requirements": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Additional security requirements to check",
			},
		},
		"required": []interface{}{"business_intent", "daml_code"},
	}
}

func (ValidateTool) OutputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"valid":                 map[string]interface{}{"type": "boolean"},
			"issues":                map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"suggestions":           map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"business_intent":       map[string]interface{}{"type": "string"},
			"security_requirements": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
		"required": []interface{}{"valid", "issues", "suggestions", "business_intent", "security_requirements"},
	}
}

func (ValidateTool) Pricing() core.Pricing { return core.FixedPricing(0.10) }

func (ValidateTool) Execute(ctx *core.Context) error {
	intent := ctx.String("business_intent")
	code := ctx.String("daml_code")
	requirements := ctx.Strings("security_requirements")

	if err := ctx.Progress(1, 3, "Checking DAML structure"); err != nil {
		return err
	}

	var issues, suggestions []string

	if !templatePattern.MatchString(code) {
		issues = append(issues, "No template definition found in DAML code")
	}
	if !signatoryPattern.MatchString(code) {
		issues = append(issues, "No signatory definition found - this may cause authorization issues")
		suggestions = append(suggestions, "Add a signatory clause to define who authorizes contract creation")
	}
	if !observerPattern.MatchString(code) && strings.Contains(strings.ToLower(intent), "disclosure") {
		suggestions = append(suggestions, "Consider adding observers for data disclosure requirements")
	}
	if strings.Contains(strings.ToLower(intent), "approval") && !controllerWord.MatchString(code) {
		suggestions = append(suggestions, "Approval workflows usually need choices with explicit controllers")
	}

	if ctx.IsCancelled() {
		return core.ErrCancelled
	}
	if err := ctx.Progress(2, 3, "Checking security requirements"); err != nil {
		return err
	}

	for _, req := range requirements {
		lower := strings.ToLower(req)
		switch {
		case strings.Contains(lower, "multi-party") && !signatoryPattern.MatchString(code):
			issues = append(issues, fmt.Sprintf("Security requirement %q not addressed - missing multi-party authorization", req))
		case strings.Contains(lower, "audit") && !observerPattern.MatchString(code):
			suggestions = append(suggestions, fmt.Sprintf("Requirement %q: add observers to give auditors visibility", req))
		}
	}

	if err := ctx.Progress(3, 3, "Validation complete"); err != nil {
		return err
	}

	summary := "DAML code passed validation"
	if len(issues) > 0 {
		summary = fmt.Sprintf("DAML code has %d issue(s)", len(issues))
	}
	return ctx.Structured(map[string]interface{}{
		"valid":                 len(issues) == 0,
		"issues":                stringList(issues),
		"suggestions":           stringList(suggestions),
		"business_intent":       intent,
		"security_requirements": stringList(requirements),
	}, summary)
}

// stringList renders a string slice as the []interface{} JSON encoding
// expects, with nil collapsing to an empty array.
func stringList(items []string) []interface{} {
	out := make([]interface{}, 0, len(items))
	for _, s := range items {
		out = append(out, s)
	}
	return out
}
