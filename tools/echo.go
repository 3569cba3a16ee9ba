// Package tools holds the domain tool set the server registers at startup:
// DAML validation heuristics, authorization debugging, pattern suggestion
// and a free echo tool for connectivity checks.
package tools

import "github.com/canton-mcp/canton-mcp-go/core"

// EchoTool returns its input untouched. It exists so clients can exercise
// the full streaming pipeline without touching a priced tool.
type EchoTool struct{}

func (EchoTool) Name() string { return "echo" }

func (EchoTool) Description() string {
	return "Echo the input back; a free connectivity and pipeline test tool"
}

func (EchoTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"user_input": map[string]interface{}{
				"type":        "string",
				"description": "Text to echo back",
			},
		},
		"required": []interface{}{"user_input"},
	}
}

func (EchoTool) OutputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"output_data": map[string]interface{}{
				"type":        "string",
				"description": "The echoed input",
			},
		},
		"required": []interface{}{"output_data"},
	}
}

func (EchoTool) Pricing() core.Pricing { return core.FreePricing() }

func (EchoTool) Execute(ctx *core.Context) error {
	return ctx.Structured(map[string]interface{}{
		"output_data": ctx.String("user_input"),
	}, "")
}
