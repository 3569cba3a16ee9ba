package tools

import (
	"strings"

	"github.com/canton-mcp/canton-mcp-go/core"
)

// authPattern is one entry of the built-in authorization pattern library.
type authPattern struct {
	name      string
	rationale string
	skeleton  string
	keywords  []string
}

var patternLibrary = []authPattern{
	{
		name:      "Asset Transfer Pattern",
		rationale: "Multi-party authorization for asset transfers: the sender authorizes, the receiver sees the offer and accepts",
		keywords:  []string{"transfer", "payment", "send", "asset"},
		skeleton: `template AssetTransfer
  with
    sender: Party
    receiver: Party
    amount: Decimal
  where
    signatory sender
    observer receiver
    choice Accept : ContractId Asset
      controller receiver
      do create Asset with owner = receiver, amount`,
	},
	{
		name:      "Multi-Step Approval Pattern",
		rationale: "Sequential approval workflow: the requester creates, each approver exercises an approval choice in turn",
		keywords:  []string{"approval", "approve", "workflow", "review"},
		skeleton: `template ApprovalRequest
  with
    requester: Party
    approvers: [Party]
    payload: Text
  where
    signatory requester
    observer approvers
    choice Approve : ContractId ApprovalRequest
      with approver: Party
      controller approver
      do create this`,
	},
	{
		name:      "Propose-Accept Pattern",
		rationale: "The canonical two-party agreement: one party proposes, the counterparty's acceptance creates the mutual contract",
		keywords:  []string{"propose", "agreement", "contract", "negotiate", "offer"},
		skeleton: `template Proposal
  with
    proposer: Party
    counterparty: Party
    terms: Text
  where
    signatory proposer
    observer counterparty
    choice AcceptProposal : ContractId Agreement
      controller counterparty
      do create Agreement with ..`,
	},
	{
		name:      "Delegation Pattern",
		rationale: "A principal grants an agent bounded rights through a delegation contract instead of sharing signatory authority",
		keywords:  []string{"delegate", "delegation", "agent", "on behalf"},
		skeleton: `template Delegation
  with
    principal: Party
    agent: Party
  where
    signatory principal
    observer agent
    nonconsuming choice ActOnBehalf : ()
      controller agent
      do pure ()`,
	},
}

// SuggestTool matches a workflow description against the built-in
// authorization pattern library. Free.
type SuggestTool struct{}

func (SuggestTool) Name() string { return "suggest_authorization_pattern" }

func (SuggestTool) Description() string {
	return "Suggest DAML authorization patterns based on workflow requirements and security levels"
}

func (SuggestTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"workflow_description": map[string]interface{}{
				"type":        "string",
				"description": "Description of the workflow to implement",
			},
			"security_level": map[string]interface{}{
				"type":        "string",
				"enum":        []interface{}{"basic", "enhanced", "enterprise"},
				"description": "Required security level",
			},
			"constraints": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Business or technical constraints",
			},
		},
		"required": []interface{}{"workflow_description"},
	}
}

func (SuggestTool) OutputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"patterns": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"name":      map[string]interface{}{"type": "string"},
						"rationale": map[string]interface{}{"type": "string"},
						"skeleton":  map[string]interface{}{"type": "string"},
					},
					"required": []interface{}{"name", "rationale", "skeleton"},
				},
			},
			"confidence":           map[string]interface{}{"type": "number"},
			"implementation_notes": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
		"required": []interface{}{"patterns", "confidence"},
	}
}

func (SuggestTool) Pricing() core.Pricing { return core.FreePricing() }

func (SuggestTool) Execute(ctx *core.Context) error {
	workflow := strings.ToLower(ctx.String("workflow_description"))
	level := ctx.String("security_level")
	if level == "" {
		level = "basic"
	}

	if err := ctx.Progress(1, 1, "Matching workflow against pattern library"); err != nil {
		return err
	}

	var matched []interface{}
	hits := 0
	for _, p := range patternLibrary {
		for _, kw := range p.keywords {
			if strings.Contains(workflow, kw) {
				matched = append(matched, map[string]interface{}{
					"name":      p.name,
					"rationale": p.rationale,
					"skeleton":  p.skeleton,
				})
				hits++
				break
			}
		}
	}

	confidence := 0.3
	switch {
	case hits >= 2:
		confidence = 0.9
	case hits == 1:
		confidence = 0.7
	}
	if matched == nil {
		// Nothing matched: fall back to the propose-accept default with
		// low confidence.
		fallback := patternLibrary[2]
		matched = []interface{}{map[string]interface{}{
			"name":      fallback.name,
			"rationale": fallback.rationale,
			"skeleton":  fallback.skeleton,
		}}
	}

	var notes []string
	switch level {
	case "enhanced":
		notes = append(notes,
			"Consider adding choice controllers for fine-grained access",
			"Implement audit trails with observer patterns")
	case "enterprise":
		notes = append(notes,
			"Add role-based access control contracts",
			"Implement compliance reporting mechanisms",
			"Restrict observers to preserve privacy between participants")
	}

	return ctx.Structured(map[string]interface{}{
		"patterns":             matched,
		"confidence":           confidence,
		"implementation_notes": stringList(notes),
	}, "")
}
