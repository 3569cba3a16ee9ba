// Package core implements the tool execution framework: tool registration,
// per-call contexts, frame streaming, request lifecycle and cancellation.
package core

// Tool is one registered unit of work. Implementations push frames through
// the Context and must end with exactly one terminal frame (Structured or
// Error). Schemas use snake_case property names; the wire layer translates
// them to camelCase for clients.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	OutputSchema() map[string]interface{}
	Pricing() Pricing

	// Execute runs the tool. It is called on its own goroutine and should
	// return promptly once a context method reports ErrCancelled. A nil
	// return without a terminal frame is treated as a protocol violation.
	Execute(ctx *Context) error
}

// CancelCleaner is implemented by tools that hold external state needing
// release when a call is abandoned mid-flight.
type CancelCleaner interface {
	CancelCleanup(ctx *Context)
}
