package core

import (
	"context"
	"errors"
	"log/slog"
)

// ErrCancelled is returned by Context emit methods once the call's cancel
// signal has flipped or the transport went away. Handlers should return it
// unchanged.
var ErrCancelled = errors.New("tool call cancelled")

// frameBuffer decouples handler yields from SSE flushing without letting a
// fast handler run unboundedly ahead of a slow client.
const frameBuffer = 16

// Context is the per-invocation handle given to a tool handler. All frame
// emission, cancellation checks and payment introspection go through it.
type Context struct {
	ctx    context.Context
	req    *Request
	params map[string]interface{}
	logger *slog.Logger
	frames chan Frame
}

// NewContext builds the per-call context. The transport context governs
// client disconnects; the request carries the cooperative cancel signal.
func NewContext(ctx context.Context, req *Request, params map[string]interface{}, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		ctx:    ctx,
		req:    req,
		params: params,
		logger: logger,
		frames: make(chan Frame, frameBuffer),
	}
}

// Context exposes the transport context for I/O done inside handlers.
func (c *Context) Context() context.Context { return c.ctx }

// Params returns the validated, snake_case-keyed argument object.
func (c *Context) Params() map[string]interface{} { return c.params }

// Payment returns the verified payment summary, or nil for free calls.
func (c *Context) Payment() *PaymentView { return c.req.Payment() }

// Request returns the lifecycle record backing this call.
func (c *Context) Request() *Request { return c.req }

// IsCancelled reports whether the client cancelled this call or dropped
// the transport. Handlers must poll this at natural yield points.
func (c *Context) IsCancelled() bool {
	if c.req.Cancelled() {
		return true
	}
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// Progress emits a progress frame.
func (c *Context) Progress(current, total int, message string) error {
	return c.push(ProgressFrame{
		Current:       current,
		Total:         total,
		Message:       message,
		ProgressToken: c.req.ProgressToken,
	})
}

// Log emits a log frame and mirrors it to the server log.
func (c *Context) Log(level LogLevel, message string) error {
	c.logger.Log(c.ctx, slogLevel(level), message, "tool", c.req.Tool)
	return c.push(LogFrame{Level: level, Message: message})
}

// Structured emits the terminal success frame. Result keys are snake_case;
// summary may be empty.
func (c *Context) Structured(result map[string]interface{}, summary string) error {
	return c.push(StructuredFrame{Result: result, Summary: summary})
}

// Error emits a terminal failure frame.
func (c *Context) Error(code, message string) error {
	return c.push(ErrorFrame{Code: code, Message: message})
}

// ErrorWithData emits a terminal failure frame carrying extra detail.
func (c *Context) ErrorWithData(code, message string, data map[string]interface{}) error {
	return c.push(ErrorFrame{Code: code, Message: message, Data: data})
}

func (c *Context) push(f Frame) error {
	// Refuse new frames once cancelled so handlers unwind promptly.
	if c.IsCancelled() {
		return ErrCancelled
	}
	select {
	case c.frames <- f:
		return nil
	case <-c.req.CancelChan():
		return ErrCancelled
	case <-c.ctx.Done():
		return ErrCancelled
	}
}

// String returns the named string argument, or "" when absent.
func (c *Context) String(key string) string {
	v, _ := c.params[key].(string)
	return v
}

// Strings returns the named string-array argument. Non-string members are
// skipped.
func (c *Context) Strings(key string) []string {
	raw, ok := c.params[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Bool returns the named boolean argument, or false when absent.
func (c *Context) Bool(key string) bool {
	v, _ := c.params[key].(bool)
	return v
}

// Float returns the named numeric argument, or 0 when absent. JSON numbers
// decode as float64.
func (c *Context) Float(key string) float64 {
	v, _ := c.params[key].(float64)
	return v
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
