package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

// Mock tool for testing
type mockTool struct {
	name    string
	pricing Pricing
	execute func(ctx *Context) error
	cleanup func(ctx *Context)

	cleanupCalled bool
}

func (m *mockTool) Name() string {
	if m.name == "" {
		return "mock_tool"
	}
	return m.name
}

func (m *mockTool) Description() string { return "mock tool" }

func (m *mockTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}

func (m *mockTool) OutputSchema() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}

func (m *mockTool) Pricing() Pricing {
	if m.pricing.Mode == "" {
		return FreePricing()
	}
	return m.pricing
}

func (m *mockTool) Execute(ctx *Context) error {
	if m.execute != nil {
		return m.execute(ctx)
	}
	return ctx.Structured(map[string]interface{}{"ok": true}, "")
}

func (m *mockTool) CancelCleanup(ctx *Context) {
	m.cleanupCalled = true
	if m.cleanup != nil {
		m.cleanup(ctx)
	}
}

// Capture sink for testing
type captureSink struct {
	frames    []Frame
	failAfter int // fail writes once this many frames were accepted; -1 never
}

func newCaptureSink() *captureSink {
	return &captureSink{failAfter: -1}
}

func (s *captureSink) WriteFrame(f Frame) error {
	if s.failAfter >= 0 && len(s.frames) >= s.failAfter {
		return errors.New("client went away")
	}
	s.frames = append(s.frames, f)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestContext(t *testing.T) (*Context, *Request) {
	t.Helper()
	mgr := NewRequestManager(0)
	req, err := mgr.Register("req-1", "tools/call")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	req.Tool = "mock_tool"
	return NewContext(context.Background(), req, map[string]interface{}{}, testLogger()), req
}

func TestDispatcherPreservesYieldOrder(t *testing.T) {
	tool := &mockTool{execute: func(c *Context) error {
		if err := c.Progress(1, 2, "a"); err != nil {
			return err
		}
		if err := c.Progress(2, 2, "b"); err != nil {
			return err
		}
		return c.Structured(map[string]interface{}{"value": "r"}, "done")
	}}

	ctx, _ := newTestContext(t)
	sink := newCaptureSink()
	res := NewDispatcher(testLogger()).Run(tool, ctx, sink)

	if !res.Success {
		t.Fatal("Expected success")
	}
	if len(sink.frames) != 3 {
		t.Fatalf("Expected 3 frames, got %d", len(sink.frames))
	}
	p1, ok := sink.frames[0].(ProgressFrame)
	if !ok || p1.Message != "a" {
		t.Fatalf("Expected first progress frame 'a', got %#v", sink.frames[0])
	}
	p2, ok := sink.frames[1].(ProgressFrame)
	if !ok || p2.Message != "b" {
		t.Fatalf("Expected second progress frame 'b', got %#v", sink.frames[1])
	}
	s, ok := sink.frames[2].(StructuredFrame)
	if !ok {
		t.Fatalf("Expected terminal structured frame, got %#v", sink.frames[2])
	}
	if s.Result["value"] != "r" {
		t.Fatalf("Expected result value 'r', got %v", s.Result["value"])
	}
}

func TestDispatcherDropsFramesAfterTerminal(t *testing.T) {
	tool := &mockTool{execute: func(c *Context) error {
		if err := c.Structured(map[string]interface{}{"done": true}, ""); err != nil {
			return err
		}
		// Violations after the terminal must not reach the client.
		c.Progress(9, 9, "late")
		return nil
	}}

	ctx, _ := newTestContext(t)
	sink := newCaptureSink()
	res := NewDispatcher(testLogger()).Run(tool, ctx, sink)

	if !res.Success {
		t.Fatal("Expected success")
	}
	if len(sink.frames) != 1 {
		t.Fatalf("Expected exactly 1 frame, got %d", len(sink.frames))
	}
	if !sink.frames[0].Terminal() {
		t.Fatal("Expected the single frame to be terminal")
	}
}

func TestDispatcherMissingTerminalIsInternalError(t *testing.T) {
	tool := &mockTool{execute: func(c *Context) error {
		return c.Progress(1, 1, "only progress")
	}}

	ctx, _ := newTestContext(t)
	sink := newCaptureSink()
	res := NewDispatcher(testLogger()).Run(tool, ctx, sink)

	if res.Success {
		t.Fatal("Expected failure")
	}
	last := sink.frames[len(sink.frames)-1]
	ef, ok := last.(ErrorFrame)
	if !ok {
		t.Fatalf("Expected terminal error frame, got %#v", last)
	}
	if ef.Code != ErrorCodeInternal {
		t.Fatalf("Expected code %q, got %q", ErrorCodeInternal, ef.Code)
	}
}

func TestDispatcherRecoversHandlerPanic(t *testing.T) {
	tool := &mockTool{execute: func(c *Context) error {
		panic("boom")
	}}

	ctx, _ := newTestContext(t)
	sink := newCaptureSink()
	res := NewDispatcher(testLogger()).Run(tool, ctx, sink)

	if res.Success {
		t.Fatal("Expected failure")
	}
	if len(sink.frames) != 1 {
		t.Fatalf("Expected exactly 1 frame, got %d", len(sink.frames))
	}
	ef, ok := sink.frames[0].(ErrorFrame)
	if !ok || ef.Code != ErrorCodeInternal {
		t.Fatalf("Expected internal error frame, got %#v", sink.frames[0])
	}
}

func TestDispatcherHandlerErrorBecomesToolError(t *testing.T) {
	tool := &mockTool{execute: func(c *Context) error {
		return errors.New("compiler unavailable")
	}}

	ctx, _ := newTestContext(t)
	sink := newCaptureSink()
	res := NewDispatcher(testLogger()).Run(tool, ctx, sink)

	if res.Success {
		t.Fatal("Expected failure")
	}
	ef, ok := sink.frames[0].(ErrorFrame)
	if !ok {
		t.Fatalf("Expected error frame, got %#v", sink.frames[0])
	}
	if ef.Code != ErrorCodeToolError {
		t.Fatalf("Expected code %q, got %q", ErrorCodeToolError, ef.Code)
	}
	if ef.Message != "compiler unavailable" {
		t.Fatalf("Expected handler message, got %q", ef.Message)
	}
}

func TestDispatcherCancelBeforeYield(t *testing.T) {
	tool := &mockTool{execute: func(c *Context) error {
		// The cancel signal is already flipped; the push must refuse.
		return c.Structured(map[string]interface{}{"done": true}, "")
	}}

	ctx, req := newTestContext(t)
	req.Cancel()

	sink := newCaptureSink()
	res := NewDispatcher(testLogger()).Run(tool, ctx, sink)

	if res.Success {
		t.Fatal("Expected failure")
	}
	if !res.Cancelled {
		t.Fatal("Expected cancelled result")
	}
	if len(sink.frames) != 1 {
		t.Fatalf("Expected exactly 1 frame, got %d", len(sink.frames))
	}
	ef, ok := sink.frames[0].(ErrorFrame)
	if !ok || ef.Code != ErrorCodeCancelled {
		t.Fatalf("Expected cancelled terminal, got %#v", sink.frames[0])
	}
	if tool.cleanupCalled != true {
		t.Fatal("Expected cancel cleanup hook to run")
	}
}

func TestDispatcherCancelMidFlight(t *testing.T) {
	started := make(chan struct{})
	tool := &mockTool{execute: func(c *Context) error {
		if err := c.Progress(1, 10, "starting"); err != nil {
			return err
		}
		close(started)
		for i := 2; i <= 10; i++ {
			time.Sleep(5 * time.Millisecond)
			if c.IsCancelled() {
				return ErrCancelled
			}
			if err := c.Progress(i, 10, "working"); err != nil {
				return err
			}
		}
		return c.Structured(map[string]interface{}{"done": true}, "")
	}}

	ctx, req := newTestContext(t)
	go func() {
		<-started
		req.Cancel()
	}()

	sink := newCaptureSink()
	res := NewDispatcher(testLogger()).Run(tool, ctx, sink)

	if res.Success {
		t.Fatal("Expected failure after cancellation")
	}
	if !res.Cancelled {
		t.Fatal("Expected cancelled result")
	}
	last := sink.frames[len(sink.frames)-1]
	ef, ok := last.(ErrorFrame)
	if !ok || ef.Code != ErrorCodeCancelled {
		t.Fatalf("Expected cancelled terminal, got %#v", last)
	}
	for _, f := range sink.frames[:len(sink.frames)-1] {
		if f.Terminal() {
			t.Fatal("Expected no terminal frame before the cancelled one")
		}
	}
}

func TestDispatcherTransportDropAbandonsStream(t *testing.T) {
	tool := &mockTool{execute: func(c *Context) error {
		for i := 1; i <= 5; i++ {
			if err := c.Progress(i, 5, "step"); err != nil {
				return err
			}
		}
		return c.Structured(map[string]interface{}{"done": true}, "")
	}}

	ctx, _ := newTestContext(t)
	sink := newCaptureSink()
	sink.failAfter = 2

	res := NewDispatcher(testLogger()).Run(tool, ctx, sink)

	if res.Success {
		t.Fatal("Expected failure once the client went away")
	}
	if len(sink.frames) != 2 {
		t.Fatalf("Expected 2 delivered frames, got %d", len(sink.frames))
	}
}

func TestContextEmitAfterCancelReturnsErrCancelled(t *testing.T) {
	ctx, req := newTestContext(t)
	req.Cancel()

	if err := ctx.Progress(1, 1, "x"); !errors.Is(err, ErrCancelled) {
		t.Fatalf("Expected ErrCancelled, got %v", err)
	}
	if err := ctx.Log(LevelInfo, "x"); !errors.Is(err, ErrCancelled) {
		t.Fatalf("Expected ErrCancelled, got %v", err)
	}
	if err := ctx.Structured(nil, ""); !errors.Is(err, ErrCancelled) {
		t.Fatalf("Expected ErrCancelled, got %v", err)
	}
}

func TestContextParamHelpers(t *testing.T) {
	mgr := NewRequestManager(0)
	req, _ := mgr.Register("req-2", "tools/call")
	params := map[string]interface{}{
		"daml_code":   "template Foo",
		"parties":     []interface{}{"Alice", "Bob", 42},
		"strict_mode": true,
		"max_issues":  float64(3),
	}
	c := NewContext(context.Background(), req, params, testLogger())

	if c.String("daml_code") != "template Foo" {
		t.Fatalf("Expected string param, got %q", c.String("daml_code"))
	}
	if got := c.Strings("parties"); len(got) != 2 || got[0] != "Alice" || got[1] != "Bob" {
		t.Fatalf("Expected [Alice Bob], got %v", got)
	}
	if !c.Bool("strict_mode") {
		t.Fatal("Expected bool param true")
	}
	if c.Float("max_issues") != 3 {
		t.Fatalf("Expected 3, got %v", c.Float("max_issues"))
	}
	if c.String("missing") != "" {
		t.Fatal("Expected empty string for missing param")
	}
}
