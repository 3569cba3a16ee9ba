package core

import (
	"errors"
	"fmt"
	"log/slog"
)

var errHandlerPanic = errors.New("handler panic")

// FrameSink receives frames in yield order. The SSE writer implements it on
// the transport side; tests substitute an in-memory sink.
type FrameSink interface {
	WriteFrame(Frame) error
}

// RunResult summarizes one drained tool execution.
type RunResult struct {
	// Success means a terminal Structured frame was delivered to the sink.
	Success bool
	// Cancelled means the call ended through the cooperative cancel signal
	// or a transport drop.
	Cancelled bool
	// ErrorCode is the terminal error code when Success is false and a
	// terminal error frame was produced.
	ErrorCode string
	// FramesWritten counts frames delivered to the sink.
	FramesWritten int
}

// Dispatcher drives tool handlers as cooperative generators: the handler
// pushes frames through its Context while the dispatcher drains them to the
// sink, enforcing the single-terminal-frame contract.
type Dispatcher struct {
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher logging through the given logger.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger}
}

// Run executes the tool and streams its frames into sink. It returns once a
// terminal frame has been written (or the transport failed) and the handler
// goroutine has exited. Run never panics into the caller.
func (d *Dispatcher) Run(tool Tool, c *Context, sink FrameSink) RunResult {
	done := make(chan error, 1)
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("tool handler panicked", "tool", tool.Name(), "panic", r)
				err = fmt.Errorf("%w: %v", errHandlerPanic, r)
			}
			done <- err
		}()
		err = tool.Execute(c)
	}()

	st := &drainState{dispatcher: d, ctx: c, sink: sink}

	var execErr error
	for running := true; running; {
		select {
		case f := <-c.frames:
			st.handleFrame(f)
		case err := <-done:
			execErr = err
			running = false
		}
	}

	// The handler may have buffered frames right before returning.
	for {
		select {
		case f := <-c.frames:
			st.handleFrame(f)
		default:
			return d.finish(tool, c, st, execErr)
		}
	}
}

func (d *Dispatcher) finish(tool Tool, c *Context, st *drainState, execErr error) RunResult {
	cancelled := st.cancelled || c.IsCancelled() || errors.Is(execErr, ErrCancelled)

	if !st.terminalWritten {
		switch {
		case cancelled:
			st.writeTerminal(ErrorFrame{Code: ErrorCodeCancelled, Message: "tool call cancelled"})
			st.cancelled = true
		case errors.Is(execErr, errHandlerPanic):
			st.writeTerminal(ErrorFrame{Code: ErrorCodeInternal, Message: "tool execution failed"})
		case execErr != nil:
			st.writeTerminal(ErrorFrame{Code: ErrorCodeToolError, Message: execErr.Error()})
		default:
			// Returning without a terminal frame violates the handler
			// contract.
			d.logger.Error("handler produced no terminal frame", "tool", tool.Name())
			st.writeTerminal(ErrorFrame{Code: ErrorCodeInternal, Message: "handler produced no terminal frame"})
		}
	} else if execErr != nil && !errors.Is(execErr, ErrCancelled) {
		d.logger.Warn("handler returned error after terminal frame", "tool", tool.Name(), "error", execErr)
	}

	if (st.cancelled || cancelled) && !st.structuredOK {
		if cleaner, ok := tool.(CancelCleaner); ok {
			cleaner.CancelCleanup(c)
		}
	}

	return RunResult{
		Success:       st.structuredOK,
		Cancelled:     (st.cancelled || cancelled) && !st.structuredOK,
		ErrorCode:     st.errorCode,
		FramesWritten: st.written,
	}
}

// drainState tracks terminal enforcement while frames flow to the sink.
type drainState struct {
	dispatcher      *Dispatcher
	ctx             *Context
	sink            FrameSink
	terminalWritten bool
	structuredOK    bool
	errorCode       string
	cancelled       bool
	writeFailed     bool
	written         int
}

func (st *drainState) handleFrame(f Frame) {
	if st.terminalWritten {
		st.dispatcher.logger.Warn("dropping frame yielded after terminal", "frame", string(f.FrameType()))
		return
	}

	if f.Terminal() {
		st.writeTerminal(f)
		return
	}

	// Cancellation is honored at yield boundaries: a non-terminal frame
	// pulled after the signal flipped ends the stream with a cancelled
	// terminal instead.
	if st.ctx.IsCancelled() {
		st.writeTerminal(ErrorFrame{Code: ErrorCodeCancelled, Message: "tool call cancelled"})
		st.cancelled = true
		return
	}

	st.write(f)
}

func (st *drainState) writeTerminal(f Frame) {
	err := st.write(f)
	st.terminalWritten = true
	if ef, ok := f.(ErrorFrame); ok {
		st.errorCode = ef.Code
	}
	st.structuredOK = err == nil && f.FrameType() == FrameStructured
}

func (st *drainState) write(f Frame) error {
	if st.writeFailed {
		return errors.New("sink closed")
	}
	if err := st.sink.WriteFrame(f); err != nil {
		st.writeFailed = true
		// Unblock the handler: the client is gone, nothing more can be
		// delivered.
		st.ctx.req.Cancel()
		st.dispatcher.logger.Warn("frame write failed, abandoning stream", "error", err)
		return err
	}
	st.written++
	return nil
}
