package mcp

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/canton-mcp/canton-mcp-go/core"
)

// SSEWriter streams frames to one client as Server-Sent Events, one
// `data: <json>` event per frame, flushed immediately. It implements
// core.FrameSink.
type SSEWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// NewSSEWriter wraps an HTTP response writer that supports flushing. The
// caller must have set Content-Type: text/event-stream before the first
// frame.
func NewSSEWriter(w io.Writer, flusher http.Flusher) *SSEWriter {
	return &SSEWriter{w: w, flusher: flusher}
}

// WriteFrame encodes one frame and flushes it to the client.
func (s *SSEWriter) WriteFrame(f core.Frame) error {
	payload, err := json.Marshal(EncodeFrame(f))
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// EncodeFrame renders one frame as its wire object. Structured result keys
// and error data keys are translated snake_case→camelCase here; everything
// upstream stays snake_case.
func EncodeFrame(f core.Frame) map[string]interface{} {
	switch frame := f.(type) {
	case core.ProgressFrame:
		out := map[string]interface{}{
			"type":    "progress",
			"current": frame.Current,
			"total":   frame.Total,
			"message": frame.Message,
		}
		if frame.ProgressToken != nil {
			out["progressToken"] = frame.ProgressToken
		}
		return out
	case core.LogFrame:
		return map[string]interface{}{
			"type":    "log",
			"level":   string(frame.Level),
			"message": frame.Message,
		}
	case core.StructuredFrame:
		out := map[string]interface{}{
			"type":   "structured",
			"result": CamelizeKeys(mapOrEmpty(frame.Result)),
		}
		if frame.Summary != "" {
			out["summary"] = frame.Summary
		}
		return out
	case core.ErrorFrame:
		out := map[string]interface{}{
			"type":    "error",
			"code":    frame.Code,
			"message": frame.Message,
		}
		if len(frame.Data) > 0 {
			out["data"] = CamelizeKeys(frame.Data)
		}
		return out
	default:
		return map[string]interface{}{
			"type":    "error",
			"code":    core.ErrorCodeInternal,
			"message": fmt.Sprintf("unknown frame type %T", f),
		}
	}
}

func mapOrEmpty(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
