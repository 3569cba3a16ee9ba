package core

// FrameType discriminates the variants streamed during a tool call.
type FrameType string

const (
	FrameProgress   FrameType = "progress"
	FrameLog        FrameType = "log"
	FrameStructured FrameType = "structured"
	FrameError      FrameType = "error"
)

// LogLevel is the severity attached to a Log frame.
type LogLevel string

const (
	LevelDebug   LogLevel = "debug"
	LevelInfo    LogLevel = "info"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

// Reserved terminal error codes.
const (
	ErrorCodeCancelled = "cancelled"
	ErrorCodeInternal  = "internal"
	ErrorCodeToolError = "tool_error"
)

// Frame is one unit of tool output. Progress and Log frames may appear any
// number of times before exactly one terminal frame (Structured or Error).
type Frame interface {
	FrameType() FrameType
	Terminal() bool
}

// ProgressFrame reports handler progress to the client.
type ProgressFrame struct {
	Current       int
	Total         int
	Message       string
	ProgressToken interface{}
}

func (ProgressFrame) FrameType() FrameType { return FrameProgress }
func (ProgressFrame) Terminal() bool       { return false }

// LogFrame carries a handler log line to the client.
type LogFrame struct {
	Level   LogLevel
	Message string
}

func (LogFrame) FrameType() FrameType { return FrameLog }
func (LogFrame) Terminal() bool       { return false }

// StructuredFrame is the terminal success payload. Result keys are
// snake_case here; the wire layer translates them to camelCase.
type StructuredFrame struct {
	Result  map[string]interface{}
	Summary string
}

func (StructuredFrame) FrameType() FrameType { return FrameStructured }
func (StructuredFrame) Terminal() bool       { return true }

// ErrorFrame is the terminal failure payload.
type ErrorFrame struct {
	Code    string
	Message string
	Data    map[string]interface{}
}

func (ErrorFrame) FrameType() FrameType { return FrameError }
func (ErrorFrame) Terminal() bool       { return true }
