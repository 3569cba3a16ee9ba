package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/canton-mcp/canton-mcp-go/content"
	"github.com/canton-mcp/canton-mcp-go/core"
	"github.com/canton-mcp/canton-mcp-go/dcap"
	"github.com/canton-mcp/canton-mcp-go/x402"
)

// Header names at the payment boundary.
const (
	HeaderPayment     = "X-PAYMENT"
	HeaderInternalKey = "X-Internal-API-Key"
)

// ServerConfig wires the server's collaborators. Tools, Requests and
// Content are required; Gate may be nil when payments are disabled and
// Telemetry defaults to a no-op.
type ServerConfig struct {
	Info      ServerInfo
	Tools     *core.Registry
	Requests  *core.RequestManager
	Content   *content.Registry
	Gate      *x402.Gate
	Telemetry dcap.Telemetry
	Logger    *slog.Logger
	// Level, when set, is adjusted by logging/setLevel.
	Level *slog.LevelVar
	// BaseURL is the externally visible server URL; BaseURL+"/mcp" is the
	// resource advertised in payment requirements.
	BaseURL string
}

// Server is the MCP transport: it decodes JSON-RPC envelopes on POST /mcp,
// answers simple methods with a single JSON body and streams tools/call
// over SSE, with the payment gate in front of priced tools.
type Server struct {
	info       ServerInfo
	tools      *core.Registry
	requests   *core.RequestManager
	content    *content.Registry
	gate       *x402.Gate
	telemetry  dcap.Telemetry
	dispatcher *core.Dispatcher
	logger     *slog.Logger
	level      *slog.LevelVar
	baseURL    string
}

// NewServer assembles the transport from its collaborators.
func NewServer(config ServerConfig) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	telemetry := config.Telemetry
	if telemetry == nil {
		telemetry = dcap.Nop{}
	}
	return &Server{
		info:       config.Info,
		tools:      config.Tools,
		requests:   config.Requests,
		content:    config.Content,
		gate:       config.Gate,
		telemetry:  telemetry,
		dispatcher: core.NewDispatcher(logger),
		logger:     logger,
		level:      config.Level,
		baseURL:    config.BaseURL,
	}
}

// Engine builds the gin router serving /mcp, /health and /mcp-info.
func (s *Server) Engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.POST("/mcp", s.handleMCP)
	engine.GET("/health", s.handleHealth)
	engine.GET("/mcp-info", s.handleInfo)
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleInfo(c *gin.Context) {
	payments := gin.H{"enabled": false, "rails": []interface{}{}}
	if s.gate != nil && s.gate.Enabled() {
		rails := make([]interface{}, 0, 2)
		for _, rail := range s.gate.Rails().List() {
			rails = append(rails, gin.H{
				"scheme":  rail.Scheme(),
				"network": rail.Network(),
				"asset":   rail.Requirement("", "", 0).Asset,
			})
		}
		payments = gin.H{"enabled": true, "rails": rails}
	}
	c.JSON(http.StatusOK, gin.H{
		"name":            s.info.Name,
		"version":         s.info.Version,
		"protocolVersion": ProtocolVersion,
		"endpoint":        "/mcp",
		"transport":       "sse",
		"methods":         Methods,
		"payments":        payments,
	})
}

func (s *Server) handleMCP(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewError(nil, CodeParseError, "failed to read request body", nil))
		return
	}

	req, envErr := decodeRequest(body)
	if envErr != nil {
		c.JSON(http.StatusBadRequest, &Response{JSONRPC: "2.0", Error: envErr})
		return
	}

	// Notification methods are fire-and-forget even when a client attaches
	// an id; notifications/cancel in particular never errors.
	ctx := c.Request.Context()
	if req.IsNotification() || strings.HasPrefix(req.Method, "notifications/") {
		s.handleNotification(ctx, req)
		c.Status(http.StatusAccepted)
		return
	}

	if req.Method == "tools/call" {
		s.handleToolsCall(c, req)
		return
	}

	c.JSON(http.StatusOK, s.handleSimple(ctx, req))
}

// handleToolsCall runs the full priced-tool pipeline: resolve, translate
// and validate arguments, register the request, pass the payment gate,
// stream the execution over SSE, emit telemetry, settle.
func (s *Server) handleToolsCall(c *gin.Context, req *Request) {
	ctx := c.Request.Context()

	name, _ := req.Params["name"].(string)
	if name == "" {
		c.JSON(http.StatusOK, NewError(req.ID, CodeInvalidParams, "name: required", nil))
		return
	}
	tool, ok := s.tools.Lookup(name)
	if !ok {
		c.JSON(http.StatusOK, NewError(req.ID, CodeMethodNotFound,
			fmt.Sprintf("tool %q not found", name),
			map[string]interface{}{"tool": name}))
		return
	}

	rawArgs, _ := req.Params["arguments"].(map[string]interface{})
	if rawArgs == nil {
		rawArgs = map[string]interface{}{}
	}
	args, _ := SnakeifyKeys(rawArgs).(map[string]interface{})
	if err := validateArguments(tool.InputSchema(), args); err != nil {
		c.JSON(http.StatusOK, NewError(req.ID, CodeInvalidParams, err.Error(), nil))
		return
	}

	logger := s.logger.With("requestId", requestKey(req.ID), "tool", name)

	request, err := s.requests.Register(requestKey(req.ID), req.Method)
	if err != nil {
		c.JSON(http.StatusOK, NewError(req.ID, CodeInvalidRequest, err.Error(), nil))
		return
	}
	request.Tool = name
	if meta, ok := req.Params["_meta"].(map[string]interface{}); ok {
		request.ProgressToken = meta["progressToken"]
	}

	charge, ok := s.passPaymentGate(c, req, request, tool, args, logger)
	if !ok {
		return
	}

	// Everything past this point streams: errors become frames, the HTTP
	// status stays 200.
	request.SetState(core.StateExecuting)
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	sink := NewSSEWriter(c.Writer, c.Writer)
	toolCtx := core.NewContext(ctx, request, args, logger)

	execStart := time.Now()
	result := s.dispatcher.Run(tool, toolCtx, sink)
	execMS := time.Since(execStart).Milliseconds()

	switch {
	case result.Success:
		s.requests.Complete(request.ID, core.StateCompleted)
	case result.Cancelled:
		s.requests.Complete(request.ID, core.StateCancelled)
	default:
		s.requests.Complete(request.ID, core.StateFailed)
	}
	logger.InfoContext(ctx, "tool call finished",
		"success", result.Success, "cancelled", result.Cancelled,
		"frames", result.FramesWritten, "execMs", execMS)

	// Telemetry goes out before settlement so failed and cancelled runs
	// are visible regardless of the facilitator's fate.
	perf := dcap.PerfRecord{
		Tool:    name,
		ExecMS:  execMS,
		Success: result.Success,
		Args:    args,
	}
	if charge != nil && result.Success {
		perf.CostPaid = charge.RequiredUSD
		perf.Currency = charge.Rail.Currency()
		perf.HasCost = true
	}
	s.telemetry.EmitPerf(perf)

	if charge != nil && result.Success {
		request.SetState(core.StateSettling)
		// The client context is typically done once the stream closed;
		// settlement runs on its own timeout-bounded context.
		if _, err := s.gate.Settle(context.Background(), charge); err != nil {
			logger.Error("settlement failed", "paymentId", charge.PaymentID, "error", err)
		}
	}
}

// passPaymentGate enforces pricing for one call. It reports false after
// writing the 402/400/500 response itself; a nil charge with true means
// the call is free (or bypassed) and unpaid.
func (s *Server) passPaymentGate(c *gin.Context, req *Request, request *core.Request, tool core.Tool, args map[string]interface{}, logger *slog.Logger) (*x402.Charge, bool) {
	ctx := c.Request.Context()

	usd, priceErr := tool.Pricing().RequiredUSD(args)
	if priceErr != nil {
		logger.Warn("dynamic price fell back to minimum", "error", priceErr, "priceUsd", usd)
	}
	if usd <= 0 || s.gate == nil || !s.gate.Enabled() {
		return nil, true
	}

	if s.gate.BypassAllowed(c.GetHeader(HeaderInternalKey)) {
		logger.InfoContext(ctx, "payment gate bypassed by internal API key")
		return nil, true
	}

	request.SetState(core.StateVerifying)

	// A cooperative cancel must release an in-flight verify, not just the
	// transport context going away.
	verifyCtx, cancelVerify := context.WithCancel(ctx)
	defer cancelVerify()
	go func() {
		select {
		case <-request.CancelChan():
			cancelVerify()
		case <-verifyCtx.Done():
		}
	}()

	resource := s.baseURL + "/mcp"
	charge, err := s.gate.Preflight(verifyCtx, tool.Name(), resource, usd, c.GetHeader(HeaderPayment))
	if err == nil {
		request.SetPayment(&core.PaymentView{
			Rail:         charge.Rail.Scheme(),
			RequiredUSD:  charge.RequiredUSD,
			AmountAtomic: charge.Requirement.MaxAmountRequired,
			Currency:     charge.Rail.Currency(),
			PaymentID:    charge.PaymentID,
		})
		return charge, true
	}

	if request.Cancelled() {
		s.requests.Complete(request.ID, core.StateCancelled)
		logger.InfoContext(ctx, "request cancelled during payment verification")
		c.JSON(http.StatusOK, NewError(req.ID, CodeRequestCancelled, "request cancelled", nil))
		return nil, false
	}

	s.requests.Complete(request.ID, core.StateFailed)

	var required *x402.RequiredError
	if errors.As(err, &required) {
		c.JSON(http.StatusPaymentRequired, required.Body)
		return nil, false
	}
	var perr *x402.PaymentError
	if errors.As(err, &perr) {
		switch perr.Code {
		case x402.ErrCodeInvalidPayment, x402.ErrCodeUnsupportedScheme:
			c.JSON(http.StatusBadRequest, perr)
		default:
			c.JSON(http.StatusInternalServerError, perr)
		}
		return nil, false
	}
	c.JSON(http.StatusInternalServerError,
		NewError(req.ID, CodeInternalError, "payment gate failure", nil))
	return nil, false
}
