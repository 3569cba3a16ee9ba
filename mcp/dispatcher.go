package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/canton-mcp/canton-mcp-go/core"
)

// pricingAdvert renders a tool's pricing for tools/list and discovery.
func pricingAdvert(p core.Pricing) map[string]interface{} {
	switch p.Mode {
	case core.PricingFixed:
		return map[string]interface{}{
			"mode":     "fixed",
			"priceUsd": p.PriceUSD,
			"currency": "USD",
		}
	case core.PricingDynamic:
		return map[string]interface{}{
			"mode":     "dynamic",
			"minUsd":   p.MinUSD,
			"maxUsd":   p.MaxUSD,
			"currency": "USD",
		}
	default:
		return map[string]interface{}{"mode": "free"}
	}
}

// handleSimple routes every non-streaming request method and returns the
// single JSON response envelope. tools/call never reaches here.
func (s *Server) handleSimple(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		s.logger.InfoContext(ctx, "client initializing",
			"clientInfo", req.Params["clientInfo"], "protocolVersion", req.Params["protocolVersion"])
		return NewResult(req.ID, newInitializeResult(s.info))

	case "tools/list":
		return NewResult(req.ID, s.toolsList())

	case "resources/list":
		return NewResult(req.ID, s.resourcesList())

	case "resources/read":
		return s.resourcesRead(req)

	case "prompts/list":
		return NewResult(req.ID, s.promptsList())

	case "prompts/get":
		return s.promptsGet(req)

	case "ping":
		return NewResult(req.ID, map[string]interface{}{})

	case "logging/setLevel":
		return s.setLevel(ctx, req)

	default:
		return NewError(req.ID, CodeMethodNotFound,
			fmt.Sprintf("method %q not found", req.Method), nil)
	}
}

// handleNotification processes fire-and-forget methods. Unknown
// notifications are ignored, matching MCP convention.
func (s *Server) handleNotification(ctx context.Context, req *Request) {
	switch req.Method {
	case "notifications/initialized":
		s.logger.InfoContext(ctx, "client initialized")
	case "notifications/cancel", "notifications/cancelled":
		id := cancelTargetID(req.Params)
		if id == "" {
			return
		}
		s.requests.MarkCancelled(id)
		s.logger.InfoContext(ctx, "cancellation requested", "requestId", id)
	default:
		s.logger.DebugContext(ctx, "ignoring notification", "method", req.Method)
	}
}

// cancelTargetID extracts the request id from a cancel notification,
// accepting both the requestId and legacy id spellings.
func cancelTargetID(params map[string]interface{}) string {
	for _, key := range []string{"requestId", "id"} {
		if v, ok := params[key]; ok && v != nil {
			return requestKey(v)
		}
	}
	return ""
}

// requestKey renders a JSON-RPC id as the map key the request manager
// uses. JSON numbers arrive as float64; integral values render without a
// fraction so 3 and 3.0 collide as the same id.
func requestKey(id interface{}) string {
	if f, ok := id.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%v", id)
}

func (s *Server) toolsList() map[string]interface{} {
	tools := s.tools.List()
	entries := make([]interface{}, 0, len(tools))
	for _, t := range tools {
		entries = append(entries, map[string]interface{}{
			"name":         t.Name(),
			"description":  t.Description(),
			"inputSchema":  CamelizeSchema(t.InputSchema()),
			"outputSchema": CamelizeSchema(t.OutputSchema()),
			"pricing":      pricingAdvert(t.Pricing()),
		})
	}
	return map[string]interface{}{"tools": entries}
}

func (s *Server) resourcesList() map[string]interface{} {
	snap := s.content.Current()
	resources := snap.Resources()
	entries := make([]interface{}, 0, len(resources))
	for _, r := range resources {
		entries = append(entries, map[string]interface{}{
			"uri":         r.URI,
			"name":        r.Name,
			"description": r.Description,
			"mimeType":    r.MimeType,
		})
	}
	return map[string]interface{}{"resources": entries}
}

func (s *Server) resourcesRead(req *Request) *Response {
	uri, _ := req.Params["uri"].(string)
	if uri == "" {
		return NewError(req.ID, CodeInvalidParams, "uri: required", nil)
	}
	res, ok := s.content.Current().Resource(uri)
	if !ok {
		return NewError(req.ID, CodeMethodNotFound,
			fmt.Sprintf("resource %q not found", uri),
			map[string]interface{}{"uri": uri})
	}
	return NewResult(req.ID, map[string]interface{}{
		"contents": []interface{}{
			map[string]interface{}{
				"uri":      res.URI,
				"mimeType": res.MimeType,
				"text":     res.Text,
			},
		},
	})
}

func (s *Server) promptsList() map[string]interface{} {
	prompts := s.content.Current().Prompts()
	entries := make([]interface{}, 0, len(prompts))
	for _, p := range prompts {
		args := make([]interface{}, 0, len(p.Arguments))
		for _, a := range p.Arguments {
			args = append(args, map[string]interface{}{
				"name":        a.Name,
				"description": a.Description,
				"required":    a.Required,
			})
		}
		entries = append(entries, map[string]interface{}{
			"name":        p.Name,
			"description": p.Description,
			"arguments":   args,
		})
	}
	return map[string]interface{}{"prompts": entries}
}

func (s *Server) promptsGet(req *Request) *Response {
	name, _ := req.Params["name"].(string)
	if name == "" {
		return NewError(req.ID, CodeInvalidParams, "name: required", nil)
	}
	prompt, ok := s.content.Current().Prompt(name)
	if !ok {
		return NewError(req.ID, CodeMethodNotFound,
			fmt.Sprintf("prompt %q not found", name),
			map[string]interface{}{"prompt": name})
	}

	args := make(map[string]string)
	if raw, ok := req.Params["arguments"].(map[string]interface{}); ok {
		for k, v := range raw {
			args[k] = fmt.Sprintf("%v", v)
		}
	}
	text, err := prompt.Render(args)
	if err != nil {
		return NewError(req.ID, CodeInvalidParams, err.Error(), nil)
	}
	return NewResult(req.ID, map[string]interface{}{
		"description": prompt.Description,
		"messages": []interface{}{
			map[string]interface{}{
				"role": "user",
				"content": map[string]interface{}{
					"type": "text",
					"text": text,
				},
			},
		},
	})
}

// mcpToSlogLevel maps MCP logging levels onto slog. MCP has more
// severities than slog; everything above error collapses to error.
var mcpToSlogLevel = map[string]slog.Level{
	"debug":     slog.LevelDebug,
	"info":      slog.LevelInfo,
	"notice":    slog.LevelInfo,
	"warning":   slog.LevelWarn,
	"error":     slog.LevelError,
	"critical":  slog.LevelError,
	"alert":     slog.LevelError,
	"emergency": slog.LevelError,
}

func (s *Server) setLevel(ctx context.Context, req *Request) *Response {
	name, _ := req.Params["level"].(string)
	level, ok := mcpToSlogLevel[strings.ToLower(name)]
	if !ok {
		return NewError(req.ID, CodeInvalidParams,
			fmt.Sprintf("level: unknown logging level %q", name), nil)
	}
	if s.level != nil {
		s.level.Set(level)
	}
	s.logger.InfoContext(ctx, "log level changed", "level", name)
	return NewResult(req.ID, map[string]interface{}{})
}

// validateArguments checks translated (snake_case) arguments against the
// tool's input schema and renders gojsonschema failures as the per-field
// "field: message" strings joined by "; " that -32602 responses carry.
func validateArguments(schema map[string]interface{}, args map[string]interface{}) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		field := e.Field()
		if field == "(root)" {
			field = "arguments"
		}
		details = append(details, fmt.Sprintf("%s: %s", field, e.Description()))
	}
	sort.Strings(details)
	return fmt.Errorf("%s", strings.Join(details, "; "))
}
