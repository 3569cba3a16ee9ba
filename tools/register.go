package tools

import "github.com/canton-mcp/canton-mcp-go/core"

// RegisterAll adds the default tool set to the registry. Registration
// order is the tools/list order.
func RegisterAll(registry *core.Registry) error {
	for _, tool := range []core.Tool{
		EchoTool{},
		ValidateTool{},
		DebugAuthTool{},
		SuggestTool{},
	} {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
