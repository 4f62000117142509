package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vitrine-shop/vitrine/internal/config"
	"github.com/vitrine-shop/vitrine/internal/storage"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"catalog_profile": {
		def:     profileToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProfile },
	},
	"catalog_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"catalog_get": {
		def:     getToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGet },
	},
	"catalog_toggle_status": {
		def:     toggleToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleToggleStatus },
	},
	"catalog_delete": {
		def:     deleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete },
	},
	"catalog_set_price": {
		def:     setPriceToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSetPrice },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with the catalog tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(facade *storage.Facade, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"vitrine",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(facade)

	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(facade *storage.Facade, cfg *config.Config, version string) error {
	return server.ServeStdio(NewServer(facade, cfg, version))
}
