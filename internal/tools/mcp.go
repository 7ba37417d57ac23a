package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"chatrelay/internal/core"
)

// MCPServerSpec describes how to launch one MCP server process.
type MCPServerSpec struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// MCPConfig is the on-disk tool configuration format.
type MCPConfig struct {
	Server struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"mcp_server"`
	Servers map[string]MCPServerSpec `json:"mcpServers"`
}

// LoadMCPConfig reads the tool configuration file. A missing path is not an
// error; MCP tools are simply unavailable.
func LoadMCPConfig(path string) (*MCPConfig, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			core.GetLogger().Infof("MCP config file not found at %s, MCP tools will not be available", path)
			return nil, nil
		}
		return nil, err
	}
	var cfg MCPConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse MCP config %s: %w", path, err)
	}
	return &cfg, nil
}

// MCPServerManager manages connections to MCP servers
type MCPServerManager struct {
	config   *MCPConfig
	sessions []*mcp.ClientSession
	loaded   int
}

// NewMCPServerManager creates a manager for the configured servers. A nil
// config yields a manager with no servers.
func NewMCPServerManager(config *MCPConfig) *MCPServerManager {
	return &MCPServerManager{
		config:   config,
		sessions: make([]*mcp.ClientSession, 0),
	}
}

// Connect dials every configured server, enumerates its tools, and registers
// them. A server that fails to connect is logged and skipped so the rest can
// still load.
func (m *MCPServerManager) Connect(ctx context.Context, registry *Registry) {
	if m.config == nil {
		return
	}
	for name, spec := range m.config.Servers {
		loaded, session, err := m.connectAndLoadTools(ctx, name, spec, registry)
		if err != nil {
			core.GetLogger().Warnf("failed to load MCP server %s: %v", name, err)
			continue
		}
		if session != nil {
			m.sessions = append(m.sessions, session)
		}
		m.loaded += loaded
	}
	core.GetLogger().Infof("MCP initialized with %d tools from %d servers", m.loaded, len(m.sessions))
}

// connectAndLoadTools connects to a single MCP server and registers its tools
func (m *MCPServerManager) connectAndLoadTools(ctx context.Context, name string, spec MCPServerSpec, registry *Registry) (int, *mcp.ClientSession, error) {
	if spec.Command == "" {
		return 0, nil, fmt.Errorf("empty command for server %s", name)
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "chatrelay",
		Version: "1.0.0",
	}, nil)

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	core.GetLogger().Infof("connecting to MCP server: %s", name)
	session, err := client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to connect to MCP server: %v", err)
	}

	loaded := 0
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			session.Close()
			return 0, nil, fmt.Errorf("error listing tools: %v", err)
		}
		if tool == nil {
			continue
		}
		if err := registry.Register(NewMCPTool(session, tool)); err != nil {
			core.GetLogger().Warnf("skipping MCP tool %s: %v", tool.Name, err)
			continue
		}
		loaded++
	}

	core.GetLogger().Infof("loaded %d tools from MCP server: %s", loaded, name)
	return loaded, session, nil
}

// Available reports whether any MCP server session is live.
func (m *MCPServerManager) Available() bool {
	return len(m.sessions) > 0
}

// ToolCount returns how many MCP tools were loaded.
func (m *MCPServerManager) ToolCount() int {
	return m.loaded
}

// ServerName returns the configured server name, if any.
func (m *MCPServerManager) ServerName() string {
	if m.config == nil || m.config.Server.Name == "" {
		return "unknown"
	}
	return m.config.Server.Name
}

// Version returns the configured server version, if any.
func (m *MCPServerManager) Version() string {
	if m.config == nil || m.config.Server.Version == "" {
		return "unknown"
	}
	return m.config.Server.Version
}

// Close closes all MCP server connections
func (m *MCPServerManager) Close() {
	for _, session := range m.sessions {
		session.Close()
	}
	m.sessions = nil
}

// MCPTool wraps an MCP tool to implement the Tool interface
type MCPTool struct {
	session *mcp.ClientSession
	tool    *mcp.Tool
}

// NewMCPTool creates a new MCP tool wrapper
func NewMCPTool(session *mcp.ClientSession, tool *mcp.Tool) *MCPTool {
	return &MCPTool{
		session: session,
		tool:    tool,
	}
}

// Schema converts the MCP input schema into the registry's provider-agnostic
// shape.
func (m *MCPTool) Schema() ToolSchema {
	schema := ToolSchema{
		Name:        m.tool.Name,
		Description: m.tool.Description,
		Type:        "object",
		Properties:  make(map[string]any),
	}
	if schema.Description == "" {
		schema.Description = "MCP tool: " + m.tool.Name
	}
	schema.Properties, schema.Required = flattenInputSchema(m.tool.InputSchema)
	return schema
}

// flattenInputSchema normalizes the SDK's untyped input schema. Servers
// hand back either a decoded *jsonschema.Schema or a raw JSON object; both
// reduce to a plain property map plus the required key list.
func flattenInputSchema(raw any) (map[string]any, []string) {
	switch s := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case *jsonschema.Schema:
		return schemaProperties(s), s.Required
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return map[string]any{}, nil
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		core.GetLogger().Warnf("unrecognized MCP input schema shape: %v", err)
		return map[string]any{}, nil
	}
	return schemaProperties(&s), s.Required
}

// schemaProperties flattens a JSON-schema property map into plain maps.
func schemaProperties(s *jsonschema.Schema) map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, prop := range s.Properties {
		raw, err := json.Marshal(prop)
		if err != nil {
			continue
		}
		var flat map[string]any
		if err := json.Unmarshal(raw, &flat); err != nil {
			continue
		}
		props[name] = flat
	}
	return props
}

// Execute runs the MCP tool with the given arguments
func (m *MCPTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	params := &mcp.CallToolParams{
		Name:      m.tool.Name,
		Arguments: args,
	}

	result, err := m.session.CallTool(ctx, params)
	if err != nil {
		return "", fmt.Errorf("MCP tool execution failed: %v", err)
	}

	if result.IsError {
		if len(result.Content) > 0 {
			content, _ := json.Marshal(result.Content)
			return "", fmt.Errorf("tool returned error: %s", string(content))
		}
		return "", fmt.Errorf("tool returned error without content")
	}

	if len(result.Content) == 0 {
		return "Tool executed successfully with no output", nil
	}

	// Prefer plain text content; fall back to JSON for structured results.
	if text, ok := result.Content[0].(*mcp.TextContent); ok && len(result.Content) == 1 {
		return text.Text, nil
	}
	output, err := json.Marshal(result.Content)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tool result: %v", err)
	}
	return string(output), nil
}
