package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
)

func TestLoadMCPConfig(t *testing.T) {
	// No path configured: MCP is simply off.
	cfg, err := LoadMCPConfig("")
	assert.NoError(t, err)
	assert.Nil(t, cfg)

	// Missing file: same.
	cfg, err = LoadMCPConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.NoError(t, err)
	assert.Nil(t, cfg)

	path := filepath.Join(t.TempDir(), "tools.json")
	body := `{
		"mcp_server": {"name": "chat-backend", "version": "2.1.0"},
		"mcpServers": {
			"files": {"command": "mcp-files", "args": ["--root", "/tmp"], "env": {"DEBUG": "1"}}
		}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err = LoadMCPConfig(path)
	assert.NoError(t, err)
	assert.Equal(t, "chat-backend", cfg.Server.Name)
	assert.Equal(t, "2.1.0", cfg.Server.Version)
	spec, ok := cfg.Servers["files"]
	assert.True(t, ok)
	assert.Equal(t, "mcp-files", spec.Command)
	assert.Equal(t, []string{"--root", "/tmp"}, spec.Args)
	assert.Equal(t, "1", spec.Env["DEBUG"])

	// Malformed JSON is an error, not a silent skip.
	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte("{nope"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err = LoadMCPConfig(bad)
	assert.Error(t, err)
}

func TestMCPToolSchemaFromTypedSchema(t *testing.T) {
	tool := NewMCPTool(nil, &mcp.Tool{
		Name:        "search_files",
		Description: "search the filesystem",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {Type: "string", Description: "search pattern"},
			},
			Required: []string{"query"},
		},
	})

	schema := tool.Schema()
	assert.Equal(t, "search_files", schema.Name)
	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, []string{"query"}, schema.Required)
	prop, ok := schema.Properties["query"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "string", prop["type"])
}

func TestMCPToolSchemaFromRawObject(t *testing.T) {
	tool := NewMCPTool(nil, &mcp.Tool{
		Name: "raw_schema",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
			"required": []any{"path"},
		},
	})

	schema := tool.Schema()
	assert.Equal(t, "MCP tool: raw_schema", schema.Description)
	assert.Equal(t, []string{"path"}, schema.Required)
	assert.Contains(t, schema.Properties, "path")

	// No input schema at all is still a valid, empty object schema.
	empty := NewMCPTool(nil, &mcp.Tool{Name: "no_schema"}).Schema()
	assert.Empty(t, empty.Properties)
	assert.Empty(t, empty.Required)
}

func TestMCPServerManagerDefaults(t *testing.T) {
	m := NewMCPServerManager(nil)
	assert.False(t, m.Available())
	assert.Zero(t, m.ToolCount())
	assert.Equal(t, "unknown", m.ServerName())
	assert.Equal(t, "unknown", m.Version())
	m.Close()
}
