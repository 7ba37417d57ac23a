package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"chatrelay/internal/core"
)

// Tool is the generic interface for all tools
type Tool interface {
	Schema() ToolSchema
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// ToolSchema represents a tool's definition in a provider-agnostic way
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Type        string         `json:"type"` // Usually "object"
	Properties  map[string]any `json:"properties"`
	Required    []string       `json:"required,omitempty"`
}

// Validation failures surfaced by Invoke. Internal tool failures never reach
// the caller as errors; they come back as an error-describing result string.
var (
	ErrInvalidToolName         = errors.New("invalid tool name")
	ErrUnknownTool             = errors.New("unknown tool")
	ErrInvalidArguments        = errors.New("invalid tool arguments")
	ErrNonSerializableArgument = errors.New("non-serializable tool argument")
)

const (
	maxToolNameLen  = 64
	maxStringArgLen = 1000
)

var (
	toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	argKeyPattern   = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

// Registry manages available tools. It is populated once at startup and
// read-only afterwards, so it is safe for concurrent use without locking.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry. Names must be unique and match the
// identifier pattern.
func (r *Registry) Register(tool Tool) error {
	schema := tool.Schema()
	if !validName(schema.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidToolName, schema.Name)
	}
	if _, exists := r.tools[schema.Name]; exists {
		return fmt.Errorf("tool already registered: %s", schema.Name)
	}
	core.GetLogger().Infof("registered tool: %s", schema.Name)
	r.tools[schema.Name] = tool
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// All returns all registered tools
func (r *Registry) All() []Tool {
	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	return tools
}

// Schemas returns schemas for all registered tools, sorted by name
func (r *Registry) Schemas() []ToolSchema {
	schemas := make([]ToolSchema, 0, len(r.tools))
	for _, tool := range r.tools {
		schemas = append(schemas, tool.Schema())
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// Invoke validates the name, sanitizes the arguments, and executes the named
// tool. The returned error is non-nil only for validation failures; a tool
// that fails internally produces an error-describing result string so the
// conversation can continue.
func (r *Registry) Invoke(ctx context.Context, name string, args any) (string, error) {
	if !validName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidToolName, name)
	}

	tool, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	sanitized, err := sanitizeArgs(name, args)
	if err != nil {
		return "", err
	}

	logger := core.WithTool(core.GetLogger(), name, sanitized)
	logger.Infof("executing tool: %s", name)

	result, err := safeExecute(ctx, tool, sanitized)
	if err != nil {
		logger.Warnf("tool execution failed: %v", err)
		return fmt.Sprintf("Error executing tool %s: %v", name, err), nil
	}
	return result, nil
}

// safeExecute runs the tool, converting panics into errors.
func safeExecute(ctx context.Context, tool Tool, args map[string]any) (result string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool panicked: %v", rec)
		}
	}()
	return tool.Execute(ctx, args)
}

func validName(name string) bool {
	return name != "" && len(name) <= maxToolNameLen && toolNamePattern.MatchString(name)
}

// sanitizeArgs enforces the argument invariants: the top level must be a
// mapping, keys are restricted to the identifier pattern, oversized strings
// are truncated with a warning, control characters are stripped, and every
// nested value must survive a JSON round trip.
func sanitizeArgs(toolName string, args any) (map[string]any, error) {
	if args == nil {
		return map[string]any{}, nil
	}
	mapping, ok := args.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected an object, got %T", ErrInvalidArguments, args)
	}

	sanitized := make(map[string]any, len(mapping))
	for key, value := range mapping {
		if !argKeyPattern.MatchString(key) {
			core.GetLogger().Warnf("tool %s: dropping argument with invalid key %q", toolName, key)
			continue
		}
		sanitized[key] = sanitizeValue(toolName, key, value)
	}

	// Everything fed to a tool must round-trip through JSON.
	if _, err := json.Marshal(sanitized); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonSerializableArgument, err)
	}

	return sanitized, nil
}

func sanitizeValue(toolName, key string, value any) any {
	switch v := value.(type) {
	case string:
		cleaned := stripControl(v)
		if runes := []rune(cleaned); len(runes) > maxStringArgLen {
			core.GetLogger().Warnf("tool %s: truncating oversized string argument %q (%d runes)", toolName, key, len(runes))
			cleaned = string(runes[:maxStringArgLen])
		}
		return cleaned
	case map[string]any:
		nested := make(map[string]any, len(v))
		for k, nv := range v {
			nested[k] = sanitizeValue(toolName, key, nv)
		}
		return nested
	case []any:
		nested := make([]any, len(v))
		for i, nv := range v {
			nested[i] = sanitizeValue(toolName, key, nv)
		}
		return nested
	default:
		return v
	}
}

// stripControl removes non-printable control characters, keeping tabs and
// newlines.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
