package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RegisterBuiltins adds the static builtin tool set to the registry.
func RegisterBuiltins(registry *Registry) error {
	builtins := []Tool{
		&TimeTool{},
		&CalculateTool{},
		&UUIDTool{},
		&Base64Tool{},
		&WeatherTool{},
	}
	for _, tool := range builtins {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// TimeTool reports the current time, optionally in a named location.
type TimeTool struct{}

func (t *TimeTool) Schema() ToolSchema {
	return ToolSchema{
		Name:        "current_time",
		Description: "Get the current date and time, optionally in a specific IANA timezone",
		Type:        "object",
		Properties: map[string]any{
			"timezone": map[string]any{
				"type":        "string",
				"description": "IANA timezone name, e.g. America/New_York (default UTC)",
			},
		},
	}
}

func (t *TimeTool) Execute(_ context.Context, args map[string]any) (string, error) {
	loc := time.UTC
	if tz, ok := args["timezone"].(string); ok && tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q", tz)
		}
		loc = parsed
	}
	now := time.Now().In(loc)
	return fmt.Sprintf("Current time in %s: %s", loc.String(), now.Format(time.RFC1123)), nil
}

// CalculateTool evaluates a basic arithmetic expression.
type CalculateTool struct{}

func (c *CalculateTool) Schema() ToolSchema {
	return ToolSchema{
		Name:        "calculate",
		Description: "Evaluate a basic arithmetic expression (+, -, *, /, %, parentheses)",
		Type:        "object",
		Properties: map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "The arithmetic expression to evaluate, e.g. (2+3)*4",
			},
		},
		Required: []string{"expression"},
	}
}

func (c *CalculateTool) Execute(_ context.Context, args map[string]any) (string, error) {
	expr, ok := args["expression"].(string)
	if !ok || expr == "" {
		return "", fmt.Errorf("expression is required")
	}
	value, err := evaluate(expr)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s = %s", strings.TrimSpace(expr), formatNumber(value)), nil
}

// UUIDTool generates random UUIDs.
type UUIDTool struct{}

func (u *UUIDTool) Schema() ToolSchema {
	return ToolSchema{
		Name:        "generate_uuid",
		Description: "Generate one or more random version 4 UUIDs",
		Type:        "object",
		Properties: map[string]any{
			"count": map[string]any{
				"type":        "integer",
				"description": "How many UUIDs to generate (1-10, default 1)",
			},
		},
	}
}

func (u *UUIDTool) Execute(_ context.Context, args map[string]any) (string, error) {
	count := 1
	if raw, ok := args["count"].(float64); ok {
		count = int(raw)
	}
	if count < 1 || count > 10 {
		return "", fmt.Errorf("count must be between 1 and 10")
	}
	ids := make([]string, count)
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	return strings.Join(ids, "\n"), nil
}

// Base64Tool encodes or decodes text.
type Base64Tool struct{}

func (b *Base64Tool) Schema() ToolSchema {
	return ToolSchema{
		Name:        "base64_transform",
		Description: "Encode text to base64 or decode base64 back to text",
		Type:        "object",
		Properties: map[string]any{
			"action": map[string]any{
				"type":        "string",
				"description": "Either 'encode' or 'decode'",
			},
			"text": map[string]any{
				"type":        "string",
				"description": "The text to transform",
			},
		},
		Required: []string{"action", "text"},
	}
}

func (b *Base64Tool) Execute(_ context.Context, args map[string]any) (string, error) {
	action, _ := args["action"].(string)
	text, _ := args["text"].(string)
	switch action {
	case "encode":
		return base64.StdEncoding.EncodeToString([]byte(text)), nil
	case "decode":
		decoded, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return "", fmt.Errorf("invalid base64 input: %v", err)
		}
		return string(decoded), nil
	default:
		return "", fmt.Errorf("action must be 'encode' or 'decode', got %q", action)
	}
}

// WeatherTool is a mocked external lookup. It returns deterministic fake
// conditions so the tool round trip can be exercised without a network
// dependency.
type WeatherTool struct{}

func (w *WeatherTool) Schema() ToolSchema {
	return ToolSchema{
		Name:        "get_weather",
		Description: "Get the current weather conditions for a location (mocked data)",
		Type:        "object",
		Properties: map[string]any{
			"location": map[string]any{
				"type":        "string",
				"description": "City name, e.g. New York",
			},
		},
		Required: []string{"location"},
	}
}

func (w *WeatherTool) Execute(_ context.Context, args map[string]any) (string, error) {
	location, ok := args["location"].(string)
	if !ok || location == "" {
		return "", fmt.Errorf("location is required")
	}
	// Deterministic pseudo-conditions keyed off the location name.
	conditions := []string{"Sunny", "Partly cloudy", "Overcast", "Light rain"}
	var sum int
	for _, r := range location {
		sum += int(r)
	}
	temp := 50 + sum%40
	return fmt.Sprintf("Weather in %s: %s, %d°F", location, conditions[sum%len(conditions)], temp), nil
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
