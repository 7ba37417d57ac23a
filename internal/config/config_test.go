package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/urfave/cli/v3"
)

// clearEnv scrubs every variable the flag sources read, so a developer's
// shell cannot leak into assertions. t.Setenv registers the restore; the
// unset removes the variable for the test body.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"CHATRELAY_CONFIG", "CHATRELAY_PORT", "PORT",
		"CHATRELAY_ENVIRONMENT", "CHATRELAY_VERBOSE",
		"CHATRELAY_ANTHROPICKEY", "ANTHROPIC_API_KEY",
		"CHATRELAY_APITIMEOUT", "CHATRELAY_MODEL",
		"CHATRELAY_MAXTOKENS", "CHATRELAY_TEMPERATURE", "CHATRELAY_TOP_P",
		"CHATRELAY_TOOLCONFIG", "CHATRELAY_MAXTOOLROUNDS",
	}
	for _, key := range keys {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func TestYamlSourceLookup(t *testing.T) {
	source := &YamlSource{
		data: map[string]any{
			"port":    9000,
			"model":   "claude-sonnet-4-20250514",
			"origins": []any{"http://a", "http://b"},
		},
		key: "port",
	}
	v, ok := source.Lookup()
	assert.True(t, ok)
	assert.Equal(t, "9000", v)

	source.key = "origins"
	v, ok = source.Lookup()
	assert.True(t, ok)
	assert.Equal(t, "http://a,http://b", v)

	source.key = "missing"
	_, ok = source.Lookup()
	assert.False(t, ok)
}

func TestNewConfigurationDefaults(t *testing.T) {
	clearEnv(t)
	var cfg *Configuration
	cmd := &cli.Command{
		Name:  "test",
		Flags: GetFlags(),
		Action: func(_ context.Context, c *cli.Command) error {
			cfg = NewConfiguration(c)
			return nil
		},
	}
	assert.NoError(t, cmd.Run(context.Background(), []string{"test"}))

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.False(t, cfg.Server.Verbose)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Model.Model)
	assert.Equal(t, 1024, cfg.Model.MaxTokens)
	assert.InDelta(t, 0.7, float64(cfg.Model.Temperature), 0.001)
	assert.InDelta(t, 1.0, float64(cfg.Model.TopP), 0.001)
	assert.Equal(t, 5*time.Minute, cfg.API.Timeout)
	assert.Empty(t, cfg.API.AnthropicKey)
	assert.Equal(t, 10, cfg.Tools.MaxToolRounds)
}

func TestNewConfigurationFlags(t *testing.T) {
	clearEnv(t)
	var cfg *Configuration
	cmd := &cli.Command{
		Name:  "test",
		Flags: GetFlags(),
		Action: func(_ context.Context, c *cli.Command) error {
			cfg = NewConfiguration(c)
			return nil
		},
	}
	args := []string{"test", "--port", "9001", "--environment", "production", "--maxtoolrounds", "3"}
	assert.NoError(t, cmd.Run(context.Background(), args))

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "production", cfg.Server.Environment)
	assert.Equal(t, 3, cfg.Tools.MaxToolRounds)
}

func TestNewConfigurationEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-123")
	t.Setenv("CHATRELAY_PORT", "9099")

	var cfg *Configuration
	cmd := &cli.Command{
		Name:  "test",
		Flags: GetFlags(),
		Action: func(_ context.Context, c *cli.Command) error {
			cfg = NewConfiguration(c)
			return nil
		},
	}
	assert.NoError(t, cmd.Run(context.Background(), []string{"test"}))

	assert.Equal(t, "sk-test-123", cfg.API.AnthropicKey)
	assert.Equal(t, 9099, cfg.Server.Port)
}
