package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Configuration struct {
	Server *ServerConfig
	Model  *ModelConfig
	API    *APIConfig
	Tools  *ToolConfig
}

type ServerConfig struct {
	Port        int
	Environment string
	Verbose     bool
}

type ModelConfig struct {
	Model       string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

type APIConfig struct {
	AnthropicKey string
	Timeout      time.Duration
}

type ToolConfig struct {
	ConfigPath    string
	MaxToolRounds int
}

// YamlSource implements cli.ValueSource for a map loaded from YAML
type YamlSource struct {
	data map[string]any
	key  string
}

func (y *YamlSource) Lookup() (string, bool) {
	if v, ok := y.data[y.key]; ok {
		// Handle slices by joining with comma
		if slice, ok := v.([]any); ok {
			var strs []string
			for _, item := range slice {
				strs = append(strs, fmt.Sprintf("%v", item))
			}
			return strings.Join(strs, ","), true
		}
		return fmt.Sprintf("%v", v), true
	}
	return "", false
}

func (y *YamlSource) String() string   { return "yaml" }
func (y *YamlSource) GoString() string { return "yaml" }

func GetFlags() []cli.Flag {
	// Pre-parse config path
	configPath := getConfigPath()
	var configData map[string]any
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err == nil {
			_ = yaml.Unmarshal(data, &configData)
		} else {
			fmt.Fprintf(os.Stderr, "Warning: failed to read config file %s: %v\n", configPath, err)
		}
	}

	// Helper to create sources: EnvVar > YAML > Default
	src := func(key string, env ...string) cli.ValueSourceChain {
		chain := cli.ValueSourceChain{}
		for _, e := range env {
			chain.Chain = append(chain.Chain, cli.EnvVar(e))
		}
		if configData != nil {
			chain.Chain = append(chain.Chain, &YamlSource{data: configData, key: key})
		}
		return chain
	}

	return []cli.Flag{
		// Config file
		&cli.StringFlag{Name: "config", Aliases: []string{"b"}, Usage: "use the named configuration file", Sources: cli.EnvVars("CHATRELAY_CONFIG")},

		// HTTP Server Configuration
		&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8000, Usage: "port to serve the HTTP API on", Sources: src("port", "CHATRELAY_PORT", "PORT")},
		&cli.StringFlag{Name: "environment", Aliases: []string{"e"}, Value: "development", Usage: "environment tag (development, production)", Sources: src("environment", "CHATRELAY_ENVIRONMENT")},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"V"}, Usage: "enable verbose logging of requests and configuration", Sources: src("verbose", "CHATRELAY_VERBOSE")},

		// API Configuration
		&cli.StringFlag{Name: "anthropickey", Usage: "Anthropic API key", Sources: src("anthropickey", "CHATRELAY_ANTHROPICKEY", "ANTHROPIC_API_KEY")},
		&cli.DurationFlag{Name: "apitimeout", Aliases: []string{"t"}, Value: time.Minute * 5, Usage: "timeout for each completion request", Sources: src("apitimeout", "CHATRELAY_APITIMEOUT")},

		// Model Configuration
		&cli.StringFlag{Name: "model", Value: "claude-sonnet-4-20250514", Usage: "model to be used for responses", Sources: src("model", "CHATRELAY_MODEL")},
		&cli.IntFlag{Name: "maxtokens", Value: 1024, Usage: "maximum number of tokens to generate", Sources: src("maxtokens", "CHATRELAY_MAXTOKENS")},
		&cli.FloatFlag{Name: "temperature", Value: 0.7, Usage: "temperature for the completion", Sources: src("temperature", "CHATRELAY_TEMPERATURE")},
		&cli.FloatFlag{Name: "top_p", Value: 1.0, Usage: "top P value for the completion", Sources: src("top_p", "CHATRELAY_TOP_P")},

		// Tool Configuration
		&cli.StringFlag{Name: "toolconfig", Usage: "path to the MCP tool configuration file (JSON)", Sources: src("toolconfig", "CHATRELAY_TOOLCONFIG")},
		&cli.IntFlag{Name: "maxtoolrounds", Value: 10, Usage: "maximum number of tool-use rounds per completion", Sources: src("maxtoolrounds", "CHATRELAY_MAXTOOLROUNDS")},
	}
}

func getConfigPath() string {
	// Check env first
	if v := os.Getenv("CHATRELAY_CONFIG"); v != "" {
		return v
	}
	// Check args
	for i, arg := range os.Args {
		if arg == "--config" || arg == "-b" {
			if i+1 < len(os.Args) {
				return os.Args[i+1]
			}
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}

func (c *Configuration) PrintConfig() {
	fmt.Printf("port: %d\n", c.Server.Port)
	fmt.Printf("environment: %s\n", c.Server.Environment)
	fmt.Printf("verbose: %t\n", c.Server.Verbose)
	if len(c.API.AnthropicKey) > 3 && c.API.AnthropicKey != "" {
		fmt.Printf("anthropickey: %s\n", strings.Repeat("*", len(c.API.AnthropicKey)-3)+c.API.AnthropicKey[len(c.API.AnthropicKey)-3:])
	} else {
		fmt.Printf("anthropickey: %s\n", c.API.AnthropicKey)
	}
	fmt.Printf("apitimeout: %s\n", c.API.Timeout)
	fmt.Printf("model: %s\n", c.Model.Model)
	fmt.Printf("maxtokens: %d\n", c.Model.MaxTokens)
	fmt.Printf("temperature: %f\n", c.Model.Temperature)
	fmt.Printf("topp: %f\n", c.Model.TopP)
	fmt.Printf("toolconfig: %s\n", c.Tools.ConfigPath)
	fmt.Printf("maxtoolrounds: %d\n", c.Tools.MaxToolRounds)
}

func NewConfiguration(c *cli.Command) *Configuration {
	if c.IsSet("config") {
		zap.S().Infow("Using config file", "path", c.String("config"))
	}

	config := &Configuration{
		Server: &ServerConfig{
			Port:        c.Int("port"),
			Environment: c.String("environment"),
			Verbose:     c.Bool("verbose"),
		},
		Model: &ModelConfig{
			Model:       c.String("model"),
			MaxTokens:   c.Int("maxtokens"),
			Temperature: float32(c.Float("temperature")),
			TopP:        float32(c.Float("top_p")),
		},
		API: &APIConfig{
			AnthropicKey: c.String("anthropickey"),
			Timeout:      c.Duration("apitimeout"),
		},
		Tools: &ToolConfig{
			ConfigPath:    c.String("toolconfig"),
			MaxToolRounds: c.Int("maxtoolrounds"),
		},
	}

	return config
}
