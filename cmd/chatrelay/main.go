package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mazznoer/colorgrad"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"chatrelay/internal/chat"
	"chatrelay/internal/config"
	"chatrelay/internal/core"
	"chatrelay/internal/llm"
	"chatrelay/internal/server"
	"chatrelay/internal/tools"
)

const version = "1.0.0"

func main() {
	fmt.Printf("%s\n", getBanner())

	app := &cli.Command{
		Name:    "chatrelay",
		Usage:   "HTTP chat relay for LLM completions with MCP tools",
		Version: version,
		Flags:   config.GetFlags(),
		Action:  runServer,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		// Print to stderr first in case logger isn't initialized
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		zap.S().Fatal(err)
	}
}

func getBanner() string {
	banner := `
       _               _                   _
   ___| |__   __ _ ___| |_ _ __ ___ ___ __| |__ _ _  _
  / __| '_ \ / _' |_  /| __| '__/ _ \ |/ _' |/ _' | || |
 | (__| | | | (_| |/ /_| |_| | |  __/ | (_| | (_| | || |
  \___|_| |_|\__,_|____|\__|_|  \___|_|\__,_|\__,_|\__,|
                                                   |__/  [v` + version + `]
`
	grad, _ := colorgrad.NewGradient().
		HtmlColors("#20c05bff", "#fdfdfdff").
		Build()

	lines := strings.Split(banner, "\n")

	// Find max line length for gradient spread
	maxLen := 0
	for _, line := range lines {
		if len(line) > maxLen {
			maxLen = len(line)
		}
	}

	colors := grad.Colors(uint(maxLen))
	var coloredBanner strings.Builder

	for _, line := range lines {
		for i, ch := range line {
			r, g, b, _ := colors[i].RGBA255()
			coloredBanner.WriteString(fmt.Sprintf("\x1b[38;2;%d;%d;%dm%c", r, g, b, ch))
		}
		coloredBanner.WriteString("\x1b[0m\n")
	}

	return coloredBanner.String()
}

func runServer(ctx context.Context, c *cli.Command) error {
	cfg := config.NewConfiguration(c)
	core.InitLogger(cfg.Server.Verbose)
	defer func() { _ = zap.L().Sync() }()

	if cfg.Server.Verbose {
		cfg.PrintConfig()
	}

	logger := core.GetLogger()
	logger.Infof("starting in %s mode", cfg.Server.Environment)
	if cfg.API.AnthropicKey != "" {
		logger.Infof("model integration enabled: %s", cfg.Model.Model)
	} else {
		logger.Warn("model integration disabled, completions will echo")
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry); err != nil {
		return err
	}

	mcpConfig, err := tools.LoadMCPConfig(cfg.Tools.ConfigPath)
	if err != nil {
		return err
	}
	mcpManager := tools.NewMCPServerManager(mcpConfig)
	mcpManager.Connect(ctx, registry)
	defer mcpManager.Close()

	gateway := llm.NewAnthropic(cfg.API, cfg.Model)
	responder := chat.NewResponder(gateway, registry, cfg.Tools.MaxToolRounds)

	return server.New(cfg, responder, registry, mcpManager).Run()
}
