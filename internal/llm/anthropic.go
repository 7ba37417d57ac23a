package llm

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"chatrelay/internal/config"
	"chatrelay/internal/core"
	"chatrelay/internal/tools"
)

// Anthropic is the Gateway implementation backed by the Anthropic Messages
// API. It holds only the client handle and model settings, so a single
// instance is shared across requests.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	temp      float64
	topP      float64
	available bool
}

// NewAnthropic creates the gateway. With an empty key the gateway reports
// unavailable and both operations fail fast without network I/O.
func NewAnthropic(api *config.APIConfig, model *config.ModelConfig) *Anthropic {
	if api.AnthropicKey == "" {
		core.GetLogger().Warn("no Anthropic API key found, model integration disabled")
	} else {
		core.GetLogger().Infof("Anthropic client initialized, model %s", model.Model)
	}
	return &Anthropic{
		client:    anthropic.NewClient(option.WithAPIKey(api.AnthropicKey)),
		model:     model.Model,
		maxTokens: int64(model.MaxTokens),
		temp:      float64(model.Temperature),
		topP:      float64(model.TopP),
		available: api.AnthropicKey != "",
	}
}

// Available reports whether a provider credential was configured.
func (a *Anthropic) Available() bool {
	return a.available
}

// Complete issues a single request/response completion call.
func (a *Anthropic) Complete(ctx context.Context, history []Message, schemas []tools.ToolSchema) (*Response, error) {
	if !a.available {
		return nil, ErrServiceUnavailable
	}

	params := a.newParams(history, schemas)
	core.GetLogger().Debugf("anthropic: sending request to model %s", a.model)

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		core.GetLogger().Errorf("anthropic: API error: %v", err)
		return nil, classifyError(err)
	}

	return fromAnthropicMessage(message), nil
}

// Stream opens a streaming completion. Events are delivered in order on the
// returned channel, which is closed after the terminal event. Cancelling ctx
// releases the underlying connection.
func (a *Anthropic) Stream(ctx context.Context, history []Message, schemas []tools.ToolSchema) (<-chan StreamEvent, error) {
	if !a.available {
		return nil, ErrServiceUnavailable
	}

	params := a.newParams(history, schemas)
	events := make(chan StreamEvent, 10)

	go func() {
		defer close(events)

		stream := a.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if block, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
					select {
					case events <- StreamEvent{Type: EventToolUseStart, ID: block.ID, Name: block.Name}:
					case <-ctx.Done():
						return
					}
				}
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					select {
					case events <- StreamEvent{Type: EventTextDelta, Text: delta.Text}:
					case <-ctx.Done():
						return
					}
				case anthropic.InputJSONDelta:
					select {
					case events <- StreamEvent{Type: EventToolInputDelta, PartialJSON: delta.PartialJSON}:
					case <-ctx.Done():
						return
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			core.GetLogger().Errorf("anthropic: stream error: %v", err)
			select {
			case events <- StreamEvent{Type: EventDone, Err: classifyError(err)}:
			case <-ctx.Done():
			}
			return
		}

		select {
		case events <- StreamEvent{Type: EventDone}:
		case <-ctx.Done():
		}
	}()

	return events, nil
}

// newParams builds the request. The tools parameter is omitted entirely when
// the schema list is empty; the API rejects an empty tool array.
func (a *Anthropic) newParams(history []Message, schemas []tools.ToolSchema) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		Temperature: anthropic.Float(a.temp),
		TopP:        anthropic.Float(a.topP),
		Messages:    toAnthropicMessages(history),
	}
	if len(schemas) > 0 {
		params.Tools = toAnthropicTools(schemas)
	}
	return params
}

// toAnthropicMessages converts the conversation history to SDK message
// params. Tool results travel as user messages carrying tool_result blocks;
// assistant turns carry text and tool_use blocks.
func toAnthropicMessages(history []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(history))
	for _, msg := range history {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Blocks))
		for _, b := range msg.Blocks {
			switch b.Type {
			case BlockText:
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case BlockToolUse:
				input, err := json.Marshal(b.Input)
				if err != nil {
					input = []byte("{}")
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    b.ID,
						Name:  b.Name,
						Input: json.RawMessage(input),
					},
				})
			case BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, false))
			}
		}
		switch msg.Role {
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

// toAnthropicTools converts registry schemas to SDK tool params.
func toAnthropicTools(schemas []tools.ToolSchema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(schemas))
	for i, s := range schemas {
		out[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        s.Name,
				Description: anthropic.String(s.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: s.Properties,
					Required:   s.Required,
				},
			},
		}
	}
	return out
}

// fromAnthropicMessage converts an SDK response into the tagged block
// sequence the conversation loop walks.
func fromAnthropicMessage(message *anthropic.Message) *Response {
	resp := &Response{}
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			resp.Blocks = append(resp.Blocks, TextBlock(block.AsText().Text))
		case "tool_use":
			tu := block.AsToolUse()
			var input map[string]any
			if err := json.Unmarshal(tu.Input, &input); err != nil {
				core.GetLogger().Warnf("anthropic: failed to parse tool input for %s: %v", tu.Name, err)
				input = map[string]any{}
			}
			resp.Blocks = append(resp.Blocks, ToolUseBlock(tu.ID, tu.Name, input))
		}
	}
	return resp
}
