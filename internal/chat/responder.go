package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatrelay/internal/core"
	"chatrelay/internal/llm"
	"chatrelay/internal/tools"
)

// ErrToolRoundsExceeded is returned when the model keeps requesting tools
// past the configured round bound.
var ErrToolRoundsExceeded = errors.New("tool-use rounds exceeded")

// Placeholder is returned when a completion produces no text at all.
const Placeholder = "No response generated"

// Responder orchestrates the request/execute/resubmit cycle between the
// model gateway and the tool registry. It is immutable after construction
// and shared across requests.
type Responder struct {
	gateway       llm.Gateway
	registry      *tools.Registry
	maxToolRounds int
}

// NewResponder wires the conversation loop to its collaborators.
func NewResponder(gateway llm.Gateway, registry *tools.Registry, maxToolRounds int) *Responder {
	if maxToolRounds <= 0 {
		maxToolRounds = 10
	}
	return &Responder{
		gateway:       gateway,
		registry:      registry,
		maxToolRounds: maxToolRounds,
	}
}

// Respond runs the non-streaming conversation loop: complete, detect a tool
// call, execute it, resubmit, until the model stops requesting tools or the
// round bound is hit. The returned history includes any tool round-trips.
func (r *Responder) Respond(ctx context.Context, message, userID string, history []llm.Message) (string, []llm.Message, error) {
	logger := core.WithRequest(core.GetLogger(), "", userID)
	defer core.LogDuration(logger, "completion", time.Now())

	history = appendUserMessage(history, message)
	schemas := r.registry.Schemas()

	var buf strings.Builder
	for round := 0; ; round++ {
		if round > r.maxToolRounds {
			return "", history, fmt.Errorf("%w: %d", ErrToolRoundsExceeded, r.maxToolRounds)
		}

		resp, err := r.gateway.Complete(ctx, history, schemas)
		if err != nil {
			// The first call degrades to echo; a failure deep in a
			// tool-use continuation propagates.
			if round == 0 {
				logger.Warnf("model unavailable, falling back to echo: %v", err)
				return r.echo(message, err), history, nil
			}
			return "", history, err
		}

		toolUse, text := splitResponse(resp)
		buf.WriteString(text)

		if toolUse == nil {
			if buf.Len() == 0 {
				return Placeholder, history, nil
			}
			return buf.String(), history, nil
		}

		logger.Infof("tool-use round %d: %s", round+1, toolUse.Name)
		result := r.invoke(ctx, toolUse.Name, toolUse.Input)

		history = append(history, llm.AssistantMessage(resp.Blocks...))
		history = append(history, llm.ToolResultMessage(toolUse.ID, result))
	}
}

// StreamChunk is one unit of streamed output: an incremental text fragment
// or a terminal error.
type StreamChunk struct {
	Text string
	Err  error
}

// pendingCall accumulates a tool invocation announced mid-stream. Argument
// deltas are partial JSON fragments concatenated in arrival order and parsed
// once the stream ends.
type pendingCall struct {
	id    string
	name  string
	input strings.Builder
}

// RespondStream runs the streaming conversation loop. Text deltas are
// forwarded as soon as they arrive; tool rounds appear to the consumer only
// as a gap in delta delivery. The channel is closed after the final chunk.
func (r *Responder) RespondStream(ctx context.Context, message, userID string, history []llm.Message) <-chan StreamChunk {
	out := make(chan StreamChunk, 10)

	go func() {
		defer close(out)

		logger := core.WithRequest(core.GetLogger(), "", userID)
		defer core.LogDuration(logger, "stream_completion", time.Now())

		// Every send races the context so an abandoned consumer never
		// strands this goroutine on a full buffer.
		send := func(chunk StreamChunk) bool {
			select {
			case out <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		history = appendUserMessage(history, message)
		schemas := r.registry.Schemas()

		produced := false
		for round := 0; ; round++ {
			if round > r.maxToolRounds {
				send(StreamChunk{Err: fmt.Errorf("%w: %d", ErrToolRoundsExceeded, r.maxToolRounds)})
				return
			}

			events, err := r.gateway.Stream(ctx, history, schemas)
			if err != nil {
				if round == 0 {
					logger.Warnf("model unavailable, falling back to echo: %v", err)
					r.streamEcho(ctx, out, message, err)
					return
				}
				send(StreamChunk{Err: err})
				return
			}

			var (
				roundText strings.Builder
				pending   []*pendingCall
				streamErr error
			)
			for ev := range events {
				switch ev.Type {
				case llm.EventTextDelta:
					roundText.WriteString(ev.Text)
					produced = true
					if !send(StreamChunk{Text: ev.Text}) {
						return
					}
				case llm.EventToolUseStart:
					pending = append(pending, &pendingCall{id: ev.ID, name: ev.Name})
				case llm.EventToolInputDelta:
					if len(pending) > 0 {
						pending[len(pending)-1].input.WriteString(ev.PartialJSON)
					}
				case llm.EventDone:
					streamErr = ev.Err
				}
			}

			if streamErr != nil {
				if round == 0 && !produced {
					logger.Warnf("model unavailable, falling back to echo: %v", streamErr)
					r.streamEcho(ctx, out, message, streamErr)
					return
				}
				send(StreamChunk{Err: streamErr})
				return
			}

			if len(pending) == 0 {
				if !produced {
					send(StreamChunk{Text: Placeholder})
				}
				return
			}

			// Close out pending invocations, fold the results into
			// history, and stream the continuation.
			blocks := make([]llm.ContentBlock, 0, len(pending)+1)
			if roundText.Len() > 0 {
				blocks = append(blocks, llm.TextBlock(roundText.String()))
			}
			var results []llm.Message
			for _, call := range pending {
				input := parseCallInput(call)
				blocks = append(blocks, llm.ToolUseBlock(call.id, call.name, input))
				logger.Infof("tool-use round %d: %s", round+1, call.name)
				results = append(results, llm.ToolResultMessage(call.id, r.invoke(ctx, call.name, input)))
			}
			history = append(history, llm.AssistantMessage(blocks...))
			history = append(history, results...)
		}
	}()

	return out
}

// invoke executes a tool through the registry, folding validation failures
// into a result string so the conversation can continue.
func (r *Responder) invoke(ctx context.Context, name string, input map[string]any) string {
	result, err := r.registry.Invoke(ctx, name, anyArgs(input))
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return result
}

// echo is the degraded response used when the model gateway is unavailable
// or fails on the first call of a request.
func (r *Responder) echo(message string, cause error) string {
	return fmt.Sprintf("Echo: %s\n\nNote: AI service is not available (%s). This is an echo response.", message, echoReason(cause))
}

// streamEcho delivers the echo response as incremental fragments.
func (r *Responder) streamEcho(ctx context.Context, out chan<- StreamChunk, message string, cause error) {
	text := r.echo(message, cause)
	const chunkSize = 48
	for len(text) > 0 {
		n := chunkSize
		if n > len(text) {
			n = len(text)
		}
		select {
		case out <- StreamChunk{Text: text[:n]}:
		case <-ctx.Done():
			return
		}
		text = text[n:]
	}
}

func echoReason(cause error) string {
	if cause == nil || errors.Is(cause, llm.ErrServiceUnavailable) {
		return "no API key configured"
	}
	return cause.Error()
}

// appendUserMessage adds the user turn to history unless it duplicates the
// last entry. Continuation rounds pass an empty message; the history already
// carries the state.
func appendUserMessage(history []llm.Message, message string) []llm.Message {
	if message == "" && len(history) > 0 {
		return history
	}
	if n := len(history); n > 0 {
		last := history[n-1]
		if last.Role == llm.RoleUser && last.Text() == message {
			return history
		}
	}
	return append(history, llm.UserMessage(message))
}

// splitResponse walks the blocks in order, returning accumulated text up to
// and including the first tool-use block, which stops the walk.
func splitResponse(resp *llm.Response) (*llm.ContentBlock, string) {
	var text strings.Builder
	for i := range resp.Blocks {
		block := resp.Blocks[i]
		switch block.Type {
		case llm.BlockText:
			text.WriteString(block.Text)
		case llm.BlockToolUse:
			return &block, text.String()
		}
	}
	return nil, text.String()
}

func parseCallInput(call *pendingCall) map[string]any {
	raw := call.input.String()
	if raw == "" {
		return map[string]any{}
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		core.GetLogger().Warnf("failed to parse streamed tool input for %s: %v", call.name, err)
		return map[string]any{}
	}
	return input
}

// anyArgs widens the typed map so the registry's top-level mapping check
// still applies to untyped callers.
func anyArgs(input map[string]any) any {
	if input == nil {
		return map[string]any{}
	}
	return input
}
