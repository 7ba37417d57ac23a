package llm

import (
	"context"

	"chatrelay/internal/tools"
)

// StreamEventType discriminates the incremental events of a streaming
// completion.
type StreamEventType string

const (
	// EventTextDelta carries an incremental text fragment.
	EventTextDelta StreamEventType = "text_delta"
	// EventToolUseStart opens a tool invocation (call id + tool name).
	EventToolUseStart StreamEventType = "tool_use_start"
	// EventToolInputDelta carries a partial JSON fragment of the pending
	// invocation's arguments; fragments concatenate in order.
	EventToolInputDelta StreamEventType = "tool_input_delta"
	// EventDone closes the stream.
	EventDone StreamEventType = "done"
)

// StreamEvent is one incremental event of a streaming completion.
type StreamEvent struct {
	Type StreamEventType

	// EventTextDelta
	Text string

	// EventToolUseStart
	ID   string
	Name string

	// EventToolInputDelta
	PartialJSON string

	// Err is set when the stream terminated abnormally; the channel is
	// closed right after.
	Err error
}

// Gateway is the upstream model contract the conversation loop depends on.
// Implementations must be safe for concurrent use across requests.
type Gateway interface {
	// Available reports whether a provider credential is configured. When
	// false, Complete and Stream fail fast with ErrServiceUnavailable.
	Available() bool

	// Complete issues a single request/response completion. The tool list
	// is omitted from the upstream request when empty.
	Complete(ctx context.Context, history []Message, schemas []tools.ToolSchema) (*Response, error)

	// Stream opens a streaming completion. The returned channel is closed
	// after the terminal event; the caller must drain it or cancel ctx to
	// release the underlying connection.
	Stream(ctx context.Context, history []Message, schemas []tools.ToolSchema) (<-chan StreamEvent, error)
}
