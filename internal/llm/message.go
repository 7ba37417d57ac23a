package llm

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType discriminates the content block variants.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is a tagged union of the block kinds a model response or a
// conversation entry can carry. Exactly the fields for the given Type are
// populated.
type ContentBlock struct {
	Type BlockType

	// BlockText
	Text string

	// BlockToolUse
	ID    string
	Name  string
	Input map[string]any

	// BlockToolResult
	ToolUseID string
	Content   string
}

// TextBlock builds a plain-text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock builds a tool-invocation content block.
func ToolUseBlock(id, name string, input map[string]any) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock builds a tool-result content block.
func ToolResultBlock(toolUseID, content string) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content}
}

// Message is one role-tagged entry in a conversation history.
type Message struct {
	Role   Role
	Blocks []ContentBlock
}

// UserMessage builds a user entry holding a single text block.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Blocks: []ContentBlock{TextBlock(text)}}
}

// AssistantMessage builds an assistant entry from the given blocks.
func AssistantMessage(blocks ...ContentBlock) Message {
	return Message{Role: RoleAssistant, Blocks: blocks}
}

// ToolResultMessage builds the user-role entry that feeds a tool result back
// to the model, tagged with the originating call id.
func ToolResultMessage(toolUseID, content string) Message {
	return Message{Role: RoleUser, Blocks: []ContentBlock{ToolResultBlock(toolUseID, content)}}
}

// Text returns the concatenation of all plain-text blocks in the message.
func (m Message) Text() string {
	var out string
	for _, b := range m.Blocks {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// Response is a completed model turn: an ordered sequence of content blocks.
type Response struct {
	Blocks []ContentBlock
}

// FirstToolUse returns the first tool-use block, if any.
func (r *Response) FirstToolUse() (ContentBlock, bool) {
	for _, b := range r.Blocks {
		if b.Type == BlockToolUse {
			return b, true
		}
	}
	return ContentBlock{}, false
}
