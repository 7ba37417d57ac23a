package server

import "time"

// ChatCompletionRequest is the body of POST /chat/completions.
type ChatCompletionRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
	Stream  bool   `json:"stream"`
}

// ChatMessage is one turn in a conversation as shaped for the wire.
type ChatMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// Usage carries coarse token accounting for one completion. Counts are
// whitespace word counts, not true tokenizer output.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionResponse is the non-streaming response envelope.
type ChatCompletionResponse struct {
	Message ChatMessage `json:"message"`
	Usage   Usage       `json:"usage"`
}

// streamFrame is the JSON payload of one SSE data frame.
type streamFrame struct {
	ID        string `json:"id,omitempty"`
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}
