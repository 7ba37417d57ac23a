package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"chatrelay/internal/chat"
	"chatrelay/internal/config"
	"chatrelay/internal/llm"
	"chatrelay/internal/tools"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Configuration{
		Server: &config.ServerConfig{Port: 8000, Environment: "development"},
		Model: &config.ModelConfig{
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   1024,
			Temperature: 0.7,
			TopP:        1.0,
		},
		API:   &config.APIConfig{Timeout: 30 * time.Second},
		Tools: &config.ToolConfig{MaxToolRounds: 10},
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry); err != nil {
		t.Fatalf("builtins: %v", err)
	}

	// No API key: the gateway reports unavailable and every completion
	// degrades to echo, which keeps these tests offline.
	gateway := llm.NewAnthropic(cfg.API, cfg.Model)
	responder := chat.NewResponder(gateway, registry, cfg.Tools.MaxToolRounds)
	mcp := tools.NewMCPServerManager(nil)

	return New(cfg, responder, registry, mcp)
}

func postJSON(t *testing.T, srv *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func getPath(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestRootEndpoint(t *testing.T) {
	srv := testServer(t)
	w := getPath(t, srv, "/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chatrelay API")
}

func TestChatCompletionEcho(t *testing.T) {
	srv := testServer(t)
	w := postJSON(t, srv, "/chat/completions", `{"message": "Hello, test!", "user_id": "u1"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp ChatCompletionResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Echo: Hello, test!\n\nNote: AI service is not available (no API key configured). This is an echo response.", resp.Message.Text)
	assert.Equal(t, "bot", resp.Message.Sender)
	assert.NotEmpty(t, resp.Message.ID)
	assert.False(t, resp.Message.Timestamp.IsZero())

	// "Hello, test!" is two whitespace words.
	assert.Equal(t, 2, resp.Usage.PromptTokens)
	assert.Equal(t, resp.Usage.PromptTokens+resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
}

func TestChatCompletionEmptyMessage(t *testing.T) {
	srv := testServer(t)
	w := postJSON(t, srv, "/chat/completions", `{"message": ""}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp ChatCompletionResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.Message.Text, "Echo: "))
	assert.Equal(t, 0, resp.Usage.PromptTokens)
}

func TestChatCompletionMalformedBody(t *testing.T) {
	srv := testServer(t)
	w := postJSON(t, srv, "/chat/completions", `{"message": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "detail")
}

func decodeFrames(t *testing.T, body string) []streamFrame {
	t.Helper()
	var frames []streamFrame
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var frame streamFrame
		payload := strings.TrimPrefix(line, "data:")
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			t.Fatalf("bad frame %q: %v", line, err)
		}
		frames = append(frames, frame)
	}
	return frames
}

func TestChatCompletionStreaming(t *testing.T) {
	srv := testServer(t)
	w := postJSON(t, srv, "/chat/completions", `{"message": "Hi", "stream": true}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))

	frames := decodeFrames(t, w.Body.String())
	assert.NotEmpty(t, frames)

	var reassembled strings.Builder
	var done int
	for _, frame := range frames {
		switch frame.Type {
		case "content":
			reassembled.WriteString(frame.Content)
		case "done":
			done++
			assert.NotEmpty(t, frame.Timestamp)
		case "error":
			t.Fatalf("unexpected error frame: %s", frame.Error)
		}
	}
	assert.Equal(t, 1, done, "exactly one done frame")
	assert.Equal(t, "Echo: Hi\n\nNote: AI service is not available (no API key configured). This is an echo response.", reassembled.String())

	// Every content frame shares the same stream id, and done carries it too.
	id := frames[0].ID
	for _, frame := range frames {
		assert.Equal(t, id, frame.ID)
	}
}

func TestMCPStatus(t *testing.T) {
	srv := testServer(t)
	w := getPath(t, srv, "/mcp/status")
	assert.Equal(t, http.StatusOK, w.Code)

	var status map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status["status"])
	assert.Equal(t, float64(5), status["tools_count"])
	assert.Equal(t, float64(0), status["resources_count"])
	assert.Equal(t, false, status["mcp_available"])

	names, ok := status["tools"].([]any)
	assert.True(t, ok)
	assert.Contains(t, names, "calculate")
	assert.Contains(t, names, "get_weather")
}

func TestMCPTools(t *testing.T) {
	srv := testServer(t)
	w := getPath(t, srv, "/mcp/tools")
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Tools []tools.ToolSchema `json:"tools"`
		Count int                `json:"count"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 5, body.Count)
	assert.Len(t, body.Tools, 5)
	for _, schema := range body.Tools {
		assert.NotEmpty(t, schema.Name)
		assert.Equal(t, "object", schema.Type)
	}
}

func TestUsageFor(t *testing.T) {
	u := usageFor("Hello, test!", "one two three")
	assert.Equal(t, 2, u.PromptTokens)
	assert.Equal(t, 3, u.CompletionTokens)
	assert.Equal(t, 5, u.TotalTokens)

	u = usageFor("", "")
	assert.Equal(t, 0, u.TotalTokens)
}
