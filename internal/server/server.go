package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatrelay/internal/chat"
	"chatrelay/internal/config"
	"chatrelay/internal/core"
	"chatrelay/internal/tools"
)

// Server owns the HTTP surface: the completion endpoint and the MCP
// introspection endpoints. All collaborators are injected and immutable
// after construction.
type Server struct {
	cfg       *config.Configuration
	responder *chat.Responder
	registry  *tools.Registry
	mcp       *tools.MCPServerManager
	engine    *gin.Engine
}

// New builds the router.
func New(cfg *config.Configuration, responder *chat.Responder, registry *tools.Registry, mcp *tools.MCPServerManager) *Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:       cfg,
		responder: responder,
		registry:  registry,
		mcp:       mcp,
	}

	engine := gin.New()
	engine.Use(requestLogger())
	engine.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"detail": fmt.Sprintf("Error processing request: %v", recovered),
		})
	}))
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:8080", "http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
	}))

	engine.GET("/", s.handleRoot)
	engine.POST("/chat/completions", s.handleChatCompletion)
	engine.GET("/mcp/status", s.handleMCPStatus)
	engine.GET("/mcp/tools", s.handleMCPTools)

	s.engine = engine
	return s
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.engine
}

// Run blocks serving HTTP on the configured port.
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	core.GetLogger().Infof("serving HTTP on %s", addr)
	return s.engine.Run(addr)
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "chatrelay API"})
}

func (s *Server) handleChatCompletion(c *gin.Context) {
	var req ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("Invalid request body: %v", err)})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.API.Timeout)
	defer cancel()

	if req.Stream {
		s.streamCompletion(c, ctx, req)
		return
	}

	text, _, err := s.responder.Respond(ctx, req.Message, req.UserID, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"detail": fmt.Sprintf("Error processing chat request: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, ChatCompletionResponse{
		Message: ChatMessage{
			ID:        uuid.NewString(),
			Text:      text,
			Sender:    "bot",
			Timestamp: time.Now(),
		},
		Usage: usageFor(req.Message, text),
	})
}

// streamCompletion relays the responder's chunks as SSE frames: content
// frames for each fragment, then a single done frame, or a terminal error
// frame. The responder's channel is drained or abandoned via ctx when the
// client disconnects.
func (s *Server) streamCompletion(c *gin.Context, ctx context.Context, req ChatCompletionRequest) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	id := uuid.NewString()
	chunks := s.responder.RespondStream(ctx, req.Message, req.UserID, nil)

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				s.writeFrame(c, streamFrame{
					ID:        id,
					Type:      "done",
					Timestamp: time.Now().Format(time.RFC3339),
				})
				return
			}
			if chunk.Err != nil {
				s.writeFrame(c, streamFrame{
					Type:  "error",
					Error: chunk.Err.Error(),
				})
				return
			}
			s.writeFrame(c, streamFrame{
				ID:      id,
				Type:    "content",
				Content: chunk.Text,
			})
		case <-c.Request.Context().Done():
			// Client went away; the responder unwinds via ctx.
			return
		}
	}
}

func (s *Server) writeFrame(c *gin.Context, frame streamFrame) {
	_ = sse.Encode(c.Writer, sse.Event{Data: frame})
	c.Writer.Flush()
}

func (s *Server) handleMCPStatus(c *gin.Context) {
	schemas := s.registry.Schemas()
	names := make([]string, len(schemas))
	for i, schema := range schemas {
		names[i] = schema.Name
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"server_name":     s.mcp.ServerName(),
		"version":         s.mcp.Version(),
		"tools_count":     len(schemas),
		"resources_count": 0,
		"tools":           names,
		"mcp_available":   s.mcp.Available(),
	})
}

func (s *Server) handleMCPTools(c *gin.Context) {
	schemas := s.registry.Schemas()
	c.JSON(http.StatusOK, gin.H{
		"tools": schemas,
		"count": len(schemas),
	})
}

// usageFor approximates token counts with whitespace word counts.
func usageFor(prompt, completion string) Usage {
	p := len(strings.Fields(prompt))
	c := len(strings.Fields(completion))
	return Usage{
		PromptTokens:     p,
		CompletionTokens: c,
		TotalTokens:      p + c,
	}
}

// requestLogger logs each request through the shared zap logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		core.GetLogger().Infow("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
