// Package server exposes the engine over HTTP: CRUD for knowledge
// chunks, memories, prompts and conversations, the dialogue endpoints,
// the evaluation endpoint, and the WebSocket upgrade for realtime
// events. Handlers validate before touching the stores; not-found maps
// to 404, everything else unexpected to 500.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/dialogue"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/evaluation"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/knowledge"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/memory"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/pipeline"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/prompt"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/realtime"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/store"
)

// Server wires the services behind a gin router.
type Server struct {
	knowledge     *knowledge.Service
	memories      *memory.Service
	prompts       *prompt.Service
	conversations *dialogue.Conversations
	generator     *dialogue.Generator
	runner        *pipeline.Runner
	evaluator     *evaluation.Evaluator
	hub           *realtime.Hub
	upgrader      websocket.Upgrader
}

// New creates a server over the given services.
func New(
	knowledgeSvc *knowledge.Service,
	memories *memory.Service,
	prompts *prompt.Service,
	conversations *dialogue.Conversations,
	generator *dialogue.Generator,
	runner *pipeline.Runner,
	evaluator *evaluation.Evaluator,
	hub *realtime.Hub,
) *Server {
	return &Server{
		knowledge:     knowledgeSvc,
		memories:      memories,
		prompts:       prompts,
		conversations: conversations,
		generator:     generator,
		runner:        runner,
		evaluator:     evaluator,
		hub:           hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		k := api.Group("/knowledge")
		k.POST("", s.createChunk)
		k.POST("/batch", s.createChunksBatch)
		k.POST("/search", s.searchChunks)
		k.GET("/:id", s.getChunk)
		k.PUT("/:id", s.updateChunk)
		k.DELETE("/:id", s.deleteChunk)

		m := api.Group("/memories")
		m.POST("", s.createMemory)
		m.POST("/search", s.searchMemories)
		m.GET("/character/:character_id", s.characterMemories)
		m.GET("/:id", s.getMemory)
		m.PUT("/:id", s.updateMemory)
		m.DELETE("/:id", s.deleteMemory)

		p := api.Group("/prompts")
		p.POST("/templates", s.createTemplate)
		p.GET("/templates", s.listTemplates)
		p.GET("/templates/:id", s.getTemplate)
		p.PUT("/templates/:id", s.updateTemplate)
		p.DELETE("/templates/:id", s.deleteTemplate)
		p.GET("/templates/:id/versions", s.listVersions)
		p.POST("/versions", s.createVersion)
		p.GET("/versions/:id", s.getVersion)
		p.PUT("/versions/:id/metrics", s.updateVersionMetrics)
		p.POST("/experiments", s.createExperiment)
		p.GET("/experiments/active", s.activeExperiments)
		p.GET("/experiments/:id", s.getExperiment)
		p.POST("/experiments/:id/complete", s.completeExperiment)

		c := api.Group("/conversations")
		c.POST("", s.createConversation)
		c.GET("/:id", s.getConversation)
		c.POST("/:id/messages", s.addMessage)
		c.GET("/:id/messages", s.recentMessages)

		api.POST("/dialogue", s.runPipeline)
		api.POST("/dialogue/chat", s.generateDialogue)

		api.POST("/evaluation", s.evaluate)
		api.GET("/evaluation/summary", s.evaluationSummary)
	}

	r.GET("/ws", s.serveWS)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

// Run starts the HTTP listener.
func (s *Server) Run(addr string) error {
	log.Printf("[SERVER] Listening on %s", addr)
	return s.Router().Run(addr)
}

func (s *Server) serveWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[SERVER] WebSocket upgrade failed: %v", err)
		return
	}

	clientID := s.hub.Connect(conn, c.Query("client_id"), c.Query("user_id"), nil)

	// The request context dies as soon as this handler returns, but the
	// connection outlives it; events must run against a context tied to
	// the connection, not the upgrade request.
	go s.hub.Listen(context.Background(), clientID)
}

// fail maps a service error to an HTTP status.
func fail(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
