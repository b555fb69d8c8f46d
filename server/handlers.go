package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/core"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/evaluation"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/knowledge"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/pipeline"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/prompt"
)

// Knowledge chunks

func (s *Server) createChunk(c *gin.Context) {
	var chunk knowledge.Chunk
	if err := c.ShouldBindJSON(&chunk); err != nil {
		badRequest(c, "invalid chunk payload: "+err.Error())
		return
	}
	if chunk.Content == "" {
		badRequest(c, "content is required")
		return
	}

	id, err := s.knowledge.StoreChunk(c.Request.Context(), &chunk)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) createChunksBatch(c *gin.Context) {
	var chunks []*knowledge.Chunk
	if err := c.ShouldBindJSON(&chunks); err != nil {
		badRequest(c, "invalid batch payload: "+err.Error())
		return
	}
	if len(chunks) == 0 {
		badRequest(c, "at least one chunk is required")
		return
	}

	ids, err := s.knowledge.StoreChunksBatch(c.Request.Context(), chunks)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ids": ids})
}

func (s *Server) getChunk(c *gin.Context) {
	chunk, err := s.knowledge.GetChunk(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chunk)
}

func (s *Server) updateChunk(c *gin.Context) {
	var chunk knowledge.Chunk
	if err := c.ShouldBindJSON(&chunk); err != nil {
		badRequest(c, "invalid chunk payload: "+err.Error())
		return
	}
	if chunk.ID != "" && chunk.ID != c.Param("id") {
		badRequest(c, "body id does not match path id")
		return
	}
	chunk.ID = c.Param("id")

	if err := s.knowledge.UpdateChunk(c.Request.Context(), &chunk); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chunk)
}

func (s *Server) deleteChunk(c *gin.Context) {
	if err := s.knowledge.DeleteChunk(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) searchChunks(c *gin.Context) {
	var query knowledge.Query
	if err := c.ShouldBindJSON(&query); err != nil {
		badRequest(c, "invalid query payload: "+err.Error())
		return
	}
	if query.Query == "" {
		badRequest(c, "query is required")
		return
	}

	chunks, err := s.knowledge.RetrieveSimilar(c.Request.Context(), query)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunks": chunks})
}

// Memories

type createMemoryRequest struct {
	CharacterID string                 `json:"character_id"`
	Content     string                 `json:"content"`
	Source      string                 `json:"source"`
	Importance  int                    `json:"importance"`
	Metadata    map[string]interface{} `json:"metadata"`
}

func (s *Server) createMemory(c *gin.Context) {
	var req createMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid memory payload: "+err.Error())
		return
	}
	if req.CharacterID == "" || req.Content == "" {
		badRequest(c, "character_id and content are required")
		return
	}
	if req.Importance < 1 || req.Importance > 10 {
		badRequest(c, "importance must be between 1 and 10")
		return
	}

	id, err := s.memories.CreateMemory(c.Request.Context(), req.CharacterID, req.Content, req.Source, req.Importance, req.Metadata)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) getMemory(c *gin.Context) {
	mem, err := s.memories.GetMemory(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mem)
}

func (s *Server) updateMemory(c *gin.Context) {
	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		badRequest(c, "invalid update payload: "+err.Error())
		return
	}
	if len(updates) == 0 {
		badRequest(c, "no fields to update")
		return
	}

	if err := s.memories.UpdateMemory(c.Request.Context(), c.Param("id"), updates); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteMemory(c *gin.Context) {
	if err := s.memories.DeleteMemory(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type searchMemoriesRequest struct {
	CharacterID string `json:"character_id"`
	Query       string `json:"query"`
	Limit       int    `json:"limit"`
}

func (s *Server) searchMemories(c *gin.Context) {
	var req searchMemoriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid search payload: "+err.Error())
		return
	}
	if req.CharacterID == "" || req.Query == "" {
		badRequest(c, "character_id and query are required")
		return
	}

	memories, err := s.memories.SearchMemories(c.Request.Context(), req.CharacterID, req.Query, req.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memories": memories})
}

func (s *Server) characterMemories(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	memories, err := s.memories.CharacterMemories(
		c.Request.Context(),
		c.Param("character_id"),
		limit,
		c.DefaultQuery("sort_by", "importance"),
		c.Query("source"),
	)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memories": memories})
}

// Prompt templates, versions, experiments

func (s *Server) createTemplate(c *gin.Context) {
	var tpl prompt.Template
	if err := c.ShouldBindJSON(&tpl); err != nil {
		badRequest(c, "invalid template payload: "+err.Error())
		return
	}
	if tpl.Name == "" || tpl.Template == "" {
		badRequest(c, "name and template are required")
		return
	}

	id, err := s.prompts.CreateTemplate(c.Request.Context(), &tpl)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) listTemplates(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	templates, err := s.prompts.ListTemplates(c.Request.Context(), c.QueryArray("tag"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

func (s *Server) getTemplate(c *gin.Context) {
	tpl, err := s.prompts.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (s *Server) updateTemplate(c *gin.Context) {
	var tpl prompt.Template
	if err := c.ShouldBindJSON(&tpl); err != nil {
		badRequest(c, "invalid template payload: "+err.Error())
		return
	}
	if tpl.ID != "" && tpl.ID != c.Param("id") {
		badRequest(c, "body id does not match path id")
		return
	}
	tpl.ID = c.Param("id")

	if err := s.prompts.UpdateTemplate(c.Request.Context(), &tpl); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (s *Server) deleteTemplate(c *gin.Context) {
	if err := s.prompts.DeleteTemplate(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listVersions(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	versions, err := s.prompts.VersionsForTemplate(c.Request.Context(), c.Param("id"), activeOnly)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

func (s *Server) createVersion(c *gin.Context) {
	var v prompt.Version
	if err := c.ShouldBindJSON(&v); err != nil {
		badRequest(c, "invalid version payload: "+err.Error())
		return
	}
	if v.TemplateID == "" || v.Template == "" {
		badRequest(c, "prompt_template_id and template are required")
		return
	}

	id, err := s.prompts.CreateVersion(c.Request.Context(), &v)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) getVersion(c *gin.Context) {
	v, err := s.prompts.GetVersion(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) updateVersionMetrics(c *gin.Context) {
	var metrics map[string]interface{}
	if err := c.ShouldBindJSON(&metrics); err != nil {
		badRequest(c, "invalid metrics payload: "+err.Error())
		return
	}

	if err := s.prompts.UpdatePerformanceMetrics(c.Request.Context(), c.Param("id"), metrics); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) createExperiment(c *gin.Context) {
	var exp prompt.Experiment
	if err := c.ShouldBindJSON(&exp); err != nil {
		badRequest(c, "invalid experiment payload: "+err.Error())
		return
	}
	if exp.Name == "" || len(exp.VersionIDs) == 0 {
		badRequest(c, "name and prompt_versions are required")
		return
	}

	id, err := s.prompts.CreateExperiment(c.Request.Context(), &exp)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) activeExperiments(c *gin.Context) {
	experiments, err := s.prompts.ActiveExperiments(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"experiments": experiments})
}

func (s *Server) getExperiment(c *gin.Context) {
	exp, err := s.prompts.GetExperiment(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, exp)
}

func (s *Server) completeExperiment(c *gin.Context) {
	if err := s.prompts.CompleteExperiment(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Conversations

type createConversationRequest struct {
	ParticipantIDs []string               `json:"participant_ids"`
	Metadata       map[string]interface{} `json:"metadata"`
}

func (s *Server) createConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid conversation payload: "+err.Error())
		return
	}
	if len(req.ParticipantIDs) == 0 {
		badRequest(c, "participant_ids is required")
		return
	}

	id, err := s.conversations.Create(c.Request.Context(), req.ParticipantIDs, req.Metadata)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) getConversation(c *gin.Context) {
	conv, err := s.conversations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *Server) addMessage(c *gin.Context) {
	var msg core.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		badRequest(c, "invalid message payload: "+err.Error())
		return
	}
	if msg.Role == "" || msg.Content == "" {
		badRequest(c, "role and content are required")
		return
	}

	if err := s.conversations.AddMessage(c.Request.Context(), c.Param("id"), msg); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) recentMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	msgs, err := s.conversations.RecentMessages(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// Dialogue

func (s *Server) runPipeline(c *gin.Context) {
	var req core.DialogueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid dialogue payload: "+err.Error())
		return
	}
	if req.CharacterID == "" || req.UserMessage == "" {
		badRequest(c, "character_id and user_message are required")
		return
	}

	result := s.runner.Run(c.Request.Context(), pipeline.NewState(
		req.UserMessage, req.CharacterID, req.ConversationID, req.PromptVersionID, req.Context,
	))
	c.JSON(http.StatusOK, result)
}

func (s *Server) generateDialogue(c *gin.Context) {
	var req core.DialogueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid dialogue payload: "+err.Error())
		return
	}
	if req.CharacterID == "" || req.UserMessage == "" {
		badRequest(c, "character_id and user_message are required")
		return
	}

	c.JSON(http.StatusOK, s.generator.Generate(c.Request.Context(), req))
}

// Evaluation

func (s *Server) evaluate(c *gin.Context) {
	var req evaluation.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid evaluation payload: "+err.Error())
		return
	}
	if req.Query == "" || req.GeneratedResponse == "" {
		badRequest(c, "query and generated_response are required")
		return
	}

	result, err := s.evaluator.Evaluate(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) evaluationSummary(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	summary, err := s.evaluator.Summarize(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
