package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/dialogue"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/embedding"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/evaluation"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/knowledge"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/memory"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/pipeline"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/prompt"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/realtime"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/server"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/store/memdb"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/vector"
)

type stubIndex struct{}

func (stubIndex) Add(ctx context.Context, scope string, entry vector.Entry) error { return nil }

func (stubIndex) Query(ctx context.Context, scope string, emb []float32, limit int, where map[string]string) ([]vector.Result, error) {
	return nil, nil
}

func (stubIndex) Delete(ctx context.Context, scope, id string) error { return nil }

type stubProvider struct {
	response string
}

func (s *stubProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int64) (string, error) {
	return s.response, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	return newRouterWith(t, &stubProvider{response: "Naturally."})
}

func newRouterWith(t *testing.T, provider dialogue.Provider) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := memdb.New()
	embedder := embedding.NewOfflineEmbedder(32)

	knowledgeSvc := knowledge.NewService(db, stubIndex{}, embedder, nil)
	memorySvc := memory.NewService(db, stubIndex{}, embedder, nil)
	promptSvc := prompt.NewService(db, nil)
	conversations := dialogue.NewConversations(db, "")
	generator := dialogue.NewGenerator(db, conversations, knowledgeSvc, promptSvc, provider, nil)
	runner := pipeline.NewRunner(db, knowledgeSvc, memorySvc, conversations, promptSvc, provider, nil)
	evaluator := evaluation.NewEvaluator(db, embedder, nil)
	hub := realtime.NewHub(runner)

	return server.New(knowledgeSvc, memorySvc, promptSvc, conversations, generator, runner, evaluator, hub).Router()
}

func do(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)
	w := do(t, router, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestKnowledgeLifecycle(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/knowledge", map[string]interface{}{
		"source":  "wiki",
		"content": "The arc reactor powers the suit.",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	json.Unmarshal(w.Body.Bytes(), &created)

	w = do(t, router, http.MethodGet, "/api/knowledge/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("get: expected 200, got %d", w.Code)
	}

	w = do(t, router, http.MethodDelete, "/api/knowledge/"+created.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", w.Code)
	}

	w = do(t, router, http.MethodGet, "/api/knowledge/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get deleted: expected 404, got %d", w.Code)
	}
}

func TestCreateChunk_RequiresContent(t *testing.T) {
	router := newTestRouter(t)
	w := do(t, router, http.MethodPost, "/api/knowledge", map[string]interface{}{"source": "wiki"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestUpdateChunk_IDMismatch(t *testing.T) {
	router := newTestRouter(t)
	w := do(t, router, http.MethodPut, "/api/knowledge/abc", map[string]interface{}{
		"id":      "different",
		"content": "x",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestCreateMemory_ValidatesImportance(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/memories", map[string]interface{}{
		"character_id": "character_thor",
		"content":      "something",
		"importance":   0,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("importance 0: expected 400, got %d", w.Code)
	}

	w = do(t, router, http.MethodPost, "/api/memories", map[string]interface{}{
		"character_id": "character_thor",
		"content":      "something",
		"importance":   5,
	})
	if w.Code != http.StatusCreated {
		t.Errorf("valid memory: expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestMemoryNotFoundMapsTo404(t *testing.T) {
	router := newTestRouter(t)
	w := do(t, router, http.MethodGet, "/api/memories/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestRunPipeline(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/dialogue", map[string]interface{}{
		"character_id": "character_iron_man",
		"user_message": "Can you fly?",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result pipeline.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Response != "Naturally." {
		t.Errorf("wrong response: %q", result.Response)
	}
	if result.Error != "" {
		t.Errorf("unexpected error: %s", result.Error)
	}
}

func TestRunPipeline_RequiresFields(t *testing.T) {
	router := newTestRouter(t)
	w := do(t, router, http.MethodPost, "/api/dialogue", map[string]interface{}{
		"user_message": "no character",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGenerateDialogue(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/dialogue/chat", map[string]interface{}{
		"character_id": "character_thor",
		"user_message": "Greetings",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		ConversationID string `json:"conversation_id"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Message.Content != "Naturally." {
		t.Errorf("wrong response: %q", resp.Message.Content)
	}
	if resp.ConversationID == "" {
		t.Error("no conversation id returned")
	}
}

func TestPromptTemplateEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/prompts/templates", map[string]interface{}{
		"name":     "dialogue",
		"template": "You are {character_name}.",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create template: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	json.Unmarshal(w.Body.Bytes(), &created)

	w = do(t, router, http.MethodPost, "/api/prompts/versions", map[string]interface{}{
		"prompt_template_id": created.ID,
		"version":            "v1.0.0",
		"template":           "You are {character_name}.",
		"is_active":          true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create version: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/api/prompts/templates/"+created.ID+"/versions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list versions: expected 200, got %d", w.Code)
	}
	var versions struct {
		Versions []json.RawMessage `json:"versions"`
	}
	json.Unmarshal(w.Body.Bytes(), &versions)
	if len(versions.Versions) != 1 {
		t.Errorf("expected 1 version, got %d", len(versions.Versions))
	}
}

// contextRecordingProvider captures the liveness of the context each
// completion runs on.
type contextRecordingProvider struct {
	mu       sync.Mutex
	response string
	ctxErrs  []error
}

func (p *contextRecordingProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int64) (string, error) {
	p.mu.Lock()
	p.ctxErrs = append(p.ctxErrs, ctx.Err())
	p.mu.Unlock()
	return p.response, nil
}

func TestWebsocketChat_RunsOnLiveContext(t *testing.T) {
	provider := &contextRecordingProvider{response: "Naturally."}
	router := newRouterWith(t, provider)

	srv := httptest.NewServer(router)
	defer srv.Close()

	// The upgrade handler has long returned (and its request context
	// died) by the time the chat event arrives; generation must still
	// run on a live context.
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?client_id=player-1"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(map[string]interface{}{
		"event_type": "chat",
		"target_ids": []string{"character_thor"},
		"data": map[string]interface{}{
			"message": map[string]interface{}{"content": "Greetings"},
		},
	}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var reply struct {
		EventType string                 `json:"event_type"`
		Data      map[string]interface{} `json:"data"`
	}
	if err := ws.ReadJSON(&reply); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if reply.EventType != "chat" {
		t.Fatalf("expected chat reply, got %q: %v", reply.EventType, reply.Data)
	}
	msg, _ := reply.Data["message"].(map[string]interface{})
	if msg["content"] != "Naturally." {
		t.Errorf("wrong response content: %v", reply.Data)
	}

	provider.mu.Lock()
	defer provider.mu.Unlock()
	if len(provider.ctxErrs) == 0 {
		t.Fatal("provider never called")
	}
	for _, err := range provider.ctxErrs {
		if err != nil {
			t.Errorf("provider called with dead context: %v", err)
		}
	}
}

func TestEvaluationEndpointRequiresFields(t *testing.T) {
	router := newTestRouter(t)
	w := do(t, router, http.MethodPost, "/api/evaluation", map[string]interface{}{
		"query": "only a query",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}
