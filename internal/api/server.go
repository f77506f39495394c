// Package api exposes the agent over HTTP: a JSON ask endpoint with
// optional SSE streaming, dataset management, conversation history,
// and session statistics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tabq/tabq/internal/agent"
	"github.com/tabq/tabq/internal/buildinfo"
	"github.com/tabq/tabq/internal/dataset"
	"github.com/tabq/tabq/internal/llm"
	"github.com/tabq/tabq/internal/memory"
	"github.com/tabq/tabq/internal/tools"
)

func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to encode response", "error", err)
	}
}

// routeRegistrar lets the web UI attach its routes without this
// package depending on it.
type routeRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Server is the HTTP API server.
type Server struct {
	address  string
	port     int
	agent    *agent.Agent
	table    *dataset.Table
	registry *tools.Registry
	store    *memory.Store
	archive  *memory.Archive
	client   llm.Client
	ui       routeRegistrar
	logger   *slog.Logger
	server   *http.Server
	stats    *SessionStats
}

// SessionStats tracks token usage and cost for the current session.
type SessionStats struct {
	TotalInputTokens  int64   `json:"total_input_tokens"`
	TotalOutputTokens int64   `json:"total_output_tokens"`
	TotalRequests     int64   `json:"total_requests"`
	EstimatedCostUSD  float64 `json:"estimated_cost_usd"`
	mu                sync.Mutex
}

// Model pricing per million tokens (USD). Unlisted models, including
// anything local, cost nothing.
var modelPricing = map[string][2]float64{
	// [input_per_1M, output_per_1M]
	"gpt-4o":                   {2.50, 10.0},
	"gpt-4o-mini":              {0.15, 0.60},
	"claude-sonnet-4-20250514": {3.0, 15.0},
	"claude-haiku-3-20240307":  {0.25, 1.25},
}

func (s *SessionStats) Record(model string, inputTokens, outputTokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalInputTokens += int64(inputTokens)
	s.TotalOutputTokens += int64(outputTokens)
	s.TotalRequests++

	if pricing, ok := modelPricing[model]; ok {
		s.EstimatedCostUSD += float64(inputTokens) / 1_000_000.0 * pricing[0]
		s.EstimatedCostUSD += float64(outputTokens) / 1_000_000.0 * pricing[1]
	}
}

// SessionStatsSnapshot is a copy-safe snapshot of session stats.
type SessionStatsSnapshot struct {
	TotalInputTokens  int64             `json:"total_input_tokens"`
	TotalOutputTokens int64             `json:"total_output_tokens"`
	TotalRequests     int64             `json:"total_requests"`
	EstimatedCostUSD  float64           `json:"estimated_cost_usd"`
	ContextTokens     int               `json:"context_tokens"`
	MessageCount      int               `json:"message_count"`
	Build             map[string]string `json:"build,omitempty"`
}

func (s *SessionStats) Snapshot() SessionStatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionStatsSnapshot{
		TotalInputTokens:  s.TotalInputTokens,
		TotalOutputTokens: s.TotalOutputTokens,
		TotalRequests:     s.TotalRequests,
		EstimatedCostUSD:  s.EstimatedCostUSD,
	}
}

// Stats returns a snapshot of the session usage counters.
func (s *Server) Stats() SessionStatsSnapshot {
	return s.stats.Snapshot()
}

// NewServer creates a new API server.
func NewServer(address string, port int, ag *agent.Agent, table *dataset.Table, registry *tools.Registry, store *memory.Store, client llm.Client, logger *slog.Logger) *Server {
	return &Server{
		address:  address,
		port:     port,
		agent:    ag,
		table:    table,
		registry: registry,
		store:    store,
		client:   client,
		logger:   logger,
		stats:    &SessionStats{},
	}
}

// SetArchive configures the persistent archive for history endpoints.
func (s *Server) SetArchive(a *memory.Archive) {
	s.archive = a
}

// SetWebUI attaches the browser UI routes.
func (s *Server) SetWebUI(ui routeRegistrar) {
	s.ui = ui
}

// Start runs the server until it fails or is shut down.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Long for streaming responses
	}

	s.logger.Info("starting API server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Question answering
	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.HandleFunc("GET /api/suggestions", s.handleSuggestions)
	mux.HandleFunc("GET /api/tools", s.handleTools)

	// Dataset management
	mux.HandleFunc("POST /api/dataset/load", s.handleDatasetLoad)
	mux.HandleFunc("GET /api/dataset", s.handleDatasetInfo)
	mux.HandleFunc("DELETE /api/dataset", s.handleDatasetClear)
	mux.HandleFunc("GET /api/dataset/columns/{name}", s.handleDatasetColumn)

	// Conversation history
	mux.HandleFunc("GET /api/conversations", s.handleConversationList)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleConversationGet)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleConversationDelete)
	mux.HandleFunc("GET /api/conversations/{id}/export", s.handleConversationExport)
	mux.HandleFunc("POST /api/conversations/import", s.handleConversationImport)

	// Archive endpoints
	mux.HandleFunc("GET /api/archive/conversations", s.handleArchiveConversations)
	mux.HandleFunc("GET /api/archive/conversations/{id}", s.handleArchiveConversationGet)
	mux.HandleFunc("GET /api/archive/stats", s.handleArchiveStats)

	// Session stats and health
	mux.HandleFunc("GET /api/stats", s.handleSessionStats)
	mux.HandleFunc("POST /api/session/reset", s.handleSessionReset)
	mux.HandleFunc("GET /api/models", s.handleModels)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	if s.ui != nil {
		s.ui.RegisterRoutes(mux)
	}

	return s.withLogging(mux)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.errorResponse(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"service": "tabq",
		"version": buildinfo.Version,
		"status":  "running",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status":         "ok",
		"dataset_loaded": s.table.Loaded(),
		"time":           time.Now().UTC().Format(time.RFC3339),
	}, s.logger)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models := []string{}
	if lister, ok := s.client.(interface{ Models() []string }); ok {
		models = lister.Models()
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"models": models,
		"count":  len(models),
	}, s.logger)
}

// AskRequest is the body of POST /api/ask.
type AskRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id,omitempty"`
	Model          string `json:"model,omitempty"`
	Stream         bool   `json:"stream,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Question == "" {
		s.errorResponse(w, http.StatusBadRequest, "question is required")
		return
	}

	agentReq := &agent.Request{
		Question:       req.Question,
		ConversationID: req.ConversationID,
		Model:          req.Model,
	}

	if req.Stream {
		s.handleStreamingAsk(w, r, agentReq)
		return
	}

	resp, err := s.agent.Ask(r.Context(), agentReq)
	if err != nil {
		s.logger.Error("ask failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.stats.Record(resp.Model, resp.InputTokens, resp.OutputTokens)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

// StreamChunk is one SSE event of a streaming answer.
type StreamChunk struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"` // token, tool_start, tool_done, done, error
	Token      string            `json:"token,omitempty"`
	Tool       string            `json:"tool,omitempty"`
	ToolResult string            `json:"tool_result,omitempty"`
	ToolError  string            `json:"tool_error,omitempty"`
	Response   *agent.Response   `json:"response,omitempty"`
	Error      string            `json:"error,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
}

func (s *Server) handleStreamingAsk(w http.ResponseWriter, r *http.Request, agentReq *agent.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	requestID := uuid.New().String()
	rc := http.NewResponseController(w)

	callback := func(ev agent.StreamEvent) {
		// Each event buys the connection more write time.
		_ = rc.SetWriteDeadline(time.Now().Add(120 * time.Second))

		switch ev.Kind {
		case agent.KindToken:
			s.writeSSE(w, StreamChunk{ID: requestID, Type: "token", Token: ev.Token})
		case agent.KindToolCallStart:
			s.writeSSE(w, StreamChunk{ID: requestID, Type: "tool_start", Tool: ev.ToolName})
		case agent.KindToolCallDone:
			s.writeSSE(w, StreamChunk{
				ID:         requestID,
				Type:       "tool_done",
				Tool:       ev.ToolName,
				ToolResult: ev.ToolResult,
				ToolError:  ev.ToolError,
			})
		case agent.KindDone:
			// Final chunk is written after Run returns.
			return
		}
		flusher.Flush()
	}

	resp, err := s.agent.Run(r.Context(), agentReq, callback)
	if err != nil {
		s.logger.Error("streaming ask failed", "error", err)
		s.writeSSE(w, StreamChunk{ID: requestID, Type: "error", Error: err.Error()})
		flusher.Flush()
		return
	}
	s.stats.Record(resp.Model, resp.InputTokens, resp.OutputTokens)

	s.writeSSE(w, StreamChunk{ID: requestID, Type: "done", Response: resp})
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) writeSSE(w http.ResponseWriter, chunk StreamChunk) {
	data, err := json.Marshal(chunk)
	if err != nil {
		s.logger.Debug("failed to marshal SSE chunk", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		s.logger.Debug("failed to write SSE chunk", "error", err)
	}
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions := s.agent.SuggestedQuestions()
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"suggestions": suggestions,
		"count":       len(suggestions),
	}, s.logger)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	out := map[string]any{
		"tools": s.registry.List(),
		"names": s.registry.Names(),
	}
	if q := r.URL.Query().Get("question"); q != "" {
		out["suggested"] = tools.SuggestTools(q)
	}
	writeJSON(w, out, s.logger)
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	snap := s.stats.Snapshot()

	memStats := s.agent.MemoryStats()
	if msgs, ok := memStats["messages"].(int); ok {
		snap.MessageCount = msgs
	}
	snap.ContextTokens = s.store.GetTokenCount("default")
	snap.Build = buildinfo.Info()

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, snap, s.logger)
}

func (s *Server) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	s.store.Clear("default")
	s.logger.Info("session reset via API")
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"status": "ok", "message": "conversation cleared"}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "invalid_request_error",
			"code":    code,
		},
	}, s.logger)
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
