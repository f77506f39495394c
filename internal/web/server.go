// Package web provides the browser UI: a chat page backed by a
// websocket stream, a dataset explorer, and conversation history.
// Pages are server-rendered html/template with htmx partial swaps.
package web

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/tabq/tabq/internal/agent"
	"github.com/tabq/tabq/internal/dataset"
	"github.com/tabq/tabq/internal/memory"
)

// StatsSnapshot carries the session counters shown in the footer.
type StatsSnapshot struct {
	TotalRequests     int64
	TotalInputTokens  int64
	TotalOutputTokens int64
	EstimatedCostUSD  float64
	Build             map[string]string
}

// Config wires the UI to the rest of the application.
type Config struct {
	Agent     *agent.Agent
	Table     *dataset.Table
	Store     *memory.Store
	StatsFunc func() StatsSnapshot
	BrandName string
	Logger    *slog.Logger
}

// WebServer renders the browser UI.
type WebServer struct {
	agent     *agent.Agent
	table     *dataset.Table
	store     *memory.Store
	statsFunc func() StatsSnapshot
	brandName string
	templates map[string]*template.Template
	logger    *slog.Logger
}

// PageData is the template context shared by every page.
type PageData struct {
	BrandName string
	ActiveNav string
}

// NewWebServer creates the UI server. Panics on template errors so
// that startup fails fast.
func NewWebServer(cfg Config) *WebServer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	brand := cfg.BrandName
	if brand == "" {
		brand = "tabq"
	}
	return &WebServer{
		agent:     cfg.Agent,
		table:     cfg.Table,
		store:     cfg.Store,
		statsFunc: cfg.StatsFunc,
		brandName: brand,
		templates: loadTemplates(),
		logger:    logger,
	}
}

// RegisterRoutes adds the UI routes to a mux.
func (s *WebServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ui", s.handleChat)
	mux.HandleFunc("GET /ui/{$}", s.handleChat)
	mux.HandleFunc("POST /ui/ask", s.handleAskPartial)
	mux.HandleFunc("GET /ui/ws", s.handleWS)
	mux.HandleFunc("GET /ui/dataset", s.handleDataset)
	mux.HandleFunc("POST /ui/dataset/load", s.handleDatasetLoad)
	mux.HandleFunc("GET /ui/history", s.handleHistory)
	mux.HandleFunc("GET /ui/history/{id}", s.handleHistoryDetail)
}
