// Package agent implements the question-answering loop: gate the
// question, assemble context, let the model call analysis tools, and
// fold the results back until it produces an answer.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tabq/tabq/internal/dataset"
	"github.com/tabq/tabq/internal/llm"
	"github.com/tabq/tabq/internal/memory"
	"github.com/tabq/tabq/internal/prompts"
	"github.com/tabq/tabq/internal/tools"
)

// Stream event types are re-exported so transports don't import llm.
type (
	// StreamEvent is a single streaming event from the loop.
	StreamEvent = llm.StreamEvent
	// StreamCallback receives streaming events.
	StreamCallback = llm.StreamCallback
)

// Stream event kinds.
const (
	KindToken         = llm.KindToken
	KindToolCallStart = llm.KindToolCallStart
	KindToolCallDone  = llm.KindToolCallDone
	KindDone          = llm.KindDone
)

// Request is an incoming question.
type Request struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id,omitempty"`
	Model          string `json:"model,omitempty"`
}

// ToolCallRecord describes one tool execution during a request.
type ToolCallRecord struct {
	Tool       string `json:"tool"`
	Arguments  string `json:"arguments"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Response is the agent's answer.
type Response struct {
	Answer         string           `json:"answer"`
	Model          string           `json:"model"`
	ConversationID string           `json:"conversation_id"`
	CSVRelated     bool             `json:"csv_related"`
	FollowUp       bool             `json:"follow_up"`
	ToolCalls      []ToolCallRecord `json:"tool_calls,omitempty"`
	InputTokens    int              `json:"input_tokens"`
	OutputTokens   int              `json:"output_tokens"`
	FinishReason   string           `json:"finish_reason"`
}

// Config carries agent tuning knobs.
type Config struct {
	Model             string
	MaxToolIterations int
	Gate              bool
}

// Agent runs the tool-calling loop over a loaded dataset.
type Agent struct {
	logger   *slog.Logger
	client   llm.Client
	registry *tools.Registry
	table    *dataset.Table
	store    *memory.Store
	archive  *memory.Archive // optional persistence
	cfg      Config
}

// New creates an agent. archive may be nil to disable persistence.
func New(logger *slog.Logger, client llm.Client, registry *tools.Registry, table *dataset.Table, store *memory.Store, archive *memory.Archive, cfg Config) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxToolIterations <= 0 {
		cfg.MaxToolIterations = 5
	}
	return &Agent{
		logger:   logger,
		client:   client,
		registry: registry,
		table:    table,
		store:    store,
		archive:  archive,
		cfg:      cfg,
	}
}

// Ask answers a question without streaming.
func (a *Agent) Ask(ctx context.Context, req *Request) (*Response, error) {
	return a.Run(ctx, req, nil)
}

// Run answers a question, streaming tokens and tool events to the
// callback when one is provided.
func (a *Agent) Run(ctx context.Context, req *Request, callback StreamCallback) (*Response, error) {
	if req == nil || req.Question == "" {
		return nil, fmt.Errorf("question is required")
	}

	convID := req.ConversationID
	if convID == "" {
		convID = "default"
	}
	model := req.Model
	if model == "" {
		model = a.cfg.Model
	}

	a.logger.Info("question received",
		"conversation", convID,
		"model", model,
		"length", len(req.Question),
	)

	// Canned replies never touch the model.
	if !a.table.Loaded() {
		return a.canned(convID, model, prompts.NoDatasetLoaded, callback), nil
	}
	if a.cfg.Gate && !a.IsCSVRelated(convID, req.Question) {
		a.logger.Debug("question gated as off-topic", "conversation", convID)
		resp := a.canned(convID, model, prompts.NotCSVRelated, callback)
		resp.CSVRelated = false
		return resp, nil
	}

	// Follow-up detection must see the history as it was before this
	// question arrives.
	followUp := a.store.IsFollowUp(convID, req.Question)

	msgs, err := a.assembleContext(convID, req.Question)
	if err != nil {
		return nil, err
	}

	a.recordUser(convID, req.Question)

	resp := &Response{
		Model:          model,
		ConversationID: convID,
		CSVRelated:     true,
		FollowUp:       followUp,
		FinishReason:   "stop",
	}

	toolSpecs := a.registry.List()
	var lastContent string

	for iteration := 0; iteration < a.cfg.MaxToolIterations; iteration++ {
		llmResp, err := a.client.ChatStream(ctx, model, msgs, toolSpecs, callback)
		if err != nil {
			return nil, fmt.Errorf("model call failed: %w", err)
		}
		resp.InputTokens += llmResp.InputTokens
		resp.OutputTokens += llmResp.OutputTokens
		if llmResp.Model != "" {
			resp.Model = llmResp.Model
		}
		lastContent = llmResp.Message.Content

		if len(llmResp.Message.ToolCalls) == 0 {
			resp.Answer = llmResp.Message.Content
			break
		}

		a.logger.Debug("executing tool calls",
			"conversation", convID,
			"iteration", iteration,
			"count", len(llmResp.Message.ToolCalls),
		)

		msgs = append(msgs, llmResp.Message)
		for _, tc := range llmResp.Message.ToolCalls {
			record := a.executeTool(ctx, convID, tc, callback)
			resp.ToolCalls = append(resp.ToolCalls, record)

			content := record.Result
			if record.Error != "" {
				content = "Error: " + record.Error
			}
			msgs = append(msgs, llm.Message{
				Role:       "tool",
				Content:    content,
				ToolCallID: tc.ID,
			})
		}
	}

	if resp.Answer == "" {
		resp.Answer = lastContent
	}
	if resp.Answer == "" {
		resp.Answer = prompts.EmptyResponseFallback
		resp.FinishReason = "max_iterations"
	}

	a.recordAssistant(convID, resp.Answer)

	if callback != nil {
		callback(StreamEvent{Kind: KindDone, Response: &llm.ChatResponse{
			Model:        resp.Model,
			Message:      llm.Message{Role: "assistant", Content: resp.Answer},
			Done:         true,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
		}})
	}

	a.logger.Info("question answered",
		"conversation", convID,
		"model", resp.Model,
		"tool_calls", len(resp.ToolCalls),
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
	)

	return resp, nil
}

// canned records and returns a fixed reply without calling the model.
func (a *Agent) canned(convID, model, answer string, callback StreamCallback) *Response {
	a.recordUserless(convID, answer)
	if callback != nil {
		callback(StreamEvent{Kind: KindToken, Token: answer})
		callback(StreamEvent{Kind: KindDone})
	}
	return &Response{
		Answer:         answer,
		Model:          model,
		ConversationID: convID,
		FinishReason:   "gated",
	}
}

// assembleContext builds the message list: system prompt with the
// dataset summary, conversation history, and the new question.
func (a *Agent) assembleContext(convID, question string) ([]llm.Message, error) {
	summary, err := a.table.Summary()
	if err != nil && !errors.Is(err, dataset.ErrNotLoaded) {
		return nil, err
	}

	msgs := []llm.Message{{
		Role:    "system",
		Content: prompts.SystemPrompt(summary),
	}}

	for _, m := range a.store.GetMessages(convID) {
		if m.Role == "system" {
			continue // system prompt is rebuilt fresh each turn
		}
		msg := llm.Message{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		if m.ToolCalls != "" {
			var calls []llm.ToolCall
			if err := json.Unmarshal([]byte(m.ToolCalls), &calls); err == nil {
				msg.ToolCalls = calls
			}
		}
		msgs = append(msgs, msg)
	}

	msgs = append(msgs, llm.Message{Role: "user", Content: question})
	return msgs, nil
}

// executeTool runs one tool call and emits stream events around it.
func (a *Agent) executeTool(ctx context.Context, convID string, tc llm.ToolCall, callback StreamCallback) ToolCallRecord {
	argsJSON, _ := json.Marshal(tc.Function.Arguments)
	record := ToolCallRecord{Tool: tc.Function.Name, Arguments: string(argsJSON)}

	if callback != nil {
		call := tc
		callback(StreamEvent{Kind: KindToolCallStart, ToolCall: &call, ToolName: tc.Function.Name})
	}

	started := time.Now()
	result, err := a.registry.Execute(ctx, tc.Function.Name, tc.Function.Arguments)
	record.DurationMS = time.Since(started).Milliseconds()

	if err != nil {
		record.Error = err.Error()
		a.logger.Warn("tool call failed",
			"conversation", convID,
			"tool", tc.Function.Name,
			"error", err,
		)
	} else {
		record.Result = result
	}

	if a.archive != nil {
		if aerr := a.archive.RecordToolCall(convID, tc.Function.Name, record.Arguments, record.Result, err, started); aerr != nil {
			a.logger.Warn("archive tool call failed", "error", aerr)
		}
	}

	if callback != nil {
		callback(StreamEvent{
			Kind:       KindToolCallDone,
			ToolName:   tc.Function.Name,
			ToolResult: record.Result,
			ToolError:  record.Error,
		})
	}
	return record
}

func (a *Agent) recordUser(convID, question string) {
	if err := a.store.AddMessage(convID, "user", question); err != nil {
		a.logger.Warn("store user message failed", "error", err)
	}
	if a.archive != nil {
		if err := a.archive.AddMessage(convID, memory.Message{Role: "user", Content: question}); err != nil {
			a.logger.Warn("archive user message failed", "error", err)
		}
	}
	if ds := a.store.GetDatasetContext(convID); ds == nil && a.table.Loaded() {
		if summary, err := a.table.Summary(); err == nil {
			a.store.SetDatasetContext(convID, a.table.Path(), summary)
			if a.archive != nil {
				_ = a.archive.SetDatasetFile(convID, a.table.Path())
			}
		}
	}
}

func (a *Agent) recordAssistant(convID, answer string) {
	if err := a.store.AddMessage(convID, "assistant", answer); err != nil {
		a.logger.Warn("store assistant message failed", "error", err)
	}
	if a.archive != nil {
		if err := a.archive.AddMessage(convID, memory.Message{Role: "assistant", Content: answer}); err != nil {
			a.logger.Warn("archive assistant message failed", "error", err)
		}
	}
}

// recordUserless stores a canned assistant reply without a matching
// user message, keeping gated questions out of model context.
func (a *Agent) recordUserless(convID, answer string) {
	if a.archive != nil {
		if err := a.archive.AddMessage(convID, memory.Message{Role: "assistant", Content: answer}); err != nil {
			a.logger.Warn("archive canned reply failed", "error", err)
		}
	}
}

// MemoryStats returns live memory statistics.
func (a *Agent) MemoryStats() map[string]any {
	return a.store.Stats()
}
