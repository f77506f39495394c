package agent

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/tabq/tabq/internal/dataset"
	"github.com/tabq/tabq/internal/llm"
	"github.com/tabq/tabq/internal/memory"
	"github.com/tabq/tabq/internal/tools"
)

// scriptedClient replays canned responses and records what it was sent.
type scriptedClient struct {
	responses []*llm.ChatResponse
	calls     [][]llm.Message
	toolSpecs []map[string]any
}

func (c *scriptedClient) Chat(ctx context.Context, model string, messages []llm.Message, toolList []map[string]any) (*llm.ChatResponse, error) {
	return c.ChatStream(ctx, model, messages, toolList, nil)
}

func (c *scriptedClient) ChatStream(ctx context.Context, model string, messages []llm.Message, toolList []map[string]any, callback llm.StreamCallback) (*llm.ChatResponse, error) {
	msgs := make([]llm.Message, len(messages))
	copy(msgs, messages)
	c.calls = append(c.calls, msgs)
	c.toolSpecs = toolList

	resp := c.responses[0]
	if len(c.responses) > 1 {
		c.responses = c.responses[1:]
	}
	if callback != nil && resp.Message.Content != "" {
		callback(llm.StreamEvent{Kind: llm.KindToken, Token: resp.Message.Content})
	}
	return resp, nil
}

func (c *scriptedClient) Ping(ctx context.Context) error { return nil }

func textResponse(content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		Model:        "test-model",
		Message:      llm.Message{Role: "assistant", Content: content},
		Done:         true,
		InputTokens:  10,
		OutputTokens: 5,
	}
}

func toolCallResponse(name string, args map[string]any) *llm.ChatResponse {
	return &llm.ChatResponse{
		Model: "test-model",
		Message: llm.Message{
			Role: "assistant",
			ToolCalls: []llm.ToolCall{{
				ID:       "call_1",
				Function: llm.FunctionCall{Name: name, Arguments: args},
			}},
		},
		Done: true,
	}
}

func newTestAgent(t *testing.T, client llm.Client, loaded bool) *Agent {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	table := dataset.New(dataset.Options{}, logger)
	if loaded {
		if err := table.Load("../dataset/testdata/sales.csv"); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
	}
	registry := tools.NewRegistry(table)
	store := memory.NewStore(100)
	return New(logger, client, registry, table, store, nil, Config{
		Model:             "test-model",
		MaxToolIterations: 5,
		Gate:              true,
	})
}

func TestAskNoDatasetLoaded(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{textResponse("should not be called")}}
	a := newTestAgent(t, client, false)

	resp, err := a.Ask(context.Background(), &Request{Question: "What is the average price?"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(client.calls) != 0 {
		t.Errorf("model called %d times, want 0", len(client.calls))
	}
	if !strings.Contains(resp.Answer, "No CSV file is loaded yet") {
		t.Errorf("Answer = %q, want no-dataset reply", resp.Answer)
	}
	if resp.FinishReason != "gated" {
		t.Errorf("FinishReason = %q, want gated", resp.FinishReason)
	}
}

func TestAskOffTopicGated(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{textResponse("should not be called")}}
	a := newTestAgent(t, client, true)

	resp, err := a.Ask(context.Background(), &Request{Question: "Who won the football match yesterday?"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(client.calls) != 0 {
		t.Errorf("model called %d times, want 0", len(client.calls))
	}
	if resp.CSVRelated {
		t.Error("CSVRelated = true, want false")
	}
}

func TestAskDirectAnswer(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{textResponse("The dataset has 12 rows.")}}
	a := newTestAgent(t, client, true)

	resp, err := a.Ask(context.Background(), &Request{Question: "How many rows are in the data?"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Answer != "The dataset has 12 rows." {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if !resp.CSVRelated {
		t.Error("CSVRelated = false, want true")
	}
	if len(client.calls) != 1 {
		t.Fatalf("model called %d times, want 1", len(client.calls))
	}

	msgs := client.calls[0]
	if msgs[0].Role != "system" {
		t.Errorf("first message role = %q, want system", msgs[0].Role)
	}
	if !strings.Contains(msgs[0].Content, "sales.csv") {
		t.Error("system prompt missing dataset summary")
	}
	if last := msgs[len(msgs)-1]; last.Role != "user" || last.Content != "How many rows are in the data?" {
		t.Errorf("last message = %+v, want the user question", last)
	}
	if len(client.toolSpecs) == 0 {
		t.Error("no tool specs passed to the model")
	}
}

func TestAskWithToolCall(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{
		toolCallResponse("get_data_summary", map[string]any{}),
		textResponse("It has 12 rows and 5 columns."),
	}}
	a := newTestAgent(t, client, true)

	resp, err := a.Ask(context.Background(), &Request{Question: "Give me an overview of the dataset"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Answer != "It has 12 rows and 5 columns." {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %d, want 1", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Tool != "get_data_summary" {
		t.Errorf("Tool = %q, want get_data_summary", resp.ToolCalls[0].Tool)
	}
	if resp.ToolCalls[0].Error != "" {
		t.Errorf("tool error = %q", resp.ToolCalls[0].Error)
	}

	if len(client.calls) != 2 {
		t.Fatalf("model called %d times, want 2", len(client.calls))
	}
	second := client.calls[1]
	toolMsg := second[len(second)-1]
	if toolMsg.Role != "tool" || toolMsg.ToolCallID != "call_1" {
		t.Errorf("last message of second call = %+v, want tool result", toolMsg)
	}
	if !strings.Contains(toolMsg.Content, "12 rows") {
		t.Errorf("tool result = %q, want dataset summary", toolMsg.Content)
	}
	assistantMsg := second[len(second)-2]
	if assistantMsg.Role != "assistant" || len(assistantMsg.ToolCalls) != 1 {
		t.Errorf("second-to-last message = %+v, want assistant tool call", assistantMsg)
	}
}

func TestAskUnknownToolBecomesError(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{
		toolCallResponse("launch_rocket", map[string]any{}),
		textResponse("I can't do that, but here is the data summary instead."),
	}}
	a := newTestAgent(t, client, true)

	resp, err := a.Ask(context.Background(), &Request{Question: "Analyze the data"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Error == "" {
		t.Fatalf("ToolCalls = %+v, want one failed call", resp.ToolCalls)
	}
	second := client.calls[1]
	toolMsg := second[len(second)-1]
	if !strings.HasPrefix(toolMsg.Content, "Error:") {
		t.Errorf("tool result = %q, want error prefix", toolMsg.Content)
	}
}

func TestAskMaxIterations(t *testing.T) {
	// A model stuck calling the same tool must not loop forever.
	client := &scriptedClient{responses: []*llm.ChatResponse{
		toolCallResponse("get_data_summary", map[string]any{}),
	}}
	a := newTestAgent(t, client, true)

	resp, err := a.Ask(context.Background(), &Request{Question: "Describe the data"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(client.calls) != 5 {
		t.Errorf("model called %d times, want 5", len(client.calls))
	}
	if resp.FinishReason != "max_iterations" {
		t.Errorf("FinishReason = %q, want max_iterations", resp.FinishReason)
	}
	if resp.Answer == "" {
		t.Error("Answer is empty, want fallback text")
	}
}

func TestAskStreamEvents(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{
		toolCallResponse("get_data_summary", map[string]any{}),
		textResponse("Done."),
	}}
	a := newTestAgent(t, client, true)

	var kinds []llm.StreamEventKind
	_, err := a.Run(context.Background(), &Request{Question: "Summarize the data"}, func(ev StreamEvent) {
		kinds = append(kinds, ev.Kind)
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []llm.StreamEventKind{KindToolCallStart, KindToolCallDone, KindToken, KindDone}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event[%d] = %v, want %v", i, kinds[i], want[i])
		}
	}
}

func TestAskConversationHistory(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{
		textResponse("Widget is the most common product."),
		textResponse("It appears 4 times."),
	}}
	a := newTestAgent(t, client, true)

	ctx := context.Background()
	if _, err := a.Ask(ctx, &Request{Question: "What is the most common product?", ConversationID: "c1"}); err != nil {
		t.Fatalf("first Ask() error = %v", err)
	}
	resp, err := a.Ask(ctx, &Request{Question: "How often does it appear?", ConversationID: "c1"})
	if err != nil {
		t.Fatalf("second Ask() error = %v", err)
	}
	if !resp.FollowUp {
		t.Error("FollowUp = false, want true")
	}

	second := client.calls[1]
	var sawPrior bool
	for _, m := range second {
		if m.Role == "assistant" && m.Content == "Widget is the most common product." {
			sawPrior = true
		}
	}
	if !sawPrior {
		t.Error("second call missing prior assistant answer in history")
	}
}

func TestIsCSVRelated(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{textResponse("x")}}
	a := newTestAgent(t, client, true)

	cases := []struct {
		question string
		want     bool
	}{
		{"What is the average price?", true},      // keyword
		{"Show me the quantity breakdown", true},  // column name
		{"Tell me about product trends", true},    // column name
		{"What's the weather in Paris today?", false},
		{"Who won the world cup last year?", false},
		// Keyword matching is substring based, so "tomorrow" hits "row".
		{"Is the shop open tomorrow?", true},
	}
	for _, tc := range cases {
		if got := a.IsCSVRelated("fresh", tc.question); got != tc.want {
			t.Errorf("IsCSVRelated(%q) = %v, want %v", tc.question, got, tc.want)
		}
	}
}

func TestSuggestedQuestions(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{textResponse("x")}}

	a := newTestAgent(t, client, false)
	got := a.SuggestedQuestions()
	if len(got) != 1 || !strings.Contains(got[0], "load a CSV file") {
		t.Errorf("SuggestedQuestions() without data = %v", got)
	}

	a = newTestAgent(t, client, true)
	got = a.SuggestedQuestions()
	if len(got) < 6 {
		t.Fatalf("SuggestedQuestions() = %d entries, want at least 6", len(got))
	}
	joined := strings.Join(got, "\n")
	for _, want := range []string{
		"summary of this dataset",
		"'order_id'",
		"statistics for 'order_id'",
		"value counts for 'product'",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("suggestions missing %q in:\n%s", want, joined)
		}
	}
}
