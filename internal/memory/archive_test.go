package memory

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func setupTestArchive(t *testing.T) *Archive {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	a, err := NewArchive(db, 100)
	if err != nil {
		t.Fatalf("new archive: %v", err)
	}
	return a
}

func TestArchiveAddAndGetMessages(t *testing.T) {
	a := setupTestArchive(t)

	msgs := []Message{
		{Role: "user", Content: "How many rows?"},
		{Role: "assistant", Content: "", ToolCalls: `[{"function":{"name":"get_data_summary"}}]`},
		{Role: "tool", Content: "12 rows", ToolCallID: "call_1"},
		{Role: "assistant", Content: "The dataset has 12 rows."},
	}
	for _, m := range msgs {
		if err := a.AddMessage("conv1", m); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}

	got := a.GetMessages("conv1")
	if len(got) != 4 {
		t.Fatalf("got %d messages, want 4", len(got))
	}
	if got[1].ToolCalls == "" {
		t.Error("tool_calls not persisted")
	}
	if got[2].ToolCallID != "call_1" {
		t.Errorf("tool_call_id = %q", got[2].ToolCallID)
	}
	if got[3].Content != "The dataset has 12 rows." {
		t.Errorf("content = %q", got[3].Content)
	}
}

func TestArchiveListConversations(t *testing.T) {
	a := setupTestArchive(t)

	_ = a.AddMessage("conv1", Message{Role: "user", Content: "q1"})
	time.Sleep(10 * time.Millisecond)
	_ = a.AddMessage("conv2", Message{Role: "user", Content: "q2"})
	if err := a.SetDatasetFile("conv2", "sales.csv"); err != nil {
		t.Fatalf("SetDatasetFile: %v", err)
	}

	convs, err := a.ListConversations(0)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}
	// Most recently updated first
	if convs[0].ID != "conv2" {
		t.Errorf("first conversation = %q, want conv2", convs[0].ID)
	}
	if convs[0].DatasetFile != "sales.csv" {
		t.Errorf("DatasetFile = %q", convs[0].DatasetFile)
	}
	if convs[0].QuestionCount != 1 {
		t.Errorf("QuestionCount = %d, want 1", convs[0].QuestionCount)
	}
}

func TestArchiveRecordToolCall(t *testing.T) {
	a := setupTestArchive(t)

	started := time.Now().Add(-50 * time.Millisecond)
	if err := a.RecordToolCall("conv1", "get_basic_stats", `{"column":"price"}`, "mean 28.77", nil, started); err != nil {
		t.Fatalf("RecordToolCall: %v", err)
	}
	if err := a.RecordToolCall("conv1", "filter_data", `{}`, "", errors.New("column required"), started); err != nil {
		t.Fatalf("RecordToolCall error case: %v", err)
	}

	stats := a.Stats()
	if stats["tool_calls"] != 2 {
		t.Errorf("tool_calls = %v, want 2", stats["tool_calls"])
	}
}

func TestArchiveDelete(t *testing.T) {
	a := setupTestArchive(t)

	_ = a.AddMessage("conv1", Message{Role: "user", Content: "q"})
	_ = a.RecordToolCall("conv1", "get_data_summary", "{}", "ok", nil, time.Now())

	if err := a.Delete("conv1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if got := a.GetMessages("conv1"); len(got) != 0 {
		t.Errorf("expected no messages after delete, got %d", len(got))
	}

	stats := a.Stats()
	if stats["conversations"] != 0 {
		t.Errorf("conversations = %v, want 0", stats["conversations"])
	}
	if stats["tool_calls"] != 0 {
		t.Errorf("tool_calls = %v, want 0", stats["tool_calls"])
	}
}

func TestArchiveStats(t *testing.T) {
	a := setupTestArchive(t)

	_ = a.AddMessage("conv1", Message{Role: "user", Content: "How many rows are there?"})
	_ = a.AddMessage("conv1", Message{Role: "assistant", Content: "Twelve."})

	stats := a.Stats()
	if stats["conversations"] != 1 {
		t.Errorf("conversations = %v, want 1", stats["conversations"])
	}
	if stats["messages"] != 2 {
		t.Errorf("messages = %v, want 2", stats["messages"])
	}
	if stats["storage"] != "sqlite" {
		t.Errorf("storage = %v", stats["storage"])
	}
}
