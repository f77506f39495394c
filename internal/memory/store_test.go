package memory

import (
	"strings"
	"testing"
)

func TestStoreAddAndGet(t *testing.T) {
	s := NewStore(10)

	if err := s.AddMessage("conv1", "user", "How many rows?"); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if err := s.AddMessage("conv1", "assistant", "The dataset has 500 rows."); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	msgs := s.GetMessages("conv1")
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("unexpected roles: %s, %s", msgs[0].Role, msgs[1].Role)
	}

	conv := s.GetConversation("conv1")
	if conv == nil {
		t.Fatal("GetConversation returned nil")
	}
	if conv.QuestionCount != 1 {
		t.Errorf("QuestionCount = %d, want 1", conv.QuestionCount)
	}

	if s.GetConversation("nope") != nil {
		t.Error("expected nil for unknown conversation")
	}
}

func TestStoreTrimKeepsSystem(t *testing.T) {
	s := NewStore(12)

	if err := s.AddMessage("conv1", "system", "You are a data analyst."); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 30; i++ {
		_ = s.AddMessage("conv1", "user", "question")
		_ = s.AddMessage("conv1", "assistant", "answer")
	}

	msgs := s.GetMessages("conv1")
	if len(msgs) > 12 {
		t.Errorf("got %d messages after trim, want <= 12", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Errorf("first message role = %s, system message should survive trim", msgs[0].Role)
	}
	// Most recent message survives
	last := msgs[len(msgs)-1]
	if last.Role != "assistant" {
		t.Errorf("last message role = %s, want assistant", last.Role)
	}
}

func TestStoreDatasetContext(t *testing.T) {
	s := NewStore(10)

	if s.GetDatasetContext("conv1") != nil {
		t.Error("expected nil context before set")
	}

	s.SetDatasetContext("conv1", "sales.csv", "12 rows × 5 columns")
	ds := s.GetDatasetContext("conv1")
	if ds == nil {
		t.Fatal("expected dataset context")
	}
	if ds.File != "sales.csv" {
		t.Errorf("File = %q", ds.File)
	}
	if !strings.Contains(ds.Summary, "12 rows") {
		t.Errorf("Summary = %q", ds.Summary)
	}
}

func TestStoreRecentQuestions(t *testing.T) {
	s := NewStore(50)

	questions := []string{"q1", "q2", "q3", "q4"}
	for _, q := range questions {
		_ = s.AddMessage("conv1", "user", q)
		_ = s.AddMessage("conv1", "assistant", "a")
	}

	recent := s.RecentQuestions("conv1", 3)
	want := []string{"q2", "q3", "q4"}
	if len(recent) != len(want) {
		t.Fatalf("got %d questions, want %d", len(recent), len(want))
	}
	for i := range want {
		if recent[i] != want[i] {
			t.Errorf("recent[%d] = %q, want %q", i, recent[i], want[i])
		}
	}

	if got := s.RecentQuestions("nope", 3); len(got) != 0 {
		t.Errorf("expected no questions for unknown conversation, got %v", got)
	}
}

func TestStoreQuestionCount(t *testing.T) {
	s := NewStore(50)

	if got := s.QuestionCount("conv1"); got != 0 {
		t.Errorf("QuestionCount = %d, want 0 before any messages", got)
	}

	_ = s.AddMessage("conv1", "user", "q1")
	_ = s.AddMessage("conv1", "assistant", "a1")
	_ = s.AddMessage("conv1", "user", "q2")

	if got := s.QuestionCount("conv1"); got != 2 {
		t.Errorf("QuestionCount = %d, want 2", got)
	}
	if got := s.QuestionCount("nope"); got != 0 {
		t.Errorf("QuestionCount = %d, want 0 for unknown conversation", got)
	}
}

func TestIsFollowUp(t *testing.T) {
	s := NewStore(10)
	_ = s.AddMessage("conv1", "user", "What is the average price by region?")
	_ = s.AddMessage("conv1", "assistant", "West leads at 31.55.")

	tests := []struct {
		name     string
		convID   string
		question string
		want     bool
	}{
		{"no history", "empty", "what about the East region specifically", false},
		{"pronoun reference", "conv1", "Is the trend continuing upward for each of them in 2024?", true},
		{"what about", "conv1", "what about quantity grouped across all regions instead", true},
		{"short question", "conv1", "And East?", true},
		{"standalone question", "conv1", "Show me every widget order from the western sales region", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.IsFollowUp(tt.convID, tt.question); got != tt.want {
				t.Errorf("IsFollowUp(%q) = %v, want %v", tt.question, got, tt.want)
			}
		})
	}
}

func TestStoreClear(t *testing.T) {
	s := NewStore(10)
	_ = s.AddMessage("conv1", "user", "hi")
	s.Clear("conv1")
	if len(s.GetMessages("conv1")) != 0 {
		t.Error("expected no messages after Clear")
	}
}

func TestStoreStats(t *testing.T) {
	s := NewStore(10)
	_ = s.AddMessage("a", "user", "one")
	_ = s.AddMessage("b", "user", "two")
	_ = s.AddMessage("b", "assistant", "three")

	stats := s.Stats()
	if stats["conversations"] != 2 {
		t.Errorf("conversations = %v, want 2", stats["conversations"])
	}
	if stats["messages"] != 3 {
		t.Errorf("messages = %v, want 3", stats["messages"])
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	s := NewStore(10)
	_ = s.AddMessage("conv1", "user", "How many rows?")
	_ = s.AddMessage("conv1", "assistant", "500 rows.")
	s.SetDatasetContext("conv1", "sales.csv", "summary")

	data, err := s.Export("conv1")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	restored := NewStore(10)
	id, err := restored.Import(data)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if id != "conv1" {
		t.Errorf("imported ID = %q", id)
	}

	msgs := restored.GetMessages("conv1")
	if len(msgs) != 2 {
		t.Fatalf("got %d messages after import, want 2", len(msgs))
	}
	if msgs[1].Content != "500 rows." {
		t.Errorf("content = %q", msgs[1].Content)
	}

	ds := restored.GetDatasetContext("conv1")
	if ds == nil || ds.File != "sales.csv" {
		t.Errorf("dataset context not restored: %+v", ds)
	}
}

func TestExportUnknownConversation(t *testing.T) {
	s := NewStore(10)
	if _, err := s.Export("nope"); err == nil {
		t.Error("expected error exporting unknown conversation")
	}
}

func TestImportMalformed(t *testing.T) {
	s := NewStore(10)
	if _, err := s.Import([]byte(`{"version": 1}`)); err == nil {
		t.Error("expected error for export with no conversation")
	}
	if _, err := s.Import([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}
