// Package memory provides conversation memory for the assistant. The
// in-memory Store serves live sessions; the SQLite Archive persists
// interactions across restarts.
package memory

import (
	"sync"
	"time"
)

// Message represents a conversation message.
type Message struct {
	Role       string    `json:"role"` // system, user, assistant, tool
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	ToolCalls  string    `json:"tool_calls,omitempty"`   // JSON-encoded, assistant messages only
	ToolCallID string    `json:"tool_call_id,omitempty"` // tool messages only
}

// DatasetContext pins the loaded CSV file to a conversation so
// follow-up questions resolve against the right data.
type DatasetContext struct {
	File    string `json:"file"`
	Summary string `json:"summary"`
}

// Conversation holds the state of a single conversation.
type Conversation struct {
	ID            string          `json:"id"`
	Messages      []Message       `json:"messages"`
	Dataset       *DatasetContext `json:"dataset,omitempty"`
	QuestionCount int             `json:"question_count"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (c *Conversation) copy() *Conversation {
	msgs := make([]Message, len(c.Messages))
	copy(msgs, c.Messages)
	out := *c
	out.Messages = msgs
	if c.Dataset != nil {
		ds := *c.Dataset
		out.Dataset = &ds
	}
	return &out
}

// Store manages live conversation memory. Safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	maxMessages   int // per conversation
}

// NewStore creates a new memory store.
func NewStore(maxMessages int) *Store {
	if maxMessages <= 0 {
		maxMessages = 100
	}
	return &Store{
		conversations: make(map[string]*Conversation),
		maxMessages:   maxMessages,
	}
}

// GetConversation retrieves a conversation by ID. Returns nil if not found.
func (s *Store) GetConversation(id string) *Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil
	}
	return conv.copy()
}

// GetOrCreateConversation retrieves or creates a conversation.
func (s *Store) GetOrCreateConversation(id string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(id).copy()
}

func (s *Store) getOrCreateLocked(id string) *Conversation {
	conv, ok := s.conversations[id]
	if !ok {
		now := time.Now()
		conv = &Conversation{
			ID:        id,
			Messages:  []Message{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.conversations[id] = conv
	}
	return conv
}

// AddMessage appends a message to a conversation, creating it if needed.
func (s *Store) AddMessage(conversationID, role, content string) error {
	return s.addMessage(conversationID, Message{Role: role, Content: content})
}

func (s *Store) addMessage(conversationID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.getOrCreateLocked(conversationID)
	msg.Timestamp = time.Now()
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = msg.Timestamp
	if msg.Role == "user" {
		conv.QuestionCount++
	}

	// Trim if over max, keeping system messages plus the most recent.
	if len(conv.Messages) > s.maxMessages {
		var systemMsgs, otherMsgs []Message
		for _, m := range conv.Messages {
			if m.Role == "system" {
				systemMsgs = append(systemMsgs, m)
			} else {
				otherMsgs = append(otherMsgs, m)
			}
		}

		keep := s.maxMessages - len(systemMsgs)
		if keep < 10 {
			keep = 10
		}
		if len(otherMsgs) > keep {
			otherMsgs = otherMsgs[len(otherMsgs)-keep:]
		}
		conv.Messages = append(systemMsgs, otherMsgs...)
	}

	return nil
}

// GetMessages retrieves messages for a conversation. Returns an empty
// slice if the conversation doesn't exist.
func (s *Store) GetMessages(conversationID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return []Message{}
	}

	msgs := make([]Message, len(conv.Messages))
	copy(msgs, conv.Messages)
	return msgs
}

// SetDatasetContext records which CSV file a conversation is about.
func (s *Store) SetDatasetContext(conversationID, file, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.getOrCreateLocked(conversationID)
	conv.Dataset = &DatasetContext{File: file, Summary: summary}
	conv.UpdatedAt = time.Now()
}

// GetDatasetContext returns the CSV context for a conversation, or nil.
func (s *Store) GetDatasetContext(conversationID string) *DatasetContext {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok || conv.Dataset == nil {
		return nil
	}
	ds := *conv.Dataset
	return &ds
}

// QuestionCount returns how many user questions a conversation holds.
func (s *Store) QuestionCount(conversationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return 0
	}
	return conv.QuestionCount
}

// RecentQuestions returns the last count user questions, oldest first.
func (s *Store) RecentQuestions(conversationID string, count int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil
	}

	var questions []string
	for _, m := range conv.Messages {
		if m.Role == "user" {
			questions = append(questions, m.Content)
		}
	}
	if count > 0 && len(questions) > count {
		questions = questions[len(questions)-count:]
	}
	return questions
}

// HasHistory reports whether the conversation has any user messages.
func (s *Store) HasHistory(conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return false
	}
	for _, m := range conv.Messages {
		if m.Role == "user" {
			return true
		}
	}
	return false
}

// Clear removes a conversation.
func (s *Store) Clear(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
}

// GetTokenCount returns an estimated token count for a conversation.
func (s *Store) GetTokenCount(conversationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return 0
	}

	total := 0
	for _, m := range conv.Messages {
		total += estimateTokens(m.Content)
	}
	return total
}

// estimateTokens is a rough content-length heuristic, about 4
// characters per token.
func estimateTokens(content string) int {
	return len(content) / 4
}

// Stats returns memory statistics.
func (s *Store) Stats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totalMessages := 0
	for _, conv := range s.conversations {
		totalMessages += len(conv.Messages)
	}

	return map[string]any{
		"conversations": len(s.conversations),
		"messages":      totalMessages,
		"max_per_conv":  s.maxMessages,
	}
}

// GetAllConversations returns all conversations, most recent first not
// guaranteed.
func (s *Store) GetAllConversations() []*Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convs := make([]*Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		convs = append(convs, conv.copy())
	}
	return convs
}
