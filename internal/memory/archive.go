package memory

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Archive persists conversations and tool call history in SQLite so
// sessions survive restarts and remain queryable. The caller opens the
// database and registers a driver; tests use an in-memory driver.
type Archive struct {
	db          *sql.DB
	maxMessages int
}

// NewArchive creates an archive on an open database, running
// migrations on first use.
func NewArchive(db *sql.DB, maxMessages int) (*Archive, error) {
	if maxMessages <= 0 {
		maxMessages = 100
	}

	a := &Archive{db: db, maxMessages: maxMessages}
	if err := a.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return a, nil
}

func (a *Archive) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		dataset_file TEXT,
		question_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		token_count INTEGER DEFAULT 0,
		tool_calls TEXT,
		tool_call_id TEXT,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp);

	CREATE TABLE IF NOT EXISTS tool_calls (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		arguments TEXT NOT NULL,
		result TEXT,
		error TEXT,
		started_at TIMESTAMP NOT NULL,
		duration_ms INTEGER,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_conversation ON tool_calls(conversation_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_tool ON tool_calls(tool_name);
	`

	_, err := a.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// GetOrCreateConversation ensures a conversation row exists.
func (a *Archive) GetOrCreateConversation(id string) error {
	now := time.Now()
	_, err := a.db.Exec(`
		INSERT OR IGNORE INTO conversations (id, created_at, updated_at)
		VALUES (?, ?, ?)
	`, id, now, now)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// SetDatasetFile records which CSV file a conversation analyzed.
func (a *Archive) SetDatasetFile(conversationID, file string) error {
	if err := a.GetOrCreateConversation(conversationID); err != nil {
		return err
	}
	_, err := a.db.Exec(`
		UPDATE conversations SET dataset_file = ?, updated_at = ? WHERE id = ?
	`, file, time.Now(), conversationID)
	return err
}

// AddMessage appends a message to the archived conversation.
func (a *Archive) AddMessage(conversationID string, msg Message) error {
	if err := a.GetOrCreateConversation(conversationID); err != nil {
		return err
	}

	now := time.Now()
	msgID, _ := uuid.NewV7()

	_, err := a.db.Exec(`
		INSERT INTO messages (id, conversation_id, role, content, timestamp, token_count, tool_calls, tool_call_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msgID.String(), conversationID, msg.Role, msg.Content, now,
		estimateTokens(msg.Content), nullable(msg.ToolCalls), nullable(msg.ToolCallID))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	bump := `UPDATE conversations SET updated_at = ?`
	args := []any{now}
	if msg.Role == "user" {
		bump += `, question_count = question_count + 1`
	}
	bump += ` WHERE id = ?`
	args = append(args, conversationID)

	if _, err := a.db.Exec(bump, args...); err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// RecordToolCall stores a completed tool execution.
func (a *Archive) RecordToolCall(conversationID, toolName, argsJSON, result string, execErr error, started time.Time) error {
	if err := a.GetOrCreateConversation(conversationID); err != nil {
		return err
	}

	id, _ := uuid.NewV7()
	var errText any
	if execErr != nil {
		errText = execErr.Error()
	}

	_, err := a.db.Exec(`
		INSERT INTO tool_calls (id, conversation_id, tool_name, arguments, result, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id.String(), conversationID, toolName, argsJSON, result, errText,
		started, time.Since(started).Milliseconds())
	if err != nil {
		return fmt.Errorf("insert tool call: %w", err)
	}
	return nil
}

// GetMessages retrieves archived messages for a conversation, oldest
// first, capped at the configured maximum.
func (a *Archive) GetMessages(conversationID string) []Message {
	rows, err := a.db.Query(`
		SELECT role, content, timestamp, tool_calls, tool_call_id
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC
		LIMIT ?
	`, conversationID, a.maxMessages)
	if err != nil {
		return []Message{}
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var toolCalls, toolCallID sql.NullString
		if err := rows.Scan(&m.Role, &m.Content, &m.Timestamp, &toolCalls, &toolCallID); err != nil {
			continue
		}
		m.ToolCalls = toolCalls.String
		m.ToolCallID = toolCallID.String
		messages = append(messages, m)
	}
	return messages
}

// ConversationSummary is a row in the conversation listing.
type ConversationSummary struct {
	ID            string    `json:"id"`
	DatasetFile   string    `json:"dataset_file,omitempty"`
	QuestionCount int       `json:"question_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ListConversations returns archived conversations, most recent first.
func (a *Archive) ListConversations(limit int) ([]ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.Query(`
		SELECT id, COALESCE(dataset_file, ''), question_count, created_at, updated_at
		FROM conversations
		ORDER BY updated_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var c ConversationSummary
		if err := rows.Scan(&c.ID, &c.DatasetFile, &c.QuestionCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete removes a conversation and its messages and tool calls.
func (a *Archive) Delete(conversationID string) error {
	tx, err := a.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM tool_calls WHERE conversation_id = ?`,
		`DELETE FROM messages WHERE conversation_id = ?`,
		`DELETE FROM conversations WHERE id = ?`,
	} {
		if _, err := tx.Exec(q, conversationID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Stats returns archive statistics.
func (a *Archive) Stats() map[string]any {
	var convCount, msgCount, toolCount, tokenCount int

	_ = a.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&convCount)
	_ = a.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&msgCount)
	_ = a.db.QueryRow(`SELECT COUNT(*) FROM tool_calls`).Scan(&toolCount)
	_ = a.db.QueryRow(`SELECT COALESCE(SUM(token_count), 0) FROM messages`).Scan(&tokenCount)

	return map[string]any{
		"conversations": convCount,
		"messages":      msgCount,
		"tool_calls":    toolCount,
		"total_tokens":  tokenCount,
		"storage":       "sqlite",
	}
}
