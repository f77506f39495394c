package memory

import (
	"encoding/json"
	"fmt"
)

// conversationExport is the JSON envelope for exported conversations.
type conversationExport struct {
	Version      int           `json:"version"`
	Conversation *Conversation `json:"conversation"`
}

const exportVersion = 1

// Export serializes a conversation to JSON.
func (s *Store) Export(conversationID string) ([]byte, error) {
	conv := s.GetConversation(conversationID)
	if conv == nil {
		return nil, fmt.Errorf("conversation %q not found", conversationID)
	}

	return json.MarshalIndent(conversationExport{
		Version:      exportVersion,
		Conversation: conv,
	}, "", "  ")
}

// Import restores a conversation from exported JSON, replacing any
// existing conversation with the same ID.
func (s *Store) Import(data []byte) (string, error) {
	var export conversationExport
	if err := json.Unmarshal(data, &export); err != nil {
		return "", fmt.Errorf("decode export: %w", err)
	}
	if export.Conversation == nil || export.Conversation.ID == "" {
		return "", fmt.Errorf("export contains no conversation")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[export.Conversation.ID] = export.Conversation.copy()

	return export.Conversation.ID, nil
}
