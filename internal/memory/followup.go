package memory

import "strings"

// followUpIndicators are words and pronouns that usually mean a
// question leans on earlier conversation for its referent.
var followUpIndicators = []string{
	"also", "too", "and", "what about", "how about",
	"can you", "tell me more", "explain", "why",
	"that", "this", "it", "them", "those", "these",
}

// IsFollowUp reports whether a question is likely a follow-up to the
// conversation so far. A conversation with no history never has
// follow-ups.
func (s *Store) IsFollowUp(conversationID, question string) bool {
	if !s.HasHistory(conversationID) {
		return false
	}

	lower := strings.ToLower(question)
	for _, indicator := range followUpIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}

	// Short questions usually lean on prior context.
	return len(strings.Fields(question)) < 5
}
