package web

import (
	"html/template"
	"net/http"
	"sort"

	"github.com/tabq/tabq/internal/memory"
)

// HistoryData is the template context for the conversation list page.
type HistoryData struct {
	PageData
	Conversations []*conversationRow
	Stats         *StatsSnapshot
}

// conversationRow is a display-friendly wrapper for the list view.
type conversationRow struct {
	ID            string
	MessageCount  int
	QuestionCount int
	DatasetFile   string
	UpdatedAt     string
}

// handleHistory renders the conversation list, newest first.
func (s *WebServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	convs := s.store.GetAllConversations()
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})

	rows := make([]*conversationRow, 0, len(convs))
	for _, c := range convs {
		row := &conversationRow{
			ID:            c.ID,
			MessageCount:  len(c.Messages),
			QuestionCount: c.QuestionCount,
			UpdatedAt:     formatTime(c.UpdatedAt),
		}
		if c.Dataset != nil {
			row.DatasetFile = c.Dataset.File
		}
		rows = append(rows, row)
	}

	data := HistoryData{
		PageData:      PageData{BrandName: s.brandName, ActiveNav: "history"},
		Conversations: rows,
	}
	if s.statsFunc != nil {
		snap := s.statsFunc()
		data.Stats = &snap
	}
	s.render(w, r, "history.html", data)
}

// HistoryDetailData is the template context for one conversation.
type HistoryDetailData struct {
	PageData
	Conversation *memory.Conversation
	Messages     []*messageRow
}

// messageRow pairs a message with its rendered form.
type messageRow struct {
	Role      string
	Content   template.HTML
	Timestamp string
}

// handleHistoryDetail renders a single conversation transcript.
func (s *WebServer) handleHistoryDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conv := s.store.GetConversation(id)
	if conv == nil {
		http.NotFound(w, r)
		return
	}

	rows := make([]*messageRow, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		row := &messageRow{
			Role:      m.Role,
			Timestamp: formatTime(m.Timestamp),
		}
		if m.Role == "assistant" {
			row.Content = renderMarkdown(m.Content)
		} else {
			row.Content = template.HTML(template.HTMLEscapeString(m.Content))
		}
		rows = append(rows, row)
	}

	s.render(w, r, "history_detail.html", HistoryDetailData{
		PageData:     PageData{BrandName: s.brandName, ActiveNav: "history"},
		Conversation: conv,
		Messages:     rows,
	})
}
