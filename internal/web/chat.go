package web

import (
	"html/template"
	"net/http"

	"github.com/tabq/tabq/internal/agent"
)

// ChatData is the template context for the chat page.
type ChatData struct {
	PageData
	DatasetLoaded bool
	DatasetName   string
	Suggestions   []string
}

// handleChat renders the chat page wrapped in the shared layout.
func (s *WebServer) handleChat(w http.ResponseWriter, r *http.Request) {
	data := ChatData{
		PageData: PageData{
			BrandName: s.brandName,
			ActiveNav: "chat",
		},
		DatasetLoaded: s.table.Loaded(),
	}
	if data.DatasetLoaded {
		if meta, err := s.table.Metadata(); err == nil {
			data.DatasetName = meta.FileName
		}
		data.Suggestions = s.agent.SuggestedQuestions()
	}
	s.render(w, r, "chat.html", data)
}

// MessageData is the template context for a single rendered exchange.
type MessageData struct {
	Question  string
	AnswerMD  string
	Answer    template.HTML
	ToolNames []string
	Error     string
}

// handleAskPartial answers a question synchronously and returns the
// rendered exchange. This is the htmx fallback path; the websocket
// handles streaming.
func (s *WebServer) handleAskPartial(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	question := r.FormValue("question")
	if question == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}
	convID := r.FormValue("conversation_id")

	data := MessageData{Question: question}

	resp, err := s.agent.Ask(r.Context(), &agent.Request{
		Question:       question,
		ConversationID: convID,
	})
	if err != nil {
		s.logger.Error("ask failed", "error", err)
		data.Error = err.Error()
	} else {
		data.AnswerMD = resp.Answer
		data.Answer = renderMarkdown(resp.Answer)
		for _, tc := range resp.ToolCalls {
			data.ToolNames = append(data.ToolNames, tc.Tool)
		}
	}
	s.renderPartial(w, "message.html", data)
}
