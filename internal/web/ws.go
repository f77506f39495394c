package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tabq/tabq/internal/agent"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The UI is served from the same origin as this endpoint.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsFrame is one JSON message pushed to the browser during streaming.
type wsFrame struct {
	Type       string `json:"type"` // token, tool_start, tool_done, done, error
	Token      string `json:"token,omitempty"`
	Tool       string `json:"tool,omitempty"`
	ToolError  string `json:"tool_error,omitempty"`
	Answer     string `json:"answer,omitempty"`
	AnswerHTML string `json:"answer_html,omitempty"`
	Error      string `json:"error,omitempty"`
}

// wsQuestion is the message the browser sends to ask a question.
type wsQuestion struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id,omitempty"`
	Model          string `json:"model,omitempty"`
}

const wsWriteWait = 10 * time.Second

// handleWS streams answers over a websocket. The browser sends one
// question per message and receives token, tool, and done frames.
func (s *WebServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	send := func(f wsFrame) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(f)
	}

	for {
		var q wsQuestion
		if err := conn.ReadJSON(&q); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.logger.Debug("websocket read failed", "error", err)
			return
		}
		if q.Question == "" {
			if err := send(wsFrame{Type: "error", Error: "question is required"}); err != nil {
				return
			}
			continue
		}

		callback := func(ev agent.StreamEvent) {
			switch ev.Kind {
			case agent.KindToken:
				_ = send(wsFrame{Type: "token", Token: ev.Token})
			case agent.KindToolCallStart:
				_ = send(wsFrame{Type: "tool_start", Tool: ev.ToolName})
			case agent.KindToolCallDone:
				_ = send(wsFrame{Type: "tool_done", Tool: ev.ToolName, ToolError: ev.ToolError})
			}
		}

		resp, err := s.agent.Run(r.Context(), &agent.Request{
			Question:       q.Question,
			ConversationID: q.ConversationID,
			Model:          q.Model,
		}, callback)
		if err != nil {
			s.logger.Error("websocket ask failed", "error", err)
			if err := send(wsFrame{Type: "error", Error: err.Error()}); err != nil {
				return
			}
			continue
		}

		if err := send(wsFrame{
			Type:       "done",
			Answer:     resp.Answer,
			AnswerHTML: string(renderMarkdown(resp.Answer)),
		}); err != nil {
			return
		}
	}
}
