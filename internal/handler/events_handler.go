package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vishanth10/supabase-traversaal/internal/auth"
	"github.com/vishanth10/supabase-traversaal/internal/middleware"
	"github.com/vishanth10/supabase-traversaal/internal/model"
)

// defaultKeepAlive はSSE接続を維持するコメント行の送信間隔。
const defaultKeepAlive = 25 * time.Second

// EventSubscriber はセッション変更通知の購読に必要なインターフェース。auth.Eventsが実装する。
type EventSubscriber interface {
	Subscribe(sessionID string) (<-chan auth.Event, func())
}

// SessionEventsHandler はセッション変更通知をServer-Sent Eventsで配信する。
type SessionEventsHandler struct {
	checker   middleware.SessionChecker
	events    EventSubscriber
	keepAlive time.Duration
}

// NewSessionEventsHandler はSessionEventsHandlerを生成する。
func NewSessionEventsHandler(checker middleware.SessionChecker, events EventSubscriber) *SessionEventsHandler {
	return &SessionEventsHandler{
		checker:   checker,
		events:    events,
		keepAlive: defaultKeepAlive,
	}
}

// sessionEventData はSSEのdata行に載せるイベント内容。セッションIDは含めない。
type sessionEventData struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
}

// Stream はセッションの変更通知を配信する。
// 接続が切れるか SIGNED_OUT を送った時点で購読を解除する。
// GET /api/session/events
func (h *SessionEventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromRequest(r)
	if state, _ := h.checker.Check(r.Context(), sessionID); state == auth.StateAnonymous {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	events, unsubscribe := h.events.Subscribe(sessionID)
	defer unsubscribe()

	rc := http.NewResponseController(w)
	// 長時間接続のためサーバーの書き込みタイムアウトを解除する
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		slog.Warn("failed to clear write deadline", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	io.WriteString(w, "retry: 3000\n\n")
	rc.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				slog.Warn("failed to write session event", slog.String("error", err.Error()))
				return
			}
			rc.Flush()
			if ev.Type == auth.EventSignedOut {
				return
			}

		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			rc.Flush()
		}
	}
}

// writeSSE はイベント名付きのSSEメッセージを1件書き込む。
func writeSSE(w io.Writer, ev auth.Event) error {
	data, err := json.Marshal(sessionEventData{Type: string(ev.Type), At: ev.At})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
