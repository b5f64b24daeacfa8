package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/iach526526/pastexam/internal/discussion"
	"github.com/iach526526/pastexam/internal/middleware"
	"github.com/iach526526/pastexam/internal/taskstream"
)

// discussionConn serializes writes so broadcasts from other sessions do not
// interleave with history frames on the same connection.
type discussionConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *discussionConn) SendJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

type inboundChatFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func tooLongDetail(locale string) string {
	if locale == "zh-TW" {
		return "訊息超出 200 字"
	}
	return "message exceeds 200 characters"
}

// DiscussionWS joins the per-archive chat room. The server pushes recent
// history on connect, then relays posted messages to every room member.
func (a *App) DiscussionWS(w http.ResponseWriter, r *http.Request) {
	archiveID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid archive id")
		return
	}

	locale := middleware.LocaleFromContext(r.Context())

	raw, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("discussion ws upgrade failed")
		return
	}
	defer raw.Close()

	if a.Metrics != nil {
		a.Metrics.WSConnections.WithLabelValues("discussion").Inc()
		defer a.Metrics.WSConnections.WithLabelValues("discussion").Dec()
	}

	id, ok := a.wsIdentity(r, raw)
	if !ok {
		return
	}

	exists, err := a.Discussions.ArchiveExists(r.Context(), archiveID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("check archive failed")
		_ = raw.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "internal error"), closeDeadline())
		return
	}
	if !exists {
		_ = raw.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "archive not found"), closeDeadline())
		return
	}

	conn := &discussionConn{conn: raw}
	a.Registry.Join(archiveID, conn)
	defer a.Registry.Leave(archiveID, conn)

	history, err := a.Discussions.History(r.Context(), archiveID, 0, 0)
	if err != nil {
		a.Logger.Error().Err(err).Msg("load discussion history failed")
		_ = conn.SendJSON(map[string]any{"type": "error", "code": "internal"})
		return
	}
	if err := conn.SendJSON(map[string]any{"type": "history", "messages": history}); err != nil {
		return
	}

	for {
		var frame inboundChatFrame
		if err := raw.ReadJSON(&frame); err != nil {
			return
		}
		if time.Now().After(id.Exp) {
			_ = raw.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(taskstream.CloseTokenExpired, "token expired"), closeDeadline())
			return
		}
		if frame.Type != "send" {
			continue
		}

		msg, err := a.Discussions.Post(r.Context(), archiveID, id.UserID, frame.Content)
		switch {
		case errors.Is(err, discussion.ErrEmptyMessage):
			continue
		case errors.Is(err, discussion.ErrMessageTooLong):
			if sendErr := conn.SendJSON(map[string]any{
				"type":   "error",
				"code":   "message_too_long",
				"detail": tooLongDetail(locale),
			}); sendErr != nil {
				return
			}
			continue
		case err != nil:
			a.Logger.Error().Err(err).Msg("post discussion message failed")
			if sendErr := conn.SendJSON(map[string]any{"type": "error", "code": "internal"}); sendErr != nil {
				return
			}
			continue
		}

		a.Registry.Broadcast(archiveID, map[string]any{"type": "message", "message": msg})
	}
}

// DiscussionHistory serves older messages for scroll-back over plain HTTP.
func (a *App) DiscussionHistory(w http.ResponseWriter, r *http.Request) {
	archiveID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid archive id")
		return
	}
	exists, err := a.Discussions.ArchiveExists(r.Context(), archiveID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("check archive failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load discussion")
		return
	}
	if !exists {
		a.error(w, http.StatusNotFound, "not_found", "archive not found")
		return
	}

	beforeID := int64(queryInt(r, "before_id", 0))
	limit := queryInt(r, "limit", 0)

	msgs, err := a.Discussions.History(r.Context(), archiveID, beforeID, limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("load discussion history failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load discussion")
		return
	}
	if msgs == nil {
		msgs = []discussion.Message{}
	}
	a.json(w, http.StatusOK, map[string]any{"messages": msgs})
}

// DeleteDiscussionMessage soft-deletes a message and tells the room.
func (a *App) DeleteDiscussionMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := a.currentUser(r)
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	messageID, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid message id")
		return
	}

	archiveID, err := a.Discussions.Delete(r.Context(), messageID, id.UserID, id.IsAdmin)
	switch {
	case errors.Is(err, discussion.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "message not found")
		return
	case errors.Is(err, discussion.ErrForbidden):
		a.error(w, http.StatusForbidden, "forbidden", "not allowed to delete this message")
		return
	case err != nil:
		a.Logger.Error().Err(err).Msg("delete discussion message failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete message")
		return
	}

	a.Registry.Broadcast(archiveID, map[string]any{"type": "delete", "message_id": messageID})
	a.json(w, http.StatusOK, map[string]any{"success": true, "message": "message deleted"})
}
