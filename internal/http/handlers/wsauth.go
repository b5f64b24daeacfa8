package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iach526526/pastexam/internal/middleware"
	"github.com/iach526526/pastexam/internal/taskstream"
)

// wsToken pulls the access token for a websocket upgrade. Browsers cannot set
// the Authorization header on websocket requests, so a token query parameter
// is accepted as well.
func wsToken(r *http.Request) string {
	if token := middleware.BearerToken(r); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

// wsIdentity authenticates an already-upgraded websocket connection. Browser
// clients cannot observe the HTTP status of a failed upgrade, so a missing,
// invalid, or revoked token closes the socket with 4401 instead.
func (a *App) wsIdentity(r *http.Request, conn *websocket.Conn) (middleware.Identity, bool) {
	reject := func(reason string) (middleware.Identity, bool) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(taskstream.CloseTokenExpired, reason), closeDeadline())
		return middleware.Identity{}, false
	}

	token := wsToken(r)
	if token == "" {
		return reject("missing token")
	}

	claims, err := middleware.VerifyJWT(a.Cfg.JWTSecret, token)
	if err != nil {
		return reject("invalid token")
	}

	revoked, err := a.IsTokenBlacklisted(r.Context(), token)
	if err != nil || revoked {
		return reject("invalid token")
	}

	return middleware.Identity{
		UserID:  claims.UID,
		IsAdmin: claims.IsAdmin,
		Token:   token,
		Exp:     time.Unix(claims.Exp, 0),
	}, true
}
