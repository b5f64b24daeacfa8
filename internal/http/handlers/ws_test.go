package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/iach526526/pastexam/internal/aiexam"
	"github.com/iach526526/pastexam/internal/discussion"
	"github.com/iach526526/pastexam/internal/infra"
	"github.com/iach526526/pastexam/internal/middleware"
	"github.com/iach526526/pastexam/internal/sqlinline"
	"github.com/iach526526/pastexam/internal/taskstream"
)

func dialWS(t *testing.T, httpURL, path, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + path + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	return conn
}

func signTestToken(t *testing.T, userID int64) string {
	t.Helper()
	token, err := middleware.SignJWT("test-secret", userID, false, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestDiscussionWSPostAndBroadcast(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	sql := &stubSQL{
		row: map[string]fakeRow{
			sqlinline.QArchiveExists:           {values: []any{true}},
			sqlinline.QSelectUserDisplayName:   {values: []any{"Alice", "小艾"}},
			sqlinline.QInsertDiscussionMessage: {values: []any{int64(2), now}},
		},
		rows: map[string][][]any{
			sqlinline.QListDiscussionMessages: {
				{int64(1), int64(5), int64(9), "first post", now.Add(-time.Minute), "Bob", ""},
			},
		},
	}

	app := &App{
		Logger:      zerolog.New(io.Discard),
		Cfg:         &infra.Config{JWTSecret: "test-secret"},
		Redis:       newRedisClient(t),
		SQL:         sql,
		Discussions: discussion.NewService(sql),
		Registry:    discussion.NewRegistry(),
	}

	r := chi.NewRouter()
	r.Get("/archives/{id}/discussion/ws", app.DiscussionWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dialWS(t, srv.URL, "/archives/5/discussion/ws", signTestToken(t, 7))
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var historyFrame struct {
		Type     string               `json:"type"`
		Messages []discussion.Message `json:"messages"`
	}
	if err := conn.ReadJSON(&historyFrame); err != nil {
		t.Fatalf("read history: %v", err)
	}
	if historyFrame.Type != "history" || len(historyFrame.Messages) != 1 {
		t.Fatalf("history frame = %+v", historyFrame)
	}
	if historyFrame.Messages[0].Content != "first post" {
		t.Fatalf("history content = %q", historyFrame.Messages[0].Content)
	}

	if err := conn.WriteJSON(map[string]string{"type": "send", "content": "hi there"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var msgFrame struct {
		Type    string             `json:"type"`
		Message discussion.Message `json:"message"`
	}
	if err := conn.ReadJSON(&msgFrame); err != nil {
		t.Fatalf("read message: %v", err)
	}
	if msgFrame.Type != "message" || msgFrame.Message.Content != "hi there" {
		t.Fatalf("message frame = %+v", msgFrame)
	}
	if msgFrame.Message.UserName != "小艾" {
		t.Fatalf("user name = %q, want nickname", msgFrame.Message.UserName)
	}

	long := strings.Repeat("字", discussion.MaxMessageLength+1)
	if err := conn.WriteJSON(map[string]string{"type": "send", "content": long}); err != nil {
		t.Fatalf("write long: %v", err)
	}
	var errFrame struct {
		Type string `json:"type"`
		Code string `json:"code"`
	}
	if err := conn.ReadJSON(&errFrame); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if errFrame.Type != "error" || errFrame.Code != "message_too_long" {
		t.Fatalf("error frame = %+v", errFrame)
	}

	// The connection survives a rejected message.
	if err := conn.WriteJSON(map[string]string{"type": "send", "content": "still here"}); err != nil {
		t.Fatalf("write after error: %v", err)
	}
	if err := conn.ReadJSON(&msgFrame); err != nil {
		t.Fatalf("read after error: %v", err)
	}
	if msgFrame.Message.Content != "still here" {
		t.Fatalf("message after error = %+v", msgFrame)
	}
}

func TestDiscussionWSRejectsMissingToken(t *testing.T) {
	app := &App{
		Logger: zerolog.New(io.Discard),
		Cfg:    &infra.Config{JWTSecret: "test-secret"},
		Redis:  newRedisClient(t),
	}
	r := chi.NewRouter()
	r.Get("/archives/{id}/discussion/ws", app.DiscussionWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	// No token at all. The upgrade still succeeds so browser clients can
	// read the close code.
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/archives/5/discussion/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var frame map[string]any
	err = conn.ReadJSON(&frame)
	if !websocket.IsCloseError(err, taskstream.CloseTokenExpired) {
		t.Fatalf("close err = %v, want 4401", err)
	}
}

func TestDiscussionWSUnknownArchiveClosesPolicy(t *testing.T) {
	sql := &stubSQL{
		row: map[string]fakeRow{
			sqlinline.QArchiveExists: {values: []any{false}},
		},
	}
	app := &App{
		Logger:      zerolog.New(io.Discard),
		Cfg:         &infra.Config{JWTSecret: "test-secret"},
		Redis:       newRedisClient(t),
		SQL:         sql,
		Discussions: discussion.NewService(sql),
		Registry:    discussion.NewRegistry(),
	}
	r := chi.NewRouter()
	r.Get("/archives/{id}/discussion/ws", app.DiscussionWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dialWS(t, srv.URL, "/archives/404/discussion/ws", signTestToken(t, 7))
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var frame map[string]any
	err := conn.ReadJSON(&frame)
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("close err = %v, want 1008", err)
	}
}

func TestDiscussionWSDeleteBroadcast(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	sql := &stubSQL{
		row: map[string]fakeRow{
			sqlinline.QArchiveExists:           {values: []any{true}},
			sqlinline.QSelectDiscussionMessage: {values: []any{int64(2), int64(5), int64(9), false}},
		},
		rows: map[string][][]any{
			sqlinline.QListDiscussionMessages: {
				{int64(2), int64(5), int64(9), "to be removed", now, "Bob", ""},
			},
		},
	}

	app := &App{
		Logger:      zerolog.New(io.Discard),
		Cfg:         &infra.Config{JWTSecret: "test-secret"},
		Redis:       newRedisClient(t),
		SQL:         sql,
		Discussions: discussion.NewService(sql),
		Registry:    discussion.NewRegistry(),
	}

	r := chi.NewRouter()
	r.Get("/archives/{id}/discussion/ws", app.DiscussionWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	connA := dialWS(t, srv.URL, "/archives/5/discussion/ws", signTestToken(t, 7))
	defer connA.Close()
	connB := dialWS(t, srv.URL, "/archives/5/discussion/ws", signTestToken(t, 8))
	defer connB.Close()

	var history map[string]any
	for _, conn := range []*websocket.Conn{connA, connB} {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&history); err != nil {
			t.Fatalf("read history: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := authedRequest(http.MethodDelete, "/archives/5/discussion/messages/2", nil, 1, true)
	req = withChiParam(req, "messageID", "2")
	app.DeleteDiscussionMessage(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["success"] != true {
		t.Fatalf("delete body = %v, want success true", body)
	}

	// Every room member hears about the deletion.
	for _, conn := range []*websocket.Conn{connA, connB} {
		var frame struct {
			Type      string `json:"type"`
			MessageID int64  `json:"message_id"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read delete frame: %v", err)
		}
		if frame.Type != "delete" || frame.MessageID != 2 {
			t.Fatalf("delete frame = %+v", frame)
		}
	}
}

func TestTaskStatusWSStreamsCompletedTask(t *testing.T) {
	result := aiexam.Result{Success: true, GeneratedContent: "generated exam"}
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}

	app, store := newTaskApp(t, &fakeInspector{info: &asynq.TaskInfo{
		State:  asynq.TaskStateCompleted,
		Result: raw,
	}})
	app.Streamer = taskstream.NewStreamer(store, zerolog.New(io.Discard))

	ctx := context.Background()
	if err := store.PutMetadata(ctx, "task-1", &aiexam.Metadata{
		UserID:    7,
		Status:    aiexam.StatusInProgress,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed metadata: %v", err)
	}

	r := chi.NewRouter()
	r.Get("/ai/tasks/{id}/ws", app.TaskStatusWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dialWS(t, srv.URL, "/ai/tasks/task-1/ws", signTestToken(t, 7))
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var frame taskstream.Message
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame.Status != aiexam.StatusComplete {
		t.Fatalf("status = %q, want complete", frame.Status)
	}
	if frame.Result == nil || frame.Result.GeneratedContent != "generated exam" {
		t.Fatalf("result = %+v", frame.Result)
	}
	if frame.CompletedAt == "" {
		t.Fatalf("completed_at missing: %+v", frame)
	}

	err = conn.ReadJSON(&frame)
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("close err = %v, want 1000", err)
	}

	meta, err := store.Metadata(ctx, "task-1")
	if err != nil || meta == nil {
		t.Fatalf("metadata = %v, %v", meta, err)
	}
	if meta.Status != aiexam.StatusComplete || meta.CompletedAt == "" {
		t.Fatalf("metadata not patched: %+v", meta)
	}
}

func TestTaskStatusWSForeignTaskClosesPolicy(t *testing.T) {
	app, store := newTaskApp(t, &fakeInspector{err: asynq.ErrTaskNotFound})
	app.Streamer = taskstream.NewStreamer(store, zerolog.New(io.Discard))

	if err := store.PutMetadata(context.Background(), "task-1", &aiexam.Metadata{
		UserID: 1, Status: aiexam.StatusPending, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("seed metadata: %v", err)
	}

	r := chi.NewRouter()
	r.Get("/ai/tasks/{id}/ws", app.TaskStatusWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dialWS(t, srv.URL, "/ai/tasks/task-1/ws", signTestToken(t, 99))
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var frame taskstream.Message
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame.Status != aiexam.StatusNotFound {
		t.Fatalf("status = %q, want not_found", frame.Status)
	}
	err := conn.ReadJSON(&frame)
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("close err = %v, want 1008", err)
	}
}
