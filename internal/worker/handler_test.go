package worker

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iach526526/pastexam/internal/aiexam"
)

func streamStatuses(t *testing.T, rdb *redis.Client, taskID string) []string {
	t.Helper()
	msgs, err := rdb.XRange(context.Background(), aiexam.EventStreamKey(taskID), "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	statuses := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if s, ok := m.Values["status"].(string); ok {
			statuses = append(statuses, s)
		}
	}
	return statuses
}

func newHandlerTest(t *testing.T, sql *fakeSQL, client *fakeContentClient) (*Handler, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	gen, store := newTestGenerator(t, sql, client)
	if _, err := store.Put(context.Background(), "archives/11.pdf", "application/pdf", 8, strings.NewReader("%PDF-1.4")); err != nil {
		t.Fatalf("seed object: %v", err)
	}

	pub := aiexam.NewPublisher(rdb, zerolog.New(io.Discard))
	return NewHandler(gen, pub, nil, zerolog.New(io.Discard)), rdb
}

func makeTask(t *testing.T, payload aiexam.TaskPayload) *asynq.Task {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return asynq.NewTask(aiexam.TypeGenerateExam, raw)
}

func TestHandleGenerateExamSuccessPublishesLifecycle(t *testing.T) {
	sql := &fakeSQL{
		apiKey: "user-key",
		archiveRows: [][]any{
			{int64(11), "期中考", "midterm", 2025, "archives/11.pdf", "application/pdf", "作業系統", "林教授"},
		},
	}
	handler, rdb := newHandlerTest(t, sql, &fakeContentClient{output: "Q1"})

	task := makeTask(t, aiexam.TaskPayload{TaskID: "task-1", UserID: 1, ArchiveIDs: []int64{11}})
	if err := handler.HandleGenerateExam(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}

	statuses := streamStatuses(t, rdb, "task-1")
	want := []string{aiexam.StatusInProgress, aiexam.StatusComplete}
	if len(statuses) != len(want) {
		t.Fatalf("statuses = %v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("statuses = %v, want %v", statuses, want)
		}
	}
}

func TestHandleGenerateExamFailurePublishesError(t *testing.T) {
	// A blank api key makes the generator refuse the task.
	handler, rdb := newHandlerTest(t, &fakeSQL{apiKey: ""}, &fakeContentClient{})

	task := makeTask(t, aiexam.TaskPayload{TaskID: "task-2", UserID: 1, ArchiveIDs: []int64{11}})
	if err := handler.HandleGenerateExam(context.Background(), task); err == nil {
		t.Fatalf("expected error")
	}

	statuses := streamStatuses(t, rdb, "task-2")
	if len(statuses) != 2 || statuses[0] != aiexam.StatusInProgress || statuses[1] != aiexam.StatusFailed {
		t.Fatalf("statuses = %v", statuses)
	}

	msgs, err := rdb.XRange(context.Background(), aiexam.EventStreamKey("task-2"), "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if _, ok := msgs[1].Values["error"]; !ok {
		t.Fatalf("failed event missing error field: %+v", msgs[1].Values)
	}
}

func TestHandleGenerateExamRejectsBadPayload(t *testing.T) {
	handler, _ := newHandlerTest(t, &fakeSQL{apiKey: "key"}, &fakeContentClient{})

	task := asynq.NewTask(aiexam.TypeGenerateExam, []byte("{not json"))
	if err := handler.HandleGenerateExam(context.Background(), task); err == nil {
		t.Fatalf("expected decode error")
	}
}
