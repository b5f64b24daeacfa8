package taskstream

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/iach526526/pastexam/internal/aiexam"
)

type fakeConn struct {
	sent      []Message
	closeCode int
	closed    bool
}

func (c *fakeConn) Send(msg Message) error {
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	if !c.closed {
		c.closed = true
		c.closeCode = code
	}
	return nil
}

type fakeStore struct {
	meta        *aiexam.Metadata
	statuses    []string
	result      *aiexam.Result
	resultErr   error
	events      [][]aiexam.Event
	patchedAt   time.Time
	statusCalls int
	eventCalls  int
}

func (f *fakeStore) Metadata(ctx context.Context, taskID string) (*aiexam.Metadata, error) {
	return f.meta, nil
}

func (f *fakeStore) Status(ctx context.Context, taskID string) (string, error) {
	if f.statusCalls >= len(f.statuses) {
		return f.statuses[len(f.statuses)-1], nil
	}
	s := f.statuses[f.statusCalls]
	f.statusCalls++
	return s, nil
}

func (f *fakeStore) Result(ctx context.Context, taskID string) (*aiexam.Result, error) {
	return f.result, f.resultErr
}

func (f *fakeStore) ReadEvents(ctx context.Context, taskID, cursor string) ([]aiexam.Event, error) {
	if f.eventCalls >= len(f.events) {
		return nil, nil
	}
	batch := f.events[f.eventCalls]
	f.eventCalls++
	return batch, nil
}

func (f *fakeStore) PatchCompleted(ctx context.Context, taskID string, completedAt time.Time) error {
	f.patchedAt = completedAt
	return nil
}

func newStreamer(store Store) *Streamer {
	return NewStreamer(store, zerolog.New(io.Discard))
}

func futureExp() time.Time { return time.Now().Add(time.Hour) }

func TestRunUnknownTaskCloses1008(t *testing.T) {
	store := &fakeStore{meta: nil}
	conn := &fakeConn{}

	newStreamer(store).Run(context.Background(), conn, "task-1", 7, futureExp())

	if len(conn.sent) != 1 || conn.sent[0].Status != aiexam.StatusNotFound {
		t.Fatalf("sent = %+v", conn.sent)
	}
	if conn.closeCode != ClosePolicy {
		t.Fatalf("close code = %d, want %d", conn.closeCode, ClosePolicy)
	}
}

func TestRunForeignTaskCloses1008(t *testing.T) {
	store := &fakeStore{meta: &aiexam.Metadata{UserID: 99, Status: aiexam.StatusPending}}
	conn := &fakeConn{}

	newStreamer(store).Run(context.Background(), conn, "task-1", 7, futureExp())

	if conn.closeCode != ClosePolicy {
		t.Fatalf("close code = %d, want %d", conn.closeCode, ClosePolicy)
	}
}

func TestRunQueueNotFoundCloses1000(t *testing.T) {
	store := &fakeStore{
		meta:     &aiexam.Metadata{UserID: 7, Status: aiexam.StatusPending},
		statuses: []string{aiexam.StatusNotFound},
	}
	conn := &fakeConn{}

	newStreamer(store).Run(context.Background(), conn, "task-1", 7, futureExp())

	// The task was the caller's; the queue has since dropped it.
	if len(conn.sent) != 1 || conn.sent[0].Status != aiexam.StatusNotFound {
		t.Fatalf("sent = %+v", conn.sent)
	}
	if conn.closeCode != CloseNormal {
		t.Fatalf("close code = %d, want %d", conn.closeCode, CloseNormal)
	}
}

func TestRunResultFetchErrorCloses1011(t *testing.T) {
	store := &fakeStore{
		meta:      &aiexam.Metadata{UserID: 7, Status: aiexam.StatusPending},
		statuses:  []string{aiexam.StatusPending},
		resultErr: aiexam.ErrMalformedResult,
		events: [][]aiexam.Event{
			{{ID: "1-0", Status: aiexam.StatusComplete}},
		},
	}
	conn := &fakeConn{}

	newStreamer(store).Run(context.Background(), conn, "task-1", 7, futureExp())

	if conn.closeCode != CloseInternal {
		t.Fatalf("close code = %d, want %d", conn.closeCode, CloseInternal)
	}
	if !store.patchedAt.IsZero() {
		t.Fatalf("metadata patched despite missing result")
	}
}

func TestRunFullLifecycle(t *testing.T) {
	store := &fakeStore{
		meta:     &aiexam.Metadata{UserID: 7, Status: aiexam.StatusPending, CreatedAt: time.Now().UTC()},
		statuses: []string{aiexam.StatusPending},
		result:   &aiexam.Result{Success: true, GeneratedContent: "Q1"},
		events: [][]aiexam.Event{
			{{ID: "1-0", Status: aiexam.StatusInProgress}},
			{{ID: "2-0", Status: aiexam.StatusComplete}},
		},
	}
	conn := &fakeConn{}

	newStreamer(store).Run(context.Background(), conn, "task-1", 7, futureExp())

	if len(conn.sent) != 3 {
		t.Fatalf("sent %d messages, want 3: %+v", len(conn.sent), conn.sent)
	}
	if conn.sent[0].Status != aiexam.StatusPending {
		t.Fatalf("first = %+v", conn.sent[0])
	}
	if conn.sent[1].Status != aiexam.StatusInProgress {
		t.Fatalf("second = %+v", conn.sent[1])
	}
	final := conn.sent[2]
	if final.Status != aiexam.StatusComplete {
		t.Fatalf("final status = %q", final.Status)
	}
	if final.Result == nil || final.Result.GeneratedContent != "Q1" {
		t.Fatalf("final result = %+v", final.Result)
	}
	if final.CompletedAt == "" {
		t.Fatalf("final missing completed_at")
	}
	if conn.closeCode != CloseNormal {
		t.Fatalf("close code = %d, want %d", conn.closeCode, CloseNormal)
	}
	if store.patchedAt.IsZero() {
		t.Fatalf("metadata not patched")
	}
}

func TestRunCoalescesDuplicateStatuses(t *testing.T) {
	store := &fakeStore{
		meta:     &aiexam.Metadata{UserID: 7, Status: aiexam.StatusPending},
		statuses: []string{aiexam.StatusPending},
		events: [][]aiexam.Event{
			{
				{ID: "1-0", Status: aiexam.StatusPending},
				{ID: "2-0", Status: ""},
				{ID: "3-0", Status: aiexam.StatusInProgress},
				{ID: "4-0", Status: aiexam.StatusInProgress},
			},
			{{ID: "5-0", Status: aiexam.StatusComplete}},
		},
	}
	conn := &fakeConn{}

	newStreamer(store).Run(context.Background(), conn, "task-1", 7, futureExp())

	// pending snapshot, in_progress once, complete.
	if len(conn.sent) != 3 {
		t.Fatalf("sent %d messages, want 3: %+v", len(conn.sent), conn.sent)
	}
	if conn.sent[1].Status != aiexam.StatusInProgress {
		t.Fatalf("second = %+v", conn.sent[1])
	}
}

func TestRunFailureEventCloses1011(t *testing.T) {
	store := &fakeStore{
		meta:     &aiexam.Metadata{UserID: 7, Status: aiexam.StatusPending},
		statuses: []string{aiexam.StatusPending},
		events: [][]aiexam.Event{
			{{ID: "1-0", Status: aiexam.StatusFailed, Error: "model blew up"}},
		},
	}
	conn := &fakeConn{}

	newStreamer(store).Run(context.Background(), conn, "task-1", 7, futureExp())

	last := conn.sent[len(conn.sent)-1]
	if last.Status != aiexam.StatusFailed || last.Error != "model blew up" {
		t.Fatalf("last = %+v", last)
	}
	if conn.closeCode != CloseInternal {
		t.Fatalf("close code = %d, want %d", conn.closeCode, CloseInternal)
	}
}

func TestRunSilentStreamFallsBackToPolling(t *testing.T) {
	store := &fakeStore{
		meta: &aiexam.Metadata{UserID: 7, Status: aiexam.StatusPending},
		// Snapshot sees pending; the poll after the empty read sees the
		// task already finished.
		statuses: []string{aiexam.StatusPending, aiexam.StatusComplete},
		result:   &aiexam.Result{Success: true, GeneratedContent: "done"},
		events:   [][]aiexam.Event{{}},
	}
	conn := &fakeConn{}

	newStreamer(store).Run(context.Background(), conn, "task-1", 7, futureExp())

	final := conn.sent[len(conn.sent)-1]
	if final.Status != aiexam.StatusComplete {
		t.Fatalf("final = %+v", final)
	}
	if conn.closeCode != CloseNormal {
		t.Fatalf("close code = %d, want %d", conn.closeCode, CloseNormal)
	}
}

func TestRunExpiredTokenCloses4401(t *testing.T) {
	store := &fakeStore{
		meta:     &aiexam.Metadata{UserID: 7, Status: aiexam.StatusPending},
		statuses: []string{aiexam.StatusPending},
	}
	conn := &fakeConn{}

	newStreamer(store).Run(context.Background(), conn, "task-1", 7, time.Now().Add(-time.Minute))

	// The snapshot still goes out, then the expiry check fires.
	if len(conn.sent) != 1 {
		t.Fatalf("sent = %+v", conn.sent)
	}
	if conn.closeCode != CloseTokenExpired {
		t.Fatalf("close code = %d, want %d", conn.closeCode, CloseTokenExpired)
	}
}

func TestStateString(t *testing.T) {
	states := map[State]string{
		StateAuthenticating:  "authenticating",
		StateInitialSnapshot: "initial_snapshot",
		StateLive:            "live",
		StateTerminal:        "terminal",
	}
	for st, want := range states {
		if got := st.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", st, got, want)
		}
	}
}
