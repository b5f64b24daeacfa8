package taskstream

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iach526526/pastexam/internal/aiexam"
)

// Close codes used by the status stream.
const (
	CloseNormal       = 1000
	ClosePolicy       = 1008
	CloseInternal     = 1011
	CloseTokenExpired = 4401
)

// State tracks where a streaming session stands. The transitions are linear:
// a session authenticates, emits one snapshot, then follows live events until
// a terminal status.
type State int

const (
	StateAuthenticating State = iota
	StateInitialSnapshot
	StateLive
	StateTerminal
)

// Message is one frame sent to the client.
type Message struct {
	TaskID      string          `json:"task_id"`
	Status      string          `json:"status"`
	Result      *aiexam.Result  `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
	CompletedAt string          `json:"completed_at,omitempty"`
}

// Conn is the outbound half of a websocket connection.
type Conn interface {
	Send(msg Message) error
	Close(code int, reason string) error
}

// Store is the task state the streamer reads. *aiexam.Store satisfies it.
type Store interface {
	Metadata(ctx context.Context, taskID string) (*aiexam.Metadata, error)
	Status(ctx context.Context, taskID string) (string, error)
	Result(ctx context.Context, taskID string) (*aiexam.Result, error)
	ReadEvents(ctx context.Context, taskID, cursor string) ([]aiexam.Event, error)
	PatchCompleted(ctx context.Context, taskID string, completedAt time.Time) error
}

// Streamer pushes task status updates over a connection until the task
// reaches a terminal state or the session's token expires.
type Streamer struct {
	store  Store
	logger zerolog.Logger
}

func NewStreamer(store Store, logger zerolog.Logger) *Streamer {
	return &Streamer{store: store, logger: logger}
}

type session struct {
	conn       Conn
	taskID     string
	state      State
	lastStatus string
	createdAt  string
}

// Run drives one streaming session. tokenExp is the expiry of the token that
// authenticated the connection; the session closes with CloseTokenExpired
// once it passes.
func (s *Streamer) Run(ctx context.Context, conn Conn, taskID string, userID int64, tokenExp time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("task_id", taskID).Msgf("task stream panic: %v", r)
			_ = conn.Close(CloseInternal, "internal error")
		}
	}()

	sess := &session{conn: conn, taskID: taskID, state: StateAuthenticating}

	meta, err := s.store.Metadata(ctx, taskID)
	if err != nil {
		s.fail(sess, "internal error")
		return
	}
	if meta == nil || meta.UserID != userID {
		_ = conn.Send(Message{TaskID: taskID, Status: aiexam.StatusNotFound})
		_ = conn.Close(ClosePolicy, "task not found")
		sess.state = StateTerminal
		return
	}
	if !meta.CreatedAt.IsZero() {
		sess.createdAt = meta.CreatedAt.UTC().Format(time.RFC3339)
	}

	sess.state = StateInitialSnapshot
	status, err := s.store.Status(ctx, taskID)
	if err != nil {
		s.fail(sess, "internal error")
		return
	}
	if s.emit(ctx, sess, status, "") {
		return
	}

	sess.state = StateLive
	cursor := "0-0"
	for {
		if !tokenExp.IsZero() && time.Now().After(tokenExp) {
			_ = conn.Close(CloseTokenExpired, "token expired")
			sess.state = StateTerminal
			return
		}
		if ctx.Err() != nil {
			_ = conn.Close(CloseNormal, "")
			sess.state = StateTerminal
			return
		}

		events, err := s.store.ReadEvents(ctx, taskID, cursor)
		if err != nil {
			if ctx.Err() != nil {
				_ = conn.Close(CloseNormal, "")
				sess.state = StateTerminal
				return
			}
			s.fail(sess, "internal error")
			return
		}

		if len(events) == 0 {
			// Nothing arrived inside the block window. Poll the queue in
			// case the worker died before it could publish.
			status, err := s.store.Status(ctx, taskID)
			if err != nil {
				s.fail(sess, "internal error")
				return
			}
			if s.emit(ctx, sess, status, "") {
				return
			}
			continue
		}

		for _, ev := range events {
			cursor = ev.ID
			if s.emit(ctx, sess, ev.Status, ev.Error) {
				return
			}
		}
	}
}

// emit sends a status frame unless it repeats the previous one, handling the
// terminal statuses. It reports whether the session ended.
func (s *Streamer) emit(ctx context.Context, sess *session, status, errMsg string) bool {
	if status == "" || status == sess.lastStatus {
		return false
	}

	switch status {
	case aiexam.StatusComplete:
		s.complete(ctx, sess)
		return true
	case aiexam.StatusFailed:
		if errMsg == "" {
			errMsg = "task failed"
		}
		_ = sess.conn.Send(Message{
			TaskID:    sess.taskID,
			Status:    aiexam.StatusFailed,
			Error:     errMsg,
			CreatedAt: sess.createdAt,
		})
		_ = sess.conn.Close(CloseInternal, "task failed")
		sess.state = StateTerminal
		return true
	case aiexam.StatusNotFound:
		// Readable metadata means the task was the caller's; the queue has
		// since dropped it.
		_ = sess.conn.Send(Message{TaskID: sess.taskID, Status: aiexam.StatusNotFound})
		_ = sess.conn.Close(CloseNormal, "")
		sess.state = StateTerminal
		return true
	}

	sess.lastStatus = status
	_ = sess.conn.Send(Message{
		TaskID:    sess.taskID,
		Status:    status,
		CreatedAt: sess.createdAt,
	})
	return false
}

func (s *Streamer) complete(ctx context.Context, sess *session) {
	result, err := s.store.Result(ctx, sess.taskID)
	if err != nil {
		s.logger.Error().Err(err).Str("task_id", sess.taskID).Msg("fetch task result failed")
		s.fail(sess, "internal error")
		return
	}

	completedAt := time.Now().UTC()
	if err := s.store.PatchCompleted(ctx, sess.taskID, completedAt); err != nil {
		s.logger.Warn().Err(err).Str("task_id", sess.taskID).Msg("patch task metadata failed")
	}

	msg := Message{
		TaskID:      sess.taskID,
		Status:      aiexam.StatusComplete,
		Result:      result,
		CreatedAt:   sess.createdAt,
		CompletedAt: completedAt.Format(time.RFC3339),
	}
	if result != nil && !result.Success && result.Error != "" {
		msg.Error = result.Error
	}
	_ = sess.conn.Send(msg)
	_ = sess.conn.Close(CloseNormal, "")
	sess.state = StateTerminal
}

func (s *Streamer) fail(sess *session, reason string) {
	_ = sess.conn.Close(CloseInternal, reason)
	sess.state = StateTerminal
}

var _ fmt.Stringer = State(0)

func (st State) String() string {
	switch st {
	case StateAuthenticating:
		return "authenticating"
	case StateInitialSnapshot:
		return "initial_snapshot"
	case StateLive:
		return "live"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}
