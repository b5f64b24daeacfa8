package aiexam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// ErrMalformedResult marks a retained result payload that is not a JSON
// object.
var ErrMalformedResult = errors.New("task result is not an object")

// StatusInspector is the slice of asynq's Inspector the store needs. Keeping
// it an interface lets tests substitute queue state without a live broker.
type StatusInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
}

// Store reads and writes task metadata, queue status, and status events.
type Store struct {
	rdb       *redis.Client
	inspector StatusInspector
}

func NewStore(rdb *redis.Client, inspector StatusInspector) *Store {
	return &Store{rdb: rdb, inspector: inspector}
}

// Metadata loads a task's metadata. A missing key returns (nil, nil).
func (s *Store) Metadata(ctx context.Context, taskID string) (*Metadata, error) {
	raw, err := s.rdb.Get(ctx, MetadataKey(taskID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load task metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("decode task metadata: %w", err)
	}
	return &meta, nil
}

// PutMetadata stores a task's metadata with the standard expiry.
func (s *Store) PutMetadata(ctx context.Context, taskID string, meta *Metadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode task metadata: %w", err)
	}
	if err := s.rdb.Set(ctx, MetadataKey(taskID), raw, metadataTTL).Err(); err != nil {
		return fmt.Errorf("store task metadata: %w", err)
	}
	return nil
}

// PatchCompleted marks the stored metadata complete without touching the
// other fields.
func (s *Store) PatchCompleted(ctx context.Context, taskID string, completedAt time.Time) error {
	meta, err := s.Metadata(ctx, taskID)
	if err != nil {
		return err
	}
	if meta == nil {
		return nil
	}
	meta.Status = StatusComplete
	meta.CompletedAt = completedAt.UTC().Format(time.RFC3339)
	return s.PutMetadata(ctx, taskID, meta)
}

// Delete removes a task's metadata, its event stream, and the retained queue
// entry holding the generated result.
func (s *Store) Delete(ctx context.Context, taskID string) error {
	if err := s.rdb.Del(ctx, MetadataKey(taskID), EventStreamKey(taskID)).Err(); err != nil {
		return fmt.Errorf("delete task keys: %w", err)
	}
	if s.inspector != nil {
		err := s.inspector.DeleteTask(QueueDefault, taskID)
		if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
			return fmt.Errorf("delete queued task: %w", err)
		}
	}
	return nil
}

// Status resolves the queue's view of a task onto the client-facing status
// set.
func (s *Store) Status(ctx context.Context, taskID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	info, err := s.inspector.GetTaskInfo(QueueDefault, taskID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return StatusNotFound, nil
		}
		return "", fmt.Errorf("inspect task: %w", err)
	}
	return mapTaskState(info.State), nil
}

func mapTaskState(state asynq.TaskState) string {
	switch state {
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateRetry, asynq.TaskStateAggregating:
		return StatusPending
	case asynq.TaskStateActive:
		return StatusInProgress
	case asynq.TaskStateCompleted:
		return StatusComplete
	case asynq.TaskStateArchived:
		return StatusFailed
	default:
		return StatusUnknown
	}
}

// Result fetches a finished task's result payload. The queue commits the
// result slightly after the completion event, so a few short retries paper
// over the gap. A missing or null result yields (nil, nil); a result that is
// not a JSON object is a hard error. If every attempt fails, the last error
// is returned.
func (s *Store) Result(ctx context.Context, taskID string) (*Result, error) {
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		info, err := s.inspector.GetTaskInfo(QueueDefault, taskID)
		if err != nil {
			lastErr = err
		} else if len(info.Result) > 0 {
			return decodeResult(info.Result)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("fetch task result: %w", lastErr)
	}
	return nil, nil
}

func decodeResult(raw []byte) (*Result, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '{' {
		return nil, ErrMalformedResult
	}
	var res Result
	if err := json.Unmarshal(trimmed, &res); err != nil {
		return nil, fmt.Errorf("decode task result: %w", err)
	}
	return &res, nil
}

// ReadEvents blocks on the task's event stream and returns whatever arrives
// before the block timeout. An empty slice means the read timed out.
func (s *Store) ReadEvents(ctx context.Context, taskID, cursor string) ([]Event, error) {
	streams, err := s.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{EventStreamKey(taskID), cursor},
		Count:   10,
		Block:   5 * time.Second,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read task events: %w", err)
	}

	var events []Event
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			ev := Event{ID: msg.ID}
			if v, ok := msg.Values["status"].(string); ok {
				ev.Status = v
			}
			if v, ok := msg.Values["error"].(string); ok {
				ev.Error = v
			}
			events = append(events, ev)
		}
	}
	return events, nil
}

// ActiveTaskID returns the id of the user's task still live in the queue, if
// any. The stored metadata only selects the candidates; each one's status is
// resolved against the queue, since the metadata is not updated when a worker
// dies or a completion goes unobserved.
func (s *Store) ActiveTaskID(ctx context.Context, userID int64) (string, error) {
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, metadataKeyPrefix+"*", 100).Result()
		if err != nil {
			return "", fmt.Errorf("scan task metadata: %w", err)
		}
		for _, key := range keys {
			taskID := strings.TrimPrefix(key, metadataKeyPrefix)
			meta, err := s.Metadata(ctx, taskID)
			if err != nil || meta == nil {
				continue
			}
			if meta.UserID != userID {
				continue
			}
			status, err := s.Status(ctx, taskID)
			if err != nil {
				return "", err
			}
			if status == StatusPending || status == StatusInProgress {
				return taskID, nil
			}
		}
		cursor = next
		if cursor == 0 {
			return "", nil
		}
	}
}
