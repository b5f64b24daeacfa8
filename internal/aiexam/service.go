package aiexam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrConflict       = errors.New("task already running")
	ErrNotFound       = errors.New("task not found")
	ErrForbidden      = errors.New("not task owner")
)

// Enqueuer is the slice of asynq.Client the service uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Service owns the submit and delete rules for generation tasks.
type Service struct {
	store      *Store
	queue      Enqueuer
	jobTimeout time.Duration
	logger     zerolog.Logger
}

func NewService(store *Store, queue Enqueuer, jobTimeout time.Duration, logger zerolog.Logger) *Service {
	if jobTimeout <= 0 {
		jobTimeout = 10 * time.Minute
	}
	return &Service{store: store, queue: queue, jobTimeout: jobTimeout, logger: logger}
}

// Submit enqueues a generation task. A user may only have one task pending or
// running at a time.
func (s *Service) Submit(ctx context.Context, userID int64, archiveIDs []int64, prompt string, temperature float64) (string, error) {
	if len(archiveIDs) == 0 {
		return "", fmt.Errorf("%w: archive_ids is required", ErrInvalidRequest)
	}

	active, err := s.store.ActiveTaskID(ctx, userID)
	if err != nil {
		return "", err
	}
	if active != "" {
		return "", ErrConflict
	}

	taskID := uuid.NewString()
	payload, err := json.Marshal(TaskPayload{
		TaskID:      taskID,
		UserID:      userID,
		ArchiveIDs:  archiveIDs,
		Prompt:      prompt,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("encode task payload: %w", err)
	}

	task := asynq.NewTask(TypeGenerateExam, payload)
	_, err = s.queue.EnqueueContext(ctx, task,
		asynq.TaskID(taskID),
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(0),
		asynq.Timeout(s.jobTimeout),
		asynq.Retention(metadataTTL),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue task: %w", err)
	}

	meta := &Metadata{
		UserID:     userID,
		ArchiveIDs: archiveIDs,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.PutMetadata(ctx, taskID, meta); err != nil {
		return "", err
	}

	s.logger.Info().Str("task_id", taskID).Int64("user_id", userID).Msg("exam generation task enqueued")
	return taskID, nil
}

// Delete removes a task's stored state. Only the owner may delete a task.
func (s *Service) Delete(ctx context.Context, taskID string, userID int64) error {
	meta, err := s.store.Metadata(ctx, taskID)
	if err != nil {
		return err
	}
	if meta == nil {
		return ErrNotFound
	}
	if meta.UserID != userID {
		return ErrForbidden
	}
	return s.store.Delete(ctx, taskID)
}
