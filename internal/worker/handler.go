package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/iach526526/pastexam/internal/aiexam"
	"github.com/iach526526/pastexam/internal/infra"
)

// Handler wires generation tasks into asynq. Status transitions go out on the
// task's event stream before and after the work so connected clients follow
// along.
type Handler struct {
	generator *Generator
	publisher *aiexam.Publisher
	metrics   *infra.Metrics
	logger    zerolog.Logger
}

func NewHandler(generator *Generator, publisher *aiexam.Publisher, metrics *infra.Metrics, logger zerolog.Logger) *Handler {
	return &Handler{generator: generator, publisher: publisher, metrics: metrics, logger: logger}
}

// Register attaches the handler to an asynq mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(aiexam.TypeGenerateExam, h.HandleGenerateExam)
}

// HandleGenerateExam processes one generation task.
func (h *Handler) HandleGenerateExam(ctx context.Context, t *asynq.Task) error {
	var payload aiexam.TaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode task payload: %w", err)
	}

	start := time.Now()
	h.logger.Info().Str("task_id", payload.TaskID).Int64("user_id", payload.UserID).Msg("exam generation started")
	h.publisher.Publish(ctx, payload.TaskID, aiexam.StatusInProgress, "")

	result, err := h.generator.Generate(ctx, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("task_id", payload.TaskID).Msg("exam generation failed")
		h.publisher.Publish(context.WithoutCancel(ctx), payload.TaskID, aiexam.StatusFailed, err.Error())
		if h.metrics != nil {
			h.metrics.TasksFailed.Inc()
		}
		return err
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode task result: %w", err)
	}
	if w := t.ResultWriter(); w != nil {
		if _, err := w.Write(raw); err != nil {
			h.logger.Warn().Err(err).Str("task_id", payload.TaskID).Msg("write task result failed")
		}
	}

	h.publisher.Publish(ctx, payload.TaskID, aiexam.StatusComplete, "")
	if h.metrics != nil {
		h.metrics.TasksCompleted.Inc()
	}
	h.logger.Info().
		Str("task_id", payload.TaskID).
		Dur("elapsed", time.Since(start)).
		Msg("exam generation complete")
	return nil
}
