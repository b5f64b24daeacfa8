package aiexam

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Publisher appends status events to a task's stream. Publishing is
// best-effort: a failed append is logged and swallowed.
type Publisher struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

func NewPublisher(rdb *redis.Client, logger zerolog.Logger) *Publisher {
	return &Publisher{rdb: rdb, logger: logger}
}

// Publish appends one event and refreshes the stream expiry.
func (p *Publisher) Publish(ctx context.Context, taskID, status, errMsg string) {
	values := map[string]any{"status": status}
	if errMsg != "" {
		values["error"] = errMsg
	}
	key := EventStreamKey(taskID)
	if err := p.rdb.XAdd(ctx, &redis.XAddArgs{Stream: key, Values: values}).Err(); err != nil {
		p.logger.Warn().Err(err).Str("task_id", taskID).Msg("publish task event failed")
		return
	}
	if err := p.rdb.Expire(ctx, key, metadataTTL).Err(); err != nil {
		p.logger.Warn().Err(err).Str("task_id", taskID).Msg("refresh event stream expiry failed")
	}
}
