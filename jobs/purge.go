package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/solkant/solkant/internal/jobs"
)

// IdempotencyRetention bounds how long processed webhook ids are kept.
const IdempotencyRetention = 30 * 24 * time.Hour

// TokenPurger removes expired password reset tokens.
type TokenPurger interface {
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}

// KeyCleaner removes old idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// PurgeJob runs nightly housekeeping.
type PurgeJob struct {
	Tokens  TokenPurger
	Keys    KeyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskMaintenancePurge tasks.
func (j *PurgeJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	tracker := j.Metrics.Track(TaskMaintenancePurge)
	defer func() { err = tracker.End(err) }()

	var tokens, keys int64
	if j.Tokens != nil {
		if tokens, err = j.Tokens.PurgeExpiredTokens(ctx); err != nil {
			return err
		}
	}
	if j.Keys != nil {
		if keys, err = j.Keys.Cleanup(ctx, IdempotencyRetention); err != nil {
			return err
		}
	}
	logger(j.Logger).InfoContext(ctx, "maintenance purge done",
		slog.Int64("reset_tokens", tokens),
		slog.Int64("idempotency_keys", keys),
	)
	return nil
}
