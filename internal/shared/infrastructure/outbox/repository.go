package outbox

import (
	"context"
	"time"
)

// Repository persists outbox messages.
type Repository interface {
	// Save stores msg and assigns its ID.
	Save(ctx context.Context, msg *Message) error
	// SaveBatch stores msgs within the caller's transaction if ctx carries one.
	SaveBatch(ctx context.Context, msgs []*Message) error
	// GetUnpublished returns messages due for a publish attempt at now, oldest first.
	GetUnpublished(ctx context.Context, now time.Time, limit int) ([]*Message, error)
	MarkPublished(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string, nextRetryAt time.Time) error
	MarkDead(ctx context.Context, id int64, reason string, at time.Time) error
	// DeleteOld removes published messages created before cutoff.
	DeleteOld(ctx context.Context, cutoff time.Time) (int64, error)
}
