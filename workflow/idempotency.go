package workflow

import (
	"context"

	"github.com/mmdatafocus/shipment_finance/models"
)

var ErrIdempotencyInProgress = models.ErrIdempotencyInProgress

// IdempotencyStore keeps one durable key per (handler, event id).
type IdempotencyStore interface {
	// BeginIdempotency inserts STARTED. If SUCCEEDED exists, returns (true, nil) meaning "skip safely".
	BeginIdempotency(ctx context.Context, handlerName, eventID string) (skip bool, err error)
	MarkIdempotencySucceeded(ctx context.Context, handlerName, eventID string) error
	MarkIdempotencyFailed(ctx context.Context, handlerName, eventID string, err error) error
}

// runOnce runs fn unless the key already succeeded. A failing fn leaves the
// key FAILED so the next delivery retries it.
func runOnce(ctx context.Context, keys IdempotencyStore, handlerName, eventID string, fn func(context.Context) error) (ran bool, err error) {
	skip, err := keys.BeginIdempotency(ctx, handlerName, eventID)
	if err != nil {
		return false, err
	}
	if skip {
		return false, nil
	}
	if err := fn(ctx); err != nil {
		_ = keys.MarkIdempotencyFailed(ctx, handlerName, eventID, err)
		return false, err
	}
	if err := keys.MarkIdempotencySucceeded(ctx, handlerName, eventID); err != nil {
		return true, err
	}
	return true, nil
}
