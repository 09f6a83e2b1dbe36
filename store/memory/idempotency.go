package memory

import (
	"context"
	"time"

	"github.com/mmdatafocus/shipment_finance/models"
)

type idemKey struct {
	handler, event string
}

// staleAfter matches the SQL store: a STARTED key older than this is retried.
const staleAfter = 5 * time.Minute

func (s *Store) BeginIdempotency(_ context.Context, handlerName, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := idemKey{handlerName, eventID}
	now := s.now()
	existing, ok := s.idempotency[k]
	if !ok {
		s.idempotency[k] = models.IdempotencyKey{
			ID:          s.nextID("idempotency_keys"),
			HandlerName: handlerName,
			EventId:     eventID,
			Status:      models.IdempotencyStatusStarted,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return false, nil
	}
	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		return true, nil
	case models.IdempotencyStatusStarted:
		if now.Sub(existing.UpdatedAt) < staleAfter {
			return false, models.ErrIdempotencyInProgress
		}
	}
	existing.Status = models.IdempotencyStatusStarted
	existing.LastError = nil
	existing.UpdatedAt = now
	s.idempotency[k] = existing
	return false, nil
}

func (s *Store) MarkIdempotencySucceeded(_ context.Context, handlerName, eventID string) error {
	return s.markIdempotency(handlerName, eventID, models.IdempotencyStatusSucceeded, nil)
}

func (s *Store) MarkIdempotencyFailed(_ context.Context, handlerName, eventID string, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return s.markIdempotency(handlerName, eventID, models.IdempotencyStatusFailed, &msg)
}

func (s *Store) markIdempotency(handlerName, eventID string, status models.IdempotencyStatus, lastErr *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := idemKey{handlerName, eventID}
	existing, ok := s.idempotency[k]
	if !ok {
		return models.ErrRecordNotFound
	}
	existing.Status = status
	existing.LastError = lastErr
	existing.UpdatedAt = s.now()
	s.idempotency[k] = existing
	return nil
}
