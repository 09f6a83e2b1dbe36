package gormstore

import (
	"context"
	"time"

	"github.com/mmdatafocus/shipment_finance/models"
	"gorm.io/gorm"
)

const idempotencyStaleAfter = 5 * time.Minute

// BeginIdempotency inserts STARTED. If SUCCEEDED exists, returns (true, nil) meaning "skip safely".
func (s *Store) BeginIdempotency(ctx context.Context, handlerName, eventID string) (skip bool, err error) {
	tx := s.db.WithContext(ctx)
	key := models.IdempotencyKey{
		HandlerName: handlerName,
		EventId:     eventID,
		Status:      models.IdempotencyStatusStarted,
	}
	if err := tx.Create(&key).Error; err == nil {
		return false, nil
	} else if !isDuplicateKeyErr(err) {
		return false, err
	}

	var existing models.IdempotencyKey
	if err := tx.Where("handler_name = ? AND event_id = ?", handlerName, eventID).
		First(&existing).Error; err != nil {
		return false, err
	}

	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		return true, nil
	case models.IdempotencyStatusStarted:
		// another worker may still be on it; a stale row is taken over
		if time.Since(existing.UpdatedAt) < idempotencyStaleAfter {
			return false, models.ErrIdempotencyInProgress
		}
	}
	return false, restart(tx, existing.ID)
}

func restart(tx *gorm.DB, id int) error {
	return tx.Model(&models.IdempotencyKey{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusStarted, "last_error": nil}).Error
}

func (s *Store) MarkIdempotencySucceeded(ctx context.Context, handlerName, eventID string) error {
	return s.db.WithContext(ctx).Model(&models.IdempotencyKey{}).
		Where("handler_name = ? AND event_id = ?", handlerName, eventID).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusSucceeded, "last_error": nil}).Error
}

func (s *Store) MarkIdempotencyFailed(ctx context.Context, handlerName, eventID string, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return s.db.WithContext(ctx).Model(&models.IdempotencyKey{}).
		Where("handler_name = ? AND event_id = ?", handlerName, eventID).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusFailed, "last_error": &msg}).Error
}
