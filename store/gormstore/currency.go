package gormstore

import (
	"context"
	"time"

	"github.com/mmdatafocus/shipment_finance/models"
	"gorm.io/gorm/clause"
)

// FindRate returns the latest rate dated on or before date; of two rows on
// the same day the most recently updated wins.
func (s *Store) FindRate(ctx context.Context, from, to string, date time.Time) (*models.ExchangeRate, error) {
	var r models.ExchangeRate
	err := s.db.WithContext(ctx).
		Where("from_currency = ? AND to_currency = ? AND rate_date <= ?", from, to, models.DateOnly(date)).
		Order("rate_date DESC, updated_at DESC").
		First(&r).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

// SaveRate upserts on (from_currency, to_currency, rate_date).
func (s *Store) SaveRate(ctx context.Context, rate *models.ExchangeRate) error {
	rate.RateDate = models.DateOnly(rate.RateDate)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "from_currency"}, {Name: "to_currency"}, {Name: "rate_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate", "source", "notes", "updated_at"}),
	}).Create(rate).Error
}
