package memory

import (
	"context"
	"time"

	"github.com/mmdatafocus/shipment_finance/models"
)

type rateKey struct {
	from, to string
	date     time.Time
}

// FindRate returns the latest rate dated on or before date.
func (s *Store) FindRate(_ context.Context, from, to string, date time.Time) (*models.ExchangeRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := models.DateOnly(date)
	var best *models.ExchangeRate
	for k, r := range s.rates {
		if k.from != from || k.to != to || k.date.After(day) {
			continue
		}
		if best == nil || r.RateDate.After(best.RateDate) {
			rate := r
			best = &rate
		}
	}
	if best == nil {
		return nil, models.ErrRecordNotFound
	}
	return best, nil
}

// SaveRate upserts on (from, to, rate_date).
func (s *Store) SaveRate(_ context.Context, rate *models.ExchangeRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rate.RateDate = models.DateOnly(rate.RateDate)
	k := rateKey{from: rate.FromCurrency, to: rate.ToCurrency, date: rate.RateDate}
	now := s.now()
	if existing, ok := s.rates[k]; ok {
		rate.ID = existing.ID
		rate.CreatedAt = existing.CreatedAt
	} else {
		rate.ID = s.nextID("exchange_rates")
		rate.CreatedAt = now
	}
	rate.UpdatedAt = now
	s.rates[k] = *rate
	return nil
}
