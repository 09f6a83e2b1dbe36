// Package currency resolves exchange rates and converts amounts between
// currencies for the other finance engines.
package currency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/shipment_finance/config"
	"github.com/mmdatafocus/shipment_finance/metrics"
	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	// ErrRateNotFound is a hard stop: callers must not fall back to 1.0.
	ErrRateNotFound    = errors.New("currency: exchange rate not found")
	ErrInvalidRate     = errors.New("currency: rate must be positive")
	ErrInvalidCurrency = errors.New("currency: invalid currency code")
)

const inversePlaces = 8

// RateStore is the persistence boundary for exchange rates.
type RateStore interface {
	// FindRate returns the rate effective on date (latest rate_date <= date),
	// or models.ErrRecordNotFound.
	FindRate(ctx context.Context, from, to string, date time.Time) (*models.ExchangeRate, error)
	// SaveRate upserts on (from, to, rate_date).
	SaveRate(ctx context.Context, rate *models.ExchangeRate) error
}

type Conversion struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Original  decimal.Decimal `json:"original"`
	Converted decimal.Decimal `json:"converted"`
	Rate      decimal.Decimal `json:"rate"`
	Date      time.Time       `json:"date"`
}

type Converter struct {
	store  RateStore
	cache  RateCache
	logger *logrus.Logger
	now    func() time.Time
}

func NewConverter(store RateStore, cache RateCache, logger *logrus.Logger) *Converter {
	return &Converter{
		store:  store,
		cache:  cache,
		logger: config.LoggerOrDefault(logger),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GetRate returns the rate for one unit of from in to on date (zero date =
// today). ok is false when no rate is resolvable.
func (c *Converter) GetRate(ctx context.Context, from, to string, date time.Time) (rate decimal.Decimal, ok bool, err error) {
	from, to = models.NormalizeCurrency(from), models.NormalizeCurrency(to)
	if len(from) != 3 || len(to) != 3 {
		return decimal.Zero, false, fmt.Errorf("%w: %q -> %q", ErrInvalidCurrency, from, to)
	}
	if from == to {
		metrics.ObserveRateLookup("identity")
		return decimal.NewFromInt(1), true, nil
	}
	if date.IsZero() {
		date = c.now()
	}
	key := RateKey{From: from, To: to, Date: models.DateOnly(date)}

	if c.cache != nil {
		cached, hit, cerr := c.cache.Get(ctx, key)
		if cerr != nil {
			// degraded: cache trouble never blocks a lookup
			c.logger.WithFields(logrus.Fields{"field": "GetRate", "key": key.String()}).Warn("rate cache get failed: " + cerr.Error())
		} else if hit {
			metrics.ObserveRateLookup("cache")
			return cached, true, nil
		}
	}

	rate, source, err := c.lookup(ctx, from, to, key.Date)
	if err != nil {
		return decimal.Zero, false, err
	}
	if source == "" {
		metrics.ObserveRateLookup("miss")
		return decimal.Zero, false, nil
	}
	metrics.ObserveRateLookup(source)

	if c.cache != nil {
		if cerr := c.cache.Set(ctx, key, rate); cerr != nil {
			c.logger.WithFields(logrus.Fields{"field": "GetRate", "key": key.String()}).Warn("rate cache set failed: " + cerr.Error())
		}
	}
	return rate, true, nil
}

func (c *Converter) lookup(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, string, error) {
	direct, err := c.store.FindRate(ctx, from, to, date)
	switch {
	case err == nil:
		return direct.Rate, "store", nil
	case !errors.Is(err, models.ErrRecordNotFound):
		return decimal.Zero, "", err
	}

	inverse, err := c.store.FindRate(ctx, to, from, date)
	switch {
	case err == nil && inverse.Rate.IsPositive():
		return decimal.NewFromInt(1).DivRound(inverse.Rate, inversePlaces), "inverse", nil
	case err == nil, errors.Is(err, models.ErrRecordNotFound):
		return decimal.Zero, "", nil
	}
	return decimal.Zero, "", err
}

// Convert converts amount, rounding the result to money precision.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string, date time.Time) (Conversion, error) {
	if date.IsZero() {
		date = c.now()
	}
	rate, ok, err := c.GetRate(ctx, from, to, date)
	if err != nil {
		return Conversion{}, err
	}
	if !ok {
		return Conversion{}, fmt.Errorf("%w: %s -> %s on %s", ErrRateNotFound,
			models.NormalizeCurrency(from), models.NormalizeCurrency(to), date.Format("2006-01-02"))
	}
	return Conversion{
		From:      models.NormalizeCurrency(from),
		To:        models.NormalizeCurrency(to),
		Original:  amount,
		Converted: models.RoundMoney(amount.Mul(rate)),
		Rate:      rate,
		Date:      models.DateOnly(date),
	}, nil
}

// SetManualRate records an operator override; it wins until the next feed
// refresh of the same pair and date.
func (c *Converter) SetManualRate(ctx context.Context, from, to string, date time.Time, rate decimal.Decimal, notes string) (*models.ExchangeRate, error) {
	if !rate.IsPositive() {
		return nil, ErrInvalidRate
	}
	if date.IsZero() {
		date = c.now()
	}
	r := &models.ExchangeRate{
		FromCurrency: models.NormalizeCurrency(from),
		ToCurrency:   models.NormalizeCurrency(to),
		RateDate:     models.DateOnly(date),
		Rate:         rate,
		Source:       models.RateSourceManual,
		Notes:        notes,
	}
	if len(r.FromCurrency) != 3 || len(r.ToCurrency) != 3 {
		return nil, ErrInvalidCurrency
	}
	if err := c.store.SaveRate(ctx, r); err != nil {
		return nil, err
	}
	c.Invalidate(ctx, r.FromCurrency, r.ToCurrency)
	return r, nil
}

// Invalidate drops cached rates of the pair in both directions.
func (c *Converter) Invalidate(ctx context.Context, from, to string) {
	if c.cache == nil {
		return
	}
	from, to = models.NormalizeCurrency(from), models.NormalizeCurrency(to)
	for _, p := range [][2]string{{from, to}, {to, from}} {
		if err := c.cache.Invalidate(ctx, p[0], p[1]); err != nil {
			c.logger.WithFields(logrus.Fields{"field": "Invalidate", "pair": pairKey(p[0], p[1])}).Warn("rate cache invalidate failed: " + err.Error())
		}
	}
}
