package currency

import (
	"context"
	"time"

	"github.com/mmdatafocus/shipment_finance/config"
	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// RateFeed is an external source of rates quoted against base.
type RateFeed interface {
	FetchRates(ctx context.Context, base string) (map[string]decimal.Decimal, error)
}

// Refresher pulls the feed into the rate store. Failures are logged and the
// previously stored rates stay in use.
type Refresher struct {
	feed      RateFeed
	store     RateStore
	converter *Converter
	base      string
	interval  time.Duration
	logger    *logrus.Logger
	now       func() time.Time
}

func NewRefresher(feed RateFeed, store RateStore, converter *Converter, base string, interval time.Duration, logger *logrus.Logger) *Refresher {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Refresher{
		feed:      feed,
		store:     store,
		converter: converter,
		base:      models.NormalizeCurrency(base),
		interval:  interval,
		logger:    config.LoggerOrDefault(logger),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Refresh saves today's feed rates and returns how many were stored.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	rates, err := r.feed.FetchRates(ctx, r.base)
	if err != nil {
		config.LogError(r.logger, "refresher.go", "Refresh", "FetchRates", r.base, err)
		return 0, err
	}
	today := models.DateOnly(r.now())
	saved := 0
	for code, rate := range rates {
		code = models.NormalizeCurrency(code)
		if code == r.base || len(code) != 3 || !rate.IsPositive() {
			continue
		}
		row := &models.ExchangeRate{
			FromCurrency: r.base,
			ToCurrency:   code,
			RateDate:     today,
			Rate:         rate,
			Source:       models.RateSourceFeed,
		}
		if err := r.store.SaveRate(ctx, row); err != nil {
			config.LogError(r.logger, "refresher.go", "Refresh", "SaveRate", row.ToCurrency, err)
			continue
		}
		if r.converter != nil {
			r.converter.Invalidate(ctx, r.base, code)
		}
		saved++
	}
	return saved, nil
}

// Run refreshes immediately and then on every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if n, err := r.Refresh(ctx); err == nil {
			r.logger.WithFields(logrus.Fields{"field": "Refresher", "base": r.base, "saved": n}).Info("exchange rates refreshed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
