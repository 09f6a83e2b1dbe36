// Package bootstrap wires the finance engines over MySQL for the commands.
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mmdatafocus/shipment_finance/cod"
	"github.com/mmdatafocus/shipment_finance/config"
	"github.com/mmdatafocus/shipment_finance/credit"
	"github.com/mmdatafocus/shipment_finance/currency"
	"github.com/mmdatafocus/shipment_finance/ledger"
	"github.com/mmdatafocus/shipment_finance/metrics"
	"github.com/mmdatafocus/shipment_finance/settlement"
	"github.com/mmdatafocus/shipment_finance/store/gormstore"
	"github.com/mmdatafocus/shipment_finance/utils"
	"github.com/mmdatafocus/shipment_finance/workflow"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type Options struct {
	PolicyFile string
	// Migrate runs AutoMigrate before anything else.
	Migrate bool
	// Publish wires the pubsub ledger publisher; without it sync only flips status.
	Publish bool
}

type Services struct {
	Logger     *logrus.Logger
	Policy     config.FinancePolicy
	Store      *gormstore.Store
	Locker     utils.Locker
	Converter  *currency.Converter
	Calculator *settlement.Calculator
	Poster     *ledger.Poster
	Credit     *credit.Policy
	Cod        *cod.Ledger
	Dispatcher *workflow.Dispatcher
}

func New(ctx context.Context, opts Options) (*Services, error) {
	logger := config.GetLogger()
	policy, err := config.LoadFinancePolicy(opts.PolicyFile)
	if err != nil {
		return nil, err
	}
	metrics.Init()

	db := config.ConnectDatabaseWithRetry()
	if db == nil {
		return nil, errors.New("database not initialized; check DB_* env vars")
	}
	st := gormstore.New(db)
	if opts.Migrate {
		if err := st.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	var (
		cache  currency.RateCache = currency.NewMemoryCache(0, policy.RateCacheTTL)
		locker utils.Locker
	)
	if rdb := config.ConnectRedisWithRetry(ctx); rdb != nil {
		cache = currency.NewRedisCache(rdb, policy.RateCacheTTL)
		locker = utils.NewRedisLocker(config.GetRedisLock())
	}

	var publisher ledger.Publisher
	if opts.Publish {
		p, err := ledger.NewPubSubPublisherFromEnv(ctx)
		if err != nil {
			return nil, err
		}
		publisher = p
	}

	s := &Services{
		Logger: logger,
		Policy: policy,
		Store:  st,
		Locker: locker,
	}
	s.Converter = currency.NewConverter(st, cache, logger)
	s.Calculator = settlement.NewCalculator(st, s.Converter, policy, logger, settlement.WithLocker(locker))
	s.Poster = ledger.NewPoster(st, publisher, logger)
	s.Credit = credit.NewPolicy(st, policy.Credit, logger)
	s.Cod = cod.NewLedger(st, logger)
	s.Dispatcher = workflow.NewDispatcher(st, st, workflow.Engines{
		Poster: s.Poster,
		Credit: s.Credit,
		Cod:    s.Cod,
	}, locker, logger)
	return s, nil
}

// Refresher builds the rate refresher over the HTTP feed in RATE_FEED_URL.
func (s *Services) Refresher() (*currency.Refresher, error) {
	feed, err := currency.NewHTTPFeedFromEnv()
	if err != nil {
		return nil, err
	}
	return currency.NewRefresher(feed, s.Store, s.Converter, s.Policy.BaseCurrency, s.Policy.RateRefreshInterval, s.Logger), nil
}

// ServeMetrics exposes /metrics on addr until ctx is done. An empty addr is a no-op.
func ServeMetrics(ctx context.Context, addr string, logger *logrus.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			config.LogError(logger, "services.go", "ServeMetrics", "ListenAndServe", addr, err)
		}
	}()
}
