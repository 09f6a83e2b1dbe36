package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

const (
	metricPrefix = "finance_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	ledgerEntriesPosted *prometheus.CounterVec
	ledgerSyncTotal     *prometheus.CounterVec

	creditDecisions *prometheus.CounterVec

	settlementGenerateTotal   *prometheus.CounterVec
	settlementGenerateLatency *prometheus.HistogramVec

	codRemittedAmount prometheus.Counter

	rateLookups *prometheus.CounterVec

	eventsProcessed *prometheus.CounterVec
)

// Init registers the finance metrics with the default registerer.
func Init() {
	InitWith(prometheus.DefaultRegisterer)
}

func InitWith(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		ledgerEntriesPosted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ledger_entries_posted_total",
				Help: "Ledger entries created by posting kind",
			},
			[]string{"kind"},
		)
		ledgerSyncTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ledger_sync_total",
				Help: "External ledger sync runs by result",
			},
			[]string{"result"},
		)
		creditDecisions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "credit_decisions_total",
				Help: "Credit policy evaluations by decision",
			},
			[]string{"decision"},
		)
		settlementGenerateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_generate_total",
				Help: "Settlement generation attempts by kind and result",
			},
			[]string{"kind", "result"},
		)
		settlementGenerateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_generate_latency_seconds",
				Help:    "Settlement generation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)
		codRemittedAmount = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "cod_remitted_amount_total",
				Help: "Sum of COD cash remitted by drivers",
			},
		)
		rateLookups = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "currency_rate_lookups_total",
				Help: "Exchange rate lookups by source (identity, cache, store, inverse, miss)",
			},
			[]string{"source"},
		)

		eventsProcessed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "workflow_events_total",
				Help: "Finance events handled by the dispatcher by type and result",
			},
			[]string{"type", "result"},
		)

		reg.MustRegister(
			ledgerEntriesPosted,
			ledgerSyncTotal,
			creditDecisions,
			settlementGenerateTotal,
			settlementGenerateLatency,
			codRemittedAmount,
			rateLookups,
			eventsProcessed,
		)
	})
}

func ObserveEntriesPosted(kind string, n int) {
	if ledgerEntriesPosted == nil {
		return
	}
	ledgerEntriesPosted.WithLabelValues(kind).Add(float64(n))
}

func ObserveLedgerSync(err error) {
	if ledgerSyncTotal == nil {
		return
	}
	ledgerSyncTotal.WithLabelValues(result(err)).Inc()
}

func ObserveCreditDecision(decision string) {
	if creditDecisions == nil {
		return
	}
	creditDecisions.WithLabelValues(decision).Inc()
}

func ObserveSettlementGenerate(kind string, started time.Time, err error) {
	if settlementGenerateTotal == nil {
		return
	}
	settlementGenerateTotal.WithLabelValues(kind, result(err)).Inc()
	settlementGenerateLatency.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

func ObserveCodRemitted(amount decimal.Decimal) {
	if codRemittedAmount == nil {
		return
	}
	codRemittedAmount.Add(amount.InexactFloat64())
}

func ObserveRateLookup(source string) {
	if rateLookups == nil {
		return
	}
	rateLookups.WithLabelValues(source).Inc()
}

func ObserveEvent(eventType string, err error) {
	if eventsProcessed == nil {
		return
	}
	eventsProcessed.WithLabelValues(eventType, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
