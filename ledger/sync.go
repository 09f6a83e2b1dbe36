package ledger

import (
	"context"

	"github.com/mmdatafocus/shipment_finance/config"
	"github.com/mmdatafocus/shipment_finance/metrics"
	"github.com/mmdatafocus/shipment_finance/models"
	"go.opentelemetry.io/otel/attribute"
)

// SyncToExternalSystem publishes every PENDING entry and then marks it
// POSTED. It returns the number of rows transitioned; a second run with no
// new entries returns 0. A publish failure aborts before any status change.
func (p *Poster) SyncToExternalSystem(ctx context.Context) (n int, err error) {
	ctx, span := tracer.Start(ctx, "ledger.SyncToExternalSystem")
	defer func() {
		span.SetAttributes(attribute.Int("posted", n))
		span.End()
		metrics.ObserveLedgerSync(err)
	}()

	pending, err := p.store.ListEntries(ctx, models.EntryFilter{Status: models.EntryStatusPending})
	if err != nil {
		config.LogError(p.logger, "sync.go", "SyncToExternalSystem", "ListEntries", nil, err)
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	if p.publisher != nil {
		if err := p.publisher.PublishEntries(ctx, pending); err != nil {
			config.LogError(p.logger, "sync.go", "SyncToExternalSystem", "PublishEntries", len(pending), err)
			return 0, err
		}
	}

	ids := make([]int, len(pending))
	for i, e := range pending {
		ids[i] = e.ID
	}
	rows, err := p.store.MarkEntriesPosted(ctx, ids, p.now())
	if err != nil {
		config.LogError(p.logger, "sync.go", "SyncToExternalSystem", "MarkEntriesPosted", len(ids), err)
		return 0, err
	}
	return int(rows), nil
}
