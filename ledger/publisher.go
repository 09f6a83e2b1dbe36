package ledger

import (
	"context"
	"encoding/json"
	"sort"

	"cloud.google.com/go/pubsub"
	"github.com/mmdatafocus/shipment_finance/config"
	"github.com/mmdatafocus/shipment_finance/models"
)

// Publisher hands entries to the external ledger.
type Publisher interface {
	PublishEntries(ctx context.Context, entries []models.LedgerEntry) error
}

// EntryBatch is the wire payload: one balanced reference per message.
type EntryBatch struct {
	Reference string               `json:"reference"`
	Entries   []models.LedgerEntry `json:"entries"`
}

// PubSubPublisher publishes one message per reference, keyed for ordering by
// the reference so a consumer never sees half a batch out of order.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

func NewPubSubPublisher(topic *pubsub.Topic) *PubSubPublisher {
	topic.EnableMessageOrdering = true
	return &PubSubPublisher{topic: topic}
}

// NewPubSubPublisherFromEnv resolves the shared client and the ledger sync topic.
func NewPubSubPublisherFromEnv(ctx context.Context) (*PubSubPublisher, error) {
	client, err := config.GetClient(ctx)
	if err != nil {
		return nil, err
	}
	topic, err := config.CreateTopicIfNotExists(ctx, client, config.LedgerSyncTopic())
	if err != nil {
		return nil, err
	}
	return NewPubSubPublisher(topic), nil
}

func (p *PubSubPublisher) PublishEntries(ctx context.Context, entries []models.LedgerEntry) error {
	results := make([]*pubsub.PublishResult, 0)
	for _, batch := range GroupByReference(entries) {
		data, err := json.Marshal(batch)
		if err != nil {
			return err
		}
		results = append(results, p.topic.Publish(ctx, &pubsub.Message{
			Data:        data,
			OrderingKey: batch.Reference,
			Attributes:  map[string]string{"reference": batch.Reference},
		}))
	}
	for _, res := range results {
		if _, err := res.Get(ctx); err != nil {
			return err
		}
	}
	return nil
}

// GroupByReference splits entries into reference batches, sorted by reference.
func GroupByReference(entries []models.LedgerEntry) []EntryBatch {
	byRef := make(map[string][]models.LedgerEntry)
	for _, e := range entries {
		byRef[e.Reference] = append(byRef[e.Reference], e)
	}
	refs := make([]string, 0, len(byRef))
	for ref := range byRef {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	out := make([]EntryBatch, 0, len(refs))
	for _, ref := range refs {
		out = append(out, EntryBatch{Reference: ref, Entries: byRef[ref]})
	}
	return out
}
