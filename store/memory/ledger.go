package memory

import (
	"context"
	"sort"
	"time"

	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/shopspring/decimal"
)

func (s *Store) InsertEntries(_ context.Context, entries []models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(entries) == 0 {
		return nil
	}
	ref := entries[0].Reference
	for _, e := range s.entries {
		if e.Reference == ref {
			return models.ErrDuplicate
		}
	}
	s.appendEntries(entries)
	return nil
}

func (s *Store) InsertRefundEntries(_ context.Context, limit decimal.Decimal, entries []models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(entries) == 0 {
		return nil
	}
	txnID := entries[0].TransactionId
	refunded := decimal.Zero
	for _, e := range s.entries {
		if e.Reference == entries[0].Reference {
			return models.ErrDuplicate
		}
		if e.TransactionId == txnID && e.Kind == models.EntryKindRefund && e.EntryType == models.EntryTypeCredit {
			refunded = refunded.Add(e.Amount)
		}
	}
	_, requested := models.EntryTotals(entries)
	if refunded.Add(requested).GreaterThan(limit) {
		return models.ErrRefundLimitExceeded
	}
	s.appendEntries(entries)
	return nil
}

func (s *Store) appendEntries(entries []models.LedgerEntry) {
	now := s.now()
	for i := range entries {
		entries[i].ID = s.nextID("ledger_entries")
		entries[i].CreatedAt = now
		entries[i].UpdatedAt = now
		s.entries = append(s.entries, entries[i])
	}
}

func (s *Store) ListEntries(_ context.Context, filter models.EntryFilter) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LedgerEntry, 0)
	for _, e := range s.entries {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) EntriesByReference(_ context.Context, reference string) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LedgerEntry, 0)
	for _, e := range s.entries {
		if e.Reference == reference {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) MarkEntriesPosted(_ context.Context, ids []int, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var n int64
	for i := range s.entries {
		e := &s.entries[i]
		if !want[e.ID] || e.Status != models.EntryStatusPending {
			continue
		}
		posted := at
		e.Status = models.EntryStatusPosted
		e.PostedAt = &posted
		e.UpdatedAt = at
		n++
	}
	return n, nil
}
