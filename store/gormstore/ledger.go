package gormstore

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const batchSize = 500

func (s *Store) InsertEntries(ctx context.Context, entries []models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ref := entries[0].Reference
	return s.withNamedLock(ctx, "ledger:"+ref, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.LedgerEntry{}).Where("reference = ?", ref).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return models.ErrDuplicate
		}
		return tx.CreateInBatches(&entries, batchSize).Error
	})
}

func (s *Store) InsertRefundEntries(ctx context.Context, limit decimal.Decimal, entries []models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	txnID := entries[0].TransactionId
	return s.withNamedLock(ctx, fmt.Sprintf("ledger:refund:%d", txnID), func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.LedgerEntry{}).Where("reference = ?", entries[0].Reference).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return models.ErrDuplicate
		}
		var refunded decimal.Decimal
		err := tx.Model(&models.LedgerEntry{}).
			Select("COALESCE(SUM(amount), 0)").
			Where("transaction_id = ? AND kind = ? AND entry_type = ?", txnID, models.EntryKindRefund, models.EntryTypeCredit).
			Scan(&refunded).Error
		if err != nil {
			return err
		}
		_, requested := models.EntryTotals(entries)
		if refunded.Add(requested).GreaterThan(limit) {
			return models.ErrRefundLimitExceeded
		}
		return tx.CreateInBatches(&entries, batchSize).Error
	})
}

func applyEntryFilter(q *gorm.DB, f models.EntryFilter) *gorm.DB {
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.TransactionId != 0 {
		q = q.Where("transaction_id = ?", f.TransactionId)
	}
	if f.AccountCode != "" {
		q = q.Where("account_code = ?", f.AccountCode)
	}
	if f.From != nil {
		q = q.Where("posting_date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("posting_date <= ?", *f.To)
	}
	return q
}

func (s *Store) ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	err := applyEntryFilter(s.db.WithContext(ctx), filter).Order("id").Find(&out).Error
	return out, err
}

func (s *Store) EntriesByReference(ctx context.Context, reference string) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	err := s.db.WithContext(ctx).Where("reference = ?", reference).Order("id").Find(&out).Error
	return out, err
}

func (s *Store) MarkEntriesPosted(ctx context.Context, ids []int, at time.Time) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(ids); start += batchSize {
			end := min(start+batchSize, len(ids))
			res := tx.Model(&models.LedgerEntry{}).
				Where("id IN ? AND status = ?", ids[start:end], models.EntryStatusPending).
				Updates(map[string]interface{}{"status": models.EntryStatusPosted, "posted_at": at})
			if res.Error != nil {
				return res.Error
			}
			total += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
