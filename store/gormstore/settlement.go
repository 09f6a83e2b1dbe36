package gormstore

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/shipment_finance/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) DeliveredBranchShipments(ctx context.Context, branchID int, start, end time.Time) ([]models.Shipment, error) {
	var out []models.Shipment
	err := s.db.WithContext(ctx).
		Where("origin_branch_id = ? AND status = ? AND delivered_at BETWEEN ? AND ?", branchID, models.ShipmentStatusDelivered, start, end).
		Order("id").
		Find(&out).Error
	return out, err
}

func (s *Store) BranchCodPayments(ctx context.Context, branchID int, start, end time.Time) ([]models.Transaction, error) {
	var out []models.Transaction
	err := s.db.WithContext(ctx).
		Select("transactions.*").
		Joins("JOIN shipments ON shipments.id = transactions.shipment_id").
		Where("transactions.method = ? AND transactions.status = ?", models.PaymentMethodCod, models.TransactionStatusCompleted).
		Where("transactions.completed_at BETWEEN ? AND ?", start, end).
		Where("shipments.origin_branch_id = ?", branchID).
		Order("transactions.id").
		Find(&out).Error
	return out, err
}

// overlapping matches rows whose closed period intersects [start, end].
func overlapping(q *gorm.DB, start, end time.Time) *gorm.DB {
	return q.Where("period_start <= ? AND period_end >= ?", end, start)
}

func (s *Store) CreateBranchSettlement(ctx context.Context, bs *models.BranchSettlement) error {
	return s.withNamedLock(ctx, fmt.Sprintf("settlement:branch:%d", bs.BranchId), func(tx *gorm.DB) error {
		var n int64
		err := overlapping(tx.Model(&models.BranchSettlement{}), bs.PeriodStart, bs.PeriodEnd).
			Where("branch_id = ? AND status IN ?", bs.BranchId, models.BlockingBranchStatuses()).
			Count(&n).Error
		if err != nil {
			return err
		}
		if n > 0 {
			return models.ErrOverlappingSettlement
		}
		return tx.Create(bs).Error
	})
}

func (s *Store) GetBranchSettlement(ctx context.Context, id int) (*models.BranchSettlement, error) {
	var bs models.BranchSettlement
	if err := s.db.WithContext(ctx).First(&bs, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &bs, nil
}

func (s *Store) UpdateBranchSettlement(ctx context.Context, id int, fn func(*models.BranchSettlement) error) (*models.BranchSettlement, error) {
	var bs models.BranchSettlement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&bs, id).Error; err != nil {
			return mapErr(err)
		}
		if err := fn(&bs); err != nil {
			return err
		}
		return tx.Save(&bs).Error
	})
	if err != nil {
		return nil, err
	}
	return &bs, nil
}

func (s *Store) ListBranchSettlements(ctx context.Context, branchID int, start, end time.Time) ([]models.BranchSettlement, error) {
	var out []models.BranchSettlement
	err := overlapping(s.db.WithContext(ctx), start, end).
		Where("branch_id = ?", branchID).
		Order("id").
		Find(&out).Error
	return out, err
}

func (s *Store) settledShipmentIDs(tx *gorm.DB) *gorm.DB {
	return tx.Model(&models.SettlementItem{}).Select("shipment_id").Where("voided = ?", false)
}

func (s *Store) EligibleMerchantShipments(ctx context.Context, merchantID int, start, end time.Time, branchID *int) ([]models.Shipment, error) {
	db := s.db.WithContext(ctx)
	q := db.Where("customer_id = ? AND payment_type = ? AND status = ?", merchantID, models.PaymentTypeCod, models.ShipmentStatusDelivered).
		Where("delivered_at BETWEEN ? AND ?", start, end).
		Where("id NOT IN (?)", s.settledShipmentIDs(db))
	if branchID != nil {
		q = q.Where("origin_branch_id = ?", *branchID)
	}
	var out []models.Shipment
	err := q.Order("id").Find(&out).Error
	return out, err
}

func (s *Store) CreateMerchantSettlement(ctx context.Context, ms *models.MerchantSettlement) error {
	return s.withNamedLock(ctx, fmt.Sprintf("settlement:merchant:%d", ms.MerchantId), func(tx *gorm.DB) error {
		var n int64
		err := overlapping(tx.Model(&models.MerchantSettlement{}), ms.PeriodStart, ms.PeriodEnd).
			Where("merchant_id = ? AND status IN ?", ms.MerchantId, models.BlockingMerchantStatuses()).
			Count(&n).Error
		if err != nil {
			return err
		}
		if n > 0 {
			return models.ErrOverlappingSettlement
		}

		ids := make([]int, len(ms.Items))
		for i, it := range ms.Items {
			ids[i] = it.ShipmentId
		}
		if len(ids) > 0 {
			err = tx.Model(&models.SettlementItem{}).
				Where("shipment_id IN ? AND voided = ?", ids, false).
				Count(&n).Error
			if err != nil {
				return err
			}
			if n > 0 {
				return models.ErrShipmentAlreadySettled
			}
		}
		return tx.Create(ms).Error
	})
}

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") })
}

func (s *Store) GetMerchantSettlement(ctx context.Context, id int) (*models.MerchantSettlement, error) {
	var ms models.MerchantSettlement
	if err := preloadItems(s.db.WithContext(ctx)).First(&ms, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &ms, nil
}

func (s *Store) UpdateMerchantSettlement(ctx context.Context, id int, fn func(*models.MerchantSettlement) (*models.FinancialTransaction, error)) (*models.MerchantSettlement, error) {
	var ms models.MerchantSettlement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := preloadItems(tx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&ms, id).Error; err != nil {
			return mapErr(err)
		}
		ft, err := fn(&ms)
		if err != nil {
			return err
		}
		if ft != nil {
			if err := tx.Create(ft).Error; err != nil {
				if isDuplicateKeyErr(err) {
					return models.ErrDuplicate
				}
				return err
			}
		}
		if ms.Status.Void() {
			err := tx.Model(&models.SettlementItem{}).
				Where("settlement_id = ?", ms.ID).
				Update("voided", true).Error
			if err != nil {
				return err
			}
			for i := range ms.Items {
				ms.Items[i].Voided = true
			}
		}
		return tx.Omit(clause.Associations).Save(&ms).Error
	})
	if err != nil {
		return nil, err
	}
	return &ms, nil
}

func (s *Store) ListMerchantSettlements(ctx context.Context, merchantID int, start, end time.Time) ([]models.MerchantSettlement, error) {
	var out []models.MerchantSettlement
	err := overlapping(preloadItems(s.db.WithContext(ctx)), start, end).
		Where("merchant_id = ?", merchantID).
		Order("id").
		Find(&out).Error
	return out, err
}
