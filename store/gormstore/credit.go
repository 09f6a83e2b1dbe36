package gormstore

import (
	"context"
	"errors"

	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AdjustCustomerBalance adds delta in SQL so concurrent adjustments never
// overwrite each other.
func (s *Store) AdjustCustomerBalance(ctx context.Context, customerID int, delta decimal.Decimal) error {
	db := s.db.WithContext(ctx)
	if delta.IsZero() {
		_, err := s.GetCustomer(ctx, customerID)
		return err
	}
	res := db.Model(&models.Customer{}).
		Where("id = ?", customerID).
		UpdateColumns(map[string]interface{}{
			"current_balance": gorm.Expr("current_balance + ?", delta),
			"updated_at":      db.NowFunc(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrRecordNotFound
	}
	return nil
}

// AdjustCustomerBalanceOnce inserts the adjustment marker and increments the
// balance in one transaction; a duplicate marker means it was applied before.
func (s *Store) AdjustCustomerBalanceOnce(ctx context.Context, customerID int, delta decimal.Decimal, reference string) (applied bool, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		mark := models.BalanceAdjustment{CustomerId: customerID, Reference: reference, Amount: delta}
		if err := tx.Create(&mark).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return models.ErrDuplicate
			}
			return err
		}
		res := tx.Model(&models.Customer{}).
			Where("id = ?", customerID).
			UpdateColumns(map[string]interface{}{
				"current_balance": gorm.Expr("current_balance + ?", delta),
				"updated_at":      tx.NowFunc(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrRecordNotFound
		}
		return nil
	})
	if errors.Is(err, models.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ApplyCreditHold(ctx context.Context, ev *models.CreditHoldEvent) (*models.Shipment, error) {
	var sh models.Shipment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sh, ev.ShipmentId).Error; err != nil {
			return mapErr(err)
		}
		if err := sh.ApplyCreditHold(*ev); err != nil {
			return err
		}
		err := tx.Model(&sh).Select(
			"CreditHold", "CreditHoldReason", "CreditHoldAt",
			"CreditReleasedBy", "CreditReleasedAt", "CreditReleaseNotes",
		).Updates(&sh).Error
		if err != nil {
			return err
		}
		return tx.Create(ev).Error
	})
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

func (s *Store) CreditHoldEvents(ctx context.Context, shipmentID int) ([]models.CreditHoldEvent, error) {
	var out []models.CreditHoldEvent
	err := s.db.WithContext(ctx).Where("shipment_id = ?", shipmentID).Order("id").Find(&out).Error
	return out, err
}
