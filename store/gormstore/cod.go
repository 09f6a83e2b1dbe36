package gormstore

import (
	"context"
	"time"

	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) CreateCollection(ctx context.Context, c *models.CodCollection) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return models.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) GetCollection(ctx context.Context, id int) (*models.CodCollection, error) {
	var c models.CodCollection
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (s *Store) GetCollectionByShipment(ctx context.Context, shipmentID int) (*models.CodCollection, error) {
	var c models.CodCollection
	if err := s.db.WithContext(ctx).Where("shipment_id = ?", shipmentID).First(&c).Error; err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func lockCollection(tx *gorm.DB, id int) (*models.CodCollection, error) {
	var c models.CodCollection
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

// CollectCod records the collection and bumps the driver account in one
// transaction. The account row is created on first use.
func (s *Store) CollectCod(ctx context.Context, id int, amount decimal.Decimal, driverID, method string, at time.Time) (*models.CodCollection, error) {
	var c *models.CodCollection
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if c, err = lockCollection(tx, id); err != nil {
			return err
		}
		next, err := c.Status.Next(models.CodActionCollect)
		if err != nil {
			return err
		}
		collected := amount
		c.Status = next
		c.CollectedAmount = &collected
		c.CollectedBy = driverID
		c.CollectionMethod = method
		c.CollectedAt = &at
		if err := tx.Save(c).Error; err != nil {
			return err
		}

		now := tx.NowFunc()
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "driver_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"balance":            gorm.Expr("balance + ?", amount),
				"pending_remittance": gorm.Expr("pending_remittance + 1"),
				"updated_at":         now,
			}),
		}).Create(&models.DriverCashAccount{
			DriverId:          driverID,
			Balance:           amount,
			PendingRemittance: 1,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) VerifyCod(ctx context.Context, id int, supervisorID string, at time.Time) (*models.CodCollection, error) {
	var c *models.CodCollection
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if c, err = lockCollection(tx, id); err != nil {
			return err
		}
		next, err := c.Status.Next(models.CodActionVerify)
		if err != nil {
			return err
		}
		c.Status = next
		c.VerifiedBy = supervisorID
		c.VerifiedAt = &at
		return tx.Save(c).Error
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// RemitCod locks the driver's remittable collections among ids, records the
// remittance and moves them to remitted, then decrements the driver account
// by their collected total.
func (s *Store) RemitCod(ctx context.Context, driverID string, collectionIDs []int, rem *models.CodRemittance) ([]models.CodCollection, error) {
	var picked []models.CodCollection
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ? AND collected_by = ? AND status IN ?", collectionIDs, driverID,
				[]models.CodStatus{models.CodStatusCollected, models.CodStatusVerified}).
			Order("id").
			Find(&picked).Error
		if err != nil {
			return err
		}
		if len(picked) == 0 {
			return models.ErrNothingToRemit
		}

		total := decimal.Zero
		ids := make([]int, len(picked))
		for i, c := range picked {
			total = total.Add(c.Collected())
			ids[i] = c.ID
		}
		rem.DriverId = driverID
		rem.RemittedAmount = total
		rem.Variance = rem.DeclaredAmount.Sub(total)
		rem.CollectionCount = len(picked)
		if err := tx.Create(rem).Error; err != nil {
			return err
		}

		remittedAt := rem.RemittedAt
		err = tx.Model(&models.CodCollection{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":        models.CodStatusRemitted,
				"remitted_at":   remittedAt,
				"remittance_id": rem.ID,
			}).Error
		if err != nil {
			return err
		}
		for i := range picked {
			picked[i].Status = models.CodStatusRemitted
			picked[i].RemittedAt = &remittedAt
			picked[i].RemittanceId = &rem.ID
		}

		return tx.Model(&models.DriverCashAccount{}).
			Where("driver_id = ?", driverID).
			UpdateColumns(map[string]interface{}{
				"balance":            gorm.Expr("balance - ?", total),
				"pending_remittance": gorm.Expr("GREATEST(pending_remittance - ?, 0)", len(picked)),
				"last_remittance_at": remittedAt,
				"updated_at":         tx.NowFunc(),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return picked, nil
}

func applyCodFilter(q *gorm.DB, f models.CodFilter) *gorm.DB {
	if f.DriverId != "" {
		q = q.Where("collected_by = ?", f.DriverId)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("collected_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("collected_at <= ?", *f.To)
	}
	if f.ActivityFrom != nil {
		q = q.Where("COALESCE(collected_at, created_at) >= ?", *f.ActivityFrom)
	}
	if f.ActivityTo != nil {
		q = q.Where("COALESCE(collected_at, created_at) <= ?", *f.ActivityTo)
	}
	if f.OnlyMismatch {
		q = q.Where("collected_amount IS NOT NULL AND ABS(expected_amount - collected_amount) > ?", models.DiscrepancyTolerance)
	}
	if len(f.ShipmentIds) > 0 {
		q = q.Where("shipment_id IN ?", f.ShipmentIds)
	}
	if len(f.CollectionIds) > 0 {
		q = q.Where("id IN ?", f.CollectionIds)
	}
	return q
}

func (s *Store) ListCollections(ctx context.Context, filter models.CodFilter) ([]models.CodCollection, error) {
	var out []models.CodCollection
	err := applyCodFilter(s.db.WithContext(ctx), filter).Order("id").Find(&out).Error
	return out, err
}

func (s *Store) GetDriverAccount(ctx context.Context, driverID string) (*models.DriverCashAccount, error) {
	var acct models.DriverCashAccount
	if err := s.db.WithContext(ctx).Where("driver_id = ?", driverID).First(&acct).Error; err != nil {
		return nil, mapErr(err)
	}
	return &acct, nil
}

func (s *Store) ListRemittances(ctx context.Context, driverID string, from, to *time.Time) ([]models.CodRemittance, error) {
	q := s.db.WithContext(ctx)
	if driverID != "" {
		q = q.Where("driver_id = ?", driverID)
	}
	if from != nil {
		q = q.Where("remitted_at >= ?", *from)
	}
	if to != nil {
		q = q.Where("remitted_at <= ?", *to)
	}
	var out []models.CodRemittance
	err := q.Order("id").Find(&out).Error
	return out, err
}
