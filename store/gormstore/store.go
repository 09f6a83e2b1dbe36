// Package gormstore is the MySQL persistence layer of every finance engine.
package gormstore

import (
	"context"
	"errors"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/shipment_finance/models"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Migrate(ctx context.Context) error {
	return models.MigrateTable(s.db.WithContext(ctx))
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func mapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrRecordNotFound
	}
	return err
}

// PutCustomer inserts or fully replaces a customer row.
func (s *Store) PutCustomer(ctx context.Context, c *models.Customer) error {
	return s.db.WithContext(ctx).Save(c).Error
}

func (s *Store) GetCustomer(ctx context.Context, id int) (*models.Customer, error) {
	var c models.Customer
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (s *Store) PutShipment(ctx context.Context, sh *models.Shipment) error {
	return s.db.WithContext(ctx).Save(sh).Error
}

func (s *Store) GetShipment(ctx context.Context, id int) (*models.Shipment, error) {
	var sh models.Shipment
	if err := s.db.WithContext(ctx).First(&sh, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &sh, nil
}

func (s *Store) PutTransaction(ctx context.Context, t *models.Transaction) error {
	return s.db.WithContext(ctx).Save(t).Error
}

func (s *Store) GetTransaction(ctx context.Context, id int) (*models.Transaction, error) {
	var t models.Transaction
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (s *Store) FinancialTransactions(ctx context.Context) ([]models.FinancialTransaction, error) {
	var out []models.FinancialTransaction
	err := s.db.WithContext(ctx).Order("id").Find(&out).Error
	return out, err
}
