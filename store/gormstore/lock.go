package gormstore

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// acquireLock takes a MySQL advisory lock on the connection tx is bound to.
// GET_LOCK is connection-scoped, so the release must run on the same tx.
func acquireLock(tx *gorm.DB, name string) error {
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", name).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire lock %s", name)
	}
	return nil
}

func releaseLock(tx *gorm.DB, name string) {
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", name).Scan(&_ok).Error
}

// withNamedLock runs fn in a transaction while holding the advisory lock
// name. Lock, transaction and release share one pooled connection and the
// lock is only released after commit.
func (s *Store) withNamedLock(ctx context.Context, name string, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := acquireLock(conn, name); err != nil {
			return err
		}
		defer releaseLock(conn, name)
		return conn.Transaction(fn)
	})
}
