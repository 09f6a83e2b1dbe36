package models

import "gorm.io/gorm"

func AllModels() []interface{} {
	return []interface{}{
		&LedgerEntry{},
		&Customer{}, &BalanceAdjustment{}, &CreditHoldEvent{},
		&Shipment{}, &Transaction{}, &FinancialTransaction{},
		&CodCollection{}, &DriverCashAccount{}, &CodRemittance{},
		&BranchSettlement{}, &MerchantSettlement{}, &SettlementItem{},
		&ExchangeRate{},
		&IdempotencyKey{},
	}
}

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
