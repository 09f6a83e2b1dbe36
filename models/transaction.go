package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a customer payment recorded by the application layer.
type Transaction struct {
	ID          int               `gorm:"primary_key" json:"id"`
	CustomerId  int               `gorm:"index" json:"customer_id"`
	ShipmentId  *int              `gorm:"index" json:"shipment_id"`
	Amount      decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Currency    string            `gorm:"size:3;not null" json:"currency"`
	Method      PaymentMethod     `gorm:"size:20;index;not null" json:"method"`
	Status      TransactionStatus `gorm:"size:20;index;not null" json:"status"`
	Reference   string            `gorm:"size:100" json:"reference"`
	CompletedAt *time.Time        `gorm:"index" json:"completed_at"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// FinancialTransaction records money leaving the organisation, created
// together with the settlement it pays.
type FinancialTransaction struct {
	ID             int                      `gorm:"primary_key" json:"id"`
	Type           FinancialTransactionType `gorm:"size:30;index;not null" json:"type"`
	PartyId        int                      `gorm:"index;not null" json:"party_id"`
	SettlementId   int                      `gorm:"uniqueIndex:uniq_ft_settlement,priority:2;not null" json:"settlement_id"`
	SettlementKind string                   `gorm:"size:10;uniqueIndex:uniq_ft_settlement,priority:1;not null" json:"settlement_kind"`
	Amount         decimal.Decimal          `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Currency       string                   `gorm:"size:3;not null" json:"currency"`
	Method         PaymentMethod            `gorm:"size:20;not null" json:"method"`
	Reference      string                   `gorm:"size:100" json:"reference"`
	OccurredAt     time.Time                `gorm:"index;not null" json:"occurred_at"`
	CreatedAt      time.Time                `gorm:"autoCreateTime" json:"created_at"`
}
