package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate converts one unit of FromCurrency into ToCurrency, effective
// from RateDate. For the same pair and date the most recently updated row wins,
// so a manual override holds until the next feed refresh rewrites it.
type ExchangeRate struct {
	ID           int             `gorm:"primary_key" json:"id"`
	FromCurrency string          `gorm:"size:3;not null;uniqueIndex:uniq_rate_pair_date,priority:1" json:"from_currency"`
	ToCurrency   string          `gorm:"size:3;not null;uniqueIndex:uniq_rate_pair_date,priority:2" json:"to_currency"`
	RateDate     time.Time       `gorm:"type:date;not null;uniqueIndex:uniq_rate_pair_date,priority:3" json:"rate_date"`
	Rate         decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"rate"`
	Source       RateSource      `gorm:"size:10;not null" json:"source"`
	Notes        string          `gorm:"size:255" json:"notes"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// DateOnly truncates t to its UTC calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
