package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const MoneyPlaces = 2

var (
	ErrRecordNotFound = errors.New("record not found")
	// ErrImmutable is returned when a paid settlement or posted entry would be changed.
	ErrImmutable = errors.New("record is immutable")
	ErrDuplicate = errors.New("duplicate record")

	// Store-level precondition failures, re-exported by the engines.
	ErrOverlappingSettlement  = errors.New("settlement already exists for an overlapping period")
	ErrShipmentAlreadySettled = errors.New("shipment already included in another settlement")
	ErrNothingToRemit         = errors.New("no remittable collections for driver")
	ErrRefundLimitExceeded    = errors.New("refunds would exceed the original amount")
	ErrIdempotencyInProgress  = errors.New("idempotency in progress")
)

func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

func SumDecimals(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// PeriodsOverlap treats both windows as closed intervals.
func PeriodsOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !bStart.After(aEnd)
}

// InPeriod reports whether t lies in [start, end].
func InPeriod(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

// jsonValue/jsonScan store typed snapshots as JSON columns.
func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(src any, dest any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	}
	return fmt.Errorf("unsupported json column type %T", src)
}
