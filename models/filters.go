package models

import "time"

// EntryFilter narrows ledger entry listings. Zero values match everything.
type EntryFilter struct {
	Status        EntryStatus
	TransactionId int
	AccountCode   string
	From          *time.Time
	To            *time.Time
}

// CodFilter narrows COD collection listings. Zero values match everything.
type CodFilter struct {
	DriverId      string
	Status        CodStatus
	From          *time.Time
	To            *time.Time
	OnlyMismatch  bool
	ShipmentIds   []int
	CollectionIds []int
	// ActivityFrom/ActivityTo bound CodCollection.ActivityAt.
	ActivityFrom *time.Time
	ActivityTo   *time.Time
}

// Matches applies the filter in memory; the SQL store mirrors it in WHERE clauses.
func (f CodFilter) Matches(c CodCollection) bool {
	if f.DriverId != "" && c.CollectedBy != f.DriverId {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.From != nil || f.To != nil {
		if c.CollectedAt == nil {
			return false
		}
		if f.From != nil && c.CollectedAt.Before(*f.From) {
			return false
		}
		if f.To != nil && c.CollectedAt.After(*f.To) {
			return false
		}
	}
	if f.ActivityFrom != nil && c.ActivityAt().Before(*f.ActivityFrom) {
		return false
	}
	if f.ActivityTo != nil && c.ActivityAt().After(*f.ActivityTo) {
		return false
	}
	if f.OnlyMismatch && !c.HasDiscrepancy() {
		return false
	}
	if len(f.ShipmentIds) > 0 && !containsInt(f.ShipmentIds, c.ShipmentId) {
		return false
	}
	if len(f.CollectionIds) > 0 && !containsInt(f.CollectionIds, c.ID) {
		return false
	}
	return true
}

// Matches applies the filter in memory.
func (f EntryFilter) Matches(e LedgerEntry) bool {
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.TransactionId != 0 && e.TransactionId != f.TransactionId {
		return false
	}
	if f.AccountCode != "" && e.AccountCode != f.AccountCode {
		return false
	}
	if f.From != nil && e.PostingDate.Before(*f.From) {
		return false
	}
	if f.To != nil && e.PostingDate.After(*f.To) {
		return false
	}
	return true
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
