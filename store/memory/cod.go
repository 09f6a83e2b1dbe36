package memory

import (
	"context"
	"sort"
	"time"

	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/shopspring/decimal"
)

func (s *Store) CreateCollection(_ context.Context, c *models.CodCollection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.collections {
		if existing.ShipmentId == c.ShipmentId {
			return models.ErrDuplicate
		}
	}
	c.ID = s.nextID("cod_collections")
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	s.collections[c.ID] = *c
	return nil
}

func (s *Store) GetCollection(_ context.Context, id int) (*models.CodCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[id]
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	return &c, nil
}

func (s *Store) GetCollectionByShipment(_ context.Context, shipmentID int) (*models.CodCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.collections {
		if c.ShipmentId == shipmentID {
			return &c, nil
		}
	}
	return nil, models.ErrRecordNotFound
}

func (s *Store) CollectCod(_ context.Context, id int, amount decimal.Decimal, driverID, method string, at time.Time) (*models.CodCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[id]
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	next, err := c.Status.Next(models.CodActionCollect)
	if err != nil {
		return nil, err
	}
	collected := amount
	collectedAt := at
	c.Status = next
	c.CollectedAmount = &collected
	c.CollectedBy = driverID
	c.CollectionMethod = method
	c.CollectedAt = &collectedAt
	c.UpdatedAt = s.now()
	s.collections[id] = c

	acct := s.driverAccount(driverID)
	acct.Balance = acct.Balance.Add(amount)
	acct.PendingRemittance++
	acct.UpdatedAt = s.now()
	s.driverAccounts[driverID] = acct
	return &c, nil
}

func (s *Store) driverAccount(driverID string) models.DriverCashAccount {
	acct, ok := s.driverAccounts[driverID]
	if !ok {
		acct = models.DriverCashAccount{
			ID:        s.nextID("driver_cash_accounts"),
			DriverId:  driverID,
			Balance:   decimal.Zero,
			CreatedAt: s.now(),
		}
	}
	return acct
}

func (s *Store) VerifyCod(_ context.Context, id int, supervisorID string, at time.Time) (*models.CodCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[id]
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	next, err := c.Status.Next(models.CodActionVerify)
	if err != nil {
		return nil, err
	}
	verifiedAt := at
	c.Status = next
	c.VerifiedBy = supervisorID
	c.VerifiedAt = &verifiedAt
	c.UpdatedAt = s.now()
	s.collections[id] = c
	return &c, nil
}

func (s *Store) RemitCod(_ context.Context, driverID string, collectionIDs []int, rem *models.CodRemittance) ([]models.CodCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	picked := make([]models.CodCollection, 0, len(collectionIDs))
	seen := make(map[int]bool, len(collectionIDs))
	total := decimal.Zero
	for _, id := range collectionIDs {
		c, ok := s.collections[id]
		if !ok || seen[id] || c.CollectedBy != driverID || !c.Status.Remittable() {
			continue
		}
		seen[id] = true
		picked = append(picked, c)
		total = total.Add(c.Collected())
	}
	if len(picked) == 0 {
		return nil, models.ErrNothingToRemit
	}

	rem.ID = s.nextID("cod_remittances")
	rem.DriverId = driverID
	rem.RemittedAmount = total
	rem.Variance = rem.DeclaredAmount.Sub(total)
	rem.CollectionCount = len(picked)
	rem.CreatedAt = s.now()
	s.remittances = append(s.remittances, *rem)

	remittedAt := rem.RemittedAt
	remID := rem.ID
	for i := range picked {
		picked[i].Status = models.CodStatusRemitted
		picked[i].RemittedAt = &remittedAt
		picked[i].RemittanceId = &remID
		picked[i].UpdatedAt = s.now()
		s.collections[picked[i].ID] = picked[i]
	}

	acct := s.driverAccount(driverID)
	acct.Balance = acct.Balance.Sub(total)
	acct.PendingRemittance -= len(picked)
	if acct.PendingRemittance < 0 {
		acct.PendingRemittance = 0
	}
	acct.LastRemittanceAt = &remittedAt
	acct.UpdatedAt = s.now()
	s.driverAccounts[driverID] = acct
	return picked, nil
}

func (s *Store) ListCollections(_ context.Context, filter models.CodFilter) ([]models.CodCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CodCollection, 0)
	for _, c := range s.collections {
		if filter.Matches(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetDriverAccount(_ context.Context, driverID string) (*models.DriverCashAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.driverAccounts[driverID]
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	return &acct, nil
}

func (s *Store) ListRemittances(_ context.Context, driverID string, from, to *time.Time) ([]models.CodRemittance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CodRemittance, 0)
	for _, r := range s.remittances {
		if driverID != "" && r.DriverId != driverID {
			continue
		}
		if from != nil && r.RemittedAt.Before(*from) {
			continue
		}
		if to != nil && r.RemittedAt.After(*to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
