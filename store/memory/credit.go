package memory

import (
	"context"

	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/shopspring/decimal"
)

func (s *Store) AdjustCustomerBalance(_ context.Context, customerID int, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[customerID]
	if !ok {
		return models.ErrRecordNotFound
	}
	c.CurrentBalance = c.CurrentBalance.Add(delta)
	c.UpdatedAt = s.now()
	s.customers[customerID] = c
	return nil
}

func (s *Store) AdjustCustomerBalanceOnce(_ context.Context, customerID int, delta decimal.Decimal, reference string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balanceRefs[reference] {
		return false, nil
	}
	c, ok := s.customers[customerID]
	if !ok {
		return false, models.ErrRecordNotFound
	}
	c.CurrentBalance = c.CurrentBalance.Add(delta)
	c.UpdatedAt = s.now()
	s.customers[customerID] = c
	s.balanceRefs[reference] = true
	return true, nil
}

func (s *Store) ApplyCreditHold(_ context.Context, ev *models.CreditHoldEvent) (*models.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shipments[ev.ShipmentId]
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	if err := sh.ApplyCreditHold(*ev); err != nil {
		return nil, err
	}
	sh.UpdatedAt = s.now()
	s.shipments[sh.ID] = sh
	ev.ID = s.nextID("credit_hold_events")
	s.holdEvents = append(s.holdEvents, *ev)
	return &sh, nil
}

// CreditHoldEvents returns the hold audit trail of one shipment.
func (s *Store) CreditHoldEvents(_ context.Context, shipmentID int) ([]models.CreditHoldEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CreditHoldEvent, 0)
	for _, ev := range s.holdEvents {
		if ev.ShipmentId == shipmentID {
			out = append(out, ev)
		}
	}
	return out, nil
}
