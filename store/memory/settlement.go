package memory

import (
	"context"
	"sort"
	"time"

	"github.com/mmdatafocus/shipment_finance/models"
)

func (s *Store) DeliveredBranchShipments(_ context.Context, branchID int, start, end time.Time) ([]models.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Shipment, 0)
	for _, sh := range s.shipments {
		if sh.OriginBranchId != branchID || sh.Status != models.ShipmentStatusDelivered {
			continue
		}
		if sh.DeliveredAt == nil || !models.InPeriod(*sh.DeliveredAt, start, end) {
			continue
		}
		out = append(out, sh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) BranchCodPayments(_ context.Context, branchID int, start, end time.Time) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Transaction, 0)
	for _, t := range s.transactions {
		if t.Method != models.PaymentMethodCod || t.Status != models.TransactionStatusCompleted || t.ShipmentId == nil {
			continue
		}
		if t.CompletedAt == nil || !models.InPeriod(*t.CompletedAt, start, end) {
			continue
		}
		if sh, ok := s.shipments[*t.ShipmentId]; !ok || sh.OriginBranchId != branchID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateBranchSettlement(_ context.Context, bs *models.BranchSettlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.branchSettlements {
		if existing.BranchId != bs.BranchId || existing.Status.Void() {
			continue
		}
		if models.PeriodsOverlap(existing.PeriodStart, existing.PeriodEnd, bs.PeriodStart, bs.PeriodEnd) {
			return models.ErrOverlappingSettlement
		}
	}
	bs.ID = s.nextID("branch_settlements")
	bs.CreatedAt = s.now()
	bs.UpdatedAt = bs.CreatedAt
	s.branchSettlements[bs.ID] = *bs
	return nil
}

func (s *Store) GetBranchSettlement(_ context.Context, id int) (*models.BranchSettlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bs, ok := s.branchSettlements[id]
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	return &bs, nil
}

func (s *Store) UpdateBranchSettlement(_ context.Context, id int, fn func(*models.BranchSettlement) error) (*models.BranchSettlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bs, ok := s.branchSettlements[id]
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	if err := fn(&bs); err != nil {
		return nil, err
	}
	bs.UpdatedAt = s.now()
	s.branchSettlements[id] = bs
	return &bs, nil
}

func (s *Store) ListBranchSettlements(_ context.Context, branchID int, start, end time.Time) ([]models.BranchSettlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.BranchSettlement, 0)
	for _, bs := range s.branchSettlements {
		if bs.BranchId == branchID && models.PeriodsOverlap(bs.PeriodStart, bs.PeriodEnd, start, end) {
			out = append(out, bs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// settledShipments is the set of shipments held by a non-void item.
func (s *Store) settledShipments() map[int]bool {
	settled := make(map[int]bool)
	for _, it := range s.items {
		if !it.Voided {
			settled[it.ShipmentId] = true
		}
	}
	return settled
}

func (s *Store) EligibleMerchantShipments(_ context.Context, merchantID int, start, end time.Time, branchID *int) ([]models.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	settled := s.settledShipments()
	out := make([]models.Shipment, 0)
	for _, sh := range s.shipments {
		if sh.CustomerId != merchantID || sh.PaymentType != models.PaymentTypeCod || sh.Status != models.ShipmentStatusDelivered {
			continue
		}
		if sh.DeliveredAt == nil || !models.InPeriod(*sh.DeliveredAt, start, end) {
			continue
		}
		if branchID != nil && sh.OriginBranchId != *branchID {
			continue
		}
		if settled[sh.ID] {
			continue
		}
		out = append(out, sh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateMerchantSettlement(_ context.Context, ms *models.MerchantSettlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.merchantSettlements {
		if existing.MerchantId != ms.MerchantId || !existing.Status.ClaimsPeriod() {
			continue
		}
		if models.PeriodsOverlap(existing.PeriodStart, existing.PeriodEnd, ms.PeriodStart, ms.PeriodEnd) {
			return models.ErrOverlappingSettlement
		}
	}
	settled := s.settledShipments()
	for _, it := range ms.Items {
		if settled[it.ShipmentId] {
			return models.ErrShipmentAlreadySettled
		}
	}

	now := s.now()
	ms.ID = s.nextID("merchant_settlements")
	ms.CreatedAt = now
	ms.UpdatedAt = now
	for i := range ms.Items {
		ms.Items[i].ID = s.nextID("settlement_items")
		ms.Items[i].SettlementId = ms.ID
		ms.Items[i].CreatedAt = now
		s.items[ms.Items[i].ID] = ms.Items[i]
	}
	stored := *ms
	stored.Items = nil
	s.merchantSettlements[ms.ID] = stored
	return nil
}

func (s *Store) merchantWithItems(ms models.MerchantSettlement) models.MerchantSettlement {
	ms.Items = make([]models.SettlementItem, 0)
	for _, it := range s.items {
		if it.SettlementId == ms.ID {
			ms.Items = append(ms.Items, it)
		}
	}
	sort.Slice(ms.Items, func(i, j int) bool { return ms.Items[i].ID < ms.Items[j].ID })
	return ms
}

func (s *Store) GetMerchantSettlement(_ context.Context, id int) (*models.MerchantSettlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.merchantSettlements[id]
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	ms = s.merchantWithItems(ms)
	return &ms, nil
}

// UpdateMerchantSettlement applies fn and, in the same critical section,
// records the payout it returns and voids items of a voided settlement.
func (s *Store) UpdateMerchantSettlement(_ context.Context, id int, fn func(*models.MerchantSettlement) (*models.FinancialTransaction, error)) (*models.MerchantSettlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.merchantSettlements[id]
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	ms = s.merchantWithItems(ms)
	ft, err := fn(&ms)
	if err != nil {
		return nil, err
	}
	if ft != nil {
		for _, existing := range s.financial {
			if existing.SettlementKind == ft.SettlementKind && existing.SettlementId == ft.SettlementId {
				return nil, models.ErrDuplicate
			}
		}
	}

	now := s.now()
	if ft != nil {
		ft.ID = s.nextID("financial_transactions")
		ft.CreatedAt = now
		s.financial = append(s.financial, *ft)
	}
	if ms.Status.Void() {
		for i := range ms.Items {
			ms.Items[i].Voided = true
			s.items[ms.Items[i].ID] = ms.Items[i]
		}
	}
	ms.UpdatedAt = now
	stored := ms
	stored.Items = nil
	s.merchantSettlements[id] = stored
	return &ms, nil
}

func (s *Store) ListMerchantSettlements(_ context.Context, merchantID int, start, end time.Time) ([]models.MerchantSettlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.MerchantSettlement, 0)
	for _, ms := range s.merchantSettlements {
		if ms.MerchantId == merchantID && models.PeriodsOverlap(ms.PeriodStart, ms.PeriodEnd, start, end) {
			out = append(out, s.merchantWithItems(ms))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
