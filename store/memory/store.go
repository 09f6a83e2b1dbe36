// Package memory is an in-process store with the same semantics as the
// MySQL store: every method is one critical section, so a check and the
// write that depends on it can't interleave with another caller.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mmdatafocus/shipment_finance/models"
)

type Store struct {
	mu  sync.Mutex
	now func() time.Time

	seq map[string]int

	customers    map[int]models.Customer
	balanceRefs  map[string]bool
	holdEvents   []models.CreditHoldEvent
	shipments    map[int]models.Shipment
	transactions map[int]models.Transaction
	financial    []models.FinancialTransaction

	entries []models.LedgerEntry

	branchSettlements   map[int]models.BranchSettlement
	merchantSettlements map[int]models.MerchantSettlement
	items               map[int]models.SettlementItem

	collections    map[int]models.CodCollection
	driverAccounts map[string]models.DriverCashAccount
	remittances    []models.CodRemittance

	rates map[rateKey]models.ExchangeRate

	idempotency map[idemKey]models.IdempotencyKey
}

func New() *Store {
	return &Store{
		now:                 func() time.Time { return time.Now().UTC() },
		seq:                 make(map[string]int),
		customers:           make(map[int]models.Customer),
		balanceRefs:         make(map[string]bool),
		shipments:           make(map[int]models.Shipment),
		transactions:        make(map[int]models.Transaction),
		branchSettlements:   make(map[int]models.BranchSettlement),
		merchantSettlements: make(map[int]models.MerchantSettlement),
		items:               make(map[int]models.SettlementItem),
		collections:         make(map[int]models.CodCollection),
		driverAccounts:      make(map[string]models.DriverCashAccount),
		rates:               make(map[rateKey]models.ExchangeRate),
		idempotency:         make(map[idemKey]models.IdempotencyKey),
	}
}

// SetClock overrides the timestamp source used for CreatedAt/UpdatedAt.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) nextID(table string) int {
	s.seq[table]++
	return s.seq[table]
}

// PutCustomer inserts or replaces a customer. A zero ID is assigned.
func (s *Store) PutCustomer(_ context.Context, c *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.nextID("customers")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	c.UpdatedAt = s.now()
	s.customers[c.ID] = *c
	return nil
}

func (s *Store) GetCustomer(_ context.Context, id int) (*models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	return &c, nil
}

// PutShipment inserts or replaces a shipment. A zero ID is assigned.
func (s *Store) PutShipment(_ context.Context, sh *models.Shipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sh.ID == 0 {
		sh.ID = s.nextID("shipments")
	}
	if sh.CreatedAt.IsZero() {
		sh.CreatedAt = s.now()
	}
	sh.UpdatedAt = s.now()
	s.shipments[sh.ID] = *sh
	return nil
}

func (s *Store) GetShipment(_ context.Context, id int) (*models.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shipments[id]
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	return &sh, nil
}

// PutTransaction inserts or replaces a payment transaction. A zero ID is assigned.
func (s *Store) PutTransaction(_ context.Context, t *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.nextID("transactions")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	t.UpdatedAt = s.now()
	s.transactions[t.ID] = *t
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id int) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	return &t, nil
}

// FinancialTransactions returns the payout records, oldest first.
func (s *Store) FinancialTransactions(_ context.Context) ([]models.FinancialTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.FinancialTransaction, len(s.financial))
	copy(out, s.financial)
	return out, nil
}
