package gormstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/shipment_finance/cod"
	"github.com/mmdatafocus/shipment_finance/config"
	"github.com/mmdatafocus/shipment_finance/credit"
	"github.com/mmdatafocus/shipment_finance/currency"
	"github.com/mmdatafocus/shipment_finance/ledger"
	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/mmdatafocus/shipment_finance/settlement"
	"github.com/mmdatafocus/shipment_finance/workflow"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ledger.Store              = (*Store)(nil)
	_ credit.Store              = (*Store)(nil)
	_ settlement.Store          = (*Store)(nil)
	_ cod.Store                 = (*Store)(nil)
	_ currency.RateStore        = (*Store)(nil)
	_ workflow.IdempotencyStore = (*Store)(nil)
)

// openTestStore needs INTEGRATION_TESTS=1 and TEST_MYSQL_DSN pointing at a
// disposable database.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run MySQL integration tests")
	}
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set")
	}
	db := config.ConnectDatabaseDSNWithRetry(dsn, 3)
	require.NotNil(t, db, "could not connect to %s", dsn)
	s := New(db)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// uniq keeps rows of parallel or repeated runs apart.
func uniq() int {
	return int(time.Now().UnixNano() % 1_000_000_000)
}

func TestIntegration_BranchSettlementRace(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	calc := settlement.NewCalculator(s, nil, config.DefaultFinancePolicy(), nil)
	branch := uniq()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := calc.GenerateBranchSettlement(ctx, settlement.BranchRequest{BranchId: branch, PeriodStart: start, PeriodEnd: end})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, settlement.ErrOverlappingSettlement), "unexpected: %v", err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	rows, err := s.ListBranchSettlements(ctx, branch, start, end)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestIntegration_ConcurrentBalanceAdjustments(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	c := &models.Customer{Name: fmt.Sprintf("it-%d", uniq()), CreditLimit: decimal.NewFromInt(1000), PaymentTerms: models.PaymentTermsNet30, Status: models.CustomerStatusActive}
	require.NoError(t, s.PutCustomer(ctx, c))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AdjustCustomerBalance(ctx, c.ID, decimal.RequireFromString("12.50")))
			assert.NoError(t, s.AdjustCustomerBalance(ctx, c.ID, decimal.RequireFromString("-2.50")))
		}()
	}
	wg.Wait()

	got, err := s.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentBalance.Equal(decimal.NewFromInt(500)), "balance %s", got.CurrentBalance)
}

func TestIntegration_BalanceAdjustmentAppliedOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	c := &models.Customer{Name: fmt.Sprintf("it-%d", uniq()), CreditLimit: decimal.NewFromInt(1000), PaymentTerms: models.PaymentTermsNet30, Status: models.CustomerStatusActive}
	require.NoError(t, s.PutCustomer(ctx, c))
	ref := fmt.Sprintf("DLV-%d", uniq())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.AdjustCustomerBalanceOnce(ctx, c.ID, decimal.NewFromInt(150), ref)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, applied)

	got, err := s.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentBalance.Equal(decimal.NewFromInt(150)), "balance %s", got.CurrentBalance)

	_, err = s.AdjustCustomerBalanceOnce(ctx, 0, decimal.NewFromInt(1), fmt.Sprintf("DLV-missing-%d", uniq()))
	assert.True(t, errors.Is(err, models.ErrRecordNotFound))
}

func TestIntegration_LedgerPostingAndRefundLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	poster := ledger.NewPoster(s, nil, nil)
	now := time.Now().UTC()
	txn := &models.Transaction{Amount: decimal.NewFromInt(150), Currency: "USD", Method: models.PaymentMethodCash, Status: models.TransactionStatusCompleted, CompletedAt: &now}
	require.NoError(t, s.PutTransaction(ctx, txn))

	_, err := poster.PostPayment(ctx, *txn)
	require.NoError(t, err)
	_, err = poster.PostPayment(ctx, *txn)
	assert.True(t, errors.Is(err, ledger.ErrAlreadyPosted))

	_, err = poster.PostRefund(ctx, *txn, decimal.NewFromInt(100))
	require.NoError(t, err)
	_, err = poster.PostRefund(ctx, *txn, decimal.NewFromInt(60))
	assert.True(t, errors.Is(err, ledger.ErrRefundExceedsOriginal))
}

func TestIntegration_CodCollectAndRemit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	l := cod.NewLedger(s, nil)
	driver := fmt.Sprintf("drv-%d", uniq())

	sh := &models.Shipment{CustomerId: 1, OriginBranchId: 1, PaymentType: models.PaymentTypeCod, Status: models.ShipmentStatusDelivered, Currency: "USD", CodAmount: decimal.NewFromInt(500)}
	require.NoError(t, s.PutShipment(ctx, sh))
	c, err := l.RegisterExpectation(ctx, *sh)
	require.NoError(t, err)
	_, err = l.RecordCollection(ctx, cod.CollectionRequest{CollectionId: c.ID, Amount: decimal.NewFromInt(480), DriverId: driver, Method: "cash"})
	require.NoError(t, err)

	found, err := l.Discrepancies(ctx, models.CodFilter{CollectionIds: []int{c.ID}})
	require.NoError(t, err)
	require.Len(t, found, 1)

	res, err := l.RecordRemittance(ctx, cod.RemittanceRequest{DriverId: driver, CollectionIds: []int{c.ID}, DeclaredAmount: decimal.NewFromInt(480)})
	require.NoError(t, err)
	assert.True(t, res.Remittance.RemittedAmount.Equal(decimal.NewFromInt(480)))

	acct, err := l.DriverAccount(ctx, driver)
	require.NoError(t, err)
	assert.True(t, acct.Balance.IsZero())
}

func TestIntegration_Idempotency(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	event := fmt.Sprintf("evt-%d", uniq())

	skip, err := s.BeginIdempotency(ctx, "test", event)
	require.NoError(t, err)
	assert.False(t, skip)
	_, err = s.BeginIdempotency(ctx, "test", event)
	assert.True(t, errors.Is(err, models.ErrIdempotencyInProgress))

	require.NoError(t, s.MarkIdempotencySucceeded(ctx, "test", event))
	skip, err = s.BeginIdempotency(ctx, "test", event)
	require.NoError(t, err)
	assert.True(t, skip)
}
