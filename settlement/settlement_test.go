package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/shipment_finance/config"
	"github.com/mmdatafocus/shipment_finance/currency"
	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/mmdatafocus/shipment_finance/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	janStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	janEnd   = time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func at(day int) *time.Time {
	t := time.Date(2024, 1, day, 12, 0, 0, 0, time.UTC)
	return &t
}

func testPolicy() config.FinancePolicy {
	return config.FinancePolicy{BranchCommissionRate: d("0.15"), BaseCurrency: "USD"}
}

func newCalculator(t *testing.T) (*Calculator, *memory.Store) {
	t.Helper()
	st := memory.New()
	conv := currency.NewConverter(st, nil, nil)
	return NewCalculator(st, conv, testPolicy(), nil), st
}

func putShipment(t *testing.T, st *memory.Store, sh models.Shipment) models.Shipment {
	t.Helper()
	if sh.Currency == "" {
		sh.Currency = "USD"
	}
	require.NoError(t, st.PutShipment(context.Background(), &sh))
	return sh
}

func branchReq(branchID int, start, end time.Time) BranchRequest {
	return BranchRequest{BranchId: branchID, PeriodStart: start, PeriodEnd: end, Currency: "USD"}
}

func TestGenerateBranchSettlement_ZeroActivity(t *testing.T) {
	calc, _ := newCalculator(t)

	s, err := calc.GenerateBranchSettlement(context.Background(), branchReq(7, janStart, janEnd))
	require.NoError(t, err)
	assert.Equal(t, models.BranchSettlementDraft, s.Status)
	assert.True(t, s.NetAmount.IsZero())
	assert.True(t, s.AmountDueToHq.IsZero())
	assert.True(t, s.AmountDueFromHq.IsZero())
	assert.Empty(t, s.Breakdown.Shipments)
	assert.Empty(t, s.Breakdown.CodPayments)
	assert.True(t, s.Breakdown.Revenue.IsZero())
}

func TestGenerateBranchSettlement_Totals(t *testing.T) {
	calc, st := newCalculator(t)
	ctx := context.Background()

	a := putShipment(t, st, models.Shipment{OriginBranchId: 7, Status: models.ShipmentStatusDelivered, TotalAmount: d("300"), DeliveredAt: at(5)})
	putShipment(t, st, models.Shipment{OriginBranchId: 7, Status: models.ShipmentStatusDelivered, TotalAmount: d("200"), DeliveredAt: at(20)})
	putShipment(t, st, models.Shipment{OriginBranchId: 7, Status: models.ShipmentStatusInTransit, TotalAmount: d("999")})
	putShipment(t, st, models.Shipment{OriginBranchId: 8, Status: models.ShipmentStatusDelivered, TotalAmount: d("999"), DeliveredAt: at(6)})

	require.NoError(t, st.PutTransaction(ctx, &models.Transaction{
		ShipmentId: &a.ID, Amount: d("400"), Currency: "USD", Method: models.PaymentMethodCod,
		Status: models.TransactionStatusCompleted, CompletedAt: at(5),
	}))
	require.NoError(t, st.PutTransaction(ctx, &models.Transaction{
		ShipmentId: &a.ID, Amount: d("50"), Currency: "USD", Method: models.PaymentMethodCash,
		Status: models.TransactionStatusCompleted, CompletedAt: at(5),
	}))

	s, err := calc.GenerateBranchSettlement(ctx, branchReq(7, janStart, janEnd))
	require.NoError(t, err)
	assert.True(t, s.TotalRevenue.Equal(d("500")), "revenue %s", s.TotalRevenue)
	assert.True(t, s.TotalCod.Equal(d("400")), "cod %s", s.TotalCod)
	assert.True(t, s.BranchCommission.Equal(d("60")), "commission %s", s.BranchCommission)
	assert.True(t, s.NetAmount.Equal(d("560")), "net %s", s.NetAmount)
	assert.True(t, s.AmountDueToHq.Equal(d("340")), "due to hq %s", s.AmountDueToHq)
	assert.True(t, s.AmountDueFromHq.IsZero())

	// the snapshot alone reproduces the totals
	b := s.Breakdown
	sum := decimal.Zero
	for _, l := range b.Shipments {
		sum = sum.Add(l.Amount)
	}
	assert.True(t, sum.Equal(b.Revenue))
	assert.True(t, b.Cod.Mul(b.CommissionRate).Round(2).Equal(b.Commission))
}

func TestGenerateBranchSettlement_ConvertsForeignCurrency(t *testing.T) {
	calc, st := newCalculator(t)
	ctx := context.Background()
	require.NoError(t, st.SaveRate(ctx, &models.ExchangeRate{FromCurrency: "EUR", ToCurrency: "USD", RateDate: janStart, Rate: d("1.10"), Source: models.RateSourceFeed}))
	putShipment(t, st, models.Shipment{OriginBranchId: 3, Status: models.ShipmentStatusDelivered, TotalAmount: d("100"), Currency: "EUR", DeliveredAt: at(10)})

	s, err := calc.GenerateBranchSettlement(ctx, branchReq(3, janStart, janEnd))
	require.NoError(t, err)
	require.Len(t, s.Breakdown.Shipments, 1)
	line := s.Breakdown.Shipments[0]
	assert.Equal(t, "EUR", line.OriginalCurrency)
	assert.True(t, line.Rate.Equal(d("1.10")))
	assert.True(t, s.TotalRevenue.Equal(d("110")))
}

func TestGenerateBranchSettlement_MissingRateWritesNothing(t *testing.T) {
	calc, st := newCalculator(t)
	ctx := context.Background()
	putShipment(t, st, models.Shipment{OriginBranchId: 3, Status: models.ShipmentStatusDelivered, TotalAmount: d("100"), Currency: "JPY", DeliveredAt: at(10)})

	_, err := calc.GenerateBranchSettlement(ctx, branchReq(3, janStart, janEnd))
	require.True(t, errors.Is(err, currency.ErrRateNotFound), "err = %v", err)

	existing, err := st.ListBranchSettlements(ctx, 3, janStart, janEnd)
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestGenerateBranchSettlement_OverlapRejected(t *testing.T) {
	calc, st := newCalculator(t)
	ctx := context.Background()

	first, err := calc.GenerateBranchSettlement(ctx, branchReq(7, janStart, janEnd))
	require.NoError(t, err)

	_, err = calc.GenerateBranchSettlement(ctx, branchReq(7, janEnd, janEnd.AddDate(0, 1, 0)))
	assert.True(t, errors.Is(err, ErrOverlappingSettlement), "err = %v", err)

	all, err := st.ListBranchSettlements(ctx, 7, janStart, janEnd.AddDate(0, 2, 0))
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// a rejected settlement no longer claims its period
	_, err = calc.RejectBranchSettlement(ctx, first.ID, "wrong cut-off")
	require.NoError(t, err)
	_, err = calc.GenerateBranchSettlement(ctx, branchReq(7, janStart, janEnd))
	assert.NoError(t, err)
}

func TestGenerateBranchSettlement_ConcurrentCallsCreateOne(t *testing.T) {
	calc, st := newCalculator(t)
	ctx := context.Background()

	const callers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		overlaps  int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := calc.GenerateBranchSettlement(ctx, branchReq(9, janStart, janEnd))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrOverlappingSettlement):
				overlaps++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, overlaps)
	all, err := st.ListBranchSettlements(ctx, 9, janStart, janEnd)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestBranchSettlement_StateMachine(t *testing.T) {
	calc, _ := newCalculator(t)
	ctx := context.Background()
	s, err := calc.GenerateBranchSettlement(ctx, branchReq(4, janStart, janEnd))
	require.NoError(t, err)

	_, err = calc.ApproveBranchSettlement(ctx, s.ID, "cfo")
	assert.True(t, errors.Is(err, ErrInvalidTransition), "approve from draft: %v", err)

	_, err = calc.SubmitBranchSettlement(ctx, s.ID, "branch-mgr")
	require.NoError(t, err)
	_, err = calc.ApproveBranchSettlement(ctx, s.ID, "cfo")
	require.NoError(t, err)
	paid, err := calc.MarkBranchSettlementPaid(ctx, s.ID, "TRF-001")
	require.NoError(t, err)
	assert.Equal(t, models.BranchSettlementPaid, paid.Status)
	assert.Equal(t, "TRF-001", paid.PaymentReference)

	_, err = calc.RejectBranchSettlement(ctx, s.ID, "too late")
	assert.True(t, errors.Is(err, ErrImmutable), "reject after paid: %v", err)
}

func codShipment(merchant, day int, cod, fee, deductions string) models.Shipment {
	return models.Shipment{
		CustomerId:     merchant,
		OriginBranchId: 1,
		PaymentType:    models.PaymentTypeCod,
		Status:         models.ShipmentStatusDelivered,
		CodAmount:      d(cod),
		ShippingCost:   d(fee),
		Deductions:     d(deductions),
		DeliveredAt:    at(day),
	}
}

func merchantReq(merchant int, start, end time.Time) MerchantRequest {
	return MerchantRequest{MerchantId: merchant, PeriodStart: start, PeriodEnd: end, Currency: "USD"}
}

func TestGenerateMerchantSettlement_Items(t *testing.T) {
	calc, st := newCalculator(t)
	ctx := context.Background()
	putShipment(t, st, codShipment(11, 3, "500", "40", "10"))
	putShipment(t, st, codShipment(11, 9, "250.50", "25", "0"))
	prepaid := codShipment(11, 9, "100", "10", "0")
	prepaid.PaymentType = models.PaymentTypePrepaid
	putShipment(t, st, prepaid)

	s, err := calc.GenerateMerchantSettlement(ctx, merchantReq(11, janStart, janEnd))
	require.NoError(t, err)
	require.Len(t, s.Items, 2)
	assert.True(t, s.Items[0].NetAmount.Equal(d("450")))
	assert.True(t, s.TotalCod.Equal(d("750.50")))
	assert.True(t, s.TotalShippingFees.Equal(d("65")))
	assert.True(t, s.TotalDeductions.Equal(d("10")))
	assert.True(t, s.NetAmount.Equal(d("675.50")), "net %s", s.NetAmount)
	assert.Equal(t, 2, s.Breakdown.ItemCount)
}

func TestGenerateMerchantSettlement_NoEligibleShipments(t *testing.T) {
	calc, _ := newCalculator(t)
	_, err := calc.GenerateMerchantSettlement(context.Background(), merchantReq(11, janStart, janEnd))
	assert.True(t, errors.Is(err, ErrNoEligibleShipments), "err = %v", err)
}

func TestMerchantSettlement_PaidShipmentsNeverEligibleAgain(t *testing.T) {
	calc, st := newCalculator(t)
	ctx := context.Background()
	sh := putShipment(t, st, codShipment(12, 15, "100", "10", "0"))

	s, err := calc.GenerateMerchantSettlement(ctx, merchantReq(12, janStart, janEnd))
	require.NoError(t, err)
	_, err = calc.SubmitMerchantSettlement(ctx, s.ID)
	require.NoError(t, err)
	_, err = calc.ApproveMerchantSettlement(ctx, s.ID, "finance-lead")
	require.NoError(t, err)
	paid, err := calc.ProcessMerchantPayment(ctx, PaymentRequest{SettlementId: s.ID, Method: models.PaymentMethodBankTransfer, Reference: "PO-77"})
	require.NoError(t, err)
	assert.Equal(t, models.MerchantSettlementPaid, paid.Status)

	payouts, err := st.FinancialTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.True(t, payouts[0].Amount.Equal(d("90")))
	assert.Equal(t, s.ID, payouts[0].SettlementId)

	eligible, err := calc.EligibleShipments(ctx, 12, janStart, janEnd.AddDate(0, 3, 0), nil)
	require.NoError(t, err)
	for _, e := range eligible {
		assert.NotEqual(t, sh.ID, e.ID)
	}

	_, err = calc.GenerateMerchantSettlement(ctx, merchantReq(12, janEnd.AddDate(0, 0, 1), janEnd.AddDate(0, 1, 0)))
	assert.True(t, errors.Is(err, ErrNoEligibleShipments), "err = %v", err)

	_, err = calc.CancelMerchantSettlement(ctx, s.ID, "oops")
	assert.True(t, errors.Is(err, ErrImmutable))
}

func TestMerchantSettlement_OpenSettlementClaimsPeriodUntilPaid(t *testing.T) {
	calc, st := newCalculator(t)
	ctx := context.Background()
	putShipment(t, st, codShipment(16, 5, "100", "10", "0"))

	s, err := calc.GenerateMerchantSettlement(ctx, merchantReq(16, janStart, janEnd))
	require.NoError(t, err)

	late := putShipment(t, st, codShipment(16, 20, "70", "5", "0"))
	_, err = calc.GenerateMerchantSettlement(ctx, merchantReq(16, janStart, janEnd))
	assert.True(t, errors.Is(err, ErrOverlappingSettlement), "err = %v", err)

	_, err = calc.SubmitMerchantSettlement(ctx, s.ID)
	require.NoError(t, err)
	_, err = calc.ApproveMerchantSettlement(ctx, s.ID, "finance-lead")
	require.NoError(t, err)
	_, err = calc.ProcessMerchantPayment(ctx, PaymentRequest{SettlementId: s.ID, Method: models.PaymentMethodBankTransfer, Reference: "PO-90"})
	require.NoError(t, err)

	next, err := calc.GenerateMerchantSettlement(ctx, merchantReq(16, janStart, janEnd))
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Equal(t, late.ID, next.Items[0].ShipmentId)
}

func TestMerchantSettlement_CancelReleasesShipments(t *testing.T) {
	calc, st := newCalculator(t)
	ctx := context.Background()
	putShipment(t, st, codShipment(13, 4, "80", "8", "2"))

	s, err := calc.GenerateMerchantSettlement(ctx, merchantReq(13, janStart, janEnd))
	require.NoError(t, err)
	cancelled, err := calc.CancelMerchantSettlement(ctx, s.ID, "merchant disputed")
	require.NoError(t, err)
	for _, it := range cancelled.Items {
		assert.True(t, it.Voided)
	}

	again, err := calc.GenerateMerchantSettlement(ctx, merchantReq(13, janStart, janEnd))
	require.NoError(t, err)
	assert.Len(t, again.Items, 1)
}

func TestMerchantSettlement_OutOfOrderTransitions(t *testing.T) {
	calc, st := newCalculator(t)
	ctx := context.Background()
	putShipment(t, st, codShipment(14, 4, "80", "8", "0"))
	s, err := calc.GenerateMerchantSettlement(ctx, merchantReq(14, janStart, janEnd))
	require.NoError(t, err)

	_, err = calc.ApproveMerchantSettlement(ctx, s.ID, "finance-lead")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	_, err = calc.ProcessMerchantPayment(ctx, PaymentRequest{SettlementId: s.ID, Method: models.PaymentMethodCash, Reference: "X"})
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	payouts, err := st.FinancialTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, payouts)
}

func TestMerchantStatement(t *testing.T) {
	calc, st := newCalculator(t)
	ctx := context.Background()
	putShipment(t, st, codShipment(15, 2, "100", "10", "0"))
	s, err := calc.GenerateMerchantSettlement(ctx, merchantReq(15, janStart, janEnd))
	require.NoError(t, err)
	_, err = calc.SubmitMerchantSettlement(ctx, s.ID)
	require.NoError(t, err)
	_, err = calc.ApproveMerchantSettlement(ctx, s.ID, "finance-lead")
	require.NoError(t, err)
	putShipment(t, st, codShipment(15, 25, "40", "5", "0"))

	stmt, err := calc.MerchantStatement(ctx, 15, janStart, janEnd)
	require.NoError(t, err)
	assert.Len(t, stmt.Settlements, 1)
	assert.True(t, stmt.Outstanding.Equal(d("90")))
	assert.True(t, stmt.TotalPaid.IsZero())
	assert.Equal(t, 1, stmt.ByStatus[models.MerchantSettlementApproved].Count)
	require.Len(t, stmt.Unsettled, 1)
	assert.True(t, stmt.UnsettledNet.Equal(d("35")))
}
