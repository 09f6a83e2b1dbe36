package credit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mmdatafocus/shipment_finance/config"
	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/mmdatafocus/shipment_finance/store/memory"
	"github.com/mmdatafocus/shipment_finance/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func defaultThresholds() config.CreditThresholds {
	return config.CreditThresholds{WarnAt: d("0.80"), SoftBlockAt: d("0.95"), HardBlockAt: d("1.00")}
}

func newPolicy(t *testing.T, customers ...*models.Customer) (*Policy, *memory.Store) {
	t.Helper()
	st := memory.New()
	for _, c := range customers {
		require.NoError(t, st.PutCustomer(context.Background(), c))
	}
	return NewPolicy(st, defaultThresholds(), nil), st
}

func net30Customer() *models.Customer {
	return &models.Customer{
		Name:           "Acme",
		CreditLimit:    d("1000"),
		CurrentBalance: d("850"),
		PaymentTerms:   models.PaymentTermsNet30,
		Status:         models.CustomerStatusActive,
	}
}

func TestCanCreateShipment_HardBlockOverLimit(t *testing.T) {
	c := net30Customer()
	p, _ := newPolicy(t, c)

	dec, err := p.CanCreateShipment(context.Background(), c.ID, d("200"))
	require.NoError(t, err)
	assert.Equal(t, ResultHardBlock, dec.Result)
	assert.False(t, dec.Allowed)
	assert.True(t, dec.Utilization.Equal(d("1.05")), "utilization %s", dec.Utilization)
	assert.True(t, dec.UtilizationPercent.Equal(d("105.0")), "percent %s", dec.UtilizationPercent)
	assert.True(t, dec.AvailableCredit.Equal(d("150")), "available %s", dec.AvailableCredit)
}

func TestCanCreateShipment_SoftBlockRequiresApproval(t *testing.T) {
	c := net30Customer()
	p, _ := newPolicy(t, c)

	dec, err := p.CanCreateShipment(context.Background(), c.ID, d("100"))
	require.NoError(t, err)
	assert.Equal(t, ResultSoftBlock, dec.Result)
	assert.True(t, dec.RequiresApproval)
	assert.True(t, dec.Utilization.Equal(d("0.95")))
}

func TestEvaluate_Tiers(t *testing.T) {
	base := models.Customer{CreditLimit: d("1000"), PaymentTerms: models.PaymentTermsNet30, Status: models.CustomerStatusActive}
	cases := []struct {
		name      string
		projected string
		want      Result
		warning   bool
	}{
		{"low", "100", ResultAllowed, false},
		{"warn boundary", "800", ResultWarning, true},
		{"just under soft", "949.99", ResultWarning, true},
		{"soft boundary", "950", ResultSoftBlock, false},
		{"hard boundary", "1000", ResultHardBlock, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dec := Evaluate(defaultThresholds(), base, d(tc.projected))
			assert.Equal(t, tc.want, dec.Result)
			assert.Equal(t, tc.warning, dec.Warning)
		})
	}
}

func TestEvaluate_LargeLimitJustUnderThresholds(t *testing.T) {
	base := models.Customer{CreditLimit: d("100000"), PaymentTerms: models.PaymentTermsNet30, Status: models.CustomerStatusActive}
	cases := []struct {
		name      string
		balance   string
		projected string
		want      Result
	}{
		{"under warn", "0", "79999.999", ResultAllowed},
		{"under soft", "90000", "4999.9999", ResultWarning},
		{"under hard", "99000", "999.99", ResultSoftBlock},
		{"at hard", "99000", "1000", ResultHardBlock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			c.CurrentBalance = d(tc.balance)
			assert.Equal(t, tc.want, Evaluate(defaultThresholds(), c, d(tc.projected)).Result)
		})
	}
}

func TestEvaluate_BypassesAndStatusBlock(t *testing.T) {
	cod := models.Customer{CreditLimit: d("10"), CurrentBalance: d("500"), PaymentTerms: "COD", Status: models.CustomerStatusActive}
	assert.Equal(t, ResultAllowed, Evaluate(defaultThresholds(), cod, d("1000")).Result)

	suspended := models.Customer{CreditLimit: d("1000"), PaymentTerms: models.PaymentTermsNet30, Status: models.CustomerStatusSuspended}
	dec := Evaluate(defaultThresholds(), suspended, d("1"))
	assert.Equal(t, ResultStatusBlock, dec.Result)
	assert.False(t, dec.Allowed)

	unlimited := models.Customer{CreditLimit: decimal.Zero, CurrentBalance: d("99999"), PaymentTerms: models.PaymentTermsNet30, Status: models.CustomerStatusActive}
	dec = Evaluate(defaultThresholds(), unlimited, d("99999"))
	assert.Equal(t, ResultAllowed, dec.Result)
	assert.True(t, dec.AvailableCredit.IsZero())
}

func TestEvaluate_MonotonicInProjectedValue(t *testing.T) {
	c := models.Customer{CreditLimit: d("1000"), CurrentBalance: d("300"), PaymentTerms: models.PaymentTermsNet30, Status: models.CustomerStatusActive}
	prev := -1
	for v := 0; v <= 1500; v += 5 {
		sev := Evaluate(defaultThresholds(), c, decimal.NewFromInt(int64(v))).Result.Severity()
		if sev < prev {
			t.Fatalf("severity dropped from %d to %d at projected=%d", prev, sev, v)
		}
		prev = sev
	}
	assert.Equal(t, ResultHardBlock.Severity(), prev)
}

func TestCanCreateShipment_UnknownCustomer(t *testing.T) {
	p, _ := newPolicy(t)
	_, err := p.CanCreateShipment(context.Background(), 42, d("1"))
	assert.True(t, errors.Is(err, ErrCustomerNotFound))
}

func TestCheckShipment_SoftBlockPlacesHold(t *testing.T) {
	c := net30Customer()
	p, st := newPolicy(t, c)
	ctx := context.Background()
	sh := &models.Shipment{CustomerId: c.ID, TotalAmount: d("100"), PaymentType: models.PaymentTypeCredit, Status: models.ShipmentStatusPending}
	require.NoError(t, st.PutShipment(ctx, sh))

	dec, err := p.CheckShipment(ctx, *sh)
	require.NoError(t, err)
	assert.Equal(t, ResultSoftBlock, dec.Result)

	held, err := st.GetShipment(ctx, sh.ID)
	require.NoError(t, err)
	assert.True(t, held.CreditHold)
	assert.Equal(t, dec.Reason, held.CreditHoldReason)
}

func TestReleaseCreditHold_RequiresActorAndRecordsAudit(t *testing.T) {
	c := net30Customer()
	p, st := newPolicy(t, c)
	ctx := context.Background()
	sh := &models.Shipment{CustomerId: c.ID, TotalAmount: d("10")}
	require.NoError(t, st.PutShipment(ctx, sh))

	_, err := p.PlaceCreditHold(ctx, sh.ID, "manual review", "ops-1")
	require.NoError(t, err)

	_, err = p.ReleaseCreditHold(ctx, ReleaseRequest{ShipmentId: sh.ID})
	assert.True(t, errors.Is(err, utils.ErrValidation), "err = %v", err)

	released, err := p.ReleaseCreditHold(ctx, ReleaseRequest{ShipmentId: sh.ID, ActorId: "manager-7", Notes: "paid upfront"})
	require.NoError(t, err)
	assert.False(t, released.CreditHold)
	assert.Equal(t, "manager-7", released.CreditReleasedBy)
	require.NotNil(t, released.CreditReleasedAt)

	_, err = p.ReleaseCreditHold(ctx, ReleaseRequest{ShipmentId: sh.ID, ActorId: "manager-7"})
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))

	events, err := st.CreditHoldEvents(ctx, sh.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.CreditHoldActionPlace, events[0].Action)
	assert.Equal(t, models.CreditHoldActionRelease, events[1].Action)
}

func TestBalanceMutation_ConcurrentDeliveriesAndPayments(t *testing.T) {
	c := &models.Customer{CreditLimit: d("100000"), CurrentBalance: decimal.Zero, PaymentTerms: models.PaymentTermsNet30, Status: models.CustomerStatusActive}
	p, st := newPolicy(t, c)
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	errs := make(chan error, workers*2)
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := p.UpdateBalanceOnDelivery(ctx, models.Shipment{ID: i + 1, CustomerId: c.ID, TotalAmount: d("12.50")})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := p.UpdateBalanceOnPayment(ctx, c.ID, d("2.50"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := st.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentBalance.Equal(d("500")), "balance = %s, want 500", got.CurrentBalance)
}

func TestBalanceMutation_AppliedOncePerShipmentAndPayment(t *testing.T) {
	c := net30Customer()
	p, st := newPolicy(t, c)
	ctx := context.Background()
	sh := models.Shipment{ID: 7, CustomerId: c.ID, TotalAmount: d("100")}

	applied, err := p.UpdateBalanceOnDelivery(ctx, sh)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = p.UpdateBalanceOnDelivery(ctx, sh)
	require.NoError(t, err)
	assert.False(t, applied)

	txn := models.Transaction{ID: 3, CustomerId: c.ID, Amount: d("40")}
	applied, err = p.ApplyPayment(ctx, txn)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = p.ApplyPayment(ctx, txn)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := st.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentBalance.Equal(d("910")), "balance = %s", got.CurrentBalance)
}

func TestUpdateBalanceOnDelivery_SkipsCodCustomers(t *testing.T) {
	c := &models.Customer{PaymentTerms: models.PaymentTermsCod, Status: models.CustomerStatusActive}
	p, st := newPolicy(t, c)
	applied, err := p.UpdateBalanceOnDelivery(context.Background(), models.Shipment{CustomerId: c.ID, TotalAmount: d("50")})
	require.NoError(t, err)
	assert.False(t, applied)
	got, _ := st.GetCustomer(context.Background(), c.ID)
	assert.True(t, got.CurrentBalance.IsZero())
}
