package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/mmdatafocus/shipment_finance/store/memory"
	"github.com/mmdatafocus/shipment_finance/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingPublisher struct {
	batches [][]models.LedgerEntry
	err     error
}

func (p *recordingPublisher) PublishEntries(_ context.Context, entries []models.LedgerEntry) error {
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, entries)
	return nil
}

func seedPayment(t *testing.T, st *memory.Store, amount string, method models.PaymentMethod) models.Transaction {
	t.Helper()
	ctx := context.Background()
	sh := models.Shipment{
		CustomerId:   1,
		Status:       models.ShipmentStatusDelivered,
		Currency:     "USD",
		BaseRate:     d("100"),
		WeightCharge: d("20"),
		Surcharges:   d("20"),
		TaxAmount:    d("10"),
		TotalAmount:  d("150"),
	}
	require.NoError(t, st.PutShipment(ctx, &sh))
	completed := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	txn := models.Transaction{
		CustomerId:  1,
		ShipmentId:  &sh.ID,
		Amount:      d(amount),
		Currency:    "usd",
		Method:      method,
		Status:      models.TransactionStatusCompleted,
		CompletedAt: &completed,
	}
	require.NoError(t, st.PutTransaction(ctx, &txn))
	return txn
}

func byAccount(entries []models.LedgerEntry) map[string]models.LedgerEntry {
	out := make(map[string]models.LedgerEntry, len(entries))
	for _, e := range entries {
		out[e.AccountCode] = e
	}
	return out
}

func TestPostPayment_SplitsShipmentCharges(t *testing.T) {
	st := memory.New()
	poster := NewPoster(st, nil, nil)
	txn := seedPayment(t, st, "150", models.PaymentMethodCash)

	entries, err := poster.PostPayment(context.Background(), txn)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.True(t, models.IsBalanced(entries))

	acct := byAccount(entries)
	assert.Equal(t, models.EntryTypeDebit, acct[models.AccountCodeCash].EntryType)
	assert.True(t, acct[models.AccountCodeCash].Amount.Equal(d("150")))
	assert.True(t, acct[models.AccountCodeFreightRevenue].Amount.Equal(d("120")))
	assert.True(t, acct[models.AccountCodeSurchargeRevenue].Amount.Equal(d("20")))
	assert.True(t, acct[models.AccountCodeTaxPayable].Amount.Equal(d("10")))
	for _, e := range entries {
		assert.Equal(t, "PAY-"+fmt.Sprint(txn.ID), e.Reference)
		assert.Equal(t, models.EntryStatusPending, e.Status)
		assert.Equal(t, "USD", e.Currency)
		assert.True(t, e.PostingDate.Equal(*txn.CompletedAt))
	}
}

func TestPostPayment_ProRataWhenChargesDiffer(t *testing.T) {
	st := memory.New()
	poster := NewPoster(st, nil, nil)
	txn := seedPayment(t, st, "100", models.PaymentMethodCard)

	entries, err := poster.PostPayment(context.Background(), txn)
	require.NoError(t, err)
	assert.True(t, models.IsBalanced(entries))

	acct := byAccount(entries)
	assert.True(t, acct[models.AccountCodeBank].Amount.Equal(d("100")))
	assert.True(t, acct[models.AccountCodeFreightRevenue].Amount.Equal(d("80")))
	assert.True(t, acct[models.AccountCodeSurchargeRevenue].Amount.Equal(d("13.33")))
	assert.True(t, acct[models.AccountCodeTaxPayable].Amount.Equal(d("6.67")))
}

func TestPostPayment_NoShipmentGoesToFreight(t *testing.T) {
	st := memory.New()
	poster := NewPoster(st, nil, nil)
	txn := models.Transaction{ID: 42, Amount: d("19.99"), Currency: "USD", Method: "crypto", Status: models.TransactionStatusCompleted}

	entries, err := poster.PostPayment(context.Background(), txn)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	acct := byAccount(entries)
	assert.True(t, acct[models.AccountCodeCash].Amount.Equal(d("19.99")), "unknown method falls back to cash")
	assert.True(t, acct[models.AccountCodeFreightRevenue].Amount.Equal(d("19.99")))
}

func TestPostPayment_RejectsInvalidInput(t *testing.T) {
	st := memory.New()
	poster := NewPoster(st, nil, nil)
	ctx := context.Background()

	_, err := poster.PostPayment(ctx, models.Transaction{ID: 1, Amount: d("10"), Status: models.TransactionStatusPending})
	assert.True(t, errors.Is(err, ErrTransactionNotCompleted))

	_, err = poster.PostPayment(ctx, models.Transaction{ID: 2, Amount: d("0"), Status: models.TransactionStatusCompleted})
	assert.True(t, errors.Is(err, ErrInvalidAmount))

	missing := 999
	_, err = poster.PostPayment(ctx, models.Transaction{ID: 3, ShipmentId: &missing, Amount: d("10"), Status: models.TransactionStatusCompleted})
	assert.True(t, errors.Is(err, models.ErrRecordNotFound))

	all, err := st.ListEntries(ctx, models.EntryFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPostPayment_SecondPostIsRejected(t *testing.T) {
	st := memory.New()
	poster := NewPoster(st, nil, nil)
	ctx := context.Background()
	txn := seedPayment(t, st, "150", models.PaymentMethodCash)

	_, err := poster.PostPayment(ctx, txn)
	require.NoError(t, err)
	_, err = poster.PostPayment(ctx, txn)
	assert.True(t, errors.Is(err, ErrAlreadyPosted), "err = %v", err)

	entries, err := poster.EntriesByReference(ctx, PaymentReference(txn.ID))
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestPostPayment_AlwaysBalances(t *testing.T) {
	st := memory.New()
	poster := NewPoster(st, nil, nil)
	ctx := context.Background()
	sh := models.Shipment{
		Currency:        "USD",
		BaseRate:        d("33.33"),
		Surcharges:      d("0.01"),
		InsuranceAmount: d("7.77"),
		TaxAmount:       d("1.11"),
	}
	require.NoError(t, st.PutShipment(ctx, &sh))

	for i := 1; i <= 300; i++ {
		amount := decimal.New(int64(i*37), -2)
		txn := models.Transaction{ID: i, ShipmentId: &sh.ID, Amount: amount, Currency: "USD", Method: models.PaymentMethodCash, Status: models.TransactionStatusCompleted}
		entries, err := poster.PostPayment(ctx, txn)
		require.NoError(t, err, "amount %s", amount)
		debit, credit := models.EntryTotals(entries)
		require.True(t, debit.Equal(credit), "amount %s: %s != %s", amount, debit, credit)
		require.True(t, debit.Equal(amount))
		for _, e := range entries {
			require.True(t, e.Amount.IsPositive(), "amount %s: %s line %s", amount, e.AccountCode, e.Amount)
		}
	}
}

func TestAllocate(t *testing.T) {
	tests := []struct {
		name      string
		amount    string
		breakdown models.RevenueBreakdown
		want      map[string]string
	}{
		{
			name:      "exact match",
			amount:    "30",
			breakdown: models.RevenueBreakdown{Freight: d("25"), Tax: d("5")},
			want:      map[string]string{models.AccountCodeFreightRevenue: "25", models.AccountCodeTaxPayable: "5"},
		},
		{
			name:   "empty breakdown",
			amount: "12.5",
			want:   map[string]string{models.AccountCodeFreightRevenue: "12.5"},
		},
		{
			name:      "remainder on last component",
			amount:    "10",
			breakdown: models.RevenueBreakdown{Freight: d("1"), Surcharges: d("1"), Insurance: d("1")},
			want: map[string]string{
				models.AccountCodeFreightRevenue:   "3.33",
				models.AccountCodeSurchargeRevenue: "3.33",
				models.AccountCodeInsuranceRevenue: "3.34",
			},
		},
		{
			name:      "sub-cent component is dropped",
			amount:    "150",
			breakdown: models.RevenueBreakdown{Freight: d("150"), Tax: d("0.004")},
			want:      map[string]string{models.AccountCodeFreightRevenue: "150"},
		},
		{
			name:      "tiny amount keeps every line positive",
			amount:    "0.05",
			breakdown: models.RevenueBreakdown{Freight: d("1"), Surcharges: d("1"), Insurance: d("1"), Tax: d("0.01")},
			want: map[string]string{
				models.AccountCodeFreightRevenue:   "0.01",
				models.AccountCodeSurchargeRevenue: "0.01",
				models.AccountCodeInsuranceRevenue: "0.01",
				models.AccountCodeTaxPayable:       "0.02",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := allocate(d(tt.amount), tt.breakdown)
			got := make(map[string]string, len(lines))
			sum := decimal.Zero
			for _, l := range lines {
				got[l.code] = l.amount.String()
				sum = sum.Add(l.amount)
			}
			assert.True(t, sum.Equal(d(tt.amount)))
			require.Len(t, got, len(tt.want))
			for code, want := range tt.want {
				assert.True(t, d(got[code]).Equal(d(want)), "%s: got %s want %s", code, got[code], want)
			}
		})
	}
}

func TestDebitAccountFor(t *testing.T) {
	cases := map[models.PaymentMethod]string{
		models.PaymentMethodCash:      models.AccountCodeCash,
		"CARD":                        models.AccountCodeBank,
		models.PaymentMethodMobile:    models.AccountCodeBank,
		models.PaymentMethodOnAccount: models.AccountCodeAccountsReceivable,
		models.PaymentMethodCod:       models.AccountCodeCodInTransit,
	}
	for method, want := range cases {
		got, known := DebitAccountFor(method)
		assert.True(t, known, method)
		assert.Equal(t, want, got, method)
	}
	got, known := DebitAccountFor("barter")
	assert.False(t, known)
	assert.Equal(t, models.AccountCodeCash, got)
}

func TestPostRefund_CumulativeLimit(t *testing.T) {
	st := memory.New()
	poster := NewPoster(st, nil, nil)
	ctx := context.Background()
	txn := seedPayment(t, st, "150", models.PaymentMethodCash)
	_, err := poster.PostPayment(ctx, txn)
	require.NoError(t, err)

	_, err = poster.PostRefund(ctx, txn, d("200"))
	assert.True(t, errors.Is(err, ErrRefundExceedsOriginal))

	first, err := poster.PostRefund(ctx, txn, d("100"))
	require.NoError(t, err)
	assert.True(t, models.IsBalanced(first))
	acct := byAccount(first)
	assert.Equal(t, models.EntryTypeCredit, acct[models.AccountCodeCash].EntryType)
	assert.Equal(t, models.EntryTypeDebit, acct[models.AccountCodeFreightRevenue].EntryType)
	assert.Equal(t, models.EntryKindRefund, acct[models.AccountCodeCash].Kind)

	_, err = poster.PostRefund(ctx, txn, d("60"))
	assert.True(t, errors.Is(err, ErrRefundExceedsOriginal), "err = %v", err)

	second, err := poster.PostRefund(ctx, txn, d("50"))
	require.NoError(t, err)
	assert.NotEqual(t, first[0].Reference, second[0].Reference)

	_, err = poster.PostRefund(ctx, txn, d("0.01"))
	assert.True(t, errors.Is(err, ErrRefundExceedsOriginal))

	_, err = poster.PostRefund(ctx, txn, d("-5"))
	assert.True(t, errors.Is(err, ErrInvalidAmount))
}

func TestPostRefund_SameEventPostsOnce(t *testing.T) {
	st := memory.New()
	poster := NewPoster(st, nil, nil)
	txn := seedPayment(t, st, "150", models.PaymentMethodCash)
	ctx := utils.SetEventIdInContext(context.Background(), "refund-evt-1")

	first, err := poster.PostRefund(ctx, txn, d("30"))
	require.NoError(t, err)
	_, err = poster.PostRefund(ctx, txn, d("30"))
	assert.True(t, errors.Is(err, ErrAlreadyPosted), "err = %v", err)

	other, err := poster.PostRefund(utils.SetEventIdInContext(context.Background(), "refund-evt-2"), txn, d("30"))
	require.NoError(t, err)
	assert.NotEqual(t, first[0].Reference, other[0].Reference)

	entries, err := st.ListEntries(context.Background(), models.EntryFilter{TransactionId: txn.ID})
	require.NoError(t, err)
	assert.Len(t, entries, len(first)+len(other))
}

func TestSyncToExternalSystem(t *testing.T) {
	st := memory.New()
	pub := &recordingPublisher{}
	poster := NewPoster(st, pub, nil)
	ctx := context.Background()
	txn := seedPayment(t, st, "150", models.PaymentMethodCash)
	_, err := poster.PostPayment(ctx, txn)
	require.NoError(t, err)

	n, err := poster.SyncToExternalSystem(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	require.Len(t, pub.batches, 1)

	n, err = poster.SyncToExternalSystem(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, pub.batches, 1)

	posted, err := st.ListEntries(ctx, models.EntryFilter{Status: models.EntryStatusPosted})
	require.NoError(t, err)
	assert.Len(t, posted, 4)
	for _, e := range posted {
		assert.NotNil(t, e.PostedAt)
	}
}

func TestSyncToExternalSystem_PublishFailureKeepsPending(t *testing.T) {
	st := memory.New()
	pub := &recordingPublisher{err: errors.New("topic unavailable")}
	poster := NewPoster(st, pub, nil)
	ctx := context.Background()
	txn := seedPayment(t, st, "150", models.PaymentMethodCash)
	_, err := poster.PostPayment(ctx, txn)
	require.NoError(t, err)

	n, err := poster.SyncToExternalSystem(ctx)
	assert.Error(t, err)
	assert.Equal(t, 0, n)

	pending, err := st.ListEntries(ctx, models.EntryFilter{Status: models.EntryStatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 4)
}

func TestTrialBalance(t *testing.T) {
	st := memory.New()
	poster := NewPoster(st, nil, nil)
	ctx := context.Background()
	txn := seedPayment(t, st, "150", models.PaymentMethodCash)
	_, err := poster.PostPayment(ctx, txn)
	require.NoError(t, err)
	_, err = poster.PostRefund(ctx, txn, d("30"))
	require.NoError(t, err)

	rows, err := poster.TrialBalance(ctx, models.EntryFilter{})
	require.NoError(t, err)
	codes := make([]string, len(rows))
	debit, credit := decimal.Zero, decimal.Zero
	for i, r := range rows {
		codes[i] = r.AccountCode
		debit = debit.Add(r.Debit)
		credit = credit.Add(r.Credit)
	}
	assert.Equal(t, []string{
		models.AccountCodeCash, models.AccountCodeTaxPayable,
		models.AccountCodeFreightRevenue, models.AccountCodeSurchargeRevenue,
	}, codes)
	assert.True(t, debit.Equal(credit))
	assert.True(t, rows[0].Debit.Equal(d("150")))
	assert.True(t, rows[0].Credit.Equal(d("30")))
}

func TestGroupByReference(t *testing.T) {
	entries := []models.LedgerEntry{
		{ID: 1, Reference: "PAY-2"},
		{ID: 2, Reference: "PAY-1"},
		{ID: 3, Reference: "PAY-2"},
	}
	batches := GroupByReference(entries)
	require.Len(t, batches, 2)
	assert.Equal(t, "PAY-1", batches[0].Reference)
	assert.Len(t, batches[1].Entries, 2)
}
