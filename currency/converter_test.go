package currency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/mmdatafocus/shipment_finance/store/memory"
	"github.com/shopspring/decimal"
)

var day = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func saveRate(t *testing.T, st *memory.Store, from, to, rate string, date time.Time) {
	t.Helper()
	if err := st.SaveRate(context.Background(), &models.ExchangeRate{
		FromCurrency: from, ToCurrency: to, RateDate: date,
		Rate: decimal.RequireFromString(rate), Source: models.RateSourceFeed,
	}); err != nil {
		t.Fatalf("SaveRate: %v", err)
	}
}

type countingStore struct {
	RateStore
	finds int
}

func (c *countingStore) FindRate(ctx context.Context, from, to string, date time.Time) (*models.ExchangeRate, error) {
	c.finds++
	return c.RateStore.FindRate(ctx, from, to, date)
}

func TestConvert_SameCurrencyIsIdentity(t *testing.T) {
	st := &countingStore{RateStore: memory.New()}
	conv := NewConverter(st, NewMemoryCache(16, time.Minute), nil)

	got, err := conv.Convert(context.Background(), decimal.RequireFromString("12.345"), "usd", "USD", day)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !got.Rate.Equal(decimal.NewFromInt(1)) || !got.Converted.Equal(decimal.RequireFromString("12.35")) {
		t.Fatalf("identity conversion = %+v", got)
	}
	if st.finds != 0 {
		t.Fatalf("identity conversion hit the store %d times", st.finds)
	}
}

func TestConvert_DirectRateRoundsToCents(t *testing.T) {
	st := memory.New()
	saveRate(t, st, "USD", "MMK", "2100.5", day)
	conv := NewConverter(st, nil, nil)

	got, err := conv.Convert(context.Background(), decimal.RequireFromString("10.333"), "USD", "MMK", day)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !got.Converted.Equal(decimal.RequireFromString("21704.47")) {
		t.Fatalf("converted = %s, want 21704.47", got.Converted)
	}
	if !got.Original.Equal(decimal.RequireFromString("10.333")) {
		t.Fatalf("original = %s", got.Original)
	}
}

func TestGetRate_UsesLatestRateOnOrBeforeDate(t *testing.T) {
	st := memory.New()
	saveRate(t, st, "USD", "EUR", "0.90", day.AddDate(0, 0, -10))
	saveRate(t, st, "USD", "EUR", "0.92", day.AddDate(0, 0, -1))
	saveRate(t, st, "USD", "EUR", "0.99", day.AddDate(0, 0, 1))
	conv := NewConverter(st, nil, nil)

	rate, ok, err := conv.GetRate(context.Background(), "USD", "EUR", day)
	if err != nil || !ok {
		t.Fatalf("GetRate: ok=%v err=%v", ok, err)
	}
	if !rate.Equal(decimal.RequireFromString("0.92")) {
		t.Fatalf("rate = %s, want 0.92", rate)
	}
}

func TestGetRate_FallsBackToInversePair(t *testing.T) {
	st := memory.New()
	saveRate(t, st, "USD", "THB", "32", day)
	conv := NewConverter(st, nil, nil)

	rate, ok, err := conv.GetRate(context.Background(), "THB", "USD", day)
	if err != nil || !ok {
		t.Fatalf("GetRate: ok=%v err=%v", ok, err)
	}
	if !rate.Equal(decimal.RequireFromString("0.03125")) {
		t.Fatalf("inverse rate = %s, want 0.03125", rate)
	}
}

func TestConvert_MissingRateIsHardError(t *testing.T) {
	conv := NewConverter(memory.New(), nil, nil)
	_, err := conv.Convert(context.Background(), decimal.NewFromInt(5), "USD", "JPY", day)
	if !errors.Is(err, ErrRateNotFound) {
		t.Fatalf("err = %v, want ErrRateNotFound", err)
	}
}

func TestGetRate_ServesFromCache(t *testing.T) {
	st := &countingStore{RateStore: memory.New()}
	saveRate(t, st.RateStore.(*memory.Store), "USD", "SGD", "1.35", day)
	conv := NewConverter(st, NewMemoryCache(16, time.Minute), nil)

	for i := 0; i < 3; i++ {
		if _, ok, err := conv.GetRate(context.Background(), "USD", "SGD", day); err != nil || !ok {
			t.Fatalf("GetRate #%d: ok=%v err=%v", i, ok, err)
		}
	}
	if st.finds != 1 {
		t.Fatalf("store lookups = %d, want 1", st.finds)
	}
}

func TestSetManualRate_VisibleImmediately(t *testing.T) {
	st := memory.New()
	saveRate(t, st, "USD", "MMK", "2100", day)
	conv := NewConverter(st, NewMemoryCache(16, time.Hour), nil)
	ctx := context.Background()

	if _, _, err := conv.GetRate(ctx, "USD", "MMK", day); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if _, err := conv.SetManualRate(ctx, "USD", "MMK", day, decimal.NewFromInt(2500), "bank quote"); err != nil {
		t.Fatalf("SetManualRate: %v", err)
	}
	rate, _, err := conv.GetRate(ctx, "USD", "MMK", day)
	if err != nil {
		t.Fatalf("GetRate: %v", err)
	}
	if !rate.Equal(decimal.NewFromInt(2500)) {
		t.Fatalf("rate after override = %s, want 2500", rate)
	}
}

func TestSetManualRate_RejectsNonPositive(t *testing.T) {
	conv := NewConverter(memory.New(), nil, nil)
	if _, err := conv.SetManualRate(context.Background(), "USD", "EUR", day, decimal.Zero, ""); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("err = %v, want ErrInvalidRate", err)
	}
}

type stubFeed struct {
	rates map[string]decimal.Decimal
	err   error
}

func (f stubFeed) FetchRates(context.Context, string) (map[string]decimal.Decimal, error) {
	return f.rates, f.err
}

func TestRefresh_FeedFailureKeepsPreviousRates(t *testing.T) {
	st := memory.New()
	conv := NewConverter(st, NewMemoryCache(16, time.Hour), nil)
	r := NewRefresher(stubFeed{rates: map[string]decimal.Decimal{"eur": decimal.RequireFromString("0.91")}}, st, conv, "USD", time.Hour, nil)
	r.now = func() time.Time { return day }

	n, err := r.Refresh(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Refresh: n=%d err=%v", n, err)
	}

	r.feed = stubFeed{err: errors.New("feed unreachable")}
	if _, err := r.Refresh(context.Background()); err == nil {
		t.Fatalf("expected feed error to be reported")
	}

	rate, ok, err := conv.GetRate(context.Background(), "USD", "EUR", day.AddDate(0, 0, 2))
	if err != nil || !ok {
		t.Fatalf("GetRate after failed refresh: ok=%v err=%v", ok, err)
	}
	if !rate.Equal(decimal.RequireFromString("0.91")) {
		t.Fatalf("rate = %s, want previous 0.91", rate)
	}
}

func TestRefresh_OverwritesManualRateOfSameDay(t *testing.T) {
	st := memory.New()
	conv := NewConverter(st, NewMemoryCache(16, time.Hour), nil)
	ctx := context.Background()
	if _, err := conv.SetManualRate(ctx, "USD", "EUR", day, decimal.RequireFromString("0.80"), ""); err != nil {
		t.Fatalf("SetManualRate: %v", err)
	}
	r := NewRefresher(stubFeed{rates: map[string]decimal.Decimal{"EUR": decimal.RequireFromString("0.93")}}, st, conv, "USD", time.Hour, nil)
	r.now = func() time.Time { return day }
	if _, err := r.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	stored, err := st.FindRate(ctx, "USD", "EUR", day)
	if err != nil {
		t.Fatalf("FindRate: %v", err)
	}
	if stored.Source != models.RateSourceFeed || !stored.Rate.Equal(decimal.RequireFromString("0.93")) {
		t.Fatalf("stored = %+v, want feed 0.93", stored)
	}
}
