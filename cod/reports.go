package cod

import (
	"context"
	"time"

	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/shopspring/decimal"
)

type StatusSummary struct {
	Count     int             `json:"count"`
	Expected  decimal.Decimal `json:"expected"`
	Collected decimal.Decimal `json:"collected"`
}

type Summary struct {
	PeriodStart       time.Time                          `json:"period_start"`
	PeriodEnd         time.Time                          `json:"period_end"`
	ByStatus          map[models.CodStatus]StatusSummary `json:"by_status"`
	TotalExpected     decimal.Decimal                    `json:"total_expected"`
	TotalCollected    decimal.Decimal                    `json:"total_collected"`
	TotalRemitted     decimal.Decimal                    `json:"total_remitted"`
	WithDrivers       decimal.Decimal                    `json:"with_drivers"`
	DiscrepancyCount  int                                `json:"discrepancy_count"`
	DiscrepancyAmount decimal.Decimal                    `json:"discrepancy_amount"`
}

// CodSummary totals the collections of a period by status. A collection
// falls in the period by its collection time, or by creation time while
// still pending.
func (l *Ledger) CodSummary(ctx context.Context, start, end time.Time) (*Summary, error) {
	rows, err := l.store.ListCollections(ctx, models.CodFilter{ActivityFrom: &start, ActivityTo: &end})
	if err != nil {
		return nil, err
	}
	s := &Summary{
		PeriodStart:       start,
		PeriodEnd:         end,
		ByStatus:          make(map[models.CodStatus]StatusSummary),
		TotalExpected:     decimal.Zero,
		TotalCollected:    decimal.Zero,
		TotalRemitted:     decimal.Zero,
		WithDrivers:       decimal.Zero,
		DiscrepancyAmount: decimal.Zero,
	}
	for _, c := range rows {
		row := s.ByStatus[c.Status]
		row.Count++
		row.Expected = row.Expected.Add(c.ExpectedAmount)
		row.Collected = row.Collected.Add(c.Collected())
		s.ByStatus[c.Status] = row

		s.TotalExpected = s.TotalExpected.Add(c.ExpectedAmount)
		s.TotalCollected = s.TotalCollected.Add(c.Collected())
		switch {
		case c.Status == models.CodStatusRemitted:
			s.TotalRemitted = s.TotalRemitted.Add(c.Collected())
		case c.Status.Remittable():
			s.WithDrivers = s.WithDrivers.Add(c.Collected())
		}
		if c.HasDiscrepancy() {
			diff, _ := c.Discrepancy()
			s.DiscrepancyCount++
			s.DiscrepancyAmount = s.DiscrepancyAmount.Add(diff)
		}
	}
	return s, nil
}

type DriverPerformance struct {
	DriverId           string          `json:"driver_id"`
	PeriodStart        time.Time       `json:"period_start"`
	PeriodEnd          time.Time       `json:"period_end"`
	Collections        int             `json:"collections"`
	TotalExpected      decimal.Decimal `json:"total_expected"`
	TotalCollected     decimal.Decimal `json:"total_collected"`
	CollectionRate     decimal.Decimal `json:"collection_rate"`
	Remitted           int             `json:"remitted"`
	AvgHoursToRemit    decimal.Decimal `json:"avg_hours_to_remit"`
	Discrepancies      int             `json:"discrepancies"`
	DiscrepancyAmount  decimal.Decimal `json:"discrepancy_amount"`
	Remittances        int             `json:"remittances"`
	RemittanceVariance decimal.Decimal `json:"remittance_variance"`
	CurrentBalance     decimal.Decimal `json:"current_balance"`
	PendingRemittance  int             `json:"pending_remittance"`
	LastRemittanceAt   *time.Time      `json:"last_remittance_at"`
}

// DriverPerformance reports one driver's collections in a period.
// CollectionRate is collected/expected as a percentage, 1 dp.
func (l *Ledger) DriverPerformance(ctx context.Context, driverID string, start, end time.Time) (*DriverPerformance, error) {
	rows, err := l.store.ListCollections(ctx, models.CodFilter{DriverId: driverID, From: &start, To: &end})
	if err != nil {
		return nil, err
	}
	p := &DriverPerformance{
		DriverId:           driverID,
		PeriodStart:        start,
		PeriodEnd:          end,
		TotalExpected:      decimal.Zero,
		TotalCollected:     decimal.Zero,
		CollectionRate:     decimal.Zero,
		AvgHoursToRemit:    decimal.Zero,
		DiscrepancyAmount:  decimal.Zero,
		RemittanceVariance: decimal.Zero,
	}
	hoursToRemit := decimal.Zero
	for _, c := range rows {
		p.Collections++
		p.TotalExpected = p.TotalExpected.Add(c.ExpectedAmount)
		p.TotalCollected = p.TotalCollected.Add(c.Collected())
		if c.HasDiscrepancy() {
			diff, _ := c.Discrepancy()
			p.Discrepancies++
			p.DiscrepancyAmount = p.DiscrepancyAmount.Add(diff)
		}
		if c.Status == models.CodStatusRemitted && c.RemittedAt != nil && c.CollectedAt != nil {
			p.Remitted++
			hoursToRemit = hoursToRemit.Add(decimal.NewFromFloat(c.RemittedAt.Sub(*c.CollectedAt).Hours()))
		}
	}
	if p.TotalExpected.IsPositive() {
		p.CollectionRate = p.TotalCollected.Div(p.TotalExpected).Mul(decimal.NewFromInt(100)).Round(1)
	}
	if p.Remitted > 0 {
		p.AvgHoursToRemit = hoursToRemit.Div(decimal.NewFromInt(int64(p.Remitted))).Round(1)
	}

	remittances, err := l.store.ListRemittances(ctx, driverID, &start, &end)
	if err != nil {
		return nil, err
	}
	p.Remittances = len(remittances)
	for _, r := range remittances {
		p.RemittanceVariance = p.RemittanceVariance.Add(r.Variance)
	}

	acct, err := l.DriverAccount(ctx, driverID)
	if err != nil {
		return nil, err
	}
	p.CurrentBalance = acct.Balance
	p.PendingRemittance = acct.PendingRemittance
	p.LastRemittanceAt = acct.LastRemittanceAt
	return p, nil
}
