package settlement

import (
	"context"
	"time"

	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/shopspring/decimal"
)

type StatusTotals struct {
	Count int             `json:"count"`
	Net   decimal.Decimal `json:"net"`
}

// Statement summarises a merchant's settlements overlapping a period and the
// COD still waiting to be settled.
type Statement struct {
	MerchantId   int                                              `json:"merchant_id"`
	PeriodStart  time.Time                                        `json:"period_start"`
	PeriodEnd    time.Time                                        `json:"period_end"`
	Settlements  []models.MerchantSettlement                      `json:"settlements"`
	ByStatus     map[models.MerchantSettlementStatus]StatusTotals `json:"by_status"`
	TotalCod     decimal.Decimal                                  `json:"total_cod"`
	TotalPaid    decimal.Decimal                                  `json:"total_paid"`
	Outstanding  decimal.Decimal                                  `json:"outstanding"`
	Unsettled    []models.Shipment                                `json:"unsettled"`
	UnsettledCod decimal.Decimal                                  `json:"unsettled_cod"`
	UnsettledNet decimal.Decimal                                  `json:"unsettled_net"`
}

// MerchantStatement is read-only. Cancelled settlements are listed but left
// out of the money totals; Outstanding is approved but not yet paid.
func (c *Calculator) MerchantStatement(ctx context.Context, merchantID int, start, end time.Time) (*Statement, error) {
	settlements, err := c.store.ListMerchantSettlements(ctx, merchantID, start, end)
	if err != nil {
		return nil, err
	}
	st := &Statement{
		MerchantId:   merchantID,
		PeriodStart:  start,
		PeriodEnd:    end,
		Settlements:  settlements,
		ByStatus:     make(map[models.MerchantSettlementStatus]StatusTotals),
		TotalCod:     decimal.Zero,
		TotalPaid:    decimal.Zero,
		Outstanding:  decimal.Zero,
		UnsettledCod: decimal.Zero,
		UnsettledNet: decimal.Zero,
	}
	for _, s := range settlements {
		row := st.ByStatus[s.Status]
		row.Count++
		row.Net = row.Net.Add(s.NetAmount)
		st.ByStatus[s.Status] = row

		if s.Status.Void() {
			continue
		}
		st.TotalCod = st.TotalCod.Add(s.TotalCod)
		switch s.Status {
		case models.MerchantSettlementPaid:
			st.TotalPaid = st.TotalPaid.Add(s.NetAmount)
		case models.MerchantSettlementApproved:
			st.Outstanding = st.Outstanding.Add(s.NetAmount)
		}
	}

	unsettled, err := c.store.EligibleMerchantShipments(ctx, merchantID, start, end, nil)
	if err != nil {
		return nil, err
	}
	st.Unsettled = unsettled
	for _, sh := range unsettled {
		item := models.NewSettlementItem(sh)
		st.UnsettledCod = st.UnsettledCod.Add(item.CodAmount)
		st.UnsettledNet = st.UnsettledNet.Add(item.NetAmount)
	}
	return st, nil
}
