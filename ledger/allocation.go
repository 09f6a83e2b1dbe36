package ledger

import (
	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/shopspring/decimal"
)

type revenueLine struct {
	code   string
	amount decimal.Decimal
}

// allocate splits amount over the shipment's revenue components so that the
// credit lines always sum to amount exactly. Components are posted as-is when
// they already add up to amount; otherwise amount is spread pro-rata,
// truncated to cents, with the remainder on the last line so no line goes
// negative. An empty breakdown goes to freight revenue.
func allocate(amount decimal.Decimal, b models.RevenueBreakdown) []revenueLine {
	components := make([]revenueLine, 0, 4)
	for _, c := range []revenueLine{
		{models.AccountCodeFreightRevenue, b.Freight},
		{models.AccountCodeSurchargeRevenue, b.Surcharges},
		{models.AccountCodeInsuranceRevenue, b.Insurance},
		{models.AccountCodeTaxPayable, b.Tax},
	} {
		if amt := models.RoundMoney(c.amount); amt.IsPositive() {
			components = append(components, revenueLine{c.code, amt})
		}
	}
	if len(components) == 0 {
		return []revenueLine{{models.AccountCodeFreightRevenue, amount}}
	}

	total := decimal.Zero
	for _, c := range components {
		total = total.Add(c.amount)
	}
	if total.Equal(amount) {
		return components
	}

	out := make([]revenueLine, 0, len(components))
	allocated := decimal.Zero
	for i, c := range components {
		share := amount.Mul(c.amount).Div(total).Truncate(models.MoneyPlaces)
		if i == len(components)-1 {
			share = amount.Sub(allocated)
		}
		allocated = allocated.Add(share)
		if share.IsZero() {
			continue
		}
		out = append(out, revenueLine{c.code, share})
	}
	return out
}
