package credit

import (
	"github.com/mmdatafocus/shipment_finance/config"
	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/shopspring/decimal"
)

type Result string

const (
	ResultAllowed     Result = "ALLOWED"
	ResultWarning     Result = "WARNING"
	ResultSoftBlock   Result = "SOFT_BLOCK"
	ResultHardBlock   Result = "HARD_BLOCK"
	ResultStatusBlock Result = "STATUS_BLOCK"
)

// Severity orders results from least to most restrictive.
func (r Result) Severity() int {
	switch r {
	case ResultAllowed:
		return 0
	case ResultWarning:
		return 1
	case ResultSoftBlock:
		return 2
	case ResultHardBlock:
		return 3
	case ResultStatusBlock:
		return 4
	}
	return -1
}

// Decision is the outcome of one credit evaluation. Allowed is false only for
// the block results; a SOFT_BLOCK may still proceed once approved.
type Decision struct {
	Result             Result          `json:"result"`
	Allowed            bool            `json:"allowed"`
	Warning            bool            `json:"warning"`
	RequiresApproval   bool            `json:"requires_approval"`
	Reason             string          `json:"reason,omitempty"`
	Utilization        decimal.Decimal `json:"utilization"`
	UtilizationPercent decimal.Decimal `json:"utilization_percent"`
	AvailableCredit    decimal.Decimal `json:"available_credit"`
	CreditLimit        decimal.Decimal `json:"credit_limit"`
	CurrentBalance     decimal.Decimal `json:"current_balance"`
	ProjectedValue     decimal.Decimal `json:"projected_value"`
}

var hundred = decimal.NewFromInt(100)

// Evaluate is a pure function of the customer's current state and the value
// of the shipment being considered.
func Evaluate(t config.CreditThresholds, c models.Customer, projected decimal.Decimal) Decision {
	d := Decision{
		Utilization:        decimal.Zero,
		UtilizationPercent: decimal.Zero,
		AvailableCredit:    c.AvailableCredit(),
		CreditLimit:        c.CreditLimit,
		CurrentBalance:     c.CurrentBalance,
		ProjectedValue:     projected,
	}
	exposure := c.CurrentBalance.Add(projected)
	if c.CreditLimit.IsPositive() {
		d.Utilization = exposure.DivRound(c.CreditLimit, 6)
		d.UtilizationPercent = d.Utilization.Mul(hundred).Round(1)
	}
	// tiers compare exact amounts; Utilization is rounded for display only
	reaches := func(threshold decimal.Decimal) bool {
		return exposure.GreaterThanOrEqual(c.CreditLimit.Mul(threshold))
	}

	switch {
	case c.PaymentTerms.IsCod():
		d.Result, d.Reason = ResultAllowed, "cod customer: credit check bypassed"
	case c.Status != models.CustomerStatusActive:
		d.Result, d.Reason = ResultStatusBlock, "customer status is "+string(c.Status)
	case !c.CreditLimit.IsPositive():
		d.Result, d.Reason = ResultAllowed, "no credit limit configured"
	case reaches(t.HardBlockAt):
		d.Result, d.Reason = ResultHardBlock, "credit limit exceeded"
	case reaches(t.SoftBlockAt):
		d.Result, d.Reason = ResultSoftBlock, "credit utilization near limit; approval required"
		d.RequiresApproval = true
	case reaches(t.WarnAt):
		d.Result, d.Reason = ResultWarning, "credit utilization high"
		d.Warning = true
	default:
		d.Result = ResultAllowed
	}
	d.Allowed = d.Result.Severity() <= ResultSoftBlock.Severity()
	return d
}
