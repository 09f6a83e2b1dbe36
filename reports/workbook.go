// Package reports renders settlements and merchant statements as XLSX
// workbooks.
package reports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/mmdatafocus/shipment_finance/settlement"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	SheetSummary     = "summary"
	SheetShipments   = "shipments"
	SheetCodPayments = "cod_payments"
	SheetItems       = "items"
	SheetSettlements = "settlements"
	SheetUnsettled   = "unsettled"
)

const dateLayout = "2006-01-02"

// sheet appends rows one at a time and keeps the first error.
type sheet struct {
	f    *excelize.File
	name string
	row  int
	err  error
}

func (s *sheet) line(values ...any) {
	if s.err != nil {
		return
	}
	s.row++
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		s.err = err
		return
	}
	s.err = s.f.SetSheetRow(s.name, cell, &values)
}

func (s *sheet) blank() { s.row++ }

type workbook struct {
	f      *excelize.File
	sheets []*sheet
}

// newWorkbook creates the named sheets in order; the first replaces Sheet1.
func newWorkbook(names ...string) (*workbook, error) {
	f := excelize.NewFile()
	wb := &workbook{f: f}
	for i, name := range names {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
		wb.sheets = append(wb.sheets, &sheet{f: f, name: name})
	}
	return wb, nil
}

func (wb *workbook) bytes() ([]byte, error) {
	defer wb.f.Close()
	for _, s := range wb.sheets {
		if s.err != nil {
			return nil, fmt.Errorf("sheet %s: %w", s.name, s.err)
		}
	}
	var buf bytes.Buffer
	if err := wb.f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func money(d decimal.Decimal) float64 {
	return models.RoundMoney(d).InexactFloat64()
}

func date(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

// BranchSettlementWorkbook writes the totals and the breakdown lines of a
// branch settlement.
func BranchSettlementWorkbook(bs models.BranchSettlement) ([]byte, error) {
	wb, err := newWorkbook(SheetSummary, SheetShipments, SheetCodPayments)
	if err != nil {
		return nil, err
	}
	sum, ships, cods := wb.sheets[0], wb.sheets[1], wb.sheets[2]

	sum.line("Branch Settlement", bs.ID)
	sum.blank()
	sum.line("Branch", bs.BranchId)
	sum.line("Period Start", date(&bs.PeriodStart))
	sum.line("Period End", date(&bs.PeriodEnd))
	sum.line("Status", string(bs.Status))
	sum.line("Currency", bs.Currency)
	sum.line("Total Revenue", money(bs.TotalRevenue))
	sum.line("Total COD", money(bs.TotalCod))
	sum.line("Total Expenses", money(bs.TotalExpenses))
	sum.line("Commission Rate", bs.CommissionRate.InexactFloat64())
	sum.line("Branch Commission", money(bs.BranchCommission))
	sum.line("Net Amount", money(bs.NetAmount))
	sum.line("Due To HQ", money(bs.AmountDueToHq))
	sum.line("Due From HQ", money(bs.AmountDueFromHq))
	if bs.Breakdown.ExpensesNote != "" {
		sum.line("Expenses Note", bs.Breakdown.ExpensesNote)
	}

	breakdownLines(ships, "Shipment", bs.Breakdown.Shipments)
	breakdownLines(cods, "Transaction", bs.Breakdown.CodPayments)
	return wb.bytes()
}

func breakdownLines(s *sheet, source string, lines []models.BreakdownLine) {
	s.line(source, "Shipment", "Date", "Original Amount", "Original Currency", "Rate", "Amount")
	for _, l := range lines {
		s.line(l.SourceId, l.ShipmentId, date(&l.OccurredAt), money(l.OriginalAmount), l.OriginalCurrency,
			l.Rate.InexactFloat64(), money(l.Amount))
	}
}

// MerchantSettlementWorkbook writes a merchant settlement and one row per
// settled shipment.
func MerchantSettlementWorkbook(ms models.MerchantSettlement) ([]byte, error) {
	wb, err := newWorkbook(SheetSummary, SheetItems)
	if err != nil {
		return nil, err
	}
	sum, items := wb.sheets[0], wb.sheets[1]

	sum.line("Merchant Settlement", ms.ID)
	sum.blank()
	sum.line("Merchant", ms.MerchantId)
	sum.line("Period Start", date(&ms.PeriodStart))
	sum.line("Period End", date(&ms.PeriodEnd))
	sum.line("Status", string(ms.Status))
	sum.line("Currency", ms.Currency)
	sum.line("Total COD", money(ms.TotalCod))
	sum.line("Total Shipping Fees", money(ms.TotalShippingFees))
	sum.line("Total Deductions", money(ms.TotalDeductions))
	sum.line("Net Amount", money(ms.NetAmount))
	if ms.PaidAt != nil {
		sum.line("Paid At", date(ms.PaidAt))
		sum.line("Payment Reference", ms.PaymentReference)
	}

	items.line("Shipment", "COD Amount", "Shipping Fee", "Deductions", "Net Amount", "Voided")
	for _, it := range ms.Items {
		items.line(it.ShipmentId, money(it.CodAmount), money(it.ShippingFee), money(it.Deductions), money(it.NetAmount), it.Voided)
	}
	return wb.bytes()
}

var statementStatusOrder = []models.MerchantSettlementStatus{
	models.MerchantSettlementDraft,
	models.MerchantSettlementPendingApproval,
	models.MerchantSettlementApproved,
	models.MerchantSettlementPaid,
	models.MerchantSettlementCancelled,
}

// MerchantStatementWorkbook writes a statement: totals by status, the
// settlements in the period and the COD shipments not yet settled.
func MerchantStatementWorkbook(st *settlement.Statement) ([]byte, error) {
	wb, err := newWorkbook(SheetSummary, SheetSettlements, SheetUnsettled)
	if err != nil {
		return nil, err
	}
	sum, rows, open := wb.sheets[0], wb.sheets[1], wb.sheets[2]

	sum.line("Merchant Statement", st.MerchantId)
	sum.blank()
	sum.line("Period Start", date(&st.PeriodStart))
	sum.line("Period End", date(&st.PeriodEnd))
	sum.line("Total COD", money(st.TotalCod))
	sum.line("Total Paid", money(st.TotalPaid))
	sum.line("Outstanding", money(st.Outstanding))
	sum.line("Unsettled COD", money(st.UnsettledCod))
	sum.line("Unsettled Net", money(st.UnsettledNet))
	sum.blank()
	sum.line("Status", "Count", "Net")
	for _, status := range statementStatusOrder {
		if t, ok := st.ByStatus[status]; ok {
			sum.line(string(status), t.Count, money(t.Net))
		}
	}

	rows.line("Settlement", "Period Start", "Period End", "Status", "Currency", "Total COD", "Net Amount")
	for _, s := range st.Settlements {
		rows.line(s.ID, date(&s.PeriodStart), date(&s.PeriodEnd), string(s.Status), s.Currency, money(s.TotalCod), money(s.NetAmount))
	}

	open.line("Shipment", "Delivered", "Currency", "COD Amount", "Shipping Fee", "Deductions", "Net Amount")
	for _, sh := range st.Unsettled {
		it := models.NewSettlementItem(sh)
		open.line(sh.ID, date(sh.DeliveredAt), sh.Currency, money(it.CodAmount), money(it.ShippingFee), money(it.Deductions), money(it.NetAmount))
	}
	return wb.bytes()
}

// ObjectName is the storage path of an exported workbook.
func ObjectName(kind string, id int, at time.Time) string {
	return fmt.Sprintf("finance/%s/%d/%s.xlsx", kind, id, at.UTC().Format("20060102T150405Z"))
}
