// Package ledger turns completed payments and refunds into balanced
// double-entry ledger postings and syncs them to the external ledger.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/shipment_finance/config"
	"github.com/mmdatafocus/shipment_finance/metrics"
	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/mmdatafocus/shipment_finance/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("shipment_finance/ledger")

var (
	ErrAlreadyPosted           = errors.New("ledger: transaction already posted")
	ErrRefundExceedsOriginal   = models.ErrRefundLimitExceeded
	ErrInvalidAmount           = errors.New("ledger: amount must be positive")
	ErrTransactionNotCompleted = errors.New("ledger: transaction is not completed")
	ErrUnbalanced              = errors.New("ledger: debits and credits differ")
)

// Store is what the posting engine needs from persistence.
type Store interface {
	GetShipment(ctx context.Context, id int) (*models.Shipment, error)
	// InsertEntries writes one reference batch atomically and fails with
	// models.ErrDuplicate when the reference already has entries.
	InsertEntries(ctx context.Context, entries []models.LedgerEntry) error
	// InsertRefundEntries writes a refund batch atomically unless the refunds
	// already recorded for the transaction plus this one would exceed limit.
	// A reference that already has entries fails with models.ErrDuplicate.
	InsertRefundEntries(ctx context.Context, limit decimal.Decimal, entries []models.LedgerEntry) error
	ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.LedgerEntry, error)
	EntriesByReference(ctx context.Context, reference string) ([]models.LedgerEntry, error)
	// MarkEntriesPosted flips PENDING rows among ids to POSTED; POSTED rows are untouched.
	MarkEntriesPosted(ctx context.Context, ids []int, at time.Time) (int64, error)
}

type Poster struct {
	store     Store
	publisher Publisher
	logger    *logrus.Logger
	now       func() time.Time
}

// NewPoster builds a posting engine. publisher may be nil, in which case sync
// only transitions entry status.
func NewPoster(store Store, publisher Publisher, logger *logrus.Logger) *Poster {
	return &Poster{
		store:     store,
		publisher: publisher,
		logger:    config.LoggerOrDefault(logger),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func PaymentReference(txnID int) string {
	return fmt.Sprintf("PAY-%d", txnID)
}

// refundReference is derived from the event id when there is one, so a
// redelivered refund event maps to the reference it already posted under.
func refundReference(ctx context.Context, txnID int) string {
	id := uuid.New()
	if eventID, ok := utils.GetEventIdFromContext(ctx); ok {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(eventID))
	}
	return fmt.Sprintf("RFD-%d-%s", txnID, strings.SplitN(id.String(), "-", 2)[0])
}

// DebitAccountFor maps a payment method to the asset account it lands in.
// Unknown methods fall back to Cash and report known=false.
func DebitAccountFor(method models.PaymentMethod) (code string, known bool) {
	switch models.PaymentMethod(strings.ToLower(strings.TrimSpace(string(method)))) {
	case models.PaymentMethodCash:
		return models.AccountCodeCash, true
	case models.PaymentMethodCard, models.PaymentMethodMobile, models.PaymentMethodBank, models.PaymentMethodBankTransfer:
		return models.AccountCodeBank, true
	case models.PaymentMethodOnAccount, models.PaymentMethodCheque:
		return models.AccountCodeAccountsReceivable, true
	case models.PaymentMethodCod:
		return models.AccountCodeCodInTransit, true
	}
	return models.AccountCodeCash, false
}

// PostPayment records a completed payment as one debit and one or more
// revenue credits under reference PAY-<id>. Re-posting the same transaction
// fails with ErrAlreadyPosted and writes nothing.
func (p *Poster) PostPayment(ctx context.Context, txn models.Transaction) ([]models.LedgerEntry, error) {
	ctx, span := tracer.Start(ctx, "ledger.PostPayment", trace.WithAttributes(attribute.Int("transaction_id", txn.ID)))
	defer span.End()

	if txn.Status != models.TransactionStatusCompleted {
		return nil, fmt.Errorf("%w: status %s", ErrTransactionNotCompleted, txn.Status)
	}
	amount := models.RoundMoney(txn.Amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	lines, err := p.revenueLines(ctx, txn, amount)
	if err != nil {
		return nil, err
	}
	debitCode := p.debitAccount(txn)
	entries := p.buildEntries(txn, PaymentReference(txn.ID), models.EntryKindPayment, debitCode, amount, lines, false)
	if !models.IsBalanced(entries) {
		return nil, ErrUnbalanced
	}

	if err := p.store.InsertEntries(ctx, entries); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyPosted, PaymentReference(txn.ID))
		}
		config.LogError(p.logger, "posting.go", "PostPayment", "InsertEntries", txn.ID, err)
		return nil, err
	}
	metrics.ObserveEntriesPosted(string(models.EntryKindPayment), len(entries))
	return entries, nil
}

// PostRefund mirrors PostPayment with roles reversed: revenue lines are
// debited and the payment account credited. Cumulative refunds of one
// transaction may not exceed its amount. Within an event context a repeated
// refund of the same event fails with ErrAlreadyPosted.
func (p *Poster) PostRefund(ctx context.Context, original models.Transaction, refundAmount decimal.Decimal) ([]models.LedgerEntry, error) {
	ctx, span := tracer.Start(ctx, "ledger.PostRefund", trace.WithAttributes(attribute.Int("transaction_id", original.ID)))
	defer span.End()

	amount := models.RoundMoney(refundAmount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	limit := models.RoundMoney(original.Amount)
	if amount.GreaterThan(limit) {
		return nil, fmt.Errorf("%w: refund %s > original %s", ErrRefundExceedsOriginal, amount, limit)
	}

	lines, err := p.revenueLines(ctx, original, amount)
	if err != nil {
		return nil, err
	}
	reference := refundReference(ctx, original.ID)
	entries := p.buildEntries(original, reference, models.EntryKindRefund, p.debitAccount(original), amount, lines, true)
	if !models.IsBalanced(entries) {
		return nil, ErrUnbalanced
	}

	if err := p.store.InsertRefundEntries(ctx, limit, entries); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyPosted, reference)
		}
		if !errors.Is(err, models.ErrRefundLimitExceeded) {
			config.LogError(p.logger, "posting.go", "PostRefund", "InsertRefundEntries", original.ID, err)
		}
		return nil, err
	}
	metrics.ObserveEntriesPosted(string(models.EntryKindRefund), len(entries))
	return entries, nil
}

func (p *Poster) debitAccount(txn models.Transaction) string {
	code, known := DebitAccountFor(txn.Method)
	if !known {
		p.logger.WithFields(logrus.Fields{
			"field":          "PostPayment",
			"transaction_id": txn.ID,
			"method":         txn.Method,
		}).Warn("unknown payment method; posting to Cash")
	}
	return code
}

func (p *Poster) revenueLines(ctx context.Context, txn models.Transaction, amount decimal.Decimal) ([]revenueLine, error) {
	var breakdown models.RevenueBreakdown
	if txn.ShipmentId != nil {
		shipment, err := p.store.GetShipment(ctx, *txn.ShipmentId)
		if err != nil {
			if errors.Is(err, models.ErrRecordNotFound) {
				return nil, fmt.Errorf("ledger: shipment %d: %w", *txn.ShipmentId, err)
			}
			return nil, err
		}
		breakdown = shipment.RevenueBreakdown()
	}
	return allocate(amount, breakdown), nil
}

func (p *Poster) buildEntries(txn models.Transaction, reference string, kind models.EntryKind, assetCode string, amount decimal.Decimal, lines []revenueLine, reversed bool) []models.LedgerEntry {
	postingDate := p.now()
	if txn.CompletedAt != nil && kind == models.EntryKindPayment {
		postingDate = txn.CompletedAt.UTC()
	}
	currency := models.NormalizeCurrency(txn.Currency)
	assetType, revenueType := models.EntryTypeDebit, models.EntryTypeCredit
	description := fmt.Sprintf("Payment %d", txn.ID)
	if reversed {
		assetType, revenueType = revenueType, assetType
		description = fmt.Sprintf("Refund of payment %d", txn.ID)
	}

	entry := func(code string, typ models.EntryType, amt decimal.Decimal) models.LedgerEntry {
		acct := models.MustAccount(code)
		return models.LedgerEntry{
			AccountCode:   acct.Code,
			AccountName:   acct.Name,
			EntryType:     typ,
			Kind:          kind,
			Amount:        amt,
			Currency:      currency,
			Reference:     reference,
			Description:   description,
			PostingDate:   postingDate,
			Status:        models.EntryStatusPending,
			TransactionId: txn.ID,
			ShipmentId:    txn.ShipmentId,
		}
	}

	entries := make([]models.LedgerEntry, 0, len(lines)+1)
	entries = append(entries, entry(assetCode, assetType, amount))
	for _, l := range lines {
		entries = append(entries, entry(l.code, revenueType, l.amount))
	}
	return entries
}

// EntriesByReference returns every entry of one posting batch.
func (p *Poster) EntriesByReference(ctx context.Context, reference string) ([]models.LedgerEntry, error) {
	return p.store.EntriesByReference(ctx, reference)
}

// AccountBalance is one trial balance row.
type AccountBalance struct {
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// TrialBalance sums debits and credits per account, in chart order.
func (p *Poster) TrialBalance(ctx context.Context, filter models.EntryFilter) ([]AccountBalance, error) {
	entries, err := p.store.ListEntries(ctx, filter)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]*AccountBalance)
	for _, e := range entries {
		row, ok := byCode[e.AccountCode]
		if !ok {
			row = &AccountBalance{AccountCode: e.AccountCode, AccountName: e.AccountName, Debit: decimal.Zero, Credit: decimal.Zero}
			byCode[e.AccountCode] = row
		}
		if e.EntryType == models.EntryTypeDebit {
			row.Debit = row.Debit.Add(e.Amount)
		} else {
			row.Credit = row.Credit.Add(e.Amount)
		}
	}
	out := make([]AccountBalance, 0, len(byCode))
	for _, acct := range models.ChartOfAccounts() {
		if row, ok := byCode[acct.Code]; ok {
			out = append(out, *row)
		}
	}
	return out, nil
}
