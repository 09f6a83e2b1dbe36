package models

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidTransition = errors.New("invalid status transition")

func invalidTransition(from, action string) error {
	return fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, action, from)
}

// --- Ledger ---

type EntryType string

const (
	EntryTypeDebit  EntryType = "DEBIT"
	EntryTypeCredit EntryType = "CREDIT"
)

type EntryStatus string

const (
	EntryStatusPending EntryStatus = "PENDING"
	EntryStatusPosted  EntryStatus = "POSTED"
)

type EntryKind string

const (
	EntryKindPayment EntryKind = "PAYMENT"
	EntryKindRefund  EntryKind = "REFUND"
)

// --- Payments ---

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodMobile       PaymentMethod = "mobile"
	PaymentMethodBank         PaymentMethod = "bank"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodOnAccount    PaymentMethod = "on_account"
	PaymentMethodCheque       PaymentMethod = "cheque"
	PaymentMethodCod          PaymentMethod = "cod"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

// --- Shipments ---

type PaymentType string

const (
	PaymentTypeCod     PaymentType = "cod"
	PaymentTypeCredit  PaymentType = "credit"
	PaymentTypePrepaid PaymentType = "prepaid"
)

type ShipmentStatus string

const (
	ShipmentStatusPending   ShipmentStatus = "pending"
	ShipmentStatusInTransit ShipmentStatus = "in_transit"
	ShipmentStatusDelivered ShipmentStatus = "delivered"
	ShipmentStatusReturned  ShipmentStatus = "returned"
	ShipmentStatusCancelled ShipmentStatus = "cancelled"
)

// --- Customers ---

// PaymentTerms is one of "cod", "prepaid" or "net-N" (e.g. "net30", "net-30").
type PaymentTerms string

const (
	PaymentTermsCod     PaymentTerms = "cod"
	PaymentTermsPrepaid PaymentTerms = "prepaid"
	PaymentTermsNet30   PaymentTerms = "net30"
)

func (t PaymentTerms) IsCod() bool {
	return strings.EqualFold(strings.TrimSpace(string(t)), string(PaymentTermsCod))
}

type CustomerStatus string

const (
	CustomerStatusActive      CustomerStatus = "active"
	CustomerStatusInactive    CustomerStatus = "inactive"
	CustomerStatusSuspended   CustomerStatus = "suspended"
	CustomerStatusBlacklisted CustomerStatus = "blacklisted"
)

// --- COD collections ---

type CodStatus string

const (
	CodStatusPending   CodStatus = "pending"
	CodStatusCollected CodStatus = "collected"
	CodStatusVerified  CodStatus = "verified"
	CodStatusRemitted  CodStatus = "remitted"
)

type CodAction string

const (
	CodActionCollect CodAction = "collect"
	CodActionVerify  CodAction = "verify"
	CodActionRemit   CodAction = "remit"
)

// Next returns the status reached by applying action. Remittance is allowed
// straight from collected; verification is optional but never skipped backwards.
func (s CodStatus) Next(action CodAction) (CodStatus, error) {
	switch {
	case s == CodStatusPending && action == CodActionCollect:
		return CodStatusCollected, nil
	case s == CodStatusCollected && action == CodActionVerify:
		return CodStatusVerified, nil
	case (s == CodStatusCollected || s == CodStatusVerified) && action == CodActionRemit:
		return CodStatusRemitted, nil
	}
	return s, invalidTransition(string(s), string(action))
}

func (s CodStatus) Remittable() bool {
	return s == CodStatusCollected || s == CodStatusVerified
}

// --- Branch settlements ---

type BranchSettlementStatus string

const (
	BranchSettlementDraft     BranchSettlementStatus = "draft"
	BranchSettlementSubmitted BranchSettlementStatus = "submitted"
	BranchSettlementApproved  BranchSettlementStatus = "approved"
	BranchSettlementPaid      BranchSettlementStatus = "paid"
	BranchSettlementRejected  BranchSettlementStatus = "rejected"
)

type BranchSettlementAction string

const (
	BranchActionSubmit  BranchSettlementAction = "submit"
	BranchActionApprove BranchSettlementAction = "approve"
	BranchActionPay     BranchSettlementAction = "pay"
	BranchActionReject  BranchSettlementAction = "reject"
)

var branchTransitions = map[BranchSettlementStatus]map[BranchSettlementAction]BranchSettlementStatus{
	BranchSettlementDraft: {
		BranchActionSubmit: BranchSettlementSubmitted,
		BranchActionReject: BranchSettlementRejected,
	},
	BranchSettlementSubmitted: {
		BranchActionApprove: BranchSettlementApproved,
		BranchActionReject:  BranchSettlementRejected,
	},
	BranchSettlementApproved: {
		BranchActionPay: BranchSettlementPaid,
	},
}

func (s BranchSettlementStatus) Next(action BranchSettlementAction) (BranchSettlementStatus, error) {
	if next, ok := branchTransitions[s][action]; ok {
		return next, nil
	}
	return s, invalidTransition(string(s), string(action))
}

// Void settlements no longer claim their period.
func (s BranchSettlementStatus) Void() bool {
	return s == BranchSettlementRejected
}

// BlockingBranchStatuses claim their [period_start, period_end] window.
func BlockingBranchStatuses() []BranchSettlementStatus {
	return []BranchSettlementStatus{
		BranchSettlementDraft, BranchSettlementSubmitted, BranchSettlementApproved, BranchSettlementPaid,
	}
}

// --- Merchant settlements ---

type MerchantSettlementStatus string

const (
	MerchantSettlementDraft           MerchantSettlementStatus = "draft"
	MerchantSettlementPendingApproval MerchantSettlementStatus = "pending_approval"
	MerchantSettlementApproved        MerchantSettlementStatus = "approved"
	MerchantSettlementPaid            MerchantSettlementStatus = "paid"
	MerchantSettlementCancelled       MerchantSettlementStatus = "cancelled"
)

type MerchantSettlementAction string

const (
	MerchantActionSubmit  MerchantSettlementAction = "submit_for_approval"
	MerchantActionApprove MerchantSettlementAction = "approve"
	MerchantActionPay     MerchantSettlementAction = "process_payment"
	MerchantActionCancel  MerchantSettlementAction = "cancel"
)

var merchantTransitions = map[MerchantSettlementStatus]map[MerchantSettlementAction]MerchantSettlementStatus{
	MerchantSettlementDraft: {
		MerchantActionSubmit: MerchantSettlementPendingApproval,
		MerchantActionCancel: MerchantSettlementCancelled,
	},
	MerchantSettlementPendingApproval: {
		MerchantActionApprove: MerchantSettlementApproved,
		MerchantActionCancel:  MerchantSettlementCancelled,
	},
	MerchantSettlementApproved: {
		MerchantActionPay: MerchantSettlementPaid,
	},
}

func (s MerchantSettlementStatus) Next(action MerchantSettlementAction) (MerchantSettlementStatus, error) {
	if next, ok := merchantTransitions[s][action]; ok {
		return next, nil
	}
	return s, invalidTransition(string(s), string(action))
}

func (s MerchantSettlementStatus) Void() bool {
	return s == MerchantSettlementCancelled
}

// BlockingMerchantStatuses are the open merchant settlements. Paid and
// cancelled ones no longer claim their period; the per-shipment check keeps
// a shipment from being paid twice.
func BlockingMerchantStatuses() []MerchantSettlementStatus {
	return []MerchantSettlementStatus{
		MerchantSettlementDraft, MerchantSettlementPendingApproval, MerchantSettlementApproved,
	}
}

func (s MerchantSettlementStatus) ClaimsPeriod() bool {
	for _, b := range BlockingMerchantStatuses() {
		if s == b {
			return true
		}
	}
	return false
}

// --- Exchange rates ---

type RateSource string

const (
	RateSourceFeed   RateSource = "feed"
	RateSourceManual RateSource = "manual"
)

// --- Financial transactions (payout side) ---

type FinancialTransactionType string

const (
	FinancialTransactionMerchantPayout FinancialTransactionType = "merchant_payout"
	FinancialTransactionBranchTransfer FinancialTransactionType = "branch_transfer"
)
