// Package reconciliation compares stored payments, payouts and balances against what they
// should be and reports the differences per merchant.
package reconciliation

import "time"

type IssueType string

const (
	PaymentMismatch    IssueType = "PAYMENT_MISMATCH"
	PayoutMismatch     IssueType = "PAYOUT_MISMATCH"
	BalanceDiscrepancy IssueType = "BALANCE_DISCREPANCY"
	OrphanTransaction  IssueType = "ORPHAN_TRANSACTION"
	Duplicate          IssueType = "DUPLICATE"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

const (
	EntityPayment = "PAYMENT"
	EntityPayout  = "PAYOUT"
)

type Issue struct {
	Type          IssueType      `json:"type"`
	Severity      Severity       `json:"severity"`
	EntityType    string         `json:"entityType"`
	EntityID      string         `json:"entityId"`
	Description   string         `json:"description"`
	ExpectedValue any            `json:"expectedValue,omitempty"`
	ActualValue   any            `json:"actualValue,omitempty"`
	Currency      string         `json:"currency,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type PaymentStats struct {
	Total         int `json:"total"`
	Matched       int `json:"matched"`
	Unmatched     int `json:"unmatched"`
	Discrepancies int `json:"discrepancies"`
}

type PayoutStats struct {
	Total   int `json:"total"`
	Matched int `json:"matched"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

type Balance struct {
	ExpectedBalance int64  `json:"expectedBalance"`
	ActualBalance   int64  `json:"actualBalance"`
	Discrepancy     int64  `json:"discrepancy"`
	Currency        string `json:"currency"`
}

type Result struct {
	RunID       string       `json:"runId"`
	StartedAt   time.Time    `json:"startedAt"`
	CompletedAt time.Time    `json:"completedAt"`
	MerchantID  string       `json:"merchantId"`
	Payments    PaymentStats `json:"payments"`
	Payouts     PayoutStats  `json:"payouts"`
	Balances    []Balance    `json:"balances"`
	Issues      []Issue      `json:"issues"`
	ArchiveURL  string       `json:"archiveUrl,omitempty"`
}

// HasCritical reports whether any issue needs immediate attention.
func (r *Result) HasCritical() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// ExpectedVolume sums the expected balances across currencies.
func (r *Result) ExpectedVolume() int64 {
	var v int64
	for _, b := range r.Balances {
		v += b.ExpectedBalance
	}
	return v
}
