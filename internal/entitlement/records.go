// Package entitlement implements the reconciliation engine that keeps
// Discord role grants in agreement with the purchase ledger: resolving an
// email to its ledger rows, guarding the one-email-to-one-account claim,
// computing the role set implied by paid products, and serializing
// concurrent mutations per email.
package entitlement

import "strings"

// PaymentStatus is the ledger's payment state for one purchase row.
type PaymentStatus string

const (
	StatusPaid      PaymentStatus = "PAID"
	StatusRefunded  PaymentStatus = "REFUNDED"
	StatusCancelled PaymentStatus = "CANCELLED"
)

// ParsePaymentStatus normalizes a raw ledger cell into a PaymentStatus.
// Unrecognized values are preserved as-is and treated as not paid.
func ParsePaymentStatus(raw string) PaymentStatus {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	switch normalized {
	case "PAID", "ACTIVE", "COMPLETED":
		return StatusPaid
	case "REFUNDED":
		return StatusRefunded
	case "CANCELLED", "CANCELED":
		return StatusCancelled
	default:
		return PaymentStatus(normalized)
	}
}

// RowRef is an opaque handle to one ledger row, used only for writes.
type RowRef int

// PurchaseRecord is a read-only snapshot of one ledger row. Snapshots are
// taken per reconciliation request and never cached across requests; the
// ledger is authoritative and externally mutable.
type PurchaseRecord struct {
	Email         string
	ProductID     string
	PaymentStatus PaymentStatus
	AccountID     string // directory account ID, empty if unlinked
	DisplayName   string
	Verified      bool
	Row           RowRef
}

// Paid reports whether this record is currently in paid status.
func (r PurchaseRecord) Paid() bool {
	return r.PaymentStatus == StatusPaid
}

// NormalizeEmail lower-cases and trims an email so all rows of one purchaser
// key to the same identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PlausibleEmail reports whether free text looks enough like an email to
// attempt verification with it.
func PlausibleEmail(text string) bool {
	text = strings.TrimSpace(text)
	return strings.Contains(text, "@") && strings.Contains(text, ".") && !strings.ContainsAny(text, " \t\n")
}

// ClaimingAccount returns the account ID that owns this identity's
// verification: the first record marked verified with a non-empty account ID.
// Empty means the identity is unclaimed.
func ClaimingAccount(records []PurchaseRecord) string {
	for _, record := range records {
		if record.Verified && record.AccountID != "" {
			return record.AccountID
		}
	}
	return ""
}
