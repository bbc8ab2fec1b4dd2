// Package ledger defines the gateway to the external purchase ledger. The
// ledger owns payment state; this package only consumes a row-oriented
// read/update interface.
package ledger

import (
	"context"

	"github.com/tradesuite/rolesync/internal/entitlement"
)

// Gateway reads and updates purchase rows. Implementations are blocking,
// rate-limited, and eventually consistent; callers must treat every read as
// a fresh snapshot.
type Gateway interface {
	// FindRows returns every row whose email matches the normalized email.
	// An empty slice means the email is absent from the ledger.
	FindRows(ctx context.Context, email string) ([]entitlement.PurchaseRecord, error)

	// UpdateVerification writes the verification columns of one row.
	UpdateVerification(ctx context.Context, row entitlement.RowRef, accountID, displayName string, verified bool) error
}
