package entitlement

import (
	"fmt"

	"github.com/google/uuid"
)

// TriggerKind identifies which flow asked for a reconciliation.
type TriggerKind string

const (
	TriggerVerify TriggerKind = "verify"
	TriggerGrant  TriggerKind = "grant"
	TriggerRevoke TriggerKind = "revoke"
	TriggerRemove TriggerKind = "remove"
)

// Request is one transient unit of reconciliation work. Both trigger sources
// (DM and automation webhook) normalize into this shape before reaching the
// coordinator.
type Request struct {
	ID    string
	Email string
	Kind  TriggerKind

	// ProductID names the product a grant/revoke acts on. Optional for
	// grants, required for revokes.
	ProductID string

	// AccountID is the directory account asserting a verification (DM
	// trigger only).
	AccountID string
	// DisplayName is written to the ledger alongside the account ID.
	DisplayName string
}

// NewRequest builds a request with a normalized email and a correlation ID.
func NewRequest(kind TriggerKind, email string) Request {
	return Request{
		ID:    uuid.NewString(),
		Email: NormalizeEmail(email),
		Kind:  kind,
	}
}

// Validate rejects requests that cannot be reconciled at all.
func (r Request) Validate() error {
	if r.Email == "" {
		return fmt.Errorf("empty email")
	}
	switch r.Kind {
	case TriggerVerify:
		if r.AccountID == "" {
			return fmt.Errorf("verify requires an account id")
		}
	case TriggerRevoke:
		if r.ProductID == "" {
			return fmt.Errorf("revoke requires a product id")
		}
	case TriggerGrant, TriggerRemove:
	default:
		return fmt.Errorf("unknown trigger kind %q", r.Kind)
	}
	return nil
}
