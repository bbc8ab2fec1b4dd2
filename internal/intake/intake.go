// Package intake normalizes the two trigger sources, direct messages from
// account holders and automation events from the commerce system, into
// reconciliation requests.
package intake

import (
	"fmt"
	"strings"

	"github.com/tradesuite/rolesync/internal/entitlement"
)

// AutomationEvent is the webhook body the commerce system posts.
type AutomationEvent struct {
	Email     string `json:"email"`
	Action    string `json:"action"`
	ProductID string `json:"product_id,omitempty"`
}

// Normalize maps an automation event onto a reconciliation request. Unknown
// actions are rejected here, before anything reaches the coordinator.
func (e AutomationEvent) Normalize() (entitlement.Request, error) {
	email := entitlement.NormalizeEmail(e.Email)
	if email == "" {
		return entitlement.Request{}, fmt.Errorf("missing email")
	}

	var kind entitlement.TriggerKind
	switch strings.ToLower(strings.TrimSpace(e.Action)) {
	case "add_role":
		kind = entitlement.TriggerGrant
	case "remove_role":
		kind = entitlement.TriggerRevoke
	case "kick":
		kind = entitlement.TriggerRemove
	case "":
		return entitlement.Request{}, fmt.Errorf("missing action")
	default:
		return entitlement.Request{}, fmt.Errorf("unknown action %q", e.Action)
	}

	if kind == entitlement.TriggerRevoke && strings.TrimSpace(e.ProductID) == "" {
		return entitlement.Request{}, fmt.Errorf("remove_role requires product_id")
	}

	req := entitlement.NewRequest(kind, email)
	req.ProductID = strings.TrimSpace(e.ProductID)
	return req, nil
}
