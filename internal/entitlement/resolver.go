package entitlement

import (
	"sort"

	"github.com/tradesuite/rolesync/internal/catalog"
)

// AccessLevel gates what a purchaser's paid products unlock.
type AccessLevel string

const (
	// AccessNone means no known product is currently paid.
	AccessNone AccessLevel = "none"
	// AccessSetupOnly means only non-access products are paid; nothing is
	// granted yet.
	AccessSetupOnly AccessLevel = "setup_only"
	// AccessFull means at least one access-granting product is paid.
	AccessFull AccessLevel = "full"
)

// Decision is the computed entitlement for one identity. It is derived per
// request and never stored.
type Decision struct {
	AccessLevel AccessLevel
	Roles       []string
}

// Resolve maps an identity's ledger rows to an entitlement decision.
//
// Full access requires at least one paid access-granting product. When full,
// the role set is the union of catalog roles for every paid product, access
// granting or not: a purchaser accumulates roles across everything currently
// paid, not just the product that triggered the event. Products absent from
// the catalog are ignored entirely; records with missing or unrecognized
// payment status count as not paid.
func Resolve(records []PurchaseRecord, products *catalog.Catalog) Decision {
	hasPaidAccess := false
	hasPaidKnown := false

	for _, record := range records {
		if !record.Paid() || !products.Known(record.ProductID) {
			continue
		}
		hasPaidKnown = true
		if products.GrantsAccess(record.ProductID) {
			hasPaidAccess = true
		}
	}

	if !hasPaidAccess {
		if !hasPaidKnown {
			return Decision{AccessLevel: AccessNone}
		}
		return Decision{AccessLevel: AccessSetupOnly}
	}

	seen := make(map[string]struct{})
	var roles []string
	for _, record := range records {
		if !record.Paid() {
			continue
		}
		for _, role := range products.RolesFor(record.ProductID) {
			if _, dup := seen[role]; dup {
				continue
			}
			seen[role] = struct{}{}
			roles = append(roles, role)
		}
	}
	sort.Strings(roles)

	return Decision{AccessLevel: AccessFull, Roles: roles}
}
