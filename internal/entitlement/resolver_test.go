package entitlement

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradesuite/rolesync/internal/catalog"
)

func testCatalog() *catalog.Catalog {
	return catalog.New(map[string]catalog.Product{
		"P_monthly": {Roles: []string{"Bot Suite", "Member"}, GrantsAccess: true},
		"P_annual":  {Roles: []string{"Bot Suite", "Member", "Annual"}, GrantsAccess: true},
		"P_setup":   {Roles: []string{"Member"}, GrantsAccess: false},
	})
}

func TestResolveNoRecords(t *testing.T) {
	decision := Resolve(nil, testCatalog())
	assert.Equal(t, AccessNone, decision.AccessLevel)
	assert.Empty(t, decision.Roles)
}

func TestResolveUnpaidRecords(t *testing.T) {
	records := []PurchaseRecord{
		{Email: "a@x.com", ProductID: "P_monthly", PaymentStatus: StatusRefunded},
		{Email: "a@x.com", ProductID: "P_annual", PaymentStatus: StatusCancelled},
	}
	decision := Resolve(records, testCatalog())
	assert.Equal(t, AccessNone, decision.AccessLevel)
	assert.Empty(t, decision.Roles)
}

func TestResolveUnknownProductsIgnored(t *testing.T) {
	records := []PurchaseRecord{
		{Email: "a@x.com", ProductID: "P_discontinued", PaymentStatus: StatusPaid},
	}
	decision := Resolve(records, testCatalog())
	assert.Equal(t, AccessNone, decision.AccessLevel, "paid but unknown products must not unlock anything")
}

func TestResolveSetupOnly(t *testing.T) {
	records := []PurchaseRecord{
		{Email: "a@x.com", ProductID: "P_setup", PaymentStatus: StatusPaid},
	}
	decision := Resolve(records, testCatalog())
	assert.Equal(t, AccessSetupOnly, decision.AccessLevel)
	assert.Empty(t, decision.Roles, "setup-only purchasers get no roles yet")
}

func TestResolveFullAccess(t *testing.T) {
	records := []PurchaseRecord{
		{Email: "a@x.com", ProductID: "P_monthly", PaymentStatus: StatusPaid},
	}
	decision := Resolve(records, testCatalog())
	assert.Equal(t, AccessFull, decision.AccessLevel)
	assert.Equal(t, []string{"Bot Suite", "Member"}, decision.Roles)
}

func TestResolveRoleUnionDeduped(t *testing.T) {
	records := []PurchaseRecord{
		{Email: "a@x.com", ProductID: "P_monthly", PaymentStatus: StatusPaid},
		{Email: "a@x.com", ProductID: "P_annual", PaymentStatus: StatusPaid},
		{Email: "a@x.com", ProductID: "P_setup", PaymentStatus: StatusPaid},
	}
	decision := Resolve(records, testCatalog())
	assert.Equal(t, AccessFull, decision.AccessLevel)
	assert.Equal(t, []string{"Annual", "Bot Suite", "Member"}, decision.Roles)
}

func TestResolveRefundedProductContributesNothing(t *testing.T) {
	records := []PurchaseRecord{
		{Email: "a@x.com", ProductID: "P_monthly", PaymentStatus: StatusPaid},
		{Email: "a@x.com", ProductID: "P_annual", PaymentStatus: StatusRefunded},
	}
	decision := Resolve(records, testCatalog())
	assert.Equal(t, AccessFull, decision.AccessLevel)
	assert.Equal(t, []string{"Bot Suite", "Member"}, decision.Roles)
}

func TestResolveMissingStatusTreatedAsUnpaid(t *testing.T) {
	records := []PurchaseRecord{
		{Email: "a@x.com", ProductID: "P_monthly", PaymentStatus: ParsePaymentStatus("")},
	}
	decision := Resolve(records, testCatalog())
	assert.Equal(t, AccessNone, decision.AccessLevel)
}
