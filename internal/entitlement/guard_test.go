package entitlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckClaim(t *testing.T) {
	tests := []struct {
		name      string
		records   []PurchaseRecord
		accountID string
		want      ClaimStatus
	}{
		{
			name:      "no records",
			records:   nil,
			accountID: "42",
			want:      Claimable,
		},
		{
			name: "unverified rows are claimable",
			records: []PurchaseRecord{
				{Email: "a@x.com", AccountID: "", Verified: false},
			},
			accountID: "42",
			want:      Claimable,
		},
		{
			name: "verified by self",
			records: []PurchaseRecord{
				{Email: "a@x.com", AccountID: "42", Verified: true},
			},
			accountID: "42",
			want:      AlreadyClaimedBySelf,
		},
		{
			name: "verified by other",
			records: []PurchaseRecord{
				{Email: "a@x.com", AccountID: "99", Verified: true},
			},
			accountID: "42",
			want:      AlreadyClaimedByOther,
		},
		{
			name: "verified flag without account is not a claim",
			records: []PurchaseRecord{
				{Email: "a@x.com", AccountID: "", Verified: true},
			},
			accountID: "42",
			want:      Claimable,
		},
		{
			name: "first verified row wins across products",
			records: []PurchaseRecord{
				{Email: "a@x.com", ProductID: "P_setup", Verified: false},
				{Email: "a@x.com", ProductID: "P_monthly", AccountID: "99", Verified: true},
			},
			accountID: "42",
			want:      AlreadyClaimedByOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckClaim(tt.records, tt.accountID))
		})
	}
}

func TestClaimingAccount(t *testing.T) {
	records := []PurchaseRecord{
		{Email: "a@x.com", AccountID: "42", Verified: false},
		{Email: "a@x.com", AccountID: "99", Verified: true},
	}
	assert.Equal(t, "99", ClaimingAccount(records), "only verified rows establish ownership")
	assert.Equal(t, "", ClaimingAccount(nil))
}
