package entitlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePaymentStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want PaymentStatus
	}{
		{"PAID", StatusPaid},
		{"paid", StatusPaid},
		{" Active ", StatusPaid},
		{"completed", StatusPaid},
		{"REFUNDED", StatusRefunded},
		{"cancelled", StatusCancelled},
		{"canceled", StatusCancelled},
		{"", PaymentStatus("")},
		{"pending", PaymentStatus("PENDING")},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParsePaymentStatus(tt.raw), "raw=%q", tt.raw)
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeEmail("  A@X.COM "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestPlausibleEmail(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"a@x.com", true},
		{"  a@x.com  ", true},
		{"hello there", false},
		{"a@x", false},
		{"no at sign.com", false},
		{"two words@x.com", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PlausibleEmail(tt.text), "text=%q", tt.text)
	}
}

func TestRequestValidate(t *testing.T) {
	verify := NewRequest(TriggerVerify, "a@x.com")
	assert.Error(t, verify.Validate(), "verify without an account must be rejected")
	verify.AccountID = "42"
	assert.NoError(t, verify.Validate())

	revoke := NewRequest(TriggerRevoke, "a@x.com")
	assert.Error(t, revoke.Validate(), "revoke without a product must be rejected")
	revoke.ProductID = "P_monthly"
	assert.NoError(t, revoke.Validate())

	noEmail := NewRequest(TriggerGrant, "  ")
	assert.Error(t, noEmail.Validate())
}
