package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradesuite/rolesync/internal/entitlement"
)

func TestMapColumnsByHeader(t *testing.T) {
	header := []string{"Discord User ID", "Email", "Product ID", "Discord Verified", "Status", "Discord Username"}
	columns := mapColumns(header)

	assert.True(t, columns.hasHeader)
	assert.Equal(t, 1, columns.email)
	assert.Equal(t, 2, columns.product)
	assert.Equal(t, 4, columns.status)
	assert.Equal(t, 3, columns.verified)
	assert.Equal(t, 5, columns.username)
	assert.Equal(t, 0, columns.userID)
}

func TestMapColumnsAlternateHeaderNames(t *testing.T) {
	header := []string{"email", "product", "payment status", "verified", "username", "user id"}
	columns := mapColumns(header)

	assert.True(t, columns.hasHeader)
	assert.Equal(t, 0, columns.email)
	assert.Equal(t, 1, columns.product)
	assert.Equal(t, 2, columns.status)
	assert.Equal(t, 3, columns.verified)
}

func TestMapColumnsFallsBackWithoutEmailHeader(t *testing.T) {
	columns := mapColumns([]string{"a@x.com", "P_monthly", "PAID", "No", "", ""})

	assert.False(t, columns.hasHeader, "a data-looking first row means no header")
	assert.Equal(t, defaultColumns(), columns)
}

func TestParseRecord(t *testing.T) {
	columns := defaultColumns()
	row := []string{" A@X.com ", " P_monthly ", "paid", "Yes", "tester", "42"}

	record := parseRecord(row, columns, 3)
	assert.Equal(t, "a@x.com", record.Email)
	assert.Equal(t, "P_monthly", record.ProductID)
	assert.Equal(t, entitlement.StatusPaid, record.PaymentStatus)
	assert.True(t, record.Verified)
	assert.Equal(t, "tester", record.DisplayName)
	assert.Equal(t, "42", record.AccountID)
	assert.Equal(t, entitlement.RowRef(3), record.Row)
}

func TestParseRecordShortRow(t *testing.T) {
	record := parseRecord([]string{"a@x.com"}, defaultColumns(), 2)
	assert.Equal(t, "a@x.com", record.Email)
	assert.Empty(t, record.ProductID)
	assert.False(t, record.Verified)
}

func TestParseVerified(t *testing.T) {
	for _, cell := range []string{"Yes", "yes", "TRUE", "1", "y", " Y "} {
		assert.True(t, parseVerified(cell), "cell=%q", cell)
	}
	for _, cell := range []string{"No", "", "0", "false", "maybe"} {
		assert.False(t, parseVerified(cell), "cell=%q", cell)
	}
}

func TestColumnLetter(t *testing.T) {
	tests := []struct {
		col  int
		want string
	}{
		{0, "A"},
		{1, "B"},
		{25, "Z"},
		{26, "AA"},
		{27, "AB"},
		{51, "AZ"},
		{52, "BA"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, columnLetter(tt.col), "col=%d", tt.col)
	}
}
