package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tradesuite/rolesync/internal/entitlement"
	"github.com/tradesuite/rolesync/pkg/sheets"
)

// Default column positions used when the sheet has no recognizable header
// row. Matches the ledger's historical layout.
const (
	defaultColEmail = iota
	defaultColProduct
	defaultColStatus
	defaultColVerified
	defaultColUsername
	defaultColUserID
)

type columnMap struct {
	email    int
	product  int
	status   int
	verified int
	username int
	userID   int
	// hasHeader marks that row 1 is a header and data starts at row 2.
	hasHeader bool
}

func defaultColumns() columnMap {
	return columnMap{
		email:    defaultColEmail,
		product:  defaultColProduct,
		status:   defaultColStatus,
		verified: defaultColVerified,
		username: defaultColUsername,
		userID:   defaultColUserID,
	}
}

// SheetGateway implements Gateway on a Google Sheets spreadsheet. Columns
// are located by header name and the gateway degrades to a fixed-position
// raw scan when the header row is unusable. The column mapping is refreshed
// on every read; row data itself is never cached.
type SheetGateway struct {
	client    *sheets.Client
	sheetName string

	mu      sync.Mutex
	columns columnMap
}

// NewSheetGateway wraps a Sheets client as a ledger gateway.
func NewSheetGateway(client *sheets.Client, sheetName string) *SheetGateway {
	return &SheetGateway{
		client:    client,
		sheetName: sheetName,
		columns:   defaultColumns(),
	}
}

func (g *SheetGateway) FindRows(ctx context.Context, email string) ([]entitlement.PurchaseRecord, error) {
	rows, err := g.client.ReadRange(ctx, g.sheetName)
	if err != nil {
		return nil, fmt.Errorf("read ledger sheet: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	columns := mapColumns(rows[0])
	g.mu.Lock()
	g.columns = columns
	g.mu.Unlock()

	firstDataRow := 1 // sheet rows are 1-based
	if columns.hasHeader {
		firstDataRow = 2
	}

	email = entitlement.NormalizeEmail(email)
	var matched []entitlement.PurchaseRecord
	for i, row := range rows {
		sheetRow := i + 1
		if sheetRow < firstDataRow {
			continue
		}
		record := parseRecord(row, columns, sheetRow)
		if record.Email == email {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

func (g *SheetGateway) UpdateVerification(ctx context.Context, row entitlement.RowRef, accountID, displayName string, verified bool) error {
	g.mu.Lock()
	columns := g.columns
	g.mu.Unlock()

	verifiedCell := "No"
	if verified {
		verifiedCell = "Yes"
	}

	sheetRow := int(row)
	ranges := []sheets.ValueRange{
		{Range: g.cellRange(columns.verified, sheetRow), Values: [][]any{{verifiedCell}}},
		{Range: g.cellRange(columns.username, sheetRow), Values: [][]any{{displayName}}},
		{Range: g.cellRange(columns.userID, sheetRow), Values: [][]any{{accountID}}},
	}
	if err := g.client.BatchUpdate(ctx, ranges); err != nil {
		return fmt.Errorf("update ledger row %d: %w", sheetRow, err)
	}
	return nil
}

func (g *SheetGateway) cellRange(col, row int) string {
	return fmt.Sprintf("%s!%s%d", g.sheetName, columnLetter(col), row)
}

// mapColumns locates ledger columns by header name. If the email column
// cannot be found the header row is considered unusable and the gateway
// falls back to the fixed positional layout with every row treated as data.
func mapColumns(header []string) columnMap {
	columns := defaultColumns()
	foundEmail := false

	for i, cell := range header {
		switch normalizeHeader(cell) {
		case "email":
			columns.email = i
			foundEmail = true
		case "product id", "product":
			columns.product = i
		case "status", "payment status":
			columns.status = i
		case "discord verified", "verified":
			columns.verified = i
		case "discord username", "username":
			columns.username = i
		case "discord user id", "user id":
			columns.userID = i
		}
	}

	if !foundEmail {
		log.Warn().Msg("Ledger header row not recognized, falling back to positional scan")
		return defaultColumns()
	}
	columns.hasHeader = true
	return columns
}

func normalizeHeader(cell string) string {
	return strings.ToLower(strings.TrimSpace(cell))
}

func parseRecord(row []string, columns columnMap, sheetRow int) entitlement.PurchaseRecord {
	return entitlement.PurchaseRecord{
		Email:         entitlement.NormalizeEmail(cellAt(row, columns.email)),
		ProductID:     strings.TrimSpace(cellAt(row, columns.product)),
		PaymentStatus: entitlement.ParsePaymentStatus(cellAt(row, columns.status)),
		Verified:      parseVerified(cellAt(row, columns.verified)),
		DisplayName:   strings.TrimSpace(cellAt(row, columns.username)),
		AccountID:     strings.TrimSpace(cellAt(row, columns.userID)),
		Row:           entitlement.RowRef(sheetRow),
	}
}

func cellAt(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

func parseVerified(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "yes", "true", "1", "y":
		return true
	default:
		return false
	}
}

// columnLetter converts a zero-based column index to its A1 letter.
func columnLetter(col int) string {
	letters := ""
	for col >= 0 {
		letters = string(rune('A'+col%26)) + letters
		col = col/26 - 1
	}
	return letters
}
