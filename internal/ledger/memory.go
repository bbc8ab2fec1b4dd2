package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/tradesuite/rolesync/internal/entitlement"
)

// MemoryGateway is an in-memory Gateway used by tests and local development.
type MemoryGateway struct {
	mu   sync.Mutex
	rows []entitlement.PurchaseRecord

	// FailReads forces FindRows to fail, simulating ledger outages.
	FailReads error
	// FailWrites forces UpdateVerification to fail.
	FailWrites error
}

// NewMemoryGateway seeds a gateway with the given rows. Row refs are
// assigned from slice position.
func NewMemoryGateway(rows ...entitlement.PurchaseRecord) *MemoryGateway {
	g := &MemoryGateway{rows: make([]entitlement.PurchaseRecord, len(rows))}
	for i, row := range rows {
		row.Row = entitlement.RowRef(i)
		row.Email = entitlement.NormalizeEmail(row.Email)
		g.rows[i] = row
	}
	return g
}

func (g *MemoryGateway) FindRows(ctx context.Context, email string) ([]entitlement.PurchaseRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.FailReads != nil {
		return nil, g.FailReads
	}

	email = entitlement.NormalizeEmail(email)
	var matched []entitlement.PurchaseRecord
	for _, row := range g.rows {
		if row.Email == email {
			matched = append(matched, row)
		}
	}
	return matched, nil
}

func (g *MemoryGateway) UpdateVerification(ctx context.Context, row entitlement.RowRef, accountID, displayName string, verified bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.FailWrites != nil {
		return g.FailWrites
	}

	idx := int(row)
	if idx < 0 || idx >= len(g.rows) {
		return fmt.Errorf("row %d out of range", idx)
	}
	g.rows[idx].AccountID = accountID
	g.rows[idx].DisplayName = displayName
	g.rows[idx].Verified = verified
	return nil
}

// Rows returns a snapshot of all rows, for test assertions.
func (g *MemoryGateway) Rows() []entitlement.PurchaseRecord {
	g.mu.Lock()
	defer g.mu.Unlock()

	snapshot := make([]entitlement.PurchaseRecord, len(g.rows))
	copy(snapshot, g.rows)
	return snapshot
}
