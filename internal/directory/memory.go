package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Call records one mutating directory operation, for test assertions on
// ordering and idempotency.
type Call struct {
	Op       string // "grant", "revoke", "remove", "dm", "create_role"
	MemberID string
	Role     string
	Text     string
}

// MemoryDirectory is an in-memory Directory used by tests.
type MemoryDirectory struct {
	mu          sync.Mutex
	roles       map[string]Role            // name -> role
	memberRoles map[string]map[string]bool // memberID -> roleID set
	removed     map[string]bool
	messages    map[string][]string
	calls       []Call
	nextRoleID  int

	// PermissionErr, when set, makes every mutating call fail with it.
	PermissionErr error
	// DMErr, when set, makes DirectMessage fail with it.
	DMErr error
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		roles:       make(map[string]Role),
		memberRoles: make(map[string]map[string]bool),
		removed:     make(map[string]bool),
		messages:    make(map[string][]string),
	}
}

func (d *MemoryDirectory) FindRole(ctx context.Context, name string) (*Role, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if role, ok := d.roles[name]; ok {
		copied := role
		return &copied, nil
	}
	return nil, nil
}

func (d *MemoryDirectory) CreateRole(ctx context.Context, name string) (*Role, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.PermissionErr != nil {
		return nil, d.PermissionErr
	}
	d.nextRoleID++
	role := Role{ID: fmt.Sprintf("role-%d", d.nextRoleID), Name: name}
	d.roles[name] = role
	d.calls = append(d.calls, Call{Op: "create_role", Role: name})
	return &role, nil
}

func (d *MemoryDirectory) MemberRoleIDs(ctx context.Context, memberID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var ids []string
	for id := range d.memberRoles[memberID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (d *MemoryDirectory) GrantRole(ctx context.Context, memberID string, role Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.PermissionErr != nil {
		return d.PermissionErr
	}
	if d.memberRoles[memberID] == nil {
		d.memberRoles[memberID] = make(map[string]bool)
	}
	d.memberRoles[memberID][role.ID] = true
	d.calls = append(d.calls, Call{Op: "grant", MemberID: memberID, Role: role.Name})
	return nil
}

func (d *MemoryDirectory) RevokeRole(ctx context.Context, memberID string, role Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.PermissionErr != nil {
		return d.PermissionErr
	}
	delete(d.memberRoles[memberID], role.ID)
	d.calls = append(d.calls, Call{Op: "revoke", MemberID: memberID, Role: role.Name})
	return nil
}

func (d *MemoryDirectory) RemoveMember(ctx context.Context, memberID, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.PermissionErr != nil {
		return d.PermissionErr
	}
	d.removed[memberID] = true
	d.calls = append(d.calls, Call{Op: "remove", MemberID: memberID, Text: reason})
	return nil
}

func (d *MemoryDirectory) DirectMessage(ctx context.Context, memberID, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.DMErr != nil {
		return d.DMErr
	}
	d.messages[memberID] = append(d.messages[memberID], text)
	d.calls = append(d.calls, Call{Op: "dm", MemberID: memberID, Text: text})
	return nil
}

func (d *MemoryDirectory) Connected() bool { return true }

// SeedRole registers a role without recording a call.
func (d *MemoryDirectory) SeedRole(name string) Role {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextRoleID++
	role := Role{ID: fmt.Sprintf("role-%d", d.nextRoleID), Name: name}
	d.roles[name] = role
	return role
}

// RoleNamesFor returns the names of roles currently held by a member.
func (d *MemoryDirectory) RoleNamesFor(memberID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var names []string
	for name, role := range d.roles {
		if d.memberRoles[memberID][role.ID] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Removed reports whether a member was kicked.
func (d *MemoryDirectory) Removed(memberID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removed[memberID]
}

// Messages returns DMs sent to a member.
func (d *MemoryDirectory) Messages(memberID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.messages[memberID]...)
}

// Calls returns all mutating operations in arrival order.
func (d *MemoryDirectory) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}
