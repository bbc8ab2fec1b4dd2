// Package directory defines the gateway to the membership platform that
// manages accounts, roles, and messaging.
package directory

import "context"

// Role is one named privilege in the membership directory.
type Role struct {
	ID   string
	Name string
}

// Directory exposes the role and member operations the reconciler drives.
// Any call may fail with a permissions error when the service account lacks
// rights; callers treat directory mutation as best-effort.
type Directory interface {
	// FindRole returns the role with the given name, or nil if absent.
	FindRole(ctx context.Context, name string) (*Role, error)

	// CreateRole creates a role with the given name.
	CreateRole(ctx context.Context, name string) (*Role, error)

	// MemberRoleIDs returns the role IDs currently held by a member.
	MemberRoleIDs(ctx context.Context, memberID string) ([]string, error)

	// GrantRole adds a role to a member.
	GrantRole(ctx context.Context, memberID string, role Role) error

	// RevokeRole removes a role from a member.
	RevokeRole(ctx context.Context, memberID string, role Role) error

	// RemoveMember detaches the member from the directory.
	RemoveMember(ctx context.Context, memberID, reason string) error

	// DirectMessage sends text to a member. Implementations fail silently
	// when messaging is forbidden.
	DirectMessage(ctx context.Context, memberID, text string) error

	// Connected reports whether the directory link is currently healthy.
	Connected() bool
}
