// Package identity resolves callers and their rights against the code host
// that owns relay repositories.
package identity

import "context"

// Organization roles and repository permission levels as reported by the
// code host.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"

	PermissionAdmin = "admin"
	PermissionWrite = "write"
	PermissionRead  = "read"
	PermissionNone  = "none"
)

// Provider is implemented by GitHub.
type Provider interface {
	// ResolveIdentity returns the login that owns userToken.
	ResolveIdentity(ctx context.Context, userToken string) (string, error)
	// OrgMembership returns login's role in the organization, or "" when
	// login is not a member.
	OrgMembership(ctx context.Context, login string) (string, error)
	// RepositoryPermission returns login's permission level on repo.
	RepositoryPermission(ctx context.Context, login, repo string) (string, error)
	// EnsureRepository creates repo with an initial commit and pages enabled
	// when it does not exist yet. It reports whether it was created.
	EnsureRepository(ctx context.Context, repo string) (bool, error)
}
