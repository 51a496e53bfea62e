package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/exius/internal/common"
	"github.com/dmitrijs2005/exius/internal/server/identity"
)

// PermissionService decides who may manage relays and their keys.
//
// Creating a relay requires membership of the organization. Reading,
// modifying or deleting a relay or its keys requires any permission on the
// relay's repository. Issuing a key requires the relay password.
type PermissionService struct {
	identity identity.Provider
	relays   *RelayService
}

func NewPermissionService(p identity.Provider, relays *RelayService) *PermissionService {
	return &PermissionService{identity: p, relays: relays}
}

// CanCreateRelay returns the caller's login when they may create relays.
func (s *PermissionService) CanCreateRelay(ctx context.Context, userToken string) (string, error) {
	login, err := s.identity.ResolveIdentity(ctx, userToken)
	if err != nil {
		return "", err
	}
	role, err := s.identity.OrgMembership(ctx, login)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	if role != identity.RoleAdmin && role != identity.RoleMember {
		return "", common.ErrorUnauthorized
	}
	return login, nil
}

// CanAccessRelay returns the caller's login when they hold a permission on
// the relay's repository.
func (s *PermissionService) CanAccessRelay(ctx context.Context, userToken, relayName string) (string, error) {
	relay, err := s.relays.Get(ctx, relayName)
	if err != nil {
		return "", err
	}
	login, err := s.identity.ResolveIdentity(ctx, userToken)
	if err != nil {
		return "", err
	}
	level, err := s.identity.RepositoryPermission(ctx, login, relay.Repository)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	switch level {
	case identity.PermissionAdmin, identity.PermissionWrite, identity.PermissionRead:
		return login, nil
	default:
		return "", common.ErrorUnauthorized
	}
}

// CanIssueKey checks the relay password.
func (s *PermissionService) CanIssueKey(ctx context.Context, relayName, password string) error {
	return s.relays.CheckPassword(ctx, relayName, password)
}
