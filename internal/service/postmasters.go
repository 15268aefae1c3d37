package service

import (
	"context"
	"strings"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
	"github.com/fokklz/vaadin-mail-manager/internal/repository"
)

// PostmasterService grants and revokes domain administration.
type PostmasterService struct {
	repos *repository.Repositories
}

// Grant makes dn a postmaster of domain. The DN is stored normalized.
func (s *PostmasterService) Grant(ctx context.Context, identity ldap.Identity, domain, dn string) error {
	domain = normalizeKey(domain)
	dn, err := ldap.NormalizeDN(dn)
	if err != nil {
		return err
	}
	if err := requireDomain(ctx, s.repos, identity, domain); err != nil {
		return err
	}
	return run(ctx, "grant_postmaster", map[string]any{"domain": domain, "occupant": dn}, func() error {
		return s.repos.Postmasters.AddRoleOccupant(ctx, identity, domain, dn)
	})
}

// Revoke removes dn from the postmasters of domain. The last occupant stays.
func (s *PostmasterService) Revoke(ctx context.Context, identity ldap.Identity, domain, dn string) error {
	domain = normalizeKey(domain)
	dn = strings.TrimSpace(dn)
	if !s.repos.Postmasters.Exists(ctx, identity, domain) {
		return notFound("postmaster of", domain)
	}
	if !s.repos.Postmasters.IsRoleOccupant(ctx, identity, domain, dn) {
		return notFound("role occupant", dn)
	}

	return run(ctx, "revoke_postmaster", map[string]any{"domain": domain, "occupant": dn}, func() error {
		removed, err := s.repos.Postmasters.RemoveRoleOccupant(ctx, identity, domain, dn)
		if err != nil {
			return err
		}
		if !removed {
			return invalidState("%s is the last postmaster of %s", dn, domain)
		}
		return nil
	})
}

// Occupants returns the DNs administering domain.
func (s *PostmasterService) Occupants(ctx context.Context, identity ldap.Identity, domain string) ([]string, error) {
	domain = normalizeKey(domain)
	if !s.repos.Postmasters.Exists(ctx, identity, domain) {
		return nil, notFound("postmaster of", domain)
	}
	return s.repos.Postmasters.FindRoleOccupantsByDomain(ctx, identity, domain), nil
}

// DomainsFor returns the domains dn administers.
func (s *PostmasterService) DomainsFor(ctx context.Context, identity ldap.Identity, dn string) []string {
	return s.repos.Postmasters.FindDomainsByRoleOccupant(ctx, identity, strings.TrimSpace(dn))
}

// IsPostmaster reports whether dn administers domain.
func (s *PostmasterService) IsPostmaster(ctx context.Context, identity ldap.Identity, domain, dn string) bool {
	return s.repos.Postmasters.IsRoleOccupant(ctx, identity, normalizeKey(domain), strings.TrimSpace(dn))
}
