package repository

import (
	"context"
	"fmt"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
	"github.com/fokklz/vaadin-mail-manager/internal/mail"
	"github.com/fokklz/vaadin-mail-manager/internal/naming"
)

// Postmasters stores the per-domain postmaster entry, keyed by domain name.
type Postmasters struct {
	store           *store
	defaultOccupant string
}

// DefaultOccupant returns the DN installed when an occupant list is reset.
func (r *Postmasters) DefaultOccupant() string {
	return r.defaultOccupant
}

// FindByKey loads the postmaster of domain.
func (r *Postmasters) FindByKey(ctx context.Context, identity ldap.Identity, domain string) (*mail.Postmaster, bool) {
	dn, err := r.store.scheme.PostmasterDN(domain)
	if err != nil {
		return nil, false
	}
	entry := r.store.find(ctx, identity, "find_postmaster", dn, postmasterFilter, postmasterAttributes)
	if entry == nil {
		return nil, false
	}
	return entryToPostmaster(entry, r.defaultOccupant), true
}

// FindByDomain is FindByKey.
func (r *Postmasters) FindByDomain(ctx context.Context, identity ldap.Identity, domain string) (*mail.Postmaster, bool) {
	return r.FindByKey(ctx, identity, domain)
}

// Exists reports whether domain has a postmaster entry.
func (r *Postmasters) Exists(ctx context.Context, identity ldap.Identity, domain string) bool {
	_, ok := r.FindByKey(ctx, identity, domain)
	return ok
}

// FindAll returns the postmasters of every domain.
func (r *Postmasters) FindAll(ctx context.Context, identity ldap.Identity) []*mail.Postmaster {
	return r.collect(ctx, identity, "find_all_postmasters", postmasterFilter)
}

// FindByRoleOccupant returns every postmaster listing dn as an occupant.
func (r *Postmasters) FindByRoleOccupant(ctx context.Context, identity ldap.Identity, dn string) []*mail.Postmaster {
	if dn == "" {
		return []*mail.Postmaster{}
	}
	filter := "(&" + postmasterFilter + "(" + attrRoleOccupant + "=" + naming.EscapeFilterTerm(dn) + "))"
	return r.collect(ctx, identity, "find_postmasters_by_occupant", filter)
}

// FindDomainsByRoleOccupant returns the names of the domains dn administers.
func (r *Postmasters) FindDomainsByRoleOccupant(ctx context.Context, identity ldap.Identity, dn string) []string {
	postmasters := r.FindByRoleOccupant(ctx, identity, dn)
	domains := make([]string, 0, len(postmasters))
	for _, p := range postmasters {
		if d := p.Domain(); d != "" {
			domains = append(domains, d)
		}
	}
	return domains
}

// FindRoleOccupantsByDomain returns the occupant DNs of domain's postmaster.
func (r *Postmasters) FindRoleOccupantsByDomain(ctx context.Context, identity ldap.Identity, domain string) []string {
	p, ok := r.FindByKey(ctx, identity, domain)
	if !ok {
		return []string{}
	}
	return p.RoleOccupants()
}

// IsRoleOccupant reports whether dn administers domain. DNs compare
// case-insensitively.
func (r *Postmasters) IsRoleOccupant(ctx context.Context, identity ldap.Identity, domain, dn string) bool {
	p, ok := r.FindByKey(ctx, identity, domain)
	return ok && p.IsRoleOccupant(dn)
}

// AddRoleOccupant grants dn the postmaster role of domain.
func (r *Postmasters) AddRoleOccupant(ctx context.Context, identity ldap.Identity, domain, dn string) error {
	p, err := r.load(ctx, identity, "add_role_occupant", domain)
	if err != nil {
		return err
	}
	if p == nil {
		return newRepositoryError("add_role_occupant", domain,
			fmt.Errorf("%w: postmaster of %s", ldap.ErrNotFound, domain))
	}
	if p.IsRoleOccupant(dn) {
		return nil
	}
	p.AddRoleOccupant(dn)
	return r.Save(ctx, identity, p)
}

// RemoveRoleOccupant revokes dn's postmaster role of domain. It returns false
// without writing when dn is not an occupant or is the last one.
func (r *Postmasters) RemoveRoleOccupant(ctx context.Context, identity ldap.Identity, domain, dn string) (bool, error) {
	p, err := r.load(ctx, identity, "remove_role_occupant", domain)
	if err != nil || p == nil {
		return false, err
	}
	if !p.RemoveRoleOccupant(dn) {
		return false, nil
	}
	if err := r.Save(ctx, identity, p); err != nil {
		return false, err
	}
	return true, nil
}

// Save creates or updates p, assigning its DN when unset.
func (r *Postmasters) Save(ctx context.Context, identity ldap.Identity, p *mail.Postmaster) error {
	domain := p.Domain()
	if p.DN == "" {
		dn, err := r.store.scheme.PostmasterDN(domain)
		if err != nil {
			return newRepositoryError("save_postmaster", domain, err)
		}
		p.DN = dn
	}
	p.Touch()
	return r.store.upsert(ctx, identity, "save_postmaster", domain, postmasterRecord(p))
}

// Delete removes the postmaster entry.
func (r *Postmasters) Delete(ctx context.Context, identity ldap.Identity, p *mail.Postmaster) error {
	if p.DN == "" {
		warnMissingDN(ctx, "postmaster", p.Mail)
		return nil
	}
	return r.store.remove(ctx, identity, "delete_postmaster", p.Domain(), p.DN)
}

// DeleteByKey removes the postmaster of domain if present.
func (r *Postmasters) DeleteByKey(ctx context.Context, identity ldap.Identity, domain string) error {
	p, err := r.load(ctx, identity, "delete_postmaster", domain)
	if err != nil || p == nil {
		return err
	}
	return r.Delete(ctx, identity, p)
}

// DeleteByDomain is DeleteByKey.
func (r *Postmasters) DeleteByDomain(ctx context.Context, identity ldap.Identity, domain string) error {
	return r.DeleteByKey(ctx, identity, domain)
}

// ClearByDomain resets the occupant list of domain's postmaster to the
// default occupant. A domain without postmaster is left alone.
func (r *Postmasters) ClearByDomain(ctx context.Context, identity ldap.Identity, domain string) error {
	p, err := r.load(ctx, identity, "clear_postmaster", domain)
	if err != nil || p == nil {
		return err
	}
	p.SetRoleOccupants(nil, r.defaultOccupant)
	return r.Save(ctx, identity, p)
}

// load reads domain's postmaster for a write path. An invalid or absent
// domain is (nil, nil); directory failures come back as a *RepositoryError.
func (r *Postmasters) load(ctx context.Context, identity ldap.Identity, op, domain string) (*mail.Postmaster, error) {
	dn, err := r.store.scheme.PostmasterDN(domain)
	if naming.IsInvalidKey(err) {
		return nil, nil
	}
	entry, err := r.store.lookup(ctx, identity, dn, postmasterFilter, postmasterAttributes)
	if err != nil {
		return nil, newRepositoryError(op, domain, err)
	}
	if entry == nil {
		return nil, nil
	}
	return entryToPostmaster(entry, r.defaultOccupant), nil
}

func (r *Postmasters) collect(ctx context.Context, identity ldap.Identity, op, filter string) []*mail.Postmaster {
	entries := r.store.search(ctx, identity, op, r.store.scheme.RootDN(), filter, postmasterAttributes)
	postmasters := make([]*mail.Postmaster, 0, len(entries))
	for _, entry := range entries {
		postmasters = append(postmasters, entryToPostmaster(entry, r.defaultOccupant))
	}
	return postmasters
}
