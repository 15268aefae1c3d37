package repository

import (
	"context"
	"strings"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
	"github.com/fokklz/vaadin-mail-manager/internal/mail"
	"github.com/fokklz/vaadin-mail-manager/internal/naming"
)

// Domains stores VirtualDomain containers.
type Domains struct {
	store *store

	accounts    *Accounts
	aliases     *Aliases
	postmasters *Postmasters
}

// FindByKey loads a domain by name.
func (r *Domains) FindByKey(ctx context.Context, identity ldap.Identity, name string) (*mail.VirtualDomain, bool) {
	dn, err := r.store.scheme.DomainDN(name)
	if err != nil {
		return nil, false
	}
	entry := r.store.find(ctx, identity, "find_domain", dn, domainFilter, domainAttributes)
	if entry == nil {
		return nil, false
	}
	return entryToDomain(entry), true
}

// FindByName is an alias of FindByKey.
func (r *Domains) FindByName(ctx context.Context, identity ldap.Identity, name string) (*mail.VirtualDomain, bool) {
	return r.FindByKey(ctx, identity, name)
}

// Exists reports whether the domain container is present.
func (r *Domains) Exists(ctx context.Context, identity ldap.Identity, name string) bool {
	_, ok := r.FindByKey(ctx, identity, name)
	return ok
}

// FindAll returns every domain below the root container.
func (r *Domains) FindAll(ctx context.Context, identity ldap.Identity) []*mail.VirtualDomain {
	return r.findWhere(ctx, identity, "find_all_domains", "")
}

// FindActive returns domains with accountActive=TRUE.
func (r *Domains) FindActive(ctx context.Context, identity ldap.Identity) []*mail.VirtualDomain {
	return r.findWhere(ctx, identity, "find_active_domains", "("+attrActive+"="+mail.BoolTrue+")")
}

// FindInactive returns domains with accountActive=FALSE.
func (r *Domains) FindInactive(ctx context.Context, identity ldap.Identity) []*mail.VirtualDomain {
	return r.findWhere(ctx, identity, "find_inactive_domains", "("+attrActive+"="+mail.BoolFalse+")")
}

// FindMarkedForDeletion returns domains flagged for removal.
func (r *Domains) FindMarkedForDeletion(ctx context.Context, identity ldap.Identity) []*mail.VirtualDomain {
	return r.findWhere(ctx, identity, "find_marked_domains", "("+attrDelete+"="+mail.BoolTrue+")")
}

// Count returns the number of domains.
func (r *Domains) Count(ctx context.Context, identity ldap.Identity) int {
	return len(r.FindAll(ctx, identity))
}

// WithStatistics fills in the account and alias counts of d.
func (r *Domains) WithStatistics(ctx context.Context, identity ldap.Identity, d *mail.VirtualDomain) *mail.VirtualDomain {
	if d == nil {
		return nil
	}
	d.AccountCount = r.accounts.CountByDomain(ctx, identity, d.Name)
	d.AliasCount = r.aliases.CountByDomain(ctx, identity, d.Name)
	return d
}

// Save creates or updates d, assigning its DN when unset.
func (r *Domains) Save(ctx context.Context, identity ldap.Identity, d *mail.VirtualDomain) error {
	if d.DN == "" {
		dn, err := r.store.scheme.DomainDN(d.Name)
		if err != nil {
			return newRepositoryError("save_domain", d.Name, err)
		}
		d.DN = dn
	}
	d.Touch()
	return r.store.upsert(ctx, identity, "save_domain", d.Name, domainRecord(d))
}

// Delete removes the domain container. It fails while the domain still has entries.
func (r *Domains) Delete(ctx context.Context, identity ldap.Identity, d *mail.VirtualDomain) error {
	if d.DN == "" {
		warnMissingDN(ctx, "domain", d.Name)
		return nil
	}
	return r.store.remove(ctx, identity, "delete_domain", d.Name, d.DN)
}

// DeleteByKey removes the named domain container if present.
func (r *Domains) DeleteByKey(ctx context.Context, identity ldap.Identity, name string) error {
	d, err := r.load(ctx, identity, "delete_domain", name)
	if err != nil || d == nil {
		return err
	}
	return r.Delete(ctx, identity, d)
}

// DeleteCascade removes every account and alias of the domain, resets and
// removes its postmaster, then removes the domain container. It stops at the
// first failure, including a failed enumeration.
func (r *Domains) DeleteCascade(ctx context.Context, identity ldap.Identity, name string) error {
	d, err := r.load(ctx, identity, "delete_domain", name)
	if err != nil || d == nil {
		return err
	}

	steps := []func() error{
		func() error { return r.accounts.DeleteAllByDomain(ctx, identity, name) },
		func() error { return r.aliases.DeleteAllByDomain(ctx, identity, name) },
		func() error { return r.postmasters.ClearByDomain(ctx, identity, name) },
		func() error { return r.postmasters.DeleteByDomain(ctx, identity, name) },
		func() error { return r.Delete(ctx, identity, d) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// load reads the domain for a write path. An invalid or absent name is
// (nil, nil); directory failures come back as a *RepositoryError.
func (r *Domains) load(ctx context.Context, identity ldap.Identity, op, name string) (*mail.VirtualDomain, error) {
	dn, err := r.store.scheme.DomainDN(name)
	if naming.IsInvalidKey(err) {
		return nil, nil
	}
	entry, err := r.store.lookup(ctx, identity, dn, domainFilter, domainAttributes)
	if err != nil {
		return nil, newRepositoryError(op, name, err)
	}
	if entry == nil {
		return nil, nil
	}
	return entryToDomain(entry), nil
}

func (r *Domains) findWhere(ctx context.Context, identity ldap.Identity, op, predicate string) []*mail.VirtualDomain {
	filter := domainFilter
	if predicate != "" {
		filter = "(&" + domainFilter + predicate + ")"
	}

	entries := r.store.search(ctx, identity, op, r.store.scheme.RootDN(), filter, domainAttributes)
	domains := make([]*mail.VirtualDomain, 0, len(entries))
	for _, entry := range entries {
		domains = append(domains, entryToDomain(entry))
	}
	return domains
}

// domainOf returns the trimmed domain name, or "" when blank.
func domainOf(domain string) string {
	return strings.TrimSpace(domain)
}
