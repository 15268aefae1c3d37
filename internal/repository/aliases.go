package repository

import (
	"context"
	"errors"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
	"github.com/fokklz/vaadin-mail-manager/internal/mail"
	"github.com/fokklz/vaadin-mail-manager/internal/naming"
)

// Aliases stores MailAlias entries, keyed by address. Postmaster entries share
// the alias object class and are excluded from every query here.
type Aliases struct {
	store *store
}

// FindByKey loads the alias with the given address.
func (r *Aliases) FindByKey(ctx context.Context, identity ldap.Identity, address string) (*mail.MailAlias, bool) {
	dn, err := r.store.scheme.EntryDNFromAddress(address)
	if err != nil {
		return nil, false
	}
	entry := r.store.find(ctx, identity, "find_alias", dn, aliasFilter, aliasAttributes)
	if entry == nil {
		return nil, false
	}
	return entryToAlias(entry), true
}

// Exists reports whether an alias with the address is stored.
func (r *Aliases) Exists(ctx context.Context, identity ldap.Identity, address string) bool {
	_, ok := r.FindByKey(ctx, identity, address)
	return ok
}

// FindCatchAll returns the catch-all alias of domain.
func (r *Aliases) FindCatchAll(ctx context.Context, identity ldap.Identity, domain string) (*mail.MailAlias, bool) {
	domain = domainOf(domain)
	if domain == "" {
		return nil, false
	}
	return r.FindByKey(ctx, identity, "@"+domain)
}

// FindAll returns every alias of every domain.
func (r *Aliases) FindAll(ctx context.Context, identity ldap.Identity) []*mail.MailAlias {
	return r.collect(ctx, identity, "find_all_aliases", r.store.scheme.RootDN(), aliasFilter)
}

// FindByDomain returns the aliases of domain.
func (r *Aliases) FindByDomain(ctx context.Context, identity ldap.Identity, domain string) []*mail.MailAlias {
	return r.findInDomain(ctx, identity, "find_aliases_by_domain", domain, "")
}

// FindInactiveByDomain returns the disabled aliases of domain.
func (r *Aliases) FindInactiveByDomain(ctx context.Context, identity ldap.Identity, domain string) []*mail.MailAlias {
	return r.findInDomain(ctx, identity, "find_inactive_aliases", domain, "("+attrActive+"="+mail.BoolFalse+")")
}

// SearchByDomain returns aliases of domain whose address contains term.
func (r *Aliases) SearchByDomain(ctx context.Context, identity ldap.Identity, domain, term string) []*mail.MailAlias {
	if term == "" {
		return r.FindByDomain(ctx, identity, domain)
	}
	return r.findInDomain(ctx, identity, "search_aliases", domain,
		"("+attrMail+"=*"+naming.EscapeFilterTerm(term)+"*)")
}

// CountByDomain returns the number of aliases in domain.
func (r *Aliases) CountByDomain(ctx context.Context, identity ldap.Identity, domain string) int {
	return len(r.FindByDomain(ctx, identity, domain))
}

// Save creates or updates a, assigning its DN when unset.
func (r *Aliases) Save(ctx context.Context, identity ldap.Identity, a *mail.MailAlias) error {
	if a.DN == "" {
		dn, err := r.store.scheme.EntryDNFromAddress(a.Mail)
		if err != nil {
			return newRepositoryError("save_alias", a.Mail, err)
		}
		a.DN = dn
	}
	a.Touch()
	return r.store.upsert(ctx, identity, "save_alias", a.Mail, aliasRecord(a))
}

// Delete removes the alias entry.
func (r *Aliases) Delete(ctx context.Context, identity ldap.Identity, a *mail.MailAlias) error {
	if a.DN == "" {
		warnMissingDN(ctx, "alias", a.Mail)
		return nil
	}
	return r.store.remove(ctx, identity, "delete_alias", a.Mail, a.DN)
}

// DeleteByKey removes the alias with the address if present.
func (r *Aliases) DeleteByKey(ctx context.Context, identity ldap.Identity, address string) error {
	dn, err := r.store.scheme.EntryDNFromAddress(address)
	if naming.IsInvalidKey(err) {
		return nil
	}
	entry, err := r.store.lookup(ctx, identity, dn, aliasFilter, aliasAttributes)
	if err != nil {
		return newRepositoryError("delete_alias", address, err)
	}
	if entry == nil {
		return nil
	}
	return r.Delete(ctx, identity, entryToAlias(entry))
}

// DeleteAllByDomain removes every alias of domain, leaving the postmaster.
func (r *Aliases) DeleteAllByDomain(ctx context.Context, identity ldap.Identity, domain string) error {
	base, err := r.store.scheme.DomainDN(domainOf(domain))
	if naming.IsInvalidKey(err) {
		return nil
	}
	entries, err := r.store.list(ctx, identity, "delete_aliases_by_domain", base, aliasFilter, aliasAttributes)
	if err != nil {
		return newRepositoryError("delete_aliases_by_domain", domain, err)
	}

	var errs []error
	for _, entry := range entries {
		errs = append(errs, r.Delete(ctx, identity, entryToAlias(entry)))
	}
	return errors.Join(errs...)
}

func (r *Aliases) findInDomain(ctx context.Context, identity ldap.Identity, op, domain, predicate string) []*mail.MailAlias {
	base, err := r.store.scheme.DomainDN(domainOf(domain))
	if err != nil {
		return []*mail.MailAlias{}
	}
	filter := aliasFilter
	if predicate != "" {
		filter = "(&" + aliasFilter + predicate + ")"
	}
	return r.collect(ctx, identity, op, base, filter)
}

func (r *Aliases) collect(ctx context.Context, identity ldap.Identity, op, base, filter string) []*mail.MailAlias {
	entries := r.store.search(ctx, identity, op, base, filter, aliasAttributes)
	aliases := make([]*mail.MailAlias, 0, len(entries))
	for _, entry := range entries {
		aliases = append(aliases, entryToAlias(entry))
	}
	return aliases
}
