package repository

import (
	"context"
	"errors"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
	"github.com/fokklz/vaadin-mail-manager/internal/mail"
	"github.com/fokklz/vaadin-mail-manager/internal/naming"
)

// Accounts stores MailAccount entries, keyed by address.
type Accounts struct {
	store *store
}

// FindByKey loads the account with the given address.
func (r *Accounts) FindByKey(ctx context.Context, identity ldap.Identity, address string) (*mail.MailAccount, bool) {
	dn, err := r.store.scheme.EntryDNFromAddress(address)
	if err != nil {
		return nil, false
	}
	entry := r.store.find(ctx, identity, "find_account", dn, accountFilter, accountAttributes)
	if entry == nil {
		return nil, false
	}
	return entryToAccount(entry), true
}

// Exists reports whether an account with the address is stored.
func (r *Accounts) Exists(ctx context.Context, identity ldap.Identity, address string) bool {
	_, ok := r.FindByKey(ctx, identity, address)
	return ok
}

// FindAll returns every account of every domain.
func (r *Accounts) FindAll(ctx context.Context, identity ldap.Identity) []*mail.MailAccount {
	return r.collect(ctx, identity, "find_all_accounts", r.store.scheme.RootDN(), accountFilter)
}

// FindByDomain returns the accounts of domain.
func (r *Accounts) FindByDomain(ctx context.Context, identity ldap.Identity, domain string) []*mail.MailAccount {
	return r.findInDomain(ctx, identity, "find_accounts_by_domain", domain, "")
}

// FindByDomainAndPrefix returns accounts of domain whose address starts with prefix.
func (r *Accounts) FindByDomainAndPrefix(ctx context.Context, identity ldap.Identity, domain, prefix string) []*mail.MailAccount {
	if prefix == "" {
		return r.FindByDomain(ctx, identity, domain)
	}
	return r.findInDomain(ctx, identity, "find_accounts_by_prefix", domain,
		"("+attrMail+"="+naming.EscapeFilterTerm(prefix)+"*)")
}

// FindInactiveByDomain returns the disabled accounts of domain.
func (r *Accounts) FindInactiveByDomain(ctx context.Context, identity ldap.Identity, domain string) []*mail.MailAccount {
	return r.findInDomain(ctx, identity, "find_inactive_accounts", domain, "("+attrActive+"="+mail.BoolFalse+")")
}

// FindMarkedForDeletionByDomain returns the accounts of domain flagged for removal.
func (r *Accounts) FindMarkedForDeletionByDomain(ctx context.Context, identity ldap.Identity, domain string) []*mail.MailAccount {
	return r.findInDomain(ctx, identity, "find_marked_accounts", domain, "("+attrDelete+"="+mail.BoolTrue+")")
}

// SearchByDomain returns accounts of domain whose address contains term.
func (r *Accounts) SearchByDomain(ctx context.Context, identity ldap.Identity, domain, term string) []*mail.MailAccount {
	if term == "" {
		return r.FindByDomain(ctx, identity, domain)
	}
	return r.findInDomain(ctx, identity, "search_accounts", domain,
		"("+attrMail+"=*"+naming.EscapeFilterTerm(term)+"*)")
}

// CountByDomain returns the number of accounts in domain.
func (r *Accounts) CountByDomain(ctx context.Context, identity ldap.Identity, domain string) int {
	return len(r.FindByDomain(ctx, identity, domain))
}

// Save creates or updates a, assigning its DN when unset.
func (r *Accounts) Save(ctx context.Context, identity ldap.Identity, a *mail.MailAccount) error {
	if a.DN == "" {
		dn, err := r.store.scheme.EntryDNFromAddress(a.Mail)
		if err != nil {
			return newRepositoryError("save_account", a.Mail, err)
		}
		a.DN = dn
	}
	a.Touch()
	return r.store.upsert(ctx, identity, "save_account", a.Mail, accountRecord(a))
}

// Delete removes the account entry.
func (r *Accounts) Delete(ctx context.Context, identity ldap.Identity, a *mail.MailAccount) error {
	if a.DN == "" {
		warnMissingDN(ctx, "account", a.Mail)
		return nil
	}
	return r.store.remove(ctx, identity, "delete_account", a.Mail, a.DN)
}

// DeleteByKey removes the account with the address if present.
func (r *Accounts) DeleteByKey(ctx context.Context, identity ldap.Identity, address string) error {
	dn, err := r.store.scheme.EntryDNFromAddress(address)
	if naming.IsInvalidKey(err) {
		return nil
	}
	entry, err := r.store.lookup(ctx, identity, dn, accountFilter, accountAttributes)
	if err != nil {
		return newRepositoryError("delete_account", address, err)
	}
	if entry == nil {
		return nil
	}
	return r.Delete(ctx, identity, entryToAccount(entry))
}

// DeleteAllByDomain removes every account of domain. It attempts all
// deletions and reports the failures together.
func (r *Accounts) DeleteAllByDomain(ctx context.Context, identity ldap.Identity, domain string) error {
	base, err := r.store.scheme.DomainDN(domainOf(domain))
	if naming.IsInvalidKey(err) {
		return nil
	}
	entries, err := r.store.list(ctx, identity, "delete_accounts_by_domain", base, accountFilter, accountAttributes)
	if err != nil {
		return newRepositoryError("delete_accounts_by_domain", domain, err)
	}

	var errs []error
	for _, entry := range entries {
		errs = append(errs, r.Delete(ctx, identity, entryToAccount(entry)))
	}
	return errors.Join(errs...)
}

func (r *Accounts) findInDomain(ctx context.Context, identity ldap.Identity, op, domain, predicate string) []*mail.MailAccount {
	base, err := r.store.scheme.DomainDN(domainOf(domain))
	if err != nil {
		return []*mail.MailAccount{}
	}
	filter := accountFilter
	if predicate != "" {
		filter = "(&" + accountFilter + predicate + ")"
	}
	return r.collect(ctx, identity, op, base, filter)
}

func (r *Accounts) collect(ctx context.Context, identity ldap.Identity, op, base, filter string) []*mail.MailAccount {
	entries := r.store.search(ctx, identity, op, base, filter, accountAttributes)
	accounts := make([]*mail.MailAccount, 0, len(entries))
	for _, entry := range entries {
		accounts = append(accounts, entryToAccount(entry))
	}
	return accounts
}
