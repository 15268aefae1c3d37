// Package repository stores hosted-mail entities in the directory.
//
// Every method opens its own session as the calling identity, performs one
// logical operation and releases the session before returning. Reads never
// fail for absent entries: lookups report (nil, false) and queries return an
// empty slice, logging whatever went wrong. Writes, including the lookups a
// delete or occupant change performs first, return a *RepositoryError.
package repository

import (
	"context"
	"errors"
	"fmt"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
	"github.com/fokklz/vaadin-mail-manager/internal/mail"
	"github.com/fokklz/vaadin-mail-manager/internal/naming"
)

// Opener opens a bound directory session for the calling identity.
// *ldap.SessionFactory satisfies it.
type Opener interface {
	OpenAsCaller(ctx context.Context, identity ldap.Identity) (ldap.Client, error)
}

// Options tune repository behaviour.
type Options struct {
	// DefaultOccupant replaces an emptied postmaster occupant list.
	DefaultOccupant string
}

// Repositories bundles the four entity repositories over one session opener.
type Repositories struct {
	Domains     *Domains
	Accounts    *Accounts
	Aliases     *Aliases
	Postmasters *Postmasters
}

// New wires the repositories together.
func New(opener Opener, scheme *naming.Scheme, opts Options) *Repositories {
	if opts.DefaultOccupant == "" {
		opts.DefaultOccupant = mail.DefaultRoleOccupant
	}

	s := &store{opener: opener, scheme: scheme}
	r := &Repositories{
		Accounts:    &Accounts{store: s},
		Aliases:     &Aliases{store: s},
		Postmasters: &Postmasters{store: s, defaultOccupant: opts.DefaultOccupant},
	}
	r.Domains = &Domains{store: s, accounts: r.Accounts, aliases: r.Aliases, postmasters: r.Postmasters}
	return r
}

// RepositoryError is returned by every failed write. It matches
// ldap.ErrRepositoryFailure and unwraps to the underlying cause.
type RepositoryError struct {
	Op    string
	Kind  ldap.ErrorCategory
	Key   string
	Cause error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("%s %q failed (%s): %v", e.Op, e.Key, e.Kind, e.Cause)
}

func (e *RepositoryError) Unwrap() error {
	return e.Cause
}

// Is matches ldap.ErrRepositoryFailure.
func (e *RepositoryError) Is(target error) bool {
	return target == ldap.ErrRepositoryFailure
}

func newRepositoryError(op, key string, cause error) *RepositoryError {
	kind := ldap.GetErrorCategory(cause)
	switch {
	case errors.Is(cause, ldap.ErrInvalidArgument):
		kind = ldap.ErrorCategoryValidation
	case errors.Is(cause, ldap.ErrMissingCredentials), errors.Is(cause, ldap.ErrAuthenticationFailure):
		kind = ldap.ErrorCategoryAuthentication
	case errors.Is(cause, ldap.ErrDirectoryUnavailable):
		kind = ldap.ErrorCategoryConnection
	}
	return &RepositoryError{Op: op, Kind: kind, Key: key, Cause: cause}
}

// record is the directory form of one entity.
type record struct {
	dn            string
	rdnAttribute  string
	objectClasses []string
	filter        string // identifies the entity kind on a base-object read
	attributes    map[string][]string
	optional      []string // cleared when absent from attributes
}

// store holds the plumbing shared by every repository.
type store struct {
	opener Opener
	scheme *naming.Scheme
}

// withSession runs fn on a fresh session and always releases it.
func (s *store) withSession(ctx context.Context, identity ldap.Identity, fn func(ldap.Client) error) error {
	c, err := s.opener.OpenAsCaller(ctx, identity)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			tflog.SubsystemDebug(ctx, ldap.SubsystemRepository, "Closing session failed", map[string]any{
				"error": cerr.Error(),
			})
		}
	}()
	return fn(c)
}

// read loads the entry at dn if it matches filter. A missing entry is (nil, nil).
func (s *store) read(ctx context.Context, c ldap.Client, dn, filter string, attrs []string) (*goldap.Entry, error) {
	result, err := c.Search(ctx, &ldap.SearchRequest{
		BaseDN:     dn,
		Scope:      ldap.ScopeBaseObject,
		Filter:     filter,
		Attributes: attrs,
		SizeLimit:  1,
	})
	if err != nil {
		if ldap.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(result.Entries) == 0 {
		return nil, nil
	}
	return result.Entries[0], nil
}

// lookup opens a session and loads a single entry. Only a missing entry is
// (nil, nil); write paths rely on every other failure being returned.
func (s *store) lookup(ctx context.Context, identity ldap.Identity, dn, filter string, attrs []string) (*goldap.Entry, error) {
	var entry *goldap.Entry
	err := s.withSession(ctx, identity, func(c ldap.Client) error {
		var err error
		entry, err = s.read(ctx, c, dn, filter, attrs)
		return err
	})
	return entry, err
}

// find is lookup for read paths: failures are logged and reported as absent.
func (s *store) find(ctx context.Context, identity ldap.Identity, op, dn, filter string, attrs []string) *goldap.Entry {
	entry, err := s.lookup(ctx, identity, dn, filter, attrs)
	if err != nil {
		ldap.LogLDAPError(ctx, ldap.SubsystemRepository, op, err, map[string]any{"dn": dn})
		return nil
	}
	return entry
}

// list opens a session and returns all matching entries below base.
func (s *store) list(ctx context.Context, identity ldap.Identity, op, base, filter string, attrs []string) ([]*goldap.Entry, error) {
	var entries []*goldap.Entry
	err := s.withSession(ctx, identity, func(c ldap.Client) error {
		result, err := c.Search(ctx, &ldap.SearchRequest{
			BaseDN:     base,
			Scope:      ldap.ScopeWholeSubtree,
			Filter:     filter,
			Attributes: attrs,
		})
		if err != nil {
			return err
		}
		entries = result.Entries
		return nil
	})
	if err != nil {
		return nil, err
	}

	tflog.SubsystemTrace(ctx, ldap.SubsystemRepository, "Search returned entries", map[string]any{
		"operation": op,
		"base_dn":   base,
		"count":     len(entries),
	})
	return entries, nil
}

// search is list for read paths: failures are logged and reported as no
// matches.
func (s *store) search(ctx context.Context, identity ldap.Identity, op, base, filter string, attrs []string) []*goldap.Entry {
	entries, err := s.list(ctx, identity, op, base, filter, attrs)
	if err != nil {
		ldap.LogLDAPError(ctx, ldap.SubsystemRepository, op, err, map[string]any{
			"base_dn": base,
			"filter":  filter,
		})
		return nil
	}
	return entries
}

// upsert writes rec: modify when an entry of the same kind exists at rec.dn,
// add otherwise. If the add loses a race against a concurrent creator, the
// entry is re-read and the write is retried once as a modify.
func (s *store) upsert(ctx context.Context, identity ldap.Identity, op, key string, rec *record) error {
	fields := map[string]any{"dn": rec.dn, "key": key}

	err := ldap.LogOperation(ctx, ldap.SubsystemRepository, op, fields, func() error {
		return s.withSession(ctx, identity, func(c ldap.Client) error {
			existing, err := s.read(ctx, c, rec.dn, rec.filter, nil)
			if err != nil {
				return err
			}
			if existing != nil {
				return c.Modify(ctx, rec.modifyRequest(existing))
			}

			err = c.Add(ctx, rec.addRequest())
			if err == nil || !ldap.IsEntryAlreadyExists(err) {
				return err
			}

			tflog.SubsystemWarn(ctx, ldap.SubsystemRepository, "Entry created concurrently, retrying as modify", fields)
			existing, rerr := s.read(ctx, c, rec.dn, rec.filter, nil)
			if rerr != nil {
				return rerr
			}
			if existing == nil {
				// Occupied by an entry of another kind.
				return err
			}
			return c.Modify(ctx, rec.modifyRequest(existing))
		})
	})
	if err != nil {
		return newRepositoryError(op, key, err)
	}
	return nil
}

// remove deletes dn. An entry that is already gone counts as removed.
func (s *store) remove(ctx context.Context, identity ldap.Identity, op, key, dn string) error {
	err := ldap.LogOperation(ctx, ldap.SubsystemRepository, op, map[string]any{"dn": dn, "key": key}, func() error {
		return s.withSession(ctx, identity, func(c ldap.Client) error {
			err := c.Delete(ctx, dn)
			if ldap.IsNotFoundError(err) {
				return nil
			}
			return err
		})
	})
	if err != nil {
		return newRepositoryError(op, key, err)
	}
	return nil
}

func (r *record) addRequest() *ldap.AddRequest {
	attrs := make(map[string][]string, len(r.attributes)+1)
	for name, values := range r.attributes {
		attrs[name] = values
	}
	attrs["objectClass"] = r.objectClasses
	return &ldap.AddRequest{DN: r.dn, Attributes: attrs}
}

// modifyRequest replaces every persisted attribute except the naming one and
// deletes optional attributes the entity no longer carries.
func (r *record) modifyRequest(existing *goldap.Entry) *ldap.ModifyRequest {
	req := &ldap.ModifyRequest{DN: r.dn, ReplaceAttributes: make(map[string][]string, len(r.attributes))}
	for name, values := range r.attributes {
		if name == r.rdnAttribute {
			continue
		}
		req.ReplaceAttributes[name] = values
	}
	for _, name := range r.optional {
		if _, set := r.attributes[name]; set {
			continue
		}
		if len(existing.GetAttributeValues(name)) > 0 {
			req.DeleteAttributes = append(req.DeleteAttributes, name)
		}
	}
	return req
}

// warnMissingDN logs a delete request for an entity that was never stored.
func warnMissingDN(ctx context.Context, kind, key string) {
	tflog.SubsystemWarn(ctx, ldap.SubsystemRepository, "Cannot delete entity without a DN", map[string]any{
		"kind": kind,
		"key":  key,
	})
}
