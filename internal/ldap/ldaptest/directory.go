// Package ldaptest provides an in-memory directory for tests of code built on
// the ldap package.
package ldaptest

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	ber "github.com/go-asn1-ber/asn1-ber"
	goldap "github.com/go-ldap/ldap/v3"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
)

// Operation names accepted by Directory.Fail.
const (
	OpOpen   = "open"
	OpSearch = "search"
	OpAdd    = "add"
	OpModify = "modify"
	OpDelete = "delete"
)

// Entry is a stored directory entry.
type Entry struct {
	DN    string
	attrs map[string]attribute // keyed by lower-case name
}

type attribute struct {
	name   string
	values []string
}

// Values returns the values of name, matched case-insensitively.
func (e *Entry) Values(name string) []string {
	if e == nil {
		return nil
	}
	if a, ok := e.attrs[strings.ToLower(name)]; ok {
		return slices.Clone(a.values)
	}
	return nil
}

func (e *Entry) set(name string, values []string) {
	e.attrs[strings.ToLower(name)] = attribute{name: name, values: slices.Clone(values)}
}

// Directory is an in-memory directory server covering what the repositories
// need: hierarchical DNs, leaf-only deletes and real filter evaluation through
// the go-ldap filter compiler. It is both the session opener and the session.
type Directory struct {
	mu      sync.Mutex
	entries map[string]*Entry

	opened     int
	closed     int
	failures   map[string]error
	beforeAdd  func(req *ldap.AddRequest)
	identities []ldap.Identity
}

// NewDirectory returns a directory holding baseDN and the hosting root
// container below it.
func NewDirectory(baseDN string) *Directory {
	d := &Directory{entries: map[string]*Entry{}, failures: map[string]error{}}
	rdn, _, _ := strings.Cut(baseDN, ",")
	attr, value, _ := strings.Cut(rdn, "=")
	d.Put(baseDN, map[string][]string{"objectClass": {"top", "domain"}, attr: {value}})
	d.Put(ldap.RootRDNAttribute+"="+ldap.RootRDNValue+","+baseDN, map[string][]string{
		"objectClass":         {"top", "organization"},
		ldap.RootRDNAttribute: {ldap.RootRDNValue},
	})
	return d
}

// Put stores an entry, replacing any entry with the same DN.
func (d *Directory) Put(dn string, attrs map[string][]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.put(dn, attrs)
}

func (d *Directory) put(dn string, attrs map[string][]string) {
	e := &Entry{DN: dn, attrs: map[string]attribute{}}
	for name, values := range attrs {
		e.set(name, values)
	}
	d.entries[strings.ToLower(dn)] = e
}

// Get returns the entry at dn, or nil.
func (d *Directory) Get(dn string) *Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries[strings.ToLower(dn)]
}

// Count returns the number of stored entries.
func (d *Directory) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Fail makes every later op fail with err. A nil err clears the failure.
func (d *Directory) Fail(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, op)
		return
	}
	d.failures[op] = err
}

// BeforeAdd installs a hook run ahead of every add, outside the lock.
func (d *Directory) BeforeAdd(fn func(req *ldap.AddRequest)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.beforeAdd = fn
}

// Opened returns the number of sessions handed out.
func (d *Directory) Opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// Closed returns the number of sessions released.
func (d *Directory) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Identities returns the identities sessions were requested for, in order.
func (d *Directory) Identities() []ldap.Identity {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.identities)
}

// OpenAsCaller hands out the directory itself as the session.
func (d *Directory) OpenAsCaller(_ context.Context, identity ldap.Identity) (ldap.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.identities = append(d.identities, identity)
	if err := d.failures[OpOpen]; err != nil {
		return nil, err
	}
	d.opened++
	return d, nil
}

// BoundDN is fixed.
func (d *Directory) BoundDN() string {
	return "cn=admin"
}

// Close counts released sessions.
func (d *Directory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

// Search evaluates req against the stored entries, sorted by DN.
func (d *Directory) Search(_ context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failures[OpSearch]; err != nil {
		return nil, err
	}

	filter, err := goldap.CompileFilter(req.Filter)
	if err != nil {
		return nil, ldap.WrapError("search", req.BaseDN, err)
	}

	base := strings.ToLower(req.BaseDN)
	var matched []*Entry
	for key, e := range d.entries {
		if inScope(key, base, req.Scope) && matches(filter, e) {
			matched = append(matched, e)
		}
	}
	slices.SortFunc(matched, func(a, b *Entry) int { return strings.Compare(a.DN, b.DN) })

	result := &ldap.SearchResult{}
	for _, e := range matched {
		attrs := map[string][]string{}
		for _, a := range e.attrs {
			if len(req.Attributes) == 0 || slices.ContainsFunc(req.Attributes, func(n string) bool {
				return strings.EqualFold(n, a.name)
			}) {
				attrs[a.name] = slices.Clone(a.values)
			}
		}
		result.Entries = append(result.Entries, goldap.NewEntry(e.DN, attrs))
	}
	result.Total = len(result.Entries)
	return result, nil
}

// Add stores a new leaf below an existing parent.
func (d *Directory) Add(_ context.Context, req *ldap.AddRequest) error {
	d.mu.Lock()
	hook := d.beforeAdd
	d.mu.Unlock()
	if hook != nil {
		hook(req)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failures[OpAdd]; err != nil {
		return err
	}
	key := strings.ToLower(req.DN)
	if _, ok := d.entries[key]; ok {
		return ResultError("add", req.DN, goldap.LDAPResultEntryAlreadyExists)
	}
	if _, ok := d.entries[parentDN(key)]; !ok {
		return ResultError("add", req.DN, goldap.LDAPResultNoSuchObject)
	}
	d.put(req.DN, req.Attributes)
	return nil
}

// Modify applies adds, then replaces, then deletes.
func (d *Directory) Modify(_ context.Context, req *ldap.ModifyRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failures[OpModify]; err != nil {
		return err
	}
	e, ok := d.entries[strings.ToLower(req.DN)]
	if !ok {
		return ResultError("modify", req.DN, goldap.LDAPResultNoSuchObject)
	}
	for name, values := range req.AddAttributes {
		e.set(name, append(e.Values(name), values...))
	}
	for name, values := range req.ReplaceAttributes {
		e.set(name, values)
	}
	for _, name := range req.DeleteAttributes {
		if e.Values(name) == nil {
			return ResultError("modify", req.DN, goldap.LDAPResultNoSuchAttribute)
		}
		delete(e.attrs, strings.ToLower(name))
	}
	return nil
}

// Delete removes a leaf entry.
func (d *Directory) Delete(_ context.Context, dn string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failures[OpDelete]; err != nil {
		return err
	}
	key := strings.ToLower(dn)
	if _, ok := d.entries[key]; !ok {
		return ResultError("delete", dn, goldap.LDAPResultNoSuchObject)
	}
	for other := range d.entries {
		if parentDN(other) == key {
			return ResultError("delete", dn, goldap.LDAPResultNotAllowedOnNonLeaf)
		}
	}
	delete(d.entries, key)
	return nil
}

// ResultError builds the error a server answering with code would produce.
func ResultError(op, dn string, code uint16) error {
	return ldap.WrapError(op, dn, goldap.NewError(code, errors.New(goldap.LDAPResultCodeMap[code])))
}

// parentDN strips the leftmost RDN, honouring escaped commas.
func parentDN(dn string) string {
	for i := 0; i < len(dn); i++ {
		switch dn[i] {
		case '\\':
			i++
		case ',':
			return dn[i+1:]
		}
	}
	return ""
}

func inScope(key, base string, scope ldap.SearchScope) bool {
	switch scope {
	case ldap.ScopeBaseObject:
		return key == base
	case ldap.ScopeSingleLevel:
		return parentDN(key) == base
	default:
		return key == base || strings.HasSuffix(key, ","+base)
	}
}

func matches(p *ber.Packet, e *Entry) bool {
	switch p.Tag {
	case goldap.FilterAnd:
		for _, child := range p.Children {
			if !matches(child, e) {
				return false
			}
		}
		return true
	case goldap.FilterOr:
		for _, child := range p.Children {
			if matches(child, e) {
				return true
			}
		}
		return false
	case goldap.FilterNot:
		return !matches(p.Children[0], e)
	case goldap.FilterPresent:
		return len(e.Values(ber.DecodeString(p.Data.Bytes()))) > 0
	case goldap.FilterEqualityMatch:
		want := ber.DecodeString(p.Children[1].Data.Bytes())
		return slices.ContainsFunc(e.Values(ber.DecodeString(p.Children[0].Data.Bytes())), func(v string) bool {
			return strings.EqualFold(v, want)
		})
	case goldap.FilterSubstrings:
		return slices.ContainsFunc(e.Values(ber.DecodeString(p.Children[0].Data.Bytes())), func(v string) bool {
			return substringMatch(strings.ToLower(v), p.Children[1].Children)
		})
	}
	return false
}

func substringMatch(value string, parts []*ber.Packet) bool {
	for _, part := range parts {
		s := strings.ToLower(ber.DecodeString(part.Data.Bytes()))
		switch part.Tag {
		case goldap.FilterSubstringsInitial:
			if !strings.HasPrefix(value, s) {
				return false
			}
			value = value[len(s):]
		case goldap.FilterSubstringsAny:
			i := strings.Index(value, s)
			if i < 0 {
				return false
			}
			value = value[i+len(s):]
		case goldap.FilterSubstringsFinal:
			if !strings.HasSuffix(value, s) {
				return false
			}
		}
	}
	return true
}
