// Package naming maps domains, mailboxes, aliases and postmasters onto
// distinguished names below the hosting root container.
//
// The layout is fixed:
//
//	o=hosting,<base>                          root container
//	jvd=<domain>,o=hosting,<base>             one container per virtual domain
//	mail=<address>,jvd=<domain>,o=hosting,... accounts and aliases
//	cn=postmaster,jvd=<domain>,o=hosting,...  the domain postmaster
//
// Identical inputs always yield identical DNs; repositories rely on this to
// decide between create and update without a separate lookup key.
package naming

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
)

// RDN attribute types of each level.
const (
	DomainAttribute     = "jvd"
	EntryAttribute      = "mail"
	PostmasterAttribute = "cn"
	PostmasterName      = "postmaster"
)

// ErrInvalidKey is returned when a key component is empty.
var ErrInvalidKey = fmt.Errorf("%w: invalid key", ldap.ErrInvalidArgument)

// Scheme derives DNs relative to a base DN.
type Scheme struct {
	baseDN string
}

// New creates a Scheme rooted at baseDN. An empty baseDN yields DNs relative
// to the server's naming context.
func New(baseDN string) *Scheme {
	return &Scheme{baseDN: strings.TrimSpace(baseDN)}
}

// RootDN returns the DN of the hosting container.
func (s *Scheme) RootDN() string {
	root := ldap.RootRDNAttribute + "=" + ldap.RootRDNValue
	if s.baseDN == "" {
		return root
	}
	return root + "," + s.baseDN
}

// DomainDN returns the DN of a virtual domain container.
func (s *Scheme) DomainDN(domain string) (string, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return "", fmt.Errorf("%w: domain is empty", ErrInvalidKey)
	}
	return DomainAttribute + "=" + ldap.EscapeDNValue(domain) + "," + s.RootDN(), nil
}

// EntryDN returns the DN of an account or alias below a domain.
func (s *Scheme) EntryDN(domain, localKey string) (string, error) {
	localKey = strings.TrimSpace(localKey)
	domainDN, err := s.DomainDN(domain)
	if err != nil {
		return "", err
	}
	if localKey == "" {
		return "", fmt.Errorf("%w: entry key is empty", ErrInvalidKey)
	}
	return EntryAttribute + "=" + ldap.EscapeDNValue(localKey) + "," + domainDN, nil
}

// EntryDNFromAddress derives the domain from the part after the first '@' and returns
// the entry DN keyed by the full address. Catch-all addresses ("@domain") are
// accepted.
func (s *Scheme) EntryDNFromAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	at := strings.Index(address, "@")
	if at < 0 || at == len(address)-1 {
		return "", fmt.Errorf("%w: %q has no domain part", ErrInvalidKey, address)
	}
	return s.EntryDN(address[at+1:], address)
}

// PostmasterDN returns the DN of the postmaster entry of a domain.
func (s *Scheme) PostmasterDN(domain string) (string, error) {
	domainDN, err := s.DomainDN(domain)
	if err != nil {
		return "", err
	}
	return PostmasterAttribute + "=" + PostmasterName + "," + domainDN, nil
}

// DomainOf returns the domain a DN belongs to: the value of its jvd RDN.
func DomainOf(dn string) (string, bool) {
	return ldap.RDNValue(dn, DomainAttribute)
}

// EscapeFilterTerm escapes filter metacharacters in a free-text search term.
func EscapeFilterTerm(term string) string {
	return ldap.EscapeFilterTerm(term)
}

// IsInvalidKey reports whether err stems from an empty or malformed key.
func IsInvalidKey(err error) bool {
	return errors.Is(err, ErrInvalidKey)
}
