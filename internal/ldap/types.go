package ldap

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-ldap/ldap/v3"
)

// ConnectionConfig holds configuration for directory connections.
type ConnectionConfig struct {
	// Connection settings
	URL            string        `default:"ldap://localhost:389"`
	BaseDN         string        `default:"dc=example,dc=com"`
	ConnectTimeout time.Duration `default:"5s"`
	ReadTimeout    time.Duration `default:"10s"`

	// Administrative identity used in test mode and when a caller carries no credentials.
	AdminDN       string `default:"cn=admin,dc=example,dc=com"`
	AdminPassword string `default:"admin"`

	// TLS settings
	StartTLS      bool
	SkipTLSVerify bool
	TLSConfig     *tls.Config
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *ConnectionConfig {
	config := &ConnectionConfig{}
	if err := defaults.Set(config); err != nil {
		// Only reachable if a struct tag above is malformed.
		panic(fmt.Sprintf("invalid connection config defaults: %v", err))
	}
	return config
}

// Validate checks that the configuration can be used to open sessions.
func (c *ConnectionConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: directory URL is required", ErrInvalidArgument)
	}
	if c.BaseDN == "" {
		return fmt.Errorf("%w: base DN is required", ErrInvalidArgument)
	}
	if _, err := ldap.ParseDN(c.BaseDN); err != nil {
		return fmt.Errorf("%w: invalid base DN %q: %v", ErrInvalidArgument, c.BaseDN, err)
	}
	if c.ConnectTimeout <= 0 || c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidArgument)
	}
	return nil
}

// tlsConfig returns the TLS configuration for StartTLS and ldaps:// URLs.
func (c *ConnectionConfig) tlsConfig() *tls.Config {
	if c.TLSConfig != nil {
		return c.TLSConfig
	}
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.SkipTLSVerify, //nolint:gosec // operator opt-in
	}
}

// Identity is the set of credentials a directory session binds with.
type Identity struct {
	DN       string
	Secret   string
	TestMode bool
}

// IsAnonymous reports whether the identity carries neither a DN nor a secret.
func (i Identity) IsAnonymous() bool {
	return i.DN == "" && i.Secret == ""
}

// String never includes the secret.
func (i Identity) String() string {
	switch {
	case i.TestMode:
		return "test-mode"
	case i.IsAnonymous():
		return "anonymous"
	default:
		return i.DN
	}
}

// Client provides the directory operations of one bound session.
type Client interface {
	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)
	Add(ctx context.Context, req *AddRequest) error
	Modify(ctx context.Context, req *ModifyRequest) error
	Delete(ctx context.Context, dn string) error

	// BoundDN is the DN the session authenticated as.
	BoundDN() string
	Close() error
}

// SearchRequest encapsulates LDAP search parameters.
type SearchRequest struct {
	BaseDN     string
	Scope      SearchScope
	Filter     string
	Attributes []string
	SizeLimit  int
	TimeLimit  time.Duration
}

// SearchResult contains search results.
type SearchResult struct {
	Entries []*ldap.Entry
	Total   int
}

// AddRequest encapsulates LDAP add parameters.
type AddRequest struct {
	DN         string
	Attributes map[string][]string
}

// ModifyRequest encapsulates LDAP modify parameters.
type ModifyRequest struct {
	DN                string
	AddAttributes     map[string][]string
	ReplaceAttributes map[string][]string
	DeleteAttributes  []string
}

// IsEmpty reports whether the request carries no changes.
func (r *ModifyRequest) IsEmpty() bool {
	return len(r.AddAttributes) == 0 && len(r.ReplaceAttributes) == 0 && len(r.DeleteAttributes) == 0
}

// SearchScope defines LDAP search scope.
type SearchScope int

const (
	ScopeBaseObject SearchScope = iota
	ScopeSingleLevel
	ScopeWholeSubtree
)

func (s SearchScope) String() string {
	switch s {
	case ScopeBaseObject:
		return "base"
	case ScopeSingleLevel:
		return "one"
	case ScopeWholeSubtree:
		return "sub"
	default:
		return "unknown"
	}
}
