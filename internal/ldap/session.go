package ldap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Root container of the hosting tree, directly below the configured base DN.
const (
	RootRDNAttribute = "o"
	RootRDNValue     = "hosting"
)

// Dialer opens a raw connection to the directory server.
type Dialer func(ctx context.Context, config *ConnectionConfig) (ldap.Client, error)

// SessionFactory produces short-lived, credential-scoped directory sessions.
// There is no pooling: every call dials, binds and hands the connection to the
// caller, who must Close it.
type SessionFactory struct {
	config *ConnectionConfig
	dial   Dialer

	mu          sync.Mutex
	rootChecked bool
}

// SessionOption configures a SessionFactory.
type SessionOption func(*SessionFactory)

// WithDialer replaces the network dialer, mainly for tests.
func WithDialer(dialer Dialer) SessionOption {
	return func(f *SessionFactory) {
		f.dial = dialer
	}
}

// NewSessionFactory creates a session factory for the given configuration.
func NewSessionFactory(config *ConnectionConfig, opts ...SessionOption) (*SessionFactory, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	f := &SessionFactory{
		config: config,
		dial:   dialURL,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Config returns the configuration the factory was built with.
func (f *SessionFactory) Config() *ConnectionConfig {
	return f.config
}

// RootDN returns the DN of the hosting root container.
func (f *SessionFactory) RootDN() string {
	return fmt.Sprintf("%s=%s,%s", RootRDNAttribute, RootRDNValue, f.config.BaseDN)
}

// OpenAsCaller opens a session bound as the calling identity. Test mode and
// identities without any credentials fall back to the administrative identity;
// an identity carrying only one of DN and secret is rejected.
func (f *SessionFactory) OpenAsCaller(ctx context.Context, identity Identity) (Client, error) {
	if identity.TestMode || identity.IsAnonymous() {
		tflog.SubsystemDebug(ctx, SubsystemLDAP, "Using administrative identity", map[string]any{
			"test_mode": identity.TestMode,
			"bind_dn":   f.config.AdminDN,
		})
		return f.OpenAsIdentity(ctx, f.config.AdminDN, f.config.AdminPassword)
	}

	if identity.DN == "" {
		return nil, fmt.Errorf("%w: no caller DN available", ErrMissingCredentials)
	}
	if identity.Secret == "" {
		return nil, fmt.Errorf("%w: no caller secret available for %s", ErrMissingCredentials, identity.DN)
	}

	return f.OpenAsIdentity(ctx, identity.DN, identity.Secret)
}

// OpenAsIdentity dials the directory, binds as dn and makes sure the hosting
// root container exists.
func (f *SessionFactory) OpenAsIdentity(ctx context.Context, dn, secret string) (Client, error) {
	sessionID := uuid.NewString()
	fields := map[string]any{
		"session_id": sessionID,
		"url":        f.config.URL,
		"bind_dn":    dn,
	}

	conn, err := f.bind(ctx, dn, secret, fields)
	if err != nil {
		return nil, err
	}

	c := newClient(conn, dn, sessionID)
	if err := f.ensureRoot(ctx, c); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

// Authenticate checks dn and secret with a bind and releases the connection.
func (f *SessionFactory) Authenticate(ctx context.Context, dn, secret string) error {
	if dn == "" || secret == "" {
		return fmt.Errorf("%w: DN and secret are required", ErrMissingCredentials)
	}

	conn, err := f.bind(ctx, dn, secret, map[string]any{
		"url":     f.config.URL,
		"bind_dn": dn,
		"purpose": "authenticate",
	})
	if err != nil {
		return err
	}
	return conn.Close()
}

func (f *SessionFactory) bind(ctx context.Context, dn, secret string, fields map[string]any) (ldap.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	LogConnectionEvent(ctx, "connection_attempt", fields)

	start := time.Now()
	conn, err := f.dial(ctx, f.config)
	if err != nil {
		fields["error"] = err.Error()
		LogConnectionEvent(ctx, "connection_failed", fields)
		return nil, fmt.Errorf("%w: %s: %w", ErrDirectoryUnavailable, f.config.URL, err)
	}
	conn.SetTimeout(f.config.ReadTimeout)

	if err := conn.Bind(dn, secret); err != nil {
		_ = conn.Close()
		fields["error"] = err.Error()
		fields["duration_ms"] = time.Since(start).Milliseconds()
		LogConnectionEvent(ctx, "authentication_failed", fields)
		return nil, bindError(dn, err)
	}

	fields["duration_ms"] = time.Since(start).Milliseconds()
	LogConnectionEvent(ctx, "authentication_success", fields)

	return conn, nil
}

func bindError(dn string, err error) error {
	ldapErr := NewLDAPError("bind", dn, err)
	switch ldapErr.Category {
	case ErrorCategoryAuthentication:
		return fmt.Errorf("%w: %w", ErrAuthenticationFailure, ldapErr)
	case ErrorCategoryConnection, ErrorCategoryServer:
		return fmt.Errorf("%w: %w", ErrDirectoryUnavailable, ldapErr)
	default:
		return ldapErr
	}
}

// ensureRoot creates the hosting root container on first use. A successful
// check is remembered for the lifetime of the factory.
func (f *SessionFactory) ensureRoot(ctx context.Context, c Client) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rootChecked {
		return nil
	}

	rootDN := f.RootDN()
	result, err := c.Search(ctx, &SearchRequest{
		BaseDN:     rootDN,
		Scope:      ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: []string{RootRDNAttribute},
		SizeLimit:  1,
	})
	if err != nil {
		LogConnectionEvent(ctx, "root_check_failed", map[string]any{"root_dn": rootDN, "error": err.Error()})
		return fmt.Errorf("checking root container %s: %w", rootDN, err)
	}

	if len(result.Entries) == 0 {
		err = c.Add(ctx, &AddRequest{
			DN: rootDN,
			Attributes: map[string][]string{
				"objectClass":    {"top", "organization"},
				RootRDNAttribute: {RootRDNValue},
			},
		})
		// Another session may have created it in the meantime.
		if err != nil && !IsEntryAlreadyExists(err) {
			LogConnectionEvent(ctx, "root_check_failed", map[string]any{"root_dn": rootDN, "error": err.Error()})
			return fmt.Errorf("creating root container %s: %w", rootDN, err)
		}
		LogConnectionEvent(ctx, "root_created", map[string]any{"root_dn": rootDN})
	}

	f.rootChecked = true
	return nil
}

// dialURL is the default Dialer.
func dialURL(ctx context.Context, config *ConnectionConfig) (ldap.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: config.ConnectTimeout}
	opts := []ldap.DialOpt{ldap.DialWithDialer(dialer)}
	if strings.HasPrefix(strings.ToLower(config.URL), "ldaps://") {
		opts = append(opts, ldap.DialWithTLSConfig(config.tlsConfig()))
	}

	conn, err := ldap.DialURL(config.URL, opts...)
	if err != nil {
		return nil, err
	}

	if config.StartTLS {
		if err := conn.StartTLS(config.tlsConfig()); err != nil {
			_ = conn.Close()
			return nil, errors.Join(errors.New("StartTLS failed"), err)
		}
	}

	return conn, nil
}
