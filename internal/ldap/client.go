package ldap

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// client implements the Client interface over a single bound connection.
type client struct {
	conn      ldap.Client
	boundDN   string
	sessionID string
}

func newClient(conn ldap.Client, boundDN, sessionID string) *client {
	return &client{
		conn:      conn,
		boundDN:   boundDN,
		sessionID: sessionID,
	}
}

func (c *client) fields(extra map[string]any) map[string]any {
	fields := map[string]any{
		"session_id": c.sessionID,
		"bound_dn":   c.boundDN,
	}
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}

// BoundDN returns the DN the session authenticated as.
func (c *client) BoundDN() string {
	return c.boundDN
}

// Close releases the underlying connection.
func (c *client) Close() error {
	return c.conn.Close()
}

// Search performs an LDAP search.
func (c *client) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: search request cannot be nil", ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	fields := c.fields(map[string]any{
		"base_dn":    req.BaseDN,
		"scope":      req.Scope.String(),
		"filter":     req.Filter,
		"attributes": req.Attributes,
		"size_limit": req.SizeLimit,
	})

	tflog.SubsystemTrace(ctx, SubsystemLDAP, "Starting search", fields)

	ldapReq := ldap.NewSearchRequest(
		req.BaseDN,
		int(req.Scope),
		ldap.NeverDerefAliases,
		req.SizeLimit,
		int(req.TimeLimit.Seconds()),
		false, // TypesOnly
		req.Filter,
		req.Attributes,
		nil, // Controls
	)

	result, err := c.conn.Search(ldapReq)
	fields["duration_ms"] = time.Since(start).Milliseconds()
	if err != nil {
		// A missing base object is an empty result, not a failure.
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			tflog.SubsystemDebug(ctx, SubsystemLDAP, "Search base does not exist", fields)
			return &SearchResult{}, nil
		}
		LogLDAPError(ctx, SubsystemLDAP, "search", err, fields)
		return nil, WrapError("search", req.BaseDN, err)
	}

	fields["entries_found"] = len(result.Entries)
	tflog.SubsystemDebug(ctx, SubsystemLDAP, "Search completed", fields)

	return &SearchResult{
		Entries: result.Entries,
		Total:   len(result.Entries),
	}, nil
}

// Add creates a new LDAP entry.
func (c *client) Add(ctx context.Context, req *AddRequest) error {
	if req == nil || req.DN == "" {
		return fmt.Errorf("%w: add request requires a DN", ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ldapReq := ldap.NewAddRequest(req.DN, nil)
	for _, attr := range sortedKeys(req.Attributes) {
		ldapReq.Attribute(attr, req.Attributes[attr])
	}

	return LogOperation(ctx, SubsystemLDAP, "add", c.fields(map[string]any{"dn": req.DN}), func() error {
		return WrapError("add", req.DN, c.conn.Add(ldapReq))
	})
}

// Modify modifies an existing LDAP entry.
func (c *client) Modify(ctx context.Context, req *ModifyRequest) error {
	if req == nil || req.DN == "" {
		return fmt.Errorf("%w: modify request requires a DN", ErrInvalidArgument)
	}
	if req.IsEmpty() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ldapReq := ldap.NewModifyRequest(req.DN, nil)
	for _, attr := range sortedKeys(req.AddAttributes) {
		ldapReq.Add(attr, req.AddAttributes[attr])
	}
	for _, attr := range sortedKeys(req.ReplaceAttributes) {
		ldapReq.Replace(attr, req.ReplaceAttributes[attr])
	}
	for _, attr := range req.DeleteAttributes {
		ldapReq.Delete(attr, []string{})
	}

	return LogOperation(ctx, SubsystemLDAP, "modify", c.fields(map[string]any{
		"dn":      req.DN,
		"replace": len(req.ReplaceAttributes),
		"add":     len(req.AddAttributes),
		"delete":  len(req.DeleteAttributes),
	}), func() error {
		return WrapError("modify", req.DN, c.conn.Modify(ldapReq))
	})
}

// Delete removes an LDAP entry.
func (c *client) Delete(ctx context.Context, dn string) error {
	if dn == "" {
		return fmt.Errorf("%w: DN cannot be empty", ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return LogOperation(ctx, SubsystemLDAP, "delete", c.fields(map[string]any{"dn": dn}), func() error {
		return WrapError("delete", dn, c.conn.Del(ldap.NewDelRequest(dn, nil)))
	})
}

// sortedKeys keeps attribute order stable on the wire and in tests.
func sortedKeys(m map[string][]string) []string {
	return slices.Sorted(maps.Keys(m))
}
