package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
	"github.com/fokklz/vaadin-mail-manager/internal/ldap/ldaptest"
	"github.com/fokklz/vaadin-mail-manager/internal/naming"
	"github.com/fokklz/vaadin-mail-manager/internal/repository"
	"github.com/fokklz/vaadin-mail-manager/internal/service"
)

const testBaseDN = "dc=example,dc=com"

func newTestCLI(t *testing.T, passwords ...string) (*cli, *bytes.Buffer) {
	t.Helper()
	dir := ldaptest.NewDirectory(testBaseDN)
	repos := repository.New(dir, naming.New(testBaseDN), repository.Options{})
	out := &bytes.Buffer{}
	return &cli{
		services: service.New(repos, service.NotifierFunc(func(context.Context, service.Event) {}), service.Options{}),
		identity: ldap.Identity{TestMode: true},
		out:      out,
		prompt: func(string) (string, error) {
			if len(passwords) == 0 {
				return "", errors.New("no input")
			}
			next := passwords[0]
			passwords = passwords[1:]
			return next, nil
		},
	}, out
}

func TestParseFlags(t *testing.T) {
	t.Setenv("VAMM_CONFIG", "/etc/vamm.toml")

	tests := []struct {
		name     string
		args     []string
		wantErr  bool
		wantRest []string
		check    func(t *testing.T, o *options)
	}{
		{
			name:     "defaults from environment",
			args:     []string{"domain", "list"},
			wantRest: []string{"domain", "list"},
			check: func(t *testing.T, o *options) {
				assert.Equal(t, "/etc/vamm.toml", o.configPath)
				assert.Empty(t, o.bindDN)
				assert.False(t, o.json)
			},
		},
		{
			name:     "explicit flags",
			args:     []string{"-config", "local.toml", "-log-level", "debug", "-json", "-bind-dn", "cn=bob,dc=example,dc=com", "alias", "list", "example.com"},
			wantRest: []string{"alias", "list", "example.com"},
			check: func(t *testing.T, o *options) {
				assert.Equal(t, "local.toml", o.configPath)
				assert.Equal(t, "debug", o.logLevel)
				assert.Equal(t, "cn=bob,dc=example,dc=com", o.bindDN)
				assert.True(t, o.json)
			},
		},
		{name: "no command", args: []string{"-json"}, wantErr: true},
		{name: "bad log level", args: []string{"-log-level", "loud", "domain", "list"}, wantErr: true},
		{name: "unknown flag", args: []string{"-nope", "domain", "list"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, rest, err := parseFlags(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRest, rest)
			tt.check(t, opts)
		})
	}
}

func TestDispatch_DomainWorkflow(t *testing.T) {
	c, out := newTestCLI(t)
	ctx := context.Background()

	require.NoError(t, c.dispatch(ctx, []string{"domain", "add", "example.com", "Main", "site"}))
	assert.Contains(t, out.String(), `Added domain "example.com"`)

	out.Reset()
	require.NoError(t, c.dispatch(ctx, []string{"domain", "list"}))
	assert.Contains(t, out.String(), "DOMAIN")
	assert.Contains(t, out.String(), "example.com")
	assert.Contains(t, out.String(), "Main site")

	out.Reset()
	require.NoError(t, c.dispatch(ctx, []string{"domain", "mark", "example.com"}))
	assert.Contains(t, out.String(), "active=false marked=true")

	err := c.dispatch(ctx, []string{"domain", "mark", "example.com"})
	assert.ErrorIs(t, err, service.ErrInvalidState)

	out.Reset()
	require.NoError(t, c.dispatch(ctx, []string{"domain", "purge"}))
	assert.Contains(t, out.String(), `Purged domain "example.com"`)

	err = c.dispatch(ctx, []string{"domain", "show", "example.com"})
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestDispatch_AccountsAndVerify(t *testing.T) {
	c, out := newTestCLI(t, "s3cret", "s3cret", "s3cret", "wrong")
	ctx := context.Background()

	require.NoError(t, c.dispatch(ctx, []string{"domain", "add", "example.com"}))

	out.Reset()
	require.NoError(t, c.dispatch(ctx, []string{"account", "add", "alice@example.com"}))
	assert.Contains(t, out.String(), "/var/vmail/example.com/alice/")

	out.Reset()
	require.NoError(t, c.dispatch(ctx, []string{"verify", "alice@example.com"}))
	assert.Contains(t, out.String(), "OK: alice@example.com")

	assert.Error(t, c.dispatch(ctx, []string{"verify", "alice@example.com"}))

	out.Reset()
	require.NoError(t, c.dispatch(ctx, []string{"account", "list", "example.com"}))
	assert.Contains(t, out.String(), "alice@example.com")

	require.NoError(t, c.dispatch(ctx, []string{"account", "del", "alice@example.com"}))

	out.Reset()
	require.NoError(t, c.dispatch(ctx, []string{"account", "list", "example.com"}))
	assert.Contains(t, out.String(), "no accounts")
}

func TestDispatch_AccountAddFlags(t *testing.T) {
	c, out := newTestCLI(t, "s3cret", "s3cret")
	ctx := context.Background()
	require.NoError(t, c.dispatch(ctx, []string{"domain", "add", "example.com"}))

	out.Reset()
	require.NoError(t, c.dispatch(ctx, []string{"account", "add", "-home", "/data/alice", "-quota", "1G", "alice@example.com", "Alice"}))
	assert.Contains(t, out.String(), "(mailbox: /data/alice/)")

	account, err := c.services.Accounts.Get(ctx, c.identity, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "1G", account.Quota)
	assert.Equal(t, "Alice", account.Description)

	assert.Error(t, c.dispatch(ctx, []string{"account", "add", "-quota", "1G"}))
	assert.Error(t, c.dispatch(ctx, []string{"account", "add", "-size", "1G", "bob@example.com"}))
}

func TestDispatch_PasswordMismatch(t *testing.T) {
	c, _ := newTestCLI(t, "one", "two")
	ctx := context.Background()
	require.NoError(t, c.dispatch(ctx, []string{"domain", "add", "example.com"}))

	err := c.dispatch(ctx, []string{"account", "add", "bob@example.com"})
	assert.EqualError(t, err, "passwords do not match")
}

func TestDispatch_AliasJSON(t *testing.T) {
	c, out := newTestCLI(t)
	ctx := context.Background()
	require.NoError(t, c.dispatch(ctx, []string{"domain", "add", "example.com"}))

	c.json = true
	out.Reset()
	require.NoError(t, c.dispatch(ctx, []string{"alias", "add", "@example.com", "ops@other.org"}))

	var created alias
	require.NoError(t, json.Unmarshal(out.Bytes(), &created))
	assert.Equal(t, "@example.com", created.Mail)
	assert.True(t, created.CatchAll)
	assert.Equal(t, []string{"ops@other.org"}, created.Destinations)

	out.Reset()
	require.NoError(t, c.dispatch(ctx, []string{"alias", "list", "example.com"}))

	var listed []alias
	require.NoError(t, json.Unmarshal(out.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "@example.com", listed[0].Mail)
}

func TestDispatch_Postmasters(t *testing.T) {
	c, out := newTestCLI(t)
	ctx := context.Background()
	require.NoError(t, c.dispatch(ctx, []string{"domain", "add", "example.com"}))

	const bob = "cn=bob,o=hosting,dc=example,dc=com"
	require.NoError(t, c.dispatch(ctx, []string{"postmaster", "grant", "example.com", bob}))

	out.Reset()
	require.NoError(t, c.dispatch(ctx, []string{"postmaster", "list", "example.com"}))
	assert.Contains(t, out.String(), bob)

	out.Reset()
	require.NoError(t, c.dispatch(ctx, []string{"postmaster", "domains", bob}))
	assert.Equal(t, "example.com\n", out.String())

	require.NoError(t, c.dispatch(ctx, []string{"postmaster", "revoke", "example.com", bob}))
}

func TestDispatch_Usage(t *testing.T) {
	c, _ := newTestCLI(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"mailbox"}},
		{"unknown domain command", []string{"domain", "rename"}},
		{"missing domain argument", []string{"domain", "del"}},
		{"extra verify argument", []string{"verify", "a@example.com", "b@example.com"}},
		{"alias without destination", []string{"alias", "add", "a@example.com"}},
		{"postmaster grant without dn", []string{"postmaster", "grant", "example.com"}},
		{"account list with too many args", []string{"account", "list", "example.com", "a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, c.dispatch(ctx, tt.args))
		})
	}
}
