package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
	"github.com/fokklz/vaadin-mail-manager/internal/password"
)

func env(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vamm.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "ldap://localhost:389", cfg.LDAP.URL)
	assert.Equal(t, "dc=example,dc=com", cfg.LDAP.BaseDN)
	assert.Equal(t, 5*time.Second, cfg.LDAP.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.LDAP.ReadTimeout)
	assert.Equal(t, "/var/vmail", cfg.Mail.HomeBase)
	assert.Equal(t, "cn=admin,o=hosting,dc=example,dc=com", cfg.Mail.DefaultOccupant)
	assert.Equal(t, "virtual:", cfg.Mail.Transport)
	assert.Equal(t, password.SSHA, cfg.Scheme())
	assert.Equal(t, hclog.Info, cfg.LogLevel())
	assert.NoError(t, cfg.Validate())
}

func TestLoadWith_File(t *testing.T) {
	path := writeConfig(t, `
[ldap]
url = "ldaps://ldap.example.org:636"
base_dn = "dc=example,dc=org"
connect_timeout = "2s"
read_timeout = "1m"
admin_dn = "cn=manager,dc=example,dc=org"
admin_password = "s3cret"
skip_tls_verify = true

[mail]
home_base = "/srv/mail"
default_occupant = "cn=manager,o=hosting,dc=example,dc=org"
password_scheme = "argon2"

[log]
level = "debug"
`)

	cfg, err := LoadWith(path, env(nil))
	require.NoError(t, err)

	assert.Equal(t, "ldaps://ldap.example.org:636", cfg.LDAP.URL)
	assert.Equal(t, "dc=example,dc=org", cfg.LDAP.BaseDN)
	assert.Equal(t, 2*time.Second, cfg.LDAP.ConnectTimeout)
	assert.Equal(t, time.Minute, cfg.LDAP.ReadTimeout)
	assert.Equal(t, "cn=manager,dc=example,dc=org", cfg.LDAP.AdminDN)
	assert.Equal(t, "s3cret", cfg.LDAP.AdminPassword)
	assert.True(t, cfg.LDAP.SkipTLSVerify)
	assert.False(t, cfg.LDAP.StartTLS)
	assert.Equal(t, "/srv/mail", cfg.Mail.HomeBase)
	assert.Equal(t, "virtual:", cfg.Mail.Transport, "absent keys keep their default")
	assert.Equal(t, password.Argon2, cfg.Scheme())
	assert.Equal(t, hclog.Debug, cfg.LogLevel())
}

func TestLoadWith_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[ldap]
url = "ldap://file:389"
read_timeout = "30s"
`)

	cfg, err := LoadWith(path, env(map[string]string{
		EnvLDAPURL:         "ldap://env:389",
		EnvReadTimeout:     "45s",
		EnvStartTLS:        "true",
		EnvAdminPassword:   " padded ",
		EnvPasswordScheme:  "{CRYPT}",
		EnvDefaultOccupant: "cn=ops,dc=example,dc=com",
	}))
	require.NoError(t, err)

	assert.Equal(t, "ldap://env:389", cfg.LDAP.URL)
	assert.Equal(t, 45*time.Second, cfg.LDAP.ReadTimeout)
	assert.True(t, cfg.LDAP.StartTLS)
	assert.Equal(t, "padded", cfg.LDAP.AdminPassword)
	assert.Equal(t, password.Crypt, cfg.Scheme())
	assert.Equal(t, "cn=ops,dc=example,dc=com", cfg.Mail.DefaultOccupant)
}

func TestLoadWith_NoFile(t *testing.T) {
	cfg, err := LoadWith("", env(map[string]string{EnvLDAPBaseDN: "dc=corp,dc=local"}))
	require.NoError(t, err)
	assert.Equal(t, "dc=corp,dc=local", cfg.LDAP.BaseDN)

	cfg, err = LoadWith("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWith_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		env     map[string]string
		invalid bool
	}{
		{name: "unknown key", file: "[ldap]\nhost = \"x\"\n", invalid: true},
		{name: "syntax", file: "[ldap\nurl = 1\n"},
		{name: "bad file duration", file: "[ldap]\nconnect_timeout = \"soon\"\n", invalid: true},
		{name: "bad env duration", env: map[string]string{EnvConnectTimeout: "5"}, invalid: true},
		{name: "bad env bool", env: map[string]string{EnvStartTLS: "maybe"}, invalid: true},
		{name: "negative timeout", env: map[string]string{EnvReadTimeout: "-1s"}, invalid: true},
		{name: "bad base DN", env: map[string]string{EnvLDAPBaseDN: "not a dn"}, invalid: true},
		{name: "bad scheme", env: map[string]string{EnvPasswordScheme: "rot13"}, invalid: true},
		{name: "bad log level", env: map[string]string{EnvLogLevel: "loud"}, invalid: true},
		{name: "bad occupant", env: map[string]string{EnvDefaultOccupant: "admin"}, invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.file != "" {
				path = writeConfig(t, tt.file)
			}
			_, err := LoadWith(path, env(tt.env))
			require.Error(t, err)
			if tt.invalid {
				assert.ErrorIs(t, err, ldap.ErrInvalidArgument)
			}
		})
	}
}

func TestLoadWith_MissingFile(t *testing.T) {
	_, err := LoadWith(filepath.Join(t.TempDir(), "absent.toml"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate_MissingLDAP(t *testing.T) {
	cfg := Default()
	cfg.LDAP = nil
	assert.ErrorIs(t, cfg.Validate(), ldap.ErrInvalidArgument)
}
