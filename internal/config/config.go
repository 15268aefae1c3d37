// Package config assembles the runtime configuration from struct-tag
// defaults, an optional TOML file and VAMM_* environment variables, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/hashicorp/go-hclog"
	"github.com/pelletier/go-toml/v2"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
	"github.com/fokklz/vaadin-mail-manager/internal/password"
)

// Environment variables read by Load.
const (
	EnvConfigFile      = "VAMM_CONFIG"
	EnvLDAPURL         = "VAMM_LDAP_URL"
	EnvLDAPBaseDN      = "VAMM_LDAP_BASE_DN"
	EnvConnectTimeout  = "VAMM_LDAP_CONNECT_TIMEOUT"
	EnvReadTimeout     = "VAMM_LDAP_READ_TIMEOUT"
	EnvAdminDN         = "VAMM_LDAP_ADMIN_DN"
	EnvAdminPassword   = "VAMM_LDAP_ADMIN_PASSWORD"
	EnvStartTLS        = "VAMM_LDAP_START_TLS"
	EnvSkipTLSVerify   = "VAMM_LDAP_SKIP_TLS_VERIFY"
	EnvHomeBase        = "VAMM_MAIL_HOME_BASE"
	EnvDefaultOccupant = "VAMM_MAIL_DEFAULT_OCCUPANT"
	EnvTransport       = "VAMM_MAIL_TRANSPORT"
	EnvPasswordScheme  = "VAMM_MAIL_PASSWORD_SCHEME"
	EnvLogLevel        = "VAMM_LOG_LEVEL"
)

// MailConfig holds the hosting defaults applied to new entities.
type MailConfig struct {
	HomeBase        string `default:"/var/vmail"`
	DefaultOccupant string `default:"cn=admin,o=hosting,dc=example,dc=com"`
	Transport       string `default:"virtual:"`
	PasswordScheme  string `default:"SSHA"`
}

// LogConfig selects the root log level.
type LogConfig struct {
	Level string `default:"info"`
}

// Config is the complete runtime configuration.
type Config struct {
	LDAP *ldap.ConnectionConfig
	Mail MailConfig
	Log  LogConfig
}

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{LDAP: ldap.DefaultConfig()}
	if err := defaults.Set(&cfg.Mail); err != nil {
		panic(fmt.Sprintf("invalid mail config defaults: %v", err))
	}
	if err := defaults.Set(&cfg.Log); err != nil {
		panic(fmt.Sprintf("invalid log config defaults: %v", err))
	}
	return cfg
}

// Load reads path (skipped when empty) and the process environment.
func Load(path string) (*Config, error) {
	return LoadWith(path, os.LookupEnv)
}

// LoadWith is Load with an explicit environment.
func LoadWith(path string, lookup LookupFunc) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		defer f.Close()

		var file fileConfig
		if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(&file); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, describeDecodeError(err))
		}
		if err := file.apply(cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.LDAP == nil {
		return fmt.Errorf("%w: missing ldap section", ldap.ErrInvalidArgument)
	}
	if err := c.LDAP.Validate(); err != nil {
		return err
	}
	if c.Mail.HomeBase == "" {
		return fmt.Errorf("%w: mail home base is required", ldap.ErrInvalidArgument)
	}
	if c.Mail.Transport == "" {
		return fmt.Errorf("%w: mail transport is required", ldap.ErrInvalidArgument)
	}
	if _, err := ldap.NormalizeDN(c.Mail.DefaultOccupant); err != nil {
		return fmt.Errorf("default postmaster occupant: %w", err)
	}
	if _, err := password.ParseScheme(c.Mail.PasswordScheme); err != nil {
		return err
	}
	if c.LogLevel() == hclog.NoLevel {
		return fmt.Errorf("%w: unknown log level %q", ldap.ErrInvalidArgument, c.Log.Level)
	}
	return nil
}

// Scheme returns the configured password scheme, SSHA when unparsable.
func (c *Config) Scheme() password.Scheme {
	scheme, err := password.ParseScheme(c.Mail.PasswordScheme)
	if err != nil {
		return password.Default
	}
	return scheme
}

// LogLevel returns the configured root log level.
func (c *Config) LogLevel() hclog.Level {
	return hclog.LevelFromString(c.Log.Level)
}

// fileConfig mirrors the TOML layout. Durations are strings because the
// decoder has no native duration type.
type fileConfig struct {
	LDAP ldapSection `toml:"ldap"`
	Mail mailSection `toml:"mail"`
	Log  logSection  `toml:"log"`
}

type ldapSection struct {
	URL            string `toml:"url"`
	BaseDN         string `toml:"base_dn"`
	ConnectTimeout string `toml:"connect_timeout"`
	ReadTimeout    string `toml:"read_timeout"`
	AdminDN        string `toml:"admin_dn"`
	AdminPassword  string `toml:"admin_password"`
	StartTLS       *bool  `toml:"start_tls"`
	SkipTLSVerify  *bool  `toml:"skip_tls_verify"`
}

type mailSection struct {
	HomeBase        string `toml:"home_base"`
	DefaultOccupant string `toml:"default_occupant"`
	Transport       string `toml:"transport"`
	PasswordScheme  string `toml:"password_scheme"`
}

type logSection struct {
	Level string `toml:"level"`
}

// apply copies every value present in the file over cfg.
func (f *fileConfig) apply(cfg *Config) error {
	l := cfg.LDAP
	setString(&l.URL, f.LDAP.URL)
	setString(&l.BaseDN, f.LDAP.BaseDN)
	setString(&l.AdminDN, f.LDAP.AdminDN)
	setString(&l.AdminPassword, f.LDAP.AdminPassword)
	if err := setDuration(&l.ConnectTimeout, "ldap.connect_timeout", f.LDAP.ConnectTimeout); err != nil {
		return err
	}
	if err := setDuration(&l.ReadTimeout, "ldap.read_timeout", f.LDAP.ReadTimeout); err != nil {
		return err
	}
	if f.LDAP.StartTLS != nil {
		l.StartTLS = *f.LDAP.StartTLS
	}
	if f.LDAP.SkipTLSVerify != nil {
		l.SkipTLSVerify = *f.LDAP.SkipTLSVerify
	}

	setString(&cfg.Mail.HomeBase, f.Mail.HomeBase)
	setString(&cfg.Mail.DefaultOccupant, f.Mail.DefaultOccupant)
	setString(&cfg.Mail.Transport, f.Mail.Transport)
	setString(&cfg.Mail.PasswordScheme, f.Mail.PasswordScheme)
	setString(&cfg.Log.Level, f.Log.Level)
	return nil
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	get := func(key string) string {
		if lookup == nil {
			return ""
		}
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	l := cfg.LDAP
	setString(&l.URL, get(EnvLDAPURL))
	setString(&l.BaseDN, get(EnvLDAPBaseDN))
	setString(&l.AdminDN, get(EnvAdminDN))
	setString(&l.AdminPassword, get(EnvAdminPassword))
	setString(&cfg.Mail.HomeBase, get(EnvHomeBase))
	setString(&cfg.Mail.DefaultOccupant, get(EnvDefaultOccupant))
	setString(&cfg.Mail.Transport, get(EnvTransport))
	setString(&cfg.Mail.PasswordScheme, get(EnvPasswordScheme))
	setString(&cfg.Log.Level, get(EnvLogLevel))

	return errors.Join(
		setDuration(&l.ConnectTimeout, EnvConnectTimeout, get(EnvConnectTimeout)),
		setDuration(&l.ReadTimeout, EnvReadTimeout, get(EnvReadTimeout)),
		setBool(&l.StartTLS, EnvStartTLS, get(EnvStartTLS)),
		setBool(&l.SkipTLSVerify, EnvSkipTLSVerify, get(EnvSkipTLSVerify)),
	)
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setDuration(dst *time.Duration, name, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ldap.ErrInvalidArgument, name, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, name, value string) error {
	if value == "" {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ldap.ErrInvalidArgument, name, err)
	}
	*dst = b
	return nil
}

// describeDecodeError adds the position of TOML syntax errors.
func describeDecodeError(err error) error {
	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		row, col := decodeErr.Position()
		return fmt.Errorf("line %d column %d: %w", row, col, err)
	}
	var strictErr *toml.StrictMissingError
	if errors.As(err, &strictErr) {
		return fmt.Errorf("%w: %s", ldap.ErrInvalidArgument, strictErr.String())
	}
	return err
}
