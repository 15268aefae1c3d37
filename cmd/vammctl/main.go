// Command vammctl manages hosted-mail domains, accounts, aliases and
// postmasters stored in an LDAP directory.
//
// Usage:
//
//	vammctl [-config file] [-log-level lvl] [-bind-dn dn] [-json] <command> <args>
//
// The configuration file can also be set via VAMM_CONFIG. Without -bind-dn
// every operation runs as the configured administrator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/term"

	"github.com/fokklz/vaadin-mail-manager/internal/config"
	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
	"github.com/fokklz/vaadin-mail-manager/internal/logging"
	"github.com/fokklz/vaadin-mail-manager/internal/naming"
	"github.com/fokklz/vaadin-mail-manager/internal/repository"
	"github.com/fokklz/vaadin-mail-manager/internal/service"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	logLevel   string
	bindDN     string
	json       bool
}

func parseFlags(args []string) (*options, []string, error) {
	fs := flag.NewFlagSet("vammctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	opts := &options{}
	fs.StringVar(&opts.configPath, "config", os.Getenv(config.EnvConfigFile), "path to the TOML configuration file")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error, off)")
	fs.StringVar(&opts.bindDN, "bind-dn", "", "bind as this DN instead of the configured administrator (prompts for password)")
	fs.BoolVar(&opts.json, "json", false, "print results as JSON")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() == 0 {
		return nil, nil, errUsage
	}
	if opts.logLevel != "" && hclog.LevelFromString(opts.logLevel) == hclog.NoLevel {
		return nil, nil, fmt.Errorf("invalid log level %q", opts.logLevel)
	}
	return opts, fs.Args(), nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, rest, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			usage()
		}
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	level := cfg.LogLevel()
	if opts.logLevel != "" {
		level = hclog.LevelFromString(opts.logLevel)
	}
	ctx = logging.Init(ctx, level)

	factory, err := ldap.NewSessionFactory(cfg.LDAP)
	if err != nil {
		return err
	}

	var identity ldap.Identity
	if opts.bindDN != "" {
		secret, err := promptPassword("Password for " + opts.bindDN + ": ")
		if err != nil {
			return err
		}
		if err := factory.Authenticate(ctx, opts.bindDN, secret); err != nil {
			if ldap.IsAuthenticationError(err) {
				return fmt.Errorf("cannot bind as %s: invalid credentials", opts.bindDN)
			}
			return err
		}
		identity = ldap.Identity{DN: opts.bindDN, Secret: secret}
	}

	repos := repository.New(factory, naming.New(cfg.LDAP.BaseDN), repository.Options{
		DefaultOccupant: cfg.Mail.DefaultOccupant,
	})
	services := service.New(repos, service.LogNotifier{}, service.Options{
		HomeBase:       cfg.Mail.HomeBase,
		Transport:      cfg.Mail.Transport,
		PasswordScheme: cfg.Scheme(),
	})

	c := &cli{
		services: services,
		identity: identity,
		out:      stdout,
		json:     opts.json,
		prompt:   promptPassword,
	}
	return c.dispatch(ctx, rest)
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(string(raw), "\r\n"), nil
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage:
  vammctl [-config file] [-log-level lvl] [-bind-dn dn] [-json] <command> <args>

Domains:
  domain add <domain> [description]       create a domain and its postmaster
  domain list                             list domains with counts
  domain show <domain>                    show one domain
  domain del <domain>                     delete a domain and everything below it
  domain mark|unmark <domain>             flag or unflag a domain for deletion
  domain activate|deactivate <domain>     enable or disable a domain
  domain purge                            delete every domain flagged for deletion

Accounts:
  account add [-home dir] [-quota q] <address> [description]
                                          create an account (prompts for password)
  account passwd <address>                change the password (prompts)
  account quota <address> <quota>         set the quota, e.g. 500M
  account list <domain> [term]            list or search accounts
  account del <address>                   delete an account

Aliases:
  alias add <address|@domain> <dest>...   create an alias or catch-all
  alias list <domain>                     list aliases
  alias del <address>                     delete an alias

Postmasters:
  postmaster grant <domain> <dn>          allow dn to administer domain
  postmaster revoke <domain> <dn>         revoke dn
  postmaster list <domain>                list the DNs administering domain
  postmaster domains <dn>                 list the domains dn administers

  verify <address>                        check an account password (prompts)

The configuration file can also be set via VAMM_CONFIG.
`)
}
