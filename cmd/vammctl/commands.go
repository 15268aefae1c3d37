package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
	"github.com/fokklz/vaadin-mail-manager/internal/mail"
	"github.com/fokklz/vaadin-mail-manager/internal/service"
)

var errUsage = errors.New("missing command")

type cli struct {
	services *service.Services
	identity ldap.Identity
	out      io.Writer
	json     bool
	prompt   func(string) (string, error)
}

func (c *cli) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "domain":
		return c.domain(ctx, rest)
	case "account":
		return c.account(ctx, rest)
	case "alias":
		return c.alias(ctx, rest)
	case "postmaster":
		return c.postmaster(ctx, rest)
	case "verify":
		if err := want(rest, 1, "verify <address>"); err != nil {
			return err
		}
		return c.verify(ctx, rest[0])
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func (c *cli) domain(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: domain add|list|show|del|mark|unmark|activate|deactivate|purge")
	}
	sub, args := args[0], args[1:]
	d := c.services.Domains

	switch sub {
	case "add":
		if len(args) < 1 {
			return errors.New("usage: domain add <domain> [description]")
		}
		created, err := d.Create(ctx, c.identity, args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		return c.printf(created, "Added domain %q\n", created.Name)

	case "list":
		return c.domains(d.ListWithStatistics(ctx, c.identity))

	case "show":
		if err := want(args, 1, "domain show <domain>"); err != nil {
			return err
		}
		found, err := d.Get(ctx, c.identity, args[0])
		if err != nil {
			return err
		}
		return c.domains([]*mail.VirtualDomain{found})

	case "del":
		if err := want(args, 1, "domain del <domain>"); err != nil {
			return err
		}
		if err := d.Delete(ctx, c.identity, args[0]); err != nil {
			return err
		}
		return c.printf(nil, "Deleted domain %q\n", args[0])

	case "mark", "unmark", "activate", "deactivate":
		if err := want(args, 1, "domain "+sub+" <domain>"); err != nil {
			return err
		}
		change := map[string]func(context.Context, ldap.Identity, string) (*mail.VirtualDomain, error){
			"mark":       d.MarkForDeletion,
			"unmark":     d.Unmark,
			"activate":   d.Activate,
			"deactivate": d.Deactivate,
		}[sub]
		updated, err := change(ctx, c.identity, args[0])
		if err != nil {
			return err
		}
		return c.printf(updated, "Domain %q: active=%t marked=%t\n", updated.Name, updated.Active, updated.MarkedForDeletion)

	case "purge":
		purged, err := d.PurgeMarked(ctx, c.identity)
		if c.json {
			if jerr := c.encode(purged); jerr != nil {
				return jerr
			}
		} else {
			for _, name := range purged {
				fmt.Fprintf(c.out, "Purged domain %q\n", name)
			}
		}
		return err

	default:
		return fmt.Errorf("unknown domain command: %s", sub)
	}
}

func (c *cli) account(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: account add|passwd|quota|list|del")
	}
	sub, args := args[0], args[1:]
	a := c.services.Accounts

	switch sub {
	case "add":
		fs := flag.NewFlagSet("account add", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		home := fs.String("home", "", "home directory")
		quota := fs.String("quota", "", "quota, e.g. 500M")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if args = fs.Args(); len(args) < 1 {
			return errors.New("usage: account add [-home dir] [-quota q] <address> [description]")
		}
		secret, err := c.newPassword()
		if err != nil {
			return err
		}
		created, err := a.Create(ctx, c.identity, args[0], secret, strings.Join(args[1:], " "),
			service.WithHomeDirectory(*home), service.WithQuota(*quota))
		if err != nil {
			return err
		}
		return c.printf(created, "Added account %q (mailbox: %s)\n", created.Mail, created.Mailbox)

	case "passwd":
		if err := want(args, 1, "account passwd <address>"); err != nil {
			return err
		}
		secret, err := c.newPassword()
		if err != nil {
			return err
		}
		updated, err := a.ChangePassword(ctx, c.identity, args[0], secret)
		if err != nil {
			return err
		}
		return c.printf(updated, "Changed password of %q\n", updated.Mail)

	case "quota":
		if err := want(args, 2, "account quota <address> <quota>"); err != nil {
			return err
		}
		updated, err := a.SetQuota(ctx, c.identity, args[0], args[1])
		if err != nil {
			return err
		}
		return c.printf(updated, "Quota of %q set to %s\n", updated.Mail, updated.Quota)

	case "list":
		if len(args) < 1 || len(args) > 2 {
			return errors.New("usage: account list <domain> [term]")
		}
		var accounts []*mail.MailAccount
		if len(args) == 2 {
			accounts = a.Search(ctx, c.identity, args[0], args[1])
		} else {
			var err error
			if accounts, err = a.List(ctx, c.identity, args[0]); err != nil {
				return err
			}
		}
		return c.accounts(accounts)

	case "del":
		if err := want(args, 1, "account del <address>"); err != nil {
			return err
		}
		if err := a.Delete(ctx, c.identity, args[0]); err != nil {
			return err
		}
		return c.printf(nil, "Deleted account %q\n", args[0])

	default:
		return fmt.Errorf("unknown account command: %s", sub)
	}
}

func (c *cli) alias(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: alias add|list|del")
	}
	sub, args := args[0], args[1:]
	a := c.services.Aliases

	switch sub {
	case "add":
		if len(args) < 2 {
			return errors.New("usage: alias add <address|@domain> <destination>...")
		}
		var (
			created *mail.MailAlias
			err     error
		)
		if mail.IsCatchAll(args[0]) {
			created, err = a.CreateCatchAll(ctx, c.identity, strings.TrimPrefix(args[0], "@"), args[1:], "")
		} else {
			created, err = a.Create(ctx, c.identity, args[0], args[1:], "")
		}
		if err != nil {
			return err
		}
		return c.printf(aliasView(created), "Added alias %q -> %s\n", created.Mail, strings.Join(created.Destinations(), ", "))

	case "list":
		if err := want(args, 1, "alias list <domain>"); err != nil {
			return err
		}
		aliases, err := a.List(ctx, c.identity, args[0])
		if err != nil {
			return err
		}
		return c.aliases(aliases)

	case "del":
		if err := want(args, 1, "alias del <address>"); err != nil {
			return err
		}
		if err := a.Delete(ctx, c.identity, args[0]); err != nil {
			return err
		}
		return c.printf(nil, "Deleted alias %q\n", args[0])

	default:
		return fmt.Errorf("unknown alias command: %s", sub)
	}
}

func (c *cli) postmaster(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: postmaster grant|revoke|list|domains")
	}
	sub, args := args[0], args[1:]
	p := c.services.Postmasters

	switch sub {
	case "grant":
		if err := want(args, 2, "postmaster grant <domain> <dn>"); err != nil {
			return err
		}
		if err := p.Grant(ctx, c.identity, args[0], args[1]); err != nil {
			return err
		}
		return c.printf(nil, "Granted %q on %q\n", args[1], args[0])

	case "revoke":
		if err := want(args, 2, "postmaster revoke <domain> <dn>"); err != nil {
			return err
		}
		if err := p.Revoke(ctx, c.identity, args[0], args[1]); err != nil {
			return err
		}
		return c.printf(nil, "Revoked %q on %q\n", args[1], args[0])

	case "list":
		if err := want(args, 1, "postmaster list <domain>"); err != nil {
			return err
		}
		occupants, err := p.Occupants(ctx, c.identity, args[0])
		if err != nil {
			return err
		}
		return c.lines(occupants)

	case "domains":
		if err := want(args, 1, "postmaster domains <dn>"); err != nil {
			return err
		}
		return c.lines(p.DomainsFor(ctx, c.identity, args[0]))

	default:
		return fmt.Errorf("unknown postmaster command: %s", sub)
	}
}

func (c *cli) verify(ctx context.Context, address string) error {
	secret, err := c.prompt("Password: ")
	if err != nil {
		return err
	}
	if !c.services.Accounts.VerifyPassword(ctx, c.identity, address, secret) {
		return fmt.Errorf("password mismatch for %q", address)
	}
	fmt.Fprintf(c.out, "OK: %s\n", address)
	return nil
}

func (c *cli) newPassword() (string, error) {
	secret, err := c.prompt("Password: ")
	if err != nil {
		return "", err
	}
	confirm, err := c.prompt("Confirm password: ")
	if err != nil {
		return "", err
	}
	if secret != confirm {
		return "", errors.New("passwords do not match")
	}
	return secret, nil
}

// printf prints v as JSON in -json mode and the formatted message otherwise.
// A nil v prints nothing in JSON mode.
func (c *cli) printf(v any, format string, args ...any) error {
	if c.json {
		if v == nil {
			return nil
		}
		return c.encode(v)
	}
	_, err := fmt.Fprintf(c.out, format, args...)
	return err
}

func (c *cli) encode(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) domains(domains []*mail.VirtualDomain) error {
	if c.json {
		return c.encode(domains)
	}
	if len(domains) == 0 {
		_, err := fmt.Fprintln(c.out, "no domains")
		return err
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DOMAIN\tACTIVE\tMARKED\tACCOUNTS\tALIASES\tDESCRIPTION")
	for _, d := range domains {
		fmt.Fprintf(w, "%s\t%t\t%t\t%d\t%d\t%s\n", d.Name, d.Active, d.MarkedForDeletion, d.AccountCount, d.AliasCount, d.Description)
	}
	return w.Flush()
}

func (c *cli) accounts(accounts []*mail.MailAccount) error {
	if c.json {
		return c.encode(accounts)
	}
	if len(accounts) == 0 {
		_, err := fmt.Fprintln(c.out, "no accounts")
		return err
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tACTIVE\tQUOTA\tMAILBOX")
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", a.Mail, a.Active, orDash(a.Quota), a.Mailbox)
	}
	return w.Flush()
}

func (c *cli) aliases(aliases []*mail.MailAlias) error {
	if c.json {
		views := make([]alias, 0, len(aliases))
		for _, a := range aliases {
			views = append(views, aliasView(a))
		}
		return c.encode(views)
	}
	if len(aliases) == 0 {
		_, err := fmt.Fprintln(c.out, "no aliases")
		return err
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tACTIVE\tDESTINATIONS")
	for _, a := range aliases {
		fmt.Fprintf(w, "%s\t%t\t%s\n", a.Mail, a.Active, strings.Join(a.Destinations(), ","))
	}
	return w.Flush()
}

func (c *cli) lines(values []string) error {
	if c.json {
		if values == nil {
			values = []string{}
		}
		return c.encode(values)
	}
	for _, v := range values {
		if _, err := fmt.Fprintln(c.out, v); err != nil {
			return err
		}
	}
	return nil
}

// alias is the JSON shape of a MailAlias; destinations are not exported on
// the entity itself.
type alias struct {
	Mail         string   `json:"mail"`
	Active       bool     `json:"active"`
	CatchAll     bool     `json:"catchAll"`
	Destinations []string `json:"destinations"`
	Description  string   `json:"description,omitempty"`
	LastChange   int64    `json:"lastChange"`
}

func aliasView(a *mail.MailAlias) alias {
	return alias{
		Mail:         a.Mail,
		Active:       a.Active,
		CatchAll:     a.IsCatchAll(),
		Destinations: a.Destinations(),
		Description:  a.Description,
		LastChange:   a.LastChange,
	}
}

func want(args []string, n int, usage string) error {
	if len(args) != n {
		return fmt.Errorf("usage: %s (got %d arguments)", usage, len(args))
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
