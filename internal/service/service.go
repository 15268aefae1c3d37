// Package service implements the mail management flows on top of the
// repositories: validation, existence checks, default entities, cascades and
// change notifications. Every method runs with the identity passed in.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
	"github.com/fokklz/vaadin-mail-manager/internal/mail"
	"github.com/fokklz/vaadin-mail-manager/internal/password"
	"github.com/fokklz/vaadin-mail-manager/internal/repository"
)

// Errors returned by the services; all of them match the ldap sentinels.
var (
	ErrNotFound      = ldap.ErrNotFound
	ErrAlreadyExists = ldap.ErrAlreadyExists
	ErrInvalidState  = fmt.Errorf("%w: invalid state", ldap.ErrInvalidArgument)
)

// Options carries the hosting defaults applied to new entities.
type Options struct {
	HomeBase       string
	Transport      string
	PasswordScheme password.Scheme
}

// Services groups the management services sharing one set of repositories.
type Services struct {
	Domains     *DomainService
	Accounts    *AccountService
	Aliases     *AliasService
	Postmasters *PostmasterService
}

// New wires the services. A nil notifier logs events.
func New(repos *repository.Repositories, notifier Notifier, opts Options) *Services {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if opts.HomeBase == "" {
		opts.HomeBase = "/var/vmail"
	}
	if opts.Transport == "" {
		opts.Transport = mail.DefaultTransport
	}
	if opts.PasswordScheme == "" {
		opts.PasswordScheme = password.Default
	}

	events := emitter{notifier: notifier}
	return &Services{
		Domains:     &DomainService{repos: repos, events: events, opts: opts},
		Accounts:    &AccountService{repos: repos, events: events, opts: opts},
		Aliases:     &AliasService{repos: repos, events: events},
		Postmasters: &PostmasterService{repos: repos},
	}
}

func notFound(kind, key string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, key)
}

func alreadyExists(kind, key string) error {
	return fmt.Errorf("%w: %s %s", ErrAlreadyExists, kind, key)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ldap.ErrInvalidArgument}, args...)...)
}

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidState}, args...)...)
}

// requireDomain fails with ErrNotFound unless the domain exists.
func requireDomain(ctx context.Context, repos *repository.Repositories, identity ldap.Identity, domain string) error {
	if !repos.Domains.Exists(ctx, identity, domain) {
		return notFound("domain", domain)
	}
	return nil
}

func normalizeKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func run(ctx context.Context, op string, fields map[string]any, fn func() error) error {
	return ldap.LogOperation(ctx, ldap.SubsystemService, op, fields, fn)
}
