package service

import (
	"context"
	"path"
	"strings"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
	"github.com/fokklz/vaadin-mail-manager/internal/mail"
	"github.com/fokklz/vaadin-mail-manager/internal/repository"
)

// AccountService manages mailbox accounts.
type AccountService struct {
	repos  *repository.Repositories
	events emitter
	opts   Options
}

// AccountOption adjusts a new account before Create stores it.
type AccountOption func(*mail.MailAccount) error

// WithHomeDirectory replaces the derived home directory. The mailbox is the
// home directory with a trailing slash. Blank keeps the default.
func WithHomeDirectory(dir string) AccountOption {
	return func(a *mail.MailAccount) error {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			return nil
		}
		a.HomeDirectory = dir
		a.Mailbox = strings.TrimSuffix(dir, "/") + "/"
		return nil
	}
}

// WithQuota sets the initial quota. Blank leaves the account unlimited.
func WithQuota(quota string) AccountOption {
	return func(a *mail.MailAccount) error {
		if strings.TrimSpace(quota) == "" {
			return nil
		}
		return a.SetQuota(quota)
	}
}

// Create stores a new active account below an existing domain. The home
// directory is <home base>/<domain>/<local part> unless an option replaces
// it; a blank password leaves the account without credentials.
func (s *AccountService) Create(ctx context.Context, identity ldap.Identity, address, plain, description string, opts ...AccountOption) (*mail.MailAccount, error) {
	address = normalizeKey(address)
	if !mail.IsValidAddress(address) || mail.IsCatchAll(address) {
		return nil, invalid("invalid account address %q", address)
	}
	if s.repos.Accounts.Exists(ctx, identity, address) {
		return nil, alreadyExists("account", address)
	}
	if s.repos.Aliases.Exists(ctx, identity, address) {
		return nil, alreadyExists("alias", address)
	}

	domain := mail.ExtractDomain(address)
	if err := requireDomain(ctx, s.repos, identity, domain); err != nil {
		return nil, err
	}

	local := mail.LocalPart(address)
	home := path.Join(s.opts.HomeBase, domain, local)
	a := mail.NewMailAccount(address, home, home+"/")
	a.CommonName = local
	a.UID = local
	if desc := strings.TrimSpace(description); desc != "" {
		a.Description = desc
	}
	if strings.TrimSpace(plain) != "" {
		if err := a.SetPasswordWithScheme(plain, s.opts.PasswordScheme); err != nil {
			return nil, err
		}
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}

	err := run(ctx, "create_account", map[string]any{"mail": address}, func() error {
		return s.repos.Accounts.Save(ctx, identity, a)
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, AccountCreated, domain, address)
	return a, nil
}

// Get loads an account.
func (s *AccountService) Get(ctx context.Context, identity ldap.Identity, address string) (*mail.MailAccount, error) {
	address = normalizeKey(address)
	a, ok := s.repos.Accounts.FindByKey(ctx, identity, address)
	if !ok {
		return nil, notFound("account", address)
	}
	return a, nil
}

// List returns the accounts of an existing domain.
func (s *AccountService) List(ctx context.Context, identity ldap.Identity, domain string) ([]*mail.MailAccount, error) {
	domain = normalizeKey(domain)
	if err := requireDomain(ctx, s.repos, identity, domain); err != nil {
		return nil, err
	}
	return s.repos.Accounts.FindByDomain(ctx, identity, domain), nil
}

// Search returns accounts of domain whose address contains term.
func (s *AccountService) Search(ctx context.Context, identity ldap.Identity, domain, term string) []*mail.MailAccount {
	return s.repos.Accounts.SearchByDomain(ctx, identity, normalizeKey(domain), strings.TrimSpace(term))
}

// ChangePassword hashes plain with the configured scheme.
func (s *AccountService) ChangePassword(ctx context.Context, identity ldap.Identity, address, plain string) (*mail.MailAccount, error) {
	if strings.TrimSpace(plain) == "" {
		return nil, invalid("password cannot be empty")
	}
	return s.update(ctx, identity, "change_password", address, func(a *mail.MailAccount) error {
		return a.SetPasswordWithScheme(plain, s.opts.PasswordScheme)
	})
}

// SetQuota validates and stores quota; blank removes the limit.
func (s *AccountService) SetQuota(ctx context.Context, identity ldap.Identity, address, quota string) (*mail.MailAccount, error) {
	if !mail.IsValidQuota(quota) {
		return nil, invalid("invalid quota %q", quota)
	}
	return s.update(ctx, identity, "set_quota", address, func(a *mail.MailAccount) error {
		return a.SetQuota(quota)
	})
}

// Toggle flips the active flag.
func (s *AccountService) Toggle(ctx context.Context, identity ldap.Identity, address string) (*mail.MailAccount, error) {
	return s.update(ctx, identity, "toggle_account", address, func(a *mail.MailAccount) error {
		a.SetActive(!a.Active)
		return nil
	})
}

// MarkForDeletion flags and deactivates the account.
func (s *AccountService) MarkForDeletion(ctx context.Context, identity ldap.Identity, address string) (*mail.MailAccount, error) {
	return s.update(ctx, identity, "mark_account", address, func(a *mail.MailAccount) error {
		a.MarkForDeletion()
		return nil
	})
}

// Restore clears the deletion flag and reactivates the account.
func (s *AccountService) Restore(ctx context.Context, identity ldap.Identity, address string) (*mail.MailAccount, error) {
	return s.update(ctx, identity, "restore_account", address, func(a *mail.MailAccount) error {
		a.Restore()
		return nil
	})
}

// Delete removes the account.
func (s *AccountService) Delete(ctx context.Context, identity ldap.Identity, address string) error {
	a, err := s.Get(ctx, identity, address)
	if err != nil {
		return err
	}

	err = run(ctx, "delete_account", map[string]any{"mail": a.Mail}, func() error {
		return s.repos.Accounts.Delete(ctx, identity, a)
	})
	if err != nil {
		return err
	}

	s.events.emit(ctx, AccountDeleted, a.Domain(), a.Mail)
	return nil
}

// VerifyPassword reports whether plain matches the stored password. Unknown
// accounts never verify.
func (s *AccountService) VerifyPassword(ctx context.Context, identity ldap.Identity, address, plain string) bool {
	a, err := s.Get(ctx, identity, address)
	if err != nil {
		return false
	}
	return a.VerifyPassword(plain)
}

func (s *AccountService) update(ctx context.Context, identity ldap.Identity, op, address string, mutate func(*mail.MailAccount) error) (*mail.MailAccount, error) {
	a, err := s.Get(ctx, identity, address)
	if err != nil {
		return nil, err
	}
	if err := mutate(a); err != nil {
		return nil, err
	}

	err = run(ctx, op, map[string]any{"mail": a.Mail}, func() error {
		return s.repos.Accounts.Save(ctx, identity, a)
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, AccountUpdated, a.Domain(), a.Mail)
	return a, nil
}
