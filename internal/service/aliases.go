package service

import (
	"context"
	"slices"
	"strings"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
	"github.com/fokklz/vaadin-mail-manager/internal/mail"
	"github.com/fokklz/vaadin-mail-manager/internal/repository"
)

// AliasService manages forwarding aliases, catch-alls included.
type AliasService struct {
	repos  *repository.Repositories
	events emitter
}

// Create stores a new alias below an existing domain. At least one valid
// destination is required and the address must not belong to an account.
func (s *AliasService) Create(ctx context.Context, identity ldap.Identity, address string, destinations []string, description string) (*mail.MailAlias, error) {
	address = normalizeKey(address)
	if !mail.IsValidAddress(address) {
		return nil, invalid("invalid alias address %q", address)
	}
	if s.repos.Aliases.Exists(ctx, identity, address) {
		return nil, alreadyExists("alias", address)
	}
	if s.repos.Accounts.Exists(ctx, identity, address) {
		return nil, alreadyExists("account", address)
	}

	domain := mail.ExtractDomain(address)
	if err := requireDomain(ctx, s.repos, identity, domain); err != nil {
		return nil, err
	}

	cleaned, err := cleanDestinations(destinations)
	if err != nil {
		return nil, err
	}

	a := mail.NewMailAlias(address, cleaned...)
	a.CommonName = mail.LocalPart(address)
	if desc := strings.TrimSpace(description); desc != "" {
		a.Description = desc
	}

	err = run(ctx, "create_alias", map[string]any{"mail": address, "destinations": len(cleaned)}, func() error {
		return s.repos.Aliases.Save(ctx, identity, a)
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, AliasCreated, domain, address)
	return a, nil
}

// CreateCatchAll stores the catch-all alias of domain.
func (s *AliasService) CreateCatchAll(ctx context.Context, identity ldap.Identity, domain string, destinations []string, description string) (*mail.MailAlias, error) {
	domain = normalizeKey(domain)
	if err := requireDomain(ctx, s.repos, identity, domain); err != nil {
		return nil, err
	}
	if _, ok := s.repos.Aliases.FindCatchAll(ctx, identity, domain); ok {
		return nil, alreadyExists("catch-all alias of", domain)
	}
	return s.Create(ctx, identity, "@"+domain, destinations, description)
}

// Get loads an alias.
func (s *AliasService) Get(ctx context.Context, identity ldap.Identity, address string) (*mail.MailAlias, error) {
	address = normalizeKey(address)
	a, ok := s.repos.Aliases.FindByKey(ctx, identity, address)
	if !ok {
		return nil, notFound("alias", address)
	}
	return a, nil
}

// CatchAll returns the catch-all alias of domain.
func (s *AliasService) CatchAll(ctx context.Context, identity ldap.Identity, domain string) (*mail.MailAlias, error) {
	domain = normalizeKey(domain)
	if err := requireDomain(ctx, s.repos, identity, domain); err != nil {
		return nil, err
	}
	a, ok := s.repos.Aliases.FindCatchAll(ctx, identity, domain)
	if !ok {
		return nil, notFound("catch-all alias of", domain)
	}
	return a, nil
}

// List returns the aliases of an existing domain, postmaster excluded.
func (s *AliasService) List(ctx context.Context, identity ldap.Identity, domain string) ([]*mail.MailAlias, error) {
	domain = normalizeKey(domain)
	if err := requireDomain(ctx, s.repos, identity, domain); err != nil {
		return nil, err
	}
	return s.repos.Aliases.FindByDomain(ctx, identity, domain), nil
}

// AddDestination appends destination to the alias.
func (s *AliasService) AddDestination(ctx context.Context, identity ldap.Identity, address, destination string) (*mail.MailAlias, error) {
	destination = strings.TrimSpace(destination)
	if !mail.IsValidAddress(destination) || mail.IsCatchAll(destination) {
		return nil, invalid("invalid destination %q", destination)
	}
	return s.update(ctx, identity, "add_destination", address, func(a *mail.MailAlias) error {
		a.AddDestination(destination)
		return nil
	})
}

// RemoveDestination drops destination. The last destination cannot be removed.
func (s *AliasService) RemoveDestination(ctx context.Context, identity ldap.Identity, address, destination string) (*mail.MailAlias, error) {
	destination = strings.TrimSpace(destination)
	return s.update(ctx, identity, "remove_destination", address, func(a *mail.MailAlias) error {
		if !slices.Contains(a.Destinations(), destination) {
			return notFound("destination", destination)
		}
		if !a.RemoveDestination(destination) {
			return invalidState("alias %s must keep at least one destination", a.Mail)
		}
		return nil
	})
}

// Toggle flips the active flag.
func (s *AliasService) Toggle(ctx context.Context, identity ldap.Identity, address string) (*mail.MailAlias, error) {
	return s.update(ctx, identity, "toggle_alias", address, func(a *mail.MailAlias) error {
		a.SetActive(!a.Active)
		return nil
	})
}

// Delete removes the alias.
func (s *AliasService) Delete(ctx context.Context, identity ldap.Identity, address string) error {
	a, err := s.Get(ctx, identity, address)
	if err != nil {
		return err
	}

	err = run(ctx, "delete_alias", map[string]any{"mail": a.Mail}, func() error {
		return s.repos.Aliases.Delete(ctx, identity, a)
	})
	if err != nil {
		return err
	}

	s.events.emit(ctx, AliasDeleted, a.Domain(), a.Mail)
	return nil
}

func (s *AliasService) update(ctx context.Context, identity ldap.Identity, op, address string, mutate func(*mail.MailAlias) error) (*mail.MailAlias, error) {
	a, err := s.Get(ctx, identity, address)
	if err != nil {
		return nil, err
	}
	if err := mutate(a); err != nil {
		return nil, err
	}

	err = run(ctx, op, map[string]any{"mail": a.Mail}, func() error {
		return s.repos.Aliases.Save(ctx, identity, a)
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, AliasUpdated, a.Domain(), a.Mail)
	return a, nil
}

// cleanDestinations trims, validates and de-duplicates destinations.
func cleanDestinations(destinations []string) ([]string, error) {
	cleaned := make([]string, 0, len(destinations))
	for _, d := range destinations {
		d = strings.TrimSpace(d)
		if !mail.IsValidAddress(d) || mail.IsCatchAll(d) {
			return nil, invalid("invalid destination %q", d)
		}
		if !slices.Contains(cleaned, d) {
			cleaned = append(cleaned, d)
		}
	}
	if len(cleaned) == 0 {
		return nil, invalid("an alias needs at least one destination")
	}
	return cleaned, nil
}
