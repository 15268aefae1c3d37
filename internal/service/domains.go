package service

import (
	"context"
	"errors"
	"strings"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
	"github.com/fokklz/vaadin-mail-manager/internal/mail"
	"github.com/fokklz/vaadin-mail-manager/internal/repository"
)

// DomainService manages virtual domains.
type DomainService struct {
	repos  *repository.Repositories
	events emitter
	opts   Options
}

// Create stores a new active domain together with its default postmaster.
func (s *DomainService) Create(ctx context.Context, identity ldap.Identity, name, description string) (*mail.VirtualDomain, error) {
	name = normalizeKey(name)
	if !mail.IsValidDomain(name) {
		return nil, invalid("invalid domain name %q", name)
	}
	if s.repos.Domains.Exists(ctx, identity, name) {
		return nil, alreadyExists("domain", name)
	}

	d := mail.NewVirtualDomain(name)
	d.Transport = s.opts.Transport
	if desc := strings.TrimSpace(description); desc != "" {
		d.SetDescription(desc)
	}

	err := run(ctx, "create_domain", map[string]any{"domain": name}, func() error {
		if err := s.repos.Domains.Save(ctx, identity, d); err != nil {
			return err
		}
		postmaster := mail.NewPostmaster(name, s.repos.Postmasters.DefaultOccupant())
		postmaster.Description = "Default postmaster for " + name
		return s.repos.Postmasters.Save(ctx, identity, postmaster)
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, DomainCreated, name, name)
	return d, nil
}

// Get returns the domain with its account and alias counts.
func (s *DomainService) Get(ctx context.Context, identity ldap.Identity, name string) (*mail.VirtualDomain, error) {
	d, err := s.find(ctx, identity, name)
	if err != nil {
		return nil, err
	}
	return s.repos.Domains.WithStatistics(ctx, identity, d), nil
}

// List returns every domain without statistics.
func (s *DomainService) List(ctx context.Context, identity ldap.Identity) []*mail.VirtualDomain {
	return s.repos.Domains.FindAll(ctx, identity)
}

// ListWithStatistics returns every domain with counts populated.
func (s *DomainService) ListWithStatistics(ctx context.Context, identity ldap.Identity) []*mail.VirtualDomain {
	domains := s.repos.Domains.FindAll(ctx, identity)
	for _, d := range domains {
		s.repos.Domains.WithStatistics(ctx, identity, d)
	}
	return domains
}

// Count returns the number of domains.
func (s *DomainService) Count(ctx context.Context, identity ldap.Identity) int {
	return s.repos.Domains.Count(ctx, identity)
}

// Activate enables an inactive domain.
func (s *DomainService) Activate(ctx context.Context, identity ldap.Identity, name string) (*mail.VirtualDomain, error) {
	return s.update(ctx, identity, "activate_domain", name, func(d *mail.VirtualDomain) error {
		if d.Active {
			return invalidState("domain %s is already active", d.Name)
		}
		d.Activate()
		return nil
	})
}

// Deactivate disables an active domain.
func (s *DomainService) Deactivate(ctx context.Context, identity ldap.Identity, name string) (*mail.VirtualDomain, error) {
	return s.update(ctx, identity, "deactivate_domain", name, func(d *mail.VirtualDomain) error {
		if !d.Active {
			return invalidState("domain %s is already inactive", d.Name)
		}
		d.Deactivate()
		return nil
	})
}

// Toggle flips the active flag.
func (s *DomainService) Toggle(ctx context.Context, identity ldap.Identity, name string) (*mail.VirtualDomain, error) {
	return s.update(ctx, identity, "toggle_domain", name, func(d *mail.VirtualDomain) error {
		if d.Active {
			d.Deactivate()
		} else {
			d.Activate()
		}
		return nil
	})
}

// MarkForDeletion flags the domain for a later purge and deactivates it.
func (s *DomainService) MarkForDeletion(ctx context.Context, identity ldap.Identity, name string) (*mail.VirtualDomain, error) {
	return s.update(ctx, identity, "mark_domain", name, func(d *mail.VirtualDomain) error {
		if d.MarkedForDeletion {
			return invalidState("domain %s is already marked for deletion", d.Name)
		}
		d.MarkForDeletion()
		return nil
	})
}

// Unmark clears the deletion flag. The domain stays inactive.
func (s *DomainService) Unmark(ctx context.Context, identity ldap.Identity, name string) (*mail.VirtualDomain, error) {
	return s.update(ctx, identity, "unmark_domain", name, func(d *mail.VirtualDomain) error {
		if !d.MarkedForDeletion {
			return invalidState("domain %s is not marked for deletion", d.Name)
		}
		d.UnmarkForDeletion()
		return nil
	})
}

// UpdateDescription replaces the description; blank clears it.
func (s *DomainService) UpdateDescription(ctx context.Context, identity ldap.Identity, name, description string) (*mail.VirtualDomain, error) {
	return s.update(ctx, identity, "describe_domain", name, func(d *mail.VirtualDomain) error {
		d.SetDescription(strings.TrimSpace(description))
		return nil
	})
}

// Delete removes the domain and everything below it.
func (s *DomainService) Delete(ctx context.Context, identity ldap.Identity, name string) error {
	name = normalizeKey(name)
	if !s.repos.Domains.Exists(ctx, identity, name) {
		return notFound("domain", name)
	}

	err := run(ctx, "delete_domain", map[string]any{"domain": name}, func() error {
		return s.repos.Domains.DeleteCascade(ctx, identity, name)
	})
	if err != nil {
		return err
	}

	s.events.emit(ctx, DomainDeleted, name, name)
	return nil
}

// PurgeMarked deletes every domain marked for deletion and returns the names
// removed. Failures do not stop the purge; they are joined into the error.
func (s *DomainService) PurgeMarked(ctx context.Context, identity ldap.Identity) ([]string, error) {
	var (
		purged []string
		errs   []error
	)
	for _, d := range s.repos.Domains.FindMarkedForDeletion(ctx, identity) {
		if err := s.Delete(ctx, identity, d.Name); err != nil {
			errs = append(errs, err)
			continue
		}
		purged = append(purged, d.Name)
	}
	return purged, errors.Join(errs...)
}

func (s *DomainService) find(ctx context.Context, identity ldap.Identity, name string) (*mail.VirtualDomain, error) {
	name = normalizeKey(name)
	d, ok := s.repos.Domains.FindByName(ctx, identity, name)
	if !ok {
		return nil, notFound("domain", name)
	}
	return d, nil
}

func (s *DomainService) update(ctx context.Context, identity ldap.Identity, op, name string, mutate func(*mail.VirtualDomain) error) (*mail.VirtualDomain, error) {
	d, err := s.find(ctx, identity, name)
	if err != nil {
		return nil, err
	}
	if err := mutate(d); err != nil {
		return nil, err
	}

	err = run(ctx, op, map[string]any{"domain": d.Name}, func() error {
		return s.repos.Domains.Save(ctx, identity, d)
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, DomainUpdated, d.Name, d.Name)
	return d, nil
}
