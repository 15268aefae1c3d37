package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
)

// EventKind names what changed inside a domain.
type EventKind string

const (
	AccountCreated EventKind = "account_created"
	AccountUpdated EventKind = "account_updated"
	AccountDeleted EventKind = "account_deleted"
	AliasCreated   EventKind = "alias_created"
	AliasUpdated   EventKind = "alias_updated"
	AliasDeleted   EventKind = "alias_deleted"
	DomainCreated  EventKind = "domain_created"
	DomainUpdated  EventKind = "domain_updated"
	DomainDeleted  EventKind = "domain_deleted"
)

// Event is emitted after every successful mutation.
type Event struct {
	ID     string    `json:"id"`
	Kind   EventKind `json:"kind"`
	Domain string    `json:"domain"`
	// Key is the address of the changed account or alias, or the domain name.
	Key  string    `json:"key"`
	Time time.Time `json:"time"`
}

// Notifier receives change events. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, event Event) {
	f(ctx, event)
}

// LogNotifier writes every event to the service log subsystem.
type LogNotifier struct{}

// Notify logs event.
func (LogNotifier) Notify(ctx context.Context, event Event) {
	tflog.SubsystemInfo(ctx, ldap.SubsystemService, "Domain content changed", map[string]any{
		"event_id": event.ID,
		"kind":     string(event.Kind),
		"domain":   event.Domain,
		"key":      event.Key,
	})
}

type emitter struct {
	notifier Notifier
}

func (e emitter) emit(ctx context.Context, kind EventKind, domain, key string) {
	e.notifier.Notify(ctx, Event{
		ID:     uuid.NewString(),
		Kind:   kind,
		Domain: domain,
		Key:    key,
		Time:   time.Now().UTC(),
	})
}
