package mail

import (
	"fmt"
	"slices"
)

// Routing is the forwarding state shared by aliases and postmasters.
type Routing struct {
	Mail        string `json:"mail"`
	Active      bool   `json:"active"`
	Source      string `json:"mailsource,omitempty"`
	CommonName  string `json:"cn,omitempty"`
	Description string `json:"description,omitempty"`
	Password    string `json:"-"`
	LastChange  int64  `json:"lastChange"`

	destinations []string
}

// Touch advances LastChange, strictly increasing it.
func (r *Routing) Touch() {
	r.LastChange = nextStamp(r.LastChange)
}

// Domain returns the part of the address after '@'.
func (r *Routing) Domain() string {
	return ExtractDomain(r.Mail)
}

// LocalPart returns the address local part, or CatchAllName for catch-alls.
func (r *Routing) LocalPart() string {
	return LocalPart(r.Mail)
}

// IsCatchAll reports whether this routes every unknown address of the domain.
func (r *Routing) IsCatchAll() bool {
	return IsCatchAll(r.Mail)
}

// Destinations returns a copy of the maildrop list.
func (r *Routing) Destinations() []string {
	return slices.Clone(r.destinations)
}

// SetDestinations replaces the maildrop list with a copy of destinations.
func (r *Routing) SetDestinations(destinations []string) {
	r.destinations = slices.Clone(destinations)
	r.Touch()
}

// AddDestination appends destination unless already present.
func (r *Routing) AddDestination(destination string) {
	if slices.Contains(r.destinations, destination) {
		return
	}
	r.destinations = append(r.destinations, destination)
	r.Touch()
}

// RemoveDestination drops destination. It returns false if destination is
// absent or is the only one left.
func (r *Routing) RemoveDestination(destination string) bool {
	i := slices.Index(r.destinations, destination)
	if i < 0 || len(r.destinations) <= 1 {
		return false
	}
	r.destinations = slices.Delete(r.destinations, i, i+1)
	r.Touch()
	return true
}

// SetActive toggles the routing.
func (r *Routing) SetActive(active bool) {
	r.Active = active
	r.Touch()
}

// MailAlias forwards an address (or a whole domain, for catch-alls) to destinations.
type MailAlias struct {
	Routing
	DN string `json:"dn,omitempty"`
}

// NewMailAlias returns an active alias with a fresh timestamp.
func NewMailAlias(address string, destinations ...string) *MailAlias {
	a := &MailAlias{Routing: Routing{
		Mail:         address,
		Active:       true,
		destinations: slices.Clone(destinations),
	}}
	a.Touch()
	return a
}

func (a *MailAlias) String() string {
	return fmt.Sprintf("MailAlias{mail=%s destinations=%d active=%t cn=%s}",
		a.Mail, len(a.destinations), a.Active, a.CommonName)
}
