package mail

import (
	"fmt"
	"slices"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
)

// Postmaster defaults.
const (
	PostmasterName        = "postmaster"
	DefaultRoleOccupant   = "cn=admin,o=hosting,dc=example,dc=com"
	postmasterDestination = "postmaster"
)

// Postmaster is the per-domain postmaster alias together with the DNs
// allowed to administer the domain.
type Postmaster struct {
	Routing
	DN string `json:"dn,omitempty"`

	roleOccupants []string
}

// NewPostmaster returns the default postmaster of domain. An empty
// defaultOccupant falls back to DefaultRoleOccupant.
func NewPostmaster(domain, defaultOccupant string) *Postmaster {
	p := &Postmaster{
		Routing: Routing{
			Mail:         PostmasterName + "@" + domain,
			Active:       true,
			CommonName:   PostmasterName,
			destinations: []string{postmasterDestination},
		},
		roleOccupants: []string{occupantOrDefault(defaultOccupant)},
	}
	p.Touch()
	return p
}

// RoleOccupants returns a copy of the occupant DNs.
func (p *Postmaster) RoleOccupants() []string {
	return slices.Clone(p.roleOccupants)
}

// SetRoleOccupants replaces the occupants. The list never ends up empty: an
// empty input resets it to defaultOccupant.
func (p *Postmaster) SetRoleOccupants(occupants []string, defaultOccupant string) {
	if len(occupants) == 0 {
		p.roleOccupants = []string{occupantOrDefault(defaultOccupant)}
	} else {
		p.roleOccupants = slices.Clone(occupants)
	}
	p.Touch()
}

// AddRoleOccupant adds dn unless an equal DN is already present.
func (p *Postmaster) AddRoleOccupant(dn string) {
	if p.IsRoleOccupant(dn) {
		return
	}
	p.roleOccupants = append(p.roleOccupants, dn)
	p.Touch()
}

// RemoveRoleOccupant removes dn. It returns false when dn is not an occupant
// or is the last one.
func (p *Postmaster) RemoveRoleOccupant(dn string) bool {
	if len(p.roleOccupants) <= 1 {
		return false
	}
	i := slices.IndexFunc(p.roleOccupants, func(o string) bool { return ldap.EqualDN(o, dn) })
	if i < 0 {
		return false
	}
	p.roleOccupants = slices.Delete(p.roleOccupants, i, i+1)
	p.Touch()
	return true
}

// IsRoleOccupant compares DNs case-insensitively.
func (p *Postmaster) IsRoleOccupant(dn string) bool {
	return slices.ContainsFunc(p.roleOccupants, func(o string) bool { return ldap.EqualDN(o, dn) })
}

func (p *Postmaster) String() string {
	return fmt.Sprintf("Postmaster{mail=%s active=%t occupants=%d destinations=%d}",
		p.Mail, p.Active, len(p.roleOccupants), len(p.destinations))
}

func occupantOrDefault(dn string) string {
	if dn == "" {
		return DefaultRoleOccupant
	}
	return dn
}
