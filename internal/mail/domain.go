package mail

import (
	"fmt"

	"github.com/creasty/defaults"
)

// DefaultTransport is the postfix transport assigned to new domains.
const DefaultTransport = "virtual:"

// VirtualDomain is a hosted mail domain container.
type VirtualDomain struct {
	DN   string `json:"dn,omitempty"`
	Name string `json:"name"` // jvd

	Active            bool   `json:"active" default:"true"`
	MarkedForDeletion bool   `json:"markedForDeletion"`
	EditAccounts      bool   `json:"editAccounts" default:"true"`
	EditPostmasters   bool   `json:"editPostmasters" default:"true"`
	Transport         string `json:"transport" default:"virtual:"`
	Description       string `json:"description,omitempty"`
	LastChange        int64  `json:"lastChange"`

	// Populated on request, never persisted.
	AccountCount int `json:"accountCount"`
	AliasCount   int `json:"aliasCount"`
}

// NewVirtualDomain returns an active domain with default flags and a fresh timestamp.
func NewVirtualDomain(name string) *VirtualDomain {
	d := &VirtualDomain{Name: name}
	if err := defaults.Set(d); err != nil {
		panic(fmt.Sprintf("virtual domain defaults: %v", err))
	}
	d.Touch()
	return d
}

// Touch advances LastChange, strictly increasing it.
func (d *VirtualDomain) Touch() {
	d.LastChange = nextStamp(d.LastChange)
}

// Activate makes the domain active and clears any deletion mark.
func (d *VirtualDomain) Activate() {
	d.MarkedForDeletion = false
	d.Active = true
	d.Touch()
}

// Deactivate clears the active flag.
func (d *VirtualDomain) Deactivate() {
	d.Active = false
	d.Touch()
}

// MarkForDeletion marks the domain and deactivates it.
func (d *VirtualDomain) MarkForDeletion() {
	d.MarkedForDeletion = true
	d.Active = false
	d.Touch()
}

// UnmarkForDeletion clears the deletion mark without reactivating.
func (d *VirtualDomain) UnmarkForDeletion() {
	d.MarkedForDeletion = false
	d.Touch()
}

// SetDescription replaces the description.
func (d *VirtualDomain) SetDescription(description string) {
	d.Description = description
	d.Touch()
}

func (d *VirtualDomain) String() string {
	return fmt.Sprintf("VirtualDomain{name=%s active=%t marked=%t accounts=%d aliases=%d}",
		d.Name, d.Active, d.MarkedForDeletion, d.AccountCount, d.AliasCount)
}
