package mail

import (
	"fmt"
	"strings"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
	"github.com/fokklz/vaadin-mail-manager/internal/password"
)

// MailAccount is a mailbox owner.
type MailAccount struct {
	DN                string `json:"dn,omitempty"`
	Mail              string `json:"mail"`
	HomeDirectory     string `json:"homeDirectory"`
	Mailbox           string `json:"mailbox"`
	Active            bool   `json:"active"`
	MarkedForDeletion bool   `json:"markedForDeletion"`
	UIDNumber         *int   `json:"uidNumber,omitempty"`
	GIDNumber         *int   `json:"gidNumber,omitempty"`
	UID               string `json:"uid,omitempty"`
	CommonName        string `json:"cn,omitempty"`
	Description       string `json:"description,omitempty"`
	Quota             string `json:"quota,omitempty"`
	Password          string `json:"-"` // userPassword, scheme-prefixed
	ClearPassword     string `json:"-"`
	LastChange        int64  `json:"lastChange"`
}

// NewMailAccount returns an active account with a fresh timestamp.
func NewMailAccount(address, homeDirectory, mailbox string) *MailAccount {
	a := &MailAccount{
		Mail:          address,
		HomeDirectory: homeDirectory,
		Mailbox:       mailbox,
		Active:        true,
	}
	a.Touch()
	return a
}

// Touch advances LastChange, strictly increasing it.
func (a *MailAccount) Touch() {
	a.LastChange = nextStamp(a.LastChange)
}

// Domain returns the part of the address after '@'.
func (a *MailAccount) Domain() string {
	return ExtractDomain(a.Mail)
}

// AccountName returns the part of the address before '@'.
func (a *MailAccount) AccountName() string {
	if at := strings.Index(a.Mail, "@"); at >= 0 {
		return a.Mail[:at]
	}
	return a.Mail
}

// MailboxPath returns the full path to the mailbox, or "" if unset.
func (a *MailAccount) MailboxPath() string {
	return MailboxPath(a.HomeDirectory, a.Mailbox)
}

// SetPassword stores plain with the default scheme and keeps the clear copy.
func (a *MailAccount) SetPassword(plain string) error {
	return a.SetPasswordWithScheme(plain, password.Default)
}

// SetPasswordWithScheme stores plain hashed with scheme and keeps the clear copy.
func (a *MailAccount) SetPasswordWithScheme(plain string, scheme password.Scheme) error {
	if plain == "" {
		return password.ErrEmptyPassword
	}
	hashed, err := password.Hash(scheme, plain)
	if err != nil {
		return err
	}
	a.ClearPassword = plain
	a.Password = hashed
	a.Touch()
	return nil
}

// VerifyPassword checks plain against the stored hash.
func (a *MailAccount) VerifyPassword(plain string) bool {
	return password.Verify(a.Password, plain)
}

// SetActive toggles the account.
func (a *MailAccount) SetActive(active bool) {
	a.Active = active
	a.Touch()
}

// MarkForDeletion flags the account for removal and deactivates it.
func (a *MailAccount) MarkForDeletion() {
	a.MarkedForDeletion = true
	a.Active = false
	a.Touch()
}

// Restore clears the deletion mark and reactivates the account.
func (a *MailAccount) Restore() {
	a.MarkedForDeletion = false
	a.Active = true
	a.Touch()
}

// SetQuota validates and stores the quota.
func (a *MailAccount) SetQuota(quota string) error {
	if !IsValidQuota(quota) {
		return fmt.Errorf("%w: invalid quota %q", ldap.ErrInvalidArgument, quota)
	}
	a.Quota = strings.TrimSpace(quota)
	a.Touch()
	return nil
}

func (a *MailAccount) String() string {
	return fmt.Sprintf("MailAccount{mail=%s active=%t marked=%t cn=%s mailbox=%s}",
		a.Mail, a.Active, a.MarkedForDeletion, a.CommonName, a.Mailbox)
}
