package repository

import (
	"strconv"

	goldap "github.com/go-ldap/ldap/v3"

	"github.com/fokklz/vaadin-mail-manager/internal/mail"
	"github.com/fokklz/vaadin-mail-manager/internal/naming"
)

// Object classes of the mail schema.
const (
	ClassTop           = "top"
	ClassVirtualDomain = "JammVirtualDomain"
	ClassMailAccount   = "JammMailAccount"
	ClassMailAlias     = "JammMailAlias"
	ClassPostmaster    = "JammPostmaster"
)

// Attribute names.
const (
	attrDomain          = "jvd"
	attrMail            = "mail"
	attrActive          = "accountActive"
	attrDelete          = "delete"
	attrEditAccounts    = "editAccounts"
	attrEditPostmasters = "editPostmasters"
	attrTransport       = "postfixTransport"
	attrDescription     = "description"
	attrLastChange      = "lastChange"
	attrHomeDirectory   = "homeDirectory"
	attrMailbox         = "mailbox"
	attrUIDNumber       = "uidNumber"
	attrGIDNumber       = "gidNumber"
	attrUID             = "uid"
	attrCommonName      = "cn"
	attrQuota           = "quota"
	attrUserPassword    = "userPassword"
	attrClearPassword   = "clearPassword"
	attrMaildrop        = "maildrop"
	attrMailSource      = "mailsource"
	attrRoleOccupant    = "roleOccupant"
)

// Filters selecting each entity kind.
const (
	domainFilter     = "(objectClass=" + ClassVirtualDomain + ")"
	accountFilter    = "(objectClass=" + ClassMailAccount + ")"
	aliasFilter      = "(&(objectClass=" + ClassMailAlias + ")(!(objectClass=" + ClassPostmaster + ")))"
	postmasterFilter = "(objectClass=" + ClassPostmaster + ")"
)

var (
	domainAttributes = []string{
		attrDomain, attrActive, attrDelete, attrEditAccounts, attrEditPostmasters,
		attrTransport, attrDescription, attrLastChange,
	}
	accountAttributes = []string{
		attrMail, attrHomeDirectory, attrMailbox, attrActive, attrDelete, attrUIDNumber,
		attrGIDNumber, attrUID, attrCommonName, attrDescription, attrQuota,
		attrUserPassword, attrClearPassword, attrLastChange,
	}
	aliasAttributes = []string{
		attrMail, attrMaildrop, attrActive, attrMailSource, attrCommonName,
		attrDescription, attrUserPassword, attrLastChange,
	}
	postmasterAttributes = append(append([]string{}, aliasAttributes...), attrRoleOccupant)
)

// attributeSet collects non-empty attribute values.
type attributeSet map[string][]string

func (a attributeSet) set(name, value string) {
	if value != "" {
		a[name] = []string{value}
	}
}

func (a attributeSet) setAll(name string, values []string) {
	if len(values) > 0 {
		a[name] = values
	}
}

func (a attributeSet) setInt(name string, value *int) {
	if value != nil {
		a[name] = []string{strconv.Itoa(*value)}
	}
}

func domainRecord(d *mail.VirtualDomain) *record {
	attrs := attributeSet{}
	attrs.set(attrDomain, d.Name)
	attrs.set(attrActive, mail.FormatBool(d.Active))
	attrs.set(attrDelete, mail.FormatBool(d.MarkedForDeletion))
	attrs.set(attrEditAccounts, mail.FormatBool(d.EditAccounts))
	attrs.set(attrEditPostmasters, mail.FormatBool(d.EditPostmasters))
	attrs.set(attrTransport, d.Transport)
	attrs.set(attrDescription, d.Description)
	attrs.set(attrLastChange, mail.FormatEpoch(d.LastChange))

	return &record{
		dn:            d.DN,
		rdnAttribute:  attrDomain,
		objectClasses: []string{ClassTop, ClassVirtualDomain},
		filter:        domainFilter,
		attributes:    attrs,
		optional:      []string{attrTransport, attrDescription},
	}
}

func entryToDomain(entry *goldap.Entry) *mail.VirtualDomain {
	return &mail.VirtualDomain{
		DN:                entry.DN,
		Name:              entry.GetAttributeValue(attrDomain),
		Active:            mail.ParseBool(entry.GetAttributeValue(attrActive)),
		MarkedForDeletion: mail.ParseBool(entry.GetAttributeValue(attrDelete)),
		EditAccounts:      mail.ParseBool(entry.GetAttributeValue(attrEditAccounts)),
		EditPostmasters:   mail.ParseBool(entry.GetAttributeValue(attrEditPostmasters)),
		Transport:         entry.GetAttributeValue(attrTransport),
		Description:       entry.GetAttributeValue(attrDescription),
		LastChange:        mail.ParseEpoch(entry.GetAttributeValue(attrLastChange)),
	}
}

func accountRecord(a *mail.MailAccount) *record {
	attrs := attributeSet{}
	attrs.set(attrMail, a.Mail)
	attrs.set(attrHomeDirectory, a.HomeDirectory)
	attrs.set(attrMailbox, a.Mailbox)
	attrs.set(attrActive, mail.FormatBool(a.Active))
	attrs.set(attrDelete, mail.FormatBool(a.MarkedForDeletion))
	attrs.setInt(attrUIDNumber, a.UIDNumber)
	attrs.setInt(attrGIDNumber, a.GIDNumber)
	attrs.set(attrUID, a.UID)
	attrs.set(attrCommonName, a.CommonName)
	attrs.set(attrDescription, a.Description)
	attrs.set(attrQuota, a.Quota)
	attrs.set(attrUserPassword, a.Password)
	attrs.set(attrClearPassword, a.ClearPassword)
	attrs.set(attrLastChange, mail.FormatEpoch(a.LastChange))

	return &record{
		dn:            a.DN,
		rdnAttribute:  attrMail,
		objectClasses: []string{ClassTop, ClassMailAccount},
		filter:        accountFilter,
		attributes:    attrs,
		optional: []string{
			attrUIDNumber, attrGIDNumber, attrUID, attrCommonName, attrDescription,
			attrQuota, attrUserPassword, attrClearPassword,
		},
	}
}

func entryToAccount(entry *goldap.Entry) *mail.MailAccount {
	return &mail.MailAccount{
		DN:                entry.DN,
		Mail:              entry.GetAttributeValue(attrMail),
		HomeDirectory:     entry.GetAttributeValue(attrHomeDirectory),
		Mailbox:           entry.GetAttributeValue(attrMailbox),
		Active:            mail.ParseBool(entry.GetAttributeValue(attrActive)),
		MarkedForDeletion: mail.ParseBool(entry.GetAttributeValue(attrDelete)),
		UIDNumber:         parseInt(entry.GetAttributeValue(attrUIDNumber)),
		GIDNumber:         parseInt(entry.GetAttributeValue(attrGIDNumber)),
		UID:               entry.GetAttributeValue(attrUID),
		CommonName:        entry.GetAttributeValue(attrCommonName),
		Description:       entry.GetAttributeValue(attrDescription),
		Quota:             entry.GetAttributeValue(attrQuota),
		Password:          entry.GetAttributeValue(attrUserPassword),
		ClearPassword:     entry.GetAttributeValue(attrClearPassword),
		LastChange:        mail.ParseEpoch(entry.GetAttributeValue(attrLastChange)),
	}
}

func routingAttributes(r *mail.Routing) attributeSet {
	attrs := attributeSet{}
	attrs.set(attrMail, r.Mail)
	attrs.setAll(attrMaildrop, r.Destinations())
	attrs.set(attrActive, mail.FormatBool(r.Active))
	attrs.set(attrMailSource, r.Source)
	attrs.set(attrCommonName, r.CommonName)
	attrs.set(attrDescription, r.Description)
	attrs.set(attrUserPassword, r.Password)
	attrs.set(attrLastChange, mail.FormatEpoch(r.LastChange))
	return attrs
}

// entryToRouting fills r from entry. LastChange is assigned last because
// setting the destinations stamps the value.
func entryToRouting(entry *goldap.Entry, r *mail.Routing) {
	r.Mail = entry.GetAttributeValue(attrMail)
	r.SetDestinations(entry.GetAttributeValues(attrMaildrop))
	r.Active = mail.ParseBool(entry.GetAttributeValue(attrActive))
	r.Source = entry.GetAttributeValue(attrMailSource)
	r.CommonName = entry.GetAttributeValue(attrCommonName)
	r.Description = entry.GetAttributeValue(attrDescription)
	r.Password = entry.GetAttributeValue(attrUserPassword)
	r.LastChange = mail.ParseEpoch(entry.GetAttributeValue(attrLastChange))
}

func aliasRecord(a *mail.MailAlias) *record {
	return &record{
		dn:            a.DN,
		rdnAttribute:  attrMail,
		objectClasses: []string{ClassTop, ClassMailAlias},
		filter:        aliasFilter,
		attributes:    routingAttributes(&a.Routing),
		optional:      []string{attrMailSource, attrCommonName, attrDescription, attrUserPassword},
	}
}

func entryToAlias(entry *goldap.Entry) *mail.MailAlias {
	a := &mail.MailAlias{DN: entry.DN}
	entryToRouting(entry, &a.Routing)
	return a
}

func postmasterRecord(p *mail.Postmaster) *record {
	attrs := routingAttributes(&p.Routing)
	attrs.setAll(attrRoleOccupant, p.RoleOccupants())

	return &record{
		dn:            p.DN,
		rdnAttribute:  attrCommonName,
		objectClasses: []string{ClassTop, ClassMailAlias, ClassPostmaster},
		filter:        postmasterFilter,
		attributes:    attrs,
		optional:      []string{attrMailSource, attrDescription, attrUserPassword},
	}
}

func entryToPostmaster(entry *goldap.Entry, defaultOccupant string) *mail.Postmaster {
	p := &mail.Postmaster{DN: entry.DN}
	p.SetRoleOccupants(entry.GetAttributeValues(attrRoleOccupant), defaultOccupant)
	entryToRouting(entry, &p.Routing)
	if p.Mail == "" {
		// Written without mail by other tooling; the DN still names the domain.
		if domain, ok := naming.DomainOf(entry.DN); ok {
			p.Mail = mail.PostmasterName + "@" + domain
		}
	}
	return p
}

func parseInt(s string) *int {
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}
