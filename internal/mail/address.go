// Package mail holds the hosted-mail entities stored in the directory and the
// grammar rules for addresses, domains and quotas.
package mail

import (
	"regexp"
	"strings"
)

// CatchAllName is reported as the local part of a catch-all address.
const CatchAllName = "catch-all"

var (
	domainPattern = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)
	quotaPattern  = regexp.MustCompile(`^\d+[KMG]?$`)
)

// ExtractDomain returns everything after the first '@', or "" when address has none.
func ExtractDomain(address string) string {
	at := strings.Index(address, "@")
	if at < 0 {
		return ""
	}
	return address[at+1:]
}

// LocalPart returns the part before the first '@'. Catch-all addresses
// ("@domain") report CatchAllName; addresses without '@' are returned unchanged.
func LocalPart(address string) string {
	if IsCatchAll(address) {
		return CatchAllName
	}
	at := strings.Index(address, "@")
	if at < 0 {
		return address
	}
	return address[:at]
}

// IsCatchAll reports whether address is of the form "@domain".
func IsCatchAll(address string) bool {
	return strings.HasPrefix(address, "@")
}

// IsValidAddress accepts "user@domain" with exactly one '@' and non-blank
// parts, and the catch-all form "@domain".
func IsValidAddress(address string) bool {
	if IsCatchAll(address) {
		rest := address[1:]
		return strings.TrimSpace(rest) != "" && !strings.Contains(rest, "@")
	}
	if strings.TrimSpace(address) == "" {
		return false
	}

	user, domain, ok := strings.Cut(address, "@")
	if !ok || user == "" || domain == "" || strings.Contains(domain, "@") {
		return false
	}
	return strings.TrimSpace(user) != "" && strings.TrimSpace(domain) != ""
}

// IsValidDomain checks a fully qualified domain name such as "example.com"
// or "mail.example.co.uk".
func IsValidDomain(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	return domainPattern.MatchString(name)
}

// IsValidQuota accepts an empty quota or digits with an optional K, M or G unit.
func IsValidQuota(quota string) bool {
	if strings.TrimSpace(quota) == "" {
		return true
	}
	return quotaPattern.MatchString(quota)
}

// MailboxPath joins a home directory and mailbox name, or returns "" if either is unset.
func MailboxPath(home, mailbox string) string {
	if home == "" || mailbox == "" {
		return ""
	}
	return home + "/" + mailbox
}
