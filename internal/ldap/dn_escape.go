package ldap

import (
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// EscapeDNValue escapes special characters in a DN attribute value according to RFC 4514.
//
// Examples:
//   - "info@example.com" → "info@example.com" (no change)
//   - "Doe, John" → "Doe\, John"
//   - "#123" → "\#123"
func EscapeDNValue(value string) string {
	return ldap.EscapeDN(value)
}

// filterEscapes maps the filter metacharacters onto their RFC 4515 escaped form.
var filterEscapes = strings.NewReplacer(
	`\`, `\5c`,
	`*`, `\2a`,
	`(`, `\28`,
	`)`, `\29`,
	"\x00", `\00`,
)

// EscapeFilterTerm escapes `*`, `(`, `)`, backslash and NUL in a free-text search term
// so it can be embedded in an equality or substring filter assertion.
// Each one is written in the RFC 4515 hex form (`*` becomes `\2a`), not as a
// backslash followed by the character: go-ldap's filter compiler only accepts
// two hex digits after a backslash. Other characters, including non-ASCII
// text, pass through unchanged.
func EscapeFilterTerm(term string) string {
	if term == "" {
		return term
	}
	return filterEscapes.Replace(term)
}

// RDNValue returns the unescaped value of the leftmost RDN of dn whose
// attribute type matches attr (case-insensitively).
func RDNValue(dn, attr string) (string, bool) {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", false
	}
	for _, rdn := range parsed.RDNs {
		for _, atv := range rdn.Attributes {
			if strings.EqualFold(atv.Type, attr) {
				return atv.Value, true
			}
		}
	}
	return "", false
}

// EqualDN compares two DNs the way the directory does: attribute types and
// values case-insensitively, ignoring insignificant whitespace. Values that do
// not parse fall back to a case-insensitive string compare.
func EqualDN(a, b string) bool {
	pa, errA := ldap.ParseDN(a)
	pb, errB := ldap.ParseDN(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return pa.EqualFold(pb)
}
