package ldap

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// NormalizeDN parses dn and rebuilds it in a canonical spelling: lowercase
// attribute types, no insignificant whitespace and values re-escaped per
// RFC 4514. Value case is preserved.
//
// Input:  " CN=Jane Doe , O=hosting,DC=example,DC=com"
// Output: "cn=Jane Doe,o=hosting,dc=example,dc=com"
func NormalizeDN(dn string) (string, error) {
	dn = strings.TrimSpace(dn)
	if dn == "" {
		return "", fmt.Errorf("%w: DN cannot be empty", ErrInvalidArgument)
	}

	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("%w: invalid DN syntax %q: %v", ErrInvalidArgument, dn, err)
	}
	if len(parsed.RDNs) == 0 {
		return "", fmt.Errorf("%w: DN %q has no RDN", ErrInvalidArgument, dn)
	}

	rdns := make([]string, 0, len(parsed.RDNs))
	for _, rdn := range parsed.RDNs {
		atvs := make([]string, 0, len(rdn.Attributes))
		for _, atv := range rdn.Attributes {
			atvs = append(atvs, strings.ToLower(atv.Type)+"="+EscapeDNValue(atv.Value))
		}
		// Multi-valued RDNs keep their "+" join.
		rdns = append(rdns, strings.Join(atvs, "+"))
	}
	return strings.Join(rdns, ","), nil
}
