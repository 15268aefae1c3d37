// Package password produces and verifies directory userPassword values tagged
// with a scheme prefix such as {SSHA}.
package password

import (
	"crypto/md5" //nolint:gosec // legacy scheme kept for existing entries
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // legacy scheme kept for existing entries
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
)

// Scheme is a password storage scheme.
type Scheme string

const (
	// Plain stores the password as-is. Only kept for compatibility.
	Plain Scheme = "PLAIN"
	// SHA is an unsalted SHA-1 digest.
	SHA Scheme = "SHA"
	// MD5 is an unsalted MD5 digest.
	MD5 Scheme = "MD5"
	// SSHA is a salted SHA-1 digest, the default for new accounts.
	SSHA Scheme = "SSHA"
	// Crypt is a bcrypt hash in crypt(3) format.
	Crypt Scheme = "CRYPT"
	// Argon2 is an argon2id hash in PHC string format.
	Argon2 Scheme = "ARGON2"

	// Default is used wherever no scheme is chosen explicitly.
	Default = SSHA

	saltSize = 8
)

// ErrEmptyPassword is returned when hashing an empty password. Whitespace is
// a valid password.
var ErrEmptyPassword = fmt.Errorf("%w: password cannot be empty", ldap.ErrInvalidArgument)

// Prefix returns the tag stored in front of the encoded value, e.g. "{SSHA}".
func (s Scheme) Prefix() string {
	return "{" + string(s) + "}"
}

// Schemes lists every supported scheme.
func Schemes() []Scheme {
	return []Scheme{Plain, SHA, MD5, SSHA, Crypt, Argon2}
}

// ParseScheme resolves a scheme name, with or without braces, case-insensitively.
func ParseScheme(name string) (Scheme, error) {
	name = strings.ToUpper(strings.Trim(strings.TrimSpace(name), "{}"))
	for _, s := range Schemes() {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown password scheme %q", ldap.ErrInvalidArgument, name)
}

// Hash encodes plain with the given scheme, including the scheme prefix.
func Hash(scheme Scheme, plain string) (string, error) {
	if plain == "" {
		return "", ErrEmptyPassword
	}

	switch scheme {
	case Plain:
		return Plain.Prefix() + plain, nil
	case SHA:
		sum := sha1.Sum([]byte(plain)) //nolint:gosec
		return SHA.Prefix() + base64.StdEncoding.EncodeToString(sum[:]), nil
	case MD5:
		sum := md5.Sum([]byte(plain)) //nolint:gosec
		return MD5.Prefix() + base64.StdEncoding.EncodeToString(sum[:]), nil
	case SSHA:
		salt := make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return "", fmt.Errorf("generate salt: %w", err)
		}
		return SSHA.Prefix() + base64.StdEncoding.EncodeToString(append(saltedSHA1(plain, salt), salt...)), nil
	case Crypt:
		return hashCrypt(plain)
	case Argon2:
		return hashArgon2(plain)
	default:
		return "", fmt.Errorf("%w: unknown password scheme %q", ldap.ErrInvalidArgument, scheme)
	}
}

// SchemeOf reports the scheme of a stored value. Scheme names are matched
// case-insensitively, as the directory server does.
func SchemeOf(stored string) (Scheme, bool) {
	if !strings.HasPrefix(stored, "{") {
		return "", false
	}
	end := strings.IndexByte(stored, '}')
	if end < 0 {
		return "", false
	}
	scheme, err := ParseScheme(stored[1:end])
	if err != nil {
		return "", false
	}
	return scheme, true
}

// Verify checks plain against a stored value. It returns false for unknown
// schemes, malformed values and empty inputs; it never panics.
func Verify(stored, plain string) bool {
	if stored == "" || plain == "" {
		return false
	}

	scheme, ok := SchemeOf(stored)
	if !ok {
		return false
	}
	encoded := stored[len(scheme.Prefix()):]

	switch scheme {
	case Plain:
		return subtle.ConstantTimeCompare([]byte(encoded), []byte(plain)) == 1
	case SHA:
		sum := sha1.Sum([]byte(plain)) //nolint:gosec
		return equalEncoded(encoded, sum[:])
	case MD5:
		sum := md5.Sum([]byte(plain)) //nolint:gosec
		return equalEncoded(encoded, sum[:])
	case SSHA:
		return verifySSHA(encoded, plain)
	case Crypt:
		return verifyCrypt(encoded, plain)
	case Argon2:
		return verifyArgon2(encoded, plain)
	default:
		return false
	}
}

func saltedSHA1(plain string, salt []byte) []byte {
	h := sha1.New() //nolint:gosec
	h.Write([]byte(plain))
	h.Write(salt)
	return h.Sum(nil)
}

func verifySSHA(encoded, plain string) bool {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) <= saltSize {
		return false
	}
	digest, salt := raw[:len(raw)-saltSize], raw[len(raw)-saltSize:]
	return subtle.ConstantTimeCompare(digest, saltedSHA1(plain, salt)) == 1
}

func equalEncoded(encoded string, sum []byte) bool {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(raw, sum) == 1
}
