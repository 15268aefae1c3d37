package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// argon2id parameters for new hashes. Verification reads them from the stored value.
const (
	argon2Time     = 3
	argon2Memory   = 64 * 1024
	argon2Threads  = 4
	argon2KeyLen   = 32
	argon2SaltSize = 16
)

// Upper bounds for parameters read from a stored value. Anything outside them
// is rejected before deriving a key.
const (
	argon2MaxMemory  = 1 << 20 // KiB
	argon2MaxTime    = 16
	argon2MaxCost    = 4 << 20 // memory * time
	argon2MaxThreads = 64
	argon2MinKeyLen  = 16
	argon2MaxKeyLen  = 64
	argon2MinSalt    = 8
	argon2MaxSalt    = 64
)

func hashCrypt(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return Crypt.Prefix() + string(hash), nil
}

func verifyCrypt(encoded, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plain)) == nil
}

func hashArgon2(plain string) (string, error) {
	salt := make([]byte, argon2SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(plain), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	return fmt.Sprintf("%s$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		Argon2.Prefix(), argon2.Version, argon2Memory, argon2Time, argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// verifyArgon2 checks a PHC string: $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>.
func verifyArgon2(encoded, plain string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false
	}
	if memory == 0 || memory > argon2MaxMemory ||
		time == 0 || time > argon2MaxTime ||
		uint64(memory)*uint64(time) > argon2MaxCost ||
		threads == 0 || threads > argon2MaxThreads {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < argon2MinSalt || len(salt) > argon2MaxSalt {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) < argon2MinKeyLen || len(want) > argon2MaxKeyLen {
		return false
	}

	got := argon2.IDKey([]byte(plain), salt, time, memory, threads, uint32(len(want))) //nolint:gosec // len checked above
	return subtle.ConstantTimeCompare(got, want) == 1
}
