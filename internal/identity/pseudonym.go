package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// Normalize trims surrounding whitespace and lowercases the value.
func Normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// Pseudonymize maps an identifying value to a stable pseudonym: the upper-case
// hex SHA-1 of its normalized UTF-8 bytes. Equal normalized inputs always give
// the same output, so files of one patient stay linkable after anonymization.
func Pseudonymize(value string) string {
	return hashUpper(Normalize(value))
}

// PasswordHash returns the upper-case hex SHA-1 of the trimmed password, as
// stored in connection profiles and sent to the archive.
func PasswordHash(password string) string {
	return hashUpper(strings.TrimSpace(password))
}

func hashUpper(s string) string {
	sum := sha1.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
