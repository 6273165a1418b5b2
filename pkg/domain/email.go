package domain

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeEmail trims surrounding whitespace, lowercases and NFC-composes an
// email address. Every email is normalized before it is written so stored
// rows compare with plain equality.
func NormalizeEmail(email string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(email)))
}

// SameEmail reports whether a and b name the same mailbox.
func SameEmail(a, b string) bool {
	return NormalizeEmail(a) == NormalizeEmail(b)
}

// ValidEmail is a shape check only; the identity provider owns real validation.
func ValidEmail(email string) bool {
	e := NormalizeEmail(email)
	at := strings.LastIndex(e, "@")
	if at < 1 || at == len(e)-1 {
		return false
	}
	return !strings.ContainsAny(e, " \t\n") && strings.Contains(e[at:], ".")
}
