package models

import "strings"

// MaxIdentityLength bounds client generated identity tokens.
const MaxIdentityLength = 128

// NormalizeIdentity trims an identity token and reports whether it is usable.
// Tokens are opaque and unauthenticated; only shape is checked.
func NormalizeIdentity(raw string) (string, bool) {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > MaxIdentityLength {
		return "", false
	}
	return id, true
}
