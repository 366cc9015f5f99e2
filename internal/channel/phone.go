package channel

import "strings"

// isUserIdentity reports whether a gateway "from" field belongs to a
// real user chat (group and broadcast identities use other suffixes).
func isUserIdentity(from string) bool {
	return strings.Contains(from, "@c.us")
}

// NormalizePhone converts a channel-native identity to digits-only
// international format. A bare 9-digit local number gets the country
// prefix completed; anything else passes through as its digits.
func NormalizePhone(raw, countryPrefix string) string {
	if raw == "" {
		return ""
	}

	raw = strings.ReplaceAll(raw, "@c.us", "")

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	phone := b.String()

	if countryPrefix == "" {
		return phone
	}
	if len(phone) == 9 {
		return countryPrefix + phone
	}
	return phone
}
