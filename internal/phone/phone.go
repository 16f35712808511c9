// Package phone canonicalizes caller phone numbers into the two formats the
// Square customer directory requires: E.164 for search, bare ten digits for
// customer creation. Pure functions.
package phone

import "strings"

// Normalize converts a phone number to E.164 (+1XXXXXXXXXX for US numbers).
// Normalizing an already-normalized number is a no-op.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	digits := digitsOnly(raw)

	switch {
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return "+" + digits
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) > 10 && !strings.HasPrefix(raw, "+"):
		return "+" + digits
	}

	if strings.HasPrefix(raw, "+") {
		return raw
	}
	return "+" + digits
}

// ForCreation strips the +1 prefix for Square's create-customer API, which
// expects ten digits without a country code for US numbers.
func ForCreation(normalized string) string {
	return strings.TrimPrefix(normalized, "+1")
}

// SearchFormats returns the phone representations to try when searching the
// customer directory. Square's search only accepts E.164, so there is exactly
// one.
func SearchFormats(raw string) []string {
	return []string{Normalize(raw)}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
