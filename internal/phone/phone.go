// Package phone normalizes and validates Kenyan mobile numbers (MSISDNs).
package phone

import "strings"

// Normalize strips all non-digit characters and rewrites the number into the
// canonical international form Daraja expects: 254 followed by the 9-digit
// subscriber number. It accepts local (07XXXXXXXX), international
// (2547XXXXXXXX) and bare 9-digit inputs. No validity check is performed
// here; use IsValid at the boundary that accepts user input.
func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if strings.HasPrefix(cleaned, "0") {
		cleaned = "254" + cleaned[1:]
	}
	if !strings.HasPrefix(cleaned, "254") {
		cleaned = "254" + cleaned
	}
	return cleaned
}

// IsValid reports whether raw is a plausible Kenyan mobile number in either
// local (0 + 9 digits) or international (254 + 9 digits) form. The 9-digit
// local part must start with 7, or with 1 followed by 0 or 1.
func IsValid(raw string) bool {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	switch {
	case strings.HasPrefix(cleaned, "254") && len(cleaned) == 12:
		return validLocalPart(cleaned[3:])
	case strings.HasPrefix(cleaned, "0") && len(cleaned) == 10:
		return validLocalPart(cleaned[1:])
	}
	return false
}

func validLocalPart(local string) bool {
	if len(local) != 9 {
		return false
	}
	switch local[0] {
	case '7':
		return true
	case '1':
		return local[1] == '0' || local[1] == '1'
	}
	return false
}
