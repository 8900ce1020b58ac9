package utils

import "strings"

// NormalizeKey trims and uppercases a string used as a matching key. Plaza
// names arrive with inconsistent padding and casing between the detection
// feed and the location reference data.
func NormalizeKey(input string) string {
	return strings.ToUpper(strings.TrimSpace(input))
}

// NormalizePlate strips every non-alphanumeric character and truncates to
// the seven characters a Brazilian plate can carry.
func NormalizePlate(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	plate := strings.ToUpper(b.String())
	if len(plate) > 7 {
		plate = plate[:7]
	}
	return plate
}

// NormalizeMatchKey folds a highway or km token for set-based matching:
// trim, uppercase, and strip punctuation so "SP-330" and "sp 330" compare
// equal.
func NormalizeMatchKey(input string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(input)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeKm reduces a km token to its comparable segment. Source files
// use a "+" continuation separator ("145+200"); only the part before it
// identifies the marker.
func NormalizeKm(km string) string {
	km = strings.TrimSpace(km)
	if i := strings.Index(km, "+"); i >= 0 {
		km = km[:i]
	}
	return NormalizeMatchKey(km)
}
