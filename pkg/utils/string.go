package utils

// Truncate shortens s to at most maxLen characters and marks the cut with
// "...". Runes are never split.
func Truncate(s string, maxLen int) string {
	cut := TruncateRunes(s, maxLen)
	if len(cut) == len(s) {
		return s
	}
	return cut + "..."
}

// TruncateRunes returns the first maxLen runes of s.
func TruncateRunes(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}

	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i]
		}
		n++
	}
	return s
}

// MaskSecret hides all but the last four characters of a credential. Values
// of eight characters or fewer are hidden entirely.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= 8 {
		return "********"
	}
	return "********" + string(runes[len(runes)-4:])
}
