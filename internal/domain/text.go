package domain

// TruncateRunes returns the first n characters of s. n <= 0 keeps s whole.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
