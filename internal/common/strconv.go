package common

import "strconv"

// AtoiDefault parses value as an int, returning def for empty or malformed
// input.
func AtoiDefault(value string, def int) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return n
}
