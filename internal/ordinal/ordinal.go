// Package ordinal renders English ordinal numbers for log lines.
package ordinal

import "strconv"

// Of returns n with its English ordinal suffix: 1st, 2nd, 3rd, 4th, 11th, 22nd.
func Of(n int) string {
	s := strconv.Itoa(n)
	abs := n
	if abs < 0 {
		abs = -abs
	}
	if r := abs % 100; r >= 11 && r <= 13 {
		return s + "th"
	}
	switch abs % 10 {
	case 1:
		return s + "st"
	case 2:
		return s + "nd"
	case 3:
		return s + "rd"
	default:
		return s + "th"
	}
}
