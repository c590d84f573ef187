// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package alphanum implements mixed alphanumeric ordering where runs of
// digits compare by numeric value instead of code point.
//
// INDI element labels are frequently of the form "Slot 2", "Slot 10" and a
// plain string sort would interleave them badly on a GUI.
package alphanum

// Less reports whether a sorts before b.
// Both strings are split into alternating runs of digits and non-digits;
// digit runs compare numerically, everything else byte-wise.
func Less(a, b string) bool {
	for a != "" && b != "" {
		var anum, bnum uint64
		var adigit, bdigit bool
		var atok, btok string
		atok, anum, adigit, a = nextRun(a)
		btok, bnum, bdigit, b = nextRun(b)

		if adigit && bdigit {
			if anum != bnum {
				return anum < bnum
			}
			// Equal values of different width ("01" vs "1"): shorter first.
			if atok != btok {
				return len(atok) < len(btok)
			}
			continue
		}
		if atok != btok {
			return atok < btok
		}
	}
	return a == "" && b != ""
}

// nextRun consumes the leading digit or non-digit run from s and returns the
// token, its numeric value if it is a digit run, and the remainder.
func nextRun(s string) (tok string, num uint64, digit bool, rest string) {
	i := 0
	digit = isDigit(s[0])
	for i < len(s) && isDigit(s[i]) == digit {
		if digit {
			num = num*10 + uint64(s[i]-'0')
		}
		i++
	}
	return s[:i], num, digit, s[i:]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
