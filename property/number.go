// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package property

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrBadNumber is returned when a number element value cannot be parsed as
// a plain or sexagesimal number.
var ErrBadNumber = errors.New("property: malformed number value")

// FormatNumber renders an INDI number value for display.
//
// The format string is either printf-style ("%g", "%6.2f", ...) or the
// INDI sexagesimal form "%<w>.<f>m" where w is the overall width and f
// selects the layout:
//
//	3  DD:MM
//	5  DD:MM.M
//	6  DD:MM:SS
//	8  DD:MM:SS.S
//	9  DD:MM:SS.SS (also the default for unknown f)
//
// The value may be plain decimal or sexagesimal with ' ', ':' or ';'
// separating the components; missing components are zero.
func FormatNumber(format, value string) (string, error) {
	neg, parts, err := splitSexagesimal(value)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(format, "%") && strings.HasSuffix(format, "m") {
		return formatSexagesimal(format, neg, parts)
	}
	return formatPrintf(format, neg, parts)
}

// splitSexagesimal breaks a wire value into sign and up to three numeric
// components. A plain decimal comes back as the degrees component alone.
func splitSexagesimal(value string) (neg bool, parts [3]float64, err error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, parts, ErrBadNumber
	}
	if strings.HasPrefix(value, "-") {
		neg = true
		value = strings.TrimLeft(value, "-")
	}
	var fields []string
	switch {
	case strings.Contains(value, " "):
		fields = strings.Split(value, " ")
	case strings.Contains(value, ":"):
		fields = strings.Split(value, ":")
	case strings.Contains(value, ";"):
		fields = strings.Split(value, ";")
	default:
		fields = []string{value}
	}
	if len(fields) > 3 {
		return false, parts, ErrBadNumber
	}
	for i, f := range fields {
		if f == "" {
			continue
		}
		n, perr := strconv.ParseFloat(f, 64)
		if perr != nil {
			return false, parts, ErrBadNumber
		}
		parts[i] = n
	}
	return neg, parts, nil
}

func formatSexagesimal(format string, neg bool, parts [3]float64) (string, error) {
	spec := strings.TrimSuffix(strings.TrimPrefix(format, "%"), "m")
	w, f := spec, "9"
	if dot := strings.IndexByte(spec, '.'); dot >= 0 {
		w, f = spec[:dot], spec[dot+1:]
	}

	deg, min, sec := parts[0], parts[1], parts[2]
	// Push fractional degrees and minutes down a level so the upper two
	// components are integral.
	if frac := deg - math.Trunc(deg); frac != 0 {
		deg = math.Trunc(deg)
		min += 60 * frac
	}
	if frac := min - math.Trunc(min); frac != 0 {
		min = math.Trunc(min)
		sec += 60 * frac
	}
	// Carry overflowing seconds and minutes upward.
	for sec >= 60 {
		sec -= 60
		min++
	}
	for min >= 60 {
		min -= 60
		deg++
	}

	var b strings.Builder
	if neg {
		fmt.Fprintf(&b, "-%d:", int64(deg))
	} else {
		fmt.Fprintf(&b, "%d:", int64(deg))
	}
	switch f {
	case "3":
		fmt.Fprintf(&b, "%02.0f", min+sec/60)
	case "5":
		fmt.Fprintf(&b, "%04.1f", min+sec/60)
	case "6":
		fmt.Fprintf(&b, "%02.0f:%02.0f", min, sec)
	case "8":
		fmt.Fprintf(&b, "%02.0f:%04.1f", min, sec)
	default:
		fmt.Fprintf(&b, "%02.0f:%05.2f", min, sec)
	}

	out := b.String()
	if width, err := strconv.Atoi(w); err == nil && width > len(out) {
		out = strings.Repeat(" ", width-len(out)) + out
	}
	return out, nil
}

func formatPrintf(format string, neg bool, parts [3]float64) (string, error) {
	v := parts[0] + parts[1]/60 + parts[2]/3600
	if neg {
		v = -v
	}
	if len(format) < 2 || !strings.HasPrefix(format, "%") {
		return "", fmt.Errorf("property: unusable number format %q", format)
	}
	switch format[len(format)-1] {
	case 'd', 'x', 'X', 'o', 'b':
		return fmt.Sprintf(format, int64(v)), nil
	case 'f', 'F', 'e', 'E', 'g', 'G':
		return fmt.Sprintf(format, v), nil
	}
	return "", fmt.Errorf("property: unusable number format %q", format)
}
