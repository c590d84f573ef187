// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package property_test

import (
	"fmt"
	"testing"

	"github.com/indimr/indimr/property"
)

var formatTests = [...]struct {
	format string
	value  string
	want   string
	err    bool
}{
	0:  {"%9.6m", "10:70:75", " 11:11:15", false},
	1:  {"%7.3m", "5:30", "   5:30", false},
	2:  {"%8.5m", "5:30:30", "  5:30.5", false},
	3:  {"%10.8m", "-12:15:7.5", "-12:15:07.5", false},
	4:  {"%12.9m", "3.5", "  3:30:00.00", false},
	5:  {"%6.2f", "42", " 42.00", false},
	6:  {"%g", "10:30", "10.5", false},
	7:  {"%.1f", "-1:30", "-1.5", false},
	8:  {"%4d", "90", "  90", false},
	9:  {"%6.2f", "1 30 0", "  1.50", false},
	10: {"%6.2f", "1;30;0", "  1.50", false},
	11: {"%f", "abc", "", true},
	12: {"%f", "", "", true},
	13: {"%q", "1", "", true},
	14: {"%3.3m", "0:59:59", "0:60", false},
}

func TestFormatNumber(t *testing.T) {
	for i, tc := range formatTests {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			got, err := property.FormatNumber(tc.format, tc.value)
			if tc.err {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("FormatNumber(%q, %q): want=%q, got=%q", tc.format, tc.value, tc.want, got)
			}
		})
	}
}
