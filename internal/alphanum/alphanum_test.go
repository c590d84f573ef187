// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package alphanum_test

import (
	"fmt"
	"sort"
	"testing"

	"github.com/indimr/indimr/internal/alphanum"
)

var lessTests = [...]struct {
	a, b string
	want bool
}{
	0:  {"", "", false},
	1:  {"", "a", true},
	2:  {"a", "", false},
	3:  {"Slot 2", "Slot 10", true},
	4:  {"Slot 10", "Slot 2", false},
	5:  {"Slot 2", "Slot 2", false},
	6:  {"abc", "abd", true},
	7:  {"CCD1", "CCD1", false},
	8:  {"Filter 9 pos", "Filter 10 pos", true},
	9:  {"1", "01", true},
	10: {"a1b2", "a1b10", true},
	11: {"2 inch", "10 inch", true},
	12: {"RA", "DEC", false},
}

func TestLess(t *testing.T) {
	for i, tc := range lessTests {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			if got := alphanum.Less(tc.a, tc.b); got != tc.want {
				t.Errorf("Less(%q, %q): want=%v, got=%v", tc.a, tc.b, tc.want, got)
			}
		})
	}
}

func TestSortOrder(t *testing.T) {
	labels := []string{"Slot 10", "Slot 2", "Slot 1", "Focus", "Slot 03"}
	sort.Slice(labels, func(i, j int) bool { return alphanum.Less(labels[i], labels[j]) })
	want := []string{"Focus", "Slot 1", "Slot 2", "Slot 03", "Slot 10"}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("want=%v, got=%v", want, labels)
		}
	}
}
