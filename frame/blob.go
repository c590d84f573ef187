// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package frame

import "github.com/pkg/errors"

// BLOBEnable is the per-source BLOB forwarding policy set by enableBLOB
// frames. The zero value is not valid; sources start at BLOBNever.
type BLOBEnable string

const (
	// BLOBNever drops all setBLOBVector frames from the source.
	BLOBNever BLOBEnable = "Never"
	// BLOBAlso forwards BLOB and non-BLOB frames alike.
	BLOBAlso BLOBEnable = "Also"
	// BLOBOnly forwards setBLOBVector frames and drops everything else.
	BLOBOnly BLOBEnable = "Only"
)

// ParseBLOBEnable validates a wire enableBLOB literal.
func ParseBLOBEnable(s string) (BLOBEnable, error) {
	switch BLOBEnable(s) {
	case BLOBNever, BLOBAlso, BLOBOnly:
		return BLOBEnable(s), nil
	}
	return "", errors.Wrapf(ErrBadValue, "enableBLOB literal %q", s)
}

// Permits reports whether a frame with the given tag may be forwarded from
// a source whose policy is e.
func (e BLOBEnable) Permits(t Tag) bool {
	switch e {
	case BLOBAlso:
		return true
	case BLOBOnly:
		return t == SetBLOBVector
	}
	// BLOBNever (and the zero value).
	return t != SetBLOBVector
}
