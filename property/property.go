// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package property implements the typed INDI property model: the five
// vector kinds with their elements, device and site messages, and the
// number formatting rules used for GUI display.
//
// A property (a "vector" in INDI terms) is a named group of typed elements
// owned by a device and sharing state, permission and timeout. Vectors are
// created by defXxxVector frames, mutated by setXxxVector frames and
// destroyed by delProperty.
package property

import (
	"sort"
	"time"

	"github.com/indimr/indimr/internal/alphanum"
)

// Kind identifies one of the five vector kinds. The literal values double
// as the "vector" tag stored with property attributes so that a reader can
// reconstruct the right type.
type Kind string

const (
	Text   Kind = "TextVector"
	Number Kind = "NumberVector"
	Switch Kind = "SwitchVector"
	Light  Kind = "LightVector"
	BLOB   Kind = "BLOBVector"
)

// State is the condition of a property or light element, one of the four
// INDI literals.
type State string

const (
	Idle  State = "Idle"
	Ok    State = "Ok"
	Busy  State = "Busy"
	Alert State = "Alert"
)

// ParseState canonicalises a wire state value. Matching is
// case-insensitive (the white paper is inconsistent about the case of
// "Ok") and anything unrecognised maps to Alert.
func ParseState(s string) State {
	switch lower(s) {
	case "idle":
		return Idle
	case "ok":
		return Ok
	case "busy":
		return Busy
	}
	return Alert
}

// Perm is the client access permission of a property.
type Perm string

const (
	ReadOnly  Perm = "ro"
	WriteOnly Perm = "wo"
	ReadWrite Perm = "rw"
)

// ParsePerm returns the permission for a wire value, defaulting to
// read-only for anything unrecognised.
func ParsePerm(s string) Perm {
	switch s {
	case "wo":
		return WriteOnly
	case "rw":
		return ReadWrite
	}
	return ReadOnly
}

// ParseSwitchPerm is ParsePerm restricted to switch vectors, which cannot
// be write-only.
func ParseSwitchPerm(s string) Perm {
	if s == "rw" {
		return ReadWrite
	}
	return ReadOnly
}

// Rule constrains how many elements of a switch vector may be On.
type Rule string

const (
	OneOfMany Rule = "OneOfMany"
	AtMostOne Rule = "AtMostOne"
	AnyOfMany Rule = "AnyOfMany"
)

// ValidRule reports whether s is one of the three switch rules.
func ValidRule(s string) bool {
	switch Rule(s) {
	case OneOfMany, AtMostOne, AnyOfMany:
		return true
	}
	return false
}

// Header carries the attributes shared by every vector kind.
//
// On a set frame an empty State means the attribute was absent and the
// stored state is unchanged. Timeout is kept as the raw wire string; it is
// meaningless for read-only properties.
type Header struct {
	Device    string
	Name      string
	Label     string
	Group     string
	State     State
	Perm      Perm
	Timeout   string
	Timestamp string
	Message   string
}

// Common gives generic access to the shared header.
func (h *Header) Common() *Header { return h }

// Vector is implemented by the five vector kinds.
type Vector interface {
	VectorKind() Kind
	Common() *Header
}

// A TextElement holds one free-form string value.
type TextElement struct {
	Name  string
	Label string
	Value string
}

// A NumberElement holds one numeric value as its raw wire string together
// with the GUI format and range hints.
type NumberElement struct {
	Name   string
	Label  string
	Format string
	Min    string
	Max    string
	Step   string
	Value  string
}

// Formatted renders the element value using its format string. See
// FormatNumber.
func (e NumberElement) Formatted() (string, error) {
	return FormatNumber(e.Format, e.Value)
}

// A SwitchElement is On or Off.
type SwitchElement struct {
	Name  string
	Label string
	Value string
}

// A LightElement carries a read-only state literal.
type LightElement struct {
	Name  string
	Label string
	Value string
}

// A BLOBElement holds a decoded binary payload. Base64 exists only on the
// wire; Value is always raw bytes.
type BLOBElement struct {
	Name   string
	Label  string
	Size   string
	Format string
	Value  []byte
}

// TextVector groups text elements.
type TextVector struct {
	Header
	Elements []TextElement
}

func (v *TextVector) VectorKind() Kind { return Text }

// NumberVector groups number elements.
type NumberVector struct {
	Header
	Elements []NumberElement
}

func (v *NumberVector) VectorKind() Kind { return Number }

// SwitchVector groups switch elements under a selection rule.
type SwitchVector struct {
	Header
	Rule     Rule
	Elements []SwitchElement
}

func (v *SwitchVector) VectorKind() Kind { return Switch }

// On returns the number of elements currently On.
func (v *SwitchVector) On() int {
	n := 0
	for _, e := range v.Elements {
		if e.Value == "On" {
			n++
		}
	}
	return n
}

// LightVector groups light elements. Permission is always read-only.
type LightVector struct {
	Header
	Elements []LightElement
}

func (v *LightVector) VectorKind() Kind { return Light }

// BLOBVector groups binary elements.
type BLOBVector struct {
	Header
	Elements []BLOBElement
}

func (v *BLOBVector) VectorKind() Kind { return BLOB }

// Message is a device-scoped or (when Device is empty) site-wide note from
// the other end of the link.
type Message struct {
	Device    string
	Timestamp string
	Text      string
}

// Delete reports that a property, or with an empty Name a whole device, is
// no longer available.
type Delete struct {
	Device    string
	Name      string
	Timestamp string
	Message   string
}

// SortElements orders the vector's elements by label for display.
func (v *TextVector) SortElements() {
	sort.SliceStable(v.Elements, func(i, j int) bool {
		return alphanum.Less(v.Elements[i].Label, v.Elements[j].Label)
	})
}

// SortElements orders the vector's elements by label for display.
func (v *NumberVector) SortElements() {
	sort.SliceStable(v.Elements, func(i, j int) bool {
		return alphanum.Less(v.Elements[i].Label, v.Elements[j].Label)
	})
}

// SortElements orders the vector's elements by label for display.
func (v *SwitchVector) SortElements() {
	sort.SliceStable(v.Elements, func(i, j int) bool {
		return alphanum.Less(v.Elements[i].Label, v.Elements[j].Label)
	})
}

// SortElements orders the vector's elements by label for display.
func (v *LightVector) SortElements() {
	sort.SliceStable(v.Elements, func(i, j int) bool {
		return alphanum.Less(v.Elements[i].Label, v.Elements[j].Label)
	})
}

// SortElements orders the vector's elements by label for display.
func (v *BLOBVector) SortElements() {
	sort.SliceStable(v.Elements, func(i, j int) bool {
		return alphanum.Less(v.Elements[i].Label, v.Elements[j].Label)
	})
}

// Now returns the current wall-clock UTC time in the INDI timestamp form,
// seconds precision. Frames arriving without a timestamp are stamped with
// it at ingest.
func Now() string {
	return time.Now().UTC().Format(TimeLayout)
}

// TimeLayout is the ISO-8601 form used by INDI v1.7 timestamps.
const TimeLayout = "2006-01-02T15:04:05"

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
