// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package frame implements the INDI wire codec: delimiting complete
// protocol elements in a rootless XML byte stream, parsing them into typed
// messages and rendering typed messages back to bytes.
//
// An INDI stream is a sequence of top-level XML elements with no document
// root, so the standard decoder cannot be pointed at the connection
// directly; a Framer reassembles complete elements from arbitrarily
// chunked reads first.
package frame

import (
	"errors"

	"github.com/indimr/indimr/property"
)

// Tag is an INDI protocol element name.
type Tag string

// Frame tags, split by the direction they travel in.
const (
	DefTextVector   Tag = "defTextVector"
	DefNumberVector Tag = "defNumberVector"
	DefSwitchVector Tag = "defSwitchVector"
	DefLightVector  Tag = "defLightVector"
	DefBLOBVector   Tag = "defBLOBVector"
	SetTextVector   Tag = "setTextVector"
	SetNumberVector Tag = "setNumberVector"
	SetSwitchVector Tag = "setSwitchVector"
	SetLightVector  Tag = "setLightVector"
	SetBLOBVector   Tag = "setBLOBVector"
	Message         Tag = "message"
	DelProperty     Tag = "delProperty"

	GetProperties   Tag = "getProperties"
	EnableBLOB      Tag = "enableBLOB"
	NewTextVector   Tag = "newTextVector"
	NewNumberVector Tag = "newNumberVector"
	NewSwitchVector Tag = "newSwitchVector"
	NewBLOBVector   Tag = "newBLOBVector"
)

// ServerTags are the tags a server or driver may send to a client.
func ServerTags() []Tag {
	return []Tag{
		DefTextVector, DefNumberVector, DefSwitchVector, DefLightVector,
		DefBLOBVector, SetTextVector, SetNumberVector, SetSwitchVector,
		SetLightVector, SetBLOBVector, Message, DelProperty,
	}
}

// ClientTags are the tags a client may send to a server or driver.
func ClientTags() []Tag {
	return []Tag{
		GetProperties, EnableBLOB, NewTextVector, NewNumberVector,
		NewSwitchVector, NewBLOBVector,
	}
}

// Errors returned by the frame package.
var (
	ErrUnknownTag  = errors.New("frame: unrecognised tag")
	ErrMissingAttr = errors.New("frame: missing required attribute")
	ErrBadValue    = errors.New("frame: malformed value")
)

// A Frame is one parsed INDI protocol element.
type Frame interface {
	FrameTag() Tag
}

// Def frames install or replace a property.

// DefText is a parsed defTextVector.
type DefText struct{ property.TextVector }

// DefNumber is a parsed defNumberVector.
type DefNumber struct{ property.NumberVector }

// DefSwitch is a parsed defSwitchVector.
type DefSwitch struct{ property.SwitchVector }

// DefLight is a parsed defLightVector.
type DefLight struct{ property.LightVector }

// DefBLOB is a parsed defBLOBVector.
type DefBLOB struct{ property.BLOBVector }

func (DefText) FrameTag() Tag   { return DefTextVector }
func (DefNumber) FrameTag() Tag { return DefNumberVector }
func (DefSwitch) FrameTag() Tag { return DefSwitchVector }
func (DefLight) FrameTag() Tag  { return DefLightVector }
func (DefBLOB) FrameTag() Tag   { return DefBLOBVector }

// Set frames mutate an existing property. An empty header State means the
// attribute was absent and the stored state is unchanged; elements not
// named are unchanged.

// SetText is a parsed setTextVector.
type SetText struct{ property.TextVector }

// SetNumber is a parsed setNumberVector.
type SetNumber struct{ property.NumberVector }

// SetSwitch is a parsed setSwitchVector.
type SetSwitch struct{ property.SwitchVector }

// SetLight is a parsed setLightVector.
type SetLight struct{ property.LightVector }

// SetBLOB is a parsed setBLOBVector.
type SetBLOB struct{ property.BLOBVector }

func (SetText) FrameTag() Tag   { return SetTextVector }
func (SetNumber) FrameTag() Tag { return SetNumberVector }
func (SetSwitch) FrameTag() Tag { return SetSwitchVector }
func (SetLight) FrameTag() Tag  { return SetLightVector }
func (SetBLOB) FrameTag() Tag   { return SetBLOBVector }

// Msg is a parsed message frame.
type Msg struct{ property.Message }

func (Msg) FrameTag() Tag { return Message }

// Del is a parsed delProperty frame.
type Del struct{ property.Delete }

func (Del) FrameTag() Tag { return DelProperty }

// Get is a parsed getProperties frame.
type Get struct {
	Device  string
	Name    string
	Version string
}

func (Get) FrameTag() Tag { return GetProperties }

// Enable is a parsed enableBLOB frame.
type Enable struct {
	Device string
	Name   string
	State  BLOBEnable
}

func (Enable) FrameTag() Tag { return EnableBLOB }

// New frames carry client commands to change element values. Only element
// names and values travel; labels and hints belong to the definition.

// NewText is a parsed newTextVector.
type NewText struct {
	Device    string
	Name      string
	Timestamp string
	Elements  []property.TextElement
}

// NewNumber is a parsed newNumberVector.
type NewNumber struct {
	Device    string
	Name      string
	Timestamp string
	Elements  []property.NumberElement
}

// NewSwitch is a parsed newSwitchVector.
type NewSwitch struct {
	Device    string
	Name      string
	Timestamp string
	Elements  []property.SwitchElement
}

// NewBLOB is a parsed newBLOBVector.
type NewBLOB struct {
	Device    string
	Name      string
	Timestamp string
	Elements  []property.BLOBElement
}

func (NewText) FrameTag() Tag   { return NewTextVector }
func (NewNumber) FrameTag() Tag { return NewNumberVector }
func (NewSwitch) FrameTag() Tag { return NewSwitchVector }
func (NewBLOB) FrameTag() Tag   { return NewBLOBVector }
