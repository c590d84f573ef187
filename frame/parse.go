// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package frame

import (
	"encoding/base64"
	"encoding/xml"
	"strings"

	"github.com/pkg/errors"

	"github.com/indimr/indimr/property"
)

// wireFrame is the generic shape every INDI protocol element unmarshals
// into; the tag and the child names select the typed representation.
type wireFrame struct {
	XMLName   xml.Name
	Device    string      `xml:"device,attr"`
	Name      string      `xml:"name,attr"`
	Label     string      `xml:"label,attr"`
	Group     string      `xml:"group,attr"`
	State     string      `xml:"state,attr"`
	Perm      string      `xml:"perm,attr"`
	Rule      string      `xml:"rule,attr"`
	Timeout   string      `xml:"timeout,attr"`
	Timestamp string      `xml:"timestamp,attr"`
	Message   string      `xml:"message,attr"`
	Version   string      `xml:"version,attr"`
	Text      string      `xml:",chardata"`
	Children  []wireChild `xml:",any"`
}

type wireChild struct {
	XMLName xml.Name
	Name    string `xml:"name,attr"`
	Label   string `xml:"label,attr"`
	Format  string `xml:"format,attr"`
	Min     string `xml:"min,attr"`
	Max     string `xml:"max,attr"`
	Step    string `xml:"step,attr"`
	Size    string `xml:"size,attr"`
	Text    string `xml:",chardata"`
}

// Parse maps one complete frame, as emitted by a Framer, to its typed
// representation. A violation of the protocol's required attributes is an
// error for this frame only; the caller logs and drops it and the stream
// carries on.
func Parse(b []byte) (Frame, error) {
	var w wireFrame
	if err := xml.Unmarshal(b, &w); err != nil {
		return nil, errors.Wrap(err, "frame: unmarshal")
	}
	tag := Tag(w.XMLName.Local)
	f, err := w.typed(tag)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", tag)
	}
	return f, nil
}

func (w *wireFrame) typed(tag Tag) (Frame, error) {
	switch tag {
	case DefTextVector:
		h, err := w.defHeader(property.ParsePerm(w.Perm))
		if err != nil {
			return nil, err
		}
		els, err := w.textElements("defText", true)
		if err != nil {
			return nil, err
		}
		return DefText{property.TextVector{Header: h, Elements: els}}, nil
	case DefNumberVector:
		h, err := w.defHeader(property.ParsePerm(w.Perm))
		if err != nil {
			return nil, err
		}
		els, err := w.numberElements("defNumber", true)
		if err != nil {
			return nil, err
		}
		return DefNumber{property.NumberVector{Header: h, Elements: els}}, nil
	case DefSwitchVector:
		h, err := w.defHeader(property.ParseSwitchPerm(w.Perm))
		if err != nil {
			return nil, err
		}
		if !property.ValidRule(w.Rule) {
			return nil, errors.Wrapf(ErrBadValue, "switch rule %q", w.Rule)
		}
		els, err := w.switchElements("defSwitch", true)
		if err != nil {
			return nil, err
		}
		return DefSwitch{property.SwitchVector{Header: h, Rule: property.Rule(w.Rule), Elements: els}}, nil
	case DefLightVector:
		// Lights are read-only and carry no perm or timeout.
		h, err := w.defLightHeader()
		if err != nil {
			return nil, err
		}
		els, err := w.lightElements("defLight", true)
		if err != nil {
			return nil, err
		}
		return DefLight{property.LightVector{Header: h, Elements: els}}, nil
	case DefBLOBVector:
		h, err := w.defHeader(property.ParsePerm(w.Perm))
		if err != nil {
			return nil, err
		}
		els, err := w.blobElements("defBLOB", true, false)
		if err != nil {
			return nil, err
		}
		return DefBLOB{property.BLOBVector{Header: h, Elements: els}}, nil

	case SetTextVector:
		h, err := w.setHeader()
		if err != nil {
			return nil, err
		}
		els, err := w.textElements("oneText", false)
		if err != nil {
			return nil, err
		}
		return SetText{property.TextVector{Header: h, Elements: els}}, nil
	case SetNumberVector:
		h, err := w.setHeader()
		if err != nil {
			return nil, err
		}
		els, err := w.numberElements("oneNumber", false)
		if err != nil {
			return nil, err
		}
		return SetNumber{property.NumberVector{Header: h, Elements: els}}, nil
	case SetSwitchVector:
		h, err := w.setHeader()
		if err != nil {
			return nil, err
		}
		els, err := w.switchElements("oneSwitch", false)
		if err != nil {
			return nil, err
		}
		return SetSwitch{property.SwitchVector{Header: h, Elements: els}}, nil
	case SetLightVector:
		h, err := w.setHeader()
		if err != nil {
			return nil, err
		}
		els, err := w.lightElements("oneLight", false)
		if err != nil {
			return nil, err
		}
		return SetLight{property.LightVector{Header: h, Elements: els}}, nil
	case SetBLOBVector:
		h, err := w.setHeader()
		if err != nil {
			return nil, err
		}
		els, err := w.blobElements("oneBLOB", false, true)
		if err != nil {
			return nil, err
		}
		return SetBLOB{property.BLOBVector{Header: h, Elements: els}}, nil

	case Message:
		return Msg{property.Message{
			Device:    w.Device,
			Timestamp: defaultTimestamp(w.Timestamp),
			Text:      w.Message,
		}}, nil
	case DelProperty:
		if w.Device == "" {
			return nil, errors.Wrap(ErrMissingAttr, "device")
		}
		return Del{property.Delete{
			Device:    w.Device,
			Name:      w.Name,
			Timestamp: defaultTimestamp(w.Timestamp),
			Message:   w.Message,
		}}, nil

	case GetProperties:
		return Get{Device: w.Device, Name: w.Name, Version: w.Version}, nil
	case EnableBLOB:
		if w.Device == "" {
			return nil, errors.Wrap(ErrMissingAttr, "device")
		}
		state, err := ParseBLOBEnable(strings.TrimSpace(w.Text))
		if err != nil {
			return nil, err
		}
		return Enable{Device: w.Device, Name: w.Name, State: state}, nil

	case NewTextVector:
		if err := w.requireDeviceName(); err != nil {
			return nil, err
		}
		els, err := w.textElements("oneText", false)
		if err != nil {
			return nil, err
		}
		return NewText{Device: w.Device, Name: w.Name, Timestamp: defaultTimestamp(w.Timestamp), Elements: els}, nil
	case NewNumberVector:
		if err := w.requireDeviceName(); err != nil {
			return nil, err
		}
		els, err := w.numberElements("oneNumber", false)
		if err != nil {
			return nil, err
		}
		return NewNumber{Device: w.Device, Name: w.Name, Timestamp: defaultTimestamp(w.Timestamp), Elements: els}, nil
	case NewSwitchVector:
		if err := w.requireDeviceName(); err != nil {
			return nil, err
		}
		els, err := w.switchElements("oneSwitch", false)
		if err != nil {
			return nil, err
		}
		return NewSwitch{Device: w.Device, Name: w.Name, Timestamp: defaultTimestamp(w.Timestamp), Elements: els}, nil
	case NewBLOBVector:
		if err := w.requireDeviceName(); err != nil {
			return nil, err
		}
		els, err := w.blobElements("oneBLOB", false, true)
		if err != nil {
			return nil, err
		}
		return NewBLOB{Device: w.Device, Name: w.Name, Timestamp: defaultTimestamp(w.Timestamp), Elements: els}, nil
	}
	return nil, ErrUnknownTag
}

func (w *wireFrame) requireDeviceName() error {
	if w.Device == "" {
		return errors.Wrap(ErrMissingAttr, "device")
	}
	if w.Name == "" {
		return errors.Wrap(ErrMissingAttr, "name")
	}
	return nil
}

// defHeader validates the attributes every defXxxVector requires and fills
// the defaults for the rest.
func (w *wireFrame) defHeader(perm property.Perm) (property.Header, error) {
	if err := w.requireDeviceName(); err != nil {
		return property.Header{}, err
	}
	if w.Perm == "" {
		return property.Header{}, errors.Wrap(ErrMissingAttr, "perm")
	}
	if w.State == "" {
		return property.Header{}, errors.Wrap(ErrMissingAttr, "state")
	}
	h := property.Header{
		Device:    w.Device,
		Name:      w.Name,
		Label:     w.Label,
		Group:     w.Group,
		State:     property.ParseState(w.State),
		Perm:      perm,
		Timeout:   w.Timeout,
		Timestamp: defaultTimestamp(w.Timestamp),
		Message:   w.Message,
	}
	if h.Label == "" {
		h.Label = h.Name
	}
	if h.Timeout == "" {
		h.Timeout = "0"
	}
	return h, nil
}

func (w *wireFrame) defLightHeader() (property.Header, error) {
	if err := w.requireDeviceName(); err != nil {
		return property.Header{}, err
	}
	if w.State == "" {
		return property.Header{}, errors.Wrap(ErrMissingAttr, "state")
	}
	h := property.Header{
		Device:    w.Device,
		Name:      w.Name,
		Label:     w.Label,
		Group:     w.Group,
		State:     property.ParseState(w.State),
		Perm:      property.ReadOnly,
		Timeout:   "0",
		Timestamp: defaultTimestamp(w.Timestamp),
		Message:   w.Message,
	}
	if h.Label == "" {
		h.Label = h.Name
	}
	return h, nil
}

// setHeader keeps absent attributes distinguishable: an empty State means
// "unchanged" to the store.
func (w *wireFrame) setHeader() (property.Header, error) {
	if err := w.requireDeviceName(); err != nil {
		return property.Header{}, err
	}
	h := property.Header{
		Device:    w.Device,
		Name:      w.Name,
		Timeout:   w.Timeout,
		Timestamp: defaultTimestamp(w.Timestamp),
		Message:   w.Message,
	}
	if w.State != "" {
		h.State = property.ParseState(w.State)
	}
	if h.Timeout == "" {
		h.Timeout = "0"
	}
	return h, nil
}

func (w *wireFrame) textElements(child string, def bool) ([]property.TextElement, error) {
	var els []property.TextElement
	for _, c := range w.Children {
		if c.XMLName.Local != child {
			continue
		}
		if c.Name == "" {
			return nil, errors.Wrapf(ErrMissingAttr, "%s name", child)
		}
		e := property.TextElement{Name: c.Name, Value: strings.TrimSpace(c.Text)}
		if def {
			e.Label = defaultLabel(c.Label, c.Name)
		}
		els = append(els, e)
	}
	return els, nil
}

func (w *wireFrame) numberElements(child string, def bool) ([]property.NumberElement, error) {
	var els []property.NumberElement
	for _, c := range w.Children {
		if c.XMLName.Local != child {
			continue
		}
		if c.Name == "" {
			return nil, errors.Wrapf(ErrMissingAttr, "%s name", child)
		}
		e := property.NumberElement{Name: c.Name, Value: strings.TrimSpace(c.Text)}
		if def {
			if c.Format == "" || c.Min == "" || c.Max == "" || c.Step == "" {
				return nil, errors.Wrapf(ErrMissingAttr, "%s format/min/max/step", child)
			}
			e.Label = defaultLabel(c.Label, c.Name)
			e.Format, e.Min, e.Max, e.Step = c.Format, c.Min, c.Max, c.Step
		}
		els = append(els, e)
	}
	return els, nil
}

func (w *wireFrame) switchElements(child string, def bool) ([]property.SwitchElement, error) {
	var els []property.SwitchElement
	for _, c := range w.Children {
		if c.XMLName.Local != child {
			continue
		}
		if c.Name == "" {
			return nil, errors.Wrapf(ErrMissingAttr, "%s name", child)
		}
		e := property.SwitchElement{Name: c.Name, Value: strings.TrimSpace(c.Text)}
		if def {
			e.Label = defaultLabel(c.Label, c.Name)
		}
		els = append(els, e)
	}
	return els, nil
}

func (w *wireFrame) lightElements(child string, def bool) ([]property.LightElement, error) {
	var els []property.LightElement
	for _, c := range w.Children {
		if c.XMLName.Local != child {
			continue
		}
		if c.Name == "" {
			return nil, errors.Wrapf(ErrMissingAttr, "%s name", child)
		}
		e := property.LightElement{Name: c.Name, Value: strings.TrimSpace(c.Text)}
		if def {
			e.Label = defaultLabel(c.Label, c.Name)
		}
		els = append(els, e)
	}
	return els, nil
}

func (w *wireFrame) blobElements(child string, def, decode bool) ([]property.BLOBElement, error) {
	var els []property.BLOBElement
	for _, c := range w.Children {
		if c.XMLName.Local != child {
			continue
		}
		if c.Name == "" {
			return nil, errors.Wrapf(ErrMissingAttr, "%s name", child)
		}
		e := property.BLOBElement{Name: c.Name, Size: c.Size, Format: c.Format}
		if def {
			e.Label = defaultLabel(c.Label, c.Name)
		}
		if decode {
			raw, err := decodeBase64(c.Text)
			if err != nil {
				return nil, errors.Wrapf(ErrBadValue, "%s %s: %v", child, c.Name, err)
			}
			e.Value = raw
		}
		els = append(els, e)
	}
	return els, nil
}

func defaultLabel(label, name string) string {
	if label == "" {
		return name
	}
	return label
}

func defaultTimestamp(ts string) string {
	if ts == "" {
		return property.Now()
	}
	return ts
}

// decodeBase64 tolerates the line wrapping drivers put inside large BLOB
// bodies.
func decodeBase64(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
	if clean == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(clean)
}
