// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package frame

import (
	"encoding/base64"
	"encoding/xml"

	"github.com/pkg/errors"

	"github.com/indimr/indimr/property"
)

// Version is the INDI protocol version the gateway speaks.
const Version = "1.7"

type renderFrame struct {
	XMLName   xml.Name
	Device    string `xml:"device,attr,omitempty"`
	Name      string `xml:"name,attr,omitempty"`
	Label     string `xml:"label,attr,omitempty"`
	Group     string `xml:"group,attr,omitempty"`
	State     string `xml:"state,attr,omitempty"`
	Perm      string `xml:"perm,attr,omitempty"`
	Rule      string `xml:"rule,attr,omitempty"`
	Timeout   string `xml:"timeout,attr,omitempty"`
	Timestamp string `xml:"timestamp,attr,omitempty"`
	Message   string `xml:"message,attr,omitempty"`
	Version   string `xml:"version,attr,omitempty"`
	Text      string `xml:",chardata"`
	Children  []renderChild
}

type renderChild struct {
	XMLName xml.Name
	Name    string `xml:"name,attr,omitempty"`
	Label   string `xml:"label,attr,omitempty"`
	Format  string `xml:"format,attr,omitempty"`
	Min     string `xml:"min,attr,omitempty"`
	Max     string `xml:"max,attr,omitempty"`
	Step    string `xml:"step,attr,omitempty"`
	Size    string `xml:"size,attr,omitempty"`
	Text    string `xml:",chardata"`
}

func name(t Tag) xml.Name { return xml.Name{Local: string(t)} }

// Render produces the wire form of a frame. BLOB payloads are
// base64-encoded here and nowhere else.
func Render(f Frame) ([]byte, error) {
	var r renderFrame
	switch f := f.(type) {
	case DefText:
		r = headerFrame(DefTextVector, f.Header)
		r.Perm = string(f.Perm)
		for _, e := range f.Elements {
			r.Children = append(r.Children, renderChild{
				XMLName: name("defText"), Name: e.Name, Label: e.Label, Text: e.Value,
			})
		}
	case DefNumber:
		r = headerFrame(DefNumberVector, f.Header)
		r.Perm = string(f.Perm)
		for _, e := range f.Elements {
			r.Children = append(r.Children, renderChild{
				XMLName: name("defNumber"), Name: e.Name, Label: e.Label,
				Format: e.Format, Min: e.Min, Max: e.Max, Step: e.Step, Text: e.Value,
			})
		}
	case DefSwitch:
		r = headerFrame(DefSwitchVector, f.Header)
		r.Perm = string(f.Perm)
		r.Rule = string(f.Rule)
		for _, e := range f.Elements {
			r.Children = append(r.Children, renderChild{
				XMLName: name("defSwitch"), Name: e.Name, Label: e.Label, Text: e.Value,
			})
		}
	case DefLight:
		r = headerFrame(DefLightVector, f.Header)
		// Lights carry neither perm nor timeout on the wire.
		r.Perm, r.Timeout = "", ""
		for _, e := range f.Elements {
			r.Children = append(r.Children, renderChild{
				XMLName: name("defLight"), Name: e.Name, Label: e.Label, Text: e.Value,
			})
		}
	case DefBLOB:
		r = headerFrame(DefBLOBVector, f.Header)
		r.Perm = string(f.Perm)
		for _, e := range f.Elements {
			r.Children = append(r.Children, renderChild{
				XMLName: name("defBLOB"), Name: e.Name, Label: e.Label,
				Size: e.Size, Format: e.Format,
			})
		}

	case SetText:
		r = headerFrame(SetTextVector, f.Header)
		for _, e := range f.Elements {
			r.Children = append(r.Children, renderChild{
				XMLName: name("oneText"), Name: e.Name, Text: e.Value,
			})
		}
	case SetNumber:
		r = headerFrame(SetNumberVector, f.Header)
		for _, e := range f.Elements {
			r.Children = append(r.Children, renderChild{
				XMLName: name("oneNumber"), Name: e.Name, Text: e.Value,
			})
		}
	case SetSwitch:
		r = headerFrame(SetSwitchVector, f.Header)
		for _, e := range f.Elements {
			r.Children = append(r.Children, renderChild{
				XMLName: name("oneSwitch"), Name: e.Name, Text: e.Value,
			})
		}
	case SetLight:
		r = headerFrame(SetLightVector, f.Header)
		r.Timeout = ""
		for _, e := range f.Elements {
			r.Children = append(r.Children, renderChild{
				XMLName: name("oneLight"), Name: e.Name, Text: e.Value,
			})
		}
	case SetBLOB:
		r = headerFrame(SetBLOBVector, f.Header)
		for _, e := range f.Elements {
			r.Children = append(r.Children, renderChild{
				XMLName: name("oneBLOB"), Name: e.Name, Size: e.Size, Format: e.Format,
				Text: base64.StdEncoding.EncodeToString(e.Value),
			})
		}

	case Msg:
		r = renderFrame{
			XMLName:   name(Message),
			Device:    f.Device,
			Timestamp: f.Timestamp,
			Message:   f.Text,
		}
	case Del:
		r = renderFrame{
			XMLName:   name(DelProperty),
			Device:    f.Device,
			Name:      f.Name,
			Timestamp: f.Timestamp,
			Message:   f.Message,
		}

	case Get:
		r = renderFrame{XMLName: name(GetProperties), Device: f.Device, Name: f.Name, Version: f.Version}
		if r.Version == "" {
			r.Version = Version
		}
	case Enable:
		r = renderFrame{XMLName: name(EnableBLOB), Device: f.Device, Name: f.Name, Text: string(f.State)}

	case NewText:
		r = renderFrame{XMLName: name(NewTextVector), Device: f.Device, Name: f.Name, Timestamp: f.Timestamp}
		for _, e := range f.Elements {
			r.Children = append(r.Children, renderChild{XMLName: name("oneText"), Name: e.Name, Text: e.Value})
		}
	case NewNumber:
		r = renderFrame{XMLName: name(NewNumberVector), Device: f.Device, Name: f.Name, Timestamp: f.Timestamp}
		for _, e := range f.Elements {
			r.Children = append(r.Children, renderChild{XMLName: name("oneNumber"), Name: e.Name, Text: e.Value})
		}
	case NewSwitch:
		r = renderFrame{XMLName: name(NewSwitchVector), Device: f.Device, Name: f.Name, Timestamp: f.Timestamp}
		for _, e := range f.Elements {
			r.Children = append(r.Children, renderChild{XMLName: name("oneSwitch"), Name: e.Name, Text: e.Value})
		}
	case NewBLOB:
		r = renderFrame{XMLName: name(NewBLOBVector), Device: f.Device, Name: f.Name, Timestamp: f.Timestamp}
		for _, e := range f.Elements {
			r.Children = append(r.Children, renderChild{
				XMLName: name("oneBLOB"), Name: e.Name, Size: e.Size, Format: e.Format,
				Text: base64.StdEncoding.EncodeToString(e.Value),
			})
		}

	default:
		return nil, errors.Wrapf(ErrUnknownTag, "%T", f)
	}
	return xml.Marshal(r)
}

func headerFrame(t Tag, h property.Header) renderFrame {
	return renderFrame{
		XMLName:   name(t),
		Device:    h.Device,
		Name:      h.Name,
		Label:     h.Label,
		Group:     h.Group,
		State:     string(h.State),
		Timeout:   h.Timeout,
		Timestamp: h.Timestamp,
		Message:   h.Message,
	}
}
