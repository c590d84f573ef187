// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/indimr/indimr/frame"
	"github.com/indimr/indimr/property"
)

// Apply ingests one server-direction frame: it mutates the mirrored state
// and then publishes a single alert on the from-indi channel. Client
// direction frames are ignored.
//
// A set frame naming an unknown device or property is dropped without an
// alert; the remote may have been subscribed mid-session.
func (s *Store) Apply(ctx context.Context, f frame.Frame) error {
	switch f := f.(type) {
	case frame.DefText:
		return s.define(ctx, f.FrameTag(), f.Header, defAttrs(f.Header, property.Text, ""), textFields(f.Elements, true))
	case frame.DefNumber:
		return s.define(ctx, f.FrameTag(), f.Header, defAttrs(f.Header, property.Number, ""), numberFields(f.Elements, true))
	case frame.DefSwitch:
		return s.define(ctx, f.FrameTag(), f.Header, defAttrs(f.Header, property.Switch, string(f.Rule)), switchFields(f.Elements, true))
	case frame.DefLight:
		return s.define(ctx, f.FrameTag(), f.Header, defAttrs(f.Header, property.Light, ""), lightFields(f.Elements, true))
	case frame.DefBLOB:
		return s.define(ctx, f.FrameTag(), f.Header, defAttrs(f.Header, property.BLOB, ""), blobDefFields(f.Elements))

	case frame.SetText:
		return s.update(ctx, f.FrameTag(), f.Header, textFields(f.Elements, false))
	case frame.SetNumber:
		return s.updateNumbers(ctx, f.Header, f.Elements)
	case frame.SetSwitch:
		return s.update(ctx, f.FrameTag(), f.Header, switchFields(f.Elements, false))
	case frame.SetLight:
		return s.updateLight(ctx, f.Header, lightFields(f.Elements, false))
	case frame.SetBLOB:
		return s.updateBLOBs(ctx, f.Header, f.Elements)

	case frame.Msg:
		alert := "message"
		if f.Device != "" {
			alert += ":" + f.Device
		}
		if err := s.SetMessage(ctx, f.Device, f.Timestamp, f.Text); err != nil {
			return err
		}
		return s.logAlert(ctx, f.Timestamp, alert)

	case frame.Del:
		if f.Name != "" {
			return s.deleteProperty(ctx, f.Delete)
		}
		return s.deleteDevice(ctx, f.Delete)
	}
	return nil
}

// defAttrs flattens a definition header into the attribute hash. The
// "vector" field tags the kind so that readers can reconstruct the type.
func defAttrs(h property.Header, kind property.Kind, rule string) map[string]string {
	attrs := map[string]string{
		"device":    h.Device,
		"name":      h.Name,
		"label":     h.Label,
		"group":     h.Group,
		"state":     string(h.State),
		"perm":      string(h.Perm),
		"timeout":   h.Timeout,
		"timestamp": h.Timestamp,
		"message":   h.Message,
		"vector":    string(kind),
	}
	if rule != "" {
		attrs["rule"] = rule
	}
	return attrs
}

// setAttrs carries only the attributes a set frame may change. An empty
// state was absent on the wire and leaves the stored state alone.
func setAttrs(h property.Header, timeout bool) map[string]string {
	attrs := map[string]string{
		"timestamp": h.Timestamp,
		"message":   h.Message,
	}
	if h.State != "" {
		attrs["state"] = string(h.State)
	}
	if timeout {
		attrs["timeout"] = h.Timeout
	}
	return attrs
}

type elementFields struct {
	name   string
	fields map[string]string
}

func textFields(els []property.TextElement, def bool) []elementFields {
	out := make([]elementFields, len(els))
	for i, e := range els {
		f := map[string]string{"name": e.Name, "value": e.Value}
		if def {
			f["label"] = e.Label
		}
		out[i] = elementFields{e.Name, f}
	}
	return out
}

func numberFields(els []property.NumberElement, def bool) []elementFields {
	out := make([]elementFields, len(els))
	for i, e := range els {
		f := map[string]string{
			"name":   e.Name,
			"format": e.Format,
			"min":    e.Min,
			"max":    e.Max,
			"step":   e.Step,
			"value":  e.Value,
		}
		if def {
			f["label"] = e.Label
		}
		if formatted, err := e.Formatted(); err == nil {
			f["formatted_number"] = formatted
		} else {
			f["formatted_number"] = e.Value
		}
		out[i] = elementFields{e.Name, f}
	}
	return out
}

func switchFields(els []property.SwitchElement, def bool) []elementFields {
	out := make([]elementFields, len(els))
	for i, e := range els {
		f := map[string]string{"name": e.Name, "value": e.Value}
		if def {
			f["label"] = e.Label
		}
		out[i] = elementFields{e.Name, f}
	}
	return out
}

func lightFields(els []property.LightElement, def bool) []elementFields {
	out := make([]elementFields, len(els))
	for i, e := range els {
		f := map[string]string{"name": e.Name, "value": e.Value}
		if def {
			f["label"] = e.Label
		}
		out[i] = elementFields{e.Name, f}
	}
	return out
}

func blobDefFields(els []property.BLOBElement) []elementFields {
	out := make([]elementFields, len(els))
	for i, e := range els {
		out[i] = elementFields{e.Name, map[string]string{
			"name":   e.Name,
			"label":  e.Label,
			"size":   e.Size,
			"format": e.Format,
		}}
	}
	return out
}

// define installs or replaces a property. Elements of a previous
// definition not named again are removed.
func (s *Store) define(ctx context.Context, tag frame.Tag, h property.Header, attrs map[string]string, els []elementFields) error {
	old, err := s.Elements(ctx, h.Device, h.Name)
	if err != nil {
		return err
	}
	current := make(map[string]bool, len(els))
	for _, e := range els {
		current[e.name] = true
	}
	err = s.conn.Pipelined(ctx, func(c Conn) error {
		if err := c.SAdd(ctx, s.Key("devices"), h.Device); err != nil {
			return err
		}
		if err := c.SAdd(ctx, s.Key("properties", h.Device), h.Name); err != nil {
			return err
		}
		// Replace, not merge: a redefinition must not leave stale fields
		// such as a rule from a previous kind.
		if err := c.Del(ctx, s.Key("attributes", h.Name, h.Device)); err != nil {
			return err
		}
		if err := c.HSet(ctx, s.Key("attributes", h.Name, h.Device), attrs); err != nil {
			return err
		}
		for _, name := range old {
			if current[name] {
				continue
			}
			if err := c.SRem(ctx, s.Key("elements", h.Name, h.Device), name); err != nil {
				return err
			}
			if err := c.Del(ctx, s.Key("elementattributes", name, h.Name, h.Device)); err != nil {
				return err
			}
		}
		for _, e := range els {
			if err := c.SAdd(ctx, s.Key("elements", h.Name, h.Device), e.name); err != nil {
				return err
			}
			if err := c.Del(ctx, s.Key("elementattributes", e.name, h.Name, h.Device)); err != nil {
				return err
			}
			if err := c.HSet(ctx, s.Key("elementattributes", e.name, h.Name, h.Device), e.fields); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.snapshotProperty(ctx, tag, h, els); err != nil {
		return err
	}
	return s.logAlert(ctx, h.Timestamp, fmt.Sprintf("%s:%s:%s", tag, h.Name, h.Device))
}

// update applies a set frame for text and switch vectors; number, light
// and BLOB sets have extra rules.
func (s *Store) update(ctx context.Context, tag frame.Tag, h property.Header, els []elementFields) error {
	return s.applySet(ctx, tag, h, setAttrs(h, true), els)
}

func (s *Store) updateLight(ctx context.Context, h property.Header, els []elementFields) error {
	// Lights carry no timeout.
	return s.applySet(ctx, frame.SetLightVector, h, setAttrs(h, false), els)
}

// updateNumbers recomputes each formatted_number from the format stored
// at definition time.
func (s *Store) updateNumbers(ctx context.Context, h property.Header, els []property.NumberElement) error {
	fields := make([]elementFields, 0, len(els))
	for _, e := range els {
		stored, err := s.Element(ctx, h.Device, h.Name, e.Name)
		if err != nil {
			return err
		}
		e.Format = stored["format"]
		f := map[string]string{"name": e.Name, "value": e.Value}
		if formatted, err := e.Formatted(); err == nil {
			f["formatted_number"] = formatted
		} else {
			f["formatted_number"] = e.Value
		}
		fields = append(fields, elementFields{e.Name, f})
	}
	return s.applySet(ctx, frame.SetNumberVector, h, setAttrs(h, true), fields)
}

// updateBLOBs hands each payload to the sink and records the stored
// filename, never the payload itself.
func (s *Store) updateBLOBs(ctx context.Context, h property.Header, els []property.BLOBElement) error {
	fields := make([]elementFields, 0, len(els))
	for _, e := range els {
		f := map[string]string{"name": e.Name, "size": e.Size, "format": e.Format}
		if s.sink != nil {
			name, err := s.sink.Write(h.Device, h.Name, e.Name, h.Timestamp, e.Format, e.Value)
			if err != nil {
				// A full disk must not stall the instrument mirror.
				s.log.Warn("blob write failed",
					zap.String("device", h.Device),
					zap.String("property", h.Name),
					zap.String("element", e.Name),
					zap.Error(err))
			} else {
				f["filename"] = name
			}
		}
		fields = append(fields, elementFields{e.Name, f})
	}
	return s.applySet(ctx, frame.SetBLOBVector, h, setAttrs(h, true), fields)
}

func (s *Store) applySet(ctx context.Context, tag frame.Tag, h property.Header, attrs map[string]string, els []elementFields) error {
	known, err := s.HasProperty(ctx, h.Device, h.Name)
	if err != nil {
		return err
	}
	if !known {
		s.log.Debug("set for unknown property dropped",
			zap.String("device", h.Device), zap.String("property", h.Name))
		return nil
	}
	if _, ok := attrs["timeout"]; ok {
		stored, err := s.Attributes(ctx, h.Device, h.Name)
		if err != nil {
			return err
		}
		// Timeout is a worst-case time to effect a change; it has no
		// meaning on a read-only property.
		if stored["perm"] == string(property.ReadOnly) {
			delete(attrs, "timeout")
		}
	}
	members, err := s.Elements(ctx, h.Device, h.Name)
	if err != nil {
		return err
	}
	defined := make(map[string]bool, len(members))
	for _, m := range members {
		defined[m] = true
	}
	kept := els[:0]
	for _, e := range els {
		if defined[e.name] {
			kept = append(kept, e)
		}
	}
	err = s.conn.Pipelined(ctx, func(c Conn) error {
		if err := c.HSet(ctx, s.Key("attributes", h.Name, h.Device), attrs); err != nil {
			return err
		}
		for _, e := range kept {
			if err := c.HSet(ctx, s.Key("elementattributes", e.name, h.Name, h.Device), e.fields); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.snapshotProperty(ctx, tag, h, kept); err != nil {
		return err
	}
	return s.logAlert(ctx, h.Timestamp, fmt.Sprintf("%s:%s:%s", tag, h.Name, h.Device))
}

// snapshotProperty records the change-detected logs touched by a def or
// set frame.
func (s *Store) snapshotProperty(ctx context.Context, tag frame.Tag, h property.Header, els []elementFields) error {
	devices, err := s.Devices(ctx)
	if err != nil {
		return err
	}
	if err := s.LogSnapshot(ctx, "devices", "devices", h.Timestamp, devices); err != nil {
		return err
	}
	names, err := s.Properties(ctx, h.Device)
	if err != nil {
		return err
	}
	if err := s.LogSnapshot(ctx, "properties", "properties:"+h.Device, h.Timestamp, names); err != nil {
		return err
	}
	attrs, err := s.Attributes(ctx, h.Device, h.Name)
	if err != nil {
		return err
	}
	suffix := fmt.Sprintf("attributes:%s:%s", h.Name, h.Device)
	if err := s.LogSnapshot(ctx, "attributes", suffix, h.Timestamp, attrs); err != nil {
		return err
	}
	elements, err := s.Elements(ctx, h.Device, h.Name)
	if err != nil {
		return err
	}
	suffix = fmt.Sprintf("elements:%s:%s", h.Name, h.Device)
	if err := s.LogSnapshot(ctx, "elements", suffix, h.Timestamp, elements); err != nil {
		return err
	}
	category := vectorCategory(tag)
	for _, e := range els {
		stored, err := s.Element(ctx, h.Device, h.Name, e.name)
		if err != nil {
			return err
		}
		suffix = fmt.Sprintf("elementattributes:%s:%s:%s", e.name, h.Name, h.Device)
		if err := s.LogSnapshot(ctx, category, suffix, h.Timestamp, stored); err != nil {
			return err
		}
	}
	return nil
}

// deleteProperty removes one property and records a device message.
func (s *Store) deleteProperty(ctx context.Context, d property.Delete) error {
	if err := s.dropProperty(ctx, d.Device, d.Name); err != nil {
		return err
	}
	text := d.Message
	if text == "" {
		text = fmt.Sprintf("Property %s deleted from device %s", d.Name, d.Device)
	}
	if err := s.SetMessage(ctx, d.Device, d.Timestamp, text); err != nil {
		return err
	}
	return s.logAlert(ctx, d.Timestamp, fmt.Sprintf("delProperty:%s:%s", d.Name, d.Device))
}

// deleteDevice cascades over every property of the device and records a
// site-wide message.
func (s *Store) deleteDevice(ctx context.Context, d property.Delete) error {
	names, err := s.Properties(ctx, d.Device)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := s.dropProperty(ctx, d.Device, name); err != nil {
			return err
		}
	}
	err = s.conn.Del(ctx,
		s.Key("properties", d.Device),
		s.Key("devicemessages", d.Device))
	if err != nil {
		return err
	}
	if err := s.conn.SRem(ctx, s.Key("devices"), d.Device); err != nil {
		return err
	}
	text := d.Message
	if text == "" {
		text = fmt.Sprintf("Device %s deleted", d.Device)
	}
	if err := s.SetMessage(ctx, "", d.Timestamp, text); err != nil {
		return err
	}
	return s.logAlert(ctx, d.Timestamp, "delDevice:"+d.Device)
}

func (s *Store) dropProperty(ctx context.Context, device, name string) error {
	elements, err := s.Elements(ctx, device, name)
	if err != nil {
		return err
	}
	return s.conn.Pipelined(ctx, func(c Conn) error {
		for _, e := range elements {
			if err := c.Del(ctx, s.Key("elementattributes", e, name, device)); err != nil {
				return err
			}
		}
		if err := c.Del(ctx,
			s.Key("elements", name, device),
			s.Key("attributes", name, device)); err != nil {
			return err
		}
		return c.SRem(ctx, s.Key("properties", device), name)
	})
}
