// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/indimr/indimr/internal/alphanum"
	"github.com/indimr/indimr/property"
	"github.com/indimr/indimr/store"
)

// ErrUnknownProperty is returned by Property for a (device, name) pair the
// store has never seen defined.
var ErrUnknownProperty = errors.New("client: unknown property")

// The read side serves GUI collaborators: listings come back sorted and
// element maps are ordered the way an instrument panel lays them out.

// Devices lists the known device names, sorted.
func (c *Client) Devices(ctx context.Context) ([]string, error) {
	return c.store.Devices(ctx)
}

// Properties lists the property names of a device, sorted.
func (c *Client) Properties(ctx context.Context, device string) ([]string, error) {
	return c.store.Properties(ctx, device)
}

// PropertyAttributes returns the attribute hash of one property; empty
// when unknown.
func (c *Client) PropertyAttributes(ctx context.Context, device, name string) (map[string]string, error) {
	return c.store.Attributes(ctx, device, name)
}

// ElementAttributes returns the attribute hash of one element; empty when
// unknown.
func (c *Client) ElementAttributes(ctx context.Context, device, name, element string) (map[string]string, error) {
	return c.store.Element(ctx, device, name, element)
}

// PropertyElements returns every element attribute hash of a property,
// ordered by label. Labels like "Slot 2" and "Slot 10" sort numerically,
// the way a GUI wants them listed.
func (c *Client) PropertyElements(ctx context.Context, device, name string) ([]map[string]string, error) {
	elements, err := c.elementFields(ctx, device, name)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(elements, func(i, j int) bool {
		return alphanum.Less(elements[i]["label"], elements[j]["label"])
	})
	return elements, nil
}

// Property reconstructs the typed vector stored for (device, name), with
// elements ordered by label. The kind tag recorded at definition time
// selects the concrete type, so callers can switch on VectorKind.
func (c *Client) Property(ctx context.Context, device, name string) (property.Vector, error) {
	attrs, err := c.store.Attributes(ctx, device, name)
	if err != nil {
		return nil, err
	}
	if len(attrs) == 0 {
		return nil, errors.Wrapf(ErrUnknownProperty, "%s %s", device, name)
	}
	h := property.Header{
		Device:    attrs["device"],
		Name:      attrs["name"],
		Label:     attrs["label"],
		Group:     attrs["group"],
		State:     property.State(attrs["state"]),
		Perm:      property.Perm(attrs["perm"]),
		Timeout:   attrs["timeout"],
		Timestamp: attrs["timestamp"],
		Message:   attrs["message"],
	}
	els, err := c.elementFields(ctx, device, name)
	if err != nil {
		return nil, err
	}

	switch property.Kind(attrs["vector"]) {
	case property.Text:
		v := &property.TextVector{Header: h}
		for _, f := range els {
			v.Elements = append(v.Elements, property.TextElement{
				Name: f["name"], Label: f["label"], Value: f["value"],
			})
		}
		v.SortElements()
		return v, nil
	case property.Number:
		v := &property.NumberVector{Header: h}
		for _, f := range els {
			v.Elements = append(v.Elements, property.NumberElement{
				Name: f["name"], Label: f["label"], Format: f["format"],
				Min: f["min"], Max: f["max"], Step: f["step"], Value: f["value"],
			})
		}
		v.SortElements()
		return v, nil
	case property.Switch:
		v := &property.SwitchVector{Header: h, Rule: property.Rule(attrs["rule"])}
		for _, f := range els {
			v.Elements = append(v.Elements, property.SwitchElement{
				Name: f["name"], Label: f["label"], Value: f["value"],
			})
		}
		v.SortElements()
		return v, nil
	case property.Light:
		v := &property.LightVector{Header: h}
		for _, f := range els {
			v.Elements = append(v.Elements, property.LightElement{
				Name: f["name"], Label: f["label"], Value: f["value"],
			})
		}
		v.SortElements()
		return v, nil
	case property.BLOB:
		// Payload bytes live in the BLOB folder; only size, format and
		// filename are mirrored here.
		v := &property.BLOBVector{Header: h}
		for _, f := range els {
			v.Elements = append(v.Elements, property.BLOBElement{
				Name: f["name"], Label: f["label"], Size: f["size"], Format: f["format"],
			})
		}
		v.SortElements()
		return v, nil
	}
	return nil, errors.Wrapf(ErrUnknownProperty, "%s %s: bad kind %q", device, name, attrs["vector"])
}

// elementFields reads every element attribute hash of a property, in the
// store's unsorted order.
func (c *Client) elementFields(ctx context.Context, device, name string) ([]map[string]string, error) {
	names, err := c.store.Elements(ctx, device, name)
	if err != nil {
		return nil, err
	}
	fields := make([]map[string]string, 0, len(names))
	for _, n := range names {
		f, err := c.store.Element(ctx, device, name, n)
		if err != nil {
			return nil, err
		}
		if len(f) == 0 {
			continue
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// LastMessage returns the last recorded "<timestamp> <text>" message,
// site-wide when device is empty.
func (c *Client) LastMessage(ctx context.Context, device string) (string, error) {
	return c.store.Message(ctx, device)
}

// Logs returns a bounded change log, newest first. The suffix names the
// logged key, e.g. "devices" or "attributes:<property>:<device>".
func (c *Client) Logs(ctx context.Context, suffix string) ([]store.LogEntry, error) {
	return c.store.Logs(ctx, suffix)
}
