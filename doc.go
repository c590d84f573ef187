// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package indimr holds the connection records shared by the gateway
// programs: the INDI server to attach to, the redis server backing the
// store, and the MQTT broker joining remote sites.
//
// The records are plain values validated by their Validate methods; the
// sub-packages do the actual work. frame and property implement the
// wire codec and data model, store persists instrument state in redis,
// transport adapts the four endpoints to a common duplex interface, and
// bridge runs the gateway topologies built from them.
package indimr // import "github.com/indimr/indimr"
