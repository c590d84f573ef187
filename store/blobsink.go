// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package store

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// A BLOBSink writes accepted BLOB payloads to a folder, one file per
// element update, named `<device>_<property>_<element>_<timestamp><format>`
// with characters unsafe in filenames or URLs replaced.
type BLOBSink struct {
	fs     afero.Fs
	folder string
}

// NewBLOBSink creates folder if missing and returns a sink writing into
// it. The afero filesystem keeps tests off the real disk.
func NewBLOBSink(fs afero.Fs, folder string) (*BLOBSink, error) {
	if folder == "" {
		return nil, errors.New("store: blob folder not set")
	}
	if err := fs.MkdirAll(folder, 0o755); err != nil {
		return nil, errors.Wrapf(err, "store: blob folder %s", folder)
	}
	return &BLOBSink{fs: fs, folder: folder}, nil
}

// Write stores one payload and returns the filename (not the full path)
// recorded in the element attributes.
func (b *BLOBSink) Write(device, property, element, timestamp, format string, payload []byte) (string, error) {
	name := safeName(device+"_"+property+"_"+element+"_"+timestamp) + safeSuffix(format)
	path := filepath.Join(b.folder, name)
	if err := afero.WriteFile(b.fs, path, payload, 0o644); err != nil {
		return "", errors.Wrapf(err, "store: write blob %s", name)
	}
	return name, nil
}

// Folder returns the destination folder.
func (b *BLOBSink) Folder() string { return b.folder }

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		}
		return '_'
	}, s)
}

// safeSuffix keeps dots so compound formats like ".fits.z" survive.
func safeSuffix(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		}
		return '_'
	}, s)
}
