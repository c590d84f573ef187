// Copyright 2024 The Indimr Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/indimr/indimr/store"
)

func TestLogSnapshotChangeDetection(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.LogSnapshot(ctx, "devices", "devices", "T0", []string{"Scope"}))
	// Identical value: no new entry even with a newer timestamp.
	require.NoError(t, s.LogSnapshot(ctx, "devices", "devices", "T1", []string{"Scope"}))
	require.NoError(t, s.LogSnapshot(ctx, "devices", "devices", "T2", []string{"CCD", "Scope"}))

	logs, err := s.Logs(ctx, "devices")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, "T2", logs[0].Timestamp)
	require.JSONEq(t, `["CCD","Scope"]`, string(logs[0].Data))
	require.Equal(t, "T0", logs[1].Timestamp)
}

func TestLogSnapshotBounded(t *testing.T) {
	ctx := context.Background()
	s := store.New(store.NewMemConn(), store.Options{
		Prefix:     "test_",
		LogLengths: map[string]int{"attributes": 3},
	})

	for i := 0; i < 10; i++ {
		ts := fmt.Sprintf("T%d", i)
		require.NoError(t, s.LogSnapshot(ctx, "attributes", "attributes:P:D", ts, map[string]int{"n": i}))
	}

	logs, err := s.Logs(ctx, "attributes:P:D")
	require.NoError(t, err)
	require.Len(t, logs, 3)
	require.Equal(t, "T9", logs[0].Timestamp)
	require.Equal(t, "T7", logs[2].Timestamp)
}

func TestLogSnapshotHashOrderInsensitive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Maps marshal with sorted keys, so two writes of the same hash are
	// detected as unchanged regardless of insertion order.
	a := map[string]string{"state": "Ok", "value": "1"}
	b := map[string]string{"value": "1", "state": "Ok"}
	require.NoError(t, s.LogSnapshot(ctx, "attributes", "attributes:P:D", "T0", a))
	require.NoError(t, s.LogSnapshot(ctx, "attributes", "attributes:P:D", "T1", b))

	logs, err := s.Logs(ctx, "attributes:P:D")
	require.NoError(t, err)
	require.Len(t, logs, 1)
}
