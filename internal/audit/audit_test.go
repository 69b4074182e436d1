// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package audit_test

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"envyd/internal/audit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) *audit.Log {
	t.Helper()
	l, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLog(t *testing.T) {
	t.Run("returns entries newest first", func(t *testing.T) {
		l := open(t)
		at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

		require.NoError(t, l.Record(audit.Entry{
			Time: at, Action: "nvmlDeviceSetFanSpeed", UUID: "GPU-1", Peer: "pid 7 uid 1000 gid 1000",
			Description: "Set fan 0 of GPU-1 to 80%", Strategy: "consent", Decision: "granted", Status: "SUCCESS",
		}))
		require.NoError(t, l.Record(audit.Entry{
			Time: at.Add(time.Second), Action: "nvmlDeviceResetGpuLockedClocks", UUID: "GPU-1",
			Strategy: "bearer", Decision: "denied", Status: "AUTHORIZATION_FAILED",
		}))

		entries, err := l.Recent(10)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		assert.Equal(t, "nvmlDeviceResetGpuLockedClocks", entries[0].Action)
		assert.Equal(t, "denied", entries[0].Decision)
		assert.Empty(t, entries[0].Peer)

		assert.Equal(t, "Set fan 0 of GPU-1 to 80%", entries[1].Description)
		assert.True(t, at.Equal(entries[1].Time))
	})

	t.Run("limits the result", func(t *testing.T) {
		l := open(t)
		for i := 0; i < 5; i++ {
			require.NoError(t, l.Record(audit.Entry{Action: "a", Strategy: "insecure", Decision: "granted", Status: "SUCCESS"}))
		}
		entries, err := l.Recent(3)
		require.NoError(t, err)
		assert.Len(t, entries, 3)
		assert.False(t, entries[0].Time.IsZero())
	})

	t.Run("accepts concurrent writers", func(t *testing.T) {
		l := open(t)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, l.Record(audit.Entry{Action: "a", Strategy: "insecure", Decision: "granted", Status: "SUCCESS"}))
			}()
		}
		wg.Wait()
		entries, err := l.Recent(100)
		require.NoError(t, err)
		assert.Len(t, entries, 8)
	})

	t.Run("persists across reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "audit.db")
		l, err := audit.Open(path)
		require.NoError(t, err)
		require.NoError(t, l.Record(audit.Entry{Action: "a", Strategy: "insecure", Decision: "granted", Status: "SUCCESS"}))
		require.NoError(t, l.Close())

		l, err = audit.Open(path)
		require.NoError(t, err)
		defer l.Close()
		entries, err := l.Recent(0)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}
