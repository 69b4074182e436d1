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

package client_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"envyd/internal/auth"
	"envyd/internal/client"
	"envyd/internal/device"
	"envyd/internal/dispatch"
	"envyd/internal/protocol"
	"envyd/internal/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startDaemon(t *testing.T, gate auth.Gate) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "envyd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "envyd.sock")

	sim, err := device.NewSimulator([]device.SimulatedDevice{
		{UUID: "GPU-a", Name: "Sim A", Fans: 2},
		{UUID: "GPU-b", Name: "Sim B"},
	})
	require.NoError(t, err)
	mgr := device.NewManager(sim)
	require.NoError(t, mgr.Initialize())

	srv := server.New(server.Config{SocketPath: path}, dispatch.Default(), mgr, gate)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	return path
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("reads device details", func(t *testing.T) {
		c := client.New(startDaemon(t, auth.InsecureGate{}))

		var details dispatch.Details
		require.NoError(t, c.Result(ctx, "nvmlDeviceGetDetailsAll", nil, &details))
		assert.Equal(t, uint32(2), details.Count)
		assert.Zero(t, details.Failures)
		require.Len(t, details.Devices, 2)
		assert.Equal(t, "GPU-a", details.Devices[0].UUID)
		assert.Equal(t, "Sim B", details.Devices[1].Name)
	})

	t.Run("observes the effect of a command", func(t *testing.T) {
		c := client.New(startDaemon(t, auth.InsecureGate{}))

		require.NoError(t, c.Result(ctx, "nvmlDeviceSetFanSpeed",
			map[string]interface{}{"uuid": "GPU-a", "fan": 1, "speed": 65}, nil))

		var fan struct {
			Speed uint32 `json:"speed"`
		}
		require.NoError(t, c.Result(ctx, "nvmlDeviceGetFanSpeed",
			map[string]interface{}{"uuid": "GPU-a", "fan": 1}, &fan))
		assert.Equal(t, uint32(65), fan.Speed)
	})

	t.Run("reports non-success statuses as errors", func(t *testing.T) {
		c := client.New(startDaemon(t, auth.InsecureGate{}))

		err := c.Result(ctx, "nvmlDeviceGetMemoryInfo", map[string]interface{}{"uuid": "GPU-z"}, nil)
		var status *client.StatusError
		require.True(t, errors.As(err, &status))
		assert.Equal(t, "ERROR_NOT_FOUND", status.Status)

		err = c.Result(ctx, "nvmlDeviceReboot", nil, nil)
		require.True(t, errors.As(err, &status))
		assert.Equal(t, "UNDEFINED_INVALID_ACTION", status.Status)
	})

	t.Run("attaches the bearer token to privileged calls", func(t *testing.T) {
		gate, err := auth.NewBearerGate(auth.BearerConfig{Secret: "correct-horse-battery-staple"})
		require.NoError(t, err)
		token, err := gate.Issue(auth.TokenOptions{Subject: "ops", TTL: time.Minute})
		require.NoError(t, err)

		c := client.New(startDaemon(t, gate))
		fields := map[string]interface{}{"uuid": "GPU-b", "fan": 0}

		resp, err := c.Call(ctx, "nvmlDeviceSetDefaultFanSpeed", fields)
		require.NoError(t, err)
		assert.Equal(t, "INVALID_JSON_SCHEMA", resp.Status)

		c.Bearer = token
		resp, err = c.Call(ctx, "nvmlDeviceSetDefaultFanSpeed", fields)
		require.NoError(t, err)
		assert.Equal(t, "SUCCESS", resp.Status)
		assert.Nil(t, resp.Description)
	})

	t.Run("returns raw replies", func(t *testing.T) {
		c := client.New(startDaemon(t, auth.InsecureGate{}))

		reply, err := c.Raw(ctx, []byte(`{"action":`))
		require.NoError(t, err)
		resp, err := protocol.ParseResponse(reply)
		require.NoError(t, err)
		assert.Equal(t, "JSON_PARSING_FAILED", resp.Status)
		assert.Contains(t, resp.DescriptionText(), "failed to parse request")
	})

	t.Run("gets a response to an oversized request", func(t *testing.T) {
		c := client.New(startDaemon(t, auth.InsecureGate{}))

		resp, err := c.Call(ctx, "nvmlDeviceGetNumFans", map[string]interface{}{
			"uuid": "GPU-a",
			"pad":  strings.Repeat("x", 3*server.DefaultBufferSize/2),
		})
		require.NoError(t, err)
		assert.Equal(t, "JSON_PARSING_FAILED", resp.Status)
	})

	t.Run("fails when nothing listens", func(t *testing.T) {
		c := client.New(filepath.Join(t.TempDir(), "absent.sock"))
		_, err := c.Call(ctx, "nvmlDeviceGetDetailsAll", nil)
		assert.ErrorContains(t, err, "failed to connect")
	})
}
