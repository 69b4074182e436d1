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

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"envyd/internal/auth"
	"envyd/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
socket:
  path: /run/envyd.sock
  mode: "0660"
  receive_timeout: 3s
authorization:
  strategy: bearer
  bearer:
    secret: 0123456789abcdef0123
    audience: gpu-admin
    single_use: true
device:
  backend: simulator
  devices:
    - uuid: GPU-a
      name: Sim A
      fans: 2
    - uuid: GPU-b
      name: Sim B
metrics:
  address: 127.0.0.1:9400
logging:
  level: debug
  format: json
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("uses defaults without a file", func(t *testing.T) {
		cfg, err := config.Load("")
		require.NoError(t, err)
		assert.Equal(t, "/tmp/envyd.socket", cfg.Socket.Path)
		assert.Equal(t, auth.StrategyConsent, cfg.Authorization.Strategy)
		assert.Equal(t, config.BackendSimulator, cfg.Device.Backend)

		mode, err := cfg.SocketMode()
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o666), mode)
	})

	t.Run("reads a file over the defaults", func(t *testing.T) {
		cfg, err := config.Load(writeFile(t, "envyd.yaml", sampleConfig))
		require.NoError(t, err)

		assert.Equal(t, "/run/envyd.sock", cfg.Socket.Path)
		assert.Equal(t, 3*time.Second, cfg.Socket.ReceiveTimeout)
		assert.Equal(t, 10*time.Second, cfg.Socket.WriteTimeout, "unset keys keep defaults")
		assert.Equal(t, 8*1024, cfg.Socket.BufferSize)
		assert.True(t, cfg.Authorization.Bearer.SingleUse)
		assert.Equal(t, "envyd", cfg.Authorization.Bearer.Issuer)
		require.Len(t, cfg.Device.Devices, 2)
		assert.Equal(t, uint32(2), cfg.Device.Devices[0].Fans)
		assert.Equal(t, "json", cfg.Logging.Format)

		srv := cfg.Server()
		assert.Equal(t, os.FileMode(0o660), srv.SocketMode)
		assert.Equal(t, 3*time.Second, srv.ReceiveTimeout)

		opts := cfg.Auth()
		assert.Equal(t, auth.StrategyBearer, opts.Strategy)
		assert.Equal(t, "gpu-admin", opts.Bearer.Audience)
	})

	t.Run("applies environment overrides", func(t *testing.T) {
		t.Setenv("ENVYD_SOCKET_PATH", "/run/other.sock")
		t.Setenv("ENVYD_AUTH_STRATEGY", "insecure")
		t.Setenv("ENVYD_LOG_LEVEL", "warn")
		t.Setenv("ENVYD_METRICS_ADDRESS", ":9500")
		t.Setenv("ENVYD_AUDIT_PATH", "/var/lib/envyd/audit.db")

		cfg, err := config.Load(writeFile(t, "envyd.yaml", sampleConfig))
		require.NoError(t, err)
		assert.Equal(t, "/run/other.sock", cfg.Socket.Path)
		assert.Equal(t, auth.StrategyInsecure, cfg.Authorization.Strategy)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, ":9500", cfg.Metrics.Address)
		assert.Equal(t, "/var/lib/envyd/audit.db", cfg.Audit.Path)
	})

	t.Run("reads the bearer secret from a file", func(t *testing.T) {
		secret := writeFile(t, "secret", "  fedcba9876543210fedcba  \n")
		cfg, err := config.Load(writeFile(t, "envyd.yaml", `
authorization:
  strategy: bearer
  bearer:
    secret_file: `+secret+`
`))
		require.NoError(t, err)
		assert.Equal(t, "fedcba9876543210fedcba", cfg.Authorization.Bearer.Secret)
	})

	t.Run("prefers the environment secret over the file", func(t *testing.T) {
		t.Setenv("ENVYD_BEARER_SECRET", "from-environment-secret")
		cfg, err := config.Load(writeFile(t, "envyd.yaml", `
authorization:
  strategy: bearer
  bearer:
    secret_file: /does/not/exist
`))
		require.NoError(t, err)
		assert.Equal(t, "from-environment-secret", cfg.Authorization.Bearer.Secret)
	})

	t.Run("fails on a missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("fails on malformed yaml", func(t *testing.T) {
		_, err := config.Load(writeFile(t, "bad.yaml", "socket: [unterminated"))
		assert.ErrorContains(t, err, "failed to parse config file")
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *config.Config)
		want   string
	}{
		{"empty socket path", func(c *config.Config) { c.Socket.Path = "" }, "socket.path is required"},
		{"non-octal mode", func(c *config.Config) { c.Socket.Mode = "rw-rw-rw-" }, "socket.mode"},
		{"mode beyond permissions", func(c *config.Config) { c.Socket.Mode = "7777" }, "socket.mode"},
		{"tiny buffer", func(c *config.Config) { c.Socket.BufferSize = 8 }, "socket.buffer_size"},
		{"zero receive timeout", func(c *config.Config) { c.Socket.ReceiveTimeout = 0 }, "socket.receive_timeout"},
		{"unknown strategy", func(c *config.Config) { c.Authorization.Strategy = "polkit" }, "unknown authorization.strategy"},
		{"bearer without secret", func(c *config.Config) { c.Authorization.Strategy = auth.StrategyBearer }, "secret or secret_file is required"},
		{"short bearer secret", func(c *config.Config) {
			c.Authorization.Strategy = auth.StrategyBearer
			c.Authorization.Bearer.Secret = "short"
		}, "at least 16 characters"},
		{"command dialog without command", func(c *config.Config) {
			c.Authorization.Consent.Dialog = auth.DialogCommand
		}, "consent.command is required"},
		{"unknown dialog", func(c *config.Config) { c.Authorization.Consent.Dialog = "zenity" }, "unknown authorization.consent.dialog"},
		{"unknown backend", func(c *config.Config) { c.Device.Backend = "nvml" }, "unknown device.backend"},
		{"procfs without root", func(c *config.Config) {
			c.Device.Backend = config.BackendProcfs
			c.Device.ProcRoot = ""
		}, "device.proc_root is required"},
		{"unknown log level", func(c *config.Config) { c.Logging.Level = "trace" }, "unknown logging.level"},
		{"unknown log format", func(c *config.Config) { c.Logging.Format = "xml" }, "unknown logging.format"},
	}

	t.Run("accepts the defaults", func(t *testing.T) {
		assert.NoError(t, config.NewDefault().Validate())
	})

	for _, tc := range cases {
		t.Run("rejects "+tc.name, func(t *testing.T) {
			cfg := config.NewDefault()
			tc.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}

	t.Run("rejects duplicate simulated uuids", func(t *testing.T) {
		_, err := config.Load(writeFile(t, "unnamed.yaml", `
device:
  devices:
    - name: first
    - name: second
`))
		require.NoError(t, err, "devices without uuids get generated ones")

		_, err = config.Load(writeFile(t, "dup.yaml", `
device:
  devices:
    - uuid: GPU-a
    - uuid: GPU-a
`))
		assert.ErrorContains(t, err, "duplicate uuid GPU-a")
	})
}

func TestSave(t *testing.T) {
	t.Run("round trips through a file readable only by its owner", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "envyd.yaml")
		cfg := config.NewDefault()
		cfg.Metrics.Address = "127.0.0.1:9400"
		cfg.Authorization.Consent.Timeout = 90 * time.Second
		require.NoError(t, cfg.Save(path))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

		loaded, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, cfg, loaded)
	})
}

func TestGenerateSecret(t *testing.T) {
	a, err := config.GenerateSecret()
	require.NoError(t, err)
	b, err := config.GenerateSecret()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}
