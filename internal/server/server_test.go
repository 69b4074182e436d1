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

package server_test

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"envyd/internal/audit"
	"envyd/internal/auth"
	"envyd/internal/device"
	"envyd/internal/device/devicetest"
	"envyd/internal/dispatch"
	"envyd/internal/schema"
	"envyd/internal/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGate struct {
	decision auth.Decision
	required []schema.FieldSpec
	calls    atomic.Int32
	last     atomic.Value
}

func (g *fakeGate) Name() string                       { return "fake" }
func (g *fakeGate) RequiredFields() []schema.FieldSpec { return g.required }
func (g *fakeGate) Authorize(ctx context.Context, req auth.Request) auth.Decision {
	g.calls.Add(1)
	g.last.Store(req)
	return g.decision
}

type memoryAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *memoryAuditor) Record(e audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

func (a *memoryAuditor) Entries() []audit.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audit.Entry(nil), a.entries...)
}

// socketPath returns a short path; Unix socket paths are limited to about
// 100 bytes and t.TempDir can exceed that.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "envyd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "envyd.sock")
}

func start(t *testing.T, cfg server.Config, spy *devicetest.Spy, gate auth.Gate, opts ...server.Option) *server.Server {
	t.Helper()
	if cfg.SocketPath == "" {
		cfg.SocketPath = socketPath(t)
	}
	srv := server.New(cfg, dispatch.Default(), device.NewManager(spy), gate, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	return srv
}

func call(t *testing.T, path, body string) string {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.UnixConn).CloseWrite())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	out, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(out)
}

func TestScenarios(t *testing.T) {
	t.Run("A: memory info is returned in the envelope", func(t *testing.T) {
		spy := devicetest.New("GPU-1234").
			Value("GetMemoryInfo", device.Memory{Total: 8192, Free: 4096, Used: 4096, Reserved: 0})
		srv := start(t, server.Config{}, spy, &fakeGate{decision: auth.Granted})

		got := call(t, srv.SocketPath(), `{"action":"nvmlDeviceGetMemoryInfo","uuid":"GPU-1234"}`)
		assert.Equal(t, `{"data":{"total":8192,"free":4096,"used":4096,"reserved":0},"status":"SUCCESS","description":null}`, got)
	})

	t.Run("B: a privileged request without a bearer token is a schema error", func(t *testing.T) {
		spy := devicetest.New("GPU-1")
		gate, err := auth.NewBearerGate(auth.BearerConfig{Secret: "correct-horse-battery-staple"})
		require.NoError(t, err)
		srv := start(t, server.Config{}, spy, gate)

		got := call(t, srv.SocketPath(), `{"action":"nvmlDeviceSetPowerManagementLimit","uuid":"GPU-1","powerScope":"SCOPE_GPU","powerValueMw":150000}`)
		assert.Equal(t, `{"data":null,"status":"INVALID_JSON_SCHEMA","description":"missing field: bearer"}`, got)
		assert.Empty(t, spy.Calls())
	})

	t.Run("C: an unknown action is rejected", func(t *testing.T) {
		spy := devicetest.New("GPU-1")
		srv := start(t, server.Config{}, spy, &fakeGate{decision: auth.Granted})

		got := call(t, srv.SocketPath(), `{"action":"doesNotExist","uuid":"GPU-1","fan":"x"}`)
		assert.Contains(t, got, `{"data":null,"status":"UNDEFINED_INVALID_ACTION","description":"`)
		assert.Empty(t, spy.Calls())
	})

	t.Run("D: a silent client gets no response", func(t *testing.T) {
		spy := devicetest.New("GPU-1")
		srv := start(t, server.Config{ReceiveTimeout: 100 * time.Millisecond}, spy, &fakeGate{decision: auth.Granted})

		conn, err := net.Dial("unix", srv.SocketPath())
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		out, err := io.ReadAll(conn)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestServer(t *testing.T) {
	t.Run("reports malformed JSON without touching the library", func(t *testing.T) {
		spy := devicetest.New("GPU-1")
		srv := start(t, server.Config{}, spy, &fakeGate{decision: auth.Granted})

		got := call(t, srv.SocketPath(), `{"action":`)
		assert.Contains(t, got, `"status":"JSON_PARSING_FAILED"`)
		assert.Empty(t, spy.Calls())
	})

	t.Run("tolerates NUL padding", func(t *testing.T) {
		spy := devicetest.New("GPU-1").Value("GetNumFans", uint32(2))
		srv := start(t, server.Config{}, spy, &fakeGate{decision: auth.Granted})

		got := call(t, srv.SocketPath(), "{\"action\":\"nvmlDeviceGetNumFans\",\"uuid\":\"GPU-1\"}\x00\x00\x00")
		assert.Equal(t, `{"data":{"count":2},"status":"SUCCESS","description":null}`, got)
	})

	t.Run("answers as soon as a complete request arrives", func(t *testing.T) {
		spy := devicetest.New("GPU-1").Value("GetNumFans", uint32(2))
		srv := start(t, server.Config{}, spy, &fakeGate{decision: auth.Granted})

		conn, err := net.Dial("unix", srv.SocketPath())
		require.NoError(t, err)
		defer conn.Close()
		_, err = conn.Write([]byte(`{"action":"nvmlDeviceGetNumFans",`))
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)
		_, err = conn.Write([]byte(`"uuid":"GPU-1"}`))
		require.NoError(t, err)

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		out, err := io.ReadAll(conn)
		require.NoError(t, err)
		assert.Contains(t, string(out), `"status":"SUCCESS"`)
	})

	t.Run("truncates requests at the buffer size", func(t *testing.T) {
		spy := devicetest.New("GPU-1")
		srv := start(t, server.Config{BufferSize: 16}, spy, &fakeGate{decision: auth.Granted})

		got := call(t, srv.SocketPath(), `{"action":"nvmlDeviceGetNumFans","uuid":"GPU-1"}`)
		assert.Contains(t, got, `"status":"JSON_PARSING_FAILED"`)
	})

	t.Run("answers an oversized request instead of resetting", func(t *testing.T) {
		spy := devicetest.New("GPU-1")
		srv := start(t, server.Config{}, spy, &fakeGate{decision: auth.Granted})

		body := `{"action":"nvmlDeviceGetNumFans","uuid":"GPU-1","pad":"` +
			strings.Repeat("x", 12*1024) + `"}`
		for i := 0; i < 5; i++ {
			got := call(t, srv.SocketPath(), body)
			assert.Contains(t, got, `"status":"JSON_PARSING_FAILED"`)
		}
		assert.Empty(t, spy.Calls())
	})

	for _, decision := range []auth.Decision{auth.Denied, auth.Indeterminate} {
		t.Run("refuses a privileged action when "+decision.String(), func(t *testing.T) {
			spy := devicetest.New("GPU-1")
			gate := &fakeGate{decision: decision}
			auditor := &memoryAuditor{}
			srv := start(t, server.Config{}, spy, gate, server.WithAuditor(auditor))

			got := call(t, srv.SocketPath(), `{"action":"nvmlDeviceSetFanSpeed","uuid":"GPU-1","fan":0,"speed":80}`)
			assert.Contains(t, got, `{"data":null,"status":"AUTHORIZATION_FAILED"`)
			assert.Equal(t, int32(1), gate.calls.Load())
			assert.Empty(t, spy.Calls())

			entries := auditor.Entries()
			require.Len(t, entries, 1)
			assert.Equal(t, decision.String(), entries[0].Decision)
			assert.Equal(t, "AUTHORIZATION_FAILED", entries[0].Status)
		})
	}

	t.Run("runs a granted privileged action", func(t *testing.T) {
		spy := devicetest.New("GPU-1")
		gate := &fakeGate{decision: auth.Granted}
		auditor := &memoryAuditor{}
		srv := start(t, server.Config{}, spy, gate, server.WithAuditor(auditor))

		got := call(t, srv.SocketPath(), `{"action":"nvmlDeviceSetFanSpeed","uuid":"GPU-1","fan":0,"speed":80}`)
		assert.Equal(t, `{"data":null,"status":"SUCCESS","description":null}`, got)
		assert.Equal(t, []string{"HandleByUUID", "SetFanSpeed"}, spy.Ops())

		req := gate.last.Load().(auth.Request)
		assert.Equal(t, "Set fan 0 of GPU-1 to 80%", req.Description)

		entries := auditor.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, "granted", entries[0].Decision)
		assert.Equal(t, "SUCCESS", entries[0].Status)
		assert.Equal(t, "GPU-1", entries[0].UUID)
	})

	t.Run("does not consult the gate for queries", func(t *testing.T) {
		spy := devicetest.New("GPU-1").Value("GetPowerUsage", uint32(120000))
		gate := &fakeGate{decision: auth.Denied}
		srv := start(t, server.Config{}, spy, gate)

		got := call(t, srv.SocketPath(), `{"action":"nvmlDeviceGetPowerUsage","uuid":"GPU-1"}`)
		assert.Equal(t, `{"data":{"powerMw":120000},"status":"SUCCESS","description":null}`, got)
		assert.Zero(t, gate.calls.Load())
	})

	t.Run("validates before authorizing", func(t *testing.T) {
		spy := devicetest.New("GPU-1")
		gate := &fakeGate{decision: auth.Granted}
		srv := start(t, server.Config{}, spy, gate)

		got := call(t, srv.SocketPath(), `{"action":"nvmlDeviceSetFanSpeed","uuid":"GPU-1","fan":-1,"speed":80}`)
		assert.Equal(t, `{"data":null,"status":"INVALID_JSON_SCHEMA","description":"invalid field: fan: must not be negative"}`, got)
		assert.Zero(t, gate.calls.Load())
		assert.Empty(t, spy.Calls())
	})

	t.Run("reports an unknown device", func(t *testing.T) {
		spy := devicetest.New("GPU-1")
		srv := start(t, server.Config{}, spy, &fakeGate{decision: auth.Granted})

		got := call(t, srv.SocketPath(), `{"action":"nvmlDeviceGetNumFans","uuid":"GPU-9"}`)
		assert.Contains(t, got, `{"data":null,"status":"ERROR_NOT_FOUND","description":"`)
	})

	t.Run("drops the connection and signals a fatal status", func(t *testing.T) {
		spy := devicetest.New("GPU-1").Status("GetNumFans", device.ErrorLibRMVersionMismatch)
		srv := start(t, server.Config{}, spy, &fakeGate{decision: auth.Granted})

		got := call(t, srv.SocketPath(), `{"action":"nvmlDeviceGetNumFans","uuid":"GPU-1"}`)
		assert.Empty(t, got)

		select {
		case fe := <-srv.Fatal():
			assert.Equal(t, device.ErrorLibRMVersionMismatch, fe.Status)
			assert.Equal(t, "GPU-1", fe.UUID)
		case <-time.After(5 * time.Second):
			t.Fatal("no fatal error signalled")
		}
	})

	t.Run("serves other clients while one is silent", func(t *testing.T) {
		spy := devicetest.New("GPU-1").Value("GetNumFans", uint32(2))
		srv := start(t, server.Config{ReceiveTimeout: 3 * time.Second}, spy, &fakeGate{decision: auth.Granted})

		idle, err := net.Dial("unix", srv.SocketPath())
		require.NoError(t, err)
		defer idle.Close()

		begin := time.Now()
		got := call(t, srv.SocketPath(), `{"action":"nvmlDeviceGetNumFans","uuid":"GPU-1"}`)
		assert.Contains(t, got, `"status":"SUCCESS"`)
		assert.Less(t, time.Since(begin), 2*time.Second)
	})

	t.Run("makes the socket world writable by default", func(t *testing.T) {
		srv := start(t, server.Config{}, devicetest.New(), &fakeGate{})
		info, err := os.Stat(srv.SocketPath())
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o666), info.Mode().Perm())
	})
}

func TestSocketFile(t *testing.T) {
	t.Run("replaces a stale socket", func(t *testing.T) {
		path := socketPath(t)
		ln, err := net.Listen("unix", path)
		require.NoError(t, err)
		ln.(*net.UnixListener).SetUnlinkOnClose(false)
		require.NoError(t, ln.Close())
		_, err = os.Stat(path)
		require.NoError(t, err)

		spy := devicetest.New("GPU-1").Value("GetNumFans", uint32(1))
		start(t, server.Config{SocketPath: path}, spy, &fakeGate{})
		assert.Contains(t, call(t, path, `{"action":"nvmlDeviceGetNumFans","uuid":"GPU-1"}`), `"SUCCESS"`)
	})

	t.Run("refuses to replace a regular file", func(t *testing.T) {
		path := socketPath(t)
		require.NoError(t, os.WriteFile(path, []byte("keep me"), 0o600))

		srv := server.New(server.Config{SocketPath: path}, dispatch.Default(), device.NewManager(devicetest.New()), &fakeGate{})
		err := srv.Serve(context.Background())
		assert.Error(t, err)

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "keep me", string(content))
	})

	t.Run("removes the socket on shutdown", func(t *testing.T) {
		path := socketPath(t)
		srv := server.New(server.Config{SocketPath: path}, dispatch.Default(), device.NewManager(devicetest.New()), &fakeGate{})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- srv.Serve(ctx) }()
		<-srv.Ready()
		cancel()
		require.NoError(t, <-done)

		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestProcess(t *testing.T) {
	spy := devicetest.New("GPU-1234").
		Value("GetMemoryInfo", device.Memory{Total: 8192, Free: 4096, Used: 4096})
	srv := server.New(server.Config{}, dispatch.Default(), device.NewManager(spy), &fakeGate{decision: auth.Granted})

	inputs := []string{
		`{"action":"nvmlDeviceGetMemoryInfo","uuid":"GPU-1234"}`,
		`{"uuid":"GPU-1234","action":"nvmlDeviceGetMemoryInfo"}`,
		`{"action":"nvmlDeviceGetMemoryInfo"}`,
		`{"action":7}`,
		`[]`,
		`not json`,
	}

	t.Run("is idempotent for identical input", func(t *testing.T) {
		for _, in := range inputs {
			first, err := srv.Process(context.Background(), []byte(in), "")
			require.NoError(t, err)
			second, err := srv.Process(context.Background(), []byte(in), "")
			require.NoError(t, err)

			a, err := first.Marshal()
			require.NoError(t, err)
			b, err := second.Marshal()
			require.NoError(t, err)
			assert.Equal(t, string(a), string(b), in)
		}
	})

	t.Run("ignores key order", func(t *testing.T) {
		a, err := srv.Process(context.Background(), []byte(inputs[0]), "")
		require.NoError(t, err)
		b, err := srv.Process(context.Background(), []byte(inputs[1]), "")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("names the missing uuid", func(t *testing.T) {
		resp, err := srv.Process(context.Background(), []byte(inputs[2]), "")
		require.NoError(t, err)
		assert.Equal(t, "INVALID_JSON_SCHEMA", resp.Status)
		assert.Equal(t, "missing field: uuid", resp.DescriptionText())
	})

	t.Run("rejects a non-string action", func(t *testing.T) {
		resp, err := srv.Process(context.Background(), []byte(inputs[3]), "")
		require.NoError(t, err)
		assert.Equal(t, "INVALID_JSON_SCHEMA", resp.Status)
		assert.Equal(t, "invalid field: action: expected string", resp.DescriptionText())
	})
}
