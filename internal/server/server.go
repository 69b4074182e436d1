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

// Package server accepts connections on the envyd Unix socket and answers
// one request per connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"envyd/internal/audit"
	"envyd/internal/auth"
	"envyd/internal/device"
	"envyd/internal/dispatch"
	"envyd/internal/logger"
	"envyd/internal/protocol"

	"github.com/rs/zerolog"
)

// Default connection limits.
const (
	DefaultSocketPath     = "/tmp/envyd.socket"
	DefaultSocketMode     = 0o666
	DefaultBufferSize     = 8 * 1024
	DefaultReceiveTimeout = 10 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
)

// Unread request bytes are discarded up to drainLimit before the connection
// is closed, so the peer sees the response instead of a reset.
const (
	drainLimit   = 1 << 20
	drainTimeout = time.Second
)

// Config holds socket settings.
type Config struct {
	SocketPath string
	SocketMode os.FileMode
	// BufferSize is the request size ceiling. Longer requests are truncated.
	BufferSize     int
	ReceiveTimeout time.Duration
	WriteTimeout   time.Duration
}

func (c *Config) applyDefaults() {
	if c.SocketPath == "" {
		c.SocketPath = DefaultSocketPath
	}
	if c.SocketMode == 0 {
		c.SocketMode = DefaultSocketMode
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = DefaultReceiveTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
}

// Recorder receives request metrics.
type Recorder interface {
	ObserveRequest(action, status string, elapsed time.Duration)
	ObserveAuthorization(strategy string, decision auth.Decision)
	ConnectionOpened()
	ConnectionClosed()
}

// Auditor records the outcome of privileged requests.
type Auditor interface {
	Record(e audit.Entry) error
}

// Option configures a Server.
type Option func(*Server)

// WithRecorder installs a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

// WithAuditor installs an audit log.
func WithAuditor(a Auditor) Option {
	return func(s *Server) { s.auditor = a }
}

// Server is the connection lifecycle manager.
type Server struct {
	cfg      Config
	table    *dispatch.Table
	devices  *device.Manager
	gate     auth.Gate
	recorder Recorder
	auditor  Auditor
	logger   zerolog.Logger

	fatal  chan *device.FatalError
	ready  chan struct{}
	connID atomic.Uint64
	wg     sync.WaitGroup
}

// New creates a server. Serve must be called to start accepting.
func New(cfg Config, table *dispatch.Table, devices *device.Manager, gate auth.Gate, opts ...Option) *Server {
	cfg.applyDefaults()
	s := &Server{
		cfg:     cfg,
		table:   table,
		devices: devices,
		gate:    gate,
		logger:  logger.GetLogger("server"),
		fatal:   make(chan *device.FatalError, 1),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fatal delivers the first fatal device error. The server keeps running;
// stopping it is the supervisor's decision.
func (s *Server) Fatal() <-chan *device.FatalError {
	return s.fatal
}

// Ready is closed once the socket is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// SocketPath returns the configured socket path.
func (s *Server) SocketPath() string {
	return s.cfg.SocketPath
}

// Serve listens on the socket and handles connections until ctx is done.
// It waits for in-flight connections and removes the socket file before
// returning.
func (s *Server) Serve(ctx context.Context) error {
	path := s.cfg.SocketPath
	if err := removeStale(path); err != nil {
		return err
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", path, err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Str("socket", path).Msg("Failed to remove socket file")
		}
	}()

	if err := os.Chmod(path, s.cfg.SocketMode); err != nil {
		ln.Close()
		return fmt.Errorf("failed to set mode of %s: %w", path, err)
	}

	s.logger.Info().
		Str("socket", path).
		Str("mode", fmt.Sprintf("%#o", s.cfg.SocketMode)).
		Int("buffer_size", s.cfg.BufferSize).
		Dur("receive_timeout", s.cfg.ReceiveTimeout).
		Str("authorization", s.gate.Name()).
		Msg("Listening")
	close(s.ready)

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error().Err(err).Msg("Accept failed")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		id := s.connID.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn, id)
		}()
	}

	s.wg.Wait()
	s.logger.Info().Str("socket", path).Msg("Stopped listening")
	return nil
}

// removeStale unlinks a socket left behind by a previous instance. Anything
// other than a socket at path is an error.
func removeStale(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("refusing to replace %s: not a socket", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove stale socket %s: %w", path, err)
	}
	return nil
}

// handle runs one request/response cycle. The connection is closed on every
// path.
func (s *Server) handle(ctx context.Context, conn net.Conn, id uint64) {
	log := s.logger.With().Uint64("conn_id", id).Logger()
	start := time.Now()

	if s.recorder != nil {
		s.recorder.ConnectionOpened()
		defer s.recorder.ConnectionClosed()
	}
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic while handling connection")
		}
	}()

	raw, err := s.read(conn)
	if err != nil {
		log.Debug().Err(err).Msg("Dropping connection without a response")
		return
	}

	peer := peerOf(conn)
	resp, fatal := s.Process(ctx, raw, peer)
	if fatal != nil {
		var fe *device.FatalError
		if !errors.As(fatal, &fe) {
			fe = &device.FatalError{Op: "unknown", Status: device.ErrorUnknown}
		}
		log.Error().
			Str("op", fe.Op).
			Str("uuid", fe.UUID).
			Int("status_code", int(fe.Status)).
			Str("status", fe.Status.String()).
			Str("peer", peer).
			Msg("Fatal device library status")
		select {
		case s.fatal <- fe:
		default:
		}
		return
	}

	out, err := resp.Marshal()
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		return
	}

	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		log.Debug().Err(err).Msg("Failed to set write deadline")
	}
	if _, err := conn.Write(out); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
		return
	}

	log.Debug().
		Str("status", resp.Status).
		Dur("duration", time.Since(start)).
		Msg("Response sent")
	s.finish(conn)
}

// finish half-closes the connection after the response and consumes any
// request bytes left past the buffer ceiling.
func (s *Server) finish(conn net.Conn) {
	if uc, ok := conn.(*net.UnixConn); ok {
		if err := uc.CloseWrite(); err != nil {
			return
		}
	}
	if err := conn.SetReadDeadline(time.Now().Add(drainTimeout)); err != nil {
		return
	}
	io.Copy(io.Discard, io.LimitReader(conn, drainLimit))
}

// read collects one request. It stops at EOF, when the buffer is full, or as
// soon as the bytes read form a complete JSON value. A timeout after some
// bytes have arrived hands the partial request on; with nothing read it is
// an error, as is any other I/O failure.
func (s *Server) read(conn net.Conn) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReceiveTimeout)); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}

	buf := make([]byte, s.cfg.BufferSize)
	n := 0
	for n < len(buf) {
		k, err := conn.Read(buf[n:])
		n += k
		if k > 0 && protocol.Complete(buf[:n]) {
			break
		}
		if err != nil {
			var ne net.Error
			switch {
			case errors.Is(err, io.EOF):
			case errors.As(err, &ne) && ne.Timeout() && n > 0:
			default:
				return nil, err
			}
			break
		}
	}

	if n == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	return buf[:n], nil
}
