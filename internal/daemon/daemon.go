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

// Package daemon supervises the envyd socket server: it brings the device
// library up, runs the socket and metrics servers, and shuts everything
// down on a signal or a fatal library status.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"envyd/internal/audit"
	"envyd/internal/auth"
	"envyd/internal/config"
	"envyd/internal/device"
	"envyd/internal/dispatch"
	"envyd/internal/logger"
	"envyd/internal/metrics"
	"envyd/internal/server"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrFatal is wrapped by Run when a fatal library status stopped the daemon.
var ErrFatal = errors.New("fatal device library status")

// Option configures a Daemon.
type Option func(*Daemon)

// WithLibrary replaces the configured device backend.
func WithLibrary(lib device.Library) Option {
	return func(d *Daemon) { d.library = lib }
}

// WithGate replaces the configured authorization strategy.
func WithGate(g auth.Gate) Option {
	return func(d *Daemon) { d.gate = g }
}

// Daemon represents the envyd daemon
type Daemon struct {
	config  *config.Config
	library device.Library
	devices *device.Manager
	gate    auth.Gate
	audit   *audit.Log
	metrics *metrics.Metrics
	server  *server.Server
	http    *metrics.Server
	logger  zerolog.Logger

	mutex    sync.RWMutex
	running  bool
	stopping bool
	count    uint32
}

// New creates a daemon from cfg. Nothing touches the device library or the
// socket until Run.
func New(cfg *config.Config, opts ...Option) (*Daemon, error) {
	d := &Daemon{
		config:  cfg,
		logger:  logger.GetLogger("daemon"),
		metrics: metrics.New(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.library == nil {
		lib, err := openLibrary(cfg.Device)
		if err != nil {
			return nil, err
		}
		d.library = lib
	}

	var managerOpts []device.ManagerOption
	if cfg.Device.AlwaysSerialize {
		managerOpts = append(managerOpts, device.AlwaysSerialize())
	}
	d.devices = device.NewManager(d.library, managerOpts...)
	d.devices.SetObserver(d.metrics.DeviceObserver())

	if d.gate == nil {
		gate, err := auth.New(cfg.Auth())
		if err != nil {
			return nil, fmt.Errorf("failed to create authorization gate: %w", err)
		}
		d.gate = gate
	}

	serverOpts := []server.Option{server.WithRecorder(d.metrics)}
	if cfg.Audit.Path != "" {
		log, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			return nil, err
		}
		d.audit = log
		serverOpts = append(serverOpts, server.WithAuditor(log))
	}

	d.server = server.New(cfg.Server(), dispatch.Default(), d.devices, d.gate, serverOpts...)
	if cfg.Metrics.Address != "" {
		d.http = metrics.NewServer(cfg.Metrics.Address, d.metrics, d.Health)
	}
	return d, nil
}

func openLibrary(cfg config.DeviceConfig) (device.Library, error) {
	switch cfg.Backend {
	case config.BackendProcfs:
		return device.NewProcfs(cfg.ProcRoot), nil
	case config.BackendSimulator, "":
		sim, err := device.NewSimulator(cfg.Devices)
		if err != nil {
			return nil, fmt.Errorf("failed to create simulator: %w", err)
		}
		return sim, nil
	default:
		return nil, fmt.Errorf("unknown device backend %q", cfg.Backend)
	}
}

// Server returns the socket server, mainly so callers can wait on Ready.
func (d *Daemon) Server() *server.Server {
	return d.server
}

// Metrics returns the daemon's collectors.
func (d *Daemon) Metrics() *metrics.Metrics {
	return d.metrics
}

// Health reports the daemon state for /health.
func (d *Daemon) Health() metrics.Health {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	status := "healthy"
	switch {
	case d.stopping:
		status = "stopping"
	case !d.running:
		status = "starting"
	}
	return metrics.Health{
		Status:        status,
		Devices:       d.count,
		Authorization: d.gate.Name(),
		Socket:        d.server.SocketPath(),
	}
}

// Start runs the daemon until SIGINT or SIGTERM.
func (d *Daemon) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return d.Run(ctx)
}

// Run initializes the device library and serves until ctx is done or the
// library reports a fatal status. The library is shut down and the socket
// removed before it returns.
func (d *Daemon) Run(ctx context.Context) error {
	d.mutex.Lock()
	if d.running {
		d.mutex.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.mutex.Unlock()

	defer d.closeAudit()

	if err := d.devices.Initialize(); err != nil {
		return err
	}
	defer d.shutdownLibrary()

	count, err := d.devices.Count()
	if err != nil {
		return fmt.Errorf("failed to count devices: %w", err)
	}
	d.mutex.Lock()
	d.count = count
	d.mutex.Unlock()
	d.metrics.SetDevices(count)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.server.Serve(gctx)
	})

	if d.http != nil {
		g.Go(func() error {
			if err := d.http.Run(gctx); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		select {
		case ferr := <-d.server.Fatal():
			d.logger.Error().
				Str("op", ferr.Op).
				Str("uuid", ferr.UUID).
				Str("status", ferr.Status.String()).
				Int("code", int(ferr.Status)).
				Msg("Device library reported a fatal status, shutting down")
			d.markStopping()
			return fmt.Errorf("%w: %v", ErrFatal, ferr)
		case <-gctx.Done():
			d.logger.Info().Msg("Shutdown requested")
			d.markStopping()
			return nil
		}
	})

	d.logger.Info().
		Uint32("device_count", count).
		Str("socket", d.server.SocketPath()).
		Str("authorization", d.gate.Name()).
		Str("metrics", d.config.Metrics.Address).
		Msg("envyd started")

	err = g.Wait()
	if err != nil {
		d.logger.Error().Err(err).Msg("envyd stopped with error")
		return err
	}
	d.logger.Info().Msg("envyd stopped")
	return nil
}

func (d *Daemon) markStopping() {
	d.mutex.Lock()
	d.stopping = true
	d.mutex.Unlock()
}

func (d *Daemon) shutdownLibrary() {
	if err := d.devices.Shutdown(); err != nil {
		d.logger.Error().Err(err).Msg("Error shutting down device library")
	}
}

func (d *Daemon) closeAudit() {
	if d.audit == nil {
		return
	}
	if err := d.audit.Close(); err != nil {
		d.logger.Error().Err(err).Msg("Error closing audit log")
	}
}
