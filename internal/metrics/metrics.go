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

// Package metrics exposes daemon counters in the Prometheus format.
package metrics

import (
	"time"

	"envyd/internal/auth"
	"envyd/internal/device"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "envyd"

// Metrics holds the daemon's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	authorizations    *prometheus.CounterVec
	deviceCalls       *prometheus.CounterVec
	deviceDuration    *prometheus.HistogramVec
	activeConnections prometheus.Gauge
	devices           prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "socket",
				Name:      "requests_total",
				Help:      "Requests answered, by action and response status.",
			},
			[]string{"action", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "socket",
				Name:      "request_duration_seconds",
				Help:      "Time from decoding a request to producing its response.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		authorizations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "decisions_total",
				Help:      "Authorization decisions for privileged actions.",
			},
			[]string{"strategy", "decision"},
		),
		deviceCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "device",
				Name:      "calls_total",
				Help:      "Device library calls, by operation and returned status.",
			},
			[]string{"op", "status"},
		),
		deviceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "device",
				Name:      "call_duration_seconds",
				Help:      "Device library call duration, including time waiting for the library lock.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"op"},
		),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "active_connections",
			Help:      "Connections currently being handled.",
		}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "count",
			Help:      "Devices reported by the library at startup.",
		}),
	}

	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.authorizations,
		m.deviceCalls,
		m.deviceDuration,
		m.activeConnections,
		m.devices,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveRequest(action, status string, elapsed time.Duration) {
	m.requests.WithLabelValues(action, status).Inc()
	m.requestDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveAuthorization(strategy string, decision auth.Decision) {
	m.authorizations.WithLabelValues(strategy, decision.String()).Inc()
}

func (m *Metrics) ConnectionOpened() { m.activeConnections.Inc() }
func (m *Metrics) ConnectionClosed() { m.activeConnections.Dec() }

// SetDevices records the device count.
func (m *Metrics) SetDevices(n uint32) {
	m.devices.Set(float64(n))
}

// DeviceObserver returns a hook for device.Manager.SetObserver.
func (m *Metrics) DeviceObserver() device.Observer {
	return func(op string, status device.Return, elapsed time.Duration) {
		m.deviceCalls.WithLabelValues(op, status.String()).Inc()
		m.deviceDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	}
}
