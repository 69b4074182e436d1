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

// Package config loads the daemon configuration from YAML with ENVYD_
// environment overrides.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"envyd/internal/auth"
	"envyd/internal/device"
	"envyd/internal/logger"
	"envyd/internal/server"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where serve looks when no --config is given.
const DefaultPath = "/etc/envyd/config.yaml"

// Device backends.
const (
	BackendSimulator = "simulator"
	BackendProcfs    = "procfs"
)

// Config represents the daemon configuration structure
type Config struct {
	Socket        SocketConfig        `yaml:"socket"`
	Authorization AuthorizationConfig `yaml:"authorization"`
	Device        DeviceConfig        `yaml:"device"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Audit         AuditConfig         `yaml:"audit"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// SocketConfig contains the Unix socket settings
type SocketConfig struct {
	Path           string        `yaml:"path"`
	Mode           string        `yaml:"mode"` // octal, e.g. "0666"
	ReceiveTimeout time.Duration `yaml:"receive_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	BufferSize     int           `yaml:"buffer_size"`
}

// AuthorizationConfig selects how privileged actions are approved
type AuthorizationConfig struct {
	Strategy string        `yaml:"strategy"` // bearer, consent or insecure
	Bearer   BearerConfig  `yaml:"bearer"`
	Consent  ConsentConfig `yaml:"consent"`
}

type BearerConfig struct {
	Secret          string `yaml:"secret,omitempty"`
	SecretFile      string `yaml:"secret_file,omitempty"`
	Issuer          string `yaml:"issuer"`
	Audience        string `yaml:"audience,omitempty"`
	SingleUse       bool   `yaml:"single_use"`
	ReplayCacheSize int    `yaml:"replay_cache_size"`
}

type ConsentConfig struct {
	Dialog  string        `yaml:"dialog"` // terminal or command
	Command []string      `yaml:"command,omitempty"`
	Timeout time.Duration `yaml:"timeout"`
}

// DeviceConfig selects the device library backend
type DeviceConfig struct {
	Backend         string                   `yaml:"backend"`
	ProcRoot        string                   `yaml:"proc_root,omitempty"`
	AlwaysSerialize bool                     `yaml:"always_serialize"`
	Devices         []device.SimulatedDevice `yaml:"devices,omitempty"`
}

type MetricsConfig struct {
	Address string `yaml:"address"` // empty disables the HTTP server
}

type AuditConfig struct {
	Path string `yaml:"path"` // empty disables the audit log
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// env holds the supported ENVYD_ overrides.
type env struct {
	SocketPath     string `envconfig:"SOCKET_PATH"`
	LogLevel       string `envconfig:"LOG_LEVEL"`
	AuthStrategy   string `envconfig:"AUTH_STRATEGY"`
	MetricsAddress string `envconfig:"METRICS_ADDRESS"`
	BearerSecret   string `envconfig:"BEARER_SECRET"`
	AuditPath      string `envconfig:"AUDIT_PATH"`
}

// NewDefault returns the built-in configuration
func NewDefault() *Config {
	return &Config{
		Socket: SocketConfig{
			Path:           server.DefaultSocketPath,
			Mode:           fmt.Sprintf("%#o", server.DefaultSocketMode),
			ReceiveTimeout: server.DefaultReceiveTimeout,
			WriteTimeout:   server.DefaultWriteTimeout,
			BufferSize:     server.DefaultBufferSize,
		},
		Authorization: AuthorizationConfig{
			Strategy: auth.StrategyConsent,
			Bearer: BearerConfig{
				Issuer:          "envyd",
				ReplayCacheSize: 1024,
			},
			Consent: ConsentConfig{
				Dialog:  auth.DialogTerminal,
				Timeout: auth.DefaultConsentTimeout,
			},
		},
		Device: DeviceConfig{
			Backend:  BackendSimulator,
			ProcRoot: "/proc",
		},
		Logging: LoggingConfig{
			Level:  logger.LOG_INFO,
			Format: logger.FORMAT_CONSOLE,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path uses the defaults alone.
func Load(path string) (*Config, error) {
	cfg := NewDefault()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.resolveSecret(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from ENVYD_* variables.
func (c *Config) ApplyEnv() error {
	var e env
	if err := envconfig.Process("envyd", &e); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	if e.SocketPath != "" {
		c.Socket.Path = e.SocketPath
	}
	if e.LogLevel != "" {
		c.Logging.Level = e.LogLevel
	}
	if e.AuthStrategy != "" {
		c.Authorization.Strategy = e.AuthStrategy
	}
	if e.MetricsAddress != "" {
		c.Metrics.Address = e.MetricsAddress
	}
	if e.BearerSecret != "" {
		c.Authorization.Bearer.Secret = e.BearerSecret
	}
	if e.AuditPath != "" {
		c.Audit.Path = e.AuditPath
	}
	return nil
}

func (c *Config) resolveSecret() error {
	b := &c.Authorization.Bearer
	if b.Secret != "" || b.SecretFile == "" {
		return nil
	}
	data, err := os.ReadFile(b.SecretFile)
	if err != nil {
		return fmt.Errorf("failed to read bearer secret file: %w", err)
	}
	b.Secret = strings.TrimSpace(string(data))
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Socket.Path == "" {
		return errors.New("socket.path is required")
	}
	if _, err := c.SocketMode(); err != nil {
		return err
	}
	if c.Socket.BufferSize < 64 {
		return fmt.Errorf("socket.buffer_size must be at least 64, got %d", c.Socket.BufferSize)
	}
	if c.Socket.ReceiveTimeout <= 0 {
		return errors.New("socket.receive_timeout must be positive")
	}
	if c.Socket.WriteTimeout <= 0 {
		return errors.New("socket.write_timeout must be positive")
	}

	switch c.Authorization.Strategy {
	case auth.StrategyBearer:
		if c.Authorization.Bearer.Secret == "" && c.Authorization.Bearer.SecretFile == "" {
			return errors.New("authorization.bearer.secret or secret_file is required for the bearer strategy")
		}
		if s := c.Authorization.Bearer.Secret; s != "" && len(s) < 16 {
			return errors.New("authorization.bearer.secret must be at least 16 characters")
		}
	case auth.StrategyConsent:
		switch c.Authorization.Consent.Dialog {
		case auth.DialogTerminal, "":
		case auth.DialogCommand:
			if len(c.Authorization.Consent.Command) == 0 {
				return errors.New("authorization.consent.command is required for the command dialog")
			}
		default:
			return fmt.Errorf("unknown authorization.consent.dialog %q", c.Authorization.Consent.Dialog)
		}
		if c.Authorization.Consent.Timeout < 0 {
			return errors.New("authorization.consent.timeout must not be negative")
		}
	case auth.StrategyInsecure:
	default:
		return fmt.Errorf("unknown authorization.strategy %q (want one of %s)",
			c.Authorization.Strategy, strings.Join(auth.Strategies(), ", "))
	}

	switch c.Device.Backend {
	case BackendSimulator:
		uuids := make(map[string]bool)
		for i, d := range c.Device.Devices {
			if d.UUID == "" {
				continue
			}
			if uuids[d.UUID] {
				return fmt.Errorf("device.devices[%d]: duplicate uuid %s", i, d.UUID)
			}
			uuids[d.UUID] = true
		}
	case BackendProcfs:
		if c.Device.ProcRoot == "" {
			return errors.New("device.proc_root is required for the procfs backend")
		}
	default:
		return fmt.Errorf("unknown device.backend %q", c.Device.Backend)
	}

	if !slices.Contains([]string{logger.LOG_DEBUG, logger.LOG_INFO, logger.LOG_WARN, logger.LOG_ERROR}, c.Logging.Level) {
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}
	if c.Logging.Format != logger.FORMAT_CONSOLE && c.Logging.Format != logger.FORMAT_JSON {
		return fmt.Errorf("unknown logging.format %q", c.Logging.Format)
	}
	return nil
}

// SocketMode parses the octal socket mode.
func (c *Config) SocketMode() (os.FileMode, error) {
	mode, err := strconv.ParseUint(c.Socket.Mode, 8, 32)
	if err != nil || mode > 0o777 {
		return 0, fmt.Errorf("socket.mode must be an octal permission such as 0666, got %q", c.Socket.Mode)
	}
	return os.FileMode(mode), nil
}

// Server converts the socket section.
func (c *Config) Server() server.Config {
	mode, _ := c.SocketMode()
	return server.Config{
		SocketPath:     c.Socket.Path,
		SocketMode:     mode,
		BufferSize:     c.Socket.BufferSize,
		ReceiveTimeout: c.Socket.ReceiveTimeout,
		WriteTimeout:   c.Socket.WriteTimeout,
	}
}

// Auth converts the authorization section.
func (c *Config) Auth() auth.Options {
	a := c.Authorization
	return auth.Options{
		Strategy: a.Strategy,
		Bearer: auth.BearerConfig{
			Secret:          a.Bearer.Secret,
			Issuer:          a.Bearer.Issuer,
			Audience:        a.Bearer.Audience,
			SingleUse:       a.Bearer.SingleUse,
			ReplayCacheSize: a.Bearer.ReplayCacheSize,
		},
		Dialog:         a.Consent.Dialog,
		Command:        a.Consent.Command,
		ConsentTimeout: a.Consent.Timeout,
	}
}

// Save saves the configuration to a YAML file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateSecret returns a random bearer secret.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
