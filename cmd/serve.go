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

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"envyd/internal/config"
	"envyd/internal/daemon"
	"envyd/internal/logger"

	"github.com/spf13/cobra"
)

var (
	serveConfigPath string
	serveSimulate   bool
	serveDebug      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the envyd daemon",
	Long: `Start the envyd daemon. It listens on a Unix socket and answers one JSON
request per connection. Without --config, /etc/envyd/config.yaml is used when
present and the built-in defaults otherwise.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := serveConfigPath
		if path == "" {
			if _, err := os.Stat(config.DefaultPath); err == nil {
				path = config.DefaultPath
			} else if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to check %s: %w", config.DefaultPath, err)
			}
		}

		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("socket") {
			cfg.Socket.Path = socketPath
		}
		if serveSimulate {
			cfg.Device.Backend = config.BackendSimulator
		}
		if serveDebug || verbose {
			cfg.Logging.Level = logger.LOG_DEBUG
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}

		logger.SetSilentMode(false)
		logger.SetFormat(cfg.Logging.Format)
		logger.SetLevel(cfg.Logging.Level)

		log := logger.New()
		log.Info().
			Str("config_path", path).
			Str("backend", cfg.Device.Backend).
			Str("authorization", cfg.Authorization.Strategy).
			Msg("Starting envyd")

		d, err := daemon.New(cfg)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create daemon")
			return fmt.Errorf("failed to create daemon: %w", err)
		}

		// Start blocks until a signal or a fatal device status.
		if err := d.Start(); err != nil {
			return fmt.Errorf("daemon error: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to configuration file")
	serveCmd.Flags().BoolVar(&serveSimulate, "simulate", false, "Serve simulated devices instead of real hardware")
	serveCmd.Flags().BoolVarP(&serveDebug, "debug", "d", false, "Enable debug logging")
}
