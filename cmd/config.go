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
	"fmt"

	"envyd/internal/auth"
	"envyd/internal/config"

	"github.com/spf13/cobra"
)

var (
	configPath       string
	configWithSecret bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage envyd configuration",
	Long:  `Generate or validate envyd configuration files.`,
}

var configGenerateCmd = &cobra.Command{
	Use:   "generate [config-file]",
	Short: "Generate default configuration file",
	Long: `Generate a default configuration file. With --with-secret the bearer
strategy is selected and a random signing secret is written.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) > 0 {
			path = args[0]
		}

		cfg := config.NewDefault()
		if configWithSecret {
			secret, err := config.GenerateSecret()
			if err != nil {
				return err
			}
			cfg.Authorization.Strategy = auth.StrategyBearer
			cfg.Authorization.Bearer.Secret = secret
		}
		if err := cfg.Save(path); err != nil {
			return fmt.Errorf("failed to save default config: %w", err)
		}

		cmd.Printf("Default configuration saved to: %s\n", path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate configuration file",
	Long:  `Validate a configuration file, with environment overrides applied.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) > 0 {
			path = args[0]
		}

		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		cmd.Printf("Configuration file is valid: %s\n", path)
		cmd.Printf("Socket: %s (mode %s)\n", cfg.Socket.Path, cfg.Socket.Mode)
		cmd.Printf("Authorization: %s\n", cfg.Authorization.Strategy)
		cmd.Printf("Device backend: %s\n", cfg.Device.Backend)
		for _, d := range cfg.Device.Devices {
			cmd.Printf("  - %s (%s)\n", d.UUID, d.Name)
		}
		if cfg.Metrics.Address != "" {
			cmd.Printf("Metrics: %s\n", cfg.Metrics.Address)
		}
		if cfg.Audit.Path != "" {
			cmd.Printf("Audit log: %s\n", cfg.Audit.Path)
		}
		return nil
	},
}

func init() {
	configCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to configuration file")
	configGenerateCmd.Flags().BoolVar(&configWithSecret, "with-secret", false, "Select bearer authorization and generate a secret")

	configCmd.AddCommand(configGenerateCmd)
	configCmd.AddCommand(configValidateCmd)
}
