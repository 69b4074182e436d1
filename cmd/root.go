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
	"os"

	"envyd/internal/client"
	"envyd/internal/logger"

	"github.com/spf13/cobra"
)

var (
	verbose    bool
	socketPath string
)

var rootCmd = &cobra.Command{
	Use:   "envyd",
	Short: "envyd - GPU management daemon",
	Long: `envyd is a privileged local daemon that exposes GPU management operations
(clocks, power limits, fan speeds, thermal thresholds) to unprivileged clients
over a Unix socket. Mutating operations require authorization.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetLevel(logger.LOG_DEBUG)
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "", "daemon socket path (default $ENVYD_SOCKET_PATH or /tmp/envyd.socket)")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}

// newClient returns a client for the daemon the flags point at.
func newClient() *client.Client {
	path := socketPath
	if path == "" {
		path = os.Getenv("ENVYD_SOCKET_PATH")
	}
	return client.New(path)
}
