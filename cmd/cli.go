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
	"time"

	"envyd/cmd/cli"
	"envyd/internal/logger"

	"github.com/spf13/cobra"
)

var (
	monitorInterval time.Duration
	monitorBearer   string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Start the interactive GPU monitor",
	Long: `Launch a terminal dashboard that polls the daemon for device telemetry.
Selecting a device opens a control screen for fan speeds and power limits;
those changes are privileged and go through the daemon's authorization.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Log lines would corrupt the dashboard.
		if !verbose {
			logger.SetSilentMode(true)
		}

		c := newClient()
		c.Bearer = monitorBearer
		return cli.StartTUI(c, monitorInterval)
	},
}

func init() {
	monitorCmd.Flags().DurationVarP(&monitorInterval, "interval", "i", 2*time.Second, "Refresh interval")
	monitorCmd.Flags().StringVar(&monitorBearer, "bearer", "", "Bearer token for privileged actions")
}
