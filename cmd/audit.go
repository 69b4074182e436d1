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
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"envyd/internal/audit"
	"envyd/internal/config"

	"github.com/spf13/cobra"
)

var (
	auditConfigPath string
	auditDBPath     string
	auditLimit      int
	auditJSON       bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log of privileged requests",
}

var auditRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the most recent privileged requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := auditDBPath
		if path == "" {
			cfg, err := config.Load(auditConfigPath)
			if err != nil {
				return err
			}
			path = cfg.Audit.Path
		}
		if path == "" {
			return fmt.Errorf("no audit log configured; set audit.path or pass --db")
		}

		log, err := audit.Open(path)
		if err != nil {
			return err
		}
		defer log.Close()

		entries, err := log.Recent(auditLimit)
		if err != nil {
			return err
		}

		if auditJSON {
			out, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tACTION\tUUID\tPEER\tDECISION\tSTATUS\tDESCRIPTION")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Time.Local().Format("2006-01-02 15:04:05"),
				e.Action, e.UUID, e.Peer, e.Decision, e.Status, e.Description)
		}
		return w.Flush()
	},
}

func init() {
	auditRecentCmd.Flags().StringVarP(&auditConfigPath, "config", "c", config.DefaultPath, "Path to configuration file")
	auditRecentCmd.Flags().StringVar(&auditDBPath, "db", "", "Path to the audit database (overrides the configuration)")
	auditRecentCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "Number of entries to show")
	auditRecentCmd.Flags().BoolVar(&auditJSON, "json", false, "Print entries as JSON")

	auditCmd.AddCommand(auditRecentCmd)
}
