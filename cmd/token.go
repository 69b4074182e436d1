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
	"time"

	"envyd/internal/auth"
	"envyd/internal/config"

	"github.com/spf13/cobra"
)

var (
	tokenConfigPath string
	tokenSubject    string
	tokenTTL        time.Duration
	tokenActions    []string
	tokenSingleUse  bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage bearer tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a bearer token",
	Long: `Issue a bearer token signed with the configured secret. The token is
printed on stdout and is passed to the daemon in the "bearer" field.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(tokenConfigPath)
		if err != nil {
			return err
		}

		gate, err := auth.NewBearerGate(cfg.Auth().Bearer)
		if err != nil {
			return fmt.Errorf("bearer tokens are not configured: %w", err)
		}

		token, err := gate.Issue(auth.TokenOptions{
			Subject:   tokenSubject,
			TTL:       tokenTTL,
			Actions:   tokenActions,
			SingleUse: tokenSingleUse,
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenIssueCmd.Flags().StringVarP(&tokenConfigPath, "config", "c", config.DefaultPath, "Path to configuration file")
	tokenIssueCmd.Flags().StringVar(&tokenSubject, "subject", "", "Who the token is for")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 15*time.Minute, "Token lifetime")
	tokenIssueCmd.Flags().StringSliceVar(&tokenActions, "action", nil, "Restrict the token to these actions (repeatable)")
	tokenIssueCmd.Flags().BoolVar(&tokenSingleUse, "single-use", false, "Reject the token after its first use")

	tokenCmd.AddCommand(tokenIssueCmd)
}
