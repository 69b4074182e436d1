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
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"envyd/internal/device"
	"envyd/internal/protocol"

	"github.com/spf13/cobra"
)

var (
	callAction string
	callFields []string
	callBearer string
)

var callCmd = &cobra.Command{
	Use:   "call [request-json]",
	Short: "Send one request to the daemon",
	Long: `Send one request to a running daemon and print the response.

The request is either given verbatim as JSON:

  envyd call '{"action":"nvmlDeviceGetMemoryInfo","uuid":"GPU-..."}'

or built from flags, where values are parsed as JSON when possible:

  envyd call --action nvmlDeviceSetFanSpeed --field uuid=GPU-... --field fan=0 --field speed=60

The command fails unless the daemon answers with SUCCESS.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		c.Bearer = callBearer

		var resp *protocol.Response
		switch {
		case len(args) == 1:
			if callAction != "" || len(callFields) > 0 {
				return fmt.Errorf("give either a JSON request or --action/--field, not both")
			}
			reply, err := c.Raw(cmd.Context(), []byte(args[0]))
			if err != nil {
				return err
			}
			if len(reply) == 0 {
				return fmt.Errorf("daemon closed the connection without a response")
			}
			if resp, err = protocol.ParseResponse(reply); err != nil {
				return err
			}

		case callAction != "":
			fields, err := parseFields(callFields)
			if err != nil {
				return err
			}
			if resp, err = c.Call(cmd.Context(), callAction, fields); err != nil {
				return err
			}

		default:
			return fmt.Errorf("a JSON request or --action is required")
		}

		out, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))

		if resp.Status != device.Success.String() {
			return fmt.Errorf("daemon answered %s", resp.Status)
		}
		return nil
	},
}

// parseFields turns key=value pairs into request fields. Values that parse
// as JSON keep their type; anything else is sent as a string.
func parseFields(pairs []string) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, want key=value", pair)
		}

		dec := json.NewDecoder(bytes.NewReader([]byte(value)))
		dec.UseNumber()
		var v interface{}
		if err := dec.Decode(&v); err != nil || dec.More() {
			v = value
		}
		fields[key] = v
	}
	return fields, nil
}

func init() {
	callCmd.Flags().StringVarP(&callAction, "action", "a", "", "Action name")
	callCmd.Flags().StringArrayVarP(&callFields, "field", "f", nil, "Request field as key=value (repeatable)")
	callCmd.Flags().StringVar(&callBearer, "bearer", "", "Bearer token for privileged actions")
}
