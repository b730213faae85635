// Copyright 2025 The shiki authors
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
	"strings"

	"github.com/spf13/cobra"
)

var statusFlags struct {
	target   string
	service  string
	token    string
	apiKey   string
	insecure bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the status of an agent or service",
	Long: `Shows the status of a remote agent, or of a single service when
--service is given.

Examples:
  shiki status --target db-host:8080
  shiki status -t db-host:8080 --service postgresql`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient(statusFlags.target, statusFlags.token, statusFlags.apiKey,
			statusFlags.insecure, 0)
		out := cmd.OutOrStdout()

		if statusFlags.service != "" {
			info, err := c.GetService(cmd.Context(), statusFlags.service)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "%s: %s\n", info.Name, info.Status)
			if info.Description != "" {
				fmt.Fprintf(out, "  %s\n", info.Description)
			}

			return nil
		}

		status, err := c.AgentStatus(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "agent:   %s (%s)\n", status.Agent.Name, status.Agent.State)
		fmt.Fprintf(out, "mode:    %s\n", status.Agent.Mode)
		if len(status.Agent.Tags) > 0 {
			fmt.Fprintf(out, "tags:    %s\n", strings.Join(status.Agent.Tags, ", "))
		}
		fmt.Fprintf(out, "version: %s\n", status.Version)
		fmt.Fprintf(out, "uptime:  %ds\n", status.UptimeSeconds)
		fmt.Fprintf(out, "listen:  %s:%d (tls=%t)\n",
			status.Server.Bind, status.Server.Port, status.Server.TLSEnabled)
		fmt.Fprintf(out, "requests: total=%d success=%d failed=%d active=%d\n",
			status.Stats.RequestsTotal,
			status.Stats.RequestsSuccess,
			status.Stats.RequestsFailed,
			status.Stats.ActiveOperations)

		return nil
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusFlags.target, "target", "t", "localhost:8080",
		"target agent address (host:port)")
	statusCmd.Flags().StringVarP(&statusFlags.service, "service", "s", "", "service name")
	statusCmd.Flags().StringVar(&statusFlags.token, "token", "", "bearer token for authentication")
	statusCmd.Flags().StringVar(&statusFlags.apiKey, "api-key", "", "API key for authentication")
	statusCmd.Flags().BoolVar(&statusFlags.insecure, "insecure", false, "skip TLS certificate verification")

	rootCmd.AddCommand(statusCmd)
}
