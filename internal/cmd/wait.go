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
	"time"

	"github.com/spf13/cobra"
)

var waitFlags struct {
	target   string
	service  string
	status   string
	token    string
	apiKey   string
	timeout  int
	interval int
	insecure bool
}

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for a remote service to become available",
	Long: `Polls a remote agent until the named service reaches the desired
status or the timeout elapses.

Examples:
  shiki wait --target db-host:8080 --service postgresql
  shiki wait -t db-host:8080 -s postgresql --status stopped --timeout 120`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient(waitFlags.target, waitFlags.token, waitFlags.apiKey,
			waitFlags.insecure, 0)

		err := c.WaitForService(cmd.Context(),
			waitFlags.service,
			waitFlags.status,
			time.Duration(waitFlags.timeout)*time.Second,
			time.Duration(waitFlags.interval)*time.Second)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", waitFlags.service, waitFlags.status)

		return nil
	},
}

func init() {
	waitCmd.Flags().StringVarP(&waitFlags.target, "target", "t", "", "target agent address (host:port)")
	waitCmd.Flags().StringVarP(&waitFlags.service, "service", "s", "", "service name to wait for")
	waitCmd.Flags().StringVar(&waitFlags.status, "status", "running", "status to wait for (running, stopped)")
	waitCmd.Flags().IntVar(&waitFlags.timeout, "timeout", 60, "timeout in seconds")
	waitCmd.Flags().IntVar(&waitFlags.interval, "interval", 5, "polling interval in seconds")
	waitCmd.Flags().StringVar(&waitFlags.token, "token", "", "bearer token for authentication")
	waitCmd.Flags().StringVar(&waitFlags.apiKey, "api-key", "", "API key for authentication")
	waitCmd.Flags().BoolVar(&waitFlags.insecure, "insecure", false, "skip TLS certificate verification")

	_ = waitCmd.MarkFlagRequired("target")
	_ = waitCmd.MarkFlagRequired("service")

	rootCmd.AddCommand(waitCmd)
}
