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
	"time"

	"github.com/spf13/cobra"

	"github.com/pirakansa/shiki/pkg/client"
	"github.com/pirakansa/shiki/pkg/models"
	"github.com/pirakansa/shiki/pkg/service"
)

var notifyFlags struct {
	target   string
	action   string
	service  string
	token    string
	apiKey   string
	timeout  int
	wait     bool
	noWait   bool
	insecure bool
}

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Send a notification to a remote agent",
	Long: `Sends a service operation request to a remote agent.

Examples:
  shiki notify --target db-host:8080 --action start --service postgresql
  shiki notify -t web-host:8080 -a restart -s nginx --no-wait`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		action, err := service.ParseAction(notifyFlags.action)
		if err != nil {
			return err
		}

		wait := notifyFlags.wait && !notifyFlags.noWait

		c := newClient(notifyFlags.target, notifyFlags.token, notifyFlags.apiKey,
			notifyFlags.insecure, notifyFlags.timeout)

		data, err := c.Notify(cmd.Context(), notifyFlags.service, string(action),
			&models.NotifyOptions{
				Wait:           &wait,
				TimeoutSeconds: &notifyFlags.timeout,
			})
		if err != nil {
			return err
		}

		printNotifyResult(cmd, data)

		return nil
	},
}

func printNotifyResult(cmd *cobra.Command, data models.NotifyResponseData) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s %s: %s\n", data.Action, data.Service, data.Result)

	if data.PreviousStatus != nil && data.CurrentStatus != nil {
		fmt.Fprintf(out, "  status: %s -> %s\n", *data.PreviousStatus, *data.CurrentStatus)
	}
	if data.DurationMs != nil {
		fmt.Fprintf(out, "  duration: %dms\n", *data.DurationMs)
	}
	if data.Message != "" {
		fmt.Fprintf(out, "  %s\n", data.Message)
	}
}

// newClient builds a client for a target given as host:port or a full URL.
func newClient(target, token, apiKey string, insecure bool, timeoutSeconds int) *client.Client {
	baseURL := target
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}

	opts := []client.Option{}
	if token != "" {
		opts = append(opts, client.WithToken(token))
	}
	if apiKey != "" {
		opts = append(opts, client.WithAPIKey(apiKey))
	}
	if insecure {
		opts = append(opts, client.WithInsecureTLS())
	}
	if timeoutSeconds > 0 {
		// Leave headroom so the agent answers before the HTTP request
		// itself is aborted.
		opts = append(opts, client.WithTimeout(time.Duration(timeoutSeconds+5)*time.Second))
	}

	return client.New(baseURL, opts...)
}

func init() {
	notifyCmd.Flags().StringVarP(&notifyFlags.target, "target", "t", "", "target agent address (host:port)")
	notifyCmd.Flags().StringVarP(&notifyFlags.action, "action", "a", "", "action to perform (start, stop, restart)")
	notifyCmd.Flags().StringVarP(&notifyFlags.service, "service", "s", "", "target service name")
	notifyCmd.Flags().BoolVarP(&notifyFlags.wait, "wait", "w", true, "wait for operation to complete")
	notifyCmd.Flags().BoolVar(&notifyFlags.noWait, "no-wait", false, "do not wait for completion")
	notifyCmd.Flags().IntVar(&notifyFlags.timeout, "timeout", 60, "timeout in seconds")
	notifyCmd.Flags().StringVar(&notifyFlags.token, "token", "", "bearer token for authentication")
	notifyCmd.Flags().StringVar(&notifyFlags.apiKey, "api-key", "", "API key for authentication")
	notifyCmd.Flags().BoolVar(&notifyFlags.insecure, "insecure", false, "skip TLS certificate verification")

	_ = notifyCmd.MarkFlagRequired("target")
	_ = notifyCmd.MarkFlagRequired("action")
	_ = notifyCmd.MarkFlagRequired("service")
	notifyCmd.MarkFlagsMutuallyExclusive("wait", "no-wait")

	rootCmd.AddCommand(notifyCmd)
}
