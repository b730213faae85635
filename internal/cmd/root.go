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

// Package cmd provides the CLI commands for the shiki tool.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pirakansa/shiki/pkg/config"
	"github.com/pirakansa/shiki/pkg/logger"
	"github.com/pirakansa/shiki/pkg/standarderrors"
	"github.com/pirakansa/shiki/pkg/version"
)

var (
	cfgPath   string
	verbosity int
	quiet     bool
)

var rootCmd = &cobra.Command{
	Use:     "shiki",
	Short:   "Lightweight service coordination agent",
	Version: version.Version,
	Long: `shiki coordinates service startup order across multiple machines
and containers via HTTP.

Run 'shiki serve' on each machine to expose its services, then use
'shiki notify' and 'shiki wait' to sequence startup across them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.InitializeWith(cliLogLevel(), logger.FormatConsole)
	},
}

// cliLogLevel maps the -v/-q flags to a logger level.
func cliLogLevel() string {
	if quiet {
		return string(logger.ErrorLevel)
	}

	switch verbosity {
	case 0:
		return string(logger.InfoLevel)
	default:
		return string(logger.DebugLevel)
	}
}

// logFlagsSet reports whether the user tuned verbosity on the command line.
// When they did, the serve command keeps the CLI level instead of the one
// from the configuration file.
func logFlagsSet() bool {
	return quiet || verbosity > 0
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)

		var agentErr *standarderrors.AgentError
		if errors.As(err, &agentErr) {
			return agentErr.ExitCode()
		}

		return 1
	}

	return 0
}

// loadConfig reads the configuration from --config, SHIKI_CONFIG, or the
// default search paths.
func loadConfig() (*config.Config, error) {
	path := cfgPath
	if path == "" {
		path = os.Getenv("SHIKI_CONFIG")
	}

	return config.Load(path)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"path to configuration file (env: SHIKI_CONFIG)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"increase verbosity (repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"suppress all output except errors")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
}
