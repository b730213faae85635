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
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pirakansa/shiki/pkg/acl"
	"github.com/pirakansa/shiki/pkg/config"
	"github.com/pirakansa/shiki/pkg/controller"
	"github.com/pirakansa/shiki/pkg/fsm"
	"github.com/pirakansa/shiki/pkg/logger"
	"github.com/pirakansa/shiki/pkg/server"
	"github.com/pirakansa/shiki/pkg/service"
	"github.com/pirakansa/shiki/pkg/version"
)

var serveFlags struct {
	bind string
	port int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and run as an agent",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		machine := fsm.New()

		cfg, err := loadConfig()
		if err != nil {
			_ = machine.Fail()

			return err
		}

		// CLI verbosity flags win over the configuration file.
		if !logFlagsSet() {
			logger.InitializeWith(strings.ToUpper(cfg.Logging.Level), configLogFormat(cfg))
		}

		if cmd.Flags().Changed("bind") {
			cfg.Server.Bind = serveFlags.bind
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = serveFlags.port
		}

		log := logger.For(logger.ComponentAgent)
		log.Infow("Starting shiki agent",
			"version", version.Version,
			"agent_name", cfg.AgentName(),
			"backend", cfg.Agent.Backend,
			"bind", cfg.Server.Bind,
			"port", cfg.Server.Port)

		backend, err := service.NewBackend(cfg)
		if err != nil {
			_ = machine.Fail()

			return err
		}

		ctrl := controller.New(backend,
			acl.NewEvaluator(cfg.ACL.Allowed, cfg.ACL.Denied),
			controller.WithDefaultTimeout(cfg.Timeout.Service()))

		srv := server.New(cfg, ctrl, machine)

		if err := machine.SetReady(); err != nil {
			_ = machine.Fail()

			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Run owns the shutting_down transition: the gate must close
		// before the drain starts, not after it finishes.
		err = srv.Run(ctx)

		_ = logger.Sync()

		return err
	},
}

func configLogFormat(cfg *config.Config) logger.LogFormat {
	if strings.EqualFold(cfg.Logging.Format, "json") {
		return logger.FormatJSON
	}

	return logger.FormatConsole
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.bind, "bind", "0.0.0.0", "bind address")
	serveCmd.Flags().IntVar(&serveFlags.port, "port", 8080, "listen port")
	rootCmd.AddCommand(serveCmd)
}
