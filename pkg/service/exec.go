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

package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	shellwords "github.com/mattn/go-shellwords"
	"go.uber.org/zap"

	"github.com/pirakansa/shiki/pkg/config"
	"github.com/pirakansa/shiki/pkg/constants"
	"github.com/pirakansa/shiki/pkg/logger"
	"github.com/pirakansa/shiki/pkg/standarderrors"
)

// ExecBackend manages services through operator-defined commands. It is
// meant for environments without a service manager, such as containers.
type ExecBackend struct {
	services map[string]config.ServiceDefinition
	log      *zap.SugaredLogger
}

// NewExecBackend returns a backend over the given service definitions.
func NewExecBackend(services map[string]config.ServiceDefinition) *ExecBackend {
	defs := make(map[string]config.ServiceDefinition, len(services))
	for name, def := range services {
		defs[name] = def
	}

	return &ExecBackend{
		services: defs,
		log:      logger.For(logger.ComponentBackend),
	}
}

// Name implements Backend.
func (b *ExecBackend) Name() string {
	return "exec"
}

// Supports implements Backend.
func (b *ExecBackend) Supports(service string) bool {
	_, ok := b.services[service]

	return ok
}

func (b *ExecBackend) definition(service string) (config.ServiceDefinition, error) {
	def, ok := b.services[service]
	if !ok {
		return config.ServiceDefinition{}, standarderrors.NewServiceNotFoundError(service)
	}

	return def, nil
}

// run tokenizes and executes one configured command. A per-definition
// timeout tightens the caller's deadline but never loosens it.
func (b *ExecBackend) run(ctx context.Context, service, command string, def config.ServiceDefinition) (commandResult, error) {
	parts, err := shellwords.Parse(command)
	if err != nil {
		return commandResult{}, standarderrors.NewBackendError(fmt.Sprintf("failed to parse command %q", command), err)
	}

	if len(parts) == 0 {
		return commandResult{}, standarderrors.NewBackendError("empty command", nil)
	}

	timeout := constants.DefaultOperationTimeout
	if def.TimeoutSeconds > 0 {
		timeout = time.Duration(def.TimeoutSeconds) * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b.log.Debugw("executing command", "service", service, "command", command)

	result, err := runCommand(runCtx, parts[0], parts[1:], def.WorkingDir, def.Env)
	if err != nil {
		return commandResult{}, err
	}

	b.log.Debugw("command completed", "service", service, "command", command, "exited_ok", result.ExitedOK)

	return result, nil
}

// state runs the status command: exit 0 means running, anything else
// means stopped.
func (b *ExecBackend) state(ctx context.Context, service string, def config.ServiceDefinition) (State, error) {
	result, err := b.run(ctx, service, def.Status, def)
	if err != nil {
		return StateUnknown, err
	}

	if result.ExitedOK {
		return StateRunning, nil
	}

	return StateStopped, nil
}

// List implements Backend, returning the configured service names sorted.
func (b *ExecBackend) List(_ context.Context) ([]string, error) {
	services := make([]string, 0, len(b.services))
	for name := range b.services {
		services = append(services, name)
	}

	sort.Strings(services)

	return services, nil
}

// Status implements Backend.
func (b *ExecBackend) Status(ctx context.Context, service string) (Status, error) {
	def, err := b.definition(service)
	if err != nil {
		return Status{}, err
	}

	state, err := b.state(ctx, service, def)
	if err != nil {
		return Status{}, err
	}

	return Status{Name: service, State: state}, nil
}

// Start implements Backend.
func (b *ExecBackend) Start(ctx context.Context, service string) (OperationResult, error) {
	def, err := b.definition(service)
	if err != nil {
		return OperationResult{}, err
	}

	b.log.Infow("starting service", "service", service)

	current, err := b.state(ctx, service, def)
	if err != nil {
		return OperationResult{}, err
	}

	if current == StateRunning {
		b.log.Infow("service already running", "service", service)

		return successResult(service, ActionStart, StateRunning), nil
	}

	result, err := b.run(ctx, service, def.Start, def)
	if err != nil {
		return OperationResult{}, err
	}

	if !result.ExitedOK {
		b.log.Errorw("failed to start service", "service", service, "output", result.Output)

		return failureResult(service, ActionStart, StateFailed, result.Output), nil
	}

	state, err := b.state(ctx, service, def)
	if err != nil {
		return OperationResult{}, err
	}

	if state != StateRunning {
		b.log.Warnw("service did not reach running state", "service", service, "state", state)

		return failureResult(service, ActionStart, state, "service did not start properly"), nil
	}

	return successResult(service, ActionStart, StateRunning), nil
}

// Stop implements Backend.
func (b *ExecBackend) Stop(ctx context.Context, service string) (OperationResult, error) {
	def, err := b.definition(service)
	if err != nil {
		return OperationResult{}, err
	}

	b.log.Infow("stopping service", "service", service)

	current, err := b.state(ctx, service, def)
	if err != nil {
		return OperationResult{}, err
	}

	if current == StateStopped {
		b.log.Infow("service already stopped", "service", service)

		return successResult(service, ActionStop, StateStopped), nil
	}

	result, err := b.run(ctx, service, def.Stop, def)
	if err != nil {
		return OperationResult{}, err
	}

	if !result.ExitedOK {
		b.log.Errorw("failed to stop service", "service", service, "output", result.Output)

		return failureResult(service, ActionStop, StateFailed, result.Output), nil
	}

	state, err := b.state(ctx, service, def)
	if err != nil {
		return OperationResult{}, err
	}

	if state != StateStopped {
		b.log.Warnw("service did not reach stopped state", "service", service, "state", state)

		return failureResult(service, ActionStop, state, "service did not stop properly"), nil
	}

	return successResult(service, ActionStop, StateStopped), nil
}

// Restart implements Backend. With no restart command configured it
// decomposes into stop followed by start.
func (b *ExecBackend) Restart(ctx context.Context, service string) (OperationResult, error) {
	def, err := b.definition(service)
	if err != nil {
		return OperationResult{}, err
	}

	b.log.Infow("restarting service", "service", service)

	if def.Restart != "" {
		result, err := b.run(ctx, service, def.Restart, def)
		if err != nil {
			return OperationResult{}, err
		}

		if !result.ExitedOK {
			b.log.Errorw("failed to restart service", "service", service, "output", result.Output)

			return failureResult(service, ActionRestart, StateFailed, result.Output), nil
		}

		state, err := b.state(ctx, service, def)
		if err != nil {
			return OperationResult{}, err
		}

		if state != StateRunning {
			b.log.Warnw("service did not reach running state after restart", "service", service, "state", state)

			return failureResult(service, ActionRestart, state, "service did not restart properly"), nil
		}

		return successResult(service, ActionRestart, StateRunning), nil
	}

	b.log.Debugw("no restart command defined, using stop then start", "service", service)

	stopResult, err := b.Stop(ctx, service)
	if err != nil {
		return OperationResult{}, err
	}

	if !stopResult.Success && stopResult.State != StateStopped {
		return failureResult(service, ActionRestart, stopResult.State, stopResult.Message), nil
	}

	startResult, err := b.Start(ctx, service)
	if err != nil {
		return OperationResult{}, err
	}

	if !startResult.Success {
		return failureResult(service, ActionRestart, startResult.State, startResult.Message), nil
	}

	return successResult(service, ActionRestart, StateRunning), nil
}
