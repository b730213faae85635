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
	"strings"

	"go.uber.org/zap"

	"github.com/pirakansa/shiki/pkg/logger"
	"github.com/pirakansa/shiki/pkg/standarderrors"
)

// SystemdBackend manages services through systemctl.
type SystemdBackend struct {
	log *zap.SugaredLogger
}

// NewSystemdBackend returns a backend that shells out to systemctl.
func NewSystemdBackend() *SystemdBackend {
	return &SystemdBackend{
		log: logger.For(logger.ComponentBackend),
	}
}

// Name implements Backend.
func (b *SystemdBackend) Name() string {
	return "systemd"
}

// Supports implements Backend. systemd can address any unit by name, so
// existence is checked per call instead.
func (b *SystemdBackend) Supports(string) bool {
	return true
}

func (b *SystemdBackend) systemctl(ctx context.Context, args ...string) (commandResult, error) {
	b.log.Debugw("executing systemctl", "args", args)

	result, err := runCommand(ctx, "systemctl", args, "", nil)
	if err != nil {
		return commandResult{}, err
	}

	b.log.Debugw("systemctl completed", "args", args, "exited_ok", result.ExitedOK)

	return result, nil
}

// unitExists checks whether systemd knows the unit at all.
func (b *SystemdBackend) unitExists(ctx context.Context, service string) (bool, error) {
	result, err := b.systemctl(ctx, "show", "--property=LoadState", service)
	if err != nil {
		return false, err
	}

	return !strings.Contains(result.Output, "LoadState=not-found"), nil
}

// unitState maps `systemctl is-active` output onto a service state.
// Transitional states collapse onto where they are heading: activating
// counts as running, deactivating as stopped.
func (b *SystemdBackend) unitState(ctx context.Context, service string) (State, error) {
	result, err := b.systemctl(ctx, "is-active", service)
	if err != nil {
		return StateUnknown, err
	}

	switch strings.TrimSpace(result.Output) {
	case "active", "activating":
		return StateRunning, nil
	case "inactive", "deactivating":
		return StateStopped, nil
	case "failed":
		return StateFailed, nil
	default:
		if result.ExitedOK {
			return StateRunning, nil
		}

		return StateUnknown, nil
	}
}

func (b *SystemdBackend) requireUnit(ctx context.Context, service string) error {
	exists, err := b.unitExists(ctx, service)
	if err != nil {
		return err
	}

	if !exists {
		return standarderrors.NewServiceNotFoundError(service)
	}

	return nil
}

// List implements Backend. It returns every installed service unit, with
// the .service suffix stripped.
func (b *SystemdBackend) List(ctx context.Context) ([]string, error) {
	result, err := b.systemctl(ctx, "list-unit-files", "--type=service", "--no-legend", "--no-pager")
	if err != nil {
		return nil, err
	}

	if !result.ExitedOK {
		return nil, standarderrors.NewBackendError("failed to list services", nil)
	}

	var services []string

	for _, line := range strings.Split(result.Output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		services = append(services, strings.TrimSuffix(fields[0], ".service"))
	}

	return services, nil
}

// Status implements Backend.
func (b *SystemdBackend) Status(ctx context.Context, service string) (Status, error) {
	if err := b.requireUnit(ctx, service); err != nil {
		return Status{}, err
	}

	state, err := b.unitState(ctx, service)
	if err != nil {
		return Status{}, err
	}

	description := ""

	if result, err := b.systemctl(ctx, "show", "--property=Description", service); err == nil {
		description = strings.TrimPrefix(strings.TrimSpace(result.Output), "Description=")
	}

	return Status{Name: service, State: state, Description: description}, nil
}

// Start implements Backend. Starting an already running unit succeeds
// without touching systemctl start.
func (b *SystemdBackend) Start(ctx context.Context, service string) (OperationResult, error) {
	if err := b.requireUnit(ctx, service); err != nil {
		return OperationResult{}, err
	}

	b.log.Infow("starting service", "service", service)

	current, err := b.unitState(ctx, service)
	if err != nil {
		return OperationResult{}, err
	}

	if current == StateRunning {
		b.log.Infow("service already running", "service", service)

		return successResult(service, ActionStart, StateRunning), nil
	}

	result, err := b.systemctl(ctx, "start", service)
	if err != nil {
		return OperationResult{}, err
	}

	if !result.ExitedOK {
		b.log.Errorw("failed to start service", "service", service, "output", result.Output)

		return failureResult(service, ActionStart, StateFailed, result.Output), nil
	}

	state, err := b.unitState(ctx, service)
	if err != nil {
		return OperationResult{}, err
	}

	if state != StateRunning {
		b.log.Warnw("service did not reach running state", "service", service, "state", state)

		return failureResult(service, ActionStart, state, "service did not start properly"), nil
	}

	return successResult(service, ActionStart, StateRunning), nil
}

// Stop implements Backend. Stopping an already stopped unit succeeds
// without touching systemctl stop.
func (b *SystemdBackend) Stop(ctx context.Context, service string) (OperationResult, error) {
	if err := b.requireUnit(ctx, service); err != nil {
		return OperationResult{}, err
	}

	b.log.Infow("stopping service", "service", service)

	current, err := b.unitState(ctx, service)
	if err != nil {
		return OperationResult{}, err
	}

	if current == StateStopped {
		b.log.Infow("service already stopped", "service", service)

		return successResult(service, ActionStop, StateStopped), nil
	}

	result, err := b.systemctl(ctx, "stop", service)
	if err != nil {
		return OperationResult{}, err
	}

	if !result.ExitedOK {
		b.log.Errorw("failed to stop service", "service", service, "output", result.Output)

		return failureResult(service, ActionStop, StateFailed, result.Output), nil
	}

	state, err := b.unitState(ctx, service)
	if err != nil {
		return OperationResult{}, err
	}

	if state != StateStopped {
		b.log.Warnw("service did not reach stopped state", "service", service, "state", state)

		return failureResult(service, ActionStop, state, "service did not stop properly"), nil
	}

	return successResult(service, ActionStop, StateStopped), nil
}

// Restart implements Backend, using systemctl restart directly.
func (b *SystemdBackend) Restart(ctx context.Context, service string) (OperationResult, error) {
	if err := b.requireUnit(ctx, service); err != nil {
		return OperationResult{}, err
	}

	b.log.Infow("restarting service", "service", service)

	result, err := b.systemctl(ctx, "restart", service)
	if err != nil {
		return OperationResult{}, err
	}

	if !result.ExitedOK {
		b.log.Errorw("failed to restart service", "service", service, "output", result.Output)

		return failureResult(service, ActionRestart, StateFailed, result.Output), nil
	}

	state, err := b.unitState(ctx, service)
	if err != nil {
		return OperationResult{}, err
	}

	if state != StateRunning {
		b.log.Warnw("service did not reach running state after restart", "service", service, "state", state)

		return failureResult(service, ActionRestart, state, "service did not restart properly"), nil
	}

	return successResult(service, ActionRestart, StateRunning), nil
}
