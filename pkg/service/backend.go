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

// Package service abstracts how the agent carries out start/stop/restart
// and status operations against actual OS-level services. Two backends are
// provided: systemd, which shells out to systemctl, and exec, which runs
// operator-defined commands per service.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pirakansa/shiki/pkg/config"
	"github.com/pirakansa/shiki/pkg/standarderrors"
)

// State is the service state as reported by a backend.
type State string

const (
	// StateRunning means the service is up.
	StateRunning State = "running"
	// StateStopped means the service is down.
	StateStopped State = "stopped"
	// StateFailed means the service manager reports a failure.
	StateFailed State = "failed"
	// StateUnknown means the backend cannot classify the service.
	StateUnknown State = "unknown"
)

// Action is a mutating service operation.
type Action string

const (
	// ActionStart starts a service.
	ActionStart Action = "start"
	// ActionStop stops a service.
	ActionStop Action = "stop"
	// ActionRestart restarts a service.
	ActionRestart Action = "restart"
)

// ParseAction validates and normalizes an action string from the API or CLI.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(s)) {
	case ActionStart:
		return ActionStart, nil
	case ActionStop:
		return ActionStop, nil
	case ActionRestart:
		return ActionRestart, nil
	default:
		return "", standarderrors.NewInvalidRequestError(fmt.Sprintf("invalid action: %s", s))
	}
}

// Status is a point-in-time view of one service.
type Status struct {
	Name        string
	Description string
	State       State
}

// OperationResult reports the outcome of one mutating operation. State is
// always re-queried from the backend after the action, never assumed from
// the action's nominal outcome.
type OperationResult struct {
	Service string
	Message string
	Action  Action
	State   State
	Success bool
}

func successResult(service string, action Action, state State) OperationResult {
	return OperationResult{Service: service, Action: action, State: state, Success: true}
}

func failureResult(service string, action Action, state State, message string) OperationResult {
	return OperationResult{Service: service, Action: action, State: state, Message: message}
}

// Backend carries out service operations on the local system. All methods
// honor the context deadline; none block past it.
type Backend interface {
	// Name identifies the backend implementation.
	Name() string
	// Supports reports whether the backend knows the service.
	Supports(service string) bool
	// List returns the service names the backend manages.
	List(ctx context.Context) ([]string, error)
	// Status reports the current state of a service.
	Status(ctx context.Context, service string) (Status, error)
	// Start starts a service. Starting an already running service succeeds.
	Start(ctx context.Context, service string) (OperationResult, error)
	// Stop stops a service. Stopping an already stopped service succeeds.
	Stop(ctx context.Context, service string) (OperationResult, error)
	// Restart restarts a service.
	Restart(ctx context.Context, service string) (OperationResult, error)
}

// Perform dispatches an action to the matching backend method.
func Perform(ctx context.Context, b Backend, service string, action Action) (OperationResult, error) {
	switch action {
	case ActionStart:
		return b.Start(ctx, service)
	case ActionStop:
		return b.Stop(ctx, service)
	case ActionRestart:
		return b.Restart(ctx, service)
	default:
		return OperationResult{}, standarderrors.NewInvalidRequestError(fmt.Sprintf("invalid action: %s", action))
	}
}

// NewBackend builds the backend selected by the configuration.
func NewBackend(cfg *config.Config) (Backend, error) {
	switch cfg.Agent.Backend {
	case config.BackendSystemd:
		return NewSystemdBackend(), nil
	case config.BackendExec:
		return NewExecBackend(cfg.Services), nil
	default:
		return nil, standarderrors.NewConfigError(fmt.Sprintf("unknown backend: %s", cfg.Agent.Backend), nil)
	}
}
