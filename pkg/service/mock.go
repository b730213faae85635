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
	"sort"
	"sync"
	"time"

	"github.com/pirakansa/shiki/pkg/standarderrors"
)

// MockBackend is an in-memory backend for tests. Delay simulates slow
// operations; FailActions makes specific actions report failure.
type MockBackend struct {
	states      map[string]State
	FailActions map[Action]string
	StatusErrs  map[string]error
	calls       []string
	Delay       time.Duration
	mu          sync.Mutex
}

// NewMockBackend returns a mock over the given initial states.
func NewMockBackend(initial map[string]State) *MockBackend {
	states := make(map[string]State, len(initial))
	for name, state := range initial {
		states[name] = state
	}

	return &MockBackend{states: states}
}

// Name implements Backend.
func (b *MockBackend) Name() string {
	return "mock"
}

// Supports implements Backend.
func (b *MockBackend) Supports(service string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.states[service]

	return ok
}

// SetState overrides a service's state.
func (b *MockBackend) SetState(service string, state State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.states[service] = state
}

// Calls returns the recorded backend invocations in order.
func (b *MockBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	calls := make([]string, len(b.calls))
	copy(calls, b.calls)

	return calls
}

func (b *MockBackend) record(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, call)
}

// wait blocks for the configured delay, honoring the context deadline.
func (b *MockBackend) wait(ctx context.Context) error {
	if b.Delay == 0 {
		return nil
	}

	timer := time.NewTimer(b.Delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return standarderrors.NewTimeoutError("mock operation timed out")
	}
}

func (b *MockBackend) lookup(service string) (State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.states[service]
	if !ok {
		return StateUnknown, standarderrors.NewServiceNotFoundError(service)
	}

	return state, nil
}

// List implements Backend.
func (b *MockBackend) List(_ context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	services := make([]string, 0, len(b.states))
	for name := range b.states {
		services = append(services, name)
	}

	sort.Strings(services)

	return services, nil
}

// Status implements Backend.
func (b *MockBackend) Status(ctx context.Context, service string) (Status, error) {
	if err := b.StatusErrs[service]; err != nil {
		return Status{}, err
	}

	state, err := b.lookup(service)
	if err != nil {
		return Status{}, err
	}

	return Status{Name: service, State: state}, nil
}

func (b *MockBackend) apply(ctx context.Context, service string, action Action, target State) (OperationResult, error) {
	if _, err := b.lookup(service); err != nil {
		return OperationResult{}, err
	}

	b.record(string(action) + " " + service)

	if err := b.wait(ctx); err != nil {
		return OperationResult{}, err
	}

	if message, ok := b.FailActions[action]; ok {
		return failureResult(service, action, StateFailed, message), nil
	}

	b.mu.Lock()
	b.states[service] = target
	b.mu.Unlock()

	return successResult(service, action, target), nil
}

// Start implements Backend.
func (b *MockBackend) Start(ctx context.Context, service string) (OperationResult, error) {
	return b.apply(ctx, service, ActionStart, StateRunning)
}

// Stop implements Backend.
func (b *MockBackend) Stop(ctx context.Context, service string) (OperationResult, error) {
	return b.apply(ctx, service, ActionStop, StateStopped)
}

// Restart implements Backend.
func (b *MockBackend) Restart(ctx context.Context, service string) (OperationResult, error) {
	return b.apply(ctx, service, ActionRestart, StateRunning)
}
