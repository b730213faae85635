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

// Package fsm owns the agent's process-wide lifecycle state. Every
// incoming request consults it to decide acceptance; only the serve loop
// and request handlers mutate it, through the transition methods here.
package fsm

import (
	"context"
	"sync/atomic"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/pirakansa/shiki/pkg/logger"
	"github.com/pirakansa/shiki/pkg/metrics"
	"github.com/pirakansa/shiki/pkg/standarderrors"
)

// Lifecycle states.
const (
	StateInitializing = "initializing"
	StateReady        = "ready"
	StateDegraded     = "degraded"
	StateShuttingDown = "shutting_down"
	StateFailed       = "failed"
)

// Lifecycle events.
const (
	eventInitialized = "initialized"
	eventDegrade     = "degrade"
	eventRecover     = "recover"
	eventShutdown    = "shutdown"
	eventFail        = "fail"
)

// allStates is used to publish the one-hot state gauge.
var allStates = []string{StateInitializing, StateReady, StateDegraded, StateShuttingDown, StateFailed}

// defaultMaxConsecutiveFailures bounds how many unexpected faults in a row
// the agent tolerates before escalating from degraded to failed.
const defaultMaxConsecutiveFailures = 3

// Machine is the agent lifecycle state machine. Processing is a counted,
// reentrant sub-state of ready: many requests may be in flight at once.
type Machine struct {
	machine             *fsm.FSM
	log                 *zap.SugaredLogger
	processing          atomic.Int64
	consecutiveFailures atomic.Int32
	maxFailures         int32
}

// New returns a machine in the initializing state.
func New() *Machine {
	m := &Machine{
		log:         logger.For(logger.ComponentFSM),
		maxFailures: defaultMaxConsecutiveFailures,
	}

	m.machine = fsm.NewFSM(
		StateInitializing,
		fsm.Events{
			{Name: eventInitialized, Src: []string{StateInitializing}, Dst: StateReady},
			{Name: eventDegrade, Src: []string{StateReady}, Dst: StateDegraded},
			{Name: eventRecover, Src: []string{StateDegraded}, Dst: StateReady},
			{Name: eventShutdown, Src: []string{StateReady, StateDegraded}, Dst: StateShuttingDown},
			{Name: eventFail, Src: []string{StateInitializing, StateDegraded}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				m.log.Infow("lifecycle transition", "from", e.Src, "to", e.Dst, "event", e.Event)
				metrics.SetAgentState(e.Dst, allStates)
			},
		},
	)

	metrics.SetAgentState(StateInitializing, allStates)

	return m
}

// State returns the current lifecycle state.
func (m *Machine) State() string {
	return m.machine.Current()
}

// Processing returns how many requests are in flight.
func (m *Machine) Processing() int64 {
	return m.processing.Load()
}

func (m *Machine) event(name string) error {
	return m.machine.Event(context.Background(), name)
}

// SetReady marks initialization complete.
func (m *Machine) SetReady() error {
	return m.event(eventInitialized)
}

// Shutdown moves to shutting_down; new requests are rejected while
// in-flight ones drain.
func (m *Machine) Shutdown() error {
	return m.event(eventShutdown)
}

// Fail moves to the terminal failed state. Failing from ready passes
// through degraded so the transition table stays small.
func (m *Machine) Fail() error {
	if m.machine.Is(StateReady) {
		if err := m.event(eventDegrade); err != nil {
			return err
		}
	}

	return m.event(eventFail)
}

// BeginRequest gates an incoming request on the lifecycle state. In the
// degraded state it optimistically attempts recovery, so one healthy
// request is enough to return to ready.
func (m *Machine) BeginRequest() error {
	switch m.machine.Current() {
	case StateInitializing:
		return standarderrors.NewBusyError("agent is initializing")
	case StateShuttingDown:
		return standarderrors.NewBusyError("agent is shutting down")
	case StateFailed:
		return standarderrors.NewBusyError("agent has failed")
	case StateDegraded:
		// Concurrent requests race the recover event; losing the race
		// is fine as long as somebody won it.
		if err := m.event(eventRecover); err != nil && !m.machine.Is(StateReady) {
			return standarderrors.NewBusyError("agent is degraded")
		}
	}

	m.processing.Add(1)

	return nil
}

// EndRequest closes the accounting opened by BeginRequest. A request that
// hit an unexpected internal fault degrades the agent; repeated faults
// escalate to failed.
func (m *Machine) EndRequest(internalFault bool) {
	m.processing.Add(-1)

	if !internalFault {
		m.consecutiveFailures.Store(0)

		return
	}

	failures := m.consecutiveFailures.Add(1)

	if m.machine.Is(StateReady) {
		if err := m.event(eventDegrade); err != nil {
			m.log.Warnw("could not degrade", "error", err)
		}
	}

	if failures >= m.maxFailures && m.machine.Is(StateDegraded) {
		m.log.Errorw("too many consecutive faults, failing", "failures", failures)

		if err := m.event(eventFail); err != nil {
			m.log.Warnw("could not fail", "error", err)
		}
	}
}

// Healthy reports whether the agent should answer health probes as live
// and well. A degraded agent is alive but not healthy.
func (m *Machine) Healthy() bool {
	return m.machine.Is(StateReady)
}
