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

// Package controller composes the ACL evaluator and the service backend.
// It serializes operations per service name, enforces the per-operation
// timeout and caps how many operations run at once.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/pirakansa/shiki/pkg/acl"
	"github.com/pirakansa/shiki/pkg/constants"
	"github.com/pirakansa/shiki/pkg/ctxutil/ctxmutex"
	"github.com/pirakansa/shiki/pkg/logger"
	"github.com/pirakansa/shiki/pkg/metrics"
	"github.com/pirakansa/shiki/pkg/service"
	"github.com/pirakansa/shiki/pkg/standarderrors"
)

// Result reports one finished operation. Current is always re-queried from
// the backend after the action, even when the action failed.
type Result struct {
	Service  string
	Message  string
	Action   service.Action
	Previous service.State
	Current  service.State
	Duration time.Duration
}

// Controller owns the hot path for service operations. The ACL rule set
// and the backend are immutable after construction; the lock table is the
// only mutable shared structure.
type Controller struct {
	backend        service.Backend
	acl            *acl.Evaluator
	locks          *ctxmutex.Table
	inflight       *semaphore.Weighted
	log            *zap.SugaredLogger
	defaultTimeout time.Duration
}

// Option tweaks controller construction.
type Option func(*Controller)

// WithMaxConcurrent overrides the cap on simultaneous operations.
func WithMaxConcurrent(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.inflight = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithDefaultTimeout overrides the timeout used when the caller passes zero.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

// New builds a controller over the given backend and ACL rule set.
func New(backend service.Backend, evaluator *acl.Evaluator, opts ...Option) *Controller {
	c := &Controller{
		backend:        backend,
		acl:            evaluator,
		locks:          ctxmutex.NewTable(),
		inflight:       semaphore.NewWeighted(constants.MaxConcurrentOperations),
		log:            logger.For(logger.ComponentController),
		defaultTimeout: constants.DefaultOperationTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Backend exposes the underlying backend for read paths that bypass the
// controller, such as the service listing.
func (c *Controller) Backend() service.Backend {
	return c.backend
}

// Allowed reports whether the ACL permits operating on the service.
func (c *Controller) Allowed(name string) bool {
	return c.acl.Allowed(name)
}

// Operate runs one mutating action against one service.
//
// Sequence: ACL check, concurrency cap, per-service lock, status query,
// backend action, status re-query. The lock is held for the full chain so
// operations on one service name are totally ordered. A zero timeout uses
// the configured default.
func (c *Controller) Operate(ctx context.Context, name string, action service.Action, timeout time.Duration) (Result, error) {
	start := time.Now()

	result, err := c.operate(ctx, name, action, timeout)
	result.Duration = time.Since(start)
	result.Service = name
	result.Action = action

	outcome := "success"
	if err != nil {
		outcome = string(standarderrors.AsAgentError(err).Code)
	}

	metrics.ObserveOperation(string(action), outcome, result.Duration)

	return result, err
}

func (c *Controller) operate(ctx context.Context, name string, action service.Action, timeout time.Duration) (Result, error) {
	if !c.acl.Allowed(name) {
		c.log.Warnw("operation denied by acl", "service", name, "action", action)

		return Result{}, standarderrors.NewPermissionDeniedError(name, string(action))
	}

	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	if !c.inflight.TryAcquire(1) {
		c.log.Warnw("concurrency limit reached", "service", name, "action", action)

		return Result{}, standarderrors.NewBusyError("agent is at its concurrency limit").
			WithDetail("reason", "concurrency limit").
			WithDetail("service", name)
	}
	defer c.inflight.Release(1)

	metrics.ActiveOperations.Inc()
	defer metrics.ActiveOperations.Dec()

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	lock := c.locks.Get(name)
	if err := lock.Lock(opCtx); err != nil {
		c.log.Warnw("timed out waiting for service lock", "service", name, "action", action)

		return Result{}, standarderrors.NewBusyError(fmt.Sprintf("another operation on %q is in progress", name)).
			WithDetail("reason", "lock contention").
			WithDetail("service", name).
			WithDetail("timeout_seconds", int(timeout.Seconds()))
	}
	defer lock.Unlock()

	before, err := c.backend.Status(opCtx, name)
	if err != nil {
		return Result{}, c.classify(err, name, action, timeout)
	}

	c.log.Infow("executing operation", "service", name, "action", action, "previous_state", before.State)

	opResult, opErr := service.Perform(opCtx, c.backend, name, action)

	// Best-known current state, re-queried even after a failure. The
	// operation context may already be spent, so the probe gets its own
	// short budget.
	current := c.requeryState(name, before.State)

	result := Result{Previous: before.State, Current: current}

	if opErr != nil {
		return result, c.classify(opErr, name, action, timeout)
	}

	if !opResult.Success {
		result.Message = opResult.Message
		result.Current = opResult.State

		return result, standarderrors.NewBackendError(opResult.Message, nil).
			WithDetail("service", name).
			WithDetail("action", string(action)).
			WithDetail("previous_status", string(before.State)).
			WithDetail("current_status", string(opResult.State))
	}

	result.Current = opResult.State

	c.log.Infow("operation completed", "service", name, "action", action,
		"previous_state", before.State, "current_state", result.Current)

	return result, nil
}

// requeryState probes the service state with a fresh short deadline so the
// report reflects reality even when the operation itself timed out.
func (c *Controller) requeryState(name string, fallback service.State) service.State {
	probeCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultHealthCheckTimeout)
	defer cancel()

	status, err := c.backend.Status(probeCtx, name)
	if err != nil {
		return fallback
	}

	return status.State
}

// classify decorates backend errors with the operation context. Deadline
// expiry surfaces as a timeout error regardless of where in the chain the
// budget ran out.
func (c *Controller) classify(err error, name string, action service.Action, timeout time.Duration) error {
	agentErr := standarderrors.AsAgentError(err)
	if errors.Is(err, context.DeadlineExceeded) || standarderrors.HasCode(err, standarderrors.CodeTimeout) {
		agentErr = standarderrors.NewTimeoutError(fmt.Sprintf("operation %s on %q timed out", action, name))
	}

	return agentErr.
		WithDetail("service", name).
		WithDetail("action", string(action)).
		WithDetail("timeout_seconds", int(timeout.Seconds()))
}

// Status reports one service's state under its lock, so status reads take
// their place in the per-service operation order.
func (c *Controller) Status(ctx context.Context, name string, timeout time.Duration) (service.Status, error) {
	if !c.acl.Allowed(name) {
		return service.Status{}, standarderrors.NewPermissionDeniedError(name, "status")
	}

	if timeout <= 0 {
		timeout = constants.DefaultHealthCheckTimeout
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	lock := c.locks.Get(name)
	if err := lock.Lock(opCtx); err != nil {
		return service.Status{}, standarderrors.NewBusyError(fmt.Sprintf("another operation on %q is in progress", name)).
			WithDetail("reason", "lock contention").
			WithDetail("service", name)
	}
	defer lock.Unlock()

	status, err := c.backend.Status(opCtx, name)
	if err != nil {
		return service.Status{}, c.classify(err, name, "status", timeout)
	}

	return status, nil
}

// List returns the backend's services filtered down to what the ACL
// permits.
func (c *Controller) List(ctx context.Context) ([]string, error) {
	services, err := c.backend.List(ctx)
	if err != nil {
		return nil, err
	}

	allowed := make([]string, 0, len(services))

	for _, name := range services {
		if c.acl.Allowed(name) {
			allowed = append(allowed, name)
		}
	}

	return allowed, nil
}
