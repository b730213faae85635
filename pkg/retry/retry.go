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

// Package retry drives repeated attempts of a fallible operation with
// exponential backoff. Transient failures (timeout, connection, busy) are
// retried; permanent failures (denied, not found, malformed) abort
// immediately without consuming a retry.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pirakansa/shiki/pkg/constants"
	"github.com/pirakansa/shiki/pkg/logger"
	"github.com/pirakansa/shiki/pkg/standarderrors"
)

// Config holds the backoff schedule parameters.
type Config struct {
	// MaxAttempts is the total number of tries, the first attempt included.
	// Zero or negative means a single attempt without retries.
	MaxAttempts int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration
	// Multiplier scales the delay after each failed attempt.
	Multiplier float64
}

// DefaultConfig returns the retry schedule used when the configuration does
// not override it.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  constants.DefaultRetryMaxAttempts,
		InitialDelay: constants.DefaultRetryInitialDelay,
		MaxDelay:     constants.DefaultRetryMaxDelay,
		Multiplier:   constants.DefaultRetryBackoffMultiplier,
	}
}

// NextDelay returns the delay before retry number `retry` (0-indexed):
// min(InitialDelay * Multiplier^retry, MaxDelay).
func (c Config) NextDelay(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}

	delay := time.Duration(float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(retry)))
	if delay > c.MaxDelay || delay <= 0 {
		return c.MaxDelay
	}

	return delay
}

// newBackOff builds the underlying exponential schedule. Randomization is
// disabled so the delay sequence is exactly the configured formula.
func (c Config) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.InitialDelay
	exp.MaxInterval = c.MaxDelay
	exp.Multiplier = c.Multiplier
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0

	var b backoff.BackOff = exp
	if c.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(c.MaxAttempts-1))
	} else {
		b = backoff.WithMaxRetries(b, 0)
	}

	return backoff.WithContext(b, ctx)
}

// IsTransient reports whether err is worth retrying. Timeout, connection
// and busy failures are transient; everything else carrying an agent error
// code is permanent. Errors without a code (raw transport failures) are
// treated as transient.
func IsTransient(err error) bool {
	var agentErr *standarderrors.AgentError
	if !errors.As(err, &agentErr) {
		return true
	}

	switch agentErr.Code {
	case standarderrors.CodeTimeout, standarderrors.CodeConnection, standarderrors.CodeBusy:
		return true
	default:
		return false
	}
}

// Do runs op until it succeeds, the attempt budget is exhausted, or ctx
// expires. The context deadline bounds sleeps as well as attempts, so Do
// never sleeps past the caller's budget.
func Do(ctx context.Context, cfg Config, op func() error) error {
	return backoff.RetryNotify(classify(op), cfg.newBackOff(ctx), logRetry())
}

// DoWithData is Do for operations that produce a value alongside the error.
func DoWithData[T any](ctx context.Context, cfg Config, op func() (T, error)) (T, error) {
	return backoff.RetryNotifyWithData(func() (T, error) {
		result, err := op()
		if err != nil && !IsTransient(err) {
			return result, backoff.Permanent(err)
		}

		return result, err
	}, cfg.newBackOff(ctx), logRetry())
}

func logRetry() backoff.Notify {
	log := logger.For(logger.ComponentRetry)

	return func(err error, delay time.Duration) {
		log.Debugw("retrying after transient failure", "delay", delay, "error", err)
	}
}

func classify(op func() error) func() error {
	return func() error {
		err := op()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}

		return err
	}
}
