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

// Package constants centralizes agent-wide defaults and limits.
package constants

import "time"

const (
	// DefaultListenAddress is the address the HTTP server binds to when the
	// configuration does not name one.
	DefaultListenAddress = "0.0.0.0"

	// DefaultListenPort is the HTTP server port when the configuration does
	// not name one.
	DefaultListenPort = 8080

	// DefaultConfigPath is where the agent looks for its configuration file
	// when --config is not given.
	DefaultConfigPath = "/etc/shiki/config.yaml"

	// MaxServiceNameLength bounds service names accepted over the API.
	MaxServiceNameLength = 256

	// MaxConcurrentOperations caps service operations running at once
	// across all services.
	MaxConcurrentOperations = 10

	// DefaultOperationTimeout bounds a single service operation end to end,
	// including retries.
	DefaultOperationTimeout = 60 * time.Second

	// DefaultNotifyTimeout is how long a synchronous notify request waits
	// for the operation to finish before reporting a timeout.
	DefaultNotifyTimeout = 60 * time.Second

	// DefaultRequestTimeout bounds HTTP request handling.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultShutdownTimeout is how long graceful shutdown waits for
	// in-flight requests to drain.
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultHealthCheckTimeout bounds a single backend status probe.
	DefaultHealthCheckTimeout = 5 * time.Second

	// DefaultRetryMaxAttempts is the total number of tries for a failing
	// backend command, the first attempt included.
	DefaultRetryMaxAttempts = 3

	// DefaultRetryInitialDelay is the delay before the first retry.
	DefaultRetryInitialDelay = 1000 * time.Millisecond

	// DefaultRetryMaxDelay caps the delay between retries.
	DefaultRetryMaxDelay = 30000 * time.Millisecond

	// DefaultRetryBackoffMultiplier scales the delay after each failure.
	DefaultRetryBackoffMultiplier = 2.0

	// DefaultWaitPollInterval is how often the wait command re-polls the
	// service state.
	DefaultWaitPollInterval = 2 * time.Second
)
