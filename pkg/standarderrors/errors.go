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

// Package standarderrors defines the agent error catalog. Every failure
// surfaced over the API or the CLI carries one of the stable codes below so
// callers can react without parsing message text.
package standarderrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error code.
type Code string

const (
	// CodeConfig reports an invalid or unreadable configuration.
	CodeConfig Code = "E001"
	// CodeServiceNotFound reports a service unknown to the backend.
	CodeServiceNotFound Code = "E002"
	// CodePermissionDenied reports an operation rejected by the ACL.
	CodePermissionDenied Code = "E003"
	// CodeBackend reports a backend command or manager failure.
	CodeBackend Code = "E004"
	// CodeTimeout reports an operation that exceeded its deadline.
	CodeTimeout Code = "E005"
	// CodeConnection reports a network failure reaching an agent.
	CodeConnection Code = "E006"
	// CodeAuthentication reports missing or invalid credentials.
	CodeAuthentication Code = "E007"
	// CodeInvalidRequest reports a malformed request.
	CodeInvalidRequest Code = "E008"
	// CodeBusy reports an agent that cannot take on more work right now.
	CodeBusy Code = "E009"
)

// AgentError is the error type carried through the controller, the server
// and the CLI. Details travel into the API error envelope verbatim.
type AgentError struct {
	Details map[string]any
	Code    Code
	Message string
	Err     error
}

func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// WithDetail attaches a key/value pair to the error envelope details.
func (e *AgentError) WithDetail(key string, value any) *AgentError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}

	e.Details[key] = value

	return e
}

// HTTPStatus maps the error code onto the HTTP status used by the API.
func (e *AgentError) HTTPStatus() int {
	switch e.Code {
	case CodeServiceNotFound:
		return http.StatusNotFound
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeConnection:
		return http.StatusBadGateway
	case CodeAuthentication:
		return http.StatusUnauthorized
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeBusy:
		return http.StatusServiceUnavailable
	case CodeConfig, CodeBackend:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ExitCode maps the error code onto the process exit code used by the CLI.
func (e *AgentError) ExitCode() int {
	switch e.Code {
	case CodeConfig:
		return 2
	case CodeConnection:
		return 3
	case CodeTimeout:
		return 4
	case CodeAuthentication:
		return 5
	case CodeInvalidRequest:
		return 64
	default:
		return 1
	}
}

// NewConfigError reports an invalid or unreadable configuration.
func NewConfigError(message string, err error) *AgentError {
	return &AgentError{Code: CodeConfig, Message: message, Err: err}
}

// NewServiceNotFoundError reports a service the backend does not know.
func NewServiceNotFoundError(service string) *AgentError {
	e := &AgentError{Code: CodeServiceNotFound, Message: fmt.Sprintf("service not found: %s", service)}

	return e.WithDetail("service", service)
}

// NewPermissionDeniedError reports an action the ACL rejected.
func NewPermissionDeniedError(service, action string) *AgentError {
	e := &AgentError{
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("action %q not permitted on service %q", action, service),
	}

	return e.WithDetail("service", service).WithDetail("action", action)
}

// NewBackendError reports a backend command or manager failure.
func NewBackendError(message string, err error) *AgentError {
	return &AgentError{Code: CodeBackend, Message: message, Err: err}
}

// NewTimeoutError reports an operation that exceeded its deadline.
func NewTimeoutError(message string) *AgentError {
	return &AgentError{Code: CodeTimeout, Message: message}
}

// NewConnectionError reports a network failure reaching an agent.
func NewConnectionError(message string, err error) *AgentError {
	return &AgentError{Code: CodeConnection, Message: message, Err: err}
}

// NewAuthenticationError reports missing or invalid credentials.
func NewAuthenticationError(message string) *AgentError {
	return &AgentError{Code: CodeAuthentication, Message: message}
}

// NewInvalidRequestError reports a malformed request.
func NewInvalidRequestError(message string) *AgentError {
	return &AgentError{Code: CodeInvalidRequest, Message: message}
}

// NewBusyError reports an agent at its concurrency limit.
func NewBusyError(message string) *AgentError {
	return &AgentError{Code: CodeBusy, Message: message}
}

// AsAgentError extracts an *AgentError from err, or wraps err as a backend
// error so every failure leaves the agent with a stable code.
func AsAgentError(err error) *AgentError {
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr
	}

	return NewBackendError("internal error", err)
}

// HasCode reports whether err carries the given error code.
func HasCode(err error, code Code) bool {
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr.Code == code
	}

	return false
}
