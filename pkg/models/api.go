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

// Package models holds the JSON types exchanged over the /api/v1 surface.
// Success and error responses share one envelope shape so clients can
// always decode the same structure.
package models

import (
	"time"

	"github.com/pirakansa/shiki/pkg/standarderrors"
)

// APIResponse is the envelope every endpoint replies with.
type APIResponse struct {
	Data      any            `json:"data,omitempty"`
	Error     *ErrorResponse `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
}

// ErrorResponse carries the stable error code plus diagnostic details.
type ErrorResponse struct {
	Details map[string]any      `json:"details,omitempty"`
	Code    standarderrors.Code `json:"code"`
	Message string              `json:"message"`
}

// Success wraps data in a successful envelope.
func Success(data any) APIResponse {
	return APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Failure wraps an agent error in a failed envelope.
func Failure(err *standarderrors.AgentError) APIResponse {
	return APIResponse{
		Success: false,
		Error: &ErrorResponse{
			Code:    err.Code,
			Message: err.Message,
			Details: err.Details,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NotifyRequest is the body of POST /api/v1/notify.
type NotifyRequest struct {
	Action  string        `json:"action"`
	Service string        `json:"service"`
	Options NotifyOptions `json:"options"`
}

// NotifyOptions tunes a single notify request. The zero value is not the
// default; use DefaultNotifyOptions.
type NotifyOptions struct {
	Wait           *bool `json:"wait,omitempty"`
	TimeoutSeconds *int  `json:"timeout_seconds,omitempty"`
}

// WaitOrDefault returns the wait flag, defaulting to true.
func (o NotifyOptions) WaitOrDefault() bool {
	if o.Wait == nil {
		return true
	}

	return *o.Wait
}

// TimeoutOrDefault returns the request timeout, defaulting to 60 seconds.
func (o NotifyOptions) TimeoutOrDefault() time.Duration {
	if o.TimeoutSeconds == nil || *o.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}

	return time.Duration(*o.TimeoutSeconds) * time.Second
}

// NotifyResponseData answers a notify request. Result is "completed",
// "accepted" or "error".
type NotifyResponseData struct {
	PreviousStatus *string `json:"previous_status,omitempty"`
	CurrentStatus  *string `json:"current_status,omitempty"`
	DurationMs     *int64  `json:"duration_ms,omitempty"`
	Message        string  `json:"message,omitempty"`
	RequestID      string  `json:"request_id"`
	Service        string  `json:"service"`
	Action         string  `json:"action"`
	Result         string  `json:"result"`
}

// HealthData answers GET /api/v1/health.
type HealthData struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// StatusData answers GET /api/v1/status.
type StatusData struct {
	Agent         AgentInfo  `json:"agent"`
	Server        ServerInfo `json:"server"`
	Stats         StatsInfo  `json:"stats"`
	Version       string     `json:"version"`
	UptimeSeconds int64      `json:"uptime_seconds"`
}

// AgentInfo describes the agent's identity and lifecycle state.
type AgentInfo struct {
	Name  string   `json:"name"`
	State string   `json:"state"`
	Mode  string   `json:"mode"`
	Tags  []string `json:"tags"`
}

// ServerInfo describes the listener settings.
type ServerInfo struct {
	Bind       string `json:"bind"`
	Port       int    `json:"port"`
	TLSEnabled bool   `json:"tls_enabled"`
}

// StatsInfo is a point-in-time request counter snapshot.
type StatsInfo struct {
	RequestsTotal    uint64 `json:"requests_total"`
	RequestsSuccess  uint64 `json:"requests_success"`
	RequestsFailed   uint64 `json:"requests_failed"`
	ActiveOperations int64  `json:"active_operations"`
}

// ServicesListData answers GET /api/v1/services.
type ServicesListData struct {
	Services []ServiceInfo `json:"services"`
	Total    int           `json:"total"`
	Limit    int           `json:"limit"`
	Offset   int           `json:"offset"`
}

// ServiceInfo is one entry in the service list.
type ServiceInfo struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
}

// ServiceOperationData answers POST /api/v1/services/{name}/{action}.
type ServiceOperationData struct {
	PreviousState *string `json:"previous_state,omitempty"`
	Message       string  `json:"message,omitempty"`
	Service       string  `json:"service"`
	Action        string  `json:"action"`
	CurrentState  string  `json:"current_state"`
	Success       bool    `json:"success"`
}
