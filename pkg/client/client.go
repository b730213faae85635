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

// Package client talks to a remote agent over its /api/v1 surface.
// Transport failures come back as connection errors and are retried with
// exponential backoff; errors reported by the agent keep their original
// code so callers can map them to exit codes.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pirakansa/shiki/pkg/constants"
	"github.com/pirakansa/shiki/pkg/logger"
	"github.com/pirakansa/shiki/pkg/models"
	"github.com/pirakansa/shiki/pkg/retry"
	"github.com/pirakansa/shiki/pkg/standarderrors"
)

// Client is an HTTP client for one agent.
type Client struct {
	httpClient *http.Client
	log        *zap.SugaredLogger
	baseURL    string
	token      string
	apiKey     string
	retryCfg   retry.Config
}

// Option customizes a Client.
type Option func(*Client)

// WithToken sends a bearer token with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithAPIKey sends an X-API-Key header with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithTimeout bounds each HTTP request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) {
		c.retryCfg = cfg
	}
}

// WithInsecureTLS skips certificate verification. Useful against agents
// running with self-signed certificates.
func WithInsecureTLS() Option {
	return func(c *Client) {
		transport, ok := c.httpClient.Transport.(*http.Transport)
		if !ok {
			transport = &http.Transport{Proxy: http.ProxyFromEnvironment}
			c.httpClient.Transport = transport
		}

		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in
	}
}

// New builds a client for the agent at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
			Timeout:   constants.DefaultRequestTimeout,
		},
		retryCfg: retry.DefaultConfig(),
		log:      logger.For(logger.ComponentClient),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Health fetches the target agent's health summary.
func (c *Client) Health(ctx context.Context) (models.HealthData, error) {
	return request[models.HealthData](ctx, c, http.MethodGet, "/api/v1/health", nil)
}

// AgentStatus fetches the target agent's detailed status.
func (c *Client) AgentStatus(ctx context.Context) (models.StatusData, error) {
	return request[models.StatusData](ctx, c, http.MethodGet, "/api/v1/status", nil)
}

// Notify asks the agent to run action on service. A nil options uses the
// agent defaults (wait with a 60 second timeout).
func (c *Client) Notify(
	ctx context.Context,
	service string,
	action string,
	options *models.NotifyOptions,
) (models.NotifyResponseData, error) {
	body := models.NotifyRequest{
		Action:  action,
		Service: service,
	}
	if options != nil {
		body.Options = *options
	}

	c.log.Infow("Sending notify request", "service", service, "action", action)

	return request[models.NotifyResponseData](ctx, c, http.MethodPost, "/api/v1/notify", body)
}

// ListOptions filters and paginates ListServices.
type ListOptions struct {
	Status string
	Limit  int
	Offset int
}

// ListServices fetches the agent's service inventory.
func (c *Client) ListServices(ctx context.Context, opts ListOptions) (models.ServicesListData, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	path := "/api/v1/services"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	return request[models.ServicesListData](ctx, c, http.MethodGet, path, nil)
}

// GetService fetches one service's current status.
func (c *Client) GetService(ctx context.Context, name string) (models.ServiceInfo, error) {
	path := "/api/v1/services/" + url.PathEscape(name)

	return request[models.ServiceInfo](ctx, c, http.MethodGet, path, nil)
}

// WaitForService polls the agent until the named service reports
// targetStatus, a status check permanently fails, or timeout elapses.
func (c *Client) WaitForService(
	ctx context.Context,
	name string,
	targetStatus string,
	timeout time.Duration,
	pollInterval time.Duration,
) error {
	if pollInterval <= 0 {
		pollInterval = constants.DefaultWaitPollInterval
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.log.Infow("Waiting for service to reach target state",
		"service", name,
		"target_status", targetStatus,
		"timeout", timeout)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		info, err := c.GetService(waitCtx, name)
		switch {
		case err == nil && info.Status == targetStatus:
			c.log.Infow("Service reached target state", "service", name, "status", info.Status)

			return nil
		case err == nil:
			c.log.Debugw("Service not yet in target state",
				"service", name,
				"current_status", info.Status,
				"target_status", targetStatus)
		case standarderrors.HasCode(err, standarderrors.CodeServiceNotFound) ||
			standarderrors.HasCode(err, standarderrors.CodePermissionDenied):
			return err
		default:
			c.log.Warnw("Status check failed while waiting", "service", name, "error", err)
		}

		select {
		case <-waitCtx.Done():
			return standarderrors.NewTimeoutError(
				fmt.Sprintf("service %s did not reach %s within %s", name, targetStatus, timeout)).
				WithDetail("service", name).
				WithDetail("target_status", targetStatus)
		case <-ticker.C:
		}
	}
}

// envelope mirrors models.APIResponse with the payload left raw so each
// call site can decode it into its own type.
type envelope struct {
	Data    json.RawMessage       `json:"data"`
	Error   *models.ErrorResponse `json:"error"`
	Success bool                  `json:"success"`
}

func request[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	return retry.DoWithData(ctx, c.retryCfg, func() (T, error) {
		var zero T

		resp, err := c.do(ctx, method, path, body)
		if err != nil {
			return zero, err
		}

		return decode[T](path, resp)
	})
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, standarderrors.NewInvalidRequestError(
				fmt.Sprintf("failed to encode request body: %s", err))
		}

		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, standarderrors.NewInvalidRequestError(
			fmt.Sprintf("failed to build request: %s", err))
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, standarderrors.NewConnectionError(
			fmt.Sprintf("failed to reach agent at %s", c.baseURL), err)
	}

	return resp, nil
}

func decode[T any](path string, resp *http.Response) (T, error) {
	var zero T

	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, standarderrors.NewConnectionError("failed to read agent response", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, standarderrors.NewBackendError(
			fmt.Sprintf("failed to decode response from %s", path), err)
	}

	if !env.Success {
		return zero, remoteError(env.Error)
	}

	if len(env.Data) == 0 {
		return zero, standarderrors.NewBackendError(
			fmt.Sprintf("response from %s is missing data", path), nil)
	}

	var data T
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return zero, standarderrors.NewBackendError(
			fmt.Sprintf("failed to decode payload from %s", path), err)
	}

	return data, nil
}

// remoteError rebuilds an AgentError from the envelope so the caller sees
// the same code the agent reported.
func remoteError(resp *models.ErrorResponse) *standarderrors.AgentError {
	if resp == nil {
		return standarderrors.NewBackendError("agent reported failure without an error body", nil)
	}

	return &standarderrors.AgentError{
		Code:    resp.Code,
		Message: resp.Message,
		Details: resp.Details,
	}
}
