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

package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pirakansa/shiki/pkg/constants"
	"github.com/pirakansa/shiki/pkg/fsm"
	"github.com/pirakansa/shiki/pkg/models"
	"github.com/pirakansa/shiki/pkg/service"
	"github.com/pirakansa/shiki/pkg/standarderrors"
	"github.com/pirakansa/shiki/pkg/version"
)

func respondError(c *gin.Context, err error) {
	agentErr := standarderrors.AsAgentError(err)
	c.JSON(agentErr.HTTPStatus(), models.Failure(agentErr))
}

// validateServiceName enforces the name shape shared by every endpoint.
func validateServiceName(name string) error {
	if name == "" {
		return standarderrors.NewInvalidRequestError("service name must not be empty")
	}

	if len(name) > constants.MaxServiceNameLength {
		return standarderrors.NewInvalidRequestError(
			fmt.Sprintf("service name exceeds %d characters", constants.MaxServiceNameLength))
	}

	return nil
}

// requestID returns the caller-supplied correlation id, or a fresh one.
// The id is never used for deduplication, only for correlation.
func requestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}

	return uuid.NewString()
}

func (s *Server) handleHealth(c *gin.Context) {
	health := "unhealthy"

	switch {
	case s.machine.Healthy():
		health = "healthy"
	case s.machine.State() == fsm.StateDegraded:
		health = "degraded"
	}

	c.JSON(http.StatusOK, models.Success(models.HealthData{
		Status:        health,
		Version:       version.Version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}))
}

func (s *Server) handleStatus(c *gin.Context) {
	tags := s.cfg.Agent.Tags
	if tags == nil {
		tags = []string{}
	}

	c.JSON(http.StatusOK, models.Success(models.StatusData{
		Agent: models.AgentInfo{
			Name:  s.cfg.AgentName(),
			State: s.machine.State(),
			Mode:  string(s.cfg.Agent.Mode),
			Tags:  tags,
		},
		Server: models.ServerInfo{
			Bind:       s.cfg.Server.Bind,
			Port:       s.cfg.Server.Port,
			TLSEnabled: s.cfg.Server.TLS.Enabled,
		},
		Stats: models.StatsInfo{
			RequestsTotal:    s.stats.requestsTotal.Load(),
			RequestsSuccess:  s.stats.requestsSuccess.Load(),
			RequestsFailed:   s.stats.requestsFailed.Load(),
			ActiveOperations: s.machine.Processing(),
		},
		Version:       version.Version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}))
}

func (s *Server) handleNotify(c *gin.Context) {
	var req models.NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, standarderrors.NewInvalidRequestError("invalid request body: "+err.Error()))

		return
	}

	if err := validateServiceName(req.Service); err != nil {
		respondError(c, err)

		return
	}

	action, err := service.ParseAction(req.Action)
	if err != nil {
		respondError(c, err)

		return
	}

	if err := s.machine.BeginRequest(); err != nil {
		respondError(c, err)

		return
	}

	id := requestID(c)
	timeout := req.Options.TimeoutOrDefault()

	if !req.Options.WaitOrDefault() {
		// Fire the operation in the background and acknowledge now. The
		// operation gets its own context so the response lifecycle does
		// not cancel it.
		go func() {
			result, opErr := s.ctrl.Operate(context.Background(), req.Service, action, timeout)
			s.machine.EndRequest(isInternalFault(opErr))

			if opErr != nil {
				s.log.Errorw("background operation failed",
					"request_id", id, "service", req.Service, "action", action, "error", opErr)

				return
			}

			s.log.Infow("background operation completed",
				"request_id", id, "service", req.Service, "action", action,
				"previous", result.Previous, "current", result.Current)
		}()

		c.JSON(http.StatusAccepted, models.Success(models.NotifyResponseData{
			RequestID: id,
			Service:   req.Service,
			Action:    string(action),
			Result:    "accepted",
			Message:   "operation started in background",
		}))

		return
	}

	result, opErr := s.ctrl.Operate(c.Request.Context(), req.Service, action, timeout)
	s.machine.EndRequest(isInternalFault(opErr))

	if opErr != nil {
		respondError(c, opErr)

		return
	}

	previous := string(result.Previous)
	current := string(result.Current)
	durationMs := result.Duration.Milliseconds()

	c.JSON(http.StatusOK, models.Success(models.NotifyResponseData{
		RequestID:      id,
		Service:        req.Service,
		Action:         string(action),
		Result:         "completed",
		PreviousStatus: &previous,
		CurrentStatus:  &current,
		DurationMs:     &durationMs,
	}))
}

// isInternalFault reports whether a request outcome should degrade the
// agent. Caller mistakes (denied, not found, malformed) and time budget
// failures are not the agent's fault; backend subsystem failures are.
func isInternalFault(err error) bool {
	if err == nil {
		return false
	}

	return standarderrors.HasCode(err, standarderrors.CodeBackend)
}

func (s *Server) handleListServices(c *gin.Context) {
	limit := parsePositiveQuery(c, "limit", 100)
	offset := parsePositiveQuery(c, "offset", 0)
	statusFilter := c.Query("status")

	listCtx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.Timeout.HTTP())
	defer cancel()

	names, err := s.ctrl.List(listCtx)
	if err != nil {
		respondError(c, err)

		return
	}

	infos := make([]models.ServiceInfo, 0, len(names))

	for _, name := range names {
		status, err := s.ctrl.Status(listCtx, name, s.cfg.Timeout.Health())
		if err != nil {
			if statusFilter == "" || statusFilter == string(service.StateUnknown) {
				infos = append(infos, models.ServiceInfo{Name: name, Status: string(service.StateUnknown)})
			}

			continue
		}

		if statusFilter != "" && string(status.State) != statusFilter {
			continue
		}

		infos = append(infos, models.ServiceInfo{
			Name:        name,
			Status:      string(status.State),
			Description: status.Description,
		})
	}

	total := len(infos)
	if offset > total {
		offset = total
	}

	end := offset + limit
	if end > total {
		end = total
	}

	c.JSON(http.StatusOK, models.Success(models.ServicesListData{
		Services: infos[offset:end],
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}))
}

func parsePositiveQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}

	return value
}

func (s *Server) handleGetService(c *gin.Context) {
	name := c.Param("name")
	if err := validateServiceName(name); err != nil {
		respondError(c, err)

		return
	}

	status, err := s.ctrl.Status(c.Request.Context(), name, s.cfg.Timeout.Health())
	if err != nil {
		respondError(c, err)

		return
	}

	c.JSON(http.StatusOK, models.Success(models.ServiceInfo{
		Name:        status.Name,
		Status:      string(status.State),
		Description: status.Description,
	}))
}

func (s *Server) handleServiceAction(c *gin.Context) {
	name := c.Param("name")
	if err := validateServiceName(name); err != nil {
		respondError(c, err)

		return
	}

	action, err := service.ParseAction(c.Param("action"))
	if err != nil {
		respondError(c, err)

		return
	}

	if err := s.machine.BeginRequest(); err != nil {
		respondError(c, err)

		return
	}

	result, opErr := s.ctrl.Operate(c.Request.Context(), name, action, s.cfg.Timeout.Service())
	s.machine.EndRequest(isInternalFault(opErr))

	if opErr != nil {
		respondError(c, opErr)

		return
	}

	previous := string(result.Previous)

	c.JSON(http.StatusOK, models.Success(models.ServiceOperationData{
		Service:       name,
		Action:        string(action),
		Success:       true,
		PreviousState: &previous,
		CurrentState:  string(result.Current),
	}))
}
