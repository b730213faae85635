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
	"crypto/subtle"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pirakansa/shiki/pkg/config"
	"github.com/pirakansa/shiki/pkg/metrics"
	"github.com/pirakansa/shiki/pkg/models"
	"github.com/pirakansa/shiki/pkg/standarderrors"
)

// countRequests records per-request counters for /status and Prometheus.
func (s *Server) countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.stats.requestsTotal.Add(1)

		c.Next()

		status := c.Writer.Status()
		if status < 400 {
			s.stats.requestsSuccess.Add(1)
		} else {
			s.stats.requestsFailed.Add(1)
		}

		metrics.RequestsTotal.WithLabelValues(c.Request.Method, c.FullPath(), strconv.Itoa(status)).Inc()
	}
}

// authenticate enforces the configured auth method. The health endpoint
// stays open so load balancers can probe without credentials.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.cfg.Auth.Enabled || c.FullPath() == "/api/v1/health" {
			c.Next()

			return
		}

		var ok bool

		switch s.cfg.Auth.Method {
		case config.AuthToken:
			ok = s.checkBearerToken(c)
		case config.AuthAPIKey:
			ok = s.checkAPIKey(c)
		case config.AuthNone:
			ok = true
		}

		if !ok {
			err := standarderrors.NewAuthenticationError("missing or invalid credentials")
			c.AbortWithStatusJSON(err.HTTPStatus(), models.Failure(err))

			return
		}

		c.Next()
	}
}

func (s *Server) checkBearerToken(c *gin.Context) bool {
	header := c.GetHeader("Authorization")

	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Auth.Token)) == 1
}

func (s *Server) checkAPIKey(c *gin.Context) bool {
	key := c.GetHeader("X-API-Key")
	if key == "" {
		return false
	}

	for _, candidate := range s.cfg.Auth.APIKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(candidate)) == 1 {
			return true
		}
	}

	return false
}
