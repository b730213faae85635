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

// Package server exposes the agent's HTTP surface under /api/v1.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pirakansa/shiki/pkg/config"
	"github.com/pirakansa/shiki/pkg/constants"
	"github.com/pirakansa/shiki/pkg/controller"
	"github.com/pirakansa/shiki/pkg/fsm"
	"github.com/pirakansa/shiki/pkg/logger"
)

// stats tracks request counters for the status endpoint.
type stats struct {
	requestsTotal   atomic.Uint64
	requestsSuccess atomic.Uint64
	requestsFailed  atomic.Uint64
}

// Server wires the router, the controller and the lifecycle machine.
type Server struct {
	cfg       *config.Config
	ctrl      *controller.Controller
	machine   *fsm.Machine
	engine    *gin.Engine
	httpSrv   *http.Server
	log       *zap.SugaredLogger
	startTime time.Time
	stats     stats
}

// New builds the server and its routes.
func New(cfg *config.Config, ctrl *controller.Controller, machine *fsm.Machine) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:       cfg,
		ctrl:      ctrl,
		machine:   machine,
		log:       logger.For(logger.ComponentServer),
		startTime: time.Now(),
	}

	engine := gin.New()
	engine.Use(ginzap.Ginzap(logger.GetLogger(), time.RFC3339, true))
	engine.Use(ginzap.RecoveryWithZap(logger.GetLogger(), true))
	engine.Use(s.countRequests())

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/api/v1")
	v1.Use(s.authenticate())
	{
		v1.GET("/health", s.handleHealth)
		v1.GET("/status", s.handleStatus)
		v1.POST("/notify", s.handleNotify)
		v1.GET("/services", s.handleListServices)
		v1.GET("/services/:name", s.handleGetService)
		v1.POST("/services/:name/:action", s.handleServiceAction)
	}

	s.engine = engine

	return s
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until ctx is canceled, then drains in-flight requests within
// the shutdown grace period.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Bind, s.cfg.Server.Port)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		s.log.Infow("listening", "addr", addr, "tls", s.cfg.Server.TLS.Enabled)

		var err error
		if s.cfg.Server.TLS.Enabled {
			err = s.httpSrv.ListenAndServeTLS(s.cfg.Server.TLS.CertPath, s.cfg.Server.TLS.KeyPath)
		} else {
			err = s.httpSrv.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Close the lifecycle gate first so new requests are rejected while
	// in-flight ones drain.
	if err := s.machine.Shutdown(); err != nil {
		s.log.Warnw("lifecycle shutdown transition failed", "error", err)
	}

	s.log.Infow("shutting down", "grace_period", constants.DefaultShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
	defer cancel()

	return s.httpSrv.Shutdown(shutdownCtx)
}
