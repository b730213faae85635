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

package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pirakansa/shiki/pkg/acl"
	"github.com/pirakansa/shiki/pkg/config"
	"github.com/pirakansa/shiki/pkg/controller"
	"github.com/pirakansa/shiki/pkg/fsm"
	"github.com/pirakansa/shiki/pkg/server"
	"github.com/pirakansa/shiki/pkg/service"
	"github.com/pirakansa/shiki/pkg/standarderrors"
)

// envelope mirrors the wire shape for decoding in assertions.
type envelope struct {
	Data  map[string]any `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
}

type fixture struct {
	srv     *server.Server
	backend *service.MockBackend
	machine *fsm.Machine
	cfg     *config.Config
}

func newFixture(states map[string]service.State, denied []string, mutate func(*config.Config)) *fixture {
	cfg := config.Default()
	cfg.ACL.Denied = denied

	if mutate != nil {
		mutate(cfg)
	}

	backend := service.NewMockBackend(states)
	ctrl := controller.New(backend, acl.NewEvaluator(cfg.ACL.Allowed, cfg.ACL.Denied))
	machine := fsm.New()
	Expect(machine.SetReady()).To(Succeed())

	return &fixture{
		srv:     server.New(cfg, ctrl, machine),
		backend: backend,
		machine: machine,
		cfg:     cfg,
	}
}

func (f *fixture) do(method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	var reader *bytes.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	recorder := httptest.NewRecorder()
	f.srv.Engine().ServeHTTP(recorder, req)

	var env envelope
	Expect(json.Unmarshal(recorder.Body.Bytes(), &env)).To(Succeed())

	return recorder, env
}

var _ = Describe("Server", func() {
	Describe("GET /api/v1/health", func() {
		It("answers healthy while ready", func() {
			f := newFixture(nil, nil, nil)

			recorder, env := f.do(http.MethodGet, "/api/v1/health", nil, nil)
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeTrue())
			Expect(env.Data["status"]).To(Equal("healthy"))
			Expect(env.Data["version"]).NotTo(BeEmpty())
		})
	})

	Describe("GET /api/v1/status", func() {
		It("reports agent identity, state and counters", func() {
			f := newFixture(nil, nil, func(cfg *config.Config) {
				cfg.Agent.Name = "agent-1"
				cfg.Agent.Tags = []string{"web"}
			})

			recorder, env := f.do(http.MethodGet, "/api/v1/status", nil, nil)
			Expect(recorder.Code).To(Equal(http.StatusOK))

			agent := env.Data["agent"].(map[string]any)
			Expect(agent["name"]).To(Equal("agent-1"))
			Expect(agent["state"]).To(Equal("ready"))

			stats := env.Data["stats"].(map[string]any)
			Expect(stats["requests_total"]).To(BeNumerically(">=", 1))
		})
	})

	Describe("POST /api/v1/notify", func() {
		It("starts an allowed service and reports both statuses", func() {
			f := newFixture(map[string]service.State{"nginx": service.StateStopped}, nil, nil)

			recorder, env := f.do(http.MethodPost, "/api/v1/notify", map[string]any{
				"action":  "start",
				"service": "nginx",
				"options": map[string]any{"wait": true, "timeout_seconds": 60},
			}, nil)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(env.Success).To(BeTrue())
			Expect(env.Data["result"]).To(Equal("completed"))
			Expect(env.Data["previous_status"]).To(Equal("stopped"))
			Expect(env.Data["current_status"]).To(Equal("running"))
			Expect(env.Data["request_id"]).NotTo(BeEmpty())
		})

		It("rejects a denied service without invoking any backend command", func() {
			f := newFixture(map[string]service.State{"sshd": service.StateRunning}, []string{"sshd"}, nil)

			recorder, env := f.do(http.MethodPost, "/api/v1/notify", map[string]any{
				"action":  "start",
				"service": "sshd",
			}, nil)

			Expect(recorder.Code).To(Equal(http.StatusForbidden))
			Expect(env.Success).To(BeFalse())
			Expect(env.Error.Code).To(Equal("E003"))
			Expect(f.backend.Calls()).To(BeEmpty())
		})

		It("echoes the caller's request id", func() {
			f := newFixture(map[string]service.State{"nginx": service.StateStopped}, nil, nil)

			_, env := f.do(http.MethodPost, "/api/v1/notify", map[string]any{
				"action":  "start",
				"service": "nginx",
			}, map[string]string{"X-Request-ID": "corr-42"})

			Expect(env.Data["request_id"]).To(Equal("corr-42"))
		})

		It("rejects an unknown action", func() {
			f := newFixture(nil, nil, nil)

			recorder, env := f.do(http.MethodPost, "/api/v1/notify", map[string]any{
				"action":  "reload",
				"service": "nginx",
			}, nil)

			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			Expect(env.Error.Code).To(Equal("E008"))
		})

		It("rejects an over-long service name", func() {
			f := newFixture(nil, nil, nil)

			longName := make([]byte, 257)
			for i := range longName {
				longName[i] = 'a'
			}

			recorder, env := f.do(http.MethodPost, "/api/v1/notify", map[string]any{
				"action":  "start",
				"service": string(longName),
			}, nil)

			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			Expect(env.Error.Code).To(Equal("E008"))
		})

		It("returns 404 for a service the backend does not know", func() {
			f := newFixture(nil, nil, nil)

			recorder, env := f.do(http.MethodPost, "/api/v1/notify", map[string]any{
				"action":  "start",
				"service": "ghost",
			}, nil)

			Expect(recorder.Code).To(Equal(http.StatusNotFound))
			Expect(env.Error.Code).To(Equal("E002"))
		})

		It("acknowledges immediately with wait=false and applies the action in the background", func() {
			f := newFixture(map[string]service.State{"nginx": service.StateStopped}, nil, nil)

			recorder, env := f.do(http.MethodPost, "/api/v1/notify", map[string]any{
				"action":  "start",
				"service": "nginx",
				"options": map[string]any{"wait": false},
			}, nil)

			Expect(recorder.Code).To(Equal(http.StatusAccepted))
			Expect(env.Data["result"]).To(Equal("accepted"))

			Eventually(func() []string {
				return f.backend.Calls()
			}, time.Second, 10*time.Millisecond).Should(ContainElement("start nginx"))
		})

		It("rejects requests while the agent is shutting down", func() {
			f := newFixture(map[string]service.State{"nginx": service.StateStopped}, nil, nil)
			Expect(f.machine.Shutdown()).To(Succeed())

			recorder, env := f.do(http.MethodPost, "/api/v1/notify", map[string]any{
				"action":  "start",
				"service": "nginx",
			}, nil)

			Expect(recorder.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(env.Error.Code).To(Equal("E009"))
		})

		It("rejects a malformed body", func() {
			f := newFixture(nil, nil, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/notify", bytes.NewReader([]byte("{not json")))
			recorder := httptest.NewRecorder()
			f.srv.Engine().ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/v1/services", func() {
		It("lists services with their states", func() {
			f := newFixture(map[string]service.State{
				"nginx": service.StateRunning,
				"redis": service.StateStopped,
			}, nil, nil)

			recorder, env := f.do(http.MethodGet, "/api/v1/services", nil, nil)
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(env.Data["total"]).To(BeNumerically("==", 2))

			services := env.Data["services"].([]any)
			Expect(services).To(HaveLen(2))
		})

		It("filters by status", func() {
			f := newFixture(map[string]service.State{
				"nginx": service.StateRunning,
				"redis": service.StateStopped,
			}, nil, nil)

			_, env := f.do(http.MethodGet, "/api/v1/services?status=running", nil, nil)

			services := env.Data["services"].([]any)
			Expect(services).To(HaveLen(1))
			Expect(services[0].(map[string]any)["name"]).To(Equal("nginx"))
		})

		It("keeps unprobeable services out of a status-filtered listing", func() {
			f := newFixture(map[string]service.State{
				"nginx": service.StateRunning,
				"redis": service.StateStopped,
			}, nil, nil)
			f.backend.StatusErrs = map[string]error{
				"redis": standarderrors.NewBackendError("probe failed", nil),
			}

			_, env := f.do(http.MethodGet, "/api/v1/services?status=running", nil, nil)

			services := env.Data["services"].([]any)
			Expect(services).To(HaveLen(1))
			Expect(services[0].(map[string]any)["name"]).To(Equal("nginx"))

			_, env = f.do(http.MethodGet, "/api/v1/services?status=unknown", nil, nil)

			services = env.Data["services"].([]any)
			Expect(services).To(HaveLen(1))
			Expect(services[0].(map[string]any)["name"]).To(Equal("redis"))
			Expect(services[0].(map[string]any)["status"]).To(Equal("unknown"))
		})

		It("hides denied services from the listing", func() {
			f := newFixture(map[string]service.State{
				"nginx": service.StateRunning,
				"sshd":  service.StateRunning,
			}, []string{"sshd"}, nil)

			_, env := f.do(http.MethodGet, "/api/v1/services", nil, nil)

			services := env.Data["services"].([]any)
			Expect(services).To(HaveLen(1))
			Expect(services[0].(map[string]any)["name"]).To(Equal("nginx"))
		})
	})

	Describe("GET /api/v1/services/:name", func() {
		It("reports one service's state", func() {
			f := newFixture(map[string]service.State{"nginx": service.StateRunning}, nil, nil)

			recorder, env := f.do(http.MethodGet, "/api/v1/services/nginx", nil, nil)
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(env.Data["name"]).To(Equal("nginx"))
			Expect(env.Data["status"]).To(Equal("running"))
		})

		It("returns 403 for a denied service", func() {
			f := newFixture(map[string]service.State{"sshd": service.StateRunning}, []string{"sshd"}, nil)

			recorder, _ := f.do(http.MethodGet, "/api/v1/services/sshd", nil, nil)
			Expect(recorder.Code).To(Equal(http.StatusForbidden))
		})
	})

	Describe("POST /api/v1/services/:name/:action", func() {
		It("runs a direct local action", func() {
			f := newFixture(map[string]service.State{"nginx": service.StateRunning}, nil, nil)

			recorder, env := f.do(http.MethodPost, "/api/v1/services/nginx/stop", nil, nil)
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(env.Data["current_state"]).To(Equal("stopped"))
			Expect(env.Data["previous_state"]).To(Equal("running"))
		})

		It("rejects unknown actions", func() {
			f := newFixture(map[string]service.State{"nginx": service.StateRunning}, nil, nil)

			recorder, _ := f.do(http.MethodPost, "/api/v1/services/nginx/reload", nil, nil)
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("authentication", func() {
		withToken := func(cfg *config.Config) {
			cfg.Auth.Enabled = true
			cfg.Auth.Method = config.AuthToken
			cfg.Auth.Token = "secret"
		}

		It("rejects requests without the bearer token", func() {
			f := newFixture(nil, nil, withToken)

			recorder, env := f.do(http.MethodGet, "/api/v1/status", nil, nil)
			Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
			Expect(env.Error.Code).To(Equal("E007"))
		})

		It("accepts requests with the bearer token", func() {
			f := newFixture(nil, nil, withToken)

			recorder, _ := f.do(http.MethodGet, "/api/v1/status", nil, map[string]string{
				"Authorization": "Bearer secret",
			})
			Expect(recorder.Code).To(Equal(http.StatusOK))
		})

		It("leaves the health endpoint open", func() {
			f := newFixture(nil, nil, withToken)

			recorder, _ := f.do(http.MethodGet, "/api/v1/health", nil, nil)
			Expect(recorder.Code).To(Equal(http.StatusOK))
		})

		It("accepts a configured API key", func() {
			f := newFixture(nil, nil, func(cfg *config.Config) {
				cfg.Auth.Enabled = true
				cfg.Auth.Method = config.AuthAPIKey
				cfg.Auth.APIKeys = []string{"key-1"}
			})

			recorder, _ := f.do(http.MethodGet, "/api/v1/status", nil, map[string]string{"X-API-Key": "key-1"})
			Expect(recorder.Code).To(Equal(http.StatusOK))

			recorder, _ = f.do(http.MethodGet, "/api/v1/status", nil, map[string]string{"X-API-Key": "wrong"})
			Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("Run", func() {
		It("closes the lifecycle gate before draining", func() {
			f := newFixture(map[string]service.State{"nginx": service.StateStopped}, nil,
				func(cfg *config.Config) {
					cfg.Server.Bind = "127.0.0.1"
					cfg.Server.Port = 0
				})

			ctx, cancel := context.WithCancel(context.Background())

			done := make(chan error, 1)
			go func() {
				done <- f.srv.Run(ctx)
			}()

			// Let the listener come up, then trigger the signal path.
			Consistently(done, 100*time.Millisecond).ShouldNot(Receive())
			cancel()

			Eventually(f.machine.State).Should(Equal(fsm.StateShuttingDown))
			Eventually(done).Should(Receive(BeNil()))

			// The gate is closed: new operations are rejected.
			recorder, env := f.do(http.MethodPost, "/api/v1/notify", map[string]any{
				"service": "nginx",
				"action":  "start",
			}, nil)
			Expect(recorder.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(env.Error.Code).To(Equal("E009"))
			Expect(f.backend.Calls()).To(BeEmpty())
		})
	})
})
