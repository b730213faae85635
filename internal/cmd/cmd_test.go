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

package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pirakansa/shiki/pkg/models"
	"github.com/pirakansa/shiki/pkg/standarderrors"
)

// run executes the CLI with args and captures stdout.
func run(args ...string) (string, error) {
	var out bytes.Buffer

	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()

	return out.String(), err
}

func respond(w http.ResponseWriter, status int, env models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

var _ = Describe("CLI", func() {
	Describe("notify", func() {
		BeforeEach(func() {
			notifyFlags.wait = true
			notifyFlags.noWait = false
		})

		It("reports a completed operation", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/api/v1/notify"))

				var req models.NotifyRequest
				Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
				Expect(req.Service).To(Equal("nginx"))
				Expect(req.Action).To(Equal("start"))
				Expect(req.Options.WaitOrDefault()).To(BeTrue())

				previous, current := "stopped", "running"
				respond(w, http.StatusOK, models.Success(models.NotifyResponseData{
					Service:        "nginx",
					Action:         "start",
					Result:         "completed",
					PreviousStatus: &previous,
					CurrentStatus:  &current,
				}))
			}))
			defer srv.Close()

			out, err := run("notify", "--target", srv.URL, "--action", "start", "--service", "nginx")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("start nginx: completed"))
			Expect(out).To(ContainSubstring("stopped -> running"))
		})

		It("sends wait=false with --no-wait", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req models.NotifyRequest
				Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
				Expect(req.Options.WaitOrDefault()).To(BeFalse())

				respond(w, http.StatusAccepted, models.Success(models.NotifyResponseData{
					Service: "nginx",
					Action:  "stop",
					Result:  "accepted",
				}))
			}))
			defer srv.Close()

			out, err := run("notify", "-t", srv.URL, "-a", "stop", "-s", "nginx", "--no-wait")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("stop nginx: accepted"))
		})

		It("propagates the agent's error code", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				respond(w, http.StatusForbidden,
					models.Failure(standarderrors.NewPermissionDeniedError("sshd", "start")))
			}))
			defer srv.Close()

			_, err := run("notify", "-t", srv.URL, "-a", "start", "-s", "sshd")
			Expect(err).To(HaveOccurred())
			Expect(standarderrors.HasCode(err, standarderrors.CodePermissionDenied)).To(BeTrue())

			agentErr := standarderrors.AsAgentError(err)
			Expect(agentErr.ExitCode()).To(Equal(1))
		})

		It("rejects unknown actions before calling the agent", func() {
			_, err := run("notify", "-t", "localhost:1", "-a", "reboot", "-s", "nginx")
			Expect(err).To(HaveOccurred())
			Expect(standarderrors.HasCode(err, standarderrors.CodeInvalidRequest)).To(BeTrue())
		})
	})

	Describe("wait", func() {
		It("waits until the service is running", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				respond(w, http.StatusOK, models.Success(models.ServiceInfo{
					Name:   "postgresql",
					Status: "running",
				}))
			}))
			defer srv.Close()

			out, err := run("wait", "-t", srv.URL, "-s", "postgresql", "--timeout", "5", "--interval", "1")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("postgresql is running"))
		})
	})

	Describe("status", func() {
		It("prints the agent summary", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/api/v1/status"))
				respond(w, http.StatusOK, models.Success(models.StatusData{
					Agent: models.AgentInfo{
						Name:  "agent-1",
						State: "ready",
						Mode:  "standalone",
					},
					Server:        models.ServerInfo{Bind: "0.0.0.0", Port: 8080},
					Version:       "1.0.0",
					UptimeSeconds: 12,
				}))
			}))
			defer srv.Close()

			out, err := run("status", "--target", srv.URL)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("agent-1 (ready)"))
			Expect(out).To(ContainSubstring("version: 1.0.0"))
		})

		It("prints one service with --service", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/api/v1/services/nginx"))
				respond(w, http.StatusOK, models.Success(models.ServiceInfo{
					Name:   "nginx",
					Status: "running",
				}))
			}))
			defer srv.Close()

			out, err := run("status", "--target", srv.URL, "--service", "nginx")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("nginx: running"))
		})
	})

	Describe("config", func() {
		writeConfig := func(content string) string {
			path := filepath.Join(GinkgoT().TempDir(), "config.yaml")
			Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())

			return path
		}

		It("validates a good configuration", func() {
			path := writeConfig(`
agent:
  name: agent-1
services:
  app:
    start: "run start"
    stop: "run stop"
    status: "run status"
`)

			out, err := run("config", "validate", "--config", path)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("configuration is valid"))
		})

		It("rejects a bad configuration with a config error", func() {
			path := writeConfig(`
server:
  port: 70000
`)

			_, err := run("config", "validate", "--config", path)
			Expect(err).To(HaveOccurred())
			Expect(standarderrors.HasCode(err, standarderrors.CodeConfig)).To(BeTrue())
		})

		It("redacts credentials in show output", func() {
			path := writeConfig(`
auth:
  enabled: true
  method: token
  token: super-secret
`)

			out, err := run("config", "show", "--config", path)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("[redacted]"))
			Expect(out).NotTo(ContainSubstring("super-secret"))
		})
	})
})
