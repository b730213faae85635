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

package standarderrors_test

import (
	"errors"
	"fmt"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pirakansa/shiki/pkg/standarderrors"
)

var _ = Describe("AgentError", func() {
	Describe("HTTPStatus", func() {
		It("maps every code onto its API status", func() {
			Expect(standarderrors.NewConfigError("bad config", nil).HTTPStatus()).To(Equal(http.StatusInternalServerError))
			Expect(standarderrors.NewServiceNotFoundError("nginx").HTTPStatus()).To(Equal(http.StatusNotFound))
			Expect(standarderrors.NewPermissionDeniedError("sshd", "stop").HTTPStatus()).To(Equal(http.StatusForbidden))
			Expect(standarderrors.NewBackendError("boom", nil).HTTPStatus()).To(Equal(http.StatusInternalServerError))
			Expect(standarderrors.NewTimeoutError("too slow").HTTPStatus()).To(Equal(http.StatusGatewayTimeout))
			Expect(standarderrors.NewConnectionError("refused", nil).HTTPStatus()).To(Equal(http.StatusBadGateway))
			Expect(standarderrors.NewAuthenticationError("no token").HTTPStatus()).To(Equal(http.StatusUnauthorized))
			Expect(standarderrors.NewInvalidRequestError("bad name").HTTPStatus()).To(Equal(http.StatusBadRequest))
			Expect(standarderrors.NewBusyError("full").HTTPStatus()).To(Equal(http.StatusServiceUnavailable))
		})
	})

	Describe("ExitCode", func() {
		It("maps codes onto CLI exit codes", func() {
			Expect(standarderrors.NewConfigError("bad config", nil).ExitCode()).To(Equal(2))
			Expect(standarderrors.NewConnectionError("refused", nil).ExitCode()).To(Equal(3))
			Expect(standarderrors.NewTimeoutError("too slow").ExitCode()).To(Equal(4))
			Expect(standarderrors.NewAuthenticationError("no token").ExitCode()).To(Equal(5))
			Expect(standarderrors.NewInvalidRequestError("bad name").ExitCode()).To(Equal(64))
			Expect(standarderrors.NewBackendError("boom", nil).ExitCode()).To(Equal(1))
			Expect(standarderrors.NewServiceNotFoundError("nginx").ExitCode()).To(Equal(1))
			Expect(standarderrors.NewPermissionDeniedError("sshd", "stop").ExitCode()).To(Equal(1))
			Expect(standarderrors.NewBusyError("full").ExitCode()).To(Equal(1))
		})
	})

	Describe("Error", func() {
		It("prefixes messages with the code", func() {
			err := standarderrors.NewServiceNotFoundError("nginx")
			Expect(err.Error()).To(Equal("E002: service not found: nginx"))
		})

		It("includes the wrapped cause", func() {
			cause := errors.New("exit status 1")
			err := standarderrors.NewBackendError("systemctl start failed", cause)
			Expect(err.Error()).To(ContainSubstring("E004"))
			Expect(err.Error()).To(ContainSubstring("exit status 1"))
			Expect(errors.Unwrap(err)).To(Equal(cause))
		})
	})

	Describe("Details", func() {
		It("records the service and action for denied operations", func() {
			err := standarderrors.NewPermissionDeniedError("sshd", "stop")
			Expect(err.Details).To(HaveKeyWithValue("service", "sshd"))
			Expect(err.Details).To(HaveKeyWithValue("action", "stop"))
		})

		It("accumulates details through WithDetail", func() {
			err := standarderrors.NewTimeoutError("operation timed out").
				WithDetail("service", "nginx").
				WithDetail("timeout_seconds", 60)
			Expect(err.Details).To(HaveLen(2))
		})
	})

	Describe("AsAgentError", func() {
		It("returns the original error when one is wrapped", func() {
			orig := standarderrors.NewBusyError("full")
			wrapped := fmt.Errorf("operate: %w", orig)
			Expect(standarderrors.AsAgentError(wrapped)).To(BeIdenticalTo(orig))
		})

		It("wraps unknown errors as backend errors", func() {
			err := standarderrors.AsAgentError(errors.New("weird"))
			Expect(err.Code).To(Equal(standarderrors.CodeBackend))
		})
	})

	Describe("HasCode", func() {
		It("matches through wrapping", func() {
			wrapped := fmt.Errorf("controller: %w", standarderrors.NewTimeoutError("slow"))
			Expect(standarderrors.HasCode(wrapped, standarderrors.CodeTimeout)).To(BeTrue())
			Expect(standarderrors.HasCode(wrapped, standarderrors.CodeBusy)).To(BeFalse())
		})

		It("rejects plain errors", func() {
			Expect(standarderrors.HasCode(errors.New("plain"), standarderrors.CodeBackend)).To(BeFalse())
		})
	})
})
