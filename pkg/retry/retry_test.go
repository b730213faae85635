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

package retry_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pirakansa/shiki/pkg/retry"
	"github.com/pirakansa/shiki/pkg/standarderrors"
)

// fastConfig keeps test runs short.
func fastConfig(maxAttempts int) retry.Config {
	return retry.Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
}

var _ = Describe("Config", func() {
	Describe("NextDelay", func() {
		It("follows the exponential formula with a cap", func() {
			cfg := retry.Config{
				InitialDelay: 1000 * time.Millisecond,
				MaxDelay:     30000 * time.Millisecond,
				Multiplier:   2.0,
			}

			expected := []time.Duration{
				1000 * time.Millisecond,
				2000 * time.Millisecond,
				4000 * time.Millisecond,
				8000 * time.Millisecond,
				16000 * time.Millisecond,
				30000 * time.Millisecond,
				30000 * time.Millisecond,
			}
			for i, want := range expected {
				Expect(cfg.NextDelay(i)).To(Equal(want), "retry %d", i)
			}
		})

		It("treats a negative retry index as the first retry", func() {
			cfg := retry.DefaultConfig()
			Expect(cfg.NextDelay(-1)).To(Equal(cfg.NextDelay(0)))
		})
	})
})

var _ = Describe("IsTransient", func() {
	It("retries timeout, connection and busy failures", func() {
		Expect(retry.IsTransient(standarderrors.NewTimeoutError("slow"))).To(BeTrue())
		Expect(retry.IsTransient(standarderrors.NewConnectionError("refused", nil))).To(BeTrue())
		Expect(retry.IsTransient(standarderrors.NewBusyError("full"))).To(BeTrue())
	})

	It("does not retry denied, not-found or malformed failures", func() {
		Expect(retry.IsTransient(standarderrors.NewPermissionDeniedError("sshd", "stop"))).To(BeFalse())
		Expect(retry.IsTransient(standarderrors.NewServiceNotFoundError("ghost"))).To(BeFalse())
		Expect(retry.IsTransient(standarderrors.NewInvalidRequestError("bad"))).To(BeFalse())
		Expect(retry.IsTransient(standarderrors.NewBackendError("boom", nil))).To(BeFalse())
	})

	It("treats uncoded errors as transient", func() {
		Expect(retry.IsTransient(errors.New("connection reset by peer"))).To(BeTrue())
	})
})

var _ = Describe("Do", func() {
	It("returns immediately on success", func() {
		calls := 0
		err := retry.Do(context.Background(), fastConfig(3), func() error {
			calls++

			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(1))
	})

	It("retries transient failures until success", func() {
		calls := 0
		err := retry.Do(context.Background(), fastConfig(5), func() error {
			calls++
			if calls < 3 {
				return standarderrors.NewBusyError("full")
			}

			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(3))
	})

	It("stops after the attempt budget is exhausted", func() {
		calls := 0
		err := retry.Do(context.Background(), fastConfig(3), func() error {
			calls++

			return standarderrors.NewConnectionError("refused", nil)
		})
		Expect(err).To(HaveOccurred())
		Expect(calls).To(Equal(3))
		Expect(standarderrors.HasCode(err, standarderrors.CodeConnection)).To(BeTrue())
	})

	It("aborts permanent failures without a retry", func() {
		calls := 0
		err := retry.Do(context.Background(), fastConfig(5), func() error {
			calls++

			return standarderrors.NewPermissionDeniedError("sshd", "stop")
		})
		Expect(err).To(HaveOccurred())
		Expect(calls).To(Equal(1))
		Expect(standarderrors.HasCode(err, standarderrors.CodePermissionDenied)).To(BeTrue())
	})

	It("honors context cancellation between attempts", func() {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0

		cfg := retry.Config{
			MaxAttempts:  10,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
		}

		start := time.Now()
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		err := retry.Do(ctx, cfg, func() error {
			calls++

			return standarderrors.NewBusyError("full")
		})
		Expect(err).To(HaveOccurred())
		Expect(calls).To(BeNumerically("<", 3))
		Expect(time.Since(start)).To(BeNumerically("<", time.Second))
	})

	It("runs exactly once when MaxAttempts is zero", func() {
		calls := 0
		cfg := fastConfig(0)
		err := retry.Do(context.Background(), cfg, func() error {
			calls++

			return standarderrors.NewBusyError("full")
		})
		Expect(err).To(HaveOccurred())
		Expect(calls).To(Equal(1))
	})
})

var _ = Describe("DoWithData", func() {
	It("returns the value from the successful attempt", func() {
		calls := 0
		result, err := retry.DoWithData(context.Background(), fastConfig(5), func() (string, error) {
			calls++
			if calls < 2 {
				return "", standarderrors.NewTimeoutError("slow")
			}

			return "running", nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal("running"))
		Expect(calls).To(Equal(2))
	})

	It("surfaces permanent failures unchanged", func() {
		_, err := retry.DoWithData(context.Background(), fastConfig(5), func() (int, error) {
			return 0, standarderrors.NewServiceNotFoundError("ghost")
		})
		Expect(standarderrors.HasCode(err, standarderrors.CodeServiceNotFound)).To(BeTrue())
	})
})
