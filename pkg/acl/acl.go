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

// Package acl decides whether a service name may be operated on, given
// allow and deny glob lists. Deny rules win over allow rules, and an empty
// allow list permits everything not explicitly denied.
package acl

import (
	"path"

	"go.uber.org/zap"

	"github.com/pirakansa/shiki/pkg/logger"
)

// Evaluator holds the immutable rule set loaded at startup. It is safe for
// concurrent use; rules are never mutated after construction.
type Evaluator struct {
	log     *zap.SugaredLogger
	allowed []string
	denied  []string
}

// NewEvaluator builds an evaluator over the given pattern lists. The slices
// are copied so later mutation of the caller's config cannot leak in.
func NewEvaluator(allowed, denied []string) *Evaluator {
	e := &Evaluator{
		log:     logger.For(logger.ComponentACL),
		allowed: make([]string, len(allowed)),
		denied:  make([]string, len(denied)),
	}
	copy(e.allowed, allowed)
	copy(e.denied, denied)

	return e
}

// Allowed reports whether the service may be operated on.
//
// Evaluation order, first match wins:
//  1. any deny pattern matches -> denied
//  2. allow list empty -> permitted
//  3. any allow pattern matches -> permitted
//  4. otherwise -> denied
func (e *Evaluator) Allowed(service string) bool {
	if e.matchAny(e.denied, service) {
		return false
	}

	if len(e.allowed) == 0 {
		return true
	}

	return e.matchAny(e.allowed, service)
}

// matchAny reports whether name matches any of the glob patterns. Matching
// is anchored to the full name: `*` matches any run of characters, `?`
// matches exactly one. A malformed pattern matches nothing.
func (e *Evaluator) matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		ok, err := path.Match(pattern, name)
		if err != nil {
			e.log.Warnw("ignoring malformed acl pattern", "pattern", pattern)

			continue
		}

		if ok {
			return true
		}
	}

	return false
}
