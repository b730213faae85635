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

// Package ctxmutex provides a mutex whose Lock honors context
// cancellation, plus a table of such mutexes keyed by name.
package ctxmutex

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// CtxMutex is a mutual-exclusion lock that can give up waiting when the
// caller's context expires.
type CtxMutex struct {
	sem *semaphore.Weighted
}

// New returns an unlocked mutex.
func New() *CtxMutex {
	return &CtxMutex{sem: semaphore.NewWeighted(1)}
}

// Lock blocks until the mutex is acquired or ctx is done. It returns
// ctx.Err() without holding the lock when the wait is abandoned.
func (m *CtxMutex) Lock(ctx context.Context) error {
	return m.sem.Acquire(ctx, 1)
}

// TryLock acquires the mutex without blocking.
func (m *CtxMutex) TryLock() bool {
	return m.sem.TryAcquire(1)
}

// Unlock releases the mutex. Calling Unlock without holding it corrupts
// the semaphore, mirroring sync.Mutex semantics.
func (m *CtxMutex) Unlock() {
	m.sem.Release(1)
}

// Table hands out one mutex per key, created lazily on first use and
// retained for the process lifetime. Concurrent first use of a key yields
// the same mutex.
type Table struct {
	locks sync.Map
}

// NewTable returns an empty lock table.
func NewTable() *Table {
	return &Table{}
}

// Get returns the mutex for key, creating it if needed.
func (t *Table) Get(key string) *CtxMutex {
	if m, ok := t.locks.Load(key); ok {
		return m.(*CtxMutex)
	}

	m, _ := t.locks.LoadOrStore(key, New())

	return m.(*CtxMutex)
}
