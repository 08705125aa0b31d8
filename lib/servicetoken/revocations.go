// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package servicetoken

import (
	"sync"
	"time"
)

// Revocations is a concurrency-safe set of revoked grant ids. Each id
// is remembered only until the grant it names would have expired
// anyway.
type Revocations struct {
	mu      sync.RWMutex
	expires map[string]time.Time
}

// NewRevocations returns an empty set.
func NewRevocations() *Revocations {
	return &Revocations{expires: make(map[string]time.Time)}
}

// Revoke records id until grantExpiry.
func (r *Revocations) Revoke(id string, grantExpiry time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expires[id] = grantExpiry
}

// IsRevoked reports whether id has been revoked.
func (r *Revocations) IsRevoked(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.expires[id]
	return ok
}

// Prune forgets revocations for grants that have expired by now and
// returns how many were dropped.
func (r *Revocations) Prune(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for id, expiry := range r.expires {
		if !now.Before(expiry) {
			delete(r.expires, id)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of remembered revocations.
func (r *Revocations) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.expires)
}
