// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atelierlabs/archmentor/services/mentor/buildingtype"
	"github.com/atelierlabs/archmentor/services/mentor/state"
)

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = fmt.Errorf("session not found")

// sessionSlot pairs a session with its turn mutex. The mutex serializes
// turns within one session; different sessions run concurrently.
type sessionSlot struct {
	mu         sync.Mutex
	state      *state.SessionState
	lastActive time.Time
}

// Registry owns all live sessions and runs turns against them with
// clone-and-commit semantics: a turn works on a deep copy and the copy
// replaces the stored state only when the turn succeeds.
//
// Thread Safety: Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	slots  map[string]*sessionSlot
	orch   *Orchestrator
	domain string
}

// NewRegistry creates an empty registry backed by the orchestrator.
func NewRegistry(orch *Orchestrator, domain string) *Registry {
	if domain == "" {
		domain = "architecture"
	}
	return &Registry{
		slots:  make(map[string]*sessionSlot),
		orch:   orch,
		domain: domain,
	}
}

// CreateSession starts a new session, optionally seeded with a design
// brief. A non-empty brief is pinned at message index 0 and sets the
// building type at brief confidence. The returned state is a copy.
func (r *Registry) CreateSession(brief string) (*state.SessionState, error) {
	st := state.NewSession(uuid.NewString(), r.domain)
	if brief != "" {
		st.SetDesignBrief(brief)
		if bt, _ := buildingtype.DetectWithConfidence(brief); bt != buildingtype.Unknown {
			st.UpdateBuildingTypeContext(bt, buildingtype.BriefConfidence)
		}
	}
	snapshot, err := st.Clone()
	if err != nil {
		return nil, fmt.Errorf("clone new session: %w", err)
	}
	r.mu.Lock()
	r.slots[st.ID] = &sessionSlot{state: st, lastActive: time.Now()}
	r.mu.Unlock()
	return snapshot, nil
}

// Get returns a deep copy of the session state, or ErrSessionNotFound.
func (r *Registry) Get(id string) (*state.SessionState, error) {
	r.mu.RLock()
	slot, ok := r.slots[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.state.Clone()
}

// Delete removes a session, reporting whether it existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slots[id]; ok {
		delete(r.slots, id)
		return true
	}
	return false
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}

// Chat runs one turn for the session. The session's mutex serializes
// turns; the turn executes on a clone and commits only on success, so a
// cancelled or failed turn leaves the stored state untouched.
func (r *Registry) Chat(ctx context.Context, sessionID, message string) (TurnResult, error) {
	r.mu.RLock()
	slot, ok := r.slots[sessionID]
	r.mu.RUnlock()
	if !ok {
		return TurnResult{}, ErrSessionNotFound
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	slot.lastActive = time.Now()
	working, err := slot.state.Clone()
	if err != nil {
		return TurnResult{}, fmt.Errorf("clone session %s: %w", sessionID, err)
	}
	result, err := r.orch.RunTurn(ctx, working, message)
	if err != nil {
		return result, err
	}

	// The session may have been deleted or evicted while the turn ran.
	// Committing under the registry lock keeps the orphaned slot dead.
	r.mu.RLock()
	_, live := r.slots[sessionID]
	if live {
		slot.state = working
	}
	r.mu.RUnlock()
	if !live {
		return result, ErrSessionNotFound
	}
	return result, nil
}

// EvictIdle removes sessions whose last turn is older than maxIdle and
// returns the number evicted. Sessions mid-turn are never evicted: the
// slot mutex is held for the whole turn and TryLock skips busy slots.
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, slot := range r.slots {
		if !slot.mu.TryLock() {
			continue
		}
		idle := slot.lastActive.Before(cutoff)
		slot.mu.Unlock()
		if idle {
			delete(r.slots, id)
			evicted++
		}
	}
	return evicted
}
