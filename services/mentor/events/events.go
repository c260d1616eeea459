// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package events records what happens inside a mentoring turn: node
// entry and exit, route selection, agent errors, and validator repairs.
//
// External systems observe turns through subscriptions without coupling
// to the orchestrator. Every error path in the turn writes one event
// here, so a transcript of Recent() reconstructs the turn.
//
// Thread Safety:
//
//	All types in this package are safe for concurrent use.
package events

import "time"

// Type identifies the kind of turn event.
type Type string

const (
	// TypeTurnStarted is emitted when the orchestrator begins a turn.
	TypeTurnStarted Type = "turn_started"

	// TypeNodeEntered is emitted before a workflow node runs.
	TypeNodeEntered Type = "node_entered"

	// TypeNodeExited is emitted after a workflow node returns, with the
	// elapsed time.
	TypeNodeExited Type = "node_exited"

	// TypeRouteSelected is emitted when the router commits to a route.
	TypeRouteSelected Type = "route_selected"

	// TypeAgentError is emitted when a specialist fails and is replaced
	// by a typed error result.
	TypeAgentError Type = "agent_error"

	// TypeValidationRepair is emitted when the state validator fixes an
	// invariant violation.
	TypeValidationRepair Type = "validation_repair"

	// TypeTurnCompleted is emitted when a turn produces a response and
	// its state is committed.
	TypeTurnCompleted Type = "turn_completed"

	// TypeTurnFailed is emitted when the global fallback escapes to the
	// boundary.
	TypeTurnFailed Type = "turn_failed"
)

// Event is one observation from inside a turn.
type Event struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	TurnID    string        `json:"turn_id"`
	Type      Type          `json:"type"`
	Node      string        `json:"node,omitempty"`
	Route     string        `json:"route,omitempty"`
	Kind      string        `json:"kind,omitempty"`
	Message   string        `json:"message,omitempty"`
	Elapsed   time.Duration `json:"elapsed,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Handler processes events.
type Handler func(event Event)

// Filter decides whether a subscription receives an event.
type Filter func(event Event) bool

// subscription pairs a handler with its filter.
type subscription struct {
	id      string
	handler Handler
	filter  Filter
	types   map[Type]bool
}

func (s *subscription) matches(ev Event) bool {
	if len(s.types) > 0 && !s.types[ev.Type] {
		return false
	}
	if s.filter != nil && !s.filter(ev) {
		return false
	}
	return true
}
