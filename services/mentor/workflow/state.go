// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package workflow runs one mentoring turn as a directed acyclic graph
// of nodes: context agent, router, specialists in route order, then the
// synthesizer.
//
// The orchestrator owns a clone of the session state for the duration
// of the turn and commits it only on success, so a cancelled or failed
// turn never mutates the session. Node failures are replaced with typed
// error results and the turn continues; only the global fallback
// escapes to the boundary.
package workflow

import (
	"github.com/atelierlabs/archmentor/services/mentor/agents"
	"github.com/atelierlabs/archmentor/services/mentor/classifier"
	"github.com/atelierlabs/archmentor/services/mentor/routing"
	"github.com/atelierlabs/archmentor/services/mentor/state"
)

// TurnState is the per-turn carrier passed between nodes. It is created
// fresh each turn; nodes read the fields written by prior nodes in the
// graph order.
type TurnState struct {
	TurnID      string
	Session     *state.SessionState
	LastMessage string

	Classification *classifier.Record
	ContextPkg     *agents.ContextPackage
	Decision       routing.Decision

	Results map[routing.AgentName]*agents.Result

	FinalResponse string
	ResponseType  string
	Metadata      map[string]any
}

// newTurnState builds the carrier for one turn over a session clone.
func newTurnState(turnID string, session *state.SessionState, message string) *TurnState {
	return &TurnState{
		TurnID:      turnID,
		Session:     session,
		LastMessage: message,
		Results:     make(map[routing.AgentName]*agents.Result),
		Metadata:    make(map[string]any),
	}
}

// AgentsUsed lists the agents that produced usable output, in the
// route's declared order.
func (ts *TurnState) AgentsUsed() []string {
	var used []string
	for _, name := range routing.ActivationFor(ts.Decision.Route).Agents {
		if res, ok := ts.Results[name]; ok && res.Usable() {
			used = append(used, string(name))
		}
	}
	return used
}
