// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package agents holds the specialist mentoring agents: Socratic tutor,
// domain expert, cognitive enhancement, and analysis, plus the context
// agent that prepares the turn for routing.
//
// Every specialist implements the same contract: given the turn inputs it
// returns a typed Result, never an error. Failures inside an agent
// degrade to templated output or a Result with ResponseError; the
// orchestrator relies on this to keep a turn alive no matter what a
// single agent does.
//
// Thread Safety:
//
//	Specialists are stateless after construction and safe for concurrent
//	use across sessions. Inputs carry a per-turn snapshot of session
//	state; agents never mutate shared state directly.
package agents

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/atelierlabs/archmentor/services/mentor/classifier"
	"github.com/atelierlabs/archmentor/services/mentor/routing"
	"github.com/atelierlabs/archmentor/services/mentor/state"
)

var tracer = otel.Tracer("mentor.agents")

// Response types carried in Result.ResponseType.
const (
	// ResponseDirect is a normally generated agent response.
	ResponseDirect = "direct"

	// ResponseSkipped means the agent refused because the route does not
	// activate it.
	ResponseSkipped = "skipped"

	// ResponseError replaces the output of an agent that failed; the
	// turn continues without it.
	ResponseError = "error"

	// ResponseGeneratedFallback marks knowledge produced by the LLM when
	// retrieval returned nothing.
	ResponseGeneratedFallback = "generated_fallback"

	// ResponseTemplateFallback marks deterministic templated output used
	// when the LLM is unavailable.
	ResponseTemplateFallback = "template_fallback"

	// ResponseExploratoryFallback is the synthesizer's last resort when
	// every agent output is empty or errored.
	ResponseExploratoryFallback = "exploratory_fallback"
)

// Result is the typed partial response one specialist contributes to a
// turn.
type Result struct {
	Agent        routing.AgentName `json:"agent"`
	ResponseText string            `json:"response_text"`
	ResponseType string            `json:"response_type"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

// Usable reports whether the result carries text the synthesizer can
// build on.
func (r *Result) Usable() bool {
	return r != nil && r.ResponseType != ResponseError && r.ResponseType != ResponseSkipped &&
		strings.TrimSpace(r.ResponseText) != ""
}

// ContextAnalysis summarizes conversation patterns computed by the
// context agent. All fields are derived deterministically from session
// state.
type ContextAnalysis struct {
	TurnCount      int      `json:"turn_count"`
	RouteDiversity int      `json:"route_diversity"`
	TopicDrift     float64  `json:"topic_drift"`
	SkillTrend     string   `json:"skill_trend"`
	BuildingType   string   `json:"building_type"`
	CurrentTopic   string   `json:"current_topic"`
	VisualSummary  string   `json:"visual_summary,omitempty"`
	CognitiveFlags []string `json:"cognitive_flags,omitempty"`
}

// Inputs is the per-turn bundle handed to each specialist. The session
// state is a turn-local clone; agents may read it freely and record
// side effects (concepts discussed, profile updates) directly on it.
type Inputs struct {
	State          *state.SessionState
	Classification *classifier.Record
	Analysis       *ContextAnalysis
	Route          routing.Route

	// Gap optionally names a knowledge gap the orchestrator wants the
	// agent to address.
	Gap string

	// AgentContext is the per-agent bundle built by the context agent.
	AgentContext map[string]any
}

// LastMessage returns the latest user message text, or empty.
func (in *Inputs) LastMessage() string {
	if in == nil || in.State == nil {
		return ""
	}
	return in.State.LastUserMessage()
}

// Specialist is the contract every mentoring agent implements.
//
// Run never returns a Go error: failure is expressed through the
// Result's ResponseType so the orchestrator can always continue the
// turn.
type Specialist interface {
	Name() routing.AgentName
	Run(ctx context.Context, in *Inputs) *Result
}

// Skipped builds the refusal result for a route that does not activate
// the agent.
func Skipped(name routing.AgentName, route routing.Route) *Result {
	return &Result{
		Agent:        name,
		ResponseType: ResponseSkipped,
		Metadata:     map[string]any{"route": route.String()},
	}
}

// Errored wraps an agent failure into a well-formed result.
func Errored(name routing.AgentName, err error) *Result {
	msg := "agent failed"
	if err != nil {
		msg = err.Error()
	}
	return &Result{
		Agent:        name,
		ResponseType: ResponseError,
		ErrorMessage: msg,
	}
}

// CountQuestions counts question marks in text.
func CountQuestions(text string) int {
	return strings.Count(text, "?")
}
