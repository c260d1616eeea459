// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/atelierlabs/archmentor/pkg/logging"
	"github.com/atelierlabs/archmentor/services/mentor/agents"
	"github.com/atelierlabs/archmentor/services/mentor/buildingtype"
	"github.com/atelierlabs/archmentor/services/mentor/config"
	"github.com/atelierlabs/archmentor/services/mentor/events"
	"github.com/atelierlabs/archmentor/services/mentor/firstresponse"
	"github.com/atelierlabs/archmentor/services/mentor/routing"
	"github.com/atelierlabs/archmentor/services/mentor/state"
	"github.com/atelierlabs/archmentor/services/mentor/synthesis"
)

var tracer = otel.Tracer("mentor.workflow")

// User-visible fallback strings.
const (
	// CancelFallback is shown when a turn is cancelled mid-flight.
	CancelFallback = "Let's pick this up again — could you restate your last question?"

	// GlobalFallback escapes only from an unrecoverable orchestrator
	// failure.
	GlobalFallback = "Let's explore this together. What aspect would you like to focus on first?"

	// EmptyInputPrompt answers a blank message without running agents.
	EmptyInputPrompt = "I didn't catch that. Could you share a bit more about what you're working on?"
)

// TurnResult is what the boundary receives for one processed message.
type TurnResult struct {
	TurnID       string         `json:"turn_id"`
	Response     string         `json:"response"`
	ResponseType string         `json:"response_type"`
	Route        routing.Route  `json:"route"`
	AgentsUsed   []string       `json:"agents_used"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Orchestrator executes the turn graph over a session state clone.
//
// # Thread Safety
//
// Orchestrator is safe for concurrent use across sessions. Callers must
// not run two turns on the same session concurrently; the Registry
// enforces this with a per-session mutex.
type Orchestrator struct {
	cfg         *config.Config
	ctxAgent    *agents.ContextAgent
	router      *routing.Router
	specialists map[routing.AgentName]agents.Specialist
	synth       *synthesis.Synthesizer
	first       *firstresponse.Generator
	monitor     *events.Monitor
	validator   *Validator
	log         *logging.Logger
}

// NewOrchestrator wires the turn graph and validates it at startup.
func NewOrchestrator(
	cfg *config.Config,
	ctxAgent *agents.ContextAgent,
	router *routing.Router,
	specialists []agents.Specialist,
	synth *synthesis.Synthesizer,
	first *firstresponse.Generator,
	monitor *events.Monitor,
	log *logging.Logger,
) (*Orchestrator, error) {
	if cfg == nil {
		def := config.Defaults()
		cfg = &def
	}
	if log == nil {
		log = logging.Default()
	}
	if monitor == nil {
		monitor = events.NewMonitor(nil)
	}

	byName := make(map[routing.AgentName]agents.Specialist, len(specialists))
	registered := make(map[routing.AgentName]struct{}, len(specialists))
	for _, s := range specialists {
		byName[s.Name()] = s
		registered[s.Name()] = struct{}{}
	}
	if err := ValidateGraph(registered); err != nil {
		return nil, fmt.Errorf("workflow graph: %w", err)
	}

	return &Orchestrator{
		cfg:         cfg,
		ctxAgent:    ctxAgent,
		router:      router,
		specialists: byName,
		synth:       synth,
		first:       first,
		monitor:     monitor,
		validator:   NewValidator(log),
		log:         log,
	}, nil
}

// RunTurn processes one student message against the given session
// state. The caller passes a clone; RunTurn mutates it freely and the
// caller commits it only when the returned error is nil.
func (o *Orchestrator) RunTurn(ctx context.Context, session *state.SessionState, input string) (result TurnResult, err error) {
	ctx, span := tracer.Start(ctx, "workflow.run_turn")
	defer span.End()

	turnID := uuid.NewString()
	result.TurnID = turnID
	o.emit(events.Event{SessionID: session.ID, TurnID: turnID, Type: events.TypeTurnStarted})

	defer func() {
		if r := recover(); r != nil {
			o.log.Error("turn panicked", "session", session.ID, "turn", turnID, "panic", r)
			o.emit(events.Event{
				SessionID: session.ID, TurnID: turnID, Type: events.TypeTurnFailed,
				Kind: "fatal", Message: fmt.Sprint(r),
			})
			result.Response = GlobalFallback
			result.ResponseType = agents.ResponseExploratoryFallback
			err = fmt.Errorf("turn %s: fatal: %v", turnID, r)
		}
	}()

	input = strings.TrimSpace(input)
	if input == "" {
		result.Response = EmptyInputPrompt
		result.ResponseType = "clarifying_prompt"
		o.emit(events.Event{SessionID: session.ID, TurnID: turnID, Type: events.TypeTurnCompleted, Kind: "input_error"})
		return result, nil
	}

	o.repair(session, turnID, "pre")

	previous := lastUserBefore(session)
	session.AppendMessage(state.RoleUser, input)

	ts := newTurnState(turnID, session, input)
	ts.ContextPkg = o.prepareContext(ctx, ts)
	ts.Classification = ts.ContextPkg.Classification

	ts.Decision = o.router.Decide(ctx, &routing.Context{
		Classification: ts.Classification,
		Suggestions:    ts.ContextPkg.Suggestions,
		SkillLevel:     session.StudentProfile.SkillLevel,
		CurrentInput:   input,
		PreviousInput:  previous,
		CurrentPhase:   session.DesignPhase,
		PhaseProgress:  phaseProgress(session),
	})
	span.SetAttributes(attribute.String("route", ts.Decision.Route.String()))
	o.emit(events.Event{
		SessionID: session.ID, TurnID: turnID, Type: events.TypeRouteSelected,
		Route: ts.Decision.Route.String(), Message: ts.Decision.Reason,
	})

	// One detection per turn keeps confidence monotonic: the state layer
	// rejects overwrites that are not strictly more confident.
	if !ts.Classification.IsFirstMessage {
		if bt, conf := buildingtype.DetectWithConfidence(input); bt != buildingtype.Unknown {
			session.UpdateBuildingTypeContext(bt, conf)
		}
	}

	if ts.Decision.Route == routing.ProgressiveOpening {
		o.runFirstResponse(ctx, ts)
	} else {
		o.runSpecialists(ctx, ts)
	}
	// Both branches stop here on cancellation. The registry never
	// commits a failed turn, so the session stays untouched.
	if cerr := ctx.Err(); cerr != nil {
		result.Response = CancelFallback
		result.ResponseType = "cancelled"
		result.Route = ts.Decision.Route
		o.emit(events.Event{SessionID: session.ID, TurnID: turnID, Type: events.TypeTurnFailed, Kind: "cancelled"})
		return result, cerr
	}
	if ts.Decision.Route != routing.ProgressiveOpening {
		o.synthesize(ts)
	}

	session.AppendMessage(state.RoleAssistant, ts.FinalResponse)
	session.UpdateConversationContext(input, ts.Decision.Route.String(), detectTopic(input))
	advancePhase(session)
	o.repair(session, turnID, "post")

	result.Response = ts.FinalResponse
	result.ResponseType = ts.ResponseType
	result.Route = ts.Decision.Route
	result.AgentsUsed = ts.AgentsUsed()
	result.Metadata = ts.Metadata
	o.emit(events.Event{
		SessionID: session.ID, TurnID: turnID, Type: events.TypeTurnCompleted,
		Route: ts.Decision.Route.String(),
	})
	return result, nil
}

// prepareContext runs the context agent node. It never fails: errors
// downgrade inside the agent to a default package.
func (o *Orchestrator) prepareContext(ctx context.Context, ts *TurnState) *agents.ContextPackage {
	start := time.Now()
	o.emit(events.Event{SessionID: ts.Session.ID, TurnID: ts.TurnID, Type: events.TypeNodeEntered, Node: NodeContextAgent})
	pkg := o.ctxAgent.Prepare(ctx, ts.Session, ts.LastMessage)
	o.emit(events.Event{
		SessionID: ts.Session.ID, TurnID: ts.TurnID, Type: events.TypeNodeExited,
		Node: NodeContextAgent, Elapsed: time.Since(start),
	})
	return pkg
}

// runSpecialists executes the route's node sequence in declared order.
// A failed node is replaced by a typed error result and the sequence
// continues; cancellation stops it between nodes. State is validated
// and repaired around every node so each specialist runs against a
// well-formed session.
func (o *Orchestrator) runSpecialists(ctx context.Context, ts *TurnState) {
	for _, name := range NodeSequence(ts.Decision.Route) {
		if ctx.Err() != nil {
			return
		}
		o.repair(ts.Session, ts.TurnID, "pre:"+string(name))
		ts.Results[name] = o.runNode(ctx, name, ts)
		o.repair(ts.Session, ts.TurnID, "post:"+string(name))
	}
}

func (o *Orchestrator) runNode(ctx context.Context, name routing.AgentName, ts *TurnState) (res *agents.Result) {
	nodeCtx, cancel := context.WithTimeout(ctx, o.cfg.LLMTimeout)
	defer cancel()

	start := time.Now()
	o.emit(events.Event{SessionID: ts.Session.ID, TurnID: ts.TurnID, Type: events.TypeNodeEntered, Node: string(name)})
	defer func() {
		if r := recover(); r != nil {
			o.emit(events.Event{
				SessionID: ts.Session.ID, TurnID: ts.TurnID, Type: events.TypeAgentError,
				Node: string(name), Kind: "panic", Message: fmt.Sprint(r),
			})
			res = agents.Errored(name, fmt.Errorf("panic: %v", r))
		}
		o.emit(events.Event{
			SessionID: ts.Session.ID, TurnID: ts.TurnID, Type: events.TypeNodeExited,
			Node: string(name), Elapsed: time.Since(start),
		})
	}()

	spec, ok := o.specialists[name]
	if !ok {
		return agents.Errored(name, errors.New("specialist not registered"))
	}
	res = spec.Run(nodeCtx, &agents.Inputs{
		State:          ts.Session,
		Classification: ts.Classification,
		Analysis:       ts.ContextPkg.Analysis,
		Route:          ts.Decision.Route,
		AgentContext:   ts.ContextPkg.AgentContexts[name],
	})
	if res == nil {
		res = agents.Errored(name, errors.New("specialist returned nil result"))
	}
	if res.ResponseType == agents.ResponseError {
		o.emit(events.Event{
			SessionID: ts.Session.ID, TurnID: ts.TurnID, Type: events.TypeAgentError,
			Node: string(name), Kind: "agent", Message: res.ErrorMessage,
		})
	}
	return res
}

func (o *Orchestrator) runFirstResponse(ctx context.Context, ts *TurnState) {
	nodeCtx, cancel := context.WithTimeout(ctx, o.cfg.LLMTimeout)
	defer cancel()

	start := time.Now()
	o.emit(events.Event{SessionID: ts.Session.ID, TurnID: ts.TurnID, Type: events.TypeNodeEntered, Node: NodeFirstResponse})
	opening := o.first.Generate(nodeCtx, ts.Session, ts.LastMessage)
	o.emit(events.Event{
		SessionID: ts.Session.ID, TurnID: ts.TurnID, Type: events.TypeNodeExited,
		Node: NodeFirstResponse, Elapsed: time.Since(start),
	})

	ts.FinalResponse = opening.Text
	ts.ResponseType = opening.ResponseType
	ts.Metadata["building_type"] = opening.BuildingType
	ts.Metadata["intent"] = string(opening.Intent)
	ts.Metadata["dimension"] = string(opening.Dimension)
}

func (o *Orchestrator) synthesize(ts *TurnState) {
	start := time.Now()
	o.emit(events.Event{SessionID: ts.Session.ID, TurnID: ts.TurnID, Type: events.TypeNodeEntered, Node: NodeSynthesizer})
	out := o.synth.Compose(ts.Decision.Route, ts.Results)
	o.emit(events.Event{
		SessionID: ts.Session.ID, TurnID: ts.TurnID, Type: events.TypeNodeExited,
		Node: NodeSynthesizer, Elapsed: time.Since(start),
	})
	ts.FinalResponse = out.Text
	ts.ResponseType = out.ResponseType
	for k, v := range out.Metadata {
		ts.Metadata[k] = v
	}
}

func (o *Orchestrator) repair(session *state.SessionState, turnID, stage string) {
	for _, r := range o.validator.Repair(session) {
		o.emit(events.Event{
			SessionID: session.ID, TurnID: turnID, Type: events.TypeValidationRepair,
			Kind: stage, Message: r,
		})
	}
	// Violations the repairs cannot fix are logged, never fatal.
	if err := o.validator.Check(session); err != nil {
		o.log.Warn("session invalid after repair", "turn", turnID, "stage", stage, "error", err)
	}
}

func (o *Orchestrator) emit(ev events.Event) {
	o.monitor.Emit(ev)
}

// lastUserBefore returns the latest user message, before the incoming
// one is appended. Used for topic-shift detection.
func lastUserBefore(session *state.SessionState) string {
	return session.LastUserMessage()
}

// topicKeywords are recognized conversation topics, checked in order.
var topicKeywords = []string{
	"daylight", "lighting", "acoustics", "circulation", "structure", "facade",
	"sustainability", "accessibility", "massing", "program", "site", "materials",
	"entry", "ventilation",
}

// detectTopic extracts a coarse topic label from the message, falling
// back to the longest substantive word.
func detectTopic(input string) string {
	lower := strings.ToLower(input)
	for _, kw := range topicKeywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	longest := ""
	for _, w := range strings.Fields(lower) {
		w = strings.Trim(w, ".,;:!?\"'")
		if len(w) >= 5 && len(w) > len(longest) {
			longest = w
		}
	}
	return longest
}

// phaseThresholds map cumulative user-message counts to design phases.
var phaseThresholds = []struct {
	limit int
	phase state.DesignPhase
}{
	{4, state.PhaseIdeation},
	{8, state.PhaseDevelopment},
	{12, state.PhaseRefinement},
}

// advancePhase moves the design phase forward as the conversation
// accumulates. Phases never move backward.
func advancePhase(session *state.SessionState) {
	n := len(session.UserMessages())
	phase := state.PhaseEvaluation
	for _, t := range phaseThresholds {
		if n <= t.limit {
			phase = t.phase
			break
		}
	}
	if phaseRank(phase) > phaseRank(session.DesignPhase) {
		session.DesignPhase = phase
	}
	session.PhaseInfo = &state.PhaseInfo{
		Phase:    session.DesignPhase,
		Progress: phaseProgressValue(n),
	}
}

func phaseProgress(session *state.SessionState) float64 {
	if session.PhaseInfo != nil {
		return session.PhaseInfo.Progress
	}
	return 0
}

func phaseProgressValue(userMessages int) float64 {
	p := float64(userMessages) / 12
	if p > 1 {
		return 1
	}
	return p
}

func phaseRank(p state.DesignPhase) int {
	switch p {
	case state.PhaseIdeation:
		return 0
	case state.PhaseDevelopment:
		return 1
	case state.PhaseRefinement:
		return 2
	case state.PhaseEvaluation:
		return 3
	default:
		return 0
	}
}
