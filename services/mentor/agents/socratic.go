// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agents

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/atelierlabs/archmentor/pkg/logging"
	"github.com/atelierlabs/archmentor/services/llm"
	"github.com/atelierlabs/archmentor/services/mentor/routing"
)

// SocraticMode selects the questioning posture for a route.
type SocraticMode string

const (
	ModeExploration   SocraticMode = "exploration"
	ModeClarification SocraticMode = "clarification"
	ModeScaffold      SocraticMode = "scaffold"
	ModeTransition    SocraticMode = "transition"
)

// socraticModeFor maps a route to the questioning mode. Routes outside
// the Socratic activation set never reach this (Run refuses first).
func socraticModeFor(route routing.Route) SocraticMode {
	switch route {
	case routing.SocraticClarification:
		return ModeClarification
	case routing.SupportiveScaffolding:
		return ModeScaffold
	case routing.TopicTransition:
		return ModeTransition
	default:
		return ModeExploration
	}
}

// fallbackQuestion is emitted when the LLM is unavailable. It is
// route-appropriate for every mode and always well-formed.
const fallbackQuestion = "What part of this feels least clear to you right now?"

// Socratic produces questions that scaffold reflection without revealing
// answers. Output always contains between one and three questions.
type Socratic struct {
	llm llm.Client
	log *logging.Logger
}

// NewSocratic constructs the Socratic tutor.
func NewSocratic(client llm.Client, log *logging.Logger) *Socratic {
	if log == nil {
		log = logging.Default()
	}
	return &Socratic{llm: client, log: log}
}

var _ Specialist = (*Socratic)(nil)

// Name implements Specialist.
func (s *Socratic) Name() routing.AgentName { return routing.AgentSocratic }

// Run implements Specialist.
func (s *Socratic) Run(ctx context.Context, in *Inputs) *Result {
	ctx, span := tracer.Start(ctx, "agents.socratic.run")
	defer span.End()

	if !routing.Activates(in.Route, s.Name()) {
		return Skipped(s.Name(), in.Route)
	}
	msg := strings.TrimSpace(in.LastMessage())
	if msg == "" {
		return Errored(s.Name(), fmt.Errorf("empty user message"))
	}

	mode := socraticModeFor(in.Route)
	span.SetAttributes(attribute.String("mode", string(mode)))

	text, err := s.generate(ctx, in, mode)
	respType := ResponseDirect
	if err != nil {
		s.log.Warn("socratic generation failed, using fallback", "error", err)
		text = s.fallback(mode, in)
		respType = ResponseTemplateFallback
	}
	text = capQuestions(text, 3)
	if CountQuestions(text) == 0 {
		text = strings.TrimSpace(text)
		if text != "" {
			text += " "
		}
		text += fallbackQuestion
	}

	if topic := in.State.ConversationContext.CurrentTopic; topic != "" {
		in.State.AddConcept(topic)
	}

	return &Result{
		Agent:        s.Name(),
		ResponseText: text,
		ResponseType: respType,
		Metadata: map[string]any{
			"mode":           string(mode),
			"question_count": CountQuestions(text),
		},
	}
}

func (s *Socratic) generate(ctx context.Context, in *Inputs, mode SocraticMode) (string, error) {
	system := `You are a Socratic architecture mentor. Respond ONLY with questions that
help the student reflect on their own design thinking. Never answer factual
questions directly. Ask between one and three questions. Keep each question
under 25 words.`

	var posture string
	switch mode {
	case ModeClarification:
		posture = "The student is confused. Ask short clarifying questions that isolate what they do and do not understand."
	case ModeScaffold:
		posture = "The student needs support. Ask gentle stepping-stone questions that build from what they already said."
	case ModeTransition:
		posture = "The student changed topic. Briefly acknowledge the shift, then ask opening questions about the new topic."
	default:
		posture = "The student is exploring. Ask questions that deepen and widen their line of thinking."
	}

	user := fmt.Sprintf("Project: %s (%s phase).\n%s\n\nStudent said: %q",
		describeProject(in), in.State.DesignPhase, posture, in.LastMessage())

	return s.llm.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, llm.Params{Tier: llm.TierLarge, Temperature: 0.6, MaxTokens: 220})
}

func (s *Socratic) fallback(mode SocraticMode, in *Inputs) string {
	topic := in.State.ConversationContext.CurrentTopic
	switch mode {
	case ModeClarification:
		return fallbackQuestion
	case ModeScaffold:
		return "What is one small piece of this you feel sure about? How could we build from there?"
	case ModeTransition:
		if topic != "" {
			return fmt.Sprintf("It sounds like we are moving to something new. What draws you to %s right now?", topic)
		}
		return "It sounds like we are moving to something new. What draws you there right now?"
	default:
		return "What outcome matters most to you here? What would change if you started from that?"
	}
}

// capQuestions keeps at most n question sentences, dropping the rest.
func capQuestions(text string, n int) string {
	if CountQuestions(text) <= n {
		return strings.TrimSpace(text)
	}
	var out strings.Builder
	kept := 0
	for _, r := range text {
		out.WriteRune(r)
		if r == '?' {
			kept++
			if kept == n {
				break
			}
		}
	}
	return strings.TrimSpace(out.String())
}

// describeProject renders a short project label for prompts.
func describeProject(in *Inputs) string {
	bt := in.State.ConversationContext.DetectedBuildingType
	if bt == "" || bt == "unknown" {
		return "an architectural design project"
	}
	return "a " + strings.ReplaceAll(bt, "_", " ") + " project"
}
