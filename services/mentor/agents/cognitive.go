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
	"github.com/atelierlabs/archmentor/services/mentor/classifier"
	"github.com/atelierlabs/archmentor/services/mentor/routing"
)

// TriggerType names why the cognitive enhancement agent fired.
type TriggerType string

const (
	TriggerOverconfidence TriggerType = "overconfidence_challenge"
	TriggerPassive        TriggerType = "passive_response_challenge"
	TriggerRealityCheck   TriggerType = "reality_check"
	TriggerPerspective    TriggerType = "perspective_shift"
	TriggerMetacognitive  TriggerType = "metacognitive_prompt"
)

// challengeMarkers are the words at least one of which must appear in
// every cognitive output.
var challengeMarkers = []string{"challenge", "constraint", "perspective", "imagine", "what if", "suppose"}

// counterCases are concrete dimensions an overconfidence challenge must
// name. Checked against LLM output; the fallback always includes one.
var counterCases = []string{"accessibility", "cost", "climate", "acoustics", "fire egress", "maintenance"}

// Cognitive injects challenges, reality-checks, and metacognitive
// prompts to prevent cognitive offloading.
type Cognitive struct {
	llm llm.Client
	log *logging.Logger
}

// NewCognitive constructs the cognitive enhancement agent.
func NewCognitive(client llm.Client, log *logging.Logger) *Cognitive {
	if log == nil {
		log = logging.Default()
	}
	return &Cognitive{llm: client, log: log}
}

var _ Specialist = (*Cognitive)(nil)

// Name implements Specialist.
func (c *Cognitive) Name() routing.AgentName { return routing.AgentCognitive }

// triggerFor derives the trigger type from route and classification.
func triggerFor(route routing.Route, cls *classifier.Record) TriggerType {
	switch {
	case route == routing.CognitiveChallenge && cls != nil && cls.ConfidenceLevel == classifier.ConfidenceOverconfident:
		return TriggerOverconfidence
	case route == routing.CognitiveIntervention:
		return TriggerPassive
	case route == routing.KnowledgeWithChallenge:
		return TriggerRealityCheck
	case cls != nil && cls.EngagementLevel == classifier.LevelLow:
		return TriggerPassive
	default:
		return TriggerMetacognitive
	}
}

// Run implements Specialist.
func (c *Cognitive) Run(ctx context.Context, in *Inputs) *Result {
	ctx, span := tracer.Start(ctx, "agents.cognitive.run")
	defer span.End()

	if !routing.Activates(in.Route, c.Name()) {
		return Skipped(c.Name(), in.Route)
	}
	trigger := triggerFor(in.Route, in.Classification)
	span.SetAttributes(attribute.String("trigger", string(trigger)))

	text, err := c.generate(ctx, in, trigger)
	respType := ResponseDirect
	if err != nil || !wellFormedChallenge(text, trigger) {
		if err != nil {
			c.log.Warn("cognitive generation failed, using fallback", "error", err)
		}
		text = c.fallback(trigger, in)
		respType = ResponseTemplateFallback
	}

	return &Result{
		Agent:        c.Name(),
		ResponseText: text,
		ResponseType: respType,
		Metadata:     map[string]any{"trigger_type": string(trigger)},
	}
}

func (c *Cognitive) generate(ctx context.Context, in *Inputs, trigger TriggerType) (string, error) {
	var instruction string
	switch trigger {
	case TriggerOverconfidence:
		instruction = `The student sounds overconfident. Challenge their certainty by naming one
concrete dimension they have likely not tested, such as accessibility, cost,
or climate, and ask how their scheme holds up against it.`
	case TriggerPassive:
		instruction = `The student is disengaged or asking you to do the thinking. Re-engage them
with a short, vivid "what if" scenario about their project and one simple
question they can answer from their own experience.`
	case TriggerRealityCheck:
		instruction = `Give the student one reality-check: a practical constraint that could break
their current idea, framed constructively.`
	case TriggerPerspective:
		instruction = `Shift the student's perspective: ask them to imagine the project as a
specific user (a child, a wheelchair user, a maintenance worker) and what
that person would notice first.`
	default:
		instruction = `Prompt metacognition: ask the student to explain which assumption in their
reasoning they are least sure of, and why.`
	}
	system := "You are a cognitive coach for architecture students. Two to four sentences. " +
		"Use at least one of the words: challenge, constraint, perspective, imagine, what if, suppose."
	user := fmt.Sprintf("%s\n\nProject: %s.\nStudent said: %q",
		instruction, describeProject(in), in.LastMessage())
	return c.llm.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, llm.Params{Tier: llm.TierLarge, Temperature: 0.7, MaxTokens: 220})
}

func (c *Cognitive) fallback(trigger TriggerType, in *Inputs) string {
	project := describeProject(in)
	switch trigger {
	case TriggerOverconfidence:
		return fmt.Sprintf("Here is a challenge before you lock this in: suppose a wheelchair user "+
			"arrives at %s on a rainy day. Walk their route in your head. Where does accessibility "+
			"strain your current scheme, and what would it cost to fix?", project)
	case TriggerPassive:
		return fmt.Sprintf("What if %s lost half its budget tomorrow? Imagine which single space "+
			"you would fight to keep. Which one is it?", project)
	case TriggerRealityCheck:
		return "One constraint worth testing now: climate. Suppose the hottest week of the year; " +
			"how does your scheme keep its key spaces usable without doubling energy cost?"
	case TriggerPerspective:
		return fmt.Sprintf("Imagine walking into %s as a first-time visitor with no map. "+
			"From that perspective, what do you notice first, and is it what you intended?", project)
	default:
		return "Here is a challenge: name the one assumption in your reasoning you are least sure of. " +
			"What if it turned out to be wrong?"
	}
}

// wellFormedChallenge checks the output obeys the marker rule, and for
// overconfidence triggers also names a concrete counter-case.
func wellFormedChallenge(text string, trigger TriggerType) bool {
	lower := strings.ToLower(text)
	found := false
	for _, m := range challengeMarkers {
		if strings.Contains(lower, m) {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if trigger == TriggerOverconfidence {
		for _, cc := range counterCases {
			if strings.Contains(lower, cc) {
				return true
			}
		}
		return false
	}
	return true
}
