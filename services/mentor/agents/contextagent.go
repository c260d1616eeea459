// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agents

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/atelierlabs/archmentor/pkg/logging"
	"github.com/atelierlabs/archmentor/services/mentor/classifier"
	"github.com/atelierlabs/archmentor/services/mentor/routing"
	"github.com/atelierlabs/archmentor/services/mentor/state"
)

// excerptLimit bounds message excerpts placed into per-agent context
// bundles.
const excerptLimit = 400

// ContextPackage is everything the context agent prepares for one turn:
// the classification, conversation analysis, a soft routing suggestion,
// and per-agent context bundles.
type ContextPackage struct {
	Classification *classifier.Record                   `json:"classification"`
	Analysis       *ContextAnalysis                     `json:"analysis"`
	Suggestions    routing.Suggestions                  `json:"suggestions"`
	AgentContexts  map[routing.AgentName]map[string]any `json:"agent_contexts"`
}

// ContextAgent runs first in every turn. It classifies the message,
// derives conversation patterns, and recommends a route when the
// pattern is strong enough to override the rule list.
//
// Failures never propagate: Prepare always returns a usable package,
// downgrading to a default classification with suggestion confidence 0.
type ContextAgent struct {
	cls *classifier.Classifier
	log *logging.Logger
}

// NewContextAgent constructs the context agent.
func NewContextAgent(cls *classifier.Classifier, log *logging.Logger) *ContextAgent {
	if cls == nil {
		cls = classifier.New()
	}
	if log == nil {
		log = logging.Default()
	}
	return &ContextAgent{cls: cls, log: log}
}

// Prepare builds the ContextPackage for the latest user message. The
// input is expected to already be appended to the session as the most
// recent user message.
func (ca *ContextAgent) Prepare(ctx context.Context, st *state.SessionState, input string) *ContextPackage {
	ctx, span := tracer.Start(ctx, "agents.context.prepare")
	defer span.End()

	pkg := &ContextPackage{
		Classification: classifier.DefaultRecord(input),
		Analysis:       &ContextAnalysis{},
		AgentContexts:  map[routing.AgentName]map[string]any{},
	}
	if st == nil || strings.TrimSpace(input) == "" {
		return pkg
	}

	priorUser := len(st.UserMessages()) - 1
	if priorUser < 0 {
		priorUser = 0
	}
	pkg.Classification = ca.cls.Classify(ctx, input, priorUser)
	pkg.Analysis = ca.analyze(st, input)
	pkg.Suggestions = ca.suggest(st, pkg.Classification, pkg.Analysis)
	pkg.AgentContexts = ca.buildAgentContexts(st, input, pkg.Analysis)

	span.SetAttributes(
		attribute.String("interaction_type", string(pkg.Classification.InteractionType)),
		attribute.Float64("suggestion_confidence", pkg.Suggestions.Confidence),
	)
	return pkg
}

func (ca *ContextAgent) analyze(st *state.SessionState, input string) *ContextAnalysis {
	cc := st.ConversationContext
	distinct := map[string]bool{}
	recent := lastStrings(cc.RouteHistory, 5)
	for _, r := range recent {
		distinct[r] = true
	}

	drift := 0.0
	if prev := previousUserMessage(st); prev != "" {
		drift = 1 - tokenOverlap(input, prev)
	}

	trend := "steady"
	if len(st.UserMessages()) >= 4 {
		switch st.StudentProfile.SkillLevel {
		case state.SkillAdvanced, state.SkillExpert:
			trend = "progressing"
		case state.SkillBeginner:
			trend = "needs_support"
		}
	}

	analysis := &ContextAnalysis{
		TurnCount:      len(st.UserMessages()),
		RouteDiversity: len(distinct),
		TopicDrift:     drift,
		SkillTrend:     trend,
		BuildingType:   cc.DetectedBuildingType,
		CurrentTopic:   cc.CurrentTopic,
	}
	if st.CurrentSketch != nil {
		if raw, ok := st.CurrentSketch.AnalysisResults["raw_analysis"].(string); ok {
			analysis.VisualSummary = firstSentence(raw)
		}
	}
	return analysis
}

// suggest emits a soft route recommendation. Confidence reaches the
// override threshold only when a repeated pattern makes the rule-based
// choice predictably wrong.
func (ca *ContextAgent) suggest(st *state.SessionState, cls *classifier.Record, an *ContextAnalysis) routing.Suggestions {
	recent := lastStrings(st.ConversationContext.RouteHistory, 3)

	// A student who keeps receiving knowledge but is drifting away needs
	// to be pulled back into active thinking.
	if len(recent) == 3 && allEqual(recent, string(routing.KnowledgeOnly)) &&
		cls.EngagementLevel == classifier.LevelLow {
		return routing.Suggestions{PrimaryRoute: routing.SocraticExploration, Confidence: 0.7}
	}

	// Sustained technical fluency earns knowledge paired with challenge
	// instead of plain answers.
	if cls.InteractionType == classifier.TechnicalQuestion &&
		cls.UnderstandingLevel == classifier.LevelHigh &&
		containsString(recent, string(routing.KnowledgeOnly)) {
		return routing.Suggestions{PrimaryRoute: routing.KnowledgeWithChallenge, Confidence: 0.65}
	}

	return routing.Suggestions{PrimaryRoute: routing.BalancedGuidance, Confidence: 0.3}
}

func (ca *ContextAgent) buildAgentContexts(st *state.SessionState, input string, an *ContextAnalysis) map[routing.AgentName]map[string]any {
	excerpt := truncate(input, excerptLimit)
	base := func() map[string]any {
		return map[string]any{
			"excerpt":       excerpt,
			"building_type": an.BuildingType,
			"topic":         an.CurrentTopic,
		}
	}
	contexts := map[routing.AgentName]map[string]any{
		routing.AgentSocratic:     base(),
		routing.AgentDomainExpert: base(),
		routing.AgentCognitive:    base(),
		routing.AgentAnalysis:     base(),
	}
	contexts[routing.AgentSocratic]["questions_asked"] = lastStrings(st.ConversationContext.QuestionsAsked, 5)
	contexts[routing.AgentDomainExpert]["concepts_discussed"] = lastStrings(st.ConversationContext.ConceptsDiscussed, 10)
	contexts[routing.AgentCognitive]["skill_level"] = string(st.StudentProfile.SkillLevel)
	if an.VisualSummary != "" {
		contexts[routing.AgentAnalysis]["visual_summary"] = an.VisualSummary
	}
	return contexts
}

// tokenOverlap is a coarse similarity in [0,1] between two texts.
func tokenOverlap(a, b string) float64 {
	setA := fieldSet(a)
	setB := fieldSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 1
	}
	inter := 0
	for w := range setA {
		if setB[w] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func fieldSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'")
		if len(w) >= 3 {
			set[w] = true
		}
	}
	return set
}

func previousUserMessage(st *state.SessionState) string {
	msgs := st.UserMessages()
	if len(msgs) < 2 {
		return ""
	}
	return msgs[len(msgs)-2].Content
}

func lastStrings(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func allEqual(s []string, v string) bool {
	for _, x := range s {
		if x != v {
			return false
		}
	}
	return len(s) > 0
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back up to a rune boundary so multi-byte text is never split.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
