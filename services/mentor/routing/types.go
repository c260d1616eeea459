// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routing selects exactly one pedagogical route per turn.
//
// The router consumes the classification of the latest student message
// plus conversation context and walks a priority-ordered rule list. The
// route determines which specialist agents run (see the activation matrix
// in matrix.go) and how the synthesizer shapes their outputs.
package routing

import (
	"strings"

	"github.com/atelierlabs/archmentor/services/mentor/classifier"
	"github.com/atelierlabs/archmentor/services/mentor/state"
)

// Route is a named pedagogical strategy.
type Route string

const (
	ProgressiveOpening      Route = "progressive_opening"
	KnowledgeOnly           Route = "knowledge_only"
	SocraticExploration     Route = "socratic_exploration"
	SocraticClarification   Route = "socratic_clarification"
	CognitiveIntervention   Route = "cognitive_intervention"
	CognitiveChallenge      Route = "cognitive_challenge"
	MultiAgentComprehensive Route = "multi_agent_comprehensive"
	SupportiveScaffolding   Route = "supportive_scaffolding"
	FoundationalBuilding    Route = "foundational_building"
	KnowledgeWithChallenge  Route = "knowledge_with_challenge"
	BalancedGuidance        Route = "balanced_guidance"
	TopicTransition         Route = "topic_transition"
	DesignGuidance          Route = "design_guidance"
)

// String returns the route name.
func (r Route) String() string { return string(r) }

// AllRoutes returns every valid route.
func AllRoutes() []Route {
	return []Route{
		ProgressiveOpening,
		KnowledgeOnly,
		SocraticExploration,
		SocraticClarification,
		CognitiveIntervention,
		CognitiveChallenge,
		MultiAgentComprehensive,
		SupportiveScaffolding,
		FoundationalBuilding,
		KnowledgeWithChallenge,
		BalancedGuidance,
		TopicTransition,
		DesignGuidance,
	}
}

// IsValid reports whether r names a known route.
func (r Route) IsValid() bool {
	for _, known := range AllRoutes() {
		if r == known {
			return true
		}
	}
	return false
}

// IsSocratic reports whether the route's response is question-led, which
// relaxes the synthesizer's question cap.
func (r Route) IsSocratic() bool {
	switch r {
	case SocraticExploration, SocraticClarification, TopicTransition:
		return true
	default:
		return false
	}
}

// Suggestions is the context agent's soft route recommendation. A
// suggestion at or above the override threshold preempts rules 3-12 of
// the decision tree.
type Suggestions struct {
	PrimaryRoute Route   `json:"primary_route"`
	Confidence   float64 `json:"confidence"`
}

// SuggestionOverrideThreshold is the minimum suggestion confidence that
// preempts the rule list.
const SuggestionOverrideThreshold = 0.6

// Context aggregates everything the router consumes for one decision.
type Context struct {
	// Classification of the latest student message. Required.
	Classification *classifier.Record

	// Suggestions from the context agent; zero value means none.
	Suggestions Suggestions

	// SkillLevel is the student's current banded skill.
	SkillLevel state.SkillLevel

	// CurrentInput and PreviousInput carry the latest and prior user
	// messages for topic-shift detection.
	CurrentInput  string
	PreviousInput string

	// CurrentPhase and PhaseProgress describe design progression.
	CurrentPhase  state.DesignPhase
	PhaseProgress float64
}

// Decision is the router's output: exactly one route, with the rule that
// fired recorded as the reason.
type Decision struct {
	Route      Route   `json:"route"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// TopicShiftThreshold is the keyword Jaccard similarity below which two
// consecutive messages are considered a topic transition.
const TopicShiftThreshold = 0.2

// jaccard computes token-set Jaccard similarity of two texts.
func jaccard(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 1 // no signal; do not call it a shift
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

// stopWords are excluded from topic-shift token sets.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"of": true, "to": true, "in": true, "on": true, "for": true,
	"is": true, "are": true, "it": true, "this": true, "that": true,
	"my": true, "we": true, "i": true, "about": true, "with": true,
	"let's": true, "lets": true, "instead": true, "talk": true,
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'")
		if len(w) < 3 || stopWords[w] {
			continue
		}
		set[w] = true
	}
	return set
}
