// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import "fmt"

// AgentName identifies a specialist agent.
type AgentName string

const (
	AgentAnalysis     AgentName = "analysis"
	AgentDomainExpert AgentName = "domain_expert"
	AgentSocratic     AgentName = "socratic"
	AgentCognitive    AgentName = "cognitive_enhancement"
)

// SynthesisStyle names how the synthesizer assembles agent outputs for a
// route.
type SynthesisStyle string

const (
	StyleVerbatim      SynthesisStyle = "verbatim"
	StyleKnowledge     SynthesisStyle = "knowledge"
	StyleQuestionLed   SynthesisStyle = "question_led"
	StyleProvocation   SynthesisStyle = "provocation"
	StyleSynthesis     SynthesisStyle = "synthesis_block"
	StyleGuidedSteps   SynthesisStyle = "guided_steps"
	StyleLayered       SynthesisStyle = "layered"
	StyleKnowThenChall SynthesisStyle = "knowledge_then_challenge"
	StyleTransition    SynthesisStyle = "transition"
)

// Activation describes which agents run for a route, in order, and how
// the synthesizer shapes the result. Agents not listed must not run.
type Activation struct {
	Agents []AgentName
	Style  SynthesisStyle
}

// activationMatrix is the static route to agent binding. It is
// validated once at startup via ValidateMatrix; dispatch never consults
// route strings beyond this table.
var activationMatrix = map[Route]Activation{
	ProgressiveOpening:      {Agents: nil, Style: StyleVerbatim},
	KnowledgeOnly:           {Agents: []AgentName{AgentDomainExpert}, Style: StyleKnowledge},
	SocraticExploration:     {Agents: []AgentName{AgentSocratic}, Style: StyleQuestionLed},
	SocraticClarification:   {Agents: []AgentName{AgentSocratic}, Style: StyleQuestionLed},
	CognitiveChallenge:      {Agents: []AgentName{AgentCognitive}, Style: StyleProvocation},
	CognitiveIntervention:   {Agents: []AgentName{AgentCognitive}, Style: StyleProvocation},
	MultiAgentComprehensive: {Agents: []AgentName{AgentAnalysis, AgentDomainExpert, AgentSocratic}, Style: StyleSynthesis},
	SupportiveScaffolding:   {Agents: []AgentName{AgentSocratic, AgentDomainExpert}, Style: StyleGuidedSteps},
	FoundationalBuilding:    {Agents: []AgentName{AgentDomainExpert, AgentSocratic}, Style: StyleLayered},
	KnowledgeWithChallenge:  {Agents: []AgentName{AgentDomainExpert, AgentCognitive}, Style: StyleKnowThenChall},
	BalancedGuidance:        {Agents: []AgentName{AgentAnalysis, AgentDomainExpert, AgentSocratic}, Style: StyleSynthesis},
	TopicTransition:         {Agents: []AgentName{AgentSocratic}, Style: StyleTransition},
	// design_guidance is a legacy route name still accepted from external
	// suggestions; it behaves as balanced guidance.
	DesignGuidance: {Agents: []AgentName{AgentAnalysis, AgentDomainExpert, AgentSocratic}, Style: StyleSynthesis},
}

// ActivationFor returns the activation entry for a route. Unknown routes
// fall back to balanced guidance so a bad suggestion can never strand a
// turn without agents.
func ActivationFor(r Route) Activation {
	if act, ok := activationMatrix[r]; ok {
		return act
	}
	return activationMatrix[BalancedGuidance]
}

// Activates reports whether agent is in the route's activation set.
func Activates(r Route, agent AgentName) bool {
	for _, a := range ActivationFor(r).Agents {
		if a == agent {
			return true
		}
	}
	return false
}

// ValidateMatrix checks the static table at startup: every route has an
// entry, no duplicate agents within a route, and the knowledge/Socratic
// separation holds (knowledge-only routes never run Socratic, Socratic
// routes never run the domain expert).
func ValidateMatrix() error {
	for _, r := range AllRoutes() {
		act, ok := activationMatrix[r]
		if !ok {
			return fmt.Errorf("route %q has no activation entry", r)
		}
		seen := make(map[AgentName]bool, len(act.Agents))
		for _, a := range act.Agents {
			if seen[a] {
				return fmt.Errorf("route %q activates agent %q twice", r, a)
			}
			seen[a] = true
		}
	}
	if Activates(KnowledgeOnly, AgentSocratic) {
		return fmt.Errorf("knowledge_only must not activate the socratic agent")
	}
	for _, r := range []Route{SocraticExploration, SocraticClarification, TopicTransition} {
		if Activates(r, AgentDomainExpert) {
			return fmt.Errorf("route %q must not activate the domain expert", r)
		}
	}
	if Activates(KnowledgeWithChallenge, AgentSocratic) {
		return fmt.Errorf("knowledge_with_challenge must not activate the socratic agent")
	}
	return nil
}
