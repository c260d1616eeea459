// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package synthesis assembles the specialist agents' partial responses
// into the single reply the student sees.
//
// Assembly is template-driven per route. The synthesizer reads agent
// results and never writes agent state. All output passes through the
// same caps: a word limit with sentence-boundary truncation and a
// question cap on non-question-led routes.
package synthesis

import (
	"fmt"
	"strings"

	"github.com/atelierlabs/archmentor/pkg/logging"
	"github.com/atelierlabs/archmentor/services/mentor/agents"
	"github.com/atelierlabs/archmentor/services/mentor/routing"
)

// DefaultMaxWords is the response word cap before truncation.
const DefaultMaxWords = 150

// MaxQuestions is the question cap on non-question-led routes.
const MaxQuestions = 3

// Appended when truncation cuts the response short.
const truncationPrompt = "What's your initial reaction to this approach?"

// ExploratoryFallback is returned when every agent output is empty or
// errored.
const ExploratoryFallback = "Let's explore this together. What aspect would you like to focus on first?"

// openQuestion closes knowledge-only responses.
const openQuestion = "How might you apply this to your design?"

// Output is the synthesized reply plus metadata for the transcript.
type Output struct {
	Text         string         `json:"text"`
	ResponseType string         `json:"response_type"`
	Metadata     map[string]any `json:"metadata"`
}

// Synthesizer builds the final response from agent results.
//
// # Thread Safety
//
// Synthesizer is stateless after construction and safe for concurrent
// use.
type Synthesizer struct {
	maxWords int
	log      *logging.Logger
}

// New constructs a Synthesizer. maxWords <= 0 selects DefaultMaxWords.
func New(maxWords int, log *logging.Logger) *Synthesizer {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	if log == nil {
		log = logging.Default()
	}
	return &Synthesizer{maxWords: maxWords, log: log}
}

// Compose assembles the final response for the route from the agent
// results, applying the route template, the word cap, and the question
// cap.
func (s *Synthesizer) Compose(route routing.Route, results map[routing.AgentName]*agents.Result) Output {
	usable := map[routing.AgentName]*agents.Result{}
	var used []string
	for name, res := range results {
		if res.Usable() {
			usable[name] = res
			used = append(used, string(name))
		}
	}
	if len(usable) == 0 {
		s.log.Warn("no usable agent output, falling back", "route", route)
		return Output{
			Text:         ExploratoryFallback,
			ResponseType: agents.ResponseExploratoryFallback,
			Metadata:     map[string]any{"route": route.String(), "agents_used": []string{}, "synthesis_method": route.String()},
		}
	}

	text := s.applyTemplate(route, usable)
	text = s.capWords(text)
	if !route.IsSocratic() {
		text = capQuestionMarks(text, MaxQuestions)
	}

	return Output{
		Text:         strings.TrimSpace(text),
		ResponseType: agents.ResponseDirect,
		Metadata: map[string]any{
			"route":            route.String(),
			"agents_used":      used,
			"synthesis_method": route.String(),
		},
	}
}

func (s *Synthesizer) applyTemplate(route routing.Route, res map[routing.AgentName]*agents.Result) string {
	knowledge := textOf(res, routing.AgentDomainExpert)
	socratic := textOf(res, routing.AgentSocratic)
	cognitive := textOf(res, routing.AgentCognitive)
	analysis := res[routing.AgentAnalysis]

	switch route {
	case routing.KnowledgeOnly:
		return knowledge + "\n\n" + openQuestion

	case routing.SocraticExploration, routing.SocraticClarification, routing.TopicTransition:
		return socratic

	case routing.CognitiveChallenge, routing.CognitiveIntervention:
		return cognitive

	case routing.MultiAgentComprehensive, routing.BalancedGuidance, routing.DesignGuidance:
		return s.synthesisBlock(analysis, knowledge, cognitive, socratic)

	case routing.SupportiveScaffolding:
		return scaffoldSteps(knowledge, socratic)

	case routing.FoundationalBuilding:
		text := knowledge
		if q := firstQuestion(socratic); q != "" {
			text += "\n\n" + q
		}
		return text

	case routing.KnowledgeWithChallenge:
		return knowledge + "\n\n" + cognitive

	default:
		// Unknown routes combine whatever is present, knowledge first.
		parts := []string{}
		for _, t := range []string{knowledge, analysisText(analysis), cognitive, socratic} {
			if t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, "\n\n")
	}
}

// synthesisBlock renders the Insight/Watch/Direction structure closed by
// exactly one Socratic question.
func (s *Synthesizer) synthesisBlock(analysis *agents.Result, knowledge, cognitive, socratic string) string {
	insight := ""
	if analysis != nil && analysis.Usable() {
		insight = firstSentence(analysis.ResponseText)
	}
	if insight == "" {
		insight = firstSentence(knowledge)
	}
	if insight == "" {
		insight = "You have a clear starting point worth building on."
	}

	watch := firstSentence(cognitive)
	if watch == "" && analysis != nil {
		if flags, ok := analysis.Metadata["cognitive_flags"].([]string); ok && len(flags) > 0 {
			watch = humanizeFlag(flags[0])
		}
	}
	if watch == "" {
		watch = "Watch for assumptions you have not yet tested against a real constraint."
	}

	direction := firstSentence(knowledge)
	if direction == "" {
		direction = "Develop one concrete option far enough to critique it."
	}

	question := firstQuestion(socratic)
	if question == "" {
		question = "Which of these feels most worth pursuing first?"
	}

	return fmt.Sprintf("Synthesis:\n- Insight: %s\n- Watch: %s\n- Direction: %s\n%s",
		stripQuestions(insight), stripQuestions(watch), stripQuestions(direction), question)
}

// scaffoldSteps renders knowledge as numbered steps followed by one
// Socratic question.
func scaffoldSteps(knowledge, socratic string) string {
	var b strings.Builder
	b.WriteString("Let's take this one step at a time:\n")
	steps := sentences(knowledge)
	if len(steps) > 4 {
		steps = steps[:4]
	}
	if len(steps) == 0 {
		steps = []string{"Start from the part of the problem you understand best."}
	}
	for i, step := range steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	if q := firstQuestion(socratic); q != "" {
		b.WriteString("\n")
		b.WriteString(q)
	}
	return b.String()
}

// capWords truncates to the last complete sentence under the word cap
// and appends the truncation prompt.
func (s *Synthesizer) capWords(text string) string {
	if wordCount(text) <= s.maxWords {
		return text
	}
	var b strings.Builder
	total := 0
	for _, sent := range sentences(text) {
		n := wordCount(sent)
		if total+n > s.maxWords {
			break
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(sent)
		total += n
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		// A single run-on sentence longer than the cap: hard cut.
		words := strings.Fields(text)
		out = strings.Join(words[:s.maxWords], " ") + "."
	}
	return out + "\n\n" + truncationPrompt
}

// capQuestionMarks converts question marks beyond the cap into periods
// so extra questions become statements instead of being dropped.
func capQuestionMarks(text string, limit int) string {
	if strings.Count(text, "?") <= limit {
		return text
	}
	seen := 0
	runes := []rune(text)
	for i, r := range runes {
		if r == '?' {
			seen++
			if seen > limit {
				runes[i] = '.'
			}
		}
	}
	return string(runes)
}

func textOf(res map[routing.AgentName]*agents.Result, name routing.AgentName) string {
	if r, ok := res[name]; ok && r.Usable() {
		return strings.TrimSpace(r.ResponseText)
	}
	return ""
}

func analysisText(r *agents.Result) string {
	if r != nil && r.Usable() {
		return strings.TrimSpace(r.ResponseText)
	}
	return ""
}

// sentences splits text on sentence-ending punctuation, keeping the
// terminator with each sentence.
func sentences(text string) []string {
	var out []string
	var cur strings.Builder
	for _, r := range strings.TrimSpace(text) {
		cur.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(cur.String()); s != "" {
				out = append(out, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func firstSentence(text string) string {
	ss := sentences(text)
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

// firstQuestion returns the first sentence ending in '?'.
func firstQuestion(text string) string {
	for _, s := range sentences(text) {
		if strings.HasSuffix(s, "?") {
			return s
		}
	}
	return ""
}

// stripQuestions rewrites '?' to '.' so structural lines stay
// declarative.
func stripQuestions(text string) string {
	return strings.ReplaceAll(text, "?", ".")
}

func humanizeFlag(flag string) string {
	switch flag {
	case "needs_accessibility_guidance":
		return "Accessibility has not come up yet; it will shape circulation and entries."
	case "needs_program_clarification":
		return "The program is still loosely defined, which makes spatial decisions hard to test."
	case "ready_for_advanced_challenge":
		return "You are ready for harder constraints; do not settle for the first workable scheme."
	default:
		return strings.ReplaceAll(flag, "_", " ")
	}
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
