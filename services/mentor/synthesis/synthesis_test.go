// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package synthesis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierlabs/archmentor/services/mentor/agents"
	"github.com/atelierlabs/archmentor/services/mentor/routing"
)

func result(name routing.AgentName, text string) *agents.Result {
	return &agents.Result{Agent: name, ResponseText: text, ResponseType: agents.ResponseDirect}
}

func TestCompose_KnowledgeOnlyEndsWithOpenQuestion(t *testing.T) {
	s := New(0, nil)
	out := s.Compose(routing.KnowledgeOnly, map[routing.AgentName]*agents.Result{
		routing.AgentDomainExpert: result(routing.AgentDomainExpert,
			"North-facing clerestories deliver even daylight to reading surfaces."),
	})
	require.Equal(t, agents.ResponseDirect, out.ResponseType)
	assert.True(t, strings.HasSuffix(out.Text, openQuestion))
	assert.NotContains(t, out.Text, "Synthesis:")
	assert.Equal(t, 1, strings.Count(out.Text, "?"))
}

func TestCompose_SocraticPassthrough(t *testing.T) {
	s := New(0, nil)
	questions := "What draws you to this site? How would a visitor first experience it?"
	out := s.Compose(routing.SocraticExploration, map[routing.AgentName]*agents.Result{
		routing.AgentSocratic: result(routing.AgentSocratic, questions),
	})
	assert.Equal(t, questions, out.Text)
}

func TestCompose_SynthesisBlock(t *testing.T) {
	s := New(0, nil)
	out := s.Compose(routing.MultiAgentComprehensive, map[routing.AgentName]*agents.Result{
		routing.AgentAnalysis:     result(routing.AgentAnalysis, "Working at an intermediate level on a library (basic_details)."),
		routing.AgentDomainExpert: result(routing.AgentDomainExpert, "Zone quiet reading away from the entry sequence."),
		routing.AgentSocratic:     result(routing.AgentSocratic, "Which space should a visitor reach first?"),
	})
	require.True(t, strings.HasPrefix(out.Text, "Synthesis:"))
	assert.Contains(t, out.Text, "- Insight:")
	assert.Contains(t, out.Text, "- Watch:")
	assert.Contains(t, out.Text, "- Direction:")
	assert.Equal(t, 1, strings.Count(out.Text, "?"), "block must end with exactly one question")
	assert.True(t, strings.HasSuffix(out.Text, "?"))
}

func TestCompose_KnowledgeWithChallenge(t *testing.T) {
	s := New(0, nil)
	out := s.Compose(routing.KnowledgeWithChallenge, map[routing.AgentName]*agents.Result{
		routing.AgentDomainExpert: result(routing.AgentDomainExpert, "Egress width follows occupant load."),
		routing.AgentCognitive:    result(routing.AgentCognitive, "Suppose the occupancy doubled; where does your plan strain first?"),
	})
	knowledgeIdx := strings.Index(out.Text, "Egress")
	challengeIdx := strings.Index(out.Text, "Suppose")
	require.GreaterOrEqual(t, knowledgeIdx, 0)
	require.Greater(t, challengeIdx, knowledgeIdx, "knowledge must precede challenge")
}

func TestCompose_ScaffoldingStepsWithQuestion(t *testing.T) {
	s := New(0, nil)
	out := s.Compose(routing.SupportiveScaffolding, map[routing.AgentName]*agents.Result{
		routing.AgentDomainExpert: result(routing.AgentDomainExpert,
			"Start with the entry. Then place the main hall. Connect them with a clear path."),
		routing.AgentSocratic: result(routing.AgentSocratic, "Which space matters most to you?"),
	})
	assert.Contains(t, out.Text, "1. ")
	assert.Contains(t, out.Text, "2. ")
	assert.True(t, strings.HasSuffix(out.Text, "Which space matters most to you?"))
}

func TestCompose_WordCapTruncatesAtSentence(t *testing.T) {
	s := New(30, nil)
	long := strings.Repeat("This sentence has exactly six words. ", 10)
	out := s.Compose(routing.KnowledgeOnly, map[routing.AgentName]*agents.Result{
		routing.AgentDomainExpert: result(routing.AgentDomainExpert, long),
	})
	require.True(t, strings.HasSuffix(out.Text, truncationPrompt))
	// Cap plus the appended prompt, with a small tolerance.
	assert.LessOrEqual(t, len(strings.Fields(out.Text)), 40)
	trimmed := strings.TrimSuffix(out.Text, "\n\n"+truncationPrompt)
	assert.True(t, strings.HasSuffix(trimmed, "."), "must cut at a sentence boundary: %q", trimmed)
}

func TestCompose_QuestionCapOnNonSocraticRoutes(t *testing.T) {
	s := New(0, nil)
	out := s.Compose(routing.KnowledgeWithChallenge, map[routing.AgentName]*agents.Result{
		routing.AgentDomainExpert: result(routing.AgentDomainExpert, "Is it wide? Is it tall? Is it deep? Is it bright?"),
		routing.AgentCognitive:    result(routing.AgentCognitive, "What if it flooded? Suppose it did?"),
	})
	assert.LessOrEqual(t, strings.Count(out.Text, "?"), MaxQuestions)
}

func TestCompose_SocraticRouteExemptFromQuestionCap(t *testing.T) {
	s := New(0, nil)
	many := "One? Two? Three?"
	out := s.Compose(routing.SocraticClarification, map[routing.AgentName]*agents.Result{
		routing.AgentSocratic: result(routing.AgentSocratic, many),
	})
	assert.Equal(t, 3, strings.Count(out.Text, "?"))
}

func TestCompose_ExploratoryFallback(t *testing.T) {
	s := New(0, nil)
	tests := []struct {
		name    string
		results map[routing.AgentName]*agents.Result
	}{
		{"no results", map[routing.AgentName]*agents.Result{}},
		{"all errored", map[routing.AgentName]*agents.Result{
			routing.AgentSocratic: {Agent: routing.AgentSocratic, ResponseType: agents.ResponseError},
		}},
		{"all empty", map[routing.AgentName]*agents.Result{
			routing.AgentSocratic: result(routing.AgentSocratic, "   "),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := s.Compose(routing.BalancedGuidance, tt.results)
			assert.Equal(t, ExploratoryFallback, out.Text)
			assert.Equal(t, agents.ResponseExploratoryFallback, out.ResponseType)
		})
	}
}

func TestCompose_MetadataListsAgentsUsed(t *testing.T) {
	s := New(0, nil)
	out := s.Compose(routing.KnowledgeOnly, map[routing.AgentName]*agents.Result{
		routing.AgentDomainExpert: result(routing.AgentDomainExpert, "Facts."),
	})
	used, ok := out.Metadata["agents_used"].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"domain_expert"}, used)
	assert.Equal(t, "knowledge_only", out.Metadata["route"])
}

func TestSentences(t *testing.T) {
	got := sentences("First here. Second there! Third where? trailing words")
	require.Len(t, got, 4)
	assert.Equal(t, "First here.", got[0])
	assert.Equal(t, "Third where?", got[2])
	assert.Equal(t, "trailing words", got[3])
}

func TestFirstQuestion(t *testing.T) {
	assert.Equal(t, "Why though?", firstQuestion("A statement. Why though? Another?"))
	assert.Equal(t, "", firstQuestion("No questions here."))
}
