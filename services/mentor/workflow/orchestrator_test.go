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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierlabs/archmentor/services/knowledge"
	"github.com/atelierlabs/archmentor/services/llm"
	"github.com/atelierlabs/archmentor/services/mentor/agents"
	"github.com/atelierlabs/archmentor/services/mentor/events"
	"github.com/atelierlabs/archmentor/services/mentor/firstresponse"
	"github.com/atelierlabs/archmentor/services/mentor/routing"
	"github.com/atelierlabs/archmentor/services/mentor/synthesis"
)

// scriptedLLM replies based on a substring match against the system
// prompt, so each agent gets a plausible reply.
type scriptedLLM struct {
	err error
}

func (s *scriptedLLM) Chat(_ context.Context, messages []llm.Message, _ llm.Params) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	system := ""
	if len(messages) > 0 {
		system = messages[0].Content
	}
	switch {
	case strings.Contains(system, "Socratic"):
		return "What does success look like for the people using this space?", nil
	case strings.Contains(system, "cognitive coach"):
		return "Here is a challenge: suppose accessibility rules reshaped your entry. What if the ramp became the front door?", nil
	case strings.Contains(system, "domain expert"):
		return "Public door leaves typically need 32 inches of clear width, measured from the face of the door.", nil
	case strings.Contains(system, "historian"):
		return "Seattle Central Library: a bold spiral of stacks.\nExeter Library: a quiet atrium of books.", nil
	default:
		return "Welcome. This is a rich starting point and we can build on it together.", nil
	}
}

func testCorpus() []knowledge.Hit {
	return []knowledge.Hit{
		{
			Content:    "Accessible door openings in public buildings require a minimum clear width, commonly 32 inches for a single leaf.",
			Metadata:   knowledge.Metadata{Title: "Accessibility Standards", Author: "Hadid"},
			Similarity: 0.8,
		},
		{
			Content:    "Library study pods balance enclosure for focus with sightlines for safety and supervision.",
			Metadata:   knowledge.Metadata{Title: "Library Planning"},
			Similarity: 0.7,
		},
	}
}

func newTestRegistry(t *testing.T, client llm.Client) (*Registry, *events.Monitor) {
	t.Helper()
	monitor := events.NewMonitor(nil)
	search := knowledge.NewStatic(testCorpus())

	specialists := []agents.Specialist{
		agents.NewSocratic(client, nil),
		agents.NewDomainExpert(search, client, nil),
		agents.NewCognitive(client, nil),
		agents.NewAnalysis(nil, nil),
	}
	orch, err := NewOrchestrator(
		nil,
		agents.NewContextAgent(nil, nil),
		routing.NewRouter(nil),
		specialists,
		synthesis.New(0, nil),
		firstresponse.New(client, nil),
		monitor,
		nil,
	)
	require.NoError(t, err)
	return NewRegistry(orch, "architecture"), monitor
}

func agentErrorNodes(monitor *events.Monitor) []string {
	var nodes []string
	for _, ev := range monitor.Recent(0) {
		if ev.Type == events.TypeAgentError {
			nodes = append(nodes, ev.Node)
		}
	}
	return nodes
}

func enteredNodes(monitor *events.Monitor) []string {
	var nodes []string
	for _, ev := range monitor.Recent(0) {
		if ev.Type == events.TypeNodeEntered {
			nodes = append(nodes, ev.Node)
		}
	}
	return nodes
}

func TestTurn_FirstMessageLibrary(t *testing.T) {
	reg, monitor := newTestRegistry(t, &scriptedLLM{})
	st, err := reg.CreateSession("")
	require.NoError(t, err)

	res, err := reg.Chat(context.Background(), st.ID,
		"I'm designing a library with study pods for graduate students.")
	require.NoError(t, err)

	assert.Equal(t, routing.ProgressiveOpening, res.Route)
	assert.Contains(t, res.Response, "?")

	after, err := reg.Get(st.ID)
	require.NoError(t, err)
	assert.Equal(t, "library", after.ConversationContext.DetectedBuildingType)
	assert.GreaterOrEqual(t, after.ConversationContext.BuildingTypeConfidence, 0.8)

	nodes := enteredNodes(monitor)
	assert.Contains(t, nodes, NodeFirstResponse)
	assert.NotContains(t, nodes, string(routing.AgentDomainExpert))
	assert.NotContains(t, nodes, string(routing.AgentSocratic))
}

func TestTurn_TechnicalQuestionGetsKnowledgeOnly(t *testing.T) {
	reg, monitor := newTestRegistry(t, &scriptedLLM{})
	st, err := reg.CreateSession("Community center in a converted warehouse")
	require.NoError(t, err)

	// A first exchange so the next message is not the opening.
	_, err = reg.Chat(context.Background(), st.ID, "I'm planning the community center layout now.")
	require.NoError(t, err)

	res, err := reg.Chat(context.Background(), st.ID,
		"What are the ADA requirements for door widths in public buildings?")
	require.NoError(t, err)

	assert.Equal(t, routing.KnowledgeOnly, res.Route)
	assert.Equal(t, []string{"domain_expert"}, res.AgentsUsed)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(res.Response), "?"),
		"knowledge_only must end with the synthesizer's open question: %q", res.Response)

	nodes := enteredNodes(monitor)
	assert.NotContains(t, nodes, string(routing.AgentSocratic))
}

func TestTurn_BriefSetsBuildingTypeAtHighConfidence(t *testing.T) {
	reg, _ := newTestRegistry(t, &scriptedLLM{})
	st, err := reg.CreateSession("Community center in a converted warehouse")
	require.NoError(t, err)

	assert.Equal(t, "community_center", st.ConversationContext.DetectedBuildingType)
	assert.InDelta(t, 0.9, st.ConversationContext.BuildingTypeConfidence, 1e-9)
}

func TestTurn_OverconfidenceGetsChallenged(t *testing.T) {
	reg, _ := newTestRegistry(t, &scriptedLLM{})
	st, err := reg.CreateSession("")
	require.NoError(t, err)
	_, err = reg.Chat(context.Background(), st.ID, "I'm working on a gallery circulation scheme.")
	require.NoError(t, err)

	res, err := reg.Chat(context.Background(), st.ID,
		"Obviously my circulation scheme is the best possible.")
	require.NoError(t, err)

	assert.Equal(t, routing.CognitiveChallenge, res.Route)
	lower := strings.ToLower(res.Response)
	named := false
	for _, dim := range []string{"accessibility", "cost", "climate", "acoustics", "fire egress", "maintenance"} {
		if strings.Contains(lower, dim) {
			named = true
			break
		}
	}
	assert.True(t, named, "challenge must name a concrete counter-dimension: %q", res.Response)
}

func TestTurn_FeedbackRequestRunsThePanel(t *testing.T) {
	reg, monitor := newTestRegistry(t, &scriptedLLM{})
	st, err := reg.CreateSession("")
	require.NoError(t, err)
	_, err = reg.Chat(context.Background(), st.ID, "I'm designing a community center ground floor.")
	require.NoError(t, err)

	res, err := reg.Chat(context.Background(), st.ID,
		"Can you review my approach to zoning the ground floor?")
	require.NoError(t, err)

	assert.Equal(t, routing.MultiAgentComprehensive, res.Route)
	require.True(t, strings.HasPrefix(res.Response, "Synthesis:"), "got %q", res.Response)
	assert.Contains(t, res.Response, "- Insight:")
	assert.Contains(t, res.Response, "- Watch:")
	assert.Contains(t, res.Response, "- Direction:")
	assert.Equal(t, 1, strings.Count(res.Response, "?"))

	// Analysis, then domain expert, then socratic, in declared order.
	var specialistOrder []string
	for _, node := range enteredNodes(monitor) {
		switch node {
		case string(routing.AgentAnalysis), string(routing.AgentDomainExpert), string(routing.AgentSocratic):
			specialistOrder = append(specialistOrder, node)
		}
	}
	assert.Equal(t, []string{"analysis", "domain_expert", "socratic"},
		specialistOrder[len(specialistOrder)-3:])
}

func TestTurn_ConfusionGetsClarifyingQuestions(t *testing.T) {
	reg, _ := newTestRegistry(t, &scriptedLLM{})
	st, err := reg.CreateSession("")
	require.NoError(t, err)
	_, err = reg.Chat(context.Background(), st.ID, "I'm laying out a housing courtyard block.")
	require.NoError(t, err)

	res, err := reg.Chat(context.Background(), st.ID,
		"I don't understand how to balance privacy and openness here.")
	require.NoError(t, err)

	assert.Equal(t, routing.SocraticClarification, res.Route)
	n := strings.Count(res.Response, "?")
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, 3)
}

func TestTurn_TopicTransition(t *testing.T) {
	reg, _ := newTestRegistry(t, &scriptedLLM{})
	st, err := reg.CreateSession("")
	require.NoError(t, err)
	_, err = reg.Chat(context.Background(), st.ID, "My gallery needs better circulation through the wings.")
	require.NoError(t, err)
	_, err = reg.Chat(context.Background(), st.ID, "The circulation spine still feels congested near the stairs.")
	require.NoError(t, err)

	res, err := reg.Chat(context.Background(), st.ID, "Let's talk about facade materials instead.")
	require.NoError(t, err)

	assert.Equal(t, routing.TopicTransition, res.Route)
	assert.Contains(t, res.Response, "?")

	after, err := reg.Get(st.ID)
	require.NoError(t, err)
	assert.Contains(t, after.ConversationContext.TopicHistory, "circulation")
}

func TestTurn_AgentFailureDegradesNotAborts(t *testing.T) {
	// All LLM calls fail; retrieval still works, fallbacks still fire.
	reg, monitor := newTestRegistry(t, &scriptedLLM{err: errors.New("provider down")})
	st, err := reg.CreateSession("")
	require.NoError(t, err)
	_, err = reg.Chat(context.Background(), st.ID, "I'm working on a library reading room.")
	require.NoError(t, err)

	res, err := reg.Chat(context.Background(), st.ID,
		"I don't understand how the stacks should relate to the reading room.")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Response)
	assert.Contains(t, res.Response, "?")
	_ = agentErrorNodes(monitor)
}

func TestTurn_EmptyInputShortCircuits(t *testing.T) {
	reg, monitor := newTestRegistry(t, &scriptedLLM{})
	st, err := reg.CreateSession("")
	require.NoError(t, err)

	res, err := reg.Chat(context.Background(), st.ID, "   ")
	require.NoError(t, err)
	assert.Equal(t, EmptyInputPrompt, res.Response)
	assert.Equal(t, "clarifying_prompt", res.ResponseType)

	for _, node := range enteredNodes(monitor) {
		t.Errorf("no nodes should run for empty input, saw %s", node)
	}

	after, err := reg.Get(st.ID)
	require.NoError(t, err)
	assert.Empty(t, after.Messages, "empty input must not mutate the session")
}

func TestTurn_CancellationLeavesSessionUntouched(t *testing.T) {
	reg, _ := newTestRegistry(t, &scriptedLLM{})
	st, err := reg.CreateSession("")
	require.NoError(t, err)
	_, err = reg.Chat(context.Background(), st.ID, "I'm shaping a museum sequence of rooms.")
	require.NoError(t, err)
	before, err := reg.Get(st.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := reg.Chat(ctx, st.ID, "What are the standards for gallery lighting levels?")
	require.Error(t, err)
	assert.Equal(t, CancelFallback, res.Response)

	after, err := reg.Get(st.ID)
	require.NoError(t, err)
	assert.Equal(t, len(before.Messages), len(after.Messages),
		"cancelled turn must not commit state")
}

func TestTurn_BriefStaysPinnedAcrossTurns(t *testing.T) {
	reg, _ := newTestRegistry(t, &scriptedLLM{})
	st, err := reg.CreateSession("Community center in a converted warehouse")
	require.NoError(t, err)

	for _, msg := range []string{
		"I'm starting with the entry sequence.",
		"Maybe the hall could open to the street?",
		"What are the requirements for assembly occupancy?",
	} {
		_, err = reg.Chat(context.Background(), st.ID, msg)
		require.NoError(t, err)
	}

	after, err := reg.Get(st.ID)
	require.NoError(t, err)
	require.NotEmpty(t, after.Messages)
	assert.Equal(t, "Community center in a converted warehouse", after.Messages[0].Content)
	assert.Equal(t, after.CurrentDesignBrief, after.Messages[0].Content)
}

func TestTurn_UnknownSession(t *testing.T) {
	reg, _ := newTestRegistry(t, &scriptedLLM{})
	_, err := reg.Chat(context.Background(), "no-such-session", "hello")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_DeleteAndLen(t *testing.T) {
	reg, _ := newTestRegistry(t, &scriptedLLM{})
	st, err := reg.CreateSession("")
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())
	assert.True(t, reg.Delete(st.ID))
	assert.False(t, reg.Delete(st.ID))
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_EvictIdle(t *testing.T) {
	reg, _ := newTestRegistry(t, &scriptedLLM{})
	fresh, err := reg.CreateSession("")
	require.NoError(t, err)
	stale, err := reg.CreateSession("")
	require.NoError(t, err)

	reg.mu.Lock()
	reg.slots[stale.ID].lastActive = time.Now().Add(-3 * time.Hour)
	reg.mu.Unlock()

	assert.Equal(t, 1, reg.EvictIdle(time.Hour))
	assert.Equal(t, 1, reg.Len())
	_, err = reg.Get(stale.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = reg.Get(fresh.ID)
	assert.NoError(t, err)
}

func TestTurn_CancelledFirstMessageLeavesSessionUntouched(t *testing.T) {
	reg, _ := newTestRegistry(t, &scriptedLLM{})
	st, err := reg.CreateSession("")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := reg.Chat(ctx, st.ID, "I'm designing a library with study pods for graduate students.")
	require.Error(t, err)
	assert.Equal(t, CancelFallback, res.Response)
	assert.Equal(t, "cancelled", res.ResponseType)

	after, err := reg.Get(st.ID)
	require.NoError(t, err)
	assert.Empty(t, after.Messages, "cancelled first turn must not commit state")
	assert.Empty(t, after.ConversationContext.DetectedBuildingType)
}

// corruptingAnalysis stands in for the analysis agent and leaves the
// session with an out-of-range confidence, so the per-node repair pass
// has something to fix before the next specialist runs.
type corruptingAnalysis struct{}

func (corruptingAnalysis) Name() routing.AgentName { return routing.AgentAnalysis }

func (corruptingAnalysis) Run(_ context.Context, in *agents.Inputs) *agents.Result {
	in.State.ConversationContext.BuildingTypeConfidence = 4
	return &agents.Result{
		Agent:        routing.AgentAnalysis,
		ResponseText: "The brief covers program and site in moderate detail.",
		ResponseType: agents.ResponseDirect,
	}
}

func TestTurn_RepairRunsAroundEachNode(t *testing.T) {
	client := &scriptedLLM{}
	monitor := events.NewMonitor(nil)
	specialists := []agents.Specialist{
		corruptingAnalysis{},
		agents.NewDomainExpert(knowledge.NewStatic(testCorpus()), client, nil),
		agents.NewSocratic(client, nil),
		agents.NewCognitive(client, nil),
	}
	orch, err := NewOrchestrator(
		nil,
		agents.NewContextAgent(nil, nil),
		routing.NewRouter(nil),
		specialists,
		synthesis.New(0, nil),
		firstresponse.New(client, nil),
		monitor,
		nil,
	)
	require.NoError(t, err)
	reg := NewRegistry(orch, "architecture")

	st, err := reg.CreateSession("Community center for a riverside neighborhood")
	require.NoError(t, err)
	_, err = reg.Chat(context.Background(), st.ID,
		"I'm working on the entry sequence and the main hall.")
	require.NoError(t, err)
	_, err = reg.Chat(context.Background(), st.ID,
		"Can you give me feedback on my plan so far?")
	require.NoError(t, err)

	repaired := false
	for _, ev := range monitor.Recent(0) {
		if ev.Type == events.TypeValidationRepair &&
			ev.Kind == "post:analysis" && ev.Message == "building_type_confidence" {
			repaired = true
		}
	}
	assert.True(t, repaired, "expected a repair event after the analysis node")

	after, err := reg.Get(st.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, after.ConversationContext.BuildingTypeConfidence, 1.0)
}

// gateLLM blocks inside the first LLM call until released, so a test
// can interleave registry operations with an in-flight turn.
type gateLLM struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gateLLM) Chat(_ context.Context, _ []llm.Message, _ llm.Params) (string, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return "Welcome. Tell me more about your project.", nil
}

func TestRegistry_DeleteDuringTurnDoesNotResurrectSession(t *testing.T) {
	gate := &gateLLM{entered: make(chan struct{}, 1), release: make(chan struct{})}
	reg, _ := newTestRegistry(t, gate)
	st, err := reg.CreateSession("")
	require.NoError(t, err)

	type turnOutcome struct {
		res TurnResult
		err error
	}
	done := make(chan turnOutcome, 1)
	go func() {
		res, err := reg.Chat(context.Background(), st.ID, "I'm starting a museum design project.")
		done <- turnOutcome{res, err}
	}()

	<-gate.entered
	require.True(t, reg.Delete(st.ID))
	close(gate.release)

	out := <-done
	assert.ErrorIs(t, out.err, ErrSessionNotFound)
	assert.Equal(t, 0, reg.Len())
	_, err = reg.Get(st.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
