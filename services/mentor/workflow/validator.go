// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workflow

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/atelierlabs/archmentor/pkg/logging"
	"github.com/atelierlabs/archmentor/services/mentor/state"
)

// Validator checks session invariants before and after each node and
// repairs what it can. Violations are logged, never fatal: the turn
// proceeds on the repaired state.
type Validator struct {
	v   *validator.Validate
	log *logging.Logger
}

// NewValidator constructs a Validator.
func NewValidator(log *logging.Logger) *Validator {
	if log == nil {
		log = logging.Default()
	}
	return &Validator{
		v:   validator.New(validator.WithRequiredStructEnabled()),
		log: log,
	}
}

// Repair enforces the session invariants in place and returns the list
// of repairs applied.
func (val *Validator) Repair(st *state.SessionState) []string {
	if st == nil {
		return nil
	}
	var repairs []string

	// The brief, when set, must sit at index 0 as a brief-role message.
	if st.CurrentDesignBrief != "" {
		if len(st.Messages) == 0 || st.Messages[0].Role != state.RoleBrief ||
			st.Messages[0].Content != st.CurrentDesignBrief {
			st.EnsureBriefInMessages()
			repairs = append(repairs, "brief_position")
		}
	}

	// All confidence-like fields live in [0,1].
	cc := &st.ConversationContext
	if clamped := state.Clamp01(cc.BuildingTypeConfidence); clamped != cc.BuildingTypeConfidence {
		cc.BuildingTypeConfidence = clamped
		repairs = append(repairs, "building_type_confidence")
	}
	if clamped := state.Clamp01(cc.PhaseConfidence); clamped != cc.PhaseConfidence {
		cc.PhaseConfidence = clamped
		repairs = append(repairs, "phase_confidence")
	}
	sp := &st.StudentProfile
	if clamped := state.Clamp01(sp.CognitiveLoad); clamped != sp.CognitiveLoad {
		sp.CognitiveLoad = clamped
		repairs = append(repairs, "cognitive_load")
	}
	if clamped := state.Clamp01(sp.EngagementLevel); clamped != sp.EngagementLevel {
		sp.EngagementLevel = clamped
		repairs = append(repairs, "engagement_level")
	}
	if st.PhaseInfo != nil {
		if clamped := state.Clamp01(st.PhaseInfo.Progress); clamped != st.PhaseInfo.Progress {
			st.PhaseInfo.Progress = clamped
			repairs = append(repairs, "phase_progress")
		}
	}

	// Bounded histories.
	if len(cc.TopicHistory) > state.MaxTopicHistory {
		cc.TopicHistory = cc.TopicHistory[len(cc.TopicHistory)-state.MaxTopicHistory:]
		repairs = append(repairs, "topic_history_bound")
	}
	if len(cc.RouteHistory) > state.MaxRouteHistory {
		cc.RouteHistory = cc.RouteHistory[len(cc.RouteHistory)-state.MaxRouteHistory:]
		repairs = append(repairs, "route_history_bound")
	}
	if len(cc.ConceptsDiscussed) > state.MaxConceptsDiscussed {
		cc.ConceptsDiscussed = cc.ConceptsDiscussed[len(cc.ConceptsDiscussed)-state.MaxConceptsDiscussed:]
		repairs = append(repairs, "concepts_bound")
	}
	if len(cc.QuestionsAsked) > state.MaxQuestionsAsked {
		cc.QuestionsAsked = cc.QuestionsAsked[len(cc.QuestionsAsked)-state.MaxQuestionsAsked:]
		repairs = append(repairs, "questions_bound")
	}

	if len(repairs) > 0 {
		val.log.Warn("session state repaired", "session", st.ID, "repairs", repairs)
	}
	return repairs
}

// Check runs struct-tag validation over the session and returns the
// first violation, or nil. Used after Repair to catch anything the
// repairs cannot fix.
func (val *Validator) Check(st *state.SessionState) error {
	if st == nil {
		return fmt.Errorf("nil session state")
	}
	if err := val.v.Struct(st); err != nil {
		return fmt.Errorf("session %s invalid: %w", st.ID, err)
	}
	return nil
}
