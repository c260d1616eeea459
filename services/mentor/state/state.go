// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package state holds the mutable session record for a mentoring
// conversation: messages, student profile, conversation context, visual
// artifacts, and per-agent scratch slots.
//
// A SessionState is owned by the workflow orchestrator for the duration of
// a turn; it is not internally synchronized. The session registry guards
// each session with a per-session mutex so two turns never run
// concurrently on the same state.
package state

import (
	"strings"
	"time"
	"unicode/utf8"
)

// History bounds. Oldest entries are dropped once a bound is reached.
const (
	MaxTopicHistory      = 10
	MaxRouteHistory      = 20
	MaxConceptsDiscussed = 30
	MaxQuestionsAsked    = 30
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	// RoleBrief marks the design brief. At most one brief message exists
	// and it is always at index 0.
	RoleBrief Role = "brief"
)

// DesignPhase is the coarse phase of the student's design process.
type DesignPhase string

const (
	PhaseIdeation    DesignPhase = "ideation"
	PhaseDevelopment DesignPhase = "development"
	PhaseRefinement  DesignPhase = "refinement"
	PhaseEvaluation  DesignPhase = "evaluation"
)

// SkillLevel bands the student's current ability.
type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
	SkillExpert       SkillLevel = "expert"
)

// ArtifactType classifies an uploaded visual artifact.
type ArtifactType string

const (
	ArtifactSketch  ArtifactType = "sketch"
	ArtifactPlan    ArtifactType = "plan"
	ArtifactSection ArtifactType = "section"
	ArtifactDetail  ArtifactType = "detail"
)

// Message is one entry in the ordered conversation.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// StudentProfile models what we believe about the student.
type StudentProfile struct {
	SkillLevel      SkillLevel `json:"skill_level"`
	LearningStyle   string     `json:"learning_style"`
	CognitiveLoad   float64    `json:"cognitive_load" validate:"gte=0,lte=1"`
	EngagementLevel float64    `json:"engagement_level" validate:"gte=0,lte=1"`
	KnowledgeGaps   []string   `json:"knowledge_gaps"`
	Strengths       []string   `json:"strengths"`
}

// ConversationContext tracks topical and routing continuity across turns.
type ConversationContext struct {
	CurrentTopic string   `json:"current_topic"`
	TopicHistory []string `json:"topic_history"`

	LastRouteUsed string   `json:"last_route_used"`
	RouteHistory  []string `json:"route_history"`

	DetectedBuildingType   string  `json:"detected_building_type"`
	BuildingTypeConfidence float64 `json:"building_type_confidence" validate:"gte=0,lte=1"`

	DesignPhaseDetected string  `json:"design_phase_detected"`
	PhaseConfidence     float64 `json:"phase_confidence" validate:"gte=0,lte=1"`

	ProjectType          string   `json:"project_type"`
	ExistingBuildingType string   `json:"existing_building_type"`
	TargetBuildingType   string   `json:"target_building_type"`
	ProjectDetails       []string `json:"project_details"`

	QuestionsAsked         []string `json:"questions_asked"`
	ConceptsDiscussed      []string `json:"concepts_discussed"`
	UserUnderstandingLevel string   `json:"user_understanding_level"`
	OngoingDiscussion      string   `json:"ongoing_discussion"`

	ThreadStartTime time.Time `json:"thread_start_time,omitzero"`
}

// VisualArtifact is an uploaded sketch, plan, section, or detail image.
type VisualArtifact struct {
	ID              string         `json:"id"`
	Type            ArtifactType   `json:"type"`
	ImagePath       string         `json:"image_path"`
	AnalysisResults map[string]any `json:"analysis_results"`
	Annotations     []string       `json:"annotations"`
	Timestamp       time.Time      `json:"timestamp,omitzero"`
}

// PhaseInfo is the per-turn progression snapshot.
type PhaseInfo struct {
	Phase    DesignPhase `json:"phase"`
	Progress float64     `json:"progress" validate:"gte=0,lte=1"`
}

// SessionState is the mutable record of one mentoring conversation.
type SessionState struct {
	ID                  string              `json:"id"`
	Messages            []Message           `json:"messages"`
	CurrentDesignBrief  string              `json:"current_design_brief"`
	DesignPhase         DesignPhase         `json:"design_phase"`
	ConversationContext ConversationContext `json:"conversation_context"`
	VisualArtifacts     []VisualArtifact    `json:"visual_artifacts"`
	CurrentSketch       *VisualArtifact     `json:"current_sketch,omitempty"`
	StudentProfile      StudentProfile      `json:"student_profile"`
	AgentContext        map[string]any      `json:"agent_context"`
	Domain              string              `json:"domain"`
	BuildingType        string              `json:"building_type"`
	PhaseInfo           *PhaseInfo          `json:"phase_info,omitempty"`
}

// NewSession creates an empty session for the given domain.
func NewSession(id, domain string) *SessionState {
	if domain == "" {
		domain = "architecture"
	}
	return &SessionState{
		ID:          id,
		DesignPhase: PhaseIdeation,
		StudentProfile: StudentProfile{
			SkillLevel:      SkillIntermediate,
			CognitiveLoad:   0.5,
			EngagementLevel: 0.5,
		},
		ConversationContext: ConversationContext{
			ThreadStartTime: time.Now().UTC(),
		},
		AgentContext: map[string]any{},
		Domain:       domain,
	}
}

// AppendMessage appends a message. A brief replaces any prior brief and is
// inserted at index 0. Empty content and unknown roles are ignored rather
// than raising.
func (s *SessionState) AppendMessage(role Role, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	switch role {
	case RoleUser, RoleAssistant:
		s.Messages = append(s.Messages, Message{
			Role:      role,
			Content:   content,
			Timestamp: time.Now().UTC(),
		})
	case RoleBrief:
		s.CurrentDesignBrief = content
		s.EnsureBriefInMessages()
	default:
		// Invalid enum input: ignore.
	}
}

// SetDesignBrief records the brief once. Subsequent calls with a different
// brief are ignored; the brief is authoritative for the session.
func (s *SessionState) SetDesignBrief(brief string) {
	brief = strings.TrimSpace(brief)
	if brief == "" || s.CurrentDesignBrief != "" {
		return
	}
	s.CurrentDesignBrief = brief
	s.EnsureBriefInMessages()
}

// EnsureBriefInMessages idempotently synchronizes CurrentDesignBrief with
// Messages[0]. All stray brief messages are removed; when the brief is
// non-empty exactly one brief message sits at index 0.
func (s *SessionState) EnsureBriefInMessages() {
	var briefTS time.Time
	kept := s.Messages[:0]
	for _, m := range s.Messages {
		if m.Role == RoleBrief {
			if briefTS.IsZero() {
				briefTS = m.Timestamp
			}
			continue
		}
		kept = append(kept, m)
	}
	s.Messages = kept

	if s.CurrentDesignBrief == "" {
		return
	}
	if briefTS.IsZero() {
		briefTS = time.Now().UTC()
	}
	brief := Message{Role: RoleBrief, Content: s.CurrentDesignBrief, Timestamp: briefTS}
	s.Messages = append([]Message{brief}, s.Messages...)
}

// UpdateConversationContext rotates topic and route state after a turn.
func (s *SessionState) UpdateConversationContext(userInput, routeUsed, detectedTopic string) {
	cc := &s.ConversationContext

	if detectedTopic != "" && detectedTopic != cc.CurrentTopic {
		if cc.CurrentTopic != "" {
			cc.TopicHistory = appendBounded(cc.TopicHistory, cc.CurrentTopic, MaxTopicHistory)
		}
		cc.CurrentTopic = detectedTopic
	}

	if routeUsed != "" {
		cc.LastRouteUsed = routeUsed
		cc.RouteHistory = appendBounded(cc.RouteHistory, routeUsed, MaxRouteHistory)
	}

	if strings.HasSuffix(strings.TrimSpace(userInput), "?") {
		cc.QuestionsAsked = appendBounded(cc.QuestionsAsked, strings.TrimSpace(userInput), MaxQuestionsAsked)
	}

	cc.OngoingDiscussion = summarizeInput(userInput)
	if cc.ThreadStartTime.IsZero() {
		cc.ThreadStartTime = time.Now().UTC()
	}
}

// AddConcept records a discussed concept, deduplicated, bounded.
func (s *SessionState) AddConcept(concept string) {
	concept = strings.ToLower(strings.TrimSpace(concept))
	if concept == "" {
		return
	}
	for _, c := range s.ConversationContext.ConceptsDiscussed {
		if c == concept {
			return
		}
	}
	s.ConversationContext.ConceptsDiscussed = appendBounded(
		s.ConversationContext.ConceptsDiscussed, concept, MaxConceptsDiscussed)
}

// UpdateBuildingTypeContext records a detection. The stored detection is
// overwritten only by a strictly higher confidence; a detection above 0.7
// promotes to the session-level BuildingType.
func (s *SessionState) UpdateBuildingTypeContext(buildingType string, confidence float64) {
	if buildingType == "" || buildingType == "unknown" {
		return
	}
	confidence = Clamp01(confidence)
	cc := &s.ConversationContext
	if confidence <= cc.BuildingTypeConfidence {
		return
	}
	cc.DetectedBuildingType = buildingType
	cc.BuildingTypeConfidence = confidence
	if confidence > 0.7 {
		s.BuildingType = buildingType
	}
}

// AddVisualArtifact attaches an artifact and makes it the current sketch.
func (s *SessionState) AddVisualArtifact(a VisualArtifact) {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	s.VisualArtifacts = append(s.VisualArtifacts, a)
	s.CurrentSketch = &s.VisualArtifacts[len(s.VisualArtifacts)-1]
}

// ContinuitySnapshot is the bounded view of recent conversation used to
// keep responses aware of prior turns.
type ContinuitySnapshot struct {
	CurrentTopic      string   `json:"current_topic"`
	OngoingDiscussion string   `json:"ongoing_discussion"`
	LastTopics        []string `json:"last_topics"`
	LastRoutes        []string `json:"last_routes"`
	LastQuestions     []string `json:"last_questions"`
	RecentConcepts    []string `json:"recent_concepts"`
}

// GetContinuityContext returns the bounded snapshot: last 3 topics, last 5
// routes, last 5 questions, last 10 concepts.
func (s *SessionState) GetContinuityContext() ContinuitySnapshot {
	cc := s.ConversationContext
	return ContinuitySnapshot{
		CurrentTopic:      cc.CurrentTopic,
		OngoingDiscussion: cc.OngoingDiscussion,
		LastTopics:        lastN(cc.TopicHistory, 3),
		LastRoutes:        lastN(cc.RouteHistory, 5),
		LastQuestions:     lastN(cc.QuestionsAsked, 5),
		RecentConcepts:    lastN(cc.ConceptsDiscussed, 10),
	}
}

// IsContinuingConversation reports whether the conversation has ongoing
// topical context worth carrying into the next response.
func (s *SessionState) IsContinuingConversation() bool {
	return len(s.Messages) > 2 &&
		s.ConversationContext.CurrentTopic != "" &&
		s.ConversationContext.OngoingDiscussion != ""
}

// UserMessages returns the user-authored messages in order.
func (s *SessionState) UserMessages() []Message {
	var out []Message
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			out = append(out, m)
		}
	}
	return out
}

// LastUserMessage returns the most recent user message content, or "".
func (s *SessionState) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Clamp01 bounds v to [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// appendBounded appends and drops oldest entries beyond max.
func appendBounded(list []string, v string, max int) []string {
	list = append(list, v)
	if len(list) > max {
		list = list[len(list)-max:]
	}
	return list
}

// lastN returns (a copy of) the last n entries.
func lastN(list []string, n int) []string {
	if len(list) > n {
		list = list[len(list)-n:]
	}
	out := make([]string, len(list))
	copy(out, list)
	return out
}

// summarizeInput keeps a short prefix of the input as the ongoing-discussion
// marker. Not a semantic summary; just enough for continuity checks.
func summarizeInput(input string) string {
	input = strings.TrimSpace(input)
	const maxLen = 120
	if len(input) <= maxLen {
		return input
	}
	// Back up to a rune boundary so multi-byte input is never split.
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(input[cut]) {
		cut--
	}
	return input[:cut]
}
