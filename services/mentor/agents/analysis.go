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
	"github.com/atelierlabs/archmentor/services/mentor/classifier"
	"github.com/atelierlabs/archmentor/services/mentor/routing"
	"github.com/atelierlabs/archmentor/services/mentor/state"
	"github.com/atelierlabs/archmentor/services/vision"
)

// DetailLevel bands how much of the design brief the student has
// articulated.
type DetailLevel string

const (
	DetailVague    DetailLevel = "vague"
	DetailBasic    DetailLevel = "basic_details"
	DetailModerate DetailLevel = "moderately_detailed"
	DetailHigh     DetailLevel = "highly_detailed"
)

// SkillUpdateFloor is the minimum estimation confidence required to
// overwrite the stored skill level.
const SkillUpdateFloor = 0.5

// Cognitive flags emitted by the analysis agent and consumed by the
// domain expert and Socratic tutor.
const (
	FlagNeedsAccessibility = "needs_accessibility_guidance"
	FlagNeedsProgram       = "needs_program_clarification"
	FlagReadyForChallenge  = "ready_for_advanced_challenge"
)

// Vocabulary bands for skill estimation. Membership is substring-based
// over the lowercased corpus of user messages.
var (
	beginnerVocab = []string{"room", "wall", "door", "window", "big", "small", "nice", "pretty", "look"}

	intermediateVocab = []string{"circulation", "program", "massing", "facade", "daylight", "zoning",
		"section", "courtyard", "threshold", "adjacency"}

	advancedVocab = []string{"parti", "tectonic", "phenomenolog", "typolog", "datum", "poche",
		"thermal bridge", "passivhaus", "chiaroscuro", "spatial sequence"}
)

// DesignSummary is the structured synopsis the analysis agent builds.
type DesignSummary struct {
	BuildingType        string      `json:"building_type"`
	ProgramRequirements []string    `json:"program_requirements"`
	Constraints         []string    `json:"constraints"`
	DetailLevel         DetailLevel `json:"detail_level"`
}

// Analysis produces a structured synopsis of the student's design state:
// skill estimate, brief summary, cognitive flags, and visual insights.
// It is deterministic and never calls the LLM.
type Analysis struct {
	vision vision.Analyzer
	log    *logging.Logger
}

// NewAnalysis constructs the analysis agent. vision may be nil when no
// image pipeline is configured.
func NewAnalysis(v vision.Analyzer, log *logging.Logger) *Analysis {
	if log == nil {
		log = logging.Default()
	}
	return &Analysis{vision: v, log: log}
}

var _ Specialist = (*Analysis)(nil)

// Name implements Specialist.
func (a *Analysis) Name() routing.AgentName { return routing.AgentAnalysis }

// Run implements Specialist.
func (a *Analysis) Run(ctx context.Context, in *Inputs) *Result {
	ctx, span := tracer.Start(ctx, "agents.analysis.run")
	defer span.End()

	if !routing.Activates(in.Route, a.Name()) {
		return Skipped(a.Name(), in.Route)
	}

	st := in.State
	detected, conf := a.EstimateSkill(st)
	if detected != st.StudentProfile.SkillLevel && conf >= SkillUpdateFloor {
		a.log.Info("skill level updated", "from", st.StudentProfile.SkillLevel, "to", detected, "confidence", conf)
		st.StudentProfile.SkillLevel = detected
	}
	span.SetAttributes(
		attribute.String("skill", string(detected)),
		attribute.Float64("skill_confidence", conf),
	)

	summary := a.SummarizeBrief(st)
	flags := a.cognitiveFlags(st, in.Classification, summary)
	visual := a.visualInsights(ctx, st)

	var b strings.Builder
	fmt.Fprintf(&b, "Working at a %s level on %s (%s).", detected,
		orUnknown(summary.BuildingType), summary.DetailLevel)
	if len(summary.Constraints) > 0 {
		fmt.Fprintf(&b, " Key constraints: %s.", strings.Join(summary.Constraints, ", "))
	}
	if visual != "" {
		fmt.Fprintf(&b, " Sketch notes: %s", visual)
	}

	return &Result{
		Agent:        a.Name(),
		ResponseText: b.String(),
		ResponseType: ResponseDirect,
		Metadata: map[string]any{
			"skill_level":      string(detected),
			"skill_confidence": conf,
			"detail_level":     string(summary.DetailLevel),
			"building_type":    summary.BuildingType,
			"cognitive_flags":  flags,
			"visual_summary":   visual,
		},
	}
}

// EstimateSkill bands the student's skill from their vocabulary, term
// density, and sentence structure, with confidence growing as more
// messages accumulate.
func (a *Analysis) EstimateSkill(st *state.SessionState) (state.SkillLevel, float64) {
	msgs := st.UserMessages()
	var corpus strings.Builder
	totalWords := 0
	for _, m := range msgs {
		corpus.WriteString(strings.ToLower(m.Content))
		corpus.WriteByte(' ')
		totalWords += len(strings.Fields(m.Content))
	}
	text := corpus.String()

	conf := (minF(float64(len(msgs))/5, 1) + minF(float64(totalWords)/100, 1)) / 2

	adv := countVocab(text, advancedVocab)
	mid := countVocab(text, intermediateVocab)
	beg := countVocab(text, beginnerVocab)

	avgLen := 0.0
	if len(msgs) > 0 {
		avgLen = float64(totalWords) / float64(len(msgs))
	}

	var level state.SkillLevel
	switch {
	case adv >= 2 && avgLen > 15:
		level = state.SkillAdvanced
	case adv >= 1 || mid >= 3:
		level = state.SkillIntermediate
	case mid >= 1:
		level = state.SkillIntermediate
	case beg > 0 || avgLen <= 8:
		level = state.SkillBeginner
	default:
		level = state.SkillIntermediate
	}
	return level, conf
}

// SummarizeBrief extracts the structured brief summary from session
// state and message texts.
func (a *Analysis) SummarizeBrief(st *state.SessionState) DesignSummary {
	s := DesignSummary{BuildingType: st.ConversationContext.DetectedBuildingType}
	lower := strings.ToLower(st.CurrentDesignBrief + " " + joinUserText(st))

	programWords := []string{"classroom", "gallery", "reading room", "auditorium", "workshop",
		"lobby", "cafe", "office", "apartment", "clinic", "lab"}
	for _, w := range programWords {
		if strings.Contains(lower, w) {
			s.ProgramRequirements = append(s.ProgramRequirements, w)
		}
	}
	constraintWords := []string{"budget", "site", "zoning", "heritage", "flood", "noise",
		"accessibility", "climate", "structural", "code"}
	for _, w := range constraintWords {
		if strings.Contains(lower, w) {
			s.Constraints = append(s.Constraints, w)
		}
	}

	signals := len(s.ProgramRequirements) + len(s.Constraints)
	if s.BuildingType != "" && s.BuildingType != "unknown" {
		signals++
	}
	switch {
	case signals >= 6:
		s.DetailLevel = DetailHigh
	case signals >= 4:
		s.DetailLevel = DetailModerate
	case signals >= 2:
		s.DetailLevel = DetailBasic
	default:
		s.DetailLevel = DetailVague
	}
	return s
}

func (a *Analysis) cognitiveFlags(st *state.SessionState, cls *classifier.Record, sum DesignSummary) []string {
	var flags []string
	lower := strings.ToLower(joinUserText(st))
	if !strings.Contains(lower, "accessib") && !strings.Contains(lower, "ramp") {
		flags = append(flags, FlagNeedsAccessibility)
	}
	if sum.DetailLevel == DetailVague {
		flags = append(flags, FlagNeedsProgram)
	}
	if st.StudentProfile.SkillLevel == state.SkillAdvanced ||
		(cls != nil && cls.UnderstandingLevel == classifier.LevelHigh) {
		flags = append(flags, FlagReadyForChallenge)
	}
	return flags
}

// visualInsights re-analyzes the current sketch only when no prior
// analysis is stored; otherwise it summarizes the stored result.
func (a *Analysis) visualInsights(ctx context.Context, st *state.SessionState) string {
	sketch := st.CurrentSketch
	if sketch == nil {
		return ""
	}
	if len(sketch.AnalysisResults) > 0 {
		if raw, ok := sketch.AnalysisResults["raw_analysis"].(string); ok && raw != "" {
			return firstSentence(raw)
		}
	}
	if a.vision == nil {
		return ""
	}
	res, err := a.vision.AnalyzeImage(ctx, sketch.ImagePath, st.CurrentDesignBrief)
	if err != nil || res == nil || res.Error != "" {
		a.log.Warn("vision analysis unavailable", "error", err)
		return ""
	}
	return res.Summary()
}

func countVocab(text string, vocab []string) int {
	n := 0
	for _, w := range vocab {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}

func joinUserText(st *state.SessionState) string {
	var b strings.Builder
	for _, m := range st.UserMessages() {
		b.WriteString(m.Content)
		b.WriteByte(' ')
	}
	return b.String()
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexAny(text, ".!"); idx > 0 && idx < len(text)-1 {
		return text[:idx+1]
	}
	return text
}

func orUnknown(bt string) string {
	if bt == "" || bt == "unknown" {
		return "an unspecified project type"
	}
	return "a " + strings.ReplaceAll(bt, "_", " ")
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
