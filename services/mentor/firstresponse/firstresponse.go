// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package firstresponse composes the opening reply for a student's very
// first message, bypassing the specialist agents entirely.
//
// The opening detects the building type, reads the student's intent and
// dominant design dimension from lightweight keyword heuristics, asks
// the LLM for a tailored welcome, and always closes with one to three
// follow-up questions matched to the student's level. Every step has a
// deterministic fallback so a first message never fails.
package firstresponse

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/atelierlabs/archmentor/pkg/logging"
	"github.com/atelierlabs/archmentor/services/llm"
	"github.com/atelierlabs/archmentor/services/mentor/buildingtype"
	"github.com/atelierlabs/archmentor/services/mentor/state"
)

var tracer = otel.Tracer("mentor.firstresponse")

// Intent is the coarse reading of what the student wants from the
// conversation.
type Intent string

const (
	GuidedExploration Intent = "guided_exploration"
	FocusedInquiry    Intent = "focused_inquiry"
	BroadOverview     Intent = "broad_overview"
)

// Dimension is the primary design dimension detected in the first
// message.
type Dimension string

const (
	DimFunctional  Dimension = "functional"
	DimSpatial     Dimension = "spatial"
	DimTechnical   Dimension = "technical"
	DimContextual  Dimension = "contextual"
	DimAesthetic   Dimension = "aesthetic"
	DimSustainable Dimension = "sustainable"
)

// dimensionKeywords drive the keyword-scoring selection of the primary
// dimension. First dimension to reach the top score wins ties in this
// declared order.
var dimensionKeywords = []struct {
	dim   Dimension
	words []string
}{
	{DimFunctional, []string{"program", "function", "use", "activity", "workflow", "rooms", "spaces for"}},
	{DimSpatial, []string{"space", "spatial", "layout", "circulation", "flow", "volume", "plan"}},
	{DimTechnical, []string{"structure", "structural", "construction", "material", "system", "detail", "engineering"}},
	{DimContextual, []string{"site", "context", "neighborhood", "urban", "landscape", "surrounding", "climate of"}},
	{DimAesthetic, []string{"beautiful", "form", "style", "appearance", "facade", "expression", "character"}},
	{DimSustainable, []string{"sustainable", "energy", "green", "passive", "carbon", "environment", "recycl"}},
}

// Opening is the complete first-turn response.
type Opening struct {
	Text              string    `json:"text"`
	ResponseType      string    `json:"response_type"`
	BuildingType      string    `json:"building_type"`
	Confidence        float64   `json:"confidence"`
	Intent            Intent    `json:"intent"`
	Dimension         Dimension `json:"dimension"`
	FollowUpQuestions []string  `json:"follow_up_questions"`
}

// Generator builds the opening response.
//
// # Thread Safety
//
// Generator is stateless after construction and safe for concurrent
// use.
type Generator struct {
	llm llm.Client
	log *logging.Logger
}

// New constructs a Generator.
func New(client llm.Client, log *logging.Logger) *Generator {
	if log == nil {
		log = logging.Default()
	}
	return &Generator{llm: client, log: log}
}

// Generate composes the opening for the first message and records the
// detected building type on the session at first-message confidence.
func (g *Generator) Generate(ctx context.Context, st *state.SessionState, message string) Opening {
	ctx, span := tracer.Start(ctx, "firstresponse.generate")
	defer span.End()

	bt, _ := buildingtype.DetectWithConfidence(message)
	conf := 0.0
	if bt != buildingtype.Unknown {
		conf = buildingtype.FirstMessageConfidence
		st.UpdateBuildingTypeContext(bt, conf)
	}

	intent := ClassifyIntent(message)
	dim := PrimaryDimension(message)
	span.SetAttributes(
		attribute.String("building_type", bt),
		attribute.String("intent", string(intent)),
		attribute.String("dimension", string(dim)),
	)

	level := st.StudentProfile.SkillLevel
	questions := FollowUpQuestions(level, bt, dim)

	body, err := g.compose(ctx, message, bt, intent, level)
	respType := "direct"
	if err != nil {
		g.log.Warn("opening generation failed, using template", "error", err)
		body = fallbackOpening(bt)
		respType = "template_fallback"
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(body))
	for _, q := range questions {
		b.WriteString("\n\n")
		b.WriteString(q)
	}

	return Opening{
		Text:              b.String(),
		ResponseType:      respType,
		BuildingType:      bt,
		Confidence:        conf,
		Intent:            intent,
		Dimension:         dim,
		FollowUpQuestions: questions,
	}
}

// ClassifyIntent reads the student's intent from surface features. A
// direct question is a focused inquiry; a request to "tell me about"
// or "overview" reads as broad; everything else is guided exploration.
func ClassifyIntent(message string) Intent {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "overview") || strings.Contains(lower, "tell me about") ||
		strings.Contains(lower, "everything about") || strings.Contains(lower, "in general"):
		return BroadOverview
	case strings.Contains(lower, "?") && !strings.Contains(lower, "where do i start") &&
		!strings.Contains(lower, "how do i begin"):
		return FocusedInquiry
	default:
		return GuidedExploration
	}
}

// PrimaryDimension selects the dominant design dimension by keyword
// score. With no hits at all, functional is the default: program is
// where every project starts.
func PrimaryDimension(message string) Dimension {
	lower := strings.ToLower(message)
	best := DimFunctional
	bestScore := 0
	for _, entry := range dimensionKeywords {
		score := 0
		for _, w := range entry.words {
			score += strings.Count(lower, w)
		}
		if score > bestScore {
			bestScore = score
			best = entry.dim
		}
	}
	return best
}

// FollowUpQuestions tailors one to three questions to the student's
// level: concrete for beginners, integrative for intermediates,
// critical for advanced students.
func FollowUpQuestions(level state.SkillLevel, bt string, dim Dimension) []string {
	project := "your project"
	if bt != "" && bt != buildingtype.Unknown {
		project = "your " + strings.ReplaceAll(bt, "_", " ")
	}
	switch level {
	case state.SkillBeginner:
		return []string{
			fmt.Sprintf("Who will use %s most, and what will they do there?", project),
			"What is one building you have visited that felt right for this kind of use?",
		}
	case state.SkillAdvanced, state.SkillExpert:
		return []string{
			fmt.Sprintf("What position are you taking with %s, and what would falsify it?", project),
			fmt.Sprintf("Which %s constraint do you expect to resist your parti the hardest?", dim),
		}
	default:
		return []string{
			fmt.Sprintf("How do you see the %s demands of %s shaping its organization?", dim, project),
			"What site or context conditions are already pushing back on your ideas?",
		}
	}
}

func (g *Generator) compose(ctx context.Context, message, bt string, intent Intent, level state.SkillLevel) (string, error) {
	project := "an architectural project"
	if bt != "" && bt != buildingtype.Unknown {
		project = "a " + strings.ReplaceAll(bt, "_", " ") + " project"
	}
	system := fmt.Sprintf(`You are a warm, rigorous architecture mentor welcoming a %s-level
student starting %s. Write a short opening (two to four sentences) that shows
you understood their message and frames how you will work together. Do not
ask questions; they are appended separately. Intent: %s.`, level, project, intent)
	return g.llm.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: message},
	}, llm.Params{Tier: llm.TierLarge, Temperature: 0.6, MaxTokens: 250})
}

func fallbackOpening(bt string) string {
	if bt != "" && bt != buildingtype.Unknown {
		return fmt.Sprintf("I'm excited to help you explore your %s design. "+
			"Let's start by understanding what interests you most.",
			strings.ReplaceAll(bt, "_", " "))
	}
	return "I'm excited to help you explore your design project. " +
		"Let's start by understanding what interests you most."
}
