// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package firstresponse

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/atelierlabs/archmentor/services/llm"
	"github.com/atelierlabs/archmentor/services/mentor/state"
)

type fakeLLM struct {
	reply string
	err   error
}

func (f *fakeLLM) Chat(_ context.Context, _ []llm.Message, _ llm.Params) (string, error) {
	return f.reply, f.err
}

func TestGenerate_DetectsBuildingType(t *testing.T) {
	g := New(&fakeLLM{reply: "Welcome! A community library is a rich brief."}, nil)
	st := state.NewSession("s1", "architecture")
	msg := "I'm designing a public library for my neighborhood and I don't know where to start"
	st.AppendMessage(state.RoleUser, msg)

	out := g.Generate(context.Background(), st, msg)
	if out.BuildingType != "library" {
		t.Fatalf("building_type = %q, want library", out.BuildingType)
	}
	if out.Confidence < 0.8 {
		t.Errorf("confidence = %v, want >= 0.8", out.Confidence)
	}
	if st.ConversationContext.DetectedBuildingType != "library" {
		t.Errorf("session building type = %q", st.ConversationContext.DetectedBuildingType)
	}
	if !strings.Contains(out.Text, "?") {
		t.Error("opening must include at least one question")
	}
}

func TestGenerate_TemplateFallbackOnLLMFailure(t *testing.T) {
	g := New(&fakeLLM{err: errors.New("offline")}, nil)
	st := state.NewSession("s2", "architecture")
	msg := "I'm starting a museum design studio project"
	st.AppendMessage(state.RoleUser, msg)

	out := g.Generate(context.Background(), st, msg)
	if out.ResponseType != "template_fallback" {
		t.Fatalf("response_type = %q, want template_fallback", out.ResponseType)
	}
	if !strings.Contains(out.Text, "I'm excited to help you explore") {
		t.Errorf("fallback template missing: %q", out.Text)
	}
	n := strings.Count(out.Text, "?")
	if n < 1 || n > 3 {
		t.Errorf("question count = %d, want 1..3", n)
	}
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		message string
		want    Intent
	}{
		{"Can you give me an overview of museum design", BroadOverview},
		{"tell me about concert hall acoustics", BroadOverview},
		{"What ceiling height does a gym need?", FocusedInquiry},
		{"I'm designing a school and I don't know where to start", GuidedExploration},
		{"how do i begin? it's a housing project", GuidedExploration},
	}
	for _, tt := range tests {
		if got := ClassifyIntent(tt.message); got != tt.want {
			t.Errorf("ClassifyIntent(%q) = %s, want %s", tt.message, got, tt.want)
		}
	}
}

func TestPrimaryDimension(t *testing.T) {
	tests := []struct {
		message string
		want    Dimension
	}{
		{"the circulation and spatial flow of the plan", DimSpatial},
		{"what structural system and materials should I use", DimTechnical},
		{"a passive, energy efficient green building", DimSustainable},
		{"the site and urban context matter most", DimContextual},
		{"no keywords at all here", DimFunctional},
	}
	for _, tt := range tests {
		if got := PrimaryDimension(tt.message); got != tt.want {
			t.Errorf("PrimaryDimension(%q) = %s, want %s", tt.message, got, tt.want)
		}
	}
}

func TestFollowUpQuestions_ByLevel(t *testing.T) {
	for _, level := range []state.SkillLevel{
		state.SkillBeginner, state.SkillIntermediate, state.SkillAdvanced,
	} {
		qs := FollowUpQuestions(level, "library", DimSpatial)
		if len(qs) < 1 || len(qs) > 3 {
			t.Fatalf("%s: %d questions, want 1..3", level, len(qs))
		}
		for _, q := range qs {
			if !strings.HasSuffix(q, "?") {
				t.Errorf("%s: not a question: %q", level, q)
			}
		}
	}
	beginner := FollowUpQuestions(state.SkillBeginner, "library", DimSpatial)
	if !strings.Contains(strings.Join(beginner, " "), "library") {
		t.Error("beginner questions should name the project type")
	}
}
