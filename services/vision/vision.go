// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package vision defines the image-analysis boundary.
//
// The mentoring core never analyzes images itself; it consumes the
// structured result of an external vision subsystem through Analyzer.
package vision

import (
	"context"
	"errors"
	"strings"
)

// ErrUnavailable is returned when no vision backend is configured.
var ErrUnavailable = errors.New("vision: no analyzer configured")

// Result is the structured outcome of analyzing one image.
type Result struct {
	RawAnalysis              string   `json:"raw_analysis"`
	IdentifiedElements       []string `json:"identified_elements"`
	DesignStrengths          []string `json:"design_strengths"`
	ImprovementOpportunities []string `json:"improvement_opportunities"`
	SpatialRelationships     []string `json:"spatial_relationships"`
	AccessibilityNotes       []string `json:"accessibility_notes"`
	ConfidenceScore          float64  `json:"confidence_score"`
	Error                    string   `json:"error,omitempty"`
}

// Summary returns a one-paragraph digest suitable for agent prompts.
func (r *Result) Summary() string {
	if r == nil {
		return ""
	}
	var parts []string
	if len(r.IdentifiedElements) > 0 {
		parts = append(parts, "Elements: "+strings.Join(r.IdentifiedElements, ", "))
	}
	if len(r.DesignStrengths) > 0 {
		parts = append(parts, "Strengths: "+strings.Join(r.DesignStrengths, ", "))
	}
	if len(r.ImprovementOpportunities) > 0 {
		parts = append(parts, "Opportunities: "+strings.Join(r.ImprovementOpportunities, ", "))
	}
	if len(r.AccessibilityNotes) > 0 {
		parts = append(parts, "Accessibility: "+strings.Join(r.AccessibilityNotes, ", "))
	}
	return strings.Join(parts, ". ")
}

// Analyzer is the vision boundary.
//
// Implementations must be safe for concurrent use.
type Analyzer interface {
	// AnalyzeImage analyzes the image at path. The optional analysisContext
	// string carries conversation context (building type, current topic).
	AnalyzeImage(ctx context.Context, path string, analysisContext string) (*Result, error)
}

// Unconfigured is an Analyzer that always reports ErrUnavailable.
type Unconfigured struct{}

// AnalyzeImage implements Analyzer.
func (Unconfigured) AnalyzeImage(_ context.Context, _ string, _ string) (*Result, error) {
	return nil, ErrUnavailable
}
