// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classifier

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"gopkg.in/yaml.v3"
)

var classifierTracer = otel.Tracer("archmentor.mentor.classifier")

//go:embed markers.yaml
var markersYAML []byte

// markerTable is the parsed markers.yaml.
type markerTable struct {
	FeedbackMarkers       []string `yaml:"feedback_markers"`
	ExampleMarkers        []string `yaml:"example_markers"`
	TechnicalMarkers      []string `yaml:"technical_markers"`
	ConfusionMarkers      []string `yaml:"confusion_markers"`
	ExploratoryMarkers    []string `yaml:"exploratory_markers"`
	EvaluationMarkers     []string `yaml:"evaluation_markers"`
	OverconfidenceMarkers []string `yaml:"overconfidence_markers"`
	HedgeMarkers          []string `yaml:"hedge_markers"`
	ModalMarkers          []string `yaml:"modal_markers"`
	DomainTerms           []string `yaml:"domain_terms"`
}

var (
	markersOnce sync.Once
	markers     *markerTable
	markersErr  error
)

func loadMarkers() (*markerTable, error) {
	markersOnce.Do(func() {
		var t markerTable
		if err := yaml.Unmarshal(markersYAML, &t); err != nil {
			markersErr = fmt.Errorf("classifier: parse markers.yaml: %w", err)
			return
		}
		if len(t.DomainTerms) == 0 || len(t.ConfusionMarkers) == 0 {
			markersErr = fmt.Errorf("classifier: marker table incomplete")
			return
		}
		markers = &t
	})
	return markers, markersErr
}

// Classifier produces a Record for the latest student message.
//
// Thread Safety: safe for concurrent use after construction.
type Classifier struct{}

// New creates a Classifier. The marker table is validated lazily on the
// first Classify call.
func New() *Classifier {
	return &Classifier{}
}

// Classify labels the message. priorUserMessages is the count of user
// messages before this one; zero marks the first message.
//
// Classification never fails: a marker-table defect degrades to
// DefaultRecord.
func (c *Classifier) Classify(ctx context.Context, input string, priorUserMessages int) *Record {
	_, span := classifierTracer.Start(ctx, "Classifier.Classify")
	defer span.End()

	t, err := loadMarkers()
	if err != nil {
		span.SetAttributes(attribute.Bool("classifier.degraded", true))
		return DefaultRecord(input)
	}

	lower := strings.ToLower(input)
	isFirst := priorUserMessages == 0

	rec := &Record{
		UserInput:           input,
		IsFirstMessage:      isFirst,
		ConfusionScore:      countHits(lower, t.ConfusionMarkers),
		OverconfidenceScore: countHits(lower, t.OverconfidenceMarkers),
	}

	rec.InteractionType = c.interactionType(lower, isFirst, t)
	rec.ConfidenceLevel = c.confidenceLevel(lower, rec.ConfusionScore, rec.OverconfidenceScore, t)
	rec.UnderstandingLevel = c.understandingLevel(lower, t)
	rec.EngagementLevel = engagementByWordCount(input)

	span.SetAttributes(
		attribute.String("classifier.interaction_type", string(rec.InteractionType)),
		attribute.String("classifier.confidence_level", string(rec.ConfidenceLevel)),
		attribute.String("classifier.understanding", string(rec.UnderstandingLevel)),
	)
	return rec
}

// interactionType applies the priority-ordered decision list. First match
// wins; the order is part of the routing contract.
func (c *Classifier) interactionType(lower string, isFirst bool, t *markerTable) InteractionType {
	switch {
	case isFirst:
		return FirstMessage
	case anyHit(lower, t.FeedbackMarkers):
		return FeedbackRequest
	case anyHit(lower, t.ExampleMarkers):
		return ExampleRequest
	case anyHit(lower, t.TechnicalMarkers):
		return TechnicalQuestion
	case anyHit(lower, t.ConfusionMarkers):
		return ConfusionExpression
	case anyHit(lower, t.ExploratoryMarkers):
		return ExploratoryStatement
	case anyHit(lower, t.EvaluationMarkers):
		return EvaluationRequest
	default:
		return GeneralStatement
	}
}

// confidenceLevel bands self-assurance. Overconfidence markers dominate;
// confusion or hedging reads as uncertain; bare modal verbs as confident.
func (c *Classifier) confidenceLevel(lower string, confusion, overconfidence int, t *markerTable) ConfidenceLevel {
	hedges := countHits(lower, t.HedgeMarkers)
	modals := countHits(lower, t.ModalMarkers)
	switch {
	case overconfidence > 0:
		return ConfidenceOverconfident
	case confusion > 0 || (hedges > 0 && hedges >= modals):
		return ConfidenceUncertain
	case modals > 0:
		return ConfidenceConfident
	default:
		return ConfidenceNeutral
	}
}

// understandingLevel counts curated domain-term occurrences.
func (c *Classifier) understandingLevel(lower string, t *markerTable) Level {
	hits := countHits(lower, t.DomainTerms)
	switch {
	case hits >= 2:
		return LevelHigh
	case hits == 1:
		return LevelMedium
	default:
		return LevelLow
	}
}

// engagementByWordCount bands engagement by message length: high above 10
// words, medium at 5-10, low below.
func engagementByWordCount(input string) Level {
	words := len(strings.Fields(input))
	switch {
	case words > 10:
		return LevelHigh
	case words >= 5:
		return LevelMedium
	default:
		return LevelLow
	}
}

// anyHit reports whether any marker occurs in the text.
func anyHit(lower string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// countHits counts how many distinct markers occur in the text.
func countHits(lower string, markers []string) int {
	n := 0
	for _, m := range markers {
		if strings.Contains(lower, m) {
			n++
		}
	}
	return n
}
