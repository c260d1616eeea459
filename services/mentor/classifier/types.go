// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package classifier labels the latest student message along four axes:
// interaction type, understanding, confidence, and engagement.
//
// Classification is deterministic and rule-based; the marker word lists
// live in markers.yaml so the rules stay auditable as data. The record it
// produces drives the routing decision tree.
package classifier

// InteractionType is the primary label for a student message. Exactly one
// applies per message, decided in priority order.
type InteractionType string

const (
	FirstMessage         InteractionType = "first_message"
	ExampleRequest       InteractionType = "example_request"
	FeedbackRequest      InteractionType = "feedback_request"
	TechnicalQuestion    InteractionType = "technical_question"
	ConfusionExpression  InteractionType = "confusion_expression"
	ExploratoryStatement InteractionType = "exploratory_statement"
	EvaluationRequest    InteractionType = "evaluation_request"
	GeneralStatement     InteractionType = "general_statement"
	HelpRequest          InteractionType = "help_request"
)

// Level is a coarse low/medium/high band.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// ConfidenceLevel bands how sure of themselves the student sounds.
type ConfidenceLevel string

const (
	ConfidenceUncertain     ConfidenceLevel = "uncertain"
	ConfidenceNeutral       ConfidenceLevel = "neutral"
	ConfidenceConfident     ConfidenceLevel = "confident"
	ConfidenceOverconfident ConfidenceLevel = "overconfident"
)

// Record is the full classification of one student message.
type Record struct {
	InteractionType     InteractionType `json:"interaction_type"`
	UnderstandingLevel  Level           `json:"understanding_level"`
	ConfidenceLevel     ConfidenceLevel `json:"confidence_level"`
	EngagementLevel     Level           `json:"engagement_level"`
	IsFirstMessage      bool            `json:"is_first_message"`
	ConfusionScore      int             `json:"confusion_score"`
	OverconfidenceScore int             `json:"overconfidence_score"`
	UserInput           string          `json:"user_input"`
}

// DefaultRecord is the fallback classification used when classification
// itself fails: a neutral general statement at medium levels.
func DefaultRecord(input string) *Record {
	return &Record{
		InteractionType:    GeneralStatement,
		UnderstandingLevel: LevelMedium,
		ConfidenceLevel:    ConfidenceNeutral,
		EngagementLevel:    LevelMedium,
		UserInput:          input,
	}
}
