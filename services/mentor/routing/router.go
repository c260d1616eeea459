// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/atelierlabs/archmentor/pkg/logging"
	"github.com/atelierlabs/archmentor/services/mentor/classifier"
	"github.com/atelierlabs/archmentor/services/mentor/state"
)

var tracer = otel.Tracer("mentor.routing")

// Router walks the priority-ordered rule list and returns exactly one
// Decision per turn.
//
// # Thread Safety
//
// Router is stateless after construction and safe for concurrent use.
type Router struct {
	log *logging.Logger
}

// NewRouter constructs a Router. A nil logger falls back to the package
// default.
func NewRouter(log *logging.Logger) *Router {
	if log == nil {
		log = logging.Default()
	}
	return &Router{log: log}
}

// Decide selects the route for one turn. The rule that fired is recorded
// verbatim in the Decision's Reason so a transcript can be audited
// against the rule list.
func (r *Router) Decide(ctx context.Context, rc *Context) Decision {
	_, span := tracer.Start(ctx, "routing.decide")
	defer span.End()

	d := r.decide(rc)
	span.SetAttributes(
		attribute.String("route", d.Route.String()),
		attribute.String("reason", d.Reason),
	)
	r.log.Debug("route selected", "route", d.Route, "reason", d.Reason, "confidence", d.Confidence)
	return d
}

func (r *Router) decide(rc *Context) Decision {
	cls := rc.Classification
	if cls == nil {
		cls = classifier.DefaultRecord(rc.CurrentInput)
	}

	// Rule 1: the very first student message always opens progressively.
	if cls.IsFirstMessage || cls.InteractionType == classifier.FirstMessage {
		return Decision{ProgressiveOpening, "rule 1: first message", 1.0}
	}

	// Rule 2: a confident context suggestion overrides rules 3-13 when it
	// names a route we know.
	if rc.Suggestions.Confidence >= SuggestionOverrideThreshold && rc.Suggestions.PrimaryRoute.IsValid() {
		return Decision{
			rc.Suggestions.PrimaryRoute,
			fmt.Sprintf("rule 2: suggestion override (%s)", rc.Suggestions.PrimaryRoute),
			rc.Suggestions.Confidence,
		}
	}

	// Rule 3: feedback and evaluation requests get the full panel.
	if cls.InteractionType == classifier.FeedbackRequest || cls.InteractionType == classifier.EvaluationRequest {
		return Decision{MultiAgentComprehensive, "rule 3: feedback or evaluation request", 0.9}
	}

	// Rules 4-5: direct knowledge needs go straight to the domain expert.
	if cls.InteractionType == classifier.TechnicalQuestion &&
		(cls.UnderstandingLevel == classifier.LevelMedium || cls.UnderstandingLevel == classifier.LevelHigh) {
		return Decision{KnowledgeOnly, "rule 4: technical question with adequate understanding", 0.9}
	}
	if cls.InteractionType == classifier.ExampleRequest {
		return Decision{KnowledgeOnly, "rule 5: example request", 0.9}
	}

	// Rule 6: overconfidence earns a challenge before anything else.
	if cls.ConfidenceLevel == classifier.ConfidenceOverconfident {
		return Decision{CognitiveChallenge, "rule 6: overconfident", 0.85}
	}

	// Rule 7: confusion gets short clarifying questions.
	if cls.ConfusionScore > 0 || cls.InteractionType == classifier.ConfusionExpression {
		return Decision{SocraticClarification, "rule 7: confusion detected", 0.85}
	}

	// Rules 8-9: low understanding splits on skill level.
	if cls.UnderstandingLevel == classifier.LevelLow {
		if rc.SkillLevel == state.SkillBeginner {
			return Decision{SupportiveScaffolding, "rule 8: low understanding, beginner", 0.8}
		}
		return Decision{FoundationalBuilding, "rule 9: low understanding", 0.8}
	}

	// Rule 10: disengagement triggers an intervention.
	if cls.EngagementLevel == classifier.LevelLow {
		return Decision{CognitiveIntervention, "rule 10: low engagement", 0.75}
	}

	// Rule 11: exploration invites questions back.
	if cls.InteractionType == classifier.ExploratoryStatement {
		return Decision{SocraticExploration, "rule 11: exploratory statement", 0.8}
	}

	// Rule 12: a sharp topic shift gets acknowledged explicitly.
	if rc.PreviousInput != "" && rc.CurrentInput != "" &&
		jaccard(rc.CurrentInput, rc.PreviousInput) < TopicShiftThreshold {
		return Decision{TopicTransition, "rule 12: topic transition", 0.7}
	}

	return Decision{BalancedGuidance, "rule 13: default", 0.6}
}
