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
	"github.com/atelierlabs/archmentor/services/knowledge"
	"github.com/atelierlabs/archmentor/services/llm"
	"github.com/atelierlabs/archmentor/services/mentor/classifier"
	"github.com/atelierlabs/archmentor/services/mentor/routing"
)

// MinKnowledgeConfidence is the retrieval score below which results are
// treated as no knowledge.
const MinKnowledgeConfidence = 0.2

// Knowledge is the aggregated retrieval result for one query.
type Knowledge struct {
	Content      string   `json:"content"`
	Citations    []string `json:"citations"`
	Confidence   float64  `json:"confidence"`
	HasKnowledge bool     `json:"has_knowledge"`
}

// ExampleProject is a precedent returned for example requests.
type ExampleProject struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	URL     string `json:"url,omitempty"`
}

// DomainExpert delivers factual architectural knowledge grounded in
// retrieval, with citations. When retrieval yields nothing usable it
// falls back to LLM-only generation, marked generated_fallback.
type DomainExpert struct {
	search knowledge.Searcher
	llm    llm.Client
	log    *logging.Logger
}

// NewDomainExpert constructs the domain expert.
func NewDomainExpert(search knowledge.Searcher, client llm.Client, log *logging.Logger) *DomainExpert {
	if log == nil {
		log = logging.Default()
	}
	return &DomainExpert{search: search, llm: client, log: log}
}

var _ Specialist = (*DomainExpert)(nil)

// Name implements Specialist.
func (d *DomainExpert) Name() routing.AgentName { return routing.AgentDomainExpert }

// GetKnowledge retrieves up to k passages for query and aggregates them.
// Confidence is the best retrieval score. Empty retrieval is not an
// error: HasKnowledge is simply false.
func (d *DomainExpert) GetKnowledge(ctx context.Context, query string, k int) (Knowledge, error) {
	if k <= 0 {
		k = knowledge.DefaultK
	}
	hits, err := d.search.Search(ctx, query, k)
	if err != nil {
		return Knowledge{}, fmt.Errorf("knowledge search: %w", err)
	}
	kn := Knowledge{}
	var parts []string
	for _, h := range hits {
		if h.Similarity > kn.Confidence {
			kn.Confidence = h.Similarity
		}
		parts = append(parts, strings.TrimSpace(h.Content))
		kn.Citations = append(kn.Citations, citation(h))
	}
	kn.Content = strings.Join(parts, "\n\n")
	kn.HasKnowledge = len(hits) >= 1 && kn.Confidence >= MinKnowledgeConfidence
	return kn, nil
}

// GetExampleProjects asks the LLM for precedent projects matching query.
func (d *DomainExpert) GetExampleProjects(ctx context.Context, query string) ([]ExampleProject, error) {
	system := `You are an architecture historian. Name two or three built precedent
projects relevant to the request. For each, give the project name and a one
sentence summary. Format each as "Title: summary." on its own line.`
	out, err := d.llm.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: query},
	}, llm.Params{Tier: llm.TierLarge, Temperature: 0.4, MaxTokens: 300})
	if err != nil {
		return nil, err
	}
	var projects []ExampleProject
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line == "" {
			continue
		}
		title, summary, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		projects = append(projects, ExampleProject{
			Title:   strings.TrimSpace(title),
			Summary: strings.TrimSpace(summary),
		})
	}
	return projects, nil
}

// Run implements Specialist; it is the provide_knowledge aggregation.
func (d *DomainExpert) Run(ctx context.Context, in *Inputs) *Result {
	ctx, span := tracer.Start(ctx, "agents.domainexpert.run")
	defer span.End()

	if !routing.Activates(in.Route, d.Name()) {
		return Skipped(d.Name(), in.Route)
	}
	query := d.buildQuery(in)
	span.SetAttributes(attribute.String("query", query))

	kn, err := d.GetKnowledge(ctx, query, knowledge.DefaultK)
	if err != nil {
		d.log.Warn("retrieval failed, generating without sources", "error", err)
	}

	if kn.HasKnowledge {
		text, genErr := d.explain(ctx, in, kn)
		if genErr != nil {
			// Retrieval succeeded; surface the raw passages rather than
			// dropping the turn's knowledge.
			text = kn.Content
		}
		return &Result{
			Agent:        d.Name(),
			ResponseText: sanitizeEnding(text),
			ResponseType: ResponseDirect,
			Metadata: map[string]any{
				"citations":  kn.Citations,
				"confidence": kn.Confidence,
			},
		}
	}

	text, genErr := d.generateWithoutSources(ctx, in, query)
	if genErr != nil {
		return Errored(d.Name(), genErr)
	}
	return &Result{
		Agent:        d.Name(),
		ResponseText: sanitizeEnding(text),
		ResponseType: ResponseGeneratedFallback,
		Metadata:     map[string]any{"confidence": kn.Confidence},
	}
}

func (d *DomainExpert) buildQuery(in *Inputs) string {
	query := strings.TrimSpace(in.LastMessage())
	if in.Gap != "" {
		query = in.Gap + " " + query
	}
	bt := in.State.ConversationContext.DetectedBuildingType
	if bt != "" && bt != "unknown" && !strings.Contains(strings.ToLower(query), strings.ReplaceAll(bt, "_", " ")) {
		query += " " + strings.ReplaceAll(bt, "_", " ")
	}
	return query
}

func (d *DomainExpert) explain(ctx context.Context, in *Inputs, kn Knowledge) (string, error) {
	level := "an intermediate"
	if in.State != nil {
		level = "a " + string(in.State.StudentProfile.SkillLevel)
	}
	system := fmt.Sprintf(`You are an architecture domain expert mentoring %s student.
Explain the relevant knowledge below in your own words, grounded strictly in
the provided passages. Be concrete and brief. Do not end with instructions
or a list of steps.`, level)
	user := fmt.Sprintf("Student asked: %q\n\nPassages:\n%s", in.LastMessage(), kn.Content)
	return d.llm.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, llm.Params{Tier: llm.TierLarge, Temperature: 0.4, MaxTokens: 350})
}

func (d *DomainExpert) generateWithoutSources(ctx context.Context, in *Inputs, query string) (string, error) {
	if in.Classification != nil && in.Classification.InteractionType == classifier.ExampleRequest {
		projects, err := d.GetExampleProjects(ctx, query)
		if err == nil && len(projects) > 0 {
			var b strings.Builder
			b.WriteString("A few precedents worth studying:\n")
			for _, p := range projects {
				fmt.Fprintf(&b, "- %s: %s\n", p.Title, p.Summary)
			}
			return b.String(), nil
		}
	}
	system := `You are an architecture domain expert. Answer the student's question
concisely from general architectural knowledge. Note briefly that this is
general guidance. Do not end with instructions or a list of steps.`
	return d.llm.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: query},
	}, llm.Params{Tier: llm.TierLarge, Temperature: 0.5, MaxTokens: 350})
}

// sanitizeEnding strips a trailing imperative so knowledge never closes
// with an instruction. The open question for knowledge_only is appended
// later by the synthesizer.
func sanitizeEnding(text string) string {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)
	for _, bad := range []string{"follow these steps", "do the following", "complete these steps"} {
		if strings.HasSuffix(strings.TrimRight(lower, ".!"), bad) {
			if idx := strings.LastIndex(lower, bad); idx > 0 {
				return strings.TrimSpace(strings.TrimRight(text[:idx], " :,.;"))
			}
		}
	}
	return text
}

func citation(h knowledge.Hit) string {
	title := h.Metadata.Title
	if title == "" {
		title = "untitled source"
	}
	if h.Metadata.Author != "" {
		return fmt.Sprintf("%s (%s)", title, h.Metadata.Author)
	}
	return title
}
