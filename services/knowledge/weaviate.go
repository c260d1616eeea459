// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var weaviateTracer = otel.Tracer("archmentor.knowledge.weaviate")

// ClassName is the Weaviate class holding architectural knowledge passages.
const ClassName = "ArchKnowledge"

// WeaviateConfig configures the Weaviate-backed searcher.
type WeaviateConfig struct {
	// Host is the Weaviate endpoint, e.g. "localhost:8080".
	Host string

	// Scheme is "http" or "https". Default: http.
	Scheme string

	// Timeout is the per-search deadline. Default: 5s.
	Timeout time.Duration

	// Logger for query logging. Nil uses slog.Default().
	Logger *slog.Logger
}

// WeaviateSearcher implements Searcher against a Weaviate instance.
//
// Identical concurrent queries are coalesced through singleflight so a
// burst of sessions asking the same question costs one round trip.
//
// Thread Safety: safe for concurrent use.
type WeaviateSearcher struct {
	client  *weaviate.Client
	timeout time.Duration
	logger  *slog.Logger
	group   singleflight.Group
}

// Compile-time interface check.
var _ Searcher = (*WeaviateSearcher)(nil)

// NewWeaviateSearcher creates a searcher from the given config.
func NewWeaviateSearcher(cfg WeaviateConfig) (*WeaviateSearcher, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("weaviate: host is required")
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.Host,
		Scheme: cfg.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("weaviate: create client: %w", err)
	}

	return &WeaviateSearcher{
		client:  client,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}, nil
}

// knowledgeQueryResponse mirrors the GraphQL Get response shape.
type knowledgeQueryResponse struct {
	Get struct {
		ArchKnowledge []knowledgeResult `json:"ArchKnowledge"`
	} `json:"Get"`
}

// knowledgeResult is a single passage from a query.
type knowledgeResult struct {
	Content    string `json:"content"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	SourceType string `json:"source_type"`
	Additional struct {
		Certainty *float64 `json:"certainty"`
	} `json:"_additional"`
}

// Search implements Searcher using a nearText query.
func (s *WeaviateSearcher) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	ctx, span := weaviateTracer.Start(ctx, "WeaviateSearcher.Search")
	defer span.End()

	if k <= 0 {
		k = DefaultK
	}
	span.SetAttributes(attribute.Int("knowledge.k", k))

	key := fmt.Sprintf("%d|%s", k, query)
	// The shared fetch must not inherit any one caller's cancellation:
	// coalesced callers would see the first caller's context error. The
	// per-query timeout inside search still bounds the call.
	v, err, shared := s.group.Do(key, func() (any, error) {
		return s.search(context.WithoutCancel(ctx), query, k)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if shared {
		s.logger.Debug("coalesced duplicate knowledge query", "query", query)
	}
	return v.([]Hit), nil
}

func (s *WeaviateSearcher) search(ctx context.Context, query string, k int) ([]Hit, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	nearText := s.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "title"},
		{Name: "author"},
		{Name: "source_type"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	resp, err := s.client.GraphQL().Get().
		WithClassName(ClassName).
		WithNearText(nearText).
		WithFields(fields...).
		WithLimit(k).
		Do(queryCtx)
	if err != nil {
		return nil, fmt.Errorf("weaviate: query: %w", err)
	}

	parsed, err := parseGraphQLResponse[knowledgeQueryResponse](resp)
	if err != nil {
		return nil, fmt.Errorf("weaviate: parse response: %w", err)
	}

	hits := make([]Hit, 0, len(parsed.Get.ArchKnowledge))
	for _, r := range parsed.Get.ArchKnowledge {
		hit := Hit{
			Content: r.Content,
			Metadata: Metadata{
				Title:      r.Title,
				Author:     r.Author,
				SourceType: r.SourceType,
			},
		}
		if r.Additional.Certainty != nil {
			hit.Similarity = clamp01(*r.Additional.Certainty)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// EnsureSchema creates the ArchKnowledge class if it does not exist.
//
// Idempotent: a pre-existing class is left untouched.
func (s *WeaviateSearcher) EnsureSchema(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().
		WithClassName(ClassName).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate: check schema: %w", err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:       ClassName,
		Description: "Architectural knowledge passages for the mentoring core",
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "title", DataType: []string{"text"}},
			{Name: "author", DataType: []string{"text"}},
			{Name: "source_type", DataType: []string{"text"}},
		},
	}

	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("weaviate: create class: %w", err)
	}
	s.logger.Info("created knowledge schema", "class", ClassName)
	return nil
}

// parseGraphQLResponse converts Weaviate's dynamic response into a typed
// struct via a marshal round trip.
func parseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal response data: %w", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal into target type: %w", err)
	}
	return &out, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
