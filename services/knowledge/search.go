// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package knowledge provides the vector-search boundary for the mentoring
// core.
//
// The core consumes search(query, k) -> hits; the Weaviate-backed
// implementation lives behind the Searcher interface so tests and
// no-database deployments can use the in-memory Static searcher instead.
package knowledge

import (
	"context"
	"sort"
	"strings"
)

// DefaultK is the retrieval depth used when the caller passes k <= 0.
const DefaultK = 3

// Metadata describes the provenance of a hit.
type Metadata struct {
	Title      string `json:"title"`
	Author     string `json:"author"`
	SourceType string `json:"source_type"`
}

// Hit is a single retrieval result.
type Hit struct {
	// Content is the retrieved passage text.
	Content string `json:"content"`

	// Metadata identifies the source.
	Metadata Metadata `json:"metadata"`

	// Similarity is a cosine-like score in [0, 1].
	Similarity float64 `json:"similarity"`
}

// Searcher is the knowledge retrieval boundary.
//
// Implementations must be safe for concurrent use and must return hits
// sorted by descending similarity. An empty result set is not an error.
type Searcher interface {
	// Search returns up to k passages relevant to the query.
	Search(ctx context.Context, query string, k int) ([]Hit, error)
}

// Static is an in-memory Searcher over a fixed corpus. It scores by
// keyword overlap, which is deliberately crude: it exists for degraded
// deployments and tests, not for retrieval quality.
//
// Thread Safety: safe for concurrent use after construction.
type Static struct {
	hits []Hit
}

// Compile-time interface check.
var _ Searcher = (*Static)(nil)

// NewStatic creates a Static searcher over the given corpus.
func NewStatic(corpus []Hit) *Static {
	return &Static{hits: corpus}
}

// Search implements Searcher using token-overlap scoring.
func (s *Static) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = DefaultK
	}

	qTokens := tokenSet(query)
	if len(qTokens) == 0 {
		return nil, nil
	}

	scored := make([]Hit, 0, len(s.hits))
	for _, h := range s.hits {
		overlap := 0
		for tok := range tokenSet(h.Content + " " + h.Metadata.Title) {
			if qTokens[tok] {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		h.Similarity = float64(overlap) / float64(len(qTokens))
		if h.Similarity > 1 {
			h.Similarity = 1
		}
		scored = append(scored, h)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// tokenSet lowercases and splits text into a set of words.
func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if len(tok) > 2 {
			set[tok] = true
		}
	}
	return set
}
