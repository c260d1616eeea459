// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package knowledge

import (
	"context"
	"testing"
)

func testCorpus() []Hit {
	return []Hit{
		{
			Content:  "ADA door clearances require a minimum clear width of 32 inches for accessible routes in public buildings.",
			Metadata: Metadata{Title: "Accessibility Standards", SourceType: "code"},
		},
		{
			Content:  "Library reading rooms benefit from daylight control and acoustic zoning between stacks and study areas.",
			Metadata: Metadata{Title: "Library Design Patterns", SourceType: "book"},
		},
		{
			Content:  "Adaptive reuse of warehouses preserves embodied carbon while allowing generous community program volumes.",
			Metadata: Metadata{Title: "Adaptive Reuse", SourceType: "article"},
		},
	}
}

func TestStatic_Search_RanksByOverlap(t *testing.T) {
	s := NewStatic(testCorpus())

	hits, err := s.Search(context.Background(), "door width requirements for accessible public buildings", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected at least one hit")
	}
	if hits[0].Metadata.Title != "Accessibility Standards" {
		t.Errorf("top hit = %q, want Accessibility Standards", hits[0].Metadata.Title)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Similarity > hits[i-1].Similarity {
			t.Errorf("hits not sorted descending at %d: %f > %f", i, hits[i].Similarity, hits[i-1].Similarity)
		}
	}
	for _, h := range hits {
		if h.Similarity < 0 || h.Similarity > 1 {
			t.Errorf("similarity %f out of [0,1]", h.Similarity)
		}
	}
}

func TestStatic_Search_EmptyResultIsNotError(t *testing.T) {
	s := NewStatic(testCorpus())
	hits, err := s.Search(context.Background(), "zzz qqq xxx", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestStatic_Search_DefaultK(t *testing.T) {
	corpus := testCorpus()
	corpus = append(corpus, corpus...)
	s := NewStatic(corpus)

	hits, err := s.Search(context.Background(), "library community buildings accessible design", 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) > DefaultK {
		t.Errorf("got %d hits, want at most %d", len(hits), DefaultK)
	}
}

func TestStatic_Search_CancelledContext(t *testing.T) {
	s := NewStatic(testCorpus())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Search(ctx, "library", 3); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestDefaultCorpus(t *testing.T) {
	corpus, err := DefaultCorpus()
	if err != nil {
		t.Fatalf("DefaultCorpus() error = %v", err)
	}
	if len(corpus) == 0 {
		t.Fatal("embedded corpus is empty")
	}
	for i, hit := range corpus {
		if hit.Content == "" {
			t.Errorf("passage %d has no content", i)
		}
		if hit.Metadata.Title == "" {
			t.Errorf("passage %d has no title", i)
		}
	}

	s := NewStatic(corpus)
	hits, err := s.Search(context.Background(), "accessible door width clearance", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) == 0 {
		t.Error("expected hits against the seed corpus")
	}
}
