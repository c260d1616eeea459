// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package buildingtype extracts the project's building type from free text
// using a priority-weighted keyword table.
//
// The table lives in keywords.yaml (embedded) so the rules stay auditable
// as data rather than code. Detection is the single authoritative source
// for a session's building type: it runs on the design brief, or on the
// first user message when no brief exists, and never re-runs on later
// messages except to raise confidence.
package buildingtype

import (
	_ "embed"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var keywordsYAML []byte

// MinScore is the minimum winning score; anything below returns "unknown".
const MinScore = 5

// Unknown is returned when no type reaches MinScore.
const Unknown = "unknown"

// Confidence levels written at the two authoritative call sites.
const (
	BriefConfidence        = 0.9
	FirstMessageConfidence = 0.8
)

// Entry is one row of the keyword table.
type Entry struct {
	Type     string   `yaml:"type"`
	Category string   `yaml:"category"`
	Priority int      `yaml:"priority"`
	Keywords []string `yaml:"keywords"`
}

// table is the parsed keyword table.
type table struct {
	BuildingTypes []Entry `yaml:"building_types"`
}

var (
	loadOnce    sync.Once
	loadedTable *table
	loadErr     error
)

// loadTable parses the embedded YAML once.
func loadTable() (*table, error) {
	loadOnce.Do(func() {
		var t table
		if err := yaml.Unmarshal(keywordsYAML, &t); err != nil {
			loadErr = fmt.Errorf("buildingtype: parse keywords.yaml: %w", err)
			return
		}
		if len(t.BuildingTypes) == 0 {
			loadErr = fmt.Errorf("buildingtype: empty keyword table")
			return
		}
		for _, e := range t.BuildingTypes {
			if e.Priority < 2 || e.Priority > 12 {
				loadErr = fmt.Errorf("buildingtype: %s priority %d out of range [2,12]", e.Type, e.Priority)
				return
			}
		}
		loadedTable = &t
	})
	return loadedTable, loadErr
}

// Detection is the outcome of scoring one text.
type Detection struct {
	// Type is the winning building type, or Unknown.
	Type string

	// Score is the raw keyword score of the winner.
	Score int

	// Category is the winner's category (cultural, healthcare, ...).
	Category string
}

// Detect scores the text against the keyword table.
//
// Scoring per entry: keyword hits x priority, +5 for an exact single-token
// match, +2 per multi-word keyword hit, +1 per occurrence beyond the
// first. The best-scoring type wins if its score reaches MinScore.
func Detect(text string) Detection {
	t, err := loadTable()
	if err != nil {
		// Table is embedded; a parse failure is a build defect. Degrade
		// to unknown rather than panicking in a conversation turn.
		return Detection{Type: Unknown}
	}

	lower := strings.ToLower(text)
	trimmed := strings.TrimSpace(lower)
	tokens := tokenize(lower)

	best := Detection{Type: Unknown}
	for _, entry := range t.BuildingTypes {
		score := scoreEntry(lower, trimmed, tokens, entry)
		if score > best.Score {
			best = Detection{Type: entry.Type, Score: score, Category: entry.Category}
		}
	}
	if best.Score < MinScore {
		return Detection{Type: Unknown, Score: best.Score}
	}
	return best
}

// Confidence maps a raw score into [0, 1] with a saturating curve. Brief
// and first-message call sites override this with their fixed floors.
func Confidence(score int) float64 {
	if score <= 0 {
		return 0
	}
	c := 0.4 + 0.06*math.Sqrt(float64(score))
	if c > 1 {
		return 1
	}
	return c
}

// DetectWithConfidence returns the winning type and its mapped confidence.
func DetectWithConfidence(text string) (string, float64) {
	d := Detect(text)
	if d.Type == Unknown {
		return Unknown, 0
	}
	return d.Type, Confidence(d.Score)
}

// scoreEntry computes the score for one table entry.
//
// The +5 exact-match bonus applies only when the entire input is that
// single token; it rewards terse inputs like "library", not any hit.
func scoreEntry(lower, trimmed string, tokens map[string]int, entry Entry) int {
	score := 0
	for _, kw := range entry.Keywords {
		kw = strings.ToLower(kw)
		multiWord := strings.Contains(kw, " ") || strings.Contains(kw, "-")

		var hits int
		if multiWord {
			hits = strings.Count(lower, kw)
		} else {
			hits = tokens[kw]
		}
		if hits == 0 {
			continue
		}

		score += hits * entry.Priority
		if multiWord {
			score += 2
		}
		if !multiWord && trimmed == kw {
			score += 5
		}
		if hits > 1 {
			score += hits - 1
		}
	}
	return score
}

var tokenPattern = regexp.MustCompile(`[a-z]+(?:'[a-z]+)?`)

// tokenize counts word occurrences in lowercased text.
func tokenize(lower string) map[string]int {
	counts := make(map[string]int)
	for _, tok := range tokenPattern.FindAllString(lower, -1) {
		counts[tok]++
	}
	return counts
}

// Types returns all known building type names. Used for validation and
// prompt construction.
func Types() []string {
	t, err := loadTable()
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(t.BuildingTypes))
	for _, e := range t.BuildingTypes {
		out = append(out, e.Type)
	}
	return out
}
