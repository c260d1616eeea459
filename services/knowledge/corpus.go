// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package knowledge

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed corpus.yaml
var corpusYAML []byte

type corpusFile struct {
	Passages []struct {
		Title   string `yaml:"title"`
		Author  string `yaml:"author"`
		Content string `yaml:"content"`
	} `yaml:"passages"`
}

var (
	corpusOnce sync.Once
	corpusHits []Hit
	corpusErr  error
)

// DefaultCorpus returns the embedded seed corpus. It backs the Static
// searcher in deployments without a vector database.
func DefaultCorpus() ([]Hit, error) {
	corpusOnce.Do(func() {
		var f corpusFile
		if err := yaml.Unmarshal(corpusYAML, &f); err != nil {
			corpusErr = fmt.Errorf("parse embedded corpus: %w", err)
			return
		}
		for _, p := range f.Passages {
			corpusHits = append(corpusHits, Hit{
				Content:  p.Content,
				Metadata: Metadata{Title: p.Title, Author: p.Author},
			})
		}
	})
	return corpusHits, corpusErr
}
