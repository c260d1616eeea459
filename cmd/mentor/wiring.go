// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/atelierlabs/archmentor/pkg/logging"
	"github.com/atelierlabs/archmentor/services/knowledge"
	"github.com/atelierlabs/archmentor/services/llm"
	"github.com/atelierlabs/archmentor/services/mentor/agents"
	"github.com/atelierlabs/archmentor/services/mentor/classifier"
	"github.com/atelierlabs/archmentor/services/mentor/config"
	"github.com/atelierlabs/archmentor/services/mentor/events"
	"github.com/atelierlabs/archmentor/services/mentor/firstresponse"
	"github.com/atelierlabs/archmentor/services/mentor/routing"
	"github.com/atelierlabs/archmentor/services/mentor/synthesis"
	"github.com/atelierlabs/archmentor/services/mentor/workflow"
	"github.com/atelierlabs/archmentor/services/vision"
)

// buildCore assembles the full mentoring pipeline from configuration.
//
// Missing credentials degrade rather than fail: without an OpenAI key
// the LLM boundary reports unavailable and agents fall back to template
// output; without a Weaviate URL retrieval runs on the embedded corpus.
func buildCore(ctx context.Context, cfg config.Config, logger *logging.Logger, metrics prometheus.Registerer) (*workflow.Registry, *events.Monitor, error) {
	var client llm.Client = llm.Disabled{}
	if cfg.OpenAIAPIKey != "" {
		c, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			LargeModel: cfg.OpenAIModel,
			SmallModel: cfg.OpenAISmallModel,
			Timeout:    cfg.LLMTimeout,
			Logger:     logger.Logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("llm client: %w", err)
		}
		client = c
	} else {
		logger.Warn("OPENAI_API_KEY not set, running with template responses only")
	}

	var search knowledge.Searcher
	if cfg.WeaviateURL != "" {
		ws, err := knowledge.NewWeaviateSearcher(knowledge.WeaviateConfig{
			Host:    cfg.WeaviateURL,
			Timeout: cfg.SearchTimeout,
			Logger:  logger.Logger,
		})
		if err != nil {
			logger.Error("Weaviate client failed, falling back to embedded corpus", "error", err)
		} else {
			schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := ws.EnsureSchema(schemaCtx); err != nil {
				logger.Warn("Knowledge schema bootstrap failed; queries may error until the class exists", "error", err)
			}
			cancel()
			search = ws
		}
	}
	if search == nil {
		corpus, err := knowledge.DefaultCorpus()
		if err != nil {
			return nil, nil, fmt.Errorf("embedded corpus: %w", err)
		}
		search = knowledge.NewStatic(corpus)
		logger.Info("Retrieval backed by embedded corpus", "passages", len(corpus))
	}

	monitor := events.NewMonitor(metrics)

	specialists := []agents.Specialist{
		agents.NewSocratic(client, logger),
		agents.NewDomainExpert(search, client, logger),
		agents.NewCognitive(client, logger),
		agents.NewAnalysis(vision.Unconfigured{}, logger),
	}

	orch, err := workflow.NewOrchestrator(
		&cfg,
		agents.NewContextAgent(classifier.New(), logger),
		routing.NewRouter(logger),
		specialists,
		synthesis.New(cfg.MaxResponseWords, logger),
		firstresponse.New(client, logger),
		monitor,
		logger,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("orchestrator: %w", err)
	}

	return workflow.NewRegistry(orch, cfg.Domain), monitor, nil
}
