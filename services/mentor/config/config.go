// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config provides environment-driven configuration for the
// mentoring core.
//
// # Environment Variables
//
//   - OPENAI_API_KEY: LLM provider key. Empty runs the core degraded.
//   - OPENAI_MODEL: planning/synthesis model (default: gpt-4o).
//   - OPENAI_SMALL_MODEL: classification model (default: gpt-4o-mini).
//   - OPENAI_BASE_URL: OpenAI-compatible endpoint override.
//   - DOMAIN: mentoring domain (default: architecture).
//   - MAX_RESPONSE_WORDS: synthesis word cap (default: 150).
//   - WEAVIATE_SERVICE_URL: vector DB host, e.g. localhost:8080 (optional).
//   - LLM_TIMEOUT, SEARCH_TIMEOUT, VISION_TIMEOUT: per-call deadlines.
//   - MENTOR_PORT: HTTP adapter port (default: 12400).
//   - LOG_LEVEL: debug, info, warn, error (default: info).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

var configValidate = validator.New()

// Config holds all tunables for the mentoring core.
type Config struct {
	OpenAIAPIKey     string `validate:"omitempty"`
	OpenAIModel      string `validate:"required"`
	OpenAISmallModel string `validate:"required"`
	OpenAIBaseURL    string `validate:"omitempty,url"`

	Domain           string `validate:"required"`
	MaxResponseWords int    `validate:"gte=40,lte=1000"`

	WeaviateURL string `validate:"omitempty"`

	LLMTimeout    time.Duration `validate:"gt=0"`
	SearchTimeout time.Duration `validate:"gt=0"`
	VisionTimeout time.Duration `validate:"gt=0"`

	Port     int    `validate:"gt=0,lte=65535"`
	LogLevel string `validate:"oneof=debug info warn error"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		OpenAIModel:      "gpt-4o",
		OpenAISmallModel: "gpt-4o-mini",
		Domain:           "architecture",
		MaxResponseWords: 150,
		LLMTimeout:       30 * time.Second,
		SearchTimeout:    5 * time.Second,
		VisionTimeout:    30 * time.Second,
		Port:             12400,
		LogLevel:         "info",
	}
}

// FromEnv builds a Config from environment variables on top of Defaults.
//
// Outputs:
//
//	Config - The resolved configuration.
//	error - Non-nil if a value fails validation.
func FromEnv() (Config, error) {
	cfg := Defaults()

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIModel = envString("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.OpenAISmallModel = envString("OPENAI_SMALL_MODEL", cfg.OpenAISmallModel)
	cfg.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	cfg.Domain = envString("DOMAIN", cfg.Domain)
	cfg.WeaviateURL = os.Getenv("WEAVIATE_SERVICE_URL")
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)

	var err error
	if cfg.MaxResponseWords, err = envInt("MAX_RESPONSE_WORDS", cfg.MaxResponseWords); err != nil {
		return cfg, err
	}
	if cfg.Port, err = envInt("MENTOR_PORT", cfg.Port); err != nil {
		return cfg, err
	}
	if cfg.LLMTimeout, err = envDuration("LLM_TIMEOUT", cfg.LLMTimeout); err != nil {
		return cfg, err
	}
	if cfg.SearchTimeout, err = envDuration("SEARCH_TIMEOUT", cfg.SearchTimeout); err != nil {
		return cfg, err
	}
	if cfg.VisionTimeout, err = envDuration("VISION_TIMEOUT", cfg.VisionTimeout); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints via go-playground/validator tags.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("config: %s=%q is not an integer: %w", key, v, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("config: %s=%q is not a duration: %w", key, v, err)
	}
	return d, nil
}
