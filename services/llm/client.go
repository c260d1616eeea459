// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the LLM boundary for the mentoring core.
//
// The core consumes a single chat interface; provider specifics (OpenAI,
// OpenAI-compatible local servers) live behind it. All callers must pass a
// context with a deadline; the adapters additionally enforce a per-call
// timeout so a missing deadline cannot hang a turn.
package llm

import (
	"context"
	"errors"
)

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrUnavailable is returned when no provider is configured. Callers are
// expected to degrade to deterministic template output.
var ErrUnavailable = errors.New("llm: no provider configured")

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tier selects between the planning/synthesis model and the cheap
// classification model.
type Tier string

const (
	// TierLarge is used for planning, agent responses, and synthesis.
	TierLarge Tier = "chat_large"

	// TierSmall is used for optional classification heuristics.
	TierSmall Tier = "chat_small"
)

// Params are per-call generation parameters.
type Params struct {
	// Tier selects the model; adapters resolve it to a concrete model name.
	Tier Tier

	// Temperature in [0, 2]; zero means provider default.
	Temperature float32

	// MaxTokens caps the completion length; zero means provider default.
	MaxTokens int
}

// Client is the standard interface for any LLM backend.
//
// Implementations must be safe for concurrent use and must honor context
// cancellation at every network call.
type Client interface {
	// Chat sends the messages and returns the assistant's reply text.
	//
	// Inputs:
	//   ctx - Context for cancellation and deadline. Must not be nil.
	//   messages - Ordered conversation; must contain at least one message.
	//   params - Generation parameters.
	//
	// Outputs:
	//   string - The reply text; never empty on nil error.
	//   error - Non-nil on provider failure after retry, timeout, or
	//           cancellation. Callers degrade to templated output.
	Chat(ctx context.Context, messages []Message, params Params) (string, error)
}

// Disabled is a Client that always reports ErrUnavailable. It is installed
// when no API key is configured so the core runs in degraded mode.
type Disabled struct{}

// Chat implements Client.
func (Disabled) Chat(_ context.Context, _ []Message, _ Params) (string, error) {
	return "", ErrUnavailable
}
