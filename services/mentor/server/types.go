// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package server exposes the mentoring core over HTTP.
//
// The surface is deliberately small: session lifecycle, one chat
// endpoint that runs a full turn, and operational endpoints for health
// and metrics. All request and response bodies are JSON.
package server

import (
	"github.com/atelierlabs/archmentor/services/mentor/workflow"
)

// ServiceVersion is the mentor service version.
const ServiceVersion = "0.1.0"

// CreateSessionRequest is the body of POST /api/session.
type CreateSessionRequest struct {
	// DesignBrief optionally seeds the session. When present it is
	// pinned as the first message and sets the building type.
	DesignBrief string `json:"design_brief"`
}

// CreateSessionResponse is returned by POST /api/session.
type CreateSessionResponse struct {
	SessionID    string `json:"session_id"`
	Domain       string `json:"domain"`
	BuildingType string `json:"building_type,omitempty"`
	DesignPhase  string `json:"design_phase"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message"`
}

// ChatResponse is returned by POST /api/chat. It embeds the turn
// result plus the session identity so clients can correlate turns.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	workflow.TurnResult
}

// SessionResponse is returned by GET /api/session/:id.
type SessionResponse struct {
	SessionID    string   `json:"session_id"`
	Domain       string   `json:"domain"`
	DesignPhase  string   `json:"design_phase"`
	BuildingType string   `json:"building_type,omitempty"`
	MessageCount int      `json:"message_count"`
	CurrentTopic string   `json:"current_topic,omitempty"`
	TopicHistory []string `json:"topic_history,omitempty"`
	SkillLevel   string   `json:"skill_level"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
