// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/atelierlabs/archmentor/services/mentor/events"
	"github.com/atelierlabs/archmentor/services/mentor/workflow"
)

// Handlers contains the HTTP handlers for the mentoring core.
type Handlers struct {
	registry *workflow.Registry
	monitor  *events.Monitor
}

// NewHandlers creates handlers over the session registry.
func NewHandlers(registry *workflow.Registry) *Handlers {
	return &Handlers{registry: registry}
}

// WithMonitor enables the recent-events debug endpoint.
func (h *Handlers) WithMonitor(m *events.Monitor) *Handlers {
	h.monitor = m
	return h
}

// HandleCreateSession handles POST /api/session.
//
// Description:
//
//	Starts a new mentoring session. An optional design brief seeds the
//	session: it is pinned as the first message and sets the building
//	type at brief confidence.
//
// Response:
//
//	200 OK: CreateSessionResponse
//	400 Bad Request: Malformed body
//	500 Internal Server Error: Session creation failed
func (h *Handlers) HandleCreateSession(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCreateSession")

	var req CreateSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Warn("Invalid request body", "error", err)
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "Invalid request body",
				Code:  "INVALID_REQUEST",
			})
			return
		}
	}

	st, err := h.registry.CreateSession(req.DesignBrief)
	if err != nil {
		logger.Error("Session creation failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "SESSION_CREATE_FAILED",
		})
		return
	}

	logger.Info("Session created",
		"session_id", st.ID,
		"has_brief", req.DesignBrief != "",
		"building_type", st.ConversationContext.DetectedBuildingType)

	c.JSON(http.StatusOK, CreateSessionResponse{
		SessionID:    st.ID,
		Domain:       st.Domain,
		BuildingType: st.ConversationContext.DetectedBuildingType,
		DesignPhase:  string(st.DesignPhase),
	})
}

// HandleChat handles POST /api/chat.
//
// Description:
//
//	Runs one full mentoring turn: classification, routing, specialist
//	agents, synthesis. Turns within a session are serialized; a failed
//	or cancelled turn leaves the stored session untouched.
//
// Response:
//
//	200 OK: ChatResponse (including fallback responses)
//	400 Bad Request: Malformed body
//	404 Not Found: Unknown session
//	504 Gateway Timeout: Turn cancelled or deadline exceeded
func (h *Handlers) HandleChat(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleChat")

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	result, err := h.registry.Chat(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		if errors.Is(err, workflow.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "Session not found",
				Code:  "SESSION_NOT_FOUND",
			})
			return
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// The turn produced a recovery prompt; surface it with the
			// timeout status so clients can retry.
			logger.Warn("Turn cancelled", "session_id", req.SessionID, "turn_id", result.TurnID)
			c.JSON(http.StatusGatewayTimeout, ChatResponse{
				SessionID:  req.SessionID,
				TurnResult: result,
			})
			return
		}
		logger.Error("Turn failed", "session_id", req.SessionID, "error", err)
		c.JSON(http.StatusInternalServerError, ChatResponse{
			SessionID:  req.SessionID,
			TurnResult: result,
		})
		return
	}

	logger.Info("Turn completed",
		"session_id", req.SessionID,
		"turn_id", result.TurnID,
		"route", result.Route,
		"response_type", result.ResponseType)

	c.JSON(http.StatusOK, ChatResponse{
		SessionID:  req.SessionID,
		TurnResult: result,
	})
}

// HandleGetSession handles GET /api/session/:id.
func (h *Handlers) HandleGetSession(c *gin.Context) {
	id := c.Param("id")

	st, err := h.registry.Get(id)
	if err != nil {
		if errors.Is(err, workflow.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "Session not found",
				Code:  "SESSION_NOT_FOUND",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "SESSION_READ_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, SessionResponse{
		SessionID:    st.ID,
		Domain:       st.Domain,
		DesignPhase:  string(st.DesignPhase),
		BuildingType: st.ConversationContext.DetectedBuildingType,
		MessageCount: len(st.Messages),
		CurrentTopic: st.ConversationContext.CurrentTopic,
		TopicHistory: st.ConversationContext.TopicHistory,
		SkillLevel:   string(st.StudentProfile.SkillLevel),
	})
}

// HandleDeleteSession handles DELETE /api/session/:id.
func (h *Handlers) HandleDeleteSession(c *gin.Context) {
	id := c.Param("id")
	if !h.registry.Delete(id) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Session not found",
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "ok",
		Version:  ServiceVersion,
		Sessions: h.registry.Len(),
	})
}

// HandleRecentEvents handles GET /api/debug/events.
//
// Returns the most recent turn events from the monitor's ring buffer.
// The limit query parameter caps the count (default 50).
func (h *Handlers) HandleRecentEvents(c *gin.Context) {
	if h.monitor == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Event monitoring is not enabled",
			Code:  "MONITOR_DISABLED",
		})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "limit must be a positive integer",
				Code:  "INVALID_LIMIT",
			})
			return
		}
		limit = n
	}

	c.JSON(http.StatusOK, gin.H{"events": h.monitor.Recent(limit)})
}

func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
