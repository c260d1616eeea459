// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// NewEngine builds the Gin engine with all mentor routes registered.
//
// Description:
//
//	Creates the HTTP surface of the mentoring core. Tracing middleware
//	is applied engine-wide; metrics are served from the given registry
//	when it is non-nil.
//
// Endpoints:
//
//	POST   /api/session      - Create a session (optional design brief)
//	GET    /api/session/:id  - Session summary
//	DELETE /api/session/:id  - End a session
//	POST   /api/chat         - Run one mentoring turn
//	GET    /api/debug/events - Recent turn events (monitor required)
//	GET    /healthz          - Health check
//	GET    /metrics          - Prometheus metrics
func NewEngine(handlers *Handlers, metrics *prometheus.Registry) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("mentor-service"))

	RegisterRoutes(engine, handlers, metrics)
	return engine
}

// RegisterRoutes registers all mentor routes with the router.
func RegisterRoutes(engine *gin.Engine, handlers *Handlers, metrics *prometheus.Registry) {
	api := engine.Group("/api")
	{
		api.POST("/session", handlers.HandleCreateSession)
		api.GET("/session/:id", handlers.HandleGetSession)
		api.DELETE("/session/:id", handlers.HandleDeleteSession)

		api.POST("/chat", handlers.HandleChat)

		debug := api.Group("/debug")
		{
			debug.GET("/events", handlers.HandleRecentEvents)
		}
	}

	engine.GET("/healthz", handlers.HandleHealth)

	if metrics != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics, promhttp.HandlerOpts{})))
	}
}
