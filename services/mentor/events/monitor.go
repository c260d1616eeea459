// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultBufferSize bounds the in-memory event ring.
const DefaultBufferSize = 1000

// Monitor broadcasts turn events to subscribers, keeps a bounded ring
// of recent events, and maintains Prometheus counters.
//
// Thread Safety: Monitor is safe for concurrent use.
type Monitor struct {
	mu         sync.RWMutex
	subs       map[string]*subscription
	buffer     []Event
	bufferSize int

	turnsTotal   *prometheus.CounterVec
	nodeErrors   *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	routesTotal  *prometheus.CounterVec
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithBufferSize overrides the event ring capacity.
func WithBufferSize(size int) MonitorOption {
	return func(m *Monitor) {
		if size > 0 {
			m.bufferSize = size
		}
	}
}

// NewMonitor creates a Monitor and registers its metrics on reg. A nil
// registerer skips metric registration, which tests use.
func NewMonitor(reg prometheus.Registerer, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		subs:       make(map[string]*subscription),
		bufferSize: DefaultBufferSize,
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentor_turns_total",
			Help: "Turns processed, by outcome.",
		}, []string{"outcome"}),
		nodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentor_node_errors_total",
			Help: "Node failures replaced by typed error results.",
		}, []string{"node", "kind"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mentor_node_duration_seconds",
			Help:    "Wall time per workflow node.",
			Buckets: prometheus.DefBuckets,
		}, []string{"node"}),
		routesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentor_routes_total",
			Help: "Route selections, by route.",
		}, []string{"route"}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.buffer = make([]Event, 0, m.bufferSize)
	if reg != nil {
		reg.MustRegister(m.turnsTotal, m.nodeErrors, m.nodeDuration, m.routesTotal)
	}
	return m
}

// Subscribe registers a handler for the given event types; no types
// means all. It returns the subscription ID.
func (m *Monitor) Subscribe(handler Handler, types ...Type) string {
	return m.SubscribeWithFilter(handler, nil, types...)
}

// SubscribeWithFilter registers a handler with a custom filter.
func (m *Monitor) SubscribeWithFilter(handler Handler, filter Filter, types ...Type) string {
	sub := &subscription{
		id:      uuid.NewString(),
		handler: handler,
		filter:  filter,
	}
	if len(types) > 0 {
		sub.types = make(map[Type]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	m.mu.Lock()
	m.subs[sub.id] = sub
	m.mu.Unlock()
	return sub.id
}

// Unsubscribe removes a subscription, reporting whether it existed.
func (m *Monitor) Unsubscribe(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; ok {
		delete(m.subs, id)
		return true
	}
	return false
}

// Emit records the event, updates metrics, and notifies subscribers.
// Handler panics are swallowed so one bad subscriber cannot break a
// turn.
func (m *Monitor) Emit(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	m.observe(ev)

	m.mu.Lock()
	if len(m.buffer) >= m.bufferSize {
		m.buffer = m.buffer[1:]
	}
	m.buffer = append(m.buffer, ev)
	subs := make([]*subscription, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		if s.matches(ev) {
			func() {
				defer func() { _ = recover() }()
				s.handler(ev)
			}()
		}
	}
}

func (m *Monitor) observe(ev Event) {
	switch ev.Type {
	case TypeTurnCompleted:
		m.turnsTotal.WithLabelValues("completed").Inc()
	case TypeTurnFailed:
		m.turnsTotal.WithLabelValues("failed").Inc()
	case TypeAgentError:
		m.nodeErrors.WithLabelValues(ev.Node, ev.Kind).Inc()
	case TypeNodeExited:
		m.nodeDuration.WithLabelValues(ev.Node).Observe(ev.Elapsed.Seconds())
	case TypeRouteSelected:
		m.routesTotal.WithLabelValues(ev.Route).Inc()
	}
}

// Recent returns up to n most recent events, oldest first. n <= 0
// returns the whole buffer.
func (m *Monitor) Recent(n int) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n <= 0 || n > len(m.buffer) {
		n = len(m.buffer)
	}
	out := make([]Event, n)
	copy(out, m.buffer[len(m.buffer)-n:])
	return out
}
