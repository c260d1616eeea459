// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package events

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_SubscribeAndEmit(t *testing.T) {
	m := NewMonitor(nil)
	var got []Event
	m.Subscribe(func(ev Event) { got = append(got, ev) }, TypeAgentError)

	m.Emit(Event{Type: TypeNodeEntered, Node: "socratic"})
	m.Emit(Event{Type: TypeAgentError, Node: "socratic", Kind: "external"})

	require.Len(t, got, 1)
	assert.Equal(t, TypeAgentError, got[0].Type)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestMonitor_Unsubscribe(t *testing.T) {
	m := NewMonitor(nil)
	count := 0
	id := m.Subscribe(func(Event) { count++ })
	m.Emit(Event{Type: TypeTurnStarted})
	require.True(t, m.Unsubscribe(id))
	m.Emit(Event{Type: TypeTurnStarted})
	assert.Equal(t, 1, count)
	assert.False(t, m.Unsubscribe(id))
}

func TestMonitor_RingIsBounded(t *testing.T) {
	m := NewMonitor(nil, WithBufferSize(3))
	for i := 0; i < 10; i++ {
		m.Emit(Event{Type: TypeNodeEntered, Node: "router"})
	}
	assert.Len(t, m.Recent(0), 3)
	assert.Len(t, m.Recent(2), 2)
}

func TestMonitor_HandlerPanicIsContained(t *testing.T) {
	m := NewMonitor(nil)
	m.Subscribe(func(Event) { panic("bad subscriber") })
	after := 0
	m.Subscribe(func(Event) { after++ })

	assert.NotPanics(t, func() {
		m.Emit(Event{Type: TypeTurnCompleted})
	})
	// Order across subscribers is not guaranteed, but the emit itself
	// must survive and the buffer must record the event.
	assert.Len(t, m.Recent(0), 1)
}

func TestMonitor_RegistersMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMonitor(reg)
	m.Emit(Event{Type: TypeTurnCompleted})
	m.Emit(Event{Type: TypeRouteSelected, Route: "knowledge_only"})

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["mentor_turns_total"])
	assert.True(t, names["mentor_routes_total"])
}
