// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workflow

import (
	"fmt"

	"github.com/atelierlabs/archmentor/services/mentor/routing"
)

// Node names used in events and metrics.
const (
	NodeContextAgent  = "context_agent"
	NodeRouter        = "router"
	NodeFirstResponse = "first_response"
	NodeSynthesizer   = "synthesizer"
)

// NodeSequence returns the specialist nodes for a route, in execution
// order. The sequence is exactly the route's activation set: the graph
// edge table and the activation matrix are the same source of truth.
func NodeSequence(route routing.Route) []routing.AgentName {
	return routing.ActivationFor(route).Agents
}

// ValidateGraph checks the workflow wiring at startup: the activation
// matrix is sound and every route's sequence is executable by the given
// specialist set.
func ValidateGraph(specialists map[routing.AgentName]struct{}) error {
	if err := routing.ValidateMatrix(); err != nil {
		return err
	}
	for _, route := range routing.AllRoutes() {
		for _, name := range NodeSequence(route) {
			if _, ok := specialists[name]; !ok {
				return fmt.Errorf("route %q requires unregistered specialist %q", route, name)
			}
		}
	}
	return nil
}
