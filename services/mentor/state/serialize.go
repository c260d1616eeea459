// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package state

import (
	"encoding/json"
	"fmt"
)

// ToJSON serializes the session state deterministically.
//
// Struct fields marshal in declaration order and map keys sort
// lexicographically, so equal states produce identical bytes. Timestamps
// marshal as ISO-8601 (RFC 3339); enums marshal by value.
func ToJSON(s *SessionState) (string, error) {
	if s == nil {
		return "", fmt.Errorf("state: nil session")
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("state: marshal: %w", err)
	}
	return string(data), nil
}

// FromJSON round-trips a state produced by ToJSON.
func FromJSON(data string) (*SessionState, error) {
	var s SessionState
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("state: unmarshal: %w", err)
	}
	if s.AgentContext == nil {
		s.AgentContext = map[string]any{}
	}
	return &s, nil
}

// Clone deep-copies the state via the serialization contract. The
// orchestrator runs each turn against a clone and commits it back only on
// success, so a failed or cancelled turn never mutates the session.
func (s *SessionState) Clone() (*SessionState, error) {
	raw, err := ToJSON(s)
	if err != nil {
		return nil, err
	}
	return FromJSON(raw)
}
