// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionBody(content string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  "gpt-4o",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	}
}

func newFakeOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	c, err := NewOpenAIClient(OpenAIConfig{
		APIKey:            "test-key",
		BaseURL:           ts.URL,
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)
	return c
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestChat_Success(t *testing.T) {
	client := newFakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completionBody("A courtyard tempers the climate."))
	})

	text, err := client.Chat(context.Background(), []Message{
		{Role: RoleUser, Content: "Why courtyards?"},
	}, Params{})
	require.NoError(t, err)
	assert.Equal(t, "A courtyard tempers the climate.", text)
}

func TestChat_RetriesTransientError(t *testing.T) {
	var calls atomic.Int32
	client := newFakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "upstream overloaded", "type": "server_error"},
			})
			return
		}
		json.NewEncoder(w).Encode(completionBody("second try"))
	})

	text, err := client.Chat(context.Background(), []Message{
		{Role: RoleUser, Content: "hello"},
	}, Params{})
	require.NoError(t, err)
	assert.Equal(t, "second try", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestChat_NoRetryOnBadRequest(t *testing.T) {
	var calls atomic.Int32
	client := newFakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "bad prompt", "type": "invalid_request_error"},
		})
	})

	_, err := client.Chat(context.Background(), []Message{
		{Role: RoleUser, Content: "hello"},
	}, Params{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestChat_EmptyMessages(t *testing.T) {
	client := newFakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.Chat(context.Background(), nil, Params{})
	assert.Error(t, err)
}

func TestDisabled_ReportsUnavailable(t *testing.T) {
	_, err := Disabled{}.Chat(context.Background(), []Message{
		{Role: RoleUser, Content: "hello"},
	}, Params{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestChat_SmallTierSelectsSmallModel(t *testing.T) {
	var gotModel string
	client := newFakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completionBody("ok"))
	})

	_, err := client.Chat(context.Background(), []Message{
		{Role: RoleUser, Content: "classify this"},
	}, Params{Tier: TierSmall})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", gotModel)
}
