// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petmal/genetrial/config"
	"github.com/petmal/genetrial/pkg/logging"
	"github.com/petmal/genetrial/pkg/testutils"
)

// stubToolExecutor records the arguments it was dispatched and returns canned values.
type stubToolExecutor struct {
	lastToolName string
	lastArgs     json.RawMessage
	result       json.RawMessage
	err          error
	stats        map[string]ToolUsage
	closeErr     error
	closed       bool
}

func (s *stubToolExecutor) ExecuteTool(ctx context.Context, logger logging.Logger, toolName string, args json.RawMessage, data map[string][]byte) (json.RawMessage, error) {
	s.lastToolName = toolName
	s.lastArgs = args
	return s.result, s.err
}

func (s *stubToolExecutor) GetUsageStats() map[string]ToolUsage {
	return s.stats
}

func (s *stubToolExecutor) Close() error {
	s.closed = true
	return s.closeErr
}

func newTestToolConfig(name string, properties map[string]interface{}, required []string) config.ToolConfig {
	return config.ToolConfig{
		Name:        name,
		Description: "test tool",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": properties,
			"required":   toInterfaceSlice(required),
		},
	}
}

func toInterfaceSlice(values []string) []interface{} {
	result := make([]interface{}, len(values))
	for i, value := range values {
		result[i] = value
	}
	return result
}

func TestDispatcherDispatch_RoutesToExecutor(t *testing.T) {
	stub := &stubToolExecutor{result: json.RawMessage(`{"id":"ENSG00000139618"}`)}
	dispatcher := NewDispatcher()
	dispatcher.AddExecutor(stub)
	dispatcher.Route(newTestToolConfig("gene-lookup", map[string]interface{}{
		"symbol": map[string]interface{}{"type": "string"},
	}, []string{"symbol"}), stub)

	logger := testutils.NewTestLogger(t)
	ctx, cancel := newTestContext()
	defer cancel()

	result, err := dispatcher.Dispatch(ctx, logger, "gene-lookup", json.RawMessage(`{"symbol":"BRCA2"}`), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"ENSG00000139618"}`, string(result))
	assert.Equal(t, "gene-lookup", stub.lastToolName)
	assert.JSONEq(t, `{"symbol":"BRCA2"}`, string(stub.lastArgs))
}

func TestDispatcherDispatch_UnknownTool(t *testing.T) {
	dispatcher := NewDispatcher()

	logger := testutils.NewTestLogger(t)
	ctx, cancel := newTestContext()
	defer cancel()

	_, err := dispatcher.Dispatch(ctx, logger, "missing", json.RawMessage(`{}`), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolNotAvailable)
	assert.Equal(t, "tool not available: missing", err.Error())
}

func TestDispatcherDispatch_SchemaValidationFailure(t *testing.T) {
	stub := &stubToolExecutor{result: json.RawMessage(`{}`)}
	dispatcher := NewDispatcher()
	dispatcher.AddExecutor(stub)
	dispatcher.Route(newTestToolConfig("variant-lookup", map[string]interface{}{
		"id": map[string]interface{}{"type": "string"},
	}, []string{"id"}), stub)

	logger := testutils.NewTestLogger(t)
	ctx, cancel := newTestContext()
	defer cancel()

	_, err := dispatcher.Dispatch(ctx, logger, "variant-lookup", json.RawMessage(`{"id":42}`), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidToolArguments)
	assert.Empty(t, stub.lastToolName)
}

func TestDispatcherDispatch_MissingRequiredArgument(t *testing.T) {
	stub := &stubToolExecutor{result: json.RawMessage(`{}`)}
	dispatcher := NewDispatcher()
	dispatcher.AddExecutor(stub)
	dispatcher.Route(newTestToolConfig("variant-lookup", map[string]interface{}{
		"id": map[string]interface{}{"type": "string"},
	}, []string{"id"}), stub)

	logger := testutils.NewTestLogger(t)
	ctx, cancel := newTestContext()
	defer cancel()

	_, err := dispatcher.Dispatch(ctx, logger, "variant-lookup", json.RawMessage(`{}`), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidToolArguments)
}

func TestDispatcherDispatch_NormalizesEncodedArguments(t *testing.T) {
	stub := &stubToolExecutor{result: json.RawMessage(`{}`)}
	dispatcher := NewDispatcher()
	dispatcher.AddExecutor(stub)
	dispatcher.Route(newTestToolConfig("gene-lookup", map[string]interface{}{
		"symbol": map[string]interface{}{"type": "string"},
	}, []string{"symbol"}), stub)

	logger := testutils.NewTestLogger(t)
	ctx, cancel := newTestContext()
	defer cancel()

	encoded, err := json.Marshal(`{"symbol":"TP53"}`)
	require.NoError(t, err)

	_, err = dispatcher.Dispatch(ctx, logger, "gene-lookup", encoded, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"symbol":"TP53"}`, string(stub.lastArgs))
}

func TestDispatcherDispatch_NoSchemaSkipsValidation(t *testing.T) {
	stub := &stubToolExecutor{result: json.RawMessage(`{}`)}
	dispatcher := NewDispatcher()
	dispatcher.AddExecutor(stub)
	dispatcher.Route(config.ToolConfig{Name: "free-form", Description: "no schema"}, stub)

	logger := testutils.NewTestLogger(t)
	ctx, cancel := newTestContext()
	defer cancel()

	_, err := dispatcher.Dispatch(ctx, logger, "free-form", json.RawMessage(`{"anything":"goes"}`), nil)
	require.NoError(t, err)
}

func TestNormalizeToolArguments(t *testing.T) {
	tests := []struct {
		name     string
		args     json.RawMessage
		expected string
	}{
		{
			name:     "plain object unchanged",
			args:     json.RawMessage(`{"symbol":"BRCA2"}`),
			expected: `{"symbol":"BRCA2"}`,
		},
		{
			name:     "encoded object unwrapped one level",
			args:     json.RawMessage(`"{\"symbol\":\"BRCA2\"}"`),
			expected: `{"symbol":"BRCA2"}`,
		},
		{
			name:     "double encoded object passed through verbatim",
			args:     json.RawMessage(`"\"{\\\"symbol\\\":\\\"BRCA2\\\"}\""`),
			expected: `"\"{\\\"symbol\\\":\\\"BRCA2\\\"}\""`,
		},
		{
			name:     "plain string unchanged",
			args:     json.RawMessage(`"BRCA2"`),
			expected: `"BRCA2"`,
		},
		{
			name:     "array unchanged",
			args:     json.RawMessage(`["BRCA2"]`),
			expected: `["BRCA2"]`,
		},
		{
			name:     "invalid payload unchanged",
			args:     json.RawMessage(`not json`),
			expected: `not json`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(NormalizeToolArguments(tt.args)))
		})
	}
}

func TestNormalizeToolArguments_DoubleUnwrapReachesObject(t *testing.T) {
	inner := `{"symbol":"BRCA2"}`
	once, err := json.Marshal(inner)
	require.NoError(t, err)

	normalized := NormalizeToolArguments(NormalizeToolArguments(json.RawMessage(once)))
	assert.JSONEq(t, inner, string(normalized))
}

func TestNormalizeToolResult(t *testing.T) {
	tests := []struct {
		name     string
		result   json.RawMessage
		expected string
	}{
		{
			name:     "plain object unchanged",
			result:   json.RawMessage(`{"id":"ENSG00000139618"}`),
			expected: `{"id":"ENSG00000139618"}`,
		},
		{
			name:     "encoded object unwrapped",
			result:   json.RawMessage(`"{\"id\":\"ENSG00000139618\"}"`),
			expected: `{"id":"ENSG00000139618"}`,
		},
		{
			name:     "encoded array unwrapped",
			result:   json.RawMessage(`"[\"rs699\",\"rs1042522\"]"`),
			expected: `["rs699","rs1042522"]`,
		},
		{
			name:     "plain text passed through verbatim",
			result:   json.RawMessage(`"AGCTTAGCTAGCTACGGAT"`),
			expected: `"AGCTTAGCTAGCTACGGAT"`,
		},
		{
			name:     "text resembling truncated structure passed through verbatim",
			result:   json.RawMessage(`"{\"id\":"`),
			expected: `"{\"id\":"`,
		},
		{
			name:     "number unchanged",
			result:   json.RawMessage(`42`),
			expected: `42`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(NormalizeToolResult(tt.result)))
		})
	}
}

func TestDispatcherDispatch_UnwrapsEncodedResult(t *testing.T) {
	stub := &stubToolExecutor{result: json.RawMessage(`"{\"id\":\"ENSG00000139618\"}"`)}
	dispatcher := NewDispatcher()
	dispatcher.AddExecutor(stub)
	dispatcher.Route(config.ToolConfig{Name: "gene-lookup", Description: "lookup"}, stub)

	logger := testutils.NewTestLogger(t)
	ctx, cancel := newTestContext()
	defer cancel()

	result, err := dispatcher.Dispatch(ctx, logger, "gene-lookup", json.RawMessage(`{}`), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"ENSG00000139618"}`, string(result))
}

func TestDispatcherGetUsageStats_MergesExecutors(t *testing.T) {
	first := &stubToolExecutor{stats: map[string]ToolUsage{
		"gene-lookup": {CallCount: 2, TotalTimeNs: 100},
	}}
	second := &stubToolExecutor{stats: map[string]ToolUsage{
		"variant-annotate": {CallCount: 1, TotalTimeNs: 50},
	}}

	dispatcher := NewDispatcher()
	dispatcher.AddExecutor(first)
	dispatcher.AddExecutor(second)

	stats := dispatcher.GetUsageStats()
	require.Len(t, stats, 2)
	assert.Equal(t, int64(2), stats["gene-lookup"].CallCount)
	assert.Equal(t, int64(1), stats["variant-annotate"].CallCount)
}

func TestDispatcherGetUsageStats_NilReceiver(t *testing.T) {
	var dispatcher *Dispatcher
	assert.Nil(t, dispatcher.GetUsageStats())
}

func TestDispatcherClose_JoinsErrors(t *testing.T) {
	first := &stubToolExecutor{closeErr: errors.New("first close failed")}
	second := &stubToolExecutor{}

	dispatcher := NewDispatcher()
	dispatcher.AddExecutor(first)
	dispatcher.AddExecutor(second)

	err := dispatcher.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first close failed")
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}

func TestDispatcherClose_NilReceiver(t *testing.T) {
	var dispatcher *Dispatcher
	assert.NoError(t, dispatcher.Close())
}
