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
	"fmt"
	"strings"

	"github.com/petmal/genetrial/config"
	"github.com/petmal/genetrial/pkg/logging"
	"github.com/petmal/genetrial/pkg/utils"
)

// Dispatcher routes tool calls by name to the executor that owns each tool.
// Before forwarding a call it normalizes the raw arguments and validates them
// against the tool's declared parameter schema.
type Dispatcher struct {
	routes    map[string]ToolExecutor
	schemas   map[string]map[string]interface{}
	executors []ToolExecutor
}

// NewDispatcher creates an empty tool dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		routes:  make(map[string]ToolExecutor),
		schemas: make(map[string]map[string]interface{}),
	}
}

// AddExecutor registers an executor so that it is closed with the dispatcher
// and its usage statistics are included in the merged totals.
func (d *Dispatcher) AddExecutor(executor ToolExecutor) {
	d.executors = append(d.executors, executor)
}

// Route directs calls for the configured tool to the given executor.
// The executor must also be registered with AddExecutor.
func (d *Dispatcher) Route(cfg config.ToolConfig, executor ToolExecutor) {
	d.routes[cfg.Name] = executor
	d.schemas[cfg.Name] = cfg.Parameters
}

// Dispatch validates the call arguments and forwards the call to the owning executor.
// An unknown tool name is reported as ErrToolNotAvailable so the caller can fail
// the whole conversation rather than feeding the error back to the model.
func (d *Dispatcher) Dispatch(ctx context.Context, logger logging.Logger, toolName string, args json.RawMessage, data map[string][]byte) (json.RawMessage, error) {
	executor, exists := d.routes[toolName]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrToolNotAvailable, toolName)
	}

	args = NormalizeToolArguments(args)

	if schema := d.schemas[toolName]; schema != nil {
		var parsed interface{}
		if err := json.Unmarshal(args, &parsed); err != nil {
			return nil, fmt.Errorf("tool %q encountered an error: %w: failed to parse input arguments as JSON object (expected format: {\"argName\": \"value\", ...}): %v", toolName, ErrInvalidToolArguments, err)
		}
		if err := utils.ValidateAgainstSchema(schema, parsed); err != nil {
			return nil, fmt.Errorf("tool %q encountered an error: %w: arguments do not conform to the tool parameter schema: %v", toolName, ErrInvalidToolArguments, err)
		}
	}

	result, err := executor.ExecuteTool(ctx, logger, toolName, args, data)
	if err != nil {
		return nil, err
	}
	return NormalizeToolResult(result), nil
}

// GetUsageStats returns the merged usage statistics of all registered executors.
func (d *Dispatcher) GetUsageStats() map[string]ToolUsage {
	if d == nil {
		return nil
	}
	stats := make(map[string]ToolUsage)
	for _, executor := range d.executors {
		for toolName, usage := range executor.GetUsageStats() {
			stats[toolName] = usage
		}
	}
	return stats
}

// Close closes all registered executors.
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, executor := range d.executors {
		errs = append(errs, executor.Close())
	}
	return errors.Join(errs...)
}

// NormalizeToolArguments unwraps arguments that arrive as a JSON-encoded string
// containing a serialized object. Models occasionally double-encode their tool
// call arguments; exactly one level of re-parsing is applied.
func NormalizeToolArguments(args json.RawMessage) json.RawMessage {
	var text string
	if err := json.Unmarshal(args, &text); err != nil {
		return args
	}
	var embedded map[string]interface{}
	if err := json.Unmarshal([]byte(text), &embedded); err != nil {
		return args
	}
	return json.RawMessage(text)
}

// NormalizeToolResult unwraps a tool result that arrived as text containing a
// serialized structure. One level of re-parsing is attempted; if the embedded
// text is not a valid JSON object or array the result is passed through verbatim.
func NormalizeToolResult(result json.RawMessage) json.RawMessage {
	var text string
	if err := json.Unmarshal(result, &text); err != nil {
		return result
	}
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return result
	}
	if !json.Valid([]byte(trimmed)) {
		return result
	}
	return json.RawMessage(trimmed)
}
