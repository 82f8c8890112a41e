// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package tools provides implementations for executing tools
// as part of GeneTrial's function calling capabilities.
package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/petmal/genetrial/pkg/logging"
)

var (
	// ErrToolNotAvailable is returned when a requested tool is not available.
	ErrToolNotAvailable = errors.New("tool not available")
	// ErrToolExecutionFailed is returned when a tool executes but fails with an error.
	ErrToolExecutionFailed = errors.New("tool execution failed")
	// ErrInvalidToolArguments is returned when tool arguments are invalid or don't match the expected schema.
	ErrInvalidToolArguments = errors.New("invalid tool arguments")
	// ErrToolInternal is returned for low-level internal errors during tool execution.
	ErrToolInternal = errors.New("tool internal error")
	// ErrUnsupportedToolType is returned when an unsupported tool type is encountered.
	ErrUnsupportedToolType = errors.New("unsupported tool type")
	// ErrToolMaxCallsExceeded is returned when a tool has exceeded its maximum call limit.
	ErrToolMaxCallsExceeded = errors.New("tool max calls exceeded")
	// ErrToolTimeout is returned when a tool execution times out.
	ErrToolTimeout = errors.New("tool execution timeout")
	// ErrToolTransient marks a tool failure that may succeed when the call is repeated,
	// such as a rate-limited or temporarily unavailable endpoint.
	ErrToolTransient = errors.New("transient tool error")
)

// ToolExecutor runs registered tools on behalf of a provider.
// Implementations own the execution backend, track per-tool usage
// and enforce per-tool call limits and timeouts.
type ToolExecutor interface {
	// ExecuteTool executes a tool by name with the given arguments and auxiliary data files.
	ExecuteTool(ctx context.Context, logger logging.Logger, toolName string, args json.RawMessage, data map[string][]byte) (json.RawMessage, error)

	// GetUsageStats returns usage statistics for all tools executed so far.
	GetUsageStats() map[string]ToolUsage

	// Close releases any resources held by the executor.
	Close() error
}

// ToolUsage tracks usage statistics for a tool.
type ToolUsage struct {
	CallCount   int64
	TotalTimeNs int64
}

// override returns the per-task override when set, the configured default otherwise.
func override[T any](selected *T, configured *T) *T {
	if selected != nil {
		return selected
	}
	return configured
}
