// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petmal/genetrial/config"
	"github.com/petmal/genetrial/pkg/logging"
)

// maxResponseBytes caps how much of a tool endpoint response is read.
const maxResponseBytes = 10 << 20

// placeholderMatcher matches {parameter} placeholders in URL and query templates.
var placeholderMatcher = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// RequestToolExecutor executes lookup tools backed by remote HTTP endpoints,
// such as gene, variant and disease catalog APIs.
type RequestToolExecutor struct {
	client *http.Client
	tools  sync.Map // map[string]*RequestTool
	usage  sync.Map // map[string]*ToolUsage
}

// NewRequestToolExecutor creates a new HTTP request tool executor.
func NewRequestToolExecutor() *RequestToolExecutor {
	return &RequestToolExecutor{
		client: &http.Client{},
	}
}

// RegisterTool registers a tool with the executor.
func (r *RequestToolExecutor) RegisterTool(tool *RequestTool) {
	r.tools.Store(tool.name, tool)
}

// ExecuteTool executes a tool by name with the given arguments.
// Auxiliary data files are not used by request tools and are ignored.
func (r *RequestToolExecutor) ExecuteTool(ctx context.Context, logger logging.Logger, toolName string, args json.RawMessage, data map[string][]byte) (json.RawMessage, error) {
	toolValue, exists := r.tools.Load(toolName)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrToolNotAvailable, toolName)
	}

	tool, ok := toolValue.(*RequestTool)
	if !ok {
		return nil, fmt.Errorf("tool %q encountered an error: %w: %w: %T", toolName, ErrToolInternal, ErrUnsupportedToolType, toolValue)
	}

	// Check MaxCalls limit.
	if tool.maxCalls != nil {
		usageValue, _ := r.usage.LoadOrStore(toolName, &ToolUsage{})
		usage := usageValue.(*ToolUsage)
		callCount := atomic.LoadInt64(&usage.CallCount)
		if callCount >= int64(*tool.maxCalls) {
			return nil, fmt.Errorf("%w: tool %q has exceeded its maximum call limit of %d for this session. Do not call this tool again during the current conversation", ErrToolMaxCallsExceeded, toolName, *tool.maxCalls)
		}
	}

	// Create a logger with tool name prefix.
	toolLogger := logger.WithContext(fmt.Sprintf("%s: ", toolName))

	// Execute the tool.
	result, err := r.executeRequestTool(ctx, toolLogger, tool, args)
	if err != nil {
		return nil, fmt.Errorf("tool %q encountered an error: %w", toolName, err)
	}
	return result, nil
}

// Close releases idle connections held by the HTTP client.
func (r *RequestToolExecutor) Close() error {
	if r.client != nil {
		r.client.CloseIdleConnections()
	}
	return nil
}

// executeRequestTool performs the HTTP request backing the tool with the given arguments.
func (r *RequestToolExecutor) executeRequestTool(ctx context.Context, logger logging.Logger, tool *RequestTool, args json.RawMessage) (json.RawMessage, error) {
	logger.Message(ctx, logging.LevelInfo, "starting request")

	// Parse the arguments.
	var argMap map[string]interface{}
	if err := json.Unmarshal(args, &argMap); err != nil {
		logger.Error(ctx, logging.LevelError, err, "failed to parse input arguments: %s", string(args))
		return nil, fmt.Errorf("%w: failed to parse input arguments as JSON object (expected format: {\"argName\": \"value\", ...}): %v", ErrInvalidToolArguments, err)
	}
	logger.Message(ctx, logging.LevelTrace, "parsed input arguments: %v", argMap)

	// Interpolate argument values into the URL path.
	endpoint, err := expandTemplate(tool.request.URL, argMap, url.PathEscape)
	if err != nil {
		return nil, err
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse tool endpoint URL %q: %v", ErrToolInternal, endpoint, err)
	}

	// Append query parameters. Parameters whose template references a missing
	// argument are treated as optional and omitted from the request.
	query := parsed.Query()
	for name, valueTemplate := range tool.request.Query {
		value, err := expandTemplate(valueTemplate, argMap, nil)
		if err != nil {
			logger.Message(ctx, logging.LevelDebug, "omitting query parameter %q: %v", name, err)
			continue
		}
		query.Set(name, value)
	}
	parsed.RawQuery = query.Encode()
	logger.Message(ctx, logging.LevelDebug, "resolved tool endpoint: %s", parsed.Redacted())

	// POST requests carry the full argument object as a JSON body.
	var body io.Reader
	method := tool.request.GetMethod()
	if method == http.MethodPost {
		body = bytes.NewReader(args)
	}

	// Apply timeout if specified.
	execCtx := ctx
	if tool.timeout != nil {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, *tool.timeout)
		defer cancel()
	}

	request, err := http.NewRequestWithContext(execCtx, method, parsed.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create tool request: %v", ErrToolInternal, err)
	}
	request.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		request.Header.Set("Content-Type", "application/json")
	}
	for name, value := range tool.request.Headers {
		request.Header.Set(name, value)
	}

	startTime := time.Now()
	logger.Message(ctx, logging.LevelInfo, "starting execution")
	response, err := r.client.Do(request)
	duration := time.Since(startTime)
	r.recordUsage(tool.name, duration)

	// Handle execution errors.
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: execution timed out after %s", ErrToolTimeout, tool.getTimeoutValue())
	case errors.Is(err, context.Canceled):
		return nil, fmt.Errorf("%w: execution was cancelled", ErrToolInternal)
	case err != nil:
		return nil, fmt.Errorf("%w: failed to execute tool request: %v", ErrToolInternal, err)
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read tool endpoint response: %v", ErrToolInternal, err)
	}
	logger.Message(ctx, logging.LevelDebug, "tool endpoint responded with status %d in %v", response.StatusCode, duration)

	if response.StatusCode >= http.StatusMultipleChoices {
		logger.Message(ctx, logging.LevelTrace, "tool endpoint error response:\n%s", string(payload))
		err := fmt.Errorf("%w: tool endpoint returned status %d: %s", ErrToolExecutionFailed, response.StatusCode, strings.TrimSpace(string(payload)))
		if isTransientStatus(response.StatusCode) {
			err = fmt.Errorf("%w: %w", ErrToolTransient, err)
		}
		return nil, err
	}

	result := strings.TrimSpace(string(payload))
	if result == "" {
		return nil, fmt.Errorf("%w: tool returned no output", ErrToolExecutionFailed)
	}
	logger.Message(ctx, logging.LevelTrace, "tool endpoint response:\n%s", result)

	filtered, err := filterResponseFields([]byte(result), tool.request.ResponseFields)
	if err != nil {
		return nil, err
	}

	logger.Message(ctx, logging.LevelInfo, "successfully finished")
	return filtered, nil
}

// isTransientStatus reports whether an endpoint status code indicates a
// failure worth repeating: rate limiting or a server-side error.
func isTransientStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError
}

// filterResponseFields restricts a JSON object response to the listed top-level
// fields. Non-object responses and responses that are not valid JSON pass
// through; the latter are wrapped into a JSON string so the result is always
// well-formed JSON.
func filterResponseFields(payload []byte, fields []string) (json.RawMessage, error) {
	var decoded interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		wrapped, err := json.Marshal(string(payload))
		if err != nil {
			return nil, fmt.Errorf("%w: failed to encode tool output: %v", ErrToolInternal, err)
		}
		return wrapped, nil
	}

	object, isObject := decoded.(map[string]interface{})
	if !isObject || len(fields) == 0 {
		return payload, nil
	}

	selected := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		if value, exists := object[field]; exists {
			selected[field] = value
		}
	}
	encoded, err := json.Marshal(selected)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode tool output: %v", ErrToolInternal, err)
	}
	return encoded, nil
}

// expandTemplate substitutes {parameter} placeholders in the template with
// argument values. The optional escape function is applied to each substituted
// value. A placeholder without a matching argument is an error.
func expandTemplate(template string, argMap map[string]interface{}, escape func(string) string) (string, error) {
	var missing error
	expanded := placeholderMatcher.ReplaceAllStringFunc(template, func(placeholder string) string {
		argName := placeholder[1 : len(placeholder)-1]
		argValue, exists := argMap[argName]
		if !exists {
			missing = fmt.Errorf("%w: no value provided for placeholder %q", ErrInvalidToolArguments, placeholder)
			return placeholder
		}
		value, err := argValueToString(argValue)
		if err != nil {
			missing = fmt.Errorf("%w: failed to serialize argument %q to text: %v", ErrInvalidToolArguments, argName, err)
			return placeholder
		}
		if escape != nil {
			value = escape(value)
		}
		return value
	})
	if missing != nil {
		return "", missing
	}
	return expanded, nil
}

// argValueToString converts an argument value to its textual form.
// Strings pass through unchanged and other values are encoded as JSON.
func argValueToString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	}
}

// recordUsage records the usage statistics for a tool.
func (r *RequestToolExecutor) recordUsage(toolName string, duration time.Duration) {
	usageValue, _ := r.usage.LoadOrStore(toolName, &ToolUsage{})
	toolUsage := usageValue.(*ToolUsage)

	atomic.AddInt64(&toolUsage.CallCount, 1)
	atomic.AddInt64(&toolUsage.TotalTimeNs, duration.Nanoseconds())
}

// GetUsageStats returns usage statistics for all tools.
func (r *RequestToolExecutor) GetUsageStats() map[string]ToolUsage {
	if r == nil {
		return nil
	}
	stats := make(map[string]ToolUsage)
	r.usage.Range(func(key, value interface{}) bool {
		toolName := key.(string)
		usage := value.(*ToolUsage)
		stats[toolName] = ToolUsage{
			CallCount:   atomic.LoadInt64(&usage.CallCount),
			TotalTimeNs: atomic.LoadInt64(&usage.TotalTimeNs),
		}
		return true
	})
	return stats
}

// RequestTool is a lookup tool backed by a remote HTTP endpoint.
type RequestTool struct {
	name        string
	description string
	parameters  map[string]interface{}
	request     config.ToolRequestConfig
	maxCalls    *int
	timeout     *time.Duration
}

// NewRequestTool creates a new request tool from its configuration.
// Limits set on the task's tool selection override the configured defaults.
func NewRequestTool(cfg *config.ToolConfig, selection config.ToolSelection) *RequestTool {
	return &RequestTool{
		name:        cfg.Name,
		description: cfg.Description,
		parameters:  cfg.Parameters,
		request:     *cfg.Request,
		maxCalls:    override(selection.MaxCalls, cfg.MaxCalls),
		timeout:     override(selection.Timeout, cfg.Timeout),
	}
}

func (t *RequestTool) getTimeoutValue() string {
	if t.timeout != nil {
		return fmt.Sprintf("%v", *t.timeout)
	}
	return "<none>"
}
