// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package providers implements various AI model service provider connectors supported by GeneTrial.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/petmal/genetrial/agent"
	"github.com/petmal/genetrial/config"
	"github.com/petmal/genetrial/pkg/logging"
	"github.com/petmal/genetrial/pkg/utils"
	"github.com/petmal/genetrial/providers/tools"
	"github.com/sethvargo/go-retry"
	"golang.org/x/exp/constraints"
)

var (
	// ErrUnknownProviderName is returned when provider name is not recognized.
	ErrUnknownProviderName = errors.New("unknown provider name")
	// ErrCreateClient is returned when provider client initialization fails.
	ErrCreateClient = errors.New("failed to create client")
	// ErrInvalidModelParams is returned when model parameters are invalid.
	ErrInvalidModelParams = errors.New("invalid model parameters for run")
	// ErrCompileSchema is returned when response schema compilation fails.
	ErrCompileSchema = errors.New("failed to compile response schema")
	// ErrGenerateResponse is returned when response generation fails.
	ErrGenerateResponse = errors.New("failed to generate response")
	// ErrCreatePromptRequest is returned when request generation fails.
	ErrCreatePromptRequest = errors.New("failed to create prompt request")
	// ErrFeatureNotSupported is returned when a requested feature is not supported by the provider.
	ErrFeatureNotSupported = errors.New("feature not supported by provider")
	// ErrFileNotSupported is returned when a task context file is not supported by the provider.
	ErrFileNotSupported = fmt.Errorf("%w: file type", ErrFeatureNotSupported)
	// ErrFileUploadNotSupported is returned when file upload is not supported by the provider.
	ErrFileUploadNotSupported = fmt.Errorf("%w: file upload", ErrFeatureNotSupported)
	// ErrToolUseNotSupported is returned when tool use is not supported by the provider.
	ErrToolUseNotSupported = fmt.Errorf("%w: tool use", ErrFeatureNotSupported)
	// ErrToolSetup is returned when the tool executors for a run cannot be prepared.
	ErrToolSetup = errors.New("failed to set up tools")
	// ErrToolNotFound is returned when a requested tool has no configuration.
	ErrToolNotFound = errors.New("requested tool not found")
	// ErrToolUse is returned when tool use fails during response generation.
	ErrToolUse = errors.New("tool use failed")
	// ErrTokenBudgetExceeded is returned when a run stops because its token budget is exhausted.
	ErrTokenBudgetExceeded = errors.New("token budget exceeded")
	// ErrTurnBudgetExceeded is returned when a run stops because its model turn cap is reached.
	ErrTurnBudgetExceeded = errors.New("turn budget exceeded")
	// ErrEmptyResponse is returned when the model produces no response candidates.
	ErrEmptyResponse = errors.New("response contains no candidates")
	// ErrRetryable is returned when an operation can be retried.
	ErrRetryable = errors.New("retryable error")
)

var supportedImageMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Provider interacts with AI model services.
type Provider interface {
	// Name returns the provider's unique identifier.
	Name() string
	// Run executes a task using specified configuration and returns the result.
	Run(ctx context.Context, logger logging.Logger, cfg config.RunConfig, task config.Task) (result Result, err error)
	// Close releases resources when the provider is no longer needed.
	Close(ctx context.Context) error
}

// ErrUnmarshalResponse is returned when response unmarshaling fails.
type ErrUnmarshalResponse struct {
	// Cause is the underlying error that caused the unmarshaling to fail.
	Cause error
	// RawMessage is the raw message that failed to be unmarshaled.
	RawMessage []byte
	// StopReason contains the reason why the AI model stopped generating the response.
	StopReason []byte
}

func (e *ErrUnmarshalResponse) Error() string {
	return fmt.Sprintf("failed to unmarshal the response: %v", e.Cause)
}

func (e *ErrUnmarshalResponse) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewErrUnmarshalResponse creates a new ErrUnmarshalResponse instance.
func NewErrUnmarshalResponse(cause error, rawMessage []byte, stopReason []byte) *ErrUnmarshalResponse {
	return &ErrUnmarshalResponse{
		Cause:      cause,
		RawMessage: rawMessage,
		StopReason: stopReason,
	}
}

// ErrAPIResponse holds additional information about an API error returned
// by a provider, including the raw HTTP response body when available.
type ErrAPIResponse struct {
	// Cause is the underlying error that caused the API call to fail.
	Cause error
	// Body contains the raw HTTP response body returned by the provider API when available.
	Body []byte
}

func (e *ErrAPIResponse) Error() string {
	return e.Cause.Error()
}

func (e *ErrAPIResponse) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewErrAPIResponse creates a new ErrAPIResponse instance.
func NewErrAPIResponse(cause error, body []byte) *ErrAPIResponse {
	return &ErrAPIResponse{Cause: cause, Body: body}
}

// WrapErrRetryable wraps an error as retryable, preserving the original error chain.
func WrapErrRetryable(err error) error {
	return fmt.Errorf("%w: %w", ErrRetryable, err)
}

// WrapErrGenerateResponse wraps an error as a generate response error, preserving the original error chain.
func WrapErrGenerateResponse(err error) error {
	return fmt.Errorf("%w: %w", ErrGenerateResponse, err)
}

// ResultJSONSchemaRaw builds the JSON schema for the Result type as a raw map.
// The final answer property mirrors the task's response format: textual formats
// require a plain string while schema formats require an object whose content
// conforms to the task's answer schema.
func ResultJSONSchemaRaw(responseFormat config.ResponseFormat) (map[string]interface{}, error) {
	finalAnswer := map[string]interface{}{
		"type":        "string",
		"title":       "Final Answer",
		"description": "The definitive answer to the task or question, provided as plain text. This should directly address what was asked and strictly follow any formatting instructions provided.",
	}
	if answerSchema, ok := responseFormat.AsSchema(); ok {
		finalAnswer = map[string]interface{}{
			"type":                 "object",
			"title":                "Final Answer",
			"description":          "The container holding the definitive answer to the task or question. The answer content must directly address what was asked, strictly follow any formatting instructions provided, and conform to the specified schema.",
			"additionalProperties": false,
			"properties": map[string]interface{}{
				answerContentKey: answerSchema,
			},
			"required": []interface{}{answerContentKey},
		}
	}

	return map[string]interface{}{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"$id":                  "https://github.com/petmal/genetrial/providers/result",
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"title": map[string]interface{}{
				"type":        "string",
				"title":       "Response Title",
				"description": "A concise, descriptive title that summarizes what this response is about. Should be brief (typically 3-8 words) and capture the essence of the task or question being answered.",
			},
			"explanation": map[string]interface{}{
				"type":        "string",
				"title":       "Response Explanation",
				"description": "A comprehensive explanation of the reasoning process, methodology, and context behind the final answer. This should provide clear rationale for how the answer was derived, including any relevant analysis, steps taken, or considerations made.",
			},
			"final_answer": finalAnswer,
		},
		"required": []interface{}{"title", "explanation", "final_answer"},
	}, nil
}

// ResultJSONSchema builds the JSON schema for the Result type.
func ResultJSONSchema(responseFormat config.ResponseFormat) (*jsonschema.Schema, error) {
	schemaMap, err := ResultJSONSchemaRaw(responseFormat)
	if err != nil {
		return nil, err
	}
	return MapToJSONSchema(schemaMap)
}

// MapToJSONSchema converts a raw schema map into a jsonschema.Schema value.
func MapToJSONSchema(schemaMap map[string]interface{}) (*jsonschema.Schema, error) {
	schemaBytes, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompileSchema, err)
	}

	schema := &jsonschema.Schema{}
	if err := json.Unmarshal(schemaBytes, schema); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompileSchema, err)
	}
	return schema, nil
}

// DefaultResponseFormatInstruction generates default response formatting instruction to be passed to AI models that require it.
func DefaultResponseFormatInstruction(responseFormat config.ResponseFormat) (string, error) {
	schemaMap, err := ResultJSONSchemaRaw(responseFormat)
	if err != nil {
		return "", err
	}
	schema, err := json.Marshal(schemaMap)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompileSchema, err)
	}
	return fmt.Sprintf("Structure the response according to this JSON schema: %s", schema), nil
}

// DefaultUnstructuredResponseInstruction generates default plain-text response instruction
// for runs that have structured output disabled.
func DefaultUnstructuredResponseInstruction() string {
	return "Respond with the final answer only, as plain text, without any additional formatting, commentary, or explanation."
}

// DefaultAnswerFormatInstruction generates default answer formatting instruction for a given task to be passed to the AI model.
func DefaultAnswerFormatInstruction(task config.Task) string {
	if resolvedTemplate, ok := task.GetResolvedSystemPrompt(); ok {
		return resolvedTemplate
	}
	return fmt.Sprintf("Provide the final answer in exactly this format: %s", task.ResponseResultFormat)
}

// DefaultTaskFileNameInstruction generates default task file name instruction to be passed to AI models that require it.
func DefaultTaskFileNameInstruction(name string) string {
	return fmt.Sprintf("[file: %s]", name)
}

// Usage represents the token usage statistics for a response.
type Usage struct {
	InputTokens  *int64 `json:"-"` // Tokens used by the input if available.
	OutputTokens *int64 `json:"-"` // Tokens used by the output if available.
}

// answerContentKey is the wire-format property that carries schema-based answer values.
const answerContentKey = "content"

// Answer holds the final answer of a model response. Plain-text answers carry
// a string value; schema-based answers carry the decoded answer value.
type Answer struct {
	// Content is the answer payload.
	Content interface{}
}

// MarshalJSON encodes the answer into its wire form. Plain-text answers are
// written as a JSON string and schema-based answers as an object carrying the
// value under the content property.
func (a Answer) MarshalJSON() ([]byte, error) {
	switch content := a.Content.(type) {
	case nil:
		return []byte("null"), nil
	case string:
		return json.Marshal(content)
	default:
		return json.Marshal(map[string]interface{}{answerContentKey: content})
	}
}

// UnmarshalJSON decodes the answer from its wire form: a JSON string for
// plain-text answers, null for no answer, or an object carrying the answer
// value under the content property. Any other shape is rejected.
func (a *Answer) UnmarshalJSON(data []byte) error {
	// A literal null must be handled before the string attempt because
	// unmarshaling null into a string succeeds without setting the value.
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		a.Content = nil
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		a.Content = text
		return nil
	}

	var container map[string]json.RawMessage
	if err := json.Unmarshal(data, &container); err != nil {
		return fmt.Errorf("unexpected answer value: %v", err)
	}
	rawContent, exists := container[answerContentKey]
	if !exists {
		return fmt.Errorf("answer object is missing the %q property", answerContentKey)
	}

	var content interface{}
	if err := json.Unmarshal(rawContent, &content); err != nil {
		return fmt.Errorf("malformed answer content: %v", err)
	}
	a.Content = content
	return nil
}

// Result represents the structured response received from an AI model.
type Result struct {
	// Title is a brief summary of the response.
	Title string `json:"title" validate:"required"`
	// Explanation is a detailed explanation of the answer.
	Explanation string `json:"explanation" validate:"required"`
	// FinalAnswer is the final answer to the task's query.
	FinalAnswer Answer `json:"final_answer" validate:"required"`

	duration     time.Duration          `json:"-"` // Time to generate the response.
	prompts      []string               `json:"-"` // Prompts used to generate the response.
	usage        Usage                  `json:"-"` // Token usage statistics.
	conversation agent.Conversation     `json:"-"` // Full message exchange that produced the response.
	toolCalls    []agent.ToolCallRecord `json:"-"` // Tool calls dispatched while generating the response.
}

// Explain returns a formatted explanation of the result as generated by the AI model.
func (r Result) Explain() string {
	return r.Title + "\n\n" + r.Explanation
}

// GetFinalAnswerContent returns the raw final answer value.
func (r Result) GetFinalAnswerContent() interface{} {
	return r.FinalAnswer.Content
}

// GetDuration returns the time duration it took to generate this result.
func (r Result) GetDuration() time.Duration {
	return r.duration
}

// GetPrompts returns the prompts used to generate this result.
func (r Result) GetPrompts() []string {
	return r.prompts
}

// GetUsage returns the token usage statistics for this result.
func (r Result) GetUsage() Usage {
	return r.usage
}

// GetConversation returns the full message exchange that produced this result.
func (r Result) GetConversation() agent.Conversation {
	return r.conversation
}

// GetToolCalls returns the tool calls dispatched while generating this result.
func (r Result) GetToolCalls() []agent.ToolCallRecord {
	return r.toolCalls
}

// UnmarshalUnstructuredResponse recovers a best-effort result from a plain-text
// model response. The response text is kept verbatim as the final answer.
func UnmarshalUnstructuredResponse(ctx context.Context, logger logging.Logger, content []byte, result *Result) error {
	logger.Message(ctx, logging.LevelTrace, "recovering result from unstructured response of %d bytes", len(content))
	result.Title = "Unstructured Response"
	result.Explanation = "Response obtained with structured output disabled."
	result.FinalAnswer = Answer{Content: string(content)}
	return nil
}

func timed[T any](f func() (T, error), out *time.Duration) (response T, err error) {
	start := time.Now()
	response, err = f()
	*out = time.Since(start)
	return
}

func (r *Result) recordPrompt(prompt string) string {
	r.prompts = append(r.prompts, prompt)
	return prompt
}

// recordOutcome captures the conversation, tool calls, and token usage
// of a finished loop run on the result.
func (r *Result) recordOutcome(outcome agent.Outcome) {
	r.conversation = outcome.Conversation
	r.toolCalls = outcome.ToolCalls
	recordUsage(outcome.Usage.InputTokens, outcome.Usage.OutputTokens, &r.usage)
}

func recordUsage[T constraints.Signed](inputTokens *T, outputTokens *T, out *Usage) {
	addIfNotNil(&out.InputTokens, inputTokens)
	addIfNotNil(&out.OutputTokens, outputTokens)
}

func addIfNotNil[D ~int64, S constraints.Signed](dst **D, src *S) {
	if src != nil {
		if *dst == nil {
			*dst = new(D)
		}
		**dst += D(*src)
	}
}

func isSupportedImageType(mimeType string) bool {
	return supportedImageMimeTypes[strings.ToLower(mimeType)]
}

// runBudget derives the loop budget for a run configuration.
// Unset limits fall back to the execution defaults.
func runBudget(cfg config.RunConfig) agent.Budget {
	budget := agent.Budget{
		MaxIterations: config.DefaultMaxTurns,
		MaxTokens:     config.DefaultMaxTokens,
	}
	if cfg.MaxTurns > 0 {
		budget.MaxIterations = cfg.MaxTurns
	}
	if cfg.MaxTokens > 0 {
		budget.MaxTokens = cfg.MaxTokens
	}
	return budget
}

// seedConversation builds the initial conversation for a task run.
// The resolved answer format instruction is attached as a system message when
// present, extra instructions become separate user messages, and task files
// are attached to the user prompt. All prompts are recorded on the result in
// the order they are issued.
func seedConversation(ctx context.Context, task config.Task, result *Result, instructions ...string) (agent.Conversation, error) {
	messages := make([]agent.Message, 0, len(instructions)+2)
	if instruction := DefaultAnswerFormatInstruction(task); instruction != "" {
		messages = append(messages, agent.SystemMessage(result.recordPrompt(instruction)))
	}
	for _, instruction := range instructions {
		messages = append(messages, agent.UserMessage(result.recordPrompt(instruction)))
	}

	attachments := make([]agent.Attachment, 0, len(task.Files))
	for i := range task.Files {
		file := &task.Files[i]
		mimeType, err := file.TypeValue(ctx)
		if err != nil {
			return agent.Conversation{}, fmt.Errorf("%w: %v", ErrCreatePromptRequest, err)
		}
		encoded, err := file.Base64(ctx)
		if err != nil {
			return agent.Conversation{}, fmt.Errorf("%w: %v", ErrCreatePromptRequest, err)
		}
		result.recordPrompt(DefaultTaskFileNameInstruction(file.Name))
		attachments = append(attachments, agent.Attachment{
			Name:     file.Name,
			MIMEType: mimeType,
			Data:     encoded,
		})
	}
	messages = append(messages, agent.UserMessage(result.recordPrompt(task.Prompt), attachments...))

	return agent.NewConversation(messages...), nil
}

// finalizeOutcome completes the provider result from a terminal loop outcome.
// A Done outcome has its final answer decoded according to the run
// configuration. Aborted outcomes keep the best available partial answer and
// report the matching budget sentinel. A Failed outcome propagates the loop
// error unchanged.
func finalizeOutcome(ctx context.Context, logger logging.Logger, cfg config.RunConfig, outcome agent.Outcome, runErr error, result *Result) error {
	result.recordOutcome(outcome)
	switch outcome.State {
	case agent.Done:
		content := []byte(outcome.FinalAnswer)
		if cfg.DisableStructuredOutput {
			return UnmarshalUnstructuredResponse(ctx, logger, content, result)
		}
		if err := json.Unmarshal(content, result); err != nil {
			return NewErrUnmarshalResponse(err, content, nil)
		}
		return nil
	case agent.AbortedBudget:
		recordPartialAnswer(outcome, result)
		return fmt.Errorf("%w: measured %d tokens after %d turns", ErrTokenBudgetExceeded, outcome.TokensUsed, outcome.Iterations)
	case agent.AbortedIterations:
		recordPartialAnswer(outcome, result)
		return fmt.Errorf("%w: stopped after %d turns", ErrTurnBudgetExceeded, outcome.Iterations)
	default:
		return runErr
	}
}

// recordPartialAnswer keeps the last answer content of an aborted run.
// An aborted run may already hold a complete structured answer; otherwise the
// raw assistant text is kept verbatim.
func recordPartialAnswer(outcome agent.Outcome, result *Result) {
	var structured Result
	if err := json.Unmarshal([]byte(outcome.FinalAnswer), &structured); err == nil {
		result.Title = structured.Title
		result.Explanation = structured.Explanation
		result.FinalAnswer = structured.FinalAnswer
		return
	}
	result.Title = "Partial Response"
	result.Explanation = "The run stopped before the model produced a final answer."
	result.FinalAnswer = Answer{Content: outcome.FinalAnswer}
}

// findToolByName returns the configuration of the named tool.
func findToolByName(availableTools []config.ToolConfig, name string) (*config.ToolConfig, bool) {
	for i := range availableTools {
		if availableTools[i].Name == name {
			return &availableTools[i], true
		}
	}
	return nil, false
}

// taskFilesToDataMap loads the content of all task files keyed by file name.
func taskFilesToDataMap(ctx context.Context, files []config.TaskFile) (map[string][]byte, error) {
	data := make(map[string][]byte, len(files))
	for i := range files {
		file := &files[i]
		content, err := file.Content(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read content for file %q: %v", file.Name, err)
		}
		data[file.Name] = content
	}
	return data, nil
}

// setupToolDispatcher builds a tool dispatcher for the tools selected by the task
// and returns the configurations of the selected tools in name order so that
// providers can advertise them to the model. It returns a nil dispatcher when
// the task has no tools enabled. Executors are created on first use so that
// runs without container tools never touch the Docker daemon.
func setupToolDispatcher(ctx context.Context, availableTools []config.ToolConfig, task config.Task) (*tools.Dispatcher, []config.ToolConfig, error) {
	selections, ok := task.GetResolvedToolSelector().GetEnabledToolsByName()
	if !ok {
		return nil, nil, nil
	}

	dispatcher := tools.NewDispatcher()
	selected := make([]config.ToolConfig, 0, len(selections))
	var requestExecutor *tools.RequestToolExecutor
	var dockerExecutor *tools.DockerToolExecutor
	for _, name := range utils.SortedKeys(selections) {
		selection := selections[name]
		cfg, found := findToolByName(availableTools, name)
		if !found {
			_ = dispatcher.Close()
			return nil, nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
		}
		if cfg.Request != nil {
			if requestExecutor == nil {
				requestExecutor = tools.NewRequestToolExecutor()
				dispatcher.AddExecutor(requestExecutor)
			}
			requestExecutor.RegisterTool(tools.NewRequestTool(cfg, selection))
			dispatcher.Route(*cfg, requestExecutor)
		} else {
			if dockerExecutor == nil {
				created, err := tools.NewDockerToolExecutor(ctx)
				if err != nil {
					_ = dispatcher.Close()
					return nil, nil, fmt.Errorf("%w: %v", ErrToolSetup, err)
				}
				dockerExecutor = created
				dispatcher.AddExecutor(dockerExecutor)
			}
			dockerExecutor.RegisterTool(tools.NewDockerTool(cfg, selection))
			dispatcher.Route(*cfg, dockerExecutor)
		}
		selected = append(selected, *cfg)
	}
	return dispatcher, selected, nil
}

// formatToolExecutionError renders a tool failure as plain text that can be
// returned to the model as the tool call result.
func formatToolExecutionError(err error) string {
	return fmt.Sprintf("Tool execution failed: %v", err)
}

// toolInvoker adapts a tool dispatcher to the loop's tool invocation contract.
// A tool that is not available aborts the conversation; execution and argument
// failures are fed back to the model as error-flagged results instead.
type toolInvoker struct {
	logger     logging.Logger
	dispatcher *tools.Dispatcher
	data       map[string][]byte
	policy     *config.RetryPolicy
}

// newToolInvoker creates a tool invoker over the given dispatcher.
// The data map holds task file content made available to container tools.
// Transient tool failures are retried per the given retry policy, one call
// at a time.
func newToolInvoker(logger logging.Logger, dispatcher *tools.Dispatcher, data map[string][]byte, policy *config.RetryPolicy) *toolInvoker {
	return &toolInvoker{
		logger:     logger,
		dispatcher: dispatcher,
		data:       data,
		policy:     policy,
	}
}

// Invoke dispatches a single tool call requested by the model.
func (t *toolInvoker) Invoke(ctx context.Context, call agent.ToolCall) (agent.ToolResult, error) {
	if t.dispatcher == nil {
		return agent.ToolResult{}, fmt.Errorf("%w: %s", ErrToolNotFound, call.Name)
	}

	output, err := t.dispatch(ctx, call)
	if err != nil {
		if errors.Is(err, tools.ErrToolNotAvailable) {
			return agent.ToolResult{}, fmt.Errorf("%w: %v", ErrToolNotFound, err)
		}
		return agent.ToolResult{
			CallID:  call.ID,
			Name:    call.Name,
			Content: formatToolExecutionError(err),
			IsError: true,
		}, nil
	}

	return agent.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: string(output),
	}, nil
}

// dispatch forwards the call to the dispatcher, retrying transient tool
// failures according to the retry policy. A retry repeats only this one call;
// results of earlier calls in the conversation are untouched.
func (t *toolInvoker) dispatch(ctx context.Context, call agent.ToolCall) (json.RawMessage, error) {
	if t.policy == nil || t.policy.MaxRetryAttempts == 0 {
		return t.dispatcher.Dispatch(ctx, t.logger, call.Name, call.Arguments, t.data)
	}

	backoff := newCallBackoff(ctx, t.logger, *t.policy, fmt.Sprintf("tool call %q", call.Name))
	return retry.DoValue(ctx, backoff, func(ctx context.Context) (json.RawMessage, error) {
		output, err := t.dispatcher.Dispatch(ctx, t.logger, call.Name, call.Arguments, t.data)
		if errors.Is(err, tools.ErrToolTransient) {
			t.logger.Error(ctx, logging.LevelWarn, err, "tool call encountered a transient error")
			return output, retry.RetryableError(err)
		}
		return output, err
	})
}
