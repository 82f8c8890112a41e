// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package runners provides interfaces and implementations for executing GeneTrial tasks and collecting their results.
package runners

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/petmal/genetrial/config"
	"github.com/petmal/genetrial/pkg/logging"
	"github.com/petmal/genetrial/pkg/utils"
)

// Success indicates that task finished successfully with correct result.
// Failure indicates that task finished successfully but with incorrect result.
// Ambiguous indicates that task finished but correctness could not be determined.
// Error indicates that task failed to produce a result.
// NotSupported indicates that task requires a feature the provider does not support.
// AbortedBudget indicates that task was aborted after exhausting its token budget.
// AbortedIterations indicates that task was aborted after reaching its turn limit.
const (
	Success ResultKind = iota
	Failure
	Ambiguous
	Error
	NotSupported
	AbortedBudget
	AbortedIterations
)

const runResultIDPrefix = "run"

var validIDCharMatcher = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// ResultKind represents the task execution result status.
type ResultKind int

// String returns a stable name of the result kind.
func (k ResultKind) String() string {
	switch k {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Ambiguous:
		return "ambiguous"
	case Error:
		return "error"
	case NotSupported:
		return "not_supported"
	case AbortedBudget:
		return "aborted_budget"
	case AbortedIterations:
		return "aborted_iterations"
	default:
		return logging.UnknownLogValue
	}
}

// resultKindFromName maps a stored kind name back to its ResultKind.
// Unrecognized names map to Error.
func resultKindFromName(name string) ResultKind {
	switch name {
	case "success":
		return Success
	case "failure":
		return Failure
	case "ambiguous":
		return Ambiguous
	case "not_supported":
		return NotSupported
	case "aborted_budget":
		return AbortedBudget
	case "aborted_iterations":
		return AbortedIterations
	default:
		return Error
	}
}

// Runner executes tasks on configured AI providers.
type Runner interface {
	// Run executes all given tasks against all run configurations
	// and blocks until they have finished.
	Run(ctx context.Context, tasks []config.Task) (ResultSet, error)
	// Start begins executing all given tasks in the background.
	// The returned result set reports progress while the run is active.
	Start(ctx context.Context, tasks []config.Task) (AsyncResultSet, error)
	// Close releases resources when the runner is no longer needed.
	Close(ctx context.Context)
}

// ResultSet provides access to the results of a trial run.
type ResultSet interface {
	// GetResults returns results of all finished task runs.
	// If the run is still in progress, the call blocks until it completes.
	GetResults() Results
}

// AsyncResultSet provides access to the results of a trial run
// that executes in the background.
type AsyncResultSet interface {
	ResultSet
	// ProgressEvents returns a channel that receives overall completion
	// ratios between 0.0 and 1.0. The channel is closed when the run finishes.
	ProgressEvents() <-chan float32
	// MessageEvents returns a channel that receives log messages from the active run.
	// The channel is closed when the run finishes.
	MessageEvents() <-chan string
	// Cancel aborts the remaining work.
	// Cases that already finished keep their results.
	Cancel()
}

// Results stores task results for each provider.
type Results map[string][]RunResult

// ProviderResultsByRunAndKind organizes results by run configuration and result kind.
func (r Results) ProviderResultsByRunAndKind(provider string) map[string]map[ResultKind][]RunResult {
	resultsByRunAndKind := make(map[string]map[ResultKind][]RunResult)
	for _, result := range r[provider] {
		current, ok := resultsByRunAndKind[result.Run]
		if !ok {
			current = make(map[ResultKind][]RunResult)
		}
		current[result.Kind] = append(current[result.Kind], result)
		resultsByRunAndKind[result.Run] = current
	}
	return resultsByRunAndKind
}

// RunResult represents the outcome of executing a single task.
type RunResult struct {
	// Kind indicates the result status.
	Kind ResultKind
	// Task is the name of the executed task.
	Task string
	// Provider is the name of the AI provider that executed the task.
	Provider string
	// Run is the name of the provider's run configuration used.
	Run string
	// Got is the actual answer received from the AI model, in canonical form.
	Got string
	// Want holds the accepted answers for the task, in canonical form.
	Want utils.ValueSet
	// Details contains additional information about the task result.
	Details Details
	// Duration represents the time taken to generate the response.
	Duration time.Duration
}

// GetID generates a unique, sanitized identifier for the RunResult.
// The ID must be non-empty, must not contain whitespace, must begin with a letter,
// and must only include letters, digits, dashes (-), and underscores (_).
func (r RunResult) GetID() (sanitizedTaskID string) {
	uniqueTaskID := fmt.Sprintf("%s-%s-%s-%s", runResultIDPrefix, r.Provider, r.Run, r.Task)
	sanitizedTaskID = strings.ReplaceAll(uniqueTaskID, " ", "-")
	sanitizedTaskID = validIDCharMatcher.ReplaceAllString(sanitizedTaskID, "_")
	return sanitizedTaskID
}

// Details contains detailed information about a task run outcome.
type Details struct {
	// Answer describes the answer produced by the provider.
	Answer AnswerDetails
	// Validation describes how the answer was assessed.
	Validation ValidationDetails
	// Error describes the failure if the task run did not complete.
	Error ErrorDetails
}

// AnswerDetails describes the answer produced by a provider during a task run.
type AnswerDetails struct {
	// Title is a short description of the answer.
	Title string
	// Explanation contains the reasoning behind the answer, split into lines.
	Explanation []string
	// ActualAnswer contains the produced final answer, split into lines.
	ActualAnswer []string
	// ExpectedAnswer contains the accepted answers, each split into lines.
	ExpectedAnswer [][]string
	// Usage reports the token usage of the answer generation.
	Usage TokenUsage
}

// ValidationDetails describes how an answer was assessed.
type ValidationDetails struct {
	// Title is a short description of the assessment method.
	Title string
	// Explanation contains the assessment outcome, split into lines.
	Explanation []string
	// Usage reports the token usage of the assessment if a judge was used.
	Usage TokenUsage
}

// ErrorDetails describes a task run failure.
type ErrorDetails struct {
	// Title is a short description of the failure.
	Title string
	// Message is the failure message.
	Message string
	// Usage reports the token usage accumulated before the failure.
	Usage TokenUsage
}

// TokenUsage reports the number of tokens consumed by a model interaction.
// A nil value means the number was not reported by the provider.
type TokenUsage struct {
	// InputTokens is the number of tokens in the submitted prompts.
	InputTokens *int64
	// OutputTokens is the number of tokens in the generated responses.
	OutputTokens *int64
}

// toLines splits each value in the set into individual display lines.
func toLines(values utils.ValueSet) [][]string {
	items := values.Values()
	lines := make([][]string, 0, len(items))
	for _, value := range items {
		lines = append(lines, utils.SplitLines(utils.FormatValue(value)))
	}
	return lines
}
