// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/petmal/genetrial/pkg/logging"
)

// State represents the lifecycle state of a loop run.
type State int

const (
	// Running indicates that the loop has not reached a terminal state yet.
	Running State = iota
	// Done indicates that the model produced a final answer.
	Done
	// AbortedBudget indicates a hard stop because the token budget was exhausted.
	AbortedBudget
	// AbortedIterations indicates a stop because the iteration cap was reached.
	AbortedIterations
	// Failed indicates an unrecoverable model, tool, or cancellation error.
	Failed
)

// String returns the display name of the state.
func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Done:
		return "done"
	case AbortedBudget:
		return "aborted-budget"
	case AbortedIterations:
		return "aborted-iterations"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("unknown (%d)", int(s))
	}
}

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s != Running
}

// fallbackCallIDPattern names tool calls that arrived without an ID.
// The pattern is deterministic in the turn index and the call position
// within the turn so that reruns produce identical conversations.
const fallbackCallIDPattern = "call_%d_%d"

// ModelTurner produces one assistant turn for the given conversation.
// Implementations translate the neutral conversation into provider requests
// and report token usage when the backend makes it available.
type ModelTurner interface {
	GenerateTurn(ctx context.Context, conversation Conversation) (Turn, error)
}

// ToolInvoker dispatches a single tool call and returns its normalized result.
// A non-nil error means the call could not be dispatched at all, such as when
// the requested tool does not exist; execution failures inside a tool are
// reported as an error-flagged ToolResult instead.
type ToolInvoker interface {
	Invoke(ctx context.Context, call ToolCall) (ToolResult, error)
}

// ToolCallRecord pairs a dispatched tool call with its result.
type ToolCallRecord struct {
	Call     ToolCall      `json:"call"`
	Result   ToolResult    `json:"result"`
	Duration time.Duration `json:"duration"`
}

// Outcome captures the result of a single loop run.
// All fields reflect the run state at the moment it stopped,
// including partial progress of aborted or failed runs.
type Outcome struct {
	// State is the terminal state of the run.
	State State
	// FinalAnswer is the content of the concluding assistant message.
	// Aborted runs carry the last assistant content produced so far.
	FinalAnswer string
	// Conversation is the full message exchange including tool results.
	Conversation Conversation
	// ToolCalls lists every dispatched tool call paired with its result.
	ToolCalls []ToolCallRecord
	// Usage aggregates provider-reported token counts across all turns.
	Usage Usage
	// TokensUsed is the measured token total that governed the budget.
	TokensUsed int64
	// Iterations is the number of model turns generated.
	Iterations int
}

// Loop drives a model through a tool-calling conversation within a budget.
type Loop struct {
	model   ModelTurner
	tools   ToolInvoker
	counter TokenCounter
	logger  logging.Logger
}

// NewLoop creates a loop over the given model backend and tool invoker.
// If counter is nil, a deterministic rune-based estimator is used for
// turns whose provider reported no token usage.
func NewLoop(model ModelTurner, tools ToolInvoker, counter TokenCounter, logger logging.Logger) *Loop {
	if counter == nil {
		counter = RuneTokenCounter{}
	}
	return &Loop{
		model:   model,
		tools:   tools,
		counter: counter,
		logger:  logger,
	}
}

// Run executes the conversation loop seeded with the given messages until it
// reaches a terminal state. The token budget is checked before every model
// call; once the measured usage reaches the ceiling no further call is issued.
// The token ceiling is the harder stop: when it trips on the same turn as the
// iteration cap, the run reports AbortedBudget.
// Every tool call requested by the model receives exactly one result before
// the next model turn. The returned outcome is valid in all cases; the error
// is non-nil only when the run failed.
func (l *Loop) Run(ctx context.Context, seed Conversation, budget Budget) (Outcome, error) {
	outcome := Outcome{State: Running, Conversation: seed}
	if err := budget.Validate(); err != nil {
		outcome.State = Failed
		return outcome, err
	}

	for {
		if err := ctx.Err(); err != nil {
			outcome.State = Failed
			return outcome, err
		}

		turnIndex := outcome.Iterations
		l.logger.Message(ctx, logging.LevelTrace, "generating model turn %d with %d conversation messages",
			turnIndex, outcome.Conversation.Len())
		turn, err := l.model.GenerateTurn(ctx, outcome.Conversation)
		if err != nil {
			outcome.State = Failed
			return outcome, err
		}
		outcome.Iterations++
		l.recordTokens(&outcome, turn)
		assignFallbackCallIDs(turn.Message.ToolCalls, turnIndex)
		outcome.Conversation.Append(turn.Message)

		if len(turn.Message.ToolCalls) == 0 {
			outcome.FinalAnswer = turn.Message.Content
			outcome.State = Done
			l.logger.Message(ctx, logging.LevelDebug, "model produced final answer after %d turns using %d tokens",
				outcome.Iterations, outcome.TokensUsed)
			return outcome, nil
		}

		for _, call := range turn.Message.ToolCalls {
			l.logger.Message(ctx, logging.LevelDebug, "dispatching tool call %q to tool %q", call.ID, call.Name)
			started := time.Now()
			result, err := l.tools.Invoke(ctx, call)
			if err != nil {
				outcome.State = Failed
				return outcome, err
			}
			outcome.ToolCalls = append(outcome.ToolCalls, ToolCallRecord{
				Call:     call,
				Result:   result,
				Duration: time.Since(started),
			})
			outcome.Conversation.Append(ToolResultMessage(result))
		}

		if outcome.TokensUsed >= budget.MaxTokens {
			outcome.FinalAnswer = outcome.Conversation.LastAssistantContent()
			outcome.State = AbortedBudget
			l.logger.Message(ctx, logging.LevelDebug, "token budget exhausted after %d of %d tokens in %d turns",
				outcome.TokensUsed, budget.MaxTokens, outcome.Iterations)
			return outcome, nil
		}
		if outcome.Iterations >= budget.MaxIterations {
			outcome.FinalAnswer = outcome.Conversation.LastAssistantContent()
			outcome.State = AbortedIterations
			l.logger.Message(ctx, logging.LevelDebug, "iteration cap of %d turns reached using %d tokens",
				budget.MaxIterations, outcome.TokensUsed)
			return outcome, nil
		}
	}
}

// recordTokens accumulates the measured token usage of a turn.
// When the provider reported no counts, the turn cost is estimated from
// the request conversation plus the response message.
func (l *Loop) recordTokens(outcome *Outcome, turn Turn) {
	if turn.Usage.HasMeasurement() {
		outcome.Usage.Add(turn.Usage)
		outcome.TokensUsed += turn.Usage.TotalTokens()
		return
	}
	outcome.TokensUsed += l.counter.CountTokens(outcome.Conversation.Messages()...) + l.counter.CountTokens(turn.Message)
}

// assignFallbackCallIDs fills in blank tool-call IDs so that results
// can always be paired with their originating calls.
func assignFallbackCallIDs(calls []ToolCall, turnIndex int) {
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = fmt.Sprintf(fallbackCallIDPattern, turnIndex, i)
		}
	}
}
