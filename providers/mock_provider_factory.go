//go:build test

// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package providers

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/petmal/genetrial/config"
	"github.com/petmal/genetrial/pkg/logging"
	"github.com/petmal/genetrial/pkg/testutils"
)

// mockJudgeTaskName matches the task name used by the judge validator
// so the mock can answer judge evaluation prompts.
const mockJudgeTaskName = "judge_evaluation"

// mockRetryTaskPrefix selects the transient-failure scenario.
// The suffix gives the number of attempts that must fail before one succeeds.
const mockRetryTaskPrefix = "retry_"

// mockOverlapTaskPrefix selects the concurrency scenario. The suffix gives the
// number of calls that must be in flight on the provider at the same time
// before any of them may return.
const mockOverlapTaskPrefix = "overlap_"

// mockOverlapTimeout bounds how long an overlap scenario waits for its
// companion calls before failing.
const mockOverlapTimeout = 500 * time.Millisecond

// MockProvider simulates provider behavior for tests.
// The scenario is selected by the run configuration name, the task name,
// or, for judge evaluations, by the candidate response inside the prompt.
type MockProvider struct {
	name        string
	overlapLock sync.Mutex
	overlaps    map[string]*overlapGate
}

// overlapGate releases every waiting call once the required number of calls
// has arrived.
type overlapGate struct {
	arrived int
	release chan struct{}
}

func (m *MockProvider) Name() string {
	return m.name
}

func (m *MockProvider) Run(ctx context.Context, logger logging.Logger, cfg config.RunConfig, task config.Task) (result Result, err error) {
	result = Result{
		Title: task.Name,
		prompts: []string{
			"Answer using approved HGNC gene symbols.",
			"Report coordinates on the GRCh38 assembly.",
			"Respond with a single declarative sentence.",
		},
		usage: Usage{
			InputTokens:  testutils.Ptr(int64(642317)),
			OutputTokens: nil,
		},
		duration: 1845 * time.Millisecond,
	}

	if task.Name == mockJudgeTaskName {
		return m.runJudge(cfg, task, result)
	}

	switch cfg.Name {
	case "pass":
		result.Explanation = "mock pass"
		result.FinalAnswer = Answer{Content: task.ExpectedResult.Values()[0]}
		return result, nil
	case "custom":
		result.FinalAnswer = Answer{Content: task.Name}
		return result, nil
	}

	switch {
	case task.Name == "error":
		return result, fmt.Errorf("mock error")
	case task.Name == "not_supported":
		return result, fmt.Errorf("%w: %s", ErrFeatureNotSupported, "mock not supported")
	case task.Name == "budget_tokens":
		return result, fmt.Errorf("%w: %s", ErrTokenBudgetExceeded, "mock token budget")
	case task.Name == "budget_turns":
		return result, fmt.Errorf("%w: %s", ErrTurnBudgetExceeded, "mock turn budget")
	case task.Name == "failure":
		result.Explanation = "mock failure"
		result.FinalAnswer = Answer{Content: "The variant lies in an intergenic region of chromosome 4."}
	case strings.HasPrefix(task.Name, mockOverlapTaskPrefix):
		if err := m.awaitOverlap(ctx, strings.TrimPrefix(task.Name, mockOverlapTaskPrefix)); err != nil {
			return result, err
		}
		result.Explanation = "mock overlap"
		result.FinalAnswer = Answer{Content: task.ExpectedResult.Values()[0]}
	case strings.HasPrefix(task.Name, mockRetryTaskPrefix):
		attempts, err := simulateCallRetries(cfg, strings.TrimPrefix(task.Name, mockRetryTaskPrefix))
		if err != nil {
			return result, err
		}
		result.Explanation = fmt.Sprintf("mock success after %d attempts", attempts)
		result.FinalAnswer = Answer{Content: task.ExpectedResult.Values()[0]}
	default:
		result.Explanation = "mock success"
		result.FinalAnswer = Answer{Content: task.ExpectedResult.Values()[0]}
	}

	return result, nil
}

// simulateCallRetries models a call that fails transiently the number of times
// given by the scenario suffix. As the real providers retry each individual
// call internally per the run retry policy, the simulated call succeeds only
// when the policy allows at least that many retries; otherwise the transient
// error of the last permitted attempt surfaces. It returns the number of
// attempts the call consumed on success.
func simulateCallRetries(cfg config.RunConfig, spec string) (attempts int, err error) {
	failureCount, _, _ := strings.Cut(spec, ": ")
	failures, _ := strconv.Atoi(failureCount)

	var allowedRetries int
	if cfg.RetryPolicy != nil {
		allowedRetries = int(cfg.RetryPolicy.MaxRetryAttempts)
	}
	if failures > allowedRetries {
		return 0, WrapErrGenerateResponse(WrapErrRetryable(fmt.Errorf("mock transient error (retry %d)", allowedRetries)))
	}
	return failures + 1, nil
}

// awaitOverlap blocks until the required number of concurrent calls has
// arrived on this provider. The scenario fails when the companions do not
// show up in time, which is the observable outcome of serialized dispatch.
func (m *MockProvider) awaitOverlap(ctx context.Context, spec string) error {
	countSpec, _, _ := strings.Cut(spec, ": ")
	required, _ := strconv.Atoi(countSpec)

	m.overlapLock.Lock()
	gate, exists := m.overlaps[countSpec]
	if !exists {
		gate = &overlapGate{release: make(chan struct{})}
		m.overlaps[countSpec] = gate
	}
	gate.arrived++
	if gate.arrived == required {
		close(gate.release)
	}
	m.overlapLock.Unlock()

	select {
	case <-gate.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(mockOverlapTimeout):
		return fmt.Errorf("mock overlap timeout waiting for %d concurrent calls", required)
	}
}

// runJudge answers a judge evaluation prompt. The verdict is "1" if the candidate
// response parsed from the prompt matches any expected answer bullet, "0" if not,
// and "2" if the candidate is the literal "ambiguous". A candidate of "error" fails
// the evaluation, and a "retry_<n>" candidate behaves like the transient-failure
// scenario before grading its payload.
func (m *MockProvider) runJudge(cfg config.RunConfig, task config.Task, result Result) (Result, error) {
	candidate, expected := parseMockJudgePrompt(task.Prompt)

	attempts := 1
	if spec, ok := strings.CutPrefix(candidate, mockRetryTaskPrefix); ok {
		consumed, err := simulateCallRetries(cfg, spec)
		if err != nil {
			return result, err
		}
		_, payload, _ := strings.Cut(spec, ": ")
		candidate = payload
		attempts = consumed
	}

	switch {
	case candidate == "error":
		return result, fmt.Errorf("mock error")
	case candidate == "ambiguous":
		result.FinalAnswer = Answer{Content: "2"}
	case slices.Contains(expected, candidate):
		result.FinalAnswer = Answer{Content: "1"}
	default:
		result.FinalAnswer = Answer{Content: "0"}
	}

	if attempts > 1 {
		result.Explanation = fmt.Sprintf("mock success after %d attempts", attempts)
	} else {
		result.Explanation = "mock success"
	}

	return result, nil
}

// parseMockJudgePrompt extracts the candidate response and the expected answer
// bullets from a judge evaluation prompt.
func parseMockJudgePrompt(prompt string) (candidate string, expected []string) {
	lines := strings.Split(prompt, "\n")
	for i := 0; i < len(lines); i++ {
		switch {
		case strings.HasPrefix(lines[i], "Expected answer"):
			for j := i + 1; j < len(lines); j++ {
				bullet, ok := strings.CutPrefix(lines[j], "- ")
				if !ok {
					break
				}
				expected = append(expected, bullet)
			}
		case strings.HasPrefix(lines[i], "Candidate response:"):
			var body []string
			for j := i + 1; j < len(lines) && strings.TrimSpace(lines[j]) != ""; j++ {
				body = append(body, lines[j])
			}
			candidate = strings.TrimSpace(strings.Join(body, "\n"))
		}
	}
	return candidate, expected
}

func (m *MockProvider) Close(ctx context.Context) error {
	return nil
}

func NewProvider(ctx context.Context, cfg config.ProviderConfig, availableTools []config.ToolConfig) (Provider, error) {
	return &MockProvider{
		name:     cfg.Name,
		overlaps: make(map[string]*overlapGate),
	}, nil
}
