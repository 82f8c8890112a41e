// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package providers

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/petmal/genetrial/agent"
	"github.com/petmal/genetrial/config"
	"github.com/petmal/genetrial/pkg/logging"
	"github.com/sethvargo/go-retry"
)

// BackoffWithCallback wraps a retry.Backoff with a callback function that is called
// before each retry attempt. The callback receives the next retry attempt number
// and the delay duration.
func BackoffWithCallback(onBackoff func(nextRetryAttempt uint64, nextDelay time.Duration), next retry.Backoff) retry.Backoff {
	var retryCounter uint64 = 0
	return retry.BackoffFunc(func() (nextDelay time.Duration, stop bool) {
		nextDelay, stop = next.Next()
		if stop {
			return
		}

		nextRetry := atomic.AddUint64(&retryCounter, 1)
		onBackoff(nextRetry, nextDelay)

		return
	})
}

// newCallBackoff builds the backoff schedule for retrying a single model or
// tool call under the given policy. Each scheduled retry is logged together
// with the call description.
func newCallBackoff(ctx context.Context, logger logging.Logger, policy config.RetryPolicy, call string) retry.Backoff {
	initialDelay := time.Duration(policy.InitialDelaySeconds) * time.Second
	if initialDelay <= 0 {
		initialDelay = time.Millisecond // exponential backoff requires a positive base
	}
	backoff := retry.NewExponential(initialDelay)
	backoff = retry.WithMaxRetries(uint64(policy.MaxRetryAttempts), backoff)
	return BackoffWithCallback(func(nextRetryAttempt uint64, nextDelay time.Duration) {
		logger.Message(ctx, logging.LevelInfo, "retrying %s %d/%d in %v",
			call, nextRetryAttempt, policy.MaxRetryAttempts, nextDelay)
	}, backoff)
}

// withTurnRetry wraps a model turner so that each individual model call is
// retried on transient errors according to the run retry policy. Retrying a
// single turn keeps the conversation built so far, so completed tool calls
// are never replayed. Without an effective policy the turner is returned
// unchanged.
func withTurnRetry(next agent.ModelTurner, policy *config.RetryPolicy, logger logging.Logger) agent.ModelTurner {
	if policy == nil || policy.MaxRetryAttempts == 0 {
		return next
	}
	return &retryTurner{next: next, policy: *policy, logger: logger}
}

// retryTurner retries individual model turns on transient errors.
type retryTurner struct {
	next   agent.ModelTurner
	policy config.RetryPolicy
	logger logging.Logger
}

// GenerateTurn implements agent.ModelTurner.
func (t *retryTurner) GenerateTurn(ctx context.Context, conversation agent.Conversation) (agent.Turn, error) {
	backoff := newCallBackoff(ctx, t.logger, t.policy, "model call")
	return retry.DoValue(ctx, backoff, func(ctx context.Context) (agent.Turn, error) {
		turn, err := t.next.GenerateTurn(ctx, conversation)
		if errors.Is(err, ErrRetryable) {
			t.logger.Error(ctx, logging.LevelWarn, err, "model call encountered a transient error")
			return turn, retry.RetryableError(err)
		}
		return turn, err
	})
}
