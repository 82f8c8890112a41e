// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package execution provides unified provider execution patterns for the GeneTrial application.
// It handles common execution concerns such as rate limiting, cancellation, and error handling
// that are shared between different components like trial runners and validators.
package execution

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/petmal/genetrial/config"
	"github.com/petmal/genetrial/pkg/logging"
	"github.com/petmal/genetrial/providers"
)

// Executor provides a unified way to execute provider tasks with rate limiting.
type Executor struct {
	Provider  providers.Provider
	RunConfig config.RunConfig
	limiter   *rate.Limiter
}

// NewExecutor creates a new provider executor with the given provider and run configuration.
func NewExecutor(provider providers.Provider, runConfig config.RunConfig) *Executor {
	var limiter *rate.Limiter
	if runConfig.MaxRequestsPerMinute > 0 {
		ratePerSecond := rate.Limit(runConfig.MaxRequestsPerMinute) / 60
		limiter = rate.NewLimiter(ratePerSecond, runConfig.MaxRequestsPerMinute) // allow a burst up to the per-minute limit
	}

	return &Executor{
		Provider:  provider,
		RunConfig: runConfig,
		limiter:   limiter,
	}
}

// Execute runs the task using the configured provider, applying rate limiting
// as configured. The run retry policy is applied by the provider to each
// individual model and tool call, so a transient error mid-conversation never
// restarts the whole task run or replays completed tool calls.
func (e *Executor) Execute(ctx context.Context, logger logging.Logger, task config.Task) (result providers.Result, err error) {
	if err = ctx.Err(); err != nil {
		logger.Error(ctx, logging.LevelWarn, err, "aborting task")
		return
	}

	if e.limiter != nil {
		if err = e.limiter.Wait(ctx); err != nil {
			logger.Error(ctx, logging.LevelWarn, err, "aborting task")
			return
		}
	}

	return e.Provider.Run(ctx, logger, e.RunConfig, task)
}
