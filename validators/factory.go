// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package validators

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/petmal/genetrial/config"
)

const valueMatchValidatorCacheKey = "value_match_validator"

var (
	// ErrJudgeNotFound is returned when a judge configuration is not found.
	ErrJudgeNotFound = errors.New("judge not found")
	// ErrJudgeVariantNotFound is returned when a judge run variant is not found.
	ErrJudgeVariantNotFound = errors.New("judge run variant not found")
)

// judgeKey identifies a judge run variant by judge name and variant name.
type judgeKey struct {
	name    string
	variant string
}

// judgeBinding pairs a judge configuration with one of its run variant configurations.
type judgeBinding struct {
	judge *config.JudgeConfig
	run   *config.RunConfig
}

// Factory creates and manages validator instances.
// Validators are cached so repeated lookups reuse the same instance.
type Factory struct {
	cache      sync.Map
	judgeNames map[string]struct{}
	bindings   map[judgeKey]judgeBinding
}

// NewFactory creates a new validator factory with the provided judge configurations.
func NewFactory(availableJudges []config.JudgeConfig) *Factory {
	f := &Factory{
		judgeNames: make(map[string]struct{}, len(availableJudges)),
		bindings:   make(map[judgeKey]judgeBinding),
	}

	for i := range availableJudges {
		judge := &availableJudges[i]
		f.judgeNames[judge.Name] = struct{}{}

		for j := range judge.Provider.Runs {
			run := &judge.Provider.Runs[j]
			f.bindings[judgeKey{name: judge.Name, variant: run.Name}] = judgeBinding{
				judge: judge,
				run:   run,
			}
		}
	}

	return f
}

func (f *Factory) createJudgeCacheKey(judge config.JudgeSelector) string {
	return fmt.Sprintf("judge_%s_%s", judge.GetName(), judge.GetVariant())
}

// GetValidator returns a validator for the given judge selector.
// If judge is enabled, returns a cached judge validator; otherwise returns a value match validator.
func (f *Factory) GetValidator(ctx context.Context, judge config.JudgeSelector) (Validator, error) {
	if judge.IsEnabled() {
		return f.getJudgeValidator(ctx, judge)
	}
	return f.getValueMatchValidator(), nil
}

// AssertExists checks if a judge configuration exists for the given judge selector.
// Returns an error if the judge configuration does not exist.
func (f *Factory) AssertExists(judge config.JudgeSelector) error {
	_, _, err := f.lookupJudgeConfig(judge)
	return err
}

func (f *Factory) getValueMatchValidator() Validator {
	if validator, exists := f.cache.Load(valueMatchValidatorCacheKey); exists {
		return validator.(Validator)
	}

	actual, _ := f.cache.LoadOrStore(valueMatchValidatorCacheKey, NewValueMatchValidator())
	return actual.(Validator)
}

// lookupJudgeConfig resolves the judge configuration and run variant configuration for the given selector.
// A missing judge name and a missing run variant report distinct errors.
func (f *Factory) lookupJudgeConfig(judge config.JudgeSelector) (*config.JudgeConfig, *config.RunConfig, error) {
	judgeName := judge.GetName()
	judgeVariant := judge.GetVariant()

	if _, exists := f.judgeNames[judgeName]; !exists {
		return nil, nil, fmt.Errorf("%w: %s", ErrJudgeNotFound, judgeName)
	}

	binding, exists := f.bindings[judgeKey{name: judgeName, variant: judgeVariant}]
	if !exists {
		return nil, nil, fmt.Errorf("%w: %s for judge %s", ErrJudgeVariantNotFound, judgeVariant, judgeName)
	}

	return binding.judge, binding.run, nil
}

func (f *Factory) getJudgeValidator(ctx context.Context, judge config.JudgeSelector) (Validator, error) {
	key := f.createJudgeCacheKey(judge)

	if validator, exists := f.cache.Load(key); exists {
		return validator.(Validator), nil
	}

	judgeConfig, judgeRunVariant, err := f.lookupJudgeConfig(judge)
	if err != nil {
		return nil, err
	}

	// Judge validators currently do not use any tools, so availableTools is nil.
	validator, err := NewJudgeValidator(ctx, judgeConfig, *judgeRunVariant, nil)
	if err != nil {
		return nil, err
	}

	actual, _ := f.cache.LoadOrStore(key, validator)
	return actual.(Validator), nil
}

// Close closes all cached validators and returns any errors that occurred.
func (f *Factory) Close(ctx context.Context) error {
	var errs []error

	f.cache.Range(func(_, value interface{}) bool {
		if validator, ok := value.(Validator); ok {
			errs = append(errs, validator.Close(ctx))
		}
		return true
	})

	return errors.Join(errs...)
}
