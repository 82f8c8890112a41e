// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package validators provides validation mechanisms for AI model responses.
// It includes support for both value matching and LLM-based
// semantic equivalence validation using judge models.
package validators

import (
	"context"

	"github.com/petmal/genetrial/config"
	"github.com/petmal/genetrial/pkg/logging"
	"github.com/petmal/genetrial/pkg/utils"
	"github.com/petmal/genetrial/providers"
)

// Verdict classifies the outcome of a validation check.
type Verdict int

const (
	// VerdictPass means the response matches an accepted answer.
	VerdictPass Verdict = iota
	// VerdictFail means the response matches no accepted answer.
	VerdictFail
	// VerdictAmbiguous means the validator could not decide either way.
	VerdictAmbiguous
	// VerdictError means the validation itself could not be carried out.
	VerdictError
)

// String returns a human-readable name for the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "pass"
	case VerdictFail:
		return "fail"
	case VerdictAmbiguous:
		return "ambiguous"
	case VerdictError:
		return "error"
	default:
		return logging.UnknownLogValue
	}
}

// ValidationResult contains the result of a validation check.
type ValidationResult struct {
	// Verdict classifies the validation outcome.
	Verdict Verdict
	// Title provides a descriptive title for the validation type.
	Title string
	// Explanation provides an optional explanation of the validation result.
	Explanation string
	// assessment contains the original assessment result.
	// This field may not be populated by all validators.
	assessment *providers.Result
}

// Explain returns a formatted explanation of the validation result.
func (vr ValidationResult) Explain() string {
	return vr.Title + "\n\n" + vr.Explanation
}

// GetAssessmentResult returns the original assessment provider result if available.
func (vr ValidationResult) GetAssessmentResult() *providers.Result {
	return vr.assessment
}

// Validator verifies AI model responses.
type Validator interface {
	// IsCorrect checks if result matches expected values using the provided validation rules.
	// The originalPrompt and expectedResponseFormat provide additional context for semantic validation.
	IsCorrect(ctx context.Context, logger logging.Logger, rules config.ValidationRules, expected utils.ValueSet, actual providers.Result, originalPrompt string, expectedResponseFormat config.ResponseFormat) (ValidationResult, error)
	// ToCanonical normalizes a value for validation using the provided validation rules.
	ToCanonical(rules config.ValidationRules, value interface{}) interface{}
	// GetName returns a descriptive user-friendly name for the validator.
	GetName() string
	// Close cleans up any resources used by the validator.
	Close(ctx context.Context) error
}
