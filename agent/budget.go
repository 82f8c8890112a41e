// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package agent

import (
	"errors"
	"fmt"

	validator "gopkg.in/validator.v2"
)

// ErrInvalidBudget indicates that a run budget does not satisfy its constraints.
var ErrInvalidBudget = errors.New("invalid run budget")

// Budget bounds a single loop run.
// A run never issues another model call once either limit is reached.
type Budget struct {
	// MaxIterations is the maximum number of model turns. Must be at least 1.
	MaxIterations int `validate:"min=1"`
	// MaxTokens is the token ceiling for the whole run. Must be positive.
	MaxTokens int64 `validate:"min=1"`
}

// Validate checks that the budget satisfies its constraints.
func (b Budget) Validate() error {
	if err := validator.Validate(b); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBudget, err)
	}
	return nil
}
