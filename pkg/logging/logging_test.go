// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package logging_test

import (
	"log/slog"
	"testing"

	"github.com/petmal/genetrial/pkg/logging"
	"github.com/petmal/genetrial/pkg/testutils"
	"github.com/stretchr/testify/assert"
)

func TestFormatLogInt64(t *testing.T) {
	tests := []struct {
		name     string
		value    *int64
		expected string
	}{
		{
			name:     "nil pointer",
			value:    nil,
			expected: logging.UnknownLogValue,
		},
		{
			name:     "zero value",
			value:    testutils.Ptr(int64(0)),
			expected: "0",
		},
		{
			name:     "positive value",
			value:    testutils.Ptr(int64(642317)),
			expected: "642317",
		},
		{
			name:     "negative value",
			value:    testutils.Ptr(int64(-1)),
			expected: "-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := logging.FormatLogInt64(tt.value)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestFormatLogText(t *testing.T) {
	tests := []struct {
		name     string
		lines    []string
		expected string
	}{
		{
			name:     "empty slice",
			lines:    []string{},
			expected: "\t" + logging.UnknownLogValue,
		},
		{
			name:     "nil slice",
			lines:    nil,
			expected: "\t" + logging.UnknownLogValue,
		},
		{
			name:     "single line",
			lines:    []string{"The gene is CFTR."},
			expected: "\tThe gene is CFTR.",
		},
		{
			name:     "multiple lines",
			lines:    []string{"The gene is CFTR.", "It maps to 7q31.2.", "The inheritance is autosomal recessive."},
			expected: "\tThe gene is CFTR.\n\n\tIt maps to 7q31.2.\n\n\tThe inheritance is autosomal recessive.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := logging.FormatLogText(tt.lines)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestLogLevels(t *testing.T) {
	assert.Equal(t, slog.Level(-8), logging.LevelTrace) //nolint:testifylint
	assert.Equal(t, slog.LevelDebug, logging.LevelDebug)
	assert.Equal(t, slog.LevelInfo, logging.LevelInfo)
	assert.Equal(t, slog.LevelWarn, logging.LevelWarn)
	assert.Equal(t, slog.LevelError, logging.LevelError)
}
