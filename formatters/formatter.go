// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package formatters provides output formatting functionality for GeneTrial results.
// It supports multiple output formats including HTML, CSV, and text logs.
package formatters

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/petmal/genetrial/runners"
)

const textAnswerSeparator = "---\n"

// ErrPrintResults indicates that result formatting failed.
var ErrPrintResults = errors.New("failed to print formatted results")

// Formatter handles converting results into specific output formats.
type Formatter interface {
	// FileExt returns the formatter's file extension.
	FileExt() string
	// Write outputs formatted results to the writer.
	Write(results runners.Results, out io.Writer) error
}

// formatAnswerText returns a single plain text block containing all possible formatted answers separated by a separator
// for CSV and other text-based outputs.
func formatAnswerText(result runners.RunResult) string {
	return strings.TrimSpace(strings.Join(FormatAnswer(result, false), textAnswerSeparator))
}

// formatDetailsText returns a single plain text block describing the result details
// for CSV and other text-based outputs.
func formatDetailsText(result runners.RunResult) string {
	sections := make([]string, 0, 3)
	if answer := result.Details.Answer; answer.Title != "" {
		sections = append(sections, joinTitledLines(answer.Title, answer.Explanation))
	}
	if validation := result.Details.Validation; validation.Title != "" {
		sections = append(sections, joinTitledLines(validation.Title, validation.Explanation))
	}
	if failure := result.Details.Error; failure.Title != "" {
		sections = append(sections, joinTitledLines(failure.Title, []string{failure.Message}))
	}
	return strings.Join(sections, "\n\n")
}

func joinTitledLines(title string, lines []string) string {
	if len(lines) == 0 {
		return title
	}
	return title + "\n" + strings.Join(lines, "\n")
}

// FormatTokenUsage renders the total token usage of a result row.
// Counts that no provider reported are rendered as "-".
func FormatTokenUsage(result runners.RunResult) string {
	input := sumTokenCounts(
		result.Details.Answer.Usage.InputTokens,
		result.Details.Validation.Usage.InputTokens,
		result.Details.Error.Usage.InputTokens)
	output := sumTokenCounts(
		result.Details.Answer.Usage.OutputTokens,
		result.Details.Validation.Usage.OutputTokens,
		result.Details.Error.Usage.OutputTokens)
	return "in:" + formatTokenCount(input) + " out:" + formatTokenCount(output)
}

func sumTokenCounts(counts ...*int64) *int64 {
	var total *int64
	for _, count := range counts {
		if count == nil {
			continue
		}
		if total == nil {
			total = new(int64)
		}
		*total += *count
	}
	return total
}

func formatTokenCount(value *int64) string {
	if value == nil {
		return "-"
	}
	return strconv.FormatInt(*value, 10)
}
