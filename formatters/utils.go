// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package formatters

import (
	"cmp"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/petmal/genetrial/pkg/utils"
	"github.com/petmal/genetrial/runners"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Report status names for each result kind.
const (
	Passed    = "Passed"
	Failed    = "Failed"
	Ambiguous = "Ambiguous"
	Error     = "Error"
	Skipped   = "Skipped"
	Aborted   = "Aborted"
)

// htmlDiffContentPrefix marks answer strings that are already rendered as HTML.
const htmlDiffContentPrefix = "\x00html:"

// ToStatus converts a result kind to its report status name.
func ToStatus(kind runners.ResultKind) string {
	switch kind {
	case runners.Success:
		return Passed
	case runners.Failure:
		return Failed
	case runners.Ambiguous:
		return Ambiguous
	case runners.Error:
		return Error
	case runners.NotSupported:
		return Skipped
	case runners.AbortedBudget, runners.AbortedIterations:
		return Aborted
	default:
		return fmt.Sprintf("Unknown (%d)", kind)
	}
}

// CountByKind returns the number of results of the given kind.
func CountByKind(resultsByKind map[runners.ResultKind][]runners.RunResult, kind runners.ResultKind) int {
	return len(resultsByKind[kind])
}

// TotalDuration sums the durations of all results of the included kinds.
// With no kinds given it sums the results of every kind.
func TotalDuration(resultsByKind map[runners.ResultKind][]runners.RunResult, include ...runners.ResultKind) time.Duration {
	var total time.Duration
	if len(include) == 0 {
		include = utils.SortedKeys(resultsByKind)
	}
	for _, kind := range include {
		for _, result := range resultsByKind[kind] {
			total += result.Duration
		}
	}
	return total
}

// PassRate returns the fraction of all finished cases that passed.
func PassRate(resultsByKind map[runners.ResultKind][]runners.RunResult) float64 {
	return ratio(CountByKind(resultsByKind, runners.Success), totalCount(resultsByKind))
}

// AccuracyRate returns the fraction of validated answers that passed.
// Cases that ended in error, skip or abort do not count against accuracy.
func AccuracyRate(resultsByKind map[runners.ResultKind][]runners.RunResult) float64 {
	validated := CountByKind(resultsByKind, runners.Success) +
		CountByKind(resultsByKind, runners.Failure) +
		CountByKind(resultsByKind, runners.Ambiguous)
	return ratio(CountByKind(resultsByKind, runners.Success), validated)
}

// ErrorRate returns the fraction of all finished cases that ended in error.
func ErrorRate(resultsByKind map[runners.ResultKind][]runners.RunResult) float64 {
	return ratio(CountByKind(resultsByKind, runners.Error), totalCount(resultsByKind))
}

// Percent converts a ratio to a percentage.
func Percent(rate float64) float64 {
	return rate * 100
}

func totalCount(resultsByKind map[runners.ResultKind][]runners.RunResult) (total int) {
	for _, results := range resultsByKind {
		total += len(results)
	}
	return total
}

func ratio(part int, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

// FormatAnswer returns the presentable forms of the result's answer.
// Failed results are rendered as a diff against each accepted answer.
func FormatAnswer(result runners.RunResult, useHTML bool) []string {
	if result.Kind == runners.Failure {
		wants := result.Want.Values()
		answers := make([]string, 0, len(wants))
		for _, want := range wants {
			expected := utils.FormatValue(want)
			if useHTML {
				answers = append(answers, htmlDiffContentPrefix+DiffHTML(expected, result.Got))
			} else {
				answers = append(answers, DiffText(expected, result.Got))
			}
		}
		return answers
	}
	return []string{result.Got}
}

// DiffHTML renders the difference between expected and actual text as HTML markup.
func DiffHTML(expected string, actual string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(expected, actual, false))
	return dmp.DiffPrettyHtml(diffs)
}

// DiffText renders the difference between expected and actual text in patch format.
// Identical texts are returned unchanged.
func DiffText(expected string, actual string) string {
	dmp := diffmatchpatch.New()
	patches := dmp.PatchMake(expected, actual)
	if len(patches) == 0 {
		return actual
	}
	return dmp.PatchToText(patches)
}

// TextToHTML renders answer text as HTML markup, preserving paragraph structure.
// Content that is already rendered as HTML is passed through unchanged.
func TextToHTML(text string) template.HTML {
	if rendered, ok := strings.CutPrefix(text, htmlDiffContentPrefix); ok {
		return template.HTML(rendered) //nolint:gosec
	}
	var builder strings.Builder
	for _, paragraph := range GroupParagraphs(utils.SplitLines(text)) {
		builder.WriteString("<p>")
		for i, line := range paragraph {
			if i > 0 {
				builder.WriteString("<br>")
			}
			builder.WriteString(template.HTMLEscapeString(line))
		}
		builder.WriteString("</p>")
	}
	return template.HTML(builder.String()) //nolint:gosec
}

// GroupParagraphs groups consecutive non-blank lines into paragraphs.
// Blank lines separate paragraphs and are not part of the output.
func GroupParagraphs(lines []string) [][]string {
	paragraphs := [][]string{}
	current := []string{}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				paragraphs = append(paragraphs, current)
				current = []string{}
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, current)
	}
	return paragraphs
}

// UniqueRuns returns the distinct run configuration names present in the results
// in ascending order.
func UniqueRuns(results runners.Results) []string {
	runs := make(map[string]struct{})
	for _, runResults := range results {
		for _, result := range runResults {
			runs[result.Run] = struct{}{}
		}
	}
	return utils.SortedKeys(runs)
}

// ForEachOrdered calls fn on every map entry in ascending key order.
// It stops and returns the first error encountered.
func ForEachOrdered[K cmp.Ordered, V any](m map[K]V, fn func(key K, value V) error) error {
	for _, key := range utils.SortedKeys(m) {
		if err := fn(key, m[key]); err != nil {
			return err
		}
	}
	return nil
}

// SortedKeys returns the map's keys in ascending order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return utils.SortedKeys(m)
}

// RoundToMS rounds the duration to the nearest millisecond.
func RoundToMS(value time.Duration) time.Duration {
	return value.Round(time.Millisecond)
}

var timestamp = func(moment time.Time) string {
	return moment.Format(time.RFC1123Z)
}

// Timestamp returns the current time formatted for report headers.
func Timestamp() string {
	return timestamp(time.Now())
}
