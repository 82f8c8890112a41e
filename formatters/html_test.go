// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package formatters

import (
	"sync"
	"testing"
	"time"

	"github.com/petmal/genetrial/pkg/testutils"
	"github.com/petmal/genetrial/runners"
	"github.com/stretchr/testify/assert"
)

var timestampLock sync.Mutex
var currentVersionDataLock sync.Mutex

func TestHTMLFormatterWrite(t *testing.T) {
	tests := []struct {
		name    string
		results runners.Results
		want    []string
		notWant []string
	}{
		{
			name:    "format no results",
			results: runners.Results{},
			want: []string{
				"<title>GeneTrial Results</title>",
				"<h1>GeneTrial Results</h1>",
				"Generated on 1985-03-04T22:10:00 by <a href=\"github.com/petmal/genetrial\">GeneTrial</a> (testing)",
			},
			notWant: []string{
				"provider-name",
				"Run configurations:",
			},
		},
		{
			name:    "format some results",
			results: mockResults,
			want: []string{
				"<h2>provider-name</h2>",
				"Run configurations: run-aborted-budget, run-aborted-iterations, run-ambiguous, run-error, run-failure, run-failure-multiple-answers, run-not-supported, run-success",
				"<h3>run-success</h3>",
				"<h3>run-failure-multiple-answers</h3>",
				"class=\"status status-Passed\">Passed</td>",
				"class=\"status status-Failed\">Failed</td>",
				"class=\"status status-Ambiguous\">Ambiguous</td>",
				"class=\"status status-Error\">Error</td>",
				"class=\"status status-Skipped\">Skipped</td>",
				"class=\"status status-Aborted\">Aborted</td>",
				"<td>cftr gene identification</td>",
				"<td>phenylalanine hydroxylase locus</td>",
				"<td>in:120 out:34</td>",
				"<td>in:405 out:52</td>",
				"<td>in:- out:-</td>",
				"<del style=\"background:#ffe6e6;\">BRCA2</del><ins style=\"background:#e6ffe6;\">TP53</ins>",
				"<summary>Gene Identification</summary>",
				"<summary>Semantic Assessment</summary>",
				"<summary>Token Budget Exceeded</summary>",
				"<p>Verdict: 2</p>",
				"<td>1m35s</td>",
				"<td>3m0.8s</td>",
			},
			notWant: []string{
				textAnswerSeparator,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutils.SyncCall(&timestampLock, func() {
				// Set fixed timestamp to produce consistent results.
				originalTimestamp := timestamp
				timestamp = func(_ time.Time) string {
					return "1985-03-04T22:10:00"
				}
				defer func() { timestamp = originalTimestamp }()

				testutils.SyncCall(&currentVersionDataLock, func() {
					// Set fixed version metadata to produce consistent results.
					originalCurrentVersionData := currentVersionData
					currentVersionData = VersionData{
						Name:    "GeneTrial",
						Version: "(testing)",
						Source:  "github.com/petmal/genetrial",
					}
					defer func() { currentVersionData = originalCurrentVersionData }()
					formatter := NewHTMLFormatter()
					gotFilePath := writeFormatterOutputToFile(t, formatter, tt.results)
					testutils.AssertFileContains(t, gotFilePath, tt.want, tt.notWant)
				})
			})
		})
	}
}

func TestHTMLFormatterFileExt(t *testing.T) {
	formatter := NewHTMLFormatter()
	assert.Equal(t, "html", formatter.FileExt())
}
