// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package formatters

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"path/filepath"

	"github.com/petmal/genetrial/runners"
	"github.com/petmal/genetrial/version"
)

const templateFile = "templates/html.tmpl"

//go:embed templates/*.tmpl
var templatesFS embed.FS

var currentVersionData = VersionData{
	Name:    version.Name,
	Version: version.GetVersion(),
	Source:  version.GetSource(),
}

// VersionData contains version information included in formatted output.
type VersionData struct {
	// Name is the application name.
	Name string
	// Version is the application version string.
	Version string
	// Source is the application source code URL.
	Source string
}

// NewHTMLFormatter creates a new formatter that outputs results as an HTML document.
func NewHTMLFormatter() Formatter {
	templ := template.Must(template.New(filepath.Base(templateFile)).Funcs(template.FuncMap{
		"ToStatus":                ToStatus,
		"FormatAnswer":            FormatAnswer,
		"FormatTokenUsage":        FormatTokenUsage,
		"SortResultsByProvider":   SortedKeys[string, []runners.RunResult],
		"SortResultsByRunAndKind": SortedKeys[string, map[runners.ResultKind][]runners.RunResult],
		"CountByKind":             CountByKind,
		"TotalDuration":           TotalDuration,
		"PassRate":                PassRate,
		"AccuracyRate":            AccuracyRate,
		"Percent":                 Percent,
		"RoundToMS":               RoundToMS,
		"Timestamp":               Timestamp,
		"TextToHTML":              TextToHTML,
		"SafeHTML": func(s string) template.HTML {
			return template.HTML(s) //nolint:gosec
		},
	}).ParseFS(templatesFS, templateFile))
	return &htmlFormatter{
		templ: templ,
	}
}

type htmlFormatter struct {
	templ *template.Template
}

// resultKinds exposes the result kind constants to the report template.
type resultKinds struct {
	Success           runners.ResultKind
	Failure           runners.ResultKind
	Ambiguous         runners.ResultKind
	Error             runners.ResultKind
	NotSupported      runners.ResultKind
	AbortedBudget     runners.ResultKind
	AbortedIterations runners.ResultKind
}

func (f htmlFormatter) FileExt() string {
	return "html"
}

func (f htmlFormatter) Write(results runners.Results, out io.Writer) error {
	if err := f.templ.Execute(out, struct {
		ResultsData runners.Results
		RunNames    []string
		VersionData VersionData
		Kinds       resultKinds
	}{
		ResultsData: results,
		RunNames:    UniqueRuns(results),
		VersionData: currentVersionData,
		Kinds: resultKinds{
			Success:           runners.Success,
			Failure:           runners.Failure,
			Ambiguous:         runners.Ambiguous,
			Error:             runners.Error,
			NotSupported:      runners.NotSupported,
			AbortedBudget:     runners.AbortedBudget,
			AbortedIterations: runners.AbortedIterations,
		},
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrPrintResults, err)
	}
	return nil
}
