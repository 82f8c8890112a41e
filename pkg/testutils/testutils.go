// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package testutils provides shared helpers for trial tests: output capture,
// temporary test files, content assertions, and mock HTTP servers.
package testutils

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Process-wide state touched by the helpers below. Tests from different
// packages may run in parallel, so each piece gets its own lock.
var (
	stdoutLock sync.Mutex
	osArgsLock sync.Mutex
)

// Ptr returns a pointer to the given value.
func Ptr[T any](value T) *T {
	return &value
}

// SyncCall executes fn while holding the given mutex.
func SyncCall(lock *sync.Mutex, fn func()) {
	lock.Lock()
	defer lock.Unlock()
	fn()
}

// CaptureStdout redirects os.Stdout to a scratch file for the duration of fn
// and returns everything the function printed. Captures are serialized so
// concurrent tests cannot interleave their output.
func CaptureStdout(t *testing.T, fn func()) (stdout string) {
	SyncCall(&stdoutLock, func() {
		fp, err := os.CreateTemp("", "*.stdout")
		if err != nil {
			t.Fatalf("failed to create stdout capture file: %v\n", err)
		}
		defer fp.Close()

		originalStdout := os.Stdout
		defer func() { os.Stdout = originalStdout }()
		os.Stdout = fp

		fn()

		if err := fp.Sync(); err != nil {
			t.Fatalf("failed to sync stdout capture file: %v\n", err)
		}
		if _, err := fp.Seek(0, io.SeekStart); err != nil {
			t.Fatalf("failed to set read offset in stdout capture file: %v\n", err)
		}
		contents, err := io.ReadAll(fp)
		if err != nil {
			t.Fatalf("failed to read stdout capture file: %v\n", err)
		}
		stdout = string(contents)
	})
	return
}

// WithArgs swaps os.Args for the given arguments while fn runs, keeping the
// original program name as the first element. Calls are serialized.
func WithArgs(_ *testing.T, fn func(), args ...string) {
	SyncCall(&osArgsLock, func() {
		originalArgs := os.Args
		defer func() { os.Args = originalArgs }()
		os.Args = append([]string{os.Args[0]}, args...)

		fn()
	})
}

// CreateMockFile writes contents to a new temporary file matching the name
// pattern and returns its path.
func CreateMockFile(t *testing.T, namePattern string, contents []byte) string {
	fp := CreateOpenNewTestFile(t, namePattern)
	defer fp.Close()

	if _, err := fp.Write(contents); err != nil {
		t.Fatalf("failed to write test file: %v\n", err)
	}
	return fp.Name()
}

// CreateOpenNewTestFile creates and opens a new temporary test file matching
// the given name pattern. The caller must close the file.
func CreateOpenNewTestFile(t *testing.T, namePattern string) *os.File {
	fp, err := os.CreateTemp("", namePattern)
	if err != nil {
		t.Fatalf("failed to create test file: %v\n", err)
	}
	return fp
}

// ReadFile returns the entire contents of the file at the given path.
func ReadFile(t *testing.T, filePath string) []byte {
	contents, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("failed to read test file: %v\n", err)
	}
	return contents
}

// AssertContainsAll verifies that contents includes every element.
func AssertContainsAll(t *testing.T, contents string, elements []string) {
	for i := range elements {
		assert.Contains(t, contents, elements[i])
	}
}

// AssertContainsNone verifies that contents includes none of the elements.
func AssertContainsNone(t *testing.T, contents string, elements []string) {
	for i := range elements {
		assert.NotContains(t, contents, elements[i])
	}
}

// AssertFileContains checks that the file includes every string in want and
// none in notWant. An empty want slice asserts the file itself is empty.
func AssertFileContains(t *testing.T, filePath string, want []string, notWant []string) {
	if contents := ReadFile(t, filePath); len(want) > 0 {
		require.NotEmpty(t, contents)
		AssertContainsAll(t, string(contents), want)
		AssertContainsNone(t, string(contents), notWant)
	} else {
		assert.Empty(t, contents)
	}
}

// AssertFileContentsSameAs verifies that two files have identical contents.
func AssertFileContentsSameAs(t *testing.T, wantFilePath string, gotFilePath string) {
	want := ReadFile(t, wantFilePath)
	got := ReadFile(t, gotFilePath)
	assert.Equal(t, string(want), string(got))
}

// AssertNotBlank asserts that value contains at least one non-whitespace character.
func AssertNotBlank(t *testing.T, value string) {
	assert.NotEmpty(t, strings.TrimSpace(value))
}

// MockHTTPResponse defines a canned HTTP response for CreateMockServer.
// A non-zero Delay postpones the response, which lets tests exercise timeouts.
type MockHTTPResponse struct {
	StatusCode int
	Content    []byte
	Delay      time.Duration
}

// CreateMockServer starts a test HTTP server that answers the configured
// paths with their canned responses and everything else with 404.
// The caller must close the returned server.
func CreateMockServer(t *testing.T, responses map[string]MockHTTPResponse) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response, ok := responses[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if response.Delay > 0 {
			time.Sleep(response.Delay)
		}
		w.WriteHeader(response.StatusCode)
		if response.Content != nil {
			if _, err := w.Write(response.Content); err != nil {
				t.Fatalf("failed to write mock response: %v", err)
			}
		}
	}))
}
