// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petmal/genetrial/config"
	"github.com/petmal/genetrial/pkg/testutils"
	"github.com/petmal/genetrial/version"
)

const (
	testOutputFileBasename = "results"
	mockConfig             = `config:
            log-file: ""
            output-dir: "/"
            output-basename: ""
            task-source: "/usr/include/bedfordshire_incredible.pcf.vcard"
            providers:
              - name: "openai"
                client-config:
                  api-key: "37ce2f83-ff15-4772-acbb-fb519185f6d6"
                runs:
                  - name: "p1 run1"
                    model: "p1-model-1"
                    max-requests-per-minute: 10
                  - name: "p1 run2"
                    model: "p1-model-2"
                  - name: "p1 run3"
                    model: "p1-model-3"
                    disabled: true
              - name: "openai"
                client-config:
                  api-key: "d474d964-8fa0-4330-b171-e9af7d4e173b"
                runs:
                  - name: "p2 run1"
                    model: "p2-model-1"
                    model-parameters:
                      reasoning-effort: high
              - name: "google"
                disabled: true
                client-config:
                  api-key: "63add9c7-3329-4a3e-bd4e-b251256a848c"
                runs:
                  - name: "p3 run1"
                    model: "p3-model-1"
            judges:
              - name: "semantic-judge"
                provider:
                  name: "openai"
                  client-config:
                    api-key: "judge-key-1"
                  runs:
                    - name: "default"
                      model: "judge-model-1"
                      model-parameters:
                        reasoning-effort: high
              - name: "disabled-judge"
                provider:
                  name: "openai"
                  disabled: true
                  client-config:
                    api-key: "judge-key-2"
                  runs:
                    - name: "default"
                      model: "judge-model-2"
              - name: "judge-with-disabled-run"
                provider:
                  name: "openai"
                  client-config:
                    api-key: "judge-key-3"
                  runs:
                    - name: "disabled-run"
                      model: "judge-model-3"
                      disabled: true`
	mockTasks = `task-config:
  tasks:
    - name: "unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37"
      prompt: |-
        Which chromosome carries the BRCA2 gene?
      response-result-format: |-
        Chromosome <number>
      expected-result: |-
        Chromosome 13
    - name: "failure"
      prompt: |-
        Which inheritance pattern does the pedigree show?
      response-result-format: |-
        Name of the inheritance pattern.
      expected-result: |-
        Autosomal dominant inheritance.
    - name: "error"
      prompt: |-
        Which variant consequence is reported for rs28897743?
      response-result-format: |-
        Consequence term.
      expected-result: |-
        Missense variant.
    - name: "disabled task"
      disabled: true
      prompt: |-
        Which cytogenetic band contains the CFTR gene?
      response-result-format: |-
        Cytogenetic band.
      expected-result: |-
        7q31.2`
)

var (
	allOutputFormatsEnabled = map[string]bool{
		"csv":  true,
		"html": true,
	}
	noOutputFormatsEnabled = map[string]bool{
		"csv":  false,
		"html": false,
	}
	expectedStdoutMessages = []string{
		"Current working directory:",
		"Configuration directory:",
		"Loading configuration from file:",
		"Run identifier:",
		"Loading tasks from file:",
	}
)

func TestCommands(t *testing.T) {
	tests := []struct {
		name               string
		commands           []string
		wantStdoutContains []string
	}{
		{
			name:               "display help",
			commands:           []string{"help"},
			wantStdoutContains: []string{"Usage:"},
		},
		{
			name:               "display version",
			commands:           []string{"version"},
			wantStdoutContains: []string{fmt.Sprintf("%s %s", version.Name, version.GetVersion())},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sout := testutils.CaptureStdout(t, func() { testutils.WithArgs(t, main, tt.commands...) })
			testutils.AssertContainsAll(t, sout, tt.wantStdoutContains)
		})
	}
}

func TestRun(t *testing.T) {
	tests := []struct {
		name                  string
		config                []byte
		tasks                 []byte
		logFilePath           string
		outputFileBasename    string
		outputFormats         map[string]bool
		verbose               bool
		debug                 bool
		initOutputContent     []byte
		wantStdoutContains    []string
		wantStdoutNotContains []string
		wantOutputContains    []string
		wantOutputNotContains []string
		wantLogContains       []string
		wantLogNotContains    []string
	}{
		{
			name:   "judge validation with valid judge",
			config: []byte(mockConfig),
			tasks: []byte(`task-config:
                    tasks:
                      - name: "task-with-valid-judge"
                        prompt: |-
                          Which gene is associated with cystic fibrosis?
                        response-result-format: |-
                          Gene symbol
                        expected-result: |-
                          CFTR
                        validation-rules:
                          judge:
                            enabled: true
                            name: "semantic-judge"
                            variant: "default"`),
			outputFileBasename: testOutputFileBasename,
			outputFormats:      allOutputFormatsEnabled,
			debug:              true,
			wantStdoutContains: append([]string{
				"Log messages will be saved to:",
				"Result cache:",
				"Results in HTML format will be saved to:",
				"Results in CSV format will be saved to:",
			}, expectedStdoutMessages...),
			wantStdoutNotContains: []string{
				"judge not found",
				"judge run variant not found",
			},
			wantOutputContains: []string{
				"task-with-valid-judge",
			},
			wantLogContains: []string{
				"all tasks in all configurations have finished on all providers",
				"openai: p1 run1: task-with-valid-judge: task result: success",
				"openai: p1 run2: task-with-valid-judge: task result: success",
				"openai: p2 run1: task-with-valid-judge: task result: success",
			},
		},
		{
			name: "fail on no enabled targets",
			config: []byte(`config:
                    log-file: ""
                    output-dir: "/"
                    output-basename: ""
                    task-source: "/usr/include/bedfordshire_incredible.pcf.vcard"
                    providers:
                      - name: "openai"
                        client-config:
                          api-key: "021cfc61-3c24-4d3e-9419-c3d26bb01d84"
                        runs:
                          - name: "disabled run"
                            disabled: true
                            model: "channels"
                      - name: "google"
                        disabled: true
                        client-config:
                          api-key: "451588d2-2595-4e34-a617-edce26e7943c"
                        runs:
                          - name: "enabled run of disabled provider"
                            model: "capacitor"`),
			tasks:              []byte(mockTasks),
			outputFileBasename: testOutputFileBasename,
			outputFormats:      allOutputFormatsEnabled,
			wantStdoutContains: append([]string{
				"Nothing to run: all providers are disabled or have no enabled run configurations.",
			}, expectedStdoutMessages...),
			wantStdoutNotContains: []string{
				"Log messages will be saved to:",
				"Result cache:",
				"Results in HTML format will be saved to:",
				"Results in CSV format will be saved to:",
			},
			wantOutputContains: nil,
			wantLogContains:    nil,
		},
		{
			name:   "fail on no enabled tasks",
			config: []byte(mockConfig),
			tasks: []byte(`task-config:
          disabled: true
          tasks:
            - name: "task #1"
              prompt: |-
                Which chromosome carries the BRCA2 gene?
              response-result-format: |-
                Chromosome <number>
              expected-result: |-
                Chromosome 13
            - name: "failure"
              prompt: |-
                Which inheritance pattern does the pedigree show?
              response-result-format: |-
                Name of the inheritance pattern.
              expected-result: |-
                Autosomal dominant inheritance.
            - name: "error"
              prompt: |-
                Which variant consequence is reported for rs28897743?
              response-result-format: |-
                Consequence term.
              expected-result: |-
                Missense variant.`),
			outputFileBasename: testOutputFileBasename,
			outputFormats:      allOutputFormatsEnabled,
			wantStdoutContains: append([]string{
				"Nothing to run: all tasks are disabled.",
			}, expectedStdoutMessages...),
			wantStdoutNotContains: []string{
				"Log messages will be saved to:",
				"Result cache:",
				"Results in HTML format will be saved to:",
				"Results in CSV format will be saved to:",
			},
			wantOutputContains: nil,
			wantLogContains:    nil,
		},
		{
			name:               "pre-existing output files",
			config:             []byte(mockConfig),
			tasks:              []byte(mockTasks),
			logFilePath:        testutils.CreateMockFile(t, "*.messages.log", []byte("e8787ca3-12e4-47b9-a06f-4b81ad15c304")),
			outputFileBasename: testOutputFileBasename,
			outputFormats:      allOutputFormatsEnabled,
			initOutputContent:  []byte("95db2195-5a95-4e4b-9a0d-61f38e639491"),
			wantStdoutContains: append([]string{
				"Log messages will be saved to:",
				"Result cache:",
				"Results in HTML format will be saved to:",
				"Results in CSV format will be saved to:",
			}, expectedStdoutMessages...),
			wantOutputContains: []string{
				"unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37",
			},
			wantOutputNotContains: []string{
				"95db2195-5a95-4e4b-9a0d-61f38e639491",
			}, // output file should get overwritten
			wantLogContains: []string{
				"e8787ca3-12e4-47b9-a06f-4b81ad15c304", // log file should get appended to
				"all tasks in all configurations have finished on all providers",
			},
			wantLogNotContains: []string{
				"google:",
				"openai: p1 run1: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: token usage: [in:642317, out:<unknown>]",
				"openai: p1 run2: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: token usage: [in:642317, out:<unknown>]",
				"openai: p2 run1: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: token usage: [in:642317, out:<unknown>]",
			},
		},
		{
			name:               "non-existing output artifacts",
			config:             []byte(mockConfig),
			tasks:              []byte(mockTasks),
			outputFileBasename: testOutputFileBasename,
			outputFormats:      allOutputFormatsEnabled,
			wantStdoutContains: append([]string{
				"Log messages will be saved to:",
				"Result cache:",
				"Results in HTML format will be saved to:",
				"Results in CSV format will be saved to:",
			}, expectedStdoutMessages...),
			wantOutputContains: []string{
				"unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37",
			},
			wantLogContains: []string{
				"all tasks in all configurations have finished on all providers",
			},
			wantLogNotContains: []string{
				"google:",
				"openai: p1 run1: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: token usage: [in:642317, out:<unknown>]",
				"openai: p1 run2: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: token usage: [in:642317, out:<unknown>]",
				"openai: p2 run1: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: token usage: [in:642317, out:<unknown>]",
			},
		},
		{
			name:               "output to stdout",
			config:             []byte(mockConfig),
			tasks:              []byte(mockTasks),
			outputFileBasename: "",
			outputFormats:      allOutputFormatsEnabled,
			wantStdoutContains: append([]string{
				"Log messages will be saved to:",
				"unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37",
			}, expectedStdoutMessages...),
			wantStdoutNotContains: []string{
				"Results in HTML format will be saved to:",
				"Results in CSV format will be saved to:",
			},
			wantOutputContains: []string{},
			wantLogContains: []string{
				"all tasks in all configurations have finished on all providers",
			},
			wantLogNotContains: []string{
				"google:",
				"openai: p1 run1: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: token usage: [in:642317, out:<unknown>]",
				"openai: p1 run2: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: token usage: [in:642317, out:<unknown>]",
				"openai: p2 run1: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: token usage: [in:642317, out:<unknown>]",
			},
		},
		{
			name:               "verbose logging",
			config:             []byte(mockConfig),
			tasks:              []byte(mockTasks),
			outputFileBasename: "",
			outputFormats:      noOutputFormatsEnabled, // no output will be generated
			verbose:            true,
			wantStdoutContains: append([]string{
				"Log messages will be saved to:",
				"unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37",
			}, expectedStdoutMessages...),
			wantStdoutNotContains: []string{
				"Results in HTML format will be saved to:",
				"Results in CSV format will be saved to:",
			},
			wantOutputContains: []string{},
			wantLogContains: []string{
				"openai: p1 run1: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: token usage: [in:642317, out:<unknown>]",
				"openai: p1 run2: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: token usage: [in:642317, out:<unknown>]",
				"openai: p2 run1: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: token usage: [in:642317, out:<unknown>]",
				"all tasks in all configurations have finished on all providers",
			},
			wantLogNotContains: []string{
				"google:",
				"openai: p1 run1: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: prompts:\n\tAnswer using approved HGNC gene symbols.\n\n\tReport coordinates on the GRCh38 assembly.\n\n\tRespond with a single declarative sentence.",
				"openai: p1 run2: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: prompts:\n\tAnswer using approved HGNC gene symbols.\n\n\tReport coordinates on the GRCh38 assembly.\n\n\tRespond with a single declarative sentence.",
				"openai: p2 run1: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: prompts:\n\tAnswer using approved HGNC gene symbols.\n\n\tReport coordinates on the GRCh38 assembly.\n\n\tRespond with a single declarative sentence.",
			},
		},
		{
			name:               "debug logging",
			config:             []byte(mockConfig),
			tasks:              []byte(mockTasks),
			outputFileBasename: "",
			outputFormats:      noOutputFormatsEnabled, // no output will be generated
			debug:              true,
			wantStdoutContains: append([]string{
				"Log messages will be saved to:",
				"unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37",
			}, expectedStdoutMessages...),
			wantStdoutNotContains: []string{
				"Results in HTML format will be saved to:",
				"Results in CSV format will be saved to:",
			},
			wantOutputContains: []string{},
			wantLogContains: []string{
				"openai: p1 run1: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: token usage: [in:642317, out:<unknown>]",
				"openai: p1 run2: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: token usage: [in:642317, out:<unknown>]",
				"openai: p2 run1: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: token usage: [in:642317, out:<unknown>]",
				"openai: p1 run1: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: prompts:\n\tAnswer using approved HGNC gene symbols.\n\n\tReport coordinates on the GRCh38 assembly.\n\n\tRespond with a single declarative sentence.",
				"openai: p1 run2: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: prompts:\n\tAnswer using approved HGNC gene symbols.\n\n\tReport coordinates on the GRCh38 assembly.\n\n\tRespond with a single declarative sentence.",
				"openai: p2 run1: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: prompts:\n\tAnswer using approved HGNC gene symbols.\n\n\tReport coordinates on the GRCh38 assembly.\n\n\tRespond with a single declarative sentence.",
				"all tasks in all configurations have finished on all providers",
			},
			wantLogNotContains: []string{
				"google:",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFilePath := testutils.CreateMockFile(t, "*.config.yaml", tt.config)
			tasksFilePath := testutils.CreateMockFile(t, "*.tasks.yaml", tt.tasks)

			// Any necessary parent directories should be created automatically.
			logFilePath := tt.logFilePath
			if logFilePath == "" {
				logFilePath = filepath.Join(os.TempDir(), uuid.NewString(), "messages.log")
			}
			outBasePath := filepath.Join(os.TempDir(), uuid.NewString())

			outputFiles := make(map[string]bool)
			for name, enabled := range tt.outputFormats {
				require.NoError(t, flag.Set(name, strconv.FormatBool(enabled)))
				if tt.outputFileBasename != "" {
					outputFilePath := filepath.Join(outBasePath, fmt.Sprintf("%s.%s", tt.outputFileBasename, name))
					outputFiles[outputFilePath] = enabled
					if enabled && tt.initOutputContent != nil {
						createFile(t, outputFilePath, tt.initOutputContent)
					}
				}
			}

			require.NoError(t, flag.Set("config", configFilePath))
			require.NoError(t, flag.Set("tasks", tasksFilePath))
			require.NoError(t, flag.Set("output-dir", outBasePath))
			require.NoError(t, flag.Set("output-basename", tt.outputFileBasename))
			require.NoError(t, flag.Set("log", logFilePath))
			require.NoError(t, flag.Set("verbose", strconv.FormatBool(tt.verbose)))
			require.NoError(t, flag.Set("debug", strconv.FormatBool(tt.debug)))
			resetExecutionFlags(t)

			sout := testutils.CaptureStdout(t, func() { testutils.WithArgs(t, main, "run") })

			testutils.AssertContainsAll(t, sout, tt.wantStdoutContains)
			testutils.AssertContainsNone(t, sout, tt.wantStdoutNotContains)
			assertTestArtifact(t, logFilePath, tt.wantLogContains, tt.wantLogNotContains)
			for filePath, isWant := range outputFiles {
				if isWant {
					assertTestArtifact(t, filePath, tt.wantOutputContains, tt.wantOutputNotContains)
				} else {
					assert.NoFileExists(t, filePath)
				}
			}
		})
	}
}

func TestRunResume(t *testing.T) {
	configFilePath := testutils.CreateMockFile(t, "*.config.yaml", []byte(mockConfig))
	tasksFilePath := testutils.CreateMockFile(t, "*.tasks.yaml", []byte(mockTasks))

	resetExecutionFlags(t)
	require.NoError(t, flag.Set("config", configFilePath))
	require.NoError(t, flag.Set("tasks", tasksFilePath))
	require.NoError(t, flag.Set("output-dir", filepath.Join(os.TempDir(), uuid.NewString())))
	require.NoError(t, flag.Set("output-basename", ""))
	require.NoError(t, flag.Set("html", "false"))
	require.NoError(t, flag.Set("csv", "false"))
	require.NoError(t, flag.Set("verbose", "false"))
	require.NoError(t, flag.Set("debug", "false"))
	require.NoError(t, flag.Set("cache-mode", "read-cache"))
	require.NoError(t, flag.Set("run-id", "resume-"+uuid.NewString()))

	// First invocation computes every case.
	firstLogPath := filepath.Join(os.TempDir(), uuid.NewString(), "messages.log")
	require.NoError(t, flag.Set("log", firstLogPath))
	testutils.CaptureStdout(t, func() { testutils.WithArgs(t, main, "run") })
	testutils.AssertFileContains(t, firstLogPath, []string{
		"starting task...",
		"all tasks in all configurations have finished on all providers",
	}, []string{
		"reusing cached result.",
	})

	// Repeating the run under the same run identifier reuses every completed
	// case without recomputing it.
	secondLogPath := filepath.Join(os.TempDir(), uuid.NewString(), "messages.log")
	require.NoError(t, flag.Set("log", secondLogPath))
	testutils.CaptureStdout(t, func() { testutils.WithArgs(t, main, "run") })
	testutils.AssertFileContains(t, secondLogPath, []string{
		"reusing cached result.",
		"all tasks in all configurations have finished on all providers",
	}, []string{
		"starting task...",
	})

	// Retrying failed cases recomputes only the cases that did not pass.
	retryLogPath := filepath.Join(os.TempDir(), uuid.NewString(), "messages.log")
	require.NoError(t, flag.Set("log", retryLogPath))
	require.NoError(t, flag.Set("retry-failed", "true"))
	testutils.CaptureStdout(t, func() { testutils.WithArgs(t, main, "run") })
	testutils.AssertFileContains(t, retryLogPath, []string{
		"openai: p1 run1: unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37: reusing cached result.",
		"openai: p1 run1: failure: starting task...",
		"openai: p1 run1: error: starting task...",
	}, nil)
}

func TestRunTaskSelection(t *testing.T) {
	configFilePath := testutils.CreateMockFile(t, "*.config.yaml", []byte(mockConfig))
	tasksFilePath := testutils.CreateMockFile(t, "*.tasks.yaml", []byte(mockTasks))
	logFilePath := filepath.Join(os.TempDir(), uuid.NewString(), "messages.log")
	outBasePath := filepath.Join(os.TempDir(), uuid.NewString())

	resetExecutionFlags(t)
	require.NoError(t, flag.Set("config", configFilePath))
	require.NoError(t, flag.Set("tasks", tasksFilePath))
	require.NoError(t, flag.Set("output-dir", outBasePath))
	require.NoError(t, flag.Set("output-basename", testOutputFileBasename))
	require.NoError(t, flag.Set("log", logFilePath))
	require.NoError(t, flag.Set("html", "false"))
	require.NoError(t, flag.Set("csv", "true"))
	require.NoError(t, flag.Set("verbose", "false"))
	require.NoError(t, flag.Set("debug", "false"))
	require.NoError(t, flag.Set("select", "unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37"))

	testutils.CaptureStdout(t, func() { testutils.WithArgs(t, main, "run") })

	outputFilePath := filepath.Join(outBasePath, fmt.Sprintf("%s.csv", testOutputFileBasename))
	testutils.AssertFileContains(t, outputFilePath, []string{
		"unique-enabled-task-name-68315b95-de8c-4f19-9f76-d70829ec0e37",
	}, []string{
		"failure",
		"error",
	})
}

func TestSelectTasks(t *testing.T) {
	tasks := []config.Task{
		{Name: "gene lookup"},
		{Name: "variant lookup"},
		{Name: "disease lookup"},
	}

	t.Run("blank selector keeps all tasks", func(t *testing.T) {
		selected, err := selectTasks(tasks, "")
		require.NoError(t, err)
		assert.Len(t, selected, 3)
	})

	t.Run("select by name", func(t *testing.T) {
		selected, err := selectTasks(tasks, "variant lookup")
		require.NoError(t, err)
		require.Len(t, selected, 1)
		assert.Equal(t, "variant lookup", selected[0].Name)
	})

	t.Run("select by index and name preserves task order", func(t *testing.T) {
		selected, err := selectTasks(tasks, "disease lookup, 1")
		require.NoError(t, err)
		require.Len(t, selected, 2)
		assert.Equal(t, "gene lookup", selected[0].Name)
		assert.Equal(t, "disease lookup", selected[1].Name)
	})

	t.Run("index out of range", func(t *testing.T) {
		_, err := selectTasks(tasks, "4")
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrInvalidConfigProperty)
	})

	t.Run("unknown task name", func(t *testing.T) {
		_, err := selectTasks(tasks, "chromosome painting")
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrInvalidConfigProperty)
	})
}

// resetExecutionFlags restores the execution-related flags that individual
// tests may override. Every run gets a private cache database and a fresh
// run identifier so that tests cannot observe each other's cached results.
func resetExecutionFlags(t *testing.T) {
	require.NoError(t, flag.Set("cache-file", filepath.Join(os.TempDir(), uuid.NewString()+".cache.db")))
	require.NoError(t, flag.Set("cache-mode", "fresh"))
	require.NoError(t, flag.Set("run-id", unsetFlagValue))
	require.NoError(t, flag.Set("retry-failed", "false"))
	require.NoError(t, flag.Set("select", unsetFlagValue))
	require.NoError(t, flag.Set("concurrency", "0"))
	require.NoError(t, flag.Set("task-timeout", "0s"))
}

func createFile(t *testing.T, filePath string, contents []byte) {
	require.NoError(t, os.MkdirAll(filepath.Dir(filePath), os.ModePerm))
	require.NoError(t, os.WriteFile(filePath, contents, 0600))
}

func assertTestArtifact(t *testing.T, filePath string, want []string, notWant []string) {
	if want != nil {
		require.FileExists(t, filePath)
		t.Logf("test artifact: %s\n", filePath)
		testutils.AssertFileContains(t, filePath, want, notWant)
	} else {
		require.NoFileExists(t, filePath)
	}
}
