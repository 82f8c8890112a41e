// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package config

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/petmal/genetrial/pkg/utils"
	"gopkg.in/yaml.v3"
)

// downloadTimeout defines the maximum time allowed for downloading remote files.
const downloadTimeout = time.Minute

// defaultSystemPromptInstruction is prepended to the expected answer format
// of plain-text tasks that do not define a system prompt template.
const defaultSystemPromptInstruction = "Provide the final answer in exactly this format: "

var (
	// ErrInvalidTaskProperty indicates invalid task definition.
	ErrInvalidTaskProperty = errors.New("invalid task property")
	// ErrInvalidURI indicates that the specified URI is invalid or not supported.
	ErrInvalidURI = errors.New("invalid URI")
	// ErrDownloadFile indicates that a remote file could not be downloaded.
	ErrDownloadFile = errors.New("failed to download remote file")
	// ErrAccessFile indicates that a local file could not be accessed.
	ErrAccessFile = errors.New("file is not accessible")
)

// URI represents a parsed URI/URL that can be used to reference a file.
type URI struct {
	raw    string
	parsed *url.URL
}

// UnmarshalYAML implements custom YAML unmarshaling for URI.
func (u *URI) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTaskProperty, err)
	}

	if err := u.Parse(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTaskProperty, err)
	}

	return nil
}

// Parse parses a raw URI string into a structured URI object.
// It validates that the URI scheme is supported.
func (u *URI) Parse(raw string) (err error) {
	if raw == "" {
		return fmt.Errorf("%w: empty URI value", ErrInvalidURI)
	}

	u.raw = raw
	normalized := filepath.ToSlash(raw)

	// Special handling for Windows absolute paths with drive letters.
	if filepath.IsAbs(raw) && len(raw) >= 2 && raw[1] == ':' {
		u.parsed = &url.URL{
			Scheme: "",
			Path:   normalized,
		}
	} else {
		u.parsed, err = url.Parse(normalized)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidURI, err)
		} else if !isSupportedScheme(u.parsed.Scheme) {
			return fmt.Errorf("%w: unsupported scheme: %s", ErrInvalidURI, u.parsed.Scheme)
		}
	}

	return nil
}

// isSupportedScheme checks if the given URI scheme is supported by this application.
func isSupportedScheme(scheme string) bool {
	return isLocalFile(scheme) || isRemoteFile(scheme)
}

// isLocalFile checks if the given URI scheme represents a local file.
// A scheme that is either empty or "file" represents a local file.
func isLocalFile(scheme string) bool {
	return scheme == "" || scheme == "file"
}

// isRemoteFile checks if the given URI scheme represents a remote file.
func isRemoteFile(scheme string) bool {
	return scheme == "http" || scheme == "https"
}

// MarshalYAML implements custom YAML marshaling for URI.
func (u URI) MarshalYAML() (interface{}, error) {
	return u.raw, nil
}

// URL returns the parsed URL.
func (u URI) URL() *url.URL {
	return u.parsed
}

// IsLocalFile checks if the URI references a local file.
func (u URI) IsLocalFile() bool {
	return isLocalFile(u.parsed.Scheme)
}

// IsRemoteFile checks if the URI references a remote file.
func (u URI) IsRemoteFile() bool {
	return isRemoteFile(u.parsed.Scheme)
}

// String returns the original raw URI string.
func (u URI) String() string {
	return u.raw
}

// Path returns the filesystem path for local URIs.
// For relative local paths, it uses the provided basePath to create an absolute path.
func (u URI) Path(basePath string) string {
	switch u.parsed.Scheme {
	case "file":
		return u.parsed.Path
	case "":
		return MakeAbs(basePath, u.raw)
	default:
		return u.raw
	}
}

// Tasks represents the top-level task configuration structure.
type Tasks struct {
	// TaskConfig contains all task definitions and settings.
	TaskConfig TaskConfig `yaml:"task-config" validate:"required"`
}

// TaskConfig represents task definitions and global settings.
type TaskConfig struct {
	// SystemPrompt is the default system prompt configuration applied to all tasks.
	// Individual tasks can override it field by field.
	SystemPrompt SystemPrompt `yaml:"system-prompt" validate:"omitempty"`

	// ValidationRules are the default answer comparison rules for all tasks.
	// Individual tasks can override these rules field by field.
	ValidationRules ValidationRules `yaml:"validation-rules" validate:"omitempty"`

	// ToolSelector is the default tool selection applied to all tasks.
	// Individual tasks can override it per tool.
	ToolSelector ToolSelector `yaml:"tool-selector" validate:"omitempty"`

	// Tasks is a list of tasks to be executed.
	Tasks []Task `yaml:"tasks" validate:"required,dive"`

	// Disabled indicates whether all tasks should be disabled by default.
	// Individual tasks can override this setting.
	Disabled bool `yaml:"disabled" validate:"omitempty"`
}

// GetEnabledTasks returns a filtered list of tasks that are not disabled.
// If Task.Disabled is nil, the global TaskConfig.Disabled value is used instead.
func (o TaskConfig) GetEnabledTasks() []Task {
	enabledTasks := make([]Task, 0, len(o.Tasks))
	for _, task := range o.Tasks {
		if !ResolveFlagOverride(task.Disabled, o.Disabled) {
			enabledTasks = append(enabledTasks, task)
		}
	}
	return enabledTasks
}

// Validate checks that the task definitions are internally consistent.
// Task names must be unique because they key cached results and run progress,
// and the expected results of every task must agree with its declared
// response format.
func (o TaskConfig) Validate() error {
	seen := make(map[string]struct{}, len(o.Tasks))
	for _, task := range o.Tasks {
		if _, exists := seen[task.Name]; exists {
			return fmt.Errorf("%w: duplicate task name: %s", ErrInvalidTaskProperty, task.Name)
		}
		seen[task.Name] = struct{}{}

		if err := o.validateResponseFormat(task); err != nil {
			return err
		}
	}
	return nil
}

// validateResponseFormat checks that the expected results of the task can be
// compared against answers in the declared response format.
func (o TaskConfig) validateResponseFormat(task Task) error {
	if _, ok := task.ResponseResultFormat.AsString(); ok {
		if _, allText := task.ExpectedResult.AsStringSet(); !allText {
			return fmt.Errorf("%w: task '%s': when response-result-format is plain text, all expected-result values must be plain text", ErrInvalidTaskProperty, task.Name)
		}
		return nil
	}

	schema, ok := task.ResponseResultFormat.AsSchema()
	if !ok {
		return fmt.Errorf("%w: task '%s': response-result-format must be either plain text or a JSON schema object", ErrInvalidTaskProperty, task.Name)
	}

	// Schema formats are validated mechanically so a semantic judge has no answer text to assess.
	if effectiveRules := o.ValidationRules.MergeWith(task.ValidationRules); effectiveRules.UseJudge() {
		return fmt.Errorf("%w: task '%s': semantic validation cannot be used with structured schema-based response-result-format", ErrInvalidTaskProperty, task.Name)
	}

	if err := utils.ValidateAgainstSchema(schema, task.ExpectedResult.Values()...); err != nil {
		if errors.Is(err, utils.ErrInvalidJSONSchema) {
			return fmt.Errorf("%w: task '%s': response-result-format contains an invalid JSON schema: %v", ErrInvalidTaskProperty, task.Name, err)
		}
		return fmt.Errorf("%w: task '%s': expected-result does not conform to response-result-format schema: %v", ErrInvalidTaskProperty, task.Name, err)
	}

	return nil
}

// ResponseFormat describes the required form of a final answer.
// It holds either a plain-text format description or a JSON schema object
// that structured answers must conform to.
type ResponseFormat struct {
	raw interface{}
}

// NewResponseFormat creates a ResponseFormat from the given value.
func NewResponseFormat(value interface{}) ResponseFormat {
	return ResponseFormat{raw: value}
}

// AsString returns the plain-text format description if this format is textual.
func (f ResponseFormat) AsString() (string, bool) {
	value, ok := f.raw.(string)
	return value, ok
}

// AsSchema returns the JSON schema object if this format is schema based.
func (f ResponseFormat) AsSchema() (map[string]interface{}, bool) {
	value, ok := f.raw.(map[string]interface{})
	return value, ok
}

// String returns a display form of the format suitable for embedding in prompts.
// Plain-text formats are returned verbatim and schema formats as indented JSON.
func (f ResponseFormat) String() string {
	if text, ok := f.AsString(); ok {
		return text
	}
	if schema, ok := f.AsSchema(); ok {
		if rendered, err := json.MarshalIndent(schema, "", "  "); err == nil {
			return string(rendered)
		}
	}
	return fmt.Sprintf("%v", f.raw)
}

// UnmarshalYAML implements custom YAML unmarshaling for ResponseFormat.
// Scalar nodes become plain-text formats and mapping nodes schema formats.
func (f *ResponseFormat) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var text string
		if err := value.Decode(&text); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTaskProperty, err)
		}
		f.raw = text
	case yaml.MappingNode:
		schema := make(map[string]interface{})
		if err := value.Decode(&schema); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTaskProperty, err)
		}
		f.raw = schema
	default:
		return fmt.Errorf("%w: response-result-format must be either plain text or a JSON schema object", ErrInvalidTaskProperty)
	}
	return nil
}

// MarshalYAML implements custom YAML marshaling for ResponseFormat.
func (f ResponseFormat) MarshalYAML() (interface{}, error) {
	return f.raw, nil
}

// SystemPromptEnabledFor selects which response formats a system prompt applies to.
type SystemPromptEnabledFor string

const (
	// EnableForAll applies the system prompt to every task.
	EnableForAll SystemPromptEnabledFor = "all"
	// EnableForText applies the system prompt only to tasks with a plain-text response format.
	EnableForText SystemPromptEnabledFor = "text"
	// EnableForNone disables the system prompt entirely.
	EnableForNone SystemPromptEnabledFor = "none"
)

// SystemPrompt configures the system prompt sent ahead of the task prompt.
type SystemPrompt struct {
	// Template is the system prompt template.
	// It may reference {{.ResponseResultFormat}} to embed the required answer format.
	Template *string `yaml:"template" validate:"omitempty"`

	// EnableFor selects which response formats the system prompt applies to.
	// Defaults to EnableForText.
	EnableFor *SystemPromptEnabledFor `yaml:"enable-for" validate:"omitempty,oneof=all text none"`
}

// GetTemplate returns the template text together with a flag indicating
// whether a usable template is set. Blank templates count as unset.
func (p SystemPrompt) GetTemplate() (string, bool) {
	if p.Template != nil && IsNotBlank(*p.Template) {
		return *p.Template, true
	}
	return "", false
}

// GetEnableFor returns the effective response format selector.
func (p SystemPrompt) GetEnableFor() SystemPromptEnabledFor {
	if p.EnableFor != nil {
		return *p.EnableFor
	}
	return EnableForText
}

// MergeWith returns a copy of this configuration with every field that is
// set on other overriding the corresponding field.
func (p SystemPrompt) MergeWith(other *SystemPrompt) SystemPrompt {
	merged := p
	if other == nil {
		return merged
	}
	if other.Template != nil {
		merged.Template = other.Template
	}
	if other.EnableFor != nil {
		merged.EnableFor = other.EnableFor
	}
	return merged
}

// ValidationRules control how a final answer is canonicalized and compared
// against the expected results of a task.
type ValidationRules struct {
	// CaseSensitive toggles case-sensitive comparison. Defaults to false.
	CaseSensitive *bool `yaml:"case-sensitive" validate:"omitempty"`

	// IgnoreWhitespace toggles removal of all whitespace before comparison.
	// Defaults to false.
	IgnoreWhitespace *bool `yaml:"ignore-whitespace" validate:"omitempty"`

	// Judge optionally selects an LLM judge for semantic evaluation of answers
	// that do not match any expected result exactly.
	Judge JudgeSelector `yaml:"judge" validate:"omitempty"`
}

// IsCaseSensitive returns the effective case sensitivity setting.
func (v ValidationRules) IsCaseSensitive() bool {
	if v.CaseSensitive != nil {
		return *v.CaseSensitive
	}
	return false
}

// IsIgnoreWhitespace returns the effective whitespace handling setting.
func (v ValidationRules) IsIgnoreWhitespace() bool {
	if v.IgnoreWhitespace != nil {
		return *v.IgnoreWhitespace
	}
	return false
}

// UseJudge reports whether answers should be evaluated by an LLM judge.
func (v ValidationRules) UseJudge() bool {
	return v.Judge.IsEnabled()
}

// MergeWith returns a copy of these rules with every field that is set
// on other overriding the corresponding field.
func (v ValidationRules) MergeWith(other *ValidationRules) ValidationRules {
	merged := v
	if other == nil {
		return merged
	}
	if other.CaseSensitive != nil {
		merged.CaseSensitive = other.CaseSensitive
	}
	if other.IgnoreWhitespace != nil {
		merged.IgnoreWhitespace = other.IgnoreWhitespace
	}
	merged.Judge = v.Judge.MergeWith(other.Judge)
	return merged
}

// JudgeSelector references an LLM judge defined in the application configuration.
type JudgeSelector struct {
	// Enabled toggles judge evaluation. Defaults to false.
	Enabled *bool `yaml:"enabled" validate:"omitempty"`

	// Name is the identifier of the judge configuration to use.
	// If blank, the first configured judge is used.
	Name *string `yaml:"name" validate:"omitempty"`

	// Variant optionally selects a specific run variant of the judge.
	// If blank, the judge's first enabled variant is used.
	Variant *string `yaml:"variant" validate:"omitempty"`
}

// IsEnabled returns the effective judge toggle.
func (s JudgeSelector) IsEnabled() bool {
	if s.Enabled != nil {
		return *s.Enabled
	}
	return false
}

// GetName returns the selected judge name or blank if not set.
func (s JudgeSelector) GetName() string {
	if s.Name != nil {
		return *s.Name
	}
	return ""
}

// GetVariant returns the selected judge variant or blank if not set.
func (s JudgeSelector) GetVariant() string {
	if s.Variant != nil {
		return *s.Variant
	}
	return ""
}

// MergeWith returns a copy of this selector with every field that is set
// on other overriding the corresponding field.
func (s JudgeSelector) MergeWith(other JudgeSelector) JudgeSelector {
	merged := s
	if other.Enabled != nil {
		merged.Enabled = other.Enabled
	}
	if other.Name != nil {
		merged.Name = other.Name
	}
	if other.Variant != nil {
		merged.Variant = other.Variant
	}
	return merged
}

// ToolSelector selects which configured tools are available to a task.
type ToolSelector struct {
	// Disabled toggles tool use off for the task. Defaults to false.
	Disabled *bool `yaml:"disabled" validate:"omitempty"`

	// Tools lists the selected tools by name with optional per-task limit overrides.
	Tools []ToolSelection `yaml:"tools" validate:"omitempty,unique=Name,dive"`
}

// IsDisabled returns the effective tool use toggle.
func (ts ToolSelector) IsDisabled() bool {
	if ts.Disabled != nil {
		return *ts.Disabled
	}
	return false
}

// GetEnabledToolsByName returns the enabled tool selections keyed by name
// together with a flag indicating whether any tools are available.
func (ts ToolSelector) GetEnabledToolsByName() (map[string]ToolSelection, bool) {
	if ts.IsDisabled() {
		return nil, false
	}
	byName := make(map[string]ToolSelection, len(ts.Tools))
	for _, selection := range ts.Tools {
		if !selection.IsDisabled() {
			byName[selection.Name] = selection
		}
	}
	return byName, len(byName) > 0
}

// MergeWith returns a copy of this selector with the settings of other
// layered on top. Selections are matched by tool name and merged field by field.
func (ts ToolSelector) MergeWith(other *ToolSelector) ToolSelector {
	merged := ToolSelector{
		Disabled: ts.Disabled,
		Tools:    append([]ToolSelection(nil), ts.Tools...),
	}
	if other == nil {
		return merged
	}
	if other.Disabled != nil {
		merged.Disabled = other.Disabled
	}
	for _, selection := range other.Tools {
		if i := indexOfToolSelection(merged.Tools, selection.Name); i >= 0 {
			merged.Tools[i] = merged.Tools[i].MergeWith(selection)
		} else {
			merged.Tools = append(merged.Tools, selection)
		}
	}
	return merged
}

// indexOfToolSelection returns the index of the selection with the given name or -1.
func indexOfToolSelection(selections []ToolSelection, name string) int {
	for i, selection := range selections {
		if selection.Name == name {
			return i
		}
	}
	return -1
}

// ToolSelection references a configured tool and optionally overrides its limits for a single task.
type ToolSelection struct {
	// Name is the identifier of the tool configuration to use.
	Name string `yaml:"name" validate:"required"`

	// Disabled toggles this tool off for the task. Defaults to false.
	Disabled *bool `yaml:"disabled" validate:"omitempty"`

	// MaxCalls overrides the tool's per-case invocation limit.
	MaxCalls *int `yaml:"max-calls" validate:"omitempty,min=1"`

	// Timeout overrides the tool's invocation timeout.
	Timeout *time.Duration `yaml:"timeout" validate:"omitempty"`

	// MaxMemoryMB overrides the tool's memory limit, in megabytes.
	MaxMemoryMB *int `yaml:"max-memory-mb" validate:"omitempty,min=1"`

	// CpuPercent overrides the tool's CPU limit, in percent of all cores.
	CpuPercent *int `yaml:"cpu-percent" validate:"omitempty,min=1,max=100"`
}

// IsDisabled returns the effective per-tool toggle.
func (s ToolSelection) IsDisabled() bool {
	if s.Disabled != nil {
		return *s.Disabled
	}
	return false
}

// MergeWith returns a copy of this selection with every field that is set
// on other overriding the corresponding field.
func (s ToolSelection) MergeWith(other ToolSelection) ToolSelection {
	merged := s
	if other.Disabled != nil {
		merged.Disabled = other.Disabled
	}
	if other.MaxCalls != nil {
		merged.MaxCalls = other.MaxCalls
	}
	if other.Timeout != nil {
		merged.Timeout = other.Timeout
	}
	if other.MaxMemoryMB != nil {
		merged.MaxMemoryMB = other.MaxMemoryMB
	}
	if other.CpuPercent != nil {
		merged.CpuPercent = other.CpuPercent
	}
	return merged
}

// TaskFile represents a file to be included with a task.
type TaskFile struct {
	// Name is a unique identifier for the file, used to reference it in prompts.
	Name string `yaml:"name" validate:"required"`

	// URI is the path or URL to the file.
	URI URI `yaml:"uri" validate:"required"`

	// Type is the MIME type of the file.
	// If not provided, it will be inferred from the file extension or content.
	Type string `yaml:"type" validate:"omitempty"`

	// basePath is used to resolve relative local paths.
	basePath string

	content   func(context.Context, *TaskFile) ([]byte, error)
	base64    func(context.Context, *TaskFile) (string, error)
	typeValue func(context.Context, *TaskFile) (string, error)
}

// UnmarshalYAML implements custom YAML unmarshaling for TaskFile.
func (f *TaskFile) UnmarshalYAML(value *yaml.Node) error {
	// Define an alias to the TaskFile structure to avoid recursive unmarshaling.
	type taskFileAlias TaskFile
	aliasValue := taskFileAlias{}

	if err := value.Decode(&aliasValue); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTaskProperty, err)
	}

	// Copy values from alias to the actual TaskFile.
	*f = TaskFile(aliasValue)

	// Set functions to load content and type on demand.
	// The loaders receive the calling file so that later copies of the
	// struct see base path changes applied after unmarshaling.
	f.content = OnceWithContext(
		func(ctx context.Context, file *TaskFile) (data []byte, err error) {
			if file.URI.IsRemoteFile() {
				if data, err = downloadFile(ctx, file.URI.URL()); err != nil {
					return nil, err
				}
			} else {
				if data, err = os.ReadFile(file.URI.Path(file.basePath)); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrAccessFile, err)
				}
			}

			return data, nil
		},
	)

	f.base64 = OnceWithContext(
		func(ctx context.Context, file *TaskFile) (string, error) {
			content, err := file.Content(ctx)
			if err != nil {
				return "", err
			}
			return base64.StdEncoding.EncodeToString(content), nil
		},
	)

	f.typeValue = OnceWithContext(
		func(ctx context.Context, file *TaskFile) (string, error) {
			if file.Type != "" {
				return file.Type, nil
			}

			// Try to infer from file extension first.
			if ext := filepath.Ext(file.URI.String()); ext != "" {
				if mimeType := mime.TypeByExtension(ext); mimeType != "" {
					return mimeType, nil
				}
			}

			// Fall back to detecting from content.
			content, err := file.Content(ctx)
			if err != nil {
				return "", err
			}

			return http.DetectContentType(content), nil
		},
	)

	return nil
}

// SetBasePath sets the base path used to resolve relative local paths.
func (f *TaskFile) SetBasePath(basePath string) {
	f.basePath = basePath
}

// downloadFile downloads a file from a URL and returns its content.
func downloadFile(ctx context.Context, url *url.URL) ([]byte, error) {
	// Create a child context with timeout.
	downloadCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(downloadCtx, http.MethodGet, url.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrDownloadFile, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: network request failed for '%s': %v", ErrDownloadFile, url.String(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: server returned status %d for '%s'", ErrDownloadFile, resp.StatusCode, url.String())
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read file data: %v", ErrDownloadFile, err)
	}
	return data, nil
}

// Validate checks if a local file exists, is accessible, and is not a directory.
// Remote files are not validated as they will be checked when accessed.
func (f *TaskFile) Validate() error {
	if !f.URI.IsLocalFile() {
		return nil // Only validate local files.
	}

	path := f.URI.Path(f.basePath)
	if fileInfo, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: file does not exist: %s", ErrAccessFile, path)
		}
		if os.IsPermission(err) {
			return fmt.Errorf("%w: permission denied: %s", ErrAccessFile, path)
		}
		return fmt.Errorf("%w: %v", ErrAccessFile, err)
	} else if fileInfo.IsDir() {
		return fmt.Errorf("%w: path is a directory, not a file: %s", ErrAccessFile, path)
	}

	return nil
}

// Content returns the raw file content, loading it on demand.
func (f *TaskFile) Content(ctx context.Context) ([]byte, error) {
	return f.content(ctx, f)
}

// Base64 returns the base64-encoded file content, loading it on demand.
func (f *TaskFile) Base64(ctx context.Context) (string, error) {
	return f.base64(ctx, f)
}

// TypeValue returns the MIME type, inferring it if not set, loading content if needed.
func (f *TaskFile) TypeValue(ctx context.Context) (string, error) {
	return f.typeValue(ctx, f)
}

// GetDataURL returns a complete data URL for the file (e.g., "data:image/png;base64,...").
func (f *TaskFile) GetDataURL(ctx context.Context) (string, error) {
	mimeType, err := f.TypeValue(ctx)
	if err != nil {
		return "", err
	}

	base64Content, err := f.Base64(ctx)
	if err != nil {
		return "", err
	}

	return "data:" + mimeType + ";base64," + base64Content, nil
}

// Task defines a single test case to be executed by AI models.
type Task struct {
	// Name is a display-friendly identifier shown in results.
	// It also keys cached results and run progress, so it must be unique.
	Name string `yaml:"name" validate:"required"`

	// Prompt that will be sent to the AI model.
	Prompt string `yaml:"prompt" validate:"required"`

	// SystemPrompt optionally overrides the task-config level system prompt configuration.
	SystemPrompt *SystemPrompt `yaml:"system-prompt" validate:"omitempty"`

	// ResponseResultFormat specifies how the AI should format the final answer to the prompt.
	// It is either a plain-text format description or a JSON schema object.
	ResponseResultFormat ResponseFormat `yaml:"response-result-format" validate:"required"`

	// ExpectedResult lists the accepted final answers to the prompt.
	// Each value must follow the ResponseResultFormat precisely.
	// Values may be plain strings or structured objects for tasks with JSON answers.
	// If empty and no judge is configured, the task result cannot be confirmed
	// and is recorded as ambiguous.
	ExpectedResult utils.ValueSet `yaml:"expected-result" validate:"omitempty"`

	// ValidationRules optionally override the task-config level answer comparison rules.
	ValidationRules *ValidationRules `yaml:"validation-rules" validate:"omitempty"`

	// ToolSelector optionally overrides the task-config level tool selection.
	ToolSelector *ToolSelector `yaml:"tool-selector" validate:"omitempty"`

	// Disabled indicates whether this specific task should be skipped.
	// If set, overrides the global TaskConfig.Disabled value.
	Disabled *bool `yaml:"disabled" validate:"omitempty"`

	// Files is a list of files to be included with the prompt.
	// This is primarily used for images but can support other file types
	// depending on the provider's capabilities.
	Files []TaskFile `yaml:"files" validate:"omitempty,unique=Name,dive"`

	resolvedSystemPrompt    string
	resolvedValidationRules ValidationRules
	resolvedToolSelector    ToolSelector
}

// SetBaseFilePath sets the base path for all local files in the task.
// The resolved paths are validated to ensure they are accessible.
func (t *Task) SetBaseFilePath(basePath string) error {
	for i := range t.Files {
		t.Files[i].SetBasePath(basePath)
		if err := t.Files[i].Validate(); err != nil {
			return fmt.Errorf("file '%s' in task '%s' failed validation with base directory '%s': %w", t.Files[i].Name, t.Name, basePath, err)
		}
	}
	return nil
}

// ResolveSystemPrompt resolves the effective system prompt for the task.
// Task-level settings are layered over the given task-config level defaults.
// Tasks whose response format falls outside the enable-for selector get no
// system prompt. Plain-text tasks without a template get a minimal instruction
// naming the required answer format. Schema tasks without a template get none
// because the format is communicated through structured output instead.
func (t *Task) ResolveSystemPrompt(defaultConfig SystemPrompt) error {
	merged := defaultConfig.MergeWith(t.SystemPrompt)

	_, isSchema := t.ResponseResultFormat.AsSchema()
	switch merged.GetEnableFor() {
	case EnableForNone:
		t.resolvedSystemPrompt = ""
		return nil
	case EnableForText:
		if isSchema {
			t.resolvedSystemPrompt = ""
			return nil
		}
	}

	if templateText, ok := merged.GetTemplate(); ok {
		tmpl, err := template.New("system-prompt").Parse(templateText)
		if err != nil {
			return fmt.Errorf("%w: malformed system prompt template: %v", ErrInvalidTaskProperty, err)
		}

		resolved := strings.Builder{}
		if err := tmpl.Execute(&resolved, struct {
			ResponseResultFormat string
		}{
			ResponseResultFormat: t.ResponseResultFormat.String(),
		}); err != nil {
			return fmt.Errorf("%w: failed to resolve system prompt template: %v", ErrInvalidTaskProperty, err)
		}

		t.resolvedSystemPrompt = resolved.String()
		return nil
	}

	if formatText, ok := t.ResponseResultFormat.AsString(); ok {
		t.resolvedSystemPrompt = defaultSystemPromptInstruction + formatText
	} else {
		t.resolvedSystemPrompt = ""
	}
	return nil
}

// GetResolvedSystemPrompt returns the effective system prompt for the task
// together with a flag indicating whether one is set.
func (t Task) GetResolvedSystemPrompt() (string, bool) {
	return t.resolvedSystemPrompt, IsNotBlank(t.resolvedSystemPrompt)
}

// ResolveValidationRules resolves the effective answer comparison rules for the task.
// Task-level rules are layered over the given task-config level defaults.
func (t *Task) ResolveValidationRules(defaultRules ValidationRules) {
	t.resolvedValidationRules = defaultRules.MergeWith(t.ValidationRules)
}

// GetResolvedValidationRules returns the effective answer comparison rules for the task.
func (t Task) GetResolvedValidationRules() ValidationRules {
	return t.resolvedValidationRules
}

// ResolveToolSelector resolves the effective tool selection for the task.
// Task-level selections are layered over the given task-config level defaults.
func (t *Task) ResolveToolSelector(defaultSelector ToolSelector) {
	t.resolvedToolSelector = defaultSelector.MergeWith(t.ToolSelector)
}

// GetResolvedToolSelector returns the effective tool selection for the task.
func (t Task) GetResolvedToolSelector() ToolSelector {
	return t.resolvedToolSelector
}
