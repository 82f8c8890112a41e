// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package config contains the data models representing the structure of configuration
// and trial definition files for the GeneTrial application. It provides configuration management
// and handles loading and validation of application settings, provider configurations,
// tool definitions, and trial task definitions from YAML files.
package config

import (
	"errors"
	"fmt"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// OPENAI identifies the OpenAI provider.
	OPENAI string = "openai"
	// GOOGLE identifies the Google AI provider.
	GOOGLE string = "google"
	// ANTHROPIC identifies the Anthropic provider.
	ANTHROPIC string = "anthropic"
	// DEEPSEEK identifies the DeepSeek provider.
	DEEPSEEK string = "deepseek"
)

// CacheMode controls how previously stored case results are used during a run.
type CacheMode string

const (
	// CacheModeFresh computes every case anew while still recording results in the cache.
	CacheModeFresh CacheMode = "fresh"
	// CacheModeRead reuses completed case results recorded under the same
	// run ID and computes only the remaining cases.
	CacheModeRead CacheMode = "read-cache"
	// CacheModeClear removes all cached results for the run before computing every case anew.
	CacheModeClear CacheMode = "clear"
)

const (
	// DefaultConcurrency is the number of case workers used when not configured.
	DefaultConcurrency = 1
	// DefaultMaxTurns is the model turn cap per case used when not configured.
	DefaultMaxTurns = 8
	// DefaultMaxTokens is the token budget per case used when not configured.
	DefaultMaxTokens int64 = 1 << 20
	// DefaultCacheFile is the result cache location used when not configured.
	DefaultCacheFile = "genetrial.cache.db"
)

// ErrInvalidConfigProperty indicates invalid configuration.
var ErrInvalidConfigProperty = errors.New("invalid configuration property")

// ErrInvalidJudgeVariant indicates that a judge run variant is not usable for evaluation.
var ErrInvalidJudgeVariant = errors.New("invalid judge run variant")

// Config represents the top-level configuration structure.
type Config struct {
	// Config contains application-wide settings.
	Config AppConfig `yaml:"config" validate:"required"`
}

// AppConfig defines application-wide settings.
type AppConfig struct {
	// LogFile specifies path to the log file.
	LogFile string `yaml:"log-file" validate:"omitempty,filepath"`

	// OutputDir specifies directory where results will be saved.
	OutputDir string `yaml:"output-dir" validate:"required"`

	// OutputBaseName specifies base filename for result files.
	OutputBaseName string `yaml:"output-basename" validate:"omitempty,filepath"`

	// TaskSource specifies path to the trial task definitions file.
	TaskSource string `yaml:"task-source" validate:"required,filepath"`

	// CacheFile specifies path to the result cache database file.
	CacheFile string `yaml:"cache-file" validate:"omitempty,filepath"`

	// Execution holds settings that bound and parallelize trial runs.
	Execution ExecutionConfig `yaml:"execution" validate:"omitempty"`

	// Providers lists configurations for AI providers whose models will be used
	// to execute tasks during the trial run.
	Providers []ProviderConfig `yaml:"providers" validate:"required,dive"`

	// Judges lists LLM configurations for semantic evaluation of open-ended task responses.
	Judges []JudgeConfig `yaml:"judges" validate:"omitempty,unique=Name,dive"`

	// Tools lists genetics lookup and analysis tools available to tasks.
	Tools []ToolConfig `yaml:"tools" validate:"omitempty,unique=Name,dive"`
}

// GetCacheFile returns the configured cache file path or the default location.
func (ac AppConfig) GetCacheFile() string {
	if IsNotBlank(ac.CacheFile) {
		return ac.CacheFile
	}
	return DefaultCacheFile
}

// GetProvidersWithEnabledRuns returns providers with their enabled run configurations.
// Run configurations are resolved using GetRunsResolved before filtering.
// Any disabled run configurations are excluded from the results.
// Providers with no enabled run configurations are excluded from the returned list.
func (ac AppConfig) GetProvidersWithEnabledRuns() []ProviderConfig {
	providers := make([]ProviderConfig, 0, len(ac.Providers))
	for _, provider := range ac.Providers {
		resolved := provider.Resolve(true)
		if len(resolved.Runs) > 0 {
			providers = append(providers, resolved)
		}
	}
	return providers
}

// GetJudgesWithEnabledRuns returns judges with their enabled run variant configurations.
// Run variant configurations are resolved using GetRunsResolved before filtering.
// Any disabled run variant configurations are excluded from the results.
// Judges with no enabled run variant configurations are excluded from the returned list.
func (ac AppConfig) GetJudgesWithEnabledRuns() []JudgeConfig {
	judges := make([]JudgeConfig, 0, len(ac.Judges))
	for _, judge := range ac.Judges {
		resolved := judge.Resolve(true)
		if len(resolved.Provider.Runs) > 0 {
			judges = append(judges, resolved)
		}
	}
	return judges
}

// ExecutionConfig bounds and parallelizes trial case execution.
type ExecutionConfig struct {
	// Concurrency specifies how many trial cases may execute at the same time.
	Concurrency int `yaml:"concurrency" validate:"omitempty,min=1"`

	// TaskTimeout limits the wall-clock duration of a single trial case.
	// A case that exceeds the timeout is recorded as failed without
	// affecting other cases. Zero means no per-case timeout.
	TaskTimeout *time.Duration `yaml:"task-timeout" validate:"omitempty"`

	// MaxTurns caps the number of model turns within a single trial case.
	// A case that still requests tools at the cap is aborted with its partial answer.
	MaxTurns int `yaml:"max-turns" validate:"omitempty,min=1"`

	// MaxTokens caps the measured token usage of a single trial case.
	// Once the measured usage reaches the cap no further model call is issued.
	MaxTokens int64 `yaml:"max-tokens" validate:"omitempty,min=1"`

	// CacheMode controls how previously stored case results are used.
	CacheMode CacheMode `yaml:"cache-mode" validate:"omitempty,oneof=fresh read-cache clear"`

	// RunID names the trial run for caching and resumption.
	// Cases already completed under the same run ID are skipped on restart.
	// If blank, a new unique run ID is generated.
	RunID string `yaml:"run-id" validate:"omitempty"`

	// RetryFailed re-queues cases that completed without passing
	// when resuming a run under an existing run ID.
	RetryFailed bool `yaml:"retry-failed" validate:"omitempty"`
}

// GetConcurrency returns the configured worker count or the default.
func (ec ExecutionConfig) GetConcurrency() int {
	if ec.Concurrency > 0 {
		return ec.Concurrency
	}
	return DefaultConcurrency
}

// GetMaxTurns returns the configured model turn cap or the default.
func (ec ExecutionConfig) GetMaxTurns() int {
	if ec.MaxTurns > 0 {
		return ec.MaxTurns
	}
	return DefaultMaxTurns
}

// GetMaxTokens returns the configured token budget or the default.
func (ec ExecutionConfig) GetMaxTokens() int64 {
	if ec.MaxTokens > 0 {
		return ec.MaxTokens
	}
	return DefaultMaxTokens
}

// GetCacheMode returns the configured cache mode or CacheModeFresh.
func (ec ExecutionConfig) GetCacheMode() CacheMode {
	if ec.CacheMode != "" {
		return ec.CacheMode
	}
	return CacheModeFresh
}

// GetTaskTimeout returns the per-case timeout or zero when none is configured.
func (ec ExecutionConfig) GetTaskTimeout() time.Duration {
	if ec.TaskTimeout != nil {
		return *ec.TaskTimeout
	}
	return 0
}

// ProviderConfig defines settings for an AI provider.
type ProviderConfig struct {
	// Name specifies unique identifier of the provider.
	Name string `yaml:"name" validate:"required,oneof=openai google anthropic deepseek"`

	// ClientConfig holds provider-specific client settings.
	ClientConfig ClientConfig `yaml:"client-config" validate:"required"`

	// Runs lists run configurations for this provider.
	Runs []RunConfig `yaml:"runs" validate:"required,unique=Name,dive"`

	// Disabled indicates if all runs should be disabled by default.
	Disabled bool `yaml:"disabled" validate:"omitempty"`

	// SerializeRequests executes trial cases on this provider one at a time
	// even when the worker pool is larger, for endpoints that do not handle
	// concurrent requests safely.
	SerializeRequests bool `yaml:"serialize-requests" validate:"omitempty"`

	// RetryPolicy specifies default retry behavior for all runs in this provider.
	RetryPolicy RetryPolicy `yaml:"retry-policy" validate:"omitempty"`
}

// GetRunsResolved returns runs with retry policies and disabled flags resolved.
// If RunConfig.RetryPolicy is nil, the parent ProviderConfig.RetryPolicy value is used instead.
// If RunConfig.Disabled is nil, the parent ProviderConfig.Disabled value is used instead.
func (pc ProviderConfig) GetRunsResolved() []RunConfig {
	resolved := make([]RunConfig, 0, len(pc.Runs))
	for _, run := range pc.Runs {
		if run.RetryPolicy == nil {
			run.RetryPolicy = &pc.RetryPolicy
		}
		if run.Disabled == nil {
			run.Disabled = &pc.Disabled
		}
		resolved = append(resolved, run)
	}
	return resolved
}

// Resolve returns a copy of the provider configuration with runs resolved.
// If excludeDisabledRuns is true, only enabled runs are included.
func (pc ProviderConfig) Resolve(excludeDisabledRuns bool) ProviderConfig {
	resolved := pc
	resolved.Runs = pc.GetRunsResolved()

	if excludeDisabledRuns {
		enabledRuns := make([]RunConfig, 0, len(resolved.Runs))
		for _, run := range resolved.Runs {
			if !*run.Disabled {
				enabledRuns = append(enabledRuns, run)
			}
		}
		resolved.Runs = enabledRuns
	}

	return resolved
}

// ClientConfig is a marker interface for provider-specific configurations.
type ClientConfig interface{}

// OpenAIClientConfig represents OpenAI provider settings.
type OpenAIClientConfig struct {
	// APIKey is the API key for the OpenAI provider.
	APIKey string `yaml:"api-key" validate:"required"`
}

// GoogleAIClientConfig represents Google AI provider settings.
type GoogleAIClientConfig struct {
	// APIKey is the API key for the Google AI generative models provider.
	APIKey string `yaml:"api-key" validate:"required"`
}

// AnthropicClientConfig represents Anthropic provider settings.
type AnthropicClientConfig struct {
	// APIKey is the API key for the Anthropic generative models provider.
	APIKey string `yaml:"api-key" validate:"required"`
	// RequestTimeout specifies the timeout for API requests.
	RequestTimeout *time.Duration `yaml:"request-timeout" validate:"omitempty"`
}

// DeepseekClientConfig represents DeepSeek provider settings.
type DeepseekClientConfig struct {
	// APIKey is the API key for the DeepSeek generative models provider.
	APIKey string `yaml:"api-key" validate:"required"`
	// RequestTimeout specifies the timeout for API requests.
	RequestTimeout *time.Duration `yaml:"request-timeout" validate:"omitempty"`
}

// ToolConfig represents the configuration for a genetics tool available to trial tasks.
// A tool is backed either by a remote HTTP lookup endpoint or by a containerized command;
// exactly one of Request and Image must be set.
type ToolConfig struct {
	// Name is the unique identifier for the tool.
	Name string `yaml:"name" validate:"required"`
	// Description describes what the tool does. For optimal LLM understanding and tool selection,
	// provide extremely detailed descriptions including:
	// - What the tool does and its primary purpose
	// - When it should be used (and when it shouldn't)
	// - What each parameter in the schema means and how it affects behavior
	// - Any important caveats, limitations, or side effects
	// - Examples of usage if helpful
	// Aim for 3-4 sentences per tool description. Be specific and avoid ambiguity
	// to help the LLM choose the correct tool and provide appropriate parameters.
	Description string `yaml:"description" validate:"required"`
	// Parameters is the JSON schema for the tool's input parameters. Follow these best practices
	// to improve LLM parameter generation accuracy:
	// - Use standard JSON Schema format with detailed "description" fields for each parameter
	// - Specify precise types (string, integer, boolean, array, object)
	// - Use "enum" arrays for parameters with fixed sets of allowed values
	// - Clearly mark all required parameters in the "required" array
	// - Use "additionalProperties": false for objects to prevent unexpected parameters
	Parameters map[string]interface{} `yaml:"parameters" validate:"required"`
	// Request configures a remote HTTP lookup endpoint backing this tool,
	// such as a gene, variant, or disease catalog API.
	Request *ToolRequestConfig `yaml:"request,omitempty"`
	// Image is the name of the Docker image to use for a containerized tool.
	Image string `yaml:"image,omitempty"`
	// Command specifies the container command to execute as a list of its components.
	Command []string `yaml:"command,omitempty"`
	// Env specifies additional environment variables to set inside the container.
	Env map[string]string `yaml:"env,omitempty"`
	// ParameterFiles maps parameter field names to file paths where argument values should be written.
	// This allows passing large or complex data to tools via files instead of inline JSON.
	// The tool's command should read these files as needed.
	ParameterFiles map[string]string `yaml:"parameter-files,omitempty"`
	// AuxiliaryDir specifies the directory path where task files will be automatically available.
	// If set, all files attached to a task will be copied to this directory using each file's
	// `TaskFile.Name` exactly as provided.
	// This directory is ephemeral: files are reset between tool calls and do not persist
	// across multiple invocations.
	AuxiliaryDir string `yaml:"auxiliary-dir,omitempty"`
	// SharedDir specifies the directory path that persists across all tool calls within a single task.
	// If set, files created in this directory will be available for any subsequent tool calls but
	// will be removed when the task completes.
	SharedDir string `yaml:"shared-dir,omitempty"`
	// MaxCalls limits how many times a single trial case may invoke this tool.
	MaxCalls *int `yaml:"max-calls" validate:"omitempty,min=1"`
	// Timeout limits the duration of a single tool invocation.
	Timeout *time.Duration `yaml:"timeout" validate:"omitempty"`
	// MaxMemoryMB limits the memory available to a containerized tool, in megabytes.
	MaxMemoryMB *int `yaml:"max-memory-mb" validate:"omitempty,min=1"`
	// CpuPercent limits the CPU available to a containerized tool, in percent of all cores.
	CpuPercent *int `yaml:"cpu-percent" validate:"omitempty,min=1,max=100"`
}

// Validate checks that the tool configuration is internally consistent.
func (tc ToolConfig) Validate() error {
	hasRequest := tc.Request != nil
	hasImage := IsNotBlank(tc.Image)
	if hasRequest == hasImage {
		return fmt.Errorf("%w: tool %q must configure exactly one of request or image", ErrInvalidConfigProperty, tc.Name)
	}
	return nil
}

// ToolRequestConfig configures the remote HTTP endpoint backing a lookup tool.
type ToolRequestConfig struct {
	// URL is the endpoint address. Argument values may be interpolated into
	// the path using {parameter} placeholders, e.g.
	// "https://rest.ensembl.org/lookup/symbol/homo_sapiens/{symbol}".
	URL string `yaml:"url" validate:"required"`
	// Method is the HTTP request method.
	Method string `yaml:"method" validate:"omitempty,oneof=GET POST"`
	// Headers specifies additional HTTP headers to send with each request.
	Headers map[string]string `yaml:"headers,omitempty"`
	// Query maps query parameter names to argument {parameter} templates.
	Query map[string]string `yaml:"query,omitempty"`
	// ResponseFields restricts the returned JSON object to the listed top-level fields.
	// An empty list passes the response through unfiltered.
	ResponseFields []string `yaml:"response-fields,omitempty"`
}

// GetMethod returns the configured HTTP method, defaulting to GET.
func (rc ToolRequestConfig) GetMethod() string {
	if IsNotBlank(rc.Method) {
		return rc.Method
	}
	return "GET"
}

// RunConfig defines settings for a single run configuration.
type RunConfig struct {
	// Name is a display-friendly identifier shown in results.
	Name string `yaml:"name" validate:"required"`

	// Model specifies target model's identifier.
	Model string `yaml:"model" validate:"required"`

	// MaxRequestsPerMinute limits the number of API requests per minute sent to this specific model.
	// Value of 0 means no rate limiting will be applied.
	MaxRequestsPerMinute int `yaml:"max-requests-per-minute" validate:"omitempty,numeric,min=0"`

	// DisableStructuredOutput requests plain-text responses instead of structured JSON output
	// for compatibility with models that do not support response schemas.
	// The final answer is then recovered from the response text on a best-effort basis.
	DisableStructuredOutput bool `yaml:"disable-structured-output" validate:"omitempty"`

	// Disabled indicates if this run configuration should be skipped.
	// If set, overrides the parent ProviderConfig.Disabled value.
	Disabled *bool `yaml:"disabled" validate:"omitempty"`

	// ModelParams holds any model-specific configuration parameters.
	ModelParams ModelParams `yaml:"model-parameters" validate:"omitempty"`

	// RetryPolicy specifies retry behavior on transient errors.
	// If set, overrides the parent ProviderConfig.RetryPolicy value.
	RetryPolicy *RetryPolicy `yaml:"retry-policy" validate:"omitempty"`

	// MaxTurns caps the number of model turns within a single trial case.
	// If zero, the execution configuration value applies.
	MaxTurns int `yaml:"max-turns" validate:"omitempty,min=1"`

	// MaxTokens caps the measured token usage of a single trial case.
	// If zero, the execution configuration value applies.
	MaxTokens int64 `yaml:"max-tokens" validate:"omitempty,min=1"`
}

// RetryPolicy defines retry behavior on transient errors.
type RetryPolicy struct {
	// MaxRetryAttempts specifies the maximum number of retry attempts.
	// Value of 0 means no retry attempts will be made.
	MaxRetryAttempts uint `yaml:"max-retry-attempts" validate:"omitempty,min=0"`

	// InitialDelaySeconds specifies the initial delay in seconds before the first retry attempt.
	InitialDelaySeconds int `yaml:"initial-delay-seconds" validate:"omitempty,gt=0"`
}

// ModelParams is a marker interface for model-specific parameters.
type ModelParams interface{}

// OpenAIModelParams represents OpenAI model-specific settings.
type OpenAIModelParams struct {
	// ReasoningEffort controls effort level on reasoning for reasoning models.
	// Valid values are: "none", "minimal", "low", "medium", "high", "xhigh".
	ReasoningEffort *string `yaml:"reasoning-effort" validate:"omitempty,oneof=none minimal low medium high xhigh"`

	// Verbosity determines how many output tokens are generated.
	// Valid values are: "low", "medium", "high".
	// Note: May not be supported by legacy models.
	Verbosity *string `yaml:"verbosity" validate:"omitempty,oneof=low medium high"`

	// TextResponseFormat indicates whether to use plain-text response format
	// for compatibility with models that do not support JSON.
	TextResponseFormat bool `yaml:"text-response-format" validate:"omitempty"`

	// Temperature controls the randomness or "creativity" of the model's outputs.
	// Values range from 0.0 to 2.0, with lower values making the output more focused and deterministic.
	// The default value is 1.0.
	// It is generally recommended to alter this or `TopP` but not both.
	Temperature *float32 `yaml:"temperature" validate:"omitempty,min=0,max=2"`

	// TopP controls diversity via nucleus sampling.
	// Values range from 0.0 to 1.0, with lower values making the output more focused.
	// The default value is 1.0.
	// It is generally recommended to alter this or `Temperature` but not both.
	TopP *float32 `yaml:"top-p" validate:"omitempty,min=0,max=1"`

	// PresencePenalty penalizes new tokens based on whether they appear in the text so far.
	// Values range from -2.0 to 2.0, with positive values encouraging the model to use new tokens,
	// increasing the model's likelihood to talk about new topics.
	// The default value is 0.0.
	PresencePenalty *float32 `yaml:"presence-penalty" validate:"omitempty,min=-2,max=2"`

	// FrequencyPenalty penalizes new tokens based on their frequency in the text so far.
	// Values range from -2.0 to 2.0, with positive values encouraging the model to use less frequent tokens,
	// decreasing the model's likelihood to repeat the same line verbatim.
	// The default value is 0.0.
	FrequencyPenalty *float32 `yaml:"frequency-penalty" validate:"omitempty,min=-2,max=2"`

	// MaxCompletionTokens controls the maximum number of tokens available to the model for generating a response,
	// including visible output tokens and reasoning tokens.
	MaxCompletionTokens *int32 `yaml:"max-completion-tokens" validate:"omitempty,min=1"`

	// Seed makes text generation more deterministic. If specified, the system will
	// attempt to return the same result for the same inputs with the same seed value and parameters.
	// This field is for internal use only and not exposed in YAML configuration.
	Seed *int64 `yaml:"-"`
}

// GoogleAIModelParams represents Google AI model-specific settings.
type GoogleAIModelParams struct {
	// TextResponseFormat indicates whether to use plain-text response format
	// for compatibility with models that do not support JSON.
	TextResponseFormat bool `yaml:"text-response-format" validate:"omitempty"`

	// ThinkingLevel controls the maximum depth of the model's internal reasoning process.
	// Valid values: "low", "high".
	// - "low": Minimizes latency and cost, best for simple instruction following
	// - "high": Maximizes reasoning depth, the model may take longer but output is more carefully reasoned
	ThinkingLevel *string `yaml:"thinking-level" validate:"omitempty,oneof=low high"`

	// Temperature controls the randomness or "creativity" of the model's outputs.
	// Values range from 0.0 to 2.0, with lower values making the output more focused and deterministic.
	// The default value is typically around 1.0.
	Temperature *float32 `yaml:"temperature" validate:"omitempty,min=0,max=2"`

	// TopP controls diversity via nucleus sampling.
	// Values range from 0.0 to 1.0, with lower values making the output more focused.
	// The default value is typically around 1.0.
	TopP *float32 `yaml:"top-p" validate:"omitempty,min=0,max=1"`

	// TopK limits response tokens to top K options for each token position.
	// Higher values allow more diverse outputs by considering more token options.
	TopK *int32 `yaml:"top-k" validate:"omitempty,min=0"`

	// PresencePenalty penalizes new tokens based on whether they appear in the text so far.
	// Positive values discourage the use of tokens that have already been used in the response,
	// increasing the vocabulary. Negative values encourage the use of tokens that have already been used.
	// This penalty is binary on/off and not dependent on the number of times the token is used.
	PresencePenalty *float32 `yaml:"presence-penalty" validate:"omitempty"`

	// FrequencyPenalty penalizes new tokens based on their frequency in the text so far.
	// Positive values discourage the use of tokens that have already been used, proportional to
	// the number of times the token has been used. Negative values encourage the model to reuse tokens.
	// This differs from PresencePenalty as it scales with frequency.
	FrequencyPenalty *float32 `yaml:"frequency-penalty" validate:"omitempty"`

	// Seed is used for deterministic generation. When set to a specific value, the model
	// makes a best effort to provide the same response for repeated requests.
	// If not set, a randomly generated seed is used.
	Seed *int32 `yaml:"seed" validate:"omitempty"`
}

// AnthropicModelParams represents Anthropic model-specific settings.
type AnthropicModelParams struct {
	// MaxTokens controls the maximum number of tokens available to the model for generating a response.
	// This includes the thinking budget for reasoning models.
	MaxTokens *int64 `yaml:"max-tokens" validate:"omitempty,min=0"`

	// ThinkingBudgetTokens specifies the number of tokens the model can use for its internal reasoning process.
	// It must be at least 1024 and less than `MaxTokens`.
	// If set, this enables enhanced reasoning capabilities for the model.
	ThinkingBudgetTokens *int64 `yaml:"thinking-budget-tokens" validate:"omitempty,min=1024,ltfield=MaxTokens"`

	// Temperature controls the randomness or "creativity" of responses.
	// Values range from 0.0 to 1.0, with lower values making the output more focused.
	// The default value is 1.0.
	// It is generally recommended to alter this or `TopP` but not both.
	Temperature *float64 `yaml:"temperature" validate:"omitempty,min=0,max=1"`

	// TopP controls diversity via nucleus sampling.
	// Values range from 0.0 to 1.0, with lower values making the output more focused.
	// You usually only need to use `Temperature`.
	TopP *float64 `yaml:"top-p" validate:"omitempty,min=0,max=1"`

	// TopK limits response tokens to top K options for each token position.
	// Higher values allow more diverse outputs by considering more token options.
	// You usually only need to use `Temperature`.
	TopK *int64 `yaml:"top-k" validate:"omitempty,min=0"`
}

// DeepseekModelParams represents DeepSeek model-specific settings.
type DeepseekModelParams struct {
	// Temperature controls the randomness or "creativity" of the model's outputs.
	// Values range from 0.0 to 2.0, with lower values making the output more focused.
	// The default value is 1.0.
	// Recommended values by use case:
	// - 0.0: Coding / Math (best for precise, deterministic outputs)
	// - 1.0: Data Cleaning / Data Analysis
	// - 1.3: General Conversation / Translation
	// - 1.5: Creative Writing / Poetry (more varied and creative outputs)
	Temperature *float32 `yaml:"temperature" validate:"omitempty,min=0,max=2"`

	// TopP controls diversity via nucleus sampling.
	// Values range from 0.0 to 1.0, with lower values making the output more focused.
	// You usually only need to use `Temperature`.
	TopP *float32 `yaml:"top-p" validate:"omitempty,min=0,max=1"`

	// PresencePenalty penalizes new tokens based on whether they appear in the text so far.
	// Values range from -2.0 to 2.0, with positive values encouraging the model to use new tokens,
	// increasing the model's likelihood to talk about new topics.
	// The default value is 0.0.
	PresencePenalty *float32 `yaml:"presence-penalty" validate:"omitempty,min=-2,max=2"`

	// FrequencyPenalty penalizes new tokens based on their frequency in the text so far.
	// Values range from -2.0 to 2.0, with positive values encouraging the model to use less frequent tokens,
	// decreasing the model's likelihood to repeat the same line verbatim.
	// The default value is 0.0.
	FrequencyPenalty *float32 `yaml:"frequency-penalty" validate:"omitempty,min=-2,max=2"`
}

// JudgeConfig defines configuration for an LLM judge used for semantic evaluation of complex open-ended task responses.
// Judges analyze the meaning and quality of answers rather than performing exact text matching,
// enabling evaluation of subjective or creative tasks where multiple valid interpretations exist.
type JudgeConfig struct {
	// Name is the unique identifier for this judge configuration.
	Name string `yaml:"name" validate:"required"`

	// Provider encapsulates the provider configuration for the judge.
	Provider ProviderConfig `yaml:"provider" validate:"required"`

	// PromptTemplate optionally overrides the evaluation prompt sent to the judge model.
	// The template may reference {{.Task}}, {{.ResponseFormat}}, {{.Expected}} and {{.Actual}}.
	PromptTemplate string `yaml:"prompt-template" validate:"omitempty"`
}

// Validate checks that the judge configuration is internally consistent.
// Judge verdicts are parsed from structured output, so run variants
// that disable structured output cannot be used for evaluation.
func (jc JudgeConfig) Validate() error {
	if IsNotBlank(jc.PromptTemplate) {
		if _, err := template.New(jc.Name).Parse(jc.PromptTemplate); err != nil {
			return fmt.Errorf("%w: malformed judge prompt template: %v", ErrInvalidConfigProperty, err)
		}
	}
	for _, run := range jc.Provider.Runs {
		if run.DisableStructuredOutput {
			return fmt.Errorf("%w: judge variant '%s' must not disable structured output", ErrInvalidJudgeVariant, run.Name)
		}
	}
	return nil
}

// Resolve returns a copy of the judge configuration with run variants resolved.
// If excludeDisabledRuns is true, only enabled run variants are included.
func (jc JudgeConfig) Resolve(excludeDisabledRuns bool) JudgeConfig {
	resolved := jc
	resolved.Provider = jc.Provider.Resolve(excludeDisabledRuns)
	return resolved
}

// UnmarshalYAML implements custom YAML unmarshaling for ProviderConfig.
// It handles provider-specific client configuration based on provider name.
func (pc *ProviderConfig) UnmarshalYAML(value *yaml.Node) error {
	var temp struct {
		Name              string      `yaml:"name"`
		ClientConfig      yaml.Node   `yaml:"client-config"`
		Runs              yaml.Node   `yaml:"runs"`
		Disabled          bool        `yaml:"disabled"`
		SerializeRequests bool        `yaml:"serialize-requests"`
		RetryPolicy       RetryPolicy `yaml:"retry-policy"`
	}

	if err := value.Decode(&temp); err != nil {
		return err
	}

	pc.Name = temp.Name
	pc.Disabled = temp.Disabled
	pc.SerializeRequests = temp.SerializeRequests
	pc.RetryPolicy = temp.RetryPolicy

	if err := decodeRuns(temp.Name, &temp.Runs, &pc.Runs); err != nil {
		return err
	}

	switch temp.Name {
	case OPENAI:
		cfg := OpenAIClientConfig{}
		if err := temp.ClientConfig.Decode(&cfg); err != nil {
			return err
		}
		pc.ClientConfig = cfg
	case GOOGLE:
		cfg := GoogleAIClientConfig{}
		if err := temp.ClientConfig.Decode(&cfg); err != nil {
			return err
		}
		pc.ClientConfig = cfg
	case ANTHROPIC:
		cfg := AnthropicClientConfig{}
		if err := temp.ClientConfig.Decode(&cfg); err != nil {
			return err
		}
		pc.ClientConfig = cfg
	case DEEPSEEK:
		cfg := DeepseekClientConfig{}
		if err := temp.ClientConfig.Decode(&cfg); err != nil {
			return err
		}
		pc.ClientConfig = cfg
	default:
		return fmt.Errorf("%w: unknown client-config for provider: %s", ErrInvalidConfigProperty, temp.Name)
	}

	return nil
}

func decodeRuns(provider string, value *yaml.Node, out *[]RunConfig) error {
	var temp []struct {
		Name                    string       `yaml:"name"`
		Model                   string       `yaml:"model"`
		MaxRequestsPerMinute    int          `yaml:"max-requests-per-minute"`
		DisableStructuredOutput bool         `yaml:"disable-structured-output"`
		Disabled                *bool        `yaml:"disabled"`
		ModelParams             yaml.Node    `yaml:"model-parameters"`
		RetryPolicy             *RetryPolicy `yaml:"retry-policy"`
		MaxTurns                int          `yaml:"max-turns"`
		MaxTokens               int64        `yaml:"max-tokens"`
	}

	if err := value.Decode(&temp); err != nil {
		return err
	}

	*out = make([]RunConfig, len(temp))
	for i := range temp {
		(*out)[i].Name = temp[i].Name
		(*out)[i].Model = temp[i].Model
		(*out)[i].MaxRequestsPerMinute = temp[i].MaxRequestsPerMinute
		(*out)[i].DisableStructuredOutput = temp[i].DisableStructuredOutput
		(*out)[i].Disabled = temp[i].Disabled
		(*out)[i].RetryPolicy = temp[i].RetryPolicy
		(*out)[i].MaxTurns = temp[i].MaxTurns
		(*out)[i].MaxTokens = temp[i].MaxTokens

		if !temp[i].ModelParams.IsZero() {
			switch provider {
			case OPENAI:
				params := OpenAIModelParams{}
				if err := temp[i].ModelParams.Decode(&params); err != nil {
					return err
				}
				(*out)[i].ModelParams = params
			case GOOGLE:
				params := GoogleAIModelParams{}
				if err := temp[i].ModelParams.Decode(&params); err != nil {
					return err
				}
				(*out)[i].ModelParams = params
			case ANTHROPIC:
				params := AnthropicModelParams{}
				if err := temp[i].ModelParams.Decode(&params); err != nil {
					return err
				}
				(*out)[i].ModelParams = params
			case DEEPSEEK:
				params := DeepseekModelParams{}
				if err := temp[i].ModelParams.Decode(&params); err != nil {
					return err
				}
				(*out)[i].ModelParams = params
			default:
				return fmt.Errorf("%w: provider '%s' does not support model parameters", ErrInvalidConfigProperty, provider)
			}
		}
	}

	return nil
}
