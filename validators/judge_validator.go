// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package validators

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/petmal/genetrial/config"
	"github.com/petmal/genetrial/pkg/logging"
	"github.com/petmal/genetrial/pkg/utils"
	"github.com/petmal/genetrial/providers"
	"golang.org/x/time/rate"
)

const judgeTaskName = "judge_evaluation"

// judgeValidator uses an LLM to evaluate the correctness of responses.
// It provides semantic validation by comparing model responses against expected answers
// using another AI model as a judge, rather than relying on exact value matching.
type judgeValidator struct {
	judge           providers.Provider
	judgeRunVariant config.RunConfig
	promptTemplate  *template.Template
	limiter         *rate.Limiter
}

// NewJudgeValidator creates a new semantic Validator backed by the configured judge provider.
// The judge provider is created from the judge configuration and used to evaluate
// responses for semantic equivalence. If the judge configuration carries a custom
// prompt template it replaces the default evaluation prompt.
// Rate limiting is applied based on the run variant configuration's MaxRequestsPerMinute setting.
func NewJudgeValidator(ctx context.Context, judgeConfig *config.JudgeConfig, judgeRunVariant config.RunConfig, availableTools []config.ToolConfig) (Validator, error) {
	judge, err := providers.NewProvider(ctx, judgeConfig.Provider, availableTools)
	if err != nil {
		return nil, fmt.Errorf("failed to create judge provider: %w", err)
	}

	var promptTemplate *template.Template
	if config.IsNotBlank(judgeConfig.PromptTemplate) {
		if promptTemplate, err = template.New("judgePrompt").Parse(judgeConfig.PromptTemplate); err != nil {
			return nil, fmt.Errorf("failed to parse judge prompt template: %w", err)
		}
	}

	var limiter *rate.Limiter
	if judgeRunVariant.MaxRequestsPerMinute > 0 {
		// Allow a burst up to the per-minute limit.
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(judgeRunVariant.MaxRequestsPerMinute)), judgeRunVariant.MaxRequestsPerMinute)
	}

	return &judgeValidator{
		judge:           judge,
		judgeRunVariant: judgeRunVariant,
		promptTemplate:  promptTemplate,
		limiter:         limiter,
	}, nil
}

// IsCorrect evaluates the response using the judge LLM.
// The originalPrompt and expectedResponseFormat provide additional context to help the judge
// make more informed evaluations by understanding the task requirements.
func (v *judgeValidator) IsCorrect(ctx context.Context, logger logging.Logger, rules config.ValidationRules, expected utils.ValueSet, actual providers.Result, originalPrompt string, expectedResponseFormat config.ResponseFormat) (ValidationResult, error) {
	if err := ctx.Err(); err != nil {
		return ValidationResult{Verdict: VerdictError}, err
	}

	if v.limiter != nil {
		if err := v.limiter.Wait(ctx); err != nil {
			return ValidationResult{Verdict: VerdictError}, err
		}
	}

	// Create a task for the judge to evaluate.
	prompt, err := v.createJudgePrompt(rules, expected, actual.GetFinalAnswerContent(), originalPrompt, expectedResponseFormat)
	if err != nil {
		return ValidationResult{Verdict: VerdictError}, fmt.Errorf("failed to create judge prompt: %w", err)
	}

	judgeTask := config.Task{
		Name:                 judgeTaskName,
		Prompt:               prompt,
		ResponseResultFormat: config.NewResponseFormat("0 (incorrect), 1 (correct), or 2 (undetermined)"),
	}

	// Execute the judge task and evaluate the response.
	judgeTaskResult, err := v.executeJudgeTask(ctx, logger, judgeTask)
	if err != nil {
		return ValidationResult{Verdict: VerdictError}, fmt.Errorf("judge evaluation failed: %w", err)
	}

	verdict := parseJudgeVerdict(judgeTaskResult.GetFinalAnswerContent())

	var explanation string
	switch verdict {
	case VerdictPass:
		explanation = fmt.Sprintf("Response is semantically equivalent to one of the accepted answers.\n\nJudge reasoning:\n%s", judgeTaskResult.Explanation)
	case VerdictFail:
		explanation = fmt.Sprintf("Response is not semantically equivalent to any of the accepted answers.\n\nJudge reasoning:\n%s", judgeTaskResult.Explanation)
	default:
		explanation = fmt.Sprintf("Judge could not determine semantic equivalence.\n\nJudge reasoning:\n%s", judgeTaskResult.Explanation)
	}

	return ValidationResult{
		Verdict:     verdict,
		Title:       "Semantic Assessment",
		Explanation: explanation,
		assessment:  &judgeTaskResult,
	}, nil
}

// parseJudgeVerdict maps the judge's answer to a verdict.
// An answer outside the requested format counts as undetermined.
func parseJudgeVerdict(answer interface{}) Verdict {
	switch NewValueMatchValidator().ToCanonical(config.ValidationRules{}, answer) {
	case "1", int64(1):
		return VerdictPass
	case "0", int64(0):
		return VerdictFail
	default:
		return VerdictAmbiguous
	}
}

func (v *judgeValidator) ToCanonical(_ config.ValidationRules, value interface{}) interface{} {
	// For judge validator, we only trim whitespace to preserve the original model output.
	if text, ok := value.(string); ok {
		return strings.TrimSpace(text)
	}
	return value
}

func (v *judgeValidator) GetName() string {
	return fmt.Sprintf("%s (%s) judge", v.judge.Name(), v.judgeRunVariant.Name)
}

func (v *judgeValidator) Close(ctx context.Context) error {
	if v.judge != nil {
		return v.judge.Close(ctx)
	}
	return nil
}

// executeJudgeTask runs the evaluation prompt on the judge provider.
// Transient judge call failures are retried inside the provider run per the
// judge run variant's retry policy, the same way task model calls are.
// The caller has already applied rate limiting.
func (v *judgeValidator) executeJudgeTask(ctx context.Context, logger logging.Logger, task config.Task) (providers.Result, error) {
	return v.judge.Run(ctx, logger, v.judgeRunVariant, task)
}

// defaultJudgePromptTemplate defines the template for judge semantic evaluation prompts.
var defaultJudgePromptTemplate = template.Must(template.New("judgePrompt").Parse(`You are an automatic grader. Decide if the candidate response is semantically equivalent to ANY ONE of the expected answers.

Definitions
- Semantic equivalence: the candidate conveys the same meaning and required facts as an expected answer; wording may differ.
- Extra content: ignore unless it contradicts or changes the meaning.
- Normalization: apply the flags below BEFORE comparing (case/whitespace).

Inputs
Original task prompt:
{{.Task}}

Original answer format instruction:
{{.ResponseFormat}}

Expected answer(s) (match any one):
{{- range .Expected}}
- {{.}}
{{- end}}

Candidate response:
{{.Actual}}

Validation flags:
- Case sensitive: {{if .Rules.IsCaseSensitive}}yes{{else}}no{{end}}
- Ignore whitespace: {{if .Rules.IsIgnoreWhitespace}}yes{{else}}no{{end}}

Procedure
1. Normalize candidate and each expected answer per the flags.
2. Compare the candidate to each expected answer independently for semantic equivalence.
3. If ANY match, the response is correct; if none match, it is incorrect; if the inputs do not allow a decision, it is undetermined.`))

// judgePromptData carries the values available to judge prompt templates.
type judgePromptData struct {
	// Task is the original task prompt given to the evaluated model.
	Task string
	// ResponseFormat is the answer format instruction of the original task.
	ResponseFormat string
	// Expected lists the accepted answers in display form.
	Expected []string
	// Actual is the candidate response in display form.
	Actual string
	// Rules are the validation rules in effect.
	Rules config.ValidationRules
}

// createJudgePrompt creates a prompt for the judge to evaluate semantic equivalence.
// The originalPrompt and expectedResponseFormat provide additional context to help the judge
// understand the task requirements and make more informed evaluations.
func (v *judgeValidator) createJudgePrompt(rules config.ValidationRules, expected utils.ValueSet, actualResponse interface{}, originalPrompt string, expectedResponseFormat config.ResponseFormat) (string, error) {
	data := judgePromptData{
		Task:           originalPrompt,
		ResponseFormat: expectedResponseFormat.String(),
		Expected:       displayValues(expected),
		Actual:         displayValue(actualResponse),
		Rules:          rules,
	}

	promptTemplate := v.promptTemplate
	if promptTemplate == nil {
		promptTemplate = defaultJudgePromptTemplate
	}

	var result strings.Builder
	if err := promptTemplate.Execute(&result, data); err != nil {
		return "", err
	}

	return result.String(), nil
}

// displayValues renders each expected value as text for inclusion in a prompt.
func displayValues(values utils.ValueSet) []string {
	if texts, allText := values.AsStringSet(); allText {
		return texts.Values()
	}
	result := make([]string, 0, len(values.Values()))
	for _, value := range values.Values() {
		result = append(result, displayValue(value))
	}
	return result
}

// displayValue renders a value as text for inclusion in a prompt.
// Structured values are rendered as compact JSON.
func displayValue(value interface{}) string {
	if text, ok := value.(string); ok {
		return text
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(encoded)
}
