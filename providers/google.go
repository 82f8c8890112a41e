// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/petmal/genetrial/agent"
	"github.com/petmal/genetrial/config"
	"github.com/petmal/genetrial/pkg/logging"
	"github.com/petmal/genetrial/pkg/utils"
	"google.golang.org/genai"
)

// NewGoogleAI creates a new GoogleAI provider instance with the given configuration.
// It returns an error if client initialization fails.
func NewGoogleAI(ctx context.Context, cfg config.GoogleAIClientConfig) (*GoogleAI, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateClient, err)
	}
	return &GoogleAI{
		client: client,
	}, nil
}

// GoogleAI implements the Provider interface for Google AI generative models.
type GoogleAI struct {
	client *genai.Client
}

func (o GoogleAI) Name() string {
	return config.GOOGLE
}

func (o *GoogleAI) Run(ctx context.Context, logger logging.Logger, cfg config.RunConfig, task config.Task) (result Result, err error) {
	if _, hasTools := task.GetResolvedToolSelector().GetEnabledToolsByName(); hasTools {
		return result, ErrToolUseNotSupported
	}

	// Prepare the JSON schema for structured response.
	responseSchema, err := ResultJSONSchemaRaw(task.ResponseResultFormat)
	if err != nil {
		return result, err
	}

	generateConfig := &genai.GenerateContentConfig{
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: responseSchema,
		CandidateCount:     1,
	}

	useTextFormat := cfg.DisableStructuredOutput
	if cfg.ModelParams != nil {
		modelParams, ok := cfg.ModelParams.(config.GoogleAIModelParams)
		if !ok {
			return result, fmt.Errorf("%w: %s", ErrInvalidModelParams, cfg.Name)
		}
		useTextFormat = useTextFormat || modelParams.TextResponseFormat
		if modelParams.ThinkingLevel != nil {
			level := genai.ThinkingLevelLow
			if *modelParams.ThinkingLevel == "high" {
				level = genai.ThinkingLevelHigh
			}
			generateConfig.ThinkingConfig = &genai.ThinkingConfig{ThinkingLevel: level}
		}
		if modelParams.Temperature != nil {
			generateConfig.Temperature = modelParams.Temperature
		}
		if modelParams.TopP != nil {
			generateConfig.TopP = modelParams.TopP
		}
		if modelParams.TopK != nil {
			// TopK should logically be an integer (number of tokens), but the Go genai library
			// expects float32.
			generateConfig.TopK = genai.Ptr(float32(*modelParams.TopK))
		}
		if modelParams.PresencePenalty != nil {
			generateConfig.PresencePenalty = modelParams.PresencePenalty
		}
		if modelParams.FrequencyPenalty != nil {
			generateConfig.FrequencyPenalty = modelParams.FrequencyPenalty
		}
		if modelParams.Seed != nil {
			generateConfig.Seed = modelParams.Seed
		}
	}

	var instructions []string
	if useTextFormat {
		generateConfig.ResponseMIMEType = "text/plain"
		generateConfig.ResponseJsonSchema = nil
		if cfg.DisableStructuredOutput {
			instructions = append(instructions, DefaultUnstructuredResponseInstruction())
		} else {
			responseFormatInstruction, err := DefaultResponseFormatInstruction(task.ResponseResultFormat)
			if err != nil {
				return result, err
			}
			instructions = append(instructions, responseFormatInstruction)
		}
	}

	seed, err := seedConversation(ctx, task, &result, instructions...)
	if err != nil {
		return result, err
	}

	turner := withTurnRetry(&googleAITurner{client: o.client, model: cfg.Model, config: generateConfig}, cfg.RetryPolicy, logger)
	loop := agent.NewLoop(turner, newToolInvoker(logger, nil, nil, cfg.RetryPolicy), nil, logger)
	outcome, runErr := timed(func() (agent.Outcome, error) {
		return loop.Run(ctx, seed, runBudget(cfg))
	}, &result.duration)

	// Text-mode responses may wrap the JSON payload in prose; repair before decoding.
	if outcome.State == agent.Done && useTextFormat && !cfg.DisableStructuredOutput {
		repaired, repairErr := utils.RepairTextJSON(outcome.FinalAnswer)
		if repairErr != nil {
			result.recordOutcome(outcome)
			return result, NewErrUnmarshalResponse(repairErr, []byte(outcome.FinalAnswer), nil)
		}
		outcome.FinalAnswer = repaired
	}

	return result, finalizeOutcome(ctx, logger, cfg, outcome, runErr, &result)
}

func (o *GoogleAI) Close(ctx context.Context) error {
	return nil
}

// googleAITurner executes content generation turns against the Google AI API.
type googleAITurner struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// GenerateTurn implements agent.ModelTurner.
func (t *googleAITurner) GenerateTurn(ctx context.Context, conversation agent.Conversation) (turn agent.Turn, err error) {
	contents, system, err := googleAIContents(conversation)
	if err != nil {
		return turn, err
	}
	generateConfig := *t.config
	if len(system) > 0 {
		generateConfig.SystemInstruction = &genai.Content{Parts: system}
	}

	resp, err := t.client.Models.GenerateContent(ctx, t.model, contents, &generateConfig)
	if err != nil {
		if isTransientGoogleAIError(err) {
			return turn, WrapErrGenerateResponse(WrapErrRetryable(err))
		}
		return turn, WrapErrGenerateResponse(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return turn, WrapErrGenerateResponse(ErrEmptyResponse)
	}
	if resp.UsageMetadata != nil {
		turn.Usage = agent.Usage{
			InputTokens:  utils.Ptr(int64(resp.UsageMetadata.PromptTokenCount)),
			OutputTokens: utils.Ptr(int64(resp.UsageMetadata.CandidatesTokenCount)),
		}
	}

	var text string
	if candidate := resp.Candidates[0]; candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				text += part.Text
			}
		}
	}
	turn.Message = agent.AssistantMessage(text)
	return turn, nil
}

// googleAIContents converts the neutral conversation into Google AI contents.
// System messages map to the request system instruction parts.
func googleAIContents(conversation agent.Conversation) ([]*genai.Content, []*genai.Part, error) {
	var system []*genai.Part
	contents := make([]*genai.Content, 0, conversation.Len())
	for _, message := range conversation.Messages() {
		switch message.Role {
		case agent.RoleSystem:
			system = append(system, genai.NewPartFromText(message.Content))
		case agent.RoleUser:
			parts := make([]*genai.Part, 0, (len(message.Attachments)*2)+1)
			for _, attachment := range message.Attachments {
				if !isSupportedImageType(attachment.MIMEType) {
					return nil, nil, fmt.Errorf("%w: %s", ErrFileNotSupported, attachment.MIMEType)
				}
				content, err := attachment.Bytes()
				if err != nil {
					return nil, nil, fmt.Errorf("%w: %v", ErrCreatePromptRequest, err)
				}
				parts = append(parts, genai.NewPartFromText(DefaultTaskFileNameInstruction(attachment.Name)))
				parts = append(parts, genai.NewPartFromBytes(content, attachment.MIMEType))
			}
			// Append the prompt text after the file data for improved context integrity.
			parts = append(parts, genai.NewPartFromText(message.Content))
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
		case agent.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(message.Content, genai.RoleModel))
		}
	}
	return contents, system, nil
}

func isTransientGoogleAIError(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return slices.Contains([]int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusServiceUnavailable,
		}, apiErr.Code)
	}
	return false
}
