// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package providers

import (
	"context"
	"encoding/json"
	"fmt"

	deepseek "github.com/cohesion-org/deepseek-go"
	"github.com/petmal/genetrial/agent"
	"github.com/petmal/genetrial/config"
	"github.com/petmal/genetrial/pkg/logging"
	"github.com/petmal/genetrial/pkg/utils"
	"golang.org/x/exp/constraints"
)

// NewDeepseek creates a new Deepseek provider instance with the given configuration.
func NewDeepseek(cfg config.DeepseekClientConfig) (*Deepseek, error) {
	opts := make([]deepseek.Option, 0)
	if cfg.RequestTimeout != nil {
		opts = append(opts, deepseek.WithTimeout(*cfg.RequestTimeout))
	}
	client, err := deepseek.NewClientWithOptions(cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateClient, err)
	}
	return &Deepseek{
		client: client,
	}, nil
}

// Deepseek implements the Provider interface for Deepseek generative models.
type Deepseek struct {
	client *deepseek.Client
}

func (o Deepseek) Name() string {
	return config.DEEPSEEK
}

func (o *Deepseek) Run(ctx context.Context, logger logging.Logger, cfg config.RunConfig, task config.Task) (result Result, err error) {
	if _, hasTools := task.GetResolvedToolSelector().GetEnabledToolsByName(); hasTools {
		return result, ErrToolUseNotSupported
	}
	if len(task.Files) > 0 {
		// NOTE: Deepseek API does not support file upload in the current version.
		return result, ErrFileUploadNotSupported
	}

	request := deepseek.ChatCompletionRequest{
		Model: cfg.Model,
	}

	var instructions []string
	if cfg.DisableStructuredOutput {
		instructions = append(instructions, DefaultUnstructuredResponseInstruction())
	} else {
		responseFormatInstruction, err := DefaultResponseFormatInstruction(task.ResponseResultFormat) // NOTE: required with JSONMode
		if err != nil {
			return result, err
		}
		instructions = append(instructions, responseFormatInstruction)
		request.JSONMode = true
	}

	if cfg.ModelParams != nil {
		modelParams, ok := cfg.ModelParams.(config.DeepseekModelParams)
		if !ok {
			return result, fmt.Errorf("%w: %s", ErrInvalidModelParams, cfg.Name)
		}
		setIfNotNil(&request.Temperature, modelParams.Temperature)
		setIfNotNil(&request.TopP, modelParams.TopP)
		setIfNotNil(&request.FrequencyPenalty, modelParams.FrequencyPenalty)
		setIfNotNil(&request.PresencePenalty, modelParams.PresencePenalty)
	}

	seed, err := seedConversation(ctx, task, &result, instructions...)
	if err != nil {
		return result, err
	}

	turner := withTurnRetry(&deepseekTurner{client: o.client, request: request}, cfg.RetryPolicy, logger)
	loop := agent.NewLoop(turner, newToolInvoker(logger, nil, nil, cfg.RetryPolicy), nil, logger)
	outcome, runErr := timed(func() (agent.Outcome, error) {
		return loop.Run(ctx, seed, runBudget(cfg))
	}, &result.duration)

	return result, finalizeOutcome(ctx, logger, cfg, outcome, runErr, &result)
}

func (o *Deepseek) Close(ctx context.Context) error {
	return nil
}

func setIfNotNil[T constraints.Float](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// deepseekTurner executes chat completion turns against the Deepseek API.
type deepseekTurner struct {
	client  *deepseek.Client
	request deepseek.ChatCompletionRequest
}

// GenerateTurn implements agent.ModelTurner.
func (t *deepseekTurner) GenerateTurn(ctx context.Context, conversation agent.Conversation) (turn agent.Turn, err error) {
	request := t.request
	request.Messages = deepseekMessages(conversation)

	resp, err := t.client.CreateChatCompletion(ctx, &request)
	if err != nil {
		return turn, WrapErrGenerateResponse(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return turn, WrapErrGenerateResponse(ErrEmptyResponse)
	}
	if resp.Usage.TotalTokens > 0 {
		turn.Usage = agent.Usage{
			InputTokens:  utils.Ptr(int64(resp.Usage.PromptTokens)),
			OutputTokens: utils.Ptr(int64(resp.Usage.CompletionTokens)),
		}
	}

	content := resp.Choices[0].Message.Content
	if t.request.JSONMode {
		// The payload may arrive wrapped in markdown fences; extract the JSON body.
		var extracted json.RawMessage
		if err := deepseek.NewJSONExtractor(nil).ExtractJSON(resp, &extracted); err == nil {
			content = string(extracted)
		}
	}
	turn.Message = agent.AssistantMessage(content)
	return turn, nil
}

// deepseekMessages converts the neutral conversation into Deepseek chat messages.
func deepseekMessages(conversation agent.Conversation) []deepseek.ChatCompletionMessage {
	messages := make([]deepseek.ChatCompletionMessage, 0, conversation.Len())
	for _, message := range conversation.Messages() {
		switch message.Role {
		case agent.RoleSystem:
			messages = append(messages, deepseek.ChatCompletionMessage{Role: deepseek.ChatMessageRoleSystem, Content: message.Content})
		case agent.RoleUser:
			messages = append(messages, deepseek.ChatCompletionMessage{Role: deepseek.ChatMessageRoleUser, Content: message.Content})
		case agent.RoleAssistant:
			messages = append(messages, deepseek.ChatCompletionMessage{Role: deepseek.ChatMessageRoleAssistant, Content: message.Content})
		}
	}
	return messages
}
