// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"
	"github.com/petmal/genetrial/agent"
	"github.com/petmal/genetrial/config"
	"github.com/petmal/genetrial/pkg/logging"
	"github.com/petmal/genetrial/pkg/utils"
)

// NewOpenAI creates a new OpenAI provider instance with the given configuration.
func NewOpenAI(cfg config.OpenAIClientConfig, availableTools []config.ToolConfig) *OpenAI {
	return &OpenAI{
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithMaxRetries(0), // retries are governed by the run retry policy
		),
		availableTools: availableTools,
	}
}

// OpenAI implements the Provider interface for OpenAI generative models.
type OpenAI struct {
	client         openai.Client
	availableTools []config.ToolConfig
}

func (o OpenAI) Name() string {
	return config.OPENAI
}

func (o *OpenAI) Run(ctx context.Context, logger logging.Logger, cfg config.RunConfig, task config.Task) (result Result, err error) {
	request := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(cfg.Model),
		N:     param.NewOpt(int64(1)), // generate only one candidate response
	}

	useTextFormat := cfg.DisableStructuredOutput
	if cfg.ModelParams != nil {
		modelParams, ok := cfg.ModelParams.(config.OpenAIModelParams)
		if !ok {
			return result, fmt.Errorf("%w: %s", ErrInvalidModelParams, cfg.Name)
		}
		useTextFormat = useTextFormat || modelParams.TextResponseFormat
		if modelParams.ReasoningEffort != nil {
			request.ReasoningEffort = shared.ReasoningEffort(*modelParams.ReasoningEffort)
		}
		if modelParams.Verbosity != nil {
			request.Verbosity = openai.ChatCompletionNewParamsVerbosity(*modelParams.Verbosity)
		}
		if modelParams.Temperature != nil {
			request.Temperature = param.NewOpt(float64(*modelParams.Temperature))
		}
		if modelParams.TopP != nil {
			request.TopP = param.NewOpt(float64(*modelParams.TopP))
		}
		if modelParams.PresencePenalty != nil {
			request.PresencePenalty = param.NewOpt(float64(*modelParams.PresencePenalty))
		}
		if modelParams.FrequencyPenalty != nil {
			request.FrequencyPenalty = param.NewOpt(float64(*modelParams.FrequencyPenalty))
		}
		if modelParams.MaxCompletionTokens != nil {
			request.MaxCompletionTokens = param.NewOpt(int64(*modelParams.MaxCompletionTokens))
		}
		if modelParams.Seed != nil {
			request.Seed = param.NewOpt(*modelParams.Seed)
		}
	}

	var instructions []string
	if useTextFormat {
		request.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{OfText: &shared.ResponseFormatTextParam{}}
		if cfg.DisableStructuredOutput {
			instructions = append(instructions, DefaultUnstructuredResponseInstruction())
		} else {
			responseFormatInstruction, err := DefaultResponseFormatInstruction(task.ResponseResultFormat)
			if err != nil {
				return result, err
			}
			instructions = append(instructions, responseFormatInstruction)
		}
	} else {
		schema, err := ResultJSONSchema(task.ResponseResultFormat)
		if err != nil {
			return result, err
		}
		request.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
			JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:   "response",
				Schema: schema,
				Strict: param.NewOpt(true),
			},
		}}
	}

	dispatcher, selectedTools, err := setupToolDispatcher(ctx, o.availableTools, task)
	if err != nil {
		return result, err
	}
	defer func() {
		_ = dispatcher.Close()
	}()

	var data map[string][]byte
	if dispatcher != nil {
		if data, err = taskFilesToDataMap(ctx, task.Files); err != nil {
			return result, fmt.Errorf("%w: %v", ErrToolSetup, err)
		}
		for i := range selectedTools {
			request.Tools = append(request.Tools, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
				Name:        selectedTools[i].Name,
				Description: param.NewOpt(selectedTools[i].Description),
				Strict:      param.NewOpt(false),
				Parameters:  selectedTools[i].Parameters,
			}))
		}
		request.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt(string(openai.ChatCompletionToolChoiceOptionAutoAuto))}
	}

	seed, err := seedConversation(ctx, task, &result, instructions...)
	if err != nil {
		return result, err
	}

	turner := withTurnRetry(&openAITurner{client: o.client, request: request}, cfg.RetryPolicy, logger)
	loop := agent.NewLoop(turner, newToolInvoker(logger, dispatcher, data, cfg.RetryPolicy), nil, logger)
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

func (o *OpenAI) Close(ctx context.Context) error {
	return nil
}

// openAITurner executes chat completion turns against the OpenAI API.
type openAITurner struct {
	client  openai.Client
	request openai.ChatCompletionNewParams
}

// GenerateTurn implements agent.ModelTurner.
func (t *openAITurner) GenerateTurn(ctx context.Context, conversation agent.Conversation) (turn agent.Turn, err error) {
	request := t.request
	if request.Messages, err = openAIMessages(conversation); err != nil {
		return turn, err
	}

	resp, err := t.client.Chat.Completions.New(ctx, request)
	if err != nil {
		if isTransientOpenAIError(err) {
			return turn, WrapErrGenerateResponse(WrapErrRetryable(err))
		}
		return turn, WrapErrGenerateResponse(err)
	}
	if len(resp.Choices) == 0 {
		return turn, WrapErrGenerateResponse(ErrEmptyResponse)
	}

	candidate := resp.Choices[0]
	turn.Message = agent.AssistantMessage(candidate.Message.Content)
	for _, toolCall := range candidate.Message.ToolCalls {
		turn.Message.ToolCalls = append(turn.Message.ToolCalls, agent.ToolCall{
			ID:        toolCall.ID,
			Name:      toolCall.Function.Name,
			Arguments: json.RawMessage(toolCall.Function.Arguments),
		})
	}
	if resp.Usage.TotalTokens > 0 {
		turn.Usage = agent.Usage{
			InputTokens:  utils.Ptr(resp.Usage.PromptTokens),
			OutputTokens: utils.Ptr(resp.Usage.CompletionTokens),
		}
	}
	return turn, nil
}

// openAIMessages converts the neutral conversation into OpenAI chat messages.
func openAIMessages(conversation agent.Conversation) ([]openai.ChatCompletionMessageParamUnion, error) {
	converted := make([]openai.ChatCompletionMessageParamUnion, 0, conversation.Len())
	for _, message := range conversation.Messages() {
		switch message.Role {
		case agent.RoleSystem:
			converted = append(converted, openai.SystemMessage(message.Content))
		case agent.RoleUser:
			if len(message.Attachments) == 0 {
				converted = append(converted, openai.UserMessage(message.Content))
				continue
			}
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, (len(message.Attachments)*2)+1)
			for _, attachment := range message.Attachments {
				if !isSupportedImageType(attachment.MIMEType) {
					return nil, fmt.Errorf("%w: %s", ErrFileNotSupported, attachment.MIMEType)
				}
				parts = append(parts, openai.TextContentPart(DefaultTaskFileNameInstruction(attachment.Name)))
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL:    attachment.DataURL(),
					Detail: "auto",
				}))
			}
			// Append the prompt text after the file data for improved context integrity.
			parts = append(parts, openai.TextContentPart(message.Content))
			converted = append(converted, openai.UserMessage(parts))
		case agent.RoleAssistant:
			converted = append(converted, openAIAssistantMessage(message))
		case agent.RoleTool:
			if message.ToolResult != nil {
				converted = append(converted, openai.ToolMessage(message.ToolResult.Content, message.ToolResult.CallID))
			}
		}
	}
	return converted, nil
}

// openAIAssistantMessage converts an assistant message with optional tool calls.
func openAIAssistantMessage(message agent.Message) openai.ChatCompletionMessageParamUnion {
	if len(message.ToolCalls) == 0 {
		return openai.AssistantMessage(message.Content)
	}

	assistant := openai.ChatCompletionAssistantMessageParam{}
	if message.Content != "" {
		assistant.Content.OfString = param.NewOpt(message.Content)
	}
	for _, call := range message.ToolCalls {
		assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: call.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      call.Name,
					Arguments: string(call.Arguments),
				},
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

func isTransientOpenAIError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return slices.Contains([]int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusServiceUnavailable,
		}, apiErr.StatusCode)
	}
	return false
}
