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

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/petmal/genetrial/agent"
	"github.com/petmal/genetrial/config"
	"github.com/petmal/genetrial/pkg/logging"
	"github.com/petmal/genetrial/pkg/utils"
)

const responseFormatterToolName = "record_summary"
const defaultMaxTokens = 2048

// anthropicOverloadedStatus is returned when the API is temporarily overloaded.
const anthropicOverloadedStatus = 529

// NewAnthropic creates a new Anthropic provider instance with the given configuration.
func NewAnthropic(cfg config.AnthropicClientConfig, availableTools []config.ToolConfig) *Anthropic {
	opts := []anthropicoption.RequestOption{anthropicoption.WithAPIKey(cfg.APIKey)}
	if cfg.RequestTimeout != nil {
		opts = append(opts, anthropicoption.WithRequestTimeout(*cfg.RequestTimeout))
	}
	return &Anthropic{
		client:         anthropic.NewClient(opts...),
		availableTools: availableTools,
	}
}

// Anthropic implements the Provider interface for Anthropic generative models.
type Anthropic struct {
	client         anthropic.Client
	availableTools []config.ToolConfig
}

func (o Anthropic) Name() string {
	return config.ANTHROPIC
}

func (o *Anthropic) Run(ctx context.Context, logger logging.Logger, cfg config.RunConfig, task config.Task) (result Result, err error) {
	request := anthropic.MessageNewParams{
		MaxTokens: defaultMaxTokens,
		Model:     anthropic.Model(cfg.Model),
	}

	var instructions []string
	if cfg.DisableStructuredOutput {
		instructions = append(instructions, DefaultUnstructuredResponseInstruction())
	} else {
		schema, err := ResultJSONSchema(task.ResponseResultFormat)
		if err != nil {
			return result, err
		}
		request.Tools = []anthropic.ToolUnionParam{
			{
				OfTool: &anthropic.ToolParam{
					Name:        responseFormatterToolName,
					Description: anthropic.String("Record the response using well-structured JSON."),
					InputSchema: anthropic.ToolInputSchemaParam{
						Properties: schema.Properties,
						Required:   schema.Required,
					},
				},
			},
		}
		request.ToolChoice = anthropic.ToolChoiceParamOfTool(responseFormatterToolName)
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
			toolInputSchema, err := MapToJSONSchema(selectedTools[i].Parameters)
			if err != nil {
				return result, fmt.Errorf("%w: %v", ErrToolSetup, err)
			}
			request.Tools = append(request.Tools, anthropic.ToolUnionParam{
				OfTool: &anthropic.ToolParam{
					Name:        selectedTools[i].Name,
					Description: anthropic.String(selectedTools[i].Description),
					InputSchema: anthropic.ToolInputSchemaParam{
						Properties: toolInputSchema.Properties,
						Required:   toolInputSchema.Required,
					},
				},
			})
		}
		// The model must be free to call task tools before recording the response.
		request.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfAuto: &anthropic.ToolChoiceAutoParam{},
		}
	}

	if cfg.ModelParams != nil {
		modelParams, ok := cfg.ModelParams.(config.AnthropicModelParams)
		if !ok {
			return result, fmt.Errorf("%w: %s", ErrInvalidModelParams, cfg.Name)
		}
		if modelParams.MaxTokens != nil {
			request.MaxTokens = *modelParams.MaxTokens
		}
		if modelParams.ThinkingBudgetTokens != nil {
			request.Thinking = anthropic.ThinkingConfigParamOfEnabled(*modelParams.ThinkingBudgetTokens)
			if len(request.Tools) > 0 {
				// Thinking may not be enabled when tool_choice forces tool use.
				// Use Auto instead.
				request.ToolChoice = anthropic.ToolChoiceUnionParam{
					OfAuto: &anthropic.ToolChoiceAutoParam{},
				}
			}
		}
		if modelParams.Temperature != nil {
			request.Temperature = anthropic.Float(*modelParams.Temperature)
		}
		if modelParams.TopP != nil {
			request.TopP = anthropic.Float(*modelParams.TopP)
		}
		if modelParams.TopK != nil {
			request.TopK = anthropic.Int(*modelParams.TopK)
		}
	}

	seed, err := seedConversation(ctx, task, &result, instructions...)
	if err != nil {
		return result, err
	}

	turner := withTurnRetry(&anthropicTurner{client: o.client, request: request}, cfg.RetryPolicy, logger)
	loop := agent.NewLoop(turner, newToolInvoker(logger, dispatcher, data, cfg.RetryPolicy), nil, logger)
	outcome, runErr := timed(func() (agent.Outcome, error) {
		return loop.Run(ctx, seed, runBudget(cfg))
	}, &result.duration)

	// The recorded answer may arrive wrapped in prose when tool choice
	// is not forced; repair before decoding.
	if outcome.State == agent.Done && !cfg.DisableStructuredOutput {
		repaired, repairErr := utils.RepairTextJSON(outcome.FinalAnswer)
		if repairErr != nil {
			result.recordOutcome(outcome)
			return result, NewErrUnmarshalResponse(repairErr, []byte(outcome.FinalAnswer), nil)
		}
		outcome.FinalAnswer = repaired
	}

	return result, finalizeOutcome(ctx, logger, cfg, outcome, runErr, &result)
}

func (o *Anthropic) Close(ctx context.Context) error {
	return nil
}

// anthropicTurner executes message turns against the Anthropic API.
type anthropicTurner struct {
	client  anthropic.Client
	request anthropic.MessageNewParams
	// assistantTurns keeps the raw assistant messages of previous turns so that
	// thinking and tool use blocks survive the round trip through the neutral
	// conversation history.
	assistantTurns []anthropic.MessageParam
}

// GenerateTurn implements agent.ModelTurner.
func (t *anthropicTurner) GenerateTurn(ctx context.Context, conversation agent.Conversation) (turn agent.Turn, err error) {
	request := t.request
	if request.Messages, request.System, err = t.anthropicMessages(conversation); err != nil {
		return turn, err
	}

	resp, err := t.client.Messages.New(ctx, request)
	if err != nil {
		if isTransientAnthropicError(err) {
			return turn, WrapErrGenerateResponse(WrapErrRetryable(err))
		}
		return turn, WrapErrGenerateResponse(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return turn, WrapErrGenerateResponse(ErrEmptyResponse)
	}
	t.assistantTurns = append(t.assistantTurns, resp.ToParam())

	if resp.Usage.InputTokens > 0 || resp.Usage.OutputTokens > 0 {
		turn.Usage = agent.Usage{
			InputTokens:  utils.Ptr(resp.Usage.InputTokens),
			OutputTokens: utils.Ptr(resp.Usage.OutputTokens),
		}
	}

	var text string
	var toolCalls []agent.ToolCall
	for _, block := range resp.Content {
		switch block := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += block.Text
		case anthropic.ToolUseBlock:
			// The response formatter call carries the final structured answer.
			if block.Name == responseFormatterToolName {
				turn.Message = agent.AssistantMessage(string(block.Input))
				return turn, nil
			}
			toolCalls = append(toolCalls, agent.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: json.RawMessage(block.Input),
			})
		}
	}
	turn.Message = agent.AssistantMessage(text)
	turn.Message.ToolCalls = toolCalls
	return turn, nil
}

// anthropicMessages converts the neutral conversation into Anthropic messages.
// System messages map to the request system prompt and consecutive tool results
// coalesce into a single user message, as the API requires.
func (t *anthropicTurner) anthropicMessages(conversation agent.Conversation) ([]anthropic.MessageParam, []anthropic.TextBlockParam, error) {
	var system []anthropic.TextBlockParam
	messages := make([]anthropic.MessageParam, 0, conversation.Len())
	var pendingResults []anthropic.ContentBlockParamUnion
	flushResults := func() {
		if len(pendingResults) > 0 {
			messages = append(messages, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	assistantTurn := 0
	for _, message := range conversation.Messages() {
		switch message.Role {
		case agent.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: message.Content})
		case agent.RoleUser:
			flushResults()
			parts, err := anthropicUserParts(message)
			if err != nil {
				return nil, nil, err
			}
			messages = append(messages, anthropic.NewUserMessage(parts...))
		case agent.RoleAssistant:
			flushResults()
			if assistantTurn < len(t.assistantTurns) {
				messages = append(messages, t.assistantTurns[assistantTurn])
			} else {
				messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(message.Content)))
			}
			assistantTurn++
		case agent.RoleTool:
			if message.ToolResult != nil {
				pendingResults = append(pendingResults, anthropic.NewToolResultBlock(message.ToolResult.CallID, message.ToolResult.Content, message.ToolResult.IsError))
			}
		}
	}
	flushResults()
	return messages, system, nil
}

// anthropicUserParts converts a user message with optional attachments into content blocks.
func anthropicUserParts(message agent.Message) ([]anthropic.ContentBlockParamUnion, error) {
	parts := make([]anthropic.ContentBlockParamUnion, 0, (len(message.Attachments)*2)+1)
	for _, attachment := range message.Attachments {
		if !isSupportedImageType(attachment.MIMEType) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotSupported, attachment.MIMEType)
		}
		parts = append(parts, anthropic.NewTextBlock(DefaultTaskFileNameInstruction(attachment.Name)))
		parts = append(parts, anthropic.NewImageBlockBase64(attachment.MIMEType, attachment.Data))
	}
	// Append the prompt text after the file data for improved context integrity.
	parts = append(parts, anthropic.NewTextBlock(message.Content))
	return parts, nil
}

func isTransientAnthropicError(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return slices.Contains([]int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusServiceUnavailable,
			anthropicOverloadedStatus,
		}, apiErr.StatusCode)
	}
	return false
}
