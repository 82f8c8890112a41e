// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package agent implements the bounded tool-calling loop that drives
// a model through a trial task. The loop is provider-agnostic: it exchanges
// neutral conversation messages with a model backend, dispatches requested
// tool calls, and stops on a final answer or when the run budget is exhausted.
package agent

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Message roles within a conversation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall represents a single tool invocation requested by the model.
type ToolCall struct {
	// ID identifies the call within the conversation.
	// The loop assigns a deterministic fallback if the model left it blank.
	ID string `json:"id"`
	// Name is the name of the requested tool.
	Name string `json:"name"`
	// Arguments holds the call arguments as raw JSON.
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolResult represents the outcome of a single tool call.
type ToolResult struct {
	// CallID matches the ID of the originating ToolCall.
	CallID string `json:"call_id"`
	// Name is the name of the invoked tool.
	Name string `json:"name"`
	// Content is the normalized tool output or error description.
	Content string `json:"content"`
	// IsError indicates that the tool failed and Content describes the failure.
	IsError bool `json:"is_error,omitempty"`
}

// Attachment represents binary context data attached to a message.
type Attachment struct {
	// Name is the display name of the attachment.
	Name string `json:"name,omitempty"`
	// MIMEType is the media type of the attachment payload.
	MIMEType string `json:"mime_type,omitempty"`
	// Data is the base64-encoded attachment payload.
	Data string `json:"data,omitempty"`
}

// DataURL returns the attachment payload as an RFC 2397 data URL.
func (a Attachment) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", a.MIMEType, a.Data)
}

// Bytes returns the decoded attachment payload.
func (a Attachment) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(a.Data)
}

// Message represents a single conversation message.
type Message struct {
	Role        string       `json:"role"`
	Content     string       `json:"content,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResult  *ToolResult  `json:"tool_result,omitempty"`
}

// SystemMessage creates a system instruction message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage creates a user message with optional attachments.
func UserMessage(content string, attachments ...Attachment) Message {
	return Message{Role: RoleUser, Content: content, Attachments: attachments}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResultMessage creates a message carrying a single tool result.
func ToolResultMessage(result ToolResult) Message {
	return Message{Role: RoleTool, ToolResult: &result}
}

// Conversation is an append-only sequence of messages.
// Messages can be added but never modified or removed,
// preserving the full exchange for caching and reporting.
type Conversation struct {
	messages []Message
}

// NewConversation creates a conversation seeded with the given messages.
func NewConversation(messages ...Message) Conversation {
	return Conversation{messages: append([]Message(nil), messages...)}
}

// Append adds messages to the end of the conversation.
func (c *Conversation) Append(messages ...Message) {
	c.messages = append(c.messages, messages...)
}

// Messages returns a copy of all conversation messages in order.
func (c Conversation) Messages() []Message {
	return append([]Message(nil), c.messages...)
}

// Len returns the number of messages in the conversation.
func (c Conversation) Len() int {
	return len(c.messages)
}

// LastAssistantContent returns the content of the most recent assistant message.
// It returns an empty string if the conversation holds no assistant message yet.
func (c Conversation) LastAssistantContent() string {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == RoleAssistant && c.messages[i].Content != "" {
			return c.messages[i].Content
		}
	}
	return ""
}

// MarshalJSON encodes the conversation as a plain message list.
func (c Conversation) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.messages)
}

// UnmarshalJSON decodes the conversation from a plain message list.
func (c *Conversation) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &c.messages)
}

// Turn represents a single model response together with its reported token usage.
type Turn struct {
	// Message is the assistant message produced by the model.
	Message Message
	// Usage holds the token counts reported by the provider for this turn, if any.
	Usage Usage
}

// Usage represents token usage statistics reported by a provider.
type Usage struct {
	// InputTokens is the number of tokens in the request, if available.
	InputTokens *int64 `json:"input_tokens,omitempty"`
	// OutputTokens is the number of tokens in the response, if available.
	OutputTokens *int64 `json:"output_tokens,omitempty"`
}

// HasMeasurement reports whether the provider reported any token counts.
func (u Usage) HasMeasurement() bool {
	return u.InputTokens != nil || u.OutputTokens != nil
}

// TotalTokens returns the sum of all reported token counts.
func (u Usage) TotalTokens() (total int64) {
	if u.InputTokens != nil {
		total += *u.InputTokens
	}
	if u.OutputTokens != nil {
		total += *u.OutputTokens
	}
	return total
}

// Add accumulates the token counts from another usage measurement.
func (u *Usage) Add(other Usage) {
	u.InputTokens = addIfNotNil(u.InputTokens, other.InputTokens)
	u.OutputTokens = addIfNotNil(u.OutputTokens, other.OutputTokens)
}

func addIfNotNil(current *int64, delta *int64) *int64 {
	if delta == nil {
		return current
	}
	total := *delta
	if current != nil {
		total += *current
	}
	return &total
}
