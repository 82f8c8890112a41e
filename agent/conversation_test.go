// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationAppendDoesNotMutateSnapshots(t *testing.T) {
	conversation := NewConversation(SystemMessage("instructions"))
	snapshot := conversation.Messages()

	conversation.Append(UserMessage("question"))

	assert.Len(t, snapshot, 1)
	assert.Equal(t, 2, conversation.Len())

	snapshot[0].Content = "tampered"
	assert.Equal(t, "instructions", conversation.Messages()[0].Content)
}

func TestConversationLastAssistantContent(t *testing.T) {
	tests := []struct {
		name     string
		messages []Message
		want     string
	}{
		{
			name:     "no assistant message",
			messages: []Message{SystemMessage("s"), UserMessage("u")},
			want:     "",
		},
		{
			name:     "single assistant message",
			messages: []Message{UserMessage("u"), AssistantMessage("first")},
			want:     "first",
		},
		{
			name: "latest assistant message wins",
			messages: []Message{
				AssistantMessage("first"),
				ToolResultMessage(ToolResult{CallID: "c", Name: "gene_lookup", Content: "data"}),
				AssistantMessage("second"),
			},
			want: "second",
		},
		{
			name: "assistant message without content is skipped",
			messages: []Message{
				AssistantMessage("spoken"),
				{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c", Name: "gene_lookup"}}},
			},
			want: "spoken",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conversation := NewConversation(tt.messages...)
			assert.Equal(t, tt.want, conversation.LastAssistantContent())
		})
	}
}

func TestConversationJSONRoundTrip(t *testing.T) {
	conversation := NewConversation(
		SystemMessage("instructions"),
		UserMessage("question", Attachment{Name: "pedigree.png", MIMEType: "image/png", Data: "aGVsbG8="}),
	)
	conversation.Append(Message{
		Role:      RoleAssistant,
		Content:   "checking",
		ToolCalls: []ToolCall{{ID: "call_0_0", Name: "gene_lookup", Arguments: json.RawMessage(`{"symbol":"BRCA1"}`)}},
	})
	conversation.Append(ToolResultMessage(ToolResult{CallID: "call_0_0", Name: "gene_lookup", Content: "chromosome 17"}))

	encoded, err := json.Marshal(conversation)
	require.NoError(t, err)

	var decoded Conversation
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, conversation.Messages(), decoded.Messages())
}

func TestAttachmentEncoding(t *testing.T) {
	attachment := Attachment{Name: "report.png", MIMEType: "image/png", Data: "aGVsbG8="}

	assert.Equal(t, "data:image/png;base64,aGVsbG8=", attachment.DataURL())

	decoded, err := attachment.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), decoded)
}

func TestUsageAccumulation(t *testing.T) {
	var total Usage
	assert.False(t, total.HasMeasurement())
	assert.Zero(t, total.TotalTokens())

	in := int64(100)
	out := int64(25)
	total.Add(Usage{InputTokens: &in})
	total.Add(Usage{InputTokens: &in, OutputTokens: &out})

	assert.True(t, total.HasMeasurement())
	require.NotNil(t, total.InputTokens)
	require.NotNil(t, total.OutputTokens)
	assert.Equal(t, int64(200), *total.InputTokens)
	assert.Equal(t, int64(25), *total.OutputTokens)
	assert.Equal(t, int64(225), total.TotalTokens())
}

func TestRuneTokenCounterDeterministic(t *testing.T) {
	counter := RuneTokenCounter{}
	messages := []Message{
		SystemMessage("You are a genetics research assistant."),
		UserMessage("Which gene is associated with cystic fibrosis?"),
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c", Name: "gene_lookup", Arguments: json.RawMessage(`{"symbol":"CFTR"}`)}}},
		ToolResultMessage(ToolResult{CallID: "c", Name: "gene_lookup", Content: "CFTR is located on chromosome 7."}),
	}

	first := counter.CountTokens(messages...)
	second := counter.CountTokens(messages...)

	assert.Positive(t, first)
	assert.Equal(t, first, second)

	// Longer content must never count fewer tokens.
	longer := append(append([]Message(nil), messages...), AssistantMessage("The gene associated with cystic fibrosis is CFTR."))
	assert.Greater(t, counter.CountTokens(longer...), first)
}

func TestRuneTokenCounterCountsAttachments(t *testing.T) {
	counter := RuneTokenCounter{}
	plain := UserMessage("describe the image")
	attached := UserMessage("describe the image", Attachment{Name: "karyotype.png", MIMEType: "image/png", Data: "aGVsbG8="})

	assert.Greater(t, counter.CountTokens(attached), counter.CountTokens(plain))
}
