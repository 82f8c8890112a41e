// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package agent

import "unicode/utf8"

// TokenCounter estimates the token cost of conversation messages.
// It substitutes for provider-reported usage when a backend does not
// return token counts.
type TokenCounter interface {
	// CountTokens returns the estimated number of tokens in the given messages.
	CountTokens(messages ...Message) int64
}

const (
	// runesPerToken approximates how many text runes map to one model token.
	runesPerToken = 4
	// messageOverheadTokens approximates the framing cost of a single message.
	messageOverheadTokens = 4
	// attachmentTokens approximates the cost of a single binary attachment.
	attachmentTokens = 512
)

// RuneTokenCounter estimates token counts from rune counts.
// The estimate is deterministic: identical messages always yield
// identical counts regardless of provider or model.
type RuneTokenCounter struct{}

// CountTokens returns the estimated number of tokens in the given messages.
func (RuneTokenCounter) CountTokens(messages ...Message) (total int64) {
	for _, message := range messages {
		total += messageOverheadTokens
		total += runeTokens(message.Content)
		for _, call := range message.ToolCalls {
			total += runeTokens(call.Name) + runeTokens(string(call.Arguments))
		}
		if message.ToolResult != nil {
			total += runeTokens(message.ToolResult.Content)
		}
		total += int64(len(message.Attachments)) * attachmentTokens
	}
	return total
}

func runeTokens(text string) int64 {
	if text == "" {
		return 0
	}
	return int64((utf8.RuneCountInString(text) + runesPerToken - 1) / runesPerToken)
}
