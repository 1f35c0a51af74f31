// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package copywriter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// DefaultParaphraseTimeout bounds a single paraphrase call. The copy layer
// must never make a turn wait on a slow model.
const DefaultParaphraseTimeout = 2 * time.Second

const paraphraseSystemPrompt = "You rewrite short shopping-assistant lines. " +
	"Keep the meaning and every number exactly; change only the phrasing. " +
	"Reply with the rewritten line only."

// OpenAIParaphraser rewrites rendered copy through an OpenAI chat model.
type OpenAIParaphraser struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

var _ Paraphraser = (*OpenAIParaphraser)(nil)

// NewOpenAIParaphraser builds a paraphraser from the environment. It returns
// an error when no API key is configured; callers treat that as "run
// template-only", not as a startup failure.
func NewOpenAIParaphraser() (*OpenAIParaphraser, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	return &OpenAIParaphraser{
		client:  openai.NewClient(apiKey),
		model:   model,
		timeout: DefaultParaphraseTimeout,
	}, nil
}

// Paraphrase rewrites one line. Errors and empty completions are reported to
// the caller, which falls back to the template rendering.
func (p *OpenAIParaphraser) Paraphrase(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: paraphraseSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		slog.Debug("Paraphrase call failed, keeping template copy", "error", err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
