// Package llm explains graded test answers with an OpenAI-compatible model.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/schoolportal/internal/llm/prompts"
	"github.com/pavelanni/schoolportal/internal/model"
)

// Explanation is the model's answer for one question.
type Explanation struct {
	Text string `json:"explanation"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.Variant
}

var languageNames = map[string]string{
	"en": "English",
	"hi": "Hindi",
}

// New creates a new LLM client. variant selects the explanation style.
func New(baseURL, apiKey, modelName, variant string) (*Client, error) {
	if !prompts.IsValidVariant(variant) {
		return nil, fmt.Errorf("invalid explain style %q", variant)
	}
	if err := prompts.Load(prompts.Templates); err != nil {
		return nil, err
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: prompts.Variant(variant),
	}, nil
}

// Explain asks the model why q's correct answer is right and, when chosen
// is not empty, what is wrong with the student's choice. lang is a language
// tag such as "en" or "hi".
func (c *Client) Explain(ctx context.Context, subject string, q model.Question, chosen, lang string) (*Explanation, error) {
	name := languageNames[strings.ToLower(lang)]
	prompt, err := prompts.BuildExplainPrompt(c.variant, prompts.ExplainData{
		Subject:       subject,
		QuestionText:  q.Text,
		Options:       q.Options,
		CorrectAnswer: q.CorrectAnswer,
		Chosen:        chosen,
		Language:      name,
	})
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw, "tokens", resp.Usage.TotalTokens)

	var ex Explanation
	if err := json.Unmarshal([]byte(raw), &ex); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	ex.Text = strings.TrimSpace(ex.Text)
	if ex.Text == "" {
		return nil, fmt.Errorf("LLM returned an empty explanation")
	}
	return &ex, nil
}

// Ping checks that the endpoint answers and serves the configured model.
func (c *Client) Ping(ctx context.Context) error {
	list, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, m := range list.Models {
		if m.ID == c.model {
			return nil
		}
	}
	return fmt.Errorf("model %q not served by endpoint", c.model)
}
