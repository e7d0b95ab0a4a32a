package ai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const chatModel = openai.ChatModelGPT4_1Mini

const systemPrompt = "You help a person living with dementia start a warm, simple conversation with a family member."

// OpenAIProvider generates starters with the OpenAI chat completions API.
type OpenAIProvider struct {
	client *openai.Client
	model  openai.ChatModel
}

// NewOpenAIProvider creates an OpenAI client for the given key.
func NewOpenAIProvider(apiKey, model string, opts ...option.RequestOption) *OpenAIProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(opts...)
	m := chatModel
	if model != "" {
		m = openai.ChatModel(model)
	}
	return &OpenAIProvider{client: &client, model: m}
}

func (p *OpenAIProvider) Name() string {
	return string(p.model)
}

func (p *OpenAIProvider) Starter(ctx context.Context, profile Profile) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(BuildPrompt(profile)),
		},
		MaxTokens: openai.Int(80),
	})
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := cleanStarter(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
