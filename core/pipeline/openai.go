package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI compatible endpoint
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string // Empty uses the public OpenAI API
	ChatModel      string
	EmbeddingModel string
	Temperature    float32
}

// DefaultOpenAIConfig returns the models used when none are configured
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:         apiKey,
		ChatModel:      openai.GPT4oMini,
		EmbeddingModel: string(openai.SmallEmbedding3),
		Temperature:    0.2,
	}
}

// NewOpenAIClient creates a client for the configured endpoint
func NewOpenAIClient(config OpenAIConfig) *openai.Client {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

// OpenAICapabilities creates all three capabilities backed by one endpoint
func OpenAICapabilities(config OpenAIConfig) Capabilities {
	client := NewOpenAIClient(config)
	return Capabilities{
		Summarize: OpenAISummarizer(client, config),
		Embed:     OpenAIEmbedder(client, config),
		Answer:    OpenAIAnswerer(client, config),
	}
}

const summarizePrompt = "You summarize passages of research papers. " +
	"Keep the key findings, methods and numbers. Answer with the summary only, in at most %d characters."

const answerPrompt = "You answer questions about a research paper using only the provided context. " +
	"If the context does not contain the answer, say that the paper does not say."

// OpenAISummarizer summarizes text with a chat completion
func OpenAISummarizer(client *openai.Client, config OpenAIConfig) SummarizeFunc {
	return func(ctx context.Context, text string, maxLength int) (string, error) {
		resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: config.ChatModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(summarizePrompt, maxLength)},
				{Role: openai.ChatMessageRoleUser, Content: text},
			},
			MaxTokens:   maxLength/3 + 16,
			Temperature: config.Temperature,
		})
		if err != nil {
			return "", classifyOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no completion choices returned")
		}
		return TruncateRunes(strings.TrimSpace(resp.Choices[0].Message.Content), maxLength), nil
	}
}

// OpenAIAnswerer answers a question from the given context with a chat completion
func OpenAIAnswerer(client *openai.Client, config OpenAIConfig) AnswerFunc {
	return func(ctx context.Context, question string, contextText string) (Answer, error) {
		resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: config.ChatModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: answerPrompt},
				{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, question)},
			},
			Temperature: config.Temperature,
		})
		if err != nil {
			return Answer{}, classifyOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			return Answer{}, fmt.Errorf("no completion choices returned")
		}
		return Answer{Text: strings.TrimSpace(resp.Choices[0].Message.Content)}, nil
	}
}

// OpenAIEmbedder embeds text with the embeddings endpoint
func OpenAIEmbedder(client *openai.Client, config OpenAIConfig) EmbedFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(config.EmbeddingModel),
		})
		if err != nil {
			return nil, classifyOpenAIError(err)
		}
		if len(resp.Data) != 1 {
			return nil, fmt.Errorf("openai returned %d embeddings, expected 1", len(resp.Data))
		}
		return resp.Data[0].Embedding, nil
	}
}

// classifyOpenAIError marks client errors other than rate limits as permanent
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 && apiErr.HTTPStatusCode != http.StatusTooManyRequests {
			return Permanent(fmt.Errorf("openai request failed: %w", err))
		}
	}
	return fmt.Errorf("openai request failed: %w", err)
}
