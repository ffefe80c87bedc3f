package exchange

import (
	"context"
	"time"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"github.com/mindshift/mindshift/internal/domain"
)

// OpenAIClient implements domain.ExchangeClient against an OpenAI-compatible
// chat completion endpoint. Same contract as the Gemini client: one call, no
// retries, full history each time.
type OpenAIClient struct {
	client    *openai.Client
	modelName string
}

func NewOpenAIClient(apiKey, modelName string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("apiKey is required for the OpenAI exchange client")
	}
	if modelName == "" {
		modelName = openai.GPT4oMini
	}
	return &OpenAIClient{client: openai.NewClient(apiKey), modelName: modelName}, nil
}

func (o *OpenAIClient) Exchange(ctx context.Context, history []domain.Message) (domain.Message, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Sender == domain.SenderAgent {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.modelName,
		Messages: messages,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return domain.Message{}, &domain.ExchangeError{Status: apiErr.HTTPStatusCode, Detail: apiErr.Message}
		}
		return domain.Message{}, &domain.ExchangeError{Detail: err.Error()}
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return domain.Message{}, &domain.ExchangeError{Detail: "response contains no choices"}
	}

	return domain.Message{
		Text:      resp.Choices[0].Message.Content,
		Sender:    domain.SenderAgent,
		CreatedAt: time.Now(),
	}, nil
}
