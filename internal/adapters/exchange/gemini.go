package exchange

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/mindshift/mindshift/internal/domain"
)

// GeminiClient implements domain.ExchangeClient against the Gemini API. One
// synchronous GenerateContent call per exchange; no retries; no server-side
// session — the full history travels on every request.
type GeminiClient struct {
	client    *genai.Client
	modelName string
}

// NewGeminiClient creates a Gemini-backed exchange client. The API key is
// the single secret the core depends on and is treated as opaque.
func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("apiKey is required for the Gemini exchange client")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating Gemini client")
	}

	return &GeminiClient{client: client, modelName: modelName}, nil
}

// Exchange translates the sender tags into the Gemini role vocabulary,
// attaches the fixed system instruction and performs one request.
func (g *GeminiClient) Exchange(ctx context.Context, history []domain.Message) (domain.Message, error) {
	var contents []*genai.Content
	for _, m := range history {
		var role genai.Role = genai.RoleUser
		if m.Sender == domain.SenderAgent {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}

	res, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return domain.Message{}, &domain.ExchangeError{Status: apiErr.Code, Detail: apiErr.Message}
		}
		return domain.Message{}, &domain.ExchangeError{Detail: err.Error()}
	}

	text := res.Text()
	if text == "" {
		return domain.Message{}, &domain.ExchangeError{Detail: "response contains no candidate text"}
	}

	return domain.Message{Text: text, Sender: domain.SenderAgent, CreatedAt: time.Now()}, nil
}
