package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"adventure/internal/service/session"
)

// Backend implements the chat backend over the Gemini API.
type Backend struct {
	client *genai.Client
	model  string
	logger *zap.SugaredLogger
}

func NewBackend(ctx context.Context, apiKey, model string, logger *zap.SugaredLogger) (*Backend, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini: %w", session.ErrMissingCredentials)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return &Backend{client: client, model: model, logger: logger}, nil
}

func (b *Backend) Close() error { return b.client.Close() }

// Bootstrap starts a chat whose history opens with one user-role message
// holding the seed context parts.
func (b *Backend) Bootstrap(_ context.Context, systemInstruction string, seed []string) (session.ChatSession, error) {
	model := b.client.GenerativeModel(b.model)
	if systemInstruction != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemInstruction)}}
	}

	chat := model.StartChat()
	if len(seed) > 0 {
		parts := make([]genai.Part, 0, len(seed))
		for _, s := range seed {
			parts = append(parts, genai.Text(s))
		}
		chat.History = []*genai.Content{{Role: "user", Parts: parts}}
	}

	b.logger.Infow("Gemini chat started", "model", b.model, "seedParts", len(seed))
	return &Chat{chat: chat}, nil
}

// Chat is one live Gemini conversation; the SDK keeps the running history.
type Chat struct {
	chat *genai.ChatSession
}

func (c *Chat) Send(ctx context.Context, message string) (string, error) {
	resp, err := c.chat.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", err
	}
	text := flatten(resp)
	if text == "" {
		return "", errors.New("gemini: empty reply")
	}
	return text, nil
}

func flatten(resp *genai.GenerateContentResponse) string {
	var text string
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				text += string(txt)
			}
		}
	}
	return text
}
