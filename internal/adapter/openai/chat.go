package openai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"go.uber.org/zap"

	"adventure/internal/service/session"
)

// Backend implements the chat backend over the OpenAI Responses API. The
// running history is kept locally and resent with every message.
type Backend struct {
	client *openai.Client
	model  openai.ChatModel
	logger *zap.SugaredLogger
}

func NewBackend(apiKey, model string, logger *zap.SugaredLogger) (*Backend, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai: %w", session.ErrMissingCredentials)
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	if model == "" {
		model = openai.ChatModelGPT4o
	}
	return &Backend{client: &client, model: openai.ChatModel(model), logger: logger}, nil
}

func (b *Backend) Bootstrap(_ context.Context, systemInstruction string, seed []string) (session.ChatSession, error) {
	items := make(responses.ResponseInputParam, 0, len(seed)+1)
	if st := strings.TrimSpace(systemInstruction); st != "" {
		items = append(items, inputItem(st, responses.EasyInputMessageRoleSystem))
	}
	// The seed context goes in as one user-role message with one part per blob.
	if len(seed) > 0 {
		content := make(responses.ResponseInputMessageContentListParam, 0, len(seed))
		for _, s := range seed {
			content = append(content, responses.ResponseInputContentParamOfInputText(s))
		}
		items = append(items, responses.ResponseInputItemParamOfMessage(content, responses.EasyInputMessageRoleUser))
	}

	b.logger.Infow("OpenAI chat started", "model", b.model, "seedParts", len(seed))
	return &Chat{client: b.client, model: b.model, history: items}, nil
}

// Chat keeps the conversation history locally and replays it in full on
// every send.
type Chat struct {
	client *openai.Client
	model  openai.ChatModel

	mu      sync.Mutex
	history responses.ResponseInputParam
}

func (c *Chat) Send(ctx context.Context, message string) (string, error) {
	c.mu.Lock()
	input := make(responses.ResponseInputParam, len(c.history), len(c.history)+1)
	copy(input, c.history)
	c.mu.Unlock()
	input = append(input, inputItem(message, responses.EasyInputMessageRoleUser))

	resp, err := c.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: input},
	})
	if err != nil {
		return "", err
	}
	out := resp.OutputText()

	c.mu.Lock()
	c.history = append(c.history,
		inputItem(message, responses.EasyInputMessageRoleUser),
		inputItem(out, responses.EasyInputMessageRoleAssistant),
	)
	c.mu.Unlock()
	return out, nil
}

func inputItem(text string, role responses.EasyInputMessageRole) responses.ResponseInputItemUnionParam {
	return responses.ResponseInputItemParamOfMessage(
		responses.ResponseInputMessageContentListParam{
			{OfInputText: &responses.ResponseInputTextParam{Text: text}},
		},
		role,
	)
}
