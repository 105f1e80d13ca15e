package openai

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/cloo-solutions/docchat/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultChatModel answers document questions and reads images.
const DefaultChatModel = openai.GPT4oMini

// ChatAPI is the subset of the OpenAI client used for completions.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ChatClient sends grounded prompts to an OpenAI chat model.
type ChatClient struct {
	api    ChatAPI
	model  string
	hasKey bool
}

// NewChatClient creates a chat client from the same configuration as the embedder.
func NewChatClient(cfg Config, model string) *ChatClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return NewChatClientWithAPI(openai.NewClientWithConfig(clientCfg), model, cfg.APIKey != "")
}

func NewChatClientWithAPI(api ChatAPI, model string, hasKey bool) *ChatClient {
	if model == "" {
		model = DefaultChatModel
	}
	return &ChatClient{api: api, model: model, hasKey: hasKey}
}

// Complete returns the model's reply to prompt.
func (c *ChatClient) Complete(ctx context.Context, prompt domain.ChatPrompt) (string, error) {
	if !c.hasKey {
		return "", ErrNoAPIKey
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: buildMessages(prompt),
	})
	if err != nil {
		return "", domain.Transient(domain.ErrChatService.Message, err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.Transient(domain.ErrChatService.Message, fmt.Errorf("no choices returned"))
	}
	return resp.Choices[0].Message.Content, nil
}

func buildMessages(prompt domain.ChatPrompt) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(prompt.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: domain.SystemPrompt,
	})

	for _, m := range prompt.History {
		role := openai.ChatMessageRoleUser
		if m.Role == domain.ChatRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	g := prompt.Grounding
	if g.Kind == domain.GroundingImage {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt.Message},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURI(g.MimeType, g.Image),
						Detail: openai.ImageURLDetailAuto,
					},
				},
			},
		})
		return messages
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", g.PromptText(), prompt.Message),
	})
	return messages
}

func dataURI(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
