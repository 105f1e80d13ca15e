package openai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloo-solutions/docchat/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockChatAPI struct {
	mock.Mock
}

func (m *MockChatAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

func reply(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
	}
}

func TestChatClient_Complete_RetrievedContext(t *testing.T) {
	api := new(MockChatAPI)
	client := NewChatClientWithAPI(api, "", true)
	prompt := domain.ChatPrompt{
		History:   []domain.ChatMessage{{Role: domain.ChatRoleUser, Content: "hi"}, {Role: domain.ChatRoleAssistant, Content: "hello"}},
		Message:   "What does the document say?",
		Grounding: domain.RetrievedContext("Hello World."),
	}

	api.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		last := req.Messages[len(req.Messages)-1]
		return req.Model == DefaultChatModel &&
			len(req.Messages) == 4 &&
			req.Messages[0].Role == openai.ChatMessageRoleSystem &&
			req.Messages[2].Role == openai.ChatMessageRoleAssistant &&
			last.Content == "Context:\nHello World.\n\nQuestion: What does the document say?"
	})).Return(reply("It greets the world."), nil)

	answer, err := client.Complete(context.Background(), prompt)

	require.NoError(t, err)
	assert.Equal(t, "It greets the world.", answer)
	api.AssertExpectations(t)
}

func TestChatClient_Complete_ImageIsMultimodal(t *testing.T) {
	api := new(MockChatAPI)
	client := NewChatClientWithAPI(api, "gpt-4o", true)
	prompt := domain.ChatPrompt{
		Message:   "What is in this picture?",
		Grounding: domain.ImageContext([]byte{0x89, 0x50}, "image/png"),
	}

	api.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		last := req.Messages[len(req.Messages)-1]
		return len(last.MultiContent) == 2 &&
			last.MultiContent[0].Text == "What is in this picture?" &&
			strings.HasPrefix(last.MultiContent[1].ImageURL.URL, "data:image/png;base64,")
	})).Return(reply("A cat."), nil)

	answer, err := client.Complete(context.Background(), prompt)

	require.NoError(t, err)
	assert.Equal(t, "A cat.", answer)
}

func TestChatClient_Complete_Errors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		client := NewChatClientWithAPI(new(MockChatAPI), "", false)

		_, err := client.Complete(context.Background(), domain.ChatPrompt{Message: "q"})

		assert.ErrorIs(t, err, domain.ErrMissingCredentials)
	})

	t.Run("upstream failure", func(t *testing.T) {
		api := new(MockChatAPI)
		api.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(openai.ChatCompletionResponse{}, errors.New("502"))

		_, err := NewChatClientWithAPI(api, "", true).Complete(context.Background(), domain.ChatPrompt{Message: "q"})

		assert.ErrorIs(t, err, domain.ErrChatService)
	})

	t.Run("no choices", func(t *testing.T) {
		api := new(MockChatAPI)
		api.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(openai.ChatCompletionResponse{}, nil)

		_, err := NewChatClientWithAPI(api, "", true).Complete(context.Background(), domain.ChatPrompt{Message: "q"})

		assert.ErrorIs(t, err, domain.ErrChatService)
	})
}
