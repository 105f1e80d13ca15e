// Package gemini provides embeddings and chat completions backed by Google's
// Gemini API, as an alternative to the OpenAI provider.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

const (
	DefaultEmbeddingModel = "text-embedding-004"
	DefaultChatModel      = "gemini-1.5-flash"
	// DefaultEmbeddingDimensions matches text-embedding-004.
	DefaultEmbeddingDimensions = 768
)

var ErrNoAPIKey = domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration, domain.ErrMissingCredentials.Message,
	errors.New("GEMINI_API_KEY is not set"))

// BatchEmbedder embeds texts in one request, preserving order.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces a reply from a system instruction, history and the final user parts.
type Generator interface {
	Generate(ctx context.Context, system string, history []*genai.Content, parts []genai.Part) (string, error)
}

type Config struct {
	APIKey              string
	EmbeddingModel      string
	ChatModel           string
	EmbeddingDimensions int
	RequestsPerSecond   float64
}

// Client implements both the embedding and the chat contracts.
type Client struct {
	embedder   BatchEmbedder
	generator  Generator
	dimensions int
	limiter    *rate.Limiter
	closer     func() error
}

// NewClient dials the Gemini API.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	sdk := &sdkAdapter{client: cl, embeddingModel: cfg.EmbeddingModel, chatModel: cfg.ChatModel}
	if sdk.embeddingModel == "" {
		sdk.embeddingModel = DefaultEmbeddingModel
	}
	if sdk.chatModel == "" {
		sdk.chatModel = DefaultChatModel
	}
	c := NewClientWithAPI(sdk, sdk, cfg)
	c.closer = cl.Close
	return c, nil
}

// NewClientWithAPI wires custom backends, mostly for tests.
func NewClientWithAPI(embedder BatchEmbedder, generator Generator, cfg Config) *Client {
	dims := cfg.EmbeddingDimensions
	if dims <= 0 {
		dims = DefaultEmbeddingDimensions
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		embedder:   embedder,
		generator:  generator,
		dimensions: dims,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (c *Client) Close() error {
	if c.closer != nil {
		return c.closer()
	}
	return nil
}

func (c *Client) Dimensions() int {
	return c.dimensions
}

// EmbedBatch embeds all texts or fails as a unit. No retries.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for _, t := range texts {
		if t == "" {
			return nil, domain.NewDomainError(domain.ErrCodeValidation, "text to embed cannot be empty")
		}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, domain.Transient(domain.ErrEmbeddingService.Message, err)
	}

	out, err := c.embedder.BatchEmbed(ctx, texts)
	if err != nil {
		return nil, domain.Transient(domain.ErrEmbeddingService.Message, err)
	}
	if len(out) != len(texts) {
		return nil, domain.Transient(domain.ErrEmbeddingService.Message,
			fmt.Errorf("got %d embeddings for %d inputs", len(out), len(texts)))
	}
	for _, e := range out {
		if len(e) != c.dimensions {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration, "embedding has wrong dimensions",
				fmt.Errorf("expected %d, got %d", c.dimensions, len(e)))
		}
	}
	return out, nil
}

func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// Complete answers a grounded prompt.
func (c *Client) Complete(ctx context.Context, prompt domain.ChatPrompt) (string, error) {
	reply, err := c.generator.Generate(ctx, domain.SystemPrompt, history(prompt.History), userParts(prompt))
	if err != nil {
		return "", domain.Transient(domain.ErrChatService.Message, err)
	}
	return reply, nil
}

func history(messages []domain.ChatMessage) []*genai.Content {
	out := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == domain.ChatRoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return out
}

func userParts(prompt domain.ChatPrompt) []genai.Part {
	g := prompt.Grounding
	if g.Kind == domain.GroundingImage {
		return []genai.Part{genai.Blob{MIMEType: g.MimeType, Data: g.Image}, genai.Text(prompt.Message)}
	}
	return []genai.Part{genai.Text(fmt.Sprintf("Context:\n%s\n\nQuestion: %s", g.PromptText(), prompt.Message))}
}

type sdkAdapter struct {
	client         *genai.Client
	embeddingModel string
	chatModel      string
}

func (a *sdkAdapter) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	em := a.client.EmbeddingModel(a.embeddingModel)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini batch embed: %w", err)
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		out = append(out, e.Values)
	}
	return out, nil
}

func (a *sdkAdapter) Generate(ctx context.Context, system string, hist []*genai.Content, parts []genai.Part) (string, error) {
	m := a.client.GenerativeModel(a.chatModel)
	if system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	cs := m.StartChat()
	cs.History = hist

	resp, err := cs.SendMessage(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini returned no candidates")
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}
