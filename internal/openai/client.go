package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"

	"github.com/cloo-solutions/docchat/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.AdaEmbeddingV2
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from ada-002
	DefaultEmbeddingDimensions = 1536
	// DefaultRequestsPerSecond paces embedding calls.
	DefaultRequestsPerSecond = 5
)

var (
	// ErrEmptyText is returned when a text to embed is blank
	ErrEmptyText = domain.NewDomainError(domain.ErrCodeValidation, "text to embed cannot be empty")
	// ErrWrongDimensions is returned when the model returns vectors of an unexpected size
	ErrWrongDimensions = domain.NewDomainError(domain.ErrCodeConfiguration, "embedding has wrong dimensions")
	// ErrNoAPIKey is returned when no OpenAI API key is configured
	ErrNoAPIKey = domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration, domain.ErrMissingCredentials.Message,
		errors.New("OPENAI_API_KEY is not set"))
)

// EmbeddingAPI creates one embedding per input, in input order.
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Client embeds text with OpenAI. It never retries; callers own the retry policy.
type Client struct {
	api        EmbeddingAPI
	dimensions int
	limiter    *rate.Limiter
	hasKey     bool
}

type OpenAIAdapter struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewOpenAIAdapter(apiKey string, model openai.EmbeddingModel) *OpenAIAdapter {
	return NewOpenAIAdapterWithClient(openai.NewClient(apiKey), model)
}

func NewOpenAIAdapterWithClient(client *openai.Client, model openai.EmbeddingModel) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIAdapter{client: client, model: model}
}

// CreateEmbeddings sends the whole batch in one request.
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: a.model,
	})
	if err != nil {
		return nil, err
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
	RequestsPerSecond   float64
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	return NewClientWithAPI(newAdapter(cfg), cfg)
}

// NewClientWithAPI wires a custom EmbeddingAPI, mostly for tests.
func NewClientWithAPI(api EmbeddingAPI, cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	return &Client{
		api:        api,
		dimensions: dimensions,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		hasKey:     cfg.APIKey != "",
	}
}

func newAdapter(cfg Config) *OpenAIAdapter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return NewOpenAIAdapterWithClient(openai.NewClientWithConfig(clientCfg), cfg.EmbeddingModel)
}

// NewClientFromEnv creates a new OpenAI client using OPENAI_API_KEY environment variable
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(apiKey), nil
}

// Dimensions returns the vector size produced by the client.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// EmbedBatch embeds all texts or fails as a unit.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.hasKey {
		return nil, ErrNoAPIKey
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for _, t := range texts {
		if t == "" {
			return nil, ErrEmptyText
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, domain.Transient(domain.ErrEmbeddingService.Message, err)
	}

	embeddings, err := c.api.CreateEmbeddings(ctx, texts)
	if err != nil {
		return nil, classify(err)
	}
	if len(embeddings) != len(texts) {
		return nil, domain.Transient(domain.ErrEmbeddingService.Message,
			fmt.Errorf("got %d embeddings for %d inputs", len(embeddings), len(texts)))
	}
	for _, e := range embeddings {
		if len(e) != c.dimensions {
			return nil, domain.NewDomainErrorWithCause(ErrWrongDimensions.Code, ErrWrongDimensions.Message,
				fmt.Errorf("expected %d, got %d", c.dimensions, len(e)))
		}
	}
	return embeddings, nil
}

// EmbedOne embeds a single text.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// classify maps an OpenAI failure onto the error taxonomy. Auth failures can't
// be fixed by retrying.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration, domain.ErrMissingCredentials.Message, err)
		case http.StatusBadRequest:
			return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "embedding request rejected", err)
		}
	}
	return domain.Transient(domain.ErrEmbeddingService.Message, err)
}
