package admin

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/cloo-solutions/docchat/internal/config"
	"github.com/cloo-solutions/docchat/internal/database"
	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/extract"
	"github.com/cloo-solutions/docchat/internal/gemini"
	"github.com/cloo-solutions/docchat/internal/lock"
	"github.com/cloo-solutions/docchat/internal/openai"
	"github.com/cloo-solutions/docchat/internal/queue"
	"github.com/cloo-solutions/docchat/internal/repository"
	"github.com/cloo-solutions/docchat/internal/retry"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/cloo-solutions/docchat/internal/storage"
	"github.com/cloo-solutions/docchat/internal/telemetry"
	"github.com/cloo-solutions/docchat/internal/youtube"
	amqp "github.com/rabbitmq/amqp091-go"
)

type blobStore interface {
	service.BlobStore
	service.BlobUploader
}

type model interface {
	service.Embedder
	service.ChatModel
}

// app holds the wired services shared by the serve and maintenance commands.
type app struct {
	cfg *config.Config

	docs    *repository.DocumentRepository
	vectors *service.VectorStore
	amqp    *amqp.Connection
	closers []func()

	ingestion    *service.IngestionService
	retrieval    *service.RetrievalService
	search       *service.DocumentSearcher
	conversation *service.ConversationService
	documents    *service.DocumentService
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	log.Println("connected to database")

	a.docs = repository.NewDocumentRepository(pool)
	a.vectors = service.NewVectorStoreWithPolicy(repository.NewVectorRepository(pool), retry.Policy{
		Attempts: service.MaxRetries,
		Delay:    service.RetryDelay,
		Timeout:  cfg.CallTimeout,
	})

	var blobs blobStore
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		blobs = s3Client
	} else {
		log.Println("S3 not configured: uploads disabled")
	}

	m, err := newModel(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if c, ok := m.(interface{ Close() error }); ok {
		a.closers = append(a.closers, func() { _ = c.Close() })
	}

	var locker service.DocumentLocker = lock.Noop{}
	if cfg.HasRedis() {
		client, err := lock.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		locker = lock.NewRedisLocker(client, cfg.StaleProcessingAfter)
		log.Printf("document locks in redis at %s", cfg.RedisAddr)
	}

	var ingestQueue service.IngestQueue
	if cfg.HasRabbitMQ() {
		conn, err := queue.Dial(cfg.RabbitMQURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		a.amqp = conn
		a.closers = append(a.closers, func() { _ = conn.Close() })
		ingestQueue = queue.NewPublisher(conn, cfg.IngestQueue)
		log.Printf("ingest queue '%s' ready", cfg.IngestQueue)
	}

	var transcripts extract.TranscriptFetcher
	if cfg.YouTubeTranscripts {
		transcripts = youtube.NewTranscriptClient(&http.Client{Timeout: cfg.CallTimeout}, cfg.YouTubeLanguage)
	}
	extractor := extract.New(transcripts)

	// A nil interface keeps the services' "storage not configured" paths.
	var downloads service.BlobStore
	var uploads service.BlobUploader
	if blobs != nil {
		downloads, uploads = blobs, blobs
	}

	a.ingestion = service.NewIngestionService(a.docs, downloads, extractor, m, a.vectors, locker, service.IngestionConfig{
		CallTimeout: cfg.CallTimeout,
		StaleAfter:  cfg.StaleProcessingAfter,
	})
	a.retrieval = service.NewRetrievalService(m, a.vectors)
	a.search = service.NewDocumentSearcher(a.docs, a.retrieval)
	a.conversation = service.NewConversationService(a.docs, a.ingestion, a.retrieval, downloads, m, cfg.YouTubeTranscripts)
	a.documents = service.NewDocumentService(a.docs, uploads, ingestQueue)

	return a, nil
}

// Close releases connections in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newModel(ctx context.Context, cfg *config.Config) (model, error) {
	switch cfg.EmbeddingProvider {
	case "gemini":
		if !cfg.HasGemini() {
			log.Println("gemini API key not set: ingestion and chat will fail until configured")
			return unconfiguredModel{err: gemini.ErrNoAPIKey}, nil
		}
		client, err := gemini.NewClient(ctx, gemini.Config{APIKey: cfg.GeminiAPIKey, ChatModel: cfg.ChatModel})
		if err != nil {
			return nil, err
		}
		log.Println("using gemini for embeddings and chat")
		return client, nil
	default:
		if !cfg.HasOpenAI() {
			log.Println("OpenAI API key not set: ingestion and chat will fail until configured")
		}
		oc := openai.Config{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL}
		return openaiModel{
			Client:     openai.NewClientWithConfig(oc),
			ChatClient: openai.NewChatClient(oc, cfg.ChatModel),
		}, nil
	}
}

type openaiModel struct {
	*openai.Client
	*openai.ChatClient
}

// unconfiguredModel fails every call with a configuration error so documents
// record the missing credentials instead of the process refusing to start.
type unconfiguredModel struct {
	err error
}

func (m unconfiguredModel) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, m.err
}

func (m unconfiguredModel) EmbedOne(context.Context, string) ([]float32, error) {
	return nil, m.err
}

func (m unconfiguredModel) Complete(context.Context, domain.ChatPrompt) (string, error) {
	return "", m.err
}

func initTelemetry(cfg *config.Config) func() {
	if cfg.SentryDSN == "" {
		return func() {}
	}

	sampleRate := 0.1
	if cfg.Environment == "development" {
		sampleRate = 1.0
	}

	shutdown, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: sampleRate,
		Debug:            cfg.Debug,
	})
	if err != nil {
		log.Printf("telemetry init failed (continuing without tracing): %v", err)
		return func() {}
	}
	return shutdown
}
