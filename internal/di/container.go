package di

import (
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meilisearch/meilisearch-go"

	"docchat/internal/adapter/llm"
	"docchat/internal/adapter/pdftext"
	"docchat/internal/adapter/ratelimit"
	"docchat/internal/adapter/repository"
	"docchat/internal/adapter/search"
	"docchat/internal/domain"
	"docchat/internal/infra/config"
	"docchat/internal/infra/httpclient"
	"docchat/internal/usecase"
)

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	// Repositories
	ChunkRepo domain.ChunkRepository
	DocRepo   domain.DocumentRepository

	// Usecases
	ChatUsecase   usecase.ChatStreamUsecase
	IngestUsecase usecase.IngestDocumentUsecase

	// Adapters exposed for handler wiring and startup tasks
	Limiter     domain.RateLimiter
	SearchIndex *search.MeilisearchIndex
	Embedder    domain.Embedder
}

// NewApplicationComponents wires all dependencies from config and database pool.
func NewApplicationComponents(cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) *ApplicationComponents {
	// Repositories
	chunkRepo := repository.NewChunkRepository(pool)
	docRepo := repository.NewDocumentRepository(pool)
	txManager := repository.NewPostgresTransactionManager(pool)

	// Shared HTTP client with connection pooling for both LLM endpoints
	llmHTTP := httpclient.NewPooledClient(time.Duration(cfg.LLMTimeout) * time.Second)

	// External clients
	llmClient := llm.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.ChatModel, llmHTTP)
	embedder := llm.NewCachedEmbedder(
		llm.NewOpenAIEmbedder(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModel, llmHTTP),
		cfg.EmbedCacheSize,
	)

	meili := meilisearch.New(cfg.MeiliURL, meilisearch.WithAPIKey(cfg.MeiliAPIKey))
	searchIndex := search.NewMeilisearchIndex(meili, cfg.MeiliIndex)

	// Rate limiter: Redis when configured, otherwise in-process
	var limiter domain.RateLimiter
	if cfg.RedisURL != "" {
		redisLimiter, err := ratelimit.NewRedisLimiter(cfg.RedisURL, cfg.RateLimitPerMinute)
		if err != nil {
			log.Warn("redis_limiter_init_failed", slog.String("error", err.Error()))
			limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitPerMinute)
		} else {
			limiter = redisLimiter
		}
	} else {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitPerMinute)
	}

	// Domain services
	chunker := domain.NewChunker()
	extractor := pdftext.NewExtractor()

	// Usecases
	ingestUsecase := usecase.NewIngestDocumentUsecase(
		docRepo, chunkRepo, txManager, extractor, chunker, embedder, searchIndex, log,
	)
	chatUsecase := usecase.NewChatStreamUsecase(
		chunkRepo, embedder, searchIndex, llmClient, usecase.NewContextPromptBuilder(),
		usecase.RetrievalSettings{
			RewriteQueryCount: cfg.RewriteQueryCount,
			SearchTopK:        cfg.SearchTopK,
			RRFK:              cfg.FusionRRFK,
			ContextLimit:      cfg.ContextLimit,
		},
		log,
	)

	return &ApplicationComponents{
		ChunkRepo:     chunkRepo,
		DocRepo:       docRepo,
		ChatUsecase:   chatUsecase,
		IngestUsecase: ingestUsecase,
		Limiter:       limiter,
		SearchIndex:   searchIndex,
		Embedder:      embedder,
	}
}
