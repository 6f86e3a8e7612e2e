package config

import (
	"os"
	"strconv"
	"strings"
)

// Config carries every collaborator endpoint and tunable the service needs.
// All values come from the environment; secrets may also be mounted as files.
type Config struct {
	Env  string
	Port string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	MeiliURL    string
	MeiliAPIKey string
	MeiliIndex  string

	RedisURL string

	LLMBaseURL     string
	LLMAPIKey      string
	ChatModel      string
	EmbeddingModel string
	LLMTimeout     int

	RewriteQueryCount int
	SearchTopK        int
	FusionRRFK        float64
	ContextLimit      int

	RateLimitPerMinute int
	EmbedCacheSize     int
}

// Load reads the configuration from the environment.
func Load() *Config {
	return &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "8080"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "docchat"),
		DBPassword: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "docchat"),
		DBName:     getEnv("DB_NAME", "docchat"),

		MeiliURL:    getEnv("MEILI_URL", "http://localhost:7700"),
		MeiliAPIKey: getSecret("MEILI_API_KEY", "MEILI_API_KEY_FILE", ""),
		MeiliIndex:  getEnv("MEILI_INDEX", "chunks"),

		RedisURL: getEnv("REDIS_URL", ""),

		LLMBaseURL:     getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:      getSecret("LLM_API_KEY", "LLM_API_KEY_FILE", ""),
		ChatModel:      getEnv("CHAT_MODEL", "gpt-4o-mini"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		LLMTimeout:     getEnvInt("LLM_TIMEOUT_SECONDS", 120),

		RewriteQueryCount: getEnvInt("REWRITE_QUERY_COUNT", 5),
		SearchTopK:        getEnvInt("SEARCH_TOP_K", 5),
		FusionRRFK:        getEnvFloat("FUSION_RRF_K", 60),
		ContextLimit:      getEnvInt("CONTEXT_LIMIT", 10),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 20),
		EmbedCacheSize:     getEnvInt("EMBED_CACHE_SIZE", 512),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
