package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/osiDTDr/ai-contract-review/core/db"
)

type Config struct {
	OTel      OTelConfig
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Review    ReviewConfig
	Redis     RedisConfig
	Env       string
	Port      string
	DB        db.Config
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

type LLMConfig struct {
	Provider    string // "openai", "azure", "anthropic" or "ollama"
	APIKey      string
	BaseURL     string // Optional for openai/anthropic, required for azure
	APIVersion  string // azure only
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

type EmbeddingConfig struct {
	Provider string // "openai" or "ollama"
	APIKey   string
	BaseURL  string
	Model    string
}

type ReviewConfig struct {
	// RulesPath points to a YAML rules file. Empty means the embedded defaults.
	RulesPath string

	StageTimeout   time.Duration
	StageTimeouts  map[string]time.Duration
	DisabledStages []string

	AnalyzerMode   string // "pattern" or "llm"
	ComplianceMode string // "keyword" or "llm"
	RetrieverMode  string // "lexical", "vector" or "none"

	TopK         int
	MinRelevance float64

	// KnowledgePath points to a YAML knowledge corpus. Empty means the embedded seed corpus.
	KnowledgePath       string
	KnowledgeCategories []string

	MaxUploadBytes int64
	// TextLimit caps the number of runes of contract text sent to the LLM.
	TextLimit int
}

type RedisConfig struct {
	URL          string
	StreamPrefix string
	MaxLen       int64
	EventTTL     time.Duration
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeCLI    ServiceType = "cli"
)

const (
	AnalyzerPattern = "pattern"
	AnalyzerLLM     = "llm"

	ComplianceKeyword = "keyword"
	ComplianceLLM     = "llm"

	RetrieverLexical = "lexical"
	RetrieverVector  = "vector"
	RetrieverNone    = "none"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.server for the API server
//   - .env.cli for the command line tool
//
// Falls back to .env if service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("REVIEW_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	env := getEnv("REVIEW_ENV", "development")

	stageTimeouts, err := parseDurations(getEnv("REVIEW_STAGE_TIMEOUTS", ""))
	if err != nil {
		return Config{}, fmt.Errorf("REVIEW_STAGE_TIMEOUTS: %w", err)
	}

	cfg := Config{
		Env:  env,
		Port: getEnv("PORT", "8000"),
		DB: db.Config{
			DSN:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 10),
			MinConns: getEnvInt32("DB_MIN_CONNS", 1),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "contract-review"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    env,
		},
		LLM: LLMConfig{
			Provider:    getEnv("LLM_PROVIDER", "openai"),
			APIKey:      getEnv("LLM_API_KEY", ""),
			BaseURL:     getEnv("LLM_BASE_URL", ""),
			APIVersion:  getEnv("LLM_API_VERSION", "2024-06-01"),
			Model:       getEnv("LLM_MODEL", "gpt-4o-mini"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.1),
			Timeout:     getEnvDuration("LLM_TIMEOUT", 60*time.Second),
			MaxRetries:  getEnvInt("LLM_MAX_RETRIES", 2),
		},
		Embedding: EmbeddingConfig{
			Provider: getEnv("EMBEDDING_PROVIDER", "openai"),
			APIKey:   getEnv("EMBEDDING_API_KEY", getEnv("LLM_API_KEY", "")),
			BaseURL:  getEnv("EMBEDDING_BASE_URL", ""),
			Model:    getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		},
		Review: ReviewConfig{
			RulesPath:           getEnv("REVIEW_RULES_PATH", ""),
			StageTimeout:        getEnvDuration("REVIEW_STAGE_TIMEOUT", 90*time.Second),
			StageTimeouts:       stageTimeouts,
			DisabledStages:      splitList(getEnv("REVIEW_DISABLED_STAGES", "")),
			AnalyzerMode:        getEnv("REVIEW_ANALYZER", AnalyzerPattern),
			ComplianceMode:      getEnv("REVIEW_COMPLIANCE", ComplianceKeyword),
			RetrieverMode:       getEnv("REVIEW_RETRIEVER", RetrieverLexical),
			TopK:                getEnvInt("REVIEW_TOP_K", 3),
			MinRelevance:        getEnvFloat("REVIEW_MIN_RELEVANCE", 0.05),
			KnowledgePath:       getEnv("REVIEW_KNOWLEDGE_PATH", ""),
			KnowledgeCategories: splitList(getEnv("REVIEW_KNOWLEDGE_CATEGORIES", "")),
			MaxUploadBytes:      int64(getEnvInt("REVIEW_MAX_UPLOAD_BYTES", 20<<20)),
			TextLimit:           getEnvInt("REVIEW_TEXT_LIMIT", 8000),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			StreamPrefix: getEnv("REDIS_STREAM_PREFIX", "review_events"),
			MaxLen:       int64(getEnvInt("REDIS_STREAM_MAXLEN", 100)),
			EventTTL:     getEnvDuration("REDIS_EVENT_TTL", time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks mode names and that the selected providers are usable. Load
// calls it; callers that override fields afterwards should call it again.
func (c Config) Validate() error {
	if !slices.Contains([]string{AnalyzerPattern, AnalyzerLLM}, c.Review.AnalyzerMode) {
		return fmt.Errorf("REVIEW_ANALYZER must be %q or %q, got %q", AnalyzerPattern, AnalyzerLLM, c.Review.AnalyzerMode)
	}
	if !slices.Contains([]string{ComplianceKeyword, ComplianceLLM}, c.Review.ComplianceMode) {
		return fmt.Errorf("REVIEW_COMPLIANCE must be %q or %q, got %q", ComplianceKeyword, ComplianceLLM, c.Review.ComplianceMode)
	}
	if !slices.Contains([]string{RetrieverLexical, RetrieverVector, RetrieverNone}, c.Review.RetrieverMode) {
		return fmt.Errorf("REVIEW_RETRIEVER must be one of lexical, vector, none; got %q", c.Review.RetrieverMode)
	}
	if c.Review.StageTimeout <= 0 {
		return fmt.Errorf("REVIEW_STAGE_TIMEOUT must be positive")
	}

	needsLLM := c.Review.AnalyzerMode == AnalyzerLLM || c.Review.ComplianceMode == ComplianceLLM
	if needsLLM && !c.LLM.Enabled() {
		return fmt.Errorf("LLM_PROVIDER %q is not usable: LLM_API_KEY is required for hosted providers", c.LLM.Provider)
	}
	if c.LLM.Provider == "azure" && c.LLM.BaseURL == "" {
		return fmt.Errorf("LLM_BASE_URL is required for the azure provider")
	}
	if c.Review.RetrieverMode == RetrieverVector && !c.Embedding.Enabled() {
		return fmt.Errorf("EMBEDDING_PROVIDER %q is not usable: EMBEDDING_API_KEY is required for openai", c.Embedding.Provider)
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c LLMConfig) Enabled() bool {
	switch c.Provider {
	case "ollama":
		return true
	case "openai", "azure", "anthropic":
		return c.APIKey != ""
	default:
		return false
	}
}

func (c EmbeddingConfig) Enabled() bool {
	switch c.Provider {
	case "ollama":
		return true
	case "openai":
		return c.APIKey != ""
	default:
		return false
	}
}

func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseDurations reads "stage=duration" pairs, e.g. "analyze_risks=2m,check_compliance=45s".
func parseDurations(s string) (map[string]time.Duration, error) {
	out := make(map[string]time.Duration)
	for _, pair := range splitList(s) {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected stage=duration, got %q", pair)
		}
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", name, err)
		}
		out[strings.TrimSpace(name)] = d
	}
	return out, nil
}
