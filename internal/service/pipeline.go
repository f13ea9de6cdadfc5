package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/osiDTDr/ai-contract-review/common/llm"
	"github.com/osiDTDr/ai-contract-review/core/config"
	"github.com/osiDTDr/ai-contract-review/internal/compliance"
	"github.com/osiDTDr/ai-contract-review/internal/knowledge"
	"github.com/osiDTDr/ai-contract-review/internal/review"
	"github.com/osiDTDr/ai-contract-review/internal/risk"
	"github.com/osiDTDr/ai-contract-review/internal/rules"
)

const retryBaseDelay = 500 * time.Millisecond

// Reviewer is satisfied by *review.Orchestrator.
type Reviewer interface {
	Review(ctx context.Context, text string, opts ...review.RunOption) (*review.Result, error)
}

// PipelineBuilder turns configuration into orchestrators. The LLM client and
// retriever are built once and shared; a rule set can be swapped per request.
type PipelineBuilder struct {
	cfg       config.ReviewConfig
	client    llm.Client
	maxTokens int
	retriever review.Retriever
	observer  review.Observer
}

type BuilderOption func(*PipelineBuilder)

// WithLLMClient overrides the client built from config.
func WithLLMClient(c llm.Client) BuilderOption {
	return func(b *PipelineBuilder) { b.client = c }
}

// WithRetriever overrides the retriever built from config.
func WithRetriever(r review.Retriever) BuilderOption {
	return func(b *PipelineBuilder) { b.retriever = r }
}

// WithStageObserver attaches an observer to every orchestrator built.
func WithStageObserver(o review.Observer) BuilderOption {
	return func(b *PipelineBuilder) { b.observer = o }
}

func NewPipelineBuilder(ctx context.Context, cfg config.Config, opts ...BuilderOption) (*PipelineBuilder, error) {
	b := &PipelineBuilder{cfg: cfg.Review, maxTokens: cfg.LLM.MaxTokens}
	for _, opt := range opts {
		opt(b)
	}

	needsLLM := cfg.Review.AnalyzerMode == config.AnalyzerLLM || cfg.Review.ComplianceMode == config.ComplianceLLM
	if needsLLM && b.client == nil {
		client, err := llm.New(llm.Config{
			Provider:   cfg.LLM.Provider,
			APIKey:     cfg.LLM.APIKey,
			BaseURL:    cfg.LLM.BaseURL,
			APIVersion: cfg.LLM.APIVersion,
			Model:      cfg.LLM.Model,
			Timeout:    cfg.LLM.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("creating llm client: %w", err)
		}
		b.client = llm.WithRetry(client, cfg.LLM.MaxRetries, retryBaseDelay)
		slog.InfoContext(ctx, "llm client ready", "provider", cfg.LLM.Provider, "model", client.Model())
	}

	if b.retriever == nil {
		r, err := newRetriever(ctx, cfg)
		if err != nil {
			return nil, err
		}
		b.retriever = r
	}
	return b, nil
}

func newRetriever(ctx context.Context, cfg config.Config) (review.Retriever, error) {
	rc := cfg.Review
	if rc.RetrieverMode == config.RetrieverNone {
		return nil, nil
	}

	base, err := loadBase(rc.KnowledgePath)
	if err != nil {
		return nil, err
	}
	base = base.Filter(rc.KnowledgeCategories...)
	if base.Len() == 0 {
		slog.WarnContext(ctx, "knowledge base is empty after category filter", "categories", rc.KnowledgeCategories)
	}

	switch rc.RetrieverMode {
	case config.RetrieverVector:
		embedder, err := llm.NewEmbedder(llm.EmbeddingConfig{
			Provider: cfg.Embedding.Provider,
			APIKey:   cfg.Embedding.APIKey,
			BaseURL:  cfg.Embedding.BaseURL,
			Model:    cfg.Embedding.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("creating embedder: %w", err)
		}
		vr := knowledge.NewVectorRetriever(base, embedder, knowledge.VectorConfig{
			TopK:         rc.TopK,
			MinRelevance: rc.MinRelevance,
		})
		if err := vr.Build(ctx); err != nil {
			return nil, fmt.Errorf("indexing knowledge base: %w", err)
		}
		slog.InfoContext(ctx, "vector retriever ready", "entries", base.Len(), "model", cfg.Embedding.Model)
		return vr, nil
	default:
		slog.InfoContext(ctx, "lexical retriever ready", "entries", base.Len())
		return knowledge.NewLexicalRetriever(base, rc.TopK, rc.MinRelevance), nil
	}
}

func loadBase(path string) (*knowledge.Base, error) {
	if path == "" {
		return knowledge.DefaultBase()
	}
	return knowledge.LoadBase(path)
}

// Rules loads the configured rule set, falling back to the embedded one.
func (b *PipelineBuilder) Rules() (*rules.Set, error) {
	if b.cfg.RulesPath == "" {
		return rules.Default()
	}
	return rules.Load(b.cfg.RulesPath)
}

// Build assembles an orchestrator for set.
func (b *PipelineBuilder) Build(set *rules.Set) (*review.Orchestrator, error) {
	var analyzer review.Analyzer
	switch b.cfg.AnalyzerMode {
	case config.AnalyzerLLM:
		analyzer = risk.NewLLMAnalyzer(b.client, b.cfg.TextLimit, b.maxTokens)
	default:
		analyzer = risk.NewPatternAnalyzer(set.Risks)
	}

	var checker review.Checker
	switch b.cfg.ComplianceMode {
	case config.ComplianceLLM:
		checker = compliance.NewLLMChecker(b.client, b.cfg.TextLimit, b.maxTokens)
	default:
		checker = compliance.NewKeywordChecker()
	}

	return review.New(review.Options{
		Retriever:      b.retriever,
		Analyzer:       analyzer,
		Checker:        checker,
		Scorer:         set.Scoring,
		Rules:          set.Compliance,
		StageTimeout:   b.cfg.StageTimeout,
		StageTimeouts:  b.cfg.StageTimeouts,
		DisabledStages: b.cfg.DisabledStages,
		Observer:       b.observer,
	})
}
