package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/sync/errgroup"

	"github.com/osiDTDr/ai-contract-review/common/llm"
	"github.com/osiDTDr/ai-contract-review/internal/review"
)

var separators = []string{"\n\n", "\n", "。", "；", " ", ""}

type VectorConfig struct {
	TopK         int
	MinRelevance float64
	// Concurrency bounds parallel query-chunk embedding calls.
	Concurrency int
}

// VectorRetriever embeds the corpus once and answers queries by cosine
// similarity. Long contracts are split and each chunk is searched; an entry
// keeps the best score any chunk gave it.
type VectorRetriever struct {
	embedder llm.Embedder
	base     *Base
	cfg      VectorConfig
	query    textsplitter.RecursiveCharacter

	index   flatIndex
	owners  []int // chunk -> entry
	buildMu sync.Mutex
	built   bool
}

func NewVectorRetriever(base *Base, embedder llm.Embedder, cfg VectorConfig) *VectorRetriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &VectorRetriever{
		embedder: embedder,
		base:     base,
		cfg:      cfg,
		query: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(1000),
			textsplitter.WithChunkOverlap(200),
			textsplitter.WithSeparators(separators),
		),
	}
}

// Build embeds the corpus. Retrieve calls it lazily; calling it at startup
// surfaces embedding misconfiguration before the first request.
func (r *VectorRetriever) Build(ctx context.Context) error {
	r.buildMu.Lock()
	defer r.buildMu.Unlock()
	if r.built {
		return nil
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(500),
		textsplitter.WithChunkOverlap(50),
		textsplitter.WithSeparators(separators),
	)

	var chunks []string
	var owners []int
	for i, e := range r.base.entries {
		parts, err := splitter.SplitText(e.Content)
		if err != nil {
			return fmt.Errorf("splitting knowledge entry %d: %w", i, err)
		}
		for _, p := range parts {
			chunks = append(chunks, p)
			owners = append(owners, i)
		}
	}
	if len(chunks) == 0 {
		r.built = true
		return nil
	}

	start := time.Now()
	vectors, err := r.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embedding knowledge base: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	var index flatIndex
	for _, v := range vectors {
		if err := index.add(v); err != nil {
			return fmt.Errorf("indexing knowledge base: %w", err)
		}
	}

	r.index, r.owners, r.built = index, owners, true
	slog.InfoContext(ctx, "knowledge index built",
		"entries", r.base.Len(),
		"chunks", len(chunks),
		"dimension", index.dim,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (r *VectorRetriever) Retrieve(ctx context.Context, text string) ([]review.KnowledgeSnippet, error) {
	if err := r.Build(ctx); err != nil {
		return nil, err
	}
	if r.index.len() == 0 || strings.TrimSpace(text) == "" {
		return []review.KnowledgeSnippet{}, nil
	}

	chunks, err := r.query.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("splitting query: %w", err)
	}

	best := make([]float64, r.base.Len())
	for i := range best {
		best[i] = -1
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, chunk := range chunks {
		g.Go(func() error {
			q, err := r.embedder.EmbedQuery(gctx, chunk)
			if err != nil {
				return fmt.Errorf("embedding query chunk: %w", err)
			}
			scores, err := r.index.scores(q)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for i, s := range scores {
				if owner := r.owners[i]; s > best[owner] {
					best[owner] = s
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hits := make([]hit, 0, len(best))
	for i, s := range best {
		hits = append(hits, hit{entry: i, relevance: s})
	}

	slog.DebugContext(ctx, "vector retrieval completed", "query_chunks", len(chunks))
	return rank(r.base, hits, r.cfg.TopK, r.cfg.MinRelevance), nil
}
