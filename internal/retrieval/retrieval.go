// Package retrieval looks up citations for a user turn in a chromem-go
// collection and ingests documents into it.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/mentor-labs/internal/domain"
	chromem "github.com/philippgille/chromem-go"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// metaSource is the document metadata key holding the originating file name.
const metaSource = "source"

// Config configures a Store.
type Config struct {
	// Path of the persistent database. Empty keeps everything in memory.
	Path         string
	Collection   string
	TopK         int
	ChunkSize    int
	ChunkOverlap int
}

// DefaultConfig returns the default retrieval settings.
func DefaultConfig() Config {
	return Config{
		Collection:   "startup_mentor",
		TopK:         4,
		ChunkSize:    500,
		ChunkOverlap: 50,
	}
}

// NewOpenAIEmbedder creates an embedder backed by an OpenAI-compatible API.
func NewOpenAIEmbedder(baseURL, apiKey, model string) (embeddings.Embedder, error) {
	if apiKey == "" {
		return nil, errors.New("embedding api key is not set")
	}
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedder, nil
}

// Store is a chromem-go collection with an attached embedder.
type Store struct {
	db       *chromem.DB
	coll     *chromem.Collection
	embedder embeddings.Embedder
	cfg      Config
	logger   *slog.Logger
}

// Open opens (or creates) the configured collection.
func Open(cfg Config, embedder embeddings.Embedder, logger *slog.Logger) (*Store, error) {
	if embedder == nil {
		return nil, errors.New("retrieval requires an embedder")
	}
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Collection == "" {
		cfg.Collection = def.Collection
	}
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = 0
	}

	db := chromem.NewDB()
	if cfg.Path != "" {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("open vector db %s: %w", cfg.Path, err)
		}
	}

	s := &Store{db: db, embedder: embedder, cfg: cfg, logger: logger}
	coll, err := db.GetOrCreateCollection(cfg.Collection, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", cfg.Collection, err)
	}
	s.coll = coll
	logger.Info("retrieval collection ready", "collection", cfg.Collection, "documents", coll.Count())
	return s, nil
}

func (s *Store) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// Count returns the number of stored chunks.
func (s *Store) Count() int {
	return s.coll.Count()
}

// Retrieve returns up to TopK citations for query, most similar first.
func (s *Store) Retrieve(ctx context.Context, query string) ([]domain.Citation, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Citation{}, nil
	}
	n := min(s.cfg.TopK, s.coll.Count())
	if n == 0 {
		return []domain.Citation{}, nil
	}

	results, err := s.coll.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", s.cfg.Collection, err)
	}

	out := make([]domain.Citation, 0, len(results))
	for _, r := range results {
		out = append(out, domain.Citation{
			ID:     r.ID,
			Score:  float64(r.Similarity),
			Text:   r.Content,
			Source: r.Metadata[metaSource],
		})
	}
	s.logger.Debug("retrieved citations", "collection", s.cfg.Collection, "k", n, "results", len(out))
	return out, nil
}

// FormatContext renders citations as prompt context, one line per hit.
func FormatContext(citations []domain.Citation) string {
	if len(citations) == 0 {
		return ""
	}
	lines := make([]string, len(citations))
	for i, c := range citations {
		lines[i] = fmt.Sprintf("[doc:%s score=%.3f] %s", c.ID, c.Score, c.Text)
	}
	return strings.Join(lines, "\n")
}
