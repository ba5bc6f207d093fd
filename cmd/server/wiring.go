package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/mentor-labs/internal/config"
	"github.com/ashureev/mentor-labs/internal/persona"
	"github.com/ashureev/mentor-labs/internal/retrieval"
)

// openRetrieval opens the configured document collection. It returns nil
// when retrieval is disabled.
func openRetrieval(cfg *config.Config, logger *slog.Logger) (*retrieval.Store, error) {
	if !cfg.Retrieval.Enabled {
		return nil, nil
	}
	embedder, err := retrieval.NewOpenAIEmbedder(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.Retrieval.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	return retrieval.Open(retrieval.Config{
		Path:         cfg.Retrieval.Path,
		Collection:   cfg.Retrieval.Collection,
		TopK:         cfg.Retrieval.TopK,
		ChunkSize:    cfg.Retrieval.ChunkSize,
		ChunkOverlap: cfg.Retrieval.ChunkOverlap,
	}, embedder, logger)
}

// ingestIfEmpty loads the docs directory into an empty collection.
func ingestIfEmpty(ctx context.Context, rag *retrieval.Store, dir string, logger *slog.Logger) {
	if rag.Count() > 0 || dir == "" {
		return
	}
	n, err := rag.IngestDir(ctx, dir)
	if err != nil {
		logger.Warn("Initial ingestion failed, continuing without documents", "dir", dir, "error", err)
		return
	}
	logger.Info("Initial ingestion complete", "dir", dir, "chunks", n)
}

// systemPrompt resolves the default thread prompt. An inline prompt wins
// over the prompt file.
func systemPrompt(cfg config.OrchestratorConfig) (string, error) {
	if cfg.DefaultSystemPrompt != "" {
		return cfg.DefaultSystemPrompt, nil
	}
	prompt, err := persona.LoadSystemPrompt(cfg.SystemPromptFile)
	if err != nil {
		return "", fmt.Errorf("load system prompt: %w", err)
	}
	return prompt, nil
}
