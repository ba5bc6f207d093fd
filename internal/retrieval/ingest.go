package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"github.com/tmc/langchaingo/textsplitter"
)

// IngestText splits text into overlapping chunks, embeds them and adds them
// to the collection. It returns the number of stored chunks.
func (s *Store) IngestText(ctx context.Context, text, source string) (int, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.cfg.ChunkSize),
		textsplitter.WithChunkOverlap(s.cfg.ChunkOverlap),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil {
		return 0, fmt.Errorf("split %s: %w", source, err)
	}

	var kept []string
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		s.logger.Info("no text to ingest", "source", source)
		return 0, nil
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, kept)
	if err != nil {
		return 0, fmt.Errorf("embed %s: %w", source, err)
	}
	if len(vectors) != len(kept) {
		return 0, fmt.Errorf("embed %s: got %d vectors for %d chunks", source, len(vectors), len(kept))
	}

	docs := make([]chromem.Document, len(kept))
	for i, c := range kept {
		docs[i] = chromem.Document{
			ID:        uuid.NewString(),
			Content:   c,
			Embedding: vectors[i],
			Metadata:  map[string]string{metaSource: source},
		}
	}
	if err := s.coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, fmt.Errorf("store chunks of %s: %w", source, err)
	}

	s.logger.Info("ingested document", "source", source, "chunks", len(docs), "collection", s.cfg.Collection)
	return len(docs), nil
}

// IngestDir ingests every .txt file directly inside dir, in name order.
// A missing directory ingests nothing.
func (s *Store) IngestDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		s.logger.Warn("ingest directory does not exist", "dir", dir)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read ingest directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	total := 0
	for _, e := range entries {
		if e.IsDir() || strings.ToLower(filepath.Ext(e.Name())) != ".txt" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return total, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		n, err := s.IngestText(ctx, string(data), e.Name())
		if err != nil {
			return total, err
		}
		total += n
	}
	s.logger.Info("ingestion complete", "dir", dir, "chunks", total)
	return total, nil
}
