package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/helixcare/clinidex/internal/domain"
)

// visualAnalysisHeader labels the enrichment narrative appended to the
// extraction output before chunking.
const visualAnalysisHeader = "[Visual Analysis]"

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// IndexChunkRepository persists the chunk set for a document atomically.
type IndexChunkRepository interface {
	ReplaceChunks(ctx context.Context, documentID string, chunks []domain.DocumentChunk) error
}

// IndexingService chunks and embeds a document's combined text and
// persists the result for retrieval.
type IndexingService struct {
	client    EmbeddingClient
	chunkRepo IndexChunkRepository
	chunkCfg  ChunkConfig
	now       func() time.Time
}

// NewIndexingService creates a new IndexingService instance
func NewIndexingService(client EmbeddingClient, chunkRepo IndexChunkRepository, chunkCfg ChunkConfig) *IndexingService {
	if chunkCfg.Size <= 0 {
		chunkCfg = DefaultChunkConfig()
	}
	return &IndexingService{
		client:    client,
		chunkRepo: chunkRepo,
		chunkCfg:  chunkCfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// IndexDocument chunks the document's combined text, embeds every chunk,
// and replaces the document's stored chunk set. It returns how many
// chunks were written. Chunk boundaries are deterministic for identical
// input; only the generated chunk ids differ between runs.
func (s *IndexingService) IndexDocument(ctx context.Context, doc *domain.Document, rawText string, enriched *domain.EnrichedData) (int, error) {
	text := buildIndexText(rawText, enriched)
	chunks := chunkText(text, s.chunkCfg)

	var markers domain.RiskMarkers
	if enriched != nil {
		markers = enriched.RiskMarkers
	}

	entries := make([]domain.DocumentChunk, 0, len(chunks))
	createdAt := s.now()
	for i, chunk := range chunks {
		embedding, err := s.client.GenerateEmbedding(ctx, chunk)
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunk %d of document %s: %w", i, doc.ID, err)
		}

		entries = append(entries, domain.DocumentChunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Owner:      doc.Owner,
			Text:       chunk,
			Position:   i,
			Embedding:  embedding,
			Metadata: domain.ChunkMetadata{
				DocumentID:  doc.ID,
				ChunkIndex:  i,
				TotalChunks: len(chunks),
				RiskMarkers: markers,
			},
			CreatedAt: createdAt,
		})
	}

	if err := s.chunkRepo.ReplaceChunks(ctx, doc.ID, entries); err != nil {
		return 0, fmt.Errorf("failed to replace chunks for document %s: %w", doc.ID, err)
	}

	return len(entries), nil
}

// buildIndexText concatenates the extraction output with the enrichment
// narrative, when present, under a labeled section.
func buildIndexText(rawText string, enriched *domain.EnrichedData) string {
	if enriched == nil || enriched.VisualAnalysis == nil || *enriched.VisualAnalysis == "" {
		return rawText
	}
	return rawText + "\n\n" + visualAnalysisHeader + "\n" + *enriched.VisualAnalysis
}
