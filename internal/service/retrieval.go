package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/helixcare/clinidex/internal/domain"
)

const (
	excerptLabelFormat = "[Document Excerpt %d]"
	excerptSeparator   = "\n\n---\n\n"
)

// SearchChunkRepository performs owner-scoped similarity search.
type SearchChunkRepository interface {
	SearchByOwner(ctx context.Context, owner domain.Owner, embedding []float32, topK int) ([]domain.ScoredChunk, error)
}

// ContextBundle is the assembled retrieval result handed to chat callers.
type ContextBundle struct {
	ContextText       string
	Chunks            []domain.ScoredChunk
	SourceDocumentIDs []string
	ChunkIDs          []string
}

// Empty reports whether retrieval found nothing for the owner.
func (b *ContextBundle) Empty() bool {
	return len(b.Chunks) == 0
}

// RetrievalConfig carries the per-role result limits.
type RetrievalConfig struct {
	// TopKPatient caps results for patient-facing chat.
	TopKPatient int
	// TopKClinician caps results for clinician-facing chat.
	TopKClinician int
}

// RetrievalService embeds a query and returns the owner's most similar
// chunks assembled into a labeled context block.
type RetrievalService struct {
	client    EmbeddingClient
	chunkRepo SearchChunkRepository
	cfg       RetrievalConfig
}

// NewRetrievalService creates a new RetrievalService instance
func NewRetrievalService(client EmbeddingClient, chunkRepo SearchChunkRepository, cfg RetrievalConfig) *RetrievalService {
	if cfg.TopKPatient <= 0 {
		cfg.TopKPatient = 5
	}
	if cfg.TopKClinician <= 0 {
		cfg.TopKClinician = 10
	}
	return &RetrievalService{
		client:    client,
		chunkRepo: chunkRepo,
		cfg:       cfg,
	}
}

// GetContextForQuery retrieves context for a chat turn, sizing topK by
// caller role. Elevated callers (clinicians) get the larger limit.
func (s *RetrievalService) GetContextForQuery(ctx context.Context, query string, owner domain.Owner, elevated bool) (*ContextBundle, error) {
	topK := s.cfg.TopKPatient
	if elevated {
		topK = s.cfg.TopKClinician
	}
	return s.Retrieve(ctx, query, owner, topK)
}

// Retrieve embeds the query and returns at most topK of the owner's
// chunks ranked by cosine similarity. An owner with no chunks yields an
// empty bundle, not an error.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, owner domain.Owner, topK int) (*ContextBundle, error) {
	if strings.TrimSpace(query) == "" {
		return &ContextBundle{}, nil
	}
	if topK <= 0 {
		topK = s.cfg.TopKPatient
	}

	embedding, err := s.client.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	scored, err := s.chunkRepo.SearchByOwner(ctx, owner, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	if len(scored) == 0 {
		return &ContextBundle{}, nil
	}

	return assembleBundle(scored), nil
}

// assembleBundle labels each excerpt with its rank so the consuming
// assistant can attribute claims to source order.
func assembleBundle(scored []domain.ScoredChunk) *ContextBundle {
	sections := make([]string, 0, len(scored))
	chunkIDs := make([]string, 0, len(scored))
	docIDs := make([]string, 0, len(scored))
	seenDocs := make(map[string]struct{}, len(scored))

	for i, sc := range scored {
		sections = append(sections, fmt.Sprintf(excerptLabelFormat, i+1)+"\n"+sc.Chunk.Text)
		chunkIDs = append(chunkIDs, sc.Chunk.ID)
		if _, ok := seenDocs[sc.Chunk.DocumentID]; !ok {
			seenDocs[sc.Chunk.DocumentID] = struct{}{}
			docIDs = append(docIDs, sc.Chunk.DocumentID)
		}
	}

	return &ContextBundle{
		ContextText:       strings.Join(sections, excerptSeparator),
		Chunks:            scored,
		SourceDocumentIDs: docIDs,
		ChunkIDs:          chunkIDs,
	}
}
