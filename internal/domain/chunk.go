package domain

import "time"

// ChunkMetadata is the metadata bag attached to every indexed chunk.
type ChunkMetadata struct {
	DocumentID  string      `json:"document_id"`
	ChunkIndex  int         `json:"chunk_index"`
	TotalChunks int         `json:"total_chunks"`
	RiskMarkers RiskMarkers `json:"risk_markers,omitempty"`
}

// DocumentChunk is a bounded slice of a document's text with its embedding,
// denormalized by owner for retrieval-time filtering without a join.
type DocumentChunk struct {
	ID         string
	DocumentID string
	Owner      Owner
	Text       string
	Position   int // zero-based index among kept chunks
	Embedding  []float32
	Metadata   ChunkMetadata
	CreatedAt  time.Time
}

// ScoredChunk pairs a retrieved chunk with its cosine similarity to the
// query embedding.
type ScoredChunk struct {
	Chunk      DocumentChunk
	Similarity float64
}
