package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/helixcare/clinidex/internal/domain"
)

// DocumentChunkRepository handles persistence of embedded document chunks.
type DocumentChunkRepository struct {
	db   dbtx
	pool *pgxpool.Pool
}

func NewDocumentChunkRepository(pool *pgxpool.Pool) *DocumentChunkRepository {
	return &DocumentChunkRepository{db: pool, pool: pool}
}

func NewDocumentChunkRepositoryWithTx(tx pgx.Tx) *DocumentChunkRepository {
	return &DocumentChunkRepository{db: tx}
}

// ReplaceChunks swaps a document's chunk set for a new one. The delete and
// every insert commit together, so a concurrent search sees either the old
// set or the new one, never a partial state.
func (r *DocumentChunkRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.DocumentChunk) error {
	if r.pool == nil {
		return r.replaceChunks(ctx, documentID, chunks)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}

	if err := NewDocumentChunkRepositoryWithTx(tx).replaceChunks(ctx, documentID, chunks); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

func (r *DocumentChunkRepository) replaceChunks(ctx context.Context, documentID string, chunks []domain.DocumentChunk) error {
	_, err := r.db.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return err
	}

	if len(chunks) == 0 {
		return nil
	}

	for _, c := range chunks {
		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode chunk metadata: %w", err)
		}

		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		_, err = r.db.Exec(ctx,
			`INSERT INTO document_chunks
				(id, document_id, owner_id, owner_kind, content, position, embedding, metadata, created_at)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			c.ID,
			c.DocumentID,
			c.Owner.ID,
			c.Owner.Kind,
			c.Text,
			c.Position,
			pgvector.NewVector(c.Embedding),
			metadata,
			createdAt,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// DeleteByOwner removes every chunk belonging to the owner and reports
// how many rows were removed.
func (r *DocumentChunkRepository) DeleteByOwner(ctx context.Context, owner domain.Owner) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM document_chunks WHERE owner_id = $1 AND owner_kind = $2`,
		owner.ID, owner.Kind,
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

// CountByOwner returns the owner's chunk count.
func (r *DocumentChunkRepository) CountByOwner(ctx context.Context, owner domain.Owner) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE owner_id = $1 AND owner_kind = $2`,
		owner.ID, owner.Kind,
	).Scan(&count)
	return count, err
}

// SearchByOwner returns the owner's chunks ranked by cosine similarity
// to the query embedding, best first. Results never cross owners.
func (r *DocumentChunkRepository) SearchByOwner(ctx context.Context, owner domain.Owner, embedding []float32, topK int) ([]domain.ScoredChunk, error) {
	if topK <= 0 {
		topK = 5
	}

	vec := pgvector.NewVector(embedding)

	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, owner_id, owner_kind, content, position, metadata, created_at,
		        1 - (embedding <=> $1) AS similarity
		 FROM document_chunks
		 WHERE owner_id = $2 AND owner_kind = $3
		 ORDER BY embedding <=> $1 ASC
		 LIMIT $4`,
		vec, owner.ID, owner.Kind, topK,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.ScoredChunk
	for rows.Next() {
		var sc domain.ScoredChunk
		var metadata []byte
		if err := rows.Scan(
			&sc.Chunk.ID, &sc.Chunk.DocumentID, &sc.Chunk.Owner.ID, &sc.Chunk.Owner.Kind,
			&sc.Chunk.Text, &sc.Chunk.Position, &metadata, &sc.Chunk.CreatedAt, &sc.Similarity,
		); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &sc.Chunk.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode chunk metadata: %w", err)
			}
		}
		results = append(results, sc)
	}

	return results, rows.Err()
}
