package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helixcare/clinidex/internal/domain"
	"github.com/helixcare/clinidex/internal/pagination"
	"github.com/helixcare/clinidex/internal/service"
)

const documentColumns = `id, owner_id, owner_kind, storage_key, original_filename, file_size_bytes,
	media_type, doc_type, status, raw_text, enriched_data, indexed, error_message,
	extracted_at, enriched_at, indexed_at, uploaded_at, updated_at`

// DocumentRepository handles persistence of documents and their pipeline state.
type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	enriched, err := marshalEnrichedData(d.EnrichedData)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO documents
			(id, owner_id, owner_kind, storage_key, original_filename, file_size_bytes,
			 media_type, doc_type, status, raw_text, enriched_data, indexed, error_message,
			 extracted_at, enriched_at, indexed_at, uploaded_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		d.ID, d.Owner.ID, d.Owner.Kind, d.StorageKey, d.OriginalFilename, d.FileSizeBytes,
		d.MediaType, d.Type, d.Status, d.RawText, enriched, d.Indexed, d.ErrorMessage,
		d.ExtractedAt, d.EnrichedAt, d.IndexedAt, d.UploadedAt, d.UpdatedAt,
	)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) SetStatus(ctx context.Context, id string, status domain.ProcessingStatus) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// SaveExtraction commits the extraction stage output and advances the
// document to INGESTED.
func (r *DocumentRepository) SaveExtraction(ctx context.Context, id string, rawText string) error {
	now := time.Now().UTC()
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET raw_text = $1, status = $2, extracted_at = $3, error_message = NULL, updated_at = $3
		 WHERE id = $4`,
		rawText, domain.ProcessingStatusIngested, now, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// SaveEnrichment commits the enrichment stage output. The document stays
// in ANALYZING until indexing finishes.
func (r *DocumentRepository) SaveEnrichment(ctx context.Context, id string, enriched *domain.EnrichedData) error {
	payload, err := marshalEnrichedData(enriched)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET enriched_data = $1, enriched_at = $2, updated_at = $2
		 WHERE id = $3`,
		payload, now, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// SaveIndexed marks the indexing stage complete and the document INDEXED.
func (r *DocumentRepository) SaveIndexed(ctx context.Context, id string) error {
	now := time.Now().UTC()
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET indexed = TRUE, status = $1, indexed_at = $2, error_message = NULL, updated_at = $2
		 WHERE id = $3`,
		domain.ProcessingStatusIndexed, now, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// MarkFailed records a stage failure and halts the document's pipeline.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id string, message string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $1, error_message = $2, updated_at = $3 WHERE id = $4`,
		domain.ProcessingStatusFailed, message, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// ListReindexableByOwner returns the owner's documents that have both
// extraction and enrichment output persisted, the inputs a refresh needs.
func (r *DocumentRepository) ListReindexableByOwner(ctx context.Context, owner domain.Owner) ([]*domain.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+documentColumns+`
		 FROM documents
		 WHERE owner_id = $1 AND owner_kind = $2
		   AND raw_text IS NOT NULL AND enriched_data IS NOT NULL
		 ORDER BY uploaded_at ASC, id ASC`,
		owner.ID, owner.Kind,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDocumentRows(rows)
}

func (r *DocumentRepository) ListByOwnerWithCursor(ctx context.Context, owner domain.Owner, cursor *pagination.Cursor, limit int) (*service.DocumentPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+documentColumns+`
			 FROM documents
			 WHERE owner_id = $1 AND owner_kind = $2 AND (uploaded_at, id) < ($3, $4)
			 ORDER BY uploaded_at DESC, id DESC
			 LIMIT $5`,
			owner.ID, owner.Kind, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+documentColumns+`
			 FROM documents
			 WHERE owner_id = $1 AND owner_kind = $2
			 ORDER BY uploaded_at DESC, id DESC
			 LIMIT $3`,
			owner.ID, owner.Kind, limit+1,
		)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanDocumentRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		lastItem := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(lastItem.ID, lastItem.UploadedAt)
	}

	return &service.DocumentPageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

type documentScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row documentScanner) (*domain.Document, error) {
	var d domain.Document
	var rawText, errorMessage pgtype.Text
	var enriched []byte

	err := row.Scan(
		&d.ID, &d.Owner.ID, &d.Owner.Kind, &d.StorageKey, &d.OriginalFilename, &d.FileSizeBytes,
		&d.MediaType, &d.Type, &d.Status, &rawText, &enriched, &d.Indexed, &errorMessage,
		&d.ExtractedAt, &d.EnrichedAt, &d.IndexedAt, &d.UploadedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if rawText.Valid {
		d.RawText = &rawText.String
	}
	if errorMessage.Valid {
		d.ErrorMessage = &errorMessage.String
	}
	if len(enriched) > 0 {
		var data domain.EnrichedData
		if err := json.Unmarshal(enriched, &data); err != nil {
			return nil, fmt.Errorf("failed to decode enriched data for document %s: %w", d.ID, err)
		}
		d.EnrichedData = &data
	}

	return &d, nil
}

func scanDocumentRows(rows pgx.Rows) ([]*domain.Document, error) {
	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func marshalEnrichedData(e *domain.EnrichedData) ([]byte, error) {
	if e == nil {
		return nil, nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode enriched data: %w", err)
	}
	return payload, nil
}
