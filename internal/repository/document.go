package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const documentColumns = `id, type, source_location, mime_type, processing_status, processing_error,
	indexed_chunk_count, extracted_text, created_at, updated_at`

// DocumentRepository persists documents and their processing fields.
type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.Type, d.SourceLocation, d.MimeType, d.ProcessingStatus, nullableString(d.ProcessingError),
		d.IndexedChunkCount, d.ExtractedText, d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return d, nil
}

// UpdateStatus applies u only while the row is still in status from and
// returns the updated document. A row in any other status yields
// ErrStatusConflict.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, from domain.ProcessingStatus, u domain.DocumentUpdate) (*domain.Document, error) {
	sets, args := updateClauses(u)
	args = append(args, id, from)
	query := fmt.Sprintf(
		`UPDATE documents SET %s WHERE id = $%d AND processing_status = $%d RETURNING `+documentColumns,
		strings.Join(sets, ", "), len(args)-1, len(args),
	)

	d, err := scanDocument(r.db.QueryRow(ctx, query, args...))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, domain.ErrStatusConflict
}

// ListWithCursor returns up to limit documents newest first, starting after
// cursor. A nil status matches every document.
func (r *DocumentRepository) ListWithCursor(ctx context.Context, status *domain.ProcessingStatus, cursor *pagination.Cursor, limit int) ([]*domain.Document, error) {
	var where []string
	var args []any
	if status != nil {
		args = append(args, *status)
		where = append(where, fmt.Sprintf("processing_status = $%d", len(args)))
	}
	if cursor != nil {
		args = append(args, cursor.CreatedAt, cursor.ID)
		where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}

	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// UpdateStale applies u to every document still in status from whose last
// write is older than cutoff, and returns their ids. The status change must
// be a legal transition out of from.
func (r *DocumentRepository) UpdateStale(ctx context.Context, from domain.ProcessingStatus, cutoff time.Time, u domain.DocumentUpdate) ([]string, error) {
	if u.ProcessingStatus == nil {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "stale update must set a status")
	}
	if err := domain.Transition(from, *u.ProcessingStatus); err != nil {
		return nil, err
	}

	sets, args := updateClauses(u)
	args = append(args, from, cutoff)
	query := fmt.Sprintf(
		`UPDATE documents SET %s WHERE processing_status = $%d AND updated_at < $%d RETURNING id`,
		strings.Join(sets, ", "), len(args)-1, len(args),
	)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func updateClauses(u domain.DocumentUpdate) ([]string, []any) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.ProcessingStatus != nil {
		add("processing_status", *u.ProcessingStatus)
	}
	switch {
	case u.ProcessingError != nil:
		add("processing_error", *u.ProcessingError)
	case u.ClearError:
		sets = append(sets, "processing_error = NULL")
	}
	switch {
	case u.IndexedChunkCount != nil:
		add("indexed_chunk_count", *u.IndexedChunkCount)
	case u.ClearChunkCount:
		sets = append(sets, "indexed_chunk_count = NULL")
	}
	if u.ExtractedText != nil {
		add("extracted_text", *u.ExtractedText)
	}
	sets = append(sets, "updated_at = now()")
	return sets, args
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var d domain.Document
	var processingError, extractedText pgtype.Text
	var chunkCount pgtype.Int4
	err := row.Scan(&d.ID, &d.Type, &d.SourceLocation, &d.MimeType, &d.ProcessingStatus, &processingError,
		&chunkCount, &extractedText, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if processingError.Valid {
		d.ProcessingError = &processingError.String
	}
	if chunkCount.Valid {
		n := int(chunkCount.Int32)
		d.IndexedChunkCount = &n
	}
	if extractedText.Valid {
		d.ExtractedText = &extractedText.String
	}
	return &d, nil
}
