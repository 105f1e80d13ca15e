package repository

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// VectorRepository stores chunk embeddings in pgvector, one namespace per document.
type VectorRepository struct {
	pool *pgxpool.Pool
}

func NewVectorRepository(pool *pgxpool.Pool) *VectorRepository {
	return &VectorRepository{pool: pool}
}

func (r *VectorRepository) HasVectors(ctx context.Context, namespace string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM document_chunks WHERE document_id = $1)`,
		namespace,
	).Scan(&exists)
	return exists, err
}

// ReplaceNamespace swaps the namespace's chunks for the given set in one transaction.
func (r *VectorRepository) ReplaceNamespace(ctx context.Context, namespace string, chunks []domain.EmbeddedChunk) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, namespace); err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, c := range chunks {
			batch.Queue(
				`INSERT INTO document_chunks (document_id, chunk_index, content, embedding)
				 VALUES ($1, $2, $3, $4)`,
				namespace, c.Ordinal, c.Text, pgvector.NewVector(c.Embedding),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		return nil
	})
}

// Nearest returns the k chunks closest to query by cosine distance. Score is
// 1 - distance, so higher means more similar.
func (r *VectorRepository) Nearest(ctx context.Context, namespace string, query []float32, k int) ([]domain.ScoredPassage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT content, 1 - (embedding <=> $2) AS score
		 FROM document_chunks
		 WHERE document_id = $1
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		namespace, pgvector.NewVector(query), k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.ScoredPassage
	for rows.Next() {
		var p domain.ScoredPassage
		if err := rows.Scan(&p.Text, &p.Score); err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

func (r *VectorRepository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
